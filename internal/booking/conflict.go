package booking

import "github.com/iliyamo/parking-reservation/internal/model"

// HasConflict scans every live booking on spotID, skipping excludeID, and
// reports the first whose effective window overlaps w.  Completed
// bookings are ignored.
func HasConflict(live []model.Booking, spotID uint64, w Window, excludeID uint64) (bool, *ConflictError) {
	for _, b := range live {
		if b.SpotID != spotID || !b.IsLive() {
			continue
		}
		if excludeID != 0 && b.ID == excludeID {
			continue
		}
		if ew := EffectiveWindow(b); w.Overlaps(ew) {
			return true, &ConflictError{SpotID: spotID, BookingID: b.ID, Window: ew}
		}
	}
	return false, nil
}

// FreeSpots returns the spots with no live booking overlapping w, in the
// order given.
func FreeSpots(spots []model.ParkingSpot, live []model.Booking, w Window) []model.ParkingSpot {
	out := make([]model.ParkingSpot, 0, len(spots))
	for _, s := range spots {
		if ok, _ := HasConflict(live, s.ID, w, 0); !ok {
			out = append(out, s)
		}
	}
	return out
}
