package booking

import (
	"fmt"
	"sort"
	"time"

	"github.com/iliyamo/parking-reservation/internal/model"
)

// ValidateWindow checks a reservation window against now.
func ValidateWindow(w Window, now time.Time) error {
	switch {
	case w.Start.IsZero() || w.End.IsZero():
		return invalid("reserved_start and reserved_end are required")
	case !w.Start.Before(w.End):
		return invalid("reserved_end must be after reserved_start")
	case w.Start.Before(now):
		return invalid("reserved_start cannot be in the past")
	}
	return nil
}

// Allocate picks the spot a request should use.  spots are the spots of
// lotID and live the Active and Reserved bookings on them; neither slice
// is modified.  With requestedSpotID zero the lowest-numbered eligible
// spot wins, so identical inputs always give the same answer.
func Allocate(lotID uint64, spots []model.ParkingSpot, live []model.Booking, req BookingRequest, requestedSpotID uint64, now time.Time) (model.ParkingSpot, error) {
	ordered := make([]model.ParkingSpot, 0, len(spots))
	for _, s := range spots {
		if s.LotID == lotID {
			ordered = append(ordered, s)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].SpotNumber < ordered[j].SpotNumber })

	var target *model.ParkingSpot
	if requestedSpotID != 0 {
		for i := range ordered {
			if ordered[i].ID == requestedSpotID {
				target = &ordered[i]
				break
			}
		}
		if target == nil {
			return model.ParkingSpot{}, fmt.Errorf("%w: spot %d is not in lot %d", ErrSpotUnavailable, requestedSpotID, lotID)
		}
	}

	switch r := req.(type) {
	case Immediate:
		if target != nil {
			if !target.IsAvailable() {
				return model.ParkingSpot{}, fmt.Errorf("%w: spot %d is %s", ErrSpotUnavailable, target.SpotNumber, target.Status)
			}
			return *target, nil
		}
		for _, s := range ordered {
			if s.IsAvailable() {
				return s, nil
			}
		}
		return model.ParkingSpot{}, ErrNoSpotsAvailable

	case Reserved:
		if err := ValidateWindow(r.Window, now); err != nil {
			return model.ParkingSpot{}, err
		}
		if target != nil {
			if ok, conflict := HasConflict(live, target.ID, r.Window, 0); ok {
				return model.ParkingSpot{}, conflict
			}
			return *target, nil
		}
		for _, s := range ordered {
			if ok, _ := HasConflict(live, s.ID, r.Window, 0); !ok {
				return s, nil
			}
		}
		return model.ParkingSpot{}, ErrNoSpotsAvailable

	case nil:
		return model.ParkingSpot{}, invalid("booking type is required")
	}
	return model.ParkingSpot{}, invalid("unsupported booking request %T", req)
}
