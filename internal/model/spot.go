package model

// SpotStatus is the physical occupancy of a spot.  It only tracks
// immediate bookings; future reservations never change it.
type SpotStatus string

const (
	SpotAvailable SpotStatus = "Available"
	SpotOccupied  SpotStatus = "Occupied"
)

// ParkingSpot represents one physical space inside a lot.
//
// Fields:
//  ID         – primary key identifier.
//  LotID      – owning lot.
//  SpotNumber – 1-based number, unique within the lot.
//  Status     – Available or Occupied.
type ParkingSpot struct {
	ID         uint64     `json:"id"`          // parking_spots.id
	LotID      uint64     `json:"lot_id"`      // parking_spots.lot_id
	SpotNumber int        `json:"spot_number"` // parking_spots.spot_number
	Status     SpotStatus `json:"status"`      // parking_spots.status
}

// IsAvailable reports whether the spot can take an immediate booking.
func (s ParkingSpot) IsAvailable() bool { return s.Status == SpotAvailable }
