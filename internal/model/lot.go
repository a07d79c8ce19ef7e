package model

import (
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/guregu/null.v4"
)

// ParkingLot represents a parking facility as stored in the
// `parking_lots` table.  A lot owns exactly Capacity spots numbered
// 1..Capacity; the spot rows are created and removed together with
// capacity changes.
//
// Fields:
//  ID           – primary key identifier.
//  Name         – display name of the facility.
//  Address      – optional street address.
//  Capacity     – number of spots the lot owns (>= 1).
//  PricePerHour – hourly rate charged for bookings in this lot.
//  CreatedAt    – timestamp of creation.
//  UpdatedAt    – timestamp of last update.
type ParkingLot struct {
	ID           uint64          `json:"id"`             // parking_lots.id
	Name         string          `json:"name"`           // parking_lots.name
	Address      null.String     `json:"address"`        // parking_lots.address (nullable)
	Capacity     int             `json:"capacity"`       // parking_lots.capacity
	PricePerHour decimal.Decimal `json:"price_per_hour"` // parking_lots.price_per_hour
	CreatedAt    time.Time       `json:"created_at"`     // parking_lots.created_at
	UpdatedAt    time.Time       `json:"updated_at"`     // parking_lots.updated_at
}

// LotAvailability decorates a lot with live spot counts.  It is the
// shape returned by the browse endpoints.
type LotAvailability struct {
	ParkingLot
	Available int `json:"available"`
	Occupied  int `json:"occupied"`
}
