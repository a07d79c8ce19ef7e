package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/guregu/null.v4"
)

// BookingType distinguishes walk-in bookings from planned ones.
type BookingType string

const (
	BookingImmediate BookingType = "immediate"
	BookingReserved  BookingType = "reserved"
)

// BookingStatus is the lifecycle state of a booking.
type BookingStatus string

const (
	StatusActive    BookingStatus = "Active"
	StatusReserved  BookingStatus = "Reserved"
	StatusCompleted BookingStatus = "Completed"
)

// ParseBookingStatus converts user input into a BookingStatus.  Matching
// is case-insensitive; ok is false for unknown values.
func ParseBookingStatus(s string) (BookingStatus, bool) {
	for _, st := range []BookingStatus{StatusActive, StatusReserved, StatusCompleted} {
		if strings.EqualFold(s, string(st)) {
			return st, true
		}
	}
	return "", false
}

// Booking records one use of a spot by a user as stored in the
// `bookings` table.  Immediate bookings start Active with StartTime set
// to the creation instant and an open EndTime.  Reserved bookings start
// Reserved with ReservedStart/ReservedEnd set and StartTime equal to
// ReservedStart.  Both end Completed with EndTime and a final TotalCost.
type Booking struct {
	ID            uint64          `json:"id"`             // bookings.id
	UserID        uint64          `json:"user_id"`        // bookings.user_id
	SpotID        uint64          `json:"spot_id"`        // bookings.spot_id
	Type          BookingType     `json:"booking_type"`   // bookings.booking_type
	Status        BookingStatus   `json:"status"`         // bookings.status
	StartTime     time.Time       `json:"start_time"`     // bookings.start_time
	EndTime       null.Time       `json:"end_time"`       // bookings.end_time (nullable)
	ReservedStart null.Time       `json:"reserved_start"` // bookings.reserved_start (nullable)
	ReservedEnd   null.Time       `json:"reserved_end"`   // bookings.reserved_end (nullable)
	TotalCost     decimal.Decimal `json:"total_cost"`     // bookings.total_cost
	CreatedAt     time.Time       `json:"created_at"`     // bookings.created_at
	UpdatedAt     time.Time       `json:"updated_at"`     // bookings.updated_at
}

// IsLive reports whether the booking still holds its spot for conflict
// purposes.
func (b Booking) IsLive() bool {
	return b.Status == StatusActive || b.Status == StatusReserved
}

// BookingDetail joins a booking with its spot and lot for listings,
// exports and notification emails.
type BookingDetail struct {
	Booking
	LotID        uint64          `json:"lot_id"`
	LotName      string          `json:"lot_name"`
	SpotNumber   int             `json:"spot_number"`
	PricePerHour decimal.Decimal `json:"price_per_hour"`
}
