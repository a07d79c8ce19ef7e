package booking

import (
	"time"

	"github.com/iliyamo/parking-reservation/internal/model"
)

// Window is a half-open interval [Start, End).  A zero End means the
// window has no end yet, as for an Active immediate booking.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// OpenEnded reports whether the window extends indefinitely.
func (w Window) OpenEnded() bool { return w.End.IsZero() }

// Overlaps implements a < d && c < b for [a,b) and [c,d), treating an
// open end as +infinity.
func (w Window) Overlaps(o Window) bool {
	aBeforeD := o.OpenEnded() || w.Start.Before(o.End)
	cBeforeB := w.OpenEnded() || o.Start.Before(w.End)
	return aBeforeD && cBeforeB
}

// Duration of a closed window; zero for an open one.
func (w Window) Duration() time.Duration {
	if w.OpenEnded() {
		return 0
	}
	return w.End.Sub(w.Start)
}

// EffectiveWindow is the interval a booking holds its spot for: the
// reserved window when present, otherwise start_time to end_time.
func EffectiveWindow(b model.Booking) Window {
	if b.ReservedStart.Valid && b.ReservedEnd.Valid {
		return Window{Start: b.ReservedStart.Time, End: b.ReservedEnd.Time}
	}
	w := Window{Start: b.StartTime}
	if b.EndTime.Valid {
		w.End = b.EndTime.Time
	}
	return w
}

// BookingRequest is either Immediate or Reserved.
type BookingRequest interface {
	bookingType() model.BookingType
}

// Immediate occupies a spot from now until released.
type Immediate struct{}

// Reserved holds a spot for a future window.
type Reserved struct {
	Window Window
}

func (Immediate) bookingType() model.BookingType { return model.BookingImmediate }
func (Reserved) bookingType() model.BookingType  { return model.BookingReserved }

// TypeOf returns the booking type a request produces.
func TypeOf(r BookingRequest) model.BookingType { return r.bookingType() }
