package booking

import (
	"errors"
	"fmt"
)

// Error kinds returned by the booking core.  Callers match them with
// errors.Is; a TimeConflict additionally carries a *ConflictError.
var (
	ErrValidation          = errors.New("validation failed")
	ErrNotFound            = errors.New("not found")
	ErrLotNotFound         = errors.New("lot not found")
	ErrActiveBookingExists = errors.New("user already has an active booking")
	ErrSpotUnavailable     = errors.New("spot unavailable")
	ErrTimeConflict        = errors.New("time conflict")
	ErrNoSpotsAvailable    = errors.New("no spots available")
	ErrUnauthorized        = errors.New("not the booking owner")
	ErrAlreadyCompleted    = errors.New("booking already completed")
	ErrInternal            = errors.New("internal error")
)

// ConflictError reports the live booking whose window overlaps a request.
type ConflictError struct {
	SpotID    uint64
	BookingID uint64
	Window    Window
}

func (e *ConflictError) Error() string {
	end := "open"
	if !e.Window.OpenEnded() {
		end = e.Window.End.UTC().Format("2006-01-02T15:04:05Z")
	}
	return fmt.Sprintf("%s: spot %d is booked from %s to %s", ErrTimeConflict, e.SpotID,
		e.Window.Start.UTC().Format("2006-01-02T15:04:05Z"), end)
}

func (e *ConflictError) Unwrap() error { return ErrTimeConflict }

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
