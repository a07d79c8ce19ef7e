package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/parking-reservation/internal/booking"
)

const requestTimeout = 5 * time.Second

func reqCtx(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), requestTimeout)
}

func jsonError(c echo.Context, status int, msg string) error {
	return c.JSON(status, echo.Map{"error": msg})
}

// pathID parses a positive numeric path parameter.
func pathID(c echo.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	return id, err == nil && id > 0
}

// queryID parses an optional numeric query parameter.  Absent means 0.
func queryID(c echo.Context, name string) (uint64, bool) {
	v := c.QueryParam(name)
	if v == "" {
		return 0, true
	}
	id, err := strconv.ParseUint(v, 10, 64)
	return id, err == nil
}

// bookingStatus maps a booking core error onto an HTTP status.
func bookingStatus(err error) int {
	switch {
	case errors.Is(err, booking.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, booking.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, booking.ErrNotFound), errors.Is(err, booking.ErrLotNotFound):
		return http.StatusNotFound
	case errors.Is(err, booking.ErrActiveBookingExists),
		errors.Is(err, booking.ErrSpotUnavailable),
		errors.Is(err, booking.ErrTimeConflict),
		errors.Is(err, booking.ErrNoSpotsAvailable),
		errors.Is(err, booking.ErrAlreadyCompleted):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// bookingError writes err as a JSON error.  Internal failures are logged
// and hidden; a time conflict also reports the window it collided with.
func bookingError(c echo.Context, err error) error {
	status := bookingStatus(err)
	if status == http.StatusInternalServerError {
		c.Logger().Error(err)
		return jsonError(c, status, "internal error")
	}
	body := echo.Map{"error": err.Error()}
	var ce *booking.ConflictError
	if errors.As(err, &ce) {
		conflict := echo.Map{"start": ce.Window.Start}
		if !ce.Window.OpenEnded() {
			conflict["end"] = ce.Window.End
		} else {
			conflict["end"] = nil
		}
		body["conflict"] = conflict
	}
	return c.JSON(status, body)
}
