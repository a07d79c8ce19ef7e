package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/parking-reservation/internal/booking"
	"github.com/iliyamo/parking-reservation/internal/jobs"
	"github.com/iliyamo/parking-reservation/internal/metrics"
	"github.com/iliyamo/parking-reservation/internal/middleware"
	"github.com/iliyamo/parking-reservation/internal/queue"
)

// BookingHandler exposes the booking lifecycle to signed-in users.
type BookingHandler struct {
	Ctrl    *booking.Controller
	Jobs    jobs.Enqueuer
	Metrics *metrics.Metrics
}

func NewBookingHandler(ctrl *booking.Controller, q jobs.Enqueuer, m *metrics.Metrics) *BookingHandler {
	return &BookingHandler{Ctrl: ctrl, Jobs: q, Metrics: m}
}

type createBookingReq struct {
	LotID         uint64     `json:"lot_id"`
	BookingType   string     `json:"booking_type"`
	SpotID        uint64     `json:"spot_id"`
	ReservedStart *time.Time `json:"reserved_start"`
	ReservedEnd   *time.Time `json:"reserved_end"`
}

func (r createBookingReq) request() (booking.BookingRequest, string) {
	switch strings.ToLower(strings.TrimSpace(r.BookingType)) {
	case "immediate":
		if r.ReservedStart != nil || r.ReservedEnd != nil {
			return nil, "immediate bookings take no reserved window"
		}
		return booking.Immediate{}, ""
	case "reserved":
		if r.ReservedStart == nil || r.ReservedEnd == nil {
			return nil, "reserved_start and reserved_end are required"
		}
		return booking.Reserved{Window: booking.Window{
			Start: r.ReservedStart.UTC(),
			End:   r.ReservedEnd.UTC(),
		}}, ""
	}
	return nil, "booking_type must be immediate or reserved"
}

// Create books a spot.  spot_id is optional; without it the first
// suitable spot by number is taken.
func (h *BookingHandler) Create(c echo.Context) error {
	uid, ok := middleware.UserID(c)
	if !ok {
		return jsonError(c, http.StatusUnauthorized, "unauthorized")
	}
	var req createBookingReq
	if err := c.Bind(&req); err != nil {
		return jsonError(c, http.StatusBadRequest, "invalid body")
	}
	if req.LotID == 0 {
		return jsonError(c, http.StatusBadRequest, "lot_id is required")
	}
	br, msg := req.request()
	if msg != "" {
		return jsonError(c, http.StatusBadRequest, msg)
	}

	ctx, cancel := reqCtx(c)
	defer cancel()
	b, err := h.Ctrl.Create(ctx, uid, req.LotID, br, req.SpotID)
	if err != nil {
		h.Metrics.BookingRejected(err)
		return bookingError(c, err)
	}
	h.Metrics.BookingCreated(string(b.Type))
	return c.JSON(http.StatusCreated, b)
}

// Release completes the caller's booking and returns it with its final
// cost.
func (h *BookingHandler) Release(c echo.Context) error {
	uid, ok := middleware.UserID(c)
	if !ok {
		return jsonError(c, http.StatusUnauthorized, "unauthorized")
	}
	id, ok := pathID(c, "id")
	if !ok {
		return jsonError(c, http.StatusBadRequest, "invalid booking id")
	}

	ctx, cancel := reqCtx(c)
	defer cancel()
	b, err := h.Ctrl.Release(ctx, id, uid)
	if err != nil {
		h.Metrics.BookingRejected(err)
		return bookingError(c, err)
	}
	h.Metrics.BookingReleased()
	return c.JSON(http.StatusOK, b)
}

// ListMine returns the caller's bookings, newest first.
func (h *BookingHandler) ListMine(c echo.Context) error {
	uid, ok := middleware.UserID(c)
	if !ok {
		return jsonError(c, http.StatusUnauthorized, "unauthorized")
	}
	f, msg := parseFilter(c)
	if msg != "" {
		return jsonError(c, http.StatusBadRequest, msg)
	}
	f.UserID = uid

	ctx, cancel := reqCtx(c)
	defer cancel()
	items, err := h.Ctrl.List(ctx, f)
	if err != nil {
		return bookingError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items, "count": len(items)})
}

// Get returns one booking to its owner or to an administrator.
func (h *BookingHandler) Get(c echo.Context) error {
	uid, ok := middleware.UserID(c)
	if !ok {
		return jsonError(c, http.StatusUnauthorized, "unauthorized")
	}
	id, ok := pathID(c, "id")
	if !ok {
		return jsonError(c, http.StatusBadRequest, "invalid booking id")
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	d, err := h.Ctrl.Get(ctx, id, uid, middleware.IsAdmin(c))
	if err != nil {
		return bookingError(c, err)
	}
	return c.JSON(http.StatusOK, d)
}

// Export queues a CSV export of the caller's bookings.
func (h *BookingHandler) Export(c echo.Context) error {
	uid, ok := middleware.UserID(c)
	if !ok {
		return jsonError(c, http.StatusUnauthorized, "unauthorized")
	}
	if h.Jobs == nil {
		return jsonError(c, http.StatusServiceUnavailable, "exports are disabled")
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	id, err := h.Jobs.Enqueue(ctx, queue.TaskExportUserBookings, queue.UserArgs{UserID: uid})
	if err != nil {
		c.Logger().Error(err)
		return jsonError(c, http.StatusServiceUnavailable, "could not queue export")
	}
	return c.JSON(http.StatusAccepted, echo.Map{"job_id": id, "task": queue.TaskExportUserBookings})
}
