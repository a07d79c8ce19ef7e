package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/parking-reservation/internal/booking"
	"github.com/iliyamo/parking-reservation/internal/repository"
)

// LotHandler serves the browse endpoints available to every signed-in
// user.  Responses are cached per lot by middleware.LotCache.
type LotHandler struct {
	Lots     *repository.LotRepo
	SpotRepo *repository.SpotRepo
	Ctrl     *booking.Controller
}

func NewLotHandler(lots *repository.LotRepo, spots *repository.SpotRepo, ctrl *booking.Controller) *LotHandler {
	return &LotHandler{Lots: lots, SpotRepo: spots, Ctrl: ctrl}
}

// List returns every lot with its available and occupied counts.
func (h *LotHandler) List(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	lots, err := h.Lots.ListWithAvailability(ctx)
	if err != nil {
		return jsonError(c, http.StatusInternalServerError, "list lots failed")
	}
	return c.JSON(http.StatusOK, echo.Map{"items": lots, "count": len(lots)})
}

func (h *LotHandler) Get(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return jsonError(c, http.StatusBadRequest, "invalid lot id")
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	lot, err := h.Lots.GetWithAvailability(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrLotNotFound) {
			return jsonError(c, http.StatusNotFound, "lot not found")
		}
		return jsonError(c, http.StatusInternalServerError, "load lot failed")
	}
	return c.JSON(http.StatusOK, lot)
}

// Spots lists the spots of a lot with their physical status.
func (h *LotHandler) Spots(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return jsonError(c, http.StatusBadRequest, "invalid lot id")
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	if _, err := h.Lots.GetByID(ctx, id); err != nil {
		if errors.Is(err, repository.ErrLotNotFound) {
			return jsonError(c, http.StatusNotFound, "lot not found")
		}
		return jsonError(c, http.StatusInternalServerError, "load lot failed")
	}
	spots, err := h.SpotRepo.ListByLot(ctx, id)
	if err != nil {
		return jsonError(c, http.StatusInternalServerError, "list spots failed")
	}
	return c.JSON(http.StatusOK, echo.Map{"lot_id": id, "items": spots, "count": len(spots)})
}

// Availability lists the spots a reservation for [start, end) could use.
func (h *LotHandler) Availability(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return jsonError(c, http.StatusBadRequest, "invalid lot id")
	}
	start, err := time.Parse(time.RFC3339, c.QueryParam("start"))
	if err != nil {
		return jsonError(c, http.StatusBadRequest, "start must be RFC3339")
	}
	end, err := time.Parse(time.RFC3339, c.QueryParam("end"))
	if err != nil {
		return jsonError(c, http.StatusBadRequest, "end must be RFC3339")
	}

	ctx, cancel := reqCtx(c)
	defer cancel()
	w := booking.Window{Start: start.UTC(), End: end.UTC()}
	spots, err := h.Ctrl.Availability(ctx, id, w)
	if err != nil {
		return bookingError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"lot_id":    id,
		"start":     w.Start,
		"end":       w.End,
		"available": len(spots),
		"spots":     spots,
	})
}
