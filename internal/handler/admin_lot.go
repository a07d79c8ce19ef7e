package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"gopkg.in/guregu/null.v4"

	"github.com/iliyamo/parking-reservation/internal/booking"
	"github.com/iliyamo/parking-reservation/internal/model"
	"github.com/iliyamo/parking-reservation/internal/repository"
)

const (
	defaultPageSize = 100
	maxPageSize     = 500
)

// AdminLotHandler lets administrators manage lots and inspect bookings.
// Every mutation invalidates the lot through the booking controller.
type AdminLotHandler struct {
	Lots     *repository.LotRepo
	SpotRepo *repository.SpotRepo
	Ctrl     *booking.Controller
}

func NewAdminLotHandler(lots *repository.LotRepo, spots *repository.SpotRepo, ctrl *booking.Controller) *AdminLotHandler {
	return &AdminLotHandler{Lots: lots, SpotRepo: spots, Ctrl: ctrl}
}

type createLotReq struct {
	Name         string          `json:"name"`
	Address      string          `json:"address"`
	Capacity     int             `json:"capacity"`
	PricePerHour decimal.Decimal `json:"price_per_hour"`
}

type updateLotReq struct {
	Name         *string          `json:"name"`
	Address      *string          `json:"address"`
	Capacity     *int             `json:"capacity"`
	PricePerHour *decimal.Decimal `json:"price_per_hour"`
}

func address(s string) null.String {
	s = strings.TrimSpace(s)
	return null.NewString(s, s != "")
}

// Create adds a lot with spots 1..capacity.
func (h *AdminLotHandler) Create(c echo.Context) error {
	var req createLotReq
	if err := c.Bind(&req); err != nil {
		return jsonError(c, http.StatusBadRequest, "invalid body")
	}
	req.Name = strings.TrimSpace(req.Name)
	switch {
	case req.Name == "":
		return jsonError(c, http.StatusBadRequest, "name is required")
	case req.Capacity < 1:
		return jsonError(c, http.StatusBadRequest, "capacity must be at least 1")
	case req.PricePerHour.IsNegative():
		return jsonError(c, http.StatusBadRequest, "price_per_hour must not be negative")
	}

	ctx, cancel := reqCtx(c)
	defer cancel()
	lot := &model.ParkingLot{
		Name:         req.Name,
		Address:      address(req.Address),
		Capacity:     req.Capacity,
		PricePerHour: req.PricePerHour.Round(2),
	}
	if err := h.Lots.Create(ctx, lot); err != nil {
		return jsonError(c, http.StatusInternalServerError, "create lot failed")
	}
	h.Ctrl.Invalidate(ctx, lot.ID)
	return c.JSON(http.StatusCreated, lot)
}

// Update changes name, address, price and, when capacity differs, resizes
// the lot.
func (h *AdminLotHandler) Update(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return jsonError(c, http.StatusBadRequest, "invalid lot id")
	}
	var req updateLotReq
	if err := c.Bind(&req); err != nil {
		return jsonError(c, http.StatusBadRequest, "invalid body")
	}

	ctx, cancel := reqCtx(c)
	defer cancel()
	lot, err := h.Lots.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrLotNotFound) {
			return jsonError(c, http.StatusNotFound, "lot not found")
		}
		return jsonError(c, http.StatusInternalServerError, "load lot failed")
	}

	changed := false
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return jsonError(c, http.StatusBadRequest, "name must not be empty")
		}
		lot.Name, changed = name, true
	}
	if req.Address != nil {
		lot.Address, changed = address(*req.Address), true
	}
	if req.PricePerHour != nil {
		if req.PricePerHour.IsNegative() {
			return jsonError(c, http.StatusBadRequest, "price_per_hour must not be negative")
		}
		lot.PricePerHour, changed = req.PricePerHour.Round(2), true
	}
	if req.Capacity != nil && *req.Capacity < 1 {
		return jsonError(c, http.StatusBadRequest, "capacity must be at least 1")
	}

	capacity := 0
	if req.Capacity != nil && *req.Capacity != lot.Capacity {
		capacity = *req.Capacity
	}
	if changed || capacity != 0 {
		if err := h.Lots.Apply(ctx, lot, capacity); err != nil {
			switch {
			case errors.Is(err, repository.ErrConflict):
				return jsonError(c, http.StatusConflict, err.Error())
			case errors.Is(err, repository.ErrLotNotFound):
				return jsonError(c, http.StatusNotFound, "lot not found")
			}
			return jsonError(c, http.StatusInternalServerError, "update lot failed")
		}
	}
	h.Ctrl.Invalidate(ctx, id)

	out, err := h.Lots.GetWithAvailability(ctx, id)
	if err != nil {
		return jsonError(c, http.StatusInternalServerError, "load lot failed")
	}
	return c.JSON(http.StatusOK, out)
}

// Delete removes a lot, its spots and their booking history.
func (h *AdminLotHandler) Delete(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return jsonError(c, http.StatusBadRequest, "invalid lot id")
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	if err := h.Lots.Delete(ctx, id); err != nil {
		switch {
		case errors.Is(err, repository.ErrLotNotFound):
			return jsonError(c, http.StatusNotFound, "lot not found")
		case errors.Is(err, repository.ErrConflict):
			return jsonError(c, http.StatusConflict, err.Error())
		}
		return jsonError(c, http.StatusInternalServerError, "delete lot failed")
	}
	h.Ctrl.Invalidate(ctx, id)
	return c.NoContent(http.StatusNoContent)
}

// Spots lists the spots of a lot with the Active booking holding each.
func (h *AdminLotHandler) Spots(c echo.Context) error {
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
	spots, err := h.SpotRepo.ListWithOccupant(ctx, id)
	if err != nil {
		return jsonError(c, http.StatusInternalServerError, "list spots failed")
	}
	return c.JSON(http.StatusOK, echo.Map{"lot_id": id, "items": spots, "count": len(spots)})
}

// Bookings lists bookings across users filtered by lot, user, status and
// type.
func (h *AdminLotHandler) Bookings(c echo.Context) error {
	f, msg := parseFilter(c)
	if msg != "" {
		return jsonError(c, http.StatusBadRequest, msg)
	}
	var ok bool
	if f.UserID, ok = queryID(c, "user_id"); !ok {
		return jsonError(c, http.StatusBadRequest, "invalid user_id")
	}
	if f.LotID, ok = queryID(c, "lot_id"); !ok {
		return jsonError(c, http.StatusBadRequest, "invalid lot_id")
	}

	ctx, cancel := reqCtx(c)
	defer cancel()
	items, err := h.Ctrl.List(ctx, f)
	if err != nil {
		return bookingError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items, "count": len(items)})
}

// parseFilter reads status, type, limit and offset.  msg is non-empty
// when a parameter is malformed.
func parseFilter(c echo.Context) (repository.BookingFilter, string) {
	f := repository.BookingFilter{Limit: defaultPageSize}
	if v := c.QueryParam("status"); v != "" {
		st, ok := model.ParseBookingStatus(v)
		if !ok {
			return f, "status must be Active, Reserved or Completed"
		}
		f.Status = st
	}
	switch t := strings.ToLower(c.QueryParam("type")); t {
	case "":
	case string(model.BookingImmediate), string(model.BookingReserved):
		f.Type = model.BookingType(t)
	default:
		return f, "type must be immediate or reserved"
	}
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil || n == 0 {
			return f, "invalid limit"
		}
		f.Limit = min(n, maxPageSize)
	}
	if v := c.QueryParam("offset"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return f, "invalid offset"
		}
		f.Offset = n
	}
	return f, ""
}
