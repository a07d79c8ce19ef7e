package booking

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gopkg.in/guregu/null.v4"

	"github.com/iliyamo/parking-reservation/internal/model"
	"github.com/iliyamo/parking-reservation/internal/repository"
)

// Repos groups the stores the controller drives.
type Repos struct {
	Lots     *repository.LotRepo
	Spots    *repository.SpotRepo
	Bookings *repository.BookingRepo
	Users    *repository.UserRepo
}

// Controller owns the create and release transitions.  Allocation, the
// booking write and the spot mutation share one transaction; cache
// invalidation and notification run after commit and never fail the
// operation.
type Controller struct {
	db       *sql.DB
	repos    Repos
	inv      Invalidator
	notifier NotificationPort
	log      logrus.FieldLogger
	clock    Clock
}

// NewController wires a Controller.  Nil collaborators are replaced by
// no-op implementations.
func NewController(db *sql.DB, repos Repos, inv Invalidator, notifier NotificationPort, log logrus.FieldLogger) *Controller {
	if inv == nil {
		inv = NopInvalidator{}
	}
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	return &Controller{
		db:       db,
		repos:    repos,
		inv:      inv,
		notifier: notifier,
		log:      log.WithField("component", "booking"),
		clock:    RealClock{},
	}
}

// SetClock replaces the time source.
func (c *Controller) SetClock(clk Clock) { c.clock = clk }

// Create books a spot in lotID for userID.  requestedSpotID zero lets the
// allocator choose.
func (c *Controller) Create(ctx context.Context, userID, lotID uint64, req BookingRequest, requestedSpotID uint64) (*model.Booking, error) {
	if req == nil {
		return nil, invalid("booking type is required")
	}
	now := c.clock.Now().UTC()
	if r, ok := req.(Reserved); ok {
		r.Window = Window{Start: r.Window.Start.UTC(), End: r.Window.End.UTC()}
		if err := ValidateWindow(r.Window, now); err != nil {
			return nil, err
		}
		req = r
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, internal(err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if _, ok := req.(Immediate); ok {
		if _, err := c.repos.Users.LockTx(ctx, tx, userID); err != nil {
			return nil, translate(err)
		}
		n, err := c.repos.Bookings.CountActiveByUserTx(ctx, tx, userID)
		if err != nil {
			return nil, internal(err)
		}
		if n > 0 {
			return nil, ErrActiveBookingExists
		}
	}

	// lot, then its spots, then their bookings; Release locks in the
	// same order
	lot, err := c.repos.Lots.GetByIDTx(ctx, tx, lotID, true)
	if err != nil {
		return nil, translate(err)
	}
	spots, err := c.repos.Spots.LockByLotTx(ctx, tx, lot.ID)
	if err != nil {
		return nil, internal(err)
	}
	ids := make([]uint64, len(spots))
	for i, s := range spots {
		ids[i] = s.ID
	}
	live, err := c.repos.Bookings.ListLiveBySpotsTx(ctx, tx, ids, true)
	if err != nil {
		return nil, internal(err)
	}

	spot, err := Allocate(lot.ID, spots, live, req, requestedSpotID, now)
	if err != nil {
		return nil, err
	}

	b := model.Booking{
		UserID:    userID,
		SpotID:    spot.ID,
		Type:      TypeOf(req),
		CreatedAt: now,
	}
	switch r := req.(type) {
	case Immediate:
		b.Status = model.StatusActive
		b.StartTime = now
		b.TotalCost = decimal.Zero
	case Reserved:
		b.Status = model.StatusReserved
		b.StartTime = r.Window.Start
		b.ReservedStart = null.TimeFrom(r.Window.Start)
		b.ReservedEnd = null.TimeFrom(r.Window.End)
		b.TotalCost = ComputeCost(r.Window.Start, r.Window.End, lot.PricePerHour)
	}

	if err := c.repos.Bookings.InsertTx(ctx, tx, &b); err != nil {
		return nil, internal(err)
	}
	if b.Type == model.BookingImmediate {
		if err := c.repos.Spots.SetStatusTx(ctx, tx, spot.ID, model.SpotOccupied); err != nil {
			return nil, internal(err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, internal(err)
	}
	committed = true

	c.invalidate(ctx, lot.ID)
	if err := c.notifier.BookingCreated(ctx, b); err != nil {
		c.log.WithError(err).WithField("booking_id", b.ID).Warn("booking notification failed")
	}
	return &b, nil
}

// Release completes a booking owned by userID, bills it for the time
// actually elapsed and frees its spot unless another Active booking still
// holds it.
func (c *Controller) Release(ctx context.Context, bookingID, userID uint64) (*model.Booking, error) {
	now := c.clock.Now().UTC()

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, internal(err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	// unlocked read to find the lot, then lock in Create's order
	b, err := c.repos.Bookings.GetByIDTx(ctx, tx, bookingID, false)
	if err != nil {
		return nil, translate(err)
	}
	spot, err := c.repos.Spots.GetByIDTx(ctx, tx, b.SpotID, false)
	if err != nil {
		return nil, internal(err)
	}
	lot, err := c.repos.Lots.GetByIDTx(ctx, tx, spot.LotID, true)
	if err != nil {
		return nil, internal(err)
	}
	if _, err := c.repos.Spots.LockByLotTx(ctx, tx, lot.ID); err != nil {
		return nil, internal(err)
	}
	if b, err = c.repos.Bookings.GetByIDTx(ctx, tx, bookingID, true); err != nil {
		return nil, translate(err)
	}

	if b.UserID != userID {
		return nil, ErrUnauthorized
	}
	if b.Status == model.StatusCompleted {
		return nil, ErrAlreadyCompleted
	}

	cost := ComputeCost(b.StartTime, now, lot.PricePerHour)
	if err := c.repos.Bookings.CompleteTx(ctx, tx, b.ID, now, cost); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrAlreadyCompleted
		}
		return nil, internal(err)
	}
	others, err := c.repos.Bookings.CountActiveBySpotTx(ctx, tx, b.SpotID, b.ID)
	if err != nil {
		return nil, internal(err)
	}
	if others == 0 {
		if err := c.repos.Spots.SetStatusTx(ctx, tx, b.SpotID, model.SpotAvailable); err != nil {
			return nil, internal(err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, internal(err)
	}
	committed = true

	b.Status = model.StatusCompleted
	b.EndTime = null.TimeFrom(now)
	b.TotalCost = cost
	b.UpdatedAt = now
	c.invalidate(ctx, lot.ID)
	return b, nil
}

// Get returns a booking with its lot and spot.  Only the owner or an
// administrator may read it.
func (c *Controller) Get(ctx context.Context, bookingID, userID uint64, admin bool) (*model.BookingDetail, error) {
	d, err := c.repos.Bookings.GetDetail(ctx, bookingID)
	if err != nil {
		return nil, translate(err)
	}
	if !admin && d.UserID != userID {
		return nil, ErrUnauthorized
	}
	return d, nil
}

// List returns bookings matching f.  It applies no rules beyond the
// filter.
func (c *Controller) List(ctx context.Context, f repository.BookingFilter) ([]model.BookingDetail, error) {
	out, err := c.repos.Bookings.List(ctx, f)
	if err != nil {
		return nil, internal(err)
	}
	return out, nil
}

// Availability returns the spots of a lot that a reservation for w could
// use.
func (c *Controller) Availability(ctx context.Context, lotID uint64, w Window) ([]model.ParkingSpot, error) {
	if w.Start.IsZero() || w.End.IsZero() || !w.Start.Before(w.End) {
		return nil, invalid("start must be before end")
	}
	if _, err := c.repos.Lots.GetByID(ctx, lotID); err != nil {
		return nil, translate(err)
	}
	spots, err := c.repos.Spots.ListByLot(ctx, lotID)
	if err != nil {
		return nil, internal(err)
	}
	ids := make([]uint64, len(spots))
	for i, s := range spots {
		ids[i] = s.ID
	}
	live, err := c.repos.Bookings.ListLiveBySpots(ctx, ids)
	if err != nil {
		return nil, internal(err)
	}
	return FreeSpots(spots, live, w), nil
}

// Invalidate runs the invalidator for lotID outside any booking
// operation.  Administrative mutations use it so every cache drop goes
// through one path.
func (c *Controller) Invalidate(ctx context.Context, lotID uint64) { c.invalidate(ctx, lotID) }

func (c *Controller) invalidate(ctx context.Context, lotID uint64) {
	if err := c.inv.Invalidate(ctx, lotID); err != nil {
		c.log.WithError(err).WithField("lot_id", lotID).Warn("cache invalidation failed")
	}
}

// translate maps repository sentinels onto the core's error kinds.
func translate(err error) error {
	switch {
	case errors.Is(err, repository.ErrLotNotFound):
		return ErrLotNotFound
	case errors.Is(err, repository.ErrBookingNotFound),
		errors.Is(err, repository.ErrSpotNotFound),
		errors.Is(err, repository.ErrUserNotFound):
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return internal(err)
}

func internal(err error) error {
	return fmt.Errorf("%w: %v", ErrInternal, err)
}
