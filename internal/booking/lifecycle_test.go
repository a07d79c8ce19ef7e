package booking_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/parking-reservation/internal/booking"
	"github.com/iliyamo/parking-reservation/internal/database"
	"github.com/iliyamo/parking-reservation/internal/model"
	"github.com/iliyamo/parking-reservation/internal/repository"
	"github.com/iliyamo/parking-reservation/internal/testutil"
)

type recordingInvalidator struct {
	mu   sync.Mutex
	lots []uint64
}

func (r *recordingInvalidator) Invalidate(_ context.Context, lotID uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lots = append(r.lots, lotID)
	return nil
}

func (r *recordingInvalidator) calls() []uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]uint64(nil), r.lots...)
}

type failingNotifier struct {
	mu    sync.Mutex
	calls int
}

func (f *failingNotifier) BookingCreated(context.Context, model.Booking) error {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return errors.New("broker down")
}

type fixture struct {
	ctrl     *booking.Controller
	repos    booking.Repos
	clock    *booking.FixedClock
	inv      *recordingInvalidator
	notifier *failingNotifier
	user1    uint64
	user2    uint64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewDB(t)
	repos := booking.Repos{
		Lots:     repository.NewLotRepo(db, database.SQLite),
		Spots:    repository.NewSpotRepo(db, database.SQLite),
		Bookings: repository.NewBookingRepo(db, database.SQLite),
		Users:    repository.NewUserRepo(db, database.SQLite),
	}
	f := &fixture{
		repos:    repos,
		clock:    &booking.FixedClock{T: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)},
		inv:      &recordingInvalidator{},
		notifier: &failingNotifier{},
		user1:    testutil.InsertUser(t, db, "one@example.com", model.RoleUser),
		user2:    testutil.InsertUser(t, db, "two@example.com", model.RoleUser),
	}
	f.ctrl = booking.NewController(db, repos, f.inv, f.notifier, nil)
	f.ctrl.SetClock(f.clock)
	return f
}

func (f *fixture) lot(t *testing.T, capacity int, price string) *model.ParkingLot {
	t.Helper()
	lot := &model.ParkingLot{Name: "Central", Capacity: capacity, PricePerHour: decimal.RequireFromString(price)}
	require.NoError(t, f.repos.Lots.Create(context.Background(), lot))
	return lot
}

func (f *fixture) spots(t *testing.T, lotID uint64) []model.ParkingSpot {
	t.Helper()
	spots, err := f.repos.Spots.ListByLot(context.Background(), lotID)
	require.NoError(t, err)
	return spots
}

func (f *fixture) at(h, m int) time.Time { return time.Date(2026, 3, 1, h, m, 0, 0, time.UTC) }

func window(from, to time.Time) booking.Reserved {
	return booking.Reserved{Window: booking.Window{Start: from, End: to}}
}

func TestCreateImmediateAutoPicksLowestSpot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lot := f.lot(t, 2, "10")
	spots := f.spots(t, lot.ID)

	b1, err := f.ctrl.Create(ctx, f.user1, lot.ID, booking.Immediate{}, 0)
	require.NoError(t, err)
	assert.Equal(t, spots[0].ID, b1.SpotID)
	assert.Equal(t, model.StatusActive, b1.Status)
	assert.False(t, b1.ReservedStart.Valid)

	b2, err := f.ctrl.Create(ctx, f.user2, lot.ID, booking.Immediate{}, 0)
	require.NoError(t, err)
	assert.Equal(t, spots[1].ID, b2.SpotID)

	for _, s := range f.spots(t, lot.ID) {
		assert.Equal(t, model.SpotOccupied, s.Status)
	}

	_, err = f.ctrl.Create(ctx, f.user1, lot.ID, booking.Immediate{}, 0)
	assert.ErrorIs(t, err, booking.ErrActiveBookingExists)

	// reservations are not limited by an active booking
	other := f.lot(t, 1, "10")
	_, err = f.ctrl.Create(ctx, f.user1, other.ID, window(f.at(12, 0), f.at(13, 0)), 0)
	assert.NoError(t, err)
}

func TestCreateReservationRejectsOverlappingWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lot := f.lot(t, 2, "10")
	spot1 := f.spots(t, lot.ID)[0]

	first, err := f.ctrl.Create(ctx, f.user1, lot.ID, window(f.at(10, 0), f.at(12, 0)), spot1.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusReserved, first.Status)
	assert.True(t, first.StartTime.Equal(f.at(10, 0)))
	assert.True(t, first.TotalCost.Equal(decimal.RequireFromString("20")))

	_, err = f.ctrl.Create(ctx, f.user2, lot.ID, window(f.at(11, 0), f.at(13, 0)), spot1.ID)
	require.ErrorIs(t, err, booking.ErrTimeConflict)
	var ce *booking.ConflictError
	require.True(t, errors.As(err, &ce))
	assert.True(t, ce.Window.Start.Equal(f.at(10, 0)))
	assert.True(t, ce.Window.End.Equal(f.at(12, 0)))

	adj, err := f.ctrl.Create(ctx, f.user2, lot.ID, window(f.at(12, 0), f.at(13, 0)), spot1.ID)
	require.NoError(t, err)
	assert.Equal(t, spot1.ID, adj.SpotID)

	// reservations never touch occupancy
	assert.Equal(t, model.SpotAvailable, f.spots(t, lot.ID)[0].Status)
}

func TestReleaseBillsOneHourMinimum(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lot := f.lot(t, 1, "12.5")
	f.clock.T = f.at(10, 0)

	b, err := f.ctrl.Create(ctx, f.user1, lot.ID, booking.Immediate{}, 0)
	require.NoError(t, err)

	f.clock.T = f.at(10, 20)
	done, err := f.ctrl.Release(ctx, b.ID, f.user1)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, done.Status)
	assert.True(t, done.TotalCost.Equal(decimal.RequireFromString("12.50")), done.TotalCost.String())
	assert.True(t, done.EndTime.Time.Equal(f.at(10, 20)))
	assert.Equal(t, model.SpotAvailable, f.spots(t, lot.ID)[0].Status)
}

func TestReleaseRebillsReservationFromElapsedTime(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lot := f.lot(t, 1, "10")
	f.clock.T = f.at(9, 0)

	b, err := f.ctrl.Create(ctx, f.user1, lot.ID, window(f.at(10, 0), f.at(13, 0)), 0)
	require.NoError(t, err)
	assert.True(t, b.TotalCost.Equal(decimal.RequireFromString("30")))

	f.clock.T = f.at(10, 30)
	done, err := f.ctrl.Release(ctx, b.ID, f.user1)
	require.NoError(t, err)
	assert.True(t, done.TotalCost.Equal(decimal.RequireFromString("10")), done.TotalCost.String())

	stored, err := f.repos.Bookings.GetDetail(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, stored.Status)
	assert.True(t, stored.TotalCost.Equal(decimal.RequireFromString("10")), stored.TotalCost.String())
}

func TestConcurrentReservationsForLastSpotAdmitOne(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lot := f.lot(t, 2, "10")
	spot1 := f.spots(t, lot.ID)[0]
	_, err := f.ctrl.Create(ctx, f.user1, lot.ID, window(f.at(9, 0), f.at(18, 0)), spot1.ID)
	require.NoError(t, err)

	var (
		wg   sync.WaitGroup
		errs = make([]error, 2)
	)
	for i, user := range []uint64{f.user1, f.user2} {
		wg.Add(1)
		go func(i int, user uint64) {
			defer wg.Done()
			_, errs[i] = f.ctrl.Create(ctx, user, lot.ID, window(f.at(10, 0), f.at(11, 0)), 0)
		}(i, user)
	}
	wg.Wait()

	var ok, rejected int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, booking.ErrNoSpotsAvailable), errors.Is(err, booking.ErrTimeConflict):
			rejected++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, rejected)
}

func TestReleaseIsIdempotentlyRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lot := f.lot(t, 1, "10")

	b, err := f.ctrl.Create(ctx, f.user1, lot.ID, booking.Immediate{}, 0)
	require.NoError(t, err)
	f.clock.T = f.clock.T.Add(2 * time.Hour)
	first, err := f.ctrl.Release(ctx, b.ID, f.user1)
	require.NoError(t, err)

	f.clock.T = f.clock.T.Add(5 * time.Hour)
	_, err = f.ctrl.Release(ctx, b.ID, f.user1)
	assert.ErrorIs(t, err, booking.ErrAlreadyCompleted)

	stored, err := f.repos.Bookings.GetByID(ctx, b.ID)
	require.NoError(t, err)
	assert.True(t, stored.TotalCost.Equal(first.TotalCost))
	assert.True(t, stored.EndTime.Time.Equal(first.EndTime.Time))
}

func TestReleaseErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lot := f.lot(t, 1, "10")

	_, err := f.ctrl.Release(ctx, 999, f.user1)
	assert.ErrorIs(t, err, booking.ErrNotFound)

	b, err := f.ctrl.Create(ctx, f.user1, lot.ID, booking.Immediate{}, 0)
	require.NoError(t, err)
	_, err = f.ctrl.Release(ctx, b.ID, f.user2)
	assert.ErrorIs(t, err, booking.ErrUnauthorized)
	assert.Equal(t, model.SpotOccupied, f.spots(t, lot.ID)[0].Status)
}

func TestReleaseKeepsSpotOccupiedByAnotherActiveBooking(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lot := f.lot(t, 1, "10")
	spot := f.spots(t, lot.ID)[0]

	r, err := f.ctrl.Create(ctx, f.user2, lot.ID, window(f.at(20, 0), f.at(21, 0)), 0)
	require.NoError(t, err)
	_, err = f.ctrl.Create(ctx, f.user1, lot.ID, booking.Immediate{}, spot.ID)
	require.NoError(t, err)

	_, err = f.ctrl.Release(ctx, r.ID, f.user2)
	require.NoError(t, err)
	assert.Equal(t, model.SpotOccupied, f.spots(t, lot.ID)[0].Status)
}

func TestCreateErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.ctrl.Create(ctx, f.user1, 42, booking.Immediate{}, 0)
	assert.ErrorIs(t, err, booking.ErrLotNotFound)

	_, err = f.ctrl.Create(ctx, f.user1, 42, nil, 0)
	assert.ErrorIs(t, err, booking.ErrValidation)

	lot := f.lot(t, 1, "10")
	_, err = f.ctrl.Create(ctx, f.user1, lot.ID, window(f.at(7, 0), f.at(9, 0)), 0)
	assert.ErrorIs(t, err, booking.ErrValidation)

	_, err = f.ctrl.Create(ctx, f.user1, lot.ID, booking.Immediate{}, 12345)
	assert.ErrorIs(t, err, booking.ErrSpotUnavailable)

	_, err = f.ctrl.Create(ctx, f.user1, lot.ID, booking.Immediate{}, 0)
	require.NoError(t, err)
	_, err = f.ctrl.Create(ctx, f.user2, lot.ID, booking.Immediate{}, 0)
	assert.ErrorIs(t, err, booking.ErrNoSpotsAvailable)
}

func TestCollaboratorsRunOncePerCommit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lot := f.lot(t, 1, "10")

	b, err := f.ctrl.Create(ctx, f.user1, lot.ID, booking.Immediate{}, 0)
	require.NoError(t, err, "a failing notifier must not fail the booking")
	assert.Equal(t, []uint64{lot.ID}, f.inv.calls())
	assert.Equal(t, 1, f.notifier.calls)

	_, err = f.ctrl.Create(ctx, f.user2, lot.ID, booking.Immediate{}, 0)
	require.Error(t, err)
	assert.Len(t, f.inv.calls(), 1, "rejected requests do not invalidate")

	_, err = f.ctrl.Release(ctx, b.ID, f.user1)
	require.NoError(t, err)
	assert.Equal(t, []uint64{lot.ID, lot.ID}, f.inv.calls())
	assert.Equal(t, 1, f.notifier.calls)
}

func TestAvailabilityAndList(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lot := f.lot(t, 3, "10")
	spots := f.spots(t, lot.ID)

	_, err := f.ctrl.Create(ctx, f.user1, lot.ID, window(f.at(10, 0), f.at(12, 0)), spots[1].ID)
	require.NoError(t, err)
	_, err = f.ctrl.Create(ctx, f.user2, lot.ID, booking.Immediate{}, spots[2].ID)
	require.NoError(t, err)

	free, err := f.ctrl.Availability(ctx, lot.ID, booking.Window{Start: f.at(11, 0), End: f.at(11, 30)})
	require.NoError(t, err)
	require.Len(t, free, 1)
	assert.Equal(t, spots[0].ID, free[0].ID)

	_, err = f.ctrl.Availability(ctx, lot.ID, booking.Window{Start: f.at(11, 0), End: f.at(11, 0)})
	assert.ErrorIs(t, err, booking.ErrValidation)

	mine, err := f.ctrl.List(ctx, repository.BookingFilter{UserID: f.user1})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, lot.Name, mine[0].LotName)
	assert.Equal(t, 2, mine[0].SpotNumber)

	reservedOnly, err := f.ctrl.List(ctx, repository.BookingFilter{LotID: lot.ID, Status: model.StatusReserved})
	require.NoError(t, err)
	assert.Len(t, reservedOnly, 1)

	_, err = f.ctrl.Get(ctx, mine[0].ID, f.user2, false)
	assert.ErrorIs(t, err, booking.ErrUnauthorized)
	d, err := f.ctrl.Get(ctx, mine[0].ID, f.user2, true)
	require.NoError(t, err)
	assert.True(t, d.ReservedStart.Valid)
	assert.True(t, d.ReservedStart.Time.Equal(f.at(10, 0)))
}
