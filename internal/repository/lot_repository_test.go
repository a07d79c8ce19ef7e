package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/guregu/null.v4"

	"github.com/iliyamo/parking-reservation/internal/database"
	"github.com/iliyamo/parking-reservation/internal/model"
	"github.com/iliyamo/parking-reservation/internal/testutil"
)

func newLot(t *testing.T, repo *LotRepo, capacity int) *model.ParkingLot {
	t.Helper()
	lot := &model.ParkingLot{
		Name:         "North",
		Address:      null.StringFrom("1 Main St"),
		Capacity:     capacity,
		PricePerHour: decimal.RequireFromString("4.5"),
	}
	require.NoError(t, repo.Create(context.Background(), lot))
	return lot
}

func insertBooking(t *testing.T, db *sql.DB, b *model.Booking) {
	t.Helper()
	repo := NewBookingRepo(db, database.SQLite)
	tx, err := db.Begin()
	require.NoError(t, err)
	require.NoError(t, repo.InsertTx(context.Background(), tx, b))
	require.NoError(t, tx.Commit())
}

func TestLotCreateBuildsSpots(t *testing.T) {
	db := testutil.NewDB(t)
	lots := NewLotRepo(db, database.SQLite)
	spots := NewSpotRepo(db, database.SQLite)
	ctx := context.Background()

	lot := newLot(t, lots, 3)
	assert.NotZero(t, lot.ID)
	assert.Equal(t, "1 Main St", lot.Address.String)
	assert.True(t, lot.PricePerHour.Equal(decimal.RequireFromString("4.50")))

	list, err := spots.ListByLot(ctx, lot.ID)
	require.NoError(t, err)
	require.Len(t, list, 3)
	for i, s := range list {
		assert.Equal(t, i+1, s.SpotNumber)
		assert.Equal(t, model.SpotAvailable, s.Status)
	}

	_, err = lots.GetByID(ctx, lot.ID+100)
	assert.ErrorIs(t, err, ErrLotNotFound)
}

func TestLotAvailabilityCounts(t *testing.T) {
	db := testutil.NewDB(t)
	lots := NewLotRepo(db, database.SQLite)
	spots := NewSpotRepo(db, database.SQLite)
	ctx := context.Background()

	a := newLot(t, lots, 3)
	b := newLot(t, lots, 1)
	list, err := spots.ListByLot(ctx, a.ID)
	require.NoError(t, err)

	tx, err := db.Begin()
	require.NoError(t, err)
	require.NoError(t, spots.SetStatusTx(ctx, tx, list[0].ID, model.SpotOccupied))
	require.NoError(t, tx.Commit())

	all, err := lots.ListWithAvailability(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, 2, all[0].Available)
	assert.Equal(t, 1, all[0].Occupied)
	assert.Equal(t, 1, all[1].Available)

	one, err := lots.GetWithAvailability(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, one.Occupied)
}

func TestLotUpdate(t *testing.T) {
	db := testutil.NewDB(t)
	lots := NewLotRepo(db, database.SQLite)
	ctx := context.Background()

	lot := newLot(t, lots, 1)
	lot.Name = "South"
	lot.Address = null.String{}
	lot.PricePerHour = decimal.RequireFromString("6")
	require.NoError(t, lots.Update(ctx, lot))

	got, err := lots.GetByID(ctx, lot.ID)
	require.NoError(t, err)
	assert.Equal(t, "South", got.Name)
	assert.False(t, got.Address.Valid)
	assert.True(t, got.PricePerHour.Equal(decimal.RequireFromString("6")))

	missing := *lot
	missing.ID = 999
	assert.ErrorIs(t, lots.Update(ctx, &missing), ErrLotNotFound)
}

func TestLotResize(t *testing.T) {
	db := testutil.NewDB(t)
	lots := NewLotRepo(db, database.SQLite)
	spots := NewSpotRepo(db, database.SQLite)
	ctx := context.Background()
	user := testutil.InsertUser(t, db, "u@example.com", model.RoleUser)

	lot := newLot(t, lots, 2)
	require.NoError(t, lots.Resize(ctx, lot.ID, 4))
	list, err := spots.ListByLot(ctx, lot.ID)
	require.NoError(t, err)
	require.Len(t, list, 4)
	assert.Equal(t, 4, list[3].SpotNumber)

	// a live reservation on spot 4 blocks shrinking below it
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	res := &model.Booking{
		UserID: user, SpotID: list[3].ID, Type: model.BookingReserved, Status: model.StatusReserved,
		StartTime: now, ReservedStart: null.TimeFrom(now), ReservedEnd: null.TimeFrom(now.Add(time.Hour)),
		CreatedAt: now,
	}
	insertBooking(t, db, res)
	assert.ErrorIs(t, lots.Resize(ctx, lot.ID, 3), ErrConflict)

	// occupied spot 3 blocks as well
	tx, err := db.Begin()
	require.NoError(t, err)
	require.NoError(t, spots.SetStatusTx(ctx, tx, list[2].ID, model.SpotOccupied))
	require.NoError(t, tx.Commit())
	assert.ErrorIs(t, lots.Resize(ctx, lot.ID, 2), ErrConflict)

	got, err := lots.GetByID(ctx, lot.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, got.Capacity, "failed resize leaves capacity unchanged")

	tx, err = db.Begin()
	require.NoError(t, err)
	require.NoError(t, spots.SetStatusTx(ctx, tx, list[2].ID, model.SpotAvailable))
	require.NoError(t, NewBookingRepo(db, database.SQLite).CompleteTx(ctx, tx, res.ID, now, decimal.RequireFromString("4.5")))
	require.NoError(t, tx.Commit())

	require.NoError(t, lots.Resize(ctx, lot.ID, 1))
	list, err = spots.ListByLot(ctx, lot.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)
	got, err = lots.GetByID(ctx, lot.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Capacity)

	assert.Error(t, lots.Resize(ctx, lot.ID, 0))
}

func TestLotApplyIsAllOrNothing(t *testing.T) {
	db := testutil.NewDB(t)
	lots := NewLotRepo(db, database.SQLite)
	spots := NewSpotRepo(db, database.SQLite)
	ctx := context.Background()

	lot := newLot(t, lots, 2)
	list, err := spots.ListByLot(ctx, lot.ID)
	require.NoError(t, err)
	tx, err := db.Begin()
	require.NoError(t, err)
	require.NoError(t, spots.SetStatusTx(ctx, tx, list[1].ID, model.SpotOccupied))
	require.NoError(t, tx.Commit())

	edit := *lot
	edit.Name = "Renamed"
	edit.PricePerHour = decimal.RequireFromString("9")
	assert.ErrorIs(t, lots.Apply(ctx, &edit, 1), ErrConflict)

	got, err := lots.GetByID(ctx, lot.ID)
	require.NoError(t, err)
	assert.Equal(t, "North", got.Name, "refused resize rolls back the rename")
	assert.True(t, got.PricePerHour.Equal(decimal.RequireFromString("4.5")))
	assert.Equal(t, 2, got.Capacity)

	require.NoError(t, lots.Apply(ctx, &edit, 3))
	got, err = lots.GetByID(ctx, lot.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Name)
	assert.Equal(t, 3, got.Capacity)

	require.NoError(t, lots.Apply(ctx, &edit, 0))
	missing := edit
	missing.ID = 999
	assert.ErrorIs(t, lots.Apply(ctx, &missing, 0), ErrLotNotFound)
}

func TestLotCreateManySpots(t *testing.T) {
	db := testutil.NewDB(t)
	lots := NewLotRepo(db, database.SQLite)
	spots := NewSpotRepo(db, database.SQLite)
	ctx := context.Background()

	// three placeholders per spot would exceed the SQLite limit in one statement
	lot := newLot(t, lots, 11500)
	list, err := spots.ListByLot(ctx, lot.ID)
	require.NoError(t, err)
	require.Len(t, list, 11500)
	assert.Equal(t, 1, list[0].SpotNumber)
	assert.Equal(t, 11500, list[len(list)-1].SpotNumber)

	require.NoError(t, lots.Resize(ctx, lot.ID, 12001))
	list, err = spots.ListByLot(ctx, lot.ID)
	require.NoError(t, err)
	assert.Len(t, list, 12001)
}

func TestLotDelete(t *testing.T) {
	db := testutil.NewDB(t)
	lots := NewLotRepo(db, database.SQLite)
	spots := NewSpotRepo(db, database.SQLite)
	ctx := context.Background()

	lot := newLot(t, lots, 2)
	list, err := spots.ListByLot(ctx, lot.ID)
	require.NoError(t, err)

	tx, err := db.Begin()
	require.NoError(t, err)
	require.NoError(t, spots.SetStatusTx(ctx, tx, list[1].ID, model.SpotOccupied))
	require.NoError(t, tx.Commit())
	assert.ErrorIs(t, lots.Delete(ctx, lot.ID), ErrConflict)

	tx, err = db.Begin()
	require.NoError(t, err)
	require.NoError(t, spots.SetStatusTx(ctx, tx, list[1].ID, model.SpotAvailable))
	require.NoError(t, tx.Commit())
	require.NoError(t, lots.Delete(ctx, lot.ID))

	_, err = lots.GetByID(ctx, lot.ID)
	assert.ErrorIs(t, err, ErrLotNotFound)
	left, err := spots.ListByLot(ctx, lot.ID)
	require.NoError(t, err)
	assert.Empty(t, left)

	assert.ErrorIs(t, lots.Delete(ctx, lot.ID), ErrLotNotFound)
}
