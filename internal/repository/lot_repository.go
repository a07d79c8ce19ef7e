package repository // repository holds data access logic for domain entities

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/iliyamo/parking-reservation/internal/database"
	"github.com/iliyamo/parking-reservation/internal/model"
)

// ErrLotNotFound is returned when a lot lookup fails.
var ErrLotNotFound = errors.New("lot not found")

const lotColumns = "l.id, l.name, l.address, l.capacity, l.price_per_hour, l.created_at, l.updated_at"

// LotRepo persists parking lots together with the spots they own.  Any
// operation that changes capacity touches both tables inside a single
// transaction so capacity always equals the number of spot rows.
type LotRepo struct {
	db      *sql.DB
	dialect database.Dialect
}

// NewLotRepo constructs a LotRepo with the given DB handle.
func NewLotRepo(db *sql.DB, d database.Dialect) *LotRepo {
	return &LotRepo{db: db, dialect: d}
}

// DB exposes the handle so callers can open transactions spanning
// several repositories.
func (r *LotRepo) DB() *sql.DB { return r.db }

func scanLot(s rowScanner, l *model.ParkingLot) error {
	return s.Scan(&l.ID, &l.Name, &l.Address, &l.Capacity, &l.PricePerHour, &l.CreatedAt, &l.UpdatedAt)
}

// Create inserts a lot and its spots numbered 1..Capacity.  After insert
// the lot is read back so timestamps are populated.
func (r *LotRepo) Create(ctx context.Context, lot *model.ParkingLot) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	q, args, err := builder().Insert("parking_lots").
		Columns("name", "address", "capacity", "price_per_hour").
		Values(lot.Name, lot.Address, lot.Capacity, lot.PricePerHour).
		ToSql()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBuildQuery, err)
	}
	res, err := tx.ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	if err := insertSpotsTx(ctx, tx, uint64(id), 1, lot.Capacity); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true

	created, err := r.GetByID(ctx, uint64(id))
	if err != nil {
		return err
	}
	*lot = *created
	return nil
}

// GetByID retrieves a lot.  It returns ErrLotNotFound when no row exists.
func (r *LotRepo) GetByID(ctx context.Context, id uint64) (*model.ParkingLot, error) {
	return r.get(ctx, r.db, id, false)
}

// GetByIDTx is GetByID inside tx.  With lock set the row is held until
// the transaction ends.
func (r *LotRepo) GetByIDTx(ctx context.Context, tx *sql.Tx, id uint64, lock bool) (*model.ParkingLot, error) {
	return r.get(ctx, tx, id, lock)
}

func (r *LotRepo) get(ctx context.Context, q querier, id uint64, lock bool) (*model.ParkingLot, error) {
	b := builder().Select(lotColumns).From("parking_lots l").Where(sq.Eq{"l.id": id})
	query, args, err := lockRows(b, r.dialect, lock).ToSql()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBuildQuery, err)
	}
	var l model.ParkingLot
	if err := scanLot(q.QueryRowContext(ctx, query, args...), &l); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrLotNotFound
		}
		return nil, err
	}
	return &l, nil
}

func (r *LotRepo) availabilityQuery() sq.SelectBuilder {
	return builder().
		Select(lotColumns,
			"COALESCE(SUM(CASE WHEN s.status = 'Available' THEN 1 ELSE 0 END), 0)",
			"COALESCE(SUM(CASE WHEN s.status = 'Occupied' THEN 1 ELSE 0 END), 0)").
		From("parking_lots l").
		LeftJoin("parking_spots s ON s.lot_id = l.id").
		GroupBy("l.id", "l.name", "l.address", "l.capacity", "l.price_per_hour", "l.created_at", "l.updated_at").
		OrderBy("l.id")
}

func scanAvailability(s rowScanner, a *model.LotAvailability) error {
	return s.Scan(&a.ID, &a.Name, &a.Address, &a.Capacity, &a.PricePerHour, &a.CreatedAt, &a.UpdatedAt,
		&a.Available, &a.Occupied)
}

// ListWithAvailability returns every lot with its available and occupied
// spot counts, ordered by id.
func (r *LotRepo) ListWithAvailability(ctx context.Context) ([]model.LotAvailability, error) {
	query, args, err := r.availabilityQuery().ToSql()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBuildQuery, err)
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.LotAvailability, 0)
	for rows.Next() {
		var a model.LotAvailability
		if err := scanAvailability(rows, &a); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrScanRow, err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// GetWithAvailability returns a single lot with spot counts.
func (r *LotRepo) GetWithAvailability(ctx context.Context, id uint64) (*model.LotAvailability, error) {
	query, args, err := r.availabilityQuery().Where(sq.Eq{"l.id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBuildQuery, err)
	}
	var a model.LotAvailability
	if err := scanAvailability(r.db.QueryRowContext(ctx, query, args...), &a); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrLotNotFound
		}
		return nil, err
	}
	return &a, nil
}

// Update changes name, address and price.  Capacity is handled by Resize.
func (r *LotRepo) Update(ctx context.Context, lot *model.ParkingLot) error {
	n, err := updateLot(ctx, r.db, lot)
	if err != nil {
		return err
	}
	if n == 0 {
		// MySQL reports zero rows when nothing changed.
		_, err := r.GetByID(ctx, lot.ID)
		return err
	}
	return nil
}

// Resize changes the number of spots a lot owns.  Growing appends spots
// numbered after the current highest; shrinking removes the
// highest-numbered spots and fails with ErrConflict when any of them is
// occupied or still carries an Active or Reserved booking.
func (r *LotRepo) Resize(ctx context.Context, lotID uint64, capacity int) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		lot, err := r.get(ctx, tx, lotID, true)
		if err != nil {
			return err
		}
		return r.resizeTx(ctx, tx, lot, capacity)
	})
}

// Apply saves the descriptive fields of lot and, when capacity is
// non-zero, resizes it in the same transaction.  A refused resize leaves
// the lot exactly as it was.
func (r *LotRepo) Apply(ctx context.Context, lot *model.ParkingLot, capacity int) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		current, err := r.get(ctx, tx, lot.ID, true)
		if err != nil {
			return err
		}
		if _, err := updateLot(ctx, tx, lot); err != nil {
			return err
		}
		if capacity == 0 {
			return nil
		}
		return r.resizeTx(ctx, tx, current, capacity)
	})
}

func (r *LotRepo) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

func updateLot(ctx context.Context, q querier, lot *model.ParkingLot) (int64, error) {
	query, args, err := builder().Update("parking_lots").
		Set("name", lot.Name).
		Set("address", lot.Address).
		Set("price_per_hour", lot.PricePerHour).
		Set("updated_at", sq.Expr("CURRENT_TIMESTAMP")).
		Where(sq.Eq{"id": lot.ID}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrBuildQuery, err)
	}
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// resizeTx expects lot to be locked by tx.
func (r *LotRepo) resizeTx(ctx context.Context, tx *sql.Tx, lot *model.ParkingLot, capacity int) error {
	if capacity < 1 {
		return fmt.Errorf("capacity must be at least 1")
	}
	spots, err := listSpots(ctx, tx, r.dialect, lot.ID, true)
	if err != nil {
		return err
	}
	current := len(spots)

	switch {
	case capacity > current:
		if err := insertSpotsTx(ctx, tx, lot.ID, current+1, capacity); err != nil {
			return err
		}
	case capacity < current:
		// spots come back ordered by spot_number, so the tail is removed
		removed := spots[capacity:]
		ids := make([]uint64, 0, len(removed))
		for _, s := range removed {
			if s.Status == model.SpotOccupied {
				return fmt.Errorf("%w: spot %d is occupied", ErrConflict, s.SpotNumber)
			}
			ids = append(ids, s.ID)
		}
		live, err := countLiveBookings(ctx, tx, ids)
		if err != nil {
			return err
		}
		if live > 0 {
			return fmt.Errorf("%w: removed spots still have %d live bookings", ErrConflict, live)
		}
		q, args, err := builder().Delete("parking_spots").Where(sq.Eq{"id": ids}).ToSql()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrBuildQuery, err)
		}
		if _, err := tx.ExecContext(ctx, q, args...); err != nil {
			return err
		}
	}

	if capacity == lot.Capacity {
		return nil
	}
	q, args, err := builder().Update("parking_lots").
		Set("capacity", capacity).
		Set("updated_at", sq.Expr("CURRENT_TIMESTAMP")).
		Where(sq.Eq{"id": lot.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBuildQuery, err)
	}
	_, err = tx.ExecContext(ctx, q, args...)
	return err
}

// Delete removes a lot and, through cascading keys, its spots and their
// booking history.  It fails with ErrConflict while any spot is occupied
// or carries a live booking.
func (r *LotRepo) Delete(ctx context.Context, lotID uint64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if _, err := r.get(ctx, tx, lotID, true); err != nil {
		return err
	}
	spots, err := listSpots(ctx, tx, r.dialect, lotID, true)
	if err != nil {
		return err
	}
	ids := make([]uint64, 0, len(spots))
	for _, s := range spots {
		if s.Status == model.SpotOccupied {
			return fmt.Errorf("%w: spot %d is occupied", ErrConflict, s.SpotNumber)
		}
		ids = append(ids, s.ID)
	}
	live, err := countLiveBookings(ctx, tx, ids)
	if err != nil {
		return err
	}
	if live > 0 {
		return fmt.Errorf("%w: lot still has %d live bookings", ErrConflict, live)
	}

	q, args, err := builder().Delete("parking_lots").Where(sq.Eq{"id": lotID}).ToSql()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBuildQuery, err)
	}
	if _, err := tx.ExecContext(ctx, q, args...); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// countLiveBookings counts Active or Reserved bookings on the given spots.
func countLiveBookings(ctx context.Context, q querier, spotIDs []uint64) (int, error) {
	if len(spotIDs) == 0 {
		return 0, nil
	}
	query, args, err := builder().Select("COUNT(*)").From("bookings").
		Where(sq.Eq{
			"spot_id": spotIDs,
			"status":  []string{string(model.StatusActive), string(model.StatusReserved)},
		}).ToSql()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrBuildQuery, err)
	}
	var n int
	if err := q.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
