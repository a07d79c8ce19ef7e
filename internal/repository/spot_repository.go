package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/iliyamo/parking-reservation/internal/database"
	"github.com/iliyamo/parking-reservation/internal/model"
)

// ErrSpotNotFound is returned when a spot lookup fails.
var ErrSpotNotFound = errors.New("spot not found")

// SpotRepo reads and mutates parking spots.  Spots are created and
// removed only through LotRepo so capacity stays in step.
type SpotRepo struct {
	db      *sql.DB
	dialect database.Dialect
}

// NewSpotRepo constructs a SpotRepo with the given DB handle.
func NewSpotRepo(db *sql.DB, d database.Dialect) *SpotRepo {
	return &SpotRepo{db: db, dialect: d}
}

// SpotWithOccupant pairs a spot with the Active booking holding it, if any.
type SpotWithOccupant struct {
	model.ParkingSpot
	Occupant *Occupant `json:"occupant"`
}

// Occupant is the short form of the booking currently holding a spot.
type Occupant struct {
	BookingID uint64    `json:"booking_id"`
	UserID    uint64    `json:"user_id"`
	Email     string    `json:"email"`
	StartTime time.Time `json:"start_time"`
}

func scanSpot(s rowScanner, sp *model.ParkingSpot) error {
	return s.Scan(&sp.ID, &sp.LotID, &sp.SpotNumber, &sp.Status)
}

// ListByLot returns the spots of a lot ordered by spot number.
func (r *SpotRepo) ListByLot(ctx context.Context, lotID uint64) ([]model.ParkingSpot, error) {
	return listSpots(ctx, r.db, r.dialect, lotID, false)
}

// LockByLotTx returns the spots of a lot ordered by spot number and, on
// dialects that support it, holds their rows until tx ends.  Concurrent
// allocators targeting the same lot queue here.
func (r *SpotRepo) LockByLotTx(ctx context.Context, tx *sql.Tx, lotID uint64) ([]model.ParkingSpot, error) {
	return listSpots(ctx, tx, r.dialect, lotID, true)
}

// GetByIDTx fetches one spot inside tx, optionally locked.
func (r *SpotRepo) GetByIDTx(ctx context.Context, tx *sql.Tx, id uint64, lock bool) (*model.ParkingSpot, error) {
	b := builder().Select("id", "lot_id", "spot_number", "status").
		From("parking_spots").Where(sq.Eq{"id": id})
	query, args, err := lockRows(b, r.dialect, lock).ToSql()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBuildQuery, err)
	}
	var sp model.ParkingSpot
	if err := scanSpot(tx.QueryRowContext(ctx, query, args...), &sp); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSpotNotFound
		}
		return nil, err
	}
	return &sp, nil
}

// SetStatusTx updates the occupancy of a spot inside tx.
func (r *SpotRepo) SetStatusTx(ctx context.Context, tx *sql.Tx, spotID uint64, status model.SpotStatus) error {
	q, args, err := builder().Update("parking_spots").
		Set("status", string(status)).
		Where(sq.Eq{"id": spotID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBuildQuery, err)
	}
	res, err := tx.ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrSpotNotFound
	}
	return nil
}

// ListWithOccupant returns the spots of a lot with the Active booking
// and user holding each occupied one.
func (r *SpotRepo) ListWithOccupant(ctx context.Context, lotID uint64) ([]SpotWithOccupant, error) {
	query, args, err := builder().
		Select("s.id", "s.lot_id", "s.spot_number", "s.status", "b.id", "b.user_id", "u.email", "b.start_time").
		From("parking_spots s").
		LeftJoin("bookings b ON b.spot_id = s.id AND b.status = ?", string(model.StatusActive)).
		LeftJoin("users u ON u.id = b.user_id").
		Where(sq.Eq{"s.lot_id": lotID}).
		OrderBy("s.spot_number").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBuildQuery, err)
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]SpotWithOccupant, 0)
	for rows.Next() {
		var (
			s       SpotWithOccupant
			bid     sql.NullInt64
			uid     sql.NullInt64
			email   sql.NullString
			started sql.NullTime
		)
		if err := rows.Scan(&s.ID, &s.LotID, &s.SpotNumber, &s.Status, &bid, &uid, &email, &started); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrScanRow, err)
		}
		if bid.Valid {
			s.Occupant = &Occupant{
				BookingID: uint64(bid.Int64),
				UserID:    uint64(uid.Int64),
				Email:     email.String,
				StartTime: started.Time.UTC(),
			}
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func listSpots(ctx context.Context, q querier, d database.Dialect, lotID uint64, lock bool) ([]model.ParkingSpot, error) {
	b := builder().Select("id", "lot_id", "spot_number", "status").
		From("parking_spots").
		Where(sq.Eq{"lot_id": lotID}).
		OrderBy("spot_number")
	query, args, err := lockRows(b, d, lock).ToSql()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBuildQuery, err)
	}
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	spots := make([]model.ParkingSpot, 0)
	for rows.Next() {
		var sp model.ParkingSpot
		if err := scanSpot(rows, &sp); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrScanRow, err)
		}
		spots = append(spots, sp)
	}
	return spots, rows.Err()
}

// spotInsertBatch keeps each INSERT well under the placeholder limits of
// both drivers (65535 for MySQL, 32766 for SQLite) at three per row.
const spotInsertBatch = 1000

// insertSpotsTx creates Available spots numbered from..to inclusive.
func insertSpotsTx(ctx context.Context, tx *sql.Tx, lotID uint64, from, to int) error {
	for lo := from; lo <= to; lo += spotInsertBatch {
		hi := min(lo+spotInsertBatch-1, to)
		ins := builder().Insert("parking_spots").Columns("lot_id", "spot_number", "status")
		for n := lo; n <= hi; n++ {
			ins = ins.Values(lotID, n, string(model.SpotAvailable))
		}
		q, args, err := ins.ToSql()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrBuildQuery, err)
		}
		if _, err := tx.ExecContext(ctx, q, args...); err != nil {
			return err
		}
	}
	return nil
}
