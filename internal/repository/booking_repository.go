package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/shopspring/decimal"

	"github.com/iliyamo/parking-reservation/internal/database"
	"github.com/iliyamo/parking-reservation/internal/model"
)

// ErrBookingNotFound is returned when a booking lookup fails.
var ErrBookingNotFound = errors.New("booking not found")

const bookingColumns = "b.id, b.user_id, b.spot_id, b.booking_type, b.status, b.start_time, b.end_time, " +
	"b.reserved_start, b.reserved_end, b.total_cost, b.created_at, b.updated_at"

// liveStatuses are the statuses that hold a spot for conflict purposes.
var liveStatuses = []string{string(model.StatusActive), string(model.StatusReserved)}

// BookingRepo is the booking ledger.  Writes happen inside transactions
// opened by the booking core; reads may run on the pool.
type BookingRepo struct {
	db      *sql.DB
	dialect database.Dialect
}

// NewBookingRepo constructs a BookingRepo with the given DB handle.
func NewBookingRepo(db *sql.DB, d database.Dialect) *BookingRepo {
	return &BookingRepo{db: db, dialect: d}
}

// BookingFilter narrows List.  Zero values match everything.
type BookingFilter struct {
	UserID uint64
	LotID  uint64
	Status model.BookingStatus
	Type   model.BookingType
	Limit  uint64
	Offset uint64
}

func scanBooking(s rowScanner, b *model.Booking, extra ...any) error {
	dest := []any{&b.ID, &b.UserID, &b.SpotID, &b.Type, &b.Status, &b.StartTime, &b.EndTime,
		&b.ReservedStart, &b.ReservedEnd, &b.TotalCost, &b.CreatedAt, &b.UpdatedAt}
	return s.Scan(append(dest, extra...)...)
}

// InsertTx persists b inside tx and sets its ID.  CreatedAt is used for
// both timestamps.
func (r *BookingRepo) InsertTx(ctx context.Context, tx *sql.Tx, b *model.Booking) error {
	q, args, err := builder().Insert("bookings").
		Columns("user_id", "spot_id", "booking_type", "status", "start_time", "end_time",
			"reserved_start", "reserved_end", "total_cost", "created_at", "updated_at").
		Values(b.UserID, b.SpotID, string(b.Type), string(b.Status), b.StartTime, b.EndTime,
			b.ReservedStart, b.ReservedEnd, b.TotalCost, b.CreatedAt, b.CreatedAt).
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
	b.ID = uint64(id)
	b.UpdatedAt = b.CreatedAt
	return nil
}

// GetByID fetches a booking.  It returns ErrBookingNotFound when absent.
func (r *BookingRepo) GetByID(ctx context.Context, id uint64) (*model.Booking, error) {
	return r.get(ctx, r.db, id, false)
}

// GetByIDTx fetches a booking inside tx, optionally holding its row.
func (r *BookingRepo) GetByIDTx(ctx context.Context, tx *sql.Tx, id uint64, lock bool) (*model.Booking, error) {
	return r.get(ctx, tx, id, lock)
}

func (r *BookingRepo) get(ctx context.Context, q querier, id uint64, lock bool) (*model.Booking, error) {
	b := builder().Select(bookingColumns).From("bookings b").Where(sq.Eq{"b.id": id})
	query, args, err := lockRows(b, r.dialect, lock).ToSql()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBuildQuery, err)
	}
	var bk model.Booking
	if err := scanBooking(q.QueryRowContext(ctx, query, args...), &bk); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBookingNotFound
		}
		return nil, err
	}
	return &bk, nil
}

// CountActiveByUserTx counts the user's Active bookings inside tx.
func (r *BookingRepo) CountActiveByUserTx(ctx context.Context, tx *sql.Tx, userID uint64) (int, error) {
	return r.count(ctx, tx, sq.Eq{"user_id": userID, "status": string(model.StatusActive)})
}

// CountActiveBySpotTx counts Active bookings on a spot other than
// excludeID.
func (r *BookingRepo) CountActiveBySpotTx(ctx context.Context, tx *sql.Tx, spotID, excludeID uint64) (int, error) {
	return r.count(ctx, tx, sq.And{
		sq.Eq{"spot_id": spotID, "status": string(model.StatusActive)},
		sq.NotEq{"id": excludeID},
	})
}

func (r *BookingRepo) count(ctx context.Context, q querier, pred sq.Sqlizer) (int, error) {
	query, args, err := builder().Select("COUNT(*)").From("bookings").Where(pred).ToSql()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrBuildQuery, err)
	}
	var n int
	if err := q.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// ListLiveBySpotsTx returns the Active and Reserved bookings on the given
// spots inside tx.  A locking read always sees the latest committed rows,
// which a plain read under a repeatable-read snapshot may not.
func (r *BookingRepo) ListLiveBySpotsTx(ctx context.Context, tx *sql.Tx, spotIDs []uint64, lock bool) ([]model.Booking, error) {
	return r.listLive(ctx, tx, spotIDs, lock)
}

// ListLiveBySpots is ListLiveBySpotsTx on the pool, for read-only views.
func (r *BookingRepo) ListLiveBySpots(ctx context.Context, spotIDs []uint64) ([]model.Booking, error) {
	return r.listLive(ctx, r.db, spotIDs, false)
}

func (r *BookingRepo) listLive(ctx context.Context, q querier, spotIDs []uint64, lock bool) ([]model.Booking, error) {
	if len(spotIDs) == 0 {
		return []model.Booking{}, nil
	}
	b := builder().Select(bookingColumns).From("bookings b").
		Where(sq.Eq{"b.spot_id": spotIDs, "b.status": liveStatuses}).
		OrderBy("b.id")
	query, args, err := lockRows(b, r.dialect, lock).ToSql()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBuildQuery, err)
	}
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.Booking, 0)
	for rows.Next() {
		var bk model.Booking
		if err := scanBooking(rows, &bk); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrScanRow, err)
		}
		out = append(out, bk)
	}
	return out, rows.Err()
}

// CompleteTx moves a booking to Completed with its final end time and
// cost.  Only live bookings are touched; ErrConflict means the row was
// already terminal.
func (r *BookingRepo) CompleteTx(ctx context.Context, tx *sql.Tx, id uint64, end time.Time, cost decimal.Decimal) error {
	q, args, err := builder().Update("bookings").
		Set("status", string(model.StatusCompleted)).
		Set("end_time", end).
		Set("total_cost", cost).
		Set("updated_at", end).
		Where(sq.Eq{"id": id, "status": liveStatuses}).
		ToSql()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBuildQuery, err)
	}
	res, err := tx.ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrConflict
	}
	return nil
}

func (r *BookingRepo) detailQuery() sq.SelectBuilder {
	return builder().
		Select(bookingColumns, "s.lot_id", "l.name", "s.spot_number", "l.price_per_hour").
		From("bookings b").
		Join("parking_spots s ON s.id = b.spot_id").
		Join("parking_lots l ON l.id = s.lot_id")
}

func scanDetail(s rowScanner, d *model.BookingDetail) error {
	return scanBooking(s, &d.Booking, &d.LotID, &d.LotName, &d.SpotNumber, &d.PricePerHour)
}

// GetDetail fetches a booking joined with its spot and lot.
func (r *BookingRepo) GetDetail(ctx context.Context, id uint64) (*model.BookingDetail, error) {
	query, args, err := r.detailQuery().Where(sq.Eq{"b.id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBuildQuery, err)
	}
	var d model.BookingDetail
	if err := scanDetail(r.db.QueryRowContext(ctx, query, args...), &d); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBookingNotFound
		}
		return nil, err
	}
	return &d, nil
}

// List returns bookings matching f, newest first.
func (r *BookingRepo) List(ctx context.Context, f BookingFilter) ([]model.BookingDetail, error) {
	qb := r.detailQuery().OrderBy("b.start_time DESC", "b.id DESC")
	if f.UserID != 0 {
		qb = qb.Where(sq.Eq{"b.user_id": f.UserID})
	}
	if f.LotID != 0 {
		qb = qb.Where(sq.Eq{"s.lot_id": f.LotID})
	}
	if f.Status != "" {
		qb = qb.Where(sq.Eq{"b.status": string(f.Status)})
	}
	if f.Type != "" {
		qb = qb.Where(sq.Eq{"b.booking_type": string(f.Type)})
	}
	if f.Limit > 0 {
		qb = qb.Limit(f.Limit).Offset(f.Offset)
	}
	query, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBuildQuery, err)
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.BookingDetail, 0)
	for rows.Next() {
		var d model.BookingDetail
		if err := scanDetail(rows, &d); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrScanRow, err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
