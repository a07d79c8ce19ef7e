package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/shopspring/decimal"

	"github.com/iliyamo/parking-reservation/internal/model"
)

// AnalyticsRepo runs read-only aggregate queries for dashboards and the
// periodic reports.
type AnalyticsRepo struct{ db *sql.DB }

func NewAnalyticsRepo(db *sql.DB) *AnalyticsRepo { return &AnalyticsRepo{db: db} }

// Overview is the system-wide snapshot shown to administrators.
type Overview struct {
	TotalLots     int             `json:"total_lots"`
	TotalSpots    int             `json:"total_spots"`
	OccupiedSpots int             `json:"occupied_spots"`
	OccupancyRate float64         `json:"occupancy_rate"`
	ByStatus      map[string]int  `json:"bookings_by_status"`
	ByType        map[string]int  `json:"bookings_by_type"`
	Revenue       decimal.Decimal `json:"revenue"`
	Lots          []LotStats      `json:"lots"`
}

// LotStats breaks the overview down per lot.
type LotStats struct {
	LotID    uint64          `json:"lot_id"`
	Name     string          `json:"name"`
	Capacity int             `json:"capacity"`
	Occupied int             `json:"occupied"`
	Bookings int             `json:"bookings"`
	Revenue  decimal.Decimal `json:"revenue"`
}

// UserSummary describes one user's history.
type UserSummary struct {
	TotalBookings     int             `json:"total_bookings"`
	CompletedBookings int             `json:"completed_bookings"`
	TotalSpent        decimal.Decimal `json:"total_spent"`
	MostUsedLot       string          `json:"most_used_lot,omitempty"`
}

// PeriodSummary aggregates activity in a half-open time range.  Bookings
// are counted by start time; revenue by the end time of completed ones.
type PeriodSummary struct {
	From           time.Time       `json:"from"`
	To             time.Time       `json:"to"`
	Bookings       int             `json:"bookings"`
	ByType         map[string]int  `json:"bookings_by_type"`
	Revenue        decimal.Decimal `json:"revenue"`
	MostPopularLot string          `json:"most_popular_lot,omitempty"`
}

func (r *AnalyticsRepo) scalar(ctx context.Context, b sq.SelectBuilder, dest any) error {
	q, args, err := b.ToSql()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBuildQuery, err)
	}
	return r.db.QueryRowContext(ctx, q, args...).Scan(dest)
}

func (r *AnalyticsRepo) grouped(ctx context.Context, b sq.SelectBuilder) (map[string]int, error) {
	q, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBuildQuery, err)
	}
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]int)
	for rows.Next() {
		var (
			k string
			n int
		)
		if err := rows.Scan(&k, &n); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrScanRow, err)
		}
		out[k] = n
	}
	return out, rows.Err()
}

// mostUsedLot returns the name of the lot with the most bookings matching
// pred, or "" when there are none.  Ties go to the lower lot id.
func (r *AnalyticsRepo) mostUsedLot(ctx context.Context, pred sq.Sqlizer) (string, error) {
	q, args, err := builder().Select("l.name").
		From("bookings b").
		Join("parking_spots s ON s.id = b.spot_id").
		Join("parking_lots l ON l.id = s.lot_id").
		Where(pred).
		GroupBy("l.id", "l.name").
		OrderBy("COUNT(*) DESC", "l.id").
		Limit(1).
		ToSql()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBuildQuery, err)
	}
	var name string
	if err := r.db.QueryRowContext(ctx, q, args...).Scan(&name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return name, nil
}

func revenueExpr() string {
	return "COALESCE(SUM(total_cost), 0)"
}

// Overview computes the administrator dashboard.
func (r *AnalyticsRepo) Overview(ctx context.Context) (*Overview, error) {
	ov := &Overview{}
	if err := r.scalar(ctx, builder().Select("COUNT(*)").From("parking_lots"), &ov.TotalLots); err != nil {
		return nil, err
	}
	if err := r.scalar(ctx, builder().Select("COUNT(*)").From("parking_spots"), &ov.TotalSpots); err != nil {
		return nil, err
	}
	if err := r.scalar(ctx, builder().Select("COUNT(*)").From("parking_spots").
		Where(sq.Eq{"status": string(model.SpotOccupied)}), &ov.OccupiedSpots); err != nil {
		return nil, err
	}
	if ov.TotalSpots > 0 {
		ov.OccupancyRate = float64(ov.OccupiedSpots) / float64(ov.TotalSpots)
	}

	var err error
	if ov.ByStatus, err = r.grouped(ctx, builder().Select("status", "COUNT(*)").From("bookings").GroupBy("status")); err != nil {
		return nil, err
	}
	if ov.ByType, err = r.grouped(ctx, builder().Select("booking_type", "COUNT(*)").From("bookings").GroupBy("booking_type")); err != nil {
		return nil, err
	}
	if err := r.scalar(ctx, builder().Select(revenueExpr()).From("bookings").
		Where(sq.Eq{"status": string(model.StatusCompleted)}), &ov.Revenue); err != nil {
		return nil, err
	}
	ov.Revenue = ov.Revenue.Round(2)

	q, args, err := builder().Select(
		"l.id", "l.name", "l.capacity",
		"(SELECT COUNT(*) FROM parking_spots s WHERE s.lot_id = l.id AND s.status = 'Occupied')",
		"(SELECT COUNT(*) FROM bookings b JOIN parking_spots s ON s.id = b.spot_id WHERE s.lot_id = l.id)",
		"(SELECT COALESCE(SUM(b.total_cost), 0) FROM bookings b JOIN parking_spots s ON s.id = b.spot_id "+
			"WHERE s.lot_id = l.id AND b.status = 'Completed')",
	).From("parking_lots l").OrderBy("l.id").ToSql()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBuildQuery, err)
	}
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	ov.Lots = make([]LotStats, 0)
	for rows.Next() {
		var ls LotStats
		if err := rows.Scan(&ls.LotID, &ls.Name, &ls.Capacity, &ls.Occupied, &ls.Bookings, &ls.Revenue); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrScanRow, err)
		}
		ls.Revenue = ls.Revenue.Round(2)
		ov.Lots = append(ov.Lots, ls)
	}
	return ov, rows.Err()
}

// UserSummary computes the history of one user.
func (r *AnalyticsRepo) UserSummary(ctx context.Context, userID uint64) (*UserSummary, error) {
	s := &UserSummary{}
	if err := r.scalar(ctx, builder().Select("COUNT(*)").From("bookings").
		Where(sq.Eq{"user_id": userID}), &s.TotalBookings); err != nil {
		return nil, err
	}
	if err := r.scalar(ctx, builder().Select("COUNT(*)").From("bookings").
		Where(sq.Eq{"user_id": userID, "status": string(model.StatusCompleted)}), &s.CompletedBookings); err != nil {
		return nil, err
	}
	if err := r.scalar(ctx, builder().Select(revenueExpr()).From("bookings").
		Where(sq.Eq{"user_id": userID, "status": string(model.StatusCompleted)}), &s.TotalSpent); err != nil {
		return nil, err
	}
	s.TotalSpent = s.TotalSpent.Round(2)
	lot, err := r.mostUsedLot(ctx, sq.Eq{"b.user_id": userID})
	if err != nil {
		return nil, err
	}
	s.MostUsedLot = lot
	return s, nil
}

// Period aggregates the whole system over [from, to).
func (r *AnalyticsRepo) Period(ctx context.Context, from, to time.Time) (*PeriodSummary, error) {
	return r.period(ctx, 0, from, to)
}

// UserPeriod aggregates one user's activity over [from, to).
func (r *AnalyticsRepo) UserPeriod(ctx context.Context, userID uint64, from, to time.Time) (*PeriodSummary, error) {
	return r.period(ctx, userID, from, to)
}

func (r *AnalyticsRepo) period(ctx context.Context, userID uint64, from, to time.Time) (*PeriodSummary, error) {
	from, to = from.UTC(), to.UTC()
	started := sq.And{sq.GtOrEq{"start_time": from}, sq.Lt{"start_time": to}}
	ended := sq.And{
		sq.Eq{"status": string(model.StatusCompleted)},
		sq.GtOrEq{"end_time": from},
		sq.Lt{"end_time": to},
	}
	lotPred := sq.And{sq.GtOrEq{"b.start_time": from}, sq.Lt{"b.start_time": to}}
	if userID != 0 {
		started = append(started, sq.Eq{"user_id": userID})
		ended = append(ended, sq.Eq{"user_id": userID})
		lotPred = append(lotPred, sq.Eq{"b.user_id": userID})
	}

	p := &PeriodSummary{From: from, To: to}
	if err := r.scalar(ctx, builder().Select("COUNT(*)").From("bookings").Where(started), &p.Bookings); err != nil {
		return nil, err
	}
	var err error
	if p.ByType, err = r.grouped(ctx, builder().Select("booking_type", "COUNT(*)").From("bookings").
		Where(started).GroupBy("booking_type")); err != nil {
		return nil, err
	}
	if err := r.scalar(ctx, builder().Select(revenueExpr()).From("bookings").Where(ended), &p.Revenue); err != nil {
		return nil, err
	}
	p.Revenue = p.Revenue.Round(2)
	if p.MostPopularLot, err = r.mostUsedLot(ctx, lotPred); err != nil {
		return nil, err
	}
	return p, nil
}

// InactiveUsers returns active USER accounts with no booking started at
// or after since.
func (r *AnalyticsRepo) InactiveUsers(ctx context.Context, since time.Time) ([]model.User, error) {
	recent := builder().Select("1").From("bookings b").
		Where("b.user_id = u.id").
		Where(sq.GtOrEq{"b.start_time": since.UTC()})
	sub, subArgs, err := recent.ToSql()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBuildQuery, err)
	}
	return r.users(ctx, builder().Select(prefixed("u", userColumns)).From("users u").
		Where(sq.Eq{"u.role": model.RoleUser, "u.is_active": true}).
		Where("NOT EXISTS ("+sub+")", subArgs...).
		OrderBy("u.id"))
}

// UsersActiveIn returns active USER accounts with a booking started in
// [from, to).
func (r *AnalyticsRepo) UsersActiveIn(ctx context.Context, from, to time.Time) ([]model.User, error) {
	sub, subArgs, err := builder().Select("1").From("bookings b").
		Where("b.user_id = u.id").
		Where(sq.GtOrEq{"b.start_time": from.UTC()}).
		Where(sq.Lt{"b.start_time": to.UTC()}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBuildQuery, err)
	}
	return r.users(ctx, builder().Select(prefixed("u", userColumns)).From("users u").
		Where(sq.Eq{"u.role": model.RoleUser, "u.is_active": true}).
		Where("EXISTS ("+sub+")", subArgs...).
		OrderBy("u.id"))
}

func (r *AnalyticsRepo) users(ctx context.Context, b sq.SelectBuilder) ([]model.User, error) {
	q, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBuildQuery, err)
	}
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.User, 0)
	for rows.Next() {
		var u model.User
		if err := scanUser(rows, &u); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrScanRow, err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// prefixed qualifies a comma separated column list with alias.
func prefixed(alias, cols string) string {
	parts := strings.Split(cols, ", ")
	for i, c := range parts {
		parts[i] = alias + "." + c
	}
	return strings.Join(parts, ", ")
}
