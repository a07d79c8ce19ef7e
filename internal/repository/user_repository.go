package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/iliyamo/parking-reservation/internal/database"
	"github.com/iliyamo/parking-reservation/internal/model"
	"github.com/iliyamo/parking-reservation/internal/utils"
)

const userColumns = "id, email, username, password_hash, role, is_active, created_at, updated_at"

type UserRepo struct {
	DB      *sql.DB
	dialect database.Dialect
}

func NewUserRepo(db *sql.DB, d database.Dialect) *UserRepo { return &UserRepo{DB: db, dialect: d} }

var (
	ErrEmailExists  = errors.New("email already exists")
	ErrUserNotFound = errors.New("user not found")
)

func scanUser(s rowScanner, u *model.User) error {
	return s.Scan(&u.ID, &u.Email, &u.Username, &u.PasswordHash, &u.Role, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
}

// isDuplicate recognises unique-key violations from both drivers.
func isDuplicate(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "1062") || strings.Contains(msg, "unique constraint")
}

// Create inserts user and returns its ID.  An empty username defaults to
// the local part of the email.
func (r *UserRepo) Create(ctx context.Context, email, username, password, role string, cost int) (uint64, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	username = strings.TrimSpace(username)
	if username == "" {
		username, _, _ = strings.Cut(email, "@")
	}
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return 0, err
	}
	q, args, err := builder().Insert("users").
		Columns("email", "username", "password_hash", "role").
		Values(email, username, hash, role).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrBuildQuery, err)
	}
	res, err := r.DB.ExecContext(ctx, q, args...)
	if err != nil {
		if isDuplicate(err) {
			return 0, ErrEmailExists
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return r.getOne(ctx, r.DB, sq.Eq{"email": email}, false)
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	return r.getOne(ctx, r.DB, sq.Eq{"id": id}, false)
}

// LockTx reads the user row inside tx and holds it until the transaction
// ends, serializing per-user rules such as the single Active booking.
func (r *UserRepo) LockTx(ctx context.Context, tx *sql.Tx, id uint64) (model.User, error) {
	return r.getOne(ctx, tx, sq.Eq{"id": id}, true)
}

func (r *UserRepo) getOne(ctx context.Context, q querier, pred sq.Eq, lock bool) (model.User, error) {
	b := builder().Select(userColumns).From("users").Where(pred).Limit(1)
	query, args, err := lockRows(b, r.dialect, lock).ToSql()
	var u model.User
	if err != nil {
		return u, fmt.Errorf("%w: %v", ErrBuildQuery, err)
	}
	if err := scanUser(q.QueryRowContext(ctx, query, args...), &u); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return u, ErrUserNotFound
		}
		return u, err
	}
	return u, nil
}

// ListActiveByRole returns active accounts holding role, ordered by id.
func (r *UserRepo) ListActiveByRole(ctx context.Context, role string) ([]model.User, error) {
	query, args, err := builder().Select(userColumns).From("users").
		Where(sq.Eq{"role": role, "is_active": true}).
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBuildQuery, err)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]model.User, 0)
	for rows.Next() {
		var u model.User
		if err := scanUser(rows, &u); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrScanRow, err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// EnsureAdmin creates an ADMIN account for email unless one exists.  It
// reports whether a row was inserted.
func (r *UserRepo) EnsureAdmin(ctx context.Context, email, password string, cost int) (bool, error) {
	if _, err := r.GetByEmail(ctx, email); err == nil {
		return false, nil
	} else if !errors.Is(err, ErrUserNotFound) {
		return false, err
	}
	if _, err := r.Create(ctx, email, "admin", password, model.RoleAdmin, cost); err != nil {
		if errors.Is(err, ErrEmailExists) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
