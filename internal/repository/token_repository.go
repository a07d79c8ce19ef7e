package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
)

// ErrTokenInvalid covers unknown, revoked and expired refresh tokens.
var ErrTokenInvalid = errors.New("refresh token invalid")

// TokenRepo persists/validates refresh tokens (single 'token_hash' column).
type TokenRepo struct{ DB *sql.DB }

func NewTokenRepo(db *sql.DB) *TokenRepo { return &TokenRepo{DB: db} }

// StoreRefresh inserts a refresh token hash row.
func (r *TokenRepo) StoreRefresh(ctx context.Context, userID uint64, tokenHash string, exp time.Time) error {
	q, args, err := builder().Insert("refresh_tokens").
		Columns("user_id", "token_hash", "expires_at").
		Values(userID, tokenHash, exp.UTC()).
		ToSql()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBuildQuery, err)
	}
	_, err = r.DB.ExecContext(ctx, q, args...)
	return err
}

// ValidateRefresh returns userID if a non-revoked token exists that has
// not expired at now.
func (r *TokenRepo) ValidateRefresh(ctx context.Context, tokenHash string, now time.Time) (uint64, error) {
	var (
		userID    uint64
		expiresAt time.Time
		revokedAt sql.NullTime
	)
	q, args, err := builder().Select("user_id", "expires_at", "revoked_at").
		From("refresh_tokens").Where(sq.Eq{"token_hash": tokenHash}).Limit(1).ToSql()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrBuildQuery, err)
	}
	if err := r.DB.QueryRowContext(ctx, q, args...).Scan(&userID, &expiresAt, &revokedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrTokenInvalid
		}
		return 0, err
	}
	if revokedAt.Valid || now.After(expiresAt) {
		return 0, ErrTokenInvalid
	}
	return userID, nil
}

// RevokeByHash marks a token as revoked.
func (r *TokenRepo) RevokeByHash(ctx context.Context, tokenHash string, now time.Time) error {
	return r.revoke(ctx, sq.Eq{"token_hash": tokenHash, "revoked_at": nil}, now)
}

// RevokeAllForUser revokes all user's active tokens.
func (r *TokenRepo) RevokeAllForUser(ctx context.Context, userID uint64, now time.Time) error {
	return r.revoke(ctx, sq.Eq{"user_id": userID, "revoked_at": nil}, now)
}

func (r *TokenRepo) revoke(ctx context.Context, pred sq.Eq, now time.Time) error {
	q, args, err := builder().Update("refresh_tokens").
		Set("revoked_at", now.UTC()).
		Where(pred).
		ToSql()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBuildQuery, err)
	}
	_, err = r.DB.ExecContext(ctx, q, args...)
	return err
}
