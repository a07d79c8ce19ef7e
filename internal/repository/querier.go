package repository

import (
	"context"
	"database/sql"

	sq "github.com/Masterminds/squirrel"

	"github.com/iliyamo/parking-reservation/internal/database"
)

// querier is satisfied by both *sql.DB and *sql.Tx so read helpers can
// run inside or outside a transaction.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// rowScanner abstracts *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// builder returns a statement builder using '?' placeholders, which both
// supported dialects understand.
func builder() sq.StatementBuilderType {
	return sq.StatementBuilder.PlaceholderFormat(sq.Question)
}

// lockRows appends FOR UPDATE when lock is requested and the dialect can
// honour it.
func lockRows(b sq.SelectBuilder, d database.Dialect, lock bool) sq.SelectBuilder {
	if lock && d.SupportsForUpdate() {
		return b.Suffix("FOR UPDATE")
	}
	return b
}
