// Package testutil builds throwaway stores for package tests.
package testutil

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iliyamo/parking-reservation/internal/database"
)

// NewDB returns a migrated in-memory SQLite database closed at test end.
func NewDB(t testing.TB) *sql.DB {
	t.Helper()
	db, err := database.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.Migrate(context.Background(), db, database.SQLite))
	return db
}

// InsertUser adds an account directly, bypassing password hashing.
func InsertUser(t testing.TB, db *sql.DB, email, role string) uint64 {
	t.Helper()
	res, err := db.Exec("INSERT INTO users (email, username, password_hash, role) VALUES (?,?,?,?)",
		email, email, "x", role)
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	return uint64(id)
}
