package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenSQLiteAndMigrate(t *testing.T) {
	db, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	require.NoError(t, Migrate(ctx, db, SQLite))
	// running twice must be harmless
	require.NoError(t, Migrate(ctx, db, SQLite))

	for _, table := range []string{"users", "refresh_tokens", "parking_lots", "parking_spots", "bookings"} {
		var name string
		err := db.QueryRowContext(ctx, "SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		require.NoError(t, err, table)
		assert.Equal(t, table, name)
	}
}

func TestDialectForUpdate(t *testing.T) {
	assert.True(t, MySQL.SupportsForUpdate())
	assert.False(t, SQLite.SupportsForUpdate())
}

func TestConnectRejectsUnknownDriver(t *testing.T) {
	_, _, err := Connect("oracle", "", "", "", "", "", "")
	assert.Error(t, err)
}
