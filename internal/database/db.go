package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"
)

// Dialect names the SQL flavour behind a *sql.DB.  Repositories use it to
// decide whether row locks can be requested.
type Dialect string

const (
	MySQL  Dialect = "mysql"
	SQLite Dialect = "sqlite"
)

// SupportsForUpdate reports whether SELECT ... FOR UPDATE is understood.
// SQLite serializes writers on its own and rejects the clause.
func (d Dialect) SupportsForUpdate() bool { return d == MySQL }

// Open connects to MySQL and verifies the connection.
func Open(user, pass, host, port, name string) (*sql.DB, error) {
	auth := user
	if pass != "" {
		auth = fmt.Sprintf("%s:%s", user, pass)
	}
	// parseTime=true -> DATETIME -> time.Time | loc=UTC keeps times consistent
	dsn := fmt.Sprintf("%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=true&loc=UTC",
		auth, host, port, name)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}

	// Pool settings
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := ping(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// OpenSQLite opens an embedded database at path (":memory:" is allowed).
// The pool is pinned to a single connection: an in-memory database lives
// only as long as its connection, and SQLite allows one writer anyway, so
// transactions queue on the pool instead of failing with SQLITE_BUSY.
// Times are written in a sortable layout so range predicates compare
// correctly as text.
func OpenSQLite(path string) (*sql.DB, error) {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	db, err := sql.Open("sqlite", path+sep+"_time_format=sqlite")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := ping(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Connect opens the store selected by driver.  Only mysql and sqlite are
// supported.
func Connect(driver, user, pass, host, port, name, path string) (*sql.DB, Dialect, error) {
	switch Dialect(driver) {
	case "", MySQL:
		db, err := Open(user, pass, host, port, name)
		return db, MySQL, err
	case SQLite:
		db, err := OpenSQLite(path)
		return db, SQLite, err
	}
	return nil, "", fmt.Errorf("unsupported DB_DRIVER %q", driver)
}

// ping verifies the connection with a timeout.
func ping(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return db.PingContext(ctx)
}
