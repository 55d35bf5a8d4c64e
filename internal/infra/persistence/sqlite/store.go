// Package sqlite provides the embedded SQLite backend (modernc.org/sqlite, no
// cgo). It is the default storage driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"crmcore/internal/infra/persistence/sqlstore"
)

const defaultPath = "crm.db"

var schema = []string{
	`CREATE TABLE IF NOT EXISTS customers (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT NOT NULL UNIQUE,
		phone TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS products (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		price TEXT NOT NULL CHECK (CAST(price AS REAL) > 0),
		stock INTEGER NOT NULL DEFAULT 0 CHECK (stock >= 0),
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS products_stock_idx ON products (stock)`,
	`CREATE TABLE IF NOT EXISTS orders (
		id TEXT PRIMARY KEY,
		customer_id TEXT NOT NULL REFERENCES customers (id),
		total_amount TEXT NOT NULL,
		order_date TIMESTAMP NOT NULL,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS order_products (
		order_id TEXT NOT NULL REFERENCES orders (id),
		product_id TEXT NOT NULL REFERENCES products (id),
		position INTEGER NOT NULL,
		PRIMARY KEY (order_id, product_id)
	)`,
}

// Dialect describes SQLite for the shared SQL store.
var Dialect = sqlstore.Dialect{
	Name:              "sqlite",
	Schema:            schema,
	IsUniqueViolation: isUniqueViolation,
	IsCheckViolation:  isCheckViolation,
}

// Store is the SQLite-backed persistent store.
type Store struct {
	*sqlstore.Store
	path string
}

// NewStore opens (creating if needed) the database file at path and applies
// the schema. An empty path falls back to ./crm.db.
func NewStore(path string) (*Store, error) {
	if path == "" {
		path = defaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer at a time; savepoints must stay on the transaction's connection.
	db.SetMaxOpenConns(1)
	s := &Store{Store: sqlstore.New(db, Dialect), path: path}
	if err := s.Migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }

func dsn(path string) string {
	return "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

func code(err error) (int, bool) {
	var serr *sqlite.Error
	if errors.As(err, &serr) {
		return serr.Code(), true
	}
	return 0, false
}

func isUniqueViolation(err error) bool {
	c, ok := code(err)
	if !ok {
		return false
	}
	switch c {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	case sqlite3.SQLITE_CONSTRAINT:
		return strings.Contains(err.Error(), "UNIQUE")
	}
	return false
}

func isCheckViolation(err error) bool {
	c, ok := code(err)
	if !ok {
		return false
	}
	switch c {
	case sqlite3.SQLITE_CONSTRAINT_CHECK:
		return true
	case sqlite3.SQLITE_CONSTRAINT:
		return strings.Contains(err.Error(), "CHECK")
	}
	return false
}
