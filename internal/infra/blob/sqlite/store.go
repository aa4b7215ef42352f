// Package sqlite stores blobs in an embedded SQLite database file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"cabincore/internal/blob/core"
	"cabincore/internal/infra/blob/sqlstore"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

// Store is a SQLite-backed blob store.
type Store struct {
	*sqlstore.Store
	path string
}

// New opens (creating if needed) the database at path. Writes go through a
// single connection so conditional updates never race inside SQLite.
func New(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		path = "cabincore.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	inner, err := sqlstore.New(ctx, db, sqlstore.Dialect{Driver: core.DriverSQLite, PayloadType: "BLOB"})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{Store: inner, path: path}, nil
}

// Path returns the database file location.
func (s *Store) Path() string { return s.path }
