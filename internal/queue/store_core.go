package queue

import (
	"context"
	"database/sql"
	"fmt"

	"scriptreel/internal/config"
	"scriptreel/internal/sqliteutil"
)

// Store manages run persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

func (s *Store) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return sqliteutil.Exec(ctx, s.db, query, args...)
}

// Open initializes or connects to the run database under the work directory.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(context.Background(), cfg.StorePath())
}

// OpenPath opens the database at path.
func OpenPath(ctx context.Context, path string) (*Store, error) {
	db, err := sqliteutil.Open(path)
	if err != nil {
		return nil, err
	}
	store := &Store{db: db, path: path}
	if err := store.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database file location.
func (s *Store) Path() string { return s.path }

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
