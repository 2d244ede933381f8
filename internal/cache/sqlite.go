package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"scriptreel/internal/sqliteutil"
)

const sqliteSchemaVersion = 1

const sqliteSchema = `
CREATE TABLE schema_version (version INTEGER NOT NULL);
CREATE TABLE cache_entries (
	fingerprint      TEXT PRIMARY KEY,
	remote_url       TEXT NOT NULL DEFAULT '',
	local_path       TEXT NOT NULL,
	duration_seconds REAL NOT NULL DEFAULT 0,
	created_at       TEXT NOT NULL
);
`

// SQLite is a Store persisted in a single SQLite table.
type SQLite struct {
	db   *sql.DB
	path string
}

// OpenSQLite opens (creating when needed) the cache database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	db, err := sqliteutil.Open(path)
	if err != nil {
		return nil, err
	}
	if err := sqliteutil.ApplySchema(ctx, db, sqliteSchema, sqliteSchemaVersion); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLite{db: db, path: path}, nil
}

// Path returns the database location.
func (s *SQLite) Path() string { return s.path }

func (s *SQLite) Get(ctx context.Context, fp string) (Entry, bool, error) {
	ctx = sqliteutil.EnsureContext(ctx)
	var (
		entry      Entry
		createdRaw string
		found      bool
	)
	err := sqliteutil.RetryOnBusy(ctx, func() error {
		row := s.db.QueryRowContext(ctx,
			`SELECT fingerprint, remote_url, local_path, duration_seconds, created_at
			 FROM cache_entries WHERE fingerprint = ?`, fp)
		scanErr := row.Scan(&entry.Fingerprint, &entry.RemoteURL, &entry.LocalPath,
			&entry.DurationSeconds, &createdRaw)
		if errors.Is(scanErr, sql.ErrNoRows) {
			found = false
			return nil
		}
		found = scanErr == nil
		return scanErr
	})
	if err != nil {
		return Entry{}, false, fmt.Errorf("cache get: %w", err)
	}
	if !found {
		return Entry{}, false, nil
	}
	if created, err := sqliteutil.ParseTime(createdRaw); err == nil {
		entry.CreatedAt = created
	}
	return entry, true, nil
}

func (s *SQLite) Put(ctx context.Context, entry Entry) error {
	created := entry.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err := sqliteutil.Exec(ctx, s.db,
		`INSERT INTO cache_entries (fingerprint, remote_url, local_path, duration_seconds, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(fingerprint) DO UPDATE SET
			remote_url = excluded.remote_url,
			local_path = excluded.local_path,
			duration_seconds = excluded.duration_seconds,
			created_at = excluded.created_at`,
		entry.Fingerprint, entry.RemoteURL, entry.LocalPath, entry.DurationSeconds,
		sqliteutil.FormatTime(created))
	if err != nil {
		return fmt.Errorf("cache put: %w", err)
	}
	return nil
}

func (s *SQLite) EvictAll(ctx context.Context) error {
	if _, err := sqliteutil.Exec(ctx, s.db, "DELETE FROM cache_entries"); err != nil {
		return fmt.Errorf("cache evict: %w", err)
	}
	return nil
}

func (s *SQLite) SizeEstimate(ctx context.Context) (Size, error) {
	ctx = sqliteutil.EnsureContext(ctx)
	rows, err := s.db.QueryContext(ctx, "SELECT local_path FROM cache_entries")
	if err != nil {
		return Size{}, fmt.Errorf("cache size: %w", err)
	}
	defer rows.Close()

	var size Size
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			return Size{}, fmt.Errorf("cache size: %w", err)
		}
		size.Entries++
		size.Bytes += fileBytes(path)
	}
	if err := rows.Err(); err != nil {
		return Size{}, fmt.Errorf("cache size: %w", err)
	}
	return size, nil
}

func (s *SQLite) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
