package queue

import (
	"context"
	_ "embed"

	"scriptreel/internal/sqliteutil"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is the current schema version. Bump this when the schema changes.
// Users will need to delete their run database after schema changes.
const schemaVersion = 1

// ErrSchemaMismatch indicates the database schema version doesn't match the expected version.
var ErrSchemaMismatch = sqliteutil.ErrSchemaMismatch

func (s *Store) initSchema(ctx context.Context) error {
	return sqliteutil.ApplySchema(ctx, s.db, schemaSQL, schemaVersion)
}
