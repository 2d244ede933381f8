package queue

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"scriptreel/internal/services"
	"scriptreel/internal/sqliteutil"
)

const jobColumns = "run_id, idx, segment_id, fingerprint, state, attempt_count, last_error, error_kind, asset_path, remote_url, cache_hit, cost, updated_at"

// RecordOutcome upserts the job row for (RunID, Index).
func (s *Store) RecordOutcome(ctx context.Context, rec JobRecord) error {
	if rec.RunID == "" {
		return &services.ValidationError{Field: "run_id", Reason: "must not be empty"}
	}
	if rec.State == "" {
		return &services.ValidationError{Field: "state", Reason: "must not be empty"}
	}
	_, err := s.exec(ctx, `INSERT INTO jobs (`+jobColumns+`)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(run_id, idx) DO UPDATE SET
            segment_id = excluded.segment_id,
            fingerprint = excluded.fingerprint,
            state = excluded.state,
            attempt_count = excluded.attempt_count,
            last_error = excluded.last_error,
            error_kind = excluded.error_kind,
            asset_path = excluded.asset_path,
            remote_url = excluded.remote_url,
            cache_hit = excluded.cache_hit,
            cost = jobs.cost + excluded.cost,
            updated_at = excluded.updated_at`,
		rec.RunID,
		rec.Index,
		rec.SegmentID,
		nullableString(rec.Fingerprint),
		rec.State,
		rec.AttemptCount,
		nullableString(rec.LastError),
		nullableString(rec.ErrorKind),
		nullableString(rec.AssetPath),
		nullableString(rec.RemoteURL),
		boolToInt(rec.CacheHit),
		rec.Cost,
		sqliteutil.FormatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("record job %d: %w", rec.Index, err)
	}
	return nil
}

// Jobs returns the run's job rows in segment order.
func (s *Store) Jobs(ctx context.Context, runID string) ([]JobRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE run_id = ? ORDER BY idx`, runID)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()
	var out []JobRecord
	for rows.Next() {
		var (
			rec         JobRecord
			fingerprint sql.NullString
			lastError   sql.NullString
			errorKind   sql.NullString
			assetPath   sql.NullString
			remoteURL   sql.NullString
			cacheHit    int
			updatedRaw  string
		)
		if err := rows.Scan(&rec.RunID, &rec.Index, &rec.SegmentID, &fingerprint, &rec.State, &rec.AttemptCount,
			&lastError, &errorKind, &assetPath, &remoteURL, &cacheHit, &rec.Cost, &updatedRaw); err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		rec.Fingerprint = fingerprint.String
		rec.LastError = lastError.String
		rec.ErrorKind = errorKind.String
		rec.AssetPath = assetPath.String
		rec.RemoteURL = remoteURL.String
		rec.CacheHit = cacheHit != 0
		rec.UpdatedAt, _ = sqliteutil.ParseTime(updatedRaw)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// FailedIndices lists segments of the run without a completed job, ascending.
// Segments that never got a job row (an interrupted run) count as failed.
func (s *Store) FailedIndices(ctx context.Context, runID string) ([]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT s.idx FROM segments s
        LEFT JOIN jobs j ON j.run_id = s.run_id AND j.idx = s.idx
        WHERE s.run_id = ? AND (j.state IS NULL OR j.state != ?)
        ORDER BY s.idx`, runID, JobCompleted)
	if err != nil {
		return nil, fmt.Errorf("failed indices: %w", err)
	}
	defer rows.Close()
	var out []int
	for rows.Next() {
		var idx int
		if err := rows.Scan(&idx); err != nil {
			return nil, err
		}
		out = append(out, idx)
	}
	return out, rows.Err()
}
