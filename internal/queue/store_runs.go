package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"scriptreel/internal/services"
	"scriptreel/internal/sqliteutil"
)

const runColumns = "id, script_path, strategy, status, segment_count, confidence, needs_review, error_message, created_at, updated_at"

// CreateRun inserts a pending run with a fresh identifier.
func (s *Store) CreateRun(ctx context.Context, spec NewRun) (*Run, error) {
	if strings.TrimSpace(spec.Strategy) == "" {
		return nil, &services.ValidationError{Field: "strategy", Reason: "must not be empty"}
	}
	id := uuid.NewString()
	timestamp := sqliteutil.FormatTime(time.Now())
	_, err := s.exec(ctx,
		`INSERT INTO runs (id, script_path, strategy, status, confidence, needs_review, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id,
		nullableString(spec.ScriptPath),
		spec.Strategy,
		RunPending,
		spec.Confidence,
		boolToInt(spec.NeedsReview),
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}
	return s.GetRun(ctx, id)
}

// GetRun fetches a run by identifier. A missing run returns nil, nil.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

// FindRun resolves a full identifier or a unique prefix of at least four characters.
func (s *Store) FindRun(ctx context.Context, ref string) (*Run, error) {
	ref = strings.TrimSpace(ref)
	if run, err := s.GetRun(ctx, ref); err != nil || run != nil {
		return run, err
	}
	if len(ref) < 4 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id LIKE ? || '%' LIMIT 2`, ref)
	if err != nil {
		return nil, fmt.Errorf("find run: %w", err)
	}
	defer rows.Close()
	var matches []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		matches = append(matches, run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	switch len(matches) {
	case 0:
		return nil, nil
	case 1:
		return matches[0], nil
	default:
		return nil, &services.ValidationError{Field: "run", Reason: fmt.Sprintf("prefix %q is ambiguous", ref)}
	}
}

// ListRuns returns up to limit runs, newest first. limit <= 0 returns every run.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY created_at DESC, id`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()
	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// MarkRunning flags a run as in progress.
func (s *Store) MarkRunning(ctx context.Context, id string) error {
	return s.setStatus(ctx, id, RunRunning, "")
}

// FinishRun records the final status and an optional error message.
func (s *Store) FinishRun(ctx context.Context, id string, status RunStatus, message string) error {
	return s.setStatus(ctx, id, status, message)
}

func (s *Store) setStatus(ctx context.Context, id string, status RunStatus, message string) error {
	res, err := s.exec(ctx,
		`UPDATE runs SET status = ?, error_message = ?, updated_at = ? WHERE id = ?`,
		status, nullableString(message), sqliteutil.FormatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("update run status: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("run %s: %w", id, services.ErrNotFound)
	}
	return nil
}

// DeleteRun removes a run with its segments and jobs.
func (s *Store) DeleteRun(ctx context.Context, id string) error {
	if _, err := s.exec(ctx, `DELETE FROM runs WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete run: %w", err)
	}
	return nil
}

func scanRun(scanner interface{ Scan(dest ...any) error }) (*Run, error) {
	var (
		run          Run
		scriptPath   sql.NullString
		status       string
		needsReview  int
		errorMessage sql.NullString
		createdRaw   string
		updatedRaw   string
	)
	if err := scanner.Scan(
		&run.ID,
		&scriptPath,
		&run.Strategy,
		&status,
		&run.SegmentCount,
		&run.Confidence,
		&needsReview,
		&errorMessage,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}
	run.ScriptPath = scriptPath.String
	run.Status = RunStatus(status)
	run.NeedsReview = needsReview != 0
	run.ErrorMessage = errorMessage.String
	run.CreatedAt, _ = sqliteutil.ParseTime(createdRaw)
	run.UpdatedAt, _ = sqliteutil.ParseTime(updatedRaw)
	return &run, nil
}

func nullableString(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
