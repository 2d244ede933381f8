package queue

import (
	"context"
	"fmt"
	"time"

	"scriptreel/internal/segmentation"
	"scriptreel/internal/sqliteutil"
)

// SaveSegments replaces the run's segments and updates its segment count.
func (s *Store) SaveSegments(ctx context.Context, runID string, segments []segmentation.Segment) error {
	ctx = sqliteutil.EnsureContext(ctx)
	return sqliteutil.RetryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin segments tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := tx.ExecContext(ctx, `DELETE FROM segments WHERE run_id = ?`, runID); err != nil {
			return fmt.Errorf("clear segments: %w", err)
		}
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO segments (
                run_id, idx, segment_id, text, target_seconds, token_count,
                character_count, word_count, previous_idx, next_idx
            ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare segment insert: %w", err)
		}
		defer stmt.Close()
		for _, seg := range segments {
			if _, err := stmt.ExecContext(ctx,
				runID, seg.OrderIndex, seg.ID, seg.Text, seg.TargetDurationSeconds, seg.TokenCount,
				seg.CharacterCount, seg.WordCount, seg.PreviousIndex, seg.NextIndex,
			); err != nil {
				return fmt.Errorf("insert segment %d: %w", seg.OrderIndex, err)
			}
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE runs SET segment_count = ?, updated_at = ? WHERE id = ?`,
			len(segments), sqliteutil.FormatTime(time.Now()), runID)
		if err != nil {
			return fmt.Errorf("update segment count: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return fmt.Errorf("run %s does not exist", runID)
		}
		return tx.Commit()
	})
}

// LoadSegments returns the run's segments in order.
func (s *Store) LoadSegments(ctx context.Context, runID string) ([]segmentation.Segment, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT idx, segment_id, text, target_seconds, token_count,
            character_count, word_count, previous_idx, next_idx
        FROM segments WHERE run_id = ? ORDER BY idx`, runID)
	if err != nil {
		return nil, fmt.Errorf("load segments: %w", err)
	}
	defer rows.Close()
	var out []segmentation.Segment
	for rows.Next() {
		var seg segmentation.Segment
		if err := rows.Scan(&seg.OrderIndex, &seg.ID, &seg.Text, &seg.TargetDurationSeconds, &seg.TokenCount,
			&seg.CharacterCount, &seg.WordCount, &seg.PreviousIndex, &seg.NextIndex); err != nil {
			return nil, fmt.Errorf("scan segment: %w", err)
		}
		out = append(out, seg)
	}
	return out, rows.Err()
}
