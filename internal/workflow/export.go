package workflow

import (
	"context"
	"fmt"

	"scriptreel/internal/assets"
	"scriptreel/internal/queue"
	"scriptreel/internal/services"
)

// Export copies a run's clips into destDir in segment order. Unless allowPartial is
// set, a run with failed segments is refused so the exported sequence has no gaps.
func Export(ctx context.Context, store *queue.Store, runRef, destDir string, allowPartial bool) ([]string, error) {
	run, err := store.FindRun(ctx, runRef)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, services.Wrap(services.ErrNotFound, "workflow", "export", fmt.Sprintf("run %q not found", runRef), nil)
	}
	failed, err := store.FailedIndices(ctx, run.ID)
	if err != nil {
		return nil, fmt.Errorf("load failed segments: %w", err)
	}
	if len(failed) > 0 && !allowPartial {
		return nil, &services.ValidationError{
			Field:  "run",
			Reason: fmt.Sprintf("%d of %d segments have no clip; retry the run or export with --partial", len(failed), run.SegmentCount),
		}
	}
	jobs, err := store.Jobs(ctx, run.ID)
	if err != nil {
		return nil, fmt.Errorf("load jobs: %w", err)
	}
	paths := make([]string, 0, len(jobs))
	for _, job := range jobs {
		if job.Succeeded() && job.AssetPath != "" {
			paths = append(paths, job.AssetPath)
		}
	}
	return assets.Export(paths, destDir)
}
