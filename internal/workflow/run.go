package workflow

import (
	"context"
	"fmt"
	"os"
	"strings"

	"scriptreel/internal/continuity"
	"scriptreel/internal/logging"
	"scriptreel/internal/orchestrator"
	"scriptreel/internal/queue"
	"scriptreel/internal/segmentation"
	"scriptreel/internal/services"
)

// Request describes one script to turn into clips. Script takes precedence over
// ScriptPath; zero values fall back to the [segmentation] and [orchestrator] config.
type Request struct {
	ScriptPath  string
	Script      string
	Strategy    segmentation.Strategy
	Constraints *segmentation.Constraints
	Concurrency int
	OnProgress  orchestrator.ProgressFunc
}

// RetryRequest selects a stored run to resume.
type RetryRequest struct {
	// RunID may be a unique prefix of the run id.
	RunID       string
	Concurrency int
	OnProgress  orchestrator.ProgressFunc
}

// Segment splits the request's script without creating a run.
func (r *Runner) Segment(ctx context.Context, req Request) (*segmentation.Result, error) {
	script, err := readScript(req)
	if err != nil {
		return nil, err
	}
	strategy, err := r.strategy(req.Strategy)
	if err != nil {
		return nil, err
	}
	constraints := segmentation.ConstraintsFromConfig(r.cfg.Segmentation)
	if req.Constraints != nil {
		constraints = *req.Constraints
	}
	result, err := r.engine.Segment(ctx, script, strategy, constraints)
	if err != nil {
		return nil, err
	}
	result.Segments = r.planner.Apply(result.Segments)
	return result, nil
}

// Run segments the script, persists a new run, and generates every segment.
// A run with failed segments is not an error; it is reported through
// Result.Batch and the run status. The error is non-nil only when the run could
// not be driven at all or ctx was cancelled.
func (r *Runner) Run(ctx context.Context, req Request) (*Result, error) {
	concurrency, err := r.concurrency(req.Concurrency)
	if err != nil {
		return nil, err
	}
	release, err := acquireLock(r.cfg.LockPath())
	if err != nil {
		return nil, err
	}
	defer release()

	seg, err := r.Segment(ctx, req)
	if err != nil {
		return nil, err
	}
	run, err := r.store.CreateRun(ctx, queue.NewRun{
		ScriptPath:  req.ScriptPath,
		Strategy:    string(seg.Metadata.Strategy),
		Confidence:  seg.Metadata.Confidence,
		NeedsReview: seg.HasWarning(segmentation.WarningLowConfidence),
	})
	if err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}
	if err := r.store.SaveSegments(ctx, run.ID, seg.Segments); err != nil {
		r.fail(context.WithoutCancel(ctx), run.ID, err)
		return nil, fmt.Errorf("save segments: %w", err)
	}
	run.SegmentCount = len(seg.Segments)

	ctx = services.WithRunID(ctx, run.ID)
	logger := logging.WithContext(ctx, r.logger)
	logger.Info("run created",
		logging.String("strategy", string(seg.Metadata.Strategy)),
		logging.Int("segments", len(seg.Segments)),
		logging.Float64("confidence", seg.Metadata.Confidence),
		logging.Int("warnings", len(seg.Warnings)))

	batch, err := r.execute(ctx, run, orchestrator.Batch{Segments: seg.Segments, Concurrency: concurrency}, req.OnProgress)
	return &Result{Run: run, Segmentation: seg, Batch: batch}, err
}

// Retry regenerates the segments of a stored run that have no completed job.
// Continuity for a retried segment is seeded from its predecessor's stored clip
// when that predecessor completed earlier.
func (r *Runner) Retry(ctx context.Context, req RetryRequest) (*Result, error) {
	concurrency, err := r.concurrency(req.Concurrency)
	if err != nil {
		return nil, err
	}
	release, err := acquireLock(r.cfg.LockPath())
	if err != nil {
		return nil, err
	}
	defer release()

	run, err := r.store.FindRun(ctx, req.RunID)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, services.Wrap(services.ErrNotFound, "workflow", "retry", fmt.Sprintf("run %q not found", req.RunID), nil)
	}
	ctx = services.WithRunID(ctx, run.ID)
	logger := logging.WithContext(ctx, r.logger)

	segments, err := r.store.LoadSegments(ctx, run.ID)
	if err != nil {
		return nil, fmt.Errorf("load segments: %w", err)
	}
	failed, err := r.store.FailedIndices(ctx, run.ID)
	if err != nil {
		return nil, fmt.Errorf("load failed segments: %w", err)
	}
	if len(failed) == 0 {
		logger.Info("nothing to retry",
			logging.Args(logging.DecisionAttrs("retry", "skipped", "every segment already completed")...)...)
		return &Result{Run: run}, nil
	}
	jobs, err := r.store.Jobs(ctx, run.ID)
	if err != nil {
		return nil, fmt.Errorf("load jobs: %w", err)
	}

	batch := orchestrator.Batch{
		Segments:     selectSegments(segments, failed),
		Concurrency:  concurrency,
		Predecessors: predecessors(jobs),
	}
	logger.Info("retrying failed segments",
		logging.Int("failed", len(failed)),
		logging.Int("segments", len(segments)))

	result, err := r.execute(ctx, run, batch, req.OnProgress)
	return &Result{Run: run, Batch: result}, err
}

func (r *Runner) strategy(requested segmentation.Strategy) (segmentation.Strategy, error) {
	if requested != "" {
		return segmentation.ParseStrategy(string(requested))
	}
	return segmentation.ParseStrategy(r.cfg.Segmentation.Strategy)
}

func (r *Runner) concurrency(requested int) (int, error) {
	switch {
	case requested < 0:
		return 0, &services.ValidationError{Field: "concurrency", Reason: "must be at least 1"}
	case requested == 0:
		return max(r.cfg.Orchestrator.Concurrency, 1), nil
	default:
		return requested, nil
	}
}

func readScript(req Request) (string, error) {
	if strings.TrimSpace(req.Script) != "" {
		return req.Script, nil
	}
	if strings.TrimSpace(req.ScriptPath) == "" {
		return "", &services.ValidationError{Field: "script", Reason: "provide script text or a script path"}
	}
	data, err := os.ReadFile(req.ScriptPath)
	if err != nil {
		return "", &services.ValidationError{Field: "script", Reason: "cannot read script file", Err: err}
	}
	return string(data), nil
}

func selectSegments(all []segmentation.Segment, indices []int) []segmentation.Segment {
	want := make(map[int]struct{}, len(indices))
	for _, idx := range indices {
		want[idx] = struct{}{}
	}
	out := make([]segmentation.Segment, 0, len(indices))
	for _, seg := range all {
		if _, ok := want[seg.OrderIndex]; ok {
			out = append(out, seg)
		}
	}
	return out
}

// predecessors exposes every completed job with a clip on disk as a continuity
// source, keyed by order index.
func predecessors(jobs []queue.JobRecord) map[int]continuity.Previous {
	out := make(map[int]continuity.Previous, len(jobs))
	for _, job := range jobs {
		if !job.Succeeded() || job.AssetPath == "" {
			continue
		}
		if _, err := os.Stat(job.AssetPath); err != nil {
			continue
		}
		out[job.Index] = continuity.Previous{
			SegmentID: job.SegmentID,
			Index:     job.Index,
			Succeeded: true,
			AssetPath: job.AssetPath,
		}
	}
	return out
}
