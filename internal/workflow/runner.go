package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"scriptreel/internal/assets"
	"scriptreel/internal/cache"
	"scriptreel/internal/config"
	"scriptreel/internal/continuity"
	"scriptreel/internal/credits"
	"scriptreel/internal/enhance"
	"scriptreel/internal/generation"
	"scriptreel/internal/logging"
	"scriptreel/internal/notifications"
	"scriptreel/internal/orchestrator"
	"scriptreel/internal/queue"
	"scriptreel/internal/segmentation"
	"scriptreel/internal/services"
)

// Runner coordinates segmentation, generation, and persistence for one workspace.
type Runner struct {
	cfg      *config.Config
	store    *queue.Store
	cache    cache.Store
	client   generation.Client
	saver    assets.Saver
	engine   *segmentation.Engine
	planner  segmentation.DurationPlanner
	notifier notifications.Service
	logger   *slog.Logger
	extra    []orchestrator.Option
}

// Option configures optional Runner behavior.
type Option func(*Runner)

// WithNotifier replaces the config-derived notification service.
func WithNotifier(n notifications.Service) Option {
	return func(r *Runner) {
		if n != nil {
			r.notifier = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithEngine replaces the config-derived segmentation engine.
func WithEngine(engine *segmentation.Engine) Option {
	return func(r *Runner) {
		if engine != nil {
			r.engine = engine
		}
	}
}

// WithOrchestratorOptions appends options applied after the config-derived ones,
// so they win.
func WithOrchestratorOptions(opts ...orchestrator.Option) Option {
	return func(r *Runner) { r.extra = append(r.extra, opts...) }
}

// NewRunner constructs a runner. The cache, generation client, and asset store are
// shared by every run the runner drives.
func NewRunner(cfg *config.Config, store *queue.Store, clips cache.Store, client generation.Client, saver assets.Saver, opts ...Option) (*Runner, error) {
	if cfg == nil || store == nil {
		return nil, services.Wrap(services.ErrConfiguration, "workflow", "init", "config and store are required", nil)
	}
	if clips == nil || client == nil || saver == nil {
		return nil, services.Wrap(services.ErrConfiguration, "workflow", "init", "cache, generation client, and asset store are required", nil)
	}
	r := &Runner{
		cfg:     cfg,
		store:   store,
		cache:   clips,
		client:  client,
		saver:   saver,
		planner: segmentation.PlannerFromConfig(cfg),
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.engine == nil {
		r.engine = segmentation.EngineFromConfig(cfg, r.logger)
	}
	if r.notifier == nil {
		r.notifier = notifications.NewService(cfg)
	}
	r.logger = logging.NewComponentLogger(r.logger, "workflow")
	return r, nil
}

// Result reports what a Run or Retry did.
type Result struct {
	Run          *queue.Run
	Segmentation *segmentation.Result
	// Batch is nil when Retry found nothing to regenerate.
	Batch *orchestrator.BatchResult
}

// newOrchestrator assembles a per-batch orchestrator from config plus any overrides.
func (r *Runner) newOrchestrator(ctx context.Context, progress orchestrator.ProgressFunc) (*orchestrator.Orchestrator, error) {
	opts := []orchestrator.Option{
		orchestrator.WithSettings(orchestrator.SettingsFromConfig(r.cfg)),
		orchestrator.WithLogger(r.logger),
		orchestrator.WithContinuity(continuity.NewManager(r.cfg.Continuity, continuity.WithLogger(r.logger))),
		orchestrator.WithEnhancer(enhance.FromConfig(r.cfg, r.logger)),
		orchestrator.WithProgress(progress),
	}
	if r.cfg.Credits.Enabled {
		ledger, err := r.store.Ledger(ctx, r.cfg.Credits.InitialBalance)
		if err != nil {
			return nil, fmt.Errorf("open credit ledger: %w", err)
		}
		opts = append(opts, orchestrator.WithCredits(credits.EstimatorFromConfig(r.cfg.Credits), ledger))
	}
	opts = append(opts, r.extra...)
	return orchestrator.New(r.client, r.cache, r.saver, opts...), nil
}

// execute generates batch for run, records every outcome, and settles the run
// status from the stored job table.
func (r *Runner) execute(ctx context.Context, run *queue.Run, batch orchestrator.Batch, progress orchestrator.ProgressFunc) (*orchestrator.BatchResult, error) {
	logger := logging.WithContext(ctx, r.logger)
	// Persistence after cancellation must still land.
	persistCtx := context.WithoutCancel(ctx)

	orch, err := r.newOrchestrator(ctx, progress)
	if err != nil {
		r.fail(persistCtx, run.ID, err)
		return nil, err
	}
	if err := r.store.MarkRunning(persistCtx, run.ID); err != nil {
		return nil, fmt.Errorf("mark run running: %w", err)
	}
	r.notify(ctx, logger, "batch start", func(nctx context.Context) error {
		return r.notifier.NotifyBatchStarted(nctx, run.ID, len(batch.Segments))
	})

	result, genErr := orch.GenerateBatch(ctx, batch)
	if result == nil {
		r.fail(persistCtx, run.ID, genErr)
		r.notify(persistCtx, logger, "batch error", func(nctx context.Context) error {
			return r.notifier.NotifyError(nctx, genErr, "generate run "+run.ID)
		})
		return nil, genErr
	}

	for _, outcome := range result.Outcomes {
		if err := r.store.RecordOutcome(persistCtx, jobRecord(run.ID, outcome)); err != nil {
			return result, fmt.Errorf("record outcome: %w", err)
		}
	}
	failed, err := r.store.FailedIndices(persistCtx, run.ID)
	if err != nil {
		return result, fmt.Errorf("load failed segments: %w", err)
	}
	status := queue.FinalStatus(run.SegmentCount, len(failed), genErr != nil)
	message := ""
	switch {
	case genErr != nil:
		message = genErr.Error()
	case len(failed) > 0:
		message = fmt.Sprintf("%d of %d segments failed", len(failed), run.SegmentCount)
	}
	if err := r.store.FinishRun(persistCtx, run.ID, status, message); err != nil {
		return result, fmt.Errorf("finish run: %w", err)
	}
	run.Status = status
	run.ErrorMessage = message

	attrs := []logging.Attr{
		logging.String("status", string(status)),
		logging.Int("generated", result.Summary.Generated),
		logging.Int("cache_hits", result.Summary.CacheHits),
		logging.Int("failed", result.Summary.Failed),
		logging.Duration("elapsed", result.Summary.Duration),
	}
	if status == queue.RunCompleted {
		logger.Info("run finished", logging.Args(attrs...)...)
	} else {
		logging.WarnWithContext(logger, "run finished with failures", "run_incomplete",
			append(attrs,
				logging.String(logging.FieldErrorHint, "inspect failures with `scriptreel runs show` and rerun `scriptreel retry`"),
				logging.String(logging.FieldImpact, "clip list has gaps until failed segments are regenerated"))...)
	}

	r.notify(persistCtx, logger, "batch completion", func(nctx context.Context) error {
		return r.notifier.NotifyBatchCompleted(nctx, notifications.BatchSummary{
			RunID:     run.ID,
			Generated: result.Summary.Generated,
			CacheHits: result.Summary.CacheHits,
			Failed:    result.Summary.Failed,
			Duration:  result.Summary.Duration,
		})
	})
	if status == queue.RunFailed {
		r.notify(persistCtx, logger, "batch error", func(nctx context.Context) error {
			return r.notifier.NotifyError(nctx, errors.New(message), "generate run "+run.ID)
		})
	}
	return result, genErr
}

func (r *Runner) fail(ctx context.Context, runID string, cause error) {
	message := "generation failed"
	if cause != nil {
		message = cause.Error()
	}
	status := queue.RunFailed
	if errors.Is(cause, context.Canceled) || errors.Is(cause, context.DeadlineExceeded) {
		status = queue.RunCanceled
	}
	if err := r.store.FinishRun(ctx, runID, status, message); err != nil {
		r.logger.Debug("could not record run failure", logging.String(logging.FieldRunID, runID), logging.Error(err))
	}
}

// notify sends one notification with the configured timeout. Failures are logged at
// debug level and never fail the run.
func (r *Runner) notify(ctx context.Context, logger *slog.Logger, label string, send func(context.Context) error) {
	timeout := r.cfg.NotificationTimeout()
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	nctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := send(nctx); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Debug("run canceled, could not send " + label + " notification")
			return
		}
		logger.Debug(label+" notification failed", logging.Error(err))
	}
}

func jobRecord(runID string, o orchestrator.Outcome) queue.JobRecord {
	rec := queue.JobRecord{
		RunID:        runID,
		Index:        o.SegmentIndex,
		SegmentID:    o.SegmentID,
		Fingerprint:  o.Fingerprint,
		State:        string(o.State),
		AttemptCount: o.Attempts,
		ErrorKind:    o.ErrorKind,
		AssetPath:    o.AssetPath,
		RemoteURL:    o.RemoteURL,
		CacheHit:     o.CacheHit,
		Cost:         o.Cost,
	}
	if o.Err != nil && !o.Succeeded() {
		rec.LastError = o.Err.Error()
	}
	return rec
}
