package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"scriptreel/internal/assets"
	"scriptreel/internal/cache"
	"scriptreel/internal/config"
	"scriptreel/internal/continuity"
	"scriptreel/internal/credits"
	"scriptreel/internal/enhance"
	"scriptreel/internal/generation"
	"scriptreel/internal/logging"
	"scriptreel/internal/metrics"
	"scriptreel/internal/segmentation"
	"scriptreel/internal/services"
)

const tracerName = "scriptreel/orchestrator"

// Settings tunes retries and polling.
type Settings struct {
	Model          string
	ModelVersion   string
	MaxAttempts    int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
	PollInitial    time.Duration
	PollMax        time.Duration
	PollCeiling    time.Duration
}

// DefaultSettings mirrors the configuration defaults.
func DefaultSettings() Settings {
	return Settings{
		MaxAttempts:    4,
		RetryBaseDelay: time.Second,
		RetryMaxDelay:  30 * time.Second,
		PollInitial:    2 * time.Second,
		PollMax:        10 * time.Second,
		PollCeiling:    45 * time.Second,
	}
}

// SettingsFromConfig derives settings from the generation and orchestrator sections.
func SettingsFromConfig(cfg *config.Config) Settings {
	s := DefaultSettings()
	if cfg == nil {
		return s
	}
	s.Model = cfg.Generation.Model
	s.ModelVersion = cfg.Generation.ModelVersion
	o := cfg.Orchestrator
	if o.MaxAttempts > 0 {
		s.MaxAttempts = o.MaxAttempts
	}
	if o.RetryBaseDelayMS > 0 {
		s.RetryBaseDelay = time.Duration(o.RetryBaseDelayMS) * time.Millisecond
	}
	if o.RetryMaxDelayMS > 0 {
		s.RetryMaxDelay = time.Duration(o.RetryMaxDelayMS) * time.Millisecond
	}
	if o.PollInitialMS > 0 {
		s.PollInitial = time.Duration(o.PollInitialMS) * time.Millisecond
	}
	if o.PollMaxMS > 0 {
		s.PollMax = time.Duration(o.PollMaxMS) * time.Millisecond
	}
	if o.PollCeilingSeconds > 0 {
		s.PollCeiling = time.Duration(o.PollCeilingSeconds) * time.Second
	}
	return s
}

func (s Settings) normalized() Settings {
	def := DefaultSettings()
	if s.MaxAttempts <= 0 {
		s.MaxAttempts = def.MaxAttempts
	}
	if s.RetryBaseDelay <= 0 {
		s.RetryBaseDelay = def.RetryBaseDelay
	}
	if s.RetryMaxDelay <= 0 {
		s.RetryMaxDelay = def.RetryMaxDelay
	}
	if s.RetryMaxDelay < s.RetryBaseDelay {
		s.RetryMaxDelay = s.RetryBaseDelay
	}
	if s.PollInitial <= 0 {
		s.PollInitial = def.PollInitial
	}
	if s.PollMax <= 0 {
		s.PollMax = def.PollMax
	}
	if s.PollMax < s.PollInitial {
		s.PollMax = s.PollInitial
	}
	if s.PollCeiling <= 0 {
		s.PollCeiling = def.PollCeiling
	}
	return s
}

// Orchestrator drives segments through generation.
type Orchestrator struct {
	client     generation.Client
	cache      cache.Store
	saver      assets.Saver
	continuity *continuity.Manager
	enhancer   *enhance.Service
	estimator  *credits.Estimator
	ledger     credits.Ledger
	settings   Settings
	logger     *slog.Logger
	tracer     trace.Tracer
	sleep      func(context.Context, time.Duration) error
	now        func() time.Time

	progressMu sync.Mutex
	progress   ProgressFunc

	inflight singleflight.Group
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithSettings overrides retry and polling settings.
func WithSettings(s Settings) Option {
	return func(o *Orchestrator) { o.settings = s }
}

// WithContinuity enables seed extraction between consecutive segments.
func WithContinuity(m *continuity.Manager) Option {
	return func(o *Orchestrator) { o.continuity = m }
}

// WithEnhancer rewrites prompts after a cache miss, before submission.
func WithEnhancer(s *enhance.Service) Option {
	return func(o *Orchestrator) { o.enhancer = s }
}

// WithCredits charges ledger for every first submission.
func WithCredits(estimator *credits.Estimator, ledger credits.Ledger) Option {
	return func(o *Orchestrator) {
		o.estimator = estimator
		o.ledger = ledger
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithProgress registers a transition callback.
func WithProgress(fn ProgressFunc) Option {
	return func(o *Orchestrator) { o.progress = fn }
}

// WithTracerProvider records job spans on tp instead of the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *Orchestrator) {
		if tp != nil {
			o.tracer = tp.Tracer(tracerName)
		}
	}
}

// WithSleeper replaces the context-aware sleep used for backoff and polling.
func WithSleeper(fn func(context.Context, time.Duration) error) Option {
	return func(o *Orchestrator) {
		if fn != nil {
			o.sleep = fn
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// New builds an orchestrator around the generation client, the fingerprint cache,
// and the asset store.
func New(client generation.Client, store cache.Store, saver assets.Saver, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		client:   client,
		cache:    store,
		saver:    saver,
		settings: DefaultSettings(),
		logger:   logging.NewNop(),
		sleep:    sleepContext,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.tracer == nil {
		o.tracer = otel.GetTracerProvider().Tracer(tracerName)
	}
	o.settings = o.settings.normalized()
	o.logger = logging.NewComponentLogger(o.logger, "orchestrator")
	return o
}

// Batch describes one Generate call. Predecessors supplies finished segments from an
// earlier run, keyed by order index, for segments whose predecessor is not in Segments.
type Batch struct {
	Segments     []segmentation.Segment
	Concurrency  int
	Predecessors map[int]continuity.Previous
}

// Generate processes segments in fixed batches of concurrency workers.
func (o *Orchestrator) Generate(ctx context.Context, segments []segmentation.Segment, concurrency int) (*BatchResult, error) {
	return o.GenerateBatch(ctx, Batch{Segments: segments, Concurrency: concurrency})
}

type slot struct {
	segment segmentation.Segment
	job     *Job
	done    chan struct{}
}

type plan struct {
	slots        []*slot
	byIndex      map[int]*slot
	predecessors map[int]continuity.Previous
}

// GenerateBatch runs b and returns one outcome per segment in order-index order.
// When ctx is cancelled the partial result is returned together with ctx's error.
func (o *Orchestrator) GenerateBatch(ctx context.Context, b Batch) (*BatchResult, error) {
	if o.client == nil || o.saver == nil {
		return nil, services.Wrap(services.ErrConfiguration, "orchestrator", "generate", "generation client and asset store are required", nil)
	}
	if b.Concurrency < 1 {
		return nil, &services.ValidationError{Field: "concurrency", Reason: "must be at least 1"}
	}
	p, err := o.plan(b)
	if err != nil {
		return nil, err
	}

	started := o.now()
	logger := logging.WithContext(ctx, o.logger)
	logger.Info("generation batch started",
		logging.Int("segments", len(p.slots)),
		logging.Int("concurrency", b.Concurrency),
		logging.Bool("continuity", o.continuity.Enabled()),
		logging.Bool("enhancement", o.enhancer.Enabled()))

	for start := 0; start < len(p.slots); start += b.Concurrency {
		end := min(start+b.Concurrency, len(p.slots))
		if ctx.Err() != nil {
			for _, s := range p.slots[start:] {
				o.finish(ctx, s.job, canceled(ctx))
				close(s.done)
			}
			break
		}
		var group errgroup.Group
		for _, s := range p.slots[start:end] {
			group.Go(func() error {
				o.runJob(ctx, s, p)
				return nil
			})
		}
		_ = group.Wait()
	}

	outcomes := make([]Outcome, 0, len(p.slots))
	for _, s := range p.slots {
		outcomes = append(outcomes, outcomeFromJob(s.job))
	}
	result := &BatchResult{Outcomes: outcomes, Summary: summarize(outcomes, o.now().Sub(started))}

	logger.Info("generation batch finished",
		logging.Int("total", result.Summary.Total),
		logging.Int("generated", result.Summary.Generated),
		logging.Int("cache_hits", result.Summary.CacheHits),
		logging.Int("failed", result.Summary.Failed),
		logging.Duration("elapsed", result.Summary.Duration))
	if err := ctx.Err(); err != nil {
		return result, err
	}
	return result, nil
}

func (o *Orchestrator) plan(b Batch) (*plan, error) {
	segments := slices.Clone(b.Segments)
	slices.SortStableFunc(segments, func(a, c segmentation.Segment) int { return a.OrderIndex - c.OrderIndex })
	p := &plan{
		slots:        make([]*slot, 0, len(segments)),
		byIndex:      make(map[int]*slot, len(segments)),
		predecessors: b.Predecessors,
	}
	now := o.now()
	for _, seg := range segments {
		if _, dup := p.byIndex[seg.OrderIndex]; dup {
			return nil, &services.ValidationError{Field: "segments", Reason: fmt.Sprintf("duplicate order index %d", seg.OrderIndex)}
		}
		s := &slot{segment: seg, job: newJob(seg.ID, seg.OrderIndex, now), done: make(chan struct{})}
		p.slots = append(p.slots, s)
		p.byIndex[seg.OrderIndex] = s
	}
	return p, nil
}

// move applies a transition and reports it.
func (o *Orchestrator) move(job *Job, to State) error {
	from := job.State
	now := o.now()
	if err := job.transition(to, now); err != nil {
		return err
	}
	metrics.JobTransitions.WithLabelValues(string(to)).Inc()
	o.emit(Progress{
		SegmentID:    job.SegmentID,
		SegmentIndex: job.SegmentIndex,
		From:         from,
		To:           to,
		Attempt:      job.AttemptCount,
		Elapsed:      now.Sub(job.StartedAt),
		Err:          job.LastError,
	})
	return nil
}

func (o *Orchestrator) emit(p Progress) {
	if o.progress == nil {
		return
	}
	o.progressMu.Lock()
	defer o.progressMu.Unlock()
	o.progress(p)
}

// finish drives job into its terminal state. A nil err completes the job.
func (o *Orchestrator) finish(ctx context.Context, job *Job, err error) {
	logger := logging.WithContext(services.WithSegment(ctx, job.SegmentIndex, job.SegmentID), o.logger)
	if err == nil {
		if moveErr := o.move(job, StateCompleted); moveErr != nil {
			err = moveErr
		}
	}
	if err != nil {
		job.LastError = err
		if moveErr := o.move(job, StateFailedPermanent); moveErr != nil {
			logger.Error("job already terminal", logging.Error(moveErr))
			return
		}
	}

	kind := services.Kind(job.LastError)
	if job.State == StateCompleted {
		kind = ""
	}
	metrics.JobOutcomes.WithLabelValues(string(job.State), kind).Inc()
	metrics.JobDuration.WithLabelValues(string(job.State)).Observe(job.FinishedAt.Sub(job.StartedAt).Seconds())

	switch {
	case job.State == StateCompleted:
		logger.Info("segment completed",
			logging.Bool("cache_hit", job.CacheHit),
			logging.Bool("coalesced", job.Coalesced),
			logging.Int("attempts", job.AttemptCount),
			logging.String("asset_path", job.ResultAssetLocalPath))
	case kind == services.KindCanceled:
		logger.Info("segment canceled", logging.String(logging.FieldEventType, "segment_canceled"))
	default:
		logging.ErrorWithContext(logger, "segment generation failed", "segment_failed",
			logging.String("error_kind", kind),
			logging.Int("attempts", job.AttemptCount),
			logging.Error(job.LastError),
			logging.String(logging.FieldErrorHint, hintFor(kind)),
			logging.String(logging.FieldImpact, "segment has no clip; retry it with the retry command"))
	}
}

func hintFor(kind string) string {
	switch kind {
	case services.KindQuota:
		return "top up credits or lower the clip duration"
	case services.KindPermanent:
		return "revise the segment text; the service rejected the request"
	case services.KindTransient:
		return "generation service kept failing; check its status and retry later"
	case services.KindValidation:
		return "check the segment and configuration values"
	default:
		return "check logs for details"
	}
}

// canceled returns the error recorded for jobs ended by cancellation.
func canceled(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", context.Canceled, context.DeadlineExceeded)
	}
	return context.Canceled
}
