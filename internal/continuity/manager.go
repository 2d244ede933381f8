package continuity

import (
	"context"
	"errors"
	"log/slog"

	"scriptreel/internal/config"
	"scriptreel/internal/logging"
	"scriptreel/internal/metrics"
	"scriptreel/internal/services"
)

// Previous describes the finished predecessor of the segment being prepared.
type Previous struct {
	SegmentID string
	Index     int
	Succeeded bool
	AssetPath string
}

// Manager builds continuity directives from predecessor clips.
type Manager struct {
	extractor FrameExtractor
	position  float64
	maxBytes  int
	note      string
	enabled   bool
	logger    *slog.Logger
}

// Option customizes a Manager.
type Option func(*Manager)

// WithExtractor replaces the ffmpeg-based extractor.
func WithExtractor(extractor FrameExtractor) Option {
	return func(m *Manager) {
		if extractor != nil {
			m.extractor = extractor
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewManager returns a manager configured from cfg.Continuity.
func NewManager(cfg config.Continuity, opts ...Option) *Manager {
	m := &Manager{
		extractor: NewFFmpegExtractor(cfg.FFmpegBinary, cfg.FFprobeBinary),
		position:  cfg.SamplePosition,
		maxBytes:  cfg.MaxSeedBytes,
		note:      cfg.Note,
		enabled:   cfg.Enabled,
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = logging.NewComponentLogger(m.logger, "continuity")
	return m
}

// Enabled reports whether directives are produced at all.
func (m *Manager) Enabled() bool { return m != nil && m.enabled }

// ExtractTerminalFrame extracts the frame at the sample position and bounds it to the
// seed budget. Errors are *services.ContinuityExtractionError.
func (m *Manager) ExtractTerminalFrame(ctx context.Context, assetPath string) ([]byte, error) {
	index, ok := services.SegmentIndexFromContext(ctx)
	if !ok {
		index = -1
	}
	fail := func(err error) error {
		return &services.ContinuityExtractionError{SegmentIndex: index, Path: assetPath, Err: err}
	}
	if assetPath == "" {
		return nil, fail(errors.New("asset path is empty"))
	}
	frame, err := m.extractor.ExtractFrame(ctx, assetPath, m.position)
	if err != nil {
		return nil, fail(err)
	}
	bounded, err := Bound(frame, m.maxBytes)
	if err != nil {
		return nil, fail(err)
	}
	return bounded, nil
}

// BuildDirective returns the directive for the segment following prev, or nil when
// there is nothing to continue from. It never returns an error: extraction problems are
// logged and the segment is generated without a seed.
func (m *Manager) BuildDirective(ctx context.Context, prev *Previous) *Directive {
	if !m.Enabled() || prev == nil {
		return nil
	}
	logger := logging.WithContext(ctx, m.logger)
	if !prev.Succeeded || prev.AssetPath == "" {
		metrics.ContinuitySeeds.WithLabelValues("skipped").Inc()
		logger.Info("continuity skipped",
			logging.Args(logging.DecisionAttrs("continuity_seed", "skipped", "predecessor did not complete")...)...)
		return nil
	}

	seed, err := m.ExtractTerminalFrame(services.WithSegment(ctx, prev.Index, prev.SegmentID), prev.AssetPath)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		metrics.ContinuitySeeds.WithLabelValues("failed").Inc()
		logging.WarnWithContext(logger, "terminal frame extraction failed", "continuity_extraction_failed",
			logging.Int("source_index", prev.Index),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check ffmpeg/ffprobe and the saved clip"),
			logging.String(logging.FieldImpact, "segment is generated without a continuity seed"))
		return nil
	}

	metrics.ContinuitySeeds.WithLabelValues("attached").Inc()
	logger.Debug("continuity seed attached",
		logging.Int("source_index", prev.Index),
		logging.Int("seed_bytes", len(seed)))
	return NewDirective(prev.SegmentID, prev.Index, seed, m.note)
}
