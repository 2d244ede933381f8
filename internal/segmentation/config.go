package segmentation

import (
	"log/slog"
	"slices"

	"scriptreel/internal/config"
	"scriptreel/internal/textutil"
)

// ConstraintsFromConfig maps the [segmentation] section onto Constraints.
func ConstraintsFromConfig(cfg config.Segmentation) Constraints {
	return Constraints{
		MaxSegments:         cfg.MaxSegments,
		MinSegmentLength:    cfg.MinSegmentLength,
		MaxSegmentLength:    cfg.MaxSegmentLength,
		MaxTokensPerSegment: cfg.MaxTokensPerSegment,
		EnforceTokenLimits:  cfg.EnforceTokenLimits,
		AllowEmptySegments:  cfg.AllowEmptySegments,
		WordsPerChunk:       cfg.WordsPerChunk,
	}
}

// PlannerFromConfig builds the duration planner, snapping to the durations the
// generation service accepts.
func PlannerFromConfig(cfg *config.Config) DurationPlanner {
	p := DefaultDurationPlanner()
	if cfg == nil {
		return p
	}
	s := cfg.Segmentation
	if s.SecondsPerWord > 0 {
		p.SecondsPerWord = s.SecondsPerWord
	}
	if s.MinClipSeconds > 0 {
		p.MinSeconds = s.MinClipSeconds
	}
	if s.MaxClipSeconds > 0 {
		p.MaxSeconds = s.MaxClipSeconds
	}
	p.Allowed = slices.Sorted(slices.Values(cfg.Generation.AllowedDurations))
	return p
}

// EngineFromConfig returns an engine using the configured token ratio and planner.
func EngineFromConfig(cfg *config.Config, logger *slog.Logger) *Engine {
	opts := []Option{WithLogger(logger)}
	if cfg != nil {
		opts = append(opts,
			WithEstimator(textutil.NewTokenEstimator(cfg.Segmentation.CharsPerToken)),
			WithDurationPlanner(PlannerFromConfig(cfg)))
	}
	return NewEngine(opts...)
}
