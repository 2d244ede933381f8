package segmentation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"scriptreel/internal/logging"
	"scriptreel/internal/services"
	"scriptreel/internal/textutil"
)

// ErrEmptyScript is wrapped by the ValidationError returned for blank scripts.
var ErrEmptyScript = errors.New("script is empty")

var segmentNamespace = uuid.MustParse("3f6b1d2e-8c4a-5b7e-9d10-4a2c6e8f1b3d")

// Option configures an Engine.
type Option func(*Engine)

// WithEstimator overrides the token estimator.
func WithEstimator(estimator textutil.TokenEstimator) Option {
	return func(e *Engine) { e.estimator = estimator }
}

// WithDetector overrides the scene detector.
func WithDetector(detector SceneDetector) Option {
	return func(e *Engine) { e.detector = detector }
}

// WithConfidenceWeights overrides the confidence heuristic.
func WithConfidenceWeights(weights ConfidenceWeights) Option {
	return func(e *Engine) { e.weights = weights }
}

// WithDurationPlanner sets the planner used for provisional clip durations.
func WithDurationPlanner(planner DurationPlanner) Option {
	return func(e *Engine) { e.durations = planner }
}

// WithLogger attaches a logger for strategy decisions.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// Engine segments scripts. It is immutable after construction.
type Engine struct {
	detector  SceneDetector
	estimator textutil.TokenEstimator
	weights   ConfidenceWeights
	durations DurationPlanner
	logger    *slog.Logger
}

// NewEngine constructs an Engine with default collaborators.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		detector:  NewSceneDetector(),
		estimator: textutil.NewTokenEstimator(textutil.DefaultCharsPerToken),
		weights:   DefaultConfidenceWeights(),
		durations: DefaultDurationPlanner(),
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// run carries the bookkeeping of one Segment call.
type run struct {
	ctx         context.Context
	constraints Constraints
	fallbacks   []Fallback
	warnings    []Warning
	merges      int
	logger      *slog.Logger
}

func (r *run) warn(w Warning) {
	r.warnings = append(r.warnings, w)
}

func (r *run) fallback(from, to Strategy, reason FallbackReason) {
	r.fallbacks = append(r.fallbacks, Fallback{From: from, To: to, Reason: reason})
	r.warn(Warning{
		Type:         WarningFallbackUsed,
		SegmentIndex: noSegment,
		Message:      fmt.Sprintf("%s fell back to %s (%s)", from, to, reason),
	})
	r.logger.Info("segmentation strategy fallback",
		logging.Args(logging.DecisionAttrs("segmentation_strategy", string(to), string(reason))...)...)
}

// Segment splits script using strategy within constraints. It fails only with a
// *services.ValidationError (blank script, malformed constraints, unknown
// strategy) or with the context's error when ctx is cancelled.
func (e *Engine) Segment(ctx context.Context, script string, strategy Strategy, constraints Constraints) (*Result, error) {
	start := time.Now()
	if strategy == "" {
		strategy = StrategyHybrid
	}
	parsed, err := ParseStrategy(string(strategy))
	if err != nil {
		return nil, err
	}
	strategy = parsed
	if err := constraints.Validate(); err != nil {
		return nil, err
	}
	text := textutil.NormalizeText(script)
	if strings.TrimSpace(text) == "" {
		return nil, &services.ValidationError{Field: "script", Reason: "blank after trimming", Err: ErrEmptyScript}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r := &run{ctx: ctx, constraints: constraints, logger: logging.WithContext(ctx, e.logger)}
	if e.detector.Ambiguous(text) {
		r.warn(Warning{
			Type:         WarningAmbiguousFormat,
			SegmentIndex: noSegment,
			Message:      "script mixes screenplay and heading markers",
		})
	}

	units, used, err := e.split(r, text, strategy)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	segments := e.finalize(r, units)
	sceneNoFallback := used == StrategyScenes && len(r.fallbacks) == 0
	confidence := e.weights.Score(len(r.fallbacks), len(r.warnings), len(segments), sceneNoFallback)
	if e.weights.NeedsReview(confidence) {
		r.warn(Warning{
			Type:         WarningLowConfidence,
			SegmentIndex: noSegment,
			Message:      fmt.Sprintf("confidence %.2f is below %.2f; review segments before generating", confidence, e.weights.ReviewThreshold),
		})
	}

	var totalTokens int
	for _, seg := range segments {
		totalTokens += seg.TokenCount
	}
	avg := 0.0
	if len(segments) > 0 {
		avg = float64(totalTokens) / float64(len(segments))
	}

	result := &Result{
		Segments: segments,
		Warnings: r.warnings,
		Metadata: Metadata{
			Strategy:          used,
			RequestedStrategy: strategy,
			ExecutionTime:     time.Since(start),
			FallbacksApplied:  r.fallbacks,
			MergesApplied:     r.merges,
			Confidence:        confidence,
			SegmentCount:      len(segments),
			AverageTokenCount: avg,
		},
		allowEmpty: constraints.AllowEmptySegments,
	}
	r.logger.Debug("segmentation complete",
		logging.String("strategy", string(used)),
		logging.Int("segments", len(segments)),
		logging.Float64("confidence", confidence),
		logging.Int("warnings", len(r.warnings)),
	)
	return result, nil
}

func (e *Engine) split(r *run, text string, strategy Strategy) ([]string, Strategy, error) {
	switch strategy {
	case StrategyScenes:
		return e.byScenes(r, text)
	case StrategyParagraphs:
		return e.byParagraphs(r, text)
	case StrategySentences:
		return e.bySentences(r, text)
	case StrategyDuration:
		return e.byDuration(r, text)
	default:
		return e.hybrid(r, text)
	}
}

// sceneUnits returns the collapsed scene texts and why they are unusable, if they are.
func (e *Engine) sceneUnits(r *run, text string) ([]string, FallbackReason) {
	scenes := e.detector.Detect(text)
	units := make([]string, 0, len(scenes))
	nonEmpty := 0
	for _, scene := range scenes {
		unit := textutil.CollapseWhitespace(scene.Text)
		if unit != "" {
			nonEmpty++
		}
		units = append(units, unit)
	}
	switch {
	case nonEmpty == 0:
		return nil, ReasonNoSceneMarkers
	case nonEmpty == 1 && runeLen(strings.Join(units, "")) < r.constraints.MinSegmentLength:
		return nil, ReasonSingleShortScene
	}
	return units, ""
}

func (e *Engine) byScenes(r *run, text string) ([]string, Strategy, error) {
	units, reason := e.sceneUnits(r, text)
	if reason != "" {
		if reason == ReasonNoSceneMarkers {
			r.warn(Warning{Type: WarningNoSceneMarkers, SegmentIndex: noSegment, Message: "no scene markers found"})
		}
		r.fallback(StrategyScenes, StrategyParagraphs, reason)
		return e.byParagraphs(r, text)
	}
	return mergeForward(units, r.constraints.MinSegmentLength), StrategyScenes, nil
}

func (e *Engine) byParagraphs(r *run, text string) ([]string, Strategy, error) {
	if err := r.ctx.Err(); err != nil {
		return nil, "", err
	}
	units := mergeForward(splitParagraphs(text), r.constraints.MinSegmentLength)
	if len(units) == 1 && runeLen(units[0]) > r.constraints.MaxSegmentLength {
		r.fallback(StrategyParagraphs, StrategySentences, ReasonNoParagraphBreaks)
		return e.bySentences(r, text)
	}
	return units, StrategyParagraphs, nil
}

func (e *Engine) bySentences(r *run, text string) ([]string, Strategy, error) {
	if err := r.ctx.Err(); err != nil {
		return nil, "", err
	}
	units := mergeForward(splitSentences(text), r.constraints.MinSegmentLength)
	if len(units) == 1 && runeLen(units[0]) > r.constraints.MaxSegmentLength {
		r.fallback(StrategySentences, StrategyDuration, ReasonNoSentenceBreaks)
		return e.byDuration(r, text)
	}
	return units, StrategySentences, nil
}

func (e *Engine) byDuration(r *run, text string) ([]string, Strategy, error) {
	if err := r.ctx.Err(); err != nil {
		return nil, "", err
	}
	units := chunkWords(text, r.constraints.wordsPerChunk())
	return mergeForward(units, r.constraints.MinSegmentLength), StrategyDuration, nil
}

func (e *Engine) hybrid(r *run, text string) ([]string, Strategy, error) {
	units, reason := e.sceneUnits(r, text)
	if reason == "" {
		units = mergeForward(units, r.constraints.MinSegmentLength)
		if len(units) <= r.constraints.MaxSegments {
			return units, StrategyScenes, nil
		}
		reason = ReasonTooManyScenes
	}
	if reason == ReasonNoSceneMarkers {
		r.warn(Warning{Type: WarningNoSceneMarkers, SegmentIndex: noSegment, Message: "no scene markers found"})
	}
	r.fallback(StrategyScenes, StrategyParagraphs, reason)

	units, used, err := e.byParagraphs(r, text)
	if err != nil {
		return nil, "", err
	}
	merged, merges, err := intelligentMerge(r.ctx, units, r.constraints.MaxSegments)
	if err != nil {
		return nil, "", err
	}
	r.merges = merges
	if merges > 0 {
		r.logger.Debug("merged adjacent segments to fit max segments",
			logging.Int("merges", merges),
			logging.Int("max_segments", r.constraints.MaxSegments),
		)
	}
	return merged, used, nil
}

// finalize validates units and builds the ordered segment list.
func (e *Engine) finalize(r *run, units []string) []Segment {
	c := r.constraints
	segments := make([]Segment, 0, len(units))
	for i, unit := range units {
		if strings.TrimSpace(unit) == "" && !c.AllowEmptySegments {
			r.warn(Warning{Type: WarningEmptySegment, SegmentIndex: i, Message: "removed empty segment"})
			continue
		}
		segments = append(segments, Segment{Text: unit})
	}

	for i := range segments {
		seg := &segments[i]
		length := runeLen(seg.Text)
		if length > c.MaxSegmentLength {
			r.warn(Warning{
				Type:         WarningSegmentTooLong,
				SegmentIndex: i,
				Length:       length,
				Limit:        c.MaxSegmentLength,
				Message:      fmt.Sprintf("segment %d has %d characters (max %d)", i, length, c.MaxSegmentLength),
			})
		}
		if length < c.MinSegmentLength {
			r.warn(Warning{
				Type:         WarningSegmentTooShort,
				SegmentIndex: i,
				Length:       length,
				Limit:        c.MinSegmentLength,
				Message:      fmt.Sprintf("segment %d has %d characters (min %d)", i, length, c.MinSegmentLength),
			})
		}
		if tokens := e.estimator.Estimate(seg.Text); tokens > c.MaxTokensPerSegment {
			msg := fmt.Sprintf("segment %d has ~%d tokens (max %d)", i, tokens, c.MaxTokensPerSegment)
			if c.EnforceTokenLimits {
				seg.Text, _ = e.estimator.TruncateToTokens(seg.Text, c.MaxTokensPerSegment)
				msg += "; truncated"
			}
			r.warn(Warning{
				Type:         WarningTokenLimitExceeded,
				SegmentIndex: i,
				Length:       tokens,
				Limit:        c.MaxTokensPerSegment,
				Message:      msg,
			})
		}

		seg.OrderIndex = i
		seg.TokenCount = e.estimator.Estimate(seg.Text)
		seg.CharacterCount = textutil.CountChars(seg.Text)
		seg.WordCount = textutil.CountWords(seg.Text)
		seg.TargetDurationSeconds = e.durations.Estimate(seg.WordCount)
		seg.ID = segmentID(i, seg.Text)
		seg.PreviousIndex = i - 1
		seg.NextIndex = i + 1
		if i == len(segments)-1 {
			seg.NextIndex = noSegment
		}
	}
	return segments
}

// segmentID derives a stable identifier so re-segmenting identical input
// yields identical segments.
func segmentID(index int, text string) string {
	return uuid.NewSHA1(segmentNamespace, []byte(fmt.Sprintf("%d\x00%s", index, text))).String()
}
