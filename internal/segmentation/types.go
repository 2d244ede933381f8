package segmentation

import (
	"fmt"
	"strings"
	"time"

	"scriptreel/internal/services"
)

// Strategy selects how a script is split.
type Strategy string

const (
	StrategyScenes     Strategy = "by-scenes"
	StrategyParagraphs Strategy = "by-paragraphs"
	StrategySentences  Strategy = "by-sentences"
	StrategyDuration   Strategy = "by-duration"
	StrategyHybrid     Strategy = "hybrid"
)

// Strategies lists every supported strategy in fallback order, hybrid last.
func Strategies() []Strategy {
	return []Strategy{StrategyScenes, StrategyParagraphs, StrategySentences, StrategyDuration, StrategyHybrid}
}

// ParseStrategy accepts the canonical names plus camel-case and bare forms
// ("byScenes", "scenes").
func ParseStrategy(value string) (Strategy, error) {
	key := strings.ToLower(strings.TrimSpace(value))
	key = strings.NewReplacer("-", "", "_", "", " ", "").Replace(key)
	key = strings.TrimPrefix(key, "by")
	switch key {
	case "scenes", "scene":
		return StrategyScenes, nil
	case "paragraphs", "paragraph":
		return StrategyParagraphs, nil
	case "sentences", "sentence":
		return StrategySentences, nil
	case "duration":
		return StrategyDuration, nil
	case "hybrid", "":
		return StrategyHybrid, nil
	default:
		return "", &services.ValidationError{Field: "strategy", Reason: fmt.Sprintf("unknown strategy %q", value)}
	}
}

// Constraints bound the shape of produced segments.
type Constraints struct {
	MaxSegments         int
	MinSegmentLength    int
	MaxSegmentLength    int
	MaxTokensPerSegment int
	EnforceTokenLimits  bool
	AllowEmptySegments  bool
	// WordsPerChunk sizes by-duration chunks; roughly three seconds of narration at the default.
	WordsPerChunk int
}

// DefaultConstraints returns the stock limits.
func DefaultConstraints() Constraints {
	return Constraints{
		MaxSegments:         20,
		MinSegmentLength:    10,
		MaxSegmentLength:    500,
		MaxTokensPerSegment: 200,
		EnforceTokenLimits:  true,
		WordsPerChunk:       8,
	}
}

// Validate reports malformed constraints as a *services.ValidationError.
func (c Constraints) Validate() error {
	switch {
	case c.MaxSegments <= 0:
		return &services.ValidationError{Field: "max_segments", Reason: "must be positive"}
	case c.MaxSegmentLength <= 0:
		return &services.ValidationError{Field: "max_segment_length", Reason: "must be positive"}
	case c.MaxTokensPerSegment <= 0:
		return &services.ValidationError{Field: "max_tokens_per_segment", Reason: "must be positive"}
	case c.MinSegmentLength < 0:
		return &services.ValidationError{Field: "min_segment_length", Reason: "must not be negative"}
	case c.MinSegmentLength > c.MaxSegmentLength:
		return &services.ValidationError{Field: "min_segment_length", Reason: "exceeds max_segment_length"}
	case c.WordsPerChunk < 0:
		return &services.ValidationError{Field: "words_per_chunk", Reason: "must not be negative"}
	}
	return nil
}

func (c Constraints) wordsPerChunk() int {
	if c.WordsPerChunk <= 0 {
		return 8
	}
	return c.WordsPerChunk
}

// Segment is one scene unit awaiting generation. Neighbours are stored as
// indices into the owning Result.Segments slice; -1 means none.
type Segment struct {
	ID                    string  `json:"id"`
	OrderIndex            int     `json:"order_index"`
	Text                  string  `json:"text"`
	TargetDurationSeconds float64 `json:"target_duration_seconds"`
	TokenCount            int     `json:"token_count"`
	CharacterCount        int     `json:"character_count"`
	WordCount             int     `json:"word_count"`
	PreviousIndex         int     `json:"previous_index"`
	NextIndex             int     `json:"next_index"`
}

// HasPrevious reports whether the segment has a predecessor.
func (s Segment) HasPrevious() bool { return s.PreviousIndex >= 0 }

// HasNext reports whether the segment has a successor.
func (s Segment) HasNext() bool { return s.NextIndex >= 0 }

// WarningType enumerates segmentation warnings.
type WarningType string

const (
	WarningSegmentTooLong     WarningType = "segment-too-long"
	WarningSegmentTooShort    WarningType = "segment-too-short"
	WarningTokenLimitExceeded WarningType = "token-limit-exceeded"
	WarningEmptySegment       WarningType = "empty-segment"
	WarningFallbackUsed       WarningType = "fallback-used"
	WarningLowConfidence      WarningType = "low-confidence"
	WarningNoSceneMarkers     WarningType = "no-scene-markers"
	WarningAmbiguousFormat    WarningType = "ambiguous-format"
)

const noSegment = -1

// Warning is a non-fatal finding. SegmentIndex is -1 for script-level warnings;
// Length and Limit are populated for size violations.
type Warning struct {
	Type         WarningType `json:"type"`
	SegmentIndex int         `json:"segment_index"`
	Length       int         `json:"length,omitempty"`
	Limit        int         `json:"limit,omitempty"`
	Message      string      `json:"message"`
}

// FallbackReason explains why a strategy was abandoned.
type FallbackReason string

const (
	ReasonNoSceneMarkers    FallbackReason = "no-scene-markers"
	ReasonSingleShortScene  FallbackReason = "single-short-scene"
	ReasonTooManyScenes     FallbackReason = "too-many-scenes"
	ReasonNoParagraphBreaks FallbackReason = "no-paragraph-breaks"
	ReasonNoSentenceBreaks  FallbackReason = "no-sentence-breaks"
)

// Fallback records one step along the strategy chain.
type Fallback struct {
	From   Strategy       `json:"from"`
	To     Strategy       `json:"to"`
	Reason FallbackReason `json:"reason"`
}

// Metadata summarizes a segmentation run.
type Metadata struct {
	Strategy          Strategy      `json:"strategy"`
	RequestedStrategy Strategy      `json:"requested_strategy"`
	ExecutionTime     time.Duration `json:"execution_time"`
	FallbacksApplied  []Fallback    `json:"fallbacks_applied"`
	MergesApplied     int           `json:"merges_applied"`
	Confidence        float64       `json:"confidence"`
	SegmentCount      int           `json:"segment_count"`
	AverageTokenCount float64       `json:"average_token_count"`
}

// Result is the aggregate output of one segmentation run.
type Result struct {
	Segments []Segment `json:"segments"`
	Metadata Metadata  `json:"metadata"`
	Warnings []Warning `json:"warnings"`

	allowEmpty bool
}

// IsValid holds iff there is at least one segment and no segment is empty,
// unless the constraints allowed empty segments.
func (r *Result) IsValid() bool {
	if r == nil || len(r.Segments) == 0 {
		return false
	}
	if r.allowEmpty {
		return true
	}
	for _, seg := range r.Segments {
		if strings.TrimSpace(seg.Text) == "" {
			return false
		}
	}
	return true
}

// HasWarning reports whether any warning of type t was emitted.
func (r *Result) HasWarning(t WarningType) bool {
	return r.CountWarnings(t) > 0
}

// CountWarnings returns the number of warnings of type t.
func (r *Result) CountWarnings(t WarningType) int {
	if r == nil {
		return 0
	}
	n := 0
	for _, w := range r.Warnings {
		if w.Type == t {
			n++
		}
	}
	return n
}

// Previous returns the predecessor of the segment at index i.
func (r *Result) Previous(i int) (Segment, bool) {
	if r == nil || i < 0 || i >= len(r.Segments) {
		return Segment{}, false
	}
	prev := r.Segments[i].PreviousIndex
	if prev < 0 {
		return Segment{}, false
	}
	return r.Segments[prev], true
}
