package segmentation_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"scriptreel/internal/segmentation"
	"scriptreel/internal/services"
	"scriptreel/internal/textutil"
)

func segment(t *testing.T, script string, strategy segmentation.Strategy, c segmentation.Constraints) *segmentation.Result {
	t.Helper()
	result, err := segmentation.NewEngine().Segment(context.Background(), script, strategy, c)
	if err != nil {
		t.Fatalf("Segment returned error: %v", err)
	}
	return result
}

func TestScenarioScenesTwoSegments(t *testing.T) {
	script := "INT. OFFICE - DAY\nJane enters.\n\nEXT. STREET - NIGHT\nRain falls."
	result := segment(t, script, segmentation.StrategyScenes, segmentation.DefaultConstraints())

	if len(result.Segments) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(result.Segments))
	}
	if result.Metadata.Strategy != segmentation.StrategyScenes {
		t.Fatalf("unexpected strategy %q", result.Metadata.Strategy)
	}
	if n := result.CountWarnings(segmentation.WarningFallbackUsed); n != 0 {
		t.Fatalf("expected no fallback warnings, got %d", n)
	}
	if !strings.HasPrefix(result.Segments[1].Text, "EXT. STREET") {
		t.Fatalf("unexpected second segment %q", result.Segments[1].Text)
	}
	if !result.IsValid() {
		t.Fatal("expected valid result")
	}
}

func TestScenarioSingleSentenceFallsBack(t *testing.T) {
	result := segment(t, "Hello.", segmentation.StrategyScenes, segmentation.DefaultConstraints())

	if len(result.Segments) != 1 {
		t.Fatalf("expected 1 segment, got %d", len(result.Segments))
	}
	if result.Metadata.Strategy != segmentation.StrategyParagraphs {
		t.Fatalf("expected fallback to paragraphs, got %q", result.Metadata.Strategy)
	}
	if !result.HasWarning(segmentation.WarningNoSceneMarkers) {
		t.Fatal("expected no-scene-markers warning")
	}
	if !result.HasWarning(segmentation.WarningFallbackUsed) {
		t.Fatal("expected fallback-used warning")
	}
	want := []segmentation.Fallback{{From: segmentation.StrategyScenes, To: segmentation.StrategyParagraphs, Reason: segmentation.ReasonNoSceneMarkers}}
	if diff := cmp.Diff(want, result.Metadata.FallbacksApplied); diff != "" {
		t.Fatalf("fallbacks mismatch (-want +got):\n%s", diff)
	}
}

func TestScenarioHybridMergesToMaxSegments(t *testing.T) {
	paragraphs := make([]string, 25)
	for i := range paragraphs {
		paragraphs[i] = fmt.Sprintf("Paragraph %d describes%s a moment.", i, strings.Repeat(" very", i%4))
	}
	c := segmentation.DefaultConstraints()
	c.MaxSegments = 20
	result := segment(t, strings.Join(paragraphs, "\n\n"), segmentation.StrategyHybrid, c)

	if len(result.Segments) > 20 {
		t.Fatalf("expected at most 20 segments, got %d", len(result.Segments))
	}
	if result.Metadata.MergesApplied != 5 {
		t.Fatalf("expected 5 merges, got %d", result.Metadata.MergesApplied)
	}

	next := 0
	for _, seg := range result.Segments {
		var parts []string
		for next < len(paragraphs) && len(strings.Join(append(parts, paragraphs[next]), " ")) <= len(seg.Text) {
			parts = append(parts, paragraphs[next])
			next++
		}
		if got := strings.Join(parts, " "); got != seg.Text {
			t.Fatalf("segment %d is not a space-joined run of originals: %q vs %q", seg.OrderIndex, seg.Text, got)
		}
	}
	if next != len(paragraphs) {
		t.Fatalf("consumed %d of %d paragraphs", next, len(paragraphs))
	}
}

func TestHybridUsesScenesWhenTheyFit(t *testing.T) {
	script := "INT. LAB - DAY\nMachines hum softly.\n\nINT. HALL - DAY\nFootsteps echo away."
	result := segment(t, script, segmentation.StrategyHybrid, segmentation.DefaultConstraints())
	if result.Metadata.Strategy != segmentation.StrategyScenes {
		t.Fatalf("expected scenes, got %q", result.Metadata.Strategy)
	}
	if result.Metadata.RequestedStrategy != segmentation.StrategyHybrid {
		t.Fatalf("expected requested hybrid, got %q", result.Metadata.RequestedStrategy)
	}
	if len(result.Metadata.FallbacksApplied) != 0 {
		t.Fatalf("unexpected fallbacks: %+v", result.Metadata.FallbacksApplied)
	}
}

func TestHybridTooManyScenesFallsBackAndMerges(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 8; i++ {
		fmt.Fprintf(&b, "SCENE %d\nSomething happens in scene %d.\n\n", i+1, i+1)
	}
	c := segmentation.DefaultConstraints()
	c.MaxSegments = 3
	result := segment(t, b.String(), segmentation.StrategyHybrid, c)
	if len(result.Segments) > 3 {
		t.Fatalf("expected at most 3 segments, got %d", len(result.Segments))
	}
	if got := result.Metadata.FallbacksApplied[0].Reason; got != segmentation.ReasonTooManyScenes {
		t.Fatalf("unexpected fallback reason %q", got)
	}
}

func TestHybridNeverExceedsMaxSegments(t *testing.T) {
	scripts := []string{
		strings.Repeat("Short line.\n\n", 200),
		strings.Repeat("INT. ROOM\nA beat passes here.\n", 60),
		strings.Repeat("word ", 2000),
		"One. Two. Three. Four. Five. Six. Seven.",
	}
	for _, max := range []int{1, 3, 20} {
		c := segmentation.DefaultConstraints()
		c.MaxSegments = max
		for i, script := range scripts {
			result := segment(t, script, segmentation.StrategyHybrid, c)
			if len(result.Segments) == 0 || len(result.Segments) > max {
				t.Fatalf("script %d max %d: got %d segments", i, max, len(result.Segments))
			}
		}
	}
}

func TestSegmentationIsDeterministic(t *testing.T) {
	script := strings.Repeat("The door creaks open. A shadow moves! Who is there?\n\n", 30)
	for _, strategy := range segmentation.Strategies() {
		first := segment(t, script, strategy, segmentation.DefaultConstraints())
		second := segment(t, script, strategy, segmentation.DefaultConstraints())
		if diff := cmp.Diff(first.Segments, second.Segments); diff != "" {
			t.Fatalf("%s: segments differ (-first +second):\n%s", strategy, diff)
		}
		if diff := cmp.Diff(first.Warnings, second.Warnings); diff != "" {
			t.Fatalf("%s: warnings differ:\n%s", strategy, diff)
		}
		if diff := cmp.Diff(first.Metadata, second.Metadata, cmpopts.IgnoreFields(segmentation.Metadata{}, "ExecutionTime")); diff != "" {
			t.Fatalf("%s: metadata differs:\n%s", strategy, diff)
		}
	}
}

func TestEveryStrategyProducesNonEmptySegments(t *testing.T) {
	scripts := []string{
		"Hello.",
		"x",
		"INT. A\nB",
		strings.Repeat("no punctuation at all ", 80),
		"Line one\nLine two\nLine three",
	}
	for _, strategy := range segmentation.Strategies() {
		for _, script := range scripts {
			result := segment(t, script, strategy, segmentation.DefaultConstraints())
			if len(result.Segments) == 0 {
				t.Fatalf("%s on %q: no segments", strategy, script)
			}
			for _, seg := range result.Segments {
				if strings.TrimSpace(seg.Text) == "" {
					t.Fatalf("%s on %q: empty segment", strategy, script)
				}
			}
		}
	}
}

func TestLinksAreIndices(t *testing.T) {
	script := "Para one is here.\n\nPara two is here.\n\nPara three is here."
	result := segment(t, script, segmentation.StrategyParagraphs, segmentation.DefaultConstraints())
	if len(result.Segments) != 3 {
		t.Fatalf("expected 3 segments, got %d", len(result.Segments))
	}
	first, mid, last := result.Segments[0], result.Segments[1], result.Segments[2]
	if first.HasPrevious() || first.NextIndex != 1 {
		t.Fatalf("unexpected first links: %+v", first)
	}
	if mid.PreviousIndex != 0 || mid.NextIndex != 2 {
		t.Fatalf("unexpected middle links: %+v", mid)
	}
	if last.HasNext() || last.PreviousIndex != 1 {
		t.Fatalf("unexpected last links: %+v", last)
	}
	prev, ok := result.Previous(2)
	if !ok || prev.ID != mid.ID {
		t.Fatalf("Previous(2) = %+v, %v", prev, ok)
	}
	if mid.WordCount != 4 || mid.CharacterCount != len("Para two is here.") {
		t.Fatalf("unexpected counts: %+v", mid)
	}
}

func TestTokenLimitTruncates(t *testing.T) {
	c := segmentation.DefaultConstraints()
	c.MaxTokensPerSegment = 10
	result := segment(t, strings.Repeat("rain ", 60), segmentation.StrategyParagraphs, c)
	seg := result.Segments[0]
	if !strings.HasSuffix(seg.Text, textutil.Ellipsis) {
		t.Fatalf("expected ellipsis, got %q", seg.Text)
	}
	if seg.TokenCount > 10 {
		t.Fatalf("token count %d exceeds limit", seg.TokenCount)
	}
	if !result.HasWarning(segmentation.WarningTokenLimitExceeded) {
		t.Fatal("expected token-limit-exceeded warning")
	}
}

func TestLengthWarningsCarryFields(t *testing.T) {
	c := segmentation.DefaultConstraints()
	c.MaxSegmentLength = 20
	c.EnforceTokenLimits = false
	result := segment(t, "This paragraph is clearly longer than twenty characters.\n\nShort one here.", segmentation.StrategyParagraphs, c)
	var found bool
	for _, w := range result.Warnings {
		if w.Type == segmentation.WarningSegmentTooLong {
			found = true
			if w.SegmentIndex != 0 || w.Limit != 20 || w.Length <= 20 {
				t.Fatalf("unexpected warning fields: %+v", w)
			}
		}
	}
	if !found {
		t.Fatal("expected segment-too-long warning")
	}
}

func TestConfidenceScoring(t *testing.T) {
	scenes := segment(t, "INT. OFFICE - DAY\nJane enters.\n\nEXT. STREET - NIGHT\nRain falls.", segmentation.StrategyScenes, segmentation.DefaultConstraints())
	if got := scenes.Metadata.Confidence; got != 1.0 {
		t.Fatalf("expected confidence 1.0 for clean scenes, got %v", got)
	}

	fallback := segment(t, "Hello.", segmentation.StrategyScenes, segmentation.DefaultConstraints())
	// one fallback, three warnings (no markers, fallback, too short), one segment
	want := 1.0 - 0.15 - 3*0.05 - 0.10
	if got := fallback.Metadata.Confidence; got < want-1e-9 || got > want+1e-9 {
		t.Fatalf("expected confidence %.2f, got %v", want, got)
	}
	if fallback.HasWarning(segmentation.WarningLowConfidence) {
		t.Fatal("0.60 should not be flagged as low confidence")
	}

	w := segmentation.DefaultConfidenceWeights()
	if got := w.Score(10, 10, 1, false); got != 0 {
		t.Fatalf("expected clamp to 0, got %v", got)
	}
	if !w.NeedsReview(0.59) {
		t.Fatal("0.59 should need review")
	}
}

func TestEmptyScriptIsValidationError(t *testing.T) {
	_, err := segmentation.NewEngine().Segment(context.Background(), " \n\t ", segmentation.StrategyHybrid, segmentation.DefaultConstraints())
	if !errors.Is(err, segmentation.ErrEmptyScript) {
		t.Fatalf("expected ErrEmptyScript, got %v", err)
	}
	var verr *services.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	if services.Retryable(err) {
		t.Fatal("validation errors must not be retryable")
	}
}

func TestMalformedConstraints(t *testing.T) {
	c := segmentation.DefaultConstraints()
	c.MinSegmentLength = 1000
	_, err := segmentation.NewEngine().Segment(context.Background(), "text", segmentation.StrategyHybrid, c)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := segmentation.NewEngine().Segment(ctx, "Some text here.", segmentation.StrategyHybrid, segmentation.DefaultConstraints())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestParseStrategy(t *testing.T) {
	cases := map[string]segmentation.Strategy{
		"byScenes":      segmentation.StrategyScenes,
		"by-paragraphs": segmentation.StrategyParagraphs,
		"sentences":     segmentation.StrategySentences,
		"BY_DURATION":   segmentation.StrategyDuration,
		"hybrid":        segmentation.StrategyHybrid,
	}
	for in, want := range cases {
		got, err := segmentation.ParseStrategy(in)
		if err != nil || got != want {
			t.Fatalf("ParseStrategy(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := segmentation.ParseStrategy("by-vibes"); err == nil {
		t.Fatal("expected error for unknown strategy")
	}
}

func TestDurationStrategyChunksWords(t *testing.T) {
	script := "one two three four five six seven eight nine ten eleven twelve thirteen fourteen fifteen sixteen"
	result := segment(t, script, segmentation.StrategyDuration, segmentation.DefaultConstraints())
	if len(result.Segments) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(result.Segments))
	}
	if result.Segments[0].WordCount != 8 {
		t.Fatalf("expected 8 words per chunk, got %d", result.Segments[0].WordCount)
	}
}

func TestParagraphWithoutBreaksFallsToSentences(t *testing.T) {
	script := strings.Repeat("A long sentence that keeps going on and on. ", 20)
	result := segment(t, script, segmentation.StrategyParagraphs, segmentation.DefaultConstraints())
	if result.Metadata.Strategy != segmentation.StrategySentences {
		t.Fatalf("expected sentences, got %q", result.Metadata.Strategy)
	}
	if len(result.Segments) != 20 {
		t.Fatalf("expected 20 sentences, got %d", len(result.Segments))
	}
}
