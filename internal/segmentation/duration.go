package segmentation

import "math"

// DurationPlanner assigns clip durations from narration length.
type DurationPlanner struct {
	SecondsPerWord float64
	MinSeconds     float64
	MaxSeconds     float64
	// Allowed lists the durations the generation service accepts, ascending.
	// When empty, estimates are used as-is.
	Allowed []float64
}

// DefaultDurationPlanner returns a planner tuned for ~160 words per minute.
func DefaultDurationPlanner() DurationPlanner {
	return DurationPlanner{SecondsPerWord: 0.375, MinSeconds: 2, MaxSeconds: 10}
}

// Estimate returns the clamped narration time for words.
func (p DurationPlanner) Estimate(words int) float64 {
	seconds := float64(words) * p.SecondsPerWord
	if p.MinSeconds > 0 && seconds < p.MinSeconds {
		seconds = p.MinSeconds
	}
	if p.MaxSeconds > 0 && seconds > p.MaxSeconds {
		seconds = p.MaxSeconds
	}
	return math.Round(seconds*100) / 100
}

// Snap returns the shortest allowed duration that fits seconds, or the longest
// allowed duration when none does.
func (p DurationPlanner) Snap(seconds float64) float64 {
	if len(p.Allowed) == 0 {
		return seconds
	}
	for _, allowed := range p.Allowed {
		if allowed >= seconds {
			return allowed
		}
	}
	return p.Allowed[len(p.Allowed)-1]
}

// Apply returns a copy of segments with TargetDurationSeconds planned and snapped.
func (p DurationPlanner) Apply(segments []Segment) []Segment {
	out := make([]Segment, len(segments))
	for i, seg := range segments {
		seg.TargetDurationSeconds = p.Snap(p.Estimate(seg.WordCount))
		out[i] = seg
	}
	return out
}
