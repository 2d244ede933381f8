package segmentation

// ConfidenceWeights tunes the advisory confidence score.
type ConfidenceWeights struct {
	FallbackPenalty float64
	WarningPenalty  float64
	SceneBonus      float64
	FewSegments     int
	FewPenalty      float64
	ManySegments    int
	ManyPenalty     float64
	ReviewThreshold float64
}

// DefaultConfidenceWeights returns the stock heuristic weights.
func DefaultConfidenceWeights() ConfidenceWeights {
	return ConfidenceWeights{
		FallbackPenalty: 0.15,
		WarningPenalty:  0.05,
		SceneBonus:      0.10,
		FewSegments:     3,
		FewPenalty:      0.10,
		ManySegments:    15,
		ManyPenalty:     0.05,
		ReviewThreshold: 0.6,
	}
}

// Score computes a confidence in [0, 1]. sceneNoFallback is true when the
// final strategy was scene detection and no fallback was taken.
func (w ConfidenceWeights) Score(fallbacks, warnings, segments int, sceneNoFallback bool) float64 {
	score := 1.0
	score -= w.FallbackPenalty * float64(fallbacks)
	score -= w.WarningPenalty * float64(warnings)
	if sceneNoFallback {
		score += w.SceneBonus
	}
	if segments < w.FewSegments {
		score -= w.FewPenalty
	}
	if segments > w.ManySegments {
		score -= w.ManyPenalty
	}
	switch {
	case score < 0:
		return 0
	case score > 1:
		return 1
	default:
		return score
	}
}

// NeedsReview reports whether score falls below the review threshold.
func (w ConfidenceWeights) NeedsReview(score float64) bool {
	return score < w.ReviewThreshold
}
