package orchestrator

import (
	"time"

	"scriptreel/internal/services"
)

// Outcome is the terminal view of one job.
type Outcome struct {
	SegmentID    string
	SegmentIndex int
	State        State
	Fingerprint  string
	AssetPath    string
	RemoteURL    string
	CacheHit     bool
	Coalesced    bool
	Enhanced     bool
	Seeded       bool
	Attempts     int
	Cost         float64
	Err          error
	ErrorKind    string
	Duration     time.Duration
}

// Succeeded reports whether the job completed.
func (o Outcome) Succeeded() bool { return o.State == StateCompleted }

func outcomeFromJob(j *Job) Outcome {
	out := Outcome{
		SegmentID:    j.SegmentID,
		SegmentIndex: j.SegmentIndex,
		State:        j.State,
		Fingerprint:  j.Fingerprint,
		AssetPath:    j.ResultAssetLocalPath,
		RemoteURL:    j.RemoteURL,
		CacheHit:     j.CacheHit,
		Coalesced:    j.Coalesced,
		Enhanced:     j.Enhanced,
		Seeded:       j.Seeded,
		Attempts:     j.AttemptCount,
		Cost:         j.Cost,
		Err:          j.LastError,
	}
	if j.State == StateFailedPermanent {
		out.ErrorKind = services.Kind(j.LastError)
	}
	if !j.FinishedAt.IsZero() {
		out.Duration = j.FinishedAt.Sub(j.StartedAt)
	}
	return out
}

// Summary aggregates a batch.
type Summary struct {
	Total     int
	CacheHits int
	Generated int
	Failed    int
	Duration  time.Duration
}

// BatchResult holds outcomes in segment order.
type BatchResult struct {
	Outcomes []Outcome
	Summary  Summary
}

// FailedIndices returns the order indices of failed segments, ascending.
func (r *BatchResult) FailedIndices() []int {
	if r == nil {
		return nil
	}
	var out []int
	for _, o := range r.Outcomes {
		if !o.Succeeded() {
			out = append(out, o.SegmentIndex)
		}
	}
	return out
}

// Succeeded reports whether every segment completed.
func (r *BatchResult) Succeeded() bool {
	return r != nil && r.Summary.Failed == 0
}

func summarize(outcomes []Outcome, elapsed time.Duration) Summary {
	s := Summary{Total: len(outcomes), Duration: elapsed}
	for _, o := range outcomes {
		switch {
		case !o.Succeeded():
			s.Failed++
		case o.CacheHit:
			s.CacheHits++
		default:
			s.Generated++
		}
	}
	return s
}

// Progress reports a single job transition.
type Progress struct {
	SegmentID    string
	SegmentIndex int
	From         State
	To           State
	Attempt      int
	Elapsed      time.Duration
	Err          error
}

// ProgressFunc receives transitions. Calls are serialized.
type ProgressFunc func(Progress)
