package orchestrator

import (
	"fmt"
	"time"
)

// State is a generation job lifecycle state.
type State string

const (
	StatePending         State = "pending"
	StateCacheLookup     State = "cache-lookup"
	StateSubmitting      State = "submitting"
	StatePolling         State = "polling"
	StateDownloading     State = "downloading"
	StateFinalizing      State = "finalizing"
	StateRetryWait       State = "retry-wait"
	StateCompleted       State = "completed"
	StateFailedPermanent State = "failed-permanent"
)

// Terminal reports whether no further transitions are allowed from s.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailedPermanent
}

// transitions lists the allowed edges. Every non-terminal state may also move to
// failed-permanent so cancellation can end a job wherever it is.
var transitions = map[State][]State{
	StatePending:     {StateCacheLookup},
	StateCacheLookup: {StateCompleted, StateSubmitting},
	StateSubmitting:  {StatePolling, StateRetryWait},
	StatePolling:     {StatePolling, StateDownloading, StateRetryWait},
	StateDownloading: {StateFinalizing, StateRetryWait},
	StateFinalizing:  {StateCompleted},
	StateRetryWait:   {StateSubmitting},
}

// CanTransition reports whether from -> to is a legal edge.
func CanTransition(from, to State) bool {
	if from.Terminal() {
		return false
	}
	if to == StateFailedPermanent {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition records one state change.
type Transition struct {
	From State
	To   State
	At   time.Time
}

// Job tracks one segment through generation. A job is owned by a single worker;
// successors only read it after its completion signal fires.
type Job struct {
	SegmentID            string
	SegmentIndex         int
	Fingerprint          string
	State                State
	AttemptCount         int
	LastError            error
	ResultAssetLocalPath string
	RemoteURL            string
	CacheHit             bool
	Coalesced            bool
	Enhanced             bool
	Seeded               bool
	Cost                 float64
	StartedAt            time.Time
	FinishedAt           time.Time

	history []Transition
}

func newJob(id string, index int, now time.Time) *Job {
	return &Job{
		SegmentID:    id,
		SegmentIndex: index,
		State:        StatePending,
		StartedAt:    now,
	}
}

// History returns a copy of the recorded transitions.
func (j *Job) History() []Transition {
	out := make([]Transition, len(j.history))
	copy(out, j.history)
	return out
}

func (j *Job) transition(to State, now time.Time) error {
	if j.State.Terminal() {
		return fmt.Errorf("job %d: %s is terminal, cannot move to %s", j.SegmentIndex, j.State, to)
	}
	if !CanTransition(j.State, to) {
		return fmt.Errorf("job %d: invalid transition %s -> %s", j.SegmentIndex, j.State, to)
	}
	j.history = append(j.history, Transition{From: j.State, To: to, At: now})
	j.State = to
	if to.Terminal() {
		j.FinishedAt = now
	}
	return nil
}
