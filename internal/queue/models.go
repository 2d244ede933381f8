package queue

import "time"

// RunStatus represents the lifecycle of a generation run.
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunPartial   RunStatus = "partial"
	RunFailed    RunStatus = "failed"
	RunCanceled  RunStatus = "canceled"
)

// Terminal job states as persisted by RecordOutcome.
const (
	JobCompleted = "completed"
	JobFailed    = "failed-permanent"
)

// FinalStatus derives the run status from its job counts.
func FinalStatus(total, failed int, canceled bool) RunStatus {
	switch {
	case canceled:
		return RunCanceled
	case failed == 0:
		return RunCompleted
	case failed < total:
		return RunPartial
	default:
		return RunFailed
	}
}

// Run is one segmentation + generation pass over a script.
type Run struct {
	ID           string
	ScriptPath   string
	Strategy     string
	Status       RunStatus
	SegmentCount int
	Confidence   float64
	NeedsReview  bool
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewRun describes a run to create.
type NewRun struct {
	ScriptPath  string
	Strategy    string
	Confidence  float64
	NeedsReview bool
}

// JobRecord is the persisted terminal outcome of one segment.
type JobRecord struct {
	RunID        string
	Index        int
	SegmentID    string
	Fingerprint  string
	State        string
	AttemptCount int
	LastError    string
	ErrorKind    string
	AssetPath    string
	RemoteURL    string
	CacheHit     bool
	Cost         float64
	UpdatedAt    time.Time
}

// Succeeded reports whether the job produced a clip.
func (j JobRecord) Succeeded() bool { return j.State == JobCompleted }

// HealthSummary aggregates run and job counts.
type HealthSummary struct {
	Runs       int
	Running    int
	Completed  int
	Partial    int
	Failed     int
	Jobs       int
	FailedJobs int
}

// DatabaseHealth captures diagnostic information about the run database.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	TablesPresent    []string
	MissingTables    []string
	IntegrityCheck   bool
	TotalRuns        int
	Error            string
}
