package generation

import (
	"context"
	"time"
)

// State is the coarse job state reported by the service.
type State string

const (
	StatePending   State = "pending"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
)

// SubmitRequest is one clip generation request.
type SubmitRequest struct {
	Prompt          string
	DurationSeconds float64
	// SeedImage is an optional JPEG the clip should continue from. ContinuityNote is
	// appended to the prompt only when a seed is attached.
	SeedImage      []byte
	ContinuityNote string
}

// JobHandle identifies a submitted job.
type JobHandle struct {
	ID          string
	SubmittedAt time.Time
}

// Status is the result of one poll.
type Status struct {
	State    State
	AssetURL string
	Reason   string
	// Retryable is set for failed jobs the service reports as worth resubmitting.
	Retryable bool
}

// Client is the generation capability.
type Client interface {
	Submit(ctx context.Context, req SubmitRequest) (JobHandle, error)
	PollStatus(ctx context.Context, handle JobHandle) (Status, error)
	Download(ctx context.Context, assetURL string) ([]byte, error)
}
