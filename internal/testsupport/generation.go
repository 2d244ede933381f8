package testsupport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"scriptreel/internal/generation"
)

// FakeGenerator is a scriptable in-memory generation.Client.
//
// By default every submission succeeds, each job reports pending PendingPolls
// times before succeeding, and downloads return "clip:" plus the prompt.
type FakeGenerator struct {
	// PendingPolls is how many pending statuses a job reports before it succeeds.
	PendingPolls int
	// SubmitErr, when set, is consulted before every submission. call counts from 1
	// across all submissions of the same prompt.
	SubmitErr func(req generation.SubmitRequest, call int) error
	// PollResult, when set, replaces the default status progression.
	PollResult func(job FakeJob, poll int) (generation.Status, error)
	// DownloadErr, when set, is consulted before every download.
	DownloadErr func(url string) error
	// Gate, when non-nil, blocks every Submit until it is closed or ctx ends.
	Gate chan struct{}

	mu        sync.Mutex
	nextID    int
	jobs      map[string]*FakeJob
	submits   []generation.SubmitRequest
	perPrompt map[string]int
	polls     int
	downloads int
}

// FakeJob is the fake's view of a submitted job.
type FakeJob struct {
	ID      string
	Request generation.SubmitRequest
	Polls   int
}

// NewFakeGenerator returns a generator whose jobs succeed on the first poll.
func NewFakeGenerator() *FakeGenerator {
	return &FakeGenerator{}
}

func (f *FakeGenerator) Submit(ctx context.Context, req generation.SubmitRequest) (generation.JobHandle, error) {
	if f.Gate != nil {
		select {
		case <-f.Gate:
		case <-ctx.Done():
			return generation.JobHandle{}, ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return generation.JobHandle{}, err
	}
	f.mu.Lock()
	if f.jobs == nil {
		f.jobs = make(map[string]*FakeJob)
		f.perPrompt = make(map[string]int)
	}
	f.submits = append(f.submits, req)
	f.perPrompt[req.Prompt]++
	call := f.perPrompt[req.Prompt]
	hook := f.SubmitErr
	f.mu.Unlock()

	if hook != nil {
		if err := hook(req, call); err != nil {
			return generation.JobHandle{}, err
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := fmt.Sprintf("job-%d", f.nextID)
	f.jobs[id] = &FakeJob{ID: id, Request: req}
	return generation.JobHandle{ID: id, SubmittedAt: time.Now()}, nil
}

func (f *FakeGenerator) PollStatus(ctx context.Context, handle generation.JobHandle) (generation.Status, error) {
	if err := ctx.Err(); err != nil {
		return generation.Status{}, err
	}
	f.mu.Lock()
	f.polls++
	job, ok := f.jobs[handle.ID]
	if !ok {
		f.mu.Unlock()
		return generation.Status{}, fmt.Errorf("unknown job %s", handle.ID)
	}
	job.Polls++
	snapshot := *job
	hook := f.PollResult
	pending := f.PendingPolls
	f.mu.Unlock()

	if hook != nil {
		return hook(snapshot, snapshot.Polls)
	}
	if snapshot.Polls <= pending {
		return generation.Status{State: generation.StatePending}, nil
	}
	return generation.Status{State: generation.StateSucceeded, AssetURL: "mem://" + handle.ID}, nil
}

func (f *FakeGenerator) Download(ctx context.Context, url string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.downloads++
	hook := f.DownloadErr
	var prompt string
	const prefix = "mem://"
	if len(url) > len(prefix) {
		if job, ok := f.jobs[url[len(prefix):]]; ok {
			prompt = job.Request.Prompt
		}
	}
	f.mu.Unlock()

	if hook != nil {
		if err := hook(url); err != nil {
			return nil, err
		}
	}
	return []byte("clip:" + prompt), nil
}

// Submits returns every submission in arrival order.
func (f *FakeGenerator) Submits() []generation.SubmitRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]generation.SubmitRequest, len(f.submits))
	copy(out, f.submits)
	return out
}

// Calls reports how many submit, poll, and download calls were made.
func (f *FakeGenerator) Calls() (submits, polls, downloads int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.submits), f.polls, f.downloads
}

// Clock is a manually advanced time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock starts a clock at a fixed instant.
func NewClock() *Clock {
	return &Clock{now: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Sleeper returns a sleep function that advances the clock instead of blocking and
// records every requested delay.
func (c *Clock) Sleeper(record *[]time.Duration) func(context.Context, time.Duration) error {
	var mu sync.Mutex
	return func(ctx context.Context, d time.Duration) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if record != nil {
			mu.Lock()
			*record = append(*record, d)
			mu.Unlock()
		}
		c.Advance(d)
		return nil
	}
}
