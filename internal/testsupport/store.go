package testsupport

import (
	"context"
	"testing"

	"scriptreel/internal/config"
	"scriptreel/internal/queue"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewRun creates a pending run for tests using the provided store.
func NewRun(t testing.TB, store *queue.Store, scriptPath string) *queue.Run {
	t.Helper()

	run, err := store.CreateRun(context.Background(), queue.NewRun{ScriptPath: scriptPath, Strategy: "hybrid"})
	if err != nil {
		t.Fatalf("store.CreateRun: %v", err)
	}
	return run
}
