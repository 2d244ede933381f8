package queue_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"scriptreel/internal/credits"
	"scriptreel/internal/queue"
	"scriptreel/internal/segmentation"
	"scriptreel/internal/services"
	"scriptreel/internal/testsupport"
)

func sampleSegments() []segmentation.Segment {
	return []segmentation.Segment{
		{ID: "a", OrderIndex: 0, Text: "a lighthouse", TargetDurationSeconds: 5, TokenCount: 3, CharacterCount: 12, WordCount: 2, PreviousIndex: -1, NextIndex: 1},
		{ID: "b", OrderIndex: 1, Text: "the storm", TargetDurationSeconds: 5, TokenCount: 3, CharacterCount: 9, WordCount: 2, PreviousIndex: 0, NextIndex: 2},
		{ID: "c", OrderIndex: 2, Text: "morning calm", TargetDurationSeconds: 10, TokenCount: 3, CharacterCount: 12, WordCount: 2, PreviousIndex: 1, NextIndex: -1},
	}
}

func TestCreateRunAndSegmentsRoundTrip(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	run := testsupport.NewRun(t, store, "/scripts/reel.txt")
	if run.ID == "" || run.Status != queue.RunPending || run.ScriptPath != "/scripts/reel.txt" {
		t.Fatalf("run = %+v", run)
	}
	if err := store.SaveSegments(ctx, run.ID, sampleSegments()); err != nil {
		t.Fatalf("SaveSegments: %v", err)
	}
	got, err := store.LoadSegments(ctx, run.ID)
	if err != nil {
		t.Fatalf("LoadSegments: %v", err)
	}
	if diff := cmp.Diff(sampleSegments(), got); diff != "" {
		t.Fatalf("segments (-want +got):\n%s", diff)
	}
	fetched, err := store.GetRun(ctx, run.ID)
	if err != nil || fetched.SegmentCount != 3 {
		t.Fatalf("GetRun = %+v, %v", fetched, err)
	}
}

func TestGetRunMissingReturnsNil(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	run, err := store.GetRun(context.Background(), "nope")
	if err != nil || run != nil {
		t.Fatalf("GetRun = %+v, %v", run, err)
	}
	if err := store.FinishRun(context.Background(), "nope", queue.RunCompleted, ""); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("FinishRun err = %v", err)
	}
}

func TestFindRunByPrefix(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	run := testsupport.NewRun(t, store, "")
	found, err := store.FindRun(context.Background(), run.ID[:8])
	if err != nil || found == nil || found.ID != run.ID {
		t.Fatalf("FindRun = %+v, %v", found, err)
	}
	found, err = store.FindRun(context.Background(), "ab")
	if err != nil || found != nil {
		t.Fatalf("short prefix = %+v, %v", found, err)
	}
}

func TestRecordOutcomeUpsertsAndTracksFailures(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	run := testsupport.NewRun(t, store, "")
	if err := store.SaveSegments(ctx, run.ID, sampleSegments()); err != nil {
		t.Fatalf("SaveSegments: %v", err)
	}

	records := []queue.JobRecord{
		{RunID: run.ID, Index: 0, SegmentID: "a", Fingerprint: "fp0", State: queue.JobCompleted, AttemptCount: 1, AssetPath: "/clips/0.mp4", Cost: 5},
		{RunID: run.ID, Index: 1, SegmentID: "b", Fingerprint: "fp1", State: queue.JobFailed, AttemptCount: 4, LastError: "503", ErrorKind: services.KindTransient, Cost: 5},
	}
	for _, rec := range records {
		if err := store.RecordOutcome(ctx, rec); err != nil {
			t.Fatalf("RecordOutcome: %v", err)
		}
	}
	failed, err := store.FailedIndices(ctx, run.ID)
	if err != nil {
		t.Fatalf("FailedIndices: %v", err)
	}
	if diff := cmp.Diff([]int{1, 2}, failed); diff != "" {
		t.Fatalf("failed (-want +got):\n%s", diff)
	}

	retry := queue.JobRecord{RunID: run.ID, Index: 1, SegmentID: "b", Fingerprint: "fp1", State: queue.JobCompleted, AttemptCount: 1, AssetPath: "/clips/1.mp4", Cost: 5}
	if err := store.RecordOutcome(ctx, retry); err != nil {
		t.Fatalf("RecordOutcome retry: %v", err)
	}
	jobs, err := store.Jobs(ctx, run.ID)
	if err != nil {
		t.Fatalf("Jobs: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("jobs = %d", len(jobs))
	}
	if got := jobs[1]; !got.Succeeded() || got.LastError != "" || got.ErrorKind != "" || got.Cost != 10 {
		t.Fatalf("retried job = %+v", got)
	}
}

func TestRecordOutcomeValidates(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	err := store.RecordOutcome(context.Background(), queue.JobRecord{State: queue.JobCompleted})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("err = %v", err)
	}
}

func TestFinalStatus(t *testing.T) {
	cases := []struct {
		total, failed int
		canceled      bool
		want          queue.RunStatus
	}{
		{3, 0, false, queue.RunCompleted},
		{3, 1, false, queue.RunPartial},
		{3, 3, false, queue.RunFailed},
		{3, 1, true, queue.RunCanceled},
	}
	for _, tc := range cases {
		if got := queue.FinalStatus(tc.total, tc.failed, tc.canceled); got != tc.want {
			t.Errorf("FinalStatus(%d, %d, %v) = %s, want %s", tc.total, tc.failed, tc.canceled, got, tc.want)
		}
	}
}

func TestListRunsAndHealth(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	first := testsupport.NewRun(t, store, "one.txt")
	second := testsupport.NewRun(t, store, "two.txt")
	if err := store.FinishRun(ctx, first.ID, queue.RunCompleted, ""); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}
	if err := store.FinishRun(ctx, second.ID, queue.RunPartial, "1 of 3 segments failed"); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}

	runs, err := store.ListRuns(ctx, 0)
	if err != nil || len(runs) != 2 {
		t.Fatalf("ListRuns = %+v, %v", runs, err)
	}
	limited, err := store.ListRuns(ctx, 1)
	if err != nil || len(limited) != 1 {
		t.Fatalf("ListRuns(1) = %+v, %v", limited, err)
	}

	health, err := store.Health(ctx)
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if diff := cmp.Diff(queue.HealthSummary{Runs: 2, Completed: 1, Partial: 1}, health); diff != "" {
		t.Fatalf("health (-want +got):\n%s", diff)
	}

	db, err := store.CheckHealth(ctx)
	if err != nil {
		t.Fatalf("CheckHealth: %v", err)
	}
	if !db.DatabaseExists || !db.DatabaseReadable || !db.IntegrityCheck || len(db.MissingTables) != 0 || db.TotalRuns != 2 {
		t.Fatalf("database health = %+v", db)
	}
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")
	ctx := context.Background()
	store, err := queue.OpenPath(ctx, path)
	if err != nil {
		t.Fatalf("OpenPath: %v", err)
	}
	run, err := store.CreateRun(ctx, queue.NewRun{Strategy: "scenes"})
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := queue.OpenPath(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	got, err := reopened.GetRun(ctx, run.ID)
	if err != nil || got == nil || got.Strategy != "scenes" {
		t.Fatalf("GetRun after reopen = %+v, %v", got, err)
	}
}

func TestLedgerChargesAtomically(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	ledger, err := store.Ledger(ctx, 20)
	if err != nil {
		t.Fatalf("Ledger: %v", err)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	var failures int
	for range 6 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := ledger.Charge(ctx, 5, "segment"); err != nil {
				if !errors.Is(err, services.ErrQuota) {
					t.Errorf("Charge: %v", err)
				}
				mu.Lock()
				failures++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if failures != 2 {
		t.Fatalf("failures = %d, want 2", failures)
	}
	balance, err := ledger.Balance(ctx)
	if err != nil || balance != 0 {
		t.Fatalf("Balance = %v, %v", balance, err)
	}
	charges, err := ledger.Charges(ctx)
	if err != nil || len(charges) != 4 {
		t.Fatalf("charges = %+v, %v", charges, err)
	}

	again, err := store.Ledger(ctx, 100)
	if err != nil {
		t.Fatalf("Ledger reseed: %v", err)
	}
	if balance, _ := again.Balance(ctx); balance != 0 {
		t.Fatalf("reseed changed balance to %v", balance)
	}
	var quota *services.QuotaOrCreditError
	if err := again.Charge(ctx, 1.5, "x"); !errors.As(err, &quota) || quota.Required != 1.5 {
		t.Fatalf("Charge on empty ledger = %v", err)
	}
	var _ credits.Ledger = again
}
