package notifications_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"scriptreel/internal/config"
	"scriptreel/internal/notifications"
)

type captured struct {
	title, message, tags, priority string
}

func newServer(t *testing.T) (*httptest.Server, func() []captured) {
	t.Helper()
	var (
		mu   sync.Mutex
		reqs []captured
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		reqs = append(reqs, captured{
			title:    r.Header.Get("Title"),
			message:  string(body),
			tags:     r.Header.Get("Tags"),
			priority: r.Header.Get("Priority"),
		})
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)
	return server, func() []captured {
		mu.Lock()
		defer mu.Unlock()
		return append([]captured(nil), reqs...)
	}
}

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	svc := notifications.NewService(&cfg)
	if err := svc.NotifyBatchStarted(context.Background(), "run", 3); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

func TestNtfyServiceFormatsPayloads(t *testing.T) {
	server, requests := newServer(t)
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	svc := notifications.NewService(&cfg)
	ctx := context.Background()

	if err := svc.NotifyBatchStarted(ctx, "0123456789abcdef", 4); err != nil {
		t.Fatalf("NotifyBatchStarted: %v", err)
	}
	if err := svc.NotifyBatchCompleted(ctx, notifications.BatchSummary{RunID: "0123456789abcdef", Generated: 3, CacheHits: 1, Duration: 90 * time.Second}); err != nil {
		t.Fatalf("NotifyBatchCompleted: %v", err)
	}
	if err := svc.NotifyBatchCompleted(ctx, notifications.BatchSummary{RunID: "r", Generated: 1, Failed: 2, Duration: time.Second}); err != nil {
		t.Fatalf("NotifyBatchCompleted: %v", err)
	}
	if err := svc.NotifyError(ctx, errors.New("quota exhausted"), "generation"); err != nil {
		t.Fatalf("NotifyError: %v", err)
	}

	want := []captured{
		{title: "scriptreel - Generation Started", message: "Generating 4 clips for run 01234567", tags: "scriptreel,batch,started"},
		{title: "scriptreel - Generation Complete", message: "Run 01234567: 3 generated, 1 from cache in 1m30s", tags: "scriptreel,batch,completed"},
		{title: "scriptreel - Generation Complete (with errors)", message: "Run r: 1 generated, 0 from cache, 2 failed in 1s", tags: "scriptreel,batch,partial"},
		{title: "scriptreel - Error", message: "Error with generation: quota exhausted", tags: "scriptreel,error,alert", priority: "high"},
	}
	got := requests()
	if len(got) != len(want) {
		t.Fatalf("requests = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("request %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestNtfyServiceRespectsToggles(t *testing.T) {
	server, requests := newServer(t)
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.Batch = false
	cfg.Notifications.Errors = false
	svc := notifications.NewService(&cfg)
	ctx := context.Background()

	_ = svc.NotifyBatchStarted(ctx, "run", 1)
	_ = svc.NotifyBatchCompleted(ctx, notifications.BatchSummary{RunID: "run"})
	_ = svc.NotifyError(ctx, errors.New("x"), "")
	if err := svc.TestNotification(ctx); err != nil {
		t.Fatalf("TestNotification: %v", err)
	}
	if got := requests(); len(got) != 1 || got[0].title != "scriptreel - Test" {
		t.Fatalf("requests = %+v", got)
	}
}

func TestNtfyServiceReportsHTTPErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "topic not found", http.StatusNotFound)
	}))
	defer server.Close()
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	svc := notifications.NewService(&cfg)
	if err := svc.TestNotification(context.Background()); err == nil {
		t.Fatal("expected error for 404")
	}
}
