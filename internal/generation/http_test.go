package generation

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"scriptreel/internal/services"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *HTTPClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewHTTPClient(Config{
		BaseURL:      server.URL + "/v1/",
		APIKey:       "secret",
		Model:        "reel-video",
		ModelVersion: "2",
	})
}

func TestSubmitSendsPayload(t *testing.T) {
	var got submitPayload
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/jobs" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer secret" {
			t.Errorf("missing bearer token")
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"id":"job-1"}`))
	})

	handle, err := client.Submit(context.Background(), SubmitRequest{
		Prompt:          "a lighthouse at dusk",
		DurationSeconds: 5,
		SeedImage:       []byte{0xff, 0xd8},
		ContinuityNote:  "continue",
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if handle.ID != "job-1" || handle.SubmittedAt.IsZero() {
		t.Fatalf("handle = %+v", handle)
	}
	if got.Model != "reel-video" || got.ModelVersion != "2" || got.DurationSeconds != 5 {
		t.Fatalf("payload = %+v", got)
	}
	if got.SeedImage != base64.StdEncoding.EncodeToString([]byte{0xff, 0xd8}) {
		t.Fatalf("seed not forwarded: %+v", got)
	}
	if got.Prompt != "a lighthouse at dusk\n\ncontinue" {
		t.Fatalf("prompt = %q, want note appended", got.Prompt)
	}
}

func TestSubmitOmitsNoteWithoutSeed(t *testing.T) {
	var raw map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&raw)
		_, _ = w.Write([]byte(`{"id":"job-2"}`))
	})
	if _, err := client.Submit(context.Background(), SubmitRequest{Prompt: "p", DurationSeconds: 5, ContinuityNote: "x"}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if _, ok := raw["seed_image"]; ok {
		t.Fatal("seed_image must be omitted")
	}
	if raw["prompt"] != "p" {
		t.Fatalf("prompt = %v, note must not be appended without a seed", raw["prompt"])
	}
}

func TestSubmitValidatesInput(t *testing.T) {
	client := NewHTTPClient(Config{BaseURL: "http://127.0.0.1:1"})
	_, err := client.Submit(context.Background(), SubmitRequest{Prompt: "  ", DurationSeconds: 5})
	if services.Kind(err) != services.KindValidation {
		t.Fatalf("err = %v, want validation", err)
	}
	_, err = client.Submit(context.Background(), SubmitRequest{Prompt: "p"})
	if services.Kind(err) != services.KindValidation {
		t.Fatalf("err = %v, want validation", err)
	}
}

func TestErrorClassification(t *testing.T) {
	cases := []struct {
		name      string
		status    int
		body      string
		kind      string
		retryable bool
	}{
		{"server error", http.StatusBadGateway, `{"error":"upstream"}`, services.KindTransient, true},
		{"throttled", http.StatusTooManyRequests, ``, services.KindTransient, true},
		{"timeout", http.StatusRequestTimeout, ``, services.KindTransient, true},
		{"payment", http.StatusPaymentRequired, `{"error":{"message":"out of credits"}}`, services.KindQuota, false},
		{"bad request", http.StatusBadRequest, `{"error":"prompt too long"}`, services.KindPermanent, false},
		{"not found", http.StatusNotFound, `nope`, services.KindPermanent, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Retry-After", "7")
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			})
			_, err := client.Submit(context.Background(), SubmitRequest{Prompt: "p", DurationSeconds: 5})
			if services.Kind(err) != tc.kind {
				t.Fatalf("kind = %q (%v), want %q", services.Kind(err), err, tc.kind)
			}
			if services.Retryable(err) != tc.retryable {
				t.Fatalf("retryable = %v, want %v", services.Retryable(err), tc.retryable)
			}
		})
	}
}

func TestPermanentErrorKeepsDetail(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"error":"duration must be 5 or 10"}`))
	})
	_, err := client.Submit(context.Background(), SubmitRequest{Prompt: "p", DurationSeconds: 7})
	var perm *services.PermanentRequestError
	if !errors.As(err, &perm) {
		t.Fatalf("err = %v", err)
	}
	if perm.Detail != "duration must be 5 or 10" || perm.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("perm = %+v", perm)
	}
}

func TestRetryAfterIsRecorded(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "12")
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	_, err := client.PollStatus(context.Background(), JobHandle{ID: "x"})
	var transient *services.TransientNetworkError
	if !errors.As(err, &transient) || transient.RetryAfter != 12 || transient.Op != "poll" {
		t.Fatalf("err = %#v", err)
	}
}

func TestPollStatusStates(t *testing.T) {
	cases := []struct {
		body string
		want Status
	}{
		{`{"status":"running"}`, Status{State: StatePending}},
		{`{"status":"queued"}`, Status{State: StatePending}},
		{`{"status":"succeeded","asset_url":"/assets/a.mp4"}`, Status{State: StateSucceeded}},
		{`{"status":"failed","error":"moderation","retryable":false}`, Status{State: StateFailed, Reason: "moderation"}},
		{`{"status":"failed"}`, Status{State: StateFailed, Reason: "job failed without a reason", Retryable: true}},
	}
	for _, tc := range cases {
		var baseURL string
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/v1/jobs/job%2F1" && r.URL.RawPath != "/v1/jobs/job%2F1" {
				t.Errorf("path = %q raw %q", r.URL.Path, r.URL.RawPath)
			}
			_, _ = w.Write([]byte(tc.body))
		})
		baseURL = client.cfg.BaseURL
		got, err := client.PollStatus(context.Background(), JobHandle{ID: "job/1"})
		if err != nil {
			t.Fatalf("PollStatus(%s): %v", tc.body, err)
		}
		want := tc.want
		if want.State == StateSucceeded {
			want.AssetURL = strings.TrimSuffix(baseURL, "/v1") + "/assets/a.mp4"
		}
		if got != want {
			t.Fatalf("PollStatus(%s) = %+v, want %+v", tc.body, got, want)
		}
	}
}

func TestPollStatusRejectsUnknownState(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"sideways"}`))
	})
	_, err := client.PollStatus(context.Background(), JobHandle{ID: "j"})
	if services.Kind(err) != services.KindPermanent {
		t.Fatalf("err = %v", err)
	}
}

func TestDownload(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/assets/a.mp4" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte("clip-bytes"))
	})
	data, err := client.Download(context.Background(), "assets/a.mp4")
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if string(data) != "clip-bytes" {
		t.Fatalf("data = %q", data)
	}
	if _, err := client.Download(context.Background(), "assets/missing.mp4"); services.Kind(err) != services.KindPermanent {
		t.Fatalf("missing asset err = %v", err)
	}
}

func TestTransportErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	base := server.URL
	server.Close()
	client := NewHTTPClient(Config{BaseURL: base})
	_, err := client.Submit(context.Background(), SubmitRequest{Prompt: "p", DurationSeconds: 5})
	if !services.Retryable(err) {
		t.Fatalf("err = %v, want retryable", err)
	}
}

func TestCanceledContextIsNotRetryable(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"x"}`))
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := client.Submit(ctx, SubmitRequest{Prompt: "p", DurationSeconds: 5})
	if !errors.Is(err, context.Canceled) || services.Retryable(err) {
		t.Fatalf("err = %v", err)
	}
}

func TestParseRetryAfter(t *testing.T) {
	if parseRetryAfter("") != 0 || parseRetryAfter("-3") != 0 || parseRetryAfter("junk") != 0 {
		t.Fatal("expected 0 for empty/negative/garbage")
	}
	if parseRetryAfter("30") != 30 {
		t.Fatal("expected 30")
	}
}
