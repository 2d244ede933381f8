package metrics_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"scriptreel/internal/metrics"
)

func TestCacheLookupsIncrement(t *testing.T) {
	before := testutil.ToFloat64(metrics.CacheLookups.WithLabelValues("memory", "hit"))
	metrics.CacheLookups.WithLabelValues("memory", "hit").Inc()
	after := testutil.ToFloat64(metrics.CacheLookups.WithLabelValues("memory", "hit"))
	if after-before != 1 {
		t.Fatalf("delta = %v, want 1", after-before)
	}
}

func TestHandlerExposesNamespace(t *testing.T) {
	metrics.JobRetries.Inc()
	recorder := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	metrics.Handler().ServeHTTP(recorder, req)
	if !strings.Contains(recorder.Body.String(), "scriptreel_job_retries_total") {
		t.Fatal("expected scriptreel_job_retries_total in exposition")
	}
}

func TestServeStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	addr, err := metrics.Serve(ctx, "127.0.0.1:0", nil)
	if err != nil {
		t.Fatalf("Serve: %v", err)
	}
	resp, err := http.Get("http://" + addr.String() + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK || len(body) == 0 {
		t.Fatalf("status = %d, body length %d", resp.StatusCode, len(body))
	}
	cancel()
}
