package telemetry_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace/noop"

	"scriptreel/internal/config"
	"scriptreel/internal/telemetry"
)

func resetGlobal(t *testing.T) {
	t.Helper()
	t.Cleanup(func() { otel.SetTracerProvider(noop.NewTracerProvider()) })
}

func TestDisabledProviderIsNoop(t *testing.T) {
	resetGlobal(t)
	cfg := config.Default()

	p, err := telemetry.NewProvider(context.Background(), &cfg)
	if err != nil {
		t.Fatalf("NewProvider: %v", err)
	}
	if p.Exporting() {
		t.Fatal("disabled telemetry must not export")
	}
	_, span := p.TracerProvider().Tracer("test").Start(context.Background(), "noop")
	if span.SpanContext().IsValid() {
		t.Fatal("noop provider produced a recording span")
	}
	span.End()
	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}

func TestHTTPExporterFlushesSpansOnShutdown(t *testing.T) {
	resetGlobal(t)
	var posts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && r.URL.Path == "/v1/traces" {
			posts.Add(1)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := config.Default()
	cfg.Telemetry.Enabled = true
	cfg.Telemetry.Exporter = "http"
	cfg.Telemetry.Endpoint = strings.TrimPrefix(srv.URL, "http://")

	p, err := telemetry.NewProvider(context.Background(), &cfg)
	if err != nil {
		t.Fatalf("NewProvider: %v", err)
	}
	if !p.Exporting() {
		t.Fatal("enabled telemetry should export")
	}
	_, span := otel.Tracer("test").Start(context.Background(), "orchestrator.job")
	if !span.SpanContext().IsValid() {
		t.Fatal("global tracer did not pick up the installed provider")
	}
	span.End()

	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if posts.Load() == 0 {
		t.Fatal("no spans were exported to the collector")
	}
}

func TestUnsupportedExporterFails(t *testing.T) {
	resetGlobal(t)
	cfg := config.Default()
	cfg.Telemetry.Enabled = true
	cfg.Telemetry.Exporter = "zipkin"

	if _, err := telemetry.NewProvider(context.Background(), &cfg); err == nil {
		t.Fatal("expected an error for an unknown exporter")
	}
}
