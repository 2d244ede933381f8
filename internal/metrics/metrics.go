// Package metrics exposes Prometheus instruments for segmentation, the fingerprint
// cache, and generation jobs. Labels are restricted to small enumerations; segment and
// run identifiers never appear as label values.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"scriptreel/internal/logging"
)

const namespace = "scriptreel"

var (
	// SegmentationRuns counts segmentation calls by effective strategy.
	SegmentationRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "segmentation_runs_total",
		Help:      "Segmentation runs, by effective strategy.",
	}, []string{"strategy"})

	// SegmentationFallbacks counts strategy fallbacks by reason.
	SegmentationFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "segmentation_fallbacks_total",
		Help:      "Strategy fallbacks applied during segmentation, by reason.",
	}, []string{"reason"})

	// CacheLookups counts fingerprint cache lookups by result (hit, miss, stale, error).
	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_lookups_total",
		Help:      "Fingerprint cache lookups, by result.",
	}, []string{"backend", "result"})

	// CachePuts counts cache writes by backend.
	CachePuts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_puts_total",
		Help:      "Fingerprint cache writes, by backend.",
	}, []string{"backend"})

	// JobTransitions counts job state transitions by destination state.
	JobTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "job_transitions_total",
		Help:      "Generation job state transitions, by destination state.",
	}, []string{"state"})

	// JobOutcomes counts terminal job outcomes by state and error kind.
	JobOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "job_outcomes_total",
		Help:      "Terminal generation job outcomes, by state and error kind.",
	}, []string{"state", "kind"})

	// JobDuration observes wall time from pending to a terminal state.
	JobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "job_duration_seconds",
		Help:      "Time from job start to terminal state, by state.",
		Buckets:   []float64{0.1, 1, 5, 15, 30, 60, 120, 300, 600},
	}, []string{"state"})

	// JobRetries counts retry-wait entries.
	JobRetries = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "job_retries_total",
		Help:      "Generation job retries after transient failures.",
	})

	// GenerationRequests counts calls to the generation service by operation and outcome.
	GenerationRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "generation_requests_total",
		Help:      "Requests to the generation service, by operation and outcome.",
	}, []string{"op", "outcome"})

	// ContinuitySeeds counts continuity directive decisions by result.
	ContinuitySeeds = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "continuity_seeds_total",
		Help:      "Continuity seed decisions, by result (attached, skipped, failed).",
	}, []string{"result"})

	// CreditsCharged accumulates credits charged for submissions.
	CreditsCharged = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "credits_charged_total",
		Help:      "Credits charged for generation submissions.",
	})

	// BatchInFlight tracks segments currently being worked on.
	BatchInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "batch_in_flight",
		Help:      "Segments currently in a non-terminal state.",
	})
)

// Handler returns the HTTP handler serving the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Serve exposes /metrics on addr until ctx is cancelled. It returns once the listener
// is bound so callers can proceed; serve errors are logged.
func Serve(ctx context.Context, addr string, logger *slog.Logger) (net.Addr, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logging.NewComponentLogger(logger, "metrics")

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	server := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server stopped",
				logging.String(logging.FieldEventType, "metrics_serve_failed"),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check metrics.listen_addr"),
				logging.String(logging.FieldImpact, "metrics are unavailable for this run"))
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics endpoint listening", logging.String("addr", listener.Addr().String()))
	return listener.Addr(), nil
}
