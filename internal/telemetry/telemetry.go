// Package telemetry installs the OpenTelemetry tracer provider used by the
// orchestrator and cache spans.
//
// When tracing is disabled the global provider is a no-op, so span calls in
// the hot path cost nothing. When enabled, spans are batched to an OTLP
// collector over HTTP or gRPC.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"scriptreel/internal/config"
)

const shutdownTimeout = 5 * time.Second

// Provider owns the installed tracer provider.
type Provider struct {
	tp       *sdktrace.TracerProvider
	provider trace.TracerProvider
}

// NewProvider builds a provider from cfg.Telemetry and installs it globally.
func NewProvider(ctx context.Context, cfg *config.Config) (*Provider, error) {
	if cfg == nil || !cfg.Telemetry.Enabled {
		np := noop.NewTracerProvider()
		otel.SetTracerProvider(np)
		return &Provider{provider: np}, nil
	}
	t := cfg.Telemetry

	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceNameKey.String(t.ServiceName),
	))
	if err != nil {
		return nil, fmt.Errorf("telemetry resource: %w", err)
	}

	var exporter sdktrace.SpanExporter
	switch t.Exporter {
	case "http":
		exporter, err = otlptracehttp.New(ctx,
			otlptracehttp.WithEndpoint(t.Endpoint),
			otlptracehttp.WithInsecure())
	case "grpc":
		exporter, err = otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpoint(t.Endpoint),
			otlptracegrpc.WithInsecure())
	default:
		return nil, fmt.Errorf("unsupported trace exporter %q (supported: http, grpc)", t.Exporter)
	}
	if err != nil {
		return nil, fmt.Errorf("create %s trace exporter: %w", t.Exporter, err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler(t.SamplingRate)),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return &Provider{tp: tp, provider: tp}, nil
}

func sampler(rate float64) sdktrace.Sampler {
	switch {
	case rate >= 1:
		return sdktrace.AlwaysSample()
	case rate <= 0:
		return sdktrace.NeverSample()
	default:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(rate))
	}
}

// TracerProvider returns the installed provider.
func (p *Provider) TracerProvider() trace.TracerProvider {
	if p == nil || p.provider == nil {
		return otel.GetTracerProvider()
	}
	return p.provider
}

// Exporting reports whether spans leave the process.
func (p *Provider) Exporting() bool { return p != nil && p.tp != nil }

// Shutdown flushes pending spans.
func (p *Provider) Shutdown(ctx context.Context) error {
	if !p.Exporting() {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	return p.tp.Shutdown(ctx)
}
