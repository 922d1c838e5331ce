// Package telemetry initializes OpenTelemetry tracing and metrics, following
// the teacher's telemetry.Init shape (ashita-ai-akashi's internal/telemetry/
// telemetry.go) adapted for an embedded, single-host engine: in place of the
// teacher's OTLP/HTTP exporters (which assume a reachable collector), spans
// go to a stdout exporter for local inspection and metrics accumulate on a
// manual reader the caller can poll, since ledgermind has no outbound
// network dependency to configure.
package telemetry

import (
	"context"
	"fmt"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Shutdown combines the tracer and meter provider shutdown functions.
type Shutdown func(ctx context.Context) error

// Init configures the global tracer and meter providers. If enabled is
// false, no-op providers are installed and traceWriter is never touched.
func Init(ctx context.Context, enabled bool, serviceName, version string, traceWriter io.Writer) (Shutdown, *sdkmetric.ManualReader, error) {
	if !enabled {
		return func(context.Context) error { return nil }, nil, nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
			semconv.ServiceVersionKey.String(version),
		),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("telemetry: create resource: %w", err)
	}

	traceExp, err := stdouttrace.New(stdouttrace.WithWriter(traceWriter), stdouttrace.WithoutTimestamps())
	if err != nil {
		return nil, nil, fmt.Errorf("telemetry: create trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(reader),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	shutdown := func(ctx context.Context) error {
		var firstErr error
		if err := tp.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := mp.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
		return firstErr
	}

	return shutdown, reader, nil
}

// Meter returns the global meter for the given instrumentation scope.
func Meter(name string) metric.Meter {
	return otel.GetMeterProvider().Meter(name)
}

// Collect drains the manual reader's accumulated metrics, for callers (e.g.
// check_environment) that want a point-in-time snapshot without a
// push-based exporter. Returns nil if reader is nil (telemetry disabled).
func Collect(ctx context.Context, reader *sdkmetric.ManualReader) (*metricdata.ResourceMetrics, error) {
	if reader == nil {
		return nil, nil
	}
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		return nil, fmt.Errorf("telemetry: collect: %w", err)
	}
	return &rm, nil
}
