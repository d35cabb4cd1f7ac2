// Package tracing installs the global OpenTelemetry tracer provider.
package tracing

import (
	"context"
	"fmt"
	"os"

	"github.com/buildkite/datapipeline-deploy/logger"
	"github.com/buildkite/datapipeline-deploy/version"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
)

const (
	BackendNone          = "none"
	BackendOpenTelemetry = "opentelemetry"

	serviceName = "datapipeline-deploy"
)

// ValidBackends are the accepted values of --tracing-backend.
var ValidBackends = []string{BackendNone, BackendOpenTelemetry}

// Stopper flushes and shuts down the tracer provider.
type Stopper func()

func noopStopper() {}

// Start sets up tracing for backend. With BackendNone, or if the exporter
// can't be created, the global no-op provider stays in place.
func Start(ctx context.Context, l logger.Logger, backend string) (Stopper, error) {
	switch backend {
	case "", BackendNone:
		return noopStopper, nil

	case BackendOpenTelemetry:
		return startOpenTelemetry(ctx, l)

	default:
		return noopStopper, fmt.Errorf("invalid tracing backend %q, must be one of %v", backend, ValidBackends)
	}
}

func startOpenTelemetry(ctx context.Context, l logger.Logger) (Stopper, error) {
	// default to grpc, like the OTLP exporters themselves
	protocol := os.Getenv("OTEL_EXPORTER_OTLP_PROTOCOL")
	if protocol == "" {
		protocol = "grpc"
	}

	var exporter sdktrace.SpanExporter
	var err error
	switch protocol {
	case "grpc":
		exporter, err = otlptracegrpc.New(ctx)
	case "http/protobuf", "http":
		exporter, err = otlptracehttp.New(ctx)
	default:
		l.Error("Unsupported OTLP protocol: %s. Disabling tracing.", protocol)
		return noopStopper, nil
	}
	if err != nil {
		return noopStopper, fmt.Errorf("creating OTLP trace exporter: %w", err)
	}

	resources := resource.NewWithAttributes(semconv.SchemaURL,
		semconv.ServiceNameKey.String(serviceName),
		semconv.ServiceVersionKey.String(version.Version()),
	)
	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resources),
	)

	otel.SetTracerProvider(tracerProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	l.Debug("OpenTelemetry tracing enabled (protocol %s)", protocol)

	return func() {
		ctx := context.Background()
		_ = tracerProvider.ForceFlush(ctx)
		_ = tracerProvider.Shutdown(ctx)
	}, nil
}
