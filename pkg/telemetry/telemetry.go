// Package telemetry provides optional OpenTelemetry OTLP gRPC trace export
// for the ingestion pipeline. When disabled, every helper is a no-op.
package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Config configures the OTLP exporter.
type Config struct {
	// Enabled turns trace export on; everything is a no-op otherwise.
	Enabled bool

	// Endpoint is the OTLP gRPC endpoint (e.g., "localhost:4317")
	Endpoint string

	// ServiceName identifies this service in traces
	ServiceName string

	// ServiceVersion is the version of this service
	ServiceVersion string

	// Environment is the deployment environment
	Environment string

	// BatchTimeout is how long to wait before sending a batch of spans
	BatchTimeout time.Duration

	// ExportTimeout is the timeout for exporting a batch
	ExportTimeout time.Duration
}

// DefaultConfig returns sensible defaults with export disabled.
func DefaultConfig() Config {
	return Config{
		Endpoint:       "localhost:4317",
		ServiceName:    "adlens",
		ServiceVersion: "1.0.0",
		Environment:    "development",
		BatchTimeout:   5 * time.Second,
		ExportTimeout:  30 * time.Second,
	}
}

// Telemetry manages the exporter lifecycle.
type Telemetry struct {
	mu       sync.Mutex
	cfg      Config
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// New creates an uninitialized telemetry handle.
func New(cfg Config) *Telemetry {
	return &Telemetry{cfg: cfg, tracer: noop.NewTracerProvider().Tracer("adlens")}
}

// Init sets up the OTLP exporter and global tracer provider. Returns a
// shutdown function that flushes and closes the exporter; when telemetry is
// disabled both Init and the returned function are no-ops.
func (t *Telemetry) Init(ctx context.Context) (func(context.Context) error, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.cfg.Enabled {
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(t.cfg.Endpoint),
		otlptracegrpc.WithInsecure(),
		otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
		otlptracegrpc.WithTimeout(t.cfg.ExportTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(t.cfg.ServiceName),
			semconv.ServiceVersion(t.cfg.ServiceVersion),
			semconv.DeploymentEnvironment(t.cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	t.provider = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter,
			sdktrace.WithBatchTimeout(t.cfg.BatchTimeout),
			sdktrace.WithExportTimeout(t.cfg.ExportTimeout),
		),
		sdktrace.WithResource(res),
	)

	otel.SetTracerProvider(t.provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	t.tracer = t.provider.Tracer(t.cfg.ServiceName)

	return func(ctx context.Context) error {
		return t.provider.Shutdown(ctx)
	}, nil
}

// StartJobSpan opens a span covering one ingestion job.
func (t *Telemetry) StartJobSpan(ctx context.Context, jobID, fileName string) (context.Context, trace.Span) {
	t.mu.Lock()
	tracer := t.tracer
	t.mu.Unlock()

	return tracer.Start(ctx, "ingest.job",
		trace.WithAttributes(
			attribute.String("job.id", jobID),
			attribute.String("job.file", fileName),
		))
}

// RecordJobResult annotates a job span with its outcome.
func RecordJobResult(span trace.Span, rows, skipped int64, err error) {
	span.SetAttributes(
		attribute.Int64("job.rows", rows),
		attribute.Int64("job.skipped", skipped),
	)
	if err != nil {
		span.RecordError(err)
	}
	span.End()
}
