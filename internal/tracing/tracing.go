// Package tracing wires up an OpenTelemetry tracer provider for the
// engine: one span per run, one child span per chunk batch. Exporter is
// selected by name (stdout, jaeger, otlp, none).
package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Shutdown flushes and stops the tracer provider. Always call it on
// process exit (cmd/adapipe defers it right after Init succeeds).
type Shutdown func(context.Context) error

// Init constructs a tracer provider for the named exporter ("stdout",
// "jaeger", "otlp", "none") and installs it as the global provider.
func Init(ctx context.Context, exporterName string, serviceVersion string) (trace.Tracer, Shutdown, error) {
	if exporterName == "" || exporterName == "none" {
		return otel.Tracer("adapipe"), func(context.Context) error { return nil }, nil
	}

	exp, err := newExporter(ctx, exporterName)
	if err != nil {
		return nil, nil, err
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			attribute.String("service.name", "adapipe"),
			attribute.String("service.version", serviceVersion),
		),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("build otel resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	return tp.Tracer("adapipe"), tp.Shutdown, nil
}

func newExporter(ctx context.Context, name string) (sdktrace.SpanExporter, error) {
	switch name {
	case "stdout":
		return stdouttrace.New(stdouttrace.WithPrettyPrint())
	case "jaeger":
		return jaeger.New(jaeger.WithCollectorEndpoint())
	case "otlp":
		return otlptracegrpc.New(ctx)
	default:
		return nil, fmt.Errorf("unknown trace exporter %q (want stdout, jaeger, otlp, or none)", name)
	}
}

// RunSpan starts a span covering one whole process/restore run.
func RunSpan(ctx context.Context, tracer trace.Tracer, kind string, pipelineID string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "adapipe."+kind, trace.WithAttributes(
		attribute.String("pipeline_id", pipelineID),
	))
}

// ChunkBatchSpan starts a span covering a batch of chunk tasks, used by
// the engine to bound goroutine-fan-out noise instead of one span per
// chunk.
func ChunkBatchSpan(ctx context.Context, tracer trace.Tracer, startSeq, count uint64) (context.Context, trace.Span) {
	return tracer.Start(ctx, "adapipe.chunk_batch", trace.WithAttributes(
		attribute.Int64("start_sequence", int64(startSeq)),
		attribute.Int64("count", int64(count)),
	))
}
