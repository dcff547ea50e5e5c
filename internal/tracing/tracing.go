// Package tracing wires OpenTelemetry for the driver. When no collector
// endpoint is configured, spans are recorded against a no-op provider so
// call sites never branch on telemetry being enabled.
package tracing

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/dominds/minddrive"

// Setup installs a trace provider exporting over OTLP/HTTP to endpoint.
// With an empty endpoint it is a no-op and the returned shutdown does
// nothing. The returned shutdown flushes pending spans.
func Setup(ctx context.Context, endpoint, serviceName string) (func(context.Context) error, error) {
	if endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}

	exp, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("create otlp exporter: %w", err)
	}

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(serviceName),
	))
	if err != nil {
		return nil, fmt.Errorf("build resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	slog.Info("tracing enabled", "endpoint", endpoint, "service", serviceName)
	return tp.Shutdown, nil
}

// StartDrive opens a span covering one drive of a dialog.
func StartDrive(ctx context.Context, dialogKey, agentID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "dialog.drive",
		trace.WithAttributes(
			attribute.String("dialog.key", dialogKey),
			attribute.String("dialog.agent", agentID),
		))
}

// StartGenerate opens a span covering one model generation attempt set.
func StartGenerate(ctx context.Context, provider, model string, genseq int) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "llm.generate",
		trace.WithAttributes(
			attribute.String("llm.provider", provider),
			attribute.String("llm.model", model),
			attribute.Int("llm.genseq", genseq),
		))
}

// StartTool opens a span covering one function tool execution.
func StartTool(ctx context.Context, name string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "tool.exec",
		trace.WithAttributes(attribute.String("tool.name", name)))
}

// StartTellask opens a span covering one tellask call execution.
func StartTellask(ctx context.Context, head string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "tellask.exec",
		trace.WithAttributes(attribute.String("tellask.head", head)))
}
