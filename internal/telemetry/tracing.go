package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Tracer wraps an OpenTelemetry tracer, offering one span per run, per
// planner attempt, and per suspension point (tool call, qllm call);
// there is no per-step span, and runloop.Run opens only the
// planner-attempt spans. Grounded on
// internal/observability/tracing.go's Tracer/TraceConfig wrapper,
// narrowed to accept a caller-constructed TracerProvider rather than
// owning OTLP exporter setup, since the host process (not this core)
// decides where spans are shipped.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer wraps provider's tracer under the instrumentation name
// "github.com/openclaw/camel". Pass nil to fall back to the global
// otel.Tracer, useful when the host hasn't configured a
// TracerProvider and spans should simply be no-ops.
func NewTracer(provider *sdktrace.TracerProvider) *Tracer {
	if provider == nil {
		return &Tracer{tracer: otel.Tracer("github.com/openclaw/camel")}
	}
	return &Tracer{tracer: provider.Tracer("github.com/openclaw/camel")}
}

// StartRun opens the root span for one Run call.
func (t *Tracer) StartRun(ctx context.Context, runID string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "camel.run", trace.WithAttributes(attribute.String("camel.run_id", runID)))
}

// StartPlan opens a span for one planner model call attempt.
func (t *Tracer) StartPlan(ctx context.Context, attempt int) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "camel.plan", trace.WithAttributes(attribute.Int("camel.attempt", attempt)))
}

// StartTool opens a span for one tool invocation.
func (t *Tracer) StartTool(ctx context.Context, toolName string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "camel.tool", trace.WithAttributes(attribute.String("camel.tool_name", toolName)))
}

// StartQllm opens a span for one query_ai_assistant call.
func (t *Tracer) StartQllm(ctx context.Context, saveAs string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "camel.qllm", trace.WithAttributes(attribute.String("camel.save_as", saveAs)))
}

// EndWithError records err on span (if non-nil) and always ends it.
func EndWithError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
