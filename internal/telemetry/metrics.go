// Package telemetry instruments planner runs with Prometheus metrics
// and OpenTelemetry spans. Grounded on internal/observability/metrics.go
// and internal/observability/tracing.go, narrowed from the teacher's
// channel/session/webhook surface to the planner-loop, extraction, and
// policy concerns spec.md names.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects Prometheus instrumentation for one process. Build
// one Metrics per process (not per run) and pass it to every run as
// runloop.Config.Metrics.
type Metrics struct {
	// PlanAttempts counts planner calls by outcome (parsed|parse_error|repaired).
	PlanAttempts *prometheus.CounterVec

	// PlanDuration measures planner model latency in seconds.
	PlanDuration prometheus.Histogram

	// ExtractionAttempts counts query_ai_assistant calls by outcome
	// (ok|error).
	ExtractionAttempts *prometheus.CounterVec

	// ToolInvocations counts executed tool calls by name and outcome
	// (ok|error); policy denials are counted by PolicyDenials instead.
	ToolInvocations *prometheus.CounterVec

	// ToolDuration measures tool execution latency in seconds, by tool name.
	ToolDuration *prometheus.HistogramVec

	// PolicyDenials counts policy-gate denials by tool name.
	PolicyDenials *prometheus.CounterVec

	// RunOutcomes counts completed runs by outcome (final|client_tool|error|cancelled).
	RunOutcomes *prometheus.CounterVec
}

// NewMetrics registers every collector against reg. Pass
// prometheus.DefaultRegisterer to use the global registry, or a fresh
// prometheus.NewRegistry() in tests to avoid collisions across cases.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		PlanAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "camel_plan_attempts_total",
			Help: "Planner model calls by outcome.",
		}, []string{"outcome"}),

		PlanDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "camel_plan_duration_seconds",
			Help:    "Planner model call latency in seconds.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}),

		ExtractionAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "camel_extraction_attempts_total",
			Help: "query_ai_assistant calls by outcome.",
		}, []string{"outcome"}),

		ToolInvocations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "camel_tool_invocations_total",
			Help: "Tool calls by tool name and outcome.",
		}, []string{"tool", "outcome"}),

		ToolDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "camel_tool_duration_seconds",
			Help:    "Tool execution latency in seconds, by tool name.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		}, []string{"tool"}),

		PolicyDenials: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "camel_policy_denials_total",
			Help: "Policy-gate denials by tool name.",
		}, []string{"tool"}),

		RunOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "camel_run_outcomes_total",
			Help: "Completed runs by outcome.",
		}, []string{"outcome"}),
	}
}
