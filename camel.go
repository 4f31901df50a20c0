// Package camel is the CaMeL (Capability-Mediated Language) planner
// runtime: a two-model agent core that plans in a restricted
// Python-like language, tracks provenance through every value it
// derives, and gates state-changing tool calls on that provenance
// rather than trusting planner output outright. See SPEC_FULL.md for
// the full component design; this file is the package's external
// surface, spec.md §6.
package camel

import (
	"context"

	"github.com/openclaw/camel/internal/runloop"
	"github.com/openclaw/camel/internal/tool"
)

// Config configures one Run call. See internal/runloop.Config for
// field documentation; this alias keeps the package's external
// surface a single importable type without duplicating its doc
// comments.
type Config = runloop.Config

// Request is one planner run's input.
type Request = runloop.Request

// Result is one Run call's complete output.
type Result = runloop.Result

// Issue is an accumulated plan/execute failure.
type Issue = runloop.Issue

// Usage aggregates token accounting across a run's model calls.
type Usage = runloop.Usage

// AssistantMessage is the run's final provider/model-attributed reply.
type AssistantMessage = runloop.AssistantMessage

// ToolMeta records one tool invocation's identity and output.
type ToolMeta = runloop.ToolMeta

// ToolError is a run's last failing tool invocation.
type ToolError = runloop.ToolError

// ClientToolCall names a client-owned tool a run stopped on.
type ClientToolCall = runloop.ClientToolCall

// Event is one lifecycle/tool/assistant notification delivered to
// Config.OnEvent.
type Event = runloop.Event

// ToolDescriptor is a registered tool's normalized shape, passed via
// Request.Tools.
type ToolDescriptor = tool.Descriptor

// ToolResult is what a tool Executor returns for one invocation.
type ToolResult = tool.Result

// ToolExecutor runs one tool call.
type ToolExecutor = tool.Executor

// Run executes the planner/execution loop once for req under cfg,
// returning the accumulated result or a loop-level error
// (camelerr.ErrMaxRetries, a cancellation, or a provider failure).
func Run(ctx context.Context, cfg Config, req Request) (*Result, error) {
	return runloop.Run(ctx, cfg, req)
}
