package runloop

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/openclaw/camel/internal/ir"
	"github.com/openclaw/camel/internal/qllm"
	"github.com/openclaw/camel/internal/telemetry"
	"github.com/openclaw/camel/internal/tool"
	"github.com/openclaw/camel/internal/value"
)

// toolCaller satisfies interp.ToolCaller by dispatching to a
// tool.Registry descriptor, sanitizing its result, and accumulating
// the run-level bookkeeping (ToolMetas, messaging-send detection,
// last tool error) spec.md §6 reports in Result. It never runs
// "print" or "query_ai_assistant" — the interpreter handles both
// directly and never calls ToolCaller for them.
type toolCaller struct {
	registry *tool.Registry
	metrics  *telemetry.Metrics
	emit     func(Event)

	run *runAccumulator
}

func (tc *toolCaller) CallTool(ctx context.Context, callID, toolName string, args map[string]value.Bound, argOrder []string) (value.Value, error) {
	desc, ok := tc.registry.Get(toolName)
	if !ok {
		return value.Null, fmt.Errorf("tool %q is not registered", toolName)
	}

	plain := make(map[string]any, len(args))
	for k, b := range args {
		plain[k] = valueToAny(b.Value)
	}

	tc.emitEvent("tool", map[string]any{"phase": "start", "callId": callID, "name": toolName})
	start := time.Now()
	res, err := desc.Execute(ctx, callID, plain)
	elapsed := time.Since(start)

	outcome := "ok"
	if err != nil {
		outcome = "error"
	} else if res.IsError {
		outcome = "error"
	}
	if tc.metrics != nil {
		tc.metrics.ToolInvocations.WithLabelValues(toolName, outcome).Inc()
		tc.metrics.ToolDuration.WithLabelValues(toolName).Observe(elapsed.Seconds())
	}

	if err != nil {
		tc.run.recordToolError(toolName, nil, err.Error())
		tc.emitEvent("tool", map[string]any{"phase": "result", "callId": callID, "name": toolName, "error": err.Error()})
		return value.Null, err
	}

	res = tool.Sanitize(res)
	tc.run.recordToolMeta(toolName, res.Details)
	if res.IsError {
		tc.run.recordToolError(toolName, res.Details, res.Content)
	}
	if target, text, ok := tool.IsMessagingSend(toolName, plain); ok {
		tc.run.recordMessagingSend(target, text)
	}
	tc.emitEvent("tool", map[string]any{"phase": "result", "callId": callID, "name": toolName, "isError": res.IsError})

	pairs := []value.DictPair{
		{Key: "content", Value: value.String(res.Content)},
		{Key: "isError", Value: value.Bool(res.IsError)},
	}
	if res.Details != nil {
		pairs = append(pairs, value.DictPair{Key: "details", Value: anyToValue(res.Details)})
	}
	return value.Dict(pairs...), nil
}

func (tc *toolCaller) emitEvent(stream string, data any) {
	if tc.emit != nil {
		tc.emit(Event{Stream: stream, Data: data})
	}
}

// qllmCaller satisfies interp.QllmCaller by delegating to
// qllm.Extractor and counting outcomes for telemetry.
type qllmCaller struct {
	extractor *qllm.Extractor
	metrics   *telemetry.Metrics
}

func (qc *qllmCaller) CallQllm(ctx context.Context, instruction string, input value.Bound, schema ir.Schema) (value.Value, error) {
	v, err := qc.extractor.CallQllm(ctx, instruction, input, schema)
	if qc.metrics != nil {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		qc.metrics.ExtractionAttempts.WithLabelValues(outcome).Inc()
	}
	return v, err
}

// runAccumulator collects the per-run bookkeeping spec.md §6's Result
// fields require, separate from the interpreter's own Env so that it
// survives across planner repair attempts that reuse one Env.
type runAccumulator struct {
	toolMetas             []ToolMeta
	lastToolError         *ToolError
	didSendViaMessaging   bool
	messagingSentTexts    []string
	messagingSentTargets  []string
}

func (r *runAccumulator) recordToolMeta(name string, details map[string]any) {
	r.toolMetas = append(r.toolMetas, ToolMeta{Name: name, Meta: details})
}

func (r *runAccumulator) recordToolError(name string, meta map[string]any, errText string) {
	r.lastToolError = &ToolError{Name: name, Meta: meta, Error: errText}
}

func (r *runAccumulator) recordMessagingSend(target, text string) {
	r.didSendViaMessaging = true
	r.messagingSentTargets = append(r.messagingSentTargets, target)
	r.messagingSentTexts = append(r.messagingSentTexts, text)
}

// clientToolFunc builds an interp.ClientToolFunc from a Request's
// declared client tool names.
func clientToolFunc(clientToolNames []string) func(toolName string) bool {
	set := make(map[string]struct{}, len(clientToolNames))
	for _, n := range clientToolNames {
		set[normalizeToolName(n)] = struct{}{}
	}
	return func(toolName string) bool {
		_, ok := set[normalizeToolName(toolName)]
		return ok
	}
}

func normalizeToolName(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// sideEffectAdapter satisfies interp.SideEffectChecker by consulting
// the tool registry's declared SideEffectFree flag. A name with no
// registered descriptor is treated as state-changing, the same
// fail-closed default tool.Descriptor.StateChanging applies.
type sideEffectAdapter struct {
	registry *tool.Registry
}

func (s sideEffectAdapter) SideEffectFree(toolName string) bool {
	desc, ok := s.registry.Get(toolName)
	if !ok {
		return false
	}
	return desc.SideEffectFree
}
