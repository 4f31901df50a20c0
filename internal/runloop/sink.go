package runloop

import (
	"encoding/json"
	"time"

	"github.com/openclaw/camel/internal/telemetry"
	"github.com/openclaw/camel/internal/trace"
	"github.com/openclaw/camel/internal/value"
)

// runSink implements interp.Sink for one Run call: it forwards every
// event to the in-memory trace.Recorder (always present) and an
// optional caller-supplied trace.Sink, and collects the printed/final
// texts spec.md §6 reports as assistantTexts.
type runSink struct {
	runID     string
	recorder  *trace.Recorder
	extra     trace.Sink
	metrics   *telemetry.Metrics
	emit      func(Event)
	acc       *runAccumulator

	assistantTexts []string
}

func newRunSink(runID string, recorder *trace.Recorder, extra trace.Sink, metrics *telemetry.Metrics, emit func(Event), acc *runAccumulator) *runSink {
	return &runSink{runID: runID, recorder: recorder, extra: extra, metrics: metrics, emit: emit, acc: acc}
}

func (s *runSink) record(e trace.Event) {
	e.RunID = s.runID
	e.Timestamp = timeNow()
	s.recorder.Record(e)
	if s.extra != nil {
		s.extra.Record(e)
	}
}

func (s *runSink) OnAssign(name string, b value.Bound) {
	s.record(trace.Event{
		Kind:     trace.EventAssign,
		Name:     name,
		Trusted:  b.Cap.Trusted,
		Sources:  b.Cap.SourceList(),
		ValueStr: b.Value.Str(),
	})
}

func (s *runSink) OnTool(callID, toolName string, args map[string]value.Bound, result value.Bound, err error) {
	plainArgs := make(map[string]any, len(args))
	for k, b := range args {
		plainArgs[k] = valueToAny(b.Value)
	}
	argsJSON, _ := json.Marshal(plainArgs)
	errText := ""
	if err != nil {
		errText = err.Error()
	}
	s.record(trace.Event{
		Kind:      trace.EventTool,
		CallID:    callID,
		ToolName:  toolName,
		ArgsJSON:  string(argsJSON),
		ResultStr: result.Value.Str(),
		Trusted:   result.Cap.Trusted,
		Sources:   result.Cap.SourceList(),
		Error:     errText,
	})
}

func (s *runSink) OnQllm(saveAs, instruction string, result value.Bound) {
	s.record(trace.Event{
		Kind:        trace.EventQllm,
		Name:        saveAs,
		Instruction: instruction,
		ValueStr:    result.Value.Str(),
		Trusted:     result.Cap.Trusted,
		Sources:     result.Cap.SourceList(),
	})
}

func (s *runSink) OnPrint(text string, cap value.Capability) {
	s.assistantTexts = append(s.assistantTexts, text)
	if s.emit != nil {
		s.emit(Event{Stream: "assistant", Data: map[string]any{"text": text, "trusted": cap.Trusted}})
	}
}

func (s *runSink) OnFinal(text string) {
	s.assistantTexts = append(s.assistantTexts, text)
	s.record(trace.Event{Kind: trace.EventFinal, FinalText: text})
	if s.emit != nil {
		s.emit(Event{Stream: "assistant", Data: map[string]any{"text": text, "final": true}})
	}
}

func (s *runSink) OnPolicyDenied(toolName, reason string) {
	if s.metrics != nil {
		s.metrics.PolicyDenials.WithLabelValues(toolName).Inc()
	}
	if s.acc != nil {
		s.acc.recordToolError(toolName, nil, reason)
	}
	s.record(trace.Event{Kind: trace.EventDenied, ToolName: toolName, Reason: reason})
	if s.emit != nil {
		s.emit(Event{Stream: "lifecycle", Data: map[string]any{"policyDenied": toolName, "reason": reason}})
	}
}

// timeNow is the sole clock read in this package, isolated so tests can
// substitute deterministic timestamps if needed.
var timeNow = time.Now
