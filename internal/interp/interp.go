package interp

import (
	"context"
	"fmt"
	"strings"

	"github.com/openclaw/camel/internal/camelerr"
	"github.com/openclaw/camel/internal/ir"
	"github.com/openclaw/camel/internal/value"
)

// ToolCaller executes one tool step. The interpreter merges argCap and
// controlCap into the capability it stamps on the result before
// ToolCaller ever returns, so implementations only need to report
// whether the call itself succeeded and what it produced.
type ToolCaller interface {
	CallTool(ctx context.Context, callID, toolName string, args map[string]value.Bound, argOrder []string) (value.Value, error)
}

// QllmCaller executes the query_ai_assistant primitive. Its result is
// always untrusted regardless of what ToolCaller/PolicyGate decide —
// the interpreter enforces that by calling Capability.ForceUntrusted
// itself rather than trusting the caller to do so.
type QllmCaller interface {
	CallQllm(ctx context.Context, instruction string, input value.Bound, schema ir.Schema) (value.Value, error)
}

// PolicyGate decides whether a state-changing tool call is allowed,
// given the merged capability of its arguments and the enclosing
// control-flow guards. Side-effect-free tools bypass the gate entirely
// (see Interpreter.execTool).
type PolicyGate interface {
	Allow(toolName string, argCap, controlCap value.Capability) (allow bool, reason string)
	// NoteExtraction records that a query_ai_assistant call has occurred,
	// permanently tainting the strict-dependency set for this run even
	// if the extraction's result is never passed to a tool.
	NoteExtraction()
}

// SideEffectChecker reports whether a tool is side-effect-free, so the
// interpreter knows whether a PolicyGate check applies.
type SideEffectChecker interface {
	SideEffectFree(toolName string) bool
}

// Sink observes interpreter events for tracing/telemetry. All methods
// are best-effort; a nil Sink (via NopSink) is always safe to call.
type Sink interface {
	OnAssign(name string, b value.Bound)
	OnTool(callID, toolName string, args map[string]value.Bound, result value.Bound, err error)
	OnQllm(saveAs, instruction string, result value.Bound)
	OnPrint(text string, cap value.Capability)
	OnFinal(text string)
	OnPolicyDenied(toolName, reason string)
}

type nopSink struct{}

func (nopSink) OnAssign(string, value.Bound)                                     {}
func (nopSink) OnTool(string, string, map[string]value.Bound, value.Bound, error) {}
func (nopSink) OnQllm(string, string, value.Bound)                               {}
func (nopSink) OnPrint(string, value.Capability)                                {}
func (nopSink) OnFinal(string)                                                   {}
func (nopSink) OnPolicyDenied(string, string)                                    {}

// NopSink is a Sink that discards every event.
var NopSink Sink = nopSink{}

// OutcomeKind tags why Run stopped.
type OutcomeKind int

const (
	// OutcomeFinal: the program reached a `final(...)` step.
	OutcomeFinal OutcomeKind = iota
	// OutcomeClientTool: the program targeted a client-owned tool; the
	// caller is expected to execute it out-of-band and resume a new run
	// with the result bound in the next plan's input, per spec.md §4.5 S3.
	OutcomeClientTool
)

// Outcome is what a completed Run produced.
type Outcome struct {
	Kind OutcomeKind

	// OutcomeFinal
	FinalText string
	FinalCap  value.Capability

	// OutcomeClientTool
	ToolCallID string
	ToolName   string
	ToolArgs   map[string]value.Bound
	ArgCap     value.Capability
	ControlCap value.Capability
}

// ClientToolFunc reports whether a tool name is client-owned: the
// interpreter stops rather than calling ToolCaller for it.
type ClientToolFunc func(toolName string) bool

// Interpreter evaluates one ir.Program against an Env, threading
// capability propagation through every derivation per value's
// WithSource/Merge contract.
type Interpreter struct {
	Env        *Env
	Tools      ToolCaller
	Qllm       QllmCaller
	Policy     PolicyGate
	SideEffect SideEffectChecker
	IsClient   ClientToolFunc
	Sink       Sink

	callSeq int
}

// New builds an Interpreter. sink may be nil (treated as NopSink).
func New(env *Env, tools ToolCaller, qllm QllmCaller, policy PolicyGate, se SideEffectChecker, isClient ClientToolFunc, sink Sink) *Interpreter {
	if sink == nil {
		sink = NopSink
	}
	return &Interpreter{Env: env, Tools: tools, Qllm: qllm, Policy: policy, SideEffect: se, IsClient: isClient, Sink: sink}
}

// Run executes a program's steps in order until a final/client-tool
// outcome, a raise, or a context cancellation. ctx is checked before
// every tool and qllm call, the suspension points spec.md §5 names.
func (in *Interpreter) Run(ctx context.Context, prog *ir.Program) (*Outcome, *camelerr.Diagnostic) {
	return in.execSteps(ctx, prog.Steps, value.Trust())
}

// execSteps runs a step sequence under an enclosing control capability
// (the merged capability of every if/for guard the steps are nested
// under). It returns a non-nil Outcome the instant a final or
// client-tool step completes; nil, nil means the sequence ran to
// completion without stopping. The parser does not require a terminal
// final step, so a top-level program may also end this way; the run
// loop then produces a fallback reply.
func (in *Interpreter) execSteps(ctx context.Context, steps []ir.Step, controlCap value.Capability) (*Outcome, *camelerr.Diagnostic) {
	for _, step := range steps {
		outcome, diag := in.execStep(ctx, step, controlCap)
		if diag != nil {
			return nil, diag
		}
		if outcome != nil {
			return outcome, nil
		}
	}
	return nil, nil
}

func (in *Interpreter) execStep(ctx context.Context, step ir.Step, controlCap value.Capability) (*Outcome, *camelerr.Diagnostic) {
	switch step.Kind {
	case ir.StepAssign:
		b, diag := in.eval(step.Expr, controlCap)
		if diag != nil {
			return nil, diag
		}
		in.Env.Set(step.Target, b)
		in.Sink.OnAssign(step.Target, b)
		return nil, nil

	case ir.StepUnpack:
		b, diag := in.eval(step.Expr, controlCap)
		if diag != nil {
			return nil, diag
		}
		items := sequenceOf(b.Value)
		if items == nil || len(items) != len(step.Targets) {
			return nil, in.diagAt(step.Loc, b.Cap, "cannot unpack value of %d elements into %d targets", len(items), len(step.Targets))
		}
		for i, name := range step.Targets {
			nb := value.Bound{Value: items[i], Cap: value.Merge(b.Cap)}
			in.Env.Set(name, nb)
			in.Sink.OnAssign(name, nb)
		}
		return nil, nil

	case ir.StepTool:
		return in.execTool(ctx, step, controlCap)

	case ir.StepQllm:
		return in.execQllm(ctx, step, controlCap)

	case ir.StepIf:
		condB, diag := in.eval(step.Cond, controlCap)
		if diag != nil {
			return nil, diag
		}
		nestedControl := value.Merge(controlCap, condB.Cap)
		if condB.Value.Truthy() {
			return in.execSteps(ctx, step.Then, nestedControl)
		}
		return in.execSteps(ctx, step.Else, nestedControl)

	case ir.StepFor:
		return in.execFor(ctx, step, controlCap)

	case ir.StepRaise:
		errB, diag := in.eval(step.Error, controlCap)
		if diag != nil {
			return nil, diag
		}
		msg := errB.Value.Str()
		if errB.Cap.Trusted {
			return nil, camelerr.NewTrustedAt(camelerr.StageExecute, step.Loc.Line, step.Loc.Column, step.Loc.LineText, "%s", msg)
		}
		return nil, camelerr.NewUntrusted(camelerr.StageExecute, "%s", msg)

	case ir.StepFinal:
		text, cap_, diag := in.renderTemplate(step.Text, step.Loc, controlCap)
		if diag != nil {
			return nil, diag
		}
		in.Sink.OnFinal(text)
		return &Outcome{Kind: OutcomeFinal, FinalText: text, FinalCap: cap_}, nil

	default:
		return nil, camelerr.NewTrustedAt(camelerr.StageExecute, step.Loc.Line, step.Loc.Column, step.Loc.LineText, "unknown step kind")
	}
}

func (in *Interpreter) execFor(ctx context.Context, step ir.Step, controlCap value.Capability) (*Outcome, *camelerr.Diagnostic) {
	iterB, diag := in.eval(step.Iterable, controlCap)
	if diag != nil {
		return nil, diag
	}
	items := sequenceOf(iterB.Value)
	if items == nil {
		return nil, in.diagAt(step.Loc, iterB.Cap, "object of type %q is not iterable", iterB.Value.Kind())
	}
	nestedControl := value.Merge(controlCap, iterB.Cap)
	names := step.ForItems
	if step.ForItem != "" {
		names = []string{step.ForItem}
	}
	snap := in.Env.snapshot(names)
	defer in.Env.restore(snap)

	for _, item := range items {
		itemCap := value.Merge(iterB.Cap)
		if len(names) == 1 {
			in.Env.Set(names[0], value.Bound{Value: item, Cap: itemCap})
		} else {
			parts := sequenceOf(item)
			if parts == nil || len(parts) != len(names) {
				return nil, in.diagAt(step.Loc, iterB.Cap, "cannot unpack loop item into %d targets", len(names))
			}
			for i, n := range names {
				in.Env.Set(n, value.Bound{Value: parts[i], Cap: itemCap})
			}
		}
		outcome, d := in.execSteps(ctx, step.Body, nestedControl)
		if d != nil {
			return nil, d
		}
		if outcome != nil {
			return outcome, nil
		}
	}
	return nil, nil
}

// execTool evaluates arguments, applies the policy gate for
// state-changing tools, and either stops the run (client-owned tools)
// or invokes ToolCaller and binds its result.
func (in *Interpreter) execTool(ctx context.Context, step ir.Step, controlCap value.Capability) (*Outcome, *camelerr.Diagnostic) {
	if step.ToolName == "print" {
		return in.execPrint(ctx, step, controlCap)
	}

	args := make(map[string]value.Bound, len(step.ArgOrder))
	argCap := value.Trust()
	for _, name := range step.ArgOrder {
		b, diag := in.eval(step.Args[name], controlCap)
		if diag != nil {
			return nil, diag
		}
		args[name] = b
		argCap = value.Merge(argCap, b.Cap)
	}
	argCap = value.Merge(argCap, controlCap)

	if in.IsClient != nil && in.IsClient(step.ToolName) {
		in.callSeq++
		callID := fmt.Sprintf("call-%d", in.callSeq)
		return &Outcome{
			Kind: OutcomeClientTool, ToolCallID: callID, ToolName: step.ToolName,
			ToolArgs: args, ArgCap: argCap, ControlCap: controlCap,
		}, nil
	}

	stateChanging := in.SideEffect == nil || !in.SideEffect.SideEffectFree(step.ToolName)
	if stateChanging && in.Policy != nil {
		if allow, reason := in.Policy.Allow(step.ToolName, argCap, controlCap); !allow {
			in.Sink.OnPolicyDenied(step.ToolName, reason)
			return nil, camelerr.NewTrustedAt(camelerr.StageExecute, step.Loc.Line, step.Loc.Column, step.Loc.LineText,
				"tool %q denied by policy: %s", step.ToolName, reason)
		}
	}

	select {
	case <-ctx.Done():
		return nil, camelerr.NewTrusted(camelerr.StageExecute, "%s", camelerr.ErrCancelled.Error())
	default:
	}

	in.callSeq++
	callID := fmt.Sprintf("call-%d", in.callSeq)
	result, err := in.Tools.CallTool(ctx, callID, step.ToolName, args, step.ArgOrder)
	resultCap := argCap.WithSource(value.ToolSource(step.ToolName))
	resultCap.Trusted = false
	resultB := value.Bound{Value: result, Cap: resultCap}
	in.Sink.OnTool(callID, step.ToolName, args, resultB, err)
	if err != nil {
		return nil, camelerr.NewTrustedAt(camelerr.StageExecute, step.Loc.Line, step.Loc.Column, step.Loc.LineText,
			"tool %q failed: %v", step.ToolName, err)
	}
	if step.SaveAs != "" {
		in.Env.Set(step.SaveAs, resultB)
		in.Sink.OnAssign(step.SaveAs, resultB)
	}
	return nil, nil
}

func (in *Interpreter) execPrint(ctx context.Context, step ir.Step, controlCap value.Capability) (*Outcome, *camelerr.Diagnostic) {
	cap_ := value.Trust()
	parts := make([]string, 0, len(step.ArgOrder))
	for _, name := range step.ArgOrder {
		b, diag := in.eval(step.Args[name], controlCap)
		if diag != nil {
			return nil, diag
		}
		cap_ = value.Merge(cap_, b.Cap)
		parts = append(parts, b.Value.Str())
	}
	text := strings.Join(parts, " ")
	in.Sink.OnPrint(text, value.Merge(cap_, controlCap))
	if step.SaveAs != "" {
		nb := value.Bound{Value: value.Null, Cap: value.Merge(cap_, controlCap)}
		in.Env.Set(step.SaveAs, nb)
		in.Sink.OnAssign(step.SaveAs, nb)
	}
	return nil, nil
}

func (in *Interpreter) execQllm(ctx context.Context, step ir.Step, controlCap value.Capability) (*Outcome, *camelerr.Diagnostic) {
	inputB, diag := in.eval(step.Input, controlCap)
	if diag != nil {
		return nil, diag
	}

	select {
	case <-ctx.Done():
		return nil, camelerr.NewTrusted(camelerr.StageExecute, "%s", camelerr.ErrCancelled.Error())
	default:
	}

	// Every quarantined extraction taints the strict-dependency set for
	// the rest of the run, whether or not its result ever reaches a
	// tool call (spec.md §3 invariant 3, §4.4(c)).
	if in.Policy != nil {
		in.Policy.NoteExtraction()
	}

	result, err := in.Qllm.CallQllm(ctx, step.Instruction, inputB, step.Schema)
	if err != nil {
		return nil, camelerr.NewTrustedAt(camelerr.StageExecute, step.Loc.Line, step.Loc.Column, step.Loc.LineText,
			"extraction failed: %v", err)
	}
	cap_ := value.Merge(inputB.Cap, controlCap).WithSource(value.QllmSource(step.SaveAs)).ForceUntrusted()
	resultB := value.Bound{Value: result, Cap: cap_}
	in.Sink.OnQllm(step.SaveAs, step.Instruction, resultB)
	if step.SaveAs != "" {
		in.Env.Set(step.SaveAs, resultB)
		in.Sink.OnAssign(step.SaveAs, resultB)
	}
	return nil, nil
}

func (in *Interpreter) diagAt(loc ir.SourceLoc, cap_ value.Capability, format string, args ...any) *camelerr.Diagnostic {
	if cap_.Trusted {
		return camelerr.NewTrustedAt(camelerr.StageExecute, loc.Line, loc.Column, loc.LineText, format, args...)
	}
	return camelerr.NewUntrusted(camelerr.StageExecute, format, args...)
}

// sequenceOf returns the elements of a list or tuple, the one-rune
// strings of a string, or the keys of a dict, for iteration; nil if v
// is not iterable this way.
func sequenceOf(v value.Value) []value.Value {
	switch v.Kind() {
	case value.KindList:
		items, _ := v.AsList()
		return items
	case value.KindTuple:
		items, _ := v.AsTuple()
		return items
	case value.KindString:
		s, _ := v.AsString()
		runes := []rune(s)
		out := make([]value.Value, len(runes))
		for i, r := range runes {
			out[i] = value.String(string(r))
		}
		return out
	case value.KindDict:
		keys := v.DictKeys()
		out := make([]value.Value, len(keys))
		for i, k := range keys {
			out[i] = value.String(k)
		}
		return out
	default:
		return nil
	}
}
