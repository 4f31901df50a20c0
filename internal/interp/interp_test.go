package interp

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/openclaw/camel/internal/camelerr"
	"github.com/openclaw/camel/internal/ir"
	"github.com/openclaw/camel/internal/value"
)

type fakeTools struct {
	result value.Value
	err    error
	calls  []string
}

func (f *fakeTools) CallTool(ctx context.Context, callID, toolName string, args map[string]value.Bound, argOrder []string) (value.Value, error) {
	f.calls = append(f.calls, toolName)
	return f.result, f.err
}

type fakeQllm struct {
	result value.Value
	err    error
}

func (f *fakeQllm) CallQllm(ctx context.Context, instruction string, input value.Bound, schema ir.Schema) (value.Value, error) {
	return f.result, f.err
}

type fakePolicy struct {
	allow          bool
	reason         string
	calls          int
	noteExtraction int
}

func (f *fakePolicy) Allow(toolName string, argCap, controlCap value.Capability) (bool, string) {
	f.calls++
	return f.allow, f.reason
}

func (f *fakePolicy) NoteExtraction() {
	f.noteExtraction++
}

type alwaysSideEffecting struct{}

func (alwaysSideEffecting) SideEffectFree(string) bool { return false }

type recordingSink struct {
	printed []string
	final   string
	denied  []string
}

func (s *recordingSink) OnAssign(string, value.Bound)                                     {}
func (s *recordingSink) OnTool(string, string, map[string]value.Bound, value.Bound, error) {}
func (s *recordingSink) OnQllm(string, string, value.Bound)                               {}
func (s *recordingSink) OnPrint(text string, cap value.Capability)                        { s.printed = append(s.printed, text) }
func (s *recordingSink) OnFinal(text string)                                              { s.final = text }
func (s *recordingSink) OnPolicyDenied(toolName, reason string)                           { s.denied = append(s.denied, toolName) }

func strLit(s string) ir.Expr { return ir.Expr{Kind: ir.ExprLiteral, LitKind: ir.LitString, LitStr: s} }
func varExpr(name string) ir.Expr { return ir.Expr{Kind: ir.ExprVar, Name: name} }

func TestRunFinalRendersTemplate(t *testing.T) {
	prog := &ir.Program{Steps: []ir.Step{
		{Kind: ir.StepAssign, Target: "x", Expr: strLit("world")},
		{Kind: ir.StepFinal, Text: "hello {{x}}"},
	}}
	sink := &recordingSink{}
	it := New(NewEnv(), &fakeTools{}, &fakeQllm{}, &fakePolicy{allow: true}, alwaysSideEffecting{}, nil, sink)

	outcome, diag := it.Run(context.Background(), prog)
	require.Nil(t, diag)
	require.NotNil(t, outcome)
	require.Equal(t, OutcomeFinal, outcome.Kind)
	require.Equal(t, "hello world", outcome.FinalText)
	require.True(t, outcome.FinalCap.Trusted)
	require.Equal(t, "hello world", sink.final)
}

func TestToolResultIsUntrustedAndTaints(t *testing.T) {
	tools := &fakeTools{result: value.String("shady content")}
	prog := &ir.Program{Steps: []ir.Step{
		{Kind: ir.StepTool, ToolName: "search", SaveAs: "r", Args: map[string]ir.Expr{"q": strLit("x")}, ArgOrder: []string{"q"}},
		{Kind: ir.StepFinal, Text: "{{r}}"},
	}}
	it := New(NewEnv(), tools, &fakeQllm{}, &fakePolicy{allow: true}, alwaysSideEffecting{}, nil, NopSink)

	outcome, diag := it.Run(context.Background(), prog)
	require.Nil(t, diag)
	require.Equal(t, "shady content", outcome.FinalText)
	require.False(t, outcome.FinalCap.Trusted)
	require.Contains(t, outcome.FinalCap.SourceList(), "tool:search")
	require.Equal(t, []string{"search"}, tools.calls)
}

func TestQllmResultIsAlwaysUntrusted(t *testing.T) {
	qllm := &fakeQllm{result: value.String("extracted")}
	policy := &fakePolicy{allow: true}
	prog := &ir.Program{Steps: []ir.Step{
		{Kind: ir.StepQllm, SaveAs: "e", Instruction: "extract the date", Input: strLit("trusted input"),
			Schema: ir.Schema{Description: "extraction"}},
		{Kind: ir.StepFinal, Text: "{{e}}"},
	}}
	it := New(NewEnv(), &fakeTools{}, qllm, policy, alwaysSideEffecting{}, nil, NopSink)

	outcome, diag := it.Run(context.Background(), prog)
	require.Nil(t, diag)
	require.False(t, outcome.FinalCap.Trusted)
	require.Equal(t, 1, policy.noteExtraction)
}

func TestQllmTaintsPolicyEvenWhenResultOnlyPrinted(t *testing.T) {
	qllm := &fakeQllm{result: value.String("extracted")}
	policy := &fakePolicy{allow: true}
	prog := &ir.Program{Steps: []ir.Step{
		{Kind: ir.StepQllm, SaveAs: "e", Instruction: "extract the date", Input: strLit("trusted input"),
			Schema: ir.Schema{Description: "extraction"}},
		{Kind: ir.StepTool, ToolName: "print", Args: map[string]ir.Expr{"text": strLit("done")}, ArgOrder: []string{"text"}},
		{Kind: ir.StepFinal, Text: "ok"},
	}}
	it := New(NewEnv(), &fakeTools{}, qllm, policy, alwaysSideEffecting{}, nil, NopSink)

	_, diag := it.Run(context.Background(), prog)
	require.Nil(t, diag)
	require.Equal(t, 1, policy.noteExtraction)
}

func TestPolicyDeniesStateChangingCall(t *testing.T) {
	policy := &fakePolicy{allow: false, reason: "untrusted data reaching a state-changing tool"}
	sink := &recordingSink{}
	prog := &ir.Program{Steps: []ir.Step{
		{Kind: ir.StepTool, ToolName: "send_email", Args: map[string]ir.Expr{"to": strLit("a@example.com")}, ArgOrder: []string{"to"}},
		{Kind: ir.StepFinal, Text: "done"},
	}}
	it := New(NewEnv(), &fakeTools{}, &fakeQllm{}, policy, alwaysSideEffecting{}, nil, sink)

	outcome, diag := it.Run(context.Background(), prog)
	require.Nil(t, outcome)
	require.NotNil(t, diag)
	require.Equal(t, camelerr.StageExecute, diag.Stage)
	require.Equal(t, 1, policy.calls)
	require.Equal(t, []string{"send_email"}, sink.denied)
}

func TestSideEffectFreeToolBypassesPolicy(t *testing.T) {
	policy := &fakePolicy{allow: false, reason: "should never be consulted"}
	se := sideEffectFreeFunc(func(string) bool { return true })
	prog := &ir.Program{Steps: []ir.Step{
		{Kind: ir.StepTool, ToolName: "search", SaveAs: "r", Args: map[string]ir.Expr{"q": strLit("x")}, ArgOrder: []string{"q"}},
		{Kind: ir.StepFinal, Text: "ok"},
	}}
	it := New(NewEnv(), &fakeTools{result: value.String("x")}, &fakeQllm{}, policy, se, nil, NopSink)

	outcome, diag := it.Run(context.Background(), prog)
	require.Nil(t, diag)
	require.NotNil(t, outcome)
	require.Equal(t, 0, policy.calls)
}

type sideEffectFreeFunc func(string) bool

func (f sideEffectFreeFunc) SideEffectFree(name string) bool { return f(name) }

func TestClientOwnedToolStopsRun(t *testing.T) {
	isClient := func(name string) bool { return name == "send_email" }
	prog := &ir.Program{Steps: []ir.Step{
		{Kind: ir.StepTool, ToolName: "send_email", Args: map[string]ir.Expr{"to": strLit("a@example.com")}, ArgOrder: []string{"to"}},
	}}
	it := New(NewEnv(), &fakeTools{}, &fakeQllm{}, &fakePolicy{allow: true}, alwaysSideEffecting{}, isClient, NopSink)

	outcome, diag := it.Run(context.Background(), prog)
	require.Nil(t, diag)
	require.NotNil(t, outcome)
	require.Equal(t, OutcomeClientTool, outcome.Kind)
	require.Equal(t, "send_email", outcome.ToolName)
	require.Equal(t, "a@example.com", outcome.ToolArgs["to"].Value.Str())
}

func TestIfBranchTaintsControlCapability(t *testing.T) {
	tools := &fakeTools{result: value.String("untrusted guard source")}
	env := NewEnv()
	prog := &ir.Program{Steps: []ir.Step{
		{Kind: ir.StepTool, ToolName: "search", SaveAs: "r", Args: map[string]ir.Expr{"q": strLit("x")}, ArgOrder: []string{"q"}},
		{Kind: ir.StepIf, Cond: varExpr("r"), Then: []ir.Step{
			{Kind: ir.StepFinal, Text: "branched"},
		}},
	}}
	it := New(env, tools, &fakeQllm{}, &fakePolicy{allow: true}, alwaysSideEffecting{}, nil, NopSink)

	outcome, diag := it.Run(context.Background(), prog)
	require.Nil(t, diag)
	require.NotNil(t, outcome)
	require.False(t, outcome.FinalCap.Trusted)
}

func TestRaisePropagatesTrustedDiagnostic(t *testing.T) {
	prog := &ir.Program{Steps: []ir.Step{
		{Kind: ir.StepRaise, Error: strLit("stop here")},
	}}
	it := New(NewEnv(), &fakeTools{}, &fakeQllm{}, &fakePolicy{allow: true}, alwaysSideEffecting{}, nil, NopSink)

	outcome, diag := it.Run(context.Background(), prog)
	require.Nil(t, outcome)
	require.NotNil(t, diag)
	require.True(t, diag.Trusted)
	require.Contains(t, diag.Error(), "stop here")
}

func TestForLoopUnpacksTuples(t *testing.T) {
	env := NewEnv()
	env.Set("pairs", value.Bound{
		Value: value.List([]value.Value{
			value.Tuple([]value.Value{value.String("a"), value.Int(1)}),
			value.Tuple([]value.Value{value.String("b"), value.Int(2)}),
		}),
		Cap: value.Trust(),
	})
	prog := &ir.Program{Steps: []ir.Step{
		{Kind: ir.StepFor, ForItems: []string{"k", "v"}, Iterable: varExpr("pairs"), Body: []ir.Step{
			{Kind: ir.StepAssign, Target: "last_k", Expr: varExpr("k")},
		}},
		{Kind: ir.StepFinal, Text: "{{last_k}}"},
	}}
	it := New(env, &fakeTools{}, &fakeQllm{}, &fakePolicy{allow: true}, alwaysSideEffecting{}, nil, NopSink)

	outcome, diag := it.Run(context.Background(), prog)
	require.Nil(t, diag)
	require.Equal(t, "b", outcome.FinalText)
}

func TestPrintEmitsTextViaSink(t *testing.T) {
	sink := &recordingSink{}
	prog := &ir.Program{Steps: []ir.Step{
		{Kind: ir.StepTool, ToolName: "print", Args: map[string]ir.Expr{"text": strLit("hi there")}, ArgOrder: []string{"text"}},
		{Kind: ir.StepFinal, Text: "done"},
	}}
	it := New(NewEnv(), &fakeTools{}, &fakeQllm{}, &fakePolicy{allow: true}, alwaysSideEffecting{}, nil, sink)

	_, diag := it.Run(context.Background(), prog)
	require.Nil(t, diag)
	require.Equal(t, []string{"hi there"}, sink.printed)
}
