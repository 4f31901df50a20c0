package camel

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/openclaw/camel/internal/camelerr"
	"github.com/openclaw/camel/internal/llmprovider"
	"github.com/openclaw/camel/internal/tool"
)

// fakeProvider replays a fixed script of responses, one per Complete
// call, so a test can script a planner's attempts deterministically.
type fakeProvider struct {
	name      string
	responses []string
	errs      []error
	calls     int
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Complete(ctx context.Context, req llmprovider.Request) (llmprovider.Response, error) {
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return llmprovider.Response{}, f.errs[i]
	}
	if i >= len(f.responses) {
		return llmprovider.Response{}, fmt.Errorf("fakeProvider %s: no scripted response for call %d", f.name, i)
	}
	return llmprovider.Response{Text: f.responses[i]}, nil
}

func searchTool(content string) tool.Descriptor {
	return tool.Descriptor{
		Name:           "search",
		Description:    "search the web",
		SideEffectFree: true,
		Execute: func(ctx context.Context, callID string, args map[string]any) (tool.Result, error) {
			return tool.Result{Content: content}, nil
		},
	}
}

// sendMessageTool is a state-changing (not side-effect-free) tool:
// calls are recorded in calls so a test can assert whether the
// executor actually ran.
func sendMessageTool(calls *[]map[string]any) tool.Descriptor {
	return tool.Descriptor{
		Name:        "send_message",
		Description: "send a message to a user",
		Execute: func(ctx context.Context, callID string, args map[string]any) (tool.Result, error) {
			*calls = append(*calls, args)
			return tool.Result{Content: "sent"}, nil
		},
	}
}

func aliceExtractionSchema() string {
	return `{"fields": {"name": {"type": "string", "required": True}}}`
}

func TestRun_SimpleFinal(t *testing.T) {
	planner := &fakeProvider{name: "fake-planner", responses: []string{
		`final("the weather is sunny")`,
	}}
	cfg := Config{Planner: planner, PlannerModel: "fake-model"}
	req := Request{UserPrompt: "what's the weather"}

	res, err := Run(context.Background(), cfg, req)
	require.NoError(t, err)
	require.NotNil(t, res.LastAssistant)
	require.Equal(t, "the weather is sunny", res.LastAssistant.Text)
	require.Equal(t, []string{"the weather is sunny"}, res.AssistantTexts)
	require.Nil(t, res.ClientToolCall)
	require.Empty(t, res.Issues)
}

func TestRun_ToolCallThenFinal(t *testing.T) {
	planner := &fakeProvider{name: "fake-planner", responses: []string{
		"result = search(query=\"capital of france\")\nfinal(result.content)",
	}}
	cfg := Config{Planner: planner, PlannerModel: "fake-model"}
	req := Request{
		UserPrompt: "what is the capital of france",
		Tools:      []tool.Descriptor{searchTool("Paris")},
	}

	res, err := Run(context.Background(), cfg, req)
	require.NoError(t, err)
	require.Equal(t, "Paris", res.LastAssistant.Text)
	require.Len(t, res.ToolMetas, 1)
	require.Equal(t, "search", res.ToolMetas[0].Name)
}

func TestRun_ClientToolStop(t *testing.T) {
	planner := &fakeProvider{name: "fake-planner", responses: []string{
		"send_email(to=\"a@example.com\", body=\"hi\")",
	}}
	cfg := Config{Planner: planner, PlannerModel: "fake-model"}
	req := Request{
		UserPrompt:      "email alice",
		ClientToolNames: []string{"send_email"},
	}

	res, err := Run(context.Background(), cfg, req)
	require.NoError(t, err)
	require.NotNil(t, res.ClientToolCall)
	require.Equal(t, "send_email", res.ClientToolCall.Name)
	require.Equal(t, "a@example.com", res.ClientToolCall.Params["to"])
	require.Nil(t, res.LastAssistant)
}

func TestRun_RepairsAfterParseError(t *testing.T) {
	planner := &fakeProvider{name: "fake-planner", responses: []string{
		"this is not a valid program &&& @@@",
		`final("recovered")`,
	}}
	cfg := Config{Planner: planner, PlannerModel: "fake-model"}
	req := Request{UserPrompt: "do something"}

	res, err := Run(context.Background(), cfg, req)
	require.NoError(t, err)
	require.Equal(t, "recovered", res.LastAssistant.Text)
	require.Equal(t, 2, planner.calls)
}

func TestRun_ExhaustsRetries(t *testing.T) {
	planner := &fakeProvider{name: "fake-planner", responses: []string{
		"bad &&& @@@",
		"still bad &&& @@@",
	}}
	cfg := Config{Planner: planner, PlannerModel: "fake-model", MaxPlanRetries: 2}
	req := Request{UserPrompt: "do something"}

	res, err := Run(context.Background(), cfg, req)
	require.ErrorIs(t, err, camelerr.ErrMaxRetries)
	require.NotEmpty(t, res.Issues)
	require.Equal(t, 2, planner.calls)
}

func TestRun_FallbackReplyWhenNoFinal(t *testing.T) {
	planner := &fakeProvider{name: "fake-planner", responses: []string{
		"result = search(query=\"weather\")\nprint(text=result.content)",
	}}
	replier := &fakeProvider{name: "fake-replier", responses: []string{
		"Here's a summary of what happened.",
	}}
	cfg := Config{Planner: planner, PlannerModel: "fake-model", FinalReplier: replier, FinalReplyModel: "fake-reply-model"}
	req := Request{
		UserPrompt: "what's the weather",
		Tools:      []tool.Descriptor{searchTool("cloudy")},
	}

	res, err := Run(context.Background(), cfg, req)
	require.NoError(t, err)
	require.NotNil(t, res.LastAssistant)
	require.Equal(t, "Here's a summary of what happened.", res.LastAssistant.Text)
	require.Equal(t, "fake-replier", res.LastAssistant.Provider)
	require.Contains(t, res.AssistantTexts, "cloudy")
	require.Contains(t, res.AssistantTexts, "Here's a summary of what happened.")
}

func TestRun_RequiresPlanner(t *testing.T) {
	_, err := Run(context.Background(), Config{}, Request{UserPrompt: "hi"})
	require.Error(t, err)
}

// TestRun_SpecScenarios table-drives the six named end-to-end
// scenarios: arithmetic/final, qllm extraction, strict-mode denial of
// a tainted call, normal-mode allowance of the same, parser repair,
// and unknown-tool repair.
func TestRun_SpecScenarios(t *testing.T) {
	cases := []struct {
		name string
		run  func(t *testing.T)
	}{
		{
			name: "arithmetic_and_final",
			run: func(t *testing.T) {
				planner := &fakeProvider{name: "fake-planner", responses: []string{
					"value = 1 + 2 * 3\nfinal(\"ok\") if value == 7 else final(\"bad\")",
				}}
				res, err := Run(context.Background(), Config{Planner: planner, PlannerModel: "fake-model"}, Request{UserPrompt: "compute"})
				require.NoError(t, err)
				require.Equal(t, []string{"ok"}, res.AssistantTexts)
				require.Empty(t, res.ToolMetas)
				require.NotEmpty(t, res.ExecutionTrace)
				require.Equal(t, "final", string(res.ExecutionTrace[len(res.ExecutionTrace)-1].Kind))
			},
		},
		{
			name: "qllm_extraction",
			run: func(t *testing.T) {
				planner := &fakeProvider{name: "fake-planner", responses: []string{
					`r = query_ai_assistant("extract name", "name is Alice", ` + aliceExtractionSchema() + `)` + "\nfinal(r.name)",
				}}
				extractor := &fakeProvider{name: "fake-extractor", responses: []string{
					`{"have_enough_information": true, "name": "Alice"}`,
				}}
				res, err := Run(context.Background(), Config{
					Planner: planner, PlannerModel: "fake-model",
					Extractor: extractor, ExtractorModel: "fake-extract-model",
				}, Request{UserPrompt: "extract"})
				require.NoError(t, err)
				require.Equal(t, []string{"Alice"}, res.AssistantTexts)
				require.Equal(t, 1, extractor.calls)
			},
		},
		{
			name: "strict_mode_denies_tainted_call",
			run: func(t *testing.T) {
				var calls []map[string]any
				planner := &fakeProvider{name: "fake-planner", responses: []string{
					`r = query_ai_assistant("extract name", "name is Alice", ` + aliceExtractionSchema() + `)` +
						"\nsend_message(to=\"x\", body=r.name)",
				}}
				extractor := &fakeProvider{name: "fake-extractor", responses: []string{
					`{"have_enough_information": true, "name": "Alice"}`,
				}}
				res, err := Run(context.Background(), Config{
					Planner: planner, PlannerModel: "fake-model",
					Extractor: extractor, ExtractorModel: "fake-extract-model",
					EvalMode: "strict",
				}, Request{UserPrompt: "message alice", Tools: []tool.Descriptor{sendMessageTool(&calls)}})
				require.Error(t, err)
				require.Empty(t, calls)
				require.NotNil(t, res.LastToolError)
				require.Equal(t, "send_message", res.LastToolError.Name)
				require.Contains(t, res.LastToolError.Error, "state-changing")
			},
		},
		{
			name: "normal_mode_allows_tainted_call",
			run: func(t *testing.T) {
				var calls []map[string]any
				planner := &fakeProvider{name: "fake-planner", responses: []string{
					`r = query_ai_assistant("extract name", "name is Alice", ` + aliceExtractionSchema() + `)` +
						"\nsend_message(to=\"x\", body=r.name)\nfinal(\"sent\")",
				}}
				extractor := &fakeProvider{name: "fake-extractor", responses: []string{
					`{"have_enough_information": true, "name": "Alice"}`,
				}}
				res, err := Run(context.Background(), Config{
					Planner: planner, PlannerModel: "fake-model",
					Extractor: extractor, ExtractorModel: "fake-extract-model",
					EvalMode: "normal",
				}, Request{UserPrompt: "message alice", Tools: []tool.Descriptor{sendMessageTool(&calls)}})
				require.NoError(t, err)
				require.Len(t, calls, 1)
				require.Equal(t, "Alice", calls[0]["body"])

				found := false
				for _, ev := range res.ExecutionTrace {
					if string(ev.Kind) == "tool" && ev.ToolName == "send_message" {
						found = true
						require.False(t, ev.Trusted)
					}
				}
				require.True(t, found, "expected a tool trace event for send_message")
			},
		},
		{
			name: "parser_repair_recovers",
			run: func(t *testing.T) {
				planner := &fakeProvider{name: "fake-planner", responses: []string{
					"items = [\nfinal(\"bad\")",
					`final("recovered")`,
				}}
				res, err := Run(context.Background(), Config{Planner: planner, PlannerModel: "fake-model"}, Request{UserPrompt: "do something"})
				require.NoError(t, err)
				require.Equal(t, "recovered", res.LastAssistant.Text)
				require.Equal(t, 2, planner.calls)
				require.NotEmpty(t, res.Issues)
				require.True(t, res.Issues[0].Trusted)
			},
		},
		{
			name: "unknown_tool_repair_recovers",
			run: func(t *testing.T) {
				planner := &fakeProvider{name: "fake-planner", responses: []string{
					`open(path="/tmp/x")`,
					`final("recovered")`,
				}}
				res, err := Run(context.Background(), Config{Planner: planner, PlannerModel: "fake-model"}, Request{UserPrompt: "do something"})
				require.NoError(t, err)
				require.Equal(t, "recovered", res.LastAssistant.Text)
				require.Equal(t, 2, planner.calls)
				require.NotEmpty(t, res.Issues)
				require.Contains(t, res.Issues[0].Message, "open")
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, tc.run)
	}
}
