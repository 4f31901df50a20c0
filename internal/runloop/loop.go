package runloop

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/google/uuid"
	trace2 "go.opentelemetry.io/otel/trace"

	"github.com/openclaw/camel/internal/camelerr"
	"github.com/openclaw/camel/internal/camelpolicy"
	"github.com/openclaw/camel/internal/interp"
	"github.com/openclaw/camel/internal/llmprovider"
	"github.com/openclaw/camel/internal/parser"
	"github.com/openclaw/camel/internal/qllm"
	"github.com/openclaw/camel/internal/telemetry"
	"github.com/openclaw/camel/internal/tool"
	"github.com/openclaw/camel/internal/trace"
	"github.com/openclaw/camel/internal/value"
)

func sanitizeConfig(cfg Config) Config {
	if cfg.EvalMode == "" {
		cfg.EvalMode = "strict"
	}
	if cfg.MaxPlanRetries == 0 {
		cfg.MaxPlanRetries = maxPlanRetriesFromEnv()
	}
	if cfg.MaxPlanRetries > DefaultMaxPlanRetries {
		cfg.MaxPlanRetries = DefaultMaxPlanRetries
	}
	if cfg.MaxPlanRetries < 1 {
		cfg.MaxPlanRetries = 1
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Extractor == nil {
		cfg.Extractor = cfg.Planner
	}
	if cfg.FinalReplier == nil {
		cfg.FinalReplier = cfg.Planner
	}
	return cfg
}

func maxPlanRetriesFromEnv() int {
	raw := os.Getenv(MaxPlanRetriesEnvVar)
	if raw == "" {
		return DefaultMaxPlanRetries
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return DefaultMaxPlanRetries
	}
	if n < 1 {
		return 1
	}
	if n > DefaultMaxPlanRetries {
		return DefaultMaxPlanRetries
	}
	return n
}

// Run executes spec.md §4.5's state machine once: S0 plan, S1 parse,
// S2 execute, S3 client-tool-stop, S4 repair, S5 fallback reply.
func Run(ctx context.Context, cfg Config, req Request) (*Result, error) {
	cfg = sanitizeConfig(cfg)
	if cfg.Planner == nil {
		return nil, fmt.Errorf("runloop: Config.Planner is required")
	}

	registry := tool.NewRegistry()
	for _, d := range req.Tools {
		registry.Register(d)
	}
	if cfg.ToolAnnotationFile != "" {
		af, err := tool.LoadAnnotations(cfg.ToolAnnotationFile)
		if err != nil {
			return nil, fmt.Errorf("runloop: %w", err)
		}
		registry.ApplyAnnotations(af)
	}
	allowedTools := registry.AllowSet(req.ClientToolNames)

	mode := camelpolicy.ParseMode(cfg.EvalMode)
	policyEngine := camelpolicy.New(mode)

	runID := uuid.NewString()
	recorder := trace.NewRecorder()
	acc := &runAccumulator{}
	sink := newRunSink(runID, recorder, cfg.TraceSink, cfg.Metrics, cfg.emitFunc(), acc)

	tCaller := &toolCaller{registry: registry, metrics: cfg.Metrics, emit: cfg.emitFunc(), run: acc}
	extractor := qllm.New(cfg.Extractor, cfg.ExtractorModel)
	qCaller := &qllmCaller{extractor: extractor, metrics: cfg.Metrics}

	env := interp.NewEnv()
	it := interp.New(env, tCaller, qCaller, policyEngine, sideEffectAdapter{registry}, clientToolFunc(req.ClientToolNames), sink)

	systemPrompt := buildSystemPrompt(req.Tools, req.ClientToolNames, req.ExtraSystemPrompt)
	userPrompt := buildUserPrompt(req.UserPrompt, req.History)
	messages := []llmprovider.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: userPrompt},
	}

	var usage Usage
	var issues []Issue
	var clientCall *ClientToolCall
	var finalText string
	var replyProvider llmprovider.Provider
	var replyModel string
	finalProduced := false
	succeeded := false

	for attempt := 1; attempt <= cfg.MaxPlanRetries; attempt++ {
		if err := checkCancelled(ctx); err != nil {
			return cancelledResult(acc, sink, recorder, runID, issues, usage), err
		}

		planCtx := ctx
		var planSpan trace2.Span
		if cfg.Tracer != nil {
			planCtx, planSpan = cfg.Tracer.StartPlan(ctx, attempt)
		}

		resp, err := cfg.Planner.Complete(planCtx, llmprovider.Request{
			Model:       cfg.PlannerModel,
			Messages:    messages,
			Temperature: 0,
			MaxTokens:   PlannerTokenBudget,
		})
		if planSpan != nil {
			telemetry.EndWithError(planSpan, err)
		}
		recordPlanAttempt(cfg, err == nil)
		if err != nil {
			issues = []Issue{{Stage: camelerr.StagePlan, Message: err.Error(), Trusted: true}}
			messages = appendRepair(messages, issues)
			continue
		}
		usage.add(resp)
		messages = append(messages, llmprovider.Message{Role: "assistant", Content: resp.Text})

		parseResult := parser.Parse(resp.Text, allowedTools)
		if parseResult.Err != nil {
			recordPlanAttempt(cfg, false)
			issues = []Issue{{Stage: parseResult.Err.Stage, Message: parseResult.Err.Error(), Trusted: parseResult.Err.Trusted}}
			messages = appendRepair(messages, issues)
			continue
		}
		recordPlanAttempt(cfg, true)

		outcome, diag := it.Run(ctx, parseResult.Program)
		if diag != nil {
			issues = []Issue{{Stage: diag.Stage, Message: diag.Error(), Trusted: diag.Trusted}}
			messages = appendRepair(messages, issues)
			continue
		}

		if outcome == nil {
			// S5: program ran to completion without a final step.
			succeeded = true
			break
		}

		switch outcome.Kind {
		case interp.OutcomeClientTool:
			clientCall = &ClientToolCall{Name: outcome.ToolName, Params: toolArgsToPlain(outcome.ToolArgs)}
			succeeded = true
		case interp.OutcomeFinal:
			finalProduced = true
			succeeded = true
			finalText = outcome.FinalText
			replyProvider = cfg.Planner
			replyModel = cfg.PlannerModel
		}
		break
	}

	if !succeeded {
		return resultFrom(acc, sink, recorder, runID, issues, &usage, nil, nil), camelerr.ErrMaxRetries
	}

	if clientCall != nil {
		return resultFrom(acc, sink, recorder, runID, issues, &usage, clientCall, nil), nil
	}

	if !finalProduced {
		if err := checkCancelled(ctx); err != nil {
			return cancelledResult(acc, sink, recorder, runID, nil, usage), err
		}
		replyText, replyErr := runFallbackReply(ctx, cfg, recorder.ForRun(runID), sink.assistantTexts)
		if replyErr != nil {
			return resultFrom(acc, sink, recorder, runID, issues, &usage, nil, nil), replyErr
		}
		sink.OnFinal(replyText)
		finalText = replyText
		replyProvider = cfg.FinalReplier
		replyModel = cfg.FinalReplyModel
	}

	lastAssistant := &AssistantMessage{
		Provider:  replyProvider.Name(),
		Model:     replyModel,
		Text:      finalText,
		Timestamp: timeNow(),
		Usage:     usage,
	}
	return resultFrom(acc, sink, recorder, runID, issues, &usage, nil, lastAssistant), nil
}

func (cfg Config) emitFunc() func(Event) {
	if cfg.OnEvent == nil {
		return nil
	}
	return cfg.OnEvent
}

func checkCancelled(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

func appendRepair(messages []llmprovider.Message, issues []Issue) []llmprovider.Message {
	return append(messages, llmprovider.Message{Role: "user", Content: buildRepairPrompt(issues)})
}

func recordPlanAttempt(cfg Config, ok bool) {
	if cfg.Metrics == nil {
		return
	}
	outcome := "parsed"
	if !ok {
		outcome = "parse_error"
	}
	cfg.Metrics.PlanAttempts.WithLabelValues(outcome).Inc()
}

func toolArgsToPlain(args map[string]value.Bound) map[string]any {
	out := make(map[string]any, len(args))
	for k, b := range args {
		out[k] = valueToAny(b.Value)
	}
	return out
}

func runFallbackReply(ctx context.Context, cfg Config, events []trace.Event, draftTexts []string) (string, error) {
	prompt := summarizeForReply(events, draftTexts)
	resp, err := cfg.FinalReplier.Complete(ctx, llmprovider.Request{
		Model:       cfg.FinalReplyModel,
		Temperature: 0,
		MaxTokens:   ReplyTokenBudget,
		Messages: []llmprovider.Message{
			{Role: "system", Content: "Write a concise final reply to the user summarizing what the program just did. Do not mention internal variable names or tool call ids."},
			{Role: "user", Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("runloop: fallback reply failed: %w", err)
	}
	return resp.Text, nil
}

func resultFrom(acc *runAccumulator, sink *runSink, recorder *trace.Recorder, runID string, issues []Issue, usage *Usage, clientCall *ClientToolCall, lastAssistant *AssistantMessage) *Result {
	r := &Result{
		AssistantTexts:           sink.assistantTexts,
		ToolMetas:                acc.toolMetas,
		LastAssistant:            lastAssistant,
		LastToolError:            acc.lastToolError,
		DidSendViaMessagingTool:  acc.didSendViaMessaging,
		MessagingToolSentTexts:   acc.messagingSentTexts,
		MessagingToolSentTargets: acc.messagingSentTargets,
		ClientToolCall:           clientCall,
		ExecutionTrace:           recorder.ForRun(runID),
		Issues:                   issues,
	}
	if usage != nil {
		u := *usage
		r.AttemptUsage = &u
	}
	return r
}

func cancelledResult(acc *runAccumulator, sink *runSink, recorder *trace.Recorder, runID string, issues []Issue, usage Usage) *Result {
	r := resultFrom(acc, sink, recorder, runID, issues, &usage, nil, nil)
	r.Issues = append(r.Issues, Issue{Stage: camelerr.StageExecute, Message: camelerr.ErrCancelled.Error(), Trusted: true})
	return r
}
