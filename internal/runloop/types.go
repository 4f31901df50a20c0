// Package runloop implements the planner/execution state machine of
// spec.md §4.5: plan, parse, execute, client-tool-stop, repair, reply.
// Grounded on internal/agent/loop.go's AgenticLoop — the same
// multi-turn state machine shape, narrowed from "stream assistant
// tokens and tool-call deltas" to "call a planner model once per
// attempt, interpret its program, repair on failure".
package runloop

import (
	"log/slog"
	"time"

	"github.com/openclaw/camel/internal/camelerr"
	"github.com/openclaw/camel/internal/llmprovider"
	"github.com/openclaw/camel/internal/telemetry"
	"github.com/openclaw/camel/internal/tool"
	"github.com/openclaw/camel/internal/trace"
)

// DefaultMaxPlanRetries is the out-of-the-box repair budget, and also
// the hard ceiling spec.md §4.5/§6 places on any configured override.
const DefaultMaxPlanRetries = 10

// PlannerTokenBudget, ExtractionTokenBudget and ReplyTokenBudget are
// the per-call token ceilings spec.md §5 names for the loop's three
// kinds of model call.
const (
	PlannerTokenBudget    = 2400
	ExtractionTokenBudget = 1200
	ReplyTokenBudget      = 1100
)

// MaxPlanRetriesEnvVar overrides Config.MaxPlanRetries when set, per
// spec.md §6.
const MaxPlanRetriesEnvVar = "OPENCLAW_CAMEL_MAX_PLAN_RETRIES"

// Config configures one Run call's model providers, policy mode, and
// observability hooks. A zero Config is usable: it defaults to strict
// evaluation mode and a 10-attempt repair budget, the same
// "construct a zero value and go" convention the teacher's
// DefaultLoopConfig documents.
type Config struct {
	// EvalMode selects the policy engine's strictness: "normal" or
	// "strict" (default "strict").
	EvalMode string

	// MaxPlanRetries bounds plan/repair attempts, clamped into [1,10].
	// Zero means "use the environment variable or 10".
	MaxPlanRetries int

	// Planner, Extractor, FinalReplier are the model backends for each
	// of the loop's three call sites. If Extractor/FinalReplier are
	// nil, Planner is reused for both, mirroring the teacher's
	// single-provider-by-default configuration.
	Planner      llmprovider.Provider
	Extractor    llmprovider.Provider
	FinalReplier llmprovider.Provider

	// PlannerModel, ExtractorModel, FinalReplyModel name the model
	// string passed to each provider call.
	PlannerModel    string
	ExtractorModel  string
	FinalReplyModel string

	// OnEvent receives lifecycle/tool/assistant events as the run
	// progresses. May be nil.
	OnEvent func(Event)

	// Logger is set to slog.Default() when nil. Run writes no log
	// records to it.
	Logger *slog.Logger

	// Metrics and Tracer are optional observability sinks; nil is a
	// documented no-op for both, matching the teacher's "works with a
	// nil Logger" convention.
	Metrics *telemetry.Metrics
	Tracer  *telemetry.Tracer

	// TraceSink additionally receives every trace.Event besides the
	// always-present in-memory accumulator Run keeps for its Result.
	TraceSink trace.Sink

	// ToolAnnotationFile, if set, is a YAML file path applied to the
	// per-run tool registry via tool.LoadAnnotations and
	// Registry.ApplyAnnotations right after it is
	// built from Request.Tools — letting a host declare sideEffectFree
	// and clientOwned for a batch of tools without writing Go.
	ToolAnnotationFile string
}

// Event is one lifecycle/tool/assistant notification delivered to
// Config.OnEvent, mirroring the teacher's {stream, data} event shape
// (internal/agent/event_emitter.go).
type Event struct {
	Stream string // "lifecycle" | "tool" | "assistant"
	Data   any
}

// Request is one planner run's input, per spec.md §6.
type Request struct {
	UserPrompt        string
	History           string
	Tools             []tool.Descriptor
	ClientToolNames    []string
	ExtraSystemPrompt string
}

// Issue is an accumulated plan/execute failure fed into the next
// repair prompt, per spec.md §3.
type Issue struct {
	Stage   camelerr.Stage
	Message string
	Trusted bool
}

// Usage aggregates token accounting from the run's planner calls.
// Extraction and fallback-reply calls are not counted, and CacheRead
// and CacheWrite are never set.
type Usage struct {
	Input      int
	Output     int
	CacheRead  int
	CacheWrite int
	Total      int
}

func (u *Usage) add(resp llmprovider.Response) {
	u.Input += resp.Usage.PromptTokens
	u.Output += resp.Usage.CompletionTokens
	u.Total += resp.Usage.PromptTokens + resp.Usage.CompletionTokens
}

// AssistantMessage is the run's final provider/model-attributed reply,
// spec.md §6's lastAssistant.
type AssistantMessage struct {
	Provider  string
	Model     string
	Text      string
	Timestamp time.Time
	Usage     Usage
}

// ToolMeta records one tool invocation's identity and structured
// output, one entry per call, per spec.md §6.
type ToolMeta struct {
	Name string
	Meta map[string]any
}

// ToolError is the run's last failing tool invocation, if any.
type ToolError struct {
	Name  string
	Meta  map[string]any
	Error string
}

// ClientToolCall names a client-owned tool the run stopped on,
// per spec.md §4.5 S3.
type ClientToolCall struct {
	Name   string
	Params map[string]any
}

// Result is one Run call's complete output, per spec.md §6.
type Result struct {
	AssistantTexts []string
	ToolMetas      []ToolMeta
	LastAssistant  *AssistantMessage
	LastToolError  *ToolError

	DidSendViaMessagingTool  bool
	MessagingToolSentTexts   []string
	MessagingToolSentTargets []string

	AttemptUsage *Usage

	ClientToolCall *ClientToolCall

	ExecutionTrace []trace.Event
	Issues         []Issue
}
