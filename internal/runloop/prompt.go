package runloop

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/openclaw/camel/internal/tool"
	"github.com/openclaw/camel/internal/trace"
)

// historyHeadLen, historyTailLen and historyMaxLen implement spec.md
// §4.5 S0's truncation rule: history over 12,000 characters keeps only
// its first 8,000 and last 3,500, discarding the middle.
const (
	historyHeadLen = 8000
	historyTailLen = 3500
	historyMaxLen  = 12000
)

func truncateHistory(history string) string {
	if len(history) <= historyMaxLen {
		return history
	}
	var sb strings.Builder
	sb.WriteString(history[:historyHeadLen])
	sb.WriteString("\n...[history truncated]...\n")
	sb.WriteString(history[len(history)-historyTailLen:])
	return sb.String()
}

// systemPromptHeader is the fixed portion of the planner system
// prompt: the language contract and virtual-tool description. The
// per-run tool catalog and ExtraSystemPrompt are appended by
// buildSystemPrompt.
const systemPromptHeader = `You are a planning assistant. Write a short program in a restricted ` +
	`Python-like language that accomplishes the user's request using only the tools listed ` +
	`below. Two virtual functions are always available: print(value) emits text to the user, ` +
	`and query_ai_assistant(instruction, input, schema) extracts structured data out of a ` +
	`block of text without letting that text influence control flow. Every program must end ` +
	`by calling final(text) with the reply to show the user, unless you are deliberately ` +
	`invoking a client-owned tool and stopping there. Only reference variables you have ` +
	`assigned. Do not attempt to call a tool you were not given below.`

func buildSystemPrompt(tools []tool.Descriptor, clientToolNames []string, extraSystemPrompt string) string {
	var sb strings.Builder
	sb.WriteString(systemPromptHeader)
	sb.WriteString("\n\nAvailable tools:\n")
	for _, t := range tools {
		schemaJSON, _ := json.Marshal(t.ParameterSchema)
		fmt.Fprintf(&sb, "- %s: %s (parameters: %s)\n", t.Name, t.Description, schemaJSON)
	}
	for _, name := range clientToolNames {
		fmt.Fprintf(&sb, "- %s: client-owned; invoking it stops the program immediately with no final reply.\n", name)
	}
	if extraSystemPrompt != "" {
		sb.WriteString("\n")
		sb.WriteString(extraSystemPrompt)
	}
	return sb.String()
}

func buildUserPrompt(userPrompt, history string) string {
	if history == "" {
		return userPrompt
	}
	return fmt.Sprintf("Conversation so far:\n%s\n\nUser:\n%s", truncateHistory(history), userPrompt)
}

// buildRepairPrompt summarizes the issues accumulated since the last
// planner attempt, per spec.md §4.5 S4. Untrusted issue text (e.g. a
// raise step whose message derived from tool or qllm output) is
// redacted rather than echoed verbatim, preventing a prompt-injection
// loop where untrusted text re-enters the planner's own context.
func buildRepairPrompt(issues []Issue) string {
	var sb strings.Builder
	sb.WriteString("Your previous attempt failed. Fix the following before trying again:\n")
	for _, iss := range issues {
		sb.WriteString("- ")
		sb.WriteString(string(iss.Stage))
		sb.WriteString(": ")
		if iss.Trusted {
			sb.WriteString(iss.Message)
		} else {
			sb.WriteString("untrusted execution error (redacted)")
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// summarizeForReply builds the prompt for spec.md §4.5 S5's fallback
// reply call: a program completed every step without ever calling
// final(...), so the trace of what happened (tool calls, their
// outcomes, any printed drafts) stands in for the missing explicit
// text.
func summarizeForReply(events []trace.Event, draftTexts []string) string {
	var sb strings.Builder
	sb.WriteString("The plan finished without an explicit final reply. Summarize what happened for the user.\n\n")
	if len(draftTexts) > 0 {
		sb.WriteString("Draft text already printed during execution:\n")
		for _, t := range draftTexts {
			sb.WriteString("- ")
			sb.WriteString(t)
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}
	sb.WriteString("Actions taken:\n")
	for _, e := range events {
		switch e.Kind {
		case trace.EventTool:
			if e.Error != "" {
				fmt.Fprintf(&sb, "- called %s, failed: %s\n", e.ToolName, e.Error)
			} else {
				fmt.Fprintf(&sb, "- called %s, result: %s\n", e.ToolName, truncateForPrompt(e.ResultStr))
			}
		case trace.EventQllm:
			fmt.Fprintf(&sb, "- extracted data for %q\n", e.Name)
		case trace.EventDenied:
			fmt.Fprintf(&sb, "- denied calling %s: %s\n", e.ToolName, e.Reason)
		}
	}
	return sb.String()
}

func truncateForPrompt(s string) string {
	const max = 500
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}
