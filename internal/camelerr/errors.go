// Package camelerr carries the core's error taxonomy (spec.md §7):
// sentinel errors for control-flow outcomes, and a structured Diagnostic
// type for everything that feeds a planner repair prompt. Grounded on
// internal/agent/errors.go's sentinel-plus-structured-error idiom.
package camelerr

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for loop-level outcomes.
var (
	// ErrMaxRetries indicates the planner loop exhausted its repair budget.
	ErrMaxRetries = errors.New("max plan retries exceeded")

	// ErrCancelled indicates the caller's context was cancelled at a
	// suspension point.
	ErrCancelled = errors.New("run cancelled")

	// ErrMaxSteps indicates a program exceeded the 64-step budget.
	ErrMaxSteps = errors.New("program exceeds maximum step budget")

	// ErrClientTool names a run that stopped because a client-owned tool
	// was targeted. runloop.Run does not return it: a client-tool stop
	// comes back with a nil error and Result.ClientToolCall set.
	ErrClientTool = errors.New("client tool invoked")
)

// Stage identifies which subsystem produced an Issue or Diagnostic.
type Stage string

const (
	StagePlan    Stage = "plan"
	StageExecute Stage = "execute"
)

// maxIssueMessageLen bounds repair-prompt issue text (spec.md §7).
const maxIssueMessageLen = 400

// Diagnostic is a structured error carrying the stage, trust flag, and
// (when available) the 1-based source location the repair prompt should
// quote back to the planner model.
type Diagnostic struct {
	Stage    Stage
	Message  string
	Trusted  bool
	Line     int // 0 if not applicable
	Column   int
	LineText string
	Cause    error
}

func (d *Diagnostic) Error() string {
	var sb strings.Builder
	sb.WriteString(string(d.Stage))
	sb.WriteString(": ")
	sb.WriteString(d.Message)
	if d.Line > 0 {
		fmt.Fprintf(&sb, " (line %d, column %d)", d.Line, d.Column)
	}
	return sb.String()
}

func (d *Diagnostic) Unwrap() error { return d.Cause }

// Truncate clamps a diagnostic message to maxIssueMessageLen, the bound
// spec.md §7 places on issue text fed back into repair prompts.
func Truncate(msg string) string {
	if len(msg) <= maxIssueMessageLen {
		return msg
	}
	return msg[:maxIssueMessageLen-3] + "..."
}

// NewTrusted builds a parser/interpreter diagnostic — always trusted,
// since it is produced by the core itself rather than model text.
func NewTrusted(stage Stage, format string, args ...any) *Diagnostic {
	return &Diagnostic{
		Stage:   stage,
		Message: Truncate(fmt.Sprintf(format, args...)),
		Trusted: true,
	}
}

// NewTrustedAt is NewTrusted with a source location attached.
func NewTrustedAt(stage Stage, line, column int, lineText string, format string, args ...any) *Diagnostic {
	return &Diagnostic{
		Stage:    stage,
		Message:  Truncate(fmt.Sprintf(format, args...)),
		Trusted:  true,
		Line:     line,
		Column:   column,
		LineText: lineText,
	}
}

// NewUntrusted builds a diagnostic whose text derives from model output
// (e.g. a `raise` step's runtime error whose capability is untrusted).
// Untrusted diagnostic text must never be echoed verbatim into a repair
// prompt — see Redact.
func NewUntrusted(stage Stage, format string, args ...any) *Diagnostic {
	return &Diagnostic{
		Stage:   stage,
		Message: Truncate(fmt.Sprintf(format, args...)),
		Trusted: false,
	}
}

// Redact replaces untrusted diagnostic text with a fixed placeholder
// before it is shown to the next planner attempt, preventing
// prompt-injection echo (spec.md §7, §9).
func Redact(d *Diagnostic) string {
	if d == nil {
		return ""
	}
	if d.Trusted {
		return d.Error()
	}
	return fmt.Sprintf("%s: untrusted execution error (redacted)", d.Stage)
}
