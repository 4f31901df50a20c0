// Package camelpolicy implements the capability-gated tool policy
// engine of spec.md §4.4: normal mode always allows state-changing
// tools, strict mode denies them whenever an argument or control-flow
// capability is untrusted, or whenever any prior quarantined extraction
// has tainted a monotonic "strict dependency" set for this run.
// Grounded on internal/agent/tool_registry.go's filterToolsByPolicy /
// requiresApproval gating, generalized from a static allow/deny list to
// a per-call capability check.
package camelpolicy

import (
	"fmt"
	"strings"
	"sync"

	"github.com/openclaw/camel/internal/value"
)

// Mode selects the policy engine's strictness.
type Mode int

const (
	// Normal always allows state-changing tool calls.
	Normal Mode = iota
	// Strict denies state-changing tool calls whose argument or
	// control-flow capability is untrusted, and denies every
	// state-changing call once any qllm call has run in this run (see
	// NoteExtraction).
	Strict
)

func (m Mode) String() string {
	if m == Strict {
		return "strict"
	}
	return "normal"
}

// ParseMode accepts "normal"/"strict" case-insensitively, defaulting to
// Normal for anything else.
func ParseMode(s string) Mode {
	if strings.EqualFold(strings.TrimSpace(s), "strict") {
		return Strict
	}
	return Normal
}

// Engine evaluates tool-invocation policy for one run. It is not safe
// for concurrent use across goroutines beyond the single run goroutine
// the interpreter already confines itself to, but guards its tainted
// set with a mutex anyway since telemetry/trace consumers may read it
// from another goroutine while the run proceeds.
type Engine struct {
	mode Mode

	mu      sync.Mutex
	tainted bool // sticky once NoteExtraction has recorded a qllm call
}

// New builds a policy engine for one run in the given mode.
func New(mode Mode) *Engine {
	return &Engine{mode: mode}
}

// Mode reports the engine's configured strictness.
func (e *Engine) Mode() Mode { return e.mode }

// Allow decides whether a state-changing tool call may proceed. argCap
// is the merged capability of every evaluated argument; controlCap is
// the merged capability of every enclosing if/for guard. Side-effect
// free tools never reach Allow — callers gate on that before calling.
func (e *Engine) Allow(toolName string, argCap, controlCap value.Capability) (bool, string) {
	if e.mode == Normal {
		return true, ""
	}
	merged := value.Merge(argCap, controlCap)
	if !merged.Trusted {
		sources := merged.SourceList()
		return false, fmt.Sprintf("state-changing tool in strict mode with untrusted inputs: tool %q has an untrusted dependency (%s)", toolName, strings.Join(sources, ", "))
	}
	e.mu.Lock()
	tainted := e.tainted
	e.mu.Unlock()
	if tainted {
		return false, fmt.Sprintf("state-changing tool in strict mode with untrusted inputs: tool %q denied because this run has already performed a quarantined extraction", toolName)
	}
	return true, ""
}

// NoteExtraction records that a query_ai_assistant call has occurred in
// this run, permanently tainting the strict-dependency set regardless
// of whether the extraction's result ever reaches a tool call (spec.md
// §3 invariant 3, §4.4(c)).
func (e *Engine) NoteExtraction() {
	e.mu.Lock()
	e.tainted = true
	e.mu.Unlock()
}

// Tainted reports whether NoteExtraction has been called in this run,
// i.e. whether a quarantined extraction has occurred.
func (e *Engine) Tainted() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tainted
}
