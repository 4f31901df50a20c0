// Package parser dispatches one planner model output to whichever
// front-end matches its shape: internal/parser/codeparser for the
// restricted-Python dialect, internal/parser/structured for a JSON
// step array. Grounded on internal/agent/loop.go's own two-shape
// response handling (plain text vs tool-call JSON), generalized here
// to two competing grammars for the same IR.
package parser

import (
	"strings"

	"github.com/openclaw/camel/internal/camelerr"
	"github.com/openclaw/camel/internal/ir"
	"github.com/openclaw/camel/internal/parser/codeparser"
	"github.com/openclaw/camel/internal/parser/structured"
)

// Result is the dispatcher's parse outcome, mirroring both front-ends'
// Result shape so callers need not know which one ran.
type Result struct {
	Program *ir.Program
	Err     *camelerr.Diagnostic
}

// Parse tries codeparser first. When its heuristic says the source
// looks like a JSON object rather than code (leading '{'), it retries
// via structured instead of surfacing a code-syntax diagnostic for
// text that was never meant to be code.
func Parse(src string, allowedTools map[string]struct{}) Result {
	codeResult := codeparser.Parse(src, allowedTools)
	if codeResult.LooksLikeJSON {
		structResult := structured.Parse(src, allowedTools)
		return Result{Program: structResult.Program, Err: structResult.Err}
	}
	return Result{Program: codeResult.Program, Err: codeResult.Err}
}

// LooksLikeJSON reports whether src would be routed to the structured
// front-end, letting callers choose a prompt variant before parsing.
func LooksLikeJSON(src string) bool {
	return strings.HasPrefix(strings.TrimSpace(src), "{")
}
