package interp

import (
	"strings"

	"github.com/openclaw/camel/internal/camelerr"
	"github.com/openclaw/camel/internal/ir"
	"github.com/openclaw/camel/internal/value"
)

// renderTemplate interpolates "{{a.b.c}}" placeholders in a final()
// template against the environment, merging every interpolated value's
// capability (plus controlCap) into the result returned to the caller,
// so a final reply built from untrusted data is itself reported
// untrusted (spec.md §4.2, final()).
func (in *Interpreter) renderTemplate(tmpl string, loc ir.SourceLoc, controlCap value.Capability) (string, value.Capability, *camelerr.Diagnostic) {
	var sb strings.Builder
	cap_ := controlCap
	rest := tmpl
	for {
		start := strings.Index(rest, "{{")
		if start < 0 {
			sb.WriteString(rest)
			break
		}
		sb.WriteString(rest[:start])
		rest = rest[start+2:]
		end := strings.Index(rest, "}}")
		if end < 0 {
			return "", value.Capability{}, in.errAt(loc, "unterminated template placeholder")
		}
		path := strings.TrimSpace(rest[:end])
		rest = rest[end+2:]

		b, diag := in.resolvePath(path, loc)
		if diag != nil {
			return "", value.Capability{}, diag
		}
		sb.WriteString(b.Value.Str())
		cap_ = value.Merge(cap_, b.Cap)
	}
	return sb.String(), cap_, nil
}

func (in *Interpreter) resolvePath(path string, loc ir.SourceLoc) (value.Bound, *camelerr.Diagnostic) {
	parts := strings.Split(path, ".")
	if len(parts) == 0 || parts[0] == "" {
		return value.Bound{}, in.errAt(loc, "empty template placeholder")
	}
	b, ok := in.Env.Get(parts[0])
	if !ok {
		return value.Bound{}, in.errAt(loc, "name %q is not defined", parts[0])
	}
	for _, attr := range parts[1:] {
		var diag *camelerr.Diagnostic
		b, diag = in.evalAttr(b, attr, loc)
		if diag != nil {
			return value.Bound{}, diag
		}
	}
	return b, nil
}
