package value

import "sort"

// SourceID names one contributor to a value's provenance: the user
// prompt, a literal in the program, a tool invocation, a quarantined
// extraction binding, or a control-flow guard. SourceIDs are opaque
// strings by convention ("user", "tool:<name>", "qllm:<saveAs>",
// "control:<kind>") but callers should treat them as identifiers, not
// display text.
type SourceID string

const (
	// SourceUser tags values that originated directly from the user prompt.
	SourceUser SourceID = "user"
	// SourceLiteral tags values produced by a deterministic program literal.
	SourceLiteral SourceID = "literal"
)

// ToolSource builds the SourceID recorded on a tool's output.
func ToolSource(toolName string) SourceID { return SourceID("tool:" + toolName) }

// QllmSource builds the SourceID recorded on a query_ai_assistant binding.
func QllmSource(saveAs string) SourceID { return SourceID("qllm:" + saveAs) }

// ControlSource builds the SourceID recorded by an enclosing if/for guard.
func ControlSource(kind string) SourceID { return SourceID("control:" + kind) }

// Capability is the provenance label attached to every Value the
// interpreter produces or stores. Trusted is true iff every ancestor of
// the value traces back to the user prompt or a program literal; false if
// any ancestor passed through a tool call or quarantined extraction.
type Capability struct {
	Trusted bool
	Sources map[SourceID]struct{}
}

// Trust returns the capability of a value derived only from the user
// prompt or literals — the base case for expression evaluation.
func Trust(sources ...SourceID) Capability {
	c := Capability{Trusted: true, Sources: map[SourceID]struct{}{}}
	for _, s := range sources {
		c.Sources[s] = struct{}{}
	}
	return c
}

// Untrust returns an explicitly untrusted capability, used for tool and
// qllm outputs.
func Untrust(sources ...SourceID) Capability {
	c := Trust(sources...)
	c.Trusted = false
	return c
}

// Merge combines the capabilities of every evaluated operand into the
// capability of a derived value: trusted iff all inputs are trusted,
// sources the union of all inputs' sources. Merge is the single place
// capability propagation happens — every interpreter operation that
// derives one value from others must route through it.
func Merge(caps ...Capability) Capability {
	out := Capability{Trusted: true, Sources: map[SourceID]struct{}{}}
	for _, c := range caps {
		if !c.Trusted {
			out.Trusted = false
		}
		for s := range c.Sources {
			out.Sources[s] = struct{}{}
		}
	}
	return out
}

// WithSource returns a copy of c with an additional source tag merged in.
// Used to stamp tool-output and qllm-output provenance onto an otherwise
// merged capability.
func (c Capability) WithSource(s SourceID) Capability {
	out := Capability{Trusted: c.Trusted, Sources: map[SourceID]struct{}{}}
	for k := range c.Sources {
		out.Sources[k] = struct{}{}
	}
	out.Sources[s] = struct{}{}
	return out
}

// ForceUntrusted returns a copy of c with Trusted forced false, used for
// query_ai_assistant outputs which are always untrusted regardless of
// their inputs' trust.
func (c Capability) ForceUntrusted() Capability {
	out := c
	out.Trusted = false
	out.Sources = map[SourceID]struct{}{}
	for k := range c.Sources {
		out.Sources[k] = struct{}{}
	}
	return out
}

// SourceList returns the capability's sources sorted for stable display
// in diagnostics and policy-denial reasons.
func (c Capability) SourceList() []string {
	out := make([]string, 0, len(c.Sources))
	for s := range c.Sources {
		out = append(out, string(s))
	}
	sort.Strings(out)
	return out
}

// Bound pairs a Value with the Capability that travels with it in the
// environment. The interpreter never passes a bare Value across a
// binding boundary without its Bound wrapper — this is the Go encoding
// of spec.md's invariant "reading a name never reveals a bare value
// without its capability".
type Bound struct {
	Value Value
	Cap   Capability
}
