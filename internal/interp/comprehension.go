package interp

import (
	"github.com/openclaw/camel/internal/camelerr"
	"github.com/openclaw/camel/internal/ir"
	"github.com/openclaw/camel/internal/value"
)

func (in *Interpreter) evalListComp(e ir.Expr, controlCap value.Capability) (value.Bound, *camelerr.Diagnostic) {
	var out []value.Value
	cap_ := value.Trust()
	diag := in.runCompClauses(e.Clauses, 0, controlCap, func(clauseCap value.Capability) *camelerr.Diagnostic {
		b, diag := in.eval(e.CompElement, clauseCap)
		if diag != nil {
			return diag
		}
		out = append(out, b.Value)
		cap_ = value.Merge(cap_, b.Cap)
		return nil
	})
	if diag != nil {
		return value.Bound{}, diag
	}
	return value.Bound{Value: value.List(out), Cap: cap_}, nil
}

func (in *Interpreter) evalSetComp(e ir.Expr, controlCap value.Capability) (value.Bound, *camelerr.Diagnostic) {
	b, diag := in.evalListComp(e, controlCap)
	if diag != nil {
		return value.Bound{}, diag
	}
	items, _ := b.Value.AsList()
	return value.Bound{Value: value.List(dedupe(items)), Cap: b.Cap}, nil
}

func (in *Interpreter) evalDictComp(e ir.Expr, controlCap value.Capability) (value.Bound, *camelerr.Diagnostic) {
	pairs := make([]value.DictPair, 0)
	cap_ := value.Trust()
	diag := in.runCompClauses(e.Clauses, 0, controlCap, func(clauseCap value.Capability) *camelerr.Diagnostic {
		kb, diag := in.eval(*e.CompKey, clauseCap)
		if diag != nil {
			return diag
		}
		vb, diag := in.eval(*e.CompValue, clauseCap)
		if diag != nil {
			return diag
		}
		key, ok := kb.Value.AsString()
		if !ok {
			return in.errAt(e.Loc, "dict comprehension keys must be strings")
		}
		pairs = append(pairs, value.DictPair{Key: key, Value: vb.Value})
		cap_ = value.Merge(cap_, kb.Cap, vb.Cap)
		return nil
	})
	if diag != nil {
		return value.Bound{}, diag
	}
	return value.Bound{Value: value.Dict(pairs...), Cap: cap_}, nil
}

// runCompClauses evaluates nested `for`/`if` clauses left-to-right,
// invoking emit once per fully-satisfied combination of targets. Loop
// targets across every clause are saved and restored as a single unit
// around the whole comprehension, matching the scoping env.go documents
// for StepFor.
func (in *Interpreter) runCompClauses(clauses []ir.CompClause, idx int, controlCap value.Capability, emit func(value.Capability) *camelerr.Diagnostic) *camelerr.Diagnostic {
	if idx == 0 {
		var names []string
		for _, c := range clauses {
			names = append(names, c.Targets...)
		}
		snap := in.Env.snapshot(names)
		defer in.Env.restore(snap)
	}
	if idx >= len(clauses) {
		return emit(controlCap)
	}
	clause := clauses[idx]
	iterB, diag := in.eval(clause.Iterable, controlCap)
	if diag != nil {
		return diag
	}
	items := sequenceOf(iterB.Value)
	if items == nil {
		return in.errAt(clause.Iterable.Loc, "object of type %q is not iterable", iterB.Value.Kind())
	}
	nestedControl := value.Merge(controlCap, iterB.Cap)

	for _, item := range items {
		itemCap := value.Merge(iterB.Cap)
		if len(clause.Targets) == 1 {
			in.Env.Set(clause.Targets[0], value.Bound{Value: item, Cap: itemCap})
		} else {
			parts := sequenceOf(item)
			if parts == nil || len(parts) != len(clause.Targets) {
				return in.errAt(clause.Iterable.Loc, "cannot unpack comprehension item into %d targets", len(clause.Targets))
			}
			for i, n := range clause.Targets {
				in.Env.Set(n, value.Bound{Value: parts[i], Cap: itemCap})
			}
		}

		guardsPass := true
		guardCap := nestedControl
		for _, g := range clause.Guards {
			gb, diag := in.eval(g, nestedControl)
			if diag != nil {
				return diag
			}
			guardCap = value.Merge(guardCap, gb.Cap)
			if !gb.Value.Truthy() {
				guardsPass = false
				break
			}
		}
		if !guardsPass {
			continue
		}
		if diag := in.runCompClauses(clauses, idx+1, guardCap, emit); diag != nil {
			return diag
		}
	}
	return nil
}
