package structured

import (
	"fmt"
	"sort"

	"github.com/openclaw/camel/internal/camelerr"
	"github.com/openclaw/camel/internal/ir"
)

// parseExpr lowers one JSON-encoded expression node to ir.Expr. The
// structured front-end's expression contract deliberately omits the
// comprehensions that codeparser supports (a "conditional" node is
// accepted): a planner emitting JSON step arrays is expected to unroll
// those into explicit "for" steps instead, keeping this surface small
// enough to validate field-by-field.
func (p *parser) parseExpr(raw any, path string) (ir.Expr, *camelerr.Diagnostic) {
	switch v := raw.(type) {
	case nil:
		return ir.Expr{Kind: ir.ExprLiteral, LitKind: ir.LitNull}, nil
	case bool:
		return ir.Expr{Kind: ir.ExprLiteral, LitKind: ir.LitBool, LitBool: v}, nil
	case float64:
		if v == float64(int64(v)) {
			return ir.Expr{Kind: ir.ExprLiteral, LitKind: ir.LitInt, LitInt: int64(v)}, nil
		}
		return ir.Expr{Kind: ir.ExprLiteral, LitKind: ir.LitFloat, LitFlt: v}, nil
	case string:
		return ir.Expr{Kind: ir.ExprLiteral, LitKind: ir.LitString, LitStr: v}, nil
	case []any:
		return p.parseExprList(v, path)
	case map[string]any:
		return p.parseExprObj(v, path)
	default:
		return ir.Expr{}, p.errf(path, "unsupported expression value of type %T", raw)
	}
}

// parseExprList lowers a bare JSON array as a list literal, the
// shorthand for {"type":"list","elements":[...]}.
func (p *parser) parseExprList(raw []any, path string) (ir.Expr, *camelerr.Diagnostic) {
	elems := make([]ir.Expr, 0, len(raw))
	for i, el := range raw {
		e, diag := p.parseExpr(el, fmt.Sprintf("%s[%d]", path, i))
		if diag != nil {
			return ir.Expr{}, diag
		}
		elems = append(elems, e)
	}
	return ir.Expr{Kind: ir.ExprListLit, Elements: elems}, nil
}

func (p *parser) parseExprObj(obj map[string]any, path string) (ir.Expr, *camelerr.Diagnostic) {
	typ, ok := stringField(obj, "type")
	if !ok {
		return ir.Expr{}, p.errf(path, "expression object missing required string field \"type\"")
	}
	switch typ {
	case "literal":
		return p.parseExpr(obj["value"], path+".value")

	case "var":
		name, ok := stringField(obj, "name")
		if !ok {
			return ir.Expr{}, p.errf(path, "var expression missing required string field \"name\"")
		}
		return ir.Expr{Kind: ir.ExprVar, Name: name}, nil

	case "attr":
		objExpr, diag := p.requireExpr(obj, "object", path)
		if diag != nil {
			return ir.Expr{}, diag
		}
		attr, ok := stringField(obj, "attr")
		if !ok {
			return ir.Expr{}, p.errf(path, "attr expression missing required string field \"attr\"")
		}
		return ir.Expr{Kind: ir.ExprAttr, Object: objExpr, Attr: attr}, nil

	case "index":
		objExpr, diag := p.requireExpr(obj, "object", path)
		if diag != nil {
			return ir.Expr{}, diag
		}
		idxExpr, diag := p.requireExpr(obj, "index", path)
		if diag != nil {
			return ir.Expr{}, diag
		}
		return ir.Expr{Kind: ir.ExprIndex, Object: objExpr, Index: idxExpr}, nil

	case "slice":
		objExpr, diag := p.requireExpr(obj, "object", path)
		if diag != nil {
			return ir.Expr{}, diag
		}
		lo, diag := p.optionalExpr(obj, "lo", path)
		if diag != nil {
			return ir.Expr{}, diag
		}
		hi, diag := p.optionalExpr(obj, "hi", path)
		if diag != nil {
			return ir.Expr{}, diag
		}
		step, diag := p.optionalExpr(obj, "step", path)
		if diag != nil {
			return ir.Expr{}, diag
		}
		return ir.Expr{Kind: ir.ExprSlice, Object: objExpr, Lo: lo, Hi: hi, Step: step}, nil

	case "binary":
		return p.parseBinaryLike(obj, path, ir.ExprBinary)

	case "boolop":
		return p.parseBinaryLike(obj, path, ir.ExprBoolOp)

	case "unary":
		op, ok := stringField(obj, "op")
		if !ok {
			return ir.Expr{}, p.errf(path, "unary expression missing required string field \"op\"")
		}
		operand, diag := p.requireExpr(obj, "operand", path)
		if diag != nil {
			return ir.Expr{}, diag
		}
		return ir.Expr{Kind: ir.ExprUnary, Op: op, Operand: &operand}, nil

	case "compare":
		firstExpr, diag := p.requireExpr(obj, "first", path)
		if diag != nil {
			return ir.Expr{}, diag
		}
		rawOps, ok := obj["ops"].([]any)
		if !ok {
			return ir.Expr{}, p.errf(path, "compare expression missing required array field \"ops\"")
		}
		rawRest, ok := obj["rest"].([]any)
		if !ok || len(rawRest) != len(rawOps) {
			return ir.Expr{}, p.errf(path, "compare expression's \"rest\" must be an array the same length as \"ops\"")
		}
		ops := make([]string, 0, len(rawOps))
		for i, o := range rawOps {
			s, ok := o.(string)
			if !ok {
				return ir.Expr{}, p.errf(fmt.Sprintf("%s.ops[%d]", path, i), "comparison operator must be a string")
			}
			ops = append(ops, s)
		}
		rest := make([]ir.Expr, 0, len(rawRest))
		for i, r := range rawRest {
			e, diag := p.parseExpr(r, fmt.Sprintf("%s.rest[%d]", path, i))
			if diag != nil {
				return ir.Expr{}, diag
			}
			rest = append(rest, e)
		}
		return ir.Expr{Kind: ir.ExprCompare, CompareFirst: &firstExpr, CompareOps: ops, CompareRest: rest}, nil

	case "conditional":
		cond, diag := p.requireExpr(obj, "cond", path)
		if diag != nil {
			return ir.Expr{}, diag
		}
		then, diag := p.requireExpr(obj, "then", path)
		if diag != nil {
			return ir.Expr{}, diag
		}
		els, diag := p.requireExpr(obj, "else", path)
		if diag != nil {
			return ir.Expr{}, diag
		}
		return ir.Expr{Kind: ir.ExprCondThenElse, CompElement: cond, CompValue: &then, CompKey: &els}, nil

	case "call":
		funcName, ok := stringField(obj, "func")
		if !ok {
			return ir.Expr{}, p.errf(path, "call expression missing required string field \"func\"")
		}
		args, diag := p.parseExprArray(obj["args"], path+".args")
		if diag != nil {
			return ir.Expr{}, diag
		}
		kw, kwOrder, diag := p.parseExprMap(obj["kwargs"], path+".kwargs")
		if diag != nil {
			return ir.Expr{}, diag
		}
		return ir.Expr{Kind: ir.ExprCall, FuncName: funcName, Positional: args, Keyword: kw, KeywordOrder: kwOrder}, nil

	case "methodcall":
		recv, diag := p.requireExpr(obj, "receiver", path)
		if diag != nil {
			return ir.Expr{}, diag
		}
		method, ok := stringField(obj, "method")
		if !ok {
			return ir.Expr{}, p.errf(path, "methodcall expression missing required string field \"method\"")
		}
		args, diag := p.parseExprArray(obj["args"], path+".args")
		if diag != nil {
			return ir.Expr{}, diag
		}
		return ir.Expr{Kind: ir.ExprMethodCall, Receiver: &recv, Method: method, Positional: args}, nil

	case "list", "tuple", "set":
		rawElems, ok := obj["elements"].([]any)
		if !ok {
			return ir.Expr{}, p.errf(path, "%s expression missing required array field \"elements\"", typ)
		}
		elems := make([]ir.Expr, 0, len(rawElems))
		for i, el := range rawElems {
			e, diag := p.parseExpr(el, fmt.Sprintf("%s.elements[%d]", path, i))
			if diag != nil {
				return ir.Expr{}, diag
			}
			elems = append(elems, e)
		}
		kind := ir.ExprListLit
		if typ == "tuple" {
			kind = ir.ExprTupleLit
		} else if typ == "set" {
			kind = ir.ExprSetLit
		}
		return ir.Expr{Kind: kind, Elements: elems}, nil

	case "dict":
		rawEntries, ok := obj["entries"].([]any)
		if !ok {
			return ir.Expr{}, p.errf(path, "dict expression missing required array field \"entries\"")
		}
		keys := make([]ir.Expr, 0, len(rawEntries))
		values := make([]ir.Expr, 0, len(rawEntries))
		for i, raw := range rawEntries {
			entry, ok := raw.(map[string]any)
			if !ok {
				return ir.Expr{}, p.errf(fmt.Sprintf("%s.entries[%d]", path, i), "dict entry must be an object")
			}
			k, diag := p.requireExpr(entry, "key", fmt.Sprintf("%s.entries[%d]", path, i))
			if diag != nil {
				return ir.Expr{}, diag
			}
			v, diag := p.requireExpr(entry, "value", fmt.Sprintf("%s.entries[%d]", path, i))
			if diag != nil {
				return ir.Expr{}, diag
			}
			keys = append(keys, k)
			values = append(values, v)
		}
		return ir.Expr{Kind: ir.ExprDictLit, Keys: keys, Values: values}, nil

	default:
		return ir.Expr{}, p.errf(path+".type", "unknown expression type %q", typ)
	}
}

func (p *parser) parseBinaryLike(obj map[string]any, path string, kind ir.ExprKind) (ir.Expr, *camelerr.Diagnostic) {
	op, ok := stringField(obj, "op")
	if !ok {
		return ir.Expr{}, p.errf(path, "expression missing required string field \"op\"")
	}
	left, diag := p.requireExpr(obj, "left", path)
	if diag != nil {
		return ir.Expr{}, diag
	}
	right, diag := p.requireExpr(obj, "right", path)
	if diag != nil {
		return ir.Expr{}, diag
	}
	return ir.Expr{Kind: kind, Op: op, Left: &left, Right: &right}, nil
}

func (p *parser) requireExpr(obj map[string]any, key, path string) (ir.Expr, *camelerr.Diagnostic) {
	raw, ok := obj[key]
	if !ok {
		return ir.Expr{}, p.errf(path, "expression missing required field %q", key)
	}
	return p.parseExpr(raw, path+"."+key)
}

func (p *parser) optionalExpr(obj map[string]any, key, path string) (*ir.Expr, *camelerr.Diagnostic) {
	raw, ok := obj[key]
	if !ok || raw == nil {
		return nil, nil
	}
	e, diag := p.parseExpr(raw, path+"."+key)
	if diag != nil {
		return nil, diag
	}
	return &e, nil
}

func (p *parser) parseExprArray(raw any, path string) ([]ir.Expr, *camelerr.Diagnostic) {
	if raw == nil {
		return nil, nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, p.errf(path, "must be an array")
	}
	out := make([]ir.Expr, 0, len(list))
	for i, el := range list {
		e, diag := p.parseExpr(el, fmt.Sprintf("%s[%d]", path, i))
		if diag != nil {
			return nil, diag
		}
		out = append(out, e)
	}
	return out, nil
}

func (p *parser) parseExprMap(raw any, path string) (map[string]ir.Expr, []string, *camelerr.Diagnostic) {
	if raw == nil {
		return nil, nil, nil
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, nil, p.errf(path, "must be an object")
	}
	names := make([]string, 0, len(obj))
	for k := range obj {
		names = append(names, k)
	}
	sort.Strings(names)

	out := map[string]ir.Expr{}
	var order []string
	for _, k := range names {
		e, diag := p.parseExpr(obj[k], path+"."+k)
		if diag != nil {
			return nil, nil, diag
		}
		out[k] = e
		order = append(order, k)
	}
	return out, order, nil
}
