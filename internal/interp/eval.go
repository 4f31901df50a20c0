package interp

import (
	"fmt"
	"strings"

	"github.com/openclaw/camel/internal/camelerr"
	"github.com/openclaw/camel/internal/ir"
	"github.com/openclaw/camel/internal/value"
)

// eval evaluates one expression node to a capability-tagged value.
// controlCap is merged into every result so a value computed inside an
// untrusted if/for guard inherits that guard's untrust, per spec.md
// §4.3's control-flow taint rule.
func (in *Interpreter) eval(e ir.Expr, controlCap value.Capability) (value.Bound, *camelerr.Diagnostic) {
	b, diag := in.evalRaw(e, controlCap)
	if diag != nil {
		return value.Bound{}, diag
	}
	b.Cap = value.Merge(b.Cap, controlCap)
	return b, nil
}

func (in *Interpreter) evalRaw(e ir.Expr, controlCap value.Capability) (value.Bound, *camelerr.Diagnostic) {
	switch e.Kind {
	case ir.ExprLiteral:
		return in.evalLiteral(e), nil

	case ir.ExprVar:
		b, ok := in.Env.Get(e.Name)
		if !ok {
			return value.Bound{}, in.errAt(e.Loc, "name %q is not defined", e.Name)
		}
		return b, nil

	case ir.ExprAttr:
		obj, diag := in.eval(e.Object, controlCap)
		if diag != nil {
			return value.Bound{}, diag
		}
		return in.evalAttr(obj, e.Attr, e.Loc)

	case ir.ExprIndex:
		obj, diag := in.eval(*indexReceiver(e), controlCap)
		if diag != nil {
			return value.Bound{}, diag
		}
		idx, diag := in.eval(e.Index, controlCap)
		if diag != nil {
			return value.Bound{}, diag
		}
		return in.evalIndex(obj, idx, e.Loc)

	case ir.ExprSlice:
		obj, diag := in.eval(*indexReceiver(e), controlCap)
		if diag != nil {
			return value.Bound{}, diag
		}
		return in.evalSlice(obj, e, controlCap)

	case ir.ExprBinary:
		return in.evalBinary(e, controlCap)

	case ir.ExprUnary:
		return in.evalUnary(e, controlCap)

	case ir.ExprCompare:
		return in.evalCompare(e, controlCap)

	case ir.ExprBoolOp:
		return in.evalBoolOp(e, controlCap)

	case ir.ExprCondThenElse:
		cond, diag := in.eval(e.CompElement, controlCap)
		if diag != nil {
			return value.Bound{}, diag
		}
		if cond.Value.Truthy() {
			return in.eval(*e.CompValue, controlCap)
		}
		return in.eval(*e.CompKey, controlCap)

	case ir.ExprCall:
		return in.evalCall(e, controlCap)

	case ir.ExprMethodCall:
		return in.evalMethodCall(e, controlCap)

	case ir.ExprListLit:
		return in.evalListLit(e, controlCap)

	case ir.ExprTupleLit:
		return in.evalTupleLit(e, controlCap)

	case ir.ExprSetLit:
		return in.evalSetLit(e, controlCap)

	case ir.ExprDictLit:
		return in.evalDictLit(e, controlCap)

	case ir.ExprListComp:
		return in.evalListComp(e, controlCap)

	case ir.ExprSetComp:
		return in.evalSetComp(e, controlCap)

	case ir.ExprDictComp:
		return in.evalDictComp(e, controlCap)

	default:
		return value.Bound{}, in.errAt(e.Loc, "unsupported expression")
	}
}

func (in *Interpreter) errAt(loc ir.SourceLoc, format string, args ...any) *camelerr.Diagnostic {
	return camelerr.NewTrustedAt(camelerr.StageExecute, loc.Line, loc.Column, loc.LineText, format, args...)
}

func (in *Interpreter) evalLiteral(e ir.Expr) value.Bound {
	var v value.Value
	switch e.LitKind {
	case ir.LitNull:
		v = value.Null
	case ir.LitBool:
		v = value.Bool(e.LitBool)
	case ir.LitInt:
		v = value.Int(e.LitInt)
	case ir.LitFloat:
		v = value.Float(e.LitFlt)
	case ir.LitString:
		v = value.String(e.LitStr)
	default:
		v = value.Null
	}
	return value.Bound{Value: v, Cap: value.Trust(value.SourceLiteral)}
}

func (in *Interpreter) evalAttr(obj value.Bound, attr string, loc ir.SourceLoc) (value.Bound, *camelerr.Diagnostic) {
	if obj.Value.Kind() == value.KindDict {
		if v, present := obj.Value.DictGet(attr); present {
			return value.Bound{Value: v, Cap: obj.Cap}, nil
		}
	}
	return value.Bound{}, in.errAt(loc, "object of type %q has no attribute %q", obj.Value.Kind(), attr)
}

func (in *Interpreter) evalIndex(obj, idx value.Bound, loc ir.SourceLoc) (value.Bound, *camelerr.Diagnostic) {
	merged := value.Merge(obj.Cap, idx.Cap)
	switch obj.Value.Kind() {
	case value.KindList, value.KindTuple:
		items := listOrTuple(obj.Value)
		i, ok := idx.Value.AsInt()
		if !ok {
			return value.Bound{}, in.errAt(loc, "list indices must be integers")
		}
		n := int64(len(items))
		if i < 0 {
			i += n
		}
		if i < 0 || i >= n {
			return value.Bound{}, in.errAt(loc, "index out of range")
		}
		return value.Bound{Value: items[i], Cap: merged}, nil
	case value.KindDict:
		key, ok := idx.Value.AsString()
		if !ok {
			return value.Bound{}, in.errAt(loc, "dict keys must be strings")
		}
		v, present := obj.Value.DictGet(key)
		if !present {
			return value.Bound{}, in.errAt(loc, "key %q not found", key)
		}
		return value.Bound{Value: v, Cap: merged}, nil
	case value.KindString:
		s, _ := obj.Value.AsString()
		runes := []rune(s)
		i, ok := idx.Value.AsInt()
		if !ok {
			return value.Bound{}, in.errAt(loc, "string indices must be integers")
		}
		n := int64(len(runes))
		if i < 0 {
			i += n
		}
		if i < 0 || i >= n {
			return value.Bound{}, in.errAt(loc, "index out of range")
		}
		return value.Bound{Value: value.String(string(runes[i])), Cap: merged}, nil
	default:
		return value.Bound{}, in.errAt(loc, "object of type %q is not subscriptable", obj.Value.Kind())
	}
}

func (in *Interpreter) evalSlice(obj value.Bound, e ir.Expr, controlCap value.Capability) (value.Bound, *camelerr.Diagnostic) {
	var lo, hi, step int64 = 0, 0, 1
	hasHi := false
	cap_ := obj.Cap
	if e.Lo != nil {
		b, diag := in.eval(*e.Lo, controlCap)
		if diag != nil {
			return value.Bound{}, diag
		}
		v, ok := b.Value.AsInt()
		if !ok {
			return value.Bound{}, in.errAt(e.Loc, "slice indices must be integers")
		}
		lo = v
		cap_ = value.Merge(cap_, b.Cap)
	}
	if e.Hi != nil {
		b, diag := in.eval(*e.Hi, controlCap)
		if diag != nil {
			return value.Bound{}, diag
		}
		v, ok := b.Value.AsInt()
		if !ok {
			return value.Bound{}, in.errAt(e.Loc, "slice indices must be integers")
		}
		hi = v
		hasHi = true
		cap_ = value.Merge(cap_, b.Cap)
	}
	if e.Step != nil {
		b, diag := in.eval(*e.Step, controlCap)
		if diag != nil {
			return value.Bound{}, diag
		}
		v, ok := b.Value.AsInt()
		if !ok || v == 0 {
			return value.Bound{}, in.errAt(e.Loc, "slice step must be a nonzero integer")
		}
		step = v
		cap_ = value.Merge(cap_, b.Cap)
	}

	switch obj.Value.Kind() {
	case value.KindString:
		s, _ := obj.Value.AsString()
		runes := []rune(s)
		out := sliceRunes(runes, lo, hi, hasHi, step)
		return value.Bound{Value: value.String(string(out)), Cap: cap_}, nil
	case value.KindList:
		items, _ := obj.Value.AsList()
		out := sliceValues(items, lo, hi, hasHi, step)
		return value.Bound{Value: value.List(out), Cap: cap_}, nil
	case value.KindTuple:
		items, _ := obj.Value.AsTuple()
		out := sliceValues(items, lo, hi, hasHi, step)
		return value.Bound{Value: value.Tuple(out), Cap: cap_}, nil
	default:
		return value.Bound{}, in.errAt(e.Loc, "object of type %q is not sliceable", obj.Value.Kind())
	}
}

func normalizeSliceBound(i, n int64, dflt int64) int64 {
	if i < 0 {
		i += n
	}
	if i < 0 {
		i = 0
	}
	if i > n {
		i = n
	}
	return i
}

func sliceRunes(runes []rune, lo, hi int64, hasHi bool, step int64) []rune {
	n := int64(len(runes))
	if !hasHi {
		if step < 0 {
			hi = -1
		} else {
			hi = n
		}
	}
	lo = normalizeSliceBound(lo, n, 0)
	if hasHi {
		hi = normalizeSliceBound(hi, n, n)
	}
	var out []rune
	if step > 0 {
		for i := lo; i < hi; i += step {
			out = append(out, runes[i])
		}
	} else {
		for i := lo; i > hi; i += step {
			if i >= 0 && i < n {
				out = append(out, runes[i])
			}
		}
	}
	return out
}

func sliceValues(items []value.Value, lo, hi int64, hasHi bool, step int64) []value.Value {
	n := int64(len(items))
	if !hasHi {
		if step < 0 {
			hi = -1
		} else {
			hi = n
		}
	}
	lo = normalizeSliceBound(lo, n, 0)
	if hasHi {
		hi = normalizeSliceBound(hi, n, n)
	}
	var out []value.Value
	if step > 0 {
		for i := lo; i < hi; i += step {
			out = append(out, items[i])
		}
	} else {
		for i := lo; i > hi; i += step {
			if i >= 0 && i < n {
				out = append(out, items[i])
			}
		}
	}
	return out
}

func listOrTuple(v value.Value) []value.Value {
	if items, ok := v.AsList(); ok {
		return items
	}
	items, _ := v.AsTuple()
	return items
}

func (in *Interpreter) evalBinary(e ir.Expr, controlCap value.Capability) (value.Bound, *camelerr.Diagnostic) {
	l, diag := in.eval(*e.Left, controlCap)
	if diag != nil {
		return value.Bound{}, diag
	}
	r, diag := in.eval(*e.Right, controlCap)
	if diag != nil {
		return value.Bound{}, diag
	}
	cap_ := value.Merge(l.Cap, r.Cap)
	v, err := binaryOp(e.Op, l.Value, r.Value)
	if err != nil {
		return value.Bound{}, in.errAt(e.Loc, "%s", err.Error())
	}
	return value.Bound{Value: v, Cap: cap_}, nil
}

func binaryOp(op string, l, r value.Value) (value.Value, error) {
	switch op {
	case "+":
		return addOp(l, r)
	case "-", "*", "/", "%", "//", "**":
		return arithOp(op, l, r)
	default:
		return value.Null, fmt.Errorf("unsupported operator %q", op)
	}
}

func addOp(l, r value.Value) (value.Value, error) {
	if l.Kind() == value.KindString || r.Kind() == value.KindString {
		if l.Kind() != value.KindString || r.Kind() != value.KindString {
			return value.Null, fmt.Errorf("unsupported operand types for +: %q and %q", l.Kind(), r.Kind())
		}
		ls, _ := l.AsString()
		rs, _ := r.AsString()
		return value.String(ls + rs), nil
	}
	if l.Kind() == value.KindList && r.Kind() == value.KindList {
		li, _ := l.AsList()
		ri, _ := r.AsList()
		return value.List(append(append([]value.Value{}, li...), ri...)), nil
	}
	return arithOp("+", l, r)
}

func arithOp(op string, l, r value.Value) (value.Value, error) {
	li, lIsInt := l.AsInt()
	ri, rIsInt := r.AsInt()
	if lIsInt && rIsInt && op != "/" {
		switch op {
		case "+":
			return value.Int(li + ri), nil
		case "-":
			return value.Int(li - ri), nil
		case "*":
			return value.Int(li * ri), nil
		case "%":
			if ri == 0 {
				return value.Null, fmt.Errorf("integer modulo by zero")
			}
			return value.Int(li % ri), nil
		case "//":
			if ri == 0 {
				return value.Null, fmt.Errorf("integer division by zero")
			}
			return value.Int(floorDivInt(li, ri)), nil
		case "**":
			return value.Int(intPow(li, ri)), nil
		}
	}
	lf, lok := l.AsFloat()
	rf, rok := r.AsFloat()
	if !lok || !rok {
		return value.Null, fmt.Errorf("unsupported operand types for %s: %q and %q", op, l.Kind(), r.Kind())
	}
	switch op {
	case "+":
		return value.Float(lf + rf), nil
	case "-":
		return value.Float(lf - rf), nil
	case "*":
		return value.Float(lf * rf), nil
	case "/":
		if rf == 0 {
			return value.Null, fmt.Errorf("division by zero")
		}
		return value.Float(lf / rf), nil
	case "//":
		if rf == 0 {
			return value.Null, fmt.Errorf("division by zero")
		}
		q := lf / rf
		return value.Float(floorFloat(q)), nil
	case "%":
		if rf == 0 {
			return value.Null, fmt.Errorf("float modulo by zero")
		}
		m := lf - floorFloat(lf/rf)*rf
		return value.Float(m), nil
	case "**":
		return value.Float(powFloat(lf, rf)), nil
	}
	return value.Null, fmt.Errorf("unsupported operator %q", op)
}

func floorDivInt(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func intPow(base, exp int64) int64 {
	if exp < 0 {
		return 0
	}
	result := int64(1)
	for i := int64(0); i < exp; i++ {
		result *= base
	}
	return result
}

func floorFloat(f float64) float64 {
	i := int64(f)
	if f < 0 && float64(i) != f {
		i--
	}
	return float64(i)
}

func powFloat(base, exp float64) float64 {
	result := 1.0
	neg := exp < 0
	if neg {
		exp = -exp
	}
	for i := 0; float64(i) < exp; i++ {
		result *= base
	}
	if neg {
		return 1 / result
	}
	return result
}

func (in *Interpreter) evalUnary(e ir.Expr, controlCap value.Capability) (value.Bound, *camelerr.Diagnostic) {
	b, diag := in.eval(*e.Operand, controlCap)
	if diag != nil {
		return value.Bound{}, diag
	}
	switch e.Op {
	case "-":
		if i, ok := b.Value.AsInt(); ok {
			return value.Bound{Value: value.Int(-i), Cap: b.Cap}, nil
		}
		if f, ok := b.Value.AsFloat(); ok {
			return value.Bound{Value: value.Float(-f), Cap: b.Cap}, nil
		}
		return value.Bound{}, in.errAt(e.Loc, "bad operand type for unary -: %q", b.Value.Kind())
	case "+":
		return b, nil
	case "not":
		return value.Bound{Value: value.Bool(!b.Value.Truthy()), Cap: b.Cap}, nil
	default:
		return value.Bound{}, in.errAt(e.Loc, "unsupported unary operator %q", e.Op)
	}
}

func (in *Interpreter) evalCompare(e ir.Expr, controlCap value.Capability) (value.Bound, *camelerr.Diagnostic) {
	first, diag := in.eval(*e.CompareFirst, controlCap)
	if diag != nil {
		return value.Bound{}, diag
	}
	cap_ := first.Cap
	left := first
	result := true
	for i, op := range e.CompareOps {
		right, diag := in.eval(e.CompareRest[i], controlCap)
		if diag != nil {
			return value.Bound{}, diag
		}
		cap_ = value.Merge(cap_, right.Cap)
		ok, err := compareOne(op, left.Value, right.Value)
		if err != nil {
			return value.Bound{}, in.errAt(e.Loc, "%s", err.Error())
		}
		if !ok {
			result = false
		}
		left = right
	}
	return value.Bound{Value: value.Bool(result), Cap: cap_}, nil
}

func compareOne(op string, l, r value.Value) (bool, error) {
	switch op {
	case "==":
		return value.Equal(l, r), nil
	case "!=":
		return !value.Equal(l, r), nil
	case "in":
		return containsValue(r, l)
	case "not in":
		ok, err := containsValue(r, l)
		return !ok, err
	case "is":
		return identicalValue(l, r), nil
	case "is not":
		return !identicalValue(l, r), nil
	case "<", "<=", ">", ">=":
		c, err := value.Compare(l, r)
		if err != nil {
			return false, err
		}
		switch op {
		case "<":
			return c < 0, nil
		case "<=":
			return c <= 0, nil
		case ">":
			return c > 0, nil
		default:
			return c >= 0, nil
		}
	default:
		return false, fmt.Errorf("unsupported comparison operator %q", op)
	}
}

func identicalValue(l, r value.Value) bool {
	if l.Kind() == value.KindNull && r.Kind() == value.KindNull {
		return true
	}
	if l.Kind() != r.Kind() {
		return false
	}
	switch l.Kind() {
	case value.KindBool, value.KindInt, value.KindString:
		return value.Equal(l, r)
	default:
		return value.Equal(l, r)
	}
}

func containsValue(container, needle value.Value) (bool, error) {
	switch container.Kind() {
	case value.KindList:
		items, _ := container.AsList()
		for _, it := range items {
			if value.Equal(it, needle) {
				return true, nil
			}
		}
		return false, nil
	case value.KindTuple:
		items, _ := container.AsTuple()
		for _, it := range items {
			if value.Equal(it, needle) {
				return true, nil
			}
		}
		return false, nil
	case value.KindString:
		s, _ := container.AsString()
		sub, ok := needle.AsString()
		if !ok {
			return false, fmt.Errorf("'in <string>' requires string as left operand")
		}
		return strings.Contains(s, sub), nil
	case value.KindDict:
		key, ok := needle.AsString()
		if !ok {
			return false, fmt.Errorf("dict keys must be strings")
		}
		_, present := container.DictGet(key)
		return present, nil
	default:
		return false, fmt.Errorf("argument of type %q is not iterable", container.Kind())
	}
}

func (in *Interpreter) evalBoolOp(e ir.Expr, controlCap value.Capability) (value.Bound, *camelerr.Diagnostic) {
	l, diag := in.eval(*e.Left, controlCap)
	if diag != nil {
		return value.Bound{}, diag
	}
	// Python-style short circuit: `and`/`or` return an operand, not a bool.
	if e.Op == "and" {
		if !l.Value.Truthy() {
			return l, nil
		}
	} else if e.Op == "or" {
		if l.Value.Truthy() {
			return l, nil
		}
	} else {
		return value.Bound{}, in.errAt(e.Loc, "unsupported boolean operator %q", e.Op)
	}
	r, diag := in.eval(*e.Right, controlCap)
	if diag != nil {
		return value.Bound{}, diag
	}
	return value.Bound{Value: r.Value, Cap: value.Merge(l.Cap, r.Cap)}, nil
}

func (in *Interpreter) evalListLit(e ir.Expr, controlCap value.Capability) (value.Bound, *camelerr.Diagnostic) {
	items, cap_, diag := in.evalExprList(e.Elements, controlCap)
	if diag != nil {
		return value.Bound{}, diag
	}
	return value.Bound{Value: value.List(items), Cap: cap_}, nil
}

func (in *Interpreter) evalTupleLit(e ir.Expr, controlCap value.Capability) (value.Bound, *camelerr.Diagnostic) {
	items, cap_, diag := in.evalExprList(e.Elements, controlCap)
	if diag != nil {
		return value.Bound{}, diag
	}
	return value.Bound{Value: value.Tuple(items), Cap: cap_}, nil
}

func (in *Interpreter) evalSetLit(e ir.Expr, controlCap value.Capability) (value.Bound, *camelerr.Diagnostic) {
	items, cap_, diag := in.evalExprList(e.Elements, controlCap)
	if diag != nil {
		return value.Bound{}, diag
	}
	return value.Bound{Value: value.List(dedupe(items)), Cap: cap_}, nil
}

func (in *Interpreter) evalExprList(exprs []ir.Expr, controlCap value.Capability) ([]value.Value, value.Capability, *camelerr.Diagnostic) {
	items := make([]value.Value, 0, len(exprs))
	cap_ := value.Trust()
	for _, el := range exprs {
		b, diag := in.eval(el, controlCap)
		if diag != nil {
			return nil, value.Capability{}, diag
		}
		items = append(items, b.Value)
		cap_ = value.Merge(cap_, b.Cap)
	}
	return items, cap_, nil
}

func dedupe(items []value.Value) []value.Value {
	var out []value.Value
	for _, it := range items {
		found := false
		for _, existing := range out {
			if value.Equal(existing, it) {
				found = true
				break
			}
		}
		if !found {
			out = append(out, it)
		}
	}
	return out
}

func (in *Interpreter) evalDictLit(e ir.Expr, controlCap value.Capability) (value.Bound, *camelerr.Diagnostic) {
	cap_ := value.Trust()
	pairs := make([]value.DictPair, 0, len(e.Keys))
	for i, ke := range e.Keys {
		kb, diag := in.eval(ke, controlCap)
		if diag != nil {
			return value.Bound{}, diag
		}
		key, ok := kb.Value.AsString()
		if !ok {
			return value.Bound{}, in.errAt(e.Loc, "dict keys must be strings")
		}
		vb, diag := in.eval(e.Values[i], controlCap)
		if diag != nil {
			return value.Bound{}, diag
		}
		cap_ = value.Merge(cap_, kb.Cap, vb.Cap)
		pairs = append(pairs, value.DictPair{Key: key, Value: vb.Value})
	}
	return value.Bound{Value: value.Dict(pairs...), Cap: cap_}, nil
}

// indexReceiver extracts the receiver expression of an ExprIndex/ExprSlice
// node. Both reuse Expr.Object as the container being subscripted, the
// same field ExprAttr uses for its receiver.
func indexReceiver(e ir.Expr) *ir.Expr {
	return &e.Object
}
