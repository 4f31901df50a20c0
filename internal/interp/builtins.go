package interp

import (
	"fmt"
	"hash/fnv"
	"sort"

	"github.com/openclaw/camel/internal/camelerr"
	"github.com/openclaw/camel/internal/ir"
	"github.com/openclaw/camel/internal/value"
)

// evalCall dispatches a builtin function call. Tool calls never reach
// here: the parser lowers every tool/query_ai_assistant invocation to
// a Step before the interpreter ever sees an Expr, so every ExprCall
// this method receives names one of the builtins below.
func (in *Interpreter) evalCall(e ir.Expr, controlCap value.Capability) (value.Bound, *camelerr.Diagnostic) {
	args := make([]value.Bound, 0, len(e.Positional))
	cap_ := value.Trust()
	for _, pe := range e.Positional {
		b, diag := in.eval(pe, controlCap)
		if diag != nil {
			return value.Bound{}, diag
		}
		args = append(args, b)
		cap_ = value.Merge(cap_, b.Cap)
	}
	kwargs := make(map[string]value.Bound, len(e.Keyword))
	for name, ke := range e.Keyword {
		b, diag := in.eval(ke, controlCap)
		if diag != nil {
			return value.Bound{}, diag
		}
		kwargs[name] = b
		cap_ = value.Merge(cap_, b.Cap)
	}

	fn, ok := builtins[e.FuncName]
	if !ok {
		return value.Bound{}, in.errAt(e.Loc, "unknown function %q", e.FuncName)
	}
	v, err := fn(args, kwargs)
	if err != nil {
		return value.Bound{}, in.errAt(e.Loc, "%s", err.Error())
	}
	return value.Bound{Value: v, Cap: cap_}, nil
}

type builtinFunc func(args []value.Bound, kwargs map[string]value.Bound) (value.Value, error)

// builtins is the pure, expression-level function surface the dialect
// exposes, matching codeparser.builtinFuncs's name set exactly.
var builtins = map[string]builtinFunc{
	"len":       biLen,
	"str":       biStr,
	"repr":      biRepr,
	"bool":      biBool,
	"int":       biInt,
	"float":     biFloat,
	"type":      biType,
	"list":      biList,
	"tuple":     biTuple,
	"set":       biSet,
	"dict":      biDict,
	"range":     biRange,
	"enumerate": biEnumerate,
	"zip":       biZip,
	"reversed":  biReversed,
	"sorted":    biSorted,
	"sum":       biSum,
	"min":       biMinMax(false),
	"max":       biMinMax(true),
	"abs":       biAbs,
	"divmod":    biDivmod,
	"any":       biAny,
	"all":       biAll,
	"hash":      biHash,
	"dir":       biDir,
}

func requireArgs(name string, args []value.Bound, n int) error {
	if len(args) != n {
		return fmt.Errorf("%s() takes exactly %d argument(s), got %d", name, n, len(args))
	}
	return nil
}

func biLen(args []value.Bound, _ map[string]value.Bound) (value.Value, error) {
	if err := requireArgs("len", args, 1); err != nil {
		return value.Null, err
	}
	n, err := args[0].Value.Len()
	if err != nil {
		return value.Null, err
	}
	return value.Int(int64(n)), nil
}

func biStr(args []value.Bound, _ map[string]value.Bound) (value.Value, error) {
	if err := requireArgs("str", args, 1); err != nil {
		return value.Null, err
	}
	return value.String(args[0].Value.Str()), nil
}

func biRepr(args []value.Bound, _ map[string]value.Bound) (value.Value, error) {
	if err := requireArgs("repr", args, 1); err != nil {
		return value.Null, err
	}
	return value.String(args[0].Value.Repr()), nil
}

func biBool(args []value.Bound, _ map[string]value.Bound) (value.Value, error) {
	if len(args) == 0 {
		return value.Bool(false), nil
	}
	return value.Bool(args[0].Value.Truthy()), nil
}

func biInt(args []value.Bound, _ map[string]value.Bound) (value.Value, error) {
	if len(args) == 0 {
		return value.Int(0), nil
	}
	v := args[0].Value
	switch v.Kind() {
	case value.KindInt:
		return v, nil
	case value.KindFloat:
		f, _ := v.AsFloat()
		return value.Int(int64(f)), nil
	case value.KindBool:
		b, _ := v.AsBool()
		if b {
			return value.Int(1), nil
		}
		return value.Int(0), nil
	case value.KindString:
		s, _ := v.AsString()
		var i int64
		if _, err := fmt.Sscanf(s, "%d", &i); err != nil {
			return value.Null, fmt.Errorf("invalid literal for int(): %q", s)
		}
		return value.Int(i), nil
	default:
		return value.Null, fmt.Errorf("int() argument must be a string or a number, not %q", v.Kind())
	}
}

func biFloat(args []value.Bound, _ map[string]value.Bound) (value.Value, error) {
	if len(args) == 0 {
		return value.Float(0), nil
	}
	v := args[0].Value
	if f, ok := v.AsFloat(); ok {
		return value.Float(f), nil
	}
	if s, ok := v.AsString(); ok {
		var f float64
		if _, err := fmt.Sscanf(s, "%g", &f); err != nil {
			return value.Null, fmt.Errorf("could not convert string to float: %q", s)
		}
		return value.Float(f), nil
	}
	return value.Null, fmt.Errorf("float() argument must be a string or a number, not %q", v.Kind())
}

func biType(args []value.Bound, _ map[string]value.Bound) (value.Value, error) {
	if err := requireArgs("type", args, 1); err != nil {
		return value.Null, err
	}
	return value.String(args[0].Value.Kind().String()), nil
}

func biList(args []value.Bound, _ map[string]value.Bound) (value.Value, error) {
	if len(args) == 0 {
		return value.List(nil), nil
	}
	items, err := asIterable(args[0].Value)
	if err != nil {
		return value.Null, err
	}
	return value.List(items), nil
}

func biTuple(args []value.Bound, _ map[string]value.Bound) (value.Value, error) {
	if len(args) == 0 {
		return value.Tuple(nil), nil
	}
	items, err := asIterable(args[0].Value)
	if err != nil {
		return value.Null, err
	}
	return value.Tuple(items), nil
}

func biSet(args []value.Bound, _ map[string]value.Bound) (value.Value, error) {
	if len(args) == 0 {
		return value.List(nil), nil
	}
	items, err := asIterable(args[0].Value)
	if err != nil {
		return value.Null, err
	}
	return value.List(dedupe(items)), nil
}

func biDict(args []value.Bound, kwargs map[string]value.Bound) (value.Value, error) {
	pairs := make([]value.DictPair, 0, len(kwargs))
	if len(args) == 1 && args[0].Value.Kind() == value.KindDict {
		for _, k := range args[0].Value.DictKeys() {
			v, _ := args[0].Value.DictGet(k)
			pairs = append(pairs, value.DictPair{Key: k, Value: v})
		}
	}
	for k, v := range kwargs {
		pairs = append(pairs, value.DictPair{Key: k, Value: v.Value})
	}
	return value.Dict(pairs...), nil
}

func biRange(args []value.Bound, _ map[string]value.Bound) (value.Value, error) {
	var start, stop, step int64 = 0, 0, 1
	switch len(args) {
	case 1:
		v, ok := args[0].Value.AsInt()
		if !ok {
			return value.Null, fmt.Errorf("range() argument must be an integer")
		}
		stop = v
	case 2, 3:
		a0, ok0 := args[0].Value.AsInt()
		a1, ok1 := args[1].Value.AsInt()
		if !ok0 || !ok1 {
			return value.Null, fmt.Errorf("range() arguments must be integers")
		}
		start, stop = a0, a1
		if len(args) == 3 {
			a2, ok2 := args[2].Value.AsInt()
			if !ok2 || a2 == 0 {
				return value.Null, fmt.Errorf("range() step must be a nonzero integer")
			}
			step = a2
		}
	default:
		return value.Null, fmt.Errorf("range() takes 1 to 3 arguments, got %d", len(args))
	}
	var out []value.Value
	if step > 0 {
		for i := start; i < stop; i += step {
			out = append(out, value.Int(i))
		}
	} else {
		for i := start; i > stop; i += step {
			out = append(out, value.Int(i))
		}
	}
	return value.List(out), nil
}

func biEnumerate(args []value.Bound, kwargs map[string]value.Bound) (value.Value, error) {
	if err := requireArgs("enumerate", args, 1); err != nil {
		return value.Null, err
	}
	start := int64(0)
	if s, ok := kwargs["start"]; ok {
		if v, ok := s.Value.AsInt(); ok {
			start = v
		}
	}
	items, err := asIterable(args[0].Value)
	if err != nil {
		return value.Null, err
	}
	out := make([]value.Value, len(items))
	for i, it := range items {
		out[i] = value.Tuple([]value.Value{value.Int(start + int64(i)), it})
	}
	return value.List(out), nil
}

func biZip(args []value.Bound, _ map[string]value.Bound) (value.Value, error) {
	lists := make([][]value.Value, len(args))
	minLen := -1
	for i, a := range args {
		items, err := asIterable(a.Value)
		if err != nil {
			return value.Null, err
		}
		lists[i] = items
		if minLen == -1 || len(items) < minLen {
			minLen = len(items)
		}
	}
	if minLen < 0 {
		minLen = 0
	}
	out := make([]value.Value, minLen)
	for i := 0; i < minLen; i++ {
		row := make([]value.Value, len(lists))
		for j, l := range lists {
			row[j] = l[i]
		}
		out[i] = value.Tuple(row)
	}
	return value.List(out), nil
}

func biReversed(args []value.Bound, _ map[string]value.Bound) (value.Value, error) {
	if err := requireArgs("reversed", args, 1); err != nil {
		return value.Null, err
	}
	items, err := asIterable(args[0].Value)
	if err != nil {
		return value.Null, err
	}
	out := make([]value.Value, len(items))
	for i, it := range items {
		out[len(items)-1-i] = it
	}
	return value.List(out), nil
}

func biSorted(args []value.Bound, kwargs map[string]value.Bound) (value.Value, error) {
	if err := requireArgs("sorted", args, 1); err != nil {
		return value.Null, err
	}
	items, err := asIterable(args[0].Value)
	if err != nil {
		return value.Null, err
	}
	out := append([]value.Value{}, items...)
	reverse := false
	if r, ok := kwargs["reverse"]; ok {
		reverse = r.Value.Truthy()
	}
	var sortErr error
	sort.SliceStable(out, func(i, j int) bool {
		c, cerr := value.Compare(out[i], out[j])
		if cerr != nil {
			sortErr = cerr
			return false
		}
		if reverse {
			return c > 0
		}
		return c < 0
	})
	if sortErr != nil {
		return value.Null, sortErr
	}
	return value.List(out), nil
}

func biSum(args []value.Bound, _ map[string]value.Bound) (value.Value, error) {
	if len(args) == 0 || len(args) > 2 {
		return value.Null, fmt.Errorf("sum() takes 1 or 2 arguments")
	}
	items, err := asIterable(args[0].Value)
	if err != nil {
		return value.Null, err
	}
	acc := value.Value(value.Int(0))
	if len(args) == 2 {
		acc = args[1].Value
	}
	for _, it := range items {
		acc, err = addOp(acc, it)
		if err != nil {
			return value.Null, err
		}
	}
	return acc, nil
}

func biMinMax(isMax bool) builtinFunc {
	return func(args []value.Bound, _ map[string]value.Bound) (value.Value, error) {
		var items []value.Value
		if len(args) == 1 {
			var err error
			items, err = asIterable(args[0].Value)
			if err != nil {
				return value.Null, err
			}
		} else {
			for _, a := range args {
				items = append(items, a.Value)
			}
		}
		if len(items) == 0 {
			return value.Null, fmt.Errorf("min()/max() arg is an empty sequence")
		}
		best := items[0]
		for _, it := range items[1:] {
			c, err := value.Compare(it, best)
			if err != nil {
				return value.Null, err
			}
			if (isMax && c > 0) || (!isMax && c < 0) {
				best = it
			}
		}
		return best, nil
	}
}

func biAbs(args []value.Bound, _ map[string]value.Bound) (value.Value, error) {
	if err := requireArgs("abs", args, 1); err != nil {
		return value.Null, err
	}
	v := args[0].Value
	if i, ok := v.AsInt(); ok {
		if i < 0 {
			i = -i
		}
		return value.Int(i), nil
	}
	if f, ok := v.AsFloat(); ok {
		if f < 0 {
			f = -f
		}
		return value.Float(f), nil
	}
	return value.Null, fmt.Errorf("bad operand type for abs(): %q", v.Kind())
}

func biDivmod(args []value.Bound, _ map[string]value.Bound) (value.Value, error) {
	if err := requireArgs("divmod", args, 2); err != nil {
		return value.Null, err
	}
	q, err := arithOp("//", args[0].Value, args[1].Value)
	if err != nil {
		return value.Null, err
	}
	m, err := arithOp("%", args[0].Value, args[1].Value)
	if err != nil {
		return value.Null, err
	}
	return value.Tuple([]value.Value{q, m}), nil
}

func biAny(args []value.Bound, _ map[string]value.Bound) (value.Value, error) {
	if err := requireArgs("any", args, 1); err != nil {
		return value.Null, err
	}
	items, err := asIterable(args[0].Value)
	if err != nil {
		return value.Null, err
	}
	for _, it := range items {
		if it.Truthy() {
			return value.Bool(true), nil
		}
	}
	return value.Bool(false), nil
}

func biAll(args []value.Bound, _ map[string]value.Bound) (value.Value, error) {
	if err := requireArgs("all", args, 1); err != nil {
		return value.Null, err
	}
	items, err := asIterable(args[0].Value)
	if err != nil {
		return value.Null, err
	}
	for _, it := range items {
		if !it.Truthy() {
			return value.Bool(false), nil
		}
	}
	return value.Bool(true), nil
}

func biHash(args []value.Bound, _ map[string]value.Bound) (value.Value, error) {
	if err := requireArgs("hash", args, 1); err != nil {
		return value.Null, err
	}
	h := fnv.New64a()
	h.Write([]byte(args[0].Value.Repr()))
	return value.Int(int64(h.Sum64())), nil
}

func biDir(args []value.Bound, _ map[string]value.Bound) (value.Value, error) {
	if err := requireArgs("dir", args, 1); err != nil {
		return value.Null, err
	}
	names := methodNamesFor(args[0].Value.Kind())
	out := make([]value.Value, len(names))
	for i, n := range names {
		out[i] = value.String(n)
	}
	return value.List(out), nil
}

// asIterable returns the flattened element list of a list/tuple/string/
// dict value, the same set sequenceOf covers for `for`, shared by
// builtins that accept "any iterable".
func asIterable(v value.Value) ([]value.Value, error) {
	items := sequenceOf(v)
	if items == nil {
		return nil, fmt.Errorf("object of type %q is not iterable", v.Kind())
	}
	return items, nil
}
