// Package value implements the small duck-typed value universe the
// interpreter evaluates expressions into: null, bool, int, float, string,
// list, dict, and tuple. Every Value carries no trust information by
// itself — trust and provenance live in the accompanying Capability
// (see capability.go) that the interpreter threads alongside it.
package value

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Kind tags the dynamic type of a Value.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindList
	KindDict
	KindTuple
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindList:
		return "list"
	case KindDict:
		return "dict"
	case KindTuple:
		return "tuple"
	default:
		return "unknown"
	}
}

// Value is a tagged union over the CaMeL value space. The zero Value is
// Null. Values are immutable from the interpreter's point of view: every
// operation that "mutates" a list or dict returns a new Value rather than
// aliasing the receiver, so capability tracking never has to worry about
// two names observing a single mutable backing array.
type Value struct {
	kind Kind
	b    bool
	i    int64
	f    float64
	s    string
	list []Value
	dict *orderedDict
	tup  []Value
}

// Null is the singular null value.
var Null = Value{kind: KindNull}

func Bool(b bool) Value   { return Value{kind: KindBool, b: b} }
func Int(i int64) Value   { return Value{kind: KindInt, i: i} }
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }
func String(s string) Value { return Value{kind: KindString, s: s} }

func List(items []Value) Value {
	cp := make([]Value, len(items))
	copy(cp, items)
	return Value{kind: KindList, list: cp}
}

func Tuple(items []Value) Value {
	cp := make([]Value, len(items))
	copy(cp, items)
	return Value{kind: KindTuple, tup: cp}
}

func Dict(pairs ...DictPair) Value {
	d := newOrderedDict()
	for _, p := range pairs {
		d.set(p.Key, p.Value)
	}
	return Value{kind: KindDict, dict: d}
}

// DictPair is one key/value pair used to build a Dict literal.
type DictPair struct {
	Key   string
	Value Value
}

func (v Value) Kind() Kind { return v.kind }

func (v Value) AsBool() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.b, true
}

func (v Value) AsInt() (int64, bool) {
	if v.kind != KindInt {
		return 0, false
	}
	return v.i, true
}

func (v Value) AsFloat() (float64, bool) {
	switch v.kind {
	case KindFloat:
		return v.f, true
	case KindInt:
		return float64(v.i), true
	default:
		return 0, false
	}
}

func (v Value) AsString() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.s, true
}

func (v Value) AsList() ([]Value, bool) {
	if v.kind != KindList {
		return nil, false
	}
	return v.list, true
}

func (v Value) AsTuple() ([]Value, bool) {
	if v.kind != KindTuple {
		return nil, false
	}
	return v.tup, true
}

// AsDict returns the dict's keys in insertion order alongside a lookup map.
func (v Value) AsDict() (*orderedDict, bool) {
	if v.kind != KindDict {
		return nil, false
	}
	return v.dict, true
}

// DictKeys returns the dict's keys in insertion order, or nil for non-dicts.
func (v Value) DictKeys() []string {
	if v.kind != KindDict || v.dict == nil {
		return nil
	}
	return v.dict.keys()
}

// DictGet looks up a key in a dict value.
func (v Value) DictGet(key string) (Value, bool) {
	if v.kind != KindDict || v.dict == nil {
		return Null, false
	}
	return v.dict.get(key)
}

// DictLen returns the number of entries in a dict, or 0 for non-dicts.
func (v Value) DictLen() int {
	if v.kind != KindDict || v.dict == nil {
		return 0
	}
	return v.dict.len()
}

// WithDictSet returns a new dict Value with key bound to val.
func (v Value) WithDictSet(key string, val Value) Value {
	var base *orderedDict
	if v.kind == KindDict && v.dict != nil {
		base = v.dict.clone()
	} else {
		base = newOrderedDict()
	}
	base.set(key, val)
	return Value{kind: KindDict, dict: base}
}

// Truthy implements Python-like truthiness: empty collections, zero
// numbers, empty strings, and null are false.
func (v Value) Truthy() bool {
	switch v.kind {
	case KindNull:
		return false
	case KindBool:
		return v.b
	case KindInt:
		return v.i != 0
	case KindFloat:
		return v.f != 0
	case KindString:
		return v.s != ""
	case KindList:
		return len(v.list) > 0
	case KindTuple:
		return len(v.tup) > 0
	case KindDict:
		return v.dict != nil && v.dict.len() > 0
	default:
		return false
	}
}

// Equal implements SameValue-style structural equality used by `==`, `in`,
// and set/dict deduplication.
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		// Python treats int/float/bool as numerically comparable across kinds.
		af, aok := a.AsFloat()
		bf, bok := b.AsFloat()
		if aok && bok && a.kind != KindString && b.kind != KindString {
			return af == bf
		}
		if a.kind == KindBool || b.kind == KindBool {
			return numericEqualBool(a, b)
		}
		return false
	}
	switch a.kind {
	case KindNull:
		return true
	case KindBool:
		return a.b == b.b
	case KindInt:
		return a.i == b.i
	case KindFloat:
		return a.f == b.f
	case KindString:
		return a.s == b.s
	case KindList, KindTuple:
		al, bl := sliceOf(a), sliceOf(b)
		if len(al) != len(bl) {
			return false
		}
		for i := range al {
			if !Equal(al[i], bl[i]) {
				return false
			}
		}
		return true
	case KindDict:
		if a.dict.len() != b.dict.len() {
			return false
		}
		for _, k := range a.dict.keys() {
			av, _ := a.dict.get(k)
			bv, ok := b.dict.get(k)
			if !ok || !Equal(av, bv) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func numericEqualBool(a, b Value) bool {
	toF := func(v Value) (float64, bool) {
		if bv, ok := v.AsBool(); ok {
			if bv {
				return 1, true
			}
			return 0, true
		}
		return v.AsFloat()
	}
	af, aok := toF(a)
	bf, bok := toF(b)
	return aok && bok && af == bf
}

func sliceOf(v Value) []Value {
	switch v.kind {
	case KindList:
		return v.list
	case KindTuple:
		return v.tup
	default:
		return nil
	}
}

// Compare orders two values for `<`, `<=`, `>`, `>=`. Returns an error for
// incomparable kinds (e.g. list vs int), matching the runtime error the
// interpreter surfaces as a trusted diagnostic.
func Compare(a, b Value) (int, error) {
	if af, aok := a.AsFloat(); aok && a.kind != KindString {
		if bf, bok := b.AsFloat(); bok && b.kind != KindString {
			switch {
			case af < bf:
				return -1, nil
			case af > bf:
				return 1, nil
			default:
				return 0, nil
			}
		}
	}
	if a.kind == KindString && b.kind == KindString {
		return strings.Compare(a.s, b.s), nil
	}
	if (a.kind == KindList && b.kind == KindList) || (a.kind == KindTuple && b.kind == KindTuple) {
		al, bl := sliceOf(a), sliceOf(b)
		for i := 0; i < len(al) && i < len(bl); i++ {
			c, err := Compare(al[i], bl[i])
			if err != nil {
				return 0, err
			}
			if c != 0 {
				return c, nil
			}
		}
		return len(al) - len(bl), nil
	}
	return 0, fmt.Errorf("'<' not supported between instances of %q and %q", a.kind, b.kind)
}

// Repr renders a value the way Python's repr() would, used by the `repr`
// builtin and error messages.
func (v Value) Repr() string {
	switch v.kind {
	case KindNull:
		return "None"
	case KindBool:
		if v.b {
			return "True"
		}
		return "False"
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return formatFloat(v.f)
	case KindString:
		return strconv.Quote(v.s)
	case KindList:
		return reprSlice(v.list, "[", "]")
	case KindTuple:
		if len(v.tup) == 1 {
			return "(" + v.tup[0].Repr() + ",)"
		}
		return reprSlice(v.tup, "(", ")")
	case KindDict:
		var sb strings.Builder
		sb.WriteByte('{')
		for i, k := range v.dict.keys() {
			if i > 0 {
				sb.WriteString(", ")
			}
			val, _ := v.dict.get(k)
			fmt.Fprintf(&sb, "%s: %s", strconv.Quote(k), val.Repr())
		}
		sb.WriteByte('}')
		return sb.String()
	default:
		return "?"
	}
}

func reprSlice(items []Value, open, close string) string {
	var sb strings.Builder
	sb.WriteString(open)
	for i, it := range items {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(it.Repr())
	}
	sb.WriteString(close)
	return sb.String()
}

// Str renders a value the way Python's str() would — used by the
// `final` template, string concatenation, and the `str` builtin.
func (v Value) Str() string {
	switch v.kind {
	case KindString:
		return v.s
	case KindNull, KindBool, KindInt, KindFloat:
		return v.Repr()
	case KindList, KindTuple, KindDict:
		return v.Repr()
	default:
		return ""
	}
}

func formatFloat(f float64) string {
	if math.IsInf(f, 1) {
		return "inf"
	}
	if math.IsInf(f, -1) {
		return "-inf"
	}
	if math.IsNaN(f) {
		return "nan"
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}

// Len implements the `len` builtin.
func (v Value) Len() (int, error) {
	switch v.kind {
	case KindString:
		return len([]rune(v.s)), nil
	case KindList:
		return len(v.list), nil
	case KindTuple:
		return len(v.tup), nil
	case KindDict:
		return v.dict.len(), nil
	default:
		return 0, fmt.Errorf("object of type %q has no len()", v.kind)
	}
}

// orderedDict is an insertion-order-preserving string-keyed map.
type orderedDict struct {
	order []string
	m     map[string]Value
}

func newOrderedDict() *orderedDict {
	return &orderedDict{m: make(map[string]Value)}
}

func (d *orderedDict) clone() *orderedDict {
	nd := newOrderedDict()
	nd.order = append(nd.order, d.order...)
	for k, v := range d.m {
		nd.m[k] = v
	}
	return nd
}

func (d *orderedDict) set(key string, v Value) {
	if _, ok := d.m[key]; !ok {
		d.order = append(d.order, key)
	}
	d.m[key] = v
}

func (d *orderedDict) get(key string) (Value, bool) {
	v, ok := d.m[key]
	return v, ok
}

func (d *orderedDict) delete(key string) {
	if _, ok := d.m[key]; !ok {
		return
	}
	delete(d.m, key)
	for i, k := range d.order {
		if k == key {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}
}

func (d *orderedDict) keys() []string {
	out := make([]string, len(d.order))
	copy(out, d.order)
	return out
}

func (d *orderedDict) sortedKeys() []string {
	out := d.keys()
	sort.Strings(out)
	return out
}

func (d *orderedDict) len() int { return len(d.order) }
