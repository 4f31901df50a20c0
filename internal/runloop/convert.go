package runloop

import "github.com/openclaw/camel/internal/value"

// valueToAny lowers an interpreter Value to a plain Go value suitable
// for JSON encoding and tool.Executor argument maps. Tuples lower to
// the same []any shape as lists; CaMeL has no tuple/list distinction
// once a value crosses into a tool call's argument map.
func valueToAny(v value.Value) any {
	switch v.Kind() {
	case value.KindNull:
		return nil
	case value.KindBool:
		b, _ := v.AsBool()
		return b
	case value.KindInt:
		i, _ := v.AsInt()
		return i
	case value.KindFloat:
		f, _ := v.AsFloat()
		return f
	case value.KindString:
		s, _ := v.AsString()
		return s
	case value.KindList:
		items, _ := v.AsList()
		out := make([]any, len(items))
		for i, it := range items {
			out[i] = valueToAny(it)
		}
		return out
	case value.KindTuple:
		items, _ := v.AsTuple()
		out := make([]any, len(items))
		for i, it := range items {
			out[i] = valueToAny(it)
		}
		return out
	case value.KindDict:
		out := map[string]any{}
		for _, k := range v.DictKeys() {
			val, _ := v.DictGet(k)
			out[k] = valueToAny(val)
		}
		return out
	default:
		return nil
	}
}

// anyToValue lifts a plain Go value (as produced by encoding/json
// unmarshaling or a tool's Result.Details) into a Value. Numbers
// decoded from JSON arrive as float64; anyToValue keeps them as
// Float unless they're already an int-family Go type, since a tool
// executor is free to hand back either.
func anyToValue(a any) value.Value {
	switch v := a.(type) {
	case nil:
		return value.Null
	case bool:
		return value.Bool(v)
	case int:
		return value.Int(int64(v))
	case int64:
		return value.Int(v)
	case float64:
		return value.Float(v)
	case float32:
		return value.Float(float64(v))
	case string:
		return value.String(v)
	case []any:
		items := make([]value.Value, len(v))
		for i, it := range v {
			items[i] = anyToValue(it)
		}
		return value.List(items)
	case map[string]any:
		pairs := make([]value.DictPair, 0, len(v))
		for k, val := range v {
			pairs = append(pairs, value.DictPair{Key: k, Value: anyToValue(val)})
		}
		return value.Dict(pairs...)
	default:
		return value.Null
	}
}
