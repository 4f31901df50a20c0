package qllm

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/openclaw/camel/internal/ir"
	"github.com/openclaw/camel/internal/value"
)

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// coerceExtraction converts a validated JSON payload into a dict
// Value following the declared Schema's field order, applying the
// per-FieldType coercions and format checks spec.md §4.2 names for
// query_ai_assistant's result (email format, RFC 3339 datetime parse).
func coerceExtraction(s ir.Schema, payload map[string]any) (value.Value, error) {
	pairs := make([]value.DictPair, 0, len(s.FieldOrder))
	for _, name := range s.FieldOrder {
		f := s.Fields[name]
		raw, present := payload[name]
		if !present {
			if f.Required {
				return value.Null, fmt.Errorf("extraction missing required field %q", name)
			}
			pairs = append(pairs, value.DictPair{Key: name, Value: value.Null})
			continue
		}
		v, err := coerceField(f, raw)
		if err != nil {
			return value.Null, fmt.Errorf("field %q: %w", name, err)
		}
		pairs = append(pairs, value.DictPair{Key: name, Value: v})
	}
	return value.Dict(pairs...), nil
}

func coerceField(f *ir.FieldSpec, raw any) (value.Value, error) {
	switch f.Type {
	case ir.FieldString:
		return value.String(displayText(raw)), nil
	case ir.FieldEmail:
		s, ok := raw.(string)
		if !ok {
			return value.Null, fmt.Errorf("expected string, got %T", raw)
		}
		if !emailPattern.MatchString(s) {
			return value.Null, fmt.Errorf("%q is not a valid email address", s)
		}
		return value.String(s), nil
	case ir.FieldDatetime:
		s, ok := raw.(string)
		if !ok {
			return value.Null, fmt.Errorf("expected string, got %T", raw)
		}
		if _, err := time.Parse(time.RFC3339, s); err != nil {
			return value.Null, fmt.Errorf("%q is not an RFC 3339 datetime: %w", s, err)
		}
		return value.String(s), nil
	case ir.FieldNumber:
		f64, ok := raw.(float64)
		if !ok {
			return value.Null, fmt.Errorf("expected number, got %T", raw)
		}
		return value.Float(f64), nil
	case ir.FieldInteger:
		f64, ok := raw.(float64)
		if !ok {
			return value.Null, fmt.Errorf("expected integer, got %T", raw)
		}
		if math.Trunc(f64) != f64 {
			return value.Null, fmt.Errorf("%v is not an integer", f64)
		}
		return value.Int(int64(f64)), nil
	case ir.FieldBoolean:
		b, err := coerceBoolean(raw)
		if err != nil {
			return value.Null, err
		}
		return value.Bool(b), nil
	case ir.FieldArray:
		items, ok := raw.([]any)
		if !ok {
			return value.Null, fmt.Errorf("expected array, got %T", raw)
		}
		out := make([]value.Value, 0, len(items))
		for i, it := range items {
			if f.Items == nil {
				return value.Null, fmt.Errorf("array field has no item schema")
			}
			cv, err := coerceField(f.Items, it)
			if err != nil {
				return value.Null, fmt.Errorf("item %d: %w", i, err)
			}
			out = append(out, cv)
		}
		return value.List(out), nil
	case ir.FieldObject:
		obj, ok := raw.(map[string]any)
		if !ok {
			return value.Null, fmt.Errorf("expected object, got %T", raw)
		}
		pairs := make([]value.DictPair, 0, len(f.PropertyOrder))
		for _, name := range f.PropertyOrder {
			pf := f.Properties[name]
			rv, present := obj[name]
			if !present {
				if pf.Required {
					return value.Null, fmt.Errorf("missing required property %q", name)
				}
				pairs = append(pairs, value.DictPair{Key: name, Value: value.Null})
				continue
			}
			cv, err := coerceField(pf, rv)
			if err != nil {
				return value.Null, fmt.Errorf("property %q: %w", name, err)
			}
			pairs = append(pairs, value.DictPair{Key: name, Value: cv})
		}
		return value.Dict(pairs...), nil
	default:
		return value.Null, fmt.Errorf("unknown field type %q", f.Type)
	}
}

// displayText casts an arbitrary decoded JSON value to its display-text
// representation (spec.md §4.3(4)): strings pass through unchanged,
// booleans and numbers render as their literal text, and anything else
// falls back to Go's default formatting.
func displayText(raw any) string {
	switch v := raw.(type) {
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}

// coerceBoolean accepts a JSON bool, a case-insensitive "true"/"false"
// string, or the numbers 0/1, per spec.md §4.3(4).
func coerceBoolean(raw any) (bool, error) {
	switch v := raw.(type) {
	case bool:
		return v, nil
	case string:
		switch strings.ToLower(v) {
		case "true":
			return true, nil
		case "false":
			return false, nil
		}
		return false, fmt.Errorf("expected boolean, got string %q", v)
	case float64:
		switch v {
		case 0:
			return false, nil
		case 1:
			return true, nil
		}
		return false, fmt.Errorf("expected boolean, got number %v", v)
	default:
		return false, fmt.Errorf("expected boolean, got %T", raw)
	}
}
