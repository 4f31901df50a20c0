package qllm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/openclaw/camel/internal/ir"
)

// compiledSchemaCache memoizes compiled JSON Schemas by their canonical
// JSON text, mirroring pkg/pluginsdk/validation.go's compileSchema
// sync.Map cache so repeated extractions against the same Schema value
// (the common case — one query_ai_assistant call site, many turns)
// don't pay recompilation cost every call.
var compiledSchemaCache sync.Map // map[string]*jsonschema.Schema

// buildJSONSchema renders an ir.Schema as a JSON Schema document
// declaring every field and requiring those marked Required, in the
// shape query_ai_assistant's extraction model is asked to populate.
func buildJSONSchema(s ir.Schema) map[string]any {
	props := make(map[string]any, len(s.FieldOrder))
	var required []string
	for _, name := range s.FieldOrder {
		f := s.Fields[name]
		props[name] = fieldSchema(f)
		if f.Required {
			required = append(required, name)
		}
	}
	doc := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		doc["required"] = required
	}
	if s.Description != "" {
		doc["description"] = s.Description
	}
	return doc
}

func fieldSchema(f *ir.FieldSpec) map[string]any {
	doc := map[string]any{}
	if f.Description != "" {
		doc["description"] = f.Description
	}
	switch f.Type {
	case ir.FieldString:
		// Accepts anything coerceField's display-text cast can render,
		// not just a bare JSON string (spec.md §4.3(4)).
		doc["type"] = []string{"string", "number", "boolean"}
	case ir.FieldNumber:
		doc["type"] = "number"
	case ir.FieldInteger:
		doc["type"] = "integer"
	case ir.FieldBoolean:
		// Accepts a bare bool, or a "true"/"false" string, or 0/1.
		doc["type"] = []string{"boolean", "string", "number"}
	case ir.FieldEmail:
		doc["type"] = "string"
		doc["format"] = "email"
	case ir.FieldDatetime:
		doc["type"] = "string"
		doc["format"] = "date-time"
	case ir.FieldArray:
		doc["type"] = "array"
		if f.Items != nil {
			doc["items"] = fieldSchema(f.Items)
		}
	case ir.FieldObject:
		doc["type"] = "object"
		props := make(map[string]any, len(f.PropertyOrder))
		var required []string
		for _, name := range f.PropertyOrder {
			pf := f.Properties[name]
			props[name] = fieldSchema(pf)
			if pf.Required {
				required = append(required, name)
			}
		}
		doc["properties"] = props
		if len(required) > 0 {
			doc["required"] = required
		}
	default:
		doc["type"] = "string"
	}
	return doc
}

// compileSchema compiles (and caches) the JSON Schema for s.
func compileSchema(s ir.Schema) (*jsonschema.Schema, error) {
	doc := buildJSONSchema(s)
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	key := string(raw)
	if cached, ok := compiledSchemaCache.Load(key); ok {
		return cached.(*jsonschema.Schema), nil
	}

	compiler := jsonschema.NewCompiler()
	compiler.AssertFormat = true
	const resourceURL = "camel://qllm/schema.json"
	if err := compiler.AddResource(resourceURL, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	compiled, err := compiler.Compile(resourceURL)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	compiledSchemaCache.Store(key, compiled)
	return compiled, nil
}

// validateExtraction validates a decoded extraction payload against s.
func validateExtraction(s ir.Schema, payload map[string]any) error {
	compiled, err := compileSchema(s)
	if err != nil {
		return err
	}
	return compiled.Validate(payload)
}
