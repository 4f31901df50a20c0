// Package structured implements the second planner front-end of
// spec.md §4.1/§4.5 S1: a validated JSON step-array representation of
// the same internal/ir.Program the restricted-Python front-end
// produces, for planner models that emit JSON more reliably than
// indentation-sensitive source. Grounded on codeparser's statement/
// expression lowering, generalized from token-stream parsing to
// walking already-decoded `any` JSON values with path-qualified
// diagnostics (e.g. "steps[2].tool").
package structured

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/openclaw/camel/internal/camelerr"
	"github.com/openclaw/camel/internal/ir"
)

// MaxSteps mirrors codeparser.MaxSteps: both front-ends enforce the
// same 64-step program budget regardless of which one parsed a run's
// plan.
const MaxSteps = 64

// Result is the structured front-end's parse outcome.
type Result struct {
	Program *ir.Program
	Err     *camelerr.Diagnostic
}

// Parse validates raw JSON text against the step-array contract and
// lowers it to ir.Program. allowedTools gates every "tool" step's tool
// name exactly as codeparser.Parse does, with the same truncated
// allow-list message shape.
func Parse(raw string, allowedTools map[string]struct{}) Result {
	var doc any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return Result{Err: camelerr.NewTrusted(camelerr.StagePlan, "invalid JSON: %s", err.Error())}
	}
	top, ok := doc.(map[string]any)
	if !ok {
		return Result{Err: camelerr.NewTrusted(camelerr.StagePlan, "top-level JSON value must be an object with a \"steps\" array")}
	}
	rawSteps, ok := top["steps"]
	if !ok {
		return Result{Err: camelerr.NewTrusted(camelerr.StagePlan, "missing required field \"steps\"")}
	}
	stepList, ok := rawSteps.([]any)
	if !ok {
		return Result{Err: camelerr.NewTrusted(camelerr.StagePlan, "\"steps\" must be an array")}
	}
	if len(stepList) == 0 {
		return Result{Err: camelerr.NewTrusted(camelerr.StagePlan, "program has no steps")}
	}

	p := &parser{allowed: allowedTools}
	steps, diag := p.parseStepList(stepList, "steps")
	if diag != nil {
		return Result{Err: diag}
	}
	return Result{Program: &ir.Program{Steps: steps}}
}

type parser struct {
	allowed   map[string]struct{}
	stepCount int
}

func (p *parser) errf(path, format string, args ...any) *camelerr.Diagnostic {
	msg := fmt.Sprintf(format, args...)
	return camelerr.NewTrusted(camelerr.StagePlan, "%s: %s", path, msg)
}

func (p *parser) parseStepList(raw []any, path string) ([]ir.Step, *camelerr.Diagnostic) {
	out := make([]ir.Step, 0, len(raw))
	for i, el := range raw {
		p.stepCount++
		if p.stepCount > MaxSteps {
			return nil, p.errf(path, "program exceeds maximum of %d steps", MaxSteps)
		}
		stepPath := fmt.Sprintf("%s[%d]", path, i)
		obj, ok := el.(map[string]any)
		if !ok {
			return nil, p.errf(stepPath, "step must be a JSON object")
		}
		step, diag := p.parseStep(obj, stepPath)
		if diag != nil {
			return nil, diag
		}
		out = append(out, step)
	}
	return out, nil
}

func (p *parser) parseStep(obj map[string]any, path string) (ir.Step, *camelerr.Diagnostic) {
	kind, ok := stringField(obj, "kind")
	if !ok {
		return ir.Step{}, p.errf(path, "missing required string field \"kind\"")
	}
	switch kind {
	case "assign":
		return p.parseAssign(obj, path)
	case "unpack":
		return p.parseUnpack(obj, path)
	case "tool":
		return p.parseTool(obj, path)
	case "qllm":
		return p.parseQllm(obj, path)
	case "if":
		return p.parseIf(obj, path)
	case "for":
		return p.parseFor(obj, path)
	case "raise":
		return p.parseRaise(obj, path)
	case "final":
		return p.parseFinal(obj, path)
	default:
		return ir.Step{}, p.errf(path+".kind", "unknown step kind %q", kind)
	}
}

func (p *parser) parseAssign(obj map[string]any, path string) (ir.Step, *camelerr.Diagnostic) {
	target, ok := stringField(obj, "target")
	if !ok {
		return ir.Step{}, p.errf(path, "assign step missing required string field \"target\"")
	}
	rawExpr, ok := obj["value"]
	if !ok {
		return ir.Step{}, p.errf(path, "assign step missing required field \"value\"")
	}
	e, diag := p.parseExpr(rawExpr, path+".value")
	if diag != nil {
		return ir.Step{}, diag
	}
	return ir.Step{Kind: ir.StepAssign, Target: target, Expr: e}, nil
}

func (p *parser) parseUnpack(obj map[string]any, path string) (ir.Step, *camelerr.Diagnostic) {
	rawTargets, ok := obj["targets"].([]any)
	if !ok {
		return ir.Step{}, p.errf(path, "unpack step missing required array field \"targets\"")
	}
	targets := make([]string, 0, len(rawTargets))
	for i, t := range rawTargets {
		s, ok := t.(string)
		if !ok {
			return ir.Step{}, p.errf(fmt.Sprintf("%s.targets[%d]", path, i), "target must be a string")
		}
		targets = append(targets, s)
	}
	rawExpr, ok := obj["value"]
	if !ok {
		return ir.Step{}, p.errf(path, "unpack step missing required field \"value\"")
	}
	e, diag := p.parseExpr(rawExpr, path+".value")
	if diag != nil {
		return ir.Step{}, diag
	}
	return ir.Step{Kind: ir.StepUnpack, Targets: targets, Expr: e}, nil
}

func (p *parser) parseTool(obj map[string]any, path string) (ir.Step, *camelerr.Diagnostic) {
	toolName, ok := stringField(obj, "tool")
	if !ok {
		return ir.Step{}, p.errf(path, "tool step missing required string field \"tool\"")
	}
	if _, allowed := p.allowed[strings.ToLower(strings.TrimSpace(toolName))]; !allowed {
		return ir.Step{}, p.errf(path+".tool", "unknown tool %q; allowed tools: %s", toolName, p.allowedToolNames())
	}
	args := map[string]ir.Expr{}
	var order []string
	if rawArgs, ok := obj["args"].(map[string]any); ok {
		names := make([]string, 0, len(rawArgs))
		for name := range rawArgs {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			e, diag := p.parseExpr(rawArgs[name], fmt.Sprintf("%s.args.%s", path, name))
			if diag != nil {
				return ir.Step{}, diag
			}
			args[name] = e
			order = append(order, name)
		}
	}
	saveAs, _ := stringField(obj, "saveAs")
	return ir.Step{Kind: ir.StepTool, ToolName: toolName, Args: args, ArgOrder: order, SaveAs: saveAs}, nil
}

func (p *parser) allowedToolNames() string {
	names := make([]string, 0, len(p.allowed))
	for n := range p.allowed {
		names = append(names, n)
	}
	sort.Strings(names)
	const maxShown = 16
	if len(names) <= maxShown {
		return strings.Join(names, ", ")
	}
	return strings.Join(names[:maxShown], ", ") + fmt.Sprintf(", +%d more", len(names)-maxShown)
}

func (p *parser) parseQllm(obj map[string]any, path string) (ir.Step, *camelerr.Diagnostic) {
	instruction, ok := stringField(obj, "instruction")
	if !ok {
		return ir.Step{}, p.errf(path, "qllm step missing required string field \"instruction\"")
	}
	rawInput, ok := obj["input"]
	if !ok {
		return ir.Step{}, p.errf(path, "qllm step missing required field \"input\"")
	}
	input, diag := p.parseExpr(rawInput, path+".input")
	if diag != nil {
		return ir.Step{}, diag
	}
	rawSchema, ok := obj["schema"].(map[string]any)
	if !ok {
		return ir.Step{}, p.errf(path, "qllm step missing required object field \"schema\"")
	}
	schema, diag := p.parseSchema(rawSchema, path+".schema")
	if diag != nil {
		return ir.Step{}, diag
	}
	saveAs, ok := stringField(obj, "saveAs")
	if !ok {
		return ir.Step{}, p.errf(path, "qllm step missing required string field \"saveAs\"")
	}
	return ir.Step{Kind: ir.StepQllm, Instruction: instruction, Input: input, Schema: schema, SaveAs: saveAs}, nil
}

func (p *parser) parseSchema(obj map[string]any, path string) (ir.Schema, *camelerr.Diagnostic) {
	s := ir.Schema{Fields: map[string]*ir.FieldSpec{}}
	if desc, ok := stringField(obj, "description"); ok {
		s.Description = desc
	}
	rawFields, ok := obj["fields"].(map[string]any)
	if !ok {
		return ir.Schema{}, p.errf(path, "schema missing required object field \"fields\"")
	}
	names := make([]string, 0, len(rawFields))
	for name := range rawFields {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fieldObj, ok := rawFields[name].(map[string]any)
		if !ok {
			return ir.Schema{}, p.errf(fmt.Sprintf("%s.fields.%s", path, name), "field spec must be an object")
		}
		spec, diag := p.parseFieldSpec(fieldObj, fmt.Sprintf("%s.fields.%s", path, name))
		if diag != nil {
			return ir.Schema{}, diag
		}
		s.Fields[name] = spec
		s.FieldOrder = append(s.FieldOrder, name)
	}
	return s, nil
}

func (p *parser) parseFieldSpec(obj map[string]any, path string) (*ir.FieldSpec, *camelerr.Diagnostic) {
	typ, ok := stringField(obj, "type")
	if !ok {
		return nil, p.errf(path, "field spec missing required string field \"type\"")
	}
	spec := &ir.FieldSpec{Type: ir.FieldType(typ)}
	if req, ok := obj["required"].(bool); ok {
		spec.Required = req
	}
	if desc, ok := stringField(obj, "description"); ok {
		spec.Description = desc
	}
	if itemsObj, ok := obj["items"].(map[string]any); ok {
		items, diag := p.parseFieldSpec(itemsObj, path+".items")
		if diag != nil {
			return nil, diag
		}
		spec.Items = items
	}
	if propsObj, ok := obj["properties"].(map[string]any); ok {
		spec.Properties = map[string]*ir.FieldSpec{}
		names := make([]string, 0, len(propsObj))
		for name := range propsObj {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			propObj, ok := propsObj[name].(map[string]any)
			if !ok {
				return nil, p.errf(fmt.Sprintf("%s.properties.%s", path, name), "property spec must be an object")
			}
			propSpec, diag := p.parseFieldSpec(propObj, fmt.Sprintf("%s.properties.%s", path, name))
			if diag != nil {
				return nil, diag
			}
			spec.Properties[name] = propSpec
			spec.PropertyOrder = append(spec.PropertyOrder, name)
		}
	}
	return spec, nil
}

// parseIf accepts both "then"/"else" (legacy) and "thenBranch"/
// "elseBranch" (canonical) keys for backward compatibility with
// planner models trained on either shape, but every diagnostic this
// parser emits about the branch names it "thenBranch", never "then" —
// spec.md resolves the ambiguity in favor of the canonical name.
func (p *parser) parseIf(obj map[string]any, path string) (ir.Step, *camelerr.Diagnostic) {
	rawCond, ok := obj["cond"]
	if !ok {
		return ir.Step{}, p.errf(path, "if step missing required field \"cond\"")
	}
	cond, diag := p.parseExpr(rawCond, path+".cond")
	if diag != nil {
		return ir.Step{}, diag
	}

	thenRaw, ok := obj["thenBranch"].([]any)
	if !ok {
		thenRaw, ok = obj["then"].([]any)
	}
	if !ok {
		return ir.Step{}, p.errf(path, "if step missing required array field \"thenBranch\"")
	}
	thenSteps, diag := p.parseStepList(thenRaw, path+".thenBranch")
	if diag != nil {
		return ir.Step{}, diag
	}

	var elseSteps []ir.Step
	if elseRaw, ok := obj["elseBranch"].([]any); ok {
		elseSteps, diag = p.parseStepList(elseRaw, path+".elseBranch")
		if diag != nil {
			return ir.Step{}, diag
		}
	} else if elseRaw, ok := obj["else"].([]any); ok {
		elseSteps, diag = p.parseStepList(elseRaw, path+".elseBranch")
		if diag != nil {
			return ir.Step{}, diag
		}
	}
	return ir.Step{Kind: ir.StepIf, Cond: cond, Then: thenSteps, Else: elseSteps}, nil
}

func (p *parser) parseFor(obj map[string]any, path string) (ir.Step, *camelerr.Diagnostic) {
	rawIter, ok := obj["iterable"]
	if !ok {
		return ir.Step{}, p.errf(path, "for step missing required field \"iterable\"")
	}
	iterable, diag := p.parseExpr(rawIter, path+".iterable")
	if diag != nil {
		return ir.Step{}, diag
	}
	var item string
	var items []string
	if s, ok := stringField(obj, "item"); ok {
		item = s
	} else if rawItems, ok := obj["items"].([]any); ok {
		for i, it := range rawItems {
			s, ok := it.(string)
			if !ok {
				return ir.Step{}, p.errf(fmt.Sprintf("%s.items[%d]", path, i), "loop target must be a string")
			}
			items = append(items, s)
		}
	} else {
		return ir.Step{}, p.errf(path, "for step missing required field \"item\" or \"items\"")
	}
	rawBody, ok := obj["body"].([]any)
	if !ok {
		return ir.Step{}, p.errf(path, "for step missing required array field \"body\"")
	}
	body, diag := p.parseStepList(rawBody, path+".body")
	if diag != nil {
		return ir.Step{}, diag
	}
	return ir.Step{Kind: ir.StepFor, ForItem: item, ForItems: items, Iterable: iterable, Body: body}, nil
}

func (p *parser) parseRaise(obj map[string]any, path string) (ir.Step, *camelerr.Diagnostic) {
	rawErr, ok := obj["error"]
	if !ok {
		return ir.Step{}, p.errf(path, "raise step missing required field \"error\"")
	}
	e, diag := p.parseExpr(rawErr, path+".error")
	if diag != nil {
		return ir.Step{}, diag
	}
	return ir.Step{Kind: ir.StepRaise, Error: e}, nil
}

func (p *parser) parseFinal(obj map[string]any, path string) (ir.Step, *camelerr.Diagnostic) {
	text, ok := stringField(obj, "text")
	if !ok {
		return ir.Step{}, p.errf(path, "final step missing required string field \"text\"")
	}
	return ir.Step{Kind: ir.StepFinal, Text: text}, nil
}

func stringField(obj map[string]any, key string) (string, bool) {
	v, ok := obj[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}
