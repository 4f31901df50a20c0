package codeparser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/openclaw/camel/internal/camelerr"
	"github.com/openclaw/camel/internal/ir"
)

// MaxSteps bounds the total number of steps across all nested bodies in a
// single program (spec.md §3 invariant 4, §4.1 "Bounds").
const MaxSteps = 64

// builtinFuncs lists callables that are expression-level (pure,
// non-side-effecting) rather than Step-level tool invocations. Any other
// bare-call identifier is treated as a tool name by the statement lowerer.
var builtinFuncs = map[string]bool{
	"len": true, "str": true, "repr": true, "bool": true, "int": true,
	"float": true, "type": true, "list": true, "tuple": true, "set": true,
	"dict": true, "range": true, "enumerate": true, "zip": true,
	"reversed": true, "sorted": true, "sum": true, "min": true, "max": true,
	"abs": true, "divmod": true, "any": true, "all": true, "hash": true,
	"dir": true,
}

// Result is the outcome of parsing one candidate planner output.
type Result struct {
	Program *ir.Program
	Err     *camelerr.Diagnostic
	// LooksLikeJSON signals the caller (internal/parser) to retry via the
	// structured front-end instead of surfacing this diagnostic.
	LooksLikeJSON bool
}

// Parse parses a restricted Python-subset program. allowedTools is the
// per-run tool allow-set (spec.md §4.1); unknown tool references produce
// a trusted diagnostic naming the tool and a truncated allow-list.
func Parse(src string, allowedTools map[string]struct{}) Result {
	trimmed := strings.TrimSpace(src)
	if strings.HasPrefix(trimmed, "{") {
		return Result{LooksLikeJSON: true}
	}

	toks, err := lex(src)
	if err != nil {
		if le, ok := err.(*LexError); ok {
			return Result{Err: &camelerr.Diagnostic{
				Stage: camelerr.StagePlan, Trusted: true,
				Message:  camelerr.Truncate(le.Msg),
				Line:     le.Line, Column: le.Col, LineText: le.LineText,
			}}
		}
		return Result{Err: camelerr.NewTrusted(camelerr.StagePlan, "%v", err)}
	}

	p := &parser{toks: toks, allowed: allowedTools}
	steps, perr := p.parseBlockTopLevel()
	if perr != nil {
		return Result{Err: perr}
	}
	return Result{Program: &ir.Program{Steps: steps}}
}

type parser struct {
	toks      []token
	pos       int
	allowed   map[string]struct{}
	stepCount int
}

func (p *parser) cur() token  { return p.toks[p.pos] }
func (p *parser) at(k tokenKind, text string) bool {
	t := p.cur()
	return t.kind == k && (text == "" || t.text == text)
}
func (p *parser) atKeyword(kw string) bool { return p.at(tokKeyword, kw) }
func (p *parser) atOp(op string) bool      { return p.at(tokOp, op) }

func (p *parser) advance() token {
	t := p.toks[p.pos]
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return t
}

func (p *parser) errAt(t token, format string, args ...any) *camelerr.Diagnostic {
	return camelerr.NewTrustedAt(camelerr.StagePlan, t.line, t.col, t.lineText, format, args...)
}

func (p *parser) expectOp(op string) (token, *camelerr.Diagnostic) {
	if !p.atOp(op) {
		return token{}, p.errAt(p.cur(), "expected %q, found %q", op, p.cur().text)
	}
	return p.advance(), nil
}

func (p *parser) skipNewlines() {
	for p.at(tokNewline, "") {
		p.advance()
	}
}

func (p *parser) bumpStep(t token) *camelerr.Diagnostic {
	p.stepCount++
	if p.stepCount > MaxSteps {
		return p.errAt(t, "program exceeds maximum of %d steps", MaxSteps)
	}
	return nil
}

// parseBlockTopLevel parses statements until EOF.
func (p *parser) parseBlockTopLevel() ([]ir.Step, *camelerr.Diagnostic) {
	var steps []ir.Step
	p.skipNewlines()
	for !p.at(tokEOF, "") {
		s, err := p.parseStmt()
		if err != nil {
			return nil, err
		}
		steps = append(steps, s...)
		p.skipNewlines()
	}
	if len(steps) == 0 {
		return nil, camelerr.NewTrusted(camelerr.StagePlan, "program has no steps")
	}
	return steps, nil
}

// parseIndentedBlock parses a ':' NEWLINE INDENT stmt+ DEDENT suite.
func (p *parser) parseIndentedBlock() ([]ir.Step, *camelerr.Diagnostic) {
	if _, err := p.expectOp(":"); err != nil {
		return nil, err
	}
	if !p.at(tokNewline, "") {
		return nil, p.errAt(p.cur(), "expected newline after ':'")
	}
	p.advance()
	p.skipNewlines()
	if !p.at(tokIndent, "") {
		return nil, p.errAt(p.cur(), "expected an indented block")
	}
	p.advance()
	var steps []ir.Step
	for !p.at(tokDedent, "") && !p.at(tokEOF, "") {
		s, err := p.parseStmt()
		if err != nil {
			return nil, err
		}
		steps = append(steps, s...)
		p.skipNewlines()
	}
	if p.at(tokDedent, "") {
		p.advance()
	}
	if len(steps) == 0 {
		return nil, p.errAt(p.cur(), "block has no statements")
	}
	return steps, nil
}

func (p *parser) parseStmt() ([]ir.Step, *camelerr.Diagnostic) {
	t := p.cur()
	switch {
	case p.atKeyword("if"):
		s, err := p.parseIf()
		if err != nil {
			return nil, err
		}
		return []ir.Step{s}, nil
	case p.atKeyword("for"):
		s, err := p.parseFor()
		if err != nil {
			return nil, err
		}
		return []ir.Step{s}, nil
	case p.atKeyword("raise"):
		return p.parseRaise()
	case rejectedKeywords[t.text] && t.kind == tokKeyword:
		return nil, p.errAt(t, "%q is not supported by this dialect", t.text)
	case t.kind == tokKeyword && (t.text == "pass" || t.text == "break" || t.text == "continue"):
		return nil, p.errAt(t, "%q is not supported by this dialect", t.text)
	default:
		return p.parseSimpleAssignOrExpr()
	}
}

func (p *parser) parseIf() (ir.Step, *camelerr.Diagnostic) {
	t := p.advance() // 'if'
	if err := p.bumpStep(t); err != nil {
		return ir.Step{}, err
	}
	cond, err := p.parseExpr()
	if err != nil {
		return ir.Step{}, err
	}
	then, err := p.parseIndentedBlock()
	if err != nil {
		return ir.Step{}, err
	}
	step := ir.Step{Kind: ir.StepIf, Loc: loc(t), Cond: cond, Then: then}
	if p.atKeyword("elif") {
		elifTok := p.cur()
		nested, err := p.parseElifChain()
		if err != nil {
			return ir.Step{}, err
		}
		_ = elifTok
		step.Else = []ir.Step{nested}
	} else if p.atKeyword("else") {
		p.advance()
		elseBlock, err := p.parseIndentedBlock()
		if err != nil {
			return ir.Step{}, err
		}
		step.Else = elseBlock
	}
	return step, nil
}

func (p *parser) parseElifChain() (ir.Step, *camelerr.Diagnostic) {
	t := p.advance() // 'elif'
	if err := p.bumpStep(t); err != nil {
		return ir.Step{}, err
	}
	cond, err := p.parseExpr()
	if err != nil {
		return ir.Step{}, err
	}
	then, err := p.parseIndentedBlock()
	if err != nil {
		return ir.Step{}, err
	}
	step := ir.Step{Kind: ir.StepIf, Loc: loc(t), Cond: cond, Then: then}
	if p.atKeyword("elif") {
		nested, err := p.parseElifChain()
		if err != nil {
			return ir.Step{}, err
		}
		step.Else = []ir.Step{nested}
	} else if p.atKeyword("else") {
		p.advance()
		elseBlock, err := p.parseIndentedBlock()
		if err != nil {
			return ir.Step{}, err
		}
		step.Else = elseBlock
	}
	return step, nil
}

func (p *parser) parseFor() (ir.Step, *camelerr.Diagnostic) {
	t := p.advance() // 'for'
	if err := p.bumpStep(t); err != nil {
		return ir.Step{}, err
	}
	var targets []string
	name, err := p.expectName()
	if err != nil {
		return ir.Step{}, err
	}
	targets = append(targets, name)
	for p.atOp(",") {
		p.advance()
		n2, err := p.expectName()
		if err != nil {
			return ir.Step{}, err
		}
		targets = append(targets, n2)
	}
	if !p.atKeyword("in") {
		return ir.Step{}, p.errAt(p.cur(), "expected 'in' in for statement")
	}
	p.advance()
	iterable, err := p.parseExpr()
	if err != nil {
		return ir.Step{}, err
	}
	body, err := p.parseIndentedBlock()
	if err != nil {
		return ir.Step{}, err
	}
	step := ir.Step{Kind: ir.StepFor, Loc: loc(t), Iterable: iterable, Body: body}
	if len(targets) == 1 {
		step.ForItem = targets[0]
	} else {
		step.ForItems = targets
	}
	return step, nil
}

func (p *parser) parseRaise() ([]ir.Step, *camelerr.Diagnostic) {
	t := p.advance()
	if err := p.bumpStep(t); err != nil {
		return nil, err
	}
	e, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if err := p.expectStmtEnd(); err != nil {
		return nil, err
	}
	return []ir.Step{{Kind: ir.StepRaise, Loc: loc(t), Error: e}}, nil
}

func (p *parser) expectStmtEnd() *camelerr.Diagnostic {
	if p.at(tokNewline, "") {
		p.advance()
		return nil
	}
	if p.at(tokEOF, "") || p.at(tokDedent, "") {
		return nil
	}
	return p.errAt(p.cur(), "unexpected token %q at end of statement", p.cur().text)
}

func (p *parser) expectName() (string, *camelerr.Diagnostic) {
	if p.cur().kind != tokName {
		return "", p.errAt(p.cur(), "expected a name, found %q", p.cur().text)
	}
	return p.advance().text, nil
}

var augOps = map[string]string{"+=": "+", "-=": "-", "*=": "*", "/=": "/", "%=": "%"}

// parseSimpleAssignOrExpr handles assignment (including tuple-unpack and
// augmented assignment) and bare expression statements, lowering the
// latter into Tool/Qllm/Final steps as described in SPEC_FULL.md §4.
func (p *parser) parseSimpleAssignOrExpr() ([]ir.Step, *camelerr.Diagnostic) {
	startPos := p.pos
	if p.cur().kind == tokName {
		// Look ahead for "name (',' name)* '='" (assign/unpack) or
		// "name AUGOP" (augmented assign).
		save := p.pos
		first, _ := p.expectName()
		names := []string{first}
		ok := true
		for p.atOp(",") {
			p.advance()
			if p.cur().kind != tokName {
				ok = false
				break
			}
			n, _ := p.expectName()
			names = append(names, n)
		}
		if ok && p.atOp("=") {
			eqTok := p.advance()
			rhs, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if err := p.expectStmtEnd(); err != nil {
				return nil, err
			}
			if err := p.bumpStep(eqTok); err != nil {
				return nil, err
			}
			if len(names) == 1 {
				return p.lowerAssign(names[0], rhs, loc(eqTok))
			}
			return []ir.Step{{Kind: ir.StepUnpack, Loc: loc(eqTok), Targets: names, Expr: rhs}}, nil
		}
		for augTok, baseOp := range augOps {
			if ok && len(names) == 1 && p.atOp(augTok) {
				opTok := p.advance()
				rhs, err := p.parseExpr()
				if err != nil {
					return nil, err
				}
				if err := p.expectStmtEnd(); err != nil {
					return nil, err
				}
				if err := p.bumpStep(opTok); err != nil {
					return nil, err
				}
				combined := ir.Expr{Kind: ir.ExprBinary, Loc: loc(opTok), Op: baseOp,
					Left:  ref(names[0], loc(opTok)),
					Right: &rhs}
				return p.lowerAssign(names[0], combined, loc(opTok))
			}
		}
		p.pos = save
	}
	_ = startPos
	t := p.cur()
	e, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if err := p.expectStmtEnd(); err != nil {
		return nil, err
	}
	if err := p.bumpStep(t); err != nil {
		return nil, err
	}
	return p.lowerExprStmt(e, loc(t))
}

func ref(name string, l ir.SourceLoc) *ir.Expr {
	return &ir.Expr{Kind: ir.ExprVar, Name: name, Loc: l}
}

func loc(t token) ir.SourceLoc {
	return ir.SourceLoc{Line: t.line, Column: t.col, LineText: t.lineText}
}

// lowerAssign decides whether `target = expr` is a plain Assign, a Tool
// invocation bound to target, or a Qllm extraction bound to target.
func (p *parser) lowerAssign(target string, e ir.Expr, l ir.SourceLoc) ([]ir.Step, *camelerr.Diagnostic) {
	if e.Kind != ir.ExprCall {
		return []ir.Step{{Kind: ir.StepAssign, Loc: l, Target: target, Expr: e}}, nil
	}
	if e.FuncName == "query_ai_assistant" {
		step, err := p.lowerQllm(e, target)
		return []ir.Step{step}, err
	}
	if builtinFuncs[e.FuncName] {
		return []ir.Step{{Kind: ir.StepAssign, Loc: l, Target: target, Expr: e}}, nil
	}
	step, err := p.lowerTool(e, target)
	if err != nil {
		return nil, err
	}
	return []ir.Step{step}, nil
}

// lowerExprStmt lowers a bare expression statement: a tool/print/final
// call, or a ternary `final(X) if C else final(Y)`-shaped expression.
func (p *parser) lowerExprStmt(e ir.Expr, l ir.SourceLoc) ([]ir.Step, *camelerr.Diagnostic) {
	if e.Kind == ir.ExprCall {
		switch e.FuncName {
		case "final":
			step, err := p.lowerFinal(e)
			return []ir.Step{step}, err
		case "query_ai_assistant":
			return nil, p.errAtLoc(l, "query_ai_assistant must be assigned to a variable")
		default:
			step, err := p.lowerTool(e, "")
			if err != nil {
				return nil, err
			}
			return []ir.Step{step}, nil
		}
	}
	if e.Kind == ir.ExprCondThenElse {
		thenSteps, err := p.lowerExprStmt(*e.CompValue, l) // then branch stashed in CompValue
		if err != nil {
			return nil, err
		}
		elseSteps, err := p.lowerExprStmt(*e.CompKey, l) // else branch stashed in CompKey
		if err != nil {
			return nil, err
		}
		return []ir.Step{{Kind: ir.StepIf, Loc: l, Cond: e.CompElement, Then: thenSteps, Else: elseSteps}}, nil
	}
	return nil, p.errAtLoc(l, "expression statement has no effect")
}

func (p *parser) errAtLoc(l ir.SourceLoc, format string, args ...any) *camelerr.Diagnostic {
	return &camelerr.Diagnostic{Stage: camelerr.StagePlan, Trusted: true,
		Message: camelerr.Truncate(fmt.Sprintf(format, args...)),
		Line: l.Line, Column: l.Column, LineText: l.LineText}
}

// allowedToolNames renders the truncated allow-list used in unknown-tool
// diagnostics: first 16 names, then a "+N more" suffix (spec.md §4.1).
func (p *parser) allowedToolNames() string {
	names := make([]string, 0, len(p.allowed))
	for n := range p.allowed {
		names = append(names, n)
	}
	// deterministic order for reproducible diagnostics
	for i := 1; i < len(names); i++ {
		for j := i; j > 0 && names[j-1] > names[j]; j-- {
			names[j-1], names[j] = names[j], names[j-1]
		}
	}
	if len(names) <= 16 {
		return strings.Join(names, ", ")
	}
	return strings.Join(names[:16], ", ") + fmt.Sprintf(", +%d more", len(names)-16)
}

func (p *parser) lowerTool(e ir.Expr, saveAs string) (ir.Step, *camelerr.Diagnostic) {
	name := strings.ToLower(strings.TrimSpace(e.FuncName))
	if _, ok := p.allowed[name]; !ok {
		return ir.Step{}, p.errAtLoc(e.Loc, "unknown tool %q; allowed tools: %s", e.FuncName, p.allowedToolNames())
	}
	args := make(map[string]ir.Expr, len(e.Keyword))
	order := make([]string, 0, len(e.Keyword))
	for _, k := range e.KeywordOrder {
		args[k] = e.Keyword[k]
		order = append(order, k)
	}
	return ir.Step{
		Kind: ir.StepTool, Loc: e.Loc, ToolName: e.FuncName,
		Args: args, ArgOrder: order, SaveAs: saveAs,
	}, nil
}

func (p *parser) lowerQllm(e ir.Expr, saveAs string) (ir.Step, *camelerr.Diagnostic) {
	if len(e.Positional) != 3 {
		return ir.Step{}, p.errAtLoc(e.Loc, "query_ai_assistant takes exactly 3 arguments (instruction, input, schema)")
	}
	if e.Positional[0].Kind != ir.ExprLiteral || e.Positional[0].LitKind != ir.LitString {
		return ir.Step{}, p.errAtLoc(e.Loc, "query_ai_assistant's instruction must be a string literal")
	}
	schema, err := exprToSchema(e.Positional[2])
	if err != nil {
		return ir.Step{}, p.errAtLoc(e.Loc, "invalid schema: %v", err)
	}
	return ir.Step{
		Kind: ir.StepQllm, Loc: e.Loc, SaveAs: saveAs,
		Instruction: e.Positional[0].LitStr,
		Input:       e.Positional[1],
		Schema:      schema,
	}, nil
}

func (p *parser) lowerFinal(e ir.Expr) (ir.Step, *camelerr.Diagnostic) {
	if len(e.Positional) != 1 {
		return ir.Step{}, p.errAtLoc(e.Loc, "final() takes exactly one argument")
	}
	text, err := exprToTemplate(e.Positional[0])
	if err != nil {
		return ir.Step{}, p.errAtLoc(e.Loc, "final() argument must be a string, dotted reference, or concatenation of these: %v", err)
	}
	return ir.Step{Kind: ir.StepFinal, Loc: e.Loc, Text: text}, nil
}

// exprToTemplate converts a restricted set of expression shapes into a
// `{{var.path}}`-interpolated template string, per spec.md §3's Final
// step and §9's templating note.
func exprToTemplate(e ir.Expr) (string, error) {
	switch e.Kind {
	case ir.ExprLiteral:
		if e.LitKind == ir.LitString {
			return e.LitStr, nil
		}
		return "", fmt.Errorf("non-string literal")
	case ir.ExprVar:
		return "{{" + e.Name + "}}", nil
	case ir.ExprAttr:
		path, err := dottedPath(e)
		if err != nil {
			return "", err
		}
		return "{{" + path + "}}", nil
	case ir.ExprBinary:
		if e.Op != "+" {
			return "", fmt.Errorf("only string concatenation is supported")
		}
		left, err := exprToTemplate(*e.Left)
		if err != nil {
			return "", err
		}
		right, err := exprToTemplate(*e.Right)
		if err != nil {
			return "", err
		}
		return left + right, nil
	default:
		return "", fmt.Errorf("unsupported expression shape")
	}
}

func dottedPath(e ir.Expr) (string, error) {
	switch e.Kind {
	case ir.ExprVar:
		return e.Name, nil
	case ir.ExprAttr:
		base, err := dottedPath(e.Object)
		if err != nil {
			return "", err
		}
		return base + "." + e.Attr, nil
	default:
		return "", fmt.Errorf("expected a dotted variable reference")
	}
}

// exprToSchema converts a dict-literal expression into ir.Schema. The
// planner emits schemas as literal dict expressions (matching the JSON
// shape from spec.md §3), never as runtime-computed values.
func exprToSchema(e ir.Expr) (ir.Schema, error) {
	if e.Kind != ir.ExprDictLit {
		return ir.Schema{}, fmt.Errorf("schema must be a dict literal")
	}
	schema := ir.Schema{Fields: map[string]*ir.FieldSpec{}}
	for i, k := range e.Keys {
		key, ok := literalString(k)
		if !ok {
			return ir.Schema{}, fmt.Errorf("schema keys must be string literals")
		}
		if key == "description" {
			s, _ := literalString(e.Values[i])
			schema.Description = s
			continue
		}
		if key != "fields" {
			continue
		}
		fieldsExpr := e.Values[i]
		if fieldsExpr.Kind != ir.ExprDictLit {
			return ir.Schema{}, fmt.Errorf("schema.fields must be a dict literal")
		}
		for j, fk := range fieldsExpr.Keys {
			fname, ok := literalString(fk)
			if !ok {
				return ir.Schema{}, fmt.Errorf("field names must be string literals")
			}
			spec, err := exprToFieldSpec(fieldsExpr.Values[j])
			if err != nil {
				return ir.Schema{}, fmt.Errorf("field %q: %w", fname, err)
			}
			schema.Fields[fname] = spec
			schema.FieldOrder = append(schema.FieldOrder, fname)
		}
	}
	return schema, nil
}

func exprToFieldSpec(e ir.Expr) (*ir.FieldSpec, error) {
	if e.Kind != ir.ExprDictLit {
		return nil, fmt.Errorf("field spec must be a dict literal")
	}
	spec := &ir.FieldSpec{}
	for i, k := range e.Keys {
		key, ok := literalString(k)
		if !ok {
			continue
		}
		v := e.Values[i]
		switch key {
		case "type":
			s, _ := literalString(v)
			spec.Type = ir.FieldType(s)
		case "required":
			if v.Kind == ir.ExprLiteral && v.LitKind == ir.LitBool {
				spec.Required = v.LitBool
			}
		case "description":
			s, _ := literalString(v)
			spec.Description = s
		case "items":
			items, err := exprToFieldSpec(v)
			if err != nil {
				return nil, err
			}
			spec.Items = items
		case "properties":
			if v.Kind != ir.ExprDictLit {
				return nil, fmt.Errorf("properties must be a dict literal")
			}
			spec.Properties = map[string]*ir.FieldSpec{}
			for j, pk := range v.Keys {
				pname, ok := literalString(pk)
				if !ok {
					continue
				}
				ps, err := exprToFieldSpec(v.Values[j])
				if err != nil {
					return nil, err
				}
				spec.Properties[pname] = ps
				spec.PropertyOrder = append(spec.PropertyOrder, pname)
			}
		}
	}
	return spec, nil
}

func literalString(e ir.Expr) (string, bool) {
	if e.Kind == ir.ExprLiteral && e.LitKind == ir.LitString {
		return e.LitStr, true
	}
	return "", false
}

// --- number helpers shared with expr.go ---

func parseIntLiteral(s string) (int64, error) { return strconv.ParseInt(s, 10, 64) }
