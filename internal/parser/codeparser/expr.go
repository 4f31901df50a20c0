package codeparser

import (
	"strconv"

	"github.com/openclaw/camel/internal/camelerr"
	"github.com/openclaw/camel/internal/ir"
)

// parseExpr parses a full expression, including the lowest-precedence
// ternary `X if C else Y` form.
func (p *parser) parseExpr() (ir.Expr, *camelerr.Diagnostic) {
	return p.parseTernary()
}

func (p *parser) parseTernary() (ir.Expr, *camelerr.Diagnostic) {
	thenExpr, err := p.parseOr()
	if err != nil {
		return ir.Expr{}, err
	}
	if !p.atKeyword("if") {
		return thenExpr, nil
	}
	t := p.advance()
	cond, err := p.parseOr()
	if err != nil {
		return ir.Expr{}, err
	}
	if !p.atKeyword("else") {
		return ir.Expr{}, p.errAt(p.cur(), "expected 'else' in conditional expression")
	}
	p.advance()
	elseExpr, err := p.parseTernary()
	if err != nil {
		return ir.Expr{}, err
	}
	return ir.Expr{
		Kind: ir.ExprCondThenElse, Loc: loc(t),
		CompElement: cond, CompValue: &thenExpr, CompKey: &elseExpr,
	}, nil
}

func (p *parser) parseOr() (ir.Expr, *camelerr.Diagnostic) {
	left, err := p.parseAnd()
	if err != nil {
		return ir.Expr{}, err
	}
	for p.atKeyword("or") {
		t := p.advance()
		right, err := p.parseAnd()
		if err != nil {
			return ir.Expr{}, err
		}
		left = ir.Expr{Kind: ir.ExprBoolOp, Loc: loc(t), Op: "or", Left: &left, Right: &right}
	}
	return left, nil
}

func (p *parser) parseAnd() (ir.Expr, *camelerr.Diagnostic) {
	left, err := p.parseNot()
	if err != nil {
		return ir.Expr{}, err
	}
	for p.atKeyword("and") {
		t := p.advance()
		right, err := p.parseNot()
		if err != nil {
			return ir.Expr{}, err
		}
		left = ir.Expr{Kind: ir.ExprBoolOp, Loc: loc(t), Op: "and", Left: &left, Right: &right}
	}
	return left, nil
}

func (p *parser) parseNot() (ir.Expr, *camelerr.Diagnostic) {
	if p.atKeyword("not") {
		t := p.advance()
		operand, err := p.parseNot()
		if err != nil {
			return ir.Expr{}, err
		}
		return ir.Expr{Kind: ir.ExprUnary, Loc: loc(t), Op: "not", Operand: &operand}, nil
	}
	return p.parseComparison()
}

var compareOps = map[string]bool{"==": true, "!=": true, "<": true, "<=": true, ">": true, ">=": true}

func (p *parser) parseComparison() (ir.Expr, *camelerr.Diagnostic) {
	first, err := p.parseAddSub()
	if err != nil {
		return ir.Expr{}, err
	}
	var ops []string
	var rest []ir.Expr
	startLoc := first.Loc
	for {
		op, ok := p.tryCompareOp()
		if !ok {
			break
		}
		next, err := p.parseAddSub()
		if err != nil {
			return ir.Expr{}, err
		}
		ops = append(ops, op)
		rest = append(rest, next)
	}
	if len(ops) == 0 {
		return first, nil
	}
	return ir.Expr{Kind: ir.ExprCompare, Loc: startLoc, CompareFirst: &first, CompareOps: ops, CompareRest: rest}, nil
}

func (p *parser) tryCompareOp() (string, bool) {
	t := p.cur()
	if t.kind == tokOp && compareOps[t.text] {
		p.advance()
		return t.text, true
	}
	if t.kind == tokKeyword && t.text == "in" {
		p.advance()
		return "in", true
	}
	if t.kind == tokKeyword && t.text == "is" {
		p.advance()
		if p.atKeyword("not") {
			p.advance()
			return "is not", true
		}
		return "is", true
	}
	if t.kind == tokKeyword && t.text == "not" {
		save := p.pos
		p.advance()
		if p.atKeyword("in") {
			p.advance()
			return "not in", true
		}
		p.pos = save
		return "", false
	}
	return "", false
}

func (p *parser) parseAddSub() (ir.Expr, *camelerr.Diagnostic) {
	left, err := p.parseMulDiv()
	if err != nil {
		return ir.Expr{}, err
	}
	for p.atOp("+") || p.atOp("-") {
		t := p.advance()
		right, err := p.parseMulDiv()
		if err != nil {
			return ir.Expr{}, err
		}
		left = ir.Expr{Kind: ir.ExprBinary, Loc: loc(t), Op: t.text, Left: &left, Right: &right}
	}
	return left, nil
}

func (p *parser) parseMulDiv() (ir.Expr, *camelerr.Diagnostic) {
	left, err := p.parseUnary()
	if err != nil {
		return ir.Expr{}, err
	}
	for p.atOp("*") || p.atOp("/") || p.atOp("%") || p.atOp("//") {
		t := p.advance()
		right, err := p.parseUnary()
		if err != nil {
			return ir.Expr{}, err
		}
		left = ir.Expr{Kind: ir.ExprBinary, Loc: loc(t), Op: t.text, Left: &left, Right: &right}
	}
	return left, nil
}

func (p *parser) parseUnary() (ir.Expr, *camelerr.Diagnostic) {
	if p.atOp("+") || p.atOp("-") {
		t := p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return ir.Expr{}, err
		}
		return ir.Expr{Kind: ir.ExprUnary, Loc: loc(t), Op: t.text, Operand: &operand}, nil
	}
	return p.parsePostfix()
}

// parsePostfix handles attribute access, indexing/slicing, calls, and
// method calls chained onto a primary expression.
func (p *parser) parsePostfix() (ir.Expr, *camelerr.Diagnostic) {
	e, err := p.parsePrimary()
	if err != nil {
		return ir.Expr{}, err
	}
	for {
		switch {
		case p.atOp("."):
			p.advance()
			name, err := p.expectName()
			if err != nil {
				return ir.Expr{}, err
			}
			if p.atOp("(") {
				args, kwargs, kworder, err := p.parseArgList()
				if err != nil {
					return ir.Expr{}, err
				}
				recv := e
				e = ir.Expr{Kind: ir.ExprMethodCall, Loc: e.Loc, Receiver: &recv, Method: name,
					Positional: args, Keyword: kwargs, KeywordOrder: kworder}
			} else {
				obj := e
				e = ir.Expr{Kind: ir.ExprAttr, Loc: e.Loc, Object: obj, Attr: name}
			}
		case p.atOp("("):
			if e.Kind != ir.ExprVar {
				return ir.Expr{}, p.errAt(p.cur(), "only plain names may be called")
			}
			args, kwargs, kworder, err := p.parseArgList()
			if err != nil {
				return ir.Expr{}, err
			}
			e = ir.Expr{Kind: ir.ExprCall, Loc: e.Loc, FuncName: e.Name,
				Positional: args, Keyword: kwargs, KeywordOrder: kworder}
		case p.atOp("["):
			ne, err := p.parseSubscript(e)
			if err != nil {
				return ir.Expr{}, err
			}
			e = ne
		default:
			return e, nil
		}
	}
}

func (p *parser) parseArgList() ([]ir.Expr, map[string]ir.Expr, []string, *camelerr.Diagnostic) {
	if _, err := p.expectOp("("); err != nil {
		return nil, nil, nil, err
	}
	var pos []ir.Expr
	kw := map[string]ir.Expr{}
	var kworder []string
	for !p.atOp(")") {
		if p.cur().kind == tokName && p.peekIsKwEq() {
			name, _ := p.expectName()
			p.advance() // '='
			val, err := p.parseExpr()
			if err != nil {
				return nil, nil, nil, err
			}
			kw[name] = val
			kworder = append(kworder, name)
		} else {
			val, err := p.parseExpr()
			if err != nil {
				return nil, nil, nil, err
			}
			pos = append(pos, val)
		}
		if p.atOp(",") {
			p.advance()
			continue
		}
		break
	}
	if _, err := p.expectOp(")"); err != nil {
		return nil, nil, nil, err
	}
	return pos, kw, kworder, nil
}

// peekIsKwEq reports whether the upcoming tokens are `name '='`
// (keyword-argument form) as opposed to `name` starting a larger
// expression (e.g. `name == x` or `name.attr`).
func (p *parser) peekIsKwEq() bool {
	if p.pos+1 >= len(p.toks) {
		return false
	}
	next := p.toks[p.pos+1]
	return next.kind == tokOp && next.text == "="
}

func (p *parser) parseSubscript(receiver ir.Expr) (ir.Expr, *camelerr.Diagnostic) {
	t, err := p.expectOp("[")
	if err != nil {
		return ir.Expr{}, err
	}
	// Try slice form: [lo?:hi?:step?]
	var lo, hi, step *ir.Expr
	hasColon := false
	if !p.atOp(":") && !p.atOp("]") {
		e, err := p.parseExpr()
		if err != nil {
			return ir.Expr{}, err
		}
		if p.atOp(":") {
			lo = &e
		} else {
			if _, err := p.expectOp("]"); err != nil {
				return ir.Expr{}, err
			}
			return ir.Expr{Kind: ir.ExprIndex, Loc: loc(t), Object: receiver, Index: e}, nil
		}
	}
	if p.atOp(":") {
		hasColon = true
		p.advance()
		if !p.atOp(":") && !p.atOp("]") {
			e, err := p.parseExpr()
			if err != nil {
				return ir.Expr{}, err
			}
			hi = &e
		}
		if p.atOp(":") {
			p.advance()
			if !p.atOp("]") {
				e, err := p.parseExpr()
				if err != nil {
					return ir.Expr{}, err
				}
				step = &e
			}
		}
	}
	if _, err := p.expectOp("]"); err != nil {
		return ir.Expr{}, err
	}
	if !hasColon {
		return ir.Expr{}, p.errAt(t, "malformed subscript")
	}
	return ir.Expr{Kind: ir.ExprSlice, Loc: loc(t), Object: receiver, Lo: lo, Hi: hi, Step: step}, nil
}

func (p *parser) parsePrimary() (ir.Expr, *camelerr.Diagnostic) {
	t := p.cur()
	switch {
	case t.kind == tokNumber:
		p.advance()
		if t.isFlt {
			f, _ := strconv.ParseFloat(t.text, 64)
			return ir.Expr{Kind: ir.ExprLiteral, Loc: loc(t), LitKind: ir.LitFloat, LitFlt: f}, nil
		}
		iv, err := parseIntLiteral(t.text)
		if err != nil {
			return ir.Expr{}, p.errAt(t, "invalid integer literal %q", t.text)
		}
		return ir.Expr{Kind: ir.ExprLiteral, Loc: loc(t), LitKind: ir.LitInt, LitInt: iv}, nil
	case t.kind == tokString:
		p.advance()
		return ir.Expr{Kind: ir.ExprLiteral, Loc: loc(t), LitKind: ir.LitString, LitStr: t.text}, nil
	case t.kind == tokKeyword && t.text == "True":
		p.advance()
		return ir.Expr{Kind: ir.ExprLiteral, Loc: loc(t), LitKind: ir.LitBool, LitBool: true}, nil
	case t.kind == tokKeyword && t.text == "False":
		p.advance()
		return ir.Expr{Kind: ir.ExprLiteral, Loc: loc(t), LitKind: ir.LitBool, LitBool: false}, nil
	case t.kind == tokKeyword && t.text == "None":
		p.advance()
		return ir.Expr{Kind: ir.ExprLiteral, Loc: loc(t), LitKind: ir.LitNull}, nil
	case t.kind == tokName:
		p.advance()
		return ir.Expr{Kind: ir.ExprVar, Loc: loc(t), Name: t.text}, nil
	case p.atOp("("):
		return p.parseParenOrTuple()
	case p.atOp("["):
		return p.parseListOrComp()
	case p.atOp("{"):
		return p.parseDictOrSetOrComp()
	default:
		return ir.Expr{}, p.errAt(t, "unexpected token %q", t.text)
	}
}

func (p *parser) parseParenOrTuple() (ir.Expr, *camelerr.Diagnostic) {
	t, err := p.expectOp("(")
	if err != nil {
		return ir.Expr{}, err
	}
	if p.atOp(")") {
		p.advance()
		return ir.Expr{Kind: ir.ExprTupleLit, Loc: loc(t)}, nil
	}
	first, err := p.parseExpr()
	if err != nil {
		return ir.Expr{}, err
	}
	if p.atOp(",") {
		elems := []ir.Expr{first}
		for p.atOp(",") {
			p.advance()
			if p.atOp(")") {
				break
			}
			e, err := p.parseExpr()
			if err != nil {
				return ir.Expr{}, err
			}
			elems = append(elems, e)
		}
		if _, err := p.expectOp(")"); err != nil {
			return ir.Expr{}, err
		}
		return ir.Expr{Kind: ir.ExprTupleLit, Loc: loc(t), Elements: elems}, nil
	}
	if _, err := p.expectOp(")"); err != nil {
		return ir.Expr{}, err
	}
	return first, nil
}

func (p *parser) parseListOrComp() (ir.Expr, *camelerr.Diagnostic) {
	t, err := p.expectOp("[")
	if err != nil {
		return ir.Expr{}, err
	}
	if p.atOp("]") {
		p.advance()
		return ir.Expr{Kind: ir.ExprListLit, Loc: loc(t)}, nil
	}
	first, err := p.parseExpr()
	if err != nil {
		return ir.Expr{}, err
	}
	if p.atKeyword("for") {
		clauses, err := p.parseCompClauses()
		if err != nil {
			return ir.Expr{}, err
		}
		if _, err := p.expectOp("]"); err != nil {
			return ir.Expr{}, err
		}
		return ir.Expr{Kind: ir.ExprListComp, Loc: loc(t), CompElement: first, Clauses: clauses}, nil
	}
	elems := []ir.Expr{first}
	for p.atOp(",") {
		p.advance()
		if p.atOp("]") {
			break
		}
		e, err := p.parseExpr()
		if err != nil {
			return ir.Expr{}, err
		}
		elems = append(elems, e)
	}
	if _, err := p.expectOp("]"); err != nil {
		return ir.Expr{}, err
	}
	return ir.Expr{Kind: ir.ExprListLit, Loc: loc(t), Elements: elems}, nil
}

func (p *parser) parseDictOrSetOrComp() (ir.Expr, *camelerr.Diagnostic) {
	t, err := p.expectOp("{")
	if err != nil {
		return ir.Expr{}, err
	}
	if p.atOp("}") {
		p.advance()
		return ir.Expr{Kind: ir.ExprDictLit, Loc: loc(t)}, nil
	}
	firstKey, err := p.parseExpr()
	if err != nil {
		return ir.Expr{}, err
	}
	if p.atOp(":") {
		p.advance()
		firstVal, err := p.parseExpr()
		if err != nil {
			return ir.Expr{}, err
		}
		if p.atKeyword("for") {
			clauses, err := p.parseCompClauses()
			if err != nil {
				return ir.Expr{}, err
			}
			if _, err := p.expectOp("}"); err != nil {
				return ir.Expr{}, err
			}
			return ir.Expr{Kind: ir.ExprDictComp, Loc: loc(t), CompKey: &firstKey, CompValue: &firstVal, Clauses: clauses}, nil
		}
		keys := []ir.Expr{firstKey}
		vals := []ir.Expr{firstVal}
		for p.atOp(",") {
			p.advance()
			if p.atOp("}") {
				break
			}
			k, err := p.parseExpr()
			if err != nil {
				return ir.Expr{}, err
			}
			if _, err := p.expectOp(":"); err != nil {
				return ir.Expr{}, err
			}
			v, err := p.parseExpr()
			if err != nil {
				return ir.Expr{}, err
			}
			keys = append(keys, k)
			vals = append(vals, v)
		}
		if _, err := p.expectOp("}"); err != nil {
			return ir.Expr{}, err
		}
		return ir.Expr{Kind: ir.ExprDictLit, Loc: loc(t), Keys: keys, Values: vals}, nil
	}
	// set literal / set comprehension
	if p.atKeyword("for") {
		clauses, err := p.parseCompClauses()
		if err != nil {
			return ir.Expr{}, err
		}
		if _, err := p.expectOp("}"); err != nil {
			return ir.Expr{}, err
		}
		return ir.Expr{Kind: ir.ExprSetComp, Loc: loc(t), CompElement: firstKey, Clauses: clauses}, nil
	}
	elems := []ir.Expr{firstKey}
	for p.atOp(",") {
		p.advance()
		if p.atOp("}") {
			break
		}
		e, err := p.parseExpr()
		if err != nil {
			return ir.Expr{}, err
		}
		elems = append(elems, e)
	}
	if _, err := p.expectOp("}"); err != nil {
		return ir.Expr{}, err
	}
	return ir.Expr{Kind: ir.ExprSetLit, Loc: loc(t), Elements: elems}, nil
}

func (p *parser) parseCompClauses() ([]ir.CompClause, *camelerr.Diagnostic) {
	var clauses []ir.CompClause
	for p.atKeyword("for") {
		p.advance()
		var targets []string
		n, err := p.expectName()
		if err != nil {
			return nil, err
		}
		targets = append(targets, n)
		for p.atOp(",") {
			p.advance()
			n2, err := p.expectName()
			if err != nil {
				return nil, err
			}
			targets = append(targets, n2)
		}
		if !p.atKeyword("in") {
			return nil, p.errAt(p.cur(), "expected 'in' in comprehension clause")
		}
		p.advance()
		iterable, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		clause := ir.CompClause{Targets: targets, Iterable: iterable}
		for p.atKeyword("if") {
			p.advance()
			guard, err := p.parseOr()
			if err != nil {
				return nil, err
			}
			clause.Guards = append(clause.Guards, guard)
		}
		clauses = append(clauses, clause)
	}
	if len(clauses) == 0 {
		return nil, p.errAt(p.cur(), "expected at least one 'for' clause in comprehension")
	}
	return clauses, nil
}
