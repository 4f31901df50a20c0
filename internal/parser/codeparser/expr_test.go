package codeparser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclaw/camel/internal/ir"
)

func assignExpr(t *testing.T, src string) ir.Expr {
	t.Helper()
	res := Parse(src, allowTools())
	require.Nil(t, res.Err, "parse error: %v", res.Err)
	require.Len(t, res.Program.Steps, 1)
	step := res.Program.Steps[0]
	require.Equal(t, ir.StepAssign, step.Kind)
	return step.Expr
}

func TestArithmeticPrecedence(t *testing.T) {
	// 1 + 2 * 3 should lower as Binary(+, 1, Binary(*, 2, 3)), not
	// Binary(*, Binary(+, 1, 2), 3).
	e := assignExpr(t, "x = 1 + 2 * 3")
	require.Equal(t, ir.ExprBinary, e.Kind)
	assert.Equal(t, "+", e.Op)
	rhs := e.Right
	require.Equal(t, ir.ExprBinary, rhs.Kind)
	assert.Equal(t, "*", rhs.Op)
}

func TestComparisonChain(t *testing.T) {
	e := assignExpr(t, "x = 1 < 2 < 3")
	require.Equal(t, ir.ExprCompare, e.Kind)
	assert.Equal(t, []string{"<", "<"}, e.CompareOps)
	assert.Len(t, e.CompareRest, 2)
}

func TestBooleanOperators(t *testing.T) {
	e := assignExpr(t, "x = a and b or not c")
	require.Equal(t, ir.ExprBoolOp, e.Kind)
	assert.Equal(t, "or", e.Op)
}

func TestListDictLiterals(t *testing.T) {
	e := assignExpr(t, `x = [1, 2, 3]`)
	require.Equal(t, ir.ExprListLit, e.Kind)
	assert.Len(t, e.Elements, 3)

	e = assignExpr(t, `x = {"a": 1, "b": 2}`)
	require.Equal(t, ir.ExprDictLit, e.Kind)
	assert.Len(t, e.Keys, 2)
}

func TestBooleanLiterals(t *testing.T) {
	e := assignExpr(t, "x = True")
	require.Equal(t, ir.ExprLiteral, e.Kind)
	assert.Equal(t, ir.LitBool, e.LitKind)
	assert.True(t, e.LitBool)

	e = assignExpr(t, "x = False")
	assert.False(t, e.LitBool)
}

func TestIndexAndAttrAccess(t *testing.T) {
	e := assignExpr(t, "x = items[0]")
	require.Equal(t, ir.ExprIndex, e.Kind)

	e = assignExpr(t, "x = r.content")
	require.Equal(t, ir.ExprAttr, e.Kind)
	assert.Equal(t, "content", e.Attr)
}

func TestMembershipOperator(t *testing.T) {
	e := assignExpr(t, `x = "a" in items`)
	require.Equal(t, ir.ExprCompare, e.Kind)
	assert.Equal(t, []string{"in"}, e.CompareOps)
}

func TestNegativeNumberLiteral(t *testing.T) {
	e := assignExpr(t, "x = -5")
	require.Equal(t, ir.ExprUnary, e.Kind)
	assert.Equal(t, "-", e.Op)
}
