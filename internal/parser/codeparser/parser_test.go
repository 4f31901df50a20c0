package codeparser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclaw/camel/internal/ir"
)

func allowTools(names ...string) map[string]struct{} {
	out := make(map[string]struct{}, len(names))
	for _, n := range names {
		out[n] = struct{}{}
	}
	return out
}

func TestParseFinalStatement(t *testing.T) {
	res := Parse(`final("hello")`, allowTools())
	require.Nil(t, res.Err)
	require.NotNil(t, res.Program)
	require.Len(t, res.Program.Steps, 1)
	assert.Equal(t, ir.StepFinal, res.Program.Steps[0].Kind)
	assert.Equal(t, "hello", res.Program.Steps[0].Text)
}

func TestParseAssignThenTool(t *testing.T) {
	res := Parse("r = search(query=\"x\")\nfinal(r.content)", allowTools("search"))
	require.Nil(t, res.Err)
	require.Len(t, res.Program.Steps, 2)
	assert.Equal(t, ir.StepTool, res.Program.Steps[0].Kind)
	assert.Equal(t, "search", res.Program.Steps[0].ToolName)
	assert.Equal(t, "r", res.Program.Steps[0].SaveAs)
}

func TestParseUnknownToolNamesOffenderAndAllowList(t *testing.T) {
	res := Parse(`open(path="/tmp/x")`, allowTools("search", "send_email"))
	require.NotNil(t, res.Err)
	assert.True(t, res.Err.Trusted)
	assert.Contains(t, res.Err.Message, "open")
	assert.Contains(t, res.Err.Message, "search")
}

func TestParseDetectsJSONLookingInput(t *testing.T) {
	res := Parse(`{"steps": []}`, allowTools())
	assert.True(t, res.LooksLikeJSON)
	assert.Nil(t, res.Err)
	assert.Nil(t, res.Program)
}

func TestParseReportsLineAndColumnOnSyntaxError(t *testing.T) {
	res := Parse("items = [\nfinal(\"bad\")", allowTools())
	require.NotNil(t, res.Err)
	assert.True(t, res.Err.Trusted)
	assert.Greater(t, res.Err.Line, 0)
}

func TestParseRejectsUnsupportedKeywords(t *testing.T) {
	for _, src := range []string{
		"def f():\n    final(\"x\")",
		"while True:\n    final(\"x\")",
		"import os\nfinal(\"x\")",
	} {
		res := Parse(src, allowTools())
		require.NotNil(t, res.Err, "expected error for %q", src)
		assert.True(t, res.Err.Trusted)
	}
}

func TestParseIfElse(t *testing.T) {
	res := Parse("if 1 == 1:\n    final(\"yes\")\nelse:\n    final(\"no\")", allowTools())
	require.Nil(t, res.Err)
	require.Len(t, res.Program.Steps, 1)
	step := res.Program.Steps[0]
	assert.Equal(t, ir.StepIf, step.Kind)
	assert.Len(t, step.Then, 1)
	assert.Len(t, step.Else, 1)
}

func TestParseForLoop(t *testing.T) {
	res := Parse("for a, b in pairs:\n    final(a)", allowTools())
	require.Nil(t, res.Err)
	step := res.Program.Steps[0]
	assert.Equal(t, ir.StepFor, step.Kind)
	assert.Equal(t, []string{"a", "b"}, step.ForItems)
}

func TestParseQllmMustBeAssigned(t *testing.T) {
	res := Parse(`query_ai_assistant("extract", "text", {"fields": {}})`, allowTools())
	require.NotNil(t, res.Err)
	assert.Contains(t, res.Err.Message, "must be assigned")
}

func TestParseEmptyProgramIsAnError(t *testing.T) {
	res := Parse("", allowTools())
	require.NotNil(t, res.Err)
}

func TestParseEnforcesMaxSteps(t *testing.T) {
	var src string
	for i := 0; i < MaxSteps+1; i++ {
		src += "if 1 == 1:\n    x = 1\n"
	}
	res := Parse(src, allowTools())
	require.NotNil(t, res.Err)
	assert.Contains(t, res.Err.Message, "maximum")
}

func TestParseTernaryExpressionStatement(t *testing.T) {
	res := Parse(`final("ok") if 1 == 1 else final("bad")`, allowTools())
	require.Nil(t, res.Err)
	step := res.Program.Steps[0]
	assert.Equal(t, ir.StepIf, step.Kind)
	assert.Equal(t, "ok", step.Then[0].Text)
	assert.Equal(t, "bad", step.Else[0].Text)
}
