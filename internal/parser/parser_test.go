package parser

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

func TestParseDispatchesCodeByDefault(t *testing.T) {
	res := Parse(`final("hi")`, allowTools())
	require.Nil(t, res.Err)
	require.NotNil(t, res.Program)
	assert.Equal(t, ir.StepFinal, res.Program.Steps[0].Kind)
}

func TestParseFallsBackToStructuredForJSONLookingSource(t *testing.T) {
	res := Parse(`{"steps": [{"kind": "final", "text": "hi"}]}`, allowTools())
	require.Nil(t, res.Err)
	require.NotNil(t, res.Program)
	assert.Equal(t, ir.StepFinal, res.Program.Steps[0].Kind)
	assert.Equal(t, "hi", res.Program.Steps[0].Text)
}

func TestParseSurfacesStructuredErrorsForJSONLookingSource(t *testing.T) {
	res := Parse(`{"nope": true}`, allowTools())
	require.NotNil(t, res.Err)
	assert.Contains(t, res.Err.Message, "steps")
}

func TestLooksLikeJSONDetectsLeadingBrace(t *testing.T) {
	assert.True(t, LooksLikeJSON(`{"steps": []}`))
	assert.True(t, LooksLikeJSON("  \n  {\"steps\": []}"))
	assert.False(t, LooksLikeJSON(`final("hi")`))
}
