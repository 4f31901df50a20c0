package camelpolicy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclaw/camel/internal/value"
)

func TestNormalModeAlwaysAllows(t *testing.T) {
	e := New(Normal)
	allow, reason := e.Allow("send_email", value.Untrust(value.ToolSource("search")), value.Trust())
	assert.True(t, allow)
	assert.Empty(t, reason)
	assert.False(t, e.Tainted())
}

func TestStrictModeDeniesUntrustedArg(t *testing.T) {
	e := New(Strict)
	allow, reason := e.Allow("send_email", value.Untrust(value.ToolSource("search")), value.Trust())
	assert.False(t, allow)
	assert.Contains(t, reason, "send_email")
	assert.Contains(t, reason, "tool:search")
	assert.Contains(t, reason, "state-changing tool in strict mode with untrusted inputs")
}

func TestNoteExtractionTaintsRegardlessOfSubsequentCalls(t *testing.T) {
	e := New(Strict)
	assert.False(t, e.Tainted())
	e.NoteExtraction()
	assert.True(t, e.Tainted())

	allow, reason := e.Allow("send_email", value.Trust(value.SourceUser), value.Trust())
	assert.False(t, allow)
	assert.Contains(t, reason, "quarantined extraction")
}

func TestStrictModeAllowsFullyTrustedArgs(t *testing.T) {
	e := New(Strict)
	allow, _ := e.Allow("send_email", value.Trust(value.SourceUser), value.Trust())
	assert.True(t, allow)
	assert.False(t, e.Tainted())
}

func TestStrictModeDeniesUntrustedControlFlow(t *testing.T) {
	e := New(Strict)
	allow, reason := e.Allow("delete_file", value.Trust(value.SourceUser), value.Untrust(value.ControlSource("if")))
	assert.False(t, allow)
	assert.Contains(t, reason, "untrusted dependency")
}

func TestParseMode(t *testing.T) {
	require.Equal(t, Strict, ParseMode("strict"))
	require.Equal(t, Strict, ParseMode("STRICT"))
	require.Equal(t, Normal, ParseMode("normal"))
	require.Equal(t, Normal, ParseMode(""))
	require.Equal(t, Normal, ParseMode("bogus"))
}

func TestModeString(t *testing.T) {
	assert.Equal(t, "normal", Normal.String())
	assert.Equal(t, "strict", Strict.String())
}
