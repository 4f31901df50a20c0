package tool

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadAnnotationsAppliesToRegisteredTools(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tools.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
tools:
  search:
    sideEffectFree: true
  send_email:
    clientOwned: true
`), 0o644))

	af, err := LoadAnnotations(path)
	require.NoError(t, err)

	reg := NewRegistry()
	reg.Register(Descriptor{Name: "search", Execute: func(context.Context, string, map[string]any) (Result, error) {
		return Result{}, nil
	}})
	reg.Register(Descriptor{Name: "send_email"})

	reg.ApplyAnnotations(af)

	search, ok := reg.Get("search")
	require.True(t, ok)
	require.True(t, search.SideEffectFree)

	send, ok := reg.Get("send_email")
	require.True(t, ok)
	require.True(t, send.ClientOwned)
}

func TestApplyAnnotationsIgnoresUnknownNames(t *testing.T) {
	reg := NewRegistry()
	reg.ApplyAnnotations(AnnotationFile{Tools: map[string]Annotation{"never_registered": {SideEffectFree: true}}})
	_, ok := reg.Get("never_registered")
	require.False(t, ok)
}

func TestLoadAnnotationsMissingFile(t *testing.T) {
	_, err := LoadAnnotations(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
