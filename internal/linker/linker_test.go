package linker

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cberrors "git.home.luguber.info/inful/cbuild/internal/errors"
)

// fakeLinker mimics `cc -o`: it concatenates its object inputs into the
// -o target, or fails when FAIL_LINK is set.
func fakeLinker(t *testing.T) string {
	t.Helper()
	script := `#!/bin/sh
if [ -n "$FAIL_LINK" ]; then
  echo "fake linker: undefined reference to main" >&2
  exit 1
fi
out=""
prev=""
for a in "$@"; do
  if [ "$prev" = "-o" ]; then out="$a"; fi
  prev="$a"
done
: > "$out"
for a in "$@"; do
  case "$a" in *.o) cat "$a" >> "$out";; esac
done
`
	cc := filepath.Join(t.TempDir(), "fakeld")
	require.NoError(t, os.WriteFile(cc, []byte(script), 0o755))
	return cc
}

func objects(t *testing.T, contents ...string) []string {
	t.Helper()
	dir := t.TempDir()
	var out []string
	for i, c := range contents {
		path := filepath.Join(dir, "obj"+string(rune('a'+i))+".o")
		require.NoError(t, os.WriteFile(path, []byte(c), 0o644))
		out = append(out, path)
	}
	return out
}

func TestLinkProducesExecutable(t *testing.T) {
	d := NewDriver(fakeLinker(t), nil)
	target := filepath.Join(t.TempDir(), "bin", "demo")

	err := d.Link(context.Background(), objects(t, "one", "two"), target)
	require.NoError(t, err)

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "onetwo", string(data))
}

func TestLinkNoObjects(t *testing.T) {
	d := NewDriver(fakeLinker(t), nil)
	err := d.Link(context.Background(), nil, filepath.Join(t.TempDir(), "demo"))
	require.Error(t, err)
	assert.True(t, cberrors.IsCategory(err, cberrors.CategoryLink))
}

func TestLinkFailureCapturesDiagnostics(t *testing.T) {
	t.Setenv("FAIL_LINK", "1")
	d := NewDriver(fakeLinker(t), nil)

	err := d.Link(context.Background(), objects(t, "one"), filepath.Join(t.TempDir(), "demo"))
	require.Error(t, err)
	assert.True(t, cberrors.IsCategory(err, cberrors.CategoryLink))
	// The captured linker output must survive into the rendered error;
	// this is the only channel it reaches the user through.
	assert.Contains(t, err.Error(), "undefined reference")
}

func TestLinkFailurePreservesPreviousExecutable(t *testing.T) {
	d := NewDriver(fakeLinker(t), nil)
	target := filepath.Join(t.TempDir(), "demo")
	require.NoError(t, os.WriteFile(target, []byte("previous build"), 0o755))

	t.Setenv("FAIL_LINK", "1")
	err := d.Link(context.Background(), objects(t, "one"), target)
	require.Error(t, err)

	data, readErr := os.ReadFile(target)
	require.NoError(t, readErr)
	assert.Equal(t, "previous build", string(data))

	// No temporary leftovers next to the target.
	entries, readErr := os.ReadDir(filepath.Dir(target))
	require.NoError(t, readErr)
	assert.Len(t, entries, 1)
}
