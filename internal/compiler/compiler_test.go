package compiler

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/cbuild/internal/artifact"
	"git.home.luguber.info/inful/cbuild/internal/discovery"
	cberrors "git.home.luguber.info/inful/cbuild/internal/errors"
	"git.home.luguber.info/inful/cbuild/internal/staleness"
)

// fakeCompiler writes a shell script that mimics `cc -c`: it logs its
// argument list, fails on sources containing the marker BOOM, and touches
// the -o target otherwise.
func fakeCompiler(t *testing.T) (cc, logPath string) {
	t.Helper()
	dir := t.TempDir()
	logPath = filepath.Join(dir, "cc.log")
	script := `#!/bin/sh
echo "$@" >> "` + logPath + `"
out=""
src=""
prev=""
for a in "$@"; do
  if [ "$prev" = "-o" ]; then out="$a"; fi
  case "$a" in *.c) src="$a";; esac
  prev="$a"
done
if [ -n "$src" ] && grep -q BOOM "$src" 2>/dev/null; then
  echo "fake diagnostic: unexpected BOOM in $src" >&2
  exit 1
fi
: > "$out"
`
	cc = filepath.Join(dir, "fakecc")
	require.NoError(t, os.WriteFile(cc, []byte(script), 0o755))
	return cc, logPath
}

// slowCompiler sleeps long enough that cancellation lands mid-compile.
func slowCompiler(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	script := "#!/bin/sh\nsleep 10\n"
	cc := filepath.Join(dir, "slowcc")
	require.NoError(t, os.WriteFile(cc, []byte(script), 0o755))
	return cc
}

func stale(t *testing.T, store *artifact.Store, srcDir string, names ...string) []staleness.Decision {
	t.Helper()
	var out []staleness.Decision
	for _, name := range names {
		path := filepath.Join(srcDir, name)
		out = append(out, staleness.Decision{
			Unit:   discovery.SourceUnit{Path: path, Rel: name, ModTime: time.Now()},
			Object: store.ObjectPath(name),
			Stale:  true,
			Reason: staleness.ReasonNoRecord,
		})
	}
	return out
}

func writeSources(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
}

func TestCompileAllSuccessUpdatesStore(t *testing.T) {
	cc, _ := fakeCompiler(t)
	srcDir := t.TempDir()
	writeSources(t, srcDir, map[string]string{"a.c": "int a;\n", "b.c": "int b;\n"})

	store := artifact.Open(filepath.Join(t.TempDir(), "build"))
	require.NoError(t, store.EnsureLayout())

	d := NewDriver(store, cc, "debug", []string{"-g"}, nil, 2)
	results, err := d.CompileAll(context.Background(), stale(t, store, srcDir, "a.c", "b.c"))
	require.NoError(t, err)
	require.Len(t, results, 2)

	for _, res := range results {
		assert.Equal(t, StatusCompiled, res.Status)
		assert.FileExists(t, res.Object)
	}

	rec, ok := store.RecordFor("a.c")
	require.True(t, ok)
	assert.Equal(t, "debug", rec.Mode)
}

func TestCompileFailureDoesNotCancelSiblings(t *testing.T) {
	cc, _ := fakeCompiler(t)
	srcDir := t.TempDir()
	writeSources(t, srcDir, map[string]string{
		"bad.c":  "int x; /* BOOM */\n",
		"good.c": "int y;\n",
	})

	store := artifact.Open(filepath.Join(t.TempDir(), "build"))
	require.NoError(t, store.EnsureLayout())

	d := NewDriver(store, cc, "debug", nil, nil, 2)
	results, err := d.CompileAll(context.Background(), stale(t, store, srcDir, "bad.c", "good.c"))
	require.NoError(t, err)
	require.Len(t, results, 2)

	byRel := map[string]UnitResult{}
	for _, res := range results {
		byRel[res.Rel] = res
	}

	assert.Equal(t, StatusFailed, byRel["bad.c"].Status)
	assert.Contains(t, byRel["bad.c"].Output, "fake diagnostic")
	assert.True(t, cberrors.IsCategory(byRel["bad.c"].Err, cberrors.CategoryCompile))

	assert.Equal(t, StatusCompiled, byRel["good.c"].Status)
	assert.FileExists(t, byRel["good.c"].Object)

	// The failed unit must not be promoted; the sibling must be.
	_, ok := store.RecordFor("bad.c")
	assert.False(t, ok)
	_, ok = store.RecordFor("good.c")
	assert.True(t, ok)
}

func TestFailedCompileLeavesNoPartialObject(t *testing.T) {
	cc, _ := fakeCompiler(t)
	srcDir := t.TempDir()
	writeSources(t, srcDir, map[string]string{"bad.c": "/* BOOM */\n"})

	store := artifact.Open(filepath.Join(t.TempDir(), "build"))
	require.NoError(t, store.EnsureLayout())

	d := NewDriver(store, cc, "debug", nil, nil, 1)
	results, err := d.CompileAll(context.Background(), stale(t, store, srcDir, "bad.c"))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.NoFileExists(t, results[0].Object)
}

func TestCompilerNotFound(t *testing.T) {
	store := artifact.Open(filepath.Join(t.TempDir(), "build"))
	d := NewDriver(store, "no-such-compiler-on-path", "debug", nil, nil, 1)

	_, err := d.CompileAll(context.Background(), stale(t, store, t.TempDir(), "a.c"))
	require.Error(t, err)
	assert.True(t, cberrors.IsCategory(err, cberrors.CategoryConfig))
}

func TestCancellationStopsWorkers(t *testing.T) {
	cc := slowCompiler(t)
	srcDir := t.TempDir()
	writeSources(t, srcDir, map[string]string{"a.c": "int a;\n", "b.c": "int b;\n"})

	store := artifact.Open(filepath.Join(t.TempDir(), "build"))
	require.NoError(t, store.EnsureLayout())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	d := NewDriver(store, cc, "debug", nil, nil, 2)
	start := time.Now()
	results, err := d.CompileAll(ctx, stale(t, store, srcDir, "a.c", "b.c"))
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 5*time.Second, "cancellation should terminate compiler processes")

	for _, res := range results {
		assert.Equal(t, StatusCanceled, res.Status)
		assert.NoFileExists(t, res.Object)
	}
	assert.Equal(t, 0, store.Len(), "canceled compiles must not be promoted")
}

func TestPoolSizeDoesNotAffectOutcome(t *testing.T) {
	srcDir := t.TempDir()
	writeSources(t, srcDir, map[string]string{
		"a.c": "int a;\n",
		"b.c": "/* BOOM */\n",
		"c.c": "int c;\n",
		"d.c": "int d;\n",
	})

	outcomes := func(workers int) []string {
		cc, _ := fakeCompiler(t)
		store := artifact.Open(filepath.Join(t.TempDir(), "build"))
		require.NoError(t, store.EnsureLayout())
		d := NewDriver(store, cc, "debug", nil, nil, workers)
		results, err := d.CompileAll(context.Background(), stale(t, store, srcDir, "a.c", "b.c", "c.c", "d.c"))
		require.NoError(t, err)
		var out []string
		for _, res := range results {
			out = append(out, res.Rel+":"+res.Status)
		}
		sort.Strings(out)
		return out
	}

	assert.Equal(t, outcomes(1), outcomes(4))
}
