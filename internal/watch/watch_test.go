package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSkipped(t *testing.T) {
	w := &Watcher{skipDir: "/proj/build"}

	assert.True(t, w.skipped("/proj/build"))
	assert.True(t, w.skipped(filepath.Join("/proj/build", "obj", "main.o")))
	assert.False(t, w.skipped("/proj/src/main.c"))
	assert.False(t, w.skipped("/proj/build-notes.md"))
}

func TestSkippedEmptySkipDir(t *testing.T) {
	w := &Watcher{}
	assert.False(t, w.skipped("/anything"))
}

func TestWriteTriggersRebuild(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "main.c")
	require.NoError(t, os.WriteFile(src, []byte("int main;\n"), 0o644))

	w, err := New("", root)
	require.NoError(t, err)
	w.debounceTime = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var rebuilds atomic.Int32
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx, func(context.Context) {
			rebuilds.Add(1)
			cancel()
		})
	}()

	// Give the watch set time to register before writing.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(src, []byte("int main(void){return 0;}\n"), 0o644))

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("rebuild was never triggered")
	}
	assert.Equal(t, int32(1), rebuilds.Load())
}

func TestBurstDebouncesToOneRebuild(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "main.c")
	require.NoError(t, os.WriteFile(src, []byte("a"), 0o644))

	w, err := New("", root)
	require.NoError(t, err)
	w.debounceTime = 200 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var rebuilds atomic.Int32
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx, func(context.Context) {
			rebuilds.Add(1)
		})
	}()

	time.Sleep(100 * time.Millisecond)
	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(src, []byte{byte('a' + i)}, 0o644))
		time.Sleep(20 * time.Millisecond)
	}

	// Let the debounce window close, then stop.
	time.Sleep(500 * time.Millisecond)
	cancel()
	<-done

	assert.Equal(t, int32(1), rebuilds.Load(), "a write burst collapses into one rebuild")
}

func TestChangesUnderSkipDirIgnored(t *testing.T) {
	root := t.TempDir()
	buildDir := filepath.Join(root, "build")
	require.NoError(t, os.MkdirAll(buildDir, 0o755))

	w, err := New(buildDir, root)
	require.NoError(t, err)
	w.debounceTime = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var rebuilds atomic.Int32
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx, func(context.Context) {
			rebuilds.Add(1)
		})
	}()

	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(buildDir, "main.o"), []byte("obj"), 0o644))

	time.Sleep(300 * time.Millisecond)
	cancel()
	<-done

	assert.Equal(t, int32(0), rebuilds.Load(), "writes under the build dir must not trigger rebuilds")
}
