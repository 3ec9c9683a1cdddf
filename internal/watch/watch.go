// Package watch monitors the project source and include trees and triggers
// rebuilds when files change.
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"git.home.luguber.info/inful/cbuild/internal/logfields"
)

// Watcher debounces filesystem events over the watched trees and invokes a
// rebuild callback once per change batch.
type Watcher struct {
	roots        []string
	skipDir      string
	watcher      *fsnotify.Watcher
	rebuildChan  chan struct{}
	debounceTime time.Duration
}

// New creates a watcher over the given root directories. Events under
// skipDir (the build directory) are ignored so the tool's own writes never
// retrigger a build.
func New(skipDir string, roots ...string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	return &Watcher{
		roots:        roots,
		skipDir:      skipDir,
		watcher:      fsw,
		rebuildChan:  make(chan struct{}, 1),
		debounceTime: 500 * time.Millisecond, // Debounce rapid editor writes
	}, nil
}

// Run watches until ctx is done, calling rebuild after each debounced
// change batch. Directories created while watching are added to the watch
// set.
func (w *Watcher) Run(ctx context.Context, rebuild func(ctx context.Context)) error {
	defer w.watcher.Close()

	for _, root := range w.roots {
		if err := w.addTree(root); err != nil {
			return err
		}
	}
	slog.Info("Watching for changes", slog.Any("roots", w.roots))

	go w.watchLoop(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-w.rebuildChan:
			w.drainDebounce(ctx)
			if ctx.Err() != nil {
				return nil
			}
			rebuild(ctx)
		}
	}
}

// addTree registers a directory and all its subdirectories.
func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable subtree, skip
		}
		if !d.IsDir() || w.skipped(path) {
			return nil
		}
		if err := w.watcher.Add(path); err != nil {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
		return nil
	})
}

func (w *Watcher) skipped(path string) bool {
	return w.skipDir != "" && (path == w.skipDir || strings.HasPrefix(path, w.skipDir+string(filepath.Separator)))
}

// watchLoop converts raw fsnotify events into rebuild triggers.
func (w *Watcher) watchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if w.skipped(event.Name) {
				continue
			}
			if event.Op&fsnotify.Create == fsnotify.Create {
				// New directories need to join the watch set.
				_ = w.addTree(event.Name)
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				slog.Debug("Change detected", logfields.Path(event.Name), slog.String("op", event.Op.String()))
				w.trigger()
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("Watcher error", logfields.Error(err))
		}
	}
}

// trigger requests a rebuild without blocking the event loop.
func (w *Watcher) trigger() {
	select {
	case w.rebuildChan <- struct{}{}:
	default:
	}
}

// drainDebounce absorbs follow-up triggers within the debounce window so a
// burst of editor writes produces one rebuild.
func (w *Watcher) drainDebounce(ctx context.Context) {
	timer := time.NewTimer(w.debounceTime)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.rebuildChan:
			if !timer.Stop() {
				<-timer.C
			}
			timer.Reset(w.debounceTime)
		case <-timer.C:
			return
		}
	}
}
