// Package artifact owns the build directory layout and the persisted
// artifact index consulted by staleness analysis.
//
// Layout:
//
//	build/
//	  obj/<mirrored source path>.o
//	  bin/<project name>
//	  index.json   (source path -> object path, build time, mode)
//	  history.db   (build history, owned by internal/history)
//
// The layout and index format are a convention of this tool, not a stable
// public format; they only need to be self-consistent across runs.
package artifact

import (
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	cberrors "git.home.luguber.info/inful/cbuild/internal/errors"
)

const (
	objDirName  = "obj"
	binDirName  = "bin"
	indexName   = "index.json"
	historyName = "history.db"
)

// Record associates one source path with its compiled object and the state
// recorded when that object was last produced.
type Record struct {
	Object  string    `json:"object"`
	BuiltAt time.Time `json:"built_at"`
	Mode    string    `json:"mode"`
}

// index is the persisted form of the store.
type index struct {
	Version int               `json:"version"`
	Records map[string]Record `json:"records"`
}

// Store provides access to the build directory and the artifact index.
// Update is safe for concurrent use by compile workers; records for
// distinct paths never block each other beyond the index's own map
// mutation.
type Store struct {
	buildDir string

	mu      sync.RWMutex
	records map[string]Record
}

// Open loads the store for a build directory, reading the existing index
// if one is present. A missing or unreadable index is treated as empty:
// every unit will simply be considered stale.
func Open(buildDir string) *Store {
	s := &Store{
		buildDir: buildDir,
		records:  make(map[string]Record),
	}

	data, err := os.ReadFile(filepath.Join(buildDir, indexName))
	if err != nil {
		return s
	}
	var idx index
	if err := json.Unmarshal(data, &idx); err != nil || idx.Records == nil {
		return s
	}
	s.records = idx.Records
	return s
}

// EnsureLayout creates the object and binary directories.
func (s *Store) EnsureLayout() error {
	for _, dir := range []string{s.ObjDir(), s.BinDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return cberrors.StoreError("create layout", err)
		}
	}
	return nil
}

// BuildDir returns the build directory root.
func (s *Store) BuildDir() string { return s.buildDir }

// ObjDir returns the object directory root.
func (s *Store) ObjDir() string { return filepath.Join(s.buildDir, objDirName) }

// BinDir returns the binary directory root.
func (s *Store) BinDir() string { return filepath.Join(s.buildDir, binDirName) }

// HistoryPath returns the path of the build history database.
func (s *Store) HistoryPath() string { return filepath.Join(s.buildDir, historyName) }

// ObjectPath returns the deterministic object path for a source path
// relative to the source root, mirroring the source tree under obj/.
func (s *Store) ObjectPath(rel string) string {
	return filepath.Join(s.ObjDir(), strings.TrimSuffix(rel, filepath.Ext(rel))+".o")
}

// ExecutablePath returns the linked executable path for a project name.
func (s *Store) ExecutablePath(project string) string {
	return filepath.Join(s.BinDir(), project)
}

// RecordFor returns the record for a source path, if one exists.
func (s *Store) RecordFor(rel string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[rel]
	return rec, ok
}

// Update inserts or replaces the record for a source path. Callers promote
// a record only after its object has been fully written.
func (s *Store) Update(rel string, rec Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rel] = rec
}

// Forget drops the record for a source path.
func (s *Store) Forget(rel string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, rel)
}

// Len returns the number of records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Flush persists the index atomically (write to a temp file, then rename).
func (s *Store) Flush() error {
	s.mu.RLock()
	idx := index{Version: 1, Records: make(map[string]Record, len(s.records))}
	for k, v := range s.records {
		idx.Records[k] = v
	}
	s.mu.RUnlock()

	data, err := json.MarshalIndent(&idx, "", "  ")
	if err != nil {
		return cberrors.StoreError("marshal index", err)
	}

	if err := os.MkdirAll(s.buildDir, 0o755); err != nil {
		return cberrors.StoreError("create build dir", err)
	}
	target := filepath.Join(s.buildDir, indexName)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return cberrors.StoreError("write index", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		return cberrors.StoreError("rename index", err)
	}
	return nil
}

// ClearStats summarizes what Clear removed.
type ClearStats struct {
	Files int64
	Bytes int64
}

// Clear removes the entire build directory. A missing directory is a
// no-op success.
func (s *Store) Clear() (ClearStats, error) {
	var stats ClearStats

	if _, err := os.Stat(s.buildDir); os.IsNotExist(err) {
		return stats, nil
	}

	// Size accounting is best effort; unreadable entries are skipped.
	_ = filepath.WalkDir(s.buildDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if info, err := d.Info(); err == nil {
			stats.Files++
			stats.Bytes += info.Size()
		}
		return nil
	})

	if err := os.RemoveAll(s.buildDir); err != nil {
		return stats, cberrors.StoreError("remove build dir", err)
	}

	s.mu.Lock()
	s.records = make(map[string]Record)
	s.mu.Unlock()

	return stats, nil
}
