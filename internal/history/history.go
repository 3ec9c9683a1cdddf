// Package history persists a record of past builds in a SQLite database
// under the build directory.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// BuildRecord summarizes one build invocation.
type BuildRecord struct {
	ID       string
	Mode     string
	Status   string // "succeeded" or "failed"
	Started  time.Time
	Duration time.Duration
	Compiled int
	Reused   int
	Failed   int
	Detail   string // short failure summary, empty on success
}

// Store implements the build history using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// Open creates a new SQLite-backed history store. Use ":memory:" for an
// in-memory database, or a file path for persistent storage.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	store := &Store{db: db}
	if err := store.initialize(); err != nil {
		_ = db.Close() // Best effort cleanup on initialization error
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS builds (
		id TEXT PRIMARY KEY,
		mode TEXT NOT NULL,
		status TEXT NOT NULL,
		started INTEGER NOT NULL,
		duration_ms INTEGER NOT NULL,
		compiled INTEGER NOT NULL,
		reused INTEGER NOT NULL,
		failed INTEGER NOT NULL,
		detail TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_builds_started ON builds(started);
	`
	_, err := s.db.Exec(schema)
	return err
}

// NewID returns a fresh build identifier.
func NewID() string {
	return uuid.NewString()
}

// Append adds a build record to the store.
func (s *Store) Append(ctx context.Context, rec BuildRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.ID == "" {
		rec.ID = NewID()
	}

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO builds (id, mode, status, started, duration_ms, compiled, reused, failed, detail) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)",
		rec.ID, rec.Mode, rec.Status, rec.Started.Unix(), rec.Duration.Milliseconds(),
		rec.Compiled, rec.Reused, rec.Failed, rec.Detail,
	)
	if err != nil {
		return fmt.Errorf("insert build: %w", err)
	}
	return nil
}

// Recent returns up to limit builds, most recent first.
func (s *Store) Recent(ctx context.Context, limit int) ([]BuildRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, mode, status, started, duration_ms, compiled, reused, failed, detail FROM builds ORDER BY started DESC, id LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query builds: %w", err)
	}
	defer rows.Close()

	var records []BuildRecord
	for rows.Next() {
		var rec BuildRecord
		var started, durationMS int64
		if err := rows.Scan(&rec.ID, &rec.Mode, &rec.Status, &started, &durationMS,
			&rec.Compiled, &rec.Reused, &rec.Failed, &rec.Detail); err != nil {
			return nil, fmt.Errorf("scan build: %w", err)
		}
		rec.Started = time.Unix(started, 0)
		rec.Duration = time.Duration(durationMS) * time.Millisecond
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return records, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
