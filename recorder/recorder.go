// Package recorder keeps an SQLite audit log of narrative hydrations: which
// producer wrote each narrative, why generation failed, and a fingerprint of
// the prompt. Inserts run off the request path.
package recorder

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/xxh3"

	"qbrreport/narrative"

	_ "modernc.org/sqlite"
)

// Entry is one recorded hydration.
type Entry struct {
	ID          string    `json:"id"`
	RecordedAt  time.Time `json:"recorded_at"`
	EntityID    string    `json:"entity_id"`
	EntityKind  string    `json:"entity_kind"`
	CurrentKey  string    `json:"current_key"`
	PreviousKey string    `json:"previous_key"`
	Source      string    `json:"source"`
	Failure     string    `json:"failure,omitempty"`
	Error       string    `json:"error,omitempty"`
	PromptHash  string    `json:"prompt_hash"`
	DurationMS  int64     `json:"duration_ms"`
}

// Recorder persists hydration outcomes into SQLite. It implements
// narrative.Observer.
type Recorder struct {
	db      *sql.DB
	pending sync.WaitGroup
	now     func() time.Time

	// mu guards closed and orders pending.Add before Close's Wait.
	mu     sync.Mutex
	closed bool
}

// NewRecorder opens (or creates) the SQLite database at path and ensures schema exists.
func NewRecorder(path string) (*Recorder, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("recorder: ensure dir: %w", err)
	}
	if _, err := preflight(path, preflightTimeout); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("recorder: open: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := initSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Recorder{db: db, now: time.Now}, nil
}

func initSchema(db *sql.DB) error {
	const schema = `
CREATE TABLE IF NOT EXISTS hydrations (
    id TEXT PRIMARY KEY,
    recorded_at INTEGER NOT NULL,
    entity_id TEXT,
    entity_kind TEXT,
    current_key TEXT,
    previous_key TEXT,
    source TEXT,
    failure TEXT,
    error TEXT,
    prompt_hash TEXT,
    duration_ms INTEGER
);
CREATE INDEX IF NOT EXISTS hydrations_recorded_at ON hydrations(recorded_at);`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("recorder: init schema: %w", err)
	}
	return nil
}

// Close stops accepting outcomes, waits for pending inserts and closes the
// underlying database. Later calls are no-ops.
func (r *Recorder) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()
	r.pending.Wait()
	return r.db.Close()
}

// Flush blocks until every queued insert has finished.
func (r *Recorder) Flush() {
	if r == nil {
		return
	}
	r.pending.Wait()
}

// Observe queues an outcome for insertion. Outcomes arriving after Close are
// dropped.
func (r *Recorder) Observe(o narrative.Outcome) {
	if r == nil || r.db == nil {
		return
	}
	e := Entry{
		ID:          uuid.NewString(),
		RecordedAt:  r.now().UTC(),
		EntityID:    o.EntityID,
		EntityKind:  string(o.EntityKind),
		CurrentKey:  o.CurrentKey,
		PreviousKey: o.PreviousKey,
		Source:      string(o.Source),
		Failure:     string(o.Failure),
		PromptHash:  PromptHash(o.Prompt),
		DurationMS:  o.Duration.Milliseconds(),
	}
	if o.Err != nil {
		e.Error = o.Err.Error()
	}
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.pending.Add(1)
	r.mu.Unlock()
	go func() {
		defer r.pending.Done()
		r.insert(e)
	}()
}

func (r *Recorder) insert(e Entry) {
	_, err := r.db.Exec(`
INSERT INTO hydrations (
    id, recorded_at, entity_id, entity_kind, current_key, previous_key,
    source, failure, error, prompt_hash, duration_ms
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID,
		e.RecordedAt.UnixMilli(),
		e.EntityID,
		e.EntityKind,
		e.CurrentKey,
		e.PreviousKey,
		e.Source,
		e.Failure,
		e.Error,
		e.PromptHash,
		e.DurationMS,
	)
	if err != nil {
		log.Printf("Recorder: failed to insert hydration: %v", err)
	}
}

// Recent returns up to limit entries, newest first.
func (r *Recorder) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if r == nil || r.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, recorded_at, entity_id, entity_kind, current_key, previous_key,
       source, failure, error, prompt_hash, duration_ms
FROM hydrations ORDER BY recorded_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("recorder: query: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var recordedAt int64
		if err := rows.Scan(&e.ID, &recordedAt, &e.EntityID, &e.EntityKind, &e.CurrentKey, &e.PreviousKey,
			&e.Source, &e.Failure, &e.Error, &e.PromptHash, &e.DurationMS); err != nil {
			return nil, fmt.Errorf("recorder: scan: %w", err)
		}
		e.RecordedAt = time.UnixMilli(recordedAt).UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

// SourceCounts returns how many hydrations each producer handled.
func (r *Recorder) SourceCounts(ctx context.Context) (map[string]int, error) {
	counts := make(map[string]int)
	if r == nil || r.db == nil {
		return counts, nil
	}
	rows, err := r.db.QueryContext(ctx, `SELECT source, COUNT(*) FROM hydrations GROUP BY source`)
	if err != nil {
		return nil, fmt.Errorf("recorder: query: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var source string
		var n int
		if err := rows.Scan(&source, &n); err != nil {
			return nil, fmt.Errorf("recorder: scan: %w", err)
		}
		counts[source] = n
	}
	return counts, rows.Err()
}

// PromptHash fingerprints a prompt so identical prompts can be grouped
// without storing the text.
func PromptHash(prompt string) string {
	return strconv.FormatUint(xxh3.HashString(prompt), 16)
}
