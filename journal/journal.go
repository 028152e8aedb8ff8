// Package journal keeps a diagnostic record of every command a document
// agent handled, with its outcome, in SQLite.
//
// Recording never blocks the caller: entries go through a buffered queue
// drained by one writer goroutine, and are dropped with a warning when the
// queue is full. The journal is write-mostly diagnostics; nothing reads it
// back to restore document state.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/hazyhaar/booster/agent"
	"github.com/hazyhaar/booster/idgen"
)

const schema = `
CREATE TABLE IF NOT EXISTS command_journal (
    id          TEXT PRIMARY KEY,
    document_id TEXT NOT NULL,
    url         TEXT NOT NULL DEFAULT '',
    name        TEXT NOT NULL,
    payload     TEXT NOT NULL DEFAULT '',
    outcome     TEXT NOT NULL,
    created_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_command_journal_doc ON command_journal(document_id, created_at DESC);
`

const queueSize = 1024

// Entry is one journal row.
type Entry struct {
	ID         string `json:"id"`
	DocumentID string `json:"document_id"`
	URL        string `json:"url,omitempty"`
	Name       string `json:"name"`
	Payload    string `json:"payload,omitempty"`
	Outcome    string `json:"outcome"`
	CreatedAt  int64  `json:"created_at"` // unix milliseconds
}

type op struct {
	entry *Entry
	flush chan struct{}
}

// Journal is an open command journal.
type Journal struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time

	mu     sync.RWMutex
	closed bool
	queue  chan op
	done   chan struct{}
}

// Open opens (creating if needed) the journal database at path.
func Open(path string, logger *slog.Logger) (*Journal, error) {
	db, err := openDB(path)
	if err != nil {
		return nil, err
	}
	j, err := New(db, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	return j, nil
}

// New applies the schema to db and starts the writer.
func New(db *sql.DB, logger *slog.Logger) (*Journal, error) {
	if logger == nil {
		logger = slog.Default()
	}
	for _, stmt := range strings.Split(schema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := db.Exec(stmt); err != nil {
			return nil, fmt.Errorf("journal: schema: %w", err)
		}
	}
	j := &Journal{
		db:     db,
		logger: logger,
		now:    time.Now,
		queue:  make(chan op, queueSize),
		done:   make(chan struct{}),
	}
	go j.writer()
	return j, nil
}

// Record queues e. ID and CreatedAt are filled in when empty.
func (j *Journal) Record(e Entry) {
	if e.ID == "" {
		e.ID = idgen.Command()
	}
	if e.CreatedAt == 0 {
		e.CreatedAt = j.now().UnixMilli()
	}

	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		return
	}
	select {
	case j.queue <- op{entry: &e}:
	default:
		j.logger.Warn("journal: queue full, entry dropped", "document", e.DocumentID, "name", e.Name)
	}
}

// Recorder adapts the journal to agent.Recorder.
func (j *Journal) Recorder() agent.Recorder {
	return agent.RecorderFunc(func(r agent.Record) {
		j.Record(Entry{
			DocumentID: r.DocumentID,
			URL:        r.URL,
			Name:       string(r.Name),
			Payload:    string(r.Payload),
			Outcome:    string(r.Outcome),
		})
	})
}

// Flush waits until every entry queued before the call is written.
func (j *Journal) Flush(ctx context.Context) error {
	ch := make(chan struct{})
	j.mu.RLock()
	if j.closed {
		j.mu.RUnlock()
		return fmt.Errorf("journal: closed")
	}
	select {
	case j.queue <- op{flush: ch}:
	case <-ctx.Done():
		j.mu.RUnlock()
		return ctx.Err()
	}
	j.mu.RUnlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// List returns up to limit entries for a document, newest first. An empty
// documentID lists every document.
func (j *Journal) List(ctx context.Context, documentID string, limit int) ([]Entry, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	query := `SELECT id, document_id, url, name, payload, outcome, created_at
		FROM command_journal`
	var args []any
	if documentID != "" {
		query += ` WHERE document_id = ?`
		args = append(args, documentID)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("journal: list: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.DocumentID, &e.URL, &e.Name, &e.Payload, &e.Outcome, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("journal: scan: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close drains queued entries and closes the database.
func (j *Journal) Close() error {
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		return nil
	}
	j.closed = true
	close(j.queue)
	j.mu.Unlock()

	<-j.done
	return j.db.Close()
}

func (j *Journal) writer() {
	defer close(j.done)
	for o := range j.queue {
		if o.flush != nil {
			close(o.flush)
			continue
		}
		e := o.entry
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := execRetry(ctx, j.db,
			`INSERT INTO command_journal (id, document_id, url, name, payload, outcome, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			e.ID, e.DocumentID, e.URL, e.Name, e.Payload, e.Outcome, e.CreatedAt)
		cancel()
		if err != nil {
			j.logger.Warn("journal: write failed", "id", e.ID, "error", err)
		}
	}
}
