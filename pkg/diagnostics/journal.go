// Package diagnostics records replies a wrapper's server could not
// deliver. Drops are otherwise only logged; the journal gives them a
// durable, queryable home so a teardown race can be diagnosed after the
// fact.
package diagnostics

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS dropped_replies (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	recorded_at TEXT NOT NULL,
	wrapper     TEXT NOT NULL,
	txn         TEXT NOT NULL,
	method      TEXT NOT NULL,
	reason      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_dropped_replies_wrapper ON dropped_replies(wrapper);
`

// Drop is one recorded undeliverable reply.
type Drop struct {
	RecordedAt  time.Time
	Wrapper     string
	Transaction string
	Method      string
	Reason      string
}

// Journal is a SQLite-backed drop journal. It implements
// isowrap.DropJournal and is safe for concurrent use.
type Journal struct {
	mu sync.Mutex
	db *sql.DB
}

// Open creates or opens a journal at path. Use ":memory:" for an
// ephemeral journal.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	// SQLite writes are serialized anyway; a single connection avoids
	// SQLITE_BUSY under concurrent recorders.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create journal schema: %w", err)
	}
	return &Journal{db: db}, nil
}

// RecordDrop implements isowrap.DropJournal. Recording is best-effort:
// a failed insert must not disturb the server's teardown, so errors are
// swallowed.
func (j *Journal) RecordDrop(wrapper, transaction, method, reason string) {
	j.mu.Lock()
	defer j.mu.Unlock()

	_, _ = j.db.Exec(
		`INSERT INTO dropped_replies (recorded_at, wrapper, txn, method, reason) VALUES (?, ?, ?, ?, ?)`,
		time.Now().UTC().Format(time.RFC3339Nano), wrapper, transaction, method, reason,
	)
}

// Drops returns the recorded drops for a wrapper, oldest first.
func (j *Journal) Drops(wrapper string) ([]Drop, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	rows, err := j.db.Query(
		`SELECT recorded_at, wrapper, txn, method, reason FROM dropped_replies WHERE wrapper = ? ORDER BY id`,
		wrapper,
	)
	if err != nil {
		return nil, fmt.Errorf("query drops: %w", err)
	}
	defer rows.Close()

	var out []Drop
	for rows.Next() {
		var d Drop
		var ts string
		if err := rows.Scan(&ts, &d.Wrapper, &d.Transaction, &d.Method, &d.Reason); err != nil {
			return nil, fmt.Errorf("scan drop: %w", err)
		}
		d.RecordedAt, _ = time.Parse(time.RFC3339Nano, ts)
		out = append(out, d)
	}
	return out, rows.Err()
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	return j.db.Close()
}
