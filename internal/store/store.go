// Package store persists processed messages and their IR nodes in SQLite
// for later audit reporting.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/obinexus/obibuf/internal/protocol"
)

const schema = `
CREATE TABLE IF NOT EXISTS messages (
    id            TEXT PRIMARY KEY,
    trace_id      TEXT NOT NULL,
    created_at    INTEGER NOT NULL,
    source        TEXT NOT NULL,
    destination   TEXT,
    decision      TEXT NOT NULL,
    reason        TEXT,
    zone          TEXT NOT NULL,
    cost          REAL NOT NULL,
    canonical_len INTEGER NOT NULL,
    unmatched     INTEGER NOT NULL,
    truncated     INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_created ON messages(created_at);
CREATE INDEX IF NOT EXISTS idx_messages_decision ON messages(decision);

CREATE TABLE IF NOT EXISTS ir_nodes (
    message_id   TEXT NOT NULL REFERENCES messages(id),
    ordinal      INTEGER NOT NULL,
    type         TEXT NOT NULL,
    content      TEXT NOT NULL,
    length       INTEGER NOT NULL,
    source_state INTEGER NOT NULL,
    cost         REAL NOT NULL,
    PRIMARY KEY (message_id, ordinal)
);
`

// Message is one persisted processing result.
type Message struct {
	ID           string
	TraceID      string
	CreatedAt    time.Time
	Source       string
	Destination  string
	Decision     string
	Reason       string
	Zone         string
	Cost         float64
	CanonicalLen int
	Unmatched    int
	Truncated    bool
}

// Store is the SQLite-backed result store.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path and applies the schema.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("store: create directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveResult persists a message and its IR nodes in one transaction.
func (s *Store) SaveResult(msg Message, nodes []protocol.IRNode) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO messages (id, trace_id, created_at, source, destination,
			decision, reason, zone, cost, canonical_len, unmatched, truncated)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.TraceID, msg.CreatedAt.UnixNano(), msg.Source, msg.Destination,
		msg.Decision, msg.Reason, msg.Zone, msg.Cost, msg.CanonicalLen,
		msg.Unmatched, boolInt(msg.Truncated),
	)
	if err != nil {
		return fmt.Errorf("store: insert message: %w", err)
	}

	for i, n := range nodes {
		_, err = tx.Exec(`
			INSERT INTO ir_nodes (message_id, ordinal, type, content, length, source_state, cost)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			msg.ID, i, string(n.Type), n.Content, n.Length, n.SourceState, n.Cost,
		)
		if err != nil {
			return fmt.Errorf("store: insert node %d: %w", i, err)
		}
	}
	return tx.Commit()
}

// Recent returns the most recent n messages, newest first.
func (s *Store) Recent(n int) ([]Message, error) {
	rows, err := s.db.Query(`
		SELECT id, trace_id, created_at, source, destination, decision,
			reason, zone, cost, canonical_len, unmatched, truncated
		FROM messages ORDER BY created_at DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("store: query recent: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		var createdNs int64
		var truncated int
		if err := rows.Scan(&m.ID, &m.TraceID, &createdNs, &m.Source, &m.Destination,
			&m.Decision, &m.Reason, &m.Zone, &m.Cost, &m.CanonicalLen,
			&m.Unmatched, &truncated); err != nil {
			return nil, fmt.Errorf("store: scan message: %w", err)
		}
		m.CreatedAt = time.Unix(0, createdNs).UTC()
		m.Truncated = truncated != 0
		out = append(out, m)
	}
	return out, rows.Err()
}

// Nodes returns the IR nodes of a message in scan order.
func (s *Store) Nodes(messageID string) ([]protocol.IRNode, error) {
	rows, err := s.db.Query(`
		SELECT type, content, length, source_state, cost
		FROM ir_nodes WHERE message_id = ? ORDER BY ordinal`, messageID)
	if err != nil {
		return nil, fmt.Errorf("store: query nodes: %w", err)
	}
	defer rows.Close()

	var out []protocol.IRNode
	for rows.Next() {
		var n protocol.IRNode
		var typ string
		if err := rows.Scan(&typ, &n.Content, &n.Length, &n.SourceState, &n.Cost); err != nil {
			return nil, fmt.Errorf("store: scan node: %w", err)
		}
		n.Type = protocol.IRNodeType(typ)
		out = append(out, n)
	}
	return out, rows.Err()
}

// Summary aggregates stored decisions for the audit report.
type Summary struct {
	Messages  int
	Allowed   int
	Denied    int
	IRNodes   int
	TotalCost float64
}

// Summarize computes aggregate counts over all stored messages.
func (s *Store) Summarize() (Summary, error) {
	var sum Summary
	err := s.db.QueryRow(`
		SELECT COUNT(*),
			COALESCE(SUM(CASE WHEN decision = 'allow' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN decision = 'deny' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(cost), 0)
		FROM messages`).Scan(&sum.Messages, &sum.Allowed, &sum.Denied, &sum.TotalCost)
	if err != nil {
		return Summary{}, fmt.Errorf("store: summarize messages: %w", err)
	}
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM ir_nodes`).Scan(&sum.IRNodes); err != nil {
		return Summary{}, fmt.Errorf("store: summarize nodes: %w", err)
	}
	return sum, nil
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
