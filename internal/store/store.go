// Package store implements the outcome store: a durable key-value map
// from span key to removal record, backed by SQLite (the default) or an
// in-memory sink for --no-sqlite runs. The SQLite access pattern —
// sql.Open with WAL mode, an idempotent CREATE TABLE IF NOT EXISTS
// migration, prepared per-call queries — is a standard database/sql
// usage pattern.
package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/necessist/necessist/internal/model"
)

// Store persists RemovalRecords keyed by span key.
type Store interface {
	// Get returns the record for spanKey, or ok=false if none exists —
	// consulted by the scheduler's --resume skip check.
	Get(spanKey string) (model.RemovalRecord, bool, error)

	// Put writes rec, overwriting any existing record for the same span.
	Put(rec model.RemovalRecord) error

	// Reset truncates the store, used by --reset.
	Reset() error

	// All streams every record in span-key order, used by --dump.
	All() ([]model.RemovalRecord, error)

	// Close releases underlying resources.
	Close() error
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS removal (
  span     TEXT PRIMARY KEY,
  text     TEXT NOT NULL,
  outcome  TEXT NOT NULL CHECK (outcome IN
             ('nonbuildable','failed','timed-out','passed','irrelevant')),
  url      TEXT NOT NULL
);
`

// SQLiteStore is the default, durable Store backing necessist.db.
type SQLiteStore struct {
	db *sql.DB
}

// Open opens (creating if necessary) the SQLite database at path and
// applies the schema migration.
func Open(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", path, err)
	}

	if _, err := db.Exec(schemaDDL); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate %s: %w", path, err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Get(spanKey string) (model.RemovalRecord, bool, error) {
	row := s.db.QueryRow(`SELECT span, text, outcome, url FROM removal WHERE span = ?`, spanKey)

	var rec model.RemovalRecord

	err := row.Scan(&rec.SpanKey, &rec.Excerpt, &rec.Outcome, &rec.URL)
	if err == sql.ErrNoRows {
		return model.RemovalRecord{}, false, nil
	}

	if err != nil {
		return model.RemovalRecord{}, false, fmt.Errorf("get %s: %w", spanKey, err)
	}

	return rec, true, nil
}

func (s *SQLiteStore) Put(rec model.RemovalRecord) error {
	if !rec.Outcome.Valid() || rec.Outcome == model.Skipped {
		return fmt.Errorf("refusing to persist non-storable outcome %q for %s", rec.Outcome, rec.SpanKey)
	}

	_, err := s.db.Exec(
		`INSERT INTO removal (span, text, outcome, url) VALUES (?, ?, ?, ?)
		 ON CONFLICT(span) DO UPDATE SET text = excluded.text, outcome = excluded.outcome, url = excluded.url`,
		rec.SpanKey, rec.Excerpt, string(rec.Outcome), rec.URL)
	if err != nil {
		return fmt.Errorf("put %s: %w", rec.SpanKey, err)
	}

	return nil
}

func (s *SQLiteStore) Reset() error {
	if _, err := s.db.Exec(`DELETE FROM removal`); err != nil {
		return fmt.Errorf("reset: %w", err)
	}

	return nil
}

func (s *SQLiteStore) All() ([]model.RemovalRecord, error) {
	rows, err := s.db.Query(`SELECT span, text, outcome, url FROM removal ORDER BY span ASC`)
	if err != nil {
		return nil, fmt.Errorf("dump: %w", err)
	}
	defer rows.Close()

	var records []model.RemovalRecord

	for rows.Next() {
		var rec model.RemovalRecord
		if err := rows.Scan(&rec.SpanKey, &rec.Excerpt, &rec.Outcome, &rec.URL); err != nil {
			return nil, fmt.Errorf("scan removal row: %w", err)
		}

		records = append(records, rec)
	}

	return records, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
