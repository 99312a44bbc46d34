package snapshot

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps the snapshot in a single-table SQLite database. Each Save
// replaces the table contents in one transaction, so readers never observe a
// partial snapshot.
type SQLiteStore struct {
	db *sql.DB
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS entry_state (
    path        TEXT PRIMARY KEY,
    observed    TEXT NOT NULL,
    restart_log TEXT NOT NULL DEFAULT '[]',
    failed      INTEGER NOT NULL DEFAULT 0
);`

// NewSQLiteStore opens (or creates) the database at path and ensures the
// schema exists.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("snapshot database path required")
	}
	db, err := sql.Open("sqlite", path+"?_journal=WAL&_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open snapshot database: %w", err)
	}
	// SQLite works best with a single connection
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init snapshot schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Save(snap Snapshot) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin snapshot transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM entry_state`); err != nil {
		return fmt.Errorf("clear snapshot: %w", err)
	}
	stmt, err := tx.Prepare(`INSERT INTO entry_state(path, observed, restart_log, failed) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare snapshot insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for path, st := range snap {
		log, err := json.Marshal(st.RestartLog)
		if err != nil {
			return fmt.Errorf("encode restart log for %s: %w", path, err)
		}
		failed := 0
		if st.Failed {
			failed = 1
		}
		if _, err := stmt.Exec(path, st.Observed, string(log), failed); err != nil {
			return fmt.Errorf("save entry %s: %w", path, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Load() (Snapshot, error) {
	rows, err := s.db.Query(`SELECT path, observed, restart_log, failed FROM entry_state`)
	if err != nil {
		return Snapshot{}, fmt.Errorf("query snapshot: %w", err)
	}
	defer func() { _ = rows.Close() }()

	snap := Snapshot{}
	for rows.Next() {
		var (
			path, observed, log string
			failed              int
		)
		if err := rows.Scan(&path, &observed, &log, &failed); err != nil {
			return Snapshot{}, fmt.Errorf("scan snapshot row: %w", err)
		}
		st := EntryState{Observed: observed, Failed: failed != 0}
		if err := json.Unmarshal([]byte(log), &st.RestartLog); err != nil {
			return Snapshot{}, fmt.Errorf("decode restart log for %s: %w", path, err)
		}
		snap[path] = st
	}
	if err := rows.Err(); err != nil {
		return Snapshot{}, fmt.Errorf("read snapshot rows: %w", err)
	}
	return snap, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }
