// Package localstate persists small client-side bookkeeping — currently
// the last viewed session per directory, used only to pick an initial
// session on load. It sits outside the consistency-critical data model.
package localstate

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/strandkit/strand/internal/core"
)

// Store is a SQLite-backed key-value map.
type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("localstate: open %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("localstate: ping: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS state (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("localstate: create schema: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func lastSessionKey(directory string) string {
	return "last_session:" + directory
}

// LastSession returns the last viewed session for a directory, or empty
// when none has been recorded.
func (s *Store) LastSession(directory string) (core.SessionID, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM state WHERE key = ?", lastSessionKey(directory)).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("localstate: read last session: %w", err)
	}
	return core.SessionID(value), nil
}

// SetLastSession records the last viewed session for a directory.
func (s *Store) SetLastSession(directory string, sessionID core.SessionID) error {
	_, err := s.db.Exec(
		"INSERT INTO state (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		lastSessionKey(directory), string(sessionID),
	)
	if err != nil {
		return fmt.Errorf("localstate: write last session: %w", err)
	}
	return nil
}

// Forget drops the record for a directory, e.g. after its last session is
// deleted.
func (s *Store) Forget(directory string) error {
	if _, err := s.db.Exec("DELETE FROM state WHERE key = ?", lastSessionKey(directory)); err != nil {
		return fmt.Errorf("localstate: forget: %w", err)
	}
	return nil
}
