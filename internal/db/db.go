// Package db provides the SQLite connection and schema for tgcollect.
package db

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the SQLite database connection
type DB struct {
	*sql.DB
}

// Open opens the database and initializes the schema
func Open(dbPath string) (*DB, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &DB{db}, nil
}

// initSchema creates all required tables
func initSchema(db *sql.DB) error {
	// One row per ended collector session; timestamps in unix milliseconds
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS collector_sessions (
			id TEXT PRIMARY KEY,
			name TEXT,
			kind TEXT NOT NULL,
			chat_id INTEGER,
			reason TEXT NOT NULL,
			collected INTEGER NOT NULL,
			received INTEGER NOT NULL,
			started_at INTEGER NOT NULL,
			ended_at INTEGER NOT NULL,
			keys TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_sessions_ended ON collector_sessions(ended_at);
		CREATE INDEX IF NOT EXISTS idx_sessions_reason ON collector_sessions(reason, ended_at);
	`)
	if err != nil {
		return fmt.Errorf("failed to create collector_sessions table: %w", err)
	}

	return nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.DB.Close()
}
