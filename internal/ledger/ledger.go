// Package ledger keeps an append-only history of ended collector sessions.
package ledger

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned by Get for unknown session IDs
var ErrNotFound = errors.New("session not found")

// Session is the summary of one collector run
type Session struct {
	ID        string
	Name      string // Config name, empty for ad-hoc collectors
	Kind      string
	ChatID    int64
	Reason    string
	Collected int
	Received  int
	StartedAt time.Time
	EndedAt   time.Time
	Keys      []string // Collected keys in insertion order
}

// Duration returns how long the session ran
func (s *Session) Duration() time.Duration {
	return s.EndedAt.Sub(s.StartedAt)
}

// Ledger stores sessions in SQLite
type Ledger struct {
	db *sql.DB
}

// New creates a new Ledger using the provided database connection
func New(db *sql.DB) *Ledger {
	return &Ledger{db: db}
}

// Record appends a finished session
func (l *Ledger) Record(s *Session) error {
	if s.ID == "" {
		return errors.New("session id is required")
	}

	var keysJSON []byte
	if len(s.Keys) > 0 {
		var err error
		keysJSON, err = json.Marshal(s.Keys)
		if err != nil {
			return fmt.Errorf("failed to marshal keys: %w", err)
		}
	}

	ended := s.EndedAt
	if ended.IsZero() {
		ended = time.Now()
	}

	_, err := l.db.Exec(`
		INSERT INTO collector_sessions (id, name, kind, chat_id, reason, collected, received, started_at, ended_at, keys)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, s.ID, s.Name, s.Kind, s.ChatID, s.Reason, s.Collected, s.Received,
		s.StartedAt.UTC().UnixMilli(), ended.UTC().UnixMilli(), string(keysJSON))
	if err != nil {
		return fmt.Errorf("failed to record session %s: %w", s.ID, err)
	}
	return nil
}

// Get returns one session by ID
func (l *Ledger) Get(id string) (*Session, error) {
	rows, err := l.db.Query(`
		SELECT id, name, kind, chat_id, reason, collected, received, started_at, ended_at, keys
		FROM collector_sessions
		WHERE id = ?
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions, err := l.scanSessions(rows)
	if err != nil {
		return nil, err
	}
	if len(sessions) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return sessions[0], nil
}

// List returns the most recently ended sessions
func (l *Ledger) List(limit int) ([]*Session, error) {
	rows, err := l.db.Query(`
		SELECT id, name, kind, chat_id, reason, collected, received, started_at, ended_at, keys
		FROM collector_sessions
		ORDER BY ended_at DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return l.scanSessions(rows)
}

// ListByReason returns the most recently ended sessions with the given end reason
func (l *Ledger) ListByReason(reason string, limit int) ([]*Session, error) {
	rows, err := l.db.Query(`
		SELECT id, name, kind, chat_id, reason, collected, received, started_at, ended_at, keys
		FROM collector_sessions
		WHERE reason = ?
		ORDER BY ended_at DESC, rowid DESC
		LIMIT ?
	`, reason, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return l.scanSessions(rows)
}

// DeleteOlderThan removes sessions that ended before now-retention (retention policy)
func (l *Ledger) DeleteOlderThan(retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention).UTC().UnixMilli()
	result, err := l.db.Exec(`
		DELETE FROM collector_sessions WHERE ended_at < ?
	`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (l *Ledger) scanSessions(rows *sql.Rows) ([]*Session, error) {
	var sessions []*Session
	for rows.Next() {
		var s Session
		var name, keysStr sql.NullString
		var chatID sql.NullInt64
		var startedAt, endedAt int64

		err := rows.Scan(
			&s.ID, &name, &s.Kind, &chatID, &s.Reason, &s.Collected, &s.Received, &startedAt, &endedAt, &keysStr,
		)
		if err != nil {
			return nil, err
		}

		s.StartedAt = time.UnixMilli(startedAt).UTC()
		s.EndedAt = time.UnixMilli(endedAt).UTC()
		if name.Valid {
			s.Name = name.String
		}
		if chatID.Valid {
			s.ChatID = chatID.Int64
		}

		if keysStr.Valid && keysStr.String != "" {
			if err := json.Unmarshal([]byte(keysStr.String), &s.Keys); err != nil {
				return nil, fmt.Errorf("failed to unmarshal keys: %w", err)
			}
		}

		sessions = append(sessions, &s)
	}

	return sessions, rows.Err()
}
