package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrSessionNotFound is returned for unknown session ids.
var ErrSessionNotFound = errors.New("session not found")

// Session is one run of the bridge.
type Session struct {
	ID         string     `json:"session_id"`
	Started    time.Time  `json:"started"`
	Ended      *time.Time `json:"ended,omitempty"`
	SourceKind string     `json:"source_kind"`
	ConfigJSON string     `json:"config_json"`
	Notes      string     `json:"notes,omitempty"`
}

// StartSession inserts a new open session.
func (db *DB) StartSession(started time.Time, sourceKind, configJSON, notes string) (*Session, error) {
	if configJSON == "" {
		configJSON = "{}"
	}
	s := &Session{
		ID:         uuid.NewString(),
		Started:    started,
		SourceKind: sourceKind,
		ConfigJSON: configJSON,
		Notes:      notes,
	}
	_, err := db.Exec(`
		INSERT INTO sessions (session_id, started_unix_nanos, source_kind, config_json, notes)
		VALUES (?, ?, ?, ?, ?)`,
		s.ID, started.UnixNano(), sourceKind, configJSON, notes)
	if err != nil {
		return nil, fmt.Errorf("failed to start session: %w", err)
	}
	return s, nil
}

// EndSession stamps the session's end time.
func (db *DB) EndSession(id string, ended time.Time) error {
	res, err := db.Exec(`UPDATE sessions SET ended_unix_nanos = ? WHERE session_id = ?`, ended.UnixNano(), id)
	if err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("end session %s: %w", id, ErrSessionNotFound)
	}
	return nil
}

// Session looks up one session.
func (db *DB) Session(id string) (*Session, error) {
	row := db.QueryRow(`
		SELECT session_id, started_unix_nanos, ended_unix_nanos, source_kind, config_json, notes
		FROM sessions WHERE session_id = ?`, id)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", id, ErrSessionNotFound)
	}
	return s, err
}

// Sessions lists sessions, newest first.
func (db *DB) Sessions(limit int) ([]Session, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.Query(`
		SELECT session_id, started_unix_nanos, ended_unix_nanos, source_kind, config_json, notes
		FROM sessions ORDER BY started_unix_nanos DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*Session, error) {
	var (
		s       Session
		started int64
		ended   sql.NullInt64
	)
	if err := row.Scan(&s.ID, &started, &ended, &s.SourceKind, &s.ConfigJSON, &s.Notes); err != nil {
		return nil, err
	}
	s.Started = time.Unix(0, started)
	if ended.Valid {
		t := time.Unix(0, ended.Int64)
		s.Ended = &t
	}
	return &s, nil
}
