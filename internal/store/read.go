package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

// Record is one stored event.
type Record struct {
	Seq         int64     `json:"seq"`
	Session     string    `json:"session,omitempty"`
	Kind        string    `json:"kind"`
	At          time.Time `json:"at"`
	Culture     string    `json:"culture,omitempty"`
	State       string    `json:"state"`
	Text        string    `json:"text,omitempty"`
	Confidence  float64   `json:"confidence,omitempty"`
	Accepted    bool      `json:"accepted,omitempty"`
	Choices     []int     `json:"choices,omitempty"`
	Fingerprint string    `json:"fingerprint,omitempty"`
	Code        string    `json:"code,omitempty"`
	Message     string    `json:"message,omitempty"`
}

// Session is one stored recognizer lifetime.
type Session struct {
	ID        string     `json:"id"`
	Culture   string     `json:"culture"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

// ReadEvents returns the events of one session, or of every session when
// sessionID is empty, ordered by seq.
//
// Returns an empty slice (not nil) if nothing matches.
func (s *Store) ReadEvents(ctx context.Context, sessionID string) ([]Record, error) {
	query := `
		SELECT seq, session_id, kind, at, culture, state, text, confidence, accepted, choices, fingerprint, code, message
		FROM events`
	var args []any
	if sessionID != "" {
		query += ` WHERE session_id = ?`
		args = append(args, sessionID)
	}
	query += ` ORDER BY seq ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return records, nil
}

// ReadSessions returns every stored session ordered by start time.
func (s *Store) ReadSessions(ctx context.Context) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, culture, started_at, ended_at
		FROM sessions
		ORDER BY started_at ASC, id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	sessions := []Session{}
	for rows.Next() {
		var (
			sess    Session
			started string
			ended   sql.NullString
		)
		if err := rows.Scan(&sess.ID, &sess.Culture, &started, &ended); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		if sess.StartedAt, err = time.Parse(timeLayout, started); err != nil {
			return nil, fmt.Errorf("parse started_at: %w", err)
		}
		if ended.Valid {
			t, err := time.Parse(timeLayout, ended.String)
			if err != nil {
				return nil, fmt.Errorf("parse ended_at: %w", err)
			}
			sess.EndedAt = &t
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

// CountEvents returns the number of stored events of the given kind, or of
// all kinds when kind is empty.
func (s *Store) CountEvents(ctx context.Context, kind string) (int, error) {
	query := `SELECT COUNT(*) FROM events`
	var args []any
	if kind != "" {
		query += ` WHERE kind = ?`
		args = append(args, kind)
	}
	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}

func scanRecord(rows *sql.Rows) (Record, error) {
	var (
		rec         Record
		at, choices string
	)
	err := rows.Scan(
		&rec.Seq,
		&rec.Session,
		&rec.Kind,
		&at,
		&rec.Culture,
		&rec.State,
		&rec.Text,
		&rec.Confidence,
		&rec.Accepted,
		&choices,
		&rec.Fingerprint,
		&rec.Code,
		&rec.Message,
	)
	if err != nil {
		return Record{}, fmt.Errorf("scan event: %w", err)
	}
	if rec.At, err = time.Parse(timeLayout, at); err != nil {
		return Record{}, fmt.Errorf("parse event time: %w", err)
	}
	if err := json.Unmarshal([]byte(choices), &rec.Choices); err != nil {
		return Record{}, fmt.Errorf("unmarshal choices: %w", err)
	}
	if len(rec.Choices) == 0 {
		rec.Choices = nil
	}
	return rec, nil
}
