package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/roach88/grammarctl/internal/session"
)

// timeLayout is the on-disk timestamp format.
const timeLayout = time.RFC3339Nano

// WriteEvent appends a session event to the log.
//
// A reinitialized event also opens a sessions row (idempotent on the session
// ID); a disposed event closes it.
func (s *Store) WriteEvent(ctx context.Context, e session.Event) error {
	choices := e.Choices
	if choices == nil {
		choices = []int{}
	}
	choicesJSON, err := json.Marshal(choices)
	if err != nil {
		return fmt.Errorf("write event: marshal choices: %w", err)
	}

	at := e.At.UTC().Format(timeLayout)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write event: begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO events
		(session_id, kind, at, culture, state, text, confidence, accepted, choices, fingerprint, code, message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		e.Session,
		string(e.Kind),
		at,
		e.Culture,
		e.State.String(),
		e.Text,
		e.Confidence,
		e.Accepted,
		string(choicesJSON),
		e.Fingerprint,
		string(e.Code),
		e.Message,
	)
	if err != nil {
		return fmt.Errorf("write event: %w", err)
	}

	if err := writeSessionBoundary(ctx, tx, e, at); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write event: commit: %w", err)
	}
	return nil
}

func writeSessionBoundary(ctx context.Context, tx *sql.Tx, e session.Event, at string) error {
	if e.Session == "" {
		return nil
	}
	switch e.Kind {
	case session.EventReinitialized:
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sessions (id, culture, started_at)
			VALUES (?, ?, ?)
			ON CONFLICT(id) DO NOTHING
		`, e.Session, e.Culture, at)
		if err != nil {
			return fmt.Errorf("write session: %w", err)
		}
	case session.EventDisposed:
		_, err := tx.ExecContext(ctx, `
			UPDATE sessions SET ended_at = ? WHERE id = ? AND ended_at IS NULL
		`, at, e.Session)
		if err != nil {
			return fmt.Errorf("close session: %w", err)
		}
	}
	return nil
}
