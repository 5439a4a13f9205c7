package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/grammarctl/internal/session"
)

// createTestStore creates a new temp-dir store for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

var testEpoch = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

// createTestEvent creates a session event with minimal required fields.
func createTestEvent(kind session.EventKind, sessionID string, offset time.Duration) session.Event {
	return session.Event{
		Kind:    kind,
		At:      testEpoch.Add(offset),
		Session: sessionID,
		Culture: "en-US",
		State:   session.StateBound,
	}
}
