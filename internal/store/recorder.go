package store

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/gammazero/workerpool"

	"github.com/roach88/grammarctl/internal/session"
)

// Recorder is a session.Observer that writes events to a Store.
//
// Observe never blocks the caller (which may be the engine worker): writes
// are queued on a single-worker pool, so they land in arrival order.
type Recorder struct {
	store  *Store
	pool   *workerpool.WorkerPool
	failed atomic.Int64
}

var _ session.Observer = (*Recorder)(nil)

// NewRecorder creates a recorder writing to s.
func NewRecorder(s *Store) *Recorder {
	return &Recorder{
		store: s,
		pool:  workerpool.New(1),
	}
}

// Observe implements session.Observer.
func (r *Recorder) Observe(e session.Event) {
	r.pool.Submit(func() {
		if err := r.store.WriteEvent(context.Background(), e); err != nil {
			r.failed.Add(1)
			slog.Error("failed to record session event",
				"kind", string(e.Kind),
				"session", e.Session,
				"error", err)
		}
	})
}

// Flush waits for every event observed so far to be written.
func (r *Recorder) Flush() {
	done := make(chan struct{})
	r.pool.Submit(func() { close(done) })
	<-done
}

// Failed returns the number of events that could not be written.
func (r *Recorder) Failed() int64 {
	return r.failed.Load()
}

// Close drains pending writes and stops the recorder. The store stays open.
func (r *Recorder) Close() {
	r.pool.StopWait()
}
