package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/grammarctl/internal/fault"
)

// UpdateToken identifies one rendezvous request. It is the token handed to
// the engine's RequestUpdate and echoed back in UpdateReached.
type UpdateToken uint64

// request is the single outstanding rendezvous slot.
type request struct {
	token   UpdateToken
	action  func()
	done    chan struct{}
	claimed bool // set by the worker before running action
}

// Rendezvous is a one-slot blocking handoff between the evaluation
// goroutine and the engine worker.
//
// RequestAndWait posts an action, asks the engine for an update turn and
// blocks until the worker has run the action from its UpdateReached
// callback (via Reached). At most one request is outstanding; a concurrent
// second request fails fast with fault.UpdateAlreadyInProgress.
//
// A request whose wait expires (timeout or context) is abandoned: if the
// worker reaches it later, the action is not run.
//
// Thread-safety: RequestAndWait is called by the single driver; Reached is
// called by the engine worker. Both are safe to call concurrently.
type Rendezvous struct {
	timeout time.Duration

	mu      sync.Mutex
	seq     UpdateToken
	pending *request
}

// NewRendezvous creates a rendezvous. A zero timeout waits until the
// context is done.
func NewRendezvous(timeout time.Duration) *Rendezvous {
	return &Rendezvous{timeout: timeout}
}

// RequestAndWait runs action on the engine worker's turn and waits for it.
//
// post delivers the token to the engine (typically Handle.RequestUpdate).
// Returns fault.UpdateAlreadyInProgress if a request is outstanding and
// fault.UpdateTimeout if the wait expires before the worker claims it.
func (r *Rendezvous) RequestAndWait(ctx context.Context, post func(token any) error, action func()) error {
	r.mu.Lock()
	if r.pending != nil {
		r.mu.Unlock()
		return fault.New(fault.UpdateAlreadyInProgress, "request_update",
			"grammar update already in progress")
	}
	r.seq++
	req := &request{token: r.seq, action: action, done: make(chan struct{})}
	r.pending = req
	r.mu.Unlock()

	if err := post(req.token); err != nil {
		r.abandon(req)
		return err
	}

	var expired <-chan time.Time
	if r.timeout > 0 {
		timer := time.NewTimer(r.timeout)
		defer timer.Stop()
		expired = timer.C
	}

	var cause error
	select {
	case <-req.done:
		return nil
	case <-ctx.Done():
		cause = ctx.Err()
	case <-expired:
		cause = fmt.Errorf("no update reached within %s", r.timeout)
	}

	if !r.abandon(req) {
		// The worker already claimed it; the action is running.
		<-req.done
		return nil
	}
	slog.Warn("grammar update abandoned", "token", uint64(req.token), "error", cause)
	return fault.Wrap(fault.UpdateTimeout, "request_update", cause)
}

// abandon clears req from the slot unless the worker claimed it.
// Returns false if the action is (or was) running.
func (r *Rendezvous) abandon(req *request) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if req.claimed {
		return false
	}
	if r.pending == req {
		r.pending = nil
	}
	return true
}

// Reached runs the pending action for token and wakes the waiting caller.
// Called from the engine worker's UpdateReached callback. Tokens that do
// not match the outstanding request (foreign or abandoned) are ignored.
// Reports whether an action ran.
func (r *Rendezvous) Reached(token any) bool {
	t, ok := token.(UpdateToken)
	if !ok {
		return false
	}

	r.mu.Lock()
	req := r.pending
	if req == nil || req.token != t || req.claimed {
		r.mu.Unlock()
		slog.Debug("ignoring stale update token", "token", uint64(t))
		return false
	}
	req.claimed = true
	r.mu.Unlock()

	if req.action != nil {
		req.action()
	}

	r.mu.Lock()
	r.pending = nil
	r.mu.Unlock()
	close(req.done)
	return true
}

// Pending reports whether a request is outstanding.
func (r *Rendezvous) Pending() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pending != nil
}
