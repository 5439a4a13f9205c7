package simulated

import "sync"

// eventKind distinguishes between worker event kinds.
type eventKind int

const (
	// eventUpdate asks the worker to fire UpdateReached.
	eventUpdate eventKind = iota + 1
	// eventUtterance delivers audio (as text) to the recognizer.
	eventUtterance
	// eventBarrier is closed once every earlier event was processed.
	eventBarrier
)

// event is one unit of work for the instance worker.
type event struct {
	kind       eventKind
	seq        int64
	token      any
	text       string
	confidence float64
	done       chan struct{}
}

// eventQueue is a thread-safe, unbounded FIFO of worker events.
//
// Any goroutine may enqueue; only the instance worker dequeues. The signal
// channel lets the worker wait without polling and wakes it on Close.
type eventQueue struct {
	mu     sync.Mutex
	events []event
	closed bool
	signal chan struct{} // buffered, size 1
}

func newEventQueue() *eventQueue {
	return &eventQueue{
		events: make([]event, 0, 16),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue appends an event. Returns false if the queue is closed.
func (q *eventQueue) Enqueue(e event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.events = append(q.events, e)

	// Buffer of 1 coalesces multiple signals
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue removes the front event without blocking.
func (q *eventQueue) TryDequeue() (event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.events) == 0 {
		return event{}, false
	}

	e := q.events[0]
	q.events[0] = event{} // release token and done chan for GC
	if len(q.events) == 1 {
		q.events = q.events[:0]
	} else {
		q.events = q.events[1:]
	}
	return e, true
}

// Wait returns a channel that signals when events may be available.
// The channel is closed by Close.
func (q *eventQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the number of pending events.
func (q *eventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Done reports whether the queue is closed and drained.
func (q *eventQueue) Done() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed && len(q.events) == 0
}

// Close stops further enqueues and wakes the worker.
func (q *eventQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}
