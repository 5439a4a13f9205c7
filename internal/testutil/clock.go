// Package testutil provides deterministic time sources for tests and
// scenario runs.
package testutil

import (
	"sync"
	"time"
)

// Epoch is the first instant a DeterministicClock reports.
var Epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// DefaultStep is the interval between successive readings.
const DefaultStep = time.Millisecond

// DeterministicClock is a wall clock that advances by a fixed step on every
// reading.
//
// It stands in for time.Now wherever timestamps end up in a trace, so the
// same scenario produces identical event logs on every run.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type DeterministicClock struct {
	mu   sync.Mutex
	n    int64
	step time.Duration
}

// NewDeterministicClock creates a clock whose first Now() returns Epoch.
func NewDeterministicClock() *DeterministicClock {
	return &DeterministicClock{step: DefaultStep}
}

// WithStep sets the interval between readings and returns the clock.
func (c *DeterministicClock) WithStep(step time.Duration) *DeterministicClock {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.step = step
	return c
}

// Now returns the next reading. Monotonic: never decreases.
func (c *DeterministicClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := Epoch.Add(time.Duration(c.n) * c.step)
	c.n++
	return t
}

// Readings returns how many times Now has been called.
func (c *DeterministicClock) Readings() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

// Reset rewinds the clock. After Reset(), the next Now() returns Epoch.
func (c *DeterministicClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n = 0
}
