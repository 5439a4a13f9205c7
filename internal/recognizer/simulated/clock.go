package simulated

import "sync/atomic"

// Clock is a monotonic logical clock stamping worker events.
//
// Each engine owns one clock shared by all its instances, so sequence
// numbers order events across culture swaps. Safe for concurrent use.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// Next returns the next sequence number.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last issued sequence number.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
