package engine

import "sync/atomic"

// Clock hands out step sequence numbers. It is safe for concurrent use, so
// one Clock may be shared by the TakeActions calls of an engine, or by
// several engines whose steps should be ordered together.
type Clock struct {
	seq atomic.Int64
}

// NewClock returns a clock whose first step is 1.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt returns a clock whose first step is start+1.
func NewClockAt(start int64) *Clock {
	c := new(Clock)
	c.seq.Store(start)
	return c
}

// Next stamps a step.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current is the last stamped seq, or the start value if none was stamped.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
