package engine

import "sync/atomic"

// Sequencer numbers runs. Each call to Next must return a value greater
// than every value it returned before.
type Sequencer interface {
	Next() int64
}

// Clock is the default Sequencer. Run numbers come from a counter rather
// than wall time so that stored runs sort the same way on every replay.
// Safe for concurrent use.
type Clock struct {
	last atomic.Int64
}

// NewClock returns a Clock whose first run is numbered 1.
func NewClock() *Clock {
	return NewClockAt(0)
}

// NewClockAt returns a Clock whose first run is numbered last+1. Pass the
// highest seq already persisted (store.LastSeq).
func NewClockAt(last int64) *Clock {
	c := new(Clock)
	c.last.Store(last)
	return c
}

func (c *Clock) Next() int64 { return c.last.Add(1) }

// Current reports the most recently issued seq, or the starting point if
// none has been issued.
func (c *Clock) Current() int64 { return c.last.Load() }
