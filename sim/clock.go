package sim

import "sync/atomic"

// Clock is the shared cycle counter. It only ever moves forward and is safe
// for concurrent use by every core worker and the generator.
type Clock struct {
	cycles atomic.Int64
	idle   atomic.Int64
	active atomic.Int64
}

// NewClock returns a clock at cycle 0.
func NewClock() *Clock {
	return &Clock{}
}

// Now returns the current cycle.
func (c *Clock) Now() int64 {
	return c.cycles.Load()
}

// Active advances the clock by n busy ticks and returns the new cycle.
func (c *Clock) Active(n int64) int64 {
	if n <= 0 {
		return c.cycles.Load()
	}
	c.active.Add(n)
	return c.cycles.Add(n)
}

// Idle advances the clock by one idle tick and returns the new cycle.
func (c *Clock) Idle() int64 {
	c.idle.Add(1)
	return c.cycles.Add(1)
}

// Ticks returns the idle, active and total tick counts.
func (c *Clock) Ticks() (idle, active, total int64) {
	return c.idle.Load(), c.active.Load(), c.cycles.Load()
}
