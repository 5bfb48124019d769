package kernel

import "sync/atomic"

// Clock is the monotonic tick counter advanced by the periodic tick
// interrupt, feeding every timed wait and timer. The tick does not
// timeslice threads of equal priority.
// Ticks is read far more often than it is written (every primitive
// computing a deadline reads it), so it is kept as a single atomic
// counter rather than behind the kernel lock.
type Clock struct {
	ticks atomic.Uint64
	hz    int
}

// newClock constructs a Clock configured for the given tick frequency.
func newClock(hz int) *Clock {
	if hz <= 0 {
		hz = 1000
	}
	return &Clock{hz: hz}
}

// Now returns the current absolute tick count.
func (c *Clock) Now() uint64 { return c.ticks.Load() }

// HZ returns the configured tick frequency.
func (c *Clock) HZ() int { return c.hz }

// advance is called once per tick by the scheduler's tick handler.
func (c *Clock) advance() uint64 { return c.ticks.Add(1) }

// Deadline computes an absolute tick deadline ticks in the future. A
// duration-based timed-wait helper on top of this package converts a
// time.Duration to ticks using HZ.
func (c *Clock) Deadline(ticksFromNow uint64) uint64 {
	return c.Now() + ticksFromNow
}
