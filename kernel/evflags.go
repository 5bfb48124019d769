package kernel

// WaitMode selects whether EventFlags.Wait is satisfied by any or all of
// the requested bits (flags::mode).
type WaitMode int

const (
	WaitAny WaitMode = iota
	WaitAll
)

// EventFlags is a 32-bit set of flags threads can wait on. list holds
// every blocked waiter for timeout/interrupt bookkeeping (a thread is
// in exactly this one list while blocked here); waiters carries the
// per-waiter predicate (mask/mode/clear) that
// a plain priorityList has no room for, since a flags-wait is satisfied
// by a predicate over the whole bit mask rather than by a single
// released resource.
type EventFlags struct {
	sched *Scheduler
	name  string
	bits  uint32

	list    priorityList
	waiters []*evWaiter
}

type evWaiter struct {
	thread *Thread
	mask   uint32
	mode   WaitMode
	clear  bool
	result uint32
}

// NewEventFlags creates an event-flags object, initially with no bits
// set.
func (s *Scheduler) NewEventFlags(name string) *EventFlags {
	return &EventFlags{sched: s, name: name}
}

// Raise ORs mask into the flags and wakes any waiter whose predicate is
// now satisfied (flags::raise). RaiseFromISR is identical behind the
// single lock.
func (ef *EventFlags) Raise(mask uint32) Status {
	s := ef.sched
	s.mu.Lock()
	defer s.mu.Unlock()
	ef.bits |= mask
	ef.wakeSatisfiedLocked()
	s.schedulePreemption()
	return StatusOK
}

// RaiseFromISR is Raise's interrupt-context name.
func (ef *EventFlags) RaiseFromISR(mask uint32) Status { return ef.Raise(mask) }

// wakeSatisfiedLocked scans waiters for satisfied predicates, removing
// and waking each one, clearing bits for those that asked for
// clear-on-wait. Must be called with sched.mu held.
func (ef *EventFlags) wakeSatisfiedLocked() {
	remaining := ef.waiters[:0]
	for _, w := range ef.waiters {
		if w.thread.state != StateBlocked || w.thread.waitList != &ef.list {
			// stale entry: the thread was terminated, interrupted, or timed
			// out of the wait; it is no longer ours to wake
			continue
		}
		if !flagsSatisfied(ef.bits, w.mask, w.mode) {
			remaining = append(remaining, w)
			continue
		}
		w.result = ef.bits & w.mask
		if w.clear {
			ef.bits &^= w.mask
		}
		ef.list.remove(w.thread)
		w.thread.waitResult = StatusOK
		ef.sched.makeReady(w.thread)
	}
	ef.waiters = remaining
}

// Wait blocks until mask is satisfied according to mode, or
// timeoutTicks elapses (negative waits indefinitely). If clear is set,
// the satisfying bits are cleared atomically with the wake. On success
// the bits observed at wake time (before any clearing) are returned
// alongside StatusOK.
func (ef *EventFlags) Wait(mask uint32, mode WaitMode, clear bool, timeoutTicks int64) (uint32, Status) {
	s := ef.sched
	s.mu.Lock()

	if flagsSatisfied(ef.bits, mask, mode) {
		result := ef.bits & mask
		if clear {
			ef.bits &^= mask
		}
		s.mu.Unlock()
		return result, StatusOK
	}

	t := s.current
	w := &evWaiter{thread: t, mask: mask, mode: mode, clear: clear}
	ef.waiters = append(ef.waiters, w)
	st := s.blockCurrent(&ef.list, t.effectivePriority, timeoutTicks)
	if st != StatusOK {
		ef.removeWaiterLocked(w)
		s.mu.Unlock()
		return 0, st
	}
	s.mu.Unlock()
	return w.result, StatusOK
}

func (ef *EventFlags) removeWaiterLocked(w *evWaiter) {
	for i, x := range ef.waiters {
		if x == w {
			ef.waiters = append(ef.waiters[:i], ef.waiters[i+1:]...)
			return
		}
	}
}

// Get returns the current bit mask.
func (ef *EventFlags) Get() uint32 {
	s := ef.sched
	s.mu.Lock()
	defer s.mu.Unlock()
	return ef.bits
}

// GetMasked returns the raised bits selected by mask without blocking,
// clearing them atomically when clear is set (flags::get).
func (ef *EventFlags) GetMasked(mask uint32, clear bool) uint32 {
	s := ef.sched
	s.mu.Lock()
	defer s.mu.Unlock()
	result := ef.bits & mask
	if clear {
		ef.bits &^= mask
	}
	return result
}

// Destroy wakes every waiter with StatusPrimitiveDestroyed.
func (ef *EventFlags) Destroy() {
	s := ef.sched
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range ef.waiters {
		if w.thread.state != StateBlocked || w.thread.waitList != &ef.list {
			continue
		}
		// unlink from the wait list before the ready-queue push reuses the
		// thread's intrusive linkage (one list at a time)
		ef.list.remove(w.thread)
		w.thread.waitResult = StatusPrimitiveDestroyed
		s.makeReady(w.thread)
	}
	ef.waiters = nil
}
