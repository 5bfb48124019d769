package kernel

// Condvar is a condition variable: Wait atomically releases the mutex
// and blocks, and reacquires it before returning, exactly like
// sync.Cond but integrated with the kernel's own Mutex and result-code
// convention instead of Go's sync package.
type Condvar struct {
	sched   *Scheduler
	name    string
	waiters priorityList
}

// NewCondvar creates a condition variable.
func (s *Scheduler) NewCondvar(name string) *Condvar {
	return &Condvar{sched: s, name: name}
}

// Wait releases m, blocks the calling thread until Signal/Broadcast or
// timeoutTicks elapses (negative waits indefinitely), then reacquires m
// before returning - also when the wait ended in a timeout or interrupt.
// If m is owned by another thread at that point, Wait blocks on it again
// with no timeout; should that second wait itself end with a non-OK
// status (an Interrupt, or m being destroyed), Wait returns without
// holding m.
func (cv *Condvar) Wait(m *Mutex, timeoutTicks int64) Status {
	s := cv.sched
	s.mu.Lock()
	t := s.current

	if m.owner != t {
		s.mu.Unlock()
		return StatusNotOwner
	}
	// atomically release m and block: since both the mutex release and
	// the wait-list push happen under s.mu, no signal can be missed
	// between "unlock" and "start waiting" the way it could with two
	// separate lock acquisitions.
	savedNest := m.nestCount
	m.removeFromHeldLocked(t)
	t.recomputeEffectivePriority()
	m.owner = nil
	m.nestCount = 0
	if waker := m.waiters.popHighest(); waker != nil {
		waker.waitResult = StatusOK
		m.owner = waker
		m.nestCount = 1
		waker.heldMutexes = append(waker.heldMutexes, m)
		s.makeReady(waker)
	}

	st := s.blockCurrent(&cv.waiters, t.effectivePriority, timeoutTicks)

	// reacquire m, blocking again if necessary; a non-OK reacquire result
	// (e.g. StatusOwnerDead for a robust mutex) is returned only when the
	// wait itself succeeded, otherwise st wins.
	reacq := cv.reacquireLocked(m, t, savedNest)
	s.mu.Unlock()
	if reacq != StatusOK && st == StatusOK {
		return reacq
	}
	return st
}

// reacquireLocked reacquires m for t after a condvar wait, restoring its
// prior recursion depth, blocking if necessary. Must be called with
// sched.mu held.
func (cv *Condvar) reacquireLocked(m *Mutex, t *Thread, nest int) Status {
	s := cv.sched
	if m.owner == nil {
		m.owner = t
		m.nestCount = nest
		t.heldMutexes = append(t.heldMutexes, m)
		if m.inconsistent {
			return StatusOwnerDead
		}
		return StatusOK
	}
	if m.owner == t {
		m.nestCount += nest
		return StatusOK
	}
	m.boostChain(t.effectivePriority, 0)
	st := s.blockCurrent(&m.waiters, t.effectivePriority, -1)
	if st != StatusOK {
		return st
	}
	m.nestCount = nest
	if m.inconsistent {
		return StatusOwnerDead
	}
	return StatusOK
}

// Signal wakes the single highest-priority waiter
// (condition_variable::notify_one).
func (cv *Condvar) Signal() Status {
	s := cv.sched
	s.mu.Lock()
	defer s.mu.Unlock()
	if next := cv.waiters.popHighest(); next != nil {
		next.waitResult = StatusOK
		s.makeReady(next)
		s.schedulePreemption()
	}
	return StatusOK
}

// Broadcast wakes every waiter (condition_variable::notify_all).
func (cv *Condvar) Broadcast() Status {
	s := cv.sched
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range cv.waiters.drainAll() {
		w.waitResult = StatusOK
		s.makeReady(w)
	}
	s.schedulePreemption()
	return StatusOK
}

// Destroy wakes every waiter with StatusPrimitiveDestroyed.
func (cv *Condvar) Destroy() {
	s := cv.sched
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range cv.waiters.drainAll() {
		w.waitResult = StatusPrimitiveDestroyed
		s.makeReady(w)
	}
}
