package kernel

// Semaphore is a counting semaphore. A binary semaphore is just one
// created with max == 1.
type Semaphore struct {
	sched *Scheduler
	name  string

	count   int
	max     int
	waiters priorityList
}

// NewSemaphore creates a semaphore with the given initial count and
// maximum (a Post that would exceed max returns StatusOverflow).
func (s *Scheduler) NewSemaphore(name string, initial, max int) *Semaphore {
	return &Semaphore{sched: s, name: name, count: initial, max: max}
}

// Post increments the semaphore, waking the highest-priority waiter if
// any (semaphore::post). Safe to call from interrupt context
// (PostFromISR is the same call; the kernel has no separate ISR-context
// code path once inside the single lock).
func (sem *Semaphore) Post() Status {
	s := sem.sched
	s.mu.Lock()
	defer s.mu.Unlock()
	return sem.postLocked()
}

// postLocked is Post's body, split out so callers that already hold
// sched.mu (fireTimerLocked, waking the timer dispatch thread) can post
// without reentering the lock.
func (sem *Semaphore) postLocked() Status {
	s := sem.sched
	if next := sem.waiters.popHighest(); next != nil {
		next.waitResult = StatusOK
		s.makeReady(next)
		s.schedulePreemption()
		return StatusOK
	}
	if sem.max > 0 && sem.count >= sem.max {
		return StatusOverflow
	}
	sem.count++
	return StatusOK
}

// PostFromISR is Post's interrupt-context name; behaviour
// is identical since the kernel serializes everything behind one lock.
func (sem *Semaphore) PostFromISR() Status { return sem.Post() }

// Wait blocks until the semaphore can be decremented, or returns early
// per timeoutTicks (negative waits indefinitely).
func (sem *Semaphore) Wait(timeoutTicks int64) Status {
	s := sem.sched
	s.mu.Lock()
	defer s.mu.Unlock()

	if sem.count > 0 {
		sem.count--
		return StatusOK
	}
	return s.blockCurrent(&sem.waiters, s.current.effectivePriority, timeoutTicks)
}

// TryWait attempts to decrement without blocking
// (semaphore::try_wait).
func (sem *Semaphore) TryWait() Status {
	s := sem.sched
	s.mu.Lock()
	defer s.mu.Unlock()
	if sem.count > 0 {
		sem.count--
		return StatusOK
	}
	return StatusWouldBlock
}

// Count returns the current count (snapshot; may be stale by the time
// the caller observes it).
func (sem *Semaphore) Count() int {
	s := sem.sched
	s.mu.Lock()
	defer s.mu.Unlock()
	return sem.count
}

// Destroy wakes every waiter with StatusPrimitiveDestroyed.
func (sem *Semaphore) Destroy() {
	s := sem.sched
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range sem.waiters.drainAll() {
		w.waitResult = StatusPrimitiveDestroyed
		s.makeReady(w)
	}
}
