package kernel

// MutexType selects recursive/error-checking behaviour, the mutex
// attribute bits of the pthread mutexattr family.
type MutexType int

const (
	// MutexNormal is the default, PTHREAD_MUTEX_NORMAL-like type. Where
	// POSIX would block forever on an owner relock, Lock returns
	// StatusWouldDeadlock immediately.
	MutexNormal MutexType = iota
	// MutexRecursive allows the owner to relock, tracking a nest count.
	MutexRecursive
	// MutexErrorCheck returns StatusWouldDeadlock instead of blocking
	// when the owner relocks, and StatusNotOwner on a foreign unlock.
	MutexErrorCheck
)

// Mutex is a priority-inheritance-protocol mutex. Waiters
// block on a single priorityList; the owner's effective priority is
// boosted to the maximum of its own waiters whenever a higher-priority
// thread blocks on it, and restored when it unlocks (via each owning
// thread's heldMutexes bookkeeping in recomputeEffectivePriority).
type Mutex struct {
	sched  *Scheduler
	name   string
	kind   MutexType
	robust bool

	owner          *Thread
	nestCount      int
	waiters        priorityList
	inconsistent   bool // robust: previous owner died without Consistent
	notRecoverable bool

	chainLimit int
}

// NewMutex creates a mutex of the given type. robust enables the
// owner-death recovery protocol (StatusOwnerDead /
// StatusNotRecoverable / Consistent).
func (s *Scheduler) NewMutex(name string, kind MutexType, robust bool) *Mutex {
	m := &Mutex{
		sched:      s,
		name:       name,
		kind:       kind,
		robust:     robust,
		chainLimit: s.cfg.mutexInheritChainLimit,
	}
	m.waiters.owner = m
	return m
}

// Owner returns the owning thread, or nil while unowned (snapshot).
func (m *Mutex) Owner() *Thread {
	s := m.sched
	s.mu.Lock()
	defer s.mu.Unlock()
	return m.owner
}

// inheritedCeiling reports the priority this mutex currently contributes
// to its owner's effective priority: the highest effective priority
// among its waiters, or PriorityNone if unowned or no one waits. Must be
// called with sched.mu held.
func (m *Mutex) inheritedCeiling() int {
	if m.owner == nil {
		return PriorityNone
	}
	p, ok := m.waiters.highestPriority()
	if !ok {
		return PriorityNone
	}
	return p
}

// Lock blocks until the mutex is acquired, or returns early per
// timeoutTicks (negative waits indefinitely). It implements the
// priority-inheritance boost: each thread in
// the (bounded) chain of owners blocking on each other's mutexes is
// boosted in turn, up to chainLimit hops.
func (m *Mutex) Lock(timeoutTicks int64) Status {
	s := m.sched
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.current

	if m.notRecoverable {
		return StatusNotRecoverable
	}

	if m.owner == t {
		switch m.kind {
		case MutexRecursive:
			m.nestCount++
			return StatusOK
		case MutexErrorCheck:
			return StatusWouldDeadlock
		default:
			// MutexNormal: upstream blocks forever; model it as an
			// immediate deadlock status instead of actually hanging the
			// test process.
			return StatusWouldDeadlock
		}
	}

	if m.owner == nil {
		m.acquireLocked(t)
		if m.inconsistent {
			// the previous owner died holding this robust mutex with no
			// waiter to hand it to; the new owner must call Consistent
			return StatusOwnerDead
		}
		return StatusOK
	}

	m.boostChain(t.effectivePriority, 0)
	st := s.blockCurrent(&m.waiters, t.effectivePriority, timeoutTicks)
	if st != StatusOK {
		return st
	}
	// woken by Unlock's handoff: m.owner has already been set to t there.
	if m.inconsistent {
		return StatusOwnerDead
	}
	return StatusOK
}

// boostChain raises holder's (here the current owner's) effective
// priority to at least p, and recurses into whatever the owner is in
// turn blocked on, up to chainLimit hops, the bounded
// transitive propagation. Must be called with sched.mu held.
func (m *Mutex) boostChain(p int, depth int) {
	if m.owner == nil || depth >= m.chainLimit {
		return
	}
	m.owner.boostEffectivePriority(p)
	if wl := m.owner.waitList; wl != nil && wl.owner != nil {
		wl.owner.boostChain(p, depth+1)
	}
}

// TryLock attempts to acquire the mutex without blocking
// (mutex::try_lock).
func (m *Mutex) TryLock() Status {
	s := m.sched
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.current

	if m.notRecoverable {
		return StatusNotRecoverable
	}
	if m.owner == t {
		if m.kind == MutexRecursive {
			m.nestCount++
			return StatusOK
		}
		return StatusWouldBlock
	}
	if m.owner != nil {
		return StatusWouldBlock
	}
	m.acquireLocked(t)
	if m.inconsistent {
		return StatusOwnerDead
	}
	return StatusOK
}

// acquireLocked assigns ownership to t and records it in t.heldMutexes.
// Must be called with sched.mu held.
func (m *Mutex) acquireLocked(t *Thread) {
	m.owner = t
	m.nestCount = 1
	t.heldMutexes = append(t.heldMutexes, m)
}

// Unlock releases the mutex, handing it directly to the
// highest-priority waiter if any, and restores the releasing thread's
// effective priority. Returns StatusNotOwner if the calling thread does
// not own it.
func (m *Mutex) Unlock() Status {
	s := m.sched
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.current

	if m.owner != t {
		return StatusNotOwner
	}
	if m.kind == MutexRecursive && m.nestCount > 1 {
		m.nestCount--
		return StatusOK
	}

	m.removeFromHeldLocked(t)
	t.recomputeEffectivePriority()

	if m.robust && m.inconsistent {
		// unlocking without Consistent after owner-dead leaves the mutex
		// permanently unusable; every waiter learns that now
		m.inconsistent = false
		m.notRecoverable = true
		m.owner = nil
		m.nestCount = 0
		for _, w := range m.waiters.drainAll() {
			w.waitResult = StatusNotRecoverable
			s.makeReady(w)
		}
		s.schedulePreemption()
		return StatusOK
	}

	next := m.waiters.popHighest()
	if next == nil {
		m.owner = nil
		m.nestCount = 0
		return StatusOK
	}
	m.owner = next
	m.nestCount = 1
	next.heldMutexes = append(next.heldMutexes, m)
	next.waitResult = StatusOK
	s.makeReady(next)
	s.schedulePreemption()
	return StatusOK
}

func (m *Mutex) removeFromHeldLocked(t *Thread) {
	for i, hm := range t.heldMutexes {
		if hm == m {
			t.heldMutexes = append(t.heldMutexes[:i], t.heldMutexes[i+1:]...)
			return
		}
	}
}

// Consistent marks a robust mutex's inconsistent state resolved after
// the new owner (who received StatusOwnerDead from Lock/TryLock) has
// repaired whatever invariant the dead owner may have broken
// (mutex::consistent). Without this call the mutex becomes
// permanently StatusNotRecoverable on the next Unlock.
func (m *Mutex) Consistent() Status {
	s := m.sched
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != m.owner {
		return StatusNotOwner
	}
	m.inconsistent = false
	return StatusOK
}

// ownerTerminatedLocked is called by Scheduler.terminateLocked for every
// mutex a terminating thread still owns. A non-robust mutex simply stays
// permanently locked (matching the upstream's documented caveat that
// destroying a thread holding a non-robust mutex is undefined elsewhere
// in the system); a robust mutex is released to the next waiter marked
// StatusOwnerDead, or left unowned-but-inconsistent so the next Lock
// sees it. Must be called with sched.mu held.
func (m *Mutex) ownerTerminatedLocked(t *Thread) {
	if m.owner != t {
		return
	}
	if !m.robust {
		return
	}
	m.inconsistent = true
	next := m.waiters.popHighest()
	if next == nil {
		m.owner = nil
		m.nestCount = 0
		return
	}
	m.owner = next
	m.nestCount = 1
	next.heldMutexes = append(next.heldMutexes, m)
	next.waitResult = StatusOK
	m.sched.makeReady(next)
}

// Destroy wakes every waiter with StatusPrimitiveDestroyed, the
// uniform primitive-destruction rule shared by every wait object.
func (m *Mutex) Destroy() {
	s := m.sched
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range m.waiters.drainAll() {
		w.waitResult = StatusPrimitiveDestroyed
		s.makeReady(w)
	}
	m.notRecoverable = true
}
