package kernel

import (
	"sync/atomic"

	"github.com/jamestiotio/microospp/port"
)

// State is a thread's lifecycle state.
type State int

const (
	StateUndefined State = iota
	StateReady
	StateRunning
	StateSuspended
	StateBlocked
	StateTerminated
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StateUndefined:
		return "undefined"
	case StateReady:
		return "ready"
	case StateRunning:
		return "running"
	case StateSuspended:
		return "suspended"
	case StateBlocked:
		return "blocked"
	case StateTerminated:
		return "terminated"
	case StateDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

// Thread is the kernel's thread-control-block: identity, lifecycle state,
// a synthetic stack descriptor, priority pair, and the single set of
// intrusive linkage fields shared by the ready queue and every wait
// list. It is arena-style: addressed by a stable *Thread handle for its
// whole lifetime, and the wait list holds the linkage inline (a field,
// not a separately owned node), which avoids an ownership cycle between
// threads and the wait lists that reference them.
type Thread struct {
	sched *Scheduler
	id    uint64
	name  string

	state State

	stackBytes int
	frame      port.Frame
	entry      func(*Thread)
	arg        any

	// goid identifies the goroutine backing this thread's Frame, set by
	// the trampoline on first run. The scheduler compares it against the
	// calling goroutine to decide whether an inline context switch is
	// permitted (see schedulePreemption).
	goid uint64

	assignedPriority  int
	effectivePriority int
	// heldMutexes is the set of mutexes (protocol inherit) this thread
	// currently owns, needed to restore effectivePriority on release to
	// the maximum of the assigned priority and the contributions of any
	// other mutexes still held.
	heldMutexes []*Mutex

	link linkage // ready-queue OR wait-list linkage, never both

	waitList   *priorityList // the list link is currently linked into, if any
	waitResult Status        // result stamped by whoever removes this thread from waitList

	timeoutEntry *timeoutEntry // at most one armed timeout node

	interruptRequested bool

	joinWait  priorityList // threads blocked in Join, woken on termination
	exitValue Status       // reason stamped by terminateLocked

	// userData is the single per-thread user storage slot.
	userData any

	// poolSlot, when non-nil, is released back to the owning thread pool
	// the joiner completes the terminated thread's destruction.
	poolSlot func()

	// signalMask is the thread's own event-flags bits, the per-thread
	// signal variant of EventFlags addressed at a specific thread rather
	// than a shared object. flagsList only
	// ever holds this thread, blocked in WaitFlags; flagsWant carries the
	// pending wait's predicate.
	signalMask uint32
	flagsList  priorityList
	flagsWant  struct {
		mask   uint32
		mode   WaitMode
		clear  bool
		result uint32
	}

	stats ThreadStats
}

// ThreadStats holds the optional per-thread counters enabled by
// the statistics_thread_cpu_cycles / statistics_context_switches
// configuration options.
type ThreadStats struct {
	ContextSwitches atomic.Uint64
	CPUCycles       atomic.Uint64
}

// ID returns the thread's stable identifier.
func (t *Thread) ID() uint64 { return t.id }

// Name returns the thread's name.
func (t *Thread) Name() string { return t.name }

// State returns the thread's current lifecycle state.
func (t *Thread) State() State {
	t.sched.mu.Lock()
	defer t.sched.mu.Unlock()
	return t.state
}

// AssignedPriority returns the thread's base (non-inherited) priority.
func (t *Thread) AssignedPriority() int {
	t.sched.mu.Lock()
	defer t.sched.mu.Unlock()
	return t.assignedPriority
}

// EffectivePriority returns the thread's current scheduling priority,
// which may be inflated by priority inheritance.
func (t *Thread) EffectivePriority() int {
	t.sched.mu.Lock()
	defer t.sched.mu.Unlock()
	return t.effectivePriority
}

// UserData returns the thread's single user-data slot.
func (t *Thread) UserData() any {
	t.sched.mu.Lock()
	defer t.sched.mu.Unlock()
	return t.userData
}

// SetUserData stores v in the thread's single user-data slot.
func (t *Thread) SetUserData(v any) {
	t.sched.mu.Lock()
	defer t.sched.mu.Unlock()
	t.userData = v
}

// Stats returns the thread's optional cpu-cycle / context-switch
// counters. The counters are atomics; the pointer stays valid for the
// thread's lifetime.
func (t *Thread) Stats() *ThreadStats { return &t.stats }

// Arg returns the argument the thread was created with.
func (t *Thread) Arg() any { return t.arg }

// ExitStatus reports why a terminated thread exited. It is only
// meaningful once State returns StateTerminated or StateDestroyed.
func (t *Thread) ExitStatus() Status {
	t.sched.mu.Lock()
	defer t.sched.mu.Unlock()
	return t.exitValue
}

// recomputeEffectivePriority restores effective priority to
// max(assigned, held-mutex ceiling contributions), the release-time
// restoration rule. Must be called with sched.mu held.
func (t *Thread) recomputeEffectivePriority() {
	p := t.assignedPriority
	for _, m := range t.heldMutexes {
		if c := m.inheritedCeiling(); c > p {
			p = c
		}
	}
	if p == t.effectivePriority {
		return
	}
	t.effectivePriority = p
	if t.link.list != nil {
		t.link.list.reprioritize(t, p)
	}
}

// boostEffectivePriority raises t's effective priority to at least p, the
// "inherit" half of priority inheritance. Must be called
// with sched.mu held.
func (t *Thread) boostEffectivePriority(p int) {
	if p <= t.effectivePriority {
		return
	}
	t.effectivePriority = p
	if t.link.list != nil {
		t.link.list.reprioritize(t, p)
	}
}
