package kernel

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jamestiotio/microospp/internal/klog"
	"github.com/jamestiotio/microospp/memres"
	"github.com/jamestiotio/microospp/port"
)

// Scheduler is the kernel: one priority-bucketed ready queue, one global
// timeout list, and a single lock (the IRQ-critical and
// scheduler-critical sections collapse to one mutex here, since Go gives
// us no cheaper way to keep the ready queue and timeout heap consistent
// across goroutines). Every exported method takes this lock for the
// duration of its bookkeeping and releases it only across the one
// operation that actually hands the CPU to another thread
// (Port.ContextSwitchRequest, via switchTo/blockCurrent).
type Scheduler struct {
	mu sync.Mutex

	cfg         Config
	port        port.Port
	clock       *Clock
	memResource memres.Resource
	logger      *klog.Logger

	ready    priorityList
	timeouts timeoutHeap
	sleepers priorityList

	threads  map[uint64]*Thread
	poolLive map[string]int
	nextID   uint64
	seq      uint64

	current *Thread
	// currentAtomic shadows current for lock-free readers: the assertion
	// path reads it to attach thread identity to a trap, and it must not
	// take s.mu (the trap may fire while s.mu is already held).
	currentAtomic atomic.Pointer[Thread]

	idle    *Thread
	running bool
	stopped chan struct{}

	// lockDepth is the scheduler-critical nesting count: while > 0,
	// wakeups mark threads ready but no
	// inline context switch happens until the matching Unlock.
	lockDepth int

	// lastSwitchNS timestamps the most recent switch-in, charging the
	// interval to the outgoing thread's CPUCycles counter when the
	// statistics_thread_cpu_cycles option is enabled.
	lastSwitchNS int64

	// timerThread, timerQueue and timerSem implement the dedicated
	// high-priority timer-thread dispatch mode: fireTimerLocked
	// appends an expired thread-dispatched Timer to timerQueue and posts
	// timerSem, which wakes timerDispatchLoop running on timerThread.
	timerThread *Thread
	timerQueue  []*Timer
	timerSem    *Semaphore

	// pendingISRCallbacks holds expired attr=isr Timers collected by
	// fireTimerLocked under s.mu; onTick runs them after releasing the
	// lock, since a Timer callback must never run while the scheduler is
	// mid-reschedule-decision.
	pendingISRCallbacks []*Timer
}

// NewScheduler builds a Scheduler configured by opts, with its idle
// thread created but not yet running; call Start to begin scheduling.
func NewScheduler(opts ...Option) *Scheduler {
	cfg := defaultConfig()
	for _, o := range opts {
		o(cfg)
	}
	p := cfg.port
	if p == nil {
		p = port.NewSim()
	}
	s := &Scheduler{
		cfg:         *cfg,
		port:        p,
		clock:       newClock(cfg.tickFrequencyHz),
		memResource: cfg.resolveMemoryResource(),
		logger:      cfg.logger,
		threads:     make(map[uint64]*Thread),
		poolLive:    make(map[string]int),
		stopped:     make(chan struct{}),
	}

	idlePriority := PriorityIdle
	if cfg.idleBelowIdlePriority {
		idlePriority = PriorityNone
	}
	stack := cfg.stackSizes["idle"]
	if stack <= 0 {
		stack = 1024
	}
	idle := s.newThreadLocked("idle", idlePriority, stack, nil, nil)
	idle.frame = p.ContextCreate(stack, func() { s.idleLoop(idle) })
	s.idle = idle

	s.timerSem = s.NewSemaphore("rtos-timer-queue", 0, 0)
	timerStack := cfg.stackSizes["timer"]
	if timerStack <= 0 {
		timerStack = 2048
	}
	timerThread := s.newThreadLocked("rtos-timer", PriorityRealtime, timerStack,
		func(*Thread) { s.timerDispatchLoop() }, nil)
	timerThread.frame = p.ContextCreate(timerStack, func() { s.threadTrampoline(timerThread) })
	s.makeReady(timerThread)
	s.timerThread = timerThread

	klog.SetCurrentThreadFunc(func() *klog.ThreadInfo {
		t := s.currentAtomic.Load()
		if t == nil {
			return nil
		}
		return &klog.ThreadInfo{Name: t.name, ID: t.id}
	})

	return s
}

// newThreadLocked allocates a Thread and registers it, without touching
// the ready queue. Safe to call during construction (no goroutines yet)
// or with s.mu held.
func (s *Scheduler) newThreadLocked(name string, priority, stackBytes int, entry func(*Thread), arg any) *Thread {
	s.nextID++
	t := &Thread{
		sched:             s,
		id:                s.nextID,
		name:              name,
		assignedPriority:  priority,
		effectivePriority: priority,
		stackBytes:        stackBytes,
		entry:             entry,
		arg:               arg,
		state:             StateReady,
	}
	s.threads[t.id] = t
	return t
}

// NewThread creates a new thread at priority, runnable once entry is
// scheduled. priority must be in (PriorityNone, PriorityISR). A
// stackBytes of zero or below picks the configured "default" stack
// size. When a "thread" object pool was
// configured (WithPoolSize), creation beyond the pool's capacity fails
// with StatusNoMemory; the slot is returned when the thread is joined.
func (s *Scheduler) NewThread(name string, priority, stackBytes int, entry func(*Thread), arg any) (*Thread, Status) {
	if entry == nil {
		return nil, StatusInvalidArgument
	}
	if priority <= PriorityNone || priority >= PriorityISR {
		return nil, StatusInvalidArgument
	}
	s.mu.Lock()
	if stackBytes <= 0 {
		stackBytes = s.cfg.stackSizes["default"]
		if stackBytes <= 0 {
			stackBytes = 4096
		}
	}
	if limit := s.cfg.poolSizes["thread"]; limit > 0 {
		if s.poolLive["thread"] >= limit {
			s.mu.Unlock()
			return nil, StatusNoMemory
		}
		s.poolLive["thread"]++
	}
	t := s.newThreadLocked(name, priority, stackBytes, entry, arg)
	if s.cfg.poolSizes["thread"] > 0 {
		t.poolSlot = func() { s.poolLive["thread"]-- }
	}
	t.frame = s.port.ContextCreate(stackBytes, func() { s.threadTrampoline(t) })
	s.makeReady(t)
	s.schedulePreemption()
	s.mu.Unlock()

	klog.Info("sched").Str("thread", name).Uint64("id", t.id).Int("priority", priority).
		Log(s.logger, "thread created")
	return t, StatusOK
}

// Start begins scheduling: the idle thread (or any already-ready thread)
// is handed the CPU, and Start blocks until Stop is called. It must be
// called from outside any kernel thread (the "main"/boot context).
func (s *Scheduler) Start() Status {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return StatusInvalidState
	}
	s.running = true
	s.port.TickSourceStart(s.cfg.tickFrequencyHz, s.onTick)
	next := s.pickNext()
	s.current = next
	s.currentAtomic.Store(next)
	next.state = StateRunning
	s.lastSwitchNS = time.Now().UnixNano()
	s.mu.Unlock()

	// from == nil: the boot caller has no saved Frame of its own, so this
	// hands off to next and returns immediately rather than parking.
	s.port.ContextSwitchRequest(nil, next.frame)
	<-s.stopped
	return StatusOK
}

// Stop halts the tick source and releases Start's caller. Threads left
// parked mid-wait are not unwound (there is no safe way to force an
// arbitrary blocked goroutine to unwind); Stop is meant for host test
// teardown, not a feature the upstream embedded kernel itself exposes.
func (s *Scheduler) Stop() Status {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return StatusInvalidState
	}
	s.running = false
	s.mu.Unlock()
	s.port.Stop()
	close(s.stopped)
	return StatusOK
}

// Current returns the currently running thread.
func (s *Scheduler) Current() *Thread {
	return s.currentAtomic.Load()
}

// ThreadByID looks up a thread registered with this scheduler.
func (s *Scheduler) ThreadByID(id uint64) (*Thread, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.threads[id]
	return t, ok
}

// Clock returns the scheduler's tick counter.
func (s *Scheduler) Clock() *Clock { return s.clock }

// MemoryResource returns the default memory resource resolved from
// configuration.
func (s *Scheduler) MemoryResource() memres.Resource { return s.memResource }

// Logger returns the structured logger configured for this scheduler.
func (s *Scheduler) Logger() *klog.Logger { return s.logger }

// Preemptive reports whether the scheduler currently preempts a running
// thread for a higher-priority one that becomes ready.
func (s *Scheduler) Preemptive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.preemptive
}

// SetPreemptive toggles preemption at runtime. While false,
// higher-priority wakeups mark threads ready but the switch is deferred
// until preemption is re-enabled (or the running thread blocks/yields
// on its own).
func (s *Scheduler) SetPreemptive(enabled bool) {
	s.mu.Lock()
	s.cfg.preemptive = enabled
	if enabled {
		s.schedulePreemption()
	}
	s.mu.Unlock()
}

// Lock enters a scheduler-critical section: reschedules are refused
// until the matching Unlock, while interrupts (the tick) keep running.
// Calls nest.
func (s *Scheduler) Lock() {
	s.mu.Lock()
	s.lockDepth++
	s.port.SchedCriticalEnter()
	s.mu.Unlock()
}

// Unlock leaves a scheduler-critical section, performing any reschedule
// deferred while it was held. Unbalanced calls trap.
func (s *Scheduler) Unlock() {
	s.mu.Lock()
	if s.lockDepth <= 0 {
		s.mu.Unlock()
		klog.Assert("scheduler unlock without matching lock")
	}
	s.lockDepth--
	s.port.SchedCriticalExit()
	if s.lockDepth == 0 {
		s.schedulePreemption()
	}
	s.mu.Unlock()
}

// Yield gives up the remainder of the current thread's turn to another
// ready thread of the same or higher priority (thread::yield). It must
// be called from thread context.
func (s *Scheduler) Yield() Status {
	s.mu.Lock()
	t := s.current
	if t == nil || t.goid != goid() {
		s.mu.Unlock()
		klog.Assert("yield outside thread context")
	}
	if s.ready.count == 0 {
		s.mu.Unlock()
		return StatusOK
	}
	s.ready.push(t, t.effectivePriority)
	t.state = StateReady
	next := s.ready.popHighest()
	if next == t {
		// only t itself was ready; continue running without a real
		// context switch; switching a Frame to itself would deadlock
		// Sim (the goroutine isn't parked on its own resume channel).
		t.state = StateRunning
		s.mu.Unlock()
		return StatusOK
	}
	s.switchTo(next)
	s.mu.Unlock()
	return StatusOK
}

// SleepFor blocks the calling thread for the given number of ticks
// (sleep_for). It returns StatusOK after the
// full interval, or StatusInterrupted if Interrupt cut the sleep short.
func (s *Scheduler) SleepFor(ticks int64) Status {
	if ticks <= 0 {
		return s.Yield()
	}
	s.mu.Lock()
	st := s.blockCurrent(&s.sleepers, s.current.effectivePriority, ticks)
	s.mu.Unlock()
	// a sleeper's natural wake IS the timeout firing
	if st == StatusTimeout {
		return StatusOK
	}
	return st
}

// SleepUntil blocks the calling thread until the absolute tick deadline
// (sleep_until). A deadline already in the past yields once.
func (s *Scheduler) SleepUntil(deadline uint64) Status {
	now := s.clock.Now()
	if deadline <= now {
		return s.Yield()
	}
	return s.SleepFor(int64(deadline - now))
}

// Suspend removes t from scheduling until a matching Resume. Suspending
// the calling thread blocks it here. Suspending a blocked thread
// removes it from its wait list (the
// interrupted wait surfaces StatusInterrupted once the thread is
// resumed). A thread cannot suspend another thread that is currently
// running: the port has no way to stop a foreign context mid-flight, so
// that returns StatusInvalidState.
func (s *Scheduler) Suspend(t *Thread) Status {
	s.mu.Lock()
	if t.state == StateTerminated || t.state == StateDestroyed {
		s.mu.Unlock()
		return StatusInvalidState
	}
	if t == s.current {
		if t.goid != goid() {
			s.mu.Unlock()
			return StatusInvalidState
		}
		t.state = StateSuspended
		next := s.pickNext()
		s.switchTo(next)
		s.mu.Unlock()
		return StatusOK
	}
	if t.timeoutEntry != nil {
		s.disarmTimeout(t.timeoutEntry)
		t.timeoutEntry = nil
	}
	if t.link.list != nil {
		t.link.list.remove(t)
	}
	if t.waitList != nil {
		t.waitList = nil
		t.waitResult = StatusInterrupted
	}
	t.state = StateSuspended
	s.mu.Unlock()
	return StatusOK
}

// Resume makes a suspended thread ready again (thread::resume). Safe
// from interrupt context (it is part of the "from ISR" call subset):
// the actual switch to a higher-priority
// resumed thread happens at the running thread's next reschedule point.
func (s *Scheduler) Resume(t *Thread) Status {
	s.mu.Lock()
	if t.state != StateSuspended {
		s.mu.Unlock()
		return StatusInvalidState
	}
	s.makeReady(t)
	s.schedulePreemption()
	s.mu.Unlock()
	return StatusOK
}

// ResumeFromISR is Resume's interrupt-context name.
func (s *Scheduler) ResumeFromISR(t *Thread) Status { return s.Resume(t) }

// SetPriority changes a thread's assigned (base) priority. Effective
// priority is recomputed from the new base and any mutex ceilings the
// thread still holds, so it never drops below the assigned level.
func (s *Scheduler) SetPriority(t *Thread, priority int) Status {
	if priority <= PriorityNone || priority >= PriorityISR {
		return StatusInvalidArgument
	}
	s.mu.Lock()
	t.assignedPriority = priority
	t.recomputeEffectivePriority()
	s.schedulePreemption()
	s.mu.Unlock()
	return StatusOK
}

// Interrupt requests cancellation of t's current or next wait
// (thread::interrupt). A blocked thread is removed from its wait
// list immediately with StatusInterrupted; a running or ready thread
// has an interrupt-request flag set instead, consumed by its next
// blocking call (which then returns StatusInterrupted without waiting).
func (s *Scheduler) Interrupt(t *Thread) Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch t.state {
	case StateBlocked:
		if t.timeoutEntry != nil {
			s.disarmTimeout(t.timeoutEntry)
			t.timeoutEntry = nil
		}
		if t.link.list != nil {
			t.link.list.remove(t)
		}
		t.waitList = nil
		t.waitResult = StatusInterrupted
		s.makeReady(t)
		s.schedulePreemption()
		return StatusOK
	case StateRunning, StateReady:
		t.interruptRequested = true
		return StatusOK
	default:
		return StatusInvalidState
	}
}

// Join blocks the calling thread until t terminates, or timeoutTicks
// elapses if >= 0 (thread::join). A successful join
// also destroys t: its exit status remains readable, its registration
// is dropped, and - if the thread was pool-allocated - the pool slot is
// returned.
func (s *Scheduler) Join(t *Thread, timeoutTicks int64) Status {
	s.mu.Lock()
	if t == s.current {
		s.mu.Unlock()
		return StatusInvalidArgument
	}
	if t.state == StateTerminated {
		s.destroyLocked(t)
		s.mu.Unlock()
		return StatusOK
	}
	if t.state == StateDestroyed {
		s.mu.Unlock()
		return StatusOK
	}
	st := s.blockCurrent(&t.joinWait, s.current.effectivePriority, timeoutTicks)
	if st == StatusOK && t.state == StateTerminated {
		s.destroyLocked(t)
	}
	s.mu.Unlock()
	return st
}

// destroyLocked completes the terminated-to-destroyed transition. Must
// be called with s.mu held.
func (s *Scheduler) destroyLocked(t *Thread) {
	if t.state != StateTerminated {
		return
	}
	t.state = StateDestroyed
	delete(s.threads, t.id)
	if t.poolSlot != nil {
		t.poolSlot()
		t.poolSlot = nil
	}
}

// Terminate ends t's execution (thread::kill); a natural return from a
// thread's entry function lands here too. Terminating the calling thread never
// returns to its caller (it abandons the thread's goroutine via
// runtime.Goexit after handing the CPU to the next thread), matching the
// upstream semantics that a thread cannot resume after killing itself.
// Terminating another thread that is currently running is not possible
// on this port (a foreign context cannot be stopped mid-flight) and
// returns StatusInvalidState.
func (s *Scheduler) Terminate(t *Thread) Status {
	s.mu.Lock()
	if t.state == StateTerminated || t.state == StateDestroyed {
		s.mu.Unlock()
		return StatusInvalidState
	}
	self := t == s.current
	if self && t.goid != goid() {
		s.mu.Unlock()
		return StatusInvalidState
	}
	s.terminateLocked(t, StatusOK)
	if !self {
		s.schedulePreemption()
		s.mu.Unlock()
		return StatusOK
	}
	next := s.pickNext()
	s.current = next
	s.currentAtomic.Store(next)
	next.state = StateRunning
	s.chargeCPULocked(t)
	if s.cfg.statsContextSwitches {
		next.stats.ContextSwitches.Add(1)
	}
	s.mu.Unlock()
	s.port.ContextSwitchRequest(nil, next.frame)
	runtime.Goexit()
	panic("unreachable")
}

// threadTrampoline is the goroutine body every user thread's Frame runs,
// the Go stand-in for "first context-restore branches to entry(arg)"
// (the Port.ContextCreate contract). A natural return from
// entry is the "return from entry" transition of the lifecycle
// table: the thread terminates itself exactly as if it had called
// Terminate on its own handle.
func (s *Scheduler) threadTrampoline(t *Thread) {
	s.mu.Lock()
	t.goid = goid()
	s.mu.Unlock()
	t.entry(t)
	s.Terminate(t)
}

// pickNext pops the highest-priority ready thread, falling back to idle.
// Must be called with s.mu held.
func (s *Scheduler) pickNext() *Thread {
	if t := s.ready.popHighest(); t != nil {
		return t
	}
	return s.idle
}

// makeReady transitions t to Ready and enqueues it at its effective
// priority. Must be called with s.mu held. It does not itself attempt a
// preemption check: callers follow up with schedulePreemption, which is
// a no-op unless the calling goroutine is the running thread's own (see
// that method).
func (s *Scheduler) makeReady(t *Thread) {
	t.waitList = nil
	t.state = StateReady
	s.ready.push(t, t.effectivePriority)
}

// schedulePreemption switches the CPU away from s.current to a strictly
// higher-priority ready thread, if preemption is enabled and one exists.
// Must be called with s.mu held. Only the goroutine that IS s.current
// may safely park it, so when any other goroutine (the tick driver, an
// ISR-style waker, the host) gets here the switch is left pending: the
// ready-queue state it would have acted on is re-examined at the running
// thread's next reschedule point, the classic deferred need_resched
// behaviour.
func (s *Scheduler) schedulePreemption() {
	if !s.cfg.preemptive || s.lockDepth > 0 {
		return
	}
	if s.current == nil || s.current == s.idle {
		return
	}
	if s.current.goid == 0 || s.current.goid != goid() {
		return
	}
	top, ok := s.ready.highestPriority()
	if !ok || top <= s.current.effectivePriority {
		return
	}
	prev := s.current
	prev.state = StateReady
	s.ready.push(prev, prev.effectivePriority)
	next := s.ready.popHighest() // top > prev's priority, so next != prev
	s.switchTo(next)
}

// switchTo hands the CPU to next. Must be called with s.mu held; it
// releases the lock for the duration of the handoff (Port.
// ContextSwitchRequest parks the calling goroutine until it is resumed
// by some later switch) and reacquires it before returning.
func (s *Scheduler) switchTo(next *Thread) {
	prev := s.current
	s.chargeCPULocked(prev)
	s.current = next
	s.currentAtomic.Store(next)
	next.state = StateRunning
	if s.cfg.statsContextSwitches {
		next.stats.ContextSwitches.Add(1)
	}
	var fromFrame port.Frame
	if prev != nil {
		fromFrame = prev.frame
	}
	s.mu.Unlock()
	s.port.ContextSwitchRequest(fromFrame, next.frame)
	s.mu.Lock()
}

// chargeCPULocked attributes the interval since the last switch-in to
// the outgoing thread's CPUCycles counter (nanoseconds standing in for
// cycles on a host port). Must be called with s.mu held.
func (s *Scheduler) chargeCPULocked(prev *Thread) {
	if !s.cfg.statsCPUCycles {
		return
	}
	now := time.Now().UnixNano()
	if prev != nil && s.lastSwitchNS != 0 {
		prev.stats.CPUCycles.Add(uint64(now - s.lastSwitchNS))
	}
	s.lastSwitchNS = now
}

// blockCurrent parks the calling thread on wl at priority prio, arming a
// timeout if timeoutTicks >= 0 (a negative value waits indefinitely).
// Must be called with s.mu held, and returns with s.mu held. The return
// value is whatever Status the thread was woken with (set by a signal,
// a timeout, Interrupt, or a primitive's Destroy). Blocking from
// anywhere but the running thread's own context is a contract violation
// and traps.
func (s *Scheduler) blockCurrent(wl *priorityList, prio int, timeoutTicks int64) Status {
	t := s.current
	if s.port.InISR() || t == nil || t.goid != goid() {
		s.mu.Unlock()
		klog.Assert("blocking wait attempted outside thread context")
	}
	if t.interruptRequested {
		// a pending Interrupt delivered while the thread was running is
		// consumed by its next blocking call
		t.interruptRequested = false
		return StatusInterrupted
	}
	wl.push(t, prio)
	t.waitList = wl
	t.state = StateBlocked
	if timeoutTicks >= 0 {
		e := &timeoutEntry{
			deadline: s.clock.Now() + uint64(timeoutTicks),
			kind:     timeoutKindThread,
			thread:   t,
			reason:   StatusTimeout,
		}
		t.timeoutEntry = s.armTimeout(e)
	}
	next := s.pickNext()
	s.switchTo(next)
	if t.timeoutEntry != nil {
		s.disarmTimeout(t.timeoutEntry)
		t.timeoutEntry = nil
	}
	return t.waitResult
}

// terminateLocked marks t terminated, releases its held mutexes
// (triggering robust-mutex owner-dead bookkeeping), disarms any timeout,
// unlinks it from whatever list holds it, and wakes every joiner. Must
// be called with s.mu held.
func (s *Scheduler) terminateLocked(t *Thread, reason Status) {
	if t.link.list != nil {
		t.link.list.remove(t)
	}
	if t.timeoutEntry != nil {
		s.disarmTimeout(t.timeoutEntry)
		t.timeoutEntry = nil
	}
	for _, m := range t.heldMutexes {
		m.ownerTerminatedLocked(t)
	}
	t.heldMutexes = nil
	t.state = StateTerminated
	t.exitValue = reason
	for _, j := range t.joinWait.drainAll() {
		j.waitResult = StatusOK
		s.makeReady(j)
	}
}

// onTick is the tick-source callback, the kernel's tick handler: it
// advances the clock and expires due timeouts. It runs on the port's
// dedicated tick-driver goroutine, concurrently with whichever thread
// goroutine currently holds the CPU; threads it makes ready only
// actually preempt once the running thread next reaches a reschedule
// point (see schedulePreemption).
func (s *Scheduler) onTick() {
	s.mu.Lock()
	now := s.clock.advance()
	s.expireTimeouts(now)
	fire := s.pendingISRCallbacks
	s.pendingISRCallbacks = nil
	s.mu.Unlock()
	for _, tm := range fire {
		tm.callback(tm, tm.arg)
	}
}

// idleLoop is the idle thread's body, run whenever the ready queue is
// empty. It never calls user code; unlike a
// user thread's entry it re-checks the ready queue itself in a loop
// rather than relying on being preempted, since (per schedulePreemption's
// doc comment) nothing can force it off the CPU from another goroutine.
func (s *Scheduler) idleLoop(self *Thread) {
	s.mu.Lock()
	self.goid = goid()
	s.mu.Unlock()
	for {
		s.mu.Lock()
		if s.ready.count > 0 {
			next := s.ready.popHighest()
			self.state = StateReady
			s.switchTo(next)
			s.mu.Unlock()
			continue
		}
		s.mu.Unlock()
		s.port.SleepIdle()
	}
}
