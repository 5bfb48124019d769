package kernel

// TimerAttr selects where a timer's callback runs when it expires:
// directly from the tick ISR (must not block) or from a dedicated
// high-priority timer thread (may block; the default).
type TimerAttr int

const (
	// TimerDispatchThread runs the callback on the scheduler's dedicated
	// "rtos-timer" thread, the default dispatch mode.
	TimerDispatchThread TimerAttr = iota
	// TimerDispatchISR runs the callback directly from the tick handler;
	// the callback must not block (the "must not block" rule for
	// interrupt context applies to it).
	TimerDispatchISR
)

// TimerState is a software timer's lifecycle: stopped or running.
type TimerState int

const (
	TimerStopped TimerState = iota
	TimerRunning
)

// Timer is a software timer: single-shot (period == 0) or periodic,
// re-armed against the global timeout list (timeoutHeap) on
// every expiry. It carries no wait list of its own — nothing blocks on a
// Timer directly — so it is a thinner state machine than the other
// primitives, just a callback plus a timeoutEntry.
type Timer struct {
	sched    *Scheduler
	name     string
	attr     TimerAttr
	callback func(*Timer, any)
	arg      any

	state    TimerState
	period   uint64 // ticks; 0 = one-shot
	deadline uint64
	entry    *timeoutEntry
}

// NewTimer creates a stopped timer. callback runs with the timer's own
// arg on every expiry; attr picks the dispatch context.
func (s *Scheduler) NewTimer(name string, attr TimerAttr, callback func(tm *Timer, arg any), arg any) *Timer {
	return &Timer{sched: s, name: name, attr: attr, callback: callback, arg: arg}
}

// Name returns the timer's name.
func (tm *Timer) Name() string { return tm.name }

// State returns the timer's current lifecycle state.
func (tm *Timer) State() TimerState {
	s := tm.sched
	s.mu.Lock()
	defer s.mu.Unlock()
	return tm.state
}

// Start arms the timer to fire delayTicks from now, then every
// periodTicks thereafter (periodTicks == 0 means one-shot;
// timer::start). Starting an already-running timer fails with
// StatusInvalidState; Stop it first to rearm with new parameters.
func (tm *Timer) Start(delayTicks, periodTicks uint64) Status {
	s := tm.sched
	s.mu.Lock()
	defer s.mu.Unlock()
	if tm.state == TimerRunning {
		return StatusInvalidState
	}
	tm.period = periodTicks
	tm.deadline = s.clock.Now() + delayTicks
	tm.state = TimerRunning
	tm.entry = s.armTimeout(&timeoutEntry{
		deadline: tm.deadline,
		kind:     timeoutKindTimer,
		timer:    tm,
	})
	return StatusOK
}

// Stop disarms the timer (timer::stop). A stopped
// one-shot timer that already fired is already stopped; calling Stop
// again returns StatusInvalidState.
func (tm *Timer) Stop() Status {
	s := tm.sched
	s.mu.Lock()
	defer s.mu.Unlock()
	if tm.state != TimerRunning {
		return StatusInvalidState
	}
	if tm.entry != nil {
		s.disarmTimeout(tm.entry)
		tm.entry = nil
	}
	tm.state = TimerStopped
	return StatusOK
}

// Destroy stops the timer; a Timer has no waiters to notify, unlike the
// other primitives (the uniform destruction rule only applies
// to primitives with a wait list).
func (tm *Timer) Destroy() { tm.Stop() }

// fireTimerLocked is expireTimeouts's handler for a timeoutKindTimer
// entry (timeout.go). It re-arms periodic timers drift-free against the
// tick (deadline += period, never now + period) and hands the callback to
// the dispatch path selected by tm.attr. Must be called with sched.mu
// held.
func (s *Scheduler) fireTimerLocked(tm *Timer, now uint64) {
	if tm.period > 0 {
		tm.deadline += tm.period
		// if the kernel fell behind by more than one period (e.g. a long
		// GC pause on the host), catch up without flooding callbacks for
		// every missed tick.
		for tm.deadline <= now {
			tm.deadline += tm.period
		}
		tm.entry = s.armTimeout(&timeoutEntry{
			deadline: tm.deadline,
			kind:     timeoutKindTimer,
			timer:    tm,
		})
	} else {
		tm.state = TimerStopped
		tm.entry = nil
	}

	switch tm.attr {
	case TimerDispatchISR:
		s.pendingISRCallbacks = append(s.pendingISRCallbacks, tm)
	default:
		s.timerQueue = append(s.timerQueue, tm)
		s.timerSem.postLocked()
	}
}

// timerDispatchLoop is the body of the scheduler's dedicated "rtos-timer"
// thread (the "dedicated high-priority timer thread"): it
// blocks on timerSem until fireTimerLocked queues work, then runs each
// callback in thread context, where it is free to block.
func (s *Scheduler) timerDispatchLoop() {
	for {
		if st := s.timerSem.Wait(-1); st != StatusOK {
			continue
		}
		s.mu.Lock()
		var tm *Timer
		if len(s.timerQueue) > 0 {
			tm = s.timerQueue[0]
			s.timerQueue = s.timerQueue[1:]
		}
		s.mu.Unlock()
		if tm != nil && tm.callback != nil {
			tm.callback(tm, tm.arg)
		}
	}
}
