package kernel

// Thread flags: the per-thread signal mask of the thread data
// model. Unlike a shared EventFlags object, these bits are addressed at
// one specific thread, and only that thread may wait on them; any
// context (another thread, an ISR) may raise them. The predicate model
// (mask, any/all, optional clear) is the same as EventFlags.

// RaiseFlags ORs mask into t's signal mask and wakes t if it is blocked
// in WaitFlags with a now-satisfied predicate. Safe from interrupt
// context.
func (t *Thread) RaiseFlags(mask uint32) Status {
	s := t.sched
	s.mu.Lock()
	defer s.mu.Unlock()
	t.signalMask |= mask
	if t.state == StateBlocked && t.waitList == &t.flagsList {
		if flagsSatisfied(t.signalMask, t.flagsWant.mask, t.flagsWant.mode) {
			t.flagsWant.result = t.signalMask & t.flagsWant.mask
			if t.flagsWant.clear {
				t.signalMask &^= t.flagsWant.mask
			}
			t.flagsList.remove(t)
			t.waitResult = StatusOK
			s.makeReady(t)
			s.schedulePreemption()
		}
	}
	return StatusOK
}

// RaiseFlagsFromISR is RaiseFlags' interrupt-context name.
func (t *Thread) RaiseFlagsFromISR(mask uint32) Status { return t.RaiseFlags(mask) }

// WaitFlags blocks the calling thread (which must be t itself) until its
// signal mask satisfies mask according to mode, or timeoutTicks elapses
// (negative waits indefinitely). With clear set, the matched bits are
// consumed atomically with the wake.
func (t *Thread) WaitFlags(mask uint32, mode WaitMode, clear bool, timeoutTicks int64) (uint32, Status) {
	s := t.sched
	s.mu.Lock()
	if t != s.current {
		s.mu.Unlock()
		return 0, StatusInvalidState
	}
	if flagsSatisfied(t.signalMask, mask, mode) {
		result := t.signalMask & mask
		if clear {
			t.signalMask &^= mask
		}
		s.mu.Unlock()
		return result, StatusOK
	}
	t.flagsWant.mask = mask
	t.flagsWant.mode = mode
	t.flagsWant.clear = clear
	st := s.blockCurrent(&t.flagsList, t.effectivePriority, timeoutTicks)
	result := t.flagsWant.result
	t.flagsWant.result = 0
	s.mu.Unlock()
	if st != StatusOK {
		return 0, st
	}
	return result, StatusOK
}

// TryWaitFlags is WaitFlags' non-blocking variant.
func (t *Thread) TryWaitFlags(mask uint32, mode WaitMode, clear bool) (uint32, Status) {
	s := t.sched
	s.mu.Lock()
	defer s.mu.Unlock()
	if !flagsSatisfied(t.signalMask, mask, mode) {
		return 0, StatusWouldBlock
	}
	result := t.signalMask & mask
	if clear {
		t.signalMask &^= mask
	}
	return result, StatusOK
}

// Flags returns t's current signal-mask bits without blocking.
func (t *Thread) Flags() uint32 {
	s := t.sched
	s.mu.Lock()
	defer s.mu.Unlock()
	return t.signalMask
}

func flagsSatisfied(bits, mask uint32, mode WaitMode) bool {
	if mode == WaitAll {
		return bits&mask == mask
	}
	return bits&mask != 0
}
