package port

import (
	"sync"
	"sync/atomic"
	"time"
)

// simFrame is Sim's concrete Frame: a goroutine parked on resume, waiting
// to be handed the CPU.
type simFrame struct {
	entry  func()
	resume chan struct{}
	once   sync.Once
}

// Sim is the reference Port implementation used by the kernel's own tests
// and by anything running on a host instead of real silicon. At most one
// simFrame's goroutine is ever past its resume-channel receive at a time,
// which is what gives callers the single-CPU illusion: ContextSwitchRequest
// is both "pend the switch" and "service it", performed inline since there
// is no separate low-priority exception to defer to.
type Sim struct {
	irqDepth   atomic.Int32
	schedDepth atomic.Int32
	inISR      atomic.Bool

	tickStop chan struct{}
	tickWG   sync.WaitGroup
}

// NewSim constructs a ready-to-use simulated port.
func NewSim() *Sim {
	return &Sim{}
}

// IRQCriticalEnter implements Port.
func (s *Sim) IRQCriticalEnter() { s.irqDepth.Add(1) }

// IRQCriticalExit implements Port.
func (s *Sim) IRQCriticalExit() { s.irqDepth.Add(-1) }

// SchedCriticalEnter implements Port.
func (s *Sim) SchedCriticalEnter() { s.schedDepth.Add(1) }

// SchedCriticalExit implements Port.
func (s *Sim) SchedCriticalExit() { s.schedDepth.Add(-1) }

// InISR implements Port. See the package doc and DESIGN.md for the
// acknowledged limitation: Sim tracks "is the dedicated tick-driver
// goroutine currently executing onTick", not true per-goroutine context,
// since Go exposes no portable goroutine-local storage. The kernel's own
// interrupt-context calls (PostFromISR, etc.) never consult InISR to decide
// behaviour; it exists for diagnostics and for the tick driver to assert
// against accidental reentrancy.
func (s *Sim) InISR() bool { return s.inISR.Load() }

// ContextCreate implements Port.
func (s *Sim) ContextCreate(_ int, entry func()) Frame {
	return &simFrame{entry: entry, resume: make(chan struct{})}
}

// ContextSwitchRequest implements Port. It signals "to" to proceed and, if
// "from" is non-nil, blocks the calling goroutine until it is resumed
// again by some later switch. "to"'s goroutine is started lazily, on its
// very first resume, the Go stand-in for "first context-restore branches
// to entry(arg)".
func (s *Sim) ContextSwitchRequest(from, to Frame) {
	if to != nil {
		tf := to.(*simFrame)
		tf.once.Do(func() {
			go func() {
				<-tf.resume
				tf.entry()
			}()
		})
		tf.resume <- struct{}{}
	}
	if from != nil {
		ff := from.(*simFrame)
		<-ff.resume
	}
}

// SleepIdle implements Port: on a host simulation there is nothing useful
// to halt, so it yields the OS thread briefly instead of spinning.
func (s *Sim) SleepIdle() {
	time.Sleep(time.Microsecond)
}

// TickSourceStart implements Port: it starts a driver goroutine that calls
// onTick once per period, standing in for the SysTick interrupt.
func (s *Sim) TickSourceStart(hz int, onTick func()) {
	if hz <= 0 {
		hz = 1000
	}
	s.tickStop = make(chan struct{})
	period := time.Second / time.Duration(hz)
	s.tickWG.Add(1)
	go func() {
		defer s.tickWG.Done()
		ticker := time.NewTicker(period)
		defer ticker.Stop()
		for {
			select {
			case <-s.tickStop:
				return
			case <-ticker.C:
				s.inISR.Store(true)
				onTick()
				s.inISR.Store(false)
			}
		}
	}()
}

// Stop implements Port.
func (s *Sim) Stop() {
	if s.tickStop != nil {
		close(s.tickStop)
		s.tickWG.Wait()
		s.tickStop = nil
	}
}
