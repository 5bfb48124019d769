// Package port defines the abstract CPU/interrupt port shim the kernel
// consumes: critical sections, thread-frame creation, the
// context-switch request, idle-sleep, and tick-source startup. It is the
// one seam through which the kernel touches anything CPU-specific.
//
// Go programs cannot build a raw register frame or retarget BASEPRI, so
// unlike the upstream C++ port layer (register save/restore assembly,
// SysTick driver), Port here is realized by Sim: an in-process reference
// implementation that gets the same contract by handing off execution
// between goroutines on unbuffered channels, one at a time. A real
// microcontroller port would implement the same interface over actual
// hardware; nothing above this package needs to know the difference.
package port

// Frame is an opaque per-port representation of a thread's execution
// context, returned by ContextCreate and passed to ContextSwitchRequest.
// The kernel never inspects a Frame's contents.
type Frame any

// Port is the interface the scheduler and every primitive use to touch
// the CPU. All methods except InISR are nestable/idempotent with respect
// to reentrant calls from the same logical context; both critical-section
// mechanisms nest and are reference-counted.
type Port interface {
	// IRQCriticalEnter disables interrupts (or raises the interrupt mask
	// to the configured priority ceiling); IRQCriticalExit undoes one
	// level. Calls nest.
	IRQCriticalEnter()
	// IRQCriticalExit restores interrupts to the state they had before the
	// matching IRQCriticalEnter. Must be balanced.
	IRQCriticalExit()

	// SchedCriticalEnter prevents the scheduler from context-switching
	// while interrupts remain enabled. Calls nest.
	SchedCriticalEnter()
	// SchedCriticalExit restores scheduling to the state it had before the
	// matching SchedCriticalEnter. Must be balanced.
	SchedCriticalExit()

	// InISR reports whether the calling goroutine is executing the tick
	// (interrupt-context) handler.
	InISR() bool

	// ContextCreate builds a new thread's initial execution context: a
	// frame such that the first ContextSwitchRequest that targets it
	// causes entry to run. stackBytes is advisory (used only for the
	// thread's reported stack-size diagnostic); Go manages the goroutine's
	// real stack itself.
	ContextCreate(stackBytes int, entry func()) Frame

	// ContextSwitchRequest performs the handoff: "to" resumes and the
	// calling goroutine, running as "from", parks; it returns only once
	// "from" is resumed again by a later ContextSwitchRequest. "from" is
	// nil from the boot context or a terminating thread, and then the call
	// returns without parking. This collapses the upstream
	// two-step "pend the exception, then service it" protocol into one
	// call, since Go has no separate low-priority exception to pend.
	ContextSwitchRequest(from, to Frame)

	// SleepIdle is called by the idle thread when there is no ready work.
	SleepIdle()

	// TickSourceStart configures the periodic tick at hz and, from then
	// on, invokes onTick once per tick from a dedicated driver goroutine
	// standing in for the SysTick interrupt.
	TickSourceStart(hz int, onTick func())

	// Stop releases any resources started by TickSourceStart. Not part of
	// the upstream contract (a real SysTick never needs to be "stopped"
	// before reset) but necessary so tests can tear a Sim down cleanly.
	Stop()
}
