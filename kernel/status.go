package kernel

import "fmt"

// Status is a result code returned by every kernel operation. The kernel
// never communicates failure through Go errors wrapping stack traces or
// exceptions: every blocking and non-blocking primitive call returns a
// Status, the way the upstream µOS++ core returns result codes rather than
// throwing C++ exceptions.
type Status int

const (
	// StatusOK indicates the operation completed successfully.
	StatusOK Status = iota
	// StatusTimeout indicates a timed wait expired before the condition
	// was satisfied.
	StatusTimeout
	// StatusWouldBlock indicates a try-variant call could not complete
	// immediately.
	StatusWouldBlock
	// StatusInterrupted indicates the waiting thread was removed from its
	// wait list by Scheduler.Interrupt (or Scheduler.Suspend) before being
	// signalled or timing out.
	StatusInterrupted
	// StatusInvalidArgument indicates a caller passed a malformed argument.
	StatusInvalidArgument
	// StatusInvalidState indicates the primitive or thread was not in a
	// state that permits the requested operation.
	StatusInvalidState
	// StatusNoMemory indicates an allocation could not be satisfied.
	StatusNoMemory
	// StatusWouldDeadlock indicates a non-recursive (normal or
	// error-checking) mutex detected the calling thread already owns it.
	StatusWouldDeadlock
	// StatusOwnerDead indicates a robust mutex's previous owner terminated
	// while holding it; the new owner must call Mutex.Consistent.
	StatusOwnerDead
	// StatusNotRecoverable indicates a robust mutex was left inconsistent
	// because a previous owner-dead condition was never resolved.
	StatusNotRecoverable
	// StatusOverflow indicates a counting primitive (e.g. semaphore post)
	// would exceed its configured maximum.
	StatusOverflow
	// StatusNotOwner indicates the caller attempted to release or signal a
	// primitive it does not own.
	StatusNotOwner
	// StatusPrimitiveDestroyed indicates a waiter was woken because the
	// primitive it was blocked on was destroyed.
	StatusPrimitiveDestroyed
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusTimeout:
		return "timeout"
	case StatusWouldBlock:
		return "would-block"
	case StatusInterrupted:
		return "interrupted"
	case StatusInvalidArgument:
		return "invalid-argument"
	case StatusInvalidState:
		return "invalid-state"
	case StatusNoMemory:
		return "no-memory"
	case StatusWouldDeadlock:
		return "would-deadlock"
	case StatusOwnerDead:
		return "owner-dead"
	case StatusNotRecoverable:
		return "not-recoverable"
	case StatusOverflow:
		return "overflow"
	case StatusNotOwner:
		return "not-owner"
	case StatusPrimitiveDestroyed:
		return "primitive-destroyed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Error implements the error interface so a Status can be returned directly
// from functions that also need to compose with errors.Is/errors.As, without
// forcing every call site to check two return values.
func (s Status) Error() string { return s.String() }

// OK reports whether the status represents success.
func (s Status) OK() bool { return s == StatusOK }
