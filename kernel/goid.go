package kernel

import "runtime"

// goid returns the calling goroutine's runtime id, parsed from the
// first line of its stack header ("goroutine N [running]:").
//
// The kernel needs to know whether the goroutine executing a call IS
// the goroutine backing the currently-running thread: only that
// goroutine may be parked by an inline context switch, so wakeups
// arriving from any other goroutine (the tick driver, a host test, an
// ISR-style caller) must leave the switch to the running thread's next
// reschedule point instead; the waker never performs the context switch
// itself. Go exposes no supported goroutine-local
// storage, so the id comes from the stack header the way the
// ecosystem's goroutine-id packages obtain it.
func goid() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	// skip "goroutine " and accumulate digits up to the following space
	const prefix = len("goroutine ")
	var id uint64
	for i := prefix; i < n; i++ {
		c := buf[i]
		if c < '0' || c > '9' {
			break
		}
		id = id*10 + uint64(c-'0')
	}
	return id
}
