// Package kernel is the RTOS core: the priority-based preemptive
// scheduler, the thread lifecycle, and the synchronization primitives
// built on its wait-list protocol (mutex with priority inheritance,
// semaphore, condition variable, event flags, message queue, memory
// pool, software timer).
//
// Everything CPU-specific is behind port.Port; on a host the kernel
// runs over port.Sim, which realizes "one thread runs at a time" by
// handing execution between goroutines. The external, POSIX-shaped
// spelling of this API lives in the facade package.
package kernel
