// Package facade is the kernel's C/POSIX-shaped external API:
// free functions named after the POSIX families (Sched*, Thread*,
// Mutex*, Cond*, Semaphore*, MessageQueue*, ...) instead of the
// Go-idiomatic method-on-*Type spelling kernel/ itself uses. It operates
// on a single process-wide Scheduler, the way an embedded kernel is a
// boot-time singleton.
//
// Every primitive exposes create, destroy, and its natural verbs. Each
// blocking call has a Timed variant; the mutex, semaphore, message-queue
// and memory-pool verbs also have a Try variant.
package facade

import (
	"time"

	"github.com/jamestiotio/microospp/kernel"
)

var sched *kernel.Scheduler

// Init installs the process-wide Scheduler every other function in this
// package operates on. It must be called exactly once before any other
// facade function, mirroring the upstream kernel's single boot-time
// initialization of its global scheduler instance.
func Init(opts ...kernel.Option) *kernel.Scheduler {
	sched = kernel.NewScheduler(opts...)
	return sched
}

// Scheduler returns the process-wide scheduler installed by Init.
func Scheduler() *kernel.Scheduler { return sched }

// SchedStart begins scheduling on the process-wide Scheduler and blocks
// until SchedStop (scheduler::start).
func SchedStart() kernel.Status { return sched.Start() }

// SchedStop halts the process-wide Scheduler, releasing SchedStart's
// caller.
func SchedStop() kernel.Status { return sched.Stop() }

// SchedYield gives up the remainder of the calling thread's turn,
// thread::yield / POSIX sched_yield.
func SchedYield() kernel.Status { return sched.Yield() }

// SchedLock enters a scheduler-critical section: reschedules are
// deferred until the matching SchedUnlock while interrupts keep
// running. Calls nest.
func SchedLock() { sched.Lock() }

// SchedUnlock leaves a scheduler-critical section, performing any
// deferred reschedule.
func SchedUnlock() { sched.Unlock() }

// SchedSetPreemptive toggles preemption at runtime.
func SchedSetPreemptive(enabled bool) { sched.SetPreemptive(enabled) }

// Sleep blocks the calling thread for d (sleep_for / POSIX nanosleep).
func Sleep(d time.Duration) kernel.Status {
	return sched.SleepFor(ticksFromDuration(d))
}

// SleepUntil blocks the calling thread until the absolute tick deadline
// (sleep_until / POSIX clock_nanosleep with TIMER_ABSTIME).
func SleepUntil(deadline uint64) kernel.Status { return sched.SleepUntil(deadline) }

// ticksFromDuration converts a host time.Duration to a tick count using
// the scheduler's configured tick frequency, the façade's stand-in for
// POSIX's timespec-based timed-wait calls (the kernel itself expresses
// deadlines in ticks).
func ticksFromDuration(d time.Duration) int64 {
	hz := sched.Clock().HZ()
	ticks := d.Nanoseconds() * int64(hz) / time.Second.Nanoseconds()
	if ticks < 0 {
		ticks = 0
	}
	return ticks
}

// ---- threads (pthread_*) ----

// ThreadHandle is the façade's opaque pthread_t-equivalent.
type ThreadHandle = *kernel.Thread

// ThreadNew creates and schedules a new thread, POSIX pthread_create.
func ThreadNew(name string, priority, stackBytes int, entry func(ThreadHandle), arg any) (ThreadHandle, kernel.Status) {
	return sched.NewThread(name, priority, stackBytes, entry, arg)
}

// ThreadJoin blocks until t terminates (thread::join / POSIX
// pthread_join).
func ThreadJoin(t ThreadHandle) kernel.Status { return sched.Join(t, -1) }

// ThreadTimedJoin is ThreadJoin bounded by a host time.Duration.
func ThreadTimedJoin(t ThreadHandle, d time.Duration) kernel.Status {
	return sched.Join(t, ticksFromDuration(d))
}

// ThreadSelf returns the calling thread, POSIX pthread_self.
func ThreadSelf() ThreadHandle { return sched.Current() }

// ThreadSuspend suspends t until ThreadResume (thread::suspend).
func ThreadSuspend(t ThreadHandle) kernel.Status { return sched.Suspend(t) }

// ThreadResume makes a suspended thread ready again (thread::resume).
func ThreadResume(t ThreadHandle) kernel.Status { return sched.Resume(t) }

// ThreadSetPriority changes t's assigned priority, POSIX
// pthread_setschedparam's priority field.
func ThreadSetPriority(t ThreadHandle, priority int) kernel.Status {
	return sched.SetPriority(t, priority)
}

// ThreadInterrupt forcibly wakes a blocked thread with
// StatusInterrupted (thread::interrupt).
func ThreadInterrupt(t ThreadHandle) kernel.Status { return sched.Interrupt(t) }

// ThreadKill terminates t (thread::kill).
func ThreadKill(t ThreadHandle) kernel.Status { return sched.Terminate(t) }

// ThreadFlagsRaise ORs mask into t's per-thread signal mask, waking it
// if a pending flags-wait is now satisfied; roughly POSIX pthread_kill's
// role, minus asynchronous delivery.
func ThreadFlagsRaise(t ThreadHandle, mask uint32) kernel.Status { return t.RaiseFlags(mask) }

// ThreadFlagsWait blocks the calling thread on its own signal mask.
func ThreadFlagsWait(t ThreadHandle, mask uint32, mode kernel.WaitMode, clear bool) (uint32, kernel.Status) {
	return t.WaitFlags(mask, mode, clear, -1)
}

// ThreadFlagsTimedWait is ThreadFlagsWait bounded by a host
// time.Duration.
func ThreadFlagsTimedWait(t ThreadHandle, mask uint32, mode kernel.WaitMode, clear bool, d time.Duration) (uint32, kernel.Status) {
	return t.WaitFlags(mask, mode, clear, ticksFromDuration(d))
}

// ---- mutex (pthread_mutex_*) ----

// MutexHandle is the façade's opaque pthread_mutex_t-equivalent.
type MutexHandle = *kernel.Mutex

// MutexNew creates a mutex, POSIX pthread_mutex_init. kind and robust
// mirror pthread_mutexattr_settype / pthread_mutexattr_setrobust.
func MutexNew(name string, kind kernel.MutexType, robust bool) MutexHandle {
	return sched.NewMutex(name, kind, robust)
}

// MutexLock blocks until m is acquired, POSIX pthread_mutex_lock.
func MutexLock(m MutexHandle) kernel.Status { return m.Lock(-1) }

// MutexTimedLock is MutexLock bounded by a host time.Duration, POSIX
// pthread_mutex_timedlock.
func MutexTimedLock(m MutexHandle, d time.Duration) kernel.Status {
	return m.Lock(ticksFromDuration(d))
}

// MutexTryLock attempts to acquire m without blocking, POSIX
// pthread_mutex_trylock.
func MutexTryLock(m MutexHandle) kernel.Status { return m.TryLock() }

// MutexUnlock releases m, POSIX pthread_mutex_unlock.
func MutexUnlock(m MutexHandle) kernel.Status { return m.Unlock() }

// MutexConsistent marks a robust mutex's owner-dead state resolved,
// POSIX pthread_mutex_consistent.
func MutexConsistent(m MutexHandle) kernel.Status { return m.Consistent() }

// MutexDestroy wakes every waiter with StatusPrimitiveDestroyed, POSIX
// pthread_mutex_destroy.
func MutexDestroy(m MutexHandle) { m.Destroy() }

// ---- semaphore (sem_*) ----

// SemaphoreHandle is the façade's opaque sem_t-equivalent.
type SemaphoreHandle = *kernel.Semaphore

// SemaphoreNew creates a counting semaphore, POSIX sem_init.
func SemaphoreNew(name string, initial, max int) SemaphoreHandle {
	return sched.NewSemaphore(name, initial, max)
}

// SemaphorePost increments sem, POSIX sem_post.
func SemaphorePost(sem SemaphoreHandle) kernel.Status { return sem.Post() }

// SemaphorePostFromISR is SemaphorePost's interrupt-context name.
func SemaphorePostFromISR(sem SemaphoreHandle) kernel.Status { return sem.PostFromISR() }

// SemaphoreWait blocks until sem can be decremented, POSIX sem_wait.
func SemaphoreWait(sem SemaphoreHandle) kernel.Status { return sem.Wait(-1) }

// SemaphoreTimedWait is SemaphoreWait bounded by a host time.Duration,
// POSIX sem_timedwait.
func SemaphoreTimedWait(sem SemaphoreHandle, d time.Duration) kernel.Status {
	return sem.Wait(ticksFromDuration(d))
}

// SemaphoreTryWait attempts to decrement sem without blocking, POSIX
// sem_trywait.
func SemaphoreTryWait(sem SemaphoreHandle) kernel.Status { return sem.TryWait() }

// SemaphoreDestroy wakes every waiter with StatusPrimitiveDestroyed,
// POSIX sem_destroy.
func SemaphoreDestroy(sem SemaphoreHandle) { sem.Destroy() }

// ---- condition variable (pthread_cond_*) ----

// CondHandle is the façade's opaque pthread_cond_t-equivalent.
type CondHandle = *kernel.Condvar

// CondNew creates a condition variable, POSIX pthread_cond_init.
func CondNew(name string) CondHandle { return sched.NewCondvar(name) }

// CondWait releases m and blocks until CondSignal/CondBroadcast,
// reacquiring m before returning, POSIX pthread_cond_wait.
func CondWait(cv CondHandle, m MutexHandle) kernel.Status { return cv.Wait(m, -1) }

// CondTimedWait is CondWait bounded by a host time.Duration, POSIX
// pthread_cond_timedwait.
func CondTimedWait(cv CondHandle, m MutexHandle, d time.Duration) kernel.Status {
	return cv.Wait(m, ticksFromDuration(d))
}

// CondSignal wakes one waiter, POSIX pthread_cond_signal.
func CondSignal(cv CondHandle) kernel.Status { return cv.Signal() }

// CondBroadcast wakes every waiter, POSIX pthread_cond_broadcast.
func CondBroadcast(cv CondHandle) kernel.Status { return cv.Broadcast() }

// CondDestroy wakes every waiter with StatusPrimitiveDestroyed, POSIX
// pthread_cond_destroy.
func CondDestroy(cv CondHandle) { cv.Destroy() }

// ---- event flags (no direct POSIX analogue; named after the
// rtos::event_flags verbs) ----

// EventFlagsHandle is the façade's opaque event-flags handle.
type EventFlagsHandle = *kernel.EventFlags

// EventFlagsNew creates an event-flags object.
func EventFlagsNew(name string) EventFlagsHandle { return sched.NewEventFlags(name) }

// EventFlagsRaise ORs mask into the flags, waking satisfied waiters.
func EventFlagsRaise(ef EventFlagsHandle, mask uint32) kernel.Status { return ef.Raise(mask) }

// EventFlagsRaiseFromISR is EventFlagsRaise's interrupt-context name.
func EventFlagsRaiseFromISR(ef EventFlagsHandle, mask uint32) kernel.Status {
	return ef.RaiseFromISR(mask)
}

// EventFlagsWait blocks until mask is satisfied according to mode
// (flags::wait).
func EventFlagsWait(ef EventFlagsHandle, mask uint32, mode kernel.WaitMode, clear bool) (uint32, kernel.Status) {
	return ef.Wait(mask, mode, clear, -1)
}

// EventFlagsTimedWait is EventFlagsWait bounded by a host time.Duration.
func EventFlagsTimedWait(ef EventFlagsHandle, mask uint32, mode kernel.WaitMode, clear bool, d time.Duration) (uint32, kernel.Status) {
	return ef.Wait(mask, mode, clear, ticksFromDuration(d))
}

// EventFlagsGet returns the current bits without blocking (flags::get).
func EventFlagsGet(ef EventFlagsHandle) uint32 { return ef.Get() }

// EventFlagsGetMasked returns bits selected by mask, optionally clearing
// them, the two-argument form of flags::get.
func EventFlagsGetMasked(ef EventFlagsHandle, mask uint32, clear bool) uint32 {
	return ef.GetMasked(mask, clear)
}

// EventFlagsDestroy wakes every waiter with StatusPrimitiveDestroyed.
func EventFlagsDestroy(ef EventFlagsHandle) { ef.Destroy() }

// ---- message queue (mq_*) ----

// MessageQueueHandle is the façade's opaque mqd_t-equivalent.
type MessageQueueHandle = *kernel.MessageQueue

// MessageQueueNew creates a fixed-size, fixed-capacity message queue,
// POSIX mq_open.
func MessageQueueNew(name string, capacity, msgSize int) MessageQueueHandle {
	return sched.NewMessageQueue(name, capacity, msgSize)
}

// MessageQueueSend blocks until there is room for msg at priority,
// POSIX mq_send.
func MessageQueueSend(q MessageQueueHandle, msg []byte, priority int) kernel.Status {
	return q.Send(msg, priority, -1)
}

// MessageQueueTimedSend is MessageQueueSend bounded by a host
// time.Duration, POSIX mq_timedsend.
func MessageQueueTimedSend(q MessageQueueHandle, msg []byte, priority int, d time.Duration) kernel.Status {
	return q.Send(msg, priority, ticksFromDuration(d))
}

// MessageQueueTrySend is MessageQueueSend's non-blocking variant.
func MessageQueueTrySend(q MessageQueueHandle, msg []byte, priority int) kernel.Status {
	return q.TrySend(msg, priority)
}

// MessageQueueSendFromISR is MessageQueueSend's interrupt-context name.
func MessageQueueSendFromISR(q MessageQueueHandle, msg []byte, priority int) kernel.Status {
	return q.SendFromISR(msg, priority)
}

// MessageQueueReceive blocks until a message is available, POSIX
// mq_receive.
func MessageQueueReceive(q MessageQueueHandle, buf []byte) (n, priority int, status kernel.Status) {
	return q.Receive(buf, -1)
}

// MessageQueueTimedReceive is MessageQueueReceive bounded by a host
// time.Duration, POSIX mq_timedreceive.
func MessageQueueTimedReceive(q MessageQueueHandle, buf []byte, d time.Duration) (n, priority int, status kernel.Status) {
	return q.Receive(buf, ticksFromDuration(d))
}

// MessageQueueReceiveTry is MessageQueueReceive's non-blocking variant.
func MessageQueueReceiveTry(q MessageQueueHandle, buf []byte) (n, priority int, status kernel.Status) {
	return q.ReceiveTry(buf)
}

// MessageQueueDestroy wakes every sender/receiver waiter with
// StatusPrimitiveDestroyed, POSIX mq_close.
func MessageQueueDestroy(q MessageQueueHandle) { q.Destroy() }

// ---- memory pool (no direct POSIX analogue) ----

// MemoryPoolHandle is the façade's opaque memory-pool handle.
type MemoryPoolHandle = *kernel.MemoryPool

// MemoryPoolNew creates a pool of fixed-size blocks.
func MemoryPoolNew(name string, blocks, blockSize int) MemoryPoolHandle {
	return sched.NewMemoryPool(name, blocks, blockSize)
}

// MemoryPoolAlloc blocks until a block is available
// (memory_pool::alloc).
func MemoryPoolAlloc(p MemoryPoolHandle) ([]byte, kernel.Status) { return p.Alloc(-1) }

// MemoryPoolTimedAlloc is MemoryPoolAlloc bounded by a host
// time.Duration.
func MemoryPoolTimedAlloc(p MemoryPoolHandle, d time.Duration) ([]byte, kernel.Status) {
	return p.Alloc(ticksFromDuration(d))
}

// MemoryPoolTryAlloc is MemoryPoolAlloc's non-blocking variant.
func MemoryPoolTryAlloc(p MemoryPoolHandle) ([]byte, kernel.Status) { return p.TryAlloc() }

// MemoryPoolFree returns block to p (memory_pool::free).
func MemoryPoolFree(p MemoryPoolHandle, block []byte) kernel.Status { return p.Free(block) }

// MemoryPoolDestroy wakes every waiter with StatusPrimitiveDestroyed.
func MemoryPoolDestroy(p MemoryPoolHandle) { p.Destroy() }

// ---- timer (POSIX timer_* shaped) ----

// TimerHandle is the façade's opaque timer_t-equivalent.
type TimerHandle = *kernel.Timer

// TimerNew creates a stopped software timer, POSIX timer_create.
func TimerNew(name string, attr kernel.TimerAttr, callback func(TimerHandle, any), arg any) TimerHandle {
	return sched.NewTimer(name, attr, callback, arg)
}

// TimerStart arms t to fire after delay, repeating every period
// thereafter (period == 0 for one-shot), POSIX timer_settime.
func TimerStart(t TimerHandle, delay, period time.Duration) kernel.Status {
	return t.Start(uint64(ticksFromDuration(delay)), uint64(ticksFromDuration(period)))
}

// TimerStop disarms t, POSIX timer_delete's disarming half.
func TimerStop(t TimerHandle) kernel.Status { return t.Stop() }
