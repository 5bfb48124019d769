package facade_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jamestiotio/microospp/facade"
	"github.com/jamestiotio/microospp/internal/klog"
	"github.com/jamestiotio/microospp/kernel"
)

func eventually(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	if !cond() {
		t.Fatalf("condition not met within %s", timeout)
	}
}

// TestFacade drives the POSIX-shaped surface end to end over one
// process-wide scheduler, the way an application boot sequence would.
func TestFacade(t *testing.T) {
	facade.Init(kernel.WithLogger(klog.NewNop()))
	go facade.SchedStart()
	defer facade.SchedStop()

	require.NotNil(t, facade.Scheduler())

	m := facade.MutexNew("fm", kernel.MutexNormal, false)
	cv := facade.CondNew("fcv")
	sem := facade.SemaphoreNew("fsem", 0, 0)
	q := facade.MessageQueueNew("fq", 4, 8)
	ef := facade.EventFlagsNew("fef")
	pool := facade.MemoryPoolNew("fpool", 2, 16)
	require.NotNil(t, pool)

	var phase atomic.Int64
	worker, st := facade.ThreadNew("worker", kernel.PriorityNormal, 0, func(me facade.ThreadHandle) {
		// mutex + condvar handshake with the driver thread
		require.Equal(t, kernel.StatusOK, facade.MutexLock(m))
		for phase.Load() < 1 {
			require.Equal(t, kernel.StatusOK, facade.CondWait(cv, m))
		}
		require.Equal(t, kernel.StatusOK, facade.MutexUnlock(m))

		// semaphore
		require.Equal(t, kernel.StatusOK, facade.SemaphoreWait(sem))

		// message queue round trip
		require.Equal(t, kernel.StatusOK, facade.MessageQueueSend(q, []byte("mesg-one"), 3))
		buf := make([]byte, 8)
		n, prio, rst := facade.MessageQueueReceive(q, buf)
		require.Equal(t, kernel.StatusOK, rst)
		require.Equal(t, 8, n)
		require.Equal(t, 3, prio)
		require.Equal(t, "mesg-one", string(buf))

		// event flags
		_, rst = facade.EventFlagsWait(ef, 0b1, kernel.WaitAny, true)
		require.Equal(t, kernel.StatusOK, rst)

		// thread flags
		bits, rst := facade.ThreadFlagsWait(me, 0b10, kernel.WaitAny, true)
		require.Equal(t, kernel.StatusOK, rst)
		require.Equal(t, uint32(0b10), bits)

		// memory pool
		blk, rst := facade.MemoryPoolAlloc(pool)
		require.Equal(t, kernel.StatusOK, rst)
		require.Equal(t, kernel.StatusOK, facade.MemoryPoolFree(pool, blk))

		// sleep
		require.Equal(t, kernel.StatusOK, facade.Sleep(5*time.Millisecond))
		phase.Store(2)
	}, nil)
	require.Equal(t, kernel.StatusOK, st)

	_, st = facade.ThreadNew("driver", kernel.PriorityNormal, 0, func(facade.ThreadHandle) {
		require.Equal(t, kernel.StatusOK, facade.MutexLock(m))
		phase.Store(1)
		facade.CondBroadcast(cv)
		require.Equal(t, kernel.StatusOK, facade.MutexUnlock(m))

		facade.SemaphorePost(sem)
		facade.EventFlagsRaise(ef, 0b1)
		facade.ThreadFlagsRaise(worker, 0b10)

		// join the worker to completion
		require.Equal(t, kernel.StatusOK, facade.ThreadJoin(worker))
	}, nil)
	require.Equal(t, kernel.StatusOK, st)

	eventually(t, 5*time.Second, func() bool { return phase.Load() == 2 })
	eventually(t, time.Second, func() bool {
		return worker.State() == kernel.StateDestroyed
	})
}

func TestFacadeTimerAndYield(t *testing.T) {
	facade.Init(kernel.WithLogger(klog.NewNop()), kernel.WithTickFrequencyHz(1000))
	go facade.SchedStart()
	defer facade.SchedStop()

	var fired atomic.Bool
	tm := facade.TimerNew("ft", kernel.TimerDispatchThread, func(facade.TimerHandle, any) {
		fired.Store(true)
	}, nil)
	require.Equal(t, kernel.StatusOK, facade.TimerStart(tm, 5*time.Millisecond, 0))
	eventually(t, 2*time.Second, fired.Load)

	var yielded atomic.Bool
	_, st := facade.ThreadNew("yielder", kernel.PriorityNormal, 0, func(facade.ThreadHandle) {
		facade.SchedYield()
		yielded.Store(true)
	}, nil)
	require.Equal(t, kernel.StatusOK, st)
	eventually(t, time.Second, yielded.Load)
}
