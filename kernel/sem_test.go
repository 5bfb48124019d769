package kernel_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jamestiotio/microospp/kernel"
)

func TestSemaphorePostWait(t *testing.T) {
	s := newTestScheduler(t)
	sem := s.NewSemaphore("basic", 2, 0)

	var done atomic.Bool
	_, st := s.NewThread("taker", kernel.PriorityNormal, 0, func(*kernel.Thread) {
		require.Equal(t, kernel.StatusOK, sem.Wait(-1))
		require.Equal(t, kernel.StatusOK, sem.TryWait())
		require.Equal(t, kernel.StatusWouldBlock, sem.TryWait())
		require.Equal(t, kernel.StatusOK, sem.Post())
		require.Equal(t, 1, sem.Count())
		done.Store(true)
	}, nil)
	require.Equal(t, kernel.StatusOK, st)
	eventually(t, time.Second, done.Load)
}

// TestSemaphoreTimedWaitExpiry: a timed wait on an un-posted semaphore
// returns timeout at or after the deadline, with the thread alive and
// the count untouched.
func TestSemaphoreTimedWaitExpiry(t *testing.T) {
	s := newTestScheduler(t)
	sem := s.NewSemaphore("expiry", 0, 0)

	var (
		got     atomic.Int64
		elapsed atomic.Int64
	)
	got.Store(-1)
	th, st := s.NewThread("timed", kernel.PriorityNormal, 0, func(*kernel.Thread) {
		start := s.Clock().Now()
		got.Store(int64(sem.Wait(100)))
		elapsed.Store(int64(s.Clock().Now() - start))
		for {
			s.Yield() // stay alive for the post-conditions
		}
	}, nil)
	require.Equal(t, kernel.StatusOK, st)

	eventually(t, 2*time.Second, func() bool { return got.Load() == int64(kernel.StatusTimeout) })
	require.GreaterOrEqual(t, elapsed.Load(), int64(100))
	require.Equal(t, 0, sem.Count())
	require.NotEqual(t, kernel.StateTerminated, th.State())
}

// TestSemaphoreNoLostWake: a post issued after the wait entered the
// wait list wakes it before any timeout.
func TestSemaphoreNoLostWake(t *testing.T) {
	s := newTestScheduler(t)
	sem := s.NewSemaphore("nolost", 0, 0)

	var got atomic.Int64
	got.Store(-1)
	th, st := s.NewThread("waiter", kernel.PriorityNormal, 0, func(*kernel.Thread) {
		got.Store(int64(sem.Wait(10_000)))
	}, nil)
	require.Equal(t, kernel.StatusOK, st)

	eventually(t, time.Second, func() bool { return th.State() == kernel.StateBlocked })
	require.Equal(t, kernel.StatusOK, sem.Post())
	eventually(t, time.Second, func() bool { return got.Load() == int64(kernel.StatusOK) })
	require.Equal(t, 0, sem.Count(), "the post went to the waiter, not the count")
}

// TestSemaphoreWakePriorityOrder: waiters wake highest effective
// priority first, FIFO within one priority.
func TestSemaphoreWakePriorityOrder(t *testing.T) {
	s := newTestScheduler(t)
	sem := s.NewSemaphore("order", 0, 0)

	var order [4]atomic.Int64
	var next atomic.Int64
	mk := func(name string, prio int, slot int) *kernel.Thread {
		th, st := s.NewThread(name, prio, 0, func(*kernel.Thread) {
			if sem.Wait(-1) == kernel.StatusOK {
				order[slot].Store(next.Add(1))
			}
		}, nil)
		require.Equal(t, kernel.StatusOK, st)
		eventually(t, time.Second, func() bool { return th.State() == kernel.StateBlocked })
		return th
	}
	mk("low", kernel.PriorityLow, 0)
	mk("norm-a", kernel.PriorityNormal, 1)
	mk("norm-b", kernel.PriorityNormal, 2)
	mk("high", kernel.PriorityHigh, 3)

	for i := 0; i < 4; i++ {
		require.Equal(t, kernel.StatusOK, sem.Post())
	}
	eventually(t, time.Second, func() bool { return next.Load() == 4 })

	require.Equal(t, int64(1), order[3].Load(), "high wakes first")
	require.Equal(t, int64(2), order[1].Load(), "normal FIFO: first in first out")
	require.Equal(t, int64(3), order[2].Load())
	require.Equal(t, int64(4), order[0].Load(), "low wakes last")
}

func TestSemaphoreOverflow(t *testing.T) {
	s := newTestScheduler(t)
	sem := s.NewSemaphore("binary", 0, 1)

	require.Equal(t, kernel.StatusOK, sem.Post())
	require.Equal(t, kernel.StatusOverflow, sem.Post())
	require.Equal(t, 1, sem.Count())
}

func TestSemaphoreDestroyWakesWaiters(t *testing.T) {
	s := newTestScheduler(t)
	sem := s.NewSemaphore("doomed", 0, 0)

	var got atomic.Int64
	got.Store(-1)
	th, st := s.NewThread("waiter", kernel.PriorityNormal, 0, func(*kernel.Thread) {
		got.Store(int64(sem.Wait(-1)))
	}, nil)
	require.Equal(t, kernel.StatusOK, st)

	eventually(t, time.Second, func() bool { return th.State() == kernel.StateBlocked })
	sem.Destroy()
	eventually(t, time.Second, func() bool {
		return got.Load() == int64(kernel.StatusPrimitiveDestroyed)
	})
}
