package kernel_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jamestiotio/microospp/kernel"
)

func TestTimerOneShot(t *testing.T) {
	s := newTestScheduler(t)

	var fired atomic.Int64
	tm := s.NewTimer("oneshot", kernel.TimerDispatchThread, func(*kernel.Timer, any) {
		fired.Add(1)
	}, nil)
	require.Equal(t, kernel.TimerStopped, tm.State())

	require.Equal(t, kernel.StatusOK, tm.Start(10, 0))
	require.Equal(t, kernel.TimerRunning, tm.State())
	// starting a running timer is a state error
	require.Equal(t, kernel.StatusInvalidState, tm.Start(10, 0))

	eventually(t, 2*time.Second, func() bool { return fired.Load() == 1 })
	eventually(t, time.Second, func() bool { return tm.State() == kernel.TimerStopped })

	// well after expiry, still exactly one firing
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, int64(1), fired.Load())
	// stopping an already-expired one-shot is a state error
	require.Equal(t, kernel.StatusInvalidState, tm.Stop())
}

func TestTimerPeriodic(t *testing.T) {
	s := newTestScheduler(t)

	var fired atomic.Int64
	tm := s.NewTimer("periodic", kernel.TimerDispatchThread, func(*kernel.Timer, any) {
		fired.Add(1)
	}, nil)
	require.Equal(t, kernel.StatusOK, tm.Start(5, 10))

	eventually(t, 2*time.Second, func() bool { return fired.Load() >= 3 })
	require.Equal(t, kernel.StatusOK, tm.Stop())
	require.Equal(t, kernel.TimerStopped, tm.State())

	// let any already-dispatched callback drain before sampling
	time.Sleep(20 * time.Millisecond)
	n := fired.Load()
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, n, fired.Load(), "a stopped timer must not fire again")
}

func TestTimerISRDispatch(t *testing.T) {
	s := newTestScheduler(t)

	var fired atomic.Int64
	var arg atomic.Value
	tm := s.NewTimer("isr", kernel.TimerDispatchISR, func(_ *kernel.Timer, a any) {
		fired.Add(1)
		arg.Store(a)
	}, "payload")
	require.Equal(t, kernel.StatusOK, tm.Start(5, 0))

	eventually(t, 2*time.Second, func() bool { return fired.Load() == 1 })
	require.Equal(t, "payload", arg.Load())
}

// TestTimerCallbackMayBlock exercises the thread-dispatch mode's reason
// to exist: the callback runs on the dedicated timer thread and is free
// to take a blocking primitive.
func TestTimerCallbackMayBlock(t *testing.T) {
	s := newTestScheduler(t)
	sem := s.NewSemaphore("cb", 0, 0)

	var got atomic.Int64
	got.Store(-1)
	tm := s.NewTimer("blocking-cb", kernel.TimerDispatchThread, func(*kernel.Timer, any) {
		got.Store(int64(sem.Wait(-1)))
	}, nil)
	require.Equal(t, kernel.StatusOK, tm.Start(5, 0))

	eventually(t, 2*time.Second, func() bool {
		return s.Clock().Now() > 10 && got.Load() == -1
	})
	require.Equal(t, kernel.StatusOK, sem.Post())
	eventually(t, time.Second, func() bool { return got.Load() == int64(kernel.StatusOK) })
}

func TestTimerSameTickOrder(t *testing.T) {
	s := newTestScheduler(t)

	var order [3]atomic.Int64
	var seq atomic.Int64
	for i := 0; i < 3; i++ {
		slot := i
		tm := s.NewTimer("tied", kernel.TimerDispatchThread, func(*kernel.Timer, any) {
			order[slot].Store(seq.Add(1))
		}, nil)
		require.Equal(t, kernel.StatusOK, tm.Start(20, 0))
	}

	eventually(t, 2*time.Second, func() bool { return seq.Load() == 3 })
	// timers armed for the same tick dispatch in insertion order
	require.Equal(t, int64(1), order[0].Load())
	require.Equal(t, int64(2), order[1].Load())
	require.Equal(t, int64(3), order[2].Load())
}
