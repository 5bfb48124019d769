package kernel_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jamestiotio/microospp/kernel"
)

// TestMutexExclusion: at no instant do two threads observe themselves
// as owners of the same mutex.
func TestMutexExclusion(t *testing.T) {
	s := newTestScheduler(t)
	m := s.NewMutex("excl", kernel.MutexNormal, false)

	var (
		inside    atomic.Int64
		violation atomic.Bool
		rounds    atomic.Int64
	)
	body := func(*kernel.Thread) {
		for i := 0; i < 50; i++ {
			if m.Lock(-1) != kernel.StatusOK {
				return
			}
			if inside.Add(1) != 1 {
				violation.Store(true)
			}
			s.Yield() // widen the window while holding the mutex
			inside.Add(-1)
			m.Unlock()
			rounds.Add(1)
		}
	}
	for _, name := range []string{"excl-a", "excl-b", "excl-c"} {
		_, st := s.NewThread(name, kernel.PriorityNormal, 0, body, nil)
		require.Equal(t, kernel.StatusOK, st)
	}

	eventually(t, 5*time.Second, func() bool { return rounds.Load() == 150 })
	require.False(t, violation.Load(), "two threads observed ownership simultaneously")
}

func TestMutexRecursive(t *testing.T) {
	s := newTestScheduler(t)
	m := s.NewMutex("rec", kernel.MutexRecursive, false)

	var done atomic.Bool
	_, st := s.NewThread("rec", kernel.PriorityNormal, 0, func(*kernel.Thread) {
		require.Equal(t, kernel.StatusOK, m.Lock(-1))
		require.Equal(t, kernel.StatusOK, m.Lock(-1))
		require.Equal(t, kernel.StatusOK, m.TryLock())
		require.Equal(t, kernel.StatusOK, m.Unlock())
		require.Equal(t, kernel.StatusOK, m.Unlock())
		require.Equal(t, kernel.StatusOK, m.Unlock())
		// fully released; a non-owner error now
		require.Equal(t, kernel.StatusNotOwner, m.Unlock())
		done.Store(true)
	}, nil)
	require.Equal(t, kernel.StatusOK, st)
	eventually(t, time.Second, done.Load)
}

func TestMutexErrorCheck(t *testing.T) {
	s := newTestScheduler(t)
	m := s.NewMutex("chk", kernel.MutexErrorCheck, false)

	var done atomic.Bool
	_, st := s.NewThread("chk", kernel.PriorityNormal, 0, func(*kernel.Thread) {
		require.Equal(t, kernel.StatusOK, m.Lock(-1))
		require.Equal(t, kernel.StatusWouldDeadlock, m.Lock(-1))
		require.Equal(t, kernel.StatusOK, m.Unlock())
		done.Store(true)
	}, nil)
	require.Equal(t, kernel.StatusOK, st)
	eventually(t, time.Second, done.Load)
}

func TestMutexUnlockByNonOwner(t *testing.T) {
	s := newTestScheduler(t)
	m := s.NewMutex("owned", kernel.MutexNormal, false)
	hold := s.NewSemaphore("hold", 0, 0)

	_, st := s.NewThread("owner", kernel.PriorityNormal, 0, func(*kernel.Thread) {
		m.Lock(-1)
		hold.Wait(-1)
		m.Unlock()
	}, nil)
	require.Equal(t, kernel.StatusOK, st)

	var foreign atomic.Int64
	foreign.Store(-1)
	_, st = s.NewThread("foreign", kernel.PriorityNormal, 0, func(me *kernel.Thread) {
		for m.Owner() == nil {
			s.Yield() // owner has not locked yet
		}
		foreign.Store(int64(m.Unlock()))
		hold.Post()
	}, nil)
	require.Equal(t, kernel.StatusOK, st)

	eventually(t, time.Second, func() bool {
		return foreign.Load() == int64(kernel.StatusNotOwner)
	})
}

func TestMutexTimedLockTimeout(t *testing.T) {
	s := newTestScheduler(t)
	m := s.NewMutex("held", kernel.MutexNormal, false)
	release := s.NewSemaphore("release", 0, 0)

	_, st := s.NewThread("holder", kernel.PriorityNormal, 0, func(*kernel.Thread) {
		m.Lock(-1)
		release.Wait(-1)
		m.Unlock()
	}, nil)
	require.Equal(t, kernel.StatusOK, st)

	var got atomic.Int64
	got.Store(-1)
	_, st = s.NewThread("contender", kernel.PriorityNormal, 0, func(*kernel.Thread) {
		for m.Owner() == nil {
			s.Yield()
		}
		require.Equal(t, kernel.StatusWouldBlock, m.TryLock())
		got.Store(int64(m.Lock(30)))
		release.Post()
	}, nil)
	require.Equal(t, kernel.StatusOK, st)

	eventually(t, 2*time.Second, func() bool {
		return got.Load() == int64(kernel.StatusTimeout)
	})
}

// TestMutexPriorityInheritance: while a high-priority thread waits on a
// mutex held by a low-priority one, the holder runs at the waiter's
// effective priority, dropping back on release.
func TestMutexPriorityInheritance(t *testing.T) {
	s := newTestScheduler(t)
	m := s.NewMutex("inherit", kernel.MutexNormal, false)

	var release atomic.Bool
	low, st := s.NewThread("pi-low", kernel.PriorityLow, 0, func(*kernel.Thread) {
		m.Lock(-1)
		for !release.Load() {
			s.Yield()
		}
		m.Unlock()
		for {
			s.Yield()
		}
	}, nil)
	require.Equal(t, kernel.StatusOK, st)

	eventually(t, time.Second, func() bool { return kernel.PriorityLow == low.EffectivePriority() })

	var highDone atomic.Bool
	high, st := s.NewThread("pi-high", kernel.PriorityHigh, 0, func(*kernel.Thread) {
		m.Lock(-1)
		m.Unlock()
		highDone.Store(true)
	}, nil)
	require.Equal(t, kernel.StatusOK, st)

	eventually(t, time.Second, func() bool { return high.State() == kernel.StateBlocked })
	require.Equal(t, kernel.PriorityHigh, low.EffectivePriority(), "holder must inherit the waiter's priority")
	require.Equal(t, kernel.PriorityLow, low.AssignedPriority())

	release.Store(true)
	eventually(t, time.Second, highDone.Load)
	eventually(t, time.Second, func() bool {
		return low.EffectivePriority() == kernel.PriorityLow
	})
}

// TestMutexInheritanceChain: the boost propagates transitively through
// a chain of owners blocked on each other's mutexes, and unwinds mutex
// by mutex.
func TestMutexInheritanceChain(t *testing.T) {
	s := newTestScheduler(t)
	m1 := s.NewMutex("chain-m1", kernel.MutexNormal, false)
	m2 := s.NewMutex("chain-m2", kernel.MutexNormal, false)

	var releaseLow, releaseMid atomic.Bool
	low, st := s.NewThread("chain-low", kernel.PriorityLow, 0, func(*kernel.Thread) {
		m1.Lock(-1)
		for !releaseLow.Load() {
			s.Yield()
		}
		m1.Unlock()
		for {
			s.Yield()
		}
	}, nil)
	require.Equal(t, kernel.StatusOK, st)
	eventually(t, time.Second, func() bool { return s.Current() != nil })

	mid, st := s.NewThread("chain-mid", kernel.PriorityNormal, 0, func(*kernel.Thread) {
		m2.Lock(-1)
		m1.Lock(-1) // blocks on low
		for !releaseMid.Load() {
			s.Yield()
		}
		m1.Unlock()
		m2.Unlock()
		for {
			s.Yield()
		}
	}, nil)
	require.Equal(t, kernel.StatusOK, st)
	eventually(t, time.Second, func() bool { return mid.State() == kernel.StateBlocked })

	var highOwns atomic.Bool
	high, st := s.NewThread("chain-high", kernel.PriorityHigh, 0, func(*kernel.Thread) {
		m2.Lock(-1) // blocks on mid
		highOwns.Store(true)
		m2.Unlock()
		for {
			s.Yield()
		}
	}, nil)
	require.Equal(t, kernel.StatusOK, st)
	eventually(t, time.Second, func() bool { return high.State() == kernel.StateBlocked })

	// the boost reached both links of the chain
	require.Equal(t, kernel.PriorityHigh, mid.EffectivePriority())
	require.Equal(t, kernel.PriorityHigh, low.EffectivePriority())
	require.Equal(t, kernel.PriorityHigh, high.EffectivePriority())

	// low releases m1: mid now owns it, low drops to assigned, mid keeps
	// the boost from high still waiting on m2
	releaseLow.Store(true)
	eventually(t, time.Second, func() bool {
		return low.EffectivePriority() == kernel.PriorityLow
	})
	require.Equal(t, kernel.PriorityHigh, mid.EffectivePriority())

	// mid releases m2: high owns it, mid drops to assigned
	releaseMid.Store(true)
	eventually(t, time.Second, highOwns.Load)
	eventually(t, time.Second, func() bool {
		return mid.EffectivePriority() == kernel.PriorityNormal
	})
}

// TestRobustMutexRecovery: lock, die, recover via Consistent.
func TestRobustMutexRecovery(t *testing.T) {
	s := newTestScheduler(t)
	m := s.NewMutex("robust", kernel.MutexNormal, true)

	_, st := s.NewThread("t1", kernel.PriorityNormal, 0, func(*kernel.Thread) {
		m.Lock(-1)
		// terminates holding the mutex (return from entry)
	}, nil)
	require.Equal(t, kernel.StatusOK, st)

	var t2Lock, t2Unlock, t3Lock atomic.Int64
	t2Lock.Store(-1)
	t2Unlock.Store(-1)
	t3Lock.Store(-1)
	_, st = s.NewThread("t2", kernel.PriorityNormal, 0, func(*kernel.Thread) {
		st := m.Lock(-1)
		t2Lock.Store(int64(st))
		if st == kernel.StatusOwnerDead {
			m.Consistent()
		}
		t2Unlock.Store(int64(m.Unlock()))
	}, nil)
	require.Equal(t, kernel.StatusOK, st)

	eventually(t, time.Second, func() bool { return t2Unlock.Load() == int64(kernel.StatusOK) })
	require.Equal(t, int64(kernel.StatusOwnerDead), t2Lock.Load())

	_, st = s.NewThread("t3", kernel.PriorityNormal, 0, func(*kernel.Thread) {
		st := m.Lock(-1)
		t3Lock.Store(int64(st))
		if st == kernel.StatusOK {
			m.Unlock()
		}
	}, nil)
	require.Equal(t, kernel.StatusOK, st)
	eventually(t, time.Second, func() bool { return t3Lock.Load() == int64(kernel.StatusOK) })
}

// TestRobustMutexNotRecoverable: skipping Consistent before unlock
// poisons the mutex permanently.
func TestRobustMutexNotRecoverable(t *testing.T) {
	s := newTestScheduler(t)
	m := s.NewMutex("poisoned", kernel.MutexNormal, true)

	_, st := s.NewThread("t1", kernel.PriorityNormal, 0, func(*kernel.Thread) {
		m.Lock(-1)
	}, nil)
	require.Equal(t, kernel.StatusOK, st)

	var t2Lock, t3Lock atomic.Int64
	t2Lock.Store(-1)
	t3Lock.Store(-1)
	_, st = s.NewThread("t2", kernel.PriorityNormal, 0, func(*kernel.Thread) {
		t2Lock.Store(int64(m.Lock(-1)))
		m.Unlock() // no Consistent call
	}, nil)
	require.Equal(t, kernel.StatusOK, st)
	eventually(t, time.Second, func() bool { return t2Lock.Load() == int64(kernel.StatusOwnerDead) })

	_, st = s.NewThread("t3", kernel.PriorityNormal, 0, func(*kernel.Thread) {
		t3Lock.Store(int64(m.Lock(-1)))
	}, nil)
	require.Equal(t, kernel.StatusOK, st)
	eventually(t, time.Second, func() bool {
		return t3Lock.Load() == int64(kernel.StatusNotRecoverable)
	})
}

func TestMutexDestroyWakesWaiters(t *testing.T) {
	s := newTestScheduler(t)
	m := s.NewMutex("doomed", kernel.MutexNormal, false)
	hold := s.NewSemaphore("hold", 0, 0)

	_, st := s.NewThread("holder", kernel.PriorityNormal, 0, func(*kernel.Thread) {
		m.Lock(-1)
		hold.Wait(-1)
	}, nil)
	require.Equal(t, kernel.StatusOK, st)

	var got atomic.Int64
	got.Store(-1)
	waiter, st := s.NewThread("waiter", kernel.PriorityNormal, 0, func(*kernel.Thread) {
		got.Store(int64(m.Lock(-1)))
	}, nil)
	require.Equal(t, kernel.StatusOK, st)

	eventually(t, time.Second, func() bool { return waiter.State() == kernel.StateBlocked })
	m.Destroy()
	eventually(t, time.Second, func() bool {
		return got.Load() == int64(kernel.StatusPrimitiveDestroyed)
	})
	hold.Post()
}
