package port_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jamestiotio/microospp/port"
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

func TestSimContextHandoff(t *testing.T) {
	s := port.NewSim()

	var ranA, ranB, resumedA atomic.Bool
	var fa, fb port.Frame
	fb = s.ContextCreate(0, func() {
		ranB.Store(true)
		// hand back to A and park forever
		s.ContextSwitchRequest(fb, fa)
	})
	fa = s.ContextCreate(0, func() {
		ranA.Store(true)
		// switch to B; resumed when B hands back
		s.ContextSwitchRequest(fa, fb)
		resumedA.Store(true)
	})

	// the boot context starts A without parking itself
	s.ContextSwitchRequest(nil, fa)
	eventually(t, time.Second, func() bool {
		return ranA.Load() && ranB.Load() && resumedA.Load()
	})
}

func TestSimEntryRunsLazily(t *testing.T) {
	s := port.NewSim()

	var ran atomic.Bool
	_ = s.ContextCreate(0, func() { ran.Store(true) })

	// creation alone must not run the entry; only the first switch does
	time.Sleep(10 * time.Millisecond)
	require.False(t, ran.Load())
}

func TestSimTickSource(t *testing.T) {
	s := port.NewSim()

	var ticks atomic.Int64
	var sawISR atomic.Bool
	s.TickSourceStart(1000, func() {
		ticks.Add(1)
		if s.InISR() {
			sawISR.Store(true)
		}
	})
	defer s.Stop()

	eventually(t, time.Second, func() bool { return ticks.Load() > 5 })
	require.True(t, sawISR.Load(), "InISR must report true inside the tick handler")
	require.False(t, s.InISR(), "InISR must report false outside the tick handler")

	s.Stop()
	n := ticks.Load()
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, n, ticks.Load(), "ticks must stop after Stop")
}

func TestSimCriticalSectionsNest(t *testing.T) {
	s := port.NewSim()
	// nesting must be balanced without panicking; Sim only tracks depth
	s.IRQCriticalEnter()
	s.IRQCriticalEnter()
	s.IRQCriticalExit()
	s.IRQCriticalExit()
	s.SchedCriticalEnter()
	s.SchedCriticalExit()
}
