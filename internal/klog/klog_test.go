package klog_test

import (
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/joeycumines/logiface"

	"github.com/jamestiotio/microospp/internal/klog"
)

func TestLoggerWritesFields(t *testing.T) {
	var buf strings.Builder
	l := klog.New(zerolog.New(&buf), logiface.LevelDebug)

	klog.Info("sched").
		Str("thread", "worker").
		Uint64("id", 7).
		Int("priority", 12).
		Log(l, "thread created")

	out := buf.String()
	require.Contains(t, out, `"category":"sched"`)
	require.Contains(t, out, `"thread":"worker"`)
	require.Contains(t, out, `"priority":12`)
	require.Contains(t, out, "thread created")
}

func TestLoggerLevelGate(t *testing.T) {
	var buf strings.Builder
	l := klog.New(zerolog.New(&buf), logiface.LevelWarning)

	klog.Debug("sched").Log(l, "suppressed")
	require.Empty(t, buf.String())

	klog.Error("mutex").Log(l, "emitted")
	require.Contains(t, buf.String(), "emitted")
}

func TestNopLoggerDiscards(t *testing.T) {
	l := klog.NewNop()
	// must neither write nor panic
	klog.Info("sched").Str("k", "v").Log(l, "discarded")
	klog.Error("sched").Log(nil, "nil logger is tolerated too")
}

func TestAssertPanics(t *testing.T) {
	defer func() {
		r := recover()
		require.NotNil(t, r)
		require.Contains(t, r.(string), "assertion failed: boom")
	}()
	klog.Assert("boom")
	t.Fatal("unreachable: Assert must panic")
}

func TestAssertRepeatsStillPanic(t *testing.T) {
	// the catrate limiter throttles the log line, never the trap itself
	for i := 0; i < 5; i++ {
		require.Panics(t, func() { klog.Assert("repeated trap") })
	}
}
