package kernel_test

import (
	"testing"
	"time"

	"github.com/jamestiotio/microospp/internal/klog"
	"github.com/jamestiotio/microospp/kernel"
)

// newTestScheduler builds a scheduler with logging suppressed (tests
// don't want kernel trace output cluttering `go test -v`) and starts it
// in the background, stopping it automatically on test cleanup.
func newTestScheduler(t *testing.T, opts ...kernel.Option) *kernel.Scheduler {
	t.Helper()
	opts = append([]kernel.Option{kernel.WithLogger(klog.NewNop())}, opts...)
	s := kernel.NewScheduler(opts...)
	go s.Start()
	t.Cleanup(func() { s.Stop() })
	return s
}

// eventually polls cond until it reports true or the deadline passes,
// settling races against the background scheduler loop instead of
// relying on a fixed sleep.
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
