package klog

import (
	"fmt"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/joeycumines/go-catrate"
)

// ThreadInfo is the minimal thread identity the assertion path prints
// when called from inside a kernel thread context. The kernel package
// supplies this via a callback rather than klog importing it directly,
// to avoid a dependency cycle (kernel already imports klog).
type ThreadInfo struct {
	Name string
	ID   uint64
}

// currentThread, when non-nil, is consulted by Assert to attach thread
// identity to a trap. Set via SetCurrentThreadFunc.
var currentThread func() *ThreadInfo

// SetCurrentThreadFunc installs the hook Assert uses to look up the
// calling goroutine's kernel thread, if any. kernel.NewScheduler calls
// this on every construction, so the most recently built scheduler's
// hook is the one in effect.
func SetCurrentThreadFunc(f func() *ThreadInfo) {
	currentThread = f
}

// assertLimiter throttles repeated traps of the same (expression, file,
// line) so a spinning faulty caller cannot flood the log the way a raw
// assert() would on target hardware. go-catrate's per-category
// sliding-window limiter does the bookkeeping.
var (
	assertLimiterOnce sync.Once
	assertLimiter     *catrate.Limiter
)

func getAssertLimiter() *catrate.Limiter {
	assertLimiterOnce.Do(func() {
		assertLimiter = catrate.NewLimiter(map[time.Duration]int{
			time.Second:      1,
			10 * time.Second: 3,
		})
	})
	return assertLimiter
}

type assertKey struct {
	expr, file string
	line       int
}

// Assert is the kernel's programming-contract-violation trap: it prints
// expression, file, line, function, and - if in thread context - the
// current thread's name and id, then aborts. expr is a short
// description of the violated invariant (e.g. "mutex owner == current
// thread"); Assert always logs at least once per distinct (expr, file,
// line) and at a throttled rate after that, then panics, the Go
// stand-in for trapping to a debugger.
func Assert(expr string) {
	pc, file, line, _ := runtime.Caller(1)
	fn := runtime.FuncForPC(pc)
	funcName := "?"
	if fn != nil {
		funcName = fn.Name()
	}

	key := assertKey{expr: expr, file: file, line: line}
	if _, allowed := getAssertLimiter().Allow(key); allowed {
		var threadPart string
		if currentThread != nil {
			if ti := currentThread(); ti != nil {
				threadPart = fmt.Sprintf(" thread=%q id=%d", ti.Name, ti.ID)
			}
		}
		fmt.Fprintf(os.Stderr, "ASSERT FAILED: %s at %s:%d in %s%s\n",
			expr, file, line, funcName, threadPart)
		Error("assert").Str("expr", expr).Str("file", file).Int("line", line).
			Str("func", funcName).Log(Default(), "assertion trap")
	}
	panic(fmt.Sprintf("assertion failed: %s (%s:%d in %s)", expr, file, line, funcName))
}
