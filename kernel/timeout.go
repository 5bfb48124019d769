package kernel

import "container/heap"

// timeoutKind distinguishes the two things the global timeout list wakes:
// a blocked thread's timed wait, or a software timer's deadline.
type timeoutKind int

const (
	timeoutKindThread timeoutKind = iota
	timeoutKindTimer
)

// timeoutEntry is one node of the global timeout list, sorted by
// absolute wakeup tick. A thread or timer owns at most one armed entry
// at a time.
type timeoutEntry struct {
	deadline uint64
	seq      uint64 // insertion sequence; ties at equal deadline are FIFO
	kind   timeoutKind
	thread *Thread // set when kind == timeoutKindThread
	reason Status  // status to stamp on thread when this entry fires
	timer  *Timer  // set when kind == timeoutKindTimer
	index  int     // maintained by container/heap for O(log n) disarm
}

// timeoutHeap is a min-heap ordered by (deadline, seq).
type timeoutHeap []*timeoutEntry

func (h timeoutHeap) Len() int { return len(h) }
func (h timeoutHeap) Less(i, j int) bool {
	if h[i].deadline != h[j].deadline {
		return h[i].deadline < h[j].deadline
	}
	return h[i].seq < h[j].seq
}
func (h timeoutHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timeoutHeap) Push(x any) {
	e := x.(*timeoutEntry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *timeoutHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// armTimeout inserts a new entry into s.timeouts and returns it. Must be
// called with s.mu held.
func (s *Scheduler) armTimeout(e *timeoutEntry) *timeoutEntry {
	s.seq++
	e.seq = s.seq
	heap.Push(&s.timeouts, e)
	return e
}

// disarmTimeout removes e from s.timeouts if it is still present. Must be
// called with s.mu held. Safe to call with an already-fired (index == -1)
// entry.
func (s *Scheduler) disarmTimeout(e *timeoutEntry) {
	if e == nil || e.index < 0 || e.index >= len(s.timeouts) || s.timeouts[e.index] != e {
		return
	}
	heap.Remove(&s.timeouts, e.index)
}

// expireTimeouts pops and processes every entry whose deadline has
// arrived. Must be called with s.mu held; it is the tick handler's core
// job.
func (s *Scheduler) expireTimeouts(now uint64) {
	for len(s.timeouts) > 0 && s.timeouts[0].deadline <= now {
		e := heap.Pop(&s.timeouts).(*timeoutEntry)
		switch e.kind {
		case timeoutKindThread:
			t := e.thread
			if t.timeoutEntry != e {
				continue // already disarmed/consumed by a racing signal
			}
			t.timeoutEntry = nil
			if t.state != StateBlocked {
				// woken by a signal/destroy in the same tick window; the
				// wake already stamped its own result
				continue
			}
			if t.waitList != nil {
				t.waitList.remove(t)
				t.waitList = nil
			}
			t.waitResult = e.reason
			s.makeReady(t)
		case timeoutKindTimer:
			s.fireTimerLocked(e.timer, now)
		}
	}
}
