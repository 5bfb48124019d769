package kernel

// maxMessagePriority bounds a message's priority tag; messages are kept
// in one bucket per priority, FIFO within a bucket and higher priority
// dequeued first: the same priority-bucketed shape priorityList already
// gives the scheduler and every wait list, reused here for the payload
// ring instead of threads.
const maxMessagePriority = numPriorities - 1

// MessageQueue is a fixed-message-size, fixed-capacity queue with
// priority-ordered delivery. Messages are copied in and out as []byte
// of exactly msgSize length; the ceiling on a message's length is 256
// bytes, or 65536 with the 16-bit size option.
type MessageQueue struct {
	sched   *Scheduler
	name    string
	msgSize int
	size16  bool

	slots  [][]byte // one bucket's worth of pending messages, per priority
	counts [maxMessagePriority + 1]int
	total  int
	cap    int

	senders   priorityList // blocked Send callers, when full
	receivers priorityList // blocked Receive callers, when empty
}

// maxMessageSize returns the largest single message this queue accepts
// (message_queue_size_16bits): 65536 bytes if enabled, else 256.
func (q *MessageQueue) maxMessageSize() int {
	if q.size16 {
		return 65536
	}
	return 256
}

// NewMessageQueue creates a queue holding up to capacity messages of
// exactly msgSize bytes each. size16, normally taken from
// Config.messageQueue16BitSize, raises the per-message size ceiling from
// 256 bytes to 65536.
func (s *Scheduler) NewMessageQueue(name string, capacity, msgSize int) *MessageQueue {
	q := &MessageQueue{
		sched:   s,
		name:    name,
		msgSize: msgSize,
		size16:  s.cfg.messageQueue16BitSize,
		slots:   make([][]byte, maxMessagePriority+1),
		cap:     capacity,
	}
	return q
}

// validSend reports whether msg/priority are acceptable arguments to
// Send/TrySend/TimedSend.
func (q *MessageQueue) validSend(msg []byte, priority int) bool {
	return len(msg) == q.msgSize && q.msgSize <= q.maxMessageSize() &&
		priority >= 0 && priority <= maxMessagePriority
}

// enqueueLocked appends a copy of msg to priority's bucket. Must be
// called with sched.mu held, and with room already confirmed available.
func (q *MessageQueue) enqueueLocked(msg []byte, priority int) {
	cp := make([]byte, len(msg))
	copy(cp, msg)
	q.slots[priority] = append(q.slots[priority], cp...)
	q.counts[priority]++
	q.total++
}

// dequeueLocked removes and returns the oldest message at the
// highest occupied priority bucket, along with that priority. Must be
// called with sched.mu held, and with q.total > 0.
func (q *MessageQueue) dequeueLocked() ([]byte, int) {
	for p := maxMessagePriority; p >= 0; p-- {
		if q.counts[p] == 0 {
			continue
		}
		msg := q.slots[p][:q.msgSize]
		out := make([]byte, q.msgSize)
		copy(out, msg)
		q.slots[p] = q.slots[p][q.msgSize:]
		q.counts[p]--
		q.total--
		return out, p
	}
	return nil, 0
}

// Send blocks until there is room for msg (exactly msgSize bytes) at
// priority, or timeoutTicks elapses (negative waits indefinitely),
// message_queue::send.
func (q *MessageQueue) Send(msg []byte, priority int, timeoutTicks int64) Status {
	s := q.sched
	s.mu.Lock()
	defer s.mu.Unlock()
	if !q.validSend(msg, priority) {
		return StatusInvalidArgument
	}
	for q.total >= q.cap {
		st := s.blockCurrent(&q.senders, s.current.effectivePriority, timeoutTicks)
		if st != StatusOK {
			return st
		}
		// woken by Receive's handoff; re-check in case of a spurious
		// multi-waiter race under concurrent sends (priorityList wakes
		// one at a time, so this loop normally runs once).
	}
	q.enqueueLocked(msg, priority)
	if next := q.receivers.popHighest(); next != nil {
		next.waitResult = StatusOK
		s.makeReady(next)
		s.schedulePreemption()
	}
	return StatusOK
}

// SendFromISR is Send's non-blocking interrupt-context name: it never
// parks, failing with StatusWouldBlock if the queue is full.
func (q *MessageQueue) SendFromISR(msg []byte, priority int) Status {
	return q.TrySend(msg, priority)
}

// TrySend attempts to enqueue msg without blocking
// (message_queue::try_send).
func (q *MessageQueue) TrySend(msg []byte, priority int) Status {
	s := q.sched
	s.mu.Lock()
	defer s.mu.Unlock()
	if !q.validSend(msg, priority) {
		return StatusInvalidArgument
	}
	if q.total >= q.cap {
		return StatusWouldBlock
	}
	q.enqueueLocked(msg, priority)
	if next := q.receivers.popHighest(); next != nil {
		next.waitResult = StatusOK
		s.makeReady(next)
		s.schedulePreemption()
	}
	return StatusOK
}

// Receive blocks until a message is available, copying it into buf
// (which must be at least msgSize bytes) and reporting its priority, or
// returns early per timeoutTicks (negative waits indefinitely;
// message_queue::receive).
func (q *MessageQueue) Receive(buf []byte, timeoutTicks int64) (n int, priority int, status Status) {
	s := q.sched
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(buf) < q.msgSize {
		return 0, 0, StatusInvalidArgument
	}
	for q.total == 0 {
		st := s.blockCurrent(&q.receivers, s.current.effectivePriority, timeoutTicks)
		if st != StatusOK {
			return 0, 0, st
		}
	}
	msg, prio := q.dequeueLocked()
	copy(buf, msg)
	if next := q.senders.popHighest(); next != nil {
		next.waitResult = StatusOK
		s.makeReady(next)
		s.schedulePreemption()
	}
	return len(msg), prio, StatusOK
}

// ReceiveTry attempts to dequeue a message without blocking, the
// interrupt-context name for message_queue::try_receive.
func (q *MessageQueue) ReceiveTry(buf []byte) (n int, priority int, status Status) {
	s := q.sched
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(buf) < q.msgSize {
		return 0, 0, StatusInvalidArgument
	}
	if q.total == 0 {
		return 0, 0, StatusWouldBlock
	}
	msg, prio := q.dequeueLocked()
	copy(buf, msg)
	if next := q.senders.popHighest(); next != nil {
		next.waitResult = StatusOK
		s.makeReady(next)
		s.schedulePreemption()
	}
	return len(msg), prio, StatusOK
}

// Len returns the current number of queued messages.
func (q *MessageQueue) Len() int {
	s := q.sched
	s.mu.Lock()
	defer s.mu.Unlock()
	return q.total
}

// Cap returns the queue's fixed capacity.
func (q *MessageQueue) Cap() int { return q.cap }

// Destroy wakes every sender and receiver waiter with
// StatusPrimitiveDestroyed, the "destruction wakes all
// waiters".
func (q *MessageQueue) Destroy() {
	s := q.sched
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range q.senders.drainAll() {
		w.waitResult = StatusPrimitiveDestroyed
		s.makeReady(w)
	}
	for _, w := range q.receivers.drainAll() {
		w.waitResult = StatusPrimitiveDestroyed
		s.makeReady(w)
	}
}
