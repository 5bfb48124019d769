package kernel

import "unsafe"

// MemoryPool is a fixed-block-size allocator backed by a pre-allocated
// array and an intrusive free stack. Blocks are []byte slices of
// exactly blockSize bytes, carved once from
// a single backing arena at construction; Alloc/Free only ever move a
// block between the free stack and a caller, never touching the
// allocator behind MemoryResource, giving O(1) alloc/free with zero
// fragmentation.
type MemoryPool struct {
	sched     *Scheduler
	name      string
	blockSize int
	blocks    int

	arena []byte
	free  []int // indices of free blocks, stack-ordered (LIFO)

	waiters priorityList
}

// NewMemoryPool creates a pool of blocks fixed-size blocks, each
// blockSize bytes, carved from the scheduler's default memory resource.
// Returns nil if the backing allocation fails. Allocation through the
// null resource is fatal by contract and traps before this can return.
func (s *Scheduler) NewMemoryPool(name string, blocks, blockSize int) *MemoryPool {
	arena := s.memResource.Allocate(blocks*blockSize, 1)
	if arena == nil && blocks*blockSize > 0 {
		return nil
	}
	p := &MemoryPool{
		sched:     s,
		name:      name,
		blockSize: blockSize,
		blocks:    blocks,
		arena:     arena,
		free:      make([]int, blocks),
	}
	for i := range p.free {
		p.free[i] = i
	}
	return p
}

// blockAt returns the block at free-list index i as a slice into the
// pool's arena.
func (p *MemoryPool) blockAt(i int) []byte {
	return p.arena[i*p.blockSize : (i+1)*p.blockSize]
}

// Alloc blocks until a block is available, or returns early per
// timeoutTicks (negative waits indefinitely; memory_pool::alloc).
func (p *MemoryPool) Alloc(timeoutTicks int64) ([]byte, Status) {
	s := p.sched
	s.mu.Lock()
	defer s.mu.Unlock()
	for len(p.free) == 0 {
		st := s.blockCurrent(&p.waiters, s.current.effectivePriority, timeoutTicks)
		if st != StatusOK {
			return nil, st
		}
	}
	i := p.free[len(p.free)-1]
	p.free = p.free[:len(p.free)-1]
	return p.blockAt(i), StatusOK
}

// TryAlloc attempts to obtain a block without blocking, the
// interrupt-context name for memory_pool::try_alloc.
func (p *MemoryPool) TryAlloc() ([]byte, Status) {
	s := p.sched
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(p.free) == 0 {
		return nil, StatusWouldBlock
	}
	i := p.free[len(p.free)-1]
	p.free = p.free[:len(p.free)-1]
	return p.blockAt(i), StatusOK
}

// Free returns block to the pool, waking the head waiter if any
// (memory_pool::free). It is the caller's responsibility to pass
// back a slice previously returned by Alloc/TryAlloc from this pool;
// passing anything else returns StatusInvalidArgument.
func (p *MemoryPool) Free(block []byte) Status {
	s := p.sched
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := p.indexOf(block)
	if !ok {
		return StatusInvalidArgument
	}
	p.free = append(p.free, i)
	if next := p.waiters.popHighest(); next != nil {
		next.waitResult = StatusOK
		s.makeReady(next)
		s.schedulePreemption()
	}
	return StatusOK
}

// indexOf recovers a block's free-list index from its address within the
// arena, the same pointer-arithmetic trick FirstFit uses in
// memres/firstfit.go, since a []byte carries no room to stash its own
// index.
func (p *MemoryPool) indexOf(block []byte) (int, bool) {
	if len(block) != p.blockSize || len(p.arena) == 0 {
		return 0, false
	}
	base := &p.arena[0]
	off := int64(uintptr(unsafe.Pointer(&block[0]))) - int64(uintptr(unsafe.Pointer(base)))
	if off < 0 || off%int64(p.blockSize) != 0 {
		return 0, false
	}
	i := int(off / int64(p.blockSize))
	if i < 0 || i >= p.blocks {
		return 0, false
	}
	return i, true
}

// BlockSize returns the fixed size of every block in the pool.
func (p *MemoryPool) BlockSize() int { return p.blockSize }

// Capacity returns the total number of blocks in the pool.
func (p *MemoryPool) Capacity() int { return p.blocks }

// Available returns the number of currently-free blocks (snapshot).
func (p *MemoryPool) Available() int {
	s := p.sched
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(p.free)
}

// Destroy wakes every waiter with StatusPrimitiveDestroyed.
func (p *MemoryPool) Destroy() {
	s := p.sched
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range p.waiters.drainAll() {
		w.waitResult = StatusPrimitiveDestroyed
		s.makeReady(w)
	}
}
