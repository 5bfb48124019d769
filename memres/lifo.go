package memres

// Lifo is the LIFO/bump allocator: a monotonic pointer into a fixed
// arena. Deallocate is a no-op unless the freed block is the most
// recently allocated one still outstanding, in which case the pointer
// retracts to where that block began; freeing in exact reverse order
// therefore unwinds the arena all the way back to its initial state.
// O(1), no fragmentation tracking, fully deterministic; intended for
// init-time allocation.
type Lifo struct {
	arena  []byte
	offset int
	// allocs records the start offset of every outstanding allocation in
	// order, so a Deallocate of the top block can retract the bump
	// pointer to the block below it, and the next reverse-order free can
	// do the same again.
	allocs []int
}

// NewLifo carves a Lifo allocator out of a caller-provided arena. The arena
// is owned by the caller for its lifetime; Lifo never resizes it.
func NewLifo(arena []byte) *Lifo {
	return &Lifo{arena: arena}
}

// Allocate implements Resource.
func (l *Lifo) Allocate(bytes, align int) []byte {
	if bytes <= 0 {
		return nil
	}
	start := alignUp(l.offset, align)
	end := start + bytes
	if end > len(l.arena) {
		return nil
	}
	l.allocs = append(l.allocs, start)
	l.offset = end
	return l.arena[start:end:end]
}

// Deallocate implements Resource. Only a Deallocate of the most recent
// outstanding Allocate retracts the bump pointer (popping that block's
// record so the one below becomes retractable in turn); anything else is
// silently ignored.
func (l *Lifo) Deallocate(p []byte, _ int) {
	if len(l.allocs) == 0 || len(p) == 0 {
		return
	}
	// identify the block by its start offset within the arena
	start := l.allocs[len(l.allocs)-1]
	if start+len(p) != l.offset {
		return
	}
	if &l.arena[start] != &p[0] {
		return
	}
	l.offset = start
	l.allocs = l.allocs[:len(l.allocs)-1]
}

// IsEqual implements Resource.
func (l *Lifo) IsEqual(other Resource) bool {
	o, ok := other.(*Lifo)
	return ok && o == l
}

// Reset rewinds the bump pointer to the start of the arena, discarding all
// outstanding allocations at once. Useful between test cases or at a
// well-known epoch boundary; it is not part of the Resource interface.
func (l *Lifo) Reset() {
	l.offset = 0
	l.allocs = l.allocs[:0]
}
