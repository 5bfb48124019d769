package memres

import "sort"

// FirstFit is a first-fit-with-coalescing allocator over a fixed arena:
// a free list sorted by address, searched from the top on allocation
// and merged with physical neighbours on deallocation. Not
// deterministic in the worst case; intended for the application heap.
type FirstFit struct {
	arena []byte
	// free holds non-overlapping, address-sorted free runs as [start,end)
	// byte offsets into arena.
	free []run
	// live maps the start offset of every outstanding allocation to its
	// length, so Deallocate can recover the run without a header embedded
	// in the block (Go slices carry no user-writable prefix).
	live map[int]int
}

type run struct {
	start, end int
}

// NewFirstFit carves a FirstFit allocator out of a caller-provided arena.
func NewFirstFit(arena []byte) *FirstFit {
	return &FirstFit{
		arena: arena,
		free:  []run{{0, len(arena)}},
		live:  make(map[int]int),
	}
}

// Allocate implements Resource.
func (f *FirstFit) Allocate(bytes, align int) []byte {
	if bytes <= 0 {
		return nil
	}
	for i, r := range f.free {
		start := alignUp(r.start, align)
		end := start + bytes
		if end > r.end {
			continue
		}
		// Found a fit; consume [start,end), returning any slack at the
		// front (due to alignment) and back to the free list.
		var remaining []run
		if start > r.start {
			remaining = append(remaining, run{r.start, start})
		}
		if end < r.end {
			remaining = append(remaining, run{end, r.end})
		}
		f.free = append(f.free[:i], append(remaining, f.free[i+1:]...)...)
		f.live[start] = bytes
		return f.arena[start:end:end]
	}
	return nil
}

// Deallocate implements Resource: it reinserts the freed run in address
// order and coalesces with any adjacent free runs.
func (f *FirstFit) Deallocate(p []byte, _ int) {
	if len(p) == 0 {
		return
	}
	start := f.offsetOf(p)
	if start < 0 {
		return
	}
	length, ok := f.live[start]
	if !ok {
		return
	}
	delete(f.live, start)
	f.insertFree(run{start, start + length})
}

// IsEqual implements Resource.
func (f *FirstFit) IsEqual(other Resource) bool {
	o, ok := other.(*FirstFit)
	return ok && o == f
}

func (f *FirstFit) offsetOf(p []byte) int {
	if len(f.arena) == 0 || len(p) == 0 {
		return -1
	}
	off := int(uintptrDiff(&p[0], &f.arena[0]))
	if off < 0 || off >= len(f.arena) {
		return -1
	}
	return off
}

func (f *FirstFit) insertFree(r run) {
	idx := sort.Search(len(f.free), func(i int) bool { return f.free[i].start >= r.start })
	f.free = append(f.free, run{})
	copy(f.free[idx+1:], f.free[idx:])
	f.free[idx] = r
	f.coalesce(idx)
}

// coalesce merges the run at idx with its immediate neighbours if they are
// physically adjacent, then repeats for any chain reaction.
func (f *FirstFit) coalesce(idx int) {
	// merge with next
	for idx+1 < len(f.free) && f.free[idx].end == f.free[idx+1].start {
		f.free[idx].end = f.free[idx+1].end
		f.free = append(f.free[:idx+1], f.free[idx+2:]...)
	}
	// merge with previous
	for idx > 0 && f.free[idx-1].end == f.free[idx].start {
		f.free[idx-1].end = f.free[idx].end
		f.free = append(f.free[:idx], f.free[idx+1:]...)
		idx--
	}
}
