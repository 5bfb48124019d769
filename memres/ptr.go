package memres

import "unsafe"

// uintptrDiff returns the byte distance from base to p, assuming both
// point into the same backing array. It exists because Go slices carry no
// user-writable header a FirstFit allocator could stash a run length in,
// so Deallocate has to recover a block's position by pointer arithmetic
// instead, the same way the C++ original recovers it from the raw void*.
func uintptrDiff(p, base *byte) int64 {
	return int64(uintptr(unsafe.Pointer(p))) - int64(uintptr(unsafe.Pointer(base)))
}

// uintptrOf returns the address of p as a uintptr, used only to compute
// alignment padding; the returned value is never dereferenced.
func uintptrOf(p *byte) uintptr {
	return uintptr(unsafe.Pointer(p))
}
