package memres

// NewDelete forwards to the Go runtime's own allocator, for development on
// the host (simulators, tests), mirroring new_delete_memory_resource
// upstream, which forwards to operator new/delete. Alignment beyond what
// Go's allocator already guarantees is approximated by over-allocating.
type NewDelete struct{}

// NewDeleteResource returns the new/delete resource. It carries no state,
// so every call can safely return a distinct value that still compares
// IsEqual to any other.
func NewDeleteResource() *NewDelete { return &NewDelete{} }

// Allocate implements Resource.
func (n *NewDelete) Allocate(bytes, align int) []byte {
	if bytes <= 0 {
		return nil
	}
	if align <= 1 {
		return make([]byte, bytes)
	}
	buf := make([]byte, bytes+align-1)
	off := alignUp(int(uintptrOf(&buf[0])), align) - int(uintptrOf(&buf[0]))
	return buf[off : off+bytes : off+bytes]
}

// Deallocate implements Resource as a no-op: the Go garbage collector owns
// reclamation once the slice is no longer referenced.
func (n *NewDelete) Deallocate([]byte, int) {}

// IsEqual implements Resource: all NewDelete resources are interchangeable,
// matching the upstream singleton new_delete_res.
func (n *NewDelete) IsEqual(other Resource) bool {
	_, ok := other.(*NewDelete)
	return ok
}
