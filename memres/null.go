package memres

// Null is the null memory resource: every Allocate traps. It is
// installed as the default resource when the application opts out of
// dynamic memory entirely (exclude_dynamic_memory_allocations).
type Null struct {
	// OnAllocate, if non-nil, is invoked instead of panicking, so callers
	// (notably the kernel's assertion/trap path) can route the failure
	// through their own reporting instead of a bare panic.
	OnAllocate func(bytes, align int)
}

// NewNullResource returns a Null resource. A package-level singleton isn't
// exposed because callers commonly want to attach their own OnAllocate
// hook (e.g. the kernel wires it to the assertion trap).
func NewNullResource() *Null { return &Null{} }

// Allocate implements Resource: it always fails. If OnAllocate is set it
// is called first (and may itself panic); otherwise Allocate panics
// directly, allocation through the null resource being fatal by
// contract.
func (n *Null) Allocate(bytes, align int) []byte {
	if n.OnAllocate != nil {
		n.OnAllocate(bytes, align)
		return nil
	}
	panic("memres: allocation from null resource")
}

// Deallocate implements Resource as a no-op: there is nothing to free.
func (n *Null) Deallocate([]byte, int) {}

// IsEqual implements Resource.
func (n *Null) IsEqual(other Resource) bool {
	o, ok := other.(*Null)
	return ok && o == n
}
