package buffer

import "github.com/nebulastream/nesengine/engerrors"

// Arena is a bump-pointer allocator carved out of a single TupleBuffer's
// payload, used by a pipeline's per-invocation scratch state (variable-
// length join keys, staged aggregates) so those allocations stay inside
// the pooled memory budget instead of escaping to the Go heap.
type Arena struct {
	backing TupleBuffer
	offset  int
}

// NewArena wraps buf for bump allocation. The caller retains ownership of
// buf; the arena does not release it.
func NewArena(buf TupleBuffer) *Arena {
	return &Arena{backing: buf}
}

// Alloc reserves n contiguous bytes and returns them, or an error if the
// arena is exhausted.
func (a *Arena) Alloc(n int) ([]byte, error) {
	data := a.backing.Bytes()
	if a.offset+n > len(data) {
		return nil, engerrors.New(engerrors.AllocationFailure, "arena exhausted").
			WithContext("requested", n).
			WithContext("remaining", len(data)-a.offset)
	}
	out := data[a.offset : a.offset+n : a.offset+n]
	a.offset += n
	return out, nil
}

// Used reports how many bytes have been handed out so far.
func (a *Arena) Used() int { return a.offset }

// Remaining reports how many bytes are still available.
func (a *Arena) Remaining() int { return a.backing.Capacity() - a.offset }

// Reset rewinds the arena to the start of the backing buffer, allowing it
// to be reused across pipeline invocations without a new allocation.
func (a *Arena) Reset() { a.offset = 0 }
