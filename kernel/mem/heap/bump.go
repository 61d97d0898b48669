// Package heap implements the kernel's initial global heap allocator: a
// monotonic bump allocator over a fixed byte range. It backs every
// allocation made before the page allocator (package page) comes online,
// and remains the allocator behind the standard alloc/dealloc pair for
// this iteration of the kernel.
package heap

import (
	"memkernel/kernel"
	"memkernel/kernel/sync"
)

var errOutOfHeap = &kernel.Error{
	Module:  "heap",
	Message: "bump allocator exhausted",
}

// AlignUp rounds addr up to the next multiple of align. align must be a
// power of two.
func AlignUp(addr, align uintptr) uintptr {
	return (addr + align - 1) &^ (align - 1)
}

// Bump is a trivial monotonic allocator over [start, start+size). It never
// reclaims individual allocations; it only resets to the beginning of its
// range once every outstanding allocation has been freed.
type Bump struct {
	mu sync.Spinlock

	start uintptr
	size  uintptr

	next        uintptr
	allocations uint64
}

// New constructs a bump allocator over the byte range [start, start+size).
// The caller is responsible for ensuring that range is otherwise mapped
// and unused.
func New(start, size uintptr) *Bump {
	return &Bump{start: start, size: size, next: start}
}

// UpperBound returns the first address past the end of the managed range.
func (b *Bump) UpperBound() uintptr {
	return b.start + b.size
}

// Alloc reserves size bytes aligned to align, returning the start address
// of the reservation. align must be a power of two. Returns errOutOfHeap
// if the range has been exhausted.
func (b *Bump) Alloc(size, align uintptr) (uintptr, *kernel.Error) {
	b.mu.Acquire()
	defer b.mu.Release()

	req := AlignUp(b.next, align)
	next := req + size
	if next > b.UpperBound() {
		return 0, errOutOfHeap
	}

	b.next = next
	b.allocations++
	return req, nil
}

// Dealloc releases a previous allocation. The bump allocator tracks only a
// live count, not individual reservations; once the count returns to zero
// the whole range is reclaimed and the next Alloc starts again at start.
func (b *Bump) Dealloc(_ uintptr, _ uintptr) {
	b.mu.Acquire()
	defer b.mu.Release()

	b.allocations--
	if b.allocations == 0 {
		b.next = b.start
	}
}

// Allocations returns the current live allocation count. Exposed mainly
// for tests and diagnostics.
func (b *Bump) Allocations() uint64 {
	b.mu.Acquire()
	defer b.mu.Release()
	return b.allocations
}
