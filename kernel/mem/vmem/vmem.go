// Package vmem implements a Bonwick & Adams style resource (extent)
// allocator: a general-purpose manager of ranges of integer-addressed
// resources. The page allocator (package page) uses two instances of it,
// one for virtual page extents and one for physical frames, but nothing
// here is specific to memory addresses — quanta are opaque integers.
package vmem

import (
	"memkernel/kernel"
	"memkernel/kernel/list"
	"memkernel/kernel/sync"
)

// ErrExhausted is returned by Allocate when no segment large enough for
// the request remains.
var ErrExhausted = &kernel.Error{
	Module:  "vmem",
	Message: "resource allocator exhausted",
}

// Range is a half-open interval [Start, End) of the allocator's resource
// space.
type Range struct {
	Start, End uintptr
}

// Size returns the number of units spanned by the range.
func (r Range) Size() uintptr { return r.End - r.Start }

// segment is a single tile of the space the allocator has been given via
// Add: either free (sitting on exactly one freelist) or allocated (sitting
// in the allocated table).
type segment struct {
	rng   Range
	free  bool
	class int

	node   *list.Node[*segment] // handle in the ascending segment list
	flNode *list.Node[*segment] // handle in freelists[class]; nil unless free
}

// Allocator is a quantum-parameterized extent allocator. Q is the minimum
// allocation granularity; every request is rounded up to a multiple of Q.
// Free segments are tracked by M power-of-two size classes so the common
// allocation path is O(1).
type Allocator struct {
	mu sync.Spinlock

	quantum uintptr
	classes int

	segments  *list.List[*segment]
	freelists []*list.List[*segment]
	allocated map[uintptr]*segment
}

// New returns an empty allocator with the given quantum and number of
// freelist size classes. Its segment bookkeeping is backed by the Go heap,
// which is only safe to call once the global allocator is live; callers
// that must run before then (or that know the maximum number of segments
// they will ever hold live, such as the page allocator sizing pmem/vmem
// from a fixed physical memory map) should use NewWithCapacity instead.
func New(quantum uintptr, classes int) *Allocator {
	return newAllocator(quantum, classes, nil)
}

// NewWithCapacity is New, except every segment node (in the ascending
// segment list and in whichever freelist currently holds it) is carved out
// of a fixed-size list.Arena instead of the Go heap. maxSegments bounds the
// number of segments the allocator can hold live at once; Add/Allocate
// panic via the arena if that bound is exceeded. This is the allocator
// form usable before the global heap exists, and the one the spec's own
// design notes call out: "an arena (slab) of nodes keyed by integer index
// is a clean alternative to raw pointers" for the segment/freelist
// handles.
func NewWithCapacity(quantum uintptr, classes, maxSegments int) *Allocator {
	// Every live segment holds exactly one node in the segment list; a
	// free segment additionally holds one node in its freelist. Size the
	// shared arena for the worst case of every segment being free.
	return newAllocator(quantum, classes, list.NewArena[*segment](2*maxSegments))
}

func newAllocator(quantum uintptr, classes int, arena *list.Arena[*segment]) *Allocator {
	if quantum == 0 {
		quantum = 1
	}
	if classes < 1 {
		classes = 1
	}

	newList := func() *list.List[*segment] {
		if arena != nil {
			return list.NewWithAllocator[*segment](arena)
		}
		return list.New[*segment]()
	}

	freelists := make([]*list.List[*segment], classes)
	for i := range freelists {
		freelists[i] = newList()
	}
	return &Allocator{
		quantum:   quantum,
		classes:   classes,
		segments:  newList(),
		freelists: freelists,
		allocated: make(map[uintptr]*segment),
	}
}

// Add registers rng as available for allocation. rng must be disjoint from
// and strictly greater than every range previously added; the allocator
// does not validate this and relies on the caller to respect it. Ranges
// smaller than one quantum are silently dropped (leaked), per the
// resource allocator's add() contract.
func (a *Allocator) Add(rng Range) {
	a.mu.Acquire()
	defer a.mu.Release()

	qsize := rng.Size() / a.quantum
	if qsize < 1 {
		return
	}

	seg := &segment{rng: rng, free: true}
	seg.node = a.segments.Append(seg)
	a.linkFreelistBack(seg, qsize)
}

// linkFreelistBack appends seg to the freelist for its size class. Used
// when a brand new range enters the allocator via Add, so that segments
// contributed earlier are preferred by the fast allocation path.
func (a *Allocator) linkFreelistBack(seg *segment, qsize uintptr) {
	class := floorLog2Class(qsize, a.classes)
	seg.class = class
	seg.flNode = a.freelists[class].Append(seg)
}

// linkFreelistFront inserts seg at the front of the freelist for its size
// class. Used for split remainders and released segments, so that the
// most recently freed segment of a class is reused first.
func (a *Allocator) linkFreelistFront(seg *segment, qsize uintptr) {
	class := floorLog2Class(qsize, a.classes)
	seg.class = class
	seg.flNode = a.freelists[class].InsertFront(seg)
}

func (a *Allocator) unlinkFreelist(seg *segment) {
	if seg.flNode == nil {
		return
	}
	a.freelists[seg.class].Remove(seg.flNode)
	seg.flNode = nil
}

// SegmentCount returns the number of segments currently tracked, free and
// allocated alike. Exposed for tests that check extent tiling.
func (a *Allocator) SegmentCount() int {
	a.mu.Acquire()
	defer a.mu.Release()
	return a.segments.Len()
}
