package vmem

import "memkernel/kernel"

// Allocate reserves a span of size bytes, rounded up to a whole number of
// quanta, and returns the resulting range. It first tries the fast path
// (any segment in a class guaranteed big enough), then falls back to a
// linear scan of the one class that might still hold a big-enough segment
// despite not being power-of-two-aligned to the request, and finally
// fails with ErrExhausted.
func (a *Allocator) Allocate(size uintptr) (Range, *kernel.Error) {
	a.mu.Acquire()
	defer a.mu.Release()

	qsize := (size + a.quantum - 1) / a.quantum
	if qsize < 1 {
		qsize = 1
	}
	allocSize := qsize * a.quantum

	seg := a.takeFastPath(qsize)
	if seg == nil {
		seg = a.takeSlowPath(qsize, allocSize)
	}
	if seg == nil {
		return Range{}, ErrExhausted
	}

	a.splitIfNeeded(seg, allocSize)

	seg.free = false
	seg.flNode = nil
	a.allocated[seg.rng.Start] = seg
	return seg.rng, nil
}

// takeFastPath scans freelist classes from ceil(log2(qsize)) upward and
// takes the first segment big enough for qsize quanta. Below the top class
// that is always the front segment, by the class invariant; the top class
// has no upper bound, so its segments are checked one by one.
func (a *Allocator) takeFastPath(qsize uintptr) *segment {
	allocSize := qsize * a.quantum
	start := ceilLog2Class(qsize, a.classes)
	for class := start; class < a.classes; class++ {
		for n := a.freelists[class].Front(); n != nil; n = n.Next() {
			if n.Value.rng.Size() >= allocSize {
				seg := n.Value
				a.unlinkFreelist(seg)
				return seg
			}
		}
	}
	return nil
}

// takeSlowPath handles non-power-of-two request sizes: the fast path's
// starting class is strictly above floor(log2(qsize)), so a segment
// sitting in that lower class might still be large enough even though its
// class alone doesn't guarantee it. Scan linearly for the first fit.
func (a *Allocator) takeSlowPath(qsize, allocSize uintptr) *segment {
	floor := floorLog2Class(qsize, a.classes)
	ceil := ceilLog2Class(qsize, a.classes)
	if floor >= ceil {
		// qsize is an exact power of two (or clipped into the top
		// class); the fast path already covered this class.
		return nil
	}

	fl := a.freelists[floor]
	for n := fl.Front(); n != nil; n = n.Next() {
		if n.Value.rng.Size() >= allocSize {
			seg := n.Value
			a.unlinkFreelist(seg)
			return seg
		}
	}
	return nil
}

// splitIfNeeded carves the caller's allocSize off the front of seg when
// enough is left over to form a new free segment of at least one quantum.
// The remainder is inserted into the segment list right after seg and
// pushed to the front of its class's freelist.
func (a *Allocator) splitIfNeeded(seg *segment, allocSize uintptr) {
	leftover := seg.rng.Size() - allocSize
	if leftover < a.quantum {
		return
	}

	remainder := &segment{
		rng:  Range{Start: seg.rng.Start + allocSize, End: seg.rng.End},
		free: true,
	}
	seg.rng.End = seg.rng.Start + allocSize

	remainder.node = a.segments.InsertAfter(seg.node, remainder)
	qsize := remainder.rng.Size() / a.quantum
	a.linkFreelistFront(remainder, qsize)
}
