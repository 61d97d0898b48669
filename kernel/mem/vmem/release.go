package vmem

// Release returns a range previously produced by Allocate to the pool,
// coalescing it with an abutting free predecessor and/or successor in the
// segment list before reinserting it into the appropriate freelist.
//
// Release panics if rng.Start was not found in the allocated table: this
// indicates a programming error (double release, or a range this
// allocator never handed out), which the resource allocator's contract
// treats as fatal rather than recoverable.
func (a *Allocator) Release(rng Range) {
	a.mu.Acquire()
	defer a.mu.Release()

	seg, ok := a.allocated[rng.Start]
	if !ok {
		panic("vmem: release of unallocated range")
	}
	delete(a.allocated, rng.Start)
	seg.free = true

	working := seg
	if pred := working.node.Prev(); pred != nil {
		predSeg := pred.Value
		if predSeg.free && predSeg.rng.End == working.rng.Start {
			a.unlinkFreelist(predSeg)
			a.segments.Remove(working.node)
			predSeg.rng.End = working.rng.End
			working = predSeg
		}
	}

	if succ := working.node.Next(); succ != nil {
		succSeg := succ.Value
		if succSeg.free && working.rng.End == succSeg.rng.Start {
			a.unlinkFreelist(succSeg)
			working.rng.End = succSeg.rng.End
			a.segments.Remove(succ)
		}
	}

	qsize := working.rng.Size() / a.quantum
	a.linkFreelistFront(working, qsize)
}
