package vmem

// SegmentView is a read-only snapshot of one segment, used by tests and
// diagnostics to inspect allocator state without exposing the internal
// node handles.
type SegmentView struct {
	Range Range
	Free  bool
	Class int
}

// Segments returns a snapshot of every segment currently tracked, in
// ascending order.
func (a *Allocator) Segments() []SegmentView {
	a.mu.Acquire()
	defer a.mu.Release()

	views := make([]SegmentView, 0, a.segments.Len())
	a.segments.Iter(func(seg **segment) bool {
		s := *seg
		views = append(views, SegmentView{Range: s.rng, Free: s.free, Class: s.class})
		return true
	})
	return views
}

// Quantum returns the allocator's configured quantum.
func (a *Allocator) Quantum() uintptr { return a.quantum }

// Classes returns the number of freelist size classes.
func (a *Allocator) Classes() int { return a.classes }
