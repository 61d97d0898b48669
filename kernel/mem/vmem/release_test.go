package vmem

import (
	"math/bits"
	"testing"
)

func TestReleaseCoalescesWithPredecessorAndSuccessor(t *testing.T) {
	a := New(1, 8)
	a.Add(Range{0, 30})

	r1, err := a.Allocate(10) // [0,10)
	if err != nil {
		t.Fatal(err)
	}
	r2, err := a.Allocate(10) // [10,20)
	if err != nil {
		t.Fatal(err)
	}
	r3, err := a.Allocate(10) // [20,30)
	if err != nil {
		t.Fatal(err)
	}

	a.Release(r1)
	a.Release(r3)
	a.Release(r2) // should coalesce with both neighbors back into [0,30)

	segs := a.Segments()
	if len(segs) != 1 {
		t.Fatalf("expected full coalescing back into one segment, got %v", segs)
	}
	if segs[0].Range != (Range{0, 30}) || !segs[0].Free {
		t.Fatalf("unexpected merged segment: %+v", segs[0])
	}
}

func TestReleaseOfUnknownRangePanics(t *testing.T) {
	a := New(1, 8)
	a.Add(Range{0, 10})

	defer func() {
		if recover() == nil {
			t.Fatal("expected Release of an unallocated range to panic")
		}
	}()
	a.Release(Range{100, 110})
}

// TestExtentTilingInvariant covers invariant #3: after a sequence of
// add/allocate/release, segments form an ascending, gap-free partition of
// the added ranges with no two adjacent free segments.
func TestExtentTilingInvariant(t *testing.T) {
	a := New(1, 8)
	a.Add(Range{0, 40})

	var live []Range
	for i := 0; i < 4; i++ {
		r, err := a.Allocate(5)
		if err != nil {
			t.Fatal(err)
		}
		live = append(live, r)
	}
	a.Release(live[1])
	a.Release(live[3])

	segs := a.Segments()
	var prevEnd uintptr
	var prevFree bool
	for i, s := range segs {
		if i > 0 && s.Range.Start != prevEnd {
			t.Fatalf("gap in tiling before segment %d: %+v", i, segs)
		}
		if i > 0 && prevFree && s.Free {
			t.Fatalf("two adjacent free segments at index %d: %+v", i, segs)
		}
		prevEnd = s.Range.End
		prevFree = s.Free
	}
	if prevEnd != 40 {
		t.Fatalf("expected tiling to cover up to 40, ended at %d", prevEnd)
	}
}

// TestFreelistClassInvariant covers invariant #4: every free segment of
// size s sits in freelist min(M-1, floor(log2(floor(s/Q)))).
func TestFreelistClassInvariant(t *testing.T) {
	const quantum = 4
	const classes = 6
	a := New(quantum, classes)
	a.Add(Range{0, 4 * 100})

	r, err := a.Allocate(4 * 37) // carve an oddly sized remainder
	if err != nil {
		t.Fatal(err)
	}
	a.Release(r)

	for _, s := range a.Segments() {
		if !s.Free {
			continue
		}
		qsize := s.Range.Size() / quantum
		want := bits.Len64(uint64(qsize)) - 1
		if want >= classes {
			want = classes - 1
		}
		if want < 0 {
			want = 0
		}
		if s.Class != want {
			t.Errorf("segment %v: expected class %d, got %d", s.Range, want, s.Class)
		}
	}
}

// TestReleaseIsInverseOfAllocate covers invariant #5: allocate then
// immediate release restores the same segment count and sizes.
func TestReleaseIsInverseOfAllocate(t *testing.T) {
	a := New(1, 8)
	a.Add(Range{0, 50})

	before := a.Segments()
	r, err := a.Allocate(12)
	if err != nil {
		t.Fatal(err)
	}
	a.Release(r)
	after := a.Segments()

	if len(before) != len(after) {
		t.Fatalf("segment count changed: before=%d after=%d", len(before), len(after))
	}
	for i := range before {
		if before[i].Range != after[i].Range || before[i].Free != after[i].Free {
			t.Fatalf("segment %d changed: before=%+v after=%+v", i, before[i], after[i])
		}
	}
}
