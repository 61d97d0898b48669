package vmm

import (
	"memkernel/kernel"
	"testing"
)

func TestMapIfUnmappedAllocatesIntermediateTables(t *testing.T) {
	mem := newFakePhysMem(16)
	l4 := mem.allocPage()
	defer installFakeMem(mem, l4)()

	pt := NewPageTables(0)
	var allocated int
	nextFrame := func() (uintptr, *kernel.Error) {
		allocated++
		return mem.allocPage(), nil
	}

	if err := pt.MapIfUnmapped(0x4444_4444_0000, FlagRW, nextFrame); err != nil {
		t.Fatalf("MapIfUnmapped failed: %v", err)
	}
	// The L3, L2 and L1 tables and the leaf frame must each be freshly
	// allocated; the L4 table already exists.
	if allocated != 4 {
		t.Fatalf("expected 4 frames to be allocated, got %d", allocated)
	}

	phys, err := pt.Translate(0x4444_4444_0123)
	if err != nil {
		t.Fatalf("Translate failed after mapping: %v", err)
	}
	if leafBase := phys &^ 0xfff; leafBase == 0 {
		t.Fatalf("expected a non-zero leaf frame, translate returned %#x", phys)
	}
}

func TestMapIfUnmappedIsIdempotent(t *testing.T) {
	mem := newFakePhysMem(16)
	l4 := mem.allocPage()
	defer installFakeMem(mem, l4)()

	pt := NewPageTables(0)
	nextFrame := func() (uintptr, *kernel.Error) { return mem.allocPage(), nil }

	if err := pt.MapIfUnmapped(0x1000, FlagRW, nextFrame); err != nil {
		t.Fatalf("first MapIfUnmapped failed: %v", err)
	}
	firstPhys, err := pt.Translate(0x1000)
	if err != nil {
		t.Fatalf("Translate failed: %v", err)
	}

	// A second call for the same address must not touch the existing
	// leaf entry, even though nextFrame would happily hand out a fresh
	// frame if asked.
	if err := pt.MapIfUnmapped(0x1000, FlagRW, nextFrame); err != nil {
		t.Fatalf("second MapIfUnmapped failed: %v", err)
	}

	phys, err := pt.Translate(0x1000)
	if err != nil {
		t.Fatalf("Translate failed: %v", err)
	}
	if phys != firstPhys {
		t.Fatalf("expected original frame %#x to remain mapped, got %#x", firstPhys, phys)
	}
}

func TestMapIfUnmappedPropagatesAllocatorFailure(t *testing.T) {
	mem := newFakePhysMem(4)
	l4 := mem.allocPage()
	defer installFakeMem(mem, l4)()

	pt := NewPageTables(0)
	wantErr := &kernel.Error{Module: "test", Message: "exhausted"}
	nextFrame := func() (uintptr, *kernel.Error) { return 0, wantErr }

	if err := pt.MapIfUnmapped(0x1000, FlagRW, nextFrame); err != wantErr {
		t.Fatalf("expected %v, got %v", wantErr, err)
	}
}

func TestUnmapClearsPresentAndFlushesTLB(t *testing.T) {
	mem := newFakePhysMem(16)
	l4 := mem.allocPage()
	defer installFakeMem(mem, l4)()

	var flushed []uintptr
	origInvalidate := invalidatePageFn
	invalidatePageFn = func(v uintptr) { flushed = append(flushed, v) }
	defer func() { invalidatePageFn = origInvalidate }()

	pt := NewPageTables(0)
	nextFrame := func() (uintptr, *kernel.Error) { return mem.allocPage(), nil }
	if err := pt.MapIfUnmapped(0x1000, FlagRW, nextFrame); err != nil {
		t.Fatalf("MapIfUnmapped failed: %v", err)
	}
	mappedPhys, err := pt.Translate(0x1000)
	if err != nil {
		t.Fatalf("Translate failed: %v", err)
	}

	former, err := pt.Unmap(0x1000)
	if err != nil {
		t.Fatalf("Unmap failed: %v", err)
	}
	if former.FrameAddress() != mappedPhys {
		t.Fatalf("expected former entry to reference %#x, got %#x", mappedPhys, former.FrameAddress())
	}
	if len(flushed) != 1 || flushed[0] != 0x1000 {
		t.Fatalf("expected a single TLB flush for 0x1000, got %v", flushed)
	}

	if _, err := pt.Translate(0x1000); err != ErrPageNotPresent {
		t.Fatalf("expected page to be unmapped, got err=%v", err)
	}
}

func TestUnmapNotPresentReturnsError(t *testing.T) {
	mem := newFakePhysMem(4)
	l4 := mem.allocPage()
	defer installFakeMem(mem, l4)()

	pt := NewPageTables(0)
	if _, err := pt.Unmap(0xbaadf00d000); err != ErrPageNotPresent {
		t.Fatalf("expected ErrPageNotPresent, got %v", err)
	}
}
