package vmm

import "unsafe"

// fakePhysMem backs every test in this package: a flat byte slice that
// stands in for physical RAM. Test "physical addresses" are simply byte
// offsets into this slice, and physOffset is always 0, so tableAtFn can
// translate them without any arithmetic beyond a bounds-checked slice
// index.
type fakePhysMem struct {
	bytes []byte
	next  uintptr // next unused, page-aligned offset
}

func newFakePhysMem(pages int) *fakePhysMem {
	return &fakePhysMem{bytes: make([]byte, pages*int(pageSizeForTest))}
}

const pageSizeForTest = 4096

// allocPage hands out the next page-aligned region of fake physical memory,
// standing in for a frame allocator during tests.
func (f *fakePhysMem) allocPage() uintptr {
	addr := f.next
	f.next += pageSizeForTest
	if int(f.next) > len(f.bytes) {
		panic("fakePhysMem: out of pages")
	}
	return addr
}

func (f *fakePhysMem) tableAt(physAddr uintptr) *Table {
	return (*Table)(unsafe.Pointer(&f.bytes[physAddr]))
}

// installFakeMem points every indirection this package uses at mem so
// tests can build and walk page tables without touching real hardware.
// It returns a restore func to undo the substitution.
func installFakeMem(mem *fakePhysMem, l4Phys uintptr) func() {
	origReadCR3 := readCR3Fn
	origTableAt := tableAtFn
	origInvalidate := invalidatePageFn

	readCR3Fn = func() uintptr { return l4Phys }
	tableAtFn = func(physAddr, _ uintptr) *Table { return mem.tableAt(physAddr) }
	invalidatePageFn = func(uintptr) {}

	return func() {
		readCR3Fn = origReadCR3
		tableAtFn = origTableAt
		invalidatePageFn = origInvalidate
	}
}
