package vmm

import (
	"memkernel/kernel"
	"memkernel/kernel/cpu"
	"memkernel/kernel/mem"
	"unsafe"
)

var (
	// invalidatePageFn flushes a single TLB entry. Overridden by tests
	// since invlpg faults outside of ring 0.
	invalidatePageFn = cpu.InvalidatePage

	// zeroTableFn clears a freshly allocated table frame before it is
	// linked into the hierarchy, so stale bytes are never mistaken for
	// entries. Tests leave it in place: their fake "physical memory" is an
	// ordinary Go byte slice that Memset can clear directly.
	zeroTableFn = func(t *Table) {
		kernel.Memset(uintptr(unsafe.Pointer(t)), 0, uintptr(mem.PageSize))
	}
)

// MapIfUnmapped ensures the full L4->L3->L2->L1 chain for virtAddr is
// present, allocating a fresh physical frame from nextFrame for any
// missing table or leaf along the way. The frames nextFrame returns are
// assumed to be otherwise unmapped; MapIfUnmapped zeroes each one itself
// before treating it as a table, and leaves the leaf's contents whatever
// nextFrame's caller already wrote to it.
//
// The final L1 entry, once present, is installed with the supplied flags.
// MapIfUnmapped only panics if nextFrame itself panics; callers that want
// a recoverable failure should have nextFrame return a *kernel.Error
// instead of panicking, which MapIfUnmapped will propagate.
func (pt *PageTables) MapIfUnmapped(virtAddr uintptr, flags PageTableEntryFlag, nextFrame FrameAllocatorFn) *kernel.Error {
	var err *kernel.Error

	pt.walk(virtAddr, func(level int, entry *PageTableEntry) bool {
		if level == pageLevels-1 {
			if !entry.HasFlags(FlagPresent) {
				leafPhys, allocErr := nextFrame()
				if allocErr != nil {
					err = allocErr
					return false
				}
				*entry = 0
				entry.SetFrameAddress(leafPhys)
				entry.SetFlags(flags | FlagPresent)
			}
			return true
		}

		if entry.HasFlags(FlagPresent) {
			if entry.HasFlags(FlagHugePage) {
				err = errNoHugePageSupport
				return false
			}
			return true
		}

		newTablePhys, allocErr := nextFrame()
		if allocErr != nil {
			err = allocErr
			return false
		}

		newTable := tableAtFn(newTablePhys, pt.physOffset)
		zeroTableFn(newTable)

		*entry = 0
		entry.SetFrameAddress(newTablePhys)
		entry.SetFlags(defaultMapFlags)
		return true
	})

	return err
}

// errNoHugePageSupport is returned when a walk encounters a huge-page leaf
// where it expected an intermediate table; 2MiB/1GiB pages are a Non-goal.
var errNoHugePageSupport = &kernel.Error{Module: "vmm", Message: "huge pages are not supported"}

// Unmap clears the present bit of the L1 entry for virtAddr, flushes its
// TLB entry and returns the entry's former value so the caller can recycle
// the frame it pointed to. Unmap returns ErrPageNotPresent if virtAddr was
// not mapped, leaving the page tables unchanged.
func (pt *PageTables) Unmap(virtAddr uintptr) (PageTableEntry, *kernel.Error) {
	var (
		err    *kernel.Error = ErrPageNotPresent
		former PageTableEntry
	)

	pt.walk(virtAddr, func(level int, entry *PageTableEntry) bool {
		if !entry.HasFlags(FlagPresent) {
			return false
		}
		if level != pageLevels-1 {
			return true
		}

		former = *entry
		entry.ClearFlags(FlagPresent)
		invalidatePageFn(virtAddr &^ uintptr(mem.PageSize-1))
		err = nil
		return true
	})

	if err != nil {
		return 0, err
	}
	return former, nil
}
