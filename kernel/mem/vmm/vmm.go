// Package vmm implements the four-level x86_64 page table walker: it
// translates virtual addresses, lazily maps new pages into the active
// address space and unmaps them again. Unlike a recursive-mapping scheme,
// every table is reached by adding a fixed physical-memory offset to its
// physical base address, so the walker never has to borrow address space
// from the mapping it is building.
package vmm

import (
	"math"
	"memkernel/kernel"
	"memkernel/kernel/mem"
)

const (
	// pageLevels is the number of page table levels the amd64 MMU walks
	// (L4, L3, L2, L1).
	pageLevels = 4

	// entriesPerTable is the number of 8-byte entries in every table at
	// every level.
	entriesPerTable = 512

	// ptePhysPageMask extracts the physical frame address (bits 12..51)
	// encoded in a page table entry.
	ptePhysPageMask = uintptr(0x000ffffffffff000)

	// pteFlagsMask extracts the flag bits (the low 12 bits plus the NX
	// bit) of a page table entry.
	pteFlagsMask = uintptr(0xfff) | uintptr(1)<<63

	// cr3AddrMask extracts the physical base address of the active L4
	// table from the value of CR3, discarding the low 12 reserved/flag
	// bits.
	cr3AddrMask = uintptr(math.MaxUint64) &^ uintptr(0xfff)
)

// pageLevelShifts gives the bit offset of the 9-bit index for each level,
// highest level first: L4, L3, L2, L1.
var pageLevelShifts = [pageLevels]uint{39, 30, 21, 12}

// ErrPageNotPresent is returned by Translate when the requested virtual
// address has no mapping.
var ErrPageNotPresent = &kernel.Error{Module: "vmm", Message: "virtual address does not point to a mapped physical page"}

// errNoFrame describes a caller-supplied frame allocator running out while
// mapping a new page. Nothing in this package returns it: MapIfUnmapped
// propagates the frame allocator's own error instead.
var errNoFrame = &kernel.Error{Module: "vmm", Message: "no physical frame available to back a new page table"}

// PageTableEntryFlag describes a flag bit of a page table entry.
type PageTableEntryFlag uintptr

const (
	// FlagPresent is set when the entry points to a mapped frame/table.
	FlagPresent PageTableEntryFlag = 1 << iota

	// FlagRW permits writes to the mapped page.
	FlagRW

	// FlagUser allows user-mode access (unused by this kernel; carried
	// for parity with the hardware format).
	FlagUser

	// FlagWriteThrough selects write-through caching.
	FlagWriteThrough

	// FlagNoCache disables caching of the mapped page.
	FlagNoCache

	// FlagAccessed is set by the CPU on first access.
	FlagAccessed

	// FlagDirty is set by the CPU on first write.
	FlagDirty

	// FlagHugePage marks a 2MiB/1GiB leaf entry. MapIfUnmapped refuses to
	// descend through one; Translate and Unmap do not check for it.
	FlagHugePage
)

// FlagNoExecute marks the mapped page non-executable. It occupies the MSB
// of the entry, outside the contiguous iota run above.
const FlagNoExecute PageTableEntryFlag = 1 << 63

// defaultMapFlags is the flag pattern MapIfUnmapped installs on every
// intermediate table it creates: present, writable, user, accessed (0x27).
const defaultMapFlags = FlagPresent | FlagRW | FlagUser | FlagAccessed

// PageTableEntry is a single 64-bit slot in any of the four table levels.
// It encodes a physical frame address plus flag bits.
type PageTableEntry uintptr

// HasFlags returns true if every bit in flags is set on pte.
func (pte PageTableEntry) HasFlags(flags PageTableEntryFlag) bool {
	return uintptr(pte)&uintptr(flags) == uintptr(flags)
}

// SetFlags ORs flags into pte.
func (pte *PageTableEntry) SetFlags(flags PageTableEntryFlag) {
	*pte = PageTableEntry(uintptr(*pte) | uintptr(flags))
}

// ClearFlags clears flags from pte.
func (pte *PageTableEntry) ClearFlags(flags PageTableEntryFlag) {
	*pte = PageTableEntry(uintptr(*pte) &^ uintptr(flags))
}

// FrameAddress returns the physical address encoded in pte.
func (pte PageTableEntry) FrameAddress() uintptr {
	return uintptr(pte) & ptePhysPageMask
}

// SetFrameAddress replaces the physical address encoded in pte, leaving its
// flag bits untouched.
func (pte *PageTableEntry) SetFrameAddress(physAddr uintptr) {
	*pte = PageTableEntry((uintptr(*pte) &^ ptePhysPageMask) | (physAddr & ptePhysPageMask))
}

// Table is one level of the page table hierarchy: 512 8-byte entries packed
// into exactly one page frame.
type Table [entriesPerTable]PageTableEntry

// FrameAllocatorFn supplies a single physical frame. It is invoked by
// MapIfUnmapped whenever a table at some level, or the leaf page itself, is
// not yet present.
type FrameAllocatorFn func() (physAddr uintptr, err *kernel.Error)

// indexFor extracts the 9-bit index into the table at the given level
// (0 == L4 down to 3 == L1) from a virtual address.
func indexFor(level int, virtAddr uintptr) uintptr {
	return (virtAddr >> pageLevelShifts[level]) & (entriesPerTable - 1)
}

// PageOffset returns the offset of virtAddr within its containing page.
func PageOffset(virtAddr uintptr) uintptr {
	return virtAddr & uintptr(mem.PageSize-1)
}
