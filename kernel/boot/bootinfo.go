// Package boot assembles the boot-time inputs handed to the kernel by its
// loader into the one-shot sequence that brings the memory core up: mapping
// the initial heap by hand, then handing every remaining frame to the page
// allocator.
package boot

import "memkernel/kernel/mem/page"

// Info is the structure the loader leaves for the kernel: the constant
// that turns a physical address into a kernel-virtual pointer through the
// identity-offset window, and the memory map it discovered.
type Info struct {
	PhysicalMemoryOffset uintptr
	MemoryMap            page.MemoryMap
}
