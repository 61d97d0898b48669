package boot

import (
	"memkernel/kernel"
	"memkernel/kernel/kfmt"
	"memkernel/kernel/mem"
	"memkernel/kernel/mem/heap"
	"memkernel/kernel/mem/page"
	"memkernel/kernel/mem/vmm"
	"memkernel/kernel/sync"
)

var errHeapInitFailed = &kernel.Error{Module: "boot", Message: "out of usable frames while mapping the kernel heap"}

// panicFn is kfmt.Panic, overridden by tests with a closure that falls back
// to the builtin panic so recover() still works: kfmt.Panic halts the CPU
// and never returns, which would hang a test instead of failing it.
var panicFn = kfmt.Panic

const (
	// KernelHeapStart is the fixed virtual address the bump allocator's
	// range begins at, chosen far outside any identity-mapped or
	// bootloader-reserved window.
	KernelHeapStart = uintptr(0x4444_4444_0000)

	// KernelHeapSize is the size of the range mapped for the bump
	// allocator during bootstrap.
	KernelHeapSize = uintptr(100 * mem.Kb)
)

var (
	stateMu sync.Spinlock
	started bool

	heapAlloc *heap.Bump
	pageAlloc *page.Allocator
)

// usableFrames returns an iterator over the frame addresses of memoryMap's
// Usable regions, in the order the map presents them, along with a
// function reporting how many frames the iterator has yielded so far. This
// is the one hand-made frame source the kernel ever uses; every allocation
// after Bootstrap returns goes through the page allocator it publishes.
func usableFrames(memoryMap page.MemoryMap) (next func() (uintptr, bool), consumed func() uint64) {
	var (
		regionIdx int
		frameOff  uint64
		count     uint64
	)

	next = func() (uintptr, bool) {
		for regionIdx < len(memoryMap) {
			region := memoryMap[regionIdx]
			if region.Kind != page.Usable || frameOff >= region.FrameCount() {
				regionIdx++
				frameOff = 0
				continue
			}
			frameNo := region.StartFrame + frameOff
			frameOff++
			count++
			return uintptr(frameNo) * uintptr(mem.PageSize), true
		}
		return 0, false
	}
	consumed = func() uint64 { return count }
	return next, consumed
}

// Bootstrap runs the kernel's one-shot memory bring-up, in the mandatory
// order: map the kernel heap range by hand from raw usable frames, bring
// the bump allocator up over it, then construct the page allocator from
// the remaining frames and publish it. It must be called exactly once,
// before interrupts are enabled, with pt already pointing at the L4 table
// the loader left active.
//
// Bootstrap panics if the memory map is exhausted before the heap is
// fully mapped, or if it is called more than once.
func Bootstrap(info Info, pt *vmm.PageTables) {
	stateMu.Acquire()
	defer stateMu.Release()

	if started {
		panicFn("boot: Bootstrap called more than once")
		return
	}
	started = true

	next, consumed := usableFrames(info.MemoryMap)
	nextFrame := func() (uintptr, *kernel.Error) {
		frame, ok := next()
		if !ok {
			return 0, errHeapInitFailed
		}
		return frame, nil
	}

	pt.Lock()
	for addr := KernelHeapStart; addr < KernelHeapStart+KernelHeapSize; addr += uintptr(mem.PageSize) {
		if err := pt.MapIfUnmapped(addr, vmm.FlagRW, nextFrame); err != nil {
			pt.Unlock()
			panicFn(err)
			return
		}
	}
	pt.Unlock()

	heapAlloc = heap.New(KernelHeapStart, KernelHeapSize)

	pageAlloc = page.New(pt, info.PhysicalMemoryOffset)
	pageAlloc.Init(info.MemoryMap, consumed())

	kfmt.Printf("boot: heap ready [%x-%x), page allocator published\n", KernelHeapStart, KernelHeapStart+KernelHeapSize)
}

// Heap returns the global bump allocator published by Bootstrap. It panics
// if called before Bootstrap has run.
func Heap() *heap.Bump {
	stateMu.Acquire()
	defer stateMu.Release()
	if heapAlloc == nil {
		panicFn("boot: Heap called before Bootstrap")
		return nil
	}
	return heapAlloc
}

// PageAllocator returns the global page allocator published by Bootstrap.
// It panics if called before Bootstrap has run.
func PageAllocator() *page.Allocator {
	stateMu.Acquire()
	defer stateMu.Release()
	if pageAlloc == nil {
		panicFn("boot: PageAllocator called before Bootstrap")
		return nil
	}
	return pageAlloc
}
