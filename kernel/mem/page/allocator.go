// Package page implements the kernel's page allocator (C5): it composes
// two resource allocators — one tracking virtual page extents, one
// tracking physical frames — with the live page table, handing out
// virtually contiguous, physically backed memory and keeping the two in
// sync as pages are mapped and unmapped.
package page

import (
	"math/bits"
	"memkernel/kernel"
	"memkernel/kernel/mem"
	"memkernel/kernel/mem/vmem"
	"memkernel/kernel/mem/vmm"
	"memkernel/kernel/sync"
)

var pageSize = uintptr(mem.PageSize)

// freelistClasses mirrors the resource allocator's default of one class
// per bit of the machine word.
const freelistClasses = bits.UintSize

// maxSegments bounds how many live extents vmem/pmem can track at once.
// Every Add and every split adds at most one segment (a release never adds
// one), so this is generous for any memory map a freestanding kernel of this
// scale will see; it exists at all because the allocator must remain
// usable before the global heap is, so its bookkeeping comes from a fixed
// arena rather than the Go heap.
const maxSegments = 4096

// Allocator is the page-granular allocator published once bootstrap
// completes. Every frame allocation after that point goes through it;
// nothing is permitted to touch raw frames directly.
type Allocator struct {
	mu sync.Spinlock

	pt *vmm.PageTables

	vmem *vmem.Allocator // virtual page extents
	pmem *vmem.Allocator // physical frames

	physOffset uintptr
}

// New returns a page allocator bound to pt. Init must be called before any
// Allocate/AllocateFrame/Deallocate call.
func New(pt *vmm.PageTables, physOffset uintptr) *Allocator {
	return &Allocator{
		pt:         pt,
		vmem:       vmem.NewWithCapacity(pageSize, freelistClasses, maxSegments),
		pmem:       vmem.NewWithCapacity(pageSize, freelistClasses, maxSegments),
		physOffset: physOffset,
	}
}

// Init populates vmem from the L4 slots the bootloader left present, and
// pmem from the usable regions of memoryMap, skipping the first
// usedFrames frames in aggregate (already consumed by the bootstrap
// heap). Regions are drained from the front, in the order memoryMap
// presents them.
func (a *Allocator) Init(memoryMap MemoryMap, usedFrames uint64) {
	a.mu.Acquire()
	defer a.mu.Release()

	a.pt.Lock()
	l4 := a.pt.CurrentL4()
	for i, entry := range l4 {
		if entry.HasFlags(vmm.FlagPresent) {
			start := uintptr(i) * uintptr(mem.L4SlotSpan)
			a.vmem.Add(vmem.Range{Start: start, End: start + uintptr(mem.L4SlotSpan)})
		}
	}
	a.pt.Unlock()

	toDrop := usedFrames
	for _, region := range memoryMap {
		if region.Kind != Usable {
			continue
		}
		count := region.FrameCount()
		if count <= toDrop {
			toDrop -= count
			continue
		}
		start := region.StartFrame + toDrop
		a.pmem.Add(vmem.Range{
			Start: uintptr(start) * pageSize,
			End:   uintptr(region.EndFrame) * pageSize,
		})
		toDrop = 0
	}
}

// AllocateFrame reserves a single physical frame and returns a
// kernel-virtual pointer to it through the identity-offset window.
func (a *Allocator) AllocateFrame() (uintptr, *kernel.Error) {
	a.mu.Acquire()
	defer a.mu.Release()

	rng, err := a.pmem.Allocate(pageSize)
	if err != nil {
		return 0, err
	}
	return rng.Start + a.physOffset, nil
}

// leafMapping records the one leaf frame MapIfUnmapped installed for a
// given page, so a failed Allocate can undo exactly that and nothing more.
type leafMapping struct {
	addr, frame uintptr
}

// Allocate reserves a virtually contiguous region of size bytes (rounded
// up to whole pages), backs every page with a freshly allocated frame and
// installs the mapping. On any failure partway through, every page already
// mapped for this call is unmapped and its leaf frame released, and the
// virtual extent itself is released, before returning vmem.ErrExhausted.
//
// Any page-table frame MapIfUnmapped had to install along the way — for
// the page that failed or for an earlier page in this same call — is never
// released: table frames belong to the page-table subsystem for good once
// installed, the same as on the success path and in Deallocate.
func (a *Allocator) Allocate(size uintptr) (uintptr, *kernel.Error) {
	a.mu.Acquire()
	defer a.mu.Release()

	virt, err := a.vmem.Allocate(size)
	if err != nil {
		return 0, err
	}

	var mapped []leafMapping
	for addr := virt.Start; addr < virt.End; addr += pageSize {
		var framesThisPage []uintptr
		nextFrame := func() (uintptr, *kernel.Error) {
			frame, ferr := a.pmem.Allocate(pageSize)
			if ferr != nil {
				return 0, ferr
			}
			framesThisPage = append(framesThisPage, frame.Start)
			return frame.Start, nil
		}

		a.pt.Lock()
		mapErr := a.pt.MapIfUnmapped(addr, vmm.FlagRW, nextFrame)
		a.pt.Unlock()
		if mapErr != nil {
			a.unwindAllocate(virt, mapped)
			return 0, vmem.ErrExhausted
		}

		// The walk allocates top-down: once any level needs a fresh
		// frame, every level below it is fresh too, down to the leaf.
		// So whenever this page drew any frames at all, the last one
		// handed out is the leaf; anything before it is a table frame
		// that stays installed regardless of how this call ends.
		if n := len(framesThisPage); n > 0 {
			mapped = append(mapped, leafMapping{addr: addr, frame: framesThisPage[n-1]})
		}
	}

	return virt.Start, nil
}

// unwindAllocate undoes a failed Allocate: every page recorded in mapped is
// unmapped and its leaf frame returned to pmem, then the virtual extent
// itself is released. Table frames installed along the way are left in
// place.
func (a *Allocator) unwindAllocate(virt vmem.Range, mapped []leafMapping) {
	for _, m := range mapped {
		a.pt.Lock()
		a.pt.Unmap(m.addr)
		a.pt.Unlock()
		a.pmem.Release(vmem.Range{Start: m.frame, End: m.frame + pageSize})
	}
	a.vmem.Release(virt)
}

// VirtualSegments returns a snapshot of the virtual extent pool's
// segments. Exposed for diagnostics and tests.
func (a *Allocator) VirtualSegments() []vmem.SegmentView { return a.vmem.Segments() }

// PhysicalSegments returns a snapshot of the physical frame pool's
// segments. Exposed for diagnostics and tests.
func (a *Allocator) PhysicalSegments() []vmem.SegmentView { return a.pmem.Segments() }

// Deallocate unmaps and releases every page in [ptr, ptr+size), returning
// both the backing frames and the virtual extent to their respective
// pools.
func (a *Allocator) Deallocate(ptr, size uintptr) {
	a.mu.Acquire()
	defer a.mu.Release()

	for addr := ptr; addr < ptr+size; addr += pageSize {
		a.pt.Lock()
		entry, err := a.pt.Unmap(addr)
		a.pt.Unlock()
		if err != nil {
			continue
		}
		frame := entry.FrameAddress()
		a.pmem.Release(vmem.Range{Start: frame, End: frame + pageSize})
	}

	a.vmem.Release(vmem.Range{Start: ptr, End: ptr + size})
}
