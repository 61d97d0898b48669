package page

// RegionKind classifies one record of the boot-time memory map.
type RegionKind uint8

const (
	// Usable marks RAM the bootloader did not claim for itself; the only
	// kind the page allocator ever draws frames from.
	Usable RegionKind = iota
	Reserved
	Bootloader
	Kernel
)

// Region is one record of the boot-time memory map: a half-open range of
// frame numbers (not byte addresses) and the use the bootloader made of
// it, if any.
type Region struct {
	StartFrame uint64
	EndFrame   uint64
	Kind       RegionKind
}

// FrameCount returns the number of frames spanned by the region.
func (r Region) FrameCount() uint64 { return r.EndFrame - r.StartFrame }

// MemoryMap is an ordered, non-overlapping sequence of memory regions as
// reported by the bootloader.
type MemoryMap []Region
