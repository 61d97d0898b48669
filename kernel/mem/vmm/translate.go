package vmm

import "memkernel/kernel"

// Translate walks the active page tables and returns the physical address
// that virtAddr currently maps to, or ErrPageNotPresent if any entry along
// the L4->L3->L2->L1 chain is not present. Translate never panics on a
// not-present path; it simply aborts the walk and reports the error.
func (pt *PageTables) Translate(virtAddr uintptr) (uintptr, *kernel.Error) {
	var (
		err      *kernel.Error = ErrPageNotPresent
		physBase uintptr
	)

	pt.walk(virtAddr, func(level int, entry *PageTableEntry) bool {
		if !entry.HasFlags(FlagPresent) {
			return false
		}
		if level == pageLevels-1 {
			physBase = entry.FrameAddress()
			err = nil
		}
		return true
	})

	if err != nil {
		return 0, err
	}
	return physBase + PageOffset(virtAddr), nil
}
