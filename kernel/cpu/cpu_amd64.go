// Package cpu exposes the handful of privileged x86_64 instructions the
// memory core needs: reading/writing CR3, invalidating a single TLB entry
// and toggling the interrupt flag. Each function below has no Go body; its
// implementation lives in the matching .s file.
package cpu

var (
	// cpuidFn is mocked by tests and is automatically inlined by the
	// compiler in the kernel build.
	cpuidFn = ID
)

// EnableInterrupts sets the interrupt flag (sti).
func EnableInterrupts()

// DisableInterrupts clears the interrupt flag (cli).
func DisableInterrupts()

// InterruptsEnabled reports whether the interrupt flag is currently set.
func InterruptsEnabled() bool

// Halt stops instruction execution until the next interrupt (hlt).
func Halt()

// ReadCR3 returns the raw contents of CR3: the physical base address of the
// active L4 table in bits 12..51, plus a handful of flag bits in the low 12
// bits that callers must mask off.
func ReadCR3() uintptr

// WriteCR3 installs a new L4 table as the active page table root. Writing
// CR3 implicitly flushes every non-global TLB entry.
func WriteCR3(pdtPhysAddr uintptr)

// InvalidatePage flushes the TLB entry that caches the translation for
// virtAddr (invlpg). It must be called after any modification to a present
// leaf entry, before the stale mapping can be observed again.
func InvalidatePage(virtAddr uintptr)

// ReadCR2 returns the contents of CR2, the faulting address saved by the CPU
// on the most recent page fault.
func ReadCR2() uintptr

// ID executes CPUID with EAX=leaf and returns the resulting EAX/EBX/ECX/EDX.
func ID(leaf uint32) (eax, ebx, ecx, edx uint32)

// IsIntel returns true if the code is running on an Intel processor.
func IsIntel() bool {
	_, ebx, ecx, edx := cpuidFn(0)
	return ebx == 0x756e6547 && // "Genu"
		edx == 0x49656e69 && // "ineI"
		ecx == 0x6c65746e // "ntel"
}
