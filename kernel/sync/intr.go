package sync

import "memkernel/kernel/cpu"

var (
	interruptsEnabledFn = cpu.InterruptsEnabled
	disableInterruptsFn = cpu.DisableInterrupts
	enableInterruptsFn  = cpu.EnableInterrupts
)

// IntrGuard disables interrupts for the duration of a critical section and
// restores the prior interrupt-enable flag when the section exits, even if
// interrupts were already disabled on entry (nested guards are safe).
//
//	guard := sync.DisableInterrupts()
//	defer guard.Restore()
type IntrGuard struct {
	wasEnabled bool
}

// DisableInterrupts disables interrupts and returns a guard that restores
// the flag's previous state. Any code path that acquires an allocator lock
// must hold a guard from just before Acquire until just after Release.
func DisableInterrupts() IntrGuard {
	wasEnabled := interruptsEnabledFn()
	disableInterruptsFn()
	return IntrGuard{wasEnabled: wasEnabled}
}

// Restore re-enables interrupts if they were enabled when the guard was
// created. Calling Restore more than once has no effect beyond the first
// call.
func (g *IntrGuard) Restore() {
	if g.wasEnabled {
		enableInterruptsFn()
		g.wasEnabled = false
	}
}
