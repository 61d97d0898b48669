// Package sync provides the synchronization primitives used to guard
// globally reachable allocator state: a busy-wait spinlock and a scoped
// interrupt-disable guard. Lock order is always page-allocator before
// page-table; nesting the other way around is a bug in the caller.
package sync

import "sync/atomic"

var (
	// TODO: replace with real yield function when context-switching is implemented.
	yieldFn func()

	spinAttemptsBeforeYield uint32 = 4096
)

// Spinlock implements a lock where each task trying to acquire it busy-waits
// till the lock becomes available. It must never be held across a call that
// can fault into code that re-acquires the same lock.
type Spinlock struct {
	state uint32
}

// Acquire blocks until the lock can be acquired by the currently active task.
// Any attempt to re-acquire a lock already held by the current task will
// cause a deadlock.
func (l *Spinlock) Acquire() {
	var attempts uint32
	for !l.TryToAcquire() {
		attempts++
		if attempts >= spinAttemptsBeforeYield && yieldFn != nil {
			yieldFn()
			attempts = 0
		}
	}
}

// TryToAcquire attempts to acquire the lock and returns true if the lock
// could be acquired or false otherwise.
func (l *Spinlock) TryToAcquire() bool {
	return atomic.CompareAndSwapUint32(&l.state, 0, 1)
}

// Release relinquishes a held lock allowing other tasks to acquire it.
// Calling Release while the lock is free has no effect.
func (l *Spinlock) Release() {
	atomic.StoreUint32(&l.state, 0)
}
