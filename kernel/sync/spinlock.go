// Package sync provides synchronization primitives that do not depend on
// the Go scheduler: every core from the bootstrap processor through the
// last application processor shares memory but not a runtime, so locking
// here means busy-waiting on a shared word, not parking a goroutine.
package sync

import (
	"sync/atomic"

	"github.com/calint/uefi-os/cpu"
)

// spinsBeforeYield bounds how many PAUSE-backed attempts Acquire makes
// before calling yieldFn.
const spinsBeforeYield = 1024

// yieldFn is invoked after spinsBeforeYield failed attempts. It defaults to
// a PAUSE and is swapped out in tests to avoid tying test runtime to the
// spin count.
var yieldFn = cpu.Pause

// Spinlock implements a lock where each core trying to acquire it busy-waits
// until the lock becomes available. It serializes access to state shared
// between cores; no package in this tree takes one.
type Spinlock struct {
	state uint32
}

// Acquire blocks until the lock can be acquired by the calling core. Any
// attempt to re-acquire a lock already held by the caller deadlocks.
func (l *Spinlock) Acquire() {
	attempts := uint32(0)
	for !l.TryToAcquire() {
		attempts++
		if attempts >= spinsBeforeYield {
			yieldFn()
			attempts = 0
			continue
		}
		cpu.Pause()
	}
}

// TryToAcquire attempts to acquire the lock and returns true if the lock was
// free and is now held by the caller.
func (l *Spinlock) TryToAcquire() bool {
	return atomic.SwapUint32(&l.state, 1) == 0
}

// Release relinquishes a held lock. Calling Release while the lock is free
// has no effect.
func (l *Spinlock) Release() {
	atomic.StoreUint32(&l.state, 0)
}
