// Package ipc implements the synchronization primitives of spec.md
// §4.6 and §5: spinlocks, condition variables, and counting
// semaphores. It has no dependency on the process/thread manager;
// internal/proc supplies the concrete Sleeper the condition variable
// and semaphore park/wake against, keeping the dependency graph
// acyclic (proc depends on ipc, never the reverse).
package ipc

import (
	"sync/atomic"

	"github.com/nanvix/kernel-sub003/internal/hal"
)

// Spinlock is a CAS-based mutual-exclusion primitive, per spec.md §5:
// "an integer in {0,1} with CAS-based acquire and release-store
// unlock". It implements sync.Locker so it can back a condition
// variable or be held directly across a short, non-blocking critical
// section.
type Spinlock struct {
	state atomic.Int32
}

// Lock spins until the CAS from 0->1 succeeds.
func (s *Spinlock) Lock() {
	for !s.state.CompareAndSwap(0, 1) {
		// busy-wait; no backoff per spec.md's "spins until CAS
		// succeeds" contract. A real core would also insert a PAUSE
		// instruction here; runtime.Gosched keeps this usable under
		// the cooperative, goroutine-hosted scheduler in internal/proc
		// without starving the Go scheduler itself.
		gosched()
	}
}

// TryLock attempts the CAS once and reports success without spinning.
func (s *Spinlock) TryLock() bool {
	return s.state.CompareAndSwap(0, 1)
}

// Unlock performs the release-store.
func (s *Spinlock) Unlock() {
	s.state.Store(0)
}

// Held reports whether the lock is currently held, for assertions.
func (s *Spinlock) Held() bool {
	return s.state.Load() == 1
}

// IRQSpinlock is a Spinlock that additionally masks the local
// interrupt line while held, per spec.md §5: "critical sections are
// demarcated by spinlocks which also mask the local interrupt line."
type IRQSpinlock struct {
	Spinlock
	savedIF bool
}

// Lock disables interrupts, saving the prior IF state, then acquires
// the underlying spinlock.
func (s *IRQSpinlock) Lock() {
	was := hal.DisableInterrupts()
	s.Spinlock.Lock()
	s.savedIF = was
}

// Unlock releases the spinlock and restores the saved IF state.
func (s *IRQSpinlock) Unlock() {
	was := s.savedIF
	s.Spinlock.Unlock()
	hal.RestoreInterrupts(was)
}
