// Package accnt accumulates per-thread/per-process CPU accounting,
// adapted from the teacher's accnt package. The user/system split
// backs the D_PROF introspection device (SPEC_FULL.md, DOMAIN STACK).
package accnt

import (
	"sync"
	"sync/atomic"
	"time"
)

// Accnt holds accumulated user and system time in nanoseconds. The
// embedded mutex lets callers take a consistent snapshot for export.
type Accnt struct {
	UserNs int64
	SysNs  int64
	mu     sync.Mutex
}

// AddUser adds delta nanoseconds to the user-time counter.
func (a *Accnt) AddUser(delta int64) {
	atomic.AddInt64(&a.UserNs, delta)
}

// AddSys adds delta nanoseconds to the system-time counter.
func (a *Accnt) AddSys(delta int64) {
	atomic.AddInt64(&a.SysNs, delta)
}

// Now returns the current time in nanoseconds since the Unix epoch.
func (a *Accnt) Now() int64 {
	return time.Now().UnixNano()
}

// Finish adds the time elapsed since startNs to the system counter,
// used when a thread transitions out of kernel mode.
func (a *Accnt) Finish(startNs int64) {
	a.AddSys(a.Now() - startNs)
}

// Merge folds another record's counters into this one under lock.
func (a *Accnt) Merge(n *Accnt) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.UserNs += atomic.LoadInt64(&n.UserNs)
	a.SysNs += atomic.LoadInt64(&n.SysNs)
}

// Snapshot returns a consistent (user, sys) pair in nanoseconds.
func (a *Accnt) Snapshot() (userNs, sysNs int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return atomic.LoadInt64(&a.UserNs), atomic.LoadInt64(&a.SysNs)
}
