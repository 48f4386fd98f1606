package ipc

import (
	"sync"

	"github.com/nanvix/kernel-sub003/internal/defs"
)

// Semaphore is the counting semaphore of spec.md §3/§4.6: a key,
// a non-negative count, a wait queue, and the set of processes
// currently referencing it.
type Semaphore struct {
	mu     Spinlock
	cv     CondVar
	key    int
	count  int
	owners map[defs.Pid]struct{}
}

// NewSemaphore constructs a semaphore with the given key and initial
// count, owned initially by no one (callers add an owner via AddOwner).
func NewSemaphore(key, initial int) *Semaphore {
	return &Semaphore{
		key:    key,
		count:  initial,
		owners: make(map[defs.Pid]struct{}),
	}
}

// Key returns the semaphore's table key.
func (s *Semaphore) Key() int { return s.key }

// Down decrements count if positive; otherwise blocks self on the
// internal condition variable until a matching Up (spec.md §4.6).
func (s *Semaphore) Down(self Sleeper) {
	s.mu.Lock()
	for s.count == 0 {
		s.cv.Wait(&s.mu, self)
	}
	s.count--
	s.mu.Unlock()
}

// TryDown attempts a non-blocking decrement, reporting success.
func (s *Semaphore) TryDown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.count == 0 {
		return false
	}
	s.count--
	return true
}

// Up increments count and wakes one waiter (spec.md §4.6).
func (s *Semaphore) Up() {
	s.mu.Lock()
	s.count++
	s.mu.Unlock()
	s.cv.Signal()
}

// Count returns the current count, for tests and ctl introspection.
func (s *Semaphore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// AddOwner records pid as referencing this semaphore.
func (s *Semaphore) AddOwner(pid defs.Pid) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.owners[pid] = struct{}{}
}

// RemoveOwner drops pid's reference, returning the number of
// remaining owners.
func (s *Semaphore) RemoveOwner(pid defs.Pid) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.owners, pid)
	return len(s.owners)
}

// Table is the process-wide, key-indexed semaphore registry of
// spec.md §3 ("Keyed in a process-wide table"). Creation is atomic:
// two processes racing GetOrCreate on the same new key observe exactly
// one creation and one open, guarded by a single table-wide mutex
// (spec.md §4.6).
type Table struct {
	mu   sync.Mutex
	sems map[int]*Semaphore
}

// NewTable constructs an empty semaphore table.
func NewTable() *Table {
	return &Table{sems: make(map[int]*Semaphore)}
}

// GetOrCreate returns the semaphore for key, creating it with the
// given initial count if this is the first reference, and always
// records pid as an owner. created reports whether this call made a
// new semaphore.
func (t *Table) GetOrCreate(key, initial int, pid defs.Pid) (sem *Semaphore, created bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.sems[key]; ok {
		s.AddOwner(pid)
		return s, false
	}
	s := NewSemaphore(key, initial)
	s.AddOwner(pid)
	t.sems[key] = s
	return s, true
}

// Lookup returns the semaphore for key without creating one.
func (t *Table) Lookup(key int) (*Semaphore, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sems[key]
	return s, ok
}

// Release drops pid's ownership of key, destroying the semaphore
// entry once no process references it, as spec.md §3 requires.
func (t *Table) Release(key int, pid defs.Pid) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sems[key]
	if !ok {
		return
	}
	if s.RemoveOwner(pid) == 0 {
		delete(t.sems, key)
	}
}

// Destroy removes key unconditionally, used by explicit semctl(RMID).
func (t *Table) Destroy(key int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.sems, key)
}
