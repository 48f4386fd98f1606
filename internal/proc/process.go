package proc

import (
	"golang.org/x/sync/semaphore"

	"github.com/nanvix/kernel-sub003/internal/accnt"
	"github.com/nanvix/kernel-sub003/internal/defs"
	"github.com/nanvix/kernel-sub003/internal/ipc"
	"github.com/nanvix/kernel-sub003/internal/vm"
)

const (
	pidIndexBits = 16
	pidIndexMask = 1<<pidIndexBits - 1
)

func makePid(idx, gen int) defs.Pid { return defs.Pid(gen<<pidIndexBits | idx) }
func pidIndex(p defs.Pid) int       { return int(p) & pidIndexMask }

func makeTid(idx, gen int) defs.Tid { return defs.Tid(gen<<pidIndexBits | idx) }
func tidIndex(t defs.Tid) int       { return int(t) & pidIndexMask }

// Process is the teacher's Proc_t, cut down to what spec.md §4.6 names:
// an address space, an identity, and the threads sharing them.
type Process struct {
	Pid    defs.Pid
	Parent defs.Pid

	mu       ipc.Spinlock
	identity defs.Identity
	as       *vm.AddressSpace
	accnt    accnt.Accnt
	sched    *Scheduler

	threads  map[defs.Tid]*Thread
	nextTid  int
	tidGen   []int
	maxTids  int
	mainTid  defs.Tid
	zombie   bool
	waitCh   chan defs.Errno
	exitCode defs.Errno
	entries  []func(*Thread)
}

// AddEntry registers fn as a thread body the process can later start
// with thread_create, returning its index. There is no way to take the
// address of a Go function as an ABI-style integer (see
// SPEC_FULL.md's hosting-model note), so a running image registers its
// own auxiliary thread entry points explicitly instead of the kernel
// discovering them from a code segment.
func (p *Process) AddEntry(fn func(*Thread)) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries = append(p.entries, fn)
	return len(p.entries) - 1
}

// Entry resolves a previously registered thread body by index.
func (p *Process) Entry(idx int) (func(*Thread), defs.Errno) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if idx < 0 || idx >= len(p.entries) {
		return nil, defs.EINVAL
	}
	return p.entries[idx], 0
}

// Table is the bounded process table of spec.md §4.6: a fixed number
// of slots, each carrying a generation counter so a reused slot never
// aliases a stale Pid, guarded by a golang.org/x/sync/semaphore.Weighted
// bound on PROCESS_MAX concurrently live processes (SPEC_FULL.md,
// DOMAIN STACK) rather than a hand-rolled counting semaphore — this is
// a different resource than spec.md's own sem{get,op,ctl} object, so
// reusing the library here does not paper over that object's
// hand-built semantics.
type Table struct {
	mu    ipc.Spinlock
	slots []procSlot
	slot  *semaphore.Weighted
	sched *Scheduler
}

type procSlot struct {
	gen  int
	proc *Process
}

// NewTable constructs a process table bounded at max concurrently
// live processes, scheduling new threads on sched.
func NewTable(max int, sched *Scheduler) *Table {
	return &Table{
		slots: make([]procSlot, max),
		slot:  semaphore.NewWeighted(int64(max)),
		sched: sched,
	}
}

// Create allocates a process-table slot and its first thread, forking
// the new address space from kernel's shared half (spec.md §4.5/§4.6).
// It fails with EAGAIN if the table is at PROCESS_MAX, matching
// spec.md §8's boundary behavior for a full table.
func (t *Table) Create(parent defs.Pid, identity defs.Identity, kernel *vm.AddressSpace) (*Process, defs.Errno) {
	if !t.slot.TryAcquire(1) {
		return nil, defs.EAGAIN
	}
	t.mu.Lock()
	idx := -1
	for i := range t.slots {
		if t.slots[i].proc == nil {
			idx = i
			break
		}
	}
	if idx == -1 {
		t.mu.Unlock()
		t.slot.Release(1)
		return nil, defs.EAGAIN
	}
	gen := t.slots[idx].gen + 1
	t.slots[idx].gen = gen
	pid := makePid(idx, gen)

	as, errno := vm.CreateFromKernel(kernel)
	if errno != 0 {
		t.mu.Unlock()
		t.slot.Release(1)
		return nil, errno
	}

	p := &Process{
		Pid:      pid,
		Parent:   parent,
		identity: identity,
		as:       as,
		sched:    t.sched,
		threads:  make(map[defs.Tid]*Thread),
		tidGen:   make([]int, 8),
		maxTids:  8,
		waitCh:   make(chan defs.Errno, 1),
	}
	t.slots[idx].proc = p
	t.mu.Unlock()

	main := p.newThreadLocked(0)
	p.mainTid = main.Tid
	return p, 0
}

// Lookup resolves a Pid to its Process, failing with ESRCH if the slot
// is empty or its generation no longer matches (a stale handle to an
// already-reaped process).
func (t *Table) Lookup(pid defs.Pid) (*Process, defs.Errno) {
	idx := pidIndex(pid)
	if idx < 0 || idx >= len(t.slots) {
		return nil, defs.ESRCH
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	slot := t.slots[idx]
	if slot.proc == nil || makePid(idx, slot.gen) != pid {
		return nil, defs.ESRCH
	}
	return slot.proc, 0
}

// Reap frees pid's slot once it has become a zombie, tearing down its
// address space and releasing its table-slot permit back to the
// semaphore bound.
func (t *Table) Reap(pid defs.Pid) defs.Errno {
	idx := pidIndex(pid)
	t.mu.Lock()
	slot := t.slots[idx]
	if slot.proc == nil || makePid(idx, slot.gen) != pid {
		t.mu.Unlock()
		return defs.ESRCH
	}
	if !slot.proc.zombie {
		t.mu.Unlock()
		return defs.EINVAL
	}
	t.slots[idx].proc = nil
	t.mu.Unlock()
	slot.proc.as.Destroy()
	t.slot.Release(1)
	return 0
}

// Live returns every process currently occupying a table slot, for
// introspection (internal/boot's D_PROF snapshot).
func (t *Table) Live() []*Process {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*Process, 0, len(t.slots))
	for _, slot := range t.slots {
		if slot.proc != nil {
			out = append(out, slot.proc)
		}
	}
	return out
}

// SlotAvailable reports whether a new process could be created right
// now without blocking. kcall's spawn does not call it; Create itself
// fails with EAGAIN when no slot is free.
func (t *Table) SlotAvailable() bool {
	if t.slot.TryAcquire(1) {
		t.slot.Release(1)
		return true
	}
	return false
}

func (p *Process) newThreadLocked(hint int) *Thread {
	idx := p.nextTid
	p.nextTid++
	if idx >= len(p.tidGen) {
		grown := make([]int, idx+1)
		copy(grown, p.tidGen)
		p.tidGen = grown
	}
	p.tidGen[idx]++
	tid := makeTid(idx, p.tidGen[idx])
	th := newThread(tid, p.Pid, p, p.sched)
	p.threads[tid] = th
	return th
}

// AddressSpace returns the process's virtual memory.
func (p *Process) AddressSpace() *vm.AddressSpace { return p.as }

// MainThread returns the process's first thread, the one created
// alongside the process itself (spec.md §4.6's tid0 convention).
func (p *Process) MainThread() *Thread {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.threads[p.mainTid]
}

// Spawn starts the process's main thread running fn on the process
// table's scheduler. Call exactly once per process, after Create.
func (t *Table) Spawn(p *Process, fn func()) {
	t.sched.Spawn(p.MainThread(), fn)
}

// Identity returns a copy of the process's current identity.
func (p *Process) Identity() defs.Identity {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.identity
}

// Accounting returns the process's CPU-time accumulator.
func (p *Process) Accounting() *accnt.Accnt { return &p.accnt }
