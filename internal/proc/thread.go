// Package proc implements the process/thread manager of spec.md §4.6
// (C7): a bounded process table and thread table, a FIFO ready-queue
// scheduler, and Unix identity/saved-set-uid semantics. Condition
// variables and semaphores come from internal/ipc; proc supplies the
// concrete ipc.Sleeper (Thread) they park and wake, so ipc never
// depends on proc.
package proc

import (
	"sync/atomic"

	"github.com/nanvix/kernel-sub003/internal/defs"
	"github.com/nanvix/kernel-sub003/internal/ipc"
)

// State is a thread's scheduling state.
type State int32

const (
	Runnable State = iota
	Running
	Blocked
	Zombie
)

// Thread is the teacher's Tnote_t, generalized from a goroutine-local
// note keyed by a patched runtime pointer (tinfo.Current/SetCurrent)
// into an explicitly-passed value: this rewrite has no forked runtime
// to stash a pointer in, so every kernel entry point that needs "the
// current thread" receives it as an ordinary parameter instead.
type Thread struct {
	Tid  defs.Tid
	Pid  defs.Pid
	proc *Process

	state   atomic.Int32
	killed  atomic.Bool
	doomed  atomic.Bool
	resume  chan struct{}
	exitMu  ipc.Spinlock
	exitCV  ipc.CondVar
	detach  atomic.Bool
	exitVal defs.Errno

	sched *Scheduler
}

func newThread(tid defs.Tid, pid defs.Pid, p *Process, sched *Scheduler) *Thread {
	t := &Thread{
		Tid:    tid,
		Pid:    pid,
		proc:   p,
		resume: make(chan struct{}, 1),
		sched:  sched,
	}
	t.state.Store(int32(Runnable))
	return t
}

// Process returns the thread's owning process.
func (t *Thread) Process() *Process { return t.proc }

// State reports the thread's current scheduling state.
func (t *Thread) State() State { return State(t.state.Load()) }

func (t *Thread) setState(s State) { t.state.Store(int32(s)) }

// Runnable reports whether the thread may be placed on the ready
// queue: false only once it is a Zombie. A thread marked by Kill but
// not yet a Zombie still reports true.
func (t *Thread) Runnable() bool {
	return t.State() != Zombie
}

// Kill marks the thread killed and doomed, which Doomed then reports.
// It does not stop the thread: no wake path or kernel-call boundary
// checks the mark. Process.Terminate is what ends a killed process,
// by setting each thread's state to Zombie.
func (t *Thread) Kill() {
	t.killed.Store(true)
	t.doomed.Store(true)
}

// Doomed reports whether the thread has been marked for death.
func (t *Thread) Doomed() bool { return t.doomed.Load() }

// Park implements ipc.Sleeper: block the calling goroutine (this
// thread's body) until Wake is called and the dispatcher resumes it.
// A Wake is not buffered: one that arrives before Park has marked the
// thread Blocked is dropped. CondVar.Wait's enqueue-unlock-park
// sequence stays free of lost wakeups because the scheduler runs one
// thread at a time, so no other scheduled thread can call Wake
// between the enqueue and this Park.
func (t *Thread) Park() {
	t.setState(Blocked)
	t.sched.yieldToDispatcher(t)
	<-t.resume
	t.setState(Running)
}

// Wake implements ipc.Sleeper: mark the thread runnable again and
// place it at the tail of the ready queue. The thread's own Park call
// unblocks only once the dispatcher actually grants it the CPU again
// (spec.md §4.6's FIFO ordering applies to a woken thread exactly like
// a freshly-runnable one); Wake never hands the CPU over directly.
// Waking an already-runnable thread is a no-op.
func (t *Thread) Wake() {
	if t.State() == Blocked {
		t.setState(Runnable)
		t.sched.enqueue(t)
	}
}
