// Package excp implements the exception service of spec.md §4.7 (C9):
// synchronous CPU faults are either fatal (DEFAULT disposition) or
// forwarded to a controlling process as a blocking, user-retrievable
// record (CONTROLLED disposition). It sits on top of hal's per-vector
// dispatcher, converting a hal.Handler callback into the excpctrl/
// excpwait/excpresume kernel-call surface spec.md §4.8 names.
package excp

import (
	"github.com/nanvix/kernel-sub003/internal/defs"
	"github.com/nanvix/kernel-sub003/internal/hal"
	"github.com/nanvix/kernel-sub003/internal/ipc"
)

// Vector is the closed set of synchronous CPU fault causes, taken
// verbatim from the original's arch/x86/cpu/excp.h vector table so
// spec.md §8 scenario 5 ("exception number 14") is a named constant.
type Vector int

const (
	Divide                Vector = 0
	Debug                 Vector = 1
	NMI                   Vector = 2
	Breakpoint            Vector = 3
	Overflow              Vector = 4
	Bounds                Vector = 5
	InvalidOpcode         Vector = 6
	CoprocNotAvailable    Vector = 7
	DoubleFault           Vector = 8
	CoprocSegmentOverrun  Vector = 9
	InvalidTSS            Vector = 10
	SegmentNotPresent     Vector = 11
	StackSegmentFault     Vector = 12
	GeneralProtection     Vector = 13
	PageFault             Vector = 14
	FPUError              Vector = 16
	AlignmentCheck        Vector = 17
	MachineCheck          Vector = 18
	SIMDError             Vector = 19
	VirtualException      Vector = 20
	SecurityException     Vector = 30
)

// NumExceptions is the number of distinct vectors a disposition can be
// registered for (original's EXCEPTIONS_NUM).
const NumExceptions = 21

// maxVector is the highest vector number validVector accepts
// (SecurityException, 30): the disposition/controller tables must be
// sized past this, not past NumExceptions, since the vector set is
// sparse above VirtualException.
const maxVector = int(SecurityException)

func validVector(n int) bool {
	switch Vector(n) {
	case Divide, Debug, NMI, Breakpoint, Overflow, Bounds, InvalidOpcode,
		CoprocNotAvailable, DoubleFault, CoprocSegmentOverrun, InvalidTSS,
		SegmentNotPresent, StackSegmentFault, GeneralProtection, PageFault,
		FPUError, AlignmentCheck, MachineCheck, SIMDError, VirtualException,
		SecurityException:
		return true
	}
	return false
}

// Disposition is a process's registered handling of one exception
// vector (spec.md §4.7).
type Disposition int

const (
	Default Disposition = iota
	Handle
)

// Info is the record an excpwait caller retrieves: which vector
// faulted, the faulting thread/process, and the saved context needed
// to decide whether to resume or kill.
type Info struct {
	Vector  Vector
	Pid     defs.Pid
	Tid     defs.Tid
	Context hal.Context
}

// pending is a faulted thread's parked context, kept until a
// controlling process calls Resume or the thread is killed instead.
type pending struct {
	info Info
	self ipc.Sleeper
}

// Killer terminates a process for a fatal, unhandled exception. proc
// supplies the concrete implementation; excp depends only on this
// narrow capability so it never imports proc.
type Killer interface {
	KillForException(pid defs.Pid, vec Vector, ctx hal.Context)
}

// Service is the per-kernel exception-service singleton: a
// disposition table and a queue of pending (suspended) faults per
// controlling process.
type Service struct {
	mu           ipc.Spinlock
	disposition  [maxVector + 1]Disposition
	controller   [maxVector + 1]defs.Pid // which pid registered Handle, if any
	queueReady   ipc.CondVar
	queues       map[defs.Pid][]*pending
	byThread     map[defs.Tid]*pending
	killer       Killer
}

// New constructs an exception service with every vector defaulted to
// Default (terminate on fault), wired to k for fatal termination.
func New(k Killer) *Service {
	return &Service{
		queues:   make(map[defs.Pid][]*pending),
		byThread: make(map[defs.Tid]*pending),
		killer:   k,
	}
}

// Ctrl implements excpctrl(num, disposition): only the registering
// process may later retrieve that vector's faults. Switching back to
// Default clears the registration (spec.md §8's round-trip law:
// "excpctrl(n, HANDLE); excpctrl(n, DEFAULT) restores default
// behavior").
func (s *Service) Ctrl(pid defs.Pid, num int, disp Disposition) defs.Errno {
	if !validVector(num) {
		return defs.EINVAL
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	switch disp {
	case Handle:
		s.disposition[num] = Handle
		s.controller[num] = pid
	case Default:
		s.disposition[num] = Default
		s.controller[num] = defs.NoPid
	default:
		return defs.EINVAL
	}
	return 0
}

// Raise is called from a hal.Handler on the fault path. For a Default
// vector it kills the faulting process immediately (never blocks, per
// spec.md §5's wait-free exception-dispatch requirement). For a
// Controlled vector it parks the faulting thread — removing it from
// scheduling entirely, per spec.md §4.7's invariant that an
// exception-pending thread is "not on the ready queue" — and wakes the
// controlling process's excpwait.
//
// self is the faulting thread, which must implement ipc.Sleeper so
// Raise can Park it exactly like any other blocking primitive.
func (s *Service) Raise(vec Vector, pid defs.Pid, tid defs.Tid, ctx hal.Context, self ipc.Sleeper) {
	s.mu.Lock()
	if !validVector(int(vec)) || s.disposition[vec] != Handle {
		s.mu.Unlock()
		s.killer.KillForException(pid, vec, ctx)
		return
	}
	controller := s.controller[vec]
	p := &pending{info: Info{Vector: vec, Pid: pid, Tid: tid, Context: ctx}, self: self}
	s.queues[controller] = append(s.queues[controller], p)
	s.byThread[tid] = p
	s.mu.Unlock()

	s.queueReady.Broadcast()
	self.Park()
	// Woken only by Resume (below): it deletes byThread[tid] and calls
	// self.Wake(), exactly like any other blocking primitive's release.
}

// Wait implements excpwait: block until a record is available for
// caller, then dequeue and return it.
func (s *Service) Wait(caller defs.Pid, self ipc.Sleeper) Info {
	s.mu.Lock()
	for len(s.queues[caller]) == 0 {
		s.queueReady.Wait(&s.mu, self)
	}
	p := s.queues[caller][0]
	s.queues[caller] = s.queues[caller][1:]
	s.mu.Unlock()
	return p.info
}

// Resume implements excpresume(tid): restart the instruction that
// faulted by releasing the parked thread. Fails with ESRCH if tid has
// no pending exception.
func (s *Service) Resume(tid defs.Tid) defs.Errno {
	s.mu.Lock()
	p, ok := s.byThread[tid]
	if !ok {
		s.mu.Unlock()
		return defs.ESRCH
	}
	delete(s.byThread, tid)
	s.mu.Unlock()
	p.self.Wake()
	return 0
}

// Handler returns a hal.Handler for vec that reports faults through
// Raise. The caller supplies how to resolve "the currently running
// thread" (pid, tid, a Sleeper) from a hal.Context, since excp has no
// notion of the current thread itself.
func (s *Service) Handler(vec Vector, current func(*hal.Context) (defs.Pid, defs.Tid, ipc.Sleeper)) hal.Handler {
	return hal.HandlerFunc(func(_ hal.Vector, ctx *hal.Context) {
		pid, tid, self := current(ctx)
		s.Raise(vec, pid, tid, *ctx, self)
	})
}
