package proc

import (
	"sync/atomic"

	"github.com/nanvix/kernel-sub003/internal/hal"
	"github.com/nanvix/kernel-sub003/internal/ipc"
)

// Scheduler is the FIFO ready-queue, cooperative-plus-pre-emptive
// scheduler of spec.md §4.6. Hosting model note (see SPEC_FULL.md):
// Go gives no way to suspend an arbitrary running goroutine the way a
// real timer interrupt suspends a running thread mid-instruction, so
// pre-emption here is enforced at a checkpoint a
// non-fully-preemptible kernel already has to check at — kernel-call
// return (kcall.Dispatcher.Dispatch) — rather than at an arbitrary
// instruction boundary. Within that model
// every other invariant (FIFO order, one thread holding the CPU at a
// time, an always-non-empty ready queue) is exact, not simulated.
type Scheduler struct {
	mu      ipc.Spinlock
	ready   []*Thread
	readyCh chan struct{}
	yieldCh chan *Thread

	current atomic.Pointer[Thread]
	idle    *Thread

	needResched atomic.Bool
}

// NewScheduler constructs a scheduler and starts its dispatcher loop;
// the idle thread is installed separately with SpawnIdle. tick is typically hal.SysTimer(); passing nil
// disables pre-emption entirely (useful for deterministic unit tests).
func NewScheduler(tick *hal.Timer) *Scheduler {
	s := &Scheduler{
		readyCh: make(chan struct{}, 1),
		yieldCh: make(chan *Thread),
	}
	if tick != nil {
		tick.SetTickHook(func(uint64) { s.needResched.Store(true) })
	}
	go s.loop()
	return s
}

func (s *Scheduler) enqueue(t *Thread) {
	s.mu.Lock()
	s.ready = append(s.ready, t)
	s.mu.Unlock()
	select {
	case s.readyCh <- struct{}{}:
	default:
	}
}

func (s *Scheduler) popReadyBlocking() *Thread {
	for {
		s.mu.Lock()
		if len(s.ready) > 0 {
			t := s.ready[0]
			s.ready = s.ready[1:]
			s.mu.Unlock()
			return t
		}
		s.mu.Unlock()
		<-s.readyCh
	}
}

// loop is the dispatcher: pop the head of the ready queue, hand it the
// CPU, and wait for it to yield, block, or exit before dispatching the
// next one. Exactly one thread ever holds the CPU at a time.
func (s *Scheduler) loop() {
	for {
		t := s.popReadyBlocking()
		s.current.Store(t)
		t.setState(Running)
		t.resume <- struct{}{}
		<-s.yieldCh
		s.current.Store(nil)
	}
}

// Current returns the thread presently holding the CPU, or nil.
func (s *Scheduler) Current() *Thread { return s.current.Load() }

// Spawn enqueues t as runnable and starts its body on a new goroutine,
// which blocks until the dispatcher grants it the CPU for the first
// time (spec.md §4.6's thread_create contract).
func (s *Scheduler) Spawn(t *Thread, fn func()) {
	go func() {
		<-t.resume
		t.setState(Running)
		fn()
		s.exit(t)
	}()
	s.enqueue(t)
}

// SpawnIdle installs t as the scheduler's idle thread: a thread that
// never terminates and is always runnable, guaranteeing the ready
// queue is never empty for the dispatcher to starve on (spec.md §8
// scenario 1, and the SUPPLEMENTED FEATURES per-core idle convention).
func (s *Scheduler) SpawnIdle(t *Thread) {
	s.idle = t
	go func() {
		<-t.resume
		t.setState(Running)
		for {
			s.ThreadYield(t)
		}
	}()
	s.enqueue(t)
}

func (s *Scheduler) yieldToDispatcher(t *Thread) {
	s.yieldCh <- t
}

// ThreadYield implements spec.md's thread_yield: the calling thread
// gives up the CPU voluntarily, rejoining the ready queue at the tail,
// and blocks until the dispatcher grants it the CPU again.
func (s *Scheduler) ThreadYield(t *Thread) {
	t.setState(Runnable)
	s.enqueue(t)
	s.yieldToDispatcher(t)
	<-t.resume
	t.setState(Running)
}

// CheckPreempt is polled at kernel-call return (by
// kcall.Dispatcher.Dispatch). If a timer tick has landed since t was last dispatched,
// t is rescheduled exactly as ThreadYield would, implementing
// pre-emption at the granularity this hosting model can offer.
func (s *Scheduler) CheckPreempt(t *Thread) {
	if s.needResched.Swap(false) {
		s.ThreadYield(t)
	}
}

func (s *Scheduler) exit(t *Thread) {
	t.setState(Zombie)
	s.yieldToDispatcher(t)
}

// ReadyLen reports the number of runnable threads not currently on
// the CPU, for tests and introspection.
func (s *Scheduler) ReadyLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ready)
}
