package proc

import "github.com/nanvix/kernel-sub003/internal/defs"

// CreateThread implements spec.md's thread_create: a new thread
// sharing p's address space and identity, started immediately.
func (p *Process) CreateThread(fn func(*Thread)) (*Thread, defs.Errno) {
	p.mu.Lock()
	if p.zombie {
		p.mu.Unlock()
		return nil, defs.ESRCH
	}
	th := p.newThreadLocked(0)
	p.mu.Unlock()

	p.sched.Spawn(th, func() { fn(th) })
	return th, 0
}

// Join implements spec.md's thread_join: block the calling thread
// until target has exited, returning its exit value. Joining a
// detached thread fails with EINVAL. Joiners that are already waiting
// when target exits all receive its exit value; a join after the
// thread has been reaped fails with ESRCH.
func (p *Process) Join(self *Thread, target defs.Tid) (defs.Errno, defs.Errno) {
	p.mu.Lock()
	th, ok := p.threads[target]
	if !ok {
		p.mu.Unlock()
		return 0, defs.ESRCH
	}
	if th.detach.Load() {
		p.mu.Unlock()
		return 0, defs.EINVAL
	}
	p.mu.Unlock()

	th.exitMu.Lock()
	for th.State() != Zombie {
		th.exitCV.Wait(&th.exitMu, self)
	}
	th.exitMu.Unlock()

	p.mu.Lock()
	delete(p.threads, target)
	p.mu.Unlock()
	return th.exitVal, 0
}

// Detach implements spec.md's thread_detach: the thread's resources
// are reclaimed automatically on exit instead of waiting for a join.
func (p *Process) Detach(target defs.Tid) defs.Errno {
	p.mu.Lock()
	defer p.mu.Unlock()
	th, ok := p.threads[target]
	if !ok {
		return defs.ESRCH
	}
	th.detach.Store(true)
	return 0
}

// Exit implements spec.md's thread_exit: record the exit value, wake
// any joiner, and (if this was the process's last thread) mark the
// process a zombie.
func (p *Process) Exit(self *Thread, code defs.Errno) {
	self.exitMu.Lock()
	self.exitVal = code
	self.setState(Zombie)
	self.exitMu.Unlock()
	self.exitCV.Broadcast()

	p.mu.Lock()
	if self.detach.Load() {
		delete(p.threads, self.Tid)
	}
	allDead := true
	for _, th := range p.threads {
		if th.State() != Zombie {
			allDead = false
			break
		}
	}
	if allDead {
		p.zombie = true
		p.exitCode = code
		select {
		case p.waitCh <- code:
		default:
		}
	}
	p.mu.Unlock()
}

// exceptionCauseBase offsets an exception vector number out of the
// fixed errno range (defs.go's codes run -1..-11) so a process's exit
// code can unambiguously record which fault killed it (spec.md §8
// scenario 5: "exception number 14 recorded as the cause").
const exceptionCauseBase = defs.Errno(-1000)

// Terminate kills every thread in the process immediately, recording
// cause as the process's exit status — the DEFAULT exception
// disposition of spec.md §4.7, and the path a killed (non-excepting)
// process would also take. Unlike Exit, no individual thread
// volunteers; this is called from outside any of the process's own
// threads.
func (p *Process) Terminate(cause defs.Errno) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.zombie {
		return
	}
	for _, th := range p.threads {
		th.Kill()
		th.setState(Zombie)
	}
	p.zombie = true
	p.exitCode = cause
	select {
	case p.waitCh <- cause:
	default:
	}
}

// Zombie reports whether every thread in the process has exited.
func (p *Process) Zombie() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.zombie
}

// Wait blocks until the process becomes a zombie, returning its last
// thread's exit code.
func (p *Process) Wait() defs.Errno {
	return <-p.waitCh
}
