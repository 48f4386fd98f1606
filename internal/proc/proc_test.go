package proc

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nanvix/kernel-sub003/internal/defs"
	"github.com/nanvix/kernel-sub003/internal/mem"
	"github.com/nanvix/kernel-sub003/internal/vm"
)

func newTestSystem(t *testing.T) *System {
	t.Helper()
	dram, err := mem.NewDRAM(256 * mem.PageSize)
	require.NoError(t, err)
	phys := mem.NewPhysMem(dram.NumFrames())
	sys, errno := Init(dram, phys, nil, 4)
	require.Equal(t, defs.Errno(0), errno)
	return sys
}

func TestSchedulerRunsReadyThreadsInFIFOOrder(t *testing.T) {
	sys := newTestSystem(t)
	kernel := sys.Kernel

	as, errno := vm.CreateFromKernel(kernel)
	require.Equal(t, defs.Errno(0), errno)
	p := &Process{Pid: 1, as: as, sched: sys.Sched, threads: map[defs.Tid]*Thread{}, waitCh: make(chan defs.Errno, 1)}

	var mu sync.Mutex
	var order []int

	const n = 5
	threads := make([]*Thread, n)
	p.mu.Lock()
	for i := 0; i < n; i++ {
		threads[i] = p.newThreadLocked(0)
	}
	p.mu.Unlock()

	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		i := i
		sys.Sched.Spawn(threads[i], func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			wg.Done()
		})
	}
	wg.Wait()

	require.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestThreadCreateRunsAndExits(t *testing.T) {
	sys := newTestSystem(t)
	p, errno := sys.Table.Create(defs.NoPid, defs.Identity{}, sys.Kernel)
	require.Equal(t, defs.Errno(0), errno)

	done := make(chan struct{})
	th, errno := p.CreateThread(func(self *Thread) {
		p.Exit(self, 7)
		close(done)
	})
	require.Equal(t, defs.Errno(0), errno)
	require.NotNil(t, th)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("thread never ran")
	}
}

func TestJoinBlocksUntilExit(t *testing.T) {
	sys := newTestSystem(t)
	p, errno := sys.Table.Create(defs.NoPid, defs.Identity{}, sys.Kernel)
	require.Equal(t, defs.Errno(0), errno)

	release := make(chan struct{})
	target, errno := p.CreateThread(func(self *Thread) {
		<-release
		p.Exit(self, 42)
	})
	require.Equal(t, defs.Errno(0), errno)

	joinDone := make(chan defs.Errno, 1)
	joiner, errno := p.CreateThread(func(self *Thread) {
		code, errno := p.Join(self, target.Tid)
		require.Equal(t, defs.Errno(0), errno)
		joinDone <- code
	})
	require.Equal(t, defs.Errno(0), errno)
	_ = joiner

	select {
	case <-joinDone:
		t.Fatal("join returned before target exited")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case code := <-joinDone:
		require.Equal(t, defs.Errno(42), code)
	case <-time.After(time.Second):
		t.Fatal("join never unblocked")
	}
}

func TestJoinDetachedThreadFails(t *testing.T) {
	sys := newTestSystem(t)
	p, errno := sys.Table.Create(defs.NoPid, defs.Identity{}, sys.Kernel)
	require.Equal(t, defs.Errno(0), errno)

	release := make(chan struct{})
	target, errno := p.CreateThread(func(self *Thread) {
		// Yield while waiting: a thread holds the CPU until it yields,
		// so blocking on release directly would keep the joiner below
		// from ever being dispatched.
		for {
			select {
			case <-release:
				p.Exit(self, 0)
				return
			default:
				sys.Sched.ThreadYield(self)
			}
		}
	})
	require.Equal(t, defs.Errno(0), errno)
	require.Equal(t, defs.Errno(0), p.Detach(target.Tid))

	selfDone := make(chan defs.Errno, 1)
	_, errno = p.CreateThread(func(self *Thread) {
		_, errno := p.Join(self, target.Tid)
		selfDone <- errno
	})
	require.Equal(t, defs.Errno(0), errno)

	select {
	case errno := <-selfDone:
		require.Equal(t, defs.EINVAL, errno)
	case <-time.After(time.Second):
		t.Fatal("join on detached thread never returned")
	}
	close(release)
}

func TestProcessBecomesZombieWhenAllThreadsExit(t *testing.T) {
	sys := newTestSystem(t)
	p, errno := sys.Table.Create(defs.NoPid, defs.Identity{}, sys.Kernel)
	require.Equal(t, defs.Errno(0), errno)

	main := p.MainThread()
	sys.Table.Spawn(p, func() {
		p.Exit(main, 3)
	})

	require.Equal(t, defs.Errno(3), p.Wait())
	require.True(t, p.Zombie())
}

func TestTableExhaustionReturnsEAGAIN(t *testing.T) {
	sys := newTestSystem(t)
	// One slot is already consumed by the idle process created in Init.
	for i := 0; i < 3; i++ {
		_, errno := sys.Table.Create(defs.NoPid, defs.Identity{}, sys.Kernel)
		require.Equal(t, defs.Errno(0), errno, "slot %d", i)
	}
	_, errno := sys.Table.Create(defs.NoPid, defs.Identity{}, sys.Kernel)
	require.Equal(t, defs.EAGAIN, errno)
}

func TestReapFreesSlotForReuse(t *testing.T) {
	sys := newTestSystem(t)
	p, errno := sys.Table.Create(defs.NoPid, defs.Identity{}, sys.Kernel)
	require.Equal(t, defs.Errno(0), errno)
	pid := p.Pid

	require.Equal(t, defs.EINVAL, sys.Table.Reap(pid), "reaping a live process must fail")

	main := p.MainThread()
	sys.Table.Spawn(p, func() { p.Exit(main, 0) })
	p.Wait()

	require.Equal(t, defs.Errno(0), sys.Table.Reap(pid))
	_, errno = sys.Table.Lookup(pid)
	require.Equal(t, defs.ESRCH, errno, "a reaped pid must not resolve")

	_, errno = sys.Table.Create(defs.NoPid, defs.Identity{}, sys.Kernel)
	require.Equal(t, defs.Errno(0), errno, "the freed slot must be reusable")
}

func TestSetEuidUnprivilegedRestrictedToRealSavedOrCurrent(t *testing.T) {
	sys := newTestSystem(t)
	p, errno := sys.Table.Create(defs.NoPid, defs.Identity{Uid: 1000, Euid: 1000, Saved: 0}, sys.Kernel)
	require.Equal(t, defs.Errno(0), errno)

	require.Equal(t, defs.EPERM, p.SetEuid(2000))

	require.Equal(t, defs.Errno(0), p.SetEuid(0))
	require.Equal(t, 0, p.Euid())

	require.Equal(t, defs.Errno(0), p.SetEuid(1000))
	require.Equal(t, 1000, p.Euid())
}

func TestSetUidPrivilegedSetsAllThree(t *testing.T) {
	sys := newTestSystem(t)
	p, errno := sys.Table.Create(defs.NoPid, defs.Identity{Uid: 0, Euid: 0, Saved: 0}, sys.Kernel)
	require.Equal(t, defs.Errno(0), errno)

	require.Equal(t, defs.Errno(0), p.SetUid(500))
	id := p.Identity()
	require.Equal(t, 500, id.Uid)
	require.Equal(t, 500, id.Euid)
	require.Equal(t, 500, id.Saved)
}

func TestSetUidUnprivilegedCannotRegainPrivilegeViaSavedUid(t *testing.T) {
	sys := newTestSystem(t)
	// Started privileged, already dropped to 1000 via a prior setuid,
	// so Saved == 1000: nothing left to regain.
	p, errno := sys.Table.Create(defs.NoPid, defs.Identity{Uid: 1000, Euid: 1000, Saved: 1000}, sys.Kernel)
	require.Equal(t, defs.Errno(0), errno)

	require.Equal(t, defs.EPERM, p.SetUid(0))
	require.Equal(t, defs.Errno(0), p.SetUid(1000))
}

func TestSetEuidThenSetUidCanRestoreFromSavedUid(t *testing.T) {
	sys := newTestSystem(t)
	// A setuid-root program starts euid 0, drops to 1000 via seteuid
	// while Saved stays 0, then may use setuid to climb back to 0.
	p, errno := sys.Table.Create(defs.NoPid, defs.Identity{Uid: 1000, Euid: 0, Saved: 0}, sys.Kernel)
	require.Equal(t, defs.Errno(0), errno)

	require.Equal(t, defs.Errno(0), p.SetEuid(1000))
	require.Equal(t, 1000, p.Euid())

	require.Equal(t, defs.EPERM, p.SetUid(0), "euid is no longer 0, so setuid is unprivileged here")

	require.Equal(t, defs.Errno(0), p.SetEuid(0))
	require.Equal(t, defs.Errno(0), p.SetUid(2000))
	id := p.Identity()
	require.Equal(t, 2000, id.Uid)
	require.Equal(t, 2000, id.Euid)
	require.Equal(t, 2000, id.Saved)
}
