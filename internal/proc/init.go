package proc

import (
	"github.com/nanvix/kernel-sub003/internal/defs"
	"github.com/nanvix/kernel-sub003/internal/hal"
	"github.com/nanvix/kernel-sub003/internal/mem"
	"github.com/nanvix/kernel-sub003/internal/vm"
)

// System bundles the process manager's moving parts: the scheduler,
// the process table, and the kernel address space every other space
// is forked from. Mirrors the teacher's procinit()/sched_init() boot
// split, collapsed into one constructor the way gopher-os's Kmain
// sequences its subsystems (SPEC_FULL.md, boot sequencing).
type System struct {
	Sched  *Scheduler
	Table  *Table
	Kernel *vm.AddressSpace
}

// Init brings up the process manager: a kernel address space, a
// scheduler ticked by tick (nil disables pre-emption), a process
// table bounded at max, and a per-core idle thread so the ready queue
// is never empty.
func Init(dram *mem.DRAM, phys *mem.PhysMem, tick *hal.Timer, max int) (*System, defs.Errno) {
	kernel, errno := vm.NewKernel(dram, phys)
	if errno != 0 {
		return nil, errno
	}

	sched := NewScheduler(tick)
	table := NewTable(max, sched)

	idleProc, errno := table.Create(defs.NoPid, defs.Identity{}, kernel)
	if errno != 0 {
		return nil, errno
	}
	sched.SpawnIdle(idleProc.MainThread())

	return &System{Sched: sched, Table: table, Kernel: kernel}, 0
}
