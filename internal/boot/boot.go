// Package boot sequences the subsystems built in internal/hal,
// internal/mem, internal/vm, internal/proc, internal/excp,
// internal/ipc, and internal/bootcfg into one running kernel, the way
// gopher-os's Kmain and the teacher's kmain.c both do: bring up the
// CPU, carve out physical memory, build the process manager, then
// spawn every pinned kernel module in order.
package boot

import (
	"github.com/nanvix/kernel-sub003/internal/bootcfg"
	"github.com/nanvix/kernel-sub003/internal/defs"
	"github.com/nanvix/kernel-sub003/internal/device"
	"github.com/nanvix/kernel-sub003/internal/excp"
	"github.com/nanvix/kernel-sub003/internal/hal"
	"github.com/nanvix/kernel-sub003/internal/ipc"
	"github.com/nanvix/kernel-sub003/internal/kcall"
	"github.com/nanvix/kernel-sub003/internal/klog"
	"github.com/nanvix/kernel-sub003/internal/mem"
	"github.com/nanvix/kernel-sub003/internal/proc"
)

// Kernel is everything Boot assembles: the subsystems a running image
// needs, plus the dispatcher user code drives through kcall.Dispatch.
type Kernel struct {
	HAL      *hal.State
	DRAM     *mem.DRAM
	Phys     *mem.PhysMem
	Sys      *proc.System
	Excp     *excp.Service
	Sems     *ipc.Table
	Modules  *bootcfg.Table
	Stdout   device.Stdout
	Images   []kcall.Image
	Dispatch *kcall.Dispatcher
	// Pids holds the process spawned for each entry in Images, in order.
	Pids []defs.Pid
}

// Boot brings up a kernel from cfg and the ordered list of kernel
// module images, mirroring the teacher's kmain() sequencing:
// HAL bring-up, physical memory, the process manager (which itself
// builds the first, idle address space), the exception service wired
// to the process table as its Killer, the semaphore table, then one
// process spawned per image (spec.md §4.8's kcall_spawn, invoked here
// directly since boot itself plays the role of the first, privileged
// caller).
func Boot(cfg bootcfg.Config, images []kcall.Image) (*Kernel, defs.Errno) {
	stdout := device.New(cfg.Backend)
	if err := stdout.Init(); err != nil {
		klog.Panic("boot: stdout backend init failed: " + err.Error())
	}
	klog.SetSink(stdout)

	halState := hal.Init(hal.Config{
		KernelStack:      make([]byte, mem.PageSize),
		TimerFrequencyHz: cfg.TimerHz,
	})

	dram, err := mem.NewDRAM(cfg.DRAMBytes)
	if err != nil {
		klog.Panic("boot: DRAM reservation failed: " + err.Error())
	}

	phys := mem.NewPhysMem(dram.NumFrames())
	if cfg.KernelLast >= cfg.KernelFirst {
		if errno := phys.BookRange(cfg.KernelFirst, cfg.KernelLast+1); errno != 0 {
			return nil, errno
		}
	}
	for _, img := range images {
		first := mem.ToFrame(img.Module.PhysStart)
		last := first
		if img.Module.PhysEnd > img.Module.PhysStart {
			last = mem.ToFrame(img.Module.PhysEnd - 1)
		}
		if errno := phys.BookRange(first, last+1); errno != 0 {
			return nil, errno
		}
	}

	sys, errno := proc.Init(dram, phys, hal.SysTimer(), cfg.ProcessMax)
	if errno != 0 {
		return nil, errno
	}

	excpSvc := excp.New(sys.Table)
	sems := ipc.NewTable()

	modules := make([]bootcfg.Module, len(images))
	for i, img := range images {
		modules[i] = img.Module
	}
	modTable := bootcfg.NewTable(modules)

	dispatch := kcall.New(sys, excpSvc, sems, phys, stdout, images)

	k := &Kernel{
		HAL:      halState,
		DRAM:     dram,
		Phys:     phys,
		Sys:      sys,
		Excp:     excpSvc,
		Sems:     sems,
		Modules:  modTable,
		Stdout:   stdout,
		Images:   images,
		Dispatch: dispatch,
	}

	k.Pids = make([]defs.Pid, len(images))
	for i := range images {
		pid, errno := k.spawnModule(i)
		if errno != 0 {
			return nil, errno
		}
		k.Pids[i] = pid
	}
	return k, 0
}

// spawnModule starts kernel module index as a new process, the same
// path kcall_spawn takes, boot itself standing in for the privileged
// first caller that has no parent process of its own.
func (k *Kernel) spawnModule(index int) (defs.Pid, defs.Errno) {
	img := k.Images[index]
	p, errno := k.Sys.Table.Create(defs.NoPid, defs.Identity{}, k.Sys.Kernel)
	if errno != 0 {
		return defs.NoPid, errno
	}
	desc := "<unmapped>"
	if f := mem.ToFrame(img.Module.PhysStart); int(f) < k.DRAM.NumFrames() {
		desc = hal.DescribeEntry(k.DRAM.PageAt(f))
	}
	klog.Trace("spawn", img.Module.Cmdline, desc)
	k.Sys.Table.Spawn(p, func() { img.Entry(p.MainThread(), k.Dispatch) })
	return p.Pid, 0
}

// Idle runs the scheduler's ready queue until every spawned module
// process has become a zombie, then reaps it. Tests and a simulated
// main loop both use this to drive the kernel to quiescence instead of
// looping forever the way real hardware idle would.
func (k *Kernel) Idle(pids []defs.Pid) {
	for _, pid := range pids {
		p, errno := k.Sys.Table.Lookup(pid)
		if errno != 0 {
			continue
		}
		p.Wait()
		_ = k.Sys.Table.Reap(pid)
	}
}

// Panic mirrors the teacher's kpanic(): disable interrupts, emit to
// stdout, halt. klog.Panic already implements exactly this sequence;
// Panic exists so boot callers never need to import klog directly.
func Panic(msg string) {
	klog.Panic(msg)
}
