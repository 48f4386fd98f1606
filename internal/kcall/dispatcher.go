// Package kcall implements the kernel-call dispatcher of spec.md §4.8
// (C10): one entry point per call number, argument/pointer validation
// against the caller's address space, and the sole translation from an
// internal defs.Errno into the ABI-visible negative-integer result
// (spec.md §7's propagation rule names this dispatcher as the only
// layer allowed to do that translation).
package kcall

import (
	"encoding/binary"

	"github.com/nanvix/kernel-sub003/internal/bootcfg"
	"github.com/nanvix/kernel-sub003/internal/defs"
	"github.com/nanvix/kernel-sub003/internal/device"
	"github.com/nanvix/kernel-sub003/internal/excp"
	"github.com/nanvix/kernel-sub003/internal/ipc"
	"github.com/nanvix/kernel-sub003/internal/klog"
	"github.com/nanvix/kernel-sub003/internal/mem"
	"github.com/nanvix/kernel-sub003/internal/proc"
	"github.com/nanvix/kernel-sub003/internal/vm"
)

// Args carries the fixed register slots spec.md §6 describes: a call
// number plus up to 5 word-sized arguments.
type Args [5]int64

// Image pairs a bootcfg.Module with the Go closure that stands in for
// its machine code. There is no instruction interpreter in this
// hosting model (see SPEC_FULL.md, "Hosting model"): a "process image"
// here is a registered entry function, exactly the way the teacher's
// own spawn path would jump to a decoded entry point, except the jump
// target is a Go value instead of a raw address.
type Image struct {
	Module bootcfg.Module
	Entry  func(*proc.Thread, *Dispatcher)
}

// Dispatcher is the kernel-call entry point: it owns or references
// every subsystem a call number can touch.
type Dispatcher struct {
	sys    *proc.System
	excp   *excp.Service
	sems   *ipc.Table
	phys   *mem.PhysMem
	stdout device.Stdout
	images []Image
}

// New constructs a dispatcher over the given subsystems. images is the
// ordered kernel-module list spawn/kmod_get index into.
func New(sys *proc.System, excpSvc *excp.Service, sems *ipc.Table, phys *mem.PhysMem, stdout device.Stdout, images []Image) *Dispatcher {
	return &Dispatcher{sys: sys, excp: excpSvc, sems: sems, phys: phys, stdout: stdout, images: images}
}

// result packs a defs.Errno or a non-negative success value into the
// single ABI return slot (spec.md §6).
func result(v int64, errno defs.Errno) int64 {
	if errno != 0 {
		return int64(errno)
	}
	return v
}

// Dispatch executes one kernel call on behalf of caller, logging a
// TRACE line first (spec.md §7.1) and returning the ABI-visible
// result: non-negative on success, a negative errno otherwise. On
// return to the caller it also polls for pre-emption (spec.md §4.2's
// "Ordering" paragraph), the checkpoint this hosting model substitutes
// for a timer IRQ landing mid-instruction (see internal/proc/scheduler.go).
func (d *Dispatcher) Dispatch(caller *proc.Thread, call defs.KCall, a Args) int64 {
	res := d.dispatch(caller, call, a)
	if caller.State() != proc.Zombie {
		d.sys.Sched.CheckPreempt(caller)
	}
	return res
}

func (d *Dispatcher) dispatch(caller *proc.Thread, call defs.KCall, a Args) int64 {
	klog.Trace(callName(call), a[0], a[1], a[2], a[3], a[4])

	p := caller.Process()
	as := p.AddressSpace()

	switch call {
	case defs.KCallVoid0, defs.KCallVoid1, defs.KCallVoid2,
		defs.KCallVoid3, defs.KCallVoid4, defs.KCallVoid5:
		n := int(call - defs.KCallVoid0)
		var sum int64
		for i := 0; i < n; i++ {
			sum += a[i]
		}
		return result(sum, 0)

	case defs.KCallWrite:
		return result(0, d.write(as, int(a[0]), uintptr(a[1]), int(a[2])))

	case defs.KCallShutdown:
		klog.Panic("shutdown requested by kcall_shutdown")
		return 0 // unreachable: Panic halts

	case defs.KCallSpawn:
		pid, errno := d.spawn(p.Pid, int(a[0]))
		return result(int64(pid), errno)

	case defs.KCallThreadCreate:
		tid, errno := d.threadCreate(p, int(a[0]))
		return result(int64(tid), errno)

	case defs.KCallThreadExit:
		p.Exit(caller, defs.Errno(a[0]))
		return 0

	case defs.KCallThreadYield:
		d.sys.Sched.ThreadYield(caller)
		return 0

	case defs.KCallThreadJoin:
		return result(0, d.threadJoin(p, caller, as, defs.Tid(a[0]), uintptr(a[1])))

	case defs.KCallThreadDetach:
		return result(0, p.Detach(defs.Tid(a[0])))

	case defs.KCallThreadGetID:
		return result(int64(caller.Tid), 0)

	case defs.KCallSemGet:
		d.sems.GetOrCreate(int(a[0]), int(a[1]), p.Pid)
		return result(a[0], 0)

	case defs.KCallSemOp:
		return result(0, d.semOp(int(a[0]), int(a[1]), caller))

	case defs.KCallSemCtl:
		return d.semCtl(int(a[0]), int(a[1]))

	case defs.KCallFrameAlloc:
		return d.frameAlloc(p)

	case defs.KCallFrameFree:
		return result(0, d.frameFree(p, mem.Frame(a[0])))

	case defs.KCallExcpCtrl:
		return result(0, d.excp.Ctrl(p.Pid, int(a[0]), excp.Disposition(a[1])))

	case defs.KCallExcpWait:
		return result(0, d.excpWait(p, caller, as, uintptr(a[0])))

	case defs.KCallExcpResume:
		return result(0, d.excp.Resume(defs.Tid(a[0])))

	case defs.KCallKmodGet:
		return result(0, d.kmodGet(as, int(a[0]), uintptr(a[1])))

	case defs.KCallPinfo:
		return result(0, d.pinfo(p, caller, as, uintptr(a[0])))

	case defs.KCallGetUid:
		return result(int64(p.Uid()), 0)
	case defs.KCallSetUid:
		return result(0, p.SetUid(int(a[0])))
	case defs.KCallGetEuid:
		return result(int64(p.Euid()), 0)
	case defs.KCallSetEuid:
		return result(0, p.SetEuid(int(a[0])))
	case defs.KCallGetGid:
		return result(int64(p.Gid()), 0)
	case defs.KCallSetGid:
		return result(0, p.SetGid(int(a[0])))
	case defs.KCallGetEgid:
		return result(int64(p.Egid()), 0)
	case defs.KCallSetEgid:
		return result(0, p.SetEgid(int(a[0])))
	}

	klog.Warn("kcall: unrecognized call number %d", int(call))
	return int64(defs.ENOSYS)
}

func (d *Dispatcher) write(as *vm.AddressSpace, fd int, buf uintptr, n int) defs.Errno {
	if n < 0 || n > defs.MaxWriteBytes {
		return defs.EINVAL
	}
	data, errno := copyIn(as, buf, n)
	if errno != 0 {
		return errno
	}
	_, err := d.stdout.Write(data)
	if err != nil {
		klog.Warn("kcall_write: stdout write failed: %v", err)
		return defs.ENOBUFS
	}
	return 0
}

func (d *Dispatcher) spawn(parent defs.Pid, index int) (defs.Pid, defs.Errno) {
	if index < 0 || index >= len(d.images) {
		return defs.NoPid, defs.ESRCH
	}
	img := d.images[index]
	child, errno := d.sys.Table.Create(parent, defs.Identity{}, d.sys.Kernel)
	if errno != 0 {
		return defs.NoPid, errno
	}
	d.sys.Table.Spawn(child, func() { img.Entry(child.MainThread(), d) })
	return child.Pid, 0
}

func (d *Dispatcher) threadCreate(p *proc.Process, entryIdx int) (defs.Tid, defs.Errno) {
	fn, errno := p.Entry(entryIdx)
	if errno != 0 {
		return defs.NoTid, errno
	}
	th, errno := p.CreateThread(fn)
	if errno != 0 {
		return defs.NoTid, errno
	}
	return th.Tid, 0
}

func (d *Dispatcher) threadJoin(p *proc.Process, self *proc.Thread, as *vm.AddressSpace, target defs.Tid, outVaddr uintptr) defs.Errno {
	code, errno := p.Join(self, target)
	if errno != 0 {
		return errno
	}
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(code))
	return copyOut(as, outVaddr, buf[:])
}

func (d *Dispatcher) semOp(key, delta int, self ipc.Sleeper) defs.Errno {
	sem, ok := d.sems.Lookup(key)
	if !ok {
		return defs.ESRCH
	}
	switch {
	case delta > 0:
		for i := 0; i < delta; i++ {
			sem.Up()
		}
	case delta < 0:
		for i := 0; i < -delta; i++ {
			sem.Down(self)
		}
	}
	return 0
}

const (
	SemCtlGetVal = 0
	SemCtlRMID   = 1
)

func (d *Dispatcher) semCtl(key, cmd int) int64 {
	sem, ok := d.sems.Lookup(key)
	if !ok {
		return int64(defs.ESRCH)
	}
	switch cmd {
	case SemCtlGetVal:
		return int64(sem.Count())
	case SemCtlRMID:
		d.sems.Destroy(key)
		return 0
	}
	return int64(defs.EINVAL)
}

func (d *Dispatcher) frameAlloc(p *proc.Process) int64 {
	if p.Euid() != 0 {
		return int64(defs.EPERM)
	}
	f := d.phys.AllocAny()
	if f == mem.NoFrame {
		return int64(defs.ENOMEM)
	}
	return int64(f)
}

func (d *Dispatcher) frameFree(p *proc.Process, f mem.Frame) defs.Errno {
	if p.Euid() != 0 {
		return defs.EPERM
	}
	return d.phys.FreeFrame(f)
}

func (d *Dispatcher) excpWait(p *proc.Process, self *proc.Thread, as *vm.AddressSpace, outVaddr uintptr) defs.Errno {
	info := d.excp.Wait(p.Pid, self)
	var buf [24]byte
	binary.LittleEndian.PutUint64(buf[0:8], uint64(info.Vector))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(info.Pid))
	binary.LittleEndian.PutUint64(buf[16:24], uint64(info.Tid))
	return copyOut(as, outVaddr, buf[:])
}

func (d *Dispatcher) kmodGet(as *vm.AddressSpace, index int, outVaddr uintptr) defs.Errno {
	if index < 0 || index >= len(d.images) {
		return defs.ESRCH
	}
	m := d.images[index].Module
	buf := make([]byte, 0, maxKmodRecord)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(m.PhysStart))
	buf = binary.LittleEndian.AppendUint64(buf, uint64(m.PhysEnd))
	name := []byte(m.Cmdline)
	if len(name) > 64 {
		name = name[:64]
	}
	buf = append(buf, name...)
	return copyOut(as, outVaddr, buf)
}

const maxKmodRecord = 16 + 64

func (d *Dispatcher) pinfo(p *proc.Process, self *proc.Thread, as *vm.AddressSpace, outVaddr uintptr) defs.Errno {
	var buf [24]byte
	binary.LittleEndian.PutUint64(buf[0:8], uint64(p.Pid))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(self.Tid))
	binary.LittleEndian.PutUint64(buf[16:24], uint64(len(p.AddressSpace().Regions())))
	return copyOut(as, outVaddr, buf[:])
}

func callName(c defs.KCall) string {
	names := map[defs.KCall]string{
		defs.KCallVoid0: "void0", defs.KCallVoid1: "void1", defs.KCallVoid2: "void2",
		defs.KCallVoid3: "void3", defs.KCallVoid4: "void4", defs.KCallVoid5: "void5",
		defs.KCallWrite: "write", defs.KCallShutdown: "shutdown", defs.KCallSpawn: "spawn",
		defs.KCallThreadCreate: "thread_create", defs.KCallThreadExit: "thread_exit",
		defs.KCallThreadYield: "thread_yield", defs.KCallThreadJoin: "thread_join",
		defs.KCallThreadDetach: "thread_detach", defs.KCallThreadGetID: "thread_get_id",
		defs.KCallSemGet: "semget", defs.KCallSemOp: "semop", defs.KCallSemCtl: "semctl",
		defs.KCallFrameAlloc: "frame_alloc", defs.KCallFrameFree: "frame_free",
		defs.KCallExcpCtrl: "excpctrl", defs.KCallExcpWait: "excpwait", defs.KCallExcpResume: "excpresume",
		defs.KCallKmodGet: "kmod_get", defs.KCallPinfo: "pinfo",
		defs.KCallGetUid: "getuid", defs.KCallSetUid: "setuid",
		defs.KCallGetEuid: "geteuid", defs.KCallSetEuid: "seteuid",
		defs.KCallGetGid: "getgid", defs.KCallSetGid: "setgid",
		defs.KCallGetEgid: "getegid", defs.KCallSetEgid: "setegid",
	}
	if n, ok := names[c]; ok {
		return n
	}
	return "unknown"
}
