package kcall

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nanvix/kernel-sub003/internal/defs"
	"github.com/nanvix/kernel-sub003/internal/device"
	"github.com/nanvix/kernel-sub003/internal/excp"
	"github.com/nanvix/kernel-sub003/internal/ipc"
	"github.com/nanvix/kernel-sub003/internal/mem"
	"github.com/nanvix/kernel-sub003/internal/proc"
)

type testHarness struct {
	d       *Dispatcher
	sys     *proc.System
	console *device.Console
	phys    *mem.PhysMem
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()
	dram, err := mem.NewDRAM(256 * mem.PageSize)
	require.NoError(t, err)
	phys := mem.NewPhysMem(dram.NumFrames())
	sys, errno := proc.Init(dram, phys, nil, 8)
	require.Zero(t, errno)

	console := device.NewConsole()
	d := New(sys, excp.New(sys.Table), ipc.NewTable(), phys, console, nil)
	return &testHarness{d: d, sys: sys, console: console, phys: phys}
}

func (h *testHarness) newCaller(t *testing.T, identity defs.Identity) *proc.Thread {
	t.Helper()
	p, errno := h.sys.Table.Create(defs.NoPid, identity, h.sys.Kernel)
	require.Zero(t, errno)
	return p.MainThread()
}

// mapPage gives the caller's process one writable user page, returning
// its virtual address, standing in for a loader's data-segment mapping.
func mapPage(t *testing.T, th *proc.Thread) uintptr {
	t.Helper()
	top, errno := th.Process().AddressSpace().AttachStack(1)
	require.Zero(t, errno)
	return top - mem.PageSize
}

func TestVoidCallsSumArguments(t *testing.T) {
	h := newHarness(t)
	th := h.newCaller(t, defs.Identity{})

	require.EqualValues(t, 0, h.d.Dispatch(th, defs.KCallVoid0, Args{1, 2, 3, 4, 5}))
	require.EqualValues(t, 1, h.d.Dispatch(th, defs.KCallVoid1, Args{1, 2, 3, 4, 5}))
	require.EqualValues(t, 3, h.d.Dispatch(th, defs.KCallVoid2, Args{1, 2, 3, 4, 5}))
	require.EqualValues(t, 15, h.d.Dispatch(th, defs.KCallVoid5, Args{1, 2, 3, 4, 5}))
}

func TestWriteCopiesFromUserBufferToStdout(t *testing.T) {
	h := newHarness(t)
	th := h.newCaller(t, defs.Identity{})
	va := mapPage(t, th)

	page, errno := th.Process().AddressSpace().Translate(va, true)
	require.Zero(t, errno)
	copy(page, []byte("hi"))

	res := h.d.Dispatch(th, defs.KCallWrite, Args{1, int64(va), 2})
	require.Zero(t, res)
	require.Equal(t, "hi", string(h.console.Captured()))
}

func TestWriteRejectsOverlongBuffer(t *testing.T) {
	h := newHarness(t)
	th := h.newCaller(t, defs.Identity{})
	va := mapPage(t, th)

	res := h.d.Dispatch(th, defs.KCallWrite, Args{1, int64(va), defs.MaxWriteBytes + 1})
	require.Equal(t, int64(defs.EINVAL), res)
}

func TestWriteRejectsUnmappedPointer(t *testing.T) {
	h := newHarness(t)
	th := h.newCaller(t, defs.Identity{})

	res := h.d.Dispatch(th, defs.KCallWrite, Args{1, 0x1000, 2})
	require.Equal(t, int64(defs.EFAULT), res)
}

func TestFrameAllocRequiresPrivilege(t *testing.T) {
	h := newHarness(t)
	unpriv := h.newCaller(t, defs.Identity{Uid: 1000, Euid: 1000})

	res := h.d.Dispatch(unpriv, defs.KCallFrameAlloc, Args{})
	require.Equal(t, int64(defs.EPERM), res)
}

func TestFrameAllocAndFreeRoundTripForRoot(t *testing.T) {
	h := newHarness(t)
	root := h.newCaller(t, defs.Identity{})

	res := h.d.Dispatch(root, defs.KCallFrameAlloc, Args{})
	require.GreaterOrEqual(t, res, int64(0))

	freed := h.d.Dispatch(root, defs.KCallFrameFree, Args{res})
	require.Zero(t, freed)

	doubleFree := h.d.Dispatch(root, defs.KCallFrameFree, Args{res})
	require.Equal(t, int64(defs.EINVAL), doubleFree)
}

func TestSemGetCtlRoundTrip(t *testing.T) {
	h := newHarness(t)
	th := h.newCaller(t, defs.Identity{})

	got := h.d.Dispatch(th, defs.KCallSemGet, Args{42, 3})
	require.EqualValues(t, 42, got)

	val := h.d.Dispatch(th, defs.KCallSemCtl, Args{42, SemCtlGetVal})
	require.EqualValues(t, 3, val)

	res := h.d.Dispatch(th, defs.KCallSemOp, Args{42, 2})
	require.Zero(t, res)
	val = h.d.Dispatch(th, defs.KCallSemCtl, Args{42, SemCtlGetVal})
	require.EqualValues(t, 5, val)

	rmid := h.d.Dispatch(th, defs.KCallSemCtl, Args{42, SemCtlRMID})
	require.Zero(t, rmid)

	missing := h.d.Dispatch(th, defs.KCallSemCtl, Args{42, SemCtlGetVal})
	require.Equal(t, int64(defs.ESRCH), missing)
}

func TestIdentityCallsDelegateToProcess(t *testing.T) {
	h := newHarness(t)
	th := h.newCaller(t, defs.Identity{Uid: 0, Euid: 0, Gid: 0, Egid: 0})

	require.EqualValues(t, 0, h.d.Dispatch(th, defs.KCallGetUid, Args{}))
	require.Zero(t, h.d.Dispatch(th, defs.KCallSetUid, Args{1000}))
	require.EqualValues(t, 1000, h.d.Dispatch(th, defs.KCallGetUid, Args{}))
	require.EqualValues(t, 1000, h.d.Dispatch(th, defs.KCallGetEuid, Args{}))

	require.Equal(t, int64(defs.EPERM), h.d.Dispatch(th, defs.KCallSetUid, Args{0}))
}

func TestUnrecognizedCallReturnsENOSYS(t *testing.T) {
	h := newHarness(t)
	th := h.newCaller(t, defs.Identity{})

	res := h.d.Dispatch(th, defs.KCall(9999), Args{})
	require.Equal(t, int64(defs.ENOSYS), res)
}

func TestThreadGetIDReturnsCallersTid(t *testing.T) {
	h := newHarness(t)
	th := h.newCaller(t, defs.Identity{})

	res := h.d.Dispatch(th, defs.KCallThreadGetID, Args{})
	require.EqualValues(t, th.Tid, res)
}

func TestKmodGetReportsUnknownIndex(t *testing.T) {
	h := newHarness(t)
	th := h.newCaller(t, defs.Identity{})
	va := mapPage(t, th)

	res := h.d.Dispatch(th, defs.KCallKmodGet, Args{0, int64(va)})
	require.Equal(t, int64(defs.ESRCH), res)
}

func TestPinfoWritesCallerIdentifiers(t *testing.T) {
	h := newHarness(t)
	th := h.newCaller(t, defs.Identity{})
	va := mapPage(t, th)

	res := h.d.Dispatch(th, defs.KCallPinfo, Args{int64(va)})
	require.Zero(t, res)

	page, errno := th.Process().AddressSpace().Translate(va, false)
	require.Zero(t, errno)
	gotPid := int64(page[0]) | int64(page[1])<<8 | int64(page[2])<<16 | int64(page[3])<<24
	require.EqualValues(t, th.Process().Pid, gotPid)
}
