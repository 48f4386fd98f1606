package vm

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nanvix/kernel-sub003/internal/defs"
	"github.com/nanvix/kernel-sub003/internal/mem"
)

func newTestSpaces(t *testing.T) (*mem.DRAM, *mem.PhysMem, *AddressSpace) {
	t.Helper()
	dram, err := mem.NewDRAM(256 * mem.PageSize)
	require.NoError(t, err)
	phys := mem.NewPhysMem(dram.NumFrames())
	kernel, errno := NewKernel(dram, phys)
	require.Equal(t, defs.Errno(0), errno)
	return dram, phys, kernel
}

func TestCreateFromKernelSharesKernelHalf(t *testing.T) {
	_, phys, kernel := newTestSpaces(t)
	f := phys.AllocAny()
	require.NotEqual(t, mem.NoFrame, f)

	require.Equal(t, defs.Errno(0), PgtabMap(kernel.pgdir, f, KernelBase))

	child, errno := CreateFromKernel(kernel)
	require.Equal(t, defs.Errno(0), errno)
	require.Equal(t, kernel.pgdir[KernelDirSplit], child.pgdir[KernelDirSplit])
	require.True(t, mem.Present(child.pgdir[KernelDirSplit]))
}

func TestMapPageRejectsWrongArea(t *testing.T) {
	_, _, kernel := newTestSpaces(t)
	child, errno := CreateFromKernel(kernel)
	require.Equal(t, defs.Errno(0), errno)

	require.Equal(t, defs.EINVAL, child.MapPage(KernelBase, 0, defs.AreaUser, true))
}

func TestMapPageThenTranslateRoundTrips(t *testing.T) {
	_, phys, kernel := newTestSpaces(t)
	child, errno := CreateFromKernel(kernel)
	require.Equal(t, defs.Errno(0), errno)

	f := phys.AllocAny()
	require.NotEqual(t, mem.NoFrame, f)
	require.Equal(t, defs.Errno(0), child.MapPage(0x1000, f, defs.AreaUser, true))

	buf, errno := child.Translate(0x1000, true)
	require.Equal(t, defs.Errno(0), errno)
	require.NotNil(t, buf)
}

func TestTranslateUnmappedFaults(t *testing.T) {
	_, _, kernel := newTestSpaces(t)
	child, errno := CreateFromKernel(kernel)
	require.Equal(t, defs.Errno(0), errno)

	_, errno = child.Translate(0x1000, false)
	require.Equal(t, defs.EFAULT, errno)
}

func TestTranslateReadOnlyRejectsWrite(t *testing.T) {
	_, phys, kernel := newTestSpaces(t)
	child, errno := CreateFromKernel(kernel)
	require.Equal(t, defs.Errno(0), errno)

	f := phys.AllocAny()
	require.Equal(t, defs.Errno(0), child.MapPage(0x2000, f, defs.AreaUser, false))

	_, errno = child.Translate(0x2000, true)
	require.Equal(t, defs.EFAULT, errno)

	buf, errno := child.Translate(0x2000, false)
	require.Equal(t, defs.Errno(0), errno)
	require.NotNil(t, buf)
}

func TestAttachStackGrowsDownFromKernelBase(t *testing.T) {
	_, _, kernel := newTestSpaces(t)
	child, errno := CreateFromKernel(kernel)
	require.Equal(t, defs.Errno(0), errno)

	top, errno := child.AttachStack(4)
	require.Equal(t, defs.Errno(0), errno)
	require.Equal(t, KernelBase, top)

	_, errno = child.Translate(top-1, true)
	require.Equal(t, defs.Errno(0), errno)
}

func TestAttachStackUnwindsOnENOMEM(t *testing.T) {
	dram, err := mem.NewDRAM(4 * mem.PageSize)
	require.NoError(t, err)
	phys := mem.NewPhysMem(dram.NumFrames())
	kernel, errno := NewKernel(dram, phys)
	require.Equal(t, defs.Errno(0), errno)
	child, errno := CreateFromKernel(kernel)
	require.Equal(t, defs.Errno(0), errno)

	before := phys.Allocated()
	_, errno = child.AttachStack(64)
	require.Equal(t, defs.ENOMEM, errno)
	require.Equal(t, before, phys.Allocated(), "a failed AttachStack must free everything it provisionally took")
}

func TestCheckAreaOverflow(t *testing.T) {
	require.False(t, CheckArea(^uintptr(0)-10, 100, defs.AreaUser))
}

func TestCheckAreaRejectsCrossingKernelBoundary(t *testing.T) {
	require.False(t, CheckArea(KernelBase-mem.PageSize, 2*mem.PageSize, defs.AreaUser))
}

func TestCheckAreaZeroSizeRejected(t *testing.T) {
	require.False(t, CheckArea(0x1000, 0, defs.AreaUser))
}

func TestPageMapFlushesTLB(t *testing.T) {
	_, phys, kernel := newTestSpaces(t)
	child, errno := CreateFromKernel(kernel)
	require.Equal(t, defs.Errno(0), errno)
	f := phys.AllocAny()

	before := FlushCount(0x3000)
	require.Equal(t, defs.Errno(0), child.MapPage(0x3000, f, defs.AreaUser, true))
	require.Greater(t, FlushCount(0x3000), before)
}

func TestDestroyFreesAllOwnedFrames(t *testing.T) {
	dram, err := mem.NewDRAM(64 * mem.PageSize)
	require.NoError(t, err)
	phys := mem.NewPhysMem(dram.NumFrames())
	kernel, errno := NewKernel(dram, phys)
	require.Equal(t, defs.Errno(0), errno)
	child, errno := CreateFromKernel(kernel)
	require.Equal(t, defs.Errno(0), errno)

	_, errno = child.AttachStack(4)
	require.Equal(t, defs.Errno(0), errno)

	before := phys.FreeCount()
	child.Destroy()
	require.Greater(t, phys.FreeCount(), before)
}
