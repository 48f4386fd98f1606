package vm

import (
	"github.com/nanvix/kernel-sub003/internal/defs"
	"github.com/nanvix/kernel-sub003/internal/ipc"
	"github.com/nanvix/kernel-sub003/internal/mem"
	"github.com/nanvix/kernel-sub003/internal/util"
)

// KernelDirSplit is the directory index at which the kernel half of
// every address space begins, the same "top half reserved" convention
// the teacher's vm/as.go VUSER/VKERNBASE split encodes, simplified to
// this model's single-gigabyte, two-level layout.
const KernelDirSplit = mem.NumEntries / 2

// KernelBase is the first virtual address of the kernel half.
const KernelBase = uintptr(KernelDirSplit) << dirShift

// VAMax is one past the last virtual address this model's two-level
// translation can name.
const VAMax = uintptr(mem.NumEntries) << dirShift

// AddressSpace is the teacher's Vm_t: one page directory plus the
// bookkeeping needed to tear it down and to validate user pointers
// (spec.md §4.5).
type AddressSpace struct {
	mu ipc.Spinlock

	dram *mem.DRAM
	phys *mem.PhysMem

	pgdirFrame mem.Frame
	pgdir      *mem.Pmap

	regions []Region
}

// Region records one mapped range for mm_check_area's permission
// lookups and for teardown.
type Region struct {
	Base     uintptr
	Size     uintptr
	Area     defs.Area
	Writable bool
}

// NewKernel builds the first address space of the system: an empty
// page directory with no mappings yet. Address spaces forked from it
// copy whatever kernel-half entries it holds at that moment; the boot
// sequence does not map anything into it.
func NewKernel(dram *mem.DRAM, phys *mem.PhysMem) (*AddressSpace, defs.Errno) {
	f := phys.AllocAny()
	if f == mem.NoFrame {
		return nil, defs.ENOMEM
	}
	page := dram.PageAt(f)
	zero(page)
	return &AddressSpace{
		dram:       dram,
		phys:       phys,
		pgdirFrame: f,
		pgdir:      PmapAt(page),
	}, 0
}

// CreateFromKernel builds a new address space whose kernel half is
// shared (by directory-entry copy, not data copy) with src, and whose
// user half starts empty — spec.md §4.5's "virtmem create-from-kernel"
// operation. Every address space in the system must be created this
// way so kernel code is mapped identically everywhere.
func CreateFromKernel(src *AddressSpace) (*AddressSpace, defs.Errno) {
	src.mu.Lock()
	defer src.mu.Unlock()

	f := src.phys.AllocAny()
	if f == mem.NoFrame {
		return nil, defs.ENOMEM
	}
	page := src.dram.PageAt(f)
	zero(page)
	dst := PmapAt(page)
	for i := KernelDirSplit; i < mem.NumEntries; i++ {
		dst[i] = src.pgdir[i]
	}
	return &AddressSpace{
		dram:       src.dram,
		phys:       src.phys,
		pgdirFrame: f,
		pgdir:      dst,
	}, 0
}

func zero(page []byte) {
	for i := range page {
		page[i] = 0
	}
}

// ensureTable returns the page table covering vaddr, allocating and
// installing a fresh one if the directory slot is empty.
func (as *AddressSpace) ensureTable(vaddr uintptr) (*mem.Pmap, defs.Errno) {
	idx := dirIndex(vaddr)
	if mem.Present(as.pgdir[idx]) {
		return PmapAt(as.dram.PageAt(mem.EntryFrame(as.pgdir[idx]))), 0
	}
	f := as.phys.AllocAny()
	if f == mem.NoFrame {
		return nil, defs.ENOMEM
	}
	page := as.dram.PageAt(f)
	zero(page)
	if errno := PgtabMap(as.pgdir, f, vaddr); errno != 0 {
		as.phys.FreeFrame(f)
		return nil, errno
	}
	return PmapAt(page), 0
}

// MapPage maps one page at vaddr to frame f with the given
// permissions, recording the mapping as a one-page Region. It fails
// with EINVAL if vaddr falls outside the area its flags claim.
func (as *AddressSpace) MapPage(vaddr uintptr, f mem.Frame, area defs.Area, writable bool) defs.Errno {
	if !CheckArea(vaddr, mem.PageSize, area) {
		return defs.EINVAL
	}
	as.mu.Lock()
	defer as.mu.Unlock()

	table, errno := as.ensureTable(vaddr)
	if errno != 0 {
		return errno
	}
	if errno := PageMap(table, f, vaddr, writable, false); errno != 0 {
		return errno
	}
	as.regions = append(as.regions, Region{Base: vaddr, Size: mem.PageSize, Area: area, Writable: writable})
	return 0
}

// AttachStack maps npages of freshly allocated, writable user frames
// immediately below KernelBase, growing downward the way the
// teacher's virtmem_attach_stack reserves the top of the user half for
// the initial stack (spec.md §4.5).
func (as *AddressSpace) AttachStack(npages int) (top uintptr, errno defs.Errno) {
	if npages <= 0 {
		return 0, defs.EINVAL
	}
	top = KernelBase
	base := top - uintptr(npages)*mem.PageSize
	allocated := make([]mem.Frame, 0, npages)
	for i := 0; i < npages; i++ {
		f := as.phys.AllocAny()
		if f == mem.NoFrame {
			for _, af := range allocated {
				as.phys.FreeFrame(af)
			}
			return 0, defs.ENOMEM
		}
		allocated = append(allocated, f)
	}
	for i, f := range allocated {
		vaddr := base + uintptr(i)*mem.PageSize
		if errno := as.MapPage(vaddr, f, defs.AreaUser, true); errno != 0 {
			for _, af := range allocated {
				as.phys.FreeFrame(af)
			}
			return 0, errno
		}
	}
	return top, 0
}

// Translate resolves a user virtual address to its backing byte slice,
// failing with EFAULT if unmapped or, when wantWrite is set, read-only
// — the teacher's Userdmap8_inner pointer-checking pattern (vm/as.go),
// generalized off the simulated DRAM arena instead of real physical
// memory.
func (as *AddressSpace) Translate(vaddr uintptr, wantWrite bool) ([]byte, defs.Errno) {
	as.mu.Lock()
	defer as.mu.Unlock()

	idx := dirIndex(vaddr)
	if !mem.Present(as.pgdir[idx]) {
		return nil, defs.EFAULT
	}
	table := PmapAt(as.dram.PageAt(mem.EntryFrame(as.pgdir[idx])))
	tIdx := tableIndex(vaddr)
	pte := table[tIdx]
	if !mem.Present(pte) {
		return nil, defs.EFAULT
	}
	if wantWrite && pte&mem.PteW == 0 {
		return nil, defs.EFAULT
	}
	page := as.dram.PageAt(mem.EntryFrame(pte))
	off := int(vaddr) % mem.PageSize
	return page[off:], 0
}

// Regions returns a snapshot of every range mapped with MapPage, for
// the kernel-call dispatcher's process-info introspection (spec.md
// §4.8, kcall_pinfo).
func (as *AddressSpace) Regions() []Region {
	as.mu.Lock()
	defer as.mu.Unlock()
	out := make([]Region, len(as.regions))
	copy(out, as.regions)
	return out
}

// Destroy frees every frame this address space owns: its mapped user
// pages and finally its own directory frame. Page-table frames for
// shared kernel-half entries are never touched.
func (as *AddressSpace) Destroy() {
	as.mu.Lock()
	defer as.mu.Unlock()
	for i := 0; i < KernelDirSplit; i++ {
		pde := as.pgdir[i]
		if !mem.Present(pde) {
			continue
		}
		table := PmapAt(as.dram.PageAt(mem.EntryFrame(pde)))
		for j := 0; j < mem.NumEntries; j++ {
			if mem.Present(table[j]) {
				as.phys.FreeFrame(mem.EntryFrame(table[j]))
			}
		}
		as.phys.FreeFrame(mem.EntryFrame(pde))
	}
	as.phys.FreeFrame(as.pgdirFrame)
	as.regions = nil
}

// CheckArea implements spec.md §4.5's mm_check_area: an overflow-safe
// range test that a [vaddr, vaddr+size) span lies entirely within the
// named half of the address space.
func CheckArea(vaddr, size uintptr, area defs.Area) bool {
	if size == 0 {
		return false
	}
	if util.AddOverflows(vaddr, size) {
		return false
	}
	end := vaddr + size
	if end > VAMax {
		return false
	}
	switch area {
	case defs.AreaUser:
		return vaddr < KernelBase && end <= KernelBase
	case defs.AreaKernel:
		return vaddr >= KernelBase
	default:
		return false
	}
}
