// Package vm implements the MMU primitives of spec.md §4.3 (C3) and
// the per-process virtual memory of spec.md §4.5 (C6): page-directory
// creation, stack attachment, and the address-range validation the
// kernel-call dispatcher relies on. The MMU layer is deliberately thin
// — bit-level correctness of one entry at a time, no mapping policy —
// exactly as spec.md §4.3 specifies.
package vm

import (
	"unsafe"

	"github.com/nanvix/kernel-sub003/internal/defs"
	"github.com/nanvix/kernel-sub003/internal/mem"
)

// Two-level page translation layout: a 9-bit directory index, a 9-bit
// table index, and a 12-bit page offset, mirroring the teacher's
// caddr/pgbits bit-splitting (mem/dmap.go) without requiring the
// modified-runtime recursive mapping trick that code relies on.
const (
	dirShift   = 21
	tableShift = mem.PageShift
	indexMask  = mem.NumEntries - 1
)

func dirIndex(va uintptr) int   { return int((va >> dirShift) & indexMask) }
func tableIndex(va uintptr) int { return int((va >> tableShift) & indexMask) }

// PmapAt reinterprets a raw page-sized byte slice as a Pmap, the same
// unsafe-cast idiom the teacher uses (mem.Pg2bytes / pg2pmap) to view
// a physical page through different lenses without copying.
func PmapAt(page []byte) *mem.Pmap {
	if len(page) < mem.PageSize {
		panic("vm: PmapAt requires a page-sized buffer")
	}
	return (*mem.Pmap)(unsafe.Pointer(&page[0]))
}

// PageMap sets the PTE for vaddr in pgtab to {present, frame, flags}.
// It fails with EBUSY if the entry is already present, per spec.md
// §4.3.
func PageMap(pgtab *mem.Pmap, frame mem.Frame, vaddr uintptr, writable, executable bool) defs.Errno {
	idx := tableIndex(vaddr)
	if mem.Present(pgtab[idx]) {
		return defs.EBUSY
	}
	flags := mem.Pa(0)
	if writable {
		flags |= mem.PteW
	}
	// executable is accepted for interface symmetry with a real NX
	// bit; this model's Pa has no separate execute-disable bit, so it
	// is not encoded, and no execute permission is recorded or
	// enforced anywhere else in this package either.
	_ = executable
	pgtab[idx] = mem.MakeEntry(frame, flags)
	FlushVA(vaddr)
	return 0
}

// PgtabMap installs a page-table frame in directory entry vaddr maps
// into. It fails with EBUSY if that directory slot is already present.
func PgtabMap(pgdir *mem.Pmap, frame mem.Frame, vaddr uintptr) defs.Errno {
	idx := dirIndex(vaddr)
	if mem.Present(pgdir[idx]) {
		return defs.EBUSY
	}
	// Page-table frames are installed writable and user-accessible, so
	// the directory entry never narrows what the leaf PTE allows.
	pgdir[idx] = mem.MakeEntry(frame, mem.PteW|mem.PteU)
	FlushVA(vaddr)
	return 0
}

// FrameResolver resolves a frame number back to its backing bytes.
// Callers supply the function that knows how to turn a frame into
// bytes (DRAM-backed in production, a plain registry in tests) so
// this package stays independent of any one physical-memory backend.
type FrameResolver func(mem.Frame) []byte

// PageWalk returns the virtual address a known-mapped physical address
// resolves to, by linearly scanning pgdir's page tables. This mirrors
// spec.md §4.3's "used by kernel tooling" note: it is not on any hot
// path and O(entries) is an acceptable cost.
func PageWalk(pgdir *mem.Pmap, resolve FrameResolver, paddr mem.Pa) (vaddr uintptr, ok bool) {
	target := mem.ToFrame(paddr & mem.PteAddrMask)
	for d := 0; d < mem.NumEntries; d++ {
		pde := pgdir[d]
		if !mem.Present(pde) {
			continue
		}
		pt := PmapAt(resolve(mem.EntryFrame(pde)))
		for tIdx := 0; tIdx < mem.NumEntries; tIdx++ {
			pte := pt[tIdx]
			if !mem.Present(pte) {
				continue
			}
			if mem.EntryFrame(pte) == target {
				va := uintptr(d)<<dirShift | uintptr(tIdx)<<tableShift
				return va, true
			}
		}
	}
	return 0, false
}
