// Package mem implements the memory-manager primitives of spec.md
// §3–§4.4: the physical-frame data model, the bitmap frame allocator
// (C4), and the fixed-count kernel page pool (C5). Per-process virtual
// memory and MMU bit-level operations live in internal/vm, which
// imports this package.
package mem

import "github.com/nanvix/kernel-sub003/internal/defs"

// PageSize is the fixed page size (spec.md §3: "4 KiB").
const PageSize = defs.PageSize

// PageShift is the base-2 exponent of PageSize.
const PageShift = 12

// Pa is a physical address, named after the teacher's Pa_t.
type Pa uintptr

// Frame is a physical frame number (spec.md §3: "f ∈ [0, N)").
type Frame uint32

// NoFrame is the sentinel NULL_FRAME value (spec.md §4.4).
const NoFrame Frame = ^Frame(0)

// ToFrame converts a page-aligned physical address to its frame number.
func ToFrame(p Pa) Frame { return Frame(p >> PageShift) }

// ToPa converts a frame number back to its physical base address.
func (f Frame) ToPa() Pa { return Pa(f) << PageShift }

// Page-table / page-directory entry bits (spec.md §3). Named after the
// teacher's PTE_* constants.
const (
	PteP  Pa = 1 << 0 // present
	PteW  Pa = 1 << 1 // writable
	PteU  Pa = 1 << 2 // user-accessible
	PteG  Pa = 1 << 8 // global
	PtePS Pa = 1 << 7 // large page

	pageOffsetMask Pa = PageSize - 1
	PteAddrMask    Pa = ^pageOffsetMask
)

// Page is a physical page viewed as an array of machine words, the
// teacher's Pg_t.
type Page [PageSize / 8]uint64

// Bytes is a physical page viewed as raw bytes, the teacher's Bytepg_t.
type Bytes [PageSize]uint8

// NumEntries is the number of entries in a page table / directory.
const NumEntries = PageSize / 8

// Pmap is a single level of the two-level page table (spec.md §3).
type Pmap [NumEntries]Pa

// Present reports whether e's present bit is set.
func Present(e Pa) bool { return e&PteP != 0 }

// EntryFrame extracts the frame number referenced by a PTE/PDE.
func EntryFrame(e Pa) Frame { return ToFrame(e & PteAddrMask) }

// MakeEntry builds a PTE/PDE for the given frame and flags. flags
// should be some combination of PteP|PteW|PteU|PteG|PtePS; PteP is
// always set.
func MakeEntry(f Frame, flags Pa) Pa {
	return f.ToPa() | flags | PteP
}
