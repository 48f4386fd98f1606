package mem

import "github.com/nanvix/kernel-sub003/internal/klog"

// DRAM is the simulated backing store for physical memory: a single
// page-aligned byte arena the frame allocator carves frames out of.
// On linux it is backed by an anonymous golang.org/x/sys/unix mmap
// (see dram_linux.go) so the allocator works against a real
// page-aligned, real-mmap-backed address range instead of a bare
// make([]byte, …) pretend-RAM; on every other GOOS it falls back to a
// plain slice with identical semantics.
type DRAM struct {
	base  []byte
	bytes int
}

// NewDRAM reserves a DRAM window of the given size, rounded up to a
// whole number of pages.
func NewDRAM(size int) (*DRAM, error) {
	size = int(roundUp(uint64(size), PageSize))
	buf, err := newArena(size)
	if err != nil {
		klog.Warn("mem: falling back to heap-backed DRAM arena: %v", err)
		buf = make([]byte, size)
	}
	return &DRAM{base: buf, bytes: size}, nil
}

// Len returns the arena size in bytes.
func (d *DRAM) Len() int { return d.bytes }

// NumFrames returns the number of whole frames the arena holds.
func (d *DRAM) NumFrames() int { return d.bytes / PageSize }

// PageAt returns the byte slice backing frame f.
func (d *DRAM) PageAt(f Frame) []byte {
	off := int(f) * PageSize
	return d.base[off : off+PageSize]
}

// Close releases the backing arena.
func (d *DRAM) Close() error { return closeArena(d.base) }

func roundUp(v, b uint64) uint64 {
	return (v + b - 1) / b * b
}
