package mem

import (
	"sync/atomic"

	"github.com/nanvix/kernel-sub003/internal/defs"
	"github.com/nanvix/kernel-sub003/internal/ipc"
)

// bitmapWords holds one bit per frame, packed into uint64 words —
// the representation gopher-os's pmm/allocator.BitmapAllocator uses,
// rather than a single flat []bool.
type bitmapWords []uint64

func newBitmap(numFrames int) bitmapWords {
	return make(bitmapWords, (numFrames+63)/64)
}

func (b bitmapWords) test(i int) bool {
	return b[i/64]&(1<<uint(i%64)) != 0
}

func (b bitmapWords) set(i int) {
	b[i/64] |= 1 << uint(i%64)
}

func (b bitmapWords) clear(i int) {
	b[i/64] &^= 1 << uint(i%64)
}

// PhysMem is the frame allocator of spec.md §4.4: one bit per
// physical frame in a bounded DRAM window, a global spinlock, and the
// allocate-any/allocate-specific/free operations.
type PhysMem struct {
	lock ipc.IRQSpinlock

	numFrames int
	used      bitmapWords
	allocated atomic.Int64

	// sealed latches true on the first AllocAny call; BookRange after
	// that point is a programming error (original_source's boot
	// sequence asserts all booking happens before the scheduler's
	// first yield — see SPEC_FULL.md, SUPPLEMENTED FEATURES).
	sealed atomic.Bool
}

// NewPhysMem constructs an allocator tracking numFrames frames, all
// initially free.
func NewPhysMem(numFrames int) *PhysMem {
	return &PhysMem{
		numFrames: numFrames,
		used:      newBitmap(numFrames),
	}
}

// Total returns the total number of frames under management.
func (p *PhysMem) Total() int { return p.numFrames }

// Allocated returns the number of currently allocated frames.
func (p *PhysMem) Allocated() int64 { return p.allocated.Load() }

// FreeCount returns the number of currently free frames.
func (p *PhysMem) FreeCount() int64 { return int64(p.numFrames) - p.allocated.Load() }

func (p *PhysMem) inRange(f Frame) bool {
	return int(f) >= 0 && int(f) < p.numFrames
}

// BookRange reserves every frame in [base, end) outright, used during
// boot to carve out kernel, kpool, and module regions before
// AllocAny is ever called (spec.md §4.4). It must not race with
// AllocAny/Alloc/Free; spec.md's invariant is enforced here with a
// one-shot latch that panics on a late call instead of silently
// racing the bitmap.
func (p *PhysMem) BookRange(base, end Frame) defs.Errno {
	if p.sealed.Load() {
		panic("mem: BookRange called after AllocAny; booking must complete before allocation starts")
	}
	if !p.inRange(base) || int(end) > p.numFrames || end < base {
		return defs.EINVAL
	}
	p.lock.Lock()
	defer p.lock.Unlock()
	for f := base; f < end; f++ {
		if !p.used.test(int(f)) {
			p.used.set(int(f))
			p.allocated.Add(1)
		}
	}
	return 0
}

// AllocAny returns the lowest-numbered free frame, or NoFrame if none
// remain. It is O(N) worst case, as spec.md §4.4 specifies.
func (p *PhysMem) AllocAny() Frame {
	p.sealed.Store(true)
	p.lock.Lock()
	defer p.lock.Unlock()
	for f := 0; f < p.numFrames; f++ {
		if !p.used.test(f) {
			p.used.set(f)
			p.allocated.Add(1)
			return Frame(f)
		}
	}
	return NoFrame
}

// Alloc reserves the specific frame f, failing with EBUSY if it is
// already allocated (spec.md §4.4).
func (p *PhysMem) Alloc(f Frame) defs.Errno {
	if !p.inRange(f) {
		return defs.EINVAL
	}
	p.sealed.Store(true)
	p.lock.Lock()
	defer p.lock.Unlock()
	if p.used.test(int(f)) {
		return defs.EBUSY
	}
	p.used.set(int(f))
	p.allocated.Add(1)
	return 0
}

// FreeFrame releases frame f. A double-free returns EINVAL rather than
// corrupting the bitmap (spec.md §4.4).
func (p *PhysMem) FreeFrame(f Frame) defs.Errno {
	if !p.inRange(f) {
		return defs.EINVAL
	}
	p.lock.Lock()
	defer p.lock.Unlock()
	if !p.used.test(int(f)) {
		return defs.EINVAL
	}
	p.used.clear(int(f))
	p.allocated.Add(-1)
	return 0
}
