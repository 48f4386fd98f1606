package mem

import (
	"github.com/nanvix/kernel-sub003/internal/defs"
	"github.com/nanvix/kernel-sub003/internal/ipc"
)

// KPool is the kernel page pool of spec.md §4.5: a fixed number of
// frames taken from the frame allocator at creation, tracked by a
// single bit-per-page bitmap. KPool does not map its frames into any
// address space. Allocation never migrates memory: a freed slot
// is simply marked free again, not compacted.
type KPool struct {
	lock   ipc.Spinlock
	frames []Frame // physical backing for each slot, fixed at creation
	used   bitmapWords
	count  int
}

// NewKPool carves count frames out of phys for the kernel pool. It
// returns ENOMEM if phys cannot supply count free frames, unwinding
// any frames it already took.
func NewKPool(phys *PhysMem, count int) (*KPool, defs.Errno) {
	kp := &KPool{
		frames: make([]Frame, count),
		used:   newBitmap(count),
		count:  count,
	}
	for i := 0; i < count; i++ {
		f := phys.AllocAny()
		if f == NoFrame {
			for j := 0; j < i; j++ {
				phys.FreeFrame(kp.frames[j])
			}
			return nil, defs.ENOMEM
		}
		kp.frames[i] = f
	}
	return kp, 0
}

// Count returns the pool's fixed slot count.
func (kp *KPool) Count() int { return kp.count }

// Alloc reserves the lowest-numbered free slot and returns its
// backing frame, or NoFrame if the pool is exhausted.
func (kp *KPool) Alloc() Frame {
	kp.lock.Lock()
	defer kp.lock.Unlock()
	for i := 0; i < kp.count; i++ {
		if !kp.used.test(i) {
			kp.used.set(i)
			return kp.frames[i]
		}
	}
	return NoFrame
}

// FreeFrame releases the slot backed by f. Freeing a frame not owned
// by this pool, or already free, is a no-op — the kernel pool never
// relocates live data, so there is nothing to corrupt.
func (kp *KPool) FreeFrame(f Frame) {
	kp.lock.Lock()
	defer kp.lock.Unlock()
	for i := 0; i < kp.count; i++ {
		if kp.frames[i] == f {
			kp.used.clear(i)
			return
		}
	}
}

// InUse reports how many slots are currently allocated.
func (kp *KPool) InUse() int {
	kp.lock.Lock()
	defer kp.lock.Unlock()
	n := 0
	for i := 0; i < kp.count; i++ {
		if kp.used.test(i) {
			n++
		}
	}
	return n
}
