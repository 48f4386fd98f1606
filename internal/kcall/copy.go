package kcall

import (
	"github.com/nanvix/kernel-sub003/internal/defs"
	"github.com/nanvix/kernel-sub003/internal/vm"
)

// copyIn validates that [vaddr, vaddr+n) lies in mapped, readable user
// memory and returns a fresh copy of it. Every pointer argument a
// kernel call touches is checked this way before dereference (spec.md
// §4.8: "failure returns EFAULT"), one page at a time since
// vm.AddressSpace.Translate only ever hands back the remainder of a
// single page.
func copyIn(as *vm.AddressSpace, vaddr uintptr, n int) ([]byte, defs.Errno) {
	if n == 0 {
		return []byte{}, 0
	}
	if !vm.CheckArea(vaddr, uintptr(n), defs.AreaUser) {
		return nil, defs.EFAULT
	}
	out := make([]byte, 0, n)
	for len(out) < n {
		page, errno := as.Translate(vaddr+uintptr(len(out)), false)
		if errno != 0 {
			return nil, errno
		}
		want := n - len(out)
		if want > len(page) {
			want = len(page)
		}
		out = append(out, page[:want]...)
	}
	return out, 0
}

// copyOut validates that [vaddr, vaddr+len(src)) lies in mapped,
// writable user memory and copies src into it.
func copyOut(as *vm.AddressSpace, vaddr uintptr, src []byte) defs.Errno {
	if len(src) == 0 {
		return 0
	}
	if !vm.CheckArea(vaddr, uintptr(len(src)), defs.AreaUser) {
		return defs.EFAULT
	}
	written := 0
	for written < len(src) {
		page, errno := as.Translate(vaddr+uintptr(written), true)
		if errno != 0 {
			return errno
		}
		n := len(src) - written
		if n > len(page) {
			n = len(page)
		}
		copy(page[:n], src[written:written+n])
		written += n
	}
	return 0
}
