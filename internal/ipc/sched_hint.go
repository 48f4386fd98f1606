package ipc

import "runtime"

// gosched yields the host goroutine scheduler while spinning on a
// Spinlock. On real hardware a spin loop burns cycles on the same
// core; hosted on top of Go's M:N scheduler, a bare spin would instead
// starve whichever goroutine is expected to release the lock, so a
// cooperative yield stands in for the PAUSE instruction.
func gosched() { runtime.Gosched() }
