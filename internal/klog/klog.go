// Package klog implements the three-tier error-handling design of
// spec.md §7: TRACE for kernel-call entries, WARN for soft kernel
// errors, and PANIC for fatal kernel errors. All three write through
// the same device.Stdout the console uses, matching the teacher's
// "print through the stdout device, nothing fancier" logging texture.
package klog

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/nanvix/kernel-sub003/internal/device"
	"github.com/nanvix/kernel-sub003/internal/hal"
)

var (
	mu   sync.Mutex
	sink device.Stdout = device.NewConsole()
	// halted latches true once Panic has run, so a second panic on
	// another thread doesn't race the first one's halt sequence.
	halted atomic.Bool
	// haltFn is normally an infinite select{}; tests inject a
	// recoverable stand-in so Panic can be asserted without hanging
	// the test binary.
	haltFn = func() { select {} }
)

// SetSink redirects klog output, used by boot to install the
// configured backend and by tests to capture log lines.
func SetSink(s device.Stdout) {
	mu.Lock()
	defer mu.Unlock()
	sink = s
}

// SetHaltFunc overrides the halt behavior invoked at the end of
// Panic. Exposed for tests only.
func SetHaltFunc(fn func()) {
	if fn == nil {
		fn = func() { select {} }
	}
	haltFn = fn
}

func write(level, format string, args ...any) {
	mu.Lock()
	defer mu.Unlock()
	line := fmt.Sprintf("["+level+"] "+format+"\n", args...)
	_, _ = sink.Write([]byte(line))
}

// Trace logs a kernel-call entry: call number and arguments
// (spec.md §7.1). No user-visible error is ever logged beyond this
// line; translating to errno is the dispatcher's job alone.
func Trace(call string, args ...any) {
	write("TRACE", "%s%v", call, args)
}

// Warn logs a soft kernel error: the operation fails but the kernel
// keeps running (spec.md §7.2).
func Warn(format string, args ...any) {
	write("WARN", format, args...)
}

// Panic implements kpanic (spec.md §7.3): disable interrupts on this
// CPU, write msg to stdout, halt. It never returns to the caller.
func Panic(msg string) {
	hal.DisableInterrupts()
	if halted.CompareAndSwap(false, true) {
		write("PANIC", "%s", msg)
	}
	haltFn()
}
