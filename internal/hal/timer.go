package hal

import "sync/atomic"

// TimerVector is the logical IRQ line the PIT/LAPIC timer is wired to
// (IRQ 0 in the legacy PIC numbering).
const TimerVector Vector = IRQBase + 0

// Timer models the programmable interval timer (spec.md §6): a
// configured frequency and a monotonic tick counter advanced by the
// timer interrupt handler.
type Timer struct {
	freqHz int
	ticks  atomic.Uint64
	hook   atomic.Pointer[func(uint64)]
}

var sysTimer = &Timer{}

// SysTimer returns the process-wide timer singleton.
func SysTimer() *Timer { return sysTimer }

// Program sets the configured frequency and installs the timer IRQ
// handler on the global dispatcher. It is part of hal.Init's contract
// (spec.md §4.1: "PIT programmed to fire at a configured frequency").
// Reprogramming an already-armed timer (boot.Boot called more than
// once in the same process, as tests do) replaces the old handler
// rather than failing BUSY against itself.
func (t *Timer) Program(freqHz int) error {
	if freqHz <= 0 {
		return ErrBadVector
	}
	t.freqHz = freqHz
	Global().Unregister(TimerVector)
	return Global().Register(TimerVector, HandlerFunc(t.onTick))
}

func (t *Timer) onTick(_ Vector, ctx *Context) {
	n := t.ticks.Add(1)
	if h := t.hook.Load(); h != nil {
		(*h)(n)
	}
}

// Ticks returns the current tick count.
func (t *Timer) Ticks() uint64 { return t.ticks.Load() }

// FrequencyHz returns the configured tick frequency.
func (t *Timer) FrequencyHz() int { return t.freqHz }

// SetTickHook installs the scheduler's tick callback. Only one hook
// can be active; installing nil removes it. The hook runs on the
// interrupt path and must not block or allocate (spec.md §5).
func (t *Timer) SetTickHook(fn func(tick uint64)) {
	if fn == nil {
		t.hook.Store(nil)
		return
	}
	f := fn
	t.hook.Store(&f)
}

// Fire injects a timer interrupt synchronously. Real hardware delivers
// this via the IDT; tests and the simulated boot loop use Fire to
// drive the scheduler's pre-emption path deterministically.
func (t *Timer) Fire() {
	ctx := &Context{}
	Global().Dispatch(TimerVector, ctx)
}
