package hal

import "fmt"

// Selector names the flat-model segment selectors hal.Init installs
// (spec.md §4.1: "flat segmentation model with kernel (ring 0) and
// user (ring 3) code/data selectors").
type Selector uint16

const (
	SelNull Selector = iota * 8
	SelKernelCode
	SelKernelData
	SelUserCode
	SelUserData
	SelTSS
)

// TSS models the Task State Segment's one field the kernel actually
// needs in a software ring-3/ring-0 world: the stack pointer loaded on
// a privilege-level change (spec.md §4.1).
type TSS struct {
	RSP0 uintptr
}

// Config carries the boot-time parameters hal.Init needs: the kernel
// stack to point the TSS at and the timer frequency.
type Config struct {
	KernelStack      []byte
	TimerFrequencyHz int
	// HasIOAPIC indicates MADT reported an I/O APIC; when false the
	// legacy PIC remap path is used instead (spec.md §4.1).
	HasIOAPIC bool
}

// State is the result of a successful hal.Init: the installed
// segment/TSS state, handed back so the boot sequence can thread it
// into the first process's saved context.
type State struct {
	TSS           TSS
	KernelCS      Selector
	KernelDS      Selector
	UserCS        Selector
	UserDS        Selector
	IRQRemapBase  Vector
	UsingIOAPIC   bool
}

// Init brings the simulated CPU up per spec.md §4.1. Its contract is
// all-or-nothing: spec.md says bring-up errors have no one to report
// to, so Init panics rather than returning an error, matching
// spec.md §4.1's "Error model".
func Init(cfg Config) *State {
	if len(cfg.KernelStack) == 0 {
		panic("hal: Init requires a non-empty kernel stack")
	}
	freq := cfg.TimerFrequencyHz
	if freq == 0 {
		freq = 100 // spec.md §6 default KERNEL_TIMER_FREQUENCY
	}

	st := &State{
		TSS:          TSS{RSP0: uintptr(len(cfg.KernelStack))},
		KernelCS:     SelKernelCode,
		KernelDS:     SelKernelData,
		UserCS:       SelUserCode,
		UserDS:       SelUserData,
		IRQRemapBase: IRQBase,
		UsingIOAPIC:  cfg.HasIOAPIC,
	}

	// Remap legacy IRQ 0-15 onto IRQBase..IRQBase+15, clear of the
	// CPU exception range, per spec.md §4.1.
	for irq := 0; irq < NumIRQs; irq++ {
		if _, err := Global().IRQRemap(irq, irq); err != nil {
			panic(fmt.Sprintf("hal: IRQRemap(%d): %v", irq, err))
		}
		MaskIRQ(irq)
	}

	if err := SysTimer().Program(freq); err != nil {
		panic(fmt.Sprintf("hal: timer program: %v", err))
	}
	UnmaskIRQ(0) // timer line

	EnableInterrupts()
	return st
}
