// Package hal implements the hardware-abstraction-layer contracts of
// spec.md §4.1–§4.2 (C1 CPU bring-up, C2 exception/interrupt dispatch)
// behind the small per-architecture capability interface spec.md §9
// calls for. Only the x86 tree is implemented, per the Open Question
// in spec.md §9 ("implementers should commit to the x86-only tree").
//
// There is no portable way to install a real IDT/GDT or trap from ring
// 3 to ring 0 without a modified Go runtime or hand-maintained
// architecture-specific assembly (see SPEC_FULL.md, "Hosting model").
// This package instead implements the exact contracts of spec.md
// §4.1–§4.2 against a simulated CPU: a fixed-size vector table, a
// software interrupt-controller model, and an execution Context value
// standing in for the saved register file. Every invariant in the
// contract (BUSY on double-register, mask-before-EOI ordering, IF
// save/restore) is real and independently testable.
package hal

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Vector identifies an entry in the interrupt descriptor table.
// 0-31 are CPU exceptions, 32 (IRQBase) and up are remapped IRQs.
type Vector int

const (
	// IRQBase is the vector the legacy PIC is remapped to, avoiding
	// the reserved exception range (spec.md §4.1).
	IRQBase Vector = 0x20
	// NumVectors is the size of the IDT (spec.md §4.1: "256-entry").
	NumVectors = 256
	// NumExceptions is the count of CPU exception vectors (0-31).
	NumExceptions = 32
	// NumIRQs is the count of legacy IRQ lines (spec.md §4.1: "0-15").
	NumIRQs = 16
)

// Context is a frozen snapshot of the execution state pushed on trap
// entry: general-purpose registers, segment selectors, instruction
// pointer, flags, and the page-directory root (spec.md §3, "Execution
// context"). The field set is deliberately coarse; it carries what the
// rest of the kernel needs to resume or redirect execution, not a
// literal x86 frame layout.
type Context struct {
	GPRegs   [16]uint64
	RIP      uint64
	RFlags   uint64
	CS, SS   uint16
	PageDir  uintptr // physical address of the active page directory
	ErrCode  uint64  // valid for exceptions that push one (e.g. #PF, #GP)
	FaultVA  uintptr // valid for #PF only
	UserMode bool
}

// Handler processes a trap. ctx is the saved state of the thread that
// took the trap; handlers may mutate it (e.g. to redirect RIP for a
// signal-like restart) but must not block or allocate on the
// exception path per spec.md §5 ("the ... interrupt dispatch ... must
// be wait-free").
type Handler interface {
	Handle(vec Vector, ctx *Context)
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(vec Vector, ctx *Context)

// Handle implements Handler.
func (f HandlerFunc) Handle(vec Vector, ctx *Context) { f(vec, ctx) }

func defaultHandler(vec Vector, ctx *Context) {
	panic(fmt.Sprintf("hal: unhandled vector %#x (no handler registered)", int(vec)))
}

// Dispatcher owns the per-vector handler table described in spec.md
// §4.2. Its process-wide instance (Global) is the HAL's handler-table
// singleton, matching spec.md §9's "single well-documented
// process-wide singleton" allowance for trap entry points that have no
// parameter other than the register file.
type Dispatcher struct {
	mu         sync.Mutex
	handlers   [NumVectors]Handler
	registered [NumVectors]bool
	// irqPhys maps a logical IRQ (as wired to the handler table) to
	// the physical line the controller reports. See irq_remap.
	irqPhys    [NumIRQs]int
	stayMasked atomic.Bool // set by KeepMasked during a Dispatch call
}

var global = newDispatcher()

func newDispatcher() *Dispatcher {
	d := &Dispatcher{}
	for i := range d.handlers {
		d.handlers[i] = HandlerFunc(defaultHandler)
	}
	for i := range d.irqPhys {
		d.irqPhys[i] = i
	}
	return d
}

// Global returns the process-wide dispatcher singleton.
func Global() *Dispatcher { return global }

// Register installs fn for vec. It fails with EBUSY if a non-default
// handler already occupies the slot (spec.md §4.2).
func (d *Dispatcher) Register(vec Vector, fn Handler) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if int(vec) < 0 || int(vec) >= NumVectors {
		return ErrBadVector
	}
	if d.registered[vec] {
		return ErrBusy
	}
	d.handlers[vec] = fn
	d.registered[vec] = true
	return nil
}

// Unregister removes a previously installed handler, restoring the
// default panic-on-entry behavior.
func (d *Dispatcher) Unregister(vec Vector) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if int(vec) < 0 || int(vec) >= NumVectors {
		return
	}
	d.handlers[vec] = HandlerFunc(defaultHandler)
	d.registered[vec] = false
}

// Dispatch is the low-level trap entry point: push-state, call the
// vector's handler, restore-state is modeled by the caller (the
// scheduler's context-switch trampoline) resuming ctx. Interrupts are
// considered disabled for the duration of the call, matching spec.md
// §4.2's "Ordering" paragraph; Dispatch re-enables them on return
// unless the handler called KeepMasked.
func (d *Dispatcher) Dispatch(vec Vector, ctx *Context) {
	DisableInterrupts()
	h := d.handlerFor(vec)
	h.Handle(vec, ctx)
	if vec >= IRQBase && vec < IRQBase+NumIRQs {
		AckPIC(int(vec - IRQBase))
	}
	if !d.stayMasked.Swap(false) {
		EnableInterrupts()
	}
}

func (d *Dispatcher) handlerFor(vec Vector) Handler {
	d.mu.Lock()
	defer d.mu.Unlock()
	if int(vec) < 0 || int(vec) >= NumVectors {
		return HandlerFunc(defaultHandler)
	}
	return d.handlers[vec]
}

// KeepMasked tells Dispatch not to re-enable interrupts when the
// currently-running handler returns. Intended to be called by a
// handler that hands off to a bottom half scheduled separately.
func (d *Dispatcher) KeepMasked() { d.stayMasked.Store(true) }

// IRQRemap records that logical IRQ now arrives as physical line phys
// (e.g. IOAPIC redirection table programming) and returns the
// previous physical number for undo, per spec.md §4.2.
func (d *Dispatcher) IRQRemap(logical, phys int) (old int, err error) {
	if logical < 0 || logical >= NumIRQs {
		return 0, ErrBadVector
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	old = d.irqPhys[logical]
	d.irqPhys[logical] = phys
	return old, nil
}
