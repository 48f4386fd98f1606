// Package bootcfg turns the raw kernel-arguments record spec.md §6
// describes — a physical memory map and an ordered list of kernel
// modules — into the typed Config and Module values the rest of the
// kernel is built against, the same split gopher-os's Kmain makes
// between "what the loader physically handed us" and "what subsystems
// actually consume."
package bootcfg

import (
	"strings"

	"golang.org/x/mod/semver"

	"github.com/nanvix/kernel-sub003/internal/defs"
	"github.com/nanvix/kernel-sub003/internal/device"
	"github.com/nanvix/kernel-sub003/internal/mem"
)

// Module is the kernel module record of spec.md §3: a pinned image in
// physical memory plus its command line. A `version=` token in the
// command line is validated as a semver before the module is accepted
// (SPEC_FULL.md, DOMAIN STACK), giving kmod_get introspection
// something structured to report beyond a raw string.
type Module struct {
	PhysStart, PhysEnd mem.Pa
	Cmdline            string
	Version            string // "" if cmdline carried no version= token
}

const maxCmdline = 64

// ParseModule validates and constructs a Module from a raw record.
// Cmdline longer than 64 bytes, a backwards range, or an invalid
// version= token are all rejected with EINVAL (spec.md §6's
// "cmdline≤64 chars" is a hard boot-time contract, not advisory).
func ParseModule(start, end mem.Pa, cmdline string) (Module, defs.Errno) {
	if end < start {
		return Module{}, defs.EINVAL
	}
	if len(cmdline) > maxCmdline {
		return Module{}, defs.EINVAL
	}
	version := ""
	for _, tok := range strings.Fields(cmdline) {
		v, ok := strings.CutPrefix(tok, "version=")
		if !ok {
			continue
		}
		if !semver.IsValid(v) {
			return Module{}, defs.EINVAL
		}
		version = v
	}
	return Module{PhysStart: start, PhysEnd: end, Cmdline: cmdline, Version: version}, 0
}

// NewerVersion reports whether a.Version postdates b.Version, per
// semver precedence. Modules without a version= token never compare
// newer than one that has it.
func NewerVersion(a, b Module) bool {
	if a.Version == "" || b.Version == "" {
		return false
	}
	return semver.Compare(a.Version, b.Version) > 0
}

// Table is the ordered kernel-module list retained for the kernel's
// lifetime (spec.md §6).
type Table struct {
	modules []Module
}

// NewTable constructs a module table from the boot-time record list.
func NewTable(modules []Module) *Table {
	return &Table{modules: append([]Module(nil), modules...)}
}

// Get returns the module at index, for kcall_kmod_get (spec.md §4.8).
func (t *Table) Get(index int) (Module, defs.Errno) {
	if index < 0 || index >= len(t.modules) {
		return Module{}, defs.ESRCH
	}
	return t.modules[index], 0
}

// Len reports the number of pinned modules.
func (t *Table) Len() int { return len(t.modules) }

// Config is the typed boot-time configuration spec.md §6 and §9
// describe: timer frequency, process-table bound, the DRAM window the
// frame allocator manages, and which Stdout backend to install.
// Populated once at boot and never mutated afterward.
type Config struct {
	TimerHz     int
	ProcessMax  int
	DRAMBytes   int
	Backend     device.Backend
	KernelFirst mem.Frame // first frame BookRange reserves for kernel image/kpool
	KernelLast  mem.Frame // last frame (inclusive) BookRange reserves
}

// Default returns the configuration spec.md §6 names as fixed
// defaults (KERNEL_TIMER_FREQUENCY=100Hz, PROCESS_MAX=16).
func Default() Config {
	return Config{
		TimerHz:    defs.TimerFrequencyHz,
		ProcessMax: defs.ProcessMax,
		DRAMBytes:  4096 * mem.PageSize,
		Backend:    device.BackendConsole,
	}
}
