// Command kernel boots the simulated microkernel core with a single
// built-in demo module, since this hosting model has no instruction
// interpreter to load an arbitrary binary image from disk (see
// SPEC_FULL.md, "Hosting model"). It exists to exercise internal/boot
// end to end the way a real kernel's entry point would, not to be a
// general-purpose loader.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/nanvix/kernel-sub003/internal/bootcfg"
	"github.com/nanvix/kernel-sub003/internal/defs"
	"github.com/nanvix/kernel-sub003/internal/device"
	"github.com/nanvix/kernel-sub003/internal/kcall"
	"github.com/nanvix/kernel-sub003/internal/mem"
	"github.com/nanvix/kernel-sub003/internal/proc"

	"github.com/nanvix/kernel-sub003/internal/boot"
)

func main() {
	timerHz := flag.Int("timer-hz", defs.TimerFrequencyHz, "timer interrupt frequency")
	procMax := flag.Int("process-max", defs.ProcessMax, "maximum concurrently live processes")
	dramMiB := flag.Int("dram-mib", 4, "simulated DRAM window, in MiB")
	backend := flag.String("stdout", "console", "stdout backend: console, uart, or jtag")
	flag.Parse()

	cfg := bootcfg.Default()
	cfg.TimerHz = *timerHz
	cfg.ProcessMax = *procMax
	cfg.DRAMBytes = *dramMiB * 1024 * 1024
	switch *backend {
	case "uart":
		cfg.Backend = device.BackendUART
	case "jtag":
		cfg.Backend = device.BackendJTAG
	default:
		cfg.Backend = device.BackendConsole
	}

	mod, errno := bootcfg.ParseModule(0, mem.Pa(mem.PageSize), "hello version=v1.0.0")
	if errno != 0 {
		fmt.Fprintf(os.Stderr, "kernel: invalid built-in module record: %s\n", errno)
		os.Exit(1)
	}

	images := []kcall.Image{{Module: mod, Entry: helloEntry}}

	k, errno := boot.Boot(cfg, images)
	if errno != 0 {
		fmt.Fprintf(os.Stderr, "kernel: boot failed: %s\n", errno)
		os.Exit(1)
	}
	k.Idle(k.Pids)
}

// helloEntry is the one module this binary knows how to run: it maps
// a page for its own message, writes it through kcall_write, and
// exits. A real loader would instead jump to an entry point decoded
// from a module's code segment.
func helloEntry(th *proc.Thread, d *kcall.Dispatcher) {
	as := th.Process().AddressSpace()
	top, errno := as.AttachStack(1)
	if errno != 0 {
		d.Dispatch(th, defs.KCallThreadExit, kcall.Args{int64(errno)})
		return
	}
	bufVA := top - mem.PageSize
	page, errno := as.Translate(bufVA, true)
	if errno != 0 {
		d.Dispatch(th, defs.KCallThreadExit, kcall.Args{int64(errno)})
		return
	}
	msg := []byte("hello from kernel-sub003\n")
	copy(page, msg)

	d.Dispatch(th, defs.KCallWrite, kcall.Args{1, int64(bufVA), int64(len(msg))})
	d.Dispatch(th, defs.KCallThreadExit, kcall.Args{0})
}
