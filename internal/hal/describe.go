package hal

import (
	"fmt"

	"golang.org/x/arch/x86/x86asm"
)

// DescribeEntry decodes the first instruction at a process image's
// entry point purely for diagnostic TRACE logging around spawn
// (spec.md §4.8, call 3). It never fails the spawn path: a decode
// error just yields a "<unknown>" description.
func DescribeEntry(code []byte) string {
	if len(code) == 0 {
		return "<empty>"
	}
	inst, err := x86asm.Decode(code, 64)
	if err != nil {
		return "<unknown>"
	}
	return fmt.Sprintf("%s (%d bytes)", inst.String(), inst.Len)
}
