package proc

import (
	"github.com/nanvix/kernel-sub003/internal/defs"
	"github.com/nanvix/kernel-sub003/internal/excp"
	"github.com/nanvix/kernel-sub003/internal/hal"
)

// KillForException implements excp.Killer: the DEFAULT disposition
// terminates the whole process, recording vec as the cause (spec.md
// §8 scenario 5). A pid that no longer resolves is a no-op — the
// process may already be exiting through another path.
func (t *Table) KillForException(pid defs.Pid, vec excp.Vector, _ hal.Context) {
	p, errno := t.Lookup(pid)
	if errno != 0 {
		return
	}
	p.Terminate(exceptionCauseBase - defs.Errno(vec))
}
