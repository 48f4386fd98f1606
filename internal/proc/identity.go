package proc

import "github.com/nanvix/kernel-sub003/internal/defs"

// The mutation rules below follow POSIX seteuid/setuid semantics and
// the original nanvix identity record (SPEC_FULL.md, SUPPLEMENTED
// FEATURES), resolving the "only sketched" saved-set-uid note in
// spec.md §9. They are exercised end to end by spec.md §8 scenario 6.

// Uid / Euid / Gid / Egid report the corresponding identity field.
func (p *Process) Uid() int  { return p.Identity().Uid }
func (p *Process) Euid() int { return p.Identity().Euid }
func (p *Process) Gid() int  { return p.Identity().Gid }
func (p *Process) Egid() int { return p.Identity().Egid }

// SetEuid implements seteuid: the caller may set its effective uid to
// its real uid, its current effective uid, or its saved-set-uid.
// Anything else requires privilege (effective uid 0).
func (p *Process) SetEuid(target int) defs.Errno {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := &p.identity
	if id.Euid != 0 && target != id.Uid && target != id.Euid && target != id.Saved {
		return defs.EPERM
	}
	id.Euid = target
	return 0
}

// SetUid implements setuid. A privileged caller (effective uid 0) sets
// uid, euid, and saved-uid together, permanently dropping privilege.
// An unprivileged caller may only set uid to its current uid or
// saved-uid, and only ever changes euid to match — saved-uid is left
// untouched. A process that dropped euid 0 with seteuid while its
// saved-uid is still 0 can therefore return to uid 0 with setuid; one
// whose saved-uid was replaced by a privileged setuid cannot.
func (p *Process) SetUid(target int) defs.Errno {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := &p.identity
	if id.Euid == 0 {
		id.Uid, id.Euid, id.Saved = target, target, target
		return 0
	}
	if target != id.Uid && target != id.Saved {
		return defs.EPERM
	}
	id.Uid = target
	id.Euid = target
	return 0
}

// SetGid and SetEgid mirror SetUid/SetEuid for the group identity,
// using Sgroup as the saved-set-gid slot.
func (p *Process) SetGid(target int) defs.Errno {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := &p.identity
	if id.Euid == 0 {
		id.Gid, id.Egid, id.Sgroup = target, target, target
		return 0
	}
	if target != id.Gid && target != id.Sgroup {
		return defs.EPERM
	}
	id.Gid = target
	id.Egid = target
	return 0
}

func (p *Process) SetEgid(target int) defs.Errno {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := &p.identity
	if id.Euid != 0 && target != id.Gid && target != id.Egid && target != id.Sgroup {
		return defs.EPERM
	}
	id.Egid = target
	return 0
}
