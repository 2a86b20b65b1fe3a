package proc

import (
	"sync"

	"rvos/defs"
	"rvos/limits"
)

/// pidAlloc hands out PIDs >= 1, recycling ones freed by Put so a
/// long-running system doesn't exhaust the PID space (§3: "unique among
/// live tasks; recyclable after drop"). Every live PID is charged against
/// limits.Syslimit.Sysprocs, the same system-wide task-count ceiling
/// biscuit's Syslimit_t enforces, so a runaway fork bomb fails with EAGAIN
/// instead of growing the TCB table without bound.
type pidAlloc_t struct {
	sync.Mutex
	next defs.Pid_t
	free []defs.Pid_t
}

var pids = &pidAlloc_t{next: 1}

/// Alloc returns a fresh, currently-unused PID, or ok=false if the
/// system-wide task-count limit is exhausted.
func (p *pidAlloc_t) Alloc() (defs.Pid_t, bool) {
	if !limits.Syslimit.Sysprocs.Take() {
		return 0, false
	}
	p.Lock()
	defer p.Unlock()
	if n := len(p.free); n > 0 {
		pid := p.free[n-1]
		p.free = p.free[:n-1]
		return pid, true
	}
	pid := p.next
	p.next++
	return pid, true
}

/// Put returns pid to the free pool once its owning task has been reaped,
/// and gives its budget back to Syslimit.Sysprocs.
func (p *pidAlloc_t) Put(pid defs.Pid_t) {
	p.Lock()
	p.free = append(p.free, pid)
	p.Unlock()
	limits.Syslimit.Sysprocs.Give()
}
