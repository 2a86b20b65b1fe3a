// Package caller dedups repeated fault call-chains so a kernel that kills
// the same kind of task over and over (a demo program that always faults
// the same way) doesn't flood the log with identical stack traces.
// trap.KillTask is its sole client (§4.5: "log; kill current task").
package caller

import (
	"fmt"
	"runtime"
	"sync"
)

/// Distinct_caller_t tracks whether a call chain has been seen before.
/// Fields are protected by the embedded mutex.
type Distinct_caller_t struct {
	sync.Mutex
	Enabled bool
	did     map[uintptr]bool
}

// _pchash returns a poor-man's hash of the given RIP values, which is
// probably unique per distinct call chain.
func (dc *Distinct_caller_t) _pchash(pcs []uintptr) uintptr {
	if len(pcs) == 0 {
		panic("d'oh")
	}
	var ret uintptr
	for _, pc := range pcs {
		pc = pc*1103515245 + 12345
		ret ^= pc
	}
	return ret
}

/// Len returns the number of unique caller paths recorded so far.
func (dc *Distinct_caller_t) Len() int {
	dc.Lock()
	ret := len(dc.did)
	dc.Unlock()
	return ret
}

/// Distinct reports whether the current call chain is new. It returns true
/// along with a formatted stack trace the first time a given chain is
/// seen; every later kill along the same chain returns false, "" so
/// trap.KillTask logs the short form instead of dumping the trace again.
func (dc *Distinct_caller_t) Distinct() (bool, string) {
	dc.Lock()
	defer dc.Unlock()
	if !dc.Enabled {
		return false, ""
	}

	if dc.did == nil {
		dc.did = make(map[uintptr]bool)
	}

	var pcs []uintptr
	for sz, got := 30, 30; got >= sz; sz *= 2 {
		pcs = make([]uintptr, 30)
		got = runtime.Callers(3, pcs)
		if got == 0 {
			panic("no")
		}
	}
	h := dc._pchash(pcs)
	if ok := dc.did[h]; !ok {
		dc.did[h] = true
		frames := runtime.CallersFrames(pcs)
		fs := ""
		for {
			fr, more := frames.Next()
			if fs == "" {
				fs = fmt.Sprintf("%v (%v:%v)\n", fr.Function,
					fr.File, fr.Line)
			} else {
				fs += fmt.Sprintf("\t%v (%v:%v)\n", fr.Function,
					fr.File, fr.Line)
			}
			if !more || fr.Function == "runtime.goexit" {
				break
			}
		}
		return true, fs
	}
	return false, ""
}
