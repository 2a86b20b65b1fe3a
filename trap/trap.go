// Package trap decodes the RISC-V trap cause a real `strap_handler` would
// dispatch on (§4.5, §6.3). The syscall-number dispatch table itself lives
// in proc, since handling a syscall needs deep access to task lifecycle,
// address-space, and console state that would otherwise force an import
// cycle between proc and trap; this package covers the layer above that —
// deciding, from a trap cause alone, whether the trap is a syscall, a
// fatal user fault, or a timer tick, exactly the switch real trap_handler
// opens with before ever looking at a syscall number.
package trap

import (
	"rvos/caller"
	"rvos/internal/klog"
)

// killDistinct dedupes the stack-trace dump KillTask emits: the same fault
// site tends to retrigger across many tasks in a teaching workload (e.g. a
// demo program that always touches the same bad address), and dumping the
// full call chain on every single kill just buries the log. Only the first
// occurrence of each distinct caller chain gets the extra detail.
var killDistinct = &caller.Distinct_caller_t{Enabled: true}

/// Cause enumerates the riscv-privileged scauses this kernel recognizes
/// (§4.5). Every other scause is a bug in the trap vector itself, not a
/// condition this kernel is built to handle, and is fatal to the whole
/// simulated machine (§6.3: "an unrecognized cause panics").
type Cause int

const (
	UserEnvCall Cause = iota
	StoreFault
	StorePageFault
	LoadFault
	LoadPageFault
	IllegalInstruction
	SupervisorTimer
)

/// String names a Cause the way a kernel log line would.
func (c Cause) String() string {
	switch c {
	case UserEnvCall:
		return "UserEnvCall"
	case StoreFault:
		return "StoreFault"
	case StorePageFault:
		return "StorePageFault"
	case LoadFault:
		return "LoadFault"
	case LoadPageFault:
		return "LoadPageFault"
	case IllegalInstruction:
		return "IllegalInstruction"
	case SupervisorTimer:
		return "SupervisorTimer"
	default:
		return "Unknown"
	}
}

/// IsFatalFault reports whether cause is one of the user-mode faults this
/// kernel kills the offending task for rather than servicing (§4.5: no
/// demand paging or signal delivery exists to recover from these, §1
/// non-goals).
func (c Cause) IsFatalFault() bool {
	switch c {
	case StoreFault, StorePageFault, LoadFault, LoadPageFault, IllegalInstruction:
		return true
	}
	return false
}

/// KillTask logs the fault that is about to end taskID's execution (§4.5:
/// "a fatal fault kills only the offending task, not the kernel"). Actually
/// tearing the task down is the caller's job (proc.Kernel_t.Exit) — this
/// function only owns the observability side of the kill.
func KillTask(taskID int, cause Cause) {
	detail := "trap: fatal user-mode fault"
	if novel, trace := killDistinct.Distinct(); novel {
		detail += "\n" + trace
	}
	klog.TaskKilled(taskID, cause.String(), detail)
}
