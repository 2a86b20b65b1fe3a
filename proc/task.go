// Package proc owns task lifecycle: PID allocation, the ELF registry,
// fork/exec/exit/waitpid/spawn (§4.4), and the cooperative runtime that
// drives each task's simulated user program one syscall at a time. A task's
// "user program" is an ordinary Go closure (Task_t.body) rather than RISC-V
// machine code executed by an emulator — this kernel's job is the
// kernel-side bookkeeping around that execution, not instruction-level
// emulation, so the closure stands in for compiled user code and issues
// syscalls by calling Task_t.Ecall, exactly as `ecall` would trap into
// trap_handler on real hardware (§4.5). Exactly one task's closure runs at
// a time — enforced by the baton handoff in runloop.go — matching the
// single-hardware-CPU model in §5.
package proc

import (
	"runtime"
	"sync"

	"rvos/accnt"
	"rvos/defs"
	"rvos/sched"
	"rvos/trap"
	"rvos/vm"
)

/// Task_t is a TaskControlBlock (§3): process state, the address space it
/// owns, its accounting, and its place in the parent/child task graph.
type Task_t struct {
	mu sync.Mutex

	Pid      defs.Pid_t
	Status   defs.TaskStatus
	AS       *vm.AddressSpace_t
	Stats    accnt.Stats_t
	Priority int
	Pass     int
	ExitCode int

	Parent   *Task_t
	Children []*Task_t

	body         func(*Task_t)
	ctl          taskControl
	nextForkBody func(*Task_t)
}

var _ sched.Schedulable = (*Task_t)(nil)

/// sysRequest is one trap: the syscall number and its three argument
/// registers (§4.5), sent from a task's body goroutine to the run loop.
/// num is either a real syscall number or faultTrapNum, in which case a0
/// carries a trap.Cause instead of an argument register (§4.5's fault
/// rows trap directly into trap_handler, not through the ecall ABI).
type sysRequest struct {
	num        int
	a0, a1, a2 uint64
}

/// faultTrapNum tags a request as a simulated hardware fault rather than
/// an ecall (§6.3's syscall table has no negative entries, so this can
/// never collide with a real syscall number). Used by Fault/dispatchFault
/// to route §4.5's StoreFault/StorePageFault/LoadFault/IllegalInstruction
/// rows through trap.Cause instead of the syscall dispatch table.
const faultTrapNum = -1

/// taskControl is the baton-handoff channel pair a task's body goroutine
/// uses to trap into the kernel and block until the kernel hands the
/// syscall's return value back — the Go-level stand-in for `ecall`
/// trapping to `trap_handler` and `__restore` resuming the caller with
/// x[10] set (§4.5, §4.6). Exactly one of {body goroutine running,
/// blocked in Ecall} holds true at any instant, which is what keeps only
/// one task's code ever executing at a time despite each task owning its
/// own goroutine.
type taskControl struct {
	start  sync.Once
	reqCh  chan sysRequest
	respCh chan int64
}

/// ensureStarted lazily launches t's body goroutine the first time the
/// run loop schedules t. A body that returns without ever calling exit is
/// treated as an implicit exit(0), matching a user program falling off
/// the end of main.
func (t *Task_t) ensureStarted() {
	t.ctl.start.Do(func() {
		t.ctl.reqCh = make(chan sysRequest)
		t.ctl.respCh = make(chan int64)
		go func() {
			t.body(t)
			t.Ecall(defs.SYS_EXIT, 0, 0, 0)
		}()
	})
}

/// Ecall traps into the kernel with a syscall request and blocks for the
/// reply, exactly the round trip `ecall` + trap_handler + __restore
/// performs on real hardware (§4.5). exit never returns to its caller —
/// matching process semantics — so for SYS_EXIT this terminates the
/// calling goroutine instead of waiting on a reply that will never come.
func (t *Task_t) Ecall(num int, a0, a1, a2 uint64) int64 {
	t.ctl.reqCh <- sysRequest{num: num, a0: a0, a1: a1, a2: a2}
	if num == defs.SYS_EXIT {
		runtime.Goexit()
	}
	rc := <-t.ctl.respCh
	if num == defs.SYS_EXEC && rc >= 0 {
		// exec never returns to the calling program on success (§4.4):
		// the body the caller issued this from no longer exists once
		// replaceBody has swapped in the exec'd program's body and
		// goroutine, so this goroutine's job ends here rather than
		// resuming past the ecall with the replaced program's return
		// value.
		runtime.Goexit()
	}
	return rc
}

/// Fault lets a body simulate the kernel trapping a direct user-mode
/// memory fault (§4.5's StoreFault/StorePageFault/LoadFault/
/// IllegalInstruction rows) instead of an ecall: real hardware traps into
/// trap_handler the instant faulting code executes, never through the
/// syscall ABI, so unlike Ecall this never returns to its caller — the
/// trap handler kills the task before anything could resume.
func (t *Task_t) Fault(cause trap.Cause) {
	t.ctl.reqCh <- sysRequest{num: faultTrapNum, a0: uint64(cause)}
	runtime.Goexit()
}

/// SchedPass, SchedSetPass, and SchedPriority implement sched.Schedulable.
func (t *Task_t) SchedPass() int {
	t.lock()
	defer t.unlock()
	return t.Pass
}

func (t *Task_t) SchedSetPass(p int) {
	t.lock()
	t.Pass = p
	t.unlock()
}

func (t *Task_t) SchedPriority() int {
	t.lock()
	defer t.unlock()
	return t.Priority
}

/// BigStride bounds how far a task's pass can jump in one deschedule, per
/// the stride-scheduling rule `pass += BigStride/priority` (§4.3). 100000
/// matches the constant the original tutorial's stride-scheduler chapter
/// uses for the same rule.
const BigStride = 100000

/// DefaultPriority is every newly created task's starting priority (§4.3).
const DefaultPriority = 16

func (t *Task_t) lock()   { t.mu.Lock() }
func (t *Task_t) unlock() { t.mu.Unlock() }

/// SetStatus transitions the task to a new status under its lock.
func (t *Task_t) SetStatus(s defs.TaskStatus) {
	t.lock()
	t.Status = s
	t.unlock()
}

/// GetStatus returns the task's current status.
func (t *Task_t) GetStatus() defs.TaskStatus {
	t.lock()
	defer t.unlock()
	return t.Status
}

/// addChild records child as one of t's owned children.
func (t *Task_t) addChild(child *Task_t) {
	t.lock()
	t.Children = append(t.Children, child)
	t.unlock()
}
