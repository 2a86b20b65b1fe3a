package defs

/// Pid_t identifies a task. PIDs are >= 1 and recyclable after the owning
/// task is reaped (§3).
type Pid_t int

/// Syscall numbers, fixed by §4.5/§6.3. Argument registers are x10..x12
/// (a0..a2); the syscall number is x17 (a7); the return value is written
/// into x10.
const (
	SYS_READ       = 63
	SYS_WRITE      = 64
	SYS_EXIT       = 93
	SYS_YIELD      = 124
	SYS_SET_PRIO   = 140 /// supplemented from original_source; not in the minimal table but not excluded by any Non-goal
	SYS_GET_TIME   = 169
	SYS_MUNMAP     = 215
	SYS_FORK       = 220
	SYS_EXEC       = 221
	SYS_MMAP       = 222
	SYS_WAITPID    = 260
	SYS_SPAWN      = 400
	SYS_TASK_INFO  = 410
)

/// File descriptors recognized by the read/write syscalls. This teaching
/// kernel exposes no other descriptors to user programs (§4.5).
const (
	FD_STDIN  = 0
	FD_STDOUT = 1
)

/// mmap protection bits, bit-for-bit as specified in §4.5 (prot bits
/// 0:R,1:W,2:X, W implies R).
const (
	PROT_R = 1 << 0
	PROT_W = 1 << 1
	PROT_X = 1 << 2
)

/// Negative syscall return codes that are not part of the Err_t/errno
/// taxonomy used by the filesystem — these are the exact process-lifecycle
/// contract values fixed by §4.5/§7.
const (
	SyscallInvalidArg = -1 /// bad argument, or an mmap request that overlaps an existing mapping
	SyscallWaitAgain   = -2 /// waitpid matched a live, non-zombie child
	SyscallNoSuchChild = -1 /// waitpid found no matching child at all
)

/// MaxSyscallNum bounds the syscall-count vector task_info reports (§4.5
/// #410); syscall numbers in this kernel never approach it, matching the
/// original implementation's flat, directly-indexed counter array.
const MaxSyscallNum = 500

/// TaskStatus enumerates the lifecycle states of a TaskControlBlock (§3).
type TaskStatus int

const (
	TaskReady TaskStatus = iota
	TaskRunning
	TaskZombie
)

func (s TaskStatus) String() string {
	switch s {
	case TaskReady:
		return "Ready"
	case TaskRunning:
		return "Running"
	case TaskZombie:
		return "Zombie"
	default:
		return "Unknown"
	}
}
