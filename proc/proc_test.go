package proc

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"rvos/defs"
	"rvos/internal/synthelf"
	"rvos/mem"
	"rvos/trap"
)

// Body closures run on their own goroutine (the baton-handoff model,
// task.go's doc comment), and *testing.T assertions are only valid from the
// goroutine actually running the test. So every test below has its body
// closures record raw values into plain outer variables and only asserts
// on them after RunInitproc returns on the test's own goroutine — never
// inside a Body.

func TestMain(m *testing.M) {
	mem.Phys_init(1 << 14) // 64MiB of simulated physical frames, plenty for these tests
	m.Run()
}

const testImageSize = 64

func newTestKernel() (*Kernel_t, []byte) {
	return NewKernel(), synthelf.Minimal(testImageSize)
}

// TestForkWaitpidReapsExitCode exercises §8's "fork a child that sets an
// observable value and exits; the parent waitpid's and sees the exit code"
// scenario end to end through the Ecall/runloop baton-handoff harness.
func TestForkWaitpidReapsExitCode(t *testing.T) {
	k, image := newTestKernel()
	var childPid, reapedPid int64
	var exitCode int32
	const exitCodeVA = synthelf.BaseVaddr + 32

	k.Registry().Register(InitProcName, Program_t{
		ELF: image,
		Body: func(task *Task_t) {
			task.OnFork(func(child *Task_t) {
				child.Ecall(defs.SYS_EXIT, 42, 0, 0)
			})
			childPid = task.Ecall(defs.SYS_FORK, 0, 0, 0)

			for {
				rc := task.Ecall(defs.SYS_WAITPID, uint64(childPid), exitCodeVA, 0)
				if rc == int64(defs.SyscallWaitAgain) {
					task.Ecall(defs.SYS_YIELD, 0, 0, 0)
					continue
				}
				reapedPid = rc
				break
			}
			buf := make([]byte, 4)
			task.AS.User2k(buf, exitCodeVA)
			exitCode = int32(leUint32(buf))
			task.Ecall(defs.SYS_EXIT, 0, 0, 0)
		},
	})

	require.Equal(t, defs.Err_t(0), k.RunInitproc())
	require.Greater(t, childPid, int64(0))
	require.Equal(t, childPid, reapedPid)
	require.Equal(t, int32(42), exitCode)
}

// TestWaitpidNoSuchChildWhenNothingMatches checks the §4.4/§7 contract:
// waitpid on a process with no children at all returns SyscallNoSuchChild,
// distinct from the "child exists but hasn't exited" retry sentinel.
func TestWaitpidNoSuchChildWhenNothingMatches(t *testing.T) {
	k, image := newTestKernel()
	var rc int64

	k.Registry().Register(InitProcName, Program_t{
		ELF: image,
		Body: func(task *Task_t) {
			rc = task.Ecall(defs.SYS_WAITPID, uint64(int64(-1)), 0, 0)
			task.Ecall(defs.SYS_EXIT, 0, 0, 0)
		},
	})

	require.Equal(t, defs.Err_t(0), k.RunInitproc())
	require.Equal(t, int64(defs.SyscallNoSuchChild), rc)
}

// TestSpawnStrideFairness runs two CPU-bound children at priorities 8 and
// 16 until they both exit, and checks the higher-priority (lower stride
// increment) child accumulates exactly as many scheduled yield rounds as
// the other (both reach `rounds` — the stride-fairness property itself is
// covered in isolation by sched_test.go; this test's job is to confirm
// set_priority and spawn actually thread a distinct priority through to
// the scheduler without deadlocking or starving either child).
func TestSpawnStrideFairness(t *testing.T) {
	k, image := newTestKernel()

	var mu sync.Mutex
	turns := map[string]int{"hi": 0, "lo": 0}
	const rounds = 50

	makeWorker := func(label string, prio int64) Program_t {
		return Program_t{
			ELF: image,
			Body: func(task *Task_t) {
				task.Ecall(defs.SYS_SET_PRIO, uint64(prio), 0, 0)
				for i := 0; i < rounds; i++ {
					mu.Lock()
					turns[label]++
					mu.Unlock()
					task.Ecall(defs.SYS_YIELD, 0, 0, 0)
				}
				task.Ecall(defs.SYS_EXIT, 0, 0, 0)
			},
		}
	}
	k.Registry().Register("hi_worker", makeWorker("hi", 16))
	k.Registry().Register("lo_worker", makeWorker("lo", 8))

	var hiPid, loPid int64
	k.Registry().Register(InitProcName, Program_t{
		ELF: image,
		Body: func(task *Task_t) {
			task.Ecall(defs.SYS_MMAP, 0x71000000, uint64(mem.PGSIZE), uint64(defs.PROT_R|defs.PROT_W))
			task.Ecall(defs.SYS_MMAP, 0x72000000, uint64(mem.PGSIZE), uint64(defs.PROT_R|defs.PROT_W))
			hiPid = task.Ecall(defs.SYS_SPAWN, stageName(task, 0x71000000, "hi_worker"), 0, 0)
			loPid = task.Ecall(defs.SYS_SPAWN, stageName(task, 0x72000000, "lo_worker"), 0, 0)
			waitAll(task)
			task.Ecall(defs.SYS_EXIT, 0, 0, 0)
		},
	})

	require.Equal(t, defs.Err_t(0), k.RunInitproc())
	require.GreaterOrEqual(t, hiPid, int64(0))
	require.GreaterOrEqual(t, loPid, int64(0))
	require.Equal(t, rounds, turns["hi"])
	require.Equal(t, rounds, turns["lo"])
}

// TestMmapWriteMunmapThenFault exercises the §8 mmap/write/munmap scenario:
// mmap a page, write and read through it, munmap it, then confirm a direct
// access to the now-unmapped page fails rather than silently succeeding.
func TestMmapWriteMunmapThenFault(t *testing.T) {
	k, image := newTestKernel()
	var mmapRc, munmapRc int64
	var roundTripOK bool
	var faultedAfterUnmap bool

	k.Registry().Register(InitProcName, Program_t{
		ELF: image,
		Body: func(task *Task_t) {
			const va = 0x50000000
			const length = 4096
			mmapRc = task.Ecall(defs.SYS_MMAP, va, length, uint64(defs.PROT_R|defs.PROT_W))

			payload := []byte("mmap round trip")
			werr := task.AS.K2user(payload, va)
			back := make([]byte, len(payload))
			rerr := task.AS.User2k(back, va)
			roundTripOK = werr == 0 && rerr == 0 && string(back) == string(payload)

			munmapRc = task.Ecall(defs.SYS_MUNMAP, va, length, 0)

			_, err := task.AS.Userdmap8(va, false)
			faultedAfterUnmap = err != 0

			// Real hardware would have trapped directly into trap_handler
			// the instant the unmapped access happened, not returned
			// -EFAULT from a kernel-side copy — drive the same
			// fatal-fault path here (§4.5/§7) instead of exiting normally.
			task.Fault(trap.LoadPageFault)
		},
	})

	require.Equal(t, defs.Err_t(0), k.RunInitproc())
	require.Equal(t, int64(0), mmapRc)
	require.True(t, roundTripOK)
	require.Equal(t, int64(0), munmapRc)
	require.True(t, faultedAfterUnmap, "reading through an unmapped page should fault")
	require.Equal(t, defs.TaskZombie, k.Initproc().GetStatus())
	require.Equal(t, faultExitCode, k.Initproc().ExitCode)
}

// TestSetPriorityClampsToValidRange checks the [2, 2^16) clamp (SPEC_FULL
// Supplemented Features #3).
func TestSetPriorityClampsToValidRange(t *testing.T) {
	k, image := newTestKernel()
	var tooLow, tooHigh, inRange int64

	k.Registry().Register(InitProcName, Program_t{
		ELF: image,
		Body: func(task *Task_t) {
			tooLow = task.Ecall(defs.SYS_SET_PRIO, 0, 0, 0)
			tooHigh = task.Ecall(defs.SYS_SET_PRIO, 1<<20, 0, 0)
			inRange = task.Ecall(defs.SYS_SET_PRIO, 100, 0, 0)
			task.Ecall(defs.SYS_EXIT, 0, 0, 0)
		},
	})

	require.Equal(t, defs.Err_t(0), k.RunInitproc())
	require.Equal(t, int64(2), tooLow)
	require.Equal(t, int64(1<<16-1), tooHigh)
	require.Equal(t, int64(100), inRange)
}

// TestTaskInfoCountsSyscalls checks task_info reports an accurate status
// and syscall-count vector (§4.5 #410, §8).
func TestTaskInfoCountsSyscalls(t *testing.T) {
	k, image := newTestKernel()
	var status, yieldCount uint32
	var mmapRc, taskInfoRc int64
	var readBackErr defs.Err_t

	k.Registry().Register(InitProcName, Program_t{
		ELF: image,
		Body: func(task *Task_t) {
			for i := 0; i < 5; i++ {
				task.Ecall(defs.SYS_YIELD, 0, 0, 0)
			}
			const va = 0x40000000
			const length = 4096
			// task_info writes its struct to a user buffer like any other
			// syscall output (§4.5 #410) — it must be mapped first, the
			// same as the buffer TestMmapWriteMunmapThenFault exercises.
			mmapRc = task.Ecall(defs.SYS_MMAP, va, length, uint64(defs.PROT_R|defs.PROT_W))
			taskInfoRc = task.Ecall(defs.SYS_TASK_INFO, va, 0, 0)

			buf := make([]byte, 8+4*defs.MaxSyscallNum)
			readBackErr = task.AS.User2k(buf, va)
			status = leUint32(buf[0:4])
			yieldCount = leUint32(buf[8+4*defs.SYS_YIELD : 12+4*defs.SYS_YIELD])
			task.Ecall(defs.SYS_EXIT, 0, 0, 0)
		},
	})

	require.Equal(t, defs.Err_t(0), k.RunInitproc())
	require.Equal(t, int64(0), mmapRc)
	require.Equal(t, int64(0), taskInfoRc)
	require.Equal(t, defs.Err_t(0), readBackErr)
	require.Equal(t, uint32(defs.TaskRunning), status)
	require.Equal(t, uint32(5), yieldCount)
}

// TestFatalFaultKillsOnlyOffendingTask exercises §7's "a fatal fault kills
// only the offending task, not the kernel" guarantee end to end: a child
// touches an address its address space never mapped, observes -EFAULT from
// the kernel-side copy the way a real page-fault trap would have been taken
// directly instead, reports the fault via Task_t.Fault, and the parent's
// waitpid still reaps it with the kernel-assigned fault exit code rather
// than the kernel panicking or the parent itself dying.
func TestFatalFaultKillsOnlyOffendingTask(t *testing.T) {
	k, image := newTestKernel()
	var childPid, reapedPid int64
	var exitCode int32
	const exitCodeVA = synthelf.BaseVaddr + 32

	k.Registry().Register(InitProcName, Program_t{
		ELF: image,
		Body: func(task *Task_t) {
			task.OnFork(func(child *Task_t) {
				_, err := child.AS.Userdmap8(0x60000000, false)
				if err == 0 {
					child.Ecall(defs.SYS_EXIT, 0, 0, 0)
				}
				child.Fault(trap.LoadPageFault)
			})
			childPid = task.Ecall(defs.SYS_FORK, 0, 0, 0)

			for {
				rc := task.Ecall(defs.SYS_WAITPID, uint64(childPid), exitCodeVA, 0)
				if rc == int64(defs.SyscallWaitAgain) {
					task.Ecall(defs.SYS_YIELD, 0, 0, 0)
					continue
				}
				reapedPid = rc
				break
			}
			buf := make([]byte, 4)
			task.AS.User2k(buf, exitCodeVA)
			exitCode = int32(leUint32(buf))
			task.Ecall(defs.SYS_EXIT, 0, 0, 0)
		},
	})

	require.Equal(t, defs.Err_t(0), k.RunInitproc())
	require.Greater(t, childPid, int64(0))
	require.Equal(t, childPid, reapedPid)
	require.Equal(t, int32(faultExitCode), exitCode)
}

// TestTimerPreemptionInterleavesWithoutYield proves the timerQuantum
// mechanism (runloop.go) actually forces a reschedule: a sibling that never
// calls yield still gets scheduled in the middle of a CPU-bound task's
// run, which could only happen through the same forced-deschedule path
// §4.5's SupervisorTimer row describes.
func TestTimerPreemptionInterleavesWithoutYield(t *testing.T) {
	k, image := newTestKernel()
	var mu sync.Mutex
	var order []string

	k.Registry().Register("busy_worker", Program_t{
		ELF: image,
		Body: func(task *Task_t) {
			for i := 0; i < timerQuantum*3; i++ {
				task.Ecall(defs.SYS_GET_TIME, 0, 0, 0)
				mu.Lock()
				order = append(order, "busy")
				mu.Unlock()
			}
			task.Ecall(defs.SYS_EXIT, 0, 0, 0)
		},
	})
	k.Registry().Register("quiet_worker", Program_t{
		ELF: image,
		Body: func(task *Task_t) {
			mu.Lock()
			order = append(order, "quiet")
			mu.Unlock()
			task.Ecall(defs.SYS_EXIT, 0, 0, 0)
		},
	})
	k.Registry().Register(InitProcName, Program_t{
		ELF: image,
		Body: func(task *Task_t) {
			// stageName writes the program name into this task's own
			// address space, so the scratch page has to be mapped first
			// (§4.5: an unmapped write is -EFAULT, not an auto-grown heap).
			task.Ecall(defs.SYS_MMAP, 0x73000000, uint64(mem.PGSIZE), uint64(defs.PROT_R|defs.PROT_W))
			task.Ecall(defs.SYS_MMAP, 0x74000000, uint64(mem.PGSIZE), uint64(defs.PROT_R|defs.PROT_W))
			task.Ecall(defs.SYS_SPAWN, stageName(task, 0x73000000, "busy_worker"), 0, 0)
			task.Ecall(defs.SYS_SPAWN, stageName(task, 0x74000000, "quiet_worker"), 0, 0)
			waitAll(task)
			task.Ecall(defs.SYS_EXIT, 0, 0, 0)
		},
	})

	require.Equal(t, defs.Err_t(0), k.RunInitproc())
	quietIdx := -1
	for i, v := range order {
		if v == "quiet" {
			quietIdx = i
			break
		}
	}
	require.GreaterOrEqual(t, quietIdx, 0, "quiet_worker never ran")
	require.Less(t, quietIdx, len(order)-1,
		"timer preemption should interleave the busy worker with its sibling instead of letting it run to completion first")
}

// TestSysExecReplacesBodyAndNeverResumesOldCode exercises exec (§4.4 #221):
// a successful exec must run the replacement program's body and must never
// resume the calling program's code past the Ecall(SYS_EXEC) that issued it
// — the bug this test guards against was a spurious second SYS_EXIT racing
// the freshly-installed body on t.ctl.
func TestSysExecReplacesBodyAndNeverResumesOldCode(t *testing.T) {
	k, image := newTestKernel()
	var ranReplacement bool
	var resumedOldBody bool

	k.Registry().Register("replacement", Program_t{
		ELF: image,
		Body: func(task *Task_t) {
			ranReplacement = true
			task.Ecall(defs.SYS_EXIT, 7, 0, 0)
		},
	})
	k.Registry().Register(InitProcName, Program_t{
		ELF: image,
		Body: func(task *Task_t) {
			task.Ecall(defs.SYS_MMAP, 0x75000000, uint64(mem.PGSIZE), uint64(defs.PROT_R|defs.PROT_W))
			task.Ecall(defs.SYS_EXEC, stageName(task, 0x75000000, "replacement"), 0, 0)
			// Unreachable on a successful exec (§4.4: "exec does not
			// return on success") — Ecall calls runtime.Goexit internally
			// once SYS_EXEC reports success, so this goroutine never gets
			// here and resumedOldBody must stay false.
			resumedOldBody = true
			task.Ecall(defs.SYS_EXIT, 0, 0, 0)
		},
	})

	require.Equal(t, defs.Err_t(0), k.RunInitproc())
	require.True(t, ranReplacement, "the exec'd program's body should run")
	require.False(t, resumedOldBody, "code after a successful exec's Ecall must never resume")
	require.Equal(t, defs.TaskZombie, k.Initproc().GetStatus())
	require.Equal(t, 7, k.Initproc().ExitCode)
}

func leUint32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

// stageName writes name into task's own address space at the given scratch
// VA, the same stand-in a real user program's libc would have already done
// at link time, so spawn/exec (which read the name from user memory via
// Userstr) have something to read. Ignores the (untestable-in-this-helper)
// write error; every caller immediately issues the syscall whose own return
// code would reflect a staging failure as -EFAULT.
func stageName(task *Task_t, scratchVA uint64, name string) uint64 {
	buf := append([]byte(name), 0)
	task.AS.K2user(buf, scratchVA)
	return scratchVA
}

func waitAll(task *Task_t) {
	for {
		rc := task.Ecall(defs.SYS_WAITPID, uint64(int64(-1)), 0, 0)
		if rc == int64(defs.SyscallWaitAgain) {
			task.Ecall(defs.SYS_YIELD, 0, 0, 0)
			continue
		}
		if rc == int64(defs.SyscallNoSuchChild) {
			return
		}
	}
}
