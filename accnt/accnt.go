// Package accnt tracks per-task scheduling accounting: how long a task has
// run, when it was first scheduled, and how many times it has invoked each
// syscall. This is the Stats entity of §3; task_info (§4.5 #410) and the
// scheduler's schedule-boundary bookkeeping (§4.3) are its only readers.
package accnt

import (
	"sync"
	"sync/atomic"
	"time"

	"rvos/defs"
)

/// Stats_t accumulates one task's CPU usage and syscall-frequency data.
/// The mutex protects FirstSched/LastSched/CpuClocksNs, which are read
/// together by task_info; syscall counters are bumped with atomics from
/// the dispatch path so a long-running syscall handler never needs to
/// take the same lock the scheduler updates on every context switch.
type Stats_t struct {
	sync.Mutex
	// nanoseconds since the Unix epoch; zero until the task first runs
	FirstSched int64
	LastSched  int64
	// accumulated nanoseconds of CPU time charged to this task
	CpuClocksNs int64
	Syscalls    [defs.MaxSyscallNum]uint32
}

/// Now returns the current time in nanoseconds since the Unix epoch.
func (s *Stats_t) Now() int64 {
	return time.Now().UnixNano()
}

/// ScheduledIn records that the scheduler just switched this task onto the
/// CPU (§4.3 schedule boundary).
func (s *Stats_t) ScheduledIn() {
	s.Lock()
	now := s.Now()
	if s.FirstSched == 0 {
		s.FirstSched = now
	}
	s.LastSched = now
	s.Unlock()
}

/// ScheduledOut charges the time since the last ScheduledIn to this task's
/// CPU-clock total, called when the task is descheduled.
func (s *Stats_t) ScheduledOut() {
	s.Lock()
	if s.LastSched != 0 {
		s.CpuClocksNs += s.Now() - s.LastSched
	}
	s.Unlock()
}

/// RealTimeMs returns now − first_scheduled in milliseconds, or 0 if the
/// task has never been scheduled (§3: "real_time = now − first_scheduled").
func (s *Stats_t) RealTimeMs() int64 {
	s.Lock()
	first := s.FirstSched
	s.Unlock()
	if first == 0 {
		return 0
	}
	return (s.Now() - first) / int64(time.Millisecond)
}

/// CountSyscall increments the per-syscall-number counter task_info
/// reports. Syscall numbers outside the tracked range are silently
/// ignored rather than panicking — accounting must never be able to
/// crash a task.
func (s *Stats_t) CountSyscall(num int) {
	if num < 0 || num >= len(s.Syscalls) {
		return
	}
	atomic.AddUint32(&s.Syscalls[num], 1)
}

/// SyscallCounts returns a snapshot of the syscall-count vector, suitable
/// for copying out to userspace by task_info.
func (s *Stats_t) SyscallCounts() [defs.MaxSyscallNum]uint32 {
	var out [defs.MaxSyscallNum]uint32
	for i := range s.Syscalls {
		out[i] = atomic.LoadUint32(&s.Syscalls[i])
	}
	return out
}
