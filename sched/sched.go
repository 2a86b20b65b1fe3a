// Package sched implements the single-CPU stride scheduler (§4.3): among
// ready tasks, always run the one with the smallest pass, and charge
// BigStride/priority to a task's pass when it is descheduled. Selection is
// a linear scan, which the spec calls out as acceptable for the small N a
// teaching kernel ever runs (§4.3). The scheduler only knows about
// Schedulable, not proc.Task_t directly, so proc can depend on sched
// without sched depending back on proc.
package sched

import (
	"sync"

	"rvos/internal/metrics"
)

/// Schedulable is the subset of a TaskControlBlock the scheduler needs:
/// its pass for comparison, and a way to report its priority so the
/// caller driving deschedule can compute the stride increment (§4.3).
/// Scheduler_t itself never mutates Pass; callers do, via ChargeStride or
/// by updating it themselves, before calling Add again.
type Schedulable interface {
	SchedPass() int
	SchedSetPass(int)
	SchedPriority() int
}

/// Scheduler_t is the single ready queue every task not currently running
/// waits in (§4.3, §5). Ties are broken by insertion order, matching the
/// spec's linear-scan contract exactly: Fetch always returns the first
/// queue entry among those tied for minimum pass.
type Scheduler_t struct {
	mu    sync.Mutex
	ready []Schedulable
}

/// New returns an empty scheduler.
func New() *Scheduler_t {
	return &Scheduler_t{}
}

/// Add pushes a ready task onto the queue (§4.3 "add(task)"). Callers
/// must only push tasks they have already marked Ready; nothing here
/// checks status, since Schedulable carries no status field — that
/// invariant belongs to proc.Task_t and is enforced there.
func (s *Scheduler_t) Add(t Schedulable) {
	s.mu.Lock()
	s.ready = append(s.ready, t)
	metrics.ReadyQueueDepth(len(s.ready))
	s.mu.Unlock()
}

/// Fetch removes and returns the ready task with the smallest pass,
/// breaking ties by insertion order (§4.3 "fetch() -> Option<task>").
/// Returns nil if the queue is empty.
func (s *Scheduler_t) Fetch() Schedulable {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.ready) == 0 {
		return nil
	}
	minIdx := 0
	for i := 1; i < len(s.ready); i++ {
		if s.ready[i].SchedPass() < s.ready[minIdx].SchedPass() {
			minIdx = i
		}
	}
	t := s.ready[minIdx]
	s.ready = append(s.ready[:minIdx], s.ready[minIdx+1:]...)
	metrics.ReadyQueueDepth(len(s.ready))
	return t
}

/// Len reports how many tasks are currently waiting in the ready queue.
func (s *Scheduler_t) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ready)
}

/// BigStride bounds how far a task's pass advances per deschedule
/// (§4.3/§9, matching the stride-scheduling tutorial chapter this kernel
/// is grounded on).
const BigStride = 100000

/// ChargeStride adds BigStride/priority to t's pass, the rule applied
/// when t is descheduled (§4.3: "on deschedule add BIG_STRIDE/priority to
/// the descheduled task's pass"). Priority must be >= 1 — callers enforce
/// the original implementation's [2, 2^16) clamp (SPEC_FULL §Supplemented
/// Features #3) before a task ever reaches the scheduler.
func ChargeStride(t Schedulable) {
	if t.SchedPriority() < 1 {
		panic("sched: non-positive priority")
	}
	t.SchedSetPass(t.SchedPass() + BigStride/t.SchedPriority())
}
