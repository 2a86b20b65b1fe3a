// Package metrics exports kernel/EasyFS counters as Prometheus gauges and
// counters: block-cache hit/miss, bitmap allocations, syscalls dispatched,
// tasks scheduled. This is the always-on replacement for biscuit's
// Stats/Stats2String pair (biscuit gates its equivalent behind `const
// Stats = false` and reads a custom-runtime Rdtsc counter); here the
// counters are real prometheus instruments, live regardless of any build
// flag, rather than a debug-only accumulator. task_info (§4.5 #410) does
// not read them: its per-task counts come from accnt.Stats_t.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	cacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "rvos",
		Subsystem: "blockcache",
		Name:      "hits_total",
		Help:      "Block cache lookups served from a resident entry.",
	})
	cacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "rvos",
		Subsystem: "blockcache",
		Name:      "misses_total",
		Help:      "Block cache lookups that required a device read.",
	})
	inodesAllocated = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "rvos",
		Subsystem: "easyfs",
		Name:      "inodes_allocated_total",
		Help:      "Inode-bitmap slots allocated over the process lifetime.",
	})
	inodesFreed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "rvos",
		Subsystem: "easyfs",
		Name:      "inodes_freed_total",
		Help:      "Inode-bitmap slots freed over the process lifetime.",
	})
	dataBlocksAllocated = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "rvos",
		Subsystem: "easyfs",
		Name:      "data_blocks_allocated_total",
		Help:      "Data-bitmap slots allocated over the process lifetime.",
	})
	dataBlocksFreed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "rvos",
		Subsystem: "easyfs",
		Name:      "data_blocks_freed_total",
		Help:      "Data-bitmap slots freed over the process lifetime.",
	})
	tasksScheduled = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "rvos",
		Subsystem: "sched",
		Name:      "tasks_scheduled_total",
		Help:      "Scheduling decisions made by the stride scheduler.",
	})
	syscallsDispatched = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rvos",
		Subsystem: "trap",
		Name:      "syscalls_dispatched_total",
		Help:      "Syscalls dispatched, labeled by syscall number.",
	}, []string{"num"})
	readyQueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "rvos",
		Subsystem: "sched",
		Name:      "ready_queue_depth",
		Help:      "Number of tasks currently in the ready queue.",
	})
	timerPreemptions = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "rvos",
		Subsystem: "trap",
		Name:      "timer_preemptions_total",
		Help:      "Tasks forcibly descheduled by timer-quantum expiry (§4.5 SupervisorTimer).",
	})
)

func init() {
	prometheus.MustRegister(
		cacheHits, cacheMisses,
		inodesAllocated, inodesFreed,
		dataBlocksAllocated, dataBlocksFreed,
		tasksScheduled, syscallsDispatched, readyQueueDepth,
		timerPreemptions,
	)
}

/// CacheHit records a block-cache lookup that hit a resident entry.
func CacheHit() { cacheHits.Inc() }

/// CacheMiss records a block-cache lookup that required a device read.
func CacheMiss() { cacheMisses.Inc() }

/// InodeAllocated records an inode-bitmap allocation.
func InodeAllocated() { inodesAllocated.Inc() }

/// InodeFreed records an inode-bitmap deallocation.
func InodeFreed() { inodesFreed.Inc() }

/// DataBlockAllocated records a data-bitmap allocation.
func DataBlockAllocated() { dataBlocksAllocated.Inc() }

/// DataBlockFreed records a data-bitmap deallocation.
func DataBlockFreed() { dataBlocksFreed.Inc() }

/// TaskScheduled records one scheduling decision (§4.3 run_next/fetch).
func TaskScheduled() { tasksScheduled.Inc() }

/// SyscallDispatched records a syscall dispatch labeled by number (§4.5).
func SyscallDispatched(num int) {
	syscallsDispatched.WithLabelValues(itoa(num)).Inc()
}

/// ReadyQueueDepth sets the current ready-queue gauge (§4.3).
func ReadyQueueDepth(n int) { readyQueueDepth.Set(float64(n)) }

/// TimerPreempted records a timer-quantum-forced deschedule (§4.5).
func TimerPreempted() { timerPreemptions.Inc() }

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
