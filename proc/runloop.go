package proc

import (
	"sync"
	"time"

	"rvos/defs"
	"rvos/internal/klog"
	"rvos/internal/metrics"
	"rvos/sched"
	"rvos/trap"
	"rvos/vm"
)

/// timerQuantum bounds how many non-descheduling syscalls a task may
/// issue in one scheduling slot before runUntilDeschedule forces a
/// reschedule, simulating the timer interrupt that preempts user-mode
/// code even though this kernel never volunteers to interrupt itself
/// (§4.5's SupervisorTimer row, §5: "preemption of user mode via timer
/// interrupt"). Kept small deliberately: this kernel's demo/test
/// workloads issue only a handful of syscalls per logical step, so a
/// quantum in that range is what actually forces interleaving between a
/// CPU-bound task and its siblings instead of firing at most once per run.
const timerQuantum = 8

/// InitProcName is the well-known program run_initproc bootstraps (§4.3,
/// §4.4) — the root of the task tree every other task is ultimately a
/// descendant of, and the adoptive parent every orphaned zombie
/// re-parents to on exit.
const InitProcName = "initproc"

/// Kernel_t is the single-CPU scheduling-and-dispatch loop (§4.3, §4.5,
/// §5): one ready queue, one notion of "the currently running task," and
/// the ELF registry exec/spawn/run_initproc load programs from. Exactly
/// one Kernel_t exists per simulated machine; nothing here is safe to
/// share across two independently booted kernels.
type Kernel_t struct {
	sched    *sched.Scheduler_t
	registry *Registry_t
	bootTime int64

	mu       sync.Mutex
	current  *Task_t
	initproc *Task_t
}

/// NewKernel returns a freshly booted kernel with an empty ready queue and
/// ELF registry.
func NewKernel() *Kernel_t {
	return &Kernel_t{
		sched:    sched.New(),
		registry: NewRegistry(),
		bootTime: time.Now().UnixNano(),
	}
}

/// Registry returns the kernel's ELF registry, for callers to populate
/// before booting (§4.4, §6.4 — cmd/rvos-sim registers every program a
/// scenario needs before calling RunInitproc).
func (k *Kernel_t) Registry() *Registry_t { return k.registry }

/// AddReady pushes t onto the ready queue. Panics if t isn't Ready —
/// callers (fork, spawn, a deschedule that leaves a task still runnable)
/// are expected to have already set that status themselves (§4.3).
func (k *Kernel_t) AddReady(t *Task_t) {
	if t.GetStatus() != defs.TaskReady {
		panic("proc: scheduler add of non-ready task")
	}
	k.sched.Add(t)
}

/// Current returns the task presently holding the (single, simulated) CPU,
/// or nil if the kernel is idle.
func (k *Kernel_t) Current() *Task_t {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.current
}

func (k *Kernel_t) setCurrent(t *Task_t) {
	k.mu.Lock()
	k.current = t
	k.mu.Unlock()
}

/// Initproc returns the bootstrap task new orphans are re-parented to
/// (§4.4), or nil before RunInitproc has been called.
func (k *Kernel_t) Initproc() *Task_t {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.initproc
}

/// RunInitproc bootstraps the system (§4.3 "run_initproc()"): the
/// well-known initproc program is fetched from the registry, given a
/// fresh TCB, made current initproc/ready, and the run loop is entered.
/// RunInitproc returns once every task in the system has exited and the
/// ready queue is empty.
func (k *Kernel_t) RunInitproc() defs.Err_t {
	prog, ok := k.registry.Lookup(InitProcName)
	if !ok {
		return defs.ENOENT
	}
	pid, ok := pids.Alloc()
	if !ok {
		return defs.EAGAIN
	}
	as, _, _, err := vm.FromELF(prog.ELF, pid)
	if err != 0 {
		pids.Put(pid)
		return err
	}
	t := &Task_t{
		Pid:      pid,
		Status:   defs.TaskReady,
		AS:       as,
		Priority: DefaultPriority,
		body:     prog.Body,
	}
	k.mu.Lock()
	k.initproc = t
	k.mu.Unlock()
	k.AddReady(t)
	k.RunLoop()
	return 0
}

/// RunLoop drives the ready queue (§4.3 "run_next()") until it runs dry:
/// fetch the minimum-pass task, run it until it either exits or
/// deschedules, charge it a stride increment and requeue it if it's still
/// runnable, repeat. Returns when Fetch finds nothing left — every task in
/// the system has reached Zombie.
func (k *Kernel_t) RunLoop() {
	for {
		next := k.sched.Fetch()
		if next == nil {
			return
		}
		t := next.(*Task_t)
		t.SetStatus(defs.TaskRunning)
		k.setCurrent(t)
		t.Stats.ScheduledIn()
		metrics.TaskScheduled()

		t.ensureStarted()
		k.runUntilDeschedule(t)

		t.Stats.ScheduledOut()
		k.setCurrent(nil)
		if t.GetStatus() == defs.TaskRunning {
			t.SetStatus(defs.TaskReady)
			sched.ChargeStride(t)
			k.sched.Add(t)
		}
	}
}

/// runUntilDeschedule repeatedly answers t's syscall traps without
/// returning to the scheduler, exactly as real hardware keeps running one
/// task across any number of non-blocking syscalls: yield, waitpid's retry
/// outcome, exit, and a timer-quantum expiry are the only things that hand
/// control back to RunLoop (§4.5, §5). exec is handled inline too — it
/// swaps in a new body via replaceBody but does not deschedule, since exec
/// returns control to the same task slot.
func (k *Kernel_t) runUntilDeschedule(t *Task_t) {
	quantum := 0
	for {
		req := <-t.ctl.reqCh
		res := k.dispatch(t, req)
		if t.GetStatus() == defs.TaskZombie {
			// exit: the body goroutine already called runtime.Goexit
			// after sending this request and will never read a reply.
			return
		}
		t.ctl.respCh <- res.rc
		if res.execBody != nil {
			t.replaceBody(res.execBody)
			quantum = 0
			continue
		}
		if res.deschedule {
			return
		}
		quantum++
		if quantum >= timerQuantum {
			// SupervisorTimer (§4.5): "program next tick; run_next()".
			// The task issued timerQuantum syscalls in a row without
			// ever voluntarily descheduling, so the simulated timer
			// tick forces the reschedule a real one would have.
			klog.TimerPreempt(int(t.Pid), trap.SupervisorTimer.String())
			metrics.TimerPreempted()
			return
		}
	}
}
