package proc

import (
	"rvos/defs"
	"rvos/vm"
)

/// OnFork registers the closure the next SYS_FORK issued by t will hand to
/// the child as its body. This kernel's user programs are Go closures
/// rather than compiled machine code, so there is no program counter to
/// duplicate at the fork point the way real fork(2) duplicates a call
/// stack (§1 non-goals already rule out anything resembling that level of
/// emulation). A test program that wants "child takes this branch, parent
/// continues past the ecall" registers the child's branch explicitly,
/// immediately before calling Ecall(SYS_FORK, ...). Consumed and cleared
/// by the very next fork t performs; a fork issued with nothing registered
/// gives the child the parent's own body, which is the right default for
/// programs that branch on Ecall's return value instead.
func (t *Task_t) OnFork(childBody func(*Task_t)) {
	t.lock()
	t.nextForkBody = childBody
	t.unlock()
}

func (t *Task_t) takeForkBody() func(*Task_t) {
	t.lock()
	defer t.unlock()
	b := t.nextForkBody
	t.nextForkBody = nil
	if b == nil {
		return t.body
	}
	return b
}

/// replaceBody resets t's baton-handoff channels and launches newBody as a
/// fresh goroutine, the mechanism exec (§4.4 #221) uses to swap a task's
/// running program without going through the scheduler: exec returns
/// control to the same task slot, just running different code, so unlike
/// fork/spawn it must not re-enter the ready queue.
func (t *Task_t) replaceBody(newBody func(*Task_t)) {
	t.ctl = taskControl{
		reqCh:  make(chan sysRequest),
		respCh: make(chan int64),
	}
	t.ctl.start.Do(func() {})
	t.body = newBody
	go func() {
		newBody(t)
		t.Ecall(defs.SYS_EXIT, 0, 0, 0)
	}()
}

/// Fork implements the fork syscall (§4.4 #220): duplicate the calling
/// task's address space and TCB, patch the duplicated TrapContext so the
/// child's ecall returns 0 (§4.4), and leave the child Ready for the
/// caller to push onto the scheduler. The child's pass starts equal to the
/// parent's current pass and inherits the parent's priority.
func (k *Kernel_t) Fork(parent *Task_t) (*Task_t, defs.Err_t) {
	childPid, ok := pids.Alloc()
	if !ok {
		return nil, defs.EAGAIN
	}
	as, err := parent.AS.Dup(childPid)
	if err != 0 {
		pids.Put(childPid)
		return nil, err
	}
	as.TrapContext().SetA0(0)

	child := &Task_t{
		Pid:      childPid,
		Status:   defs.TaskReady,
		AS:       as,
		Priority: parent.SchedPriority(),
		Pass:     parent.SchedPass(),
		Parent:   parent,
		body:     parent.takeForkBody(),
	}
	parent.addChild(child)
	return child, 0
}

/// execResult implements the exec syscall (§4.4 #221): replace the calling
/// task's address space with a freshly loaded program, looked up in the
/// registry by name, preserving pid/priority/pass/parent/children. Returns
/// the syscall return code and, only on success, the new body the caller
/// must install via replaceBody — exec never returns a "success" value to
/// the calling program because the calling program no longer exists once
/// it succeeds (§4.4: "exec does not return on success").
func (k *Kernel_t) execResult(t *Task_t, name string) (int64, func(*Task_t)) {
	prog, ok := k.registry.Lookup(name)
	if !ok {
		return int64(defs.ENOENT.Rc()), nil
	}
	as, _, _, err := vm.FromELF(prog.ELF, t.Pid)
	if err != 0 {
		return int64(err.Rc()), nil
	}
	old := t.AS
	t.lock()
	t.AS = as
	t.unlock()
	old.Drop()
	return 0, prog.Body
}

/// Spawn implements the spawn syscall (§4.4 #400): create a brand-new task
/// running name directly, without the caller forking first (the
/// fork+exec-equivalent rCore-tutorial adds as a convenience syscall).
/// Returns the new task's pid, or -1 if name isn't registered or the
/// address space can't be built.
func (k *Kernel_t) Spawn(parent *Task_t, name string) int64 {
	prog, ok := k.registry.Lookup(name)
	if !ok {
		return int64(defs.SyscallInvalidArg)
	}
	pid, ok2 := pids.Alloc()
	if !ok2 {
		return int64(defs.EAGAIN.Rc())
	}
	as, _, _, err := vm.FromELF(prog.ELF, pid)
	if err != 0 {
		pids.Put(pid)
		return int64(defs.SyscallInvalidArg)
	}
	child := &Task_t{
		Pid:      pid,
		Status:   defs.TaskReady,
		AS:       as,
		Priority: DefaultPriority,
		Parent:   parent,
		body:     prog.Body,
	}
	parent.addChild(child)
	k.AddReady(child)
	return int64(pid)
}

/// SetPriority implements the set_priority syscall (§4.5 #140, a
/// supplemented feature per SPEC_FULL): clamp prio to [2, 2^16) — priority
/// 1 would make BigStride/priority stop distinguishing tasks meaningfully
/// from each other, and the original implementation's own validation uses
/// this exact range — and apply it to t.
func (k *Kernel_t) SetPriority(t *Task_t, prio int) int {
	if prio < 2 {
		prio = 2
	} else if prio >= 1<<16 {
		prio = 1<<16 - 1
	}
	t.lock()
	t.Priority = prio
	t.unlock()
	return prio
}

/// Exit implements the exit syscall (§4.4 #93): mark the task Zombie,
/// record its exit code, re-parent its children to initproc (§4.4: "on
/// exit, re-parent every child to initproc"), and release its address
/// space. The task's TCB itself survives, pinned by its parent's Children
/// slice, until waitpid reaps it.
func (k *Kernel_t) Exit(t *Task_t, code int) {
	t.lock()
	t.Status = defs.TaskZombie
	t.ExitCode = code
	children := t.Children
	t.Children = nil
	t.unlock()

	initp := k.Initproc()
	for _, c := range children {
		c.lock()
		c.Parent = initp
		c.unlock()
		if initp != nil && initp != t {
			initp.addChild(c)
		}
	}
	t.AS.Drop()
}

/// Waitpid implements the waitpid syscall (§4.4 #260): pid == -1 matches
/// any child. If a matching child is already Zombie, reap it (remove from
/// t's Children, recycle its pid, write its exit code to exitCodeVA when
/// non-zero, return its pid). If pid names a child that exists but hasn't
/// exited, returns SyscallWaitAgain so the caller's retry loop can yield
/// and ask again. If pid matches no child at all, returns
/// SyscallNoSuchChild (§4.5/§7).
func (k *Kernel_t) Waitpid(t *Task_t, pid int, exitCodeVA uint64) int64 {
	t.lock()
	matched := false
	zombieIdx := -1
	for i, c := range t.Children {
		if pid != -1 && int(c.Pid) != pid {
			continue
		}
		matched = true
		if c.GetStatus() == defs.TaskZombie {
			zombieIdx = i
			break
		}
	}
	if !matched {
		t.unlock()
		return int64(defs.SyscallNoSuchChild)
	}
	if zombieIdx == -1 {
		t.unlock()
		return int64(defs.SyscallWaitAgain)
	}
	child := t.Children[zombieIdx]
	t.Children = append(t.Children[:zombieIdx], t.Children[zombieIdx+1:]...)
	t.unlock()

	code := child.ExitCode
	childPid := child.Pid
	pids.Put(childPid)
	if exitCodeVA != 0 {
		t.AS.Userwriten(int(exitCodeVA), 4, code)
	}
	return int64(childPid)
}
