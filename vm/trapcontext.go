package vm

import "unsafe"

func ptrToTrapContext(b *uint8) unsafe.Pointer {
	return unsafe.Pointer(b)
}

// sstatus bits this kernel cares about (riscv-privileged §3.1.6).
const (
	sstatusSPP  = 1 << 8 // previous privilege: 0=User, 1=Supervisor
	sstatusSPIE = 1 << 5 // supervisor previous interrupt-enable
)

/// TrapContext is the architectural state saved by the trap vector and
/// restored by `__restore` (§4.6, §6.3). It always lives at TrapCxVa() in
/// the owning task's address space so the out-of-scope trap-vector/restore
/// assembly can find it without any other context.
type TrapContext struct {
	X       [32]uint64 // x0..x31; x2 is sp, x10 is a0/return value
	Sstatus uint64
	Sepc    uint64
}

/// TrapContextSize is the TrapContext's on-page footprint.
const TrapContextSize = int(unsafe.Sizeof(TrapContext{}))

/// AppInitContext builds the TrapContext a freshly loaded task enters with:
/// supervisor-previous-privilege cleared to User, interrupts enabled on
/// return, sepc at the ELF entry point, and sp set to the user stack top.
func AppInitContext(entry, usp uint64) TrapContext {
	var cx TrapContext
	cx.X[2] = usp
	cx.Sepc = entry
	cx.Sstatus = sstatusSPIE
	cx.Sstatus &^= sstatusSPP
	return cx
}

/// A0 returns the value of the syscall return-value / first-argument
/// register.
func (cx *TrapContext) A0() uint64 { return cx.X[10] }

/// SetA0 sets the syscall return-value register.
func (cx *TrapContext) SetA0(v uint64) { cx.X[10] = v }

/// SyscallArgs returns the syscall number (a7) and its three argument
/// registers (a0..a2), per §4.5.
func (cx *TrapContext) SyscallArgs() (num uint64, a0, a1, a2 uint64) {
	return cx.X[17], cx.X[10], cx.X[11], cx.X[12]
}

/// AdvancePastEcall advances sepc past the `ecall` instruction that trapped,
/// so `__restore` resumes at the instruction following the syscall (§4.5).
func (cx *TrapContext) AdvancePastEcall() {
	cx.Sepc += 4
}
