package vm

import "rvos/mem"

// Fixed virtual-address layout (§4.6). Every user address space reserves the
// top of its range for the trap machinery; ELF-loaded segments and mmap
// regions live below the user stack. There is no trampoline code page to map here
// (the trap vector/`__restore` stub is an out-of-scope collaborator, §1) but
// the kernel-stack-page and TrapContext placement are part of this package's
// contract with it.
const (
	// MAXVA is one past the highest address Sv39 can name (2^38, leaving the
	// top bit of the 39-bit VA space unused, as the teacher does not need a
	// canonical negative/kernel half split for this single-AS-per-task design).
	MAXVA = 1 << 38

	// KERNEL_STACK_VA is the base of the one-page kernel stack mapped
	// (without PTE_U) high in every task's address space.
	KERNEL_STACK_VA = MAXVA - mem.PGSIZE

	// USER_STACK_SIZE matches the two-page user stack of the source kernel.
	USER_STACK_SIZE = 2 * mem.PGSIZE

	// guard page between the user stack and the kernel-stack/TrapContext page
	guardPage = mem.PGSIZE

	// USER_STACK_TOP is one past the last valid user-stack byte.
	USER_STACK_TOP = KERNEL_STACK_VA - guardPage

	// USERMIN is the lowest virtual address ELF segments may occupy.
	USERMIN = mem.PGSIZE
)

/// TrapCxVa returns the fixed virtual address of the TrapContext for any
/// task: the top of the kernel-stack page, minus the context's size.
func TrapCxVa() int {
	return KERNEL_STACK_VA + mem.PGSIZE - TrapContextSize
}
