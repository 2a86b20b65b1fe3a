package vm

import (
	"rvos/defs"
	"rvos/mem"
	"rvos/ustr"
	"rvos/util"
)

// maxCopyIterations bounds the per-byte-chunk loop in the user-copy
// routines below, standing in for the teacher's bounds/res resource-budget
// guard (biscuit's bounds.Bounds()+res.Resadd_noblock() pair): a buggy or
// hostile syscall argument must not be able to spin the kernel forever
// walking a region one partial page at a time.
const maxCopyIterations = 1 << 20

/// Userdmap8 returns a kernel-accessible byte slice backing the user
/// virtual address va, or -EFAULT if va is not part of a mapped region
/// (used both for syscall argument validation and the user-copy routines
/// below, §7).
func (as *AddressSpace_t) Userdmap8(va int, write bool) ([]uint8, defs.Err_t) {
	need := mem.PTE_U | mem.PTE_R
	if write {
		need |= mem.PTE_W
	}
	if !as.permitted(va, need) {
		return nil, defs.EFAULT
	}
	pa, ok := as.Translate(va)
	if !ok {
		return nil, defs.EFAULT
	}
	return mem.Physmem.Dmap8(pa), 0
}

/// Userreadn reads n (<=8) bytes from user address va as a little-endian
/// integer.
func (as *AddressSpace_t) Userreadn(va, n int) (int, defs.Err_t) {
	if n > 8 {
		panic("userreadn: n too large")
	}
	as.Lock()
	defer as.Unlock()
	var ret int
	iters := 0
	for i := 0; i < n; {
		if iters++; iters > maxCopyIterations {
			return 0, defs.ENOHEAP
		}
		src, err := as.Userdmap8(va+i, false)
		if err != 0 {
			return 0, err
		}
		l := util.Min(n-i, len(src))
		ret |= util.Readn(src, l, 0) << (8 * uint(i))
		i += l
	}
	return ret, 0
}

/// Userwriten writes the low n (<=8) bytes of val to user address va.
func (as *AddressSpace_t) Userwriten(va, n, val int) defs.Err_t {
	if n > 8 {
		panic("userwriten: n too large")
	}
	as.Lock()
	defer as.Unlock()
	iters := 0
	for i := 0; i < n; {
		if iters++; iters > maxCopyIterations {
			return defs.ENOHEAP
		}
		dst, err := as.Userdmap8(va+i, true)
		if err != 0 {
			return err
		}
		l := util.Min(n-i, len(dst))
		util.Writen(dst, l, 0, val>>(8*uint(i)))
		i += l
	}
	return 0
}

/// Userstr copies a NUL-terminated string from user memory, failing with
/// -ENAMETOOLONG past lenmax bytes (used by exec's path argument, §4.5).
func (as *AddressSpace_t) Userstr(uva, lenmax int) (ustr.Ustr, defs.Err_t) {
	if lenmax < 0 {
		return nil, 0
	}
	as.Lock()
	defer as.Unlock()
	s := ustr.MkUstr()
	i := 0
	iters := 0
	for {
		if iters++; iters > maxCopyIterations {
			return nil, defs.ENOHEAP
		}
		chunk, err := as.Userdmap8(uva+i, false)
		if err != 0 {
			return nil, err
		}
		for j, c := range chunk {
			if c == 0 {
				s = append(s, chunk[:j]...)
				return s, 0
			}
		}
		s = append(s, chunk...)
		i += len(chunk)
		if len(s) >= lenmax {
			return nil, defs.ENAMETOOLONG
		}
	}
}

/// K2user copies src into user memory starting at uva.
func (as *AddressSpace_t) K2user(src []uint8, uva int) defs.Err_t {
	as.Lock()
	defer as.Unlock()
	cnt := 0
	iters := 0
	for cnt != len(src) {
		if iters++; iters > maxCopyIterations {
			return defs.ENOHEAP
		}
		dst, err := as.Userdmap8(uva+cnt, true)
		if err != 0 {
			return err
		}
		n := copy(dst, src[cnt:])
		if n == 0 {
			return defs.EFAULT
		}
		cnt += n
	}
	return 0
}

/// User2k copies len(dst) bytes from user memory at uva into dst.
func (as *AddressSpace_t) User2k(dst []uint8, uva int) defs.Err_t {
	as.Lock()
	defer as.Unlock()
	cnt := 0
	iters := 0
	for cnt != len(dst) {
		if iters++; iters > maxCopyIterations {
			return defs.ENOHEAP
		}
		src, err := as.Userdmap8(uva+cnt, false)
		if err != 0 {
			return err
		}
		n := copy(dst[cnt:], src)
		if n == 0 {
			return defs.EFAULT
		}
		cnt += n
	}
	return 0
}
