package vm

import (
	"rvos/defs"
	"rvos/mem"
	"rvos/util"
)

/// Mmap installs an eagerly-allocated anonymous mapping at the page-aligned
/// VA start spanning len bytes with the given protection bits (§4.5). prot
/// bit 0 is R, bit 1 is W, bit 2 is X; W implies R, matching mmap(2). It
/// fails with -EINVAL if start isn't page aligned, len is zero, or the
/// region overlaps an existing mapping.
func Mmap(as *AddressSpace_t, start, length int, prot int) defs.Err_t {
	if length <= 0 || start%mem.PGSIZE != 0 {
		return defs.EINVAL
	}
	if prot&^(defs.PROT_R|defs.PROT_W|defs.PROT_X) != 0 {
		return defs.EINVAL
	}
	pages := util.Roundup(length, mem.PGSIZE) / mem.PGSIZE

	as.Lock()
	defer as.Unlock()
	if as.Overlaps(start, pages) {
		return defs.EINVAL
	}
	perm := mem.PTE_U
	if prot&defs.PROT_R != 0 || prot&defs.PROT_W != 0 {
		perm |= mem.PTE_R
	}
	if prot&defs.PROT_W != 0 {
		perm |= mem.PTE_W
	}
	if prot&defs.PROT_X != 0 {
		perm |= mem.PTE_X
	}
	return as.MapRegion(start, pages, perm, true)
}

/// Munmap removes the mapping exactly spanning [start, start+len) (§4.5).
func Munmap(as *AddressSpace_t, start, length int) defs.Err_t {
	if length <= 0 || start%mem.PGSIZE != 0 {
		return defs.EINVAL
	}
	pages := util.Roundup(length, mem.PGSIZE) / mem.PGSIZE
	as.Lock()
	defer as.Unlock()
	return as.UnmapRegion(start, pages)
}
