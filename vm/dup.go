package vm

import (
	"rvos/defs"
	"rvos/mem"
)

/// Dup forks this address space for childAsid: every mapped page is
/// copied into a freshly allocated frame (no copy-on-write, §1 non-goals)
/// and remapped with identical permissions; the TrapContext page is
/// copied byte-for-byte along with everything else, so callers that need
/// the child's return value to differ (fork's x[10]=0, §4.4) must patch
/// it through the returned address space's TrapContext after Dup returns.
func (as *AddressSpace_t) Dup(childAsid defs.Pid_t) (*AddressSpace_t, defs.Err_t) {
	child, err := NewAddressSpace(childAsid)
	if err != 0 {
		return nil, err
	}
	for _, r := range as.Regions {
		if err := child.MapRegion(r.Start, r.Pages, r.Perm, false); err != 0 {
			child.Drop()
			return nil, err
		}
		for i := 0; i < r.Pages; i++ {
			va := r.Start + i*mem.PGSIZE
			srcpa, ok := as.Translate(va)
			if !ok {
				child.Drop()
				return nil, defs.EFAULT
			}
			dstpa, ok := child.Translate(va)
			if !ok {
				child.Drop()
				return nil, defs.EFAULT
			}
			dst := mem.Physmem.Dmap(dstpa & mem.PGMASK)
			src := mem.Physmem.Dmap(srcpa & mem.PGMASK)
			*dst = *src
		}
	}
	return child, 0
}
