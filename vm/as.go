// Package vm implements Sv39 three-level paging and per-task address
// spaces (§4.2). Demand paging and copy-on-write are explicit non-goals
// (§1): every mapping installed here — ELF segments, the user/kernel
// stacks, mmap regions — is eagerly allocated and mapped at creation time,
// so there is no page-fault-driven population path to implement; a fault
// on an address this package never mapped is simply fatal to the task
// (handled by the trap package, not here).
package vm

import (
	"sync"

	"rvos/defs"
	"rvos/mem"
)

/// Region_t records one eagerly-mapped range of an address space: an ELF
/// segment, the user stack, the kernel stack / TrapContext page, or an
/// mmap'd region. Kept so Dup (fork) and Munmap don't need to rediscover
/// mappings by walking the raw page table.
type Region_t struct {
	Start int // page-aligned VA
	Pages int
	Perm  mem.Pa_t // PTE_R/W/X/U subset
}

func (r Region_t) end() int { return r.Start + r.Pages*mem.PGSIZE }

/// AddressSpace_t is one process's Sv39 address space: a root page table
/// plus the bookkeeping needed to duplicate (fork) or tear down (exit) it.
/// There is no shared global kernel mapping installed in user roots (§9):
/// this hosted harness's frame accessor (mem.Physmem.Dmap) is a plain
/// arena index rather than a walk through any page table, so kernel code
/// never needs to address physical memory through a user AS's tables —
/// the identity/kernel-image PTEs §4.2 describes for a bare-metal Sv39
/// kernel have no work to do here and are omitted.
type AddressSpace_t struct {
	sync.Mutex
	Asid    defs.Pid_t
	Root    mem.Pa_t
	Regions []Region_t
}

const satpModeSv39 = 8

/// NewAddressSpace allocates a zeroed root page table for asid.
func NewAddressSpace(asid defs.Pid_t) (*AddressSpace_t, defs.Err_t) {
	_, root, ok := mem.Physmem.Pmap_new()
	if !ok {
		return nil, defs.ENOMEM
	}
	mem.Physmem.Refup(root)
	return &AddressSpace_t{Asid: asid, Root: root}, 0
}

/// Satp returns the SATP register value this address space would be
/// switched into: mode=Sv39, asid=pid, root=root PPN (§4.2, §6.3).
func (as *AddressSpace_t) Satp() uint64 {
	ppn := uint64(as.Root) >> mem.PGSHIFT
	return uint64(satpModeSv39)<<60 | uint64(as.Asid)<<44 | ppn
}

// walk returns a pointer to the leaf PTE for va, allocating inner tables
// (but never the leaf frame itself) along the way when alloc is true.
// Writes happen leaf-table-pointer last: callers write the returned PTE
// themselves, so intermediate readers never observe a root/inner entry
// pointing at a not-yet-populated table (§4.2).
func (as *AddressSpace_t) walk(va int, alloc bool) (*mem.Pa_t, defs.Err_t) {
	idx := vpnOf(va)
	tblpa := as.Root
	for lvl := 2; lvl > 0; lvl-- {
		tbl := pageAt(tblpa)
		pte := &tbl[idx[lvl]]
		if !pteValid(*pte) {
			if !alloc {
				return nil, 0
			}
			_, childpa, ok := mem.Physmem.Pmap_new()
			if !ok {
				return nil, defs.ENOMEM
			}
			mem.Physmem.Refup(childpa)
			*pte = childpa | mem.PTE_V
		}
		tblpa = pteAddr(*pte)
	}
	tbl := pageAt(tblpa)
	return &tbl[idx[0]], 0
}

/// BuildMapping walks (allocating inner tables as needed) and writes the
/// leaf PTE for va to point at frame pa with the given permission bits.
/// perm must not include PTE_V; it is added here.
func (as *AddressSpace_t) BuildMapping(va int, pa mem.Pa_t, perm mem.Pa_t) defs.Err_t {
	pte, err := as.walk(va, true)
	if err != 0 {
		return err
	}
	if pteValid(*pte) {
		panic("remapping a present page")
	}
	*pte = pteAddr(pa) | perm | mem.PTE_V
	return 0
}

/// Translate performs a page walk and returns the physical address VA
/// currently maps to, or ok=false if no mapping exists (§4.2).
func (as *AddressSpace_t) Translate(va int) (mem.Pa_t, bool) {
	pte, _ := as.walk(va, false)
	if pte == nil || !pteValid(*pte) {
		return 0, false
	}
	off := mem.Pa_t(va) & mem.PGOFFSET
	return pteAddr(*pte) | off, true
}

// permitted reports whether va falls in a tracked region with at least the
// given permission bits, used by the user-copy routines to produce -EFAULT
// instead of panicking on a bad syscall argument (ambient stack, §7).
func (as *AddressSpace_t) permitted(va int, need mem.Pa_t) bool {
	for _, r := range as.Regions {
		if va >= r.Start && va < r.end() {
			return r.Perm&need == need
		}
	}
	return false
}

/// MapRegion allocates `pages` fresh frames (zeroed when zero is true),
/// maps them at consecutive pages starting at start with perm, and records
/// the region for Dup/Munmap/permission checks.
func (as *AddressSpace_t) MapRegion(start, pages int, perm mem.Pa_t, zero bool) defs.Err_t {
	for i := 0; i < pages; i++ {
		va := start + i*mem.PGSIZE
		var pg *mem.Pg_t
		var pa mem.Pa_t
		var ok bool
		if zero {
			pg, pa, ok = mem.Physmem.Refpg_new()
		} else {
			pg, pa, ok = mem.Physmem.Refpg_new_nozero()
		}
		_ = pg
		if !ok {
			return defs.ENOMEM
		}
		mem.Physmem.Refup(pa)
		if err := as.BuildMapping(va, pa, perm); err != 0 {
			mem.Physmem.Refdown(pa)
			return err
		}
	}
	as.Regions = append(as.Regions, Region_t{Start: start, Pages: pages, Perm: perm})
	return 0
}

/// Overlaps reports whether [start, start+pages*PGSIZE) intersects any
/// existing region, used to reject overlapping mmap requests (§4.5).
func (as *AddressSpace_t) Overlaps(start, pages int) bool {
	end := start + pages*mem.PGSIZE
	for _, r := range as.Regions {
		if start < r.end() && end > r.Start {
			return true
		}
	}
	return false
}

/// UnmapRegion removes the region exactly spanning [start, start+pages) —
/// the shape munmap always requests (§4.5) — freeing its frames. It
/// returns -EINVAL if no such region is tracked or any page in it turns
/// out unmapped.
func (as *AddressSpace_t) UnmapRegion(start, pages int) defs.Err_t {
	ri := -1
	for i, r := range as.Regions {
		if r.Start == start && r.Pages == pages {
			ri = i
			break
		}
	}
	if ri < 0 {
		return defs.EINVAL
	}
	for i := 0; i < pages; i++ {
		va := start + i*mem.PGSIZE
		pte, _ := as.walk(va, false)
		if pte == nil || !pteValid(*pte) {
			return defs.EINVAL
		}
		pa := pteAddr(*pte)
		*pte = 0
		mem.Physmem.Refdown(pa)
	}
	as.Regions = append(as.Regions[:ri], as.Regions[ri+1:]...)
	return 0
}

// freeTable recursively frees every frame reachable from a table at level
// lvl (2=root), then the table frame itself.
func (as *AddressSpace_t) freeTable(tblpa mem.Pa_t, lvl int) {
	tbl := pageAt(tblpa)
	if lvl > 0 {
		for _, pte := range tbl {
			if pteValid(pte) {
				as.freeTable(pteAddr(pte), lvl-1)
			}
		}
	} else {
		for _, pte := range tbl {
			if pteValid(pte) {
				mem.Physmem.Refdown(pteAddr(pte))
			}
		}
	}
	mem.Physmem.Refdown(tblpa)
}

/// Drop releases every frame owned by this address space, leaves and
/// tables alike, back to the frame allocator (§4.2).
func (as *AddressSpace_t) Drop() {
	as.freeTable(as.Root, 2)
	as.Regions = nil
}

/// TrapContext returns a live pointer to this address space's TrapContext,
/// through the frame it's mapped in — writes through it are visible to a
/// subsequent `__restore` (§4.6).
func (as *AddressSpace_t) TrapContext() *TrapContext {
	pa, ok := as.Translate(TrapCxVa())
	if !ok {
		panic("address space has no kernel stack mapped")
	}
	pg := mem.Physmem.Dmap(pa & mem.PGMASK)
	bpg := mem.Pg2bytes(pg)
	off := int(pa & mem.PGOFFSET)
	return (*TrapContext)(ptrToTrapContext(&bpg[off]))
}
