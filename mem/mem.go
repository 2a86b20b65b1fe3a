// Package mem is the physical frame allocator. It hands out refcounted 4KiB
// frames to the vm package (fs's block cache keeps its own buffers and does
// not use this package). The teaching kernel runs as a hosted simulation
// harness rather than on bare metal, so "physical memory" here is a Go-owned
// byte arena indexed by frame number instead of a real physical address
// space; vm's Sv39 walker only ever sees Pa_t values and the Dmap accessor,
// so the difference is invisible to it.
package mem

import (
	"fmt"
	"sync"
	"sync/atomic"
	"unsafe"
)

/// PGSHIFT is the base-2 exponent for the page size.
const PGSHIFT uint = 12

/// PGSIZE is the size of a single page in bytes.
const PGSIZE int = 1 << PGSHIFT

/// PGOFFSET masks offsets within a page.
const PGOFFSET Pa_t = 0xfff

/// PGMASK masks the page number of an address.
const PGMASK Pa_t = ^(PGOFFSET)

// Sv39 PTE flag bits (riscv-privileged, not biscuit's x86 P/W/U/G/PCD/PS
// layout): V is the valid bit, R/W/X the permission bits, U marks
// user-accessible, G is global, A/D are accessed/dirty.
const (
	PTE_V Pa_t = 1 << 0
	PTE_R Pa_t = 1 << 1
	PTE_W Pa_t = 1 << 2
	PTE_X Pa_t = 1 << 3
	PTE_U Pa_t = 1 << 4
	PTE_G Pa_t = 1 << 5
	PTE_A Pa_t = 1 << 6
	PTE_D Pa_t = 1 << 7
)

/// PTE_FLAGS masks every flag bit, leaving only the PPN field.
const PTE_FLAGS Pa_t = PTE_V | PTE_R | PTE_W | PTE_X | PTE_U | PTE_G | PTE_A | PTE_D

/// Pa_t represents a physical address (or, for a PTE, a physical page number
/// shifted into the PPN field plus flag bits; see vm.PageTable_t).
type Pa_t uintptr

/// Bytepg_t is a byte addressed page.
type Bytepg_t [PGSIZE]uint8

/// Pg_t is a generic page of ints, used where callers want word-sized access.
type Pg_t [PGSIZE / 8]int

/// Pmap_t is a page table page: 512 eight-byte Sv39 PTEs.
type Pmap_t [512]Pa_t

/// Page_i is the set of frame operations Physmem_t provides. vm calls
/// mem.Physmem directly rather than through this interface.
type Page_i interface {
	Refpg_new() (*Pg_t, Pa_t, bool)
	Refpg_new_nozero() (*Pg_t, Pa_t, bool)
	Refcnt(Pa_t) int
	Dmap(Pa_t) *Pg_t
	Refup(Pa_t)
	Refdown(Pa_t) bool
}

/// Pg2bytes converts a page of ints to a page of bytes.
func Pg2bytes(pg *Pg_t) *Bytepg_t {
	return (*Bytepg_t)(unsafe.Pointer(pg))
}

/// Bytepg2pg converts a byte page back to a Pg_t.
func Bytepg2pg(pg *Bytepg_t) *Pg_t {
	return (*Pg_t)(unsafe.Pointer(pg))
}

func pg2pmap(pg *Pg_t) *Pmap_t {
	return (*Pmap_t)(unsafe.Pointer(pg))
}

/// Pg2pmap reinterprets a page as a page-table page. Both are exactly
/// PGSIZE, so this is just a view change, not a copy.
func Pg2pmap(pg *Pg_t) *Pmap_t {
	return pg2pmap(pg)
}

func _pg2pgn(p_pg Pa_t) uint32 {
	return uint32(p_pg >> PGSHIFT)
}

/// Refaddr returns the refcount pointer and index for the given page.
func (phys *Physmem_t) Refaddr(p_pg Pa_t) (*int32, uint32) {
	idx := _pg2pgn(p_pg) - phys.startn
	return &phys.Pgs[idx].Refcnt, idx
}

/// Physpg_t describes a single physical frame's bookkeeping state.
type Physpg_t struct {
	Refcnt int32
	// index into pgs of next page on the free list
	nexti uint32
}

/// Physmem_t is the arena-backed frame allocator: a contiguous slice of
/// simulated frames plus a threaded free list over Pgs, same shape as a
/// buddy-free allocator's single free list (§4.1).
type Physmem_t struct {
	arena   []Bytepg_t
	Pgs     []Physpg_t
	startn  uint32
	freei   uint32
	freelen int32
	sync.Mutex
	ready bool
}

/// Zeropg is a global zero-filled page used to initialize fresh allocations.
var Zeropg = &Pg_t{}

func (phys *Physmem_t) frame(idx uint32) *Pg_t {
	return (*Pg_t)(unsafe.Pointer(&phys.arena[idx]))
}

func (phys *Physmem_t) idx2pa(idx uint32) Pa_t {
	return Pa_t(idx+phys.startn) << PGSHIFT
}

func (phys *Physmem_t) pa2idx(p Pa_t) uint32 {
	return _pg2pgn(p) - phys.startn
}

func (phys *Physmem_t) _phys_new() (*Pg_t, Pa_t, bool) {
	if !phys.ready {
		panic("phys: not initialized")
	}
	phys.Lock()
	ff := phys.freei
	if ff == ^uint32(0) {
		phys.Unlock()
		return nil, 0, false
	}
	phys.freei = phys.Pgs[ff].nexti
	if phys.Pgs[ff].Refcnt != 0 {
		phys.Unlock()
		panic("allocating a page with nonzero refcount")
	}
	phys.freelen--
	if phys.freelen < 0 {
		phys.Unlock()
		panic("negative free count")
	}
	phys.Unlock()
	p_pg := phys.idx2pa(ff)
	return phys.frame(ff), p_pg, true
}

/// Refpg_new allocates a zeroed frame. The returned frame's refcount is not
/// incremented; callers take the first reference with Refup once they have
/// installed a PTE pointing at it.
func (phys *Physmem_t) Refpg_new() (*Pg_t, Pa_t, bool) {
	pg, p_pg, ok := phys._phys_new()
	if !ok {
		return nil, 0, false
	}
	*pg = *Zeropg
	return pg, p_pg, true
}

/// Refpg_new_nozero allocates a frame without zeroing it, for callers that
/// immediately overwrite the whole page (e.g. vm.Dup copying a parent page).
func (phys *Physmem_t) Refpg_new_nozero() (*Pg_t, Pa_t, bool) {
	return phys._phys_new()
}

/// Pmap_new allocates a fresh, zeroed page-table page.
func (phys *Physmem_t) Pmap_new() (*Pmap_t, Pa_t, bool) {
	pg, pa, ok := phys.Refpg_new()
	if !ok {
		return nil, 0, false
	}
	return pg2pmap(pg), pa, true
}

/// Refcnt returns the current reference count of a frame.
func (phys *Physmem_t) Refcnt(p_pg Pa_t) int {
	ref, _ := phys.Refaddr(p_pg)
	return int(atomic.LoadInt32(ref))
}

/// Refup increments the reference count of a frame.
func (phys *Physmem_t) Refup(p_pg Pa_t) {
	ref, _ := phys.Refaddr(p_pg)
	c := atomic.AddInt32(ref, 1)
	if c <= 0 {
		panic("refup: non-positive refcount after increment")
	}
}

// returns true if p_pg should be returned to the free list, and its index
func (phys *Physmem_t) _refdec(p_pg Pa_t) (bool, uint32) {
	ref, idx := phys.Refaddr(p_pg)
	c := atomic.AddInt32(ref, -1)
	if c < 0 {
		panic("refdown: negative refcount")
	}
	return c == 0, idx
}

/// Refdown decrements the reference count of a frame and frees it when the
/// count reaches zero. It reports whether the frame was freed.
func (phys *Physmem_t) Refdown(p_pg Pa_t) bool {
	free, idx := phys._refdec(p_pg)
	if !free {
		return false
	}
	phys.Lock()
	phys.Pgs[idx].nexti = phys.freei
	phys.freei = idx
	phys.freelen++
	phys.Unlock()
	return true
}

/// Dmap returns the page directly addressable at the given physical address;
/// in the hosted harness this is simply the backing arena slot, standing in
/// for the teacher's recursive direct-map trick on real hardware.
func (phys *Physmem_t) Dmap(p Pa_t) *Pg_t {
	idx := phys.pa2idx(p & PGMASK)
	return phys.frame(idx)
}

/// Dmap8 returns a byte slice mapped to the given physical address, offset
/// within the page preserved.
func (phys *Physmem_t) Dmap8(p Pa_t) []uint8 {
	pg := phys.Dmap(p)
	off := p & PGOFFSET
	bpg := Pg2bytes(pg)
	return bpg[off:]
}

/// Pgcount reports the number of free frames remaining.
func (phys *Physmem_t) Pgcount() int {
	phys.Lock()
	defer phys.Unlock()
	return int(phys.freelen)
}

/// Physmem is the global physical memory allocator instance, initialized by
/// Phys_init at boot.
var Physmem = &Physmem_t{}

/// Phys_init reserves npages simulated physical frames and threads them onto
/// the free list. npages is chosen by the boot harness (cmd/rvos-sim) to
/// match whatever memory footprint a test or demo needs, unlike the teacher's
/// bare-metal Phys_init which must crawl real firmware memory maps via
/// runtime.Get_phys.
func Phys_init(npages int) *Physmem_t {
	phys := Physmem
	phys.arena = make([]Bytepg_t, npages)
	phys.Pgs = make([]Physpg_t, npages)
	phys.startn = 0
	for i := 0; i < npages; i++ {
		phys.Pgs[i].Refcnt = 0
		if i == npages-1 {
			phys.Pgs[i].nexti = ^uint32(0)
		} else {
			phys.Pgs[i].nexti = uint32(i + 1)
		}
	}
	phys.freei = 0
	phys.freelen = int32(npages)
	phys.ready = true
	fmt.Printf("mem: reserved %v frames (%vKB)\n", npages, npages*PGSIZE/1024)
	return phys
}
