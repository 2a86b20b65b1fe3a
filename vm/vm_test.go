package vm

import (
	"testing"

	"github.com/stretchr/testify/require"

	"rvos/defs"
	"rvos/mem"
)

func newTestAS(t *testing.T, asid defs.Pid_t) *AddressSpace_t {
	mem.Phys_init(1 << 12) // 16MiB of simulated frames, plenty for these tests
	as, err := NewAddressSpace(asid)
	require.Equal(t, defs.Err_t(0), err)
	return as
}

func TestMapRegionThenTranslateRoundTrips(t *testing.T) {
	as := newTestAS(t, 1)
	const va = 0x20000
	err := as.MapRegion(va, 2, mem.PTE_U|mem.PTE_R|mem.PTE_W, true)
	require.Equal(t, defs.Err_t(0), err)

	pa, ok := as.Translate(va)
	require.True(t, ok)
	require.NotZero(t, pa)

	pa2, ok := as.Translate(va + mem.PGSIZE)
	require.True(t, ok)
	require.NotEqual(t, pa, pa2&^mem.PGOFFSET)
}

func TestTranslateUnmappedAddressFails(t *testing.T) {
	as := newTestAS(t, 1)
	_, ok := as.Translate(0x99000)
	require.False(t, ok)
}

func TestOverlapsDetectsIntersectingRegion(t *testing.T) {
	as := newTestAS(t, 1)
	require.Equal(t, defs.Err_t(0), as.MapRegion(0x10000, 4, mem.PTE_U|mem.PTE_R, true))

	require.True(t, as.Overlaps(0x10000, 1))
	require.True(t, as.Overlaps(0x12000, 4))
	require.False(t, as.Overlaps(0x14000, 1))
}

func TestUnmapRegionFreesAndForgets(t *testing.T) {
	as := newTestAS(t, 1)
	require.Equal(t, defs.Err_t(0), as.MapRegion(0x30000, 1, mem.PTE_U|mem.PTE_R|mem.PTE_W, true))
	_, ok := as.Translate(0x30000)
	require.True(t, ok)

	err := as.UnmapRegion(0x30000, 1)
	require.Equal(t, defs.Err_t(0), err)

	_, ok = as.Translate(0x30000)
	require.False(t, ok)
}

func TestUnmapRegionOnUntrackedRangeFails(t *testing.T) {
	as := newTestAS(t, 1)
	require.Equal(t, defs.EINVAL, as.UnmapRegion(0x40000, 1))
}

func TestMmapRejectsMisalignedStart(t *testing.T) {
	as := newTestAS(t, 1)
	require.Equal(t, defs.EINVAL, Mmap(as, 0x1001, mem.PGSIZE, defs.PROT_R))
}

func TestMmapRejectsOverlap(t *testing.T) {
	as := newTestAS(t, 1)
	require.Equal(t, defs.Err_t(0), Mmap(as, 0x60000, mem.PGSIZE, defs.PROT_R|defs.PROT_W))
	require.Equal(t, defs.EINVAL, Mmap(as, 0x60000, mem.PGSIZE, defs.PROT_R))
}

func TestMmapThenMunmapRoundTrips(t *testing.T) {
	as := newTestAS(t, 1)
	require.Equal(t, defs.Err_t(0), Mmap(as, 0x70000, mem.PGSIZE, defs.PROT_R|defs.PROT_W))
	_, ok := as.Translate(0x70000)
	require.True(t, ok)

	require.Equal(t, defs.Err_t(0), Munmap(as, 0x70000, mem.PGSIZE))
	_, ok = as.Translate(0x70000)
	require.False(t, ok)
}

func TestK2userUser2kRoundTrips(t *testing.T) {
	as := newTestAS(t, 1)
	require.Equal(t, defs.Err_t(0), as.MapRegion(0x80000, 1, mem.PTE_U|mem.PTE_R|mem.PTE_W, true))

	payload := []byte("hello from kernel")
	require.Equal(t, defs.Err_t(0), as.K2user(payload, 0x80000))

	back := make([]byte, len(payload))
	require.Equal(t, defs.Err_t(0), as.User2k(back, 0x80000))
	require.Equal(t, payload, back)
}

func TestK2userRejectsUnmappedDestination(t *testing.T) {
	as := newTestAS(t, 1)
	err := as.K2user([]byte("x"), 0x90000)
	require.Equal(t, defs.EFAULT, err)
}

func TestDupCopiesEveryMappedPageIndependently(t *testing.T) {
	parent := newTestAS(t, 1)
	require.Equal(t, defs.Err_t(0), parent.MapRegion(0xa0000, 1, mem.PTE_U|mem.PTE_R|mem.PTE_W, true))
	require.Equal(t, defs.Err_t(0), parent.K2user([]byte("parent data"), 0xa0000))

	child, err := parent.Dup(2)
	require.Equal(t, defs.Err_t(0), err)

	back := make([]byte, len("parent data"))
	require.Equal(t, defs.Err_t(0), child.User2k(back, 0xa0000))
	require.Equal(t, "parent data", string(back))

	// writes to the parent after Dup must not appear in the child: no
	// copy-on-write sharing, every page is a distinct frame (§1 non-goals).
	require.Equal(t, defs.Err_t(0), parent.K2user([]byte("changed!!!!"), 0xa0000))
	back2 := make([]byte, len("parent data"))
	require.Equal(t, defs.Err_t(0), child.User2k(back2, 0xa0000))
	require.Equal(t, "parent data", string(back2))
}

func TestDropReturnsAllFramesToTheAllocator(t *testing.T) {
	mem.Phys_init(1 << 12)
	total := mem.Physmem.Pgcount()

	as, err := NewAddressSpace(1)
	require.Equal(t, defs.Err_t(0), err)
	require.Equal(t, defs.Err_t(0), as.MapRegion(0xb0000, 3, mem.PTE_U|mem.PTE_R|mem.PTE_W, true))
	require.Less(t, mem.Physmem.Pgcount(), total, "root table and mapped pages should have consumed frames")

	as.Drop()
	require.Equal(t, total, mem.Physmem.Pgcount(), "Drop should return the root table and every mapped frame")
}
