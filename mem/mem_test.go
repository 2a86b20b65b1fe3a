package mem

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPhysInitResetsFreeList(t *testing.T) {
	Phys_init(16)
	require.Equal(t, 16, Physmem.Pgcount())
}

func TestRefpgNewDrainsFreeList(t *testing.T) {
	Phys_init(4)
	require.Equal(t, 4, Physmem.Pgcount())

	var pas []Pa_t
	for i := 0; i < 4; i++ {
		_, pa, ok := Physmem.Refpg_new()
		require.True(t, ok)
		pas = append(pas, pa)
	}
	require.Equal(t, 0, Physmem.Pgcount())

	_, _, ok := Physmem.Refpg_new()
	require.False(t, ok, "allocating past the reserved frame count should fail, not panic")
	_ = pas
}

func TestRefpgNewZeroesThePage(t *testing.T) {
	Phys_init(2)
	pg, pa, ok := Physmem.Refpg_new()
	require.True(t, ok)
	bpg := Pg2bytes(pg)
	for _, b := range bpg {
		require.Equal(t, uint8(0), b)
	}
	Physmem.Refup(pa)
	Physmem.Refdown(pa)
}

func TestRefupRefdownTracksRefcount(t *testing.T) {
	Phys_init(2)
	_, pa, ok := Physmem.Refpg_new()
	require.True(t, ok)

	Physmem.Refup(pa)
	require.Equal(t, 1, Physmem.Refcnt(pa))
	Physmem.Refup(pa)
	require.Equal(t, 2, Physmem.Refcnt(pa))

	freed := Physmem.Refdown(pa)
	require.False(t, freed, "refcount still 1, frame should not be returned to the free list yet")
	require.Equal(t, 1, Physmem.Refcnt(pa))

	freed = Physmem.Refdown(pa)
	require.True(t, freed, "refcount dropped to 0, frame should be freed")
	require.Equal(t, 2, Physmem.Pgcount())
}

func TestFreedFrameIsReusable(t *testing.T) {
	Phys_init(1)
	_, pa1, ok := Physmem.Refpg_new()
	require.True(t, ok)
	Physmem.Refup(pa1)
	Physmem.Refdown(pa1)

	_, pa2, ok := Physmem.Refpg_new()
	require.True(t, ok)
	require.Equal(t, pa1, pa2, "the only frame in the arena should come back around once freed")
}

func TestDmapRoundTripsBytesThroughPhysicalAddress(t *testing.T) {
	Phys_init(2)
	_, pa, ok := Physmem.Refpg_new()
	require.True(t, ok)

	bs := Physmem.Dmap8(pa)
	bs[0] = 0xab
	bs[1] = 0xcd

	bs2 := Physmem.Dmap8(pa)
	require.Equal(t, uint8(0xab), bs2[0])
	require.Equal(t, uint8(0xcd), bs2[1])
}

func TestPmapNewReturnsZeroedPageTable(t *testing.T) {
	Phys_init(2)
	pmap, _, ok := Physmem.Pmap_new()
	require.True(t, ok)
	for _, pte := range pmap {
		require.Equal(t, Pa_t(0), pte)
	}
}
