package fs

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestBitmap(numBlocks, cacheCapacity int) (Bitmap_t, *BlockCache_t) {
	dev := newMemDevice(numBlocks)
	cache := NewBlockCache(dev, cacheCapacity)
	return NewBitmap(0, numBlocks, numBlocks*BitsPerBlock), cache
}

func TestBitmapAllocReturnsLowestFreeSlot(t *testing.T) {
	bm, cache := newTestBitmap(1, 8)

	s0, ok := bm.Alloc(cache)
	require.True(t, ok)
	require.Equal(t, 0, s0)

	s1, ok := bm.Alloc(cache)
	require.True(t, ok)
	require.Equal(t, 1, s1)
}

func TestBitmapAllocMarksSlotAllocated(t *testing.T) {
	bm, cache := newTestBitmap(1, 8)
	slot, ok := bm.Alloc(cache)
	require.True(t, ok)
	require.True(t, bm.IsAllocated(slot, cache))
}

func TestBitmapDeallocFreesSlotForReuse(t *testing.T) {
	bm, cache := newTestBitmap(1, 8)
	slot, ok := bm.Alloc(cache)
	require.True(t, ok)

	bm.Dealloc(slot, cache)
	require.False(t, bm.IsAllocated(slot, cache))

	reused, ok := bm.Alloc(cache)
	require.True(t, ok)
	require.Equal(t, slot, reused, "the freed slot should be the next one handed out, since it's the lowest free")
}

func TestBitmapDeallocOfFreeSlotPanics(t *testing.T) {
	bm, cache := newTestBitmap(1, 8)
	slot, ok := bm.Alloc(cache)
	require.True(t, ok)
	bm.Dealloc(slot, cache)

	require.Panics(t, func() { bm.Dealloc(slot, cache) })
}

func TestBitmapAllocExhaustsAllSlotsThenFails(t *testing.T) {
	bm, cache := newTestBitmap(1, 8)
	seen := make(map[int]bool)
	for i := 0; i < BitsPerBlock; i++ {
		slot, ok := bm.Alloc(cache)
		require.True(t, ok, "slot %d should still be available", i)
		require.False(t, seen[slot], "Alloc should never hand out the same slot twice")
		seen[slot] = true
	}

	_, ok := bm.Alloc(cache)
	require.False(t, ok, "a fully-allocated bitmap should refuse further Alloc calls")
}

func TestBitmapAllocSpansMultipleBlocks(t *testing.T) {
	bm, cache := newTestBitmap(2, 8)
	for i := 0; i < BitsPerBlock; i++ {
		_, ok := bm.Alloc(cache)
		require.True(t, ok)
	}

	slot, ok := bm.Alloc(cache)
	require.True(t, ok)
	require.Equal(t, BitsPerBlock, slot, "the first slot of the second block should follow immediately after the first block fills")
}

func TestIsAllocatedFalseForNeverAllocatedSlot(t *testing.T) {
	bm, cache := newTestBitmap(1, 8)
	require.False(t, bm.IsAllocated(5, cache))
}

// TestBitmapAllocRefusesSlotsBeyondAvailableBlocks exercises §4.8's
// "if the computed slot exceeds available_blocks, treat as full" rule: a
// bitmap block always holds BitsPerBlock slots, but the region it backs
// (the inode or data area) can be smaller once rounded up to a whole
// number of blocks, and Alloc must not hand out a slot past that region.
func TestBitmapAllocRefusesSlotsBeyondAvailableBlocks(t *testing.T) {
	dev := newMemDevice(1)
	cache := NewBlockCache(dev, 8)
	const available = BitsPerBlock - 3
	bm := NewBitmap(0, 1, available)

	for i := 0; i < available; i++ {
		_, ok := bm.Alloc(cache)
		require.True(t, ok, "slot %d is within the available region", i)
	}

	_, ok := bm.Alloc(cache)
	require.False(t, ok, "Alloc must refuse a slot past available_blocks even though the bitmap block has room left")
}

func TestBitmapLocatePanicsOutOfRange(t *testing.T) {
	bm, cache := newTestBitmap(1, 8)
	require.Panics(t, func() { bm.IsAllocated(bm.MaxSlots(), cache) })
	require.Panics(t, func() { bm.IsAllocated(-1, cache) })
}
