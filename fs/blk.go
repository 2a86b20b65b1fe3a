package fs

import (
	"sync"
	"unsafe"

	"golang.org/x/sync/singleflight"

	"rvos/internal/metrics"
)

/// BlockSize is the size of a disk block in bytes (§6.2). EasyFS blocks
/// are 512 bytes, unlike biscuit's 4KiB blocks — every other constant in
/// this package (BitsPerBlock, DiskInodeBytes, DirEntryBytes) is derived
/// from this one.
const BlockSize = 512

/// BlockDevice_i is the synchronous block device contract EasyFS is built
/// on (§6.1): read/write a whole block at a time. Implementations must be
/// safe to call from multiple goroutines, and must never reorder writes to
/// the same block relative to each other.
type BlockDevice_i interface {
	ReadBlock(id int, out []byte)
	WriteBlock(id int, in []byte)
}

// cacheEntry_t is one cached block: the raw bytes, whether they differ
// from the device, and a reference count. The entry's own mutex guards
// Data/Dirty so concurrent Read_/Modify_ calls on the same block observe
// a consistent view (§8 "concurrent handles to the same block observe a
// consistent view under the per-entry lock"); cache-wide bookkeeping
// (refcount, FIFO order) is guarded by BlockCache_t's lock instead, per
// §5's rule against holding an entry lock across other cache operations.
type cacheEntry_t struct {
	sync.Mutex
	Block int
	Data  [BlockSize]byte
	Dirty bool
	refs  int
}

/// BlockHandle_t is a shared, reference-counted handle onto one cached
/// block (§4.7). Multiple live handles may reference the same block;
/// Drop releases this handle's reference without necessarily evicting the
/// entry, which stays cache-resident until the FIFO eviction policy picks
/// it (§4.7: "the entry stays in the cache until evicted").
type BlockHandle_t struct {
	cache *BlockCache_t
	e     *cacheEntry_t
}

/// Block returns this handle's block number.
func (h *BlockHandle_t) Block() int { return h.e.Block }

/// Read interprets the BlockSize bytes at offset as a T and passes a
/// pointer to it to f without mutation (§4.7). Offset bounds are checked:
/// offset+sizeof(T) must not exceed BlockSize, or this panics (callers are
/// always EasyFS-internal code operating on fixed, known-safe offsets).
func Read[T any](h *BlockHandle_t, offset int, f func(*T)) {
	h.e.Lock()
	defer h.e.Unlock()
	f(bytesAsT[T](h.e.Data[:], offset))
}

/// Modify interprets the BlockSize bytes at offset as a T, invokes
/// f(&T), and marks the entry dirty so it is written back on eviction or
/// flush (§4.7).
func Modify[T any](h *BlockHandle_t, offset int, f func(*T)) {
	h.e.Lock()
	defer h.e.Unlock()
	f(bytesAsT[T](h.e.Data[:], offset))
	h.e.Dirty = true
}

func bytesAsT[T any](buf []byte, offset int) *T {
	var zero T
	size := int(unsafe.Sizeof(zero))
	if offset < 0 || offset+size > len(buf) {
		panic("fs: block cache offset out of bounds")
	}
	return (*T)(unsafe.Pointer(&buf[offset]))
}

/// Drop releases this handle's reference. The block stays cache-resident
/// (FIFO eviction decides when it actually leaves) — Drop never writes
/// back by itself; Flush or eviction does that.
func (h *BlockHandle_t) Drop() {
	h.cache.release(h.e)
}

/// BlockCache_t is a write-back cache of up to Capacity blocks over a
/// BlockDevice_i (§4.7). Eviction is FIFO among entries with refcount==1
/// (held only by the cache itself); if every entry is pinned, allocating
/// a new slot panics ("out of cache slots", §7).
type BlockCache_t struct {
	mu       sync.Mutex
	dev      BlockDevice_i
	Capacity int
	order    []int // FIFO order of block numbers currently resident
	entries  map[int]*cacheEntry_t
	inflight singleflight.Group
}

/// NewBlockCache returns an empty cache of the given capacity over dev.
/// capacity corresponds to CACHE_CAP (§4.7); one missing-block fetch per
/// block id is ever in flight at a time, via golang.org/x/sync/singleflight
/// — concurrent Get_block calls for the same cold block share one device
/// read instead of racing duplicate reads (§SPEC_FULL domain stack).
func NewBlockCache(dev BlockDevice_i, capacity int) *BlockCache_t {
	return &BlockCache_t{
		dev:      dev,
		Capacity: capacity,
		entries:  make(map[int]*cacheEntry_t, capacity),
	}
}

/// GetBlock returns a handle on block id, pulling it from the device on a
/// cache miss (§4.7). The returned handle holds one reference; callers
/// must call Drop when done with it.
func (c *BlockCache_t) GetBlock(id int) *BlockHandle_t {
	c.mu.Lock()
	if e, ok := c.entries[id]; ok {
		e.refs++
		c.mu.Unlock()
		metrics.CacheHit()
		return &BlockHandle_t{cache: c, e: e}
	}
	c.mu.Unlock()

	metrics.CacheMiss()
	v, _, _ := c.inflight.Do(cacheKey(id), func() (interface{}, error) {
		e := &cacheEntry_t{Block: id}
		c.dev.ReadBlock(id, e.Data[:])
		return c.insert(e), nil
	})
	e := v.(*cacheEntry_t)

	c.mu.Lock()
	e.refs++
	c.mu.Unlock()
	return &BlockHandle_t{cache: c, e: e}
}

// insert adds a freshly-read entry to the cache, evicting first if the
// cache is already at capacity, and returns the canonical entry for
// e.Block. If another racer's singleflight call already inserted one,
// that existing entry is returned instead of copying its state into e —
// cacheEntry_t embeds sync.Mutex, so copying the struct wholesale would
// copy a (possibly locked) mutex.
func (c *BlockCache_t) insert(e *cacheEntry_t) *cacheEntry_t {
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.entries[e.Block]; ok {
		return existing
	}
	if len(c.order) >= c.Capacity {
		c.evictLocked()
	}
	e.refs = 1 // the cache's own membership reference
	c.entries[e.Block] = e
	c.order = append(c.order, e.Block)
	return e
}

// evictLocked scans the FIFO order for the first entry referenced only by
// the cache (refs==1), writes it back if dirty, and removes it. Panics if
// every resident entry is pinned by a live handle (§4.7, §7).
func (c *BlockCache_t) evictLocked() {
	for i, id := range c.order {
		e := c.entries[id]
		e.Lock()
		pinned := e.refs > 1
		dirty := e.Dirty
		e.Unlock()
		if pinned {
			continue
		}
		if dirty {
			c.dev.WriteBlock(e.Block, e.Data[:])
		}
		delete(c.entries, id)
		c.order = append(c.order[:i:i], c.order[i+1:]...)
		return
	}
	panic("fs: out of cache slots")
}

// release drops one reference from e, the cache's own membership
// reference aside; it never evicts by itself (eviction only happens in
// evictLocked, driven by a future GetBlock that needs the slot).
func (c *BlockCache_t) release(e *cacheEntry_t) {
	c.mu.Lock()
	e.refs--
	if e.refs < 1 {
		panic("fs: block handle refcount underflow")
	}
	c.mu.Unlock()
}

/// Flush writes every dirty resident entry back to the device without
/// evicting any of them (§4.7).
func (c *BlockCache_t) Flush() {
	c.mu.Lock()
	ids := append([]int(nil), c.order...)
	c.mu.Unlock()
	for _, id := range ids {
		c.mu.Lock()
		e, ok := c.entries[id]
		c.mu.Unlock()
		if !ok {
			continue
		}
		e.Lock()
		if e.Dirty {
			c.dev.WriteBlock(e.Block, e.Data[:])
			e.Dirty = false
		}
		e.Unlock()
	}
}

func cacheKey(id int) string {
	// small ints never need more than this; avoids strconv import churn
	// for what is, in practice, always a single-digit-to-7-digit block id.
	buf := [20]byte{}
	i := len(buf)
	n := id
	if n == 0 {
		i--
		buf[i] = '0'
	}
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}
