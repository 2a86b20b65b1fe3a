package fs

import (
	"sync"

	"rvos/defs"
	"rvos/stat"

	"rvos/internal/klog"
	"rvos/internal/metrics"
)

// openRecord_t is one row of the in-memory open-inode table (§4.10, §3):
// how many live Inode_t handles reference this id, and whether a delete
// is pending behind them. Once PendingDelete is set, no new OpenInode can
// observe the id as live (§4.10 invariant) even though the bitmap bit and
// on-disk bytes are still there until the last handle drops.
type openRecord_t struct {
	RefCount      int
	PendingDelete bool
}

/// EasyFileSystem owns the on-disk layout (§6.2), the two bitmaps, and the
/// in-memory open-inode table (§4.10). mu serializes open_inodes and
/// inode-bitmap allocation and freeing, and is held while those touch the
/// inode-bitmap block through the block cache. Data-bitmap allocation and
/// freeing (allocDataBlock/freeDataBlock) run without mu and rely on the
/// bitmap block's own cache-entry lock, and reclaim resizes the inode
/// before taking mu.
type EasyFileSystem struct {
	cache *BlockCache_t
	sb    Superblock_t

	inodeBitmap Bitmap_t
	dataBitmap  Bitmap_t
	dataStart   int // first block id of the data area

	mu          sync.Mutex
	openInodes  map[uint32]*openRecord_t
}

/// Create formats a fresh EasyFS image on dev: writes the superblock,
/// zeroes both bitmap regions (a zeroed bit means free), and allocates the root directory inode at id 0
/// (§4.10 "create(...): writes a fresh SuperBlock through the cache";
/// scenario 1 of §8 expects `create_root_dir()` to exist and return an
/// empty listing).
func Create(dev BlockDevice_i, totalBlocks, inodeBitmapBlocks, dataBitmapBlocks int) (*EasyFileSystem, *Inode_t, defs.Err_t) {
	inodeAreaBlocks := util_ceilInodeArea(inodeBitmapBlocks)
	dataAreaBlocks := totalBlocks - 1 - inodeBitmapBlocks - inodeAreaBlocks - dataBitmapBlocks
	if dataAreaBlocks <= 0 {
		return nil, nil, defs.EINVAL
	}

	sb := Superblock_t{
		Magic:           SuperMagic,
		TotalBlocks:     uint32(totalBlocks),
		InodeBitmapBlks: uint32(inodeBitmapBlocks),
		InodeAreaBlks:   uint32(inodeAreaBlocks),
		DataBitmapBlks:  uint32(dataBitmapBlocks),
		DataAreaBlks:    uint32(dataAreaBlocks),
	}
	if err := sb.Validate(); err != 0 {
		return nil, nil, err
	}

	cache := NewBlockCache(dev, int(cacheCapacityFor(totalBlocks)))
	h := cache.GetBlock(0)
	Modify(h, 0, func(s *Superblock_t) { *s = sb })
	h.Drop()
	for _, r := range [][2]int{{sb.inodeBitmapStart(), inodeBitmapBlocks}, {sb.dataBitmapStart(), dataBitmapBlocks}} {
		for b := 0; b < r[1]; b++ {
			bh := cache.GetBlock(r[0] + b)
			Modify(bh, 0, func(blk *[BlockSize]byte) { *blk = [BlockSize]byte{} })
			bh.Drop()
		}
	}

	fs := &EasyFileSystem{
		cache:       cache,
		sb:          sb,
		inodeBitmap: NewBitmap(sb.inodeBitmapStart(), inodeBitmapBlocks, inodeAreaBlocks*InodesPerBlock),
		dataBitmap:  NewBitmap(sb.dataBitmapStart(), dataBitmapBlocks, dataAreaBlocks),
		dataStart:   sb.dataAreaStart(),
		openInodes:  make(map[uint32]*openRecord_t),
	}

	root, err := fs.AllocInode(stat.TypeDirectory)
	if err != 0 {
		return nil, nil, err
	}
	if root.Id != 0 {
		klog.Log.Warnf("easyfs: root inode allocated as id %d, not 0", root.Id)
	}
	fs.cache.Flush()
	return fs, root, 0
}

// util_ceilInodeArea computes how many inode-area blocks a given number of
// inode-bitmap blocks can index: every bit in the bitmap names one inode
// slot, and InodesPerBlock slots share one inode-area block.
func util_ceilInodeArea(inodeBitmapBlocks int) int {
	slots := inodeBitmapBlocks * BitsPerBlock
	return (slots + InodesPerBlock - 1) / InodesPerBlock
}

func cacheCapacityFor(totalBlocks int) int {
	if totalBlocks < 64 {
		return totalBlocks
	}
	return 64
}

/// Open reads block 0 and validates it (§4.10: "if validate() passes,
/// return Ok(fs); else return the unused cache so the caller can salvage
/// it" — here expressed as the (fs, err) pair Go callers actually use).
func Open(dev BlockDevice_i, capacity int) (*EasyFileSystem, defs.Err_t) {
	cache := NewBlockCache(dev, capacity)
	h := cache.GetBlock(0)
	var sb Superblock_t
	Read(h, 0, func(s *Superblock_t) { sb = *s })
	h.Drop()

	if err := sb.Validate(); err != 0 {
		return nil, err
	}
	return &EasyFileSystem{
		cache:       cache,
		sb:          sb,
		inodeBitmap: NewBitmap(sb.inodeBitmapStart(), int(sb.InodeBitmapBlks), int(sb.InodeAreaBlks)*InodesPerBlock),
		dataBitmap:  NewBitmap(sb.dataBitmapStart(), int(sb.DataBitmapBlks), int(sb.DataAreaBlks)),
		dataStart:   sb.dataAreaStart(),
		openInodes:  make(map[uint32]*openRecord_t),
	}, 0
}

/// RootInode opens and returns inode id 0 as a directory handle.
func (fs *EasyFileSystem) RootInode() (*Inode_t, defs.Err_t) {
	return fs.OpenInode(0)
}

/// Sync flushes every dirty cached block to the device (ambient
/// durability hook; EasyFS carries no crash-consistency guarantee, §1).
func (fs *EasyFileSystem) Sync() {
	fs.cache.Flush()
}

func (fs *EasyFileSystem) inodeLocation(id uint32) (blockID, offset int) {
	blockID = fs.sb.inodeAreaStart() + int(id)/InodesPerBlock
	offset = (int(id) % InodesPerBlock) * DiskInodeBytes
	return
}

/// AllocInode allocates an inode-bitmap slot, writes a fresh DiskInode_t
/// of type ty, inserts an open-table record with RefCount=1, and returns
/// an Inode_t handle (§4.10). Returns -ENOSPC-class error if the inode
/// bitmap is full.
func (fs *EasyFileSystem) AllocInode(ty stat.InodeType) (*Inode_t, defs.Err_t) {
	fs.mu.Lock()
	slot, ok := fs.inodeBitmap.Alloc(fs.cache)
	if !ok {
		fs.mu.Unlock()
		return nil, defs.ErrAllocInodeFailed
	}
	id := uint32(slot)
	fs.openInodes[id] = &openRecord_t{RefCount: 1}
	fs.mu.Unlock()

	blockID, offset := fs.inodeLocation(id)
	h := fs.cache.GetBlock(blockID)
	Modify(h, offset, func(d *DiskInode_t) { *d = NewDiskInode(ty) })
	h.Drop()

	metrics.InodeAllocated()
	return &Inode_t{Id: id, fs: fs, blockID: blockID, blockOffset: offset}, 0
}

/// OpenInode increments the open-table reference for id if it is live —
/// already open-and-not-pending-delete, or allocated in the bitmap and not
/// yet tracked — and returns a handle; it returns a nil handle if id is
/// pending delete or was never allocated (§4.10).
func (fs *EasyFileSystem) OpenInode(id uint32) (*Inode_t, defs.Err_t) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if rec, ok := fs.openInodes[id]; ok {
		if rec.PendingDelete {
			return nil, defs.ErrNotFound
		}
		rec.RefCount++
		blockID, offset := fs.inodeLocation(id)
		return &Inode_t{Id: id, fs: fs, blockID: blockID, blockOffset: offset}, 0
	}
	if !fs.inodeBitmap.IsAllocated(int(id), fs.cache) {
		return nil, defs.ErrNotFound
	}
	fs.openInodes[id] = &openRecord_t{RefCount: 1}
	blockID, offset := fs.inodeLocation(id)
	return &Inode_t{Id: id, fs: fs, blockID: blockID, blockOffset: offset}, 0
}

/// DeleteInode marks id pending-delete; if no handle currently references
/// it, reclaim happens inline (§4.10, §4.11 remove_file/remove_dir).
func (fs *EasyFileSystem) DeleteInode(id uint32) {
	fs.mu.Lock()
	rec, ok := fs.openInodes[id]
	if !ok {
		rec = &openRecord_t{RefCount: 0}
		fs.openInodes[id] = rec
	}
	rec.PendingDelete = true
	reclaim := rec.RefCount == 0
	fs.mu.Unlock()
	if reclaim {
		fs.reclaim(id)
	}
}

// closeInode is the drop path (§4.10 close_inode): decrement the
// reference; if it drops to 0 and PendingDelete was set, release the
// table lock and reclaim — outside the lock, so reclaim's own cache
// traffic (freeing data/indirect blocks) never nests under open_inodes'
// mutex, the ordering §5/§9 requires to avoid the flagged deadlock.
func (fs *EasyFileSystem) closeInode(id uint32) {
	fs.mu.Lock()
	rec, ok := fs.openInodes[id]
	if !ok {
		fs.mu.Unlock()
		panic("fs: closeInode of an untracked id")
	}
	rec.RefCount--
	if rec.RefCount < 0 {
		fs.mu.Unlock()
		panic("fs: inode refcount underflow")
	}
	reclaim := rec.RefCount == 0 && rec.PendingDelete
	fs.mu.Unlock()
	if reclaim {
		fs.reclaim(id)
	}
}

// reclaim resizes the inode to 0 (freeing every data/indirect block it
// owned) and frees its inode-bitmap bit, then removes the open-table
// record (§4.10 dealloc_inode).
func (fs *EasyFileSystem) reclaim(id uint32) {
	blockID, offset := fs.inodeLocation(id)
	h := fs.cache.GetBlock(blockID)
	Modify(h, offset, func(d *DiskInode_t) { d.Resize(0, fs) })
	h.Drop()

	fs.mu.Lock()
	fs.inodeBitmap.Dealloc(int(id), fs.cache)
	delete(fs.openInodes, id)
	fs.mu.Unlock()
	metrics.InodeFreed()
}

func (fs *EasyFileSystem) allocDataBlock() uint32 {
	slot, ok := fs.dataBitmap.Alloc(fs.cache)
	if !ok {
		panic("fs: data bitmap exhausted")
	}
	id := uint32(fs.dataStart + slot)
	h := fs.cache.GetBlock(int(id))
	Modify(h, 0, func(blk *[BlockSize]byte) {
		for i := range blk {
			blk[i] = 0
		}
	})
	h.Drop()
	metrics.DataBlockAllocated()
	return id
}

func (fs *EasyFileSystem) freeDataBlock(id uint32) {
	if id == 0 {
		return
	}
	slot := int(id) - fs.dataStart
	fs.dataBitmap.Dealloc(slot, fs.cache)
	metrics.DataBlockFreed()
}

/// Inode_t is a handle onto one open on-disk inode (§3, §4.10): it exists
/// only while the filesystem's open-inode table carries a live reference
/// for Id. Close must be called exactly once per handle returned by
/// AllocInode/OpenInode (including the extra handle Directory.Open and
/// fork-like duplication produce).
type Inode_t struct {
	Id          uint32
	fs          *EasyFileSystem
	blockID     int
	blockOffset int
}

/// ReadDiskInode exposes the underlying on-disk record read-only, through
/// the block cache's per-entry lock (§4.7's "read" contract).
func (ino *Inode_t) ReadDiskInode(f func(*DiskInode_t)) {
	h := ino.fs.cache.GetBlock(ino.blockID)
	defer h.Drop()
	Read(h, ino.blockOffset, f)
}

/// ModifyDiskInode exposes the underlying on-disk record for mutation,
/// marking the containing block dirty (§4.7's "modify" contract).
func (ino *Inode_t) ModifyDiskInode(f func(*DiskInode_t)) {
	h := ino.fs.cache.GetBlock(ino.blockID)
	defer h.Drop()
	Modify(h, ino.blockOffset, f)
}

/// Size returns the inode's current byte size.
func (ino *Inode_t) Size() int {
	var n int
	ino.ReadDiskInode(func(d *DiskInode_t) { n = int(d.Size) })
	return n
}

/// Type returns the inode's on-disk type.
func (ino *Inode_t) Type() stat.InodeType {
	var t stat.InodeType
	ino.ReadDiskInode(func(d *DiskInode_t) { t = d.InodeType() })
	return t
}

/// Resize grows or shrinks the inode (§4.9).
func (ino *Inode_t) Resize(newSize int) {
	ino.ModifyDiskInode(func(d *DiskInode_t) { d.Resize(newSize, ino.fs) })
}

/// ReadAt copies bytes from the inode's data into buf (§4.9).
func (ino *Inode_t) ReadAt(offset int, buf []byte) int {
	var n int
	ino.ReadDiskInode(func(d *DiskInode_t) { n = d.ReadAt(offset, buf, ino.fs) })
	return n
}

/// WriteAt writes data into the inode, resizing first if needed (§4.9).
func (ino *Inode_t) WriteAt(offset int, data []byte) {
	ino.ModifyDiskInode(func(d *DiskInode_t) { d.WriteAt(offset, data, ino.fs) })
}

/// Close releases this handle's reference on the open-inode table
/// (§4.10 close_inode, the drop path).
func (ino *Inode_t) Close() {
	ino.fs.closeInode(ino.Id)
}

/// Delete marks this inode pending-delete (§4.10/§4.11).
func (ino *Inode_t) Delete() {
	ino.fs.DeleteInode(ino.Id)
}
