package fs

import (
	"rvos/stat"
	"rvos/util"
)

// Block-addressing layout constants (§4.9, §6.2).
const (
	DirectCount   = 28
	IndirectCount = 2
	idsPerBlock   = BlockSize / 4 // an indirect block is 128 u32 ids

	indirect1Start = DirectCount                                  // 28
	indirect2Start = indirect1Start + idsPerBlock                 // 156
	indirect2End   = indirect2Start + idsPerBlock*idsPerBlock     // 156 + 128*128
)

/// MaxFileSize is the largest byte offset a DiskInode_t can address
/// (§4.9): (28 + 128 + 128^2) * BlockSize.
const MaxFileSize = indirect2End * BlockSize

/// DiskInodeBytes is the on-disk footprint of DiskInode_t (§6.2: 128
/// bytes, C-compatible).
const DiskInodeBytes = 4 + 4*DirectCount + 4*IndirectCount + 4

/// DiskInode_t is the on-disk inode record (§3, §4.9, §6.2): byte size,
/// 28 direct block ids, a single- and a double-indirect block id, and a
/// type tag. It is always accessed through a BlockHandle_t's Read/Modify,
/// never held independently — the cache's per-entry lock is this type's
/// only concurrency guard.
type DiskInode_t struct {
	Size     uint32
	Direct   [DirectCount]uint32
	Indirect [IndirectCount]uint32
	Type     uint32
}

type indirectBlock_t [idsPerBlock]uint32

/// NewDiskInode returns a zeroed inode of the given type.
func NewDiskInode(ty stat.InodeType) DiskInode_t {
	return DiskInode_t{Type: uint32(ty)}
}

/// InodeType returns the inode's type, panicking on a corrupt on-disk
/// value (§7: "invalid inode-type byte on disk" is unrecoverable
/// corruption, not a recoverable FS error).
func (d *DiskInode_t) InodeType() stat.InodeType {
	switch stat.InodeType(d.Type) {
	case stat.TypeFile, stat.TypeDirectory:
		return stat.InodeType(d.Type)
	default:
		panic("fs: corrupt on-disk inode type")
	}
}

/// IsDir reports whether the inode is a directory.
func (d *DiskInode_t) IsDir() bool { return d.InodeType() == stat.TypeDirectory }

/// IsFile reports whether the inode is a regular file.
func (d *DiskInode_t) IsFile() bool { return d.InodeType() == stat.TypeFile }

/// DataBlocks returns ceil(size/BlockSize), the number of data blocks the
/// inode currently occupies (§4.9 resize contract).
func (d *DiskInode_t) DataBlocks() int {
	return blocksFor(int(d.Size))
}

func blocksFor(size int) int {
	return util.Roundup(size, BlockSize) / BlockSize
}

// totalBlocksFor returns the number of blocks an inode of dataBlocks data
// blocks occupies on disk counting indirect index blocks: direct blocks
// need none, indirect1-range blocks need the one indirect1 block, and
// indirect2-range blocks need the indirect2-first block plus one
// second-level block per started column of 128.
func totalBlocksFor(dataBlocks int) int {
	total := dataBlocks
	if dataBlocks > indirect1Start {
		total++ // the indirect1 block itself
	}
	if dataBlocks > indirect2Start {
		total++ // the indirect2-first block
		cols := util.Roundup(dataBlocks-indirect2Start, idsPerBlock) / idsPerBlock
		total += cols
	}
	return total
}

// blockIDAt returns the on-disk block id stored at inner index i (§4.9),
// walking into indirect1/indirect2 via the cache as needed. It never
// allocates; callers needing to allocate use resize first.
func (d *DiskInode_t) blockIDAt(i int, cache *BlockCache_t) uint32 {
	switch {
	case i < indirect1Start:
		return d.Direct[i]
	case i < indirect2Start:
		return readIndirectSlot(cache, d.Indirect[0], i-indirect1Start)
	default:
		j := i - indirect2Start
		col, row := j/idsPerBlock, j%idsPerBlock
		l2 := readIndirectSlot(cache, d.Indirect[1], col)
		return readIndirectSlot(cache, l2, row)
	}
}

func readIndirectSlot(cache *BlockCache_t, blockID uint32, slot int) uint32 {
	h := cache.GetBlock(int(blockID))
	defer h.Drop()
	var v uint32
	Read(h, 0, func(blk *indirectBlock_t) { v = blk[slot] })
	return v
}

func writeIndirectSlot(cache *BlockCache_t, blockID uint32, slot int, val uint32) {
	h := cache.GetBlock(int(blockID))
	defer h.Drop()
	Modify(h, 0, func(blk *indirectBlock_t) { blk[slot] = val })
}

/// ReadAt copies min(len(buf), size-offset) bytes starting at offset into
/// buf, returning the number of bytes actually copied; reading at or past
/// size yields 0 (§4.9).
func (d *DiskInode_t) ReadAt(offset int, buf []byte, fs *EasyFileSystem) int {
	size := int(d.Size)
	if offset >= size {
		return 0
	}
	end := util.Min(offset+len(buf), size)
	read := 0
	for offset+read < end {
		blockIdx := (offset + read) / BlockSize
		intra := (offset + read) % BlockSize
		n := util.Min(util.Min(len(buf)-read, BlockSize-intra), end-(offset+read))
		id := d.blockIDAt(blockIdx, fs.cache)
		h := fs.cache.GetBlock(int(id))
		Read(h, 0, func(blk *[BlockSize]byte) {
			copy(buf[read:read+n], blk[intra:intra+n])
		})
		h.Drop()
		read += n
	}
	return read
}

/// WriteAt resizes the inode up to max(size, offset+len(data)) if needed,
/// then writes data across the block map (§4.9). The growth happens here:
/// the Inode wrapper calls WriteAt inside one Modify closure without
/// resizing first, so the resize and the data write share that closure.
func (d *DiskInode_t) WriteAt(offset int, data []byte, fs *EasyFileSystem) {
	need := offset + len(data)
	if need > int(d.Size) {
		d.resizeLocked(need, fs)
	}
	written := 0
	for written < len(data) {
		blockIdx := (offset + written) / BlockSize
		intra := (offset + written) % BlockSize
		n := util.Min(len(data)-written, BlockSize-intra)
		id := d.blockIDAt(blockIdx, fs.cache)
		bh := fs.cache.GetBlock(int(id))
		Modify(bh, 0, func(blk *[BlockSize]byte) {
			copy(blk[intra:intra+n], data[written:written+n])
		})
		bh.Drop()
		written += n
	}
}

/// Resize grows or shrinks the inode so its data-block count matches
/// ceil(newSize/BlockSize), then sets Size=newSize (§4.9). Callers invoke
/// this from inside an Inode wrapper's Modify closure, so the Direct/
/// Indirect array writes made here land in the same dirtied block as
/// every other field.
func (d *DiskInode_t) Resize(newSize int, fs *EasyFileSystem) {
	d.resizeLocked(newSize, fs)
}

func (d *DiskInode_t) resizeLocked(newSize int, fs *EasyFileSystem) {
	oldBlocks := d.DataBlocks()
	newBlocks := blocksFor(newSize)
	if newBlocks > oldBlocks {
		d.grow(oldBlocks, newBlocks, fs)
	} else if newBlocks < oldBlocks {
		d.shrink(oldBlocks, newBlocks, fs)
	}
	d.Size = uint32(newSize)
}

// grow zeros the old last block's tail (if it was partially used) then
// allocates fresh zeroed data blocks old..new, installing indirect1/
// indirect2 index blocks on demand as the pointer index crosses into
// their territory (§4.9 grow path). Every new block id is stored by
// value, never by cache pointer.
func (d *DiskInode_t) grow(oldBlocks, newBlocks int, fs *EasyFileSystem) {
	if tail := int(d.Size) % BlockSize; tail != 0 && oldBlocks > 0 {
		h := fs.cache.GetBlock(int(d.blockIDAt(oldBlocks-1, fs.cache)))
		Modify(h, 0, func(blk *[BlockSize]byte) {
			for k := tail; k < BlockSize; k++ {
				blk[k] = 0
			}
		})
		h.Drop()
	}
	for i := oldBlocks; i < newBlocks; i++ {
		id := fs.allocDataBlock()
		switch {
		case i < indirect1Start:
			d.Direct[i] = id
		case i < indirect2Start:
			if d.Indirect[0] == 0 {
				d.Indirect[0] = fs.allocDataBlock()
			}
			writeIndirectSlot(fs.cache, d.Indirect[0], i-indirect1Start, id)
		default:
			j := i - indirect2Start
			col, row := j/idsPerBlock, j%idsPerBlock
			if d.Indirect[1] == 0 {
				d.Indirect[1] = fs.allocDataBlock()
			}
			l2 := readIndirectSlot(fs.cache, d.Indirect[1], col)
			if l2 == 0 {
				l2 = fs.allocDataBlock()
				writeIndirectSlot(fs.cache, d.Indirect[1], col, l2)
			}
			writeIndirectSlot(fs.cache, l2, row, id)
		}
	}
}

// shrink walks in reverse from old-1 down to new, freeing each data block,
// then frees indirect1/indirect2 index blocks exactly when their last
// referent is freed — the variant §9's open-question note fixes, not one
// block early (§4.9 shrink path, §9).
func (d *DiskInode_t) shrink(oldBlocks, newBlocks int, fs *EasyFileSystem) {
	for i := oldBlocks - 1; i >= newBlocks; i-- {
		switch {
		case i < indirect1Start:
			fs.freeDataBlock(d.Direct[i])
			d.Direct[i] = 0
		case i < indirect2Start:
			slot := i - indirect1Start
			fs.freeDataBlock(readIndirectSlot(fs.cache, d.Indirect[0], slot))
			writeIndirectSlot(fs.cache, d.Indirect[0], slot, 0)
			if slot == 0 {
				fs.freeDataBlock(d.Indirect[0])
				d.Indirect[0] = 0
			}
		default:
			j := i - indirect2Start
			col, row := j/idsPerBlock, j%idsPerBlock
			l2 := readIndirectSlot(fs.cache, d.Indirect[1], col)
			fs.freeDataBlock(readIndirectSlot(fs.cache, l2, row))
			writeIndirectSlot(fs.cache, l2, row, 0)
			if row == 0 {
				fs.freeDataBlock(l2)
				writeIndirectSlot(fs.cache, d.Indirect[1], col, 0)
				if col == 0 {
					fs.freeDataBlock(d.Indirect[1])
					d.Indirect[1] = 0
				}
			}
		}
	}
}
