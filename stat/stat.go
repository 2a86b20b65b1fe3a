// Package stat mirrors the small set of file metadata EasyFS hands back to
// callers: the DiskInode type and a per-file Stat_t record (§4.11). The
// task_info syscall's status and syscall counters do not live here; they
// come from proc and accnt.
package stat

/// InodeType enumerates the on-disk inode kinds (§6.2: 1=FILE, 2=DIRECTORY).
type InodeType uint32

const (
	TypeFile      InodeType = 1
	TypeDirectory InodeType = 2
)

func (t InodeType) String() string {
	switch t {
	case TypeFile:
		return "file"
	case TypeDirectory:
		return "directory"
	default:
		return "invalid"
	}
}

/// Stat_t mirrors a file's stat information as returned by Directory/File
/// lookups (§4.11).
type Stat_t struct {
	_ino    uint
	_typ    InodeType
	_size   uint
	_blocks uint
}

/// Wino stores the inode number.
func (st *Stat_t) Wino(v uint) { st._ino = v }

/// Wtype records the inode type.
func (st *Stat_t) Wtype(v InodeType) { st._typ = v }

/// Wsize records the file size in bytes.
func (st *Stat_t) Wsize(v uint) { st._size = v }

/// Wblocks records the number of data blocks the inode currently occupies.
func (st *Stat_t) Wblocks(v uint) { st._blocks = v }

/// Ino returns the stored inode number.
func (st *Stat_t) Ino() uint { return st._ino }

/// Type returns the stored inode type.
func (st *Stat_t) Type() InodeType { return st._typ }

/// Size returns the stored size.
func (st *Stat_t) Size() uint { return st._size }

/// Blocks returns the stored block count.
func (st *Stat_t) Blocks() uint { return st._blocks }
