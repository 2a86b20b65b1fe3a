package fs

import (
	"rvos/defs"
	"rvos/stat"
)

/// DirEntryNameLen is the maximum stored name length (§6.2: "28B name
/// (NUL-terminated), max 27 chars").
const DirEntryNameLen = 28

/// DirEntryBytes is the on-disk footprint of one directory entry (§6.2).
const DirEntryBytes = DirEntryNameLen + 4

/// DirEntry_t is one packed directory record: a NUL-terminated name and
/// the inode id it names (§3, §6.2). Directory contents are just a
/// concatenation of these, size%DirEntryBytes==0, names unique (§3).
type DirEntry_t struct {
	Name    [DirEntryNameLen]byte
	InodeID uint32
}

/// NewDirEntry builds a DirEntry_t for name/id, failing with
/// -ENAMETOOLONG if name doesn't fit (§3: "Name length <= 27").
func NewDirEntry(name string, id uint32) (DirEntry_t, defs.Err_t) {
	if len(name) > DirEntryNameLen-1 {
		return DirEntry_t{}, defs.ENAMETOOLONG
	}
	var e DirEntry_t
	copy(e.Name[:], name)
	e.InodeID = id
	return e, 0
}

/// NameString returns the entry's name as a Go string, truncated at the
/// first NUL byte.
func (e *DirEntry_t) NameString() string {
	n := 0
	for n < DirEntryNameLen && e.Name[n] != 0 {
		n++
	}
	return string(e.Name[:n])
}

/// Directory_t is a view over an inode whose type is DIRECTORY (§4.11).
/// Directory mutation is single-writer (§9: concurrent directory mutation
/// is explicitly out of scope — the directory's own inode lock, taken
/// per-operation through the block cache, only protects one mutator's
/// read-modify-write of the entry table, not concurrent writers racing
/// each other).
type Directory_t struct {
	ino *Inode_t
}

/// NewDirectory wraps ino as a Directory_t. Panics if ino isn't a
/// directory inode — callers (OpenInode dispatch, CreateRootDir) are
/// expected to have already checked the type.
func NewDirectory(ino *Inode_t) *Directory_t {
	if ino.Type() != stat.TypeDirectory {
		panic("fs: NewDirectory on a non-directory inode")
	}
	return &Directory_t{ino: ino}
}

/// Close releases the underlying inode handle.
func (d *Directory_t) Close() { d.ino.Close() }

/// Inode returns the underlying inode handle.
func (d *Directory_t) Inode() *Inode_t { return d.ino }

func (d *Directory_t) entryCount() int {
	return d.ino.Size() / DirEntryBytes
}

func (d *Directory_t) readEntry(i int) DirEntry_t {
	var e DirEntry_t
	buf := make([]byte, DirEntryBytes)
	d.ino.ReadAt(i*DirEntryBytes, buf)
	decodeDirEntry(buf, &e)
	return e
}

func (d *Directory_t) writeEntry(i int, e DirEntry_t) {
	buf := make([]byte, DirEntryBytes)
	encodeDirEntry(e, buf)
	d.ino.WriteAt(i*DirEntryBytes, buf)
}

func encodeDirEntry(e DirEntry_t, buf []byte) {
	copy(buf[:DirEntryNameLen], e.Name[:])
	buf[DirEntryNameLen] = byte(e.InodeID)
	buf[DirEntryNameLen+1] = byte(e.InodeID >> 8)
	buf[DirEntryNameLen+2] = byte(e.InodeID >> 16)
	buf[DirEntryNameLen+3] = byte(e.InodeID >> 24)
}

func decodeDirEntry(buf []byte, e *DirEntry_t) {
	copy(e.Name[:], buf[:DirEntryNameLen])
	e.InodeID = uint32(buf[DirEntryNameLen]) | uint32(buf[DirEntryNameLen+1])<<8 |
		uint32(buf[DirEntryNameLen+2])<<16 | uint32(buf[DirEntryNameLen+3])<<24
}

/// List returns every entry name in storage order (§4.11 Directory::list).
func (d *Directory_t) List() []string {
	n := d.entryCount()
	names := make([]string, 0, n)
	for i := 0; i < n; i++ {
		e := d.readEntry(i)
		names = append(names, e.NameString())
	}
	return names
}

// find returns the index and entry matching name, or ok=false.
func (d *Directory_t) find(name string) (int, DirEntry_t, bool) {
	n := d.entryCount()
	for i := 0; i < n; i++ {
		e := d.readEntry(i)
		if e.NameString() == name {
			return i, e, true
		}
	}
	return 0, DirEntry_t{}, false
}

func (d *Directory_t) append(e DirEntry_t) {
	i := d.entryCount()
	d.ino.Resize((i + 1) * DirEntryBytes)
	d.writeEntry(i, e)
}

/// Open looks up name and returns its inode handle along with its type,
/// or ok=false if no entry matches (§4.11 Directory::open).
func (d *Directory_t) Open(name string) (*Inode_t, stat.InodeType, bool) {
	_, e, ok := d.find(name)
	if !ok {
		return nil, 0, false
	}
	ino, err := d.ino.fs.OpenInode(e.InodeID)
	if err != 0 {
		return nil, 0, false
	}
	return ino, ino.Type(), true
}

/// CreateFile creates (or truncates an existing) file named name (§4.11).
/// If an entry already names a directory, returns -EISDIR/ErrIsDir.
func (d *Directory_t) CreateFile(name string) (*Inode_t, defs.Err_t) {
	if _, e, ok := d.find(name); ok {
		ino, err := d.ino.fs.OpenInode(e.InodeID)
		if err != 0 {
			return nil, err
		}
		if ino.Type() == stat.TypeDirectory {
			ino.Close()
			return nil, defs.ErrIsDir
		}
		ino.Resize(0)
		return ino, 0
	}
	ino, err := d.ino.fs.AllocInode(stat.TypeFile)
	if err != 0 {
		return nil, err
	}
	entry, eerr := NewDirEntry(name, ino.Id)
	if eerr != 0 {
		ino.Delete()
		ino.Close()
		return nil, eerr
	}
	d.append(entry)
	return ino, 0
}

/// CreateDir creates a new empty subdirectory named name (§4.11). Fails
/// with -EEXIST/ErrAlreadyExists if any entry already names name.
func (d *Directory_t) CreateDir(name string) (*Directory_t, defs.Err_t) {
	if _, _, ok := d.find(name); ok {
		return nil, defs.ErrAlreadyExists
	}
	ino, err := d.ino.fs.AllocInode(stat.TypeDirectory)
	if err != 0 {
		return nil, err
	}
	entry, eerr := NewDirEntry(name, ino.Id)
	if eerr != 0 {
		ino.Delete()
		ino.Close()
		return nil, eerr
	}
	d.append(entry)
	return NewDirectory(ino), 0
}

// removeEntry overwrites the entry at index i with the directory's last
// entry, then shrinks the entry table by one (§4.11: "overwrite target
// entry with the last entry and resize directory down by one entry
// (swap-remove)").
func (d *Directory_t) removeEntry(i int) {
	last := d.entryCount() - 1
	if i != last {
		d.writeEntry(i, d.readEntry(last))
	}
	d.ino.Resize(last * DirEntryBytes)
}

/// RemoveFile removes the file entry named name (§4.11). Fails with
/// -ENOENT/ErrNotFound if no such entry, or -EISDIR/ErrIsDir if the entry
/// names a directory.
func (d *Directory_t) RemoveFile(name string) defs.Err_t {
	i, e, ok := d.find(name)
	if !ok {
		return defs.ErrNotFound
	}
	ino, err := d.ino.fs.OpenInode(e.InodeID)
	if err != 0 {
		return err
	}
	if ino.Type() != stat.TypeFile {
		ino.Close()
		return defs.ErrIsDir
	}
	d.removeEntry(i)
	ino.Delete()
	ino.Close()
	return 0
}

/// RemoveDir removes the (empty) subdirectory entry named name (§4.11).
/// Fails with -ENOENT if missing, -ENOTDIR/ErrIsFile if the entry is a
/// file, or -ENOTEMPTY/ErrNotEmpty if the directory still has entries.
func (d *Directory_t) RemoveDir(name string) defs.Err_t {
	i, e, ok := d.find(name)
	if !ok {
		return defs.ErrNotFound
	}
	ino, err := d.ino.fs.OpenInode(e.InodeID)
	if err != 0 {
		return err
	}
	if ino.Type() != stat.TypeDirectory {
		ino.Close()
		return defs.ErrIsFile
	}
	if ino.Size() != 0 {
		ino.Close()
		return defs.ErrNotEmpty
	}
	d.removeEntry(i)
	ino.Delete()
	ino.Close()
	return 0
}

/// File_t is a view over an inode whose type is FILE (§4.11).
type File_t struct {
	ino *Inode_t
}

/// NewFile wraps ino as a File_t. Panics if ino isn't a file inode.
func NewFile(ino *Inode_t) *File_t {
	if ino.Type() != stat.TypeFile {
		panic("fs: NewFile on a non-file inode")
	}
	return &File_t{ino: ino}
}

/// Close releases the underlying inode handle.
func (f *File_t) Close() { f.ino.Close() }

/// Size returns the file's current byte size.
func (f *File_t) Size() int { return f.ino.Size() }

/// Resize grows or shrinks the file.
func (f *File_t) Resize(n int) { f.ino.Resize(n) }

/// ReadAt copies bytes from the file into buf.
func (f *File_t) ReadAt(offset int, buf []byte) int { return f.ino.ReadAt(offset, buf) }

/// WriteAt writes data into the file, growing it if necessary.
func (f *File_t) WriteAt(offset int, data []byte) { f.ino.WriteAt(offset, data) }
