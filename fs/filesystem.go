package fs

import "rvos/defs"

/// CreateRootDir formats a fresh image via Create and returns the root
/// directory as a Directory_t (§8 scenario 1: "create_root_dir() returns
/// root with list()==[]"). Equivalent to Create followed by NewDirectory
/// on the returned inode, provided as one call because every caller that
/// formats a fresh image immediately wants the root as a directory view.
func CreateRootDir(dev BlockDevice_i, totalBlocks, inodeBitmapBlocks, dataBitmapBlocks int) (*EasyFileSystem, *Directory_t, defs.Err_t) {
	fsys, root, err := Create(dev, totalBlocks, inodeBitmapBlocks, dataBitmapBlocks)
	if err != 0 {
		return nil, nil, err
	}
	return fsys, NewDirectory(root), 0
}

/// OpenRootDir opens an existing image and returns its root directory.
func OpenRootDir(dev BlockDevice_i, capacity int) (*EasyFileSystem, *Directory_t, defs.Err_t) {
	fsys, err := Open(dev, capacity)
	if err != 0 {
		return nil, nil, err
	}
	root, err := fsys.RootInode()
	if err != 0 {
		return nil, nil, err
	}
	return fsys, NewDirectory(root), 0
}
