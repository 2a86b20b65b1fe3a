// Package hostdisk implements fs.BlockDevice_i over a host file using
// positioned reads/writes. It is the out-of-core collaborator §6.1 calls
// the "BlockDevice contract" — the SBI/AHCI-equivalent EasyFS is built on
// in this hosted harness, standing in for biscuit's ahci_disk_t.
//
// Unlike ahci_disk_t (which serializes Seek+Read/Write behind one mutex,
// since a file's seek cursor is shared process-wide state), this device
// uses golang.org/x/sys/unix's Pread/Pwrite: positioned I/O needs no
// shared cursor, so concurrent fs.BlockCache_t.GetBlock calls for distinct
// blocks can actually run their device reads concurrently instead of
// serializing on a Seek lock that exists only because the stdlib *os.File
// offset is shared mutable state.
package hostdisk

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"rvos/fs"
)

/// HostDisk_t is a file-backed BlockDevice_i (§6.1).
type HostDisk_t struct {
	f *os.File
}

var _ fs.BlockDevice_i = (*HostDisk_t)(nil)

/// Open opens (creating if necessary) path as a block device backing
/// store, truncated/extended to exactly totalBlocks*fs.BlockSize bytes.
func Open(path string, totalBlocks int) (*HostDisk_t, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("hostdisk: open %s: %w", path, err)
	}
	size := int64(totalBlocks) * fs.BlockSize
	if err := f.Truncate(size); err != nil {
		f.Close()
		return nil, fmt.Errorf("hostdisk: truncate %s: %w", path, err)
	}
	return &HostDisk_t{f: f}, nil
}

/// ReadBlock copies block id's bytes into out (must be fs.BlockSize long).
func (d *HostDisk_t) ReadBlock(id int, out []byte) {
	n, err := unix.Pread(int(d.f.Fd()), out, int64(id)*fs.BlockSize)
	if err != nil {
		panic(fmt.Sprintf("hostdisk: pread block %d: %v", id, err))
	}
	for n < len(out) {
		more, err := unix.Pread(int(d.f.Fd()), out[n:], int64(id)*fs.BlockSize+int64(n))
		if err != nil {
			panic(fmt.Sprintf("hostdisk: pread block %d: %v", id, err))
		}
		if more == 0 {
			break // short file tail; rest of out stays zeroed
		}
		n += more
	}
}

/// WriteBlock persists in (must be fs.BlockSize long) as block id.
func (d *HostDisk_t) WriteBlock(id int, in []byte) {
	n := 0
	for n < len(in) {
		wrote, err := unix.Pwrite(int(d.f.Fd()), in[n:], int64(id)*fs.BlockSize+int64(n))
		if err != nil {
			panic(fmt.Sprintf("hostdisk: pwrite block %d: %v", id, err))
		}
		n += wrote
	}
}

/// Close syncs and closes the backing file.
func (d *HostDisk_t) Close() error {
	if err := d.f.Sync(); err != nil {
		return err
	}
	return d.f.Close()
}
