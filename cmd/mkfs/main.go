// Command mkfs formats a fresh EasyFS image on a host file (§6.4). It is
// the host-side counterpart to fs.Create: where fs.Create works against
// any fs.BlockDevice_i, this binary wires that up to an actual file via
// internal/hostdisk, and exposes the block-count knobs as flags the way
// biscuit's own mkfs tooling (and gcsfuse's cmd/ binaries) expose
// filesystem-shaping parameters via cobra.
package main

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"rvos/fs"
	"rvos/internal/hostdisk"
	"rvos/internal/klog"
)

func main() {
	var (
		totalBlocks     int
		inodeBitmapBlks int
		dataBitmapBlks  int
		logLevel        string
	)

	root := &cobra.Command{
		Use:   "mkfs <image-path>",
		Short: "Format a fresh EasyFS image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			klog.SetLevel(logLevel)
			path := args[0]

			disk, err := hostdisk.Open(path, totalBlocks)
			if err != nil {
				return fmt.Errorf("mkfs: %w", err)
			}
			defer disk.Close()

			easyfs, _, ferr := fs.Create(disk, totalBlocks, inodeBitmapBlks, dataBitmapBlks)
			if ferr != 0 {
				return fmt.Errorf("mkfs: format %s: %v", path, ferr)
			}
			easyfs.Sync()

			id := uuid.New()
			klog.Log.WithField("volume_id", id.String()).Infof("mkfs: formatted %s (%d blocks)", path, totalBlocks)
			if werr := os.WriteFile(path+".volid", []byte(id.String()+"\n"), 0644); werr != nil {
				klog.Log.Warnf("mkfs: could not write volume id sidecar: %v", werr)
			}
			return nil
		},
	}

	flags := root.Flags()
	flags.IntVar(&totalBlocks, "total-blocks", 8192, "total blocks in the image (§3 total_blocks)")
	flags.IntVar(&inodeBitmapBlks, "inode-bitmap-blocks", 1, "inode bitmap blocks (§3 inode_bitmap_blocks)")
	flags.IntVar(&dataBitmapBlks, "data-bitmap-blocks", 1, "data bitmap blocks (§3 data_bitmap_blocks)")
	flags.StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

