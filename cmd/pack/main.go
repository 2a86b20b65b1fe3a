// Command pack copies host files into an EasyFS image's root directory
// (§6.4). It only ever writes flat files into the root: EasyFS's directory
// nesting is exercised by the kernel and its tests, not by this host tool,
// so pack deliberately keeps to the single-level case a teaching image
// actually needs (a handful of user program ELF binaries).
package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"rvos/fs"
	"rvos/internal/hostdisk"
	"rvos/internal/klog"
)

func main() {
	var (
		totalBlocks int
		logLevel    string
	)

	root := &cobra.Command{
		Use:   "pack <image-path> <host-file>...",
		Short: "Copy host files into an EasyFS image's root directory",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			klog.SetLevel(logLevel)
			imagePath := args[0]
			hostFiles := args[1:]

			disk, err := hostdisk.Open(imagePath, totalBlocks)
			if err != nil {
				return fmt.Errorf("pack: %w", err)
			}
			defer disk.Close()

			easyfs, rootDir, ferr := fs.OpenRootDir(disk, cacheCapacity(totalBlocks))
			if ferr != 0 {
				return fmt.Errorf("pack: open %s: %v", imagePath, ferr)
			}
			defer easyfs.Sync()
			defer rootDir.Close()

			hostFs := afero.NewOsFs()
			for _, hp := range hostFiles {
				if err := packOne(hostFs, rootDir, hp); err != nil {
					return err
				}
			}
			return nil
		},
	}

	flags := root.Flags()
	flags.IntVar(&totalBlocks, "total-blocks", 8192, "total blocks in the image (must match mkfs)")
	flags.StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func packOne(hostFs afero.Fs, dir *fs.Directory_t, hostPath string) error {
	src, err := hostFs.Open(hostPath)
	if err != nil {
		return fmt.Errorf("pack: open %s: %w", hostPath, err)
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		return fmt.Errorf("pack: read %s: %w", hostPath, err)
	}

	name := filepath.Base(hostPath)
	ino, ferr := dir.CreateFile(name)
	if ferr != 0 {
		return fmt.Errorf("pack: create %s in image: %v", name, ferr)
	}
	defer ino.Close()
	file := fs.NewFile(ino)
	file.WriteAt(0, data)

	klog.Log.Infof("pack: %s -> %s (%d bytes)", hostPath, name, len(data))
	return nil
}

func cacheCapacity(totalBlocks int) int {
	if totalBlocks < 64 {
		return totalBlocks
	}
	return 64
}
