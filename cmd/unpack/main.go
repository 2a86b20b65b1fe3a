// Command unpack copies every file in an EasyFS image's root directory out
// to a host directory (§6.4), the inverse of pack — useful for inspecting
// what a test scenario's image actually contains without booting the
// kernel.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"rvos/fs"
	"rvos/internal/hostdisk"
	"rvos/internal/klog"
	"rvos/stat"
)

func main() {
	var (
		totalBlocks int
		logLevel    string
	)

	root := &cobra.Command{
		Use:   "unpack <image-path> <host-dir>",
		Short: "Copy every file in an EasyFS image's root directory to a host directory",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			klog.SetLevel(logLevel)
			imagePath := args[0]
			hostDir := args[1]

			disk, err := hostdisk.Open(imagePath, totalBlocks)
			if err != nil {
				return fmt.Errorf("unpack: %w", err)
			}
			defer disk.Close()

			easyfs, rootDir, ferr := fs.OpenRootDir(disk, cacheCapacity(totalBlocks))
			if ferr != 0 {
				return fmt.Errorf("unpack: open %s: %v", imagePath, ferr)
			}
			defer easyfs.Sync()
			defer rootDir.Close()

			hostFs := afero.NewOsFs()
			if err := hostFs.MkdirAll(hostDir, 0755); err != nil {
				return fmt.Errorf("unpack: mkdir %s: %w", hostDir, err)
			}

			for _, name := range rootDir.List() {
				if err := unpackOne(hostFs, rootDir, hostDir, name); err != nil {
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

func unpackOne(hostFs afero.Fs, dir *fs.Directory_t, hostDir, name string) error {
	ino, ty, ok := dir.Open(name)
	if !ok {
		return fmt.Errorf("unpack: %s vanished mid-listing", name)
	}
	defer ino.Close()
	if ty != stat.TypeFile {
		return nil
	}

	file := fs.NewFile(ino)
	data := make([]byte, file.Size())
	file.ReadAt(0, data)

	dst, err := hostFs.Create(filepath.Join(hostDir, name))
	if err != nil {
		return fmt.Errorf("unpack: create %s: %w", name, err)
	}
	defer dst.Close()
	if _, err := dst.Write(data); err != nil {
		return fmt.Errorf("unpack: write %s: %w", name, err)
	}

	klog.Log.Infof("unpack: %s -> %s (%d bytes)", name, hostDir, len(data))
	return nil
}

func cacheCapacity(totalBlocks int) int {
	if totalBlocks < 64 {
		return totalBlocks
	}
	return 64
}
