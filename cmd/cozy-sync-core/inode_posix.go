//go:build !windows

package main

import (
	"os"
	"syscall"
)

// inodeOf extracts the POSIX inode number backing a scanned file, when the
// platform's os.FileInfo exposes one.
func inodeOf(info os.FileInfo) *uint64 {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return nil
	}
	ino := uint64(stat.Ino)
	return &ino
}
