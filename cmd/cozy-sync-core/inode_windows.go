//go:build windows

package main

import "os"

// inodeOf has no equivalent on Windows; a real watcher would populate
// FsEvent.Stats.FileID instead, via pathid.WindowsFileID.
func inodeOf(info os.FileInfo) *uint64 {
	return nil
}
