//go:build windows

package pathid

import (
	"os"

	"golang.org/x/sys/windows"
)

// WindowsFileID extracts the volume-relative file identifier Windows
// reports for an open file, the NTFS analogue of a POSIX inode. An
// EventSource implementation on Windows uses this to populate
// FsEvent.Stats.FileID, since Windows doesn't expose a stable inode number
// the way POSIX filesystems do.
func WindowsFileID(f *os.File) (uint64, error) {
	var info windows.ByHandleFileInformation
	if err := windows.GetFileInformationByHandle(windows.Handle(f.Fd()), &info); err != nil {
		return 0, err
	}
	return uint64(info.FileIndexHigh)<<32 | uint64(info.FileIndexLow), nil
}
