package checksum

import (
	"errors"
	"syscall"
)

// isBusy classifies an I/O error as a transient "file busy" condition, i.e.
// the file is temporarily locked or held open for exclusive access by
// another writer. It unwraps the error to a syscall.Errno with errors.As and
// matches POSIX's ETXTBSY/EBUSY only; a Windows sharing violation is not
// classified as busy.
func isBusy(err error) bool {
	var errno syscall.Errno
	if !errors.As(err, &errno) {
		return false
	}
	switch errno {
	case syscall.EBUSY, syscall.ETXTBSY:
		return true
	default:
		return false
	}
}
