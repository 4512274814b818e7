//go:build windows

package betula

import (
	"os"

	"golang.org/x/sys/windows"
)

// lockIndexFile locks the first byte of the file without blocking:
// exclusive for writers, shared for readers.
func lockIndexFile(f *os.File, exclusive bool) error {
	flags := uint32(windows.LOCKFILE_FAIL_IMMEDIATELY)
	if exclusive {
		flags |= windows.LOCKFILE_EXCLUSIVE_LOCK
	}
	var overlapped windows.Overlapped
	err := windows.LockFileEx(windows.Handle(f.Fd()), flags, 0, 1, 0, &overlapped)
	if err != nil {
		if err == windows.ERROR_LOCK_VIOLATION {
			return NewErrorf(ErrProblem, "index file %q locked by another process", f.Name())
		}
		return WrapError(ErrProblem, err)
	}
	return nil
}

func unlockIndexFile(f *os.File) error {
	var overlapped windows.Overlapped
	if err := windows.UnlockFileEx(windows.Handle(f.Fd()), 0, 1, 0, &overlapped); err != nil {
		return WrapError(ErrProblem, err)
	}
	return nil
}
