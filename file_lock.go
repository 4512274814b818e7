//go:build unix

package betula

import (
	"os"

	"golang.org/x/sys/unix"
)

// lockIndexFile takes a non-blocking advisory flock on the file:
// exclusive for writers, shared for readers.
func lockIndexFile(f *os.File, exclusive bool) error {
	how := unix.LOCK_SH
	if exclusive {
		how = unix.LOCK_EX
	}
	if err := unix.Flock(int(f.Fd()), how|unix.LOCK_NB); err != nil {
		if err == unix.EWOULDBLOCK {
			return NewErrorf(ErrProblem, "index file %q locked by another process", f.Name())
		}
		return WrapError(ErrProblem, err)
	}
	return nil
}

func unlockIndexFile(f *os.File) error {
	if err := unix.Flock(int(f.Fd()), unix.LOCK_UN); err != nil {
		return WrapError(ErrProblem, err)
	}
	return nil
}
