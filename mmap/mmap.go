// Package mmap memory-maps index files for the read path.
//
// Mappings are always read-only: page writes go through pwrite on the
// file descriptor, and readers see them after a Remap or through the
// shared mapping. Map handles file growth via Remap, which uses the
// mremap syscall on Linux and falls back to unmap-and-map elsewhere.
package mmap

import (
	"errors"
	"fmt"
)

// Map is a read-only memory mapping of a file region starting at
// offset zero.
type Map struct {
	data []byte // mapped region
	fd   int    // file descriptor the mapping was created from
	size int64  // current mapped length
	// Windows keeps a mapping object handle alongside the view.
	handle  uintptr
	mapping uintptr
}

// Data returns the mapped bytes. The slice is invalidated by Remap
// and Close.
func (m *Map) Data() []byte {
	return m.data
}

// Size returns the current mapped length in bytes.
func (m *Map) Size() int64 {
	return m.size
}

// Fd returns the file descriptor the mapping was created from.
func (m *Map) Fd() int {
	return m.fd
}

// Error wraps a platform mapping failure with the operation that
// produced it.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("mmap: %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

var (
	// ErrInvalidSize is returned when a mapping length is not positive.
	ErrInvalidSize = errors.New("mmap: invalid size")
	// ErrNotMapped is returned by Remap on a closed mapping.
	ErrNotMapped = errors.New("mmap: not mapped")
	// ErrEmptyFile is returned by MapFile for a zero-length file.
	ErrEmptyFile = errors.New("mmap: empty file")
)
