//go:build unix

package mmap

import (
	"os"

	"golang.org/x/sys/unix"
)

// New maps length bytes of fd starting at offset zero.
func New(fd int, length int) (*Map, error) {
	if length <= 0 {
		return nil, ErrInvalidSize
	}

	data, err := unix.Mmap(fd, 0, length, unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, &Error{Op: "mmap", Err: err}
	}

	return &Map{
		data: data,
		fd:   fd,
		size: int64(length),
	}, nil
}

// MapFile opens path read-only and maps its full contents.
func MapFile(path string) (*Map, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &Error{Op: "open", Err: err}
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, &Error{Op: "stat", Err: err}
	}
	if fi.Size() == 0 {
		return nil, ErrEmptyFile
	}

	return New(int(f.Fd()), int(fi.Size()))
}

// Remap grows or shrinks the mapping to newSize bytes. The caller must
// extend the underlying file first. The old Data slice is invalid after
// a successful Remap.
func (m *Map) Remap(newSize int64) error {
	if m.data == nil {
		return ErrNotMapped
	}
	if newSize <= 0 {
		return ErrInvalidSize
	}
	if newSize == m.size {
		return nil
	}

	if data, err := m.tryMremap(int(newSize)); err == nil {
		m.data = data
		m.size = newSize
		return nil
	}

	// Portable fallback: drop the mapping and map the new length.
	if err := unix.Munmap(m.data); err != nil {
		return &Error{Op: "munmap", Err: err}
	}
	m.data = nil

	data, err := unix.Mmap(m.fd, 0, int(newSize), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return &Error{Op: "mmap", Err: err}
	}
	m.data = data
	m.size = newSize
	return nil
}

// AdviseRandom hints that pages will be touched in random order.
func (m *Map) AdviseRandom() error {
	return m.advise(unix.MADV_RANDOM)
}

// AdviseWillNeed hints that the mapping should be read ahead.
func (m *Map) AdviseWillNeed() error {
	return m.advise(unix.MADV_WILLNEED)
}

func (m *Map) advise(advice int) error {
	if m.data == nil {
		return ErrNotMapped
	}
	if err := unix.Madvise(m.data, advice); err != nil {
		return &Error{Op: "madvise", Err: err}
	}
	return nil
}

// Close unmaps the region. Closing an already closed Map is a no-op.
func (m *Map) Close() error {
	if m.data == nil {
		return nil
	}
	if err := unix.Munmap(m.data); err != nil {
		return &Error{Op: "munmap", Err: err}
	}
	m.data = nil
	m.size = 0
	return nil
}
