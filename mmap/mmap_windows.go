//go:build windows

package mmap

import (
	"os"
	"unsafe"

	"golang.org/x/sys/windows"
)

// New maps length bytes of fd starting at offset zero.
func New(fd int, length int) (*Map, error) {
	if length <= 0 {
		return nil, ErrInvalidSize
	}

	handle := windows.Handle(fd)

	maxHigh := uint32(uint64(length) >> 32)
	maxLow := uint32(length)
	mapping, err := windows.CreateFileMapping(handle, nil, windows.PAGE_READONLY, maxHigh, maxLow, nil)
	if err != nil {
		return nil, &Error{Op: "CreateFileMapping", Err: err}
	}

	addr, err := windows.MapViewOfFile(mapping, windows.FILE_MAP_READ, 0, 0, uintptr(length))
	if err != nil {
		windows.CloseHandle(mapping)
		return nil, &Error{Op: "MapViewOfFile", Err: err}
	}

	return &Map{
		data:    unsafe.Slice((*byte)(unsafe.Pointer(addr)), length),
		fd:      fd,
		size:    int64(length),
		handle:  uintptr(handle),
		mapping: uintptr(mapping),
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

// Remap grows or shrinks the mapping to newSize bytes. Windows has no
// mremap, so the view and mapping object are recreated.
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

	if err := m.unmap(); err != nil {
		return err
	}

	nm, err := New(m.fd, int(newSize))
	if err != nil {
		return err
	}
	*m = *nm
	return nil
}

// AdviseRandom is a no-op on Windows.
func (m *Map) AdviseRandom() error { return nil }

// AdviseWillNeed is a no-op on Windows.
func (m *Map) AdviseWillNeed() error { return nil }

func (m *Map) unmap() error {
	if err := windows.UnmapViewOfFile(uintptr(unsafe.Pointer(&m.data[0]))); err != nil {
		return &Error{Op: "UnmapViewOfFile", Err: err}
	}
	m.data = nil
	if m.mapping != 0 {
		if err := windows.CloseHandle(windows.Handle(m.mapping)); err != nil {
			return &Error{Op: "CloseHandle", Err: err}
		}
		m.mapping = 0
	}
	return nil
}

// Close unmaps the region. Closing an already closed Map is a no-op.
func (m *Map) Close() error {
	if m.data == nil {
		return nil
	}
	if err := m.unmap(); err != nil {
		return err
	}
	m.size = 0
	return nil
}
