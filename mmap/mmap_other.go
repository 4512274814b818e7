//go:build unix && !linux

package mmap

import "errors"

// tryMremap always fails off Linux so Remap takes the
// unmap-and-map fallback.
func (m *Map) tryMremap(newSize int) ([]byte, error) {
	return nil, errors.New("mremap unsupported")
}
