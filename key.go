package betula

import (
	"bytes"
	"fmt"
)

// KeyKind selects the ordering applied to key bytes
type KeyKind uint8

const (
	// KeyInt64 orders 8-byte keys as little-endian signed integers
	KeyInt64 KeyKind = iota

	// KeyUint64 orders 8-byte keys as little-endian unsigned integers
	KeyUint64

	// KeyBytes orders keys lexicographically by byte value
	KeyBytes
)

func (k KeyKind) String() string {
	switch k {
	case KeyInt64:
		return "int64"
	case KeyUint64:
		return "uint64"
	case KeyBytes:
		return "bytes"
	default:
		return fmt.Sprintf("keykind(%d)", uint8(k))
	}
}

// KeySpec describes the fixed-width key field an index is built over. The
// catalog layer above supplies it once per file; every page of the file
// shares it. Keys travel as raw little-endian byte slices of exactly Width
// bytes.
type KeySpec struct {
	Kind  KeyKind
	Width int
}

// Int64KeySpec returns the spec for 8-byte signed integer keys
func Int64KeySpec() KeySpec { return KeySpec{Kind: KeyInt64, Width: 8} }

// Uint64KeySpec returns the spec for 8-byte unsigned integer keys
func Uint64KeySpec() KeySpec { return KeySpec{Kind: KeyUint64, Width: 8} }

// BytesKeySpec returns the spec for fixed-width bytewise-ordered keys
func BytesKeySpec(width int) KeySpec { return KeySpec{Kind: KeyBytes, Width: width} }

// Valid reports whether the spec is usable: a positive width, and exactly 8
// bytes for the integer kinds
func (s KeySpec) Valid() bool {
	if s.Width <= 0 {
		return false
	}
	switch s.Kind {
	case KeyInt64, KeyUint64:
		return s.Width == 8
	case KeyBytes:
		return true
	default:
		return false
	}
}

// Size returns the stored width of a key in bytes
func (s KeySpec) Size() int { return s.Width }

// Validate checks that k has exactly the spec's width
func (s KeySpec) Validate(k []byte) error {
	if len(k) != s.Width {
		return NewErrorf(ErrBadKeySize, "got %d bytes, want %d", len(k), s.Width)
	}
	return nil
}

// Compare orders a against b under the spec's kind, returning -1, 0 or +1.
// Caller must ensure both slices have the spec's width.
func (s KeySpec) Compare(a, b []byte) int {
	switch s.Kind {
	case KeyInt64:
		av, bv := int64(getUint64LE(a)), int64(getUint64LE(b))
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		}
		return 0
	case KeyUint64:
		av, bv := getUint64LE(a), getUint64LE(b)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		}
		return 0
	default:
		return bytes.Compare(a, b)
	}
}

func (s KeySpec) String() string {
	return fmt.Sprintf("%s[%d]", s.Kind, s.Width)
}

// Int64Key encodes v as an 8-byte little-endian key
func Int64Key(v int64) []byte {
	k := make([]byte, 8)
	putUint64LE(k, uint64(v))
	return k
}

// ParseInt64Key decodes an 8-byte little-endian key.
// Caller must ensure len(k) >= 8.
func ParseInt64Key(k []byte) int64 {
	return int64(getUint64LE(k))
}

// Uint64Key encodes v as an 8-byte little-endian key
func Uint64Key(v uint64) []byte {
	k := make([]byte, 8)
	putUint64LE(k, v)
	return k
}

// ParseUint64Key decodes an 8-byte little-endian key.
// Caller must ensure len(k) >= 8.
func ParseUint64Key(k []byte) uint64 {
	return getUint64LE(k)
}
