// Package bitset implements the word-based slot bitmaps shared by the page
// layouts.
package bitset

import "math/bits"

// Bitset tracks n slots in uint64 words. Bits at index >= n stay zero, so
// Count and the byte serialization see only real slots; the one exception is
// a Bitset freshly loaded from untrusted bytes, which callers screen with
// Stray before use.
type Bitset struct {
	words []uint64
	n     int
}

// Bytes returns the serialized size of an n-slot bitset: one bit per slot,
// rounded up to whole bytes.
func Bytes(n int) int {
	return (n + 7) / 8
}

// New creates an all-zero bitset of n slots.
func New(n int) *Bitset {
	return &Bitset{
		words: make([]uint64, (n+63)/64),
		n:     n,
	}
}

// FromBytes loads an n-slot bitset from its serialized form: little-endian
// bytes, LSB-first within each byte, so bit i of the bitset is bit i%8 of
// byte i/8. Caller must ensure len(b) >= Bytes(n).
func FromBytes(b []byte, n int) *Bitset {
	s := New(n)
	for i := 0; i < Bytes(n); i++ {
		s.words[i>>3] |= uint64(b[i]) << uint(8*(i&7))
	}
	return s
}

// AppendBytes appends the serialized form (Bytes(Len()) bytes) to dst.
func (s *Bitset) AppendBytes(dst []byte) []byte {
	for i := 0; i < Bytes(s.n); i++ {
		dst = append(dst, byte(s.words[i>>3]>>uint(8*(i&7))))
	}
	return dst
}

// Len returns the number of slots.
func (s *Bitset) Len() int { return s.n }

// Test returns true if slot i is set. Out-of-range slots read as zero.
func (s *Bitset) Test(i int) bool {
	if i < 0 || i >= s.n {
		return false
	}
	return s.words[i>>6]&(1<<uint(i&63)) != 0
}

// Set marks slot i. Out-of-range slots are ignored.
func (s *Bitset) Set(i int) {
	if i < 0 || i >= s.n {
		return
	}
	s.words[i>>6] |= 1 << uint(i&63)
}

// Clear unmarks slot i. Out-of-range slots are ignored.
func (s *Bitset) Clear(i int) {
	if i < 0 || i >= s.n {
		return
	}
	s.words[i>>6] &^= 1 << uint(i&63)
}

// SetTo sets slot i to v.
func (s *Bitset) SetTo(i int, v bool) {
	if v {
		s.Set(i)
	} else {
		s.Clear(i)
	}
}

// SetAll marks every slot, leaving the tail bits of the last word zero.
func (s *Bitset) SetAll() {
	for i := range s.words {
		s.words[i] = ^uint64(0)
	}
	if tail := uint(s.n & 63); tail != 0 {
		s.words[len(s.words)-1] &= (1 << tail) - 1
	}
}

// ClearAll unmarks every slot.
func (s *Bitset) ClearAll() {
	for i := range s.words {
		s.words[i] = 0
	}
}

// Count returns the number of set slots.
func (s *Bitset) Count() int {
	var count int
	for _, word := range s.words {
		count += bits.OnesCount64(word)
	}
	return count
}

// Stray returns true if any bit beyond the last slot is set. Serialized
// bitsets pad the final byte with zeros; a stray bit means the bytes did not
// come from AppendBytes.
func (s *Bitset) Stray() bool {
	if len(s.words) == 0 {
		return false
	}
	tail := uint(s.n & 63)
	if tail == 0 {
		return false
	}
	return s.words[len(s.words)-1]&^((1<<tail)-1) != 0
}

// NextZero returns the first clear slot at index >= from.
func (s *Bitset) NextZero(from int) (int, bool) {
	if from < 0 {
		from = 0
	}
	for i := from; i < s.n; {
		w := ^s.words[i>>6] >> uint(i&63)
		if w != 0 {
			j := i + bits.TrailingZeros64(w)
			if j < s.n {
				return j, true
			}
			return 0, false
		}
		i = ((i >> 6) + 1) << 6
	}
	return 0, false
}

// NextOne returns the first set slot at index >= from.
func (s *Bitset) NextOne(from int) (int, bool) {
	if from < 0 {
		from = 0
	}
	for i := from; i < s.n; {
		w := s.words[i>>6] >> uint(i&63)
		if w != 0 {
			j := i + bits.TrailingZeros64(w)
			if j < s.n {
				return j, true
			}
			return 0, false
		}
		i = ((i >> 6) + 1) << 6
	}
	return 0, false
}

// PrevZero returns the last clear slot at index <= from.
func (s *Bitset) PrevZero(from int) (int, bool) {
	if from >= s.n {
		from = s.n - 1
	}
	for i := from; i >= 0; {
		w := ^s.words[i>>6] << uint(63-(i&63))
		if w != 0 {
			return i - bits.LeadingZeros64(w), true
		}
		i = ((i >> 6) << 6) - 1
	}
	return 0, false
}

// PrevOne returns the last set slot at index <= from.
func (s *Bitset) PrevOne(from int) (int, bool) {
	if from >= s.n {
		from = s.n - 1
	}
	for i := from; i >= 0; {
		w := s.words[i>>6] << uint(63-(i&63))
		if w != 0 {
			return i - bits.LeadingZeros64(w), true
		}
		i = ((i >> 6) << 6) - 1
	}
	return 0, false
}
