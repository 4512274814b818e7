package betula

import "testing"

func TestKeyCompare(t *testing.T) {
	s := Int64KeySpec()
	if s.Compare(Int64Key(-5), Int64Key(3)) >= 0 {
		t.Error("-5 should order before 3 for signed keys")
	}
	if s.Compare(Int64Key(7), Int64Key(7)) != 0 {
		t.Error("equal signed keys should compare equal")
	}
	if s.Compare(Int64Key(1<<40), Int64Key(-1)) <= 0 {
		t.Error("large positive should order after -1 for signed keys")
	}

	u := Uint64KeySpec()
	if u.Compare(Uint64Key(0xFFFFFFFFFFFFFFFF), Uint64Key(1)) <= 0 {
		t.Error("max uint64 should order after 1 for unsigned keys")
	}

	b := BytesKeySpec(3)
	if b.Compare([]byte{1, 2, 3}, []byte{1, 3, 0}) >= 0 {
		t.Error("bytewise ordering broken")
	}
}

func TestKeyEncoding(t *testing.T) {
	for _, v := range []int64{0, 1, -1, 1 << 62, -(1 << 62)} {
		if got := ParseInt64Key(Int64Key(v)); got != v {
			t.Errorf("ParseInt64Key(Int64Key(%d)) = %d", v, got)
		}
	}
	if got := ParseUint64Key(Uint64Key(0xDEADBEEF)); got != 0xDEADBEEF {
		t.Errorf("ParseUint64Key round trip: got %x", got)
	}

	// keys are little-endian on the wire
	k := Int64Key(0x0102030405060708)
	if k[0] != 0x08 || k[7] != 0x01 {
		t.Errorf("Int64Key byte order: got % x", k)
	}
}

func TestKeySpecValidate(t *testing.T) {
	s := Int64KeySpec()
	if err := s.Validate(make([]byte, 8)); err != nil {
		t.Errorf("8-byte key rejected: %v", err)
	}
	if err := s.Validate(make([]byte, 7)); Code(err) != ErrBadKeySize {
		t.Errorf("short key: got %v, want ErrBadKeySize", err)
	}
	if err := s.Validate(nil); Code(err) != ErrBadKeySize {
		t.Errorf("nil key: got %v, want ErrBadKeySize", err)
	}
}

func TestKeySpecValid(t *testing.T) {
	cases := []struct {
		spec KeySpec
		want bool
	}{
		{Int64KeySpec(), true},
		{Uint64KeySpec(), true},
		{BytesKeySpec(16), true},
		{KeySpec{Kind: KeyInt64, Width: 4}, false},
		{KeySpec{Kind: KeyBytes, Width: 0}, false},
		{KeySpec{Kind: KeyKind(9), Width: 8}, false},
	}
	for _, c := range cases {
		if got := c.spec.Valid(); got != c.want {
			t.Errorf("%v.Valid() = %v, want %v", c.spec, got, c.want)
		}
	}
}
