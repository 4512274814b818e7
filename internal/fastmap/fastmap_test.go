package fastmap

import (
	"math/rand"
	"testing"
)

func TestUint32Map(t *testing.T) {
	var m Uint32Map[string]

	if _, ok := m.Get(1); ok {
		t.Error("empty map reported a hit")
	}

	m.Set(1, "one")
	m.Set(2, "two")

	if v, ok := m.Get(1); !ok || v != "one" {
		t.Errorf("Get(1): got %q, %v", v, ok)
	}
	if v, ok := m.Get(2); !ok || v != "two" {
		t.Errorf("Get(2): got %q, %v", v, ok)
	}
	if _, ok := m.Get(3); ok {
		t.Error("Get(3) reported a hit")
	}

	m.Set(1, "uno")
	if v, _ := m.Get(1); v != "uno" {
		t.Errorf("update: got %q, want %q", v, "uno")
	}

	if m.Len() != 2 {
		t.Errorf("Len: got %d, want 2", m.Len())
	}

	m.Clear()
	if m.Len() != 0 {
		t.Errorf("Len after Clear: got %d", m.Len())
	}
	if _, ok := m.Get(1); ok {
		t.Error("Get after Clear reported a hit")
	}
}

// Enough entries to force several growth cycles.
func TestUint32MapGrowth(t *testing.T) {
	var m Uint32Map[int]

	n := 10000
	for i := 0; i < n; i++ {
		m.Set(uint32(i), i*10)
	}

	if m.Len() != n {
		t.Errorf("Len: got %d, want %d", m.Len(), n)
	}
	for i := 0; i < n; i++ {
		if v, ok := m.Get(uint32(i)); !ok || v != i*10 {
			t.Fatalf("Get(%d): got %d, %v", i, v, ok)
		}
	}
}

// Key 0 must be distinguishable from an empty bucket.
func TestUint32MapZeroKey(t *testing.T) {
	var m Uint32Map[int]

	m.Set(0, 999)
	if v, ok := m.Get(0); !ok || v != 999 {
		t.Errorf("Get(0): got %d, %v", v, ok)
	}
	if m.Len() != 1 {
		t.Errorf("Len: got %d, want 1", m.Len())
	}
}

func TestUint32MapForEach(t *testing.T) {
	var m Uint32Map[int]
	for i := 0; i < 100; i++ {
		m.Set(uint32(i), i)
	}

	seen := make(map[uint32]int)
	m.ForEach(func(k uint32, v int) {
		seen[k] = v
	})
	if len(seen) != 100 {
		t.Fatalf("ForEach visited %d entries, want 100", len(seen))
	}
	for k, v := range seen {
		if int(k) != v {
			t.Errorf("key %d carried value %d", k, v)
		}
	}
}

func BenchmarkFastMapSeqWrite(b *testing.B) {
	var m Uint32Map[int]

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m.Set(uint32(i), i)
	}
}

func BenchmarkGoMapSeqWrite(b *testing.B) {
	m := make(map[uint32]int)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m[uint32(i)] = i
	}
}

func BenchmarkFastMapRandRead(b *testing.B) {
	var m Uint32Map[int]
	keys := make([]uint32, 100000)
	for i := range keys {
		keys[i] = rand.Uint32()
		m.Set(keys[i], i)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m.Get(keys[i%100000])
	}
}

func BenchmarkGoMapRandRead(b *testing.B) {
	m := make(map[uint32]int)
	keys := make([]uint32, 100000)
	for i := range keys {
		keys[i] = rand.Uint32()
		m[keys[i]] = i
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = m[keys[i%100000]]
	}
}

func BenchmarkFastMapMissRead(b *testing.B) {
	var m Uint32Map[int]
	for i := 0; i < 100000; i++ {
		m.Set(uint32(i), i)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m.Get(uint32(i + 1000000))
	}
}

func BenchmarkGoMapMissRead(b *testing.B) {
	m := make(map[uint32]int)
	for i := 0; i < 100000; i++ {
		m[uint32(i)] = i
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = m[uint32(i+1000000)]
	}
}
