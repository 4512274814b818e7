// Package fastmap provides a fast hash map for uint32 keys.
// Uses fibonacci hashing for better distribution of sequential keys, which
// is what page numbers are.
package fastmap

// Uint32Map is a hash map from uint32 to values of type V, using open
// addressing with linear probing. There is no per-key deletion: probe
// chains stay intact until Clear. The zero value is an empty map.
type Uint32Map[V any] struct {
	buckets []bucket[V]
	count   int
	mask    uint32
}

type bucket[V any] struct {
	key   uint32
	value V
	used  bool // key 0 is valid, so occupancy needs its own flag
}

// Fibonacci hash constant: 2^32 / golden ratio
const fibHash32 = 2654435769

func hash(key uint32) uint32 {
	return key * fibHash32
}

// Get returns the value stored under key.
func (m *Uint32Map[V]) Get(key uint32) (V, bool) {
	var zero V
	if len(m.buckets) == 0 {
		return zero, false
	}
	idx := hash(key) & m.mask
	for {
		b := &m.buckets[idx]
		if !b.used {
			return zero, false
		}
		if b.key == key {
			return b.value, true
		}
		idx = (idx + 1) & m.mask
	}
}

// Set stores a key-value pair, replacing any previous value.
func (m *Uint32Map[V]) Set(key uint32, value V) {
	if len(m.buckets) == 0 {
		m.buckets = make([]bucket[V], 16)
		m.mask = 15
	} else if m.count >= len(m.buckets)*3/4 {
		m.grow()
	}

	idx := hash(key) & m.mask
	for {
		b := &m.buckets[idx]
		if !b.used {
			b.key = key
			b.value = value
			b.used = true
			m.count++
			return
		}
		if b.key == key {
			b.value = value
			return
		}
		idx = (idx + 1) & m.mask
	}
}

// grow doubles the table and reinserts every entry.
func (m *Uint32Map[V]) grow() {
	oldBuckets := m.buckets
	newSize := len(oldBuckets) * 2
	m.buckets = make([]bucket[V], newSize)
	m.mask = uint32(newSize - 1)
	m.count = 0

	for i := range oldBuckets {
		if oldBuckets[i].used {
			m.Set(oldBuckets[i].key, oldBuckets[i].value)
		}
	}
}

// ForEach calls fn for every key-value pair, in no particular order.
func (m *Uint32Map[V]) ForEach(fn func(uint32, V)) {
	for i := range m.buckets {
		if m.buckets[i].used {
			fn(m.buckets[i].key, m.buckets[i].value)
		}
	}
}

// Clear removes all entries but keeps the backing array.
func (m *Uint32Map[V]) Clear() {
	clear(m.buckets)
	m.count = 0
}

// Len returns the number of entries.
func (m *Uint32Map[V]) Len() int {
	return m.count
}
