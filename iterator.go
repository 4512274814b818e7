package betula

// slotView is the read-only slot access the iterators run on. It keeps them
// off the page's mutation surface: key and child lookups, occupancy bits,
// nothing else.
type slotView interface {
	pageID() PageID
	numSlots() int
	slotUsed(i int) bool
	keyAt(i int) []byte
	childIDAt(i int) PageID
}

// EntryIterator walks a page's entries in ascending key order, pairing each
// key with the last emitted right child as its left child, so deletion gaps
// never mis-pair the chain. It is a lazy single-pass cursor: obtain a fresh
// one to re-iterate. Any mutation of the page invalidates it.
type EntryIterator struct {
	view      slotView
	pos       int
	prevChild PageID
	live      bool
}

// Iterator returns a forward cursor over the page's entries
func (p *InternalPage) Iterator() *EntryIterator {
	return &EntryIterator{
		view: p,
		pos:  1,
		// slot 0 is the implicit leftmost child, read regardless of its
		// occupancy bit; if vacant the page has no entries at all
		prevChild: p.childIDAt(0),
		live:      p.slotUsed(0),
	}
}

// Next returns the next entry in ascending key order, or false when the
// scan is exhausted. Returned entries are detached copies stamped with the
// slot they came from.
func (it *EntryIterator) Next() (*Entry, bool) {
	if !it.live {
		return nil, false
	}
	for i := it.pos; i < it.view.numSlots(); i++ {
		if !it.view.slotUsed(i) {
			continue
		}
		right := it.view.childIDAt(i)
		e := &Entry{Key: it.view.keyAt(i), Left: it.prevChild, Right: right}
		e.setLocation(SlotRef{Page: it.view.pageID(), Slot: i})
		it.prevChild = right
		it.pos = i + 1
		return e, true
	}
	it.live = false
	return nil, false
}

// ReverseEntryIterator walks a page's entries in descending key order. Like
// the forward cursor it is lazy, single-pass and invalidated by mutation.
type ReverseEntryIterator struct {
	view slotView
	pos  int
}

// ReverseIterator returns a descending cursor over the page's entries
func (p *InternalPage) ReverseIterator() *ReverseEntryIterator {
	return &ReverseEntryIterator{view: p, pos: p.numSlots() - 1}
}

// Next returns the next entry in descending key order, or false when the
// scan is exhausted.
func (it *ReverseEntryIterator) Next() (*Entry, bool) {
	for i := it.pos; i >= 1; i-- {
		if !it.view.slotUsed(i) {
			continue
		}
		// the nearest occupied slot below holds this entry's left child
		j := i - 1
		for j > 0 && !it.view.slotUsed(j) {
			j--
		}
		if !it.view.slotUsed(j) {
			break
		}
		e := &Entry{Key: it.view.keyAt(i), Left: it.view.childIDAt(j), Right: it.view.childIDAt(i)}
		e.setLocation(SlotRef{Page: it.view.pageID(), Slot: i})
		it.pos = i - 1
		return e, true
	}
	it.pos = 0
	return nil, false
}
