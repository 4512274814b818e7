package betula

import (
	"bytes"

	"github.com/betuladb/betula/internal/bitset"
)

// fixedHeaderBits is the bit cost of the fixed page prefix charged before
// the per-entry budget: one category byte, the 4-byte child pointer of slot
// 0, and a 4-byte reserved word kept for layout headroom.
const fixedHeaderBits = 72

// MaxEntriesFor returns how many separator entries an internal page of the
// given geometry can hold. Each entry costs its key, one child pointer and
// one occupancy bit.
func MaxEntriesFor(spec KeySpec, pageSize int) int {
	entryBits := (spec.Width+childPointerBytes)*8 + 1
	return (pageSize*8 - fixedHeaderBits) / entryBits
}

// internalLayout fixes the byte offsets of an internal page's regions for
// one (key spec, page size) pair.
type internalLayout struct {
	slotCount int
	keysOff   int
	childOff  int
	used      int // bytes before the zero padding
}

func layoutFor(spec KeySpec, pageSize int) internalLayout {
	slotCount := MaxEntriesFor(spec, pageSize) + 1
	keysOff := 1 + bitset.Bytes(slotCount)
	childOff := keysOff + (slotCount-1)*spec.Width
	return internalLayout{
		slotCount: slotCount,
		keysOff:   keysOff,
		childOff:  childOff,
		used:      childOff + slotCount*childPointerBytes,
	}
}

// checkGeometry validates the (key spec, page size) pair shared by every
// internal page of a file.
func checkGeometry(spec KeySpec, pageSize int) error {
	if !validPageSize(pageSize) {
		return NewErrorf(ErrInvalidPageSize, "%d", pageSize)
	}
	if !spec.Valid() {
		return NewErrorf(ErrBadKeySize, "unusable key spec %s", spec)
	}
	if MaxEntriesFor(spec, pageSize) < 1 {
		return NewErrorf(ErrBadKeySize, "%d-byte keys do not fit a page of %d bytes", spec.Width, pageSize)
	}
	return nil
}

// InternalPage is an internal B+-tree node: separator keys and child page
// pointers packed into one fixed-size buffer with a slot occupancy bitmap.
//
// Memory layout (little-endian), S = slotCount:
//
//	Offset         Size            Field
//	0              1               child category
//	1              ceil(S/8)       slot occupancy bitmap, bit i = slot i
//	1+ceil(S/8)    (S-1)*keyWidth  separator keys, key of slot i at (i-1)*keyWidth
//	childOff       S*4             child page numbers, 4 bytes per slot
//	childOff+S*4   ...             zero padding up to the page size
//
// Slot i >= 1 holds a separator key together with the child immediately
// right of it; slot 0 holds the leftmost child alone. One occupancy bit
// covers a slot's key and child as a pair, so a key is present exactly when
// its right child is. Reading occupied slots in ascending order yields keys
// in ascending order; every mutation preserves that.
//
// Unoccupied slots hold zero bytes both in memory and on disk, which keeps
// Encode canonical. The page carries no locking; caller must ensure at most
// one mutator and no concurrent readers during mutation.
type InternalPage struct {
	id       PageID
	spec     KeySpec
	pageSize int
	lay      internalLayout

	childCat Category
	slots    *bitset.Bitset
	keys     []byte
	children []uint32

	mark dirtyMark
}

// NewInternalPage constructs an empty internal page: every slot vacant, no
// children, no keys.
func NewInternalPage(id PageID, childCat Category, spec KeySpec, pageSize int) (*InternalPage, error) {
	if err := checkGeometry(spec, pageSize); err != nil {
		return nil, err
	}
	if id.Cat != CatInternal {
		return nil, NewErrorf(ErrCategoryMismatch, "identity %s is not an internal page", id)
	}
	if childCat != CatInternal && childCat != CatLeaf {
		return nil, NewErrorf(ErrCategoryMismatch, "child category must be internal or leaf, got %s", childCat)
	}
	lay := layoutFor(spec, pageSize)
	return &InternalPage{
		id:       id,
		spec:     spec,
		pageSize: pageSize,
		lay:      lay,
		childCat: childCat,
		slots:    bitset.New(lay.slotCount),
		keys:     make([]byte, (lay.slotCount-1)*spec.Width),
		children: make([]uint32, lay.slotCount),
	}, nil
}

// DecodeInternalPage reconstructs an internal page from exactly one page of
// bytes. The stored contents of unoccupied slots are ignored; the bitmap
// decides what is real. Returns ErrCorruptPage for a buffer of the wrong
// length, a malformed category byte, or occupancy bits beyond the last slot.
func DecodeInternalPage(id PageID, data []byte, spec KeySpec, pageSize int) (*InternalPage, error) {
	if err := checkGeometry(spec, pageSize); err != nil {
		return nil, err
	}
	if id.Cat != CatInternal {
		return nil, NewErrorf(ErrCategoryMismatch, "identity %s is not an internal page", id)
	}
	if len(data) != pageSize {
		return nil, NewErrorf(ErrCorruptPage, "%s: got %d bytes, want %d", id, len(data), pageSize)
	}
	cat := Category(data[0])
	if cat != CatInternal && cat != CatLeaf {
		return nil, NewErrorf(ErrCorruptPage, "%s: bad child category byte %d", id, data[0])
	}
	lay := layoutFor(spec, pageSize)
	slots := bitset.FromBytes(data[1:], lay.slotCount)
	if slots.Stray() {
		return nil, NewErrorf(ErrCorruptPage, "%s: occupancy bits beyond the last slot", id)
	}
	p := &InternalPage{
		id:       id,
		spec:     spec,
		pageSize: pageSize,
		lay:      lay,
		childCat: cat,
		slots:    slots,
		keys:     make([]byte, (lay.slotCount-1)*spec.Width),
		children: make([]uint32, lay.slotCount),
	}
	w := spec.Width
	for i := 0; i < lay.slotCount; i++ {
		if !slots.Test(i) {
			continue
		}
		if i >= 1 {
			copy(p.keyBytes(i), data[lay.keysOff+(i-1)*w:lay.keysOff+i*w])
		}
		p.children[i] = getUint32LE(data[lay.childOff+i*childPointerBytes:])
	}
	return p, nil
}

// keyBytes returns the in-place key storage of slot i.
// Caller must ensure 1 <= i < slotCount.
func (p *InternalPage) keyBytes(i int) []byte {
	w := p.spec.Width
	return p.keys[(i-1)*w : i*w]
}

func (p *InternalPage) zeroSlot(i int) {
	kb := p.keyBytes(i)
	for j := range kb {
		kb[j] = 0
	}
	p.children[i] = 0
}

func (p *InternalPage) clearSlot(i int) {
	p.slots.Clear(i)
	p.zeroSlot(i)
}

// moveSlot relocates the (key, child) pair of an occupied slot into a vacant
// one, leaving the source vacant and zeroed.
func (p *InternalPage) moveSlot(from, to int) {
	copy(p.keyBytes(to), p.keyBytes(from))
	p.children[to] = p.children[from]
	p.slots.Set(to)
	p.clearSlot(from)
}

// ID returns the page's identity
func (p *InternalPage) ID() PageID { return p.id }

// Dirty returns the dirtying transaction and whether the page is dirty
func (p *InternalPage) Dirty() (TxnID, bool) { return p.mark.dirtyOwner() }

// MarkDirty records tid as the dirtying transaction
func (p *InternalPage) MarkDirty(tid TxnID) { p.mark.markDirty(tid) }

// MarkClean resets the dirty mark
func (p *InternalPage) MarkClean() { p.mark.markClean() }

// ChildCategory returns the category of every child this page points at
func (p *InternalPage) ChildCategory() Category { return p.childCat }

// KeySpec returns the key spec the page was built with
func (p *InternalPage) KeySpec() KeySpec { return p.spec }

// PageSize returns the page's serialized size in bytes
func (p *InternalPage) PageSize() int { return p.pageSize }

// MaxEntries returns how many separator entries the page can hold
func (p *InternalPage) MaxEntries() int { return p.lay.slotCount - 1 }

// SlotCount returns the number of child slots, MaxEntries()+1
func (p *InternalPage) SlotCount() int { return p.lay.slotCount }

// NumEntries returns the number of occupied key slots
func (p *InternalPage) NumEntries() int {
	n := p.slots.Count()
	if p.slots.Test(0) {
		n--
	}
	return n
}

// NumEmptySlots returns how many more entries fit, MaxEntries()-NumEntries()
func (p *InternalPage) NumEmptySlots() int {
	return p.MaxEntries() - p.NumEntries()
}

// IsSlotUsed returns bit i of the occupancy bitmap
func (p *InternalPage) IsSlotUsed(i int) bool { return p.slots.Test(i) }

// AppendEncode appends the page's serialized form, exactly PageSize() bytes,
// to dst. Unoccupied slots serialize as zeros, so two pages holding the same
// entries encode identically.
func (p *InternalPage) AppendEncode(dst []byte) []byte {
	start := len(dst)
	dst = append(dst, byte(p.childCat))
	dst = p.slots.AppendBytes(dst)
	dst = append(dst, p.keys...)
	var w [childPointerBytes]byte
	for _, c := range p.children {
		putUint32LE(w[:], c)
		dst = append(dst, w[:]...)
	}
	for len(dst)-start < p.pageSize {
		dst = append(dst, 0)
	}
	return dst
}

// Encode returns the page's serialized form in a fresh buffer
func (p *InternalPage) Encode() []byte {
	return p.AppendEncode(make([]byte, 0, p.pageSize))
}

// checkChild verifies a child reference is storable on this page
func (p *InternalPage) checkChild(c PageID) error {
	if c.Cat != p.childCat {
		return NewErrorf(ErrCategoryMismatch, "child %s on a page storing %s children", c, p.childCat)
	}
	if c.Table != p.id.Table {
		return NewErrorf(ErrCategoryMismatch, "child from table %d on a page of table %d", c.Table, p.id.Table)
	}
	return nil
}

// InsertEntry places e on the page, keeping slot order aligned with key
// order. The entry's left child must already be on the page as the child
// immediately left of the insertion point; equal keys insert before their
// equals. On success e's location is set to the slot holding its key and
// right child, and the page is dirty under tid.
func (p *InternalPage) InsertEntry(tid TxnID, e *Entry) error {
	if err := p.spec.Validate(e.Key); err != nil {
		return err
	}
	if err := p.checkChild(e.Left); err != nil {
		return err
	}
	if err := p.checkChild(e.Right); err != nil {
		return err
	}
	if p.NumEmptySlots() == 0 {
		return NewErrorf(ErrPageFull, "%s holds %d entries", p.id, p.NumEntries())
	}

	// first entry: the left child takes slot 0, the key and right child
	// take slot 1
	if p.NumEntries() == 0 {
		p.children[0] = e.Left.PageNo
		p.children[1] = e.Right.PageNo
		copy(p.keyBytes(1), e.Key)
		p.slots.Set(0)
		p.slots.Set(1)
		e.setLocation(SlotRef{Page: p.id, Slot: 1})
		p.mark.markDirty(tid)
		return nil
	}

	// prev is the last occupied slot whose key is smaller than e's; slot 0
	// acts as the lower bound
	prev := 0
	for i := 1; i < p.lay.slotCount; i++ {
		if !p.slots.Test(i) {
			continue
		}
		if p.spec.Compare(p.keyBytes(i), e.Key) >= 0 {
			break
		}
		prev = i
	}
	if p.children[prev] != e.Left.PageNo {
		return NewErrorf(ErrDisjointChain,
			"left child %d does not continue child %d at slot %d of %s",
			e.Left.PageNo, p.children[prev], prev, p.id)
	}

	// open a gap next to prev, shifting toward the nearer vacant slot and
	// breaking ties to the left
	var goodSlot int
	le, leOK := p.slots.PrevZero(prev)
	re, reOK := p.slots.NextZero(prev + 1)
	if leOK && (!reOK || prev-le <= re-prev-1) {
		for i := le; i < prev; i++ {
			p.moveSlot(i+1, i)
		}
		goodSlot = prev
	} else {
		for i := re; i > prev+1; i-- {
			p.moveSlot(i-1, i)
		}
		goodSlot = prev + 1
	}

	p.slots.Set(goodSlot)
	copy(p.keyBytes(goodSlot), e.Key)
	p.children[goodSlot] = e.Right.PageNo
	e.setLocation(SlotRef{Page: p.id, Slot: goodSlot})
	p.mark.markDirty(tid)
	return nil
}

// MoveEntry relocates the key and right child occupying slot from into the
// vacant slot to. Sortedness is the caller's responsibility; the tree layer
// uses this while merging and redistributing nodes.
func (p *InternalPage) MoveEntry(tid TxnID, from, to int) error {
	if from < 1 || from >= p.lay.slotCount || to < 1 || to >= p.lay.slotCount {
		return NewErrorf(ErrInvalidSlot, "move %d -> %d outside slots 1..%d of %s", from, to, p.lay.slotCount-1, p.id)
	}
	if !p.slots.Test(from) {
		return NewErrorf(ErrInvalidSlot, "move from vacant slot %d of %s", from, p.id)
	}
	if p.slots.Test(to) {
		return NewErrorf(ErrInvalidSlot, "move to occupied slot %d of %s", to, p.id)
	}
	p.moveSlot(from, to)
	p.mark.markDirty(tid)
	return nil
}

// locateSlot resolves e's location to an occupied slot of this page
func (p *InternalPage) locateSlot(e *Entry) (int, error) {
	loc, ok := e.Location()
	if !ok {
		return 0, NewErrorf(ErrNoSuchEntry, "entry is not attached to any page")
	}
	if loc.Page != p.id {
		return 0, NewErrorf(ErrNoSuchEntry, "entry attached to %s, not %s", loc.Page, p.id)
	}
	if loc.Slot < 1 || loc.Slot >= p.lay.slotCount || !p.slots.Test(loc.Slot) {
		return 0, NewErrorf(ErrNoSuchEntry, "slot %d of %s is vacant", loc.Slot, p.id)
	}
	return loc.Slot, nil
}

// matchEntry is locateSlot plus a content check: the stored key and both
// reconstructed children must equal e's.
func (p *InternalPage) matchEntry(e *Entry) (int, error) {
	slot, err := p.locateSlot(e)
	if err != nil {
		return 0, err
	}
	j, _ := p.slots.PrevOne(slot - 1)
	if !bytes.Equal(p.keyBytes(slot), e.Key) ||
		p.childIDAt(slot) != e.Right ||
		p.childIDAt(j) != e.Left {
		return 0, NewErrorf(ErrNoSuchEntry, "entry does not match slot %d of %s", slot, p.id)
	}
	return slot, nil
}

// DeleteKeyAndRightChild removes e's key and right child from the page; the
// left child stays, adjacent to whatever follows. e must match the page's
// stored state at its location. On success e is detached.
func (p *InternalPage) DeleteKeyAndRightChild(tid TxnID, e *Entry) error {
	slot, err := p.matchEntry(e)
	if err != nil {
		return err
	}
	p.clearSlot(slot)
	e.clearLocation()
	p.mark.markDirty(tid)
	return nil
}

// DeleteKeyAndLeftChild removes e's key and left child from the page; the
// right child survives by taking over the slot the left child held. e must
// match the page's stored state at its location. On success e is detached.
func (p *InternalPage) DeleteKeyAndLeftChild(tid TxnID, e *Entry) error {
	slot, err := p.matchEntry(e)
	if err != nil {
		return err
	}
	j, _ := p.slots.PrevOne(slot - 1)
	p.children[j] = p.children[slot]
	p.clearSlot(slot)
	e.clearLocation()
	p.mark.markDirty(tid)
	return nil
}

// UpdateEntry overwrites the key and both children at e's location. The new
// key must still sit between the keys of the neighboring occupied slots.
func (p *InternalPage) UpdateEntry(tid TxnID, e *Entry) error {
	slot, err := p.locateSlot(e)
	if err != nil {
		return err
	}
	if err := p.spec.Validate(e.Key); err != nil {
		return err
	}
	if err := p.checkChild(e.Left); err != nil {
		return err
	}
	if err := p.checkChild(e.Right); err != nil {
		return err
	}
	if up, ok := p.slots.NextOne(slot + 1); ok && p.spec.Compare(p.keyBytes(up), e.Key) < 0 {
		return NewErrorf(ErrDisjointChain, "updated key overtakes the key above slot %d of %s", slot, p.id)
	}
	j, _ := p.slots.PrevOne(slot - 1)
	if j > 0 && p.spec.Compare(p.keyBytes(j), e.Key) > 0 {
		return NewErrorf(ErrDisjointChain, "updated key falls behind the key below slot %d of %s", slot, p.id)
	}
	p.children[j] = e.Left.PageNo
	p.children[slot] = e.Right.PageNo
	copy(p.keyBytes(slot), e.Key)
	p.mark.markDirty(tid)
	return nil
}

// slotView implementation; see iterator.go

func (p *InternalPage) pageID() PageID { return p.id }

func (p *InternalPage) numSlots() int { return p.lay.slotCount }

func (p *InternalPage) slotUsed(i int) bool { return p.slots.Test(i) }

// keyAt returns a copy of the key in slot i.
// Caller must ensure 1 <= i < slotCount.
func (p *InternalPage) keyAt(i int) []byte {
	k := make([]byte, p.spec.Width)
	copy(k, p.keyBytes(i))
	return k
}

// childIDAt returns the child reference stored in slot i.
// Caller must ensure 0 <= i < slotCount.
func (p *InternalPage) childIDAt(i int) PageID {
	return PageID{Table: p.id.Table, PageNo: p.children[i], Cat: p.childCat}
}
