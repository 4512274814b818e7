package betula

import "github.com/betuladb/betula/internal/bitset"

// headerChainBytes is the prefix of a header page: two 4-byte chain links
const headerChainBytes = 8

// HeaderSlotsFor returns how many file pages one header page tracks
func HeaderSlotsFor(pageSize int) int {
	return (pageSize - headerChainBytes) * 8
}

// HeaderPage tracks which pages of an index file are allocated. Header
// pages form a linked chain hung off the root pointer page; the k-th header
// page in the chain covers a contiguous run of HeaderSlotsFor(pageSize)
// file pages. A set bit means the page is in use; fresh header pages start
// with every bit set, so a page becomes allocatable only once something has
// explicitly freed it.
//
// Memory layout (little-endian):
//
//	Offset  Size  Field
//	0       4     previous header page number, InvalidPageNo at the head
//	4       4     next header page number, InvalidPageNo at the tail
//	8       P-8   slot bitmap, bit i = i-th covered page in use
type HeaderPage struct {
	id       PageID
	pageSize int
	prev     uint32
	next     uint32
	slots    *bitset.Bitset

	mark dirtyMark
}

// NewHeaderPage constructs a header page with every slot marked used and no
// chain neighbors.
func NewHeaderPage(id PageID, pageSize int) (*HeaderPage, error) {
	if !validPageSize(pageSize) {
		return nil, NewErrorf(ErrInvalidPageSize, "%d", pageSize)
	}
	if id.Cat != CatHeader {
		return nil, NewErrorf(ErrCategoryMismatch, "identity %s is not a header page", id)
	}
	p := &HeaderPage{
		id:       id,
		pageSize: pageSize,
		prev:     InvalidPageNo,
		next:     InvalidPageNo,
		slots:    bitset.New(HeaderSlotsFor(pageSize)),
	}
	p.slots.SetAll()
	return p, nil
}

// DecodeHeaderPage reconstructs a header page from exactly one page of bytes
func DecodeHeaderPage(id PageID, data []byte, pageSize int) (*HeaderPage, error) {
	if !validPageSize(pageSize) {
		return nil, NewErrorf(ErrInvalidPageSize, "%d", pageSize)
	}
	if id.Cat != CatHeader {
		return nil, NewErrorf(ErrCategoryMismatch, "identity %s is not a header page", id)
	}
	if len(data) != pageSize {
		return nil, NewErrorf(ErrCorruptPage, "%s: got %d bytes, want %d", id, len(data), pageSize)
	}
	return &HeaderPage{
		id:       id,
		pageSize: pageSize,
		prev:     getUint32LE(data),
		next:     getUint32LE(data[4:]),
		slots:    bitset.FromBytes(data[headerChainBytes:], HeaderSlotsFor(pageSize)),
	}, nil
}

// ID returns the page's identity
func (p *HeaderPage) ID() PageID { return p.id }

// Dirty returns the dirtying transaction and whether the page is dirty
func (p *HeaderPage) Dirty() (TxnID, bool) { return p.mark.dirtyOwner() }

// MarkDirty records tid as the dirtying transaction
func (p *HeaderPage) MarkDirty(tid TxnID) { p.mark.markDirty(tid) }

// MarkClean resets the dirty mark
func (p *HeaderPage) MarkClean() { p.mark.markClean() }

// NumSlots returns how many file pages this header page covers
func (p *HeaderPage) NumSlots() int { return p.slots.Len() }

// IsSlotUsed returns whether the i-th covered page is allocated
func (p *HeaderPage) IsSlotUsed(i int) bool { return p.slots.Test(i) }

// MarkSlotUsed sets or clears the allocation bit of the i-th covered page
func (p *HeaderPage) MarkSlotUsed(tid TxnID, i int, used bool) error {
	if i < 0 || i >= p.slots.Len() {
		return NewErrorf(ErrInvalidSlot, "slot %d outside 0..%d of %s", i, p.slots.Len()-1, p.id)
	}
	p.slots.SetTo(i, used)
	p.mark.markDirty(tid)
	return nil
}

// FirstEmptySlot returns the lowest free slot, if any
func (p *HeaderPage) FirstEmptySlot() (int, bool) {
	return p.slots.NextZero(0)
}

// PrevHeader returns the previous chain link, if any
func (p *HeaderPage) PrevHeader() (uint32, bool) {
	return p.prev, p.prev != InvalidPageNo
}

// NextHeader returns the next chain link, if any
func (p *HeaderPage) NextHeader() (uint32, bool) {
	return p.next, p.next != InvalidPageNo
}

// SetPrevHeader rewrites the previous chain link
func (p *HeaderPage) SetPrevHeader(tid TxnID, pgno uint32) {
	p.prev = pgno
	p.mark.markDirty(tid)
}

// SetNextHeader rewrites the next chain link
func (p *HeaderPage) SetNextHeader(tid TxnID, pgno uint32) {
	p.next = pgno
	p.mark.markDirty(tid)
}

// AppendEncode appends the page's serialized form, exactly PageSize bytes,
// to dst
func (p *HeaderPage) AppendEncode(dst []byte) []byte {
	var w [4]byte
	putUint32LE(w[:], p.prev)
	dst = append(dst, w[:]...)
	putUint32LE(w[:], p.next)
	dst = append(dst, w[:]...)
	return p.slots.AppendBytes(dst)
}

// Encode returns the page's serialized form in a fresh buffer
func (p *HeaderPage) Encode() []byte {
	return p.AppendEncode(make([]byte, 0, p.pageSize))
}
