package betula

// Constants for page geometry
const (
	// MinPageSize is the smallest supported page size
	MinPageSize = 256

	// MaxPageSize is the largest supported page size
	MaxPageSize = 65536

	// DefaultPageSize is the page size OpenFile uses when the options leave
	// it zero
	DefaultPageSize = 4096

	// childPointerBytes is the stored width of one child page number
	childPointerBytes = 4
)

// validPageSize returns true for a power of two within the supported bounds
func validPageSize(n int) bool {
	return n >= MinPageSize && n <= MaxPageSize && n&(n-1) == 0
}

// Page is a resident page: a decoded in-memory object that knows its
// identity, tracks whether it holds unwritten changes and for which
// transaction, and can serialize itself back to exactly one page of bytes.
//
// Pages carry no locking. Caller must ensure a page is reached by one
// goroutine at a time; the buffer pool's lock covers lookups, not the pages
// it hands out.
type Page interface {
	// ID returns the page's identity
	ID() PageID

	// Dirty returns the dirtying transaction and whether the page has
	// unwritten changes
	Dirty() (TxnID, bool)

	// MarkDirty records tid as the transaction responsible for the page's
	// current state
	MarkDirty(tid TxnID)

	// MarkClean resets the dirty mark, typically after a successful write
	// back
	MarkClean()

	// AppendEncode appends the page's serialized form, exactly one page of
	// bytes, to dst
	AppendEncode(dst []byte) []byte

	// Encode returns the page's serialized form in a fresh buffer
	Encode() []byte
}

// RawPage is a resident page whose layout this layer does not decode. Leaf
// pages travel through the file and buffer pool as RawPages; the layer above
// owns their bytes.
type RawPage struct {
	id   PageID
	data []byte
	mark dirtyMark
}

// NewRawPage wraps one page of bytes. The bytes are copied.
func NewRawPage(id PageID, data []byte, pageSize int) (*RawPage, error) {
	if len(data) != pageSize {
		return nil, NewErrorf(ErrCorruptPage, "%s: got %d bytes, want %d", id, len(data), pageSize)
	}
	p := &RawPage{id: id, data: make([]byte, pageSize)}
	copy(p.data, data)
	return p, nil
}

// EmptyRawPage returns an all-zero page, the state of a freshly allocated
// leaf page before the layer above formats it.
func EmptyRawPage(id PageID, pageSize int) *RawPage {
	return &RawPage{id: id, data: make([]byte, pageSize)}
}

// ID returns the page's identity
func (p *RawPage) ID() PageID { return p.id }

// Dirty returns the dirtying transaction and whether the page is dirty
func (p *RawPage) Dirty() (TxnID, bool) { return p.mark.dirtyOwner() }

// MarkDirty records tid as the dirtying transaction
func (p *RawPage) MarkDirty(tid TxnID) { p.mark.markDirty(tid) }

// MarkClean resets the dirty mark
func (p *RawPage) MarkClean() { p.mark.markClean() }

// Data returns the backing bytes. Mutations are visible to Encode; caller
// must MarkDirty after changing them.
func (p *RawPage) Data() []byte { return p.data }

// AppendEncode appends the page bytes to dst
func (p *RawPage) AppendEncode(dst []byte) []byte {
	return append(dst, p.data...)
}

// Encode returns a copy of the page bytes
func (p *RawPage) Encode() []byte {
	return p.AppendEncode(nil)
}
