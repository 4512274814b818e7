package betula

import "fmt"

// Category identifies the on-disk layout of a page
type Category uint8

const (
	// CatRootPtr is the root pointer page, page 0 of every index file
	CatRootPtr Category = 0

	// CatInternal is an internal B+-tree page holding separator keys and
	// child page pointers
	CatInternal Category = 1

	// CatLeaf is a leaf B+-tree page; this layer never decodes its layout
	CatLeaf Category = 2

	// CatHeader is a page allocation bitmap page
	CatHeader Category = 3
)

// Valid returns true for the categories this layer knows how to route
func (c Category) Valid() bool {
	return c <= CatHeader
}

func (c Category) String() string {
	switch c {
	case CatRootPtr:
		return "rootptr"
	case CatInternal:
		return "internal"
	case CatLeaf:
		return "leaf"
	case CatHeader:
		return "header"
	default:
		return fmt.Sprintf("category(%d)", uint8(c))
	}
}

// TableID identifies the index file a page belongs to
type TableID uint32

// InvalidPageNo marks an absent page number in chain links and root slots
const InvalidPageNo uint32 = 0xFFFFFFFF

// PageID identifies a page: the owning table, the page's ordinal position in
// the file, and its category. PageIDs are values; two PageIDs name the same
// page iff they are ==.
type PageID struct {
	Table  TableID
	PageNo uint32
	Cat    Category
}

func (id PageID) String() string {
	return fmt.Sprintf("%s page %d of table %d", id.Cat, id.PageNo, id.Table)
}

// TxnID identifies the transaction on whose behalf a page was dirtied
type TxnID uint64

// InvalidTxnID is the zero transaction id; no real transaction carries it
const InvalidTxnID TxnID = 0

// dirtyMark tracks whether a resident page has unwritten changes and which
// transaction made them. The zero value is clean.
type dirtyMark struct {
	owner TxnID
	dirty bool
}

func (d *dirtyMark) markDirty(tid TxnID) {
	d.owner = tid
	d.dirty = true
}

func (d *dirtyMark) markClean() {
	d.owner = InvalidTxnID
	d.dirty = false
}

// dirtyOwner returns the dirtying transaction and whether the page is dirty.
// The owner is only meaningful when the second return is true.
func (d *dirtyMark) dirtyOwner() (TxnID, bool) {
	return d.owner, d.dirty
}
