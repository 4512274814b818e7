package betula

// RootPtrPage is page 0 of every index file: it records where the tree's
// root page lives and where the header-page chain starts. It occupies a
// full page slot so that every page in the file is page-size aligned.
//
// Memory layout (little-endian):
//
//	Offset  Size  Field
//	0       4     root page number, InvalidPageNo while the tree is empty
//	4       1     root category, internal or leaf
//	5       4     first header page number, InvalidPageNo when none
//	9       P-9   zero padding
type RootPtrPage struct {
	id       PageID
	pageSize int
	rootNo   uint32
	rootCat  Category
	firstHdr uint32

	mark dirtyMark
}

// NewRootPtrPage constructs a root pointer page for an empty file: no root,
// no header chain.
func NewRootPtrPage(id PageID, pageSize int) (*RootPtrPage, error) {
	if !validPageSize(pageSize) {
		return nil, NewErrorf(ErrInvalidPageSize, "%d", pageSize)
	}
	if id.Cat != CatRootPtr {
		return nil, NewErrorf(ErrCategoryMismatch, "identity %s is not a root pointer page", id)
	}
	return &RootPtrPage{
		id:       id,
		pageSize: pageSize,
		rootNo:   InvalidPageNo,
		rootCat:  CatLeaf,
		firstHdr: InvalidPageNo,
	}, nil
}

// DecodeRootPtrPage reconstructs a root pointer page from exactly one page
// of bytes
func DecodeRootPtrPage(id PageID, data []byte, pageSize int) (*RootPtrPage, error) {
	if !validPageSize(pageSize) {
		return nil, NewErrorf(ErrInvalidPageSize, "%d", pageSize)
	}
	if id.Cat != CatRootPtr {
		return nil, NewErrorf(ErrCategoryMismatch, "identity %s is not a root pointer page", id)
	}
	if len(data) != pageSize {
		return nil, NewErrorf(ErrCorruptPage, "%s: got %d bytes, want %d", id, len(data), pageSize)
	}
	cat := Category(data[4])
	if cat != CatInternal && cat != CatLeaf {
		return nil, NewErrorf(ErrCorruptPage, "%s: bad root category byte %d", id, data[4])
	}
	return &RootPtrPage{
		id:       id,
		pageSize: pageSize,
		rootNo:   getUint32LE(data),
		rootCat:  cat,
		firstHdr: getUint32LE(data[5:]),
	}, nil
}

// ID returns the page's identity
func (p *RootPtrPage) ID() PageID { return p.id }

// Dirty returns the dirtying transaction and whether the page is dirty
func (p *RootPtrPage) Dirty() (TxnID, bool) { return p.mark.dirtyOwner() }

// MarkDirty records tid as the dirtying transaction
func (p *RootPtrPage) MarkDirty(tid TxnID) { p.mark.markDirty(tid) }

// MarkClean resets the dirty mark
func (p *RootPtrPage) MarkClean() { p.mark.markClean() }

// Root returns the identity of the tree's root page, if the tree has one
func (p *RootPtrPage) Root() (PageID, bool) {
	if p.rootNo == InvalidPageNo {
		return PageID{}, false
	}
	return PageID{Table: p.id.Table, PageNo: p.rootNo, Cat: p.rootCat}, true
}

// SetRoot points the file at a new root page
func (p *RootPtrPage) SetRoot(tid TxnID, root PageID) error {
	if root.Cat != CatInternal && root.Cat != CatLeaf {
		return NewErrorf(ErrCategoryMismatch, "root must be internal or leaf, got %s", root)
	}
	if root.Table != p.id.Table {
		return NewErrorf(ErrCategoryMismatch, "root from table %d on a file of table %d", root.Table, p.id.Table)
	}
	p.rootNo = root.PageNo
	p.rootCat = root.Cat
	p.mark.markDirty(tid)
	return nil
}

// FirstHeader returns the head of the header-page chain, if any
func (p *RootPtrPage) FirstHeader() (uint32, bool) {
	return p.firstHdr, p.firstHdr != InvalidPageNo
}

// SetFirstHeader rewrites the head of the header-page chain
func (p *RootPtrPage) SetFirstHeader(tid TxnID, pgno uint32) {
	p.firstHdr = pgno
	p.mark.markDirty(tid)
}

// AppendEncode appends the page's serialized form, exactly PageSize bytes,
// to dst
func (p *RootPtrPage) AppendEncode(dst []byte) []byte {
	start := len(dst)
	var w [4]byte
	putUint32LE(w[:], p.rootNo)
	dst = append(dst, w[:]...)
	dst = append(dst, byte(p.rootCat))
	putUint32LE(w[:], p.firstHdr)
	dst = append(dst, w[:]...)
	for len(dst)-start < p.pageSize {
		dst = append(dst, 0)
	}
	return dst
}

// Encode returns the page's serialized form in a fresh buffer
func (p *RootPtrPage) Encode() []byte {
	return p.AppendEncode(make([]byte, 0, p.pageSize))
}
