package betula

import (
	"hash/fnv"
	"os"
	"path/filepath"
	"sync"

	"github.com/betuladb/betula/internal/fastmap"
	"github.com/betuladb/betula/mmap"
)

// FileOptions configures OpenFile.
type FileOptions struct {
	// PageSize is the on-disk page size in bytes. Zero selects
	// DefaultPageSize. Must be a power of two within
	// [MinPageSize, MaxPageSize] and must match the file if it
	// already exists.
	PageSize int

	// Key describes the separator keys stored in the file's index
	// pages. The zero value selects Int64KeySpec.
	Key KeySpec

	// ReadOnly opens the file without write access. Allocation,
	// freeing and WritePage fail with ErrReadOnly.
	ReadOnly bool

	// NoMmap disables the memory-mapped read path. Pages are then
	// always read with pread.
	NoMmap bool

	// Lock acquires an advisory lock on the file: exclusive for
	// read-write, shared for read-only. OpenFile fails if another
	// process holds a conflicting lock.
	Lock bool
}

// IndexFile is a page-addressed index file. Page zero is the root
// pointer page; the remaining pages hold index nodes and the header
// pages that track which of them are free for reuse.
//
// IndexFile methods are safe for concurrent use. The page objects
// they return are not; callers serialize access to a page themselves.
type IndexFile struct {
	mu sync.Mutex

	path     string
	table    TableID
	file     *os.File
	mp       *mmap.Map // read path, nil when disabled or unavailable
	pageSize int
	key      KeySpec
	ro       bool
	locked   bool
	closed   bool
	numPages uint32

	bufs sync.Pool // *[]byte page buffers for the pread and encode paths

	// hdrs caches decoded header pages by page number. Header pages are
	// never freed, so entries stay valid until Close; writes through this
	// file replace the cached object.
	hdrs fastmap.Uint32Map[*HeaderPage]
}

// OpenFile opens or creates the index file at path. A new file is
// initialized with a root pointer page; an existing file must have a
// size that is a whole number of pages. A nil opts selects the
// defaults: DefaultPageSize, Int64KeySpec, read-write, mapped,
// unlocked.
func OpenFile(path string, opts *FileOptions) (*IndexFile, error) {
	var o FileOptions
	if opts != nil {
		o = *opts
	}
	if o.PageSize == 0 {
		o.PageSize = DefaultPageSize
	}
	if o.Key == (KeySpec{}) {
		o.Key = Int64KeySpec()
	}
	if err := checkGeometry(o.Key, o.PageSize); err != nil {
		return nil, err
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, WrapError(ErrProblem, err)
	}

	flag := os.O_RDWR
	if o.ReadOnly {
		flag = os.O_RDONLY
	} else {
		flag |= os.O_CREATE
	}
	file, err := os.OpenFile(abs, flag, 0644)
	if err != nil {
		return nil, WrapError(ErrProblem, err)
	}

	f := &IndexFile{
		path:     abs,
		table:    tableIDForPath(abs),
		file:     file,
		pageSize: o.PageSize,
		key:      o.Key,
		ro:       o.ReadOnly,
	}
	ps := o.PageSize
	f.bufs.New = func() any {
		b := make([]byte, ps)
		return &b
	}

	if o.Lock {
		if err := lockIndexFile(file, !o.ReadOnly); err != nil {
			file.Close()
			return nil, err
		}
		f.locked = true
	}

	fi, err := file.Stat()
	if err != nil {
		f.closeFiles()
		return nil, WrapError(ErrProblem, err)
	}
	size := fi.Size()

	if size == 0 {
		if o.ReadOnly {
			f.closeFiles()
			return nil, NewErrorf(ErrCorruptPage, "empty index file %q", abs)
		}
		if err := f.initNewFile(); err != nil {
			f.closeFiles()
			return nil, err
		}
		size = int64(f.pageSize)
	}
	if size%int64(f.pageSize) != 0 {
		f.closeFiles()
		return nil, NewErrorf(ErrCorruptPage, "file size %d is not a multiple of page size %d", size, f.pageSize)
	}
	f.numPages = uint32(size / int64(f.pageSize))

	if !o.NoMmap {
		// The mapping is best effort; reads fall back to pread.
		if mp, err := mmap.New(int(file.Fd()), int(size)); err == nil {
			mp.AdviseRandom()
			f.mp = mp
		}
	}

	// The root pointer page must decode before the file is usable.
	f.mu.Lock()
	_, rerr := f.readRootPtrLocked()
	f.mu.Unlock()
	if rerr != nil {
		f.closeFiles()
		return nil, rerr
	}

	return f, nil
}

// tableIDForPath derives the table identifier from the cleaned
// absolute file path, so every handle on the same file agrees on it.
func tableIDForPath(abs string) TableID {
	h := fnv.New32a()
	h.Write([]byte(filepath.Clean(abs)))
	return TableID(h.Sum32())
}

// initNewFile writes the root pointer page of a fresh file.
func (f *IndexFile) initNewFile() error {
	if err := f.file.Truncate(int64(f.pageSize)); err != nil {
		return WrapError(ErrProblem, err)
	}

	rp, err := NewRootPtrPage(PageID{Table: f.table, PageNo: 0, Cat: CatRootPtr}, f.pageSize)
	if err != nil {
		return err
	}
	if _, err := f.file.WriteAt(rp.Encode(), 0); err != nil {
		return WrapError(ErrProblem, err)
	}
	return f.file.Sync()
}

// Path returns the cleaned absolute path of the file.
func (f *IndexFile) Path() string { return f.path }

// Table returns the identifier pages of this file carry in their IDs.
func (f *IndexFile) Table() TableID { return f.table }

// PageSize returns the page size in bytes.
func (f *IndexFile) PageSize() int { return f.pageSize }

// Key returns the separator key layout of the file's index pages.
func (f *IndexFile) Key() KeySpec { return f.key }

// ReadOnly reports whether the file was opened read-only.
func (f *IndexFile) ReadOnly() bool { return f.ro }

// NumPages returns the number of pages currently in the file.
func (f *IndexFile) NumPages() uint32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.numPages
}

// ReadPage returns a copy of the raw bytes of the page identified by
// id. The copy is the caller's to keep; pass it to DecodePage for a
// typed page.
func (f *IndexFile) ReadPage(id PageID) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil, NewError(ErrClosed)
	}
	if id.Table != f.table {
		return nil, NewErrorf(ErrCategoryMismatch, "page of table %d read from table %d", id.Table, f.table)
	}
	if !id.Cat.Valid() {
		return nil, NewErrorf(ErrCorruptPage, "invalid category %d", id.Cat)
	}
	if id.PageNo >= f.numPages {
		return nil, NewErrorf(ErrPageNotFound, "page %d of %d", id.PageNo, f.numPages)
	}

	data, release, err := f.pageData(id.PageNo)
	if err != nil {
		return nil, err
	}
	defer release()

	out := make([]byte, f.pageSize)
	copy(out, data)
	return out, nil
}

// pageData returns the raw bytes of a page. The caller must invoke
// release when done and must not hold the slice past it: the bytes
// come either from the shared mapping or from a pooled buffer.
func (f *IndexFile) pageData(pageNo uint32) ([]byte, func(), error) {
	off := int64(pageNo) * int64(f.pageSize)

	if f.mp != nil && off+int64(f.pageSize) <= f.mp.Size() {
		return f.mp.Data()[off : off+int64(f.pageSize)], func() {}, nil
	}

	bp := f.bufs.Get().(*[]byte)
	if _, err := f.file.ReadAt(*bp, off); err != nil {
		f.bufs.Put(bp)
		return nil, nil, WrapError(ErrProblem, err)
	}
	return *bp, func() { f.bufs.Put(bp) }, nil
}

// DecodePage decodes page bytes into the typed page the category in
// id selects. Leaf pages come back as RawPage: their interior layout
// belongs to the layer above. Every decoder copies out of data, so
// data may be reused afterwards.
func (f *IndexFile) DecodePage(id PageID, data []byte) (Page, error) {
	switch id.Cat {
	case CatRootPtr:
		return DecodeRootPtrPage(id, data, f.pageSize)
	case CatHeader:
		return DecodeHeaderPage(id, data, f.pageSize)
	case CatInternal:
		return DecodeInternalPage(id, data, f.key, f.pageSize)
	case CatLeaf:
		return NewRawPage(id, data, f.pageSize)
	}
	return nil, NewErrorf(ErrCorruptPage, "invalid category %d", id.Cat)
}

// GetPage reads and decodes a page in one step.
func (f *IndexFile) GetPage(id PageID) (Page, error) {
	data, err := f.ReadPage(id)
	if err != nil {
		return nil, err
	}
	return f.DecodePage(id, data)
}

// WritePage encodes p and writes it at its page offset. The dirty
// mark is left untouched; callers flushing a page clear it after the
// write succeeds.
func (f *IndexFile) WritePage(p Page) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writePageLocked(p)
}

func (f *IndexFile) writePageLocked(p Page) error {
	if f.closed {
		return NewError(ErrClosed)
	}
	if f.ro {
		return NewError(ErrReadOnly)
	}
	id := p.ID()
	if id.Table != f.table {
		return NewErrorf(ErrCategoryMismatch, "page of table %d written to table %d", id.Table, f.table)
	}
	if id.PageNo >= f.numPages {
		return NewErrorf(ErrPageNotFound, "page %d of %d", id.PageNo, f.numPages)
	}

	bp := f.bufs.Get().(*[]byte)
	defer f.bufs.Put(bp)

	buf := p.AppendEncode((*bp)[:0])
	if len(buf) != f.pageSize {
		return NewErrorf(ErrCorruptPage, "page encodes to %d bytes, want %d", len(buf), f.pageSize)
	}
	*bp = buf

	off := int64(id.PageNo) * int64(f.pageSize)
	if _, err := f.file.WriteAt(buf, off); err != nil {
		// A failed header write leaves any cached object ahead of disk.
		if _, ok := p.(*HeaderPage); ok {
			f.hdrs.Clear()
		}
		return WrapError(ErrProblem, err)
	}

	// The header cache must track whatever was written last.
	if hp, ok := p.(*HeaderPage); ok {
		f.hdrs.Set(id.PageNo, hp)
	}
	return nil
}

// AllocatePage reserves a page of the given category, reusing a freed
// page when the header chain has one and growing the file otherwise.
// The page is formatted empty on disk before its ID is returned, so a
// crash between allocation and first flush leaves a decodable file.
// Internal pages are formatted with leaf children; a caller building a
// deeper level constructs its own page for the returned ID and writes
// that.
func (f *IndexFile) AllocatePage(tid TxnID, cat Category) (PageID, error) {
	if cat != CatInternal && cat != CatLeaf {
		return PageID{}, NewErrorf(ErrCategoryMismatch, "cannot allocate %s", cat)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return PageID{}, NewError(ErrClosed)
	}
	if f.ro {
		return PageID{}, NewError(ErrReadOnly)
	}

	pageNo, err := f.takeFreePageLocked(tid)
	if err != nil {
		return PageID{}, err
	}
	if pageNo == InvalidPageNo {
		if pageNo, err = f.growLocked(); err != nil {
			return PageID{}, err
		}
	}

	id := PageID{Table: f.table, PageNo: pageNo, Cat: cat}
	var pg Page
	if cat == CatInternal {
		ip, err := NewInternalPage(id, CatLeaf, f.key, f.pageSize)
		if err != nil {
			return PageID{}, err
		}
		pg = ip
	} else {
		pg = EmptyRawPage(id, f.pageSize)
	}
	if err := f.writePageLocked(pg); err != nil {
		return PageID{}, err
	}
	return id, nil
}

// takeFreePageLocked scans the header chain for a free slot, marks it
// used and returns its page number, or InvalidPageNo when every
// tracked page is in use.
func (f *IndexFile) takeFreePageLocked(tid TxnID) (uint32, error) {
	slotsPer := uint32(HeaderSlotsFor(f.pageSize))

	rp, err := f.readRootPtrLocked()
	if err != nil {
		return 0, err
	}
	hdrNo, ok := rp.FirstHeader()
	for chainPos := uint32(0); ok; chainPos++ {
		hp, err := f.readHeaderLocked(hdrNo)
		if err != nil {
			return 0, err
		}

		if slot, found := hp.FirstEmptySlot(); found {
			pageNo := chainPos*slotsPer + uint32(slot)
			if pageNo < f.numPages {
				if err := hp.MarkSlotUsed(tid, slot, true); err != nil {
					return 0, err
				}
				if err := f.writePageLocked(hp); err != nil {
					return 0, err
				}
				hp.MarkClean()
				return pageNo, nil
			}
		}

		hdrNo, ok = hp.NextHeader()
	}
	return InvalidPageNo, nil
}

// growLocked extends the file by one zeroed page and returns its
// page number. The mapping is remapped to cover it; on failure the
// read path falls back to pread.
func (f *IndexFile) growLocked() (uint32, error) {
	pageNo := f.numPages
	newSize := int64(pageNo+1) * int64(f.pageSize)
	if err := f.file.Truncate(newSize); err != nil {
		return 0, WrapError(ErrProblem, err)
	}
	f.numPages++

	if f.mp != nil {
		if err := f.mp.Remap(newSize); err != nil {
			f.mp.Close()
			f.mp = nil
		}
	}
	return pageNo, nil
}

// FreePage marks the page as reusable by future allocations, creating
// header pages to cover its slot if none do yet.
func (f *IndexFile) FreePage(tid TxnID, pid PageID) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return NewError(ErrClosed)
	}
	if f.ro {
		return NewError(ErrReadOnly)
	}
	if pid.Table != f.table {
		return NewErrorf(ErrCategoryMismatch, "page of table %d freed from table %d", pid.Table, f.table)
	}
	pageNo := pid.PageNo
	if pageNo == 0 || pageNo >= f.numPages {
		return NewErrorf(ErrPageNotFound, "cannot free page %d of %d", pageNo, f.numPages)
	}
	// Header pages are the free list itself; handing one to a future
	// allocation would corrupt the chain.
	if pid.Cat != CatInternal && pid.Cat != CatLeaf {
		return NewErrorf(ErrCategoryMismatch, "cannot free %s", pid.Cat)
	}

	slotsPer := uint32(HeaderSlotsFor(f.pageSize))
	target := pageNo / slotsPer
	slot := int(pageNo % slotsPer)

	hp, err := f.headerForChainPosLocked(tid, target)
	if err != nil {
		return err
	}
	if err := hp.MarkSlotUsed(tid, slot, false); err != nil {
		return err
	}
	if err := f.writePageLocked(hp); err != nil {
		return err
	}
	hp.MarkClean()
	return nil
}

// headerForChainPosLocked walks the chain to position target,
// appending header pages until one covers it. New header pages start
// with every slot marked used; only explicit frees open slots up.
func (f *IndexFile) headerForChainPosLocked(tid TxnID, target uint32) (*HeaderPage, error) {
	rp, err := f.readRootPtrLocked()
	if err != nil {
		return nil, err
	}

	hdrNo, ok := rp.FirstHeader()
	if !ok {
		hdrNo, err = f.appendHeaderLocked(tid, InvalidPageNo)
		if err != nil {
			return nil, err
		}
		rp.SetFirstHeader(tid, hdrNo)
		if err := f.writePageLocked(rp); err != nil {
			return nil, err
		}
		rp.MarkClean()
	}

	for pos := uint32(0); ; pos++ {
		hp, err := f.readHeaderLocked(hdrNo)
		if err != nil {
			return nil, err
		}
		if pos == target {
			return hp, nil
		}
		next, ok := hp.NextHeader()
		if !ok {
			if next, err = f.appendHeaderLocked(tid, hdrNo); err != nil {
				return nil, err
			}
			hp.SetNextHeader(tid, next)
			if err := f.writePageLocked(hp); err != nil {
				return nil, err
			}
			hp.MarkClean()
		}
		hdrNo = next
	}
}

// appendHeaderLocked grows the file by one page and writes a fresh
// header page there, linked back to prev.
func (f *IndexFile) appendHeaderLocked(tid TxnID, prev uint32) (uint32, error) {
	pageNo, err := f.growLocked()
	if err != nil {
		return 0, err
	}

	hp, err := NewHeaderPage(PageID{Table: f.table, PageNo: pageNo, Cat: CatHeader}, f.pageSize)
	if err != nil {
		return 0, err
	}
	hp.SetPrevHeader(tid, prev)
	if err := f.writePageLocked(hp); err != nil {
		return 0, err
	}
	hp.MarkClean()
	return pageNo, nil
}

func (f *IndexFile) readRootPtrLocked() (*RootPtrPage, error) {
	data, release, err := f.pageData(0)
	if err != nil {
		return nil, err
	}
	defer release()
	return DecodeRootPtrPage(PageID{Table: f.table, PageNo: 0, Cat: CatRootPtr}, data, f.pageSize)
}

func (f *IndexFile) readHeaderLocked(pageNo uint32) (*HeaderPage, error) {
	if pageNo >= f.numPages {
		return nil, NewErrorf(ErrPageNotFound, "header page %d of %d", pageNo, f.numPages)
	}
	if hp, ok := f.hdrs.Get(pageNo); ok {
		return hp, nil
	}
	data, release, err := f.pageData(pageNo)
	if err != nil {
		return nil, err
	}
	defer release()
	hp, err := DecodeHeaderPage(PageID{Table: f.table, PageNo: pageNo, Cat: CatHeader}, data, f.pageSize)
	if err != nil {
		return nil, err
	}
	f.hdrs.Set(pageNo, hp)
	return hp, nil
}

// Root returns the ID of the root index page, or ok=false when the
// file has no root yet.
func (f *IndexFile) Root() (PageID, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return PageID{}, false, NewError(ErrClosed)
	}
	rp, err := f.readRootPtrLocked()
	if err != nil {
		return PageID{}, false, err
	}
	id, ok := rp.Root()
	return id, ok, nil
}

// SetRoot points the root pointer page at id and writes it through.
func (f *IndexFile) SetRoot(tid TxnID, id PageID) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return NewError(ErrClosed)
	}
	if f.ro {
		return NewError(ErrReadOnly)
	}
	rp, err := f.readRootPtrLocked()
	if err != nil {
		return err
	}
	if err := rp.SetRoot(tid, id); err != nil {
		return err
	}
	if err := f.writePageLocked(rp); err != nil {
		return err
	}
	rp.MarkClean()
	return nil
}

// Sync flushes the file to stable storage.
func (f *IndexFile) Sync() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return NewError(ErrClosed)
	}
	if err := f.file.Sync(); err != nil {
		return WrapError(ErrProblem, err)
	}
	return nil
}

// Close releases the mapping, the advisory lock and the descriptor.
// Closing twice is a no-op.
func (f *IndexFile) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil
	}
	f.closed = true
	return f.closeFiles()
}

func (f *IndexFile) closeFiles() error {
	f.hdrs.Clear()

	var firstErr error
	if f.mp != nil {
		if err := f.mp.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		f.mp = nil
	}
	if f.locked {
		if err := unlockIndexFile(f.file); err != nil && firstErr == nil {
			firstErr = err
		}
		f.locked = false
	}
	if f.file != nil {
		if err := f.file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		f.file = nil
	}
	if firstErr != nil {
		return WrapError(ErrProblem, firstErr)
	}
	return nil
}
