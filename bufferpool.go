package betula

import (
	"container/list"
	"sync"
)

// DefaultPoolCapacity is the frame count NewBufferPool falls back to.
const DefaultPoolCapacity = 256

// pageFrameKey identifies a resident page by file and position. The
// category stays out of the key so one physical page cannot occupy
// two frames under different categories.
type pageFrameKey struct {
	table  TableID
	pageNo uint32
}

// pageFrame is one resident page with its LRU bookkeeping.
type pageFrame struct {
	key  pageFrameKey
	page Page
}

// BufferPool keeps a fixed number of decoded pages resident across
// the index files registered with it. Eviction is least recently
// used and never steals a dirty frame: when every frame is dirty,
// GetPage fails with ErrCacheFull and the caller must flush first.
//
// The pool serializes its own bookkeeping with one mutex. That mutex
// is also what makes the pages it hands out safe to share: callers
// mutating a page coordinate through the pool's transaction flow, the
// page objects themselves do no locking.
type BufferPool struct {
	mu       sync.Mutex
	capacity int
	files    map[TableID]*IndexFile
	frames   map[pageFrameKey]*list.Element // value: *pageFrame
	lru      *list.List                     // front = most recently used
}

// NewBufferPool creates a pool with room for capacity pages.
// Non-positive capacities select DefaultPoolCapacity.
func NewBufferPool(capacity int) *BufferPool {
	if capacity <= 0 {
		capacity = DefaultPoolCapacity
	}
	return &BufferPool{
		capacity: capacity,
		files:    make(map[TableID]*IndexFile),
		frames:   make(map[pageFrameKey]*list.Element),
		lru:      list.New(),
	}
}

// RegisterFile makes the file's pages reachable through the pool
// under its table ID. Registering the same table again replaces the
// previous handle.
func (bp *BufferPool) RegisterFile(f *IndexFile) {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	bp.files[f.Table()] = f
}

// Capacity returns the frame count the pool was created with.
func (bp *BufferPool) Capacity() int { return bp.capacity }

// Len returns the number of resident pages.
func (bp *BufferPool) Len() int {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	return bp.lru.Len()
}

// GetPage returns the resident page for pid, reading and decoding it
// from the owning file on a miss. A hit moves the frame to the front
// of the LRU list. On a miss with the pool full, the least recently
// used clean frame is dropped; if every frame is dirty the read fails
// with ErrCacheFull.
func (bp *BufferPool) GetPage(pid PageID) (Page, error) {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	key := pageFrameKey{table: pid.Table, pageNo: pid.PageNo}
	if el, ok := bp.frames[key]; ok {
		fr := el.Value.(*pageFrame)
		if got := fr.page.ID().Cat; got != pid.Cat {
			return nil, NewErrorf(ErrCategoryMismatch, "page %d is resident as %s, requested as %s", pid.PageNo, got, pid.Cat)
		}
		bp.lru.MoveToFront(el)
		return fr.page, nil
	}

	f, ok := bp.files[pid.Table]
	if !ok {
		return nil, NewErrorf(ErrPageNotFound, "no file registered for table %d", pid.Table)
	}

	if bp.lru.Len() >= bp.capacity {
		if err := bp.evictLocked(); err != nil {
			return nil, err
		}
	}

	pg, err := f.GetPage(pid)
	if err != nil {
		return nil, err
	}
	el := bp.lru.PushFront(&pageFrame{key: key, page: pg})
	bp.frames[key] = el
	return pg, nil
}

// evictLocked drops the least recently used clean frame. Dirty frames
// are never stolen.
func (bp *BufferPool) evictLocked() error {
	for el := bp.lru.Back(); el != nil; el = el.Prev() {
		fr := el.Value.(*pageFrame)
		if _, dirty := fr.page.Dirty(); dirty {
			continue
		}
		bp.lru.Remove(el)
		delete(bp.frames, fr.key)
		return nil
	}
	return NewErrorf(ErrCacheFull, "%d frames, all dirty", bp.lru.Len())
}

// FlushPage writes the resident page for pid back to its file and
// clears its dirty mark. A page that is not resident or not dirty is
// left alone.
func (bp *BufferPool) FlushPage(pid PageID) error {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	el, ok := bp.frames[pageFrameKey{table: pid.Table, pageNo: pid.PageNo}]
	if !ok {
		return nil
	}
	return bp.flushFrameLocked(el.Value.(*pageFrame))
}

// FlushAll writes every dirty resident page back to its file.
func (bp *BufferPool) FlushAll() error {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	for el := bp.lru.Front(); el != nil; el = el.Next() {
		if err := bp.flushFrameLocked(el.Value.(*pageFrame)); err != nil {
			return err
		}
	}
	return nil
}

// FlushTxn writes back the pages dirtied by tid, leaving other
// transactions' dirty pages in place.
func (bp *BufferPool) FlushTxn(tid TxnID) error {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	for el := bp.lru.Front(); el != nil; el = el.Next() {
		fr := el.Value.(*pageFrame)
		if owner, dirty := fr.page.Dirty(); dirty && owner == tid {
			if err := bp.flushFrameLocked(fr); err != nil {
				return err
			}
		}
	}
	return nil
}

func (bp *BufferPool) flushFrameLocked(fr *pageFrame) error {
	if _, dirty := fr.page.Dirty(); !dirty {
		return nil
	}
	f, ok := bp.files[fr.key.table]
	if !ok {
		return NewErrorf(ErrPageNotFound, "no file registered for table %d", fr.key.table)
	}
	if err := f.WritePage(fr.page); err != nil {
		return err
	}
	fr.page.MarkClean()
	return nil
}

// DiscardPage drops the resident page for pid without writing it,
// dirty or not. The next GetPage rereads the on-disk state. This is
// the abort path for a transaction backing out of its changes.
func (bp *BufferPool) DiscardPage(pid PageID) {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	key := pageFrameKey{table: pid.Table, pageNo: pid.PageNo}
	if el, ok := bp.frames[key]; ok {
		bp.lru.Remove(el)
		delete(bp.frames, key)
	}
}
