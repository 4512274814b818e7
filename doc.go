// Package betula implements the on-disk page layer of a B+-tree index:
// fixed-size pages holding packed separator keys, child pointers and an
// occupancy bitmap, together with the file, allocation and caching
// machinery around them.
//
// The package deliberately stops below the tree algorithms. It knows how
// to keep one internal node's keys sorted, how to pair keys with child
// pointers across unoccupied slots, and how to get pages to and from
// disk; splitting, merging and redistribution belong to the layer above.
//
// Pages carry a dirty mark naming the transaction that last modified
// them. Page objects do no locking of their own: callers coordinate
// through the BufferPool, which also refuses to evict dirty pages so an
// unfinished transaction's changes never reach disk behind its back.
//
// Basic usage:
//
//	f, err := betula.OpenFile("/path/to/index.bet", nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer f.Close()
//
//	pool := betula.NewBufferPool(256)
//	pool.RegisterFile(f)
//
//	// Allocate an internal node and hang two leaves off it.
//	tid := betula.TxnID(1)
//	pid, err := f.AllocatePage(tid, betula.CatInternal)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	pg, err := pool.GetPage(pid)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	node := pg.(*betula.InternalPage)
//
//	left, _ := f.AllocatePage(tid, betula.CatLeaf)
//	right, _ := f.AllocatePage(tid, betula.CatLeaf)
//	err = node.InsertEntry(tid, betula.NewEntry(betula.Int64Key(42), left, right))
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	if err := pool.FlushTxn(tid); err != nil {
//	    log.Fatal(err)
//	}
package betula
