package betula

import "testing"

func TestIterateEmptyPage(t *testing.T) {
	p := newTestPage(t)

	if _, ok := p.Iterator().Next(); ok {
		t.Error("forward iteration of an empty page yielded an entry")
	}
	if _, ok := p.ReverseIterator().Next(); ok {
		t.Error("reverse iteration of an empty page yielded an entry")
	}
}

func TestIterateDrainedPage(t *testing.T) {
	const tid TxnID = 9
	p := newTestPage(t)

	// deleting the only entry leaves slot 0 occupied with a child but no
	// separators; iteration must be empty, not a half-entry
	ent := NewEntry(Int64Key(10), leafChild(100), leafChild(101))
	if err := p.InsertEntry(tid, ent); err != nil {
		t.Fatalf("InsertEntry failed: %v", err)
	}
	if err := p.DeleteKeyAndRightChild(tid, ent); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if !p.IsSlotUsed(0) {
		t.Fatal("slot 0 should stay occupied after draining")
	}
	if p.NumEntries() != 0 {
		t.Fatalf("NumEntries: got %d, want 0", p.NumEntries())
	}

	if _, ok := p.Iterator().Next(); ok {
		t.Error("forward iteration of a drained page yielded an entry")
	}
	if _, ok := p.ReverseIterator().Next(); ok {
		t.Error("reverse iteration of a drained page yielded an entry")
	}

	// the next insert starts a fresh chain over the stale slot 0
	if err := p.InsertEntry(tid, NewEntry(Int64Key(20), leafChild(200), leafChild(201))); err != nil {
		t.Fatalf("insert into drained page failed: %v", err)
	}
	got := collectForward(p)
	if len(got) != 1 || got[0].Left != leafChild(200) || got[0].Right != leafChild(201) {
		t.Errorf("after reuse: got %v", got)
	}
}

func TestIteratorSinglePass(t *testing.T) {
	const tid TxnID = 9
	p := fourKeyPage(t, tid)

	it := p.Iterator()
	n := 0
	for {
		if _, ok := it.Next(); !ok {
			break
		}
		n++
	}
	if n != 4 {
		t.Fatalf("first pass: got %d entries, want 4", n)
	}
	if _, ok := it.Next(); ok {
		t.Error("exhausted iterator yielded another entry")
	}

	// a fresh cursor starts over
	if _, ok := p.Iterator().Next(); !ok {
		t.Error("fresh iterator yielded nothing")
	}

	rit := p.ReverseIterator()
	for {
		if _, ok := rit.Next(); !ok {
			break
		}
	}
	if _, ok := rit.Next(); ok {
		t.Error("exhausted reverse iterator yielded another entry")
	}
}

func TestIteratorLocations(t *testing.T) {
	const tid TxnID = 9
	p := fourKeyPage(t, tid)

	// vacate slot 2 so locations are non-contiguous
	entries := collectForward(p)
	if err := p.DeleteKeyAndRightChild(tid, entries[1]); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	wantSlots := []int{1, 3, 4}
	got := collectForward(p)
	if len(got) != len(wantSlots) {
		t.Fatalf("got %d entries, want %d", len(got), len(wantSlots))
	}
	for i, e := range got {
		loc, ok := e.Location()
		if !ok {
			t.Fatalf("entry %d has no location", i)
		}
		if loc.Page != p.ID() || loc.Slot != wantSlots[i] {
			t.Errorf("entry %d location: got %v, want slot %d", i, loc, wantSlots[i])
		}
	}

	rev := collectReverse(p)
	for i, e := range rev {
		loc, _ := e.Location()
		if loc.Slot != wantSlots[len(wantSlots)-1-i] {
			t.Errorf("reverse entry %d location: got slot %d, want %d", i, loc.Slot, wantSlots[len(wantSlots)-1-i])
		}
	}
}

func TestIteratorEntriesAreDetachedCopies(t *testing.T) {
	const tid TxnID = 9
	p := fourKeyPage(t, tid)

	e, ok := p.Iterator().Next()
	if !ok {
		t.Fatal("no first entry")
	}
	e.Key[0] ^= 0xFF

	fresh, _ := p.Iterator().Next()
	if ParseInt64Key(fresh.Key) != 10 {
		t.Error("mutating an iterated entry's key wrote through to the page")
	}
}

func TestSingleEntryIteration(t *testing.T) {
	const tid TxnID = 9
	p := newTestPage(t)
	if err := p.InsertEntry(tid, NewEntry(Int64Key(10), leafChild(100), leafChild(101))); err != nil {
		t.Fatalf("InsertEntry failed: %v", err)
	}

	fwd := collectForward(p)
	rev := collectReverse(p)
	if len(fwd) != 1 || len(rev) != 1 {
		t.Fatalf("got %d forward and %d reverse entries, want 1 and 1", len(fwd), len(rev))
	}
	if fwd[0].Left != rev[0].Left || fwd[0].Right != rev[0].Right {
		t.Errorf("forward %v and reverse %v disagree", fwd[0], rev[0])
	}
	if fwd[0].Left != leafChild(100) || fwd[0].Right != leafChild(101) {
		t.Errorf("children: got %v / %v", fwd[0].Left, fwd[0].Right)
	}
}
