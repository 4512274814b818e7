package betula

import "fmt"

// SlotRef locates a persisted entry: the page holding it and the slot of its
// right child. Two Entry values name the same persisted entry iff their
// SlotRefs are ==; equal keys on the same page are distinct entries as long
// as their slots differ.
type SlotRef struct {
	Page PageID
	Slot int
}

func (r SlotRef) String() string {
	return fmt.Sprintf("slot %d of %s", r.Slot, r.Page)
}

// Entry is one separator of an internal page: a key plus the ids of the
// child pages immediately left and right of it. An Entry is a detached
// value; a successful insert stamps it with the slot it landed in, and a
// delete clears the stamp again. Mutating Key, Left or Right on a located
// entry does not write through to the page.
type Entry struct {
	Key   []byte
	Left  PageID
	Right PageID

	ref    SlotRef
	hasRef bool
}

// NewEntry builds a detached entry with no location
func NewEntry(key []byte, left, right PageID) *Entry {
	return &Entry{Key: key, Left: left, Right: right}
}

// Location returns where the entry is persisted, if anywhere
func (e *Entry) Location() (SlotRef, bool) {
	return e.ref, e.hasRef
}

func (e *Entry) setLocation(r SlotRef) {
	e.ref = r
	e.hasRef = true
}

func (e *Entry) clearLocation() {
	e.ref = SlotRef{}
	e.hasRef = false
}

func (e *Entry) String() string {
	if e.hasRef {
		return fmt.Sprintf("entry(key=%x left=%d right=%d at %s)", e.Key, e.Left.PageNo, e.Right.PageNo, e.ref)
	}
	return fmt.Sprintf("entry(key=%x left=%d right=%d detached)", e.Key, e.Left.PageNo, e.Right.PageNo)
}
