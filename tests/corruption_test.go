package tests

import (
	"os"
	"testing"

	"github.com/betuladb/betula"
)

// TestCorruptionDetection verifies that damaged files surface
// ErrCorruptPage instead of decoding garbage.
func TestCorruptionDetection(t *testing.T) {
	t.Run("RaggedFileSize", testRaggedFileSize)
	t.Run("BadChildCategoryByte", testBadChildCategoryByte)
	t.Run("StrayOccupancyBit", testStrayOccupancyBit)
	t.Run("BadRootCategoryByte", testBadRootCategoryByte)
}

// buildOnePageIndex creates an index whose page 1 is an internal node
// with a few entries, then closes it.
func buildOnePageIndex(t *testing.T, path string) betula.PageID {
	t.Helper()
	f, err := betula.OpenFile(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	const tid = betula.TxnID(1)
	pid, err := f.AllocatePage(tid, betula.CatInternal)
	if err != nil {
		t.Fatal(err)
	}
	pg, err := f.GetPage(pid)
	if err != nil {
		t.Fatal(err)
	}
	node := pg.(*betula.InternalPage)
	fillInternal(t, f, node, tid, 3)
	if err := f.WritePage(node); err != nil {
		t.Fatal(err)
	}
	return pid
}

func corruptByte(t *testing.T, path string, off int64, change func(byte) byte) {
	t.Helper()
	fh, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer fh.Close()

	var b [1]byte
	if _, err := fh.ReadAt(b[:], off); err != nil {
		t.Fatal(err)
	}
	b[0] = change(b[0])
	if _, err := fh.WriteAt(b[:], off); err != nil {
		t.Fatal(err)
	}
}

func testRaggedFileSize(t *testing.T) {
	path, cleanup := makeTempPath(t)
	defer cleanup()
	buildOnePageIndex(t, path)

	fh, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		t.Fatal(err)
	}
	if err := fh.Truncate(int64(betula.DefaultPageSize) + betula.DefaultPageSize/2); err != nil {
		t.Fatal(err)
	}
	fh.Close()

	if _, err := betula.OpenFile(path, nil); !betula.IsCorruptPage(err) {
		t.Errorf("ragged file: got %v, want corrupt page", err)
	}
}

func testBadChildCategoryByte(t *testing.T) {
	path, cleanup := makeTempPath(t)
	defer cleanup()
	pid := buildOnePageIndex(t, path)

	// Byte 0 of an internal page names the child category.
	corruptByte(t, path, int64(pid.PageNo)*int64(betula.DefaultPageSize), func(byte) byte { return 0xFF })

	f, err := betula.OpenFile(path, nil)
	if err != nil {
		t.Fatalf("open should succeed, only page 1 is damaged: %v", err)
	}
	defer f.Close()
	if _, err := f.GetPage(pid); !betula.IsCorruptPage(err) {
		t.Errorf("got %v, want corrupt page", err)
	}
}

func testStrayOccupancyBit(t *testing.T) {
	path, cleanup := makeTempPath(t)
	defer cleanup()
	pid := buildOnePageIndex(t, path)

	// First bit past the last slot, inside the bitmap's trailing byte.
	slotCount := betula.MaxEntriesFor(betula.Int64KeySpec(), betula.DefaultPageSize) + 1
	if slotCount%8 == 0 {
		t.Fatalf("slot count %d leaves no trailing bits to corrupt", slotCount)
	}
	off := int64(pid.PageNo)*int64(betula.DefaultPageSize) + 1 + int64(slotCount/8)
	mask := byte(1) << uint(slotCount%8)
	corruptByte(t, path, off, func(b byte) byte { return b | mask })

	f, err := betula.OpenFile(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if _, err := f.GetPage(pid); !betula.IsCorruptPage(err) {
		t.Errorf("got %v, want corrupt page", err)
	}
}

func testBadRootCategoryByte(t *testing.T) {
	path, cleanup := makeTempPath(t)
	defer cleanup()
	buildOnePageIndex(t, path)

	// Byte 4 of page 0 is the root category; OpenFile validates it.
	corruptByte(t, path, 4, func(byte) byte { return 0x7F })

	if _, err := betula.OpenFile(path, nil); !betula.IsCorruptPage(err) {
		t.Errorf("got %v, want corrupt page", err)
	}
}
