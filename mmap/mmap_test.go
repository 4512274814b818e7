package mmap

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestMapFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.dat")

	data := []byte("page bytes visible through the mapping")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}

	m, err := MapFile(path)
	if err != nil {
		t.Fatal(err)
	}
	defer m.Close()

	if !bytes.Equal(m.Data(), data) {
		t.Errorf("mapped data mismatch: got %q, want %q", m.Data(), data)
	}
	if m.Size() != int64(len(data)) {
		t.Errorf("size: got %d, want %d", m.Size(), len(data))
	}
}

func TestMapSeesFileWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.dat")

	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := f.Truncate(4096); err != nil {
		t.Fatal(err)
	}

	m, err := New(int(f.Fd()), 4096)
	if err != nil {
		t.Fatal(err)
	}
	defer m.Close()

	// A shared mapping reflects writes made through the descriptor.
	if _, err := f.WriteAt([]byte("written after mapping"), 100); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(m.Data()[100:121], []byte("written after mapping")) {
		t.Errorf("mapping did not observe file write: got %q", m.Data()[100:121])
	}
}

func TestRemapGrow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.dat")

	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	if err := f.Truncate(4096); err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteAt([]byte("first page"), 0); err != nil {
		t.Fatal(err)
	}

	m, err := New(int(f.Fd()), 4096)
	if err != nil {
		t.Fatal(err)
	}
	defer m.Close()

	// Grow the file, then the mapping.
	if err := f.Truncate(8192); err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteAt([]byte("second page"), 4096); err != nil {
		t.Fatal(err)
	}
	if err := m.Remap(8192); err != nil {
		t.Fatal(err)
	}

	if m.Size() != 8192 {
		t.Errorf("size after remap: got %d, want 8192", m.Size())
	}
	if !bytes.HasPrefix(m.Data(), []byte("first page")) {
		t.Error("old region corrupted by remap")
	}
	if !bytes.Equal(m.Data()[4096:4107], []byte("second page")) {
		t.Errorf("new region not visible: got %q", m.Data()[4096:4107])
	}
}

func TestInvalidSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.dat")

	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	if _, err := New(int(f.Fd()), 0); err != ErrInvalidSize {
		t.Errorf("size 0: got %v, want ErrInvalidSize", err)
	}
	if _, err := New(int(f.Fd()), -1); err != ErrInvalidSize {
		t.Errorf("size -1: got %v, want ErrInvalidSize", err)
	}
}

func TestEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.dat")
	if err := os.WriteFile(path, nil, 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := MapFile(path); err != ErrEmptyFile {
		t.Errorf("got %v, want ErrEmptyFile", err)
	}
}

func TestClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.dat")
	if err := os.WriteFile(path, []byte("close me"), 0644); err != nil {
		t.Fatal(err)
	}

	m, err := MapFile(path)
	if err != nil {
		t.Fatal(err)
	}

	if err := m.Close(); err != nil {
		t.Fatal(err)
	}
	if m.Data() != nil {
		t.Error("data should be nil after close")
	}
	if err := m.Close(); err != nil {
		t.Errorf("double close: %v", err)
	}

	if err := m.Remap(4096); err != ErrNotMapped {
		t.Errorf("remap after close: got %v, want ErrNotMapped", err)
	}
}

func TestAdvise(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.dat")
	if err := os.WriteFile(path, make([]byte, 4096), 0644); err != nil {
		t.Fatal(err)
	}

	m, err := MapFile(path)
	if err != nil {
		t.Fatal(err)
	}
	defer m.Close()

	if err := m.AdviseRandom(); err != nil {
		t.Errorf("AdviseRandom: %v", err)
	}
	if err := m.AdviseWillNeed(); err != nil {
		t.Errorf("AdviseWillNeed: %v", err)
	}
}
