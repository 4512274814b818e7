package benchmarks

import (
	"encoding/binary"
	"fmt"
	"runtime"
	"testing"

	"github.com/betuladb/betula"
	mdbxgo "github.com/erigontech/mdbx-go/mdbx"
	"github.com/tecbot/gorocksdb"
	bolt "go.etcd.io/bbolt"
)

// BenchmarkIndexScan benchmarks read workloads on pre-populated indexes.
// Run with: go test -bench=BenchmarkIndexScan -benchtime=1s -run=^$ ./benchmarks/
//
// Databases are cached in testdata/benchdb/ to speed up subsequent runs.
// To clear the cache: rm -rf benchmarks/testdata/benchdb/
func BenchmarkIndexScan(b *testing.B) {
	b.Cleanup(CleanupBenchCache)

	sizes := []int{10_000, 100_000}

	for _, size := range sizes {
		sizeName := formatSize(size)

		b.Run(fmt.Sprintf("SeqScan_%s/betula", sizeName), func(b *testing.B) {
			benchSeqScanBetula(b, size)
		})
		b.Run(fmt.Sprintf("SeqScan_%s/mdbx", sizeName), func(b *testing.B) {
			benchSeqScanMdbx(b, size)
		})
		b.Run(fmt.Sprintf("SeqScan_%s/bolt", sizeName), func(b *testing.B) {
			benchSeqScanBolt(b, size)
		})
		b.Run(fmt.Sprintf("SeqScan_%s/rocksdb", sizeName), func(b *testing.B) {
			benchSeqScanRocks(b, size)
		})
		b.Run(fmt.Sprintf("SeqScan_%s/pebble", sizeName), func(b *testing.B) {
			benchSeqScanPebble(b, size)
		})

		b.Run(fmt.Sprintf("RandSeek_%s/betula", sizeName), func(b *testing.B) {
			benchRandSeekBetula(b, size)
		})
		b.Run(fmt.Sprintf("RandSeek_%s/mdbx", sizeName), func(b *testing.B) {
			benchRandSeekMdbx(b, size)
		})
		b.Run(fmt.Sprintf("RandSeek_%s/bolt", sizeName), func(b *testing.B) {
			benchRandSeekBolt(b, size)
		})
		b.Run(fmt.Sprintf("RandSeek_%s/rocksdb", sizeName), func(b *testing.B) {
			benchRandSeekRocks(b, size)
		})
		b.Run(fmt.Sprintf("RandSeek_%s/pebble", sizeName), func(b *testing.B) {
			benchRandSeekPebble(b, size)
		})
	}
}

// sampleKeysBE returns every 1000th key as a big-endian 8-byte slice, the
// encoding the comparison engines were populated with.
func sampleKeysBE(numKeys int) [][]byte {
	keys := make([][]byte, 0, numKeys/1000+1)
	for v := 0; v < numKeys; v += 1000 {
		k := make([]byte, 8)
		binary.BigEndian.PutUint64(k, uint64(v))
		keys = append(keys, k)
	}
	return keys
}

// ============ Sequential scan ============

func benchSeqScanBetula(b *testing.B, numKeys int) {
	f, pids := getCachedBetulaIndex(b, numKeys)
	pool := betula.NewBufferPool(len(pids) + 1)
	pool.RegisterFile(f)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		count := 0
		for _, pid := range pids {
			pg, err := pool.GetPage(pid)
			if err != nil {
				b.Fatal(err)
			}
			it := pg.(*betula.InternalPage).Iterator()
			for {
				if _, ok := it.Next(); !ok {
					break
				}
				count++
			}
		}
		if count != numKeys {
			b.Fatalf("scanned %d keys, want %d", count, numKeys)
		}
	}
}

func benchSeqScanMdbx(b *testing.B, numKeys int) {
	env := getCachedMdbxEnv(b, numKeys)

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	txn, err := env.BeginTxn(nil, mdbxgo.Readonly)
	if err != nil {
		b.Fatal(err)
	}
	defer txn.Abort()
	dbi, err := txn.OpenDBI("bench", 0, nil, nil)
	if err != nil {
		b.Fatal(err)
	}
	cursor, err := txn.OpenCursor(dbi)
	if err != nil {
		b.Fatal(err)
	}
	defer cursor.Close()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		count := 0
		k, _, err := cursor.Get(nil, nil, mdbxgo.First)
		for ; err == nil && k != nil; k, _, err = cursor.Get(nil, nil, mdbxgo.Next) {
			count++
		}
		if count != numKeys {
			b.Fatalf("scanned %d keys, want %d", count, numKeys)
		}
	}
}

func benchSeqScanBolt(b *testing.B, numKeys int) {
	db := getCachedBoltDB(b, numKeys)

	tx, err := db.Begin(false)
	if err != nil {
		b.Fatal(err)
	}
	defer tx.Rollback()
	bucket := tx.Bucket([]byte("bench"))
	if bucket == nil {
		b.Fatal("bucket not found")
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		count := 0
		c := bucket.Cursor()
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			count++
		}
		if count != numKeys {
			b.Fatalf("scanned %d keys, want %d", count, numKeys)
		}
	}
}

func benchSeqScanRocks(b *testing.B, numKeys int) {
	db := getCachedRocksDB(b, numKeys)

	ro := gorocksdb.NewDefaultReadOptions()
	defer ro.Destroy()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		count := 0
		it := db.NewIterator(ro)
		for it.SeekToFirst(); it.Valid(); it.Next() {
			count++
		}
		it.Close()
		if count != numKeys {
			b.Fatalf("scanned %d keys, want %d", count, numKeys)
		}
	}
}

func benchSeqScanPebble(b *testing.B, numKeys int) {
	db := getCachedPebbleDB(b, numKeys)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		it, err := db.NewIter(nil)
		if err != nil {
			b.Fatal(err)
		}
		count := 0
		for it.First(); it.Valid(); it.Next() {
			count++
		}
		if err := it.Close(); err != nil {
			b.Fatal(err)
		}
		if count != numKeys {
			b.Fatalf("scanned %d keys, want %d", count, numKeys)
		}
	}
}

// ============ Random seek ============

func benchRandSeekBetula(b *testing.B, numKeys int) {
	f, pids := getCachedBetulaIndex(b, numKeys)
	pool := betula.NewBufferPool(len(pids) + 1)
	pool.RegisterFile(f)
	spec := f.Key()
	perPage := betula.MaxEntriesFor(spec, f.PageSize())

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		for v := int64(0); v < int64(numKeys); v += 1000 {
			target := betula.Int64Key(v)
			pg, err := pool.GetPage(pids[int(v)/perPage])
			if err != nil {
				b.Fatal(err)
			}
			it := pg.(*betula.InternalPage).Iterator()
			found := false
			for {
				e, ok := it.Next()
				if !ok {
					break
				}
				if spec.Compare(e.Key, target) >= 0 {
					found = spec.Compare(e.Key, target) == 0
					break
				}
			}
			if !found {
				b.Fatalf("key %d not found", v)
			}
		}
	}
}

func benchRandSeekMdbx(b *testing.B, numKeys int) {
	env := getCachedMdbxEnv(b, numKeys)
	samples := sampleKeysBE(numKeys)

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	txn, err := env.BeginTxn(nil, mdbxgo.Readonly)
	if err != nil {
		b.Fatal(err)
	}
	defer txn.Abort()
	dbi, err := txn.OpenDBI("bench", 0, nil, nil)
	if err != nil {
		b.Fatal(err)
	}
	cursor, err := txn.OpenCursor(dbi)
	if err != nil {
		b.Fatal(err)
	}
	defer cursor.Close()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		for _, k := range samples {
			if _, _, err := cursor.Get(k, nil, mdbxgo.Set); err != nil {
				b.Fatal(err)
			}
		}
	}
}

func benchRandSeekBolt(b *testing.B, numKeys int) {
	db := getCachedBoltDB(b, numKeys)
	samples := sampleKeysBE(numKeys)

	tx, err := db.Begin(false)
	if err != nil {
		b.Fatal(err)
	}
	defer tx.Rollback()
	bucket := tx.Bucket([]byte("bench"))
	if bucket == nil {
		b.Fatal("bucket not found")
	}
	c := bucket.Cursor()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		for _, k := range samples {
			if fk, _ := c.Seek(k); fk == nil {
				b.Fatalf("key %x not found", k)
			}
		}
	}
}

func benchRandSeekRocks(b *testing.B, numKeys int) {
	db := getCachedRocksDB(b, numKeys)
	samples := sampleKeysBE(numKeys)

	ro := gorocksdb.NewDefaultReadOptions()
	defer ro.Destroy()
	it := db.NewIterator(ro)
	defer it.Close()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		for _, k := range samples {
			it.Seek(k)
			if !it.Valid() {
				b.Fatalf("key %x not found", k)
			}
		}
	}
}

func benchRandSeekPebble(b *testing.B, numKeys int) {
	db := getCachedPebbleDB(b, numKeys)
	samples := sampleKeysBE(numKeys)

	it, err := db.NewIter(nil)
	if err != nil {
		b.Fatal(err)
	}
	defer it.Close()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		for _, k := range samples {
			if !it.SeekGE(k) {
				b.Fatalf("key %x not found", k)
			}
		}
	}
}
