package benchmarks

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"

	"github.com/betuladb/betula"
	"github.com/cockroachdb/pebble"
	mdbxgo "github.com/erigontech/mdbx-go/mdbx"
	"github.com/tecbot/gorocksdb"
	bolt "go.etcd.io/bbolt"
)

// Cached benchmark database directory
const benchCacheDir = "testdata/benchdb"

// benchTxn owns all dirty marks made while populating betula fixtures.
const benchTxn = betula.TxnID(1)

var (
	cacheMu      sync.Mutex
	betulaFiles  = make(map[string]*betula.IndexFile)
	betulaPages  = make(map[string][]betula.PageID)
	mdbxEnvs     = make(map[string]*mdbxgo.Env)
	boltDBs      = make(map[string]*bolt.DB)
	rocksDBs     = make(map[string]*gorocksdb.DB)
	pebbleDBs    = make(map[string]*pebble.DB)
)

// getCachedBetulaIndex returns a cached betula index whose internal pages
// hold numKeys ascending separator keys, creating it if needed. The second
// return value lists the internal page IDs in key order.
func getCachedBetulaIndex(b *testing.B, numKeys int) (*betula.IndexFile, []betula.PageID) {
	cacheMu.Lock()
	defer cacheMu.Unlock()

	key := fmt.Sprintf("betula_%d", numKeys)
	path := filepath.Join(benchCacheDir, fmt.Sprintf("plain_%d_betula.idx", numKeys))

	if f, ok := betulaFiles[key]; ok {
		return f, betulaPages[key]
	}

	if err := os.MkdirAll(benchCacheDir, 0755); err != nil {
		b.Fatal(err)
	}
	exists := fileExists(path)

	f, err := betula.OpenFile(path, nil)
	if err != nil {
		b.Fatal(err)
	}

	if !exists {
		b.Logf("Creating cached betula index with %d keys...", numKeys)
		populateBetulaIndex(b, f, numKeys)
	} else {
		b.Logf("Using cached betula index with %d keys", numKeys)
	}

	// Populate never frees, so every page past the root pointer is an
	// internal page in allocation (= key) order.
	pids := make([]betula.PageID, 0, f.NumPages()-1)
	for pageNo := uint32(1); pageNo < f.NumPages(); pageNo++ {
		pids = append(pids, betula.PageID{Table: f.Table(), PageNo: pageNo, Cat: betula.CatInternal})
	}

	betulaFiles[key] = f
	betulaPages[key] = pids
	return f, pids
}

// benchLeaf names the leaf child to the left of separator i. Leaves live
// outside this layer, so the IDs only have to chain consistently.
func benchLeaf(tid betula.TableID, i int) betula.PageID {
	return betula.PageID{Table: tid, PageNo: uint32(1_000_000 + i), Cat: betula.CatLeaf}
}

func populateBetulaIndex(b *testing.B, f *betula.IndexFile, numKeys int) {
	pool := betula.NewBufferPool(64)
	pool.RegisterFile(f)

	perPage := betula.MaxEntriesFor(f.Key(), f.PageSize())
	var (
		pid  betula.PageID
		node *betula.InternalPage
	)
	for i := 0; i < numKeys; i++ {
		if i%perPage == 0 {
			if node != nil {
				if err := pool.FlushPage(pid); err != nil {
					b.Fatal(err)
				}
			}
			var err error
			pid, err = f.AllocatePage(benchTxn, betula.CatInternal)
			if err != nil {
				b.Fatal(err)
			}
			pg, err := pool.GetPage(pid)
			if err != nil {
				b.Fatal(err)
			}
			node = pg.(*betula.InternalPage)
		}
		e := betula.NewEntry(betula.Int64Key(int64(i)), benchLeaf(f.Table(), i), benchLeaf(f.Table(), i+1))
		if err := node.InsertEntry(benchTxn, e); err != nil {
			b.Fatal(err)
		}
	}
	if node != nil {
		if err := pool.FlushPage(pid); err != nil {
			b.Fatal(err)
		}
	}
	if err := f.Sync(); err != nil {
		b.Fatal(err)
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// getCachedMdbxEnv returns a cached mdbx environment with numKeys entries
// in table "bench", creating it if needed.
func getCachedMdbxEnv(b *testing.B, numKeys int) *mdbxgo.Env {
	cacheMu.Lock()
	defer cacheMu.Unlock()

	key := fmt.Sprintf("mdbx_%d", numKeys)
	path := filepath.Join(benchCacheDir, fmt.Sprintf("plain_%d_mdbx.db", numKeys))

	if env, ok := mdbxEnvs[key]; ok {
		return env
	}

	if err := os.MkdirAll(benchCacheDir, 0755); err != nil {
		b.Fatal(err)
	}
	exists := fileExists(path)

	runtime.LockOSThread()
	env, err := mdbxgo.NewEnv(mdbxgo.Label("bench"))
	if err != nil {
		b.Fatal(err)
	}
	env.SetOption(mdbxgo.OptMaxDB, 10)
	env.SetGeometry(-1, -1, 1<<32, -1, -1, 4096)
	if err := env.Open(path, mdbxgo.NoSubdir|mdbxgo.NoMetaSync|mdbxgo.WriteMap, 0644); err != nil {
		b.Fatal(err)
	}
	runtime.UnlockOSThread()

	if !exists {
		b.Logf("Creating cached mdbx DB with %d keys...", numKeys)
		populateMdbxEnv(b, env, numKeys)
	} else {
		b.Logf("Using cached mdbx DB with %d keys", numKeys)
	}

	mdbxEnvs[key] = env
	return env
}

func populateMdbxEnv(b *testing.B, env *mdbxgo.Env, numKeys int) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	txn, err := env.BeginTxn(nil, 0)
	if err != nil {
		b.Fatal(err)
	}
	dbi, err := txn.OpenDBI("bench", mdbxgo.Create, nil, nil)
	if err != nil {
		b.Fatal(err)
	}

	batchSize := 100_000
	key := make([]byte, 8)
	val := make([]byte, 32)

	for i := 0; i < numKeys; i++ {
		binary.BigEndian.PutUint64(key, uint64(i))
		binary.BigEndian.PutUint64(val, uint64(i))

		if err := txn.Put(dbi, key, val, mdbxgo.Upsert); err != nil {
			b.Fatal(err)
		}

		if (i+1)%batchSize == 0 {
			if _, err := txn.Commit(); err != nil {
				b.Fatal(err)
			}
			txn, err = env.BeginTxn(nil, 0)
			if err != nil {
				b.Fatal(err)
			}
		}
	}

	if _, err := txn.Commit(); err != nil {
		b.Fatal(err)
	}
}

// getCachedBoltDB returns a cached BoltDB database with numKeys entries in
// bucket "bench", creating it if needed.
func getCachedBoltDB(b *testing.B, numKeys int) *bolt.DB {
	cacheMu.Lock()
	defer cacheMu.Unlock()

	key := fmt.Sprintf("bolt_%d", numKeys)
	path := filepath.Join(benchCacheDir, fmt.Sprintf("plain_%d_bolt.db", numKeys))

	if db, ok := boltDBs[key]; ok {
		return db
	}

	if err := os.MkdirAll(benchCacheDir, 0755); err != nil {
		b.Fatal(err)
	}
	exists := fileExists(path)

	db, err := bolt.Open(path, 0644, &bolt.Options{
		NoSync:         true,
		NoFreelistSync: true,
	})
	if err != nil {
		b.Fatal(err)
	}

	if !exists {
		b.Logf("Creating cached BoltDB with %d keys...", numKeys)
		populateBoltDB(b, db, numKeys)
	} else {
		b.Logf("Using cached BoltDB with %d keys", numKeys)
	}

	boltDBs[key] = db
	return db
}

func populateBoltDB(b *testing.B, db *bolt.DB, numKeys int) {
	batchSize := 100_000
	key := make([]byte, 8)
	val := make([]byte, 32)

	for written := 0; written < numKeys; written += batchSize {
		end := written + batchSize
		if end > numKeys {
			end = numKeys
		}
		err := db.Update(func(tx *bolt.Tx) error {
			bucket, err := tx.CreateBucketIfNotExists([]byte("bench"))
			if err != nil {
				return err
			}
			for i := written; i < end; i++ {
				binary.BigEndian.PutUint64(key, uint64(i))
				binary.BigEndian.PutUint64(val, uint64(i))
				if err := bucket.Put(key, val); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			b.Fatal(err)
		}
	}
}

// getCachedRocksDB returns a cached RocksDB database with numKeys entries,
// creating it if needed.
func getCachedRocksDB(b *testing.B, numKeys int) *gorocksdb.DB {
	cacheMu.Lock()
	defer cacheMu.Unlock()

	key := fmt.Sprintf("rocks_%d", numKeys)
	path := filepath.Join(benchCacheDir, fmt.Sprintf("plain_%d_rocks.db", numKeys))

	if db, ok := rocksDBs[key]; ok {
		return db
	}

	if err := os.MkdirAll(benchCacheDir, 0755); err != nil {
		b.Fatal(err)
	}
	exists := fileExists(path)

	opts := gorocksdb.NewDefaultOptions()
	opts.SetCreateIfMissing(true)
	opts.SetWriteBufferSize(64 * 1024 * 1024)
	opts.SetMaxWriteBufferNumber(3)
	opts.SetTargetFileSizeBase(64 * 1024 * 1024)

	db, err := gorocksdb.OpenDb(opts, path)
	if err != nil {
		b.Fatal(err)
	}

	if !exists {
		b.Logf("Creating cached RocksDB with %d keys...", numKeys)
		populateRocksDB(b, db, numKeys)
	} else {
		b.Logf("Using cached RocksDB with %d keys", numKeys)
	}

	rocksDBs[key] = db
	return db
}

func populateRocksDB(b *testing.B, db *gorocksdb.DB, numKeys int) {
	wo := gorocksdb.NewDefaultWriteOptions()
	defer wo.Destroy()

	batch := gorocksdb.NewWriteBatch()
	defer batch.Destroy()

	batchSize := 100_000
	key := make([]byte, 8)
	val := make([]byte, 32)

	for i := 0; i < numKeys; i++ {
		binary.BigEndian.PutUint64(key, uint64(i))
		binary.BigEndian.PutUint64(val, uint64(i))

		batch.Put(key, val)

		if (i+1)%batchSize == 0 {
			if err := db.Write(wo, batch); err != nil {
				b.Fatal(err)
			}
			batch.Clear()
		}
	}

	if batch.Count() > 0 {
		if err := db.Write(wo, batch); err != nil {
			b.Fatal(err)
		}
	}
}

// getCachedPebbleDB returns a cached Pebble database with numKeys entries,
// creating it if needed.
func getCachedPebbleDB(b *testing.B, numKeys int) *pebble.DB {
	cacheMu.Lock()
	defer cacheMu.Unlock()

	key := fmt.Sprintf("pebble_%d", numKeys)
	path := filepath.Join(benchCacheDir, fmt.Sprintf("plain_%d_pebble", numKeys))

	if db, ok := pebbleDBs[key]; ok {
		return db
	}

	if err := os.MkdirAll(benchCacheDir, 0755); err != nil {
		b.Fatal(err)
	}
	exists := fileExists(path)

	db, err := pebble.Open(path, &pebble.Options{
		MemTableSize:                16 << 20,
		MemTableStopWritesThreshold: 4,
		L0CompactionThreshold:       4,
		L0StopWritesThreshold:       12,
	})
	if err != nil {
		b.Fatal(err)
	}

	if !exists {
		b.Logf("Creating cached Pebble DB with %d keys...", numKeys)
		populatePebbleDB(b, db, numKeys)
	} else {
		b.Logf("Using cached Pebble DB with %d keys", numKeys)
	}

	pebbleDBs[key] = db
	return db
}

func populatePebbleDB(b *testing.B, db *pebble.DB, numKeys int) {
	batchSize := 100_000
	key := make([]byte, 8)
	val := make([]byte, 32)

	batch := db.NewBatch()
	for i := 0; i < numKeys; i++ {
		binary.BigEndian.PutUint64(key, uint64(i))
		binary.BigEndian.PutUint64(val, uint64(i))

		if err := batch.Set(key, val, nil); err != nil {
			b.Fatal(err)
		}

		if (i+1)%batchSize == 0 {
			if err := batch.Commit(pebble.NoSync); err != nil {
				b.Fatal(err)
			}
			batch = db.NewBatch()
		}
	}
	if err := batch.Commit(pebble.NoSync); err != nil {
		b.Fatal(err)
	}
}

// CleanupBenchCache closes all cached databases.
// Call this in TestMain or after benchmarks complete.
func CleanupBenchCache() {
	cacheMu.Lock()
	defer cacheMu.Unlock()

	for _, f := range betulaFiles {
		f.Close()
	}
	for _, env := range mdbxEnvs {
		env.Close()
	}
	for _, db := range boltDBs {
		db.Close()
	}
	for _, db := range rocksDBs {
		db.Close()
	}
	for _, db := range pebbleDBs {
		db.Close()
	}
	betulaFiles = make(map[string]*betula.IndexFile)
	betulaPages = make(map[string][]betula.PageID)
	mdbxEnvs = make(map[string]*mdbxgo.Env)
	boltDBs = make(map[string]*bolt.DB)
	rocksDBs = make(map[string]*gorocksdb.DB)
	pebbleDBs = make(map[string]*pebble.DB)
}

// DeleteBenchCache removes all cached database files.
func DeleteBenchCache() error {
	return os.RemoveAll(benchCacheDir)
}
