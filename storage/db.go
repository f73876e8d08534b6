package storage

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/core/rawdb"
	"github.com/ethereum/go-ethereum/ethdb"
	"github.com/ethereum/go-ethereum/ethdb/leveldb"
	"github.com/ethereum/go-ethereum/ethdb/memorydb"
	"github.com/ethereum/go-ethereum/triedb"
	"github.com/syndtr/goleveldb/leveldb/opt"
)

// ErrNotFound is returned by Get when the key is absent.
var ErrNotFound = errors.New("storage: key not found")

// Database is a generic interface for a key-value store.
// Both the in-memory and the persistent backend expose the same trie database
// so the state layer never needs to know which one it runs on.
type Database interface {
	Put(key []byte, value []byte) error
	Get(key []byte) ([]byte, error)
	Has(key []byte) (bool, error)
	TrieDB() *triedb.Database
	Close()
}

type kvDatabase struct {
	kv     ethdb.KeyValueStore
	trieDB *triedb.Database
}

func newKVDatabase(kv ethdb.KeyValueStore) kvDatabase {
	return kvDatabase{
		kv:     kv,
		trieDB: triedb.NewDatabase(rawdb.NewDatabase(kv), triedb.HashDefaults),
	}
}

func (db kvDatabase) Put(key []byte, value []byte) error {
	return db.kv.Put(key, value)
}

func (db kvDatabase) Get(key []byte) ([]byte, error) {
	ok, err := db.kv.Has(key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	return db.kv.Get(key)
}

func (db kvDatabase) Has(key []byte) (bool, error) {
	return db.kv.Has(key)
}

func (db kvDatabase) TrieDB() *triedb.Database {
	return db.trieDB
}

// --- In-Memory DB (for testing) ---

type MemDB struct {
	kvDatabase
}

func NewMemDB() *MemDB {
	return &MemDB{kvDatabase: newKVDatabase(memorydb.New())}
}

// Close satisfies the Database interface for MemDB.
func (db *MemDB) Close() {
	_ = db.trieDB.Close()
	_ = db.kv.Close()
}

// --- Persistent DB ---

// LevelDB is a persistent key-value store using LevelDB.
type LevelDB struct {
	kvDatabase
}

const (
	levelDBCacheMB = 64
	levelDBHandles = 256
)

// NewLevelDB creates or opens a LevelDB database at the specified path.
func NewLevelDB(path string) (*LevelDB, error) {
	kv, err := leveldb.NewCustom(path, "grantchain/db/", func(options *opt.Options) {
		options.BlockCacheCapacity = levelDBCacheMB / 2 * opt.MiB
		options.WriteBuffer = levelDBCacheMB / 4 * opt.MiB
		options.OpenFilesCacheCapacity = levelDBHandles
	})
	if err != nil {
		return nil, fmt.Errorf("open leveldb %q: %w", path, err)
	}
	return &LevelDB{kvDatabase: newKVDatabase(kv)}, nil
}

// Close closes the database connection.
func (ldb *LevelDB) Close() {
	_ = ldb.trieDB.Close()
	_ = ldb.kv.Close()
}
