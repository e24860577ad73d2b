package storage

import (
	"errors"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	lvlstorage "github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// ErrNotFound is returned by Get when the key is absent.
var ErrNotFound = errors.New("storage: key not found")

// ErrReadOnly is returned by writes against a read-only view.
var ErrReadOnly = errors.New("storage: read-only view")

// Reader is the read half of a key-value store.
type Reader interface {
	Get(key []byte) ([]byte, error)
	Has(key []byte) (bool, error)
}

// Writer is the write half of a key-value store.
type Writer interface {
	Put(key []byte, value []byte) error
	Delete(key []byte) error
}

// Store combines reads and writes.
type Store interface {
	Reader
	Writer
}

// Transaction is an atomic batch of reads and writes. Either Commit or Discard
// must be called exactly once.
type Transaction interface {
	Store
	Commit() error
	Discard()
}

// Snapshot is a consistent read-only view of committed data.
type Snapshot interface {
	Reader
	Release()
}

// Database is the persistent key-value store backing the ledger.
type Database interface {
	Store
	OpenTransaction() (Transaction, error)
	NewSnapshot() (Snapshot, error)
	Keys(prefix []byte) ([][]byte, error)
	Close()
}

// LevelDB is a Database implemented on goleveldb.
type LevelDB struct {
	db *leveldb.DB
}

// NewLevelDB creates or opens a LevelDB database at the specified path.
func NewLevelDB(path string) (*LevelDB, error) {
	db, err := leveldb.OpenFile(path, &opt.Options{ErrorIfMissing: false})
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", path, err)
	}
	return &LevelDB{db: db}, nil
}

// NewMemDB returns a LevelDB instance backed by in-memory storage. Mainly for
// tests and ephemeral nodes.
func NewMemDB() *LevelDB {
	db, err := leveldb.Open(lvlstorage.NewMemStorage(), nil)
	if err != nil {
		// Memory storage cannot fail to open.
		panic(fmt.Sprintf("storage: open memdb: %v", err))
	}
	return &LevelDB{db: db}
}

// Put inserts or updates a key-value pair.
func (ldb *LevelDB) Put(key []byte, value []byte) error {
	return ldb.db.Put(key, value, nil)
}

// Get retrieves a value for a given key.
func (ldb *LevelDB) Get(key []byte) ([]byte, error) {
	return translate(ldb.db.Get(key, nil))
}

// Has reports whether key exists.
func (ldb *LevelDB) Has(key []byte) (bool, error) {
	return ldb.db.Has(key, nil)
}

// Delete removes key. Missing keys are not an error.
func (ldb *LevelDB) Delete(key []byte) error {
	return ldb.db.Delete(key, nil)
}

// OpenTransaction starts an atomic write batch. Writes to the database block
// until the transaction is committed or discarded.
func (ldb *LevelDB) OpenTransaction() (Transaction, error) {
	tx, err := ldb.db.OpenTransaction()
	if err != nil {
		return nil, err
	}
	return &levelTx{tx: tx}, nil
}

// NewSnapshot returns a point-in-time read view.
func (ldb *LevelDB) NewSnapshot() (Snapshot, error) {
	snap, err := ldb.db.GetSnapshot()
	if err != nil {
		return nil, err
	}
	return &levelSnapshot{snap: snap}, nil
}

// Keys lists every key with the supplied prefix in lexical order.
func (ldb *LevelDB) Keys(prefix []byte) ([][]byte, error) {
	iter := ldb.db.NewIterator(util.BytesPrefix(prefix), nil)
	defer iter.Release()
	var keys [][]byte
	for iter.Next() {
		keys = append(keys, append([]byte(nil), iter.Key()...))
	}
	return keys, iter.Error()
}

// Close closes the database connection.
func (ldb *LevelDB) Close() {
	ldb.db.Close()
}

type levelTx struct {
	tx *leveldb.Transaction
}

func (t *levelTx) Get(key []byte) ([]byte, error) { return translate(t.tx.Get(key, nil)) }

func (t *levelTx) Has(key []byte) (bool, error) { return t.tx.Has(key, nil) }

func (t *levelTx) Put(key []byte, value []byte) error { return t.tx.Put(key, value, nil) }

func (t *levelTx) Delete(key []byte) error { return t.tx.Delete(key, nil) }

func (t *levelTx) Commit() error { return t.tx.Commit() }

func (t *levelTx) Discard() { t.tx.Discard() }

type levelSnapshot struct {
	snap *leveldb.Snapshot
}

func (s *levelSnapshot) Get(key []byte) ([]byte, error) { return translate(s.snap.Get(key, nil)) }

func (s *levelSnapshot) Has(key []byte) (bool, error) { return s.snap.Has(key, nil) }

func (s *levelSnapshot) Release() { s.snap.Release() }

// ReadOnly adapts a Reader into a Store whose writes fail with ErrReadOnly.
func ReadOnly(r Reader) Store { return readOnly{r} }

type readOnly struct{ Reader }

func (readOnly) Put([]byte, []byte) error { return ErrReadOnly }

func (readOnly) Delete([]byte) error { return ErrReadOnly }

func translate(value []byte, err error) ([]byte, error) {
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, ErrNotFound
	}
	return value, err
}
