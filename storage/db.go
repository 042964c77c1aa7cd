package storage

import (
	"errors"
	"sort"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
)

// ErrNotFound is returned by Get when the key is absent.
var ErrNotFound = errors.New("storage: key not found")

// Reader exposes point lookups against a consistent snapshot.
type Reader interface {
	Get(key []byte) ([]byte, error)
	Has(key []byte) (bool, error)
}

// Txn is a read-write view whose writes become visible only when the
// enclosing Update returns nil.
type Txn interface {
	Reader
	Put(key []byte, value []byte) error
	Delete(key []byte) error
}

// Database is a generic interface for a transactional key-value store.
// Backends are in-memory (tests), LevelDB and BoltDB.
type Database interface {
	View(fn func(Reader) error) error
	Update(fn func(Txn) error) error
	Close() error
}

// --- In-Memory DB (for testing) ---

type MemDB struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemDB() *MemDB {
	return &MemDB{
		data: make(map[string][]byte),
	}
}

// View runs fn under a read lock.
func (db *MemDB) View(fn func(Reader) error) error {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return fn(memReader{data: db.data})
}

// Update stages every write in an overlay and applies the overlay only when fn
// succeeds.
func (db *MemDB) Update(fn func(Txn) error) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	txn := &memTxn{base: db.data, writes: make(map[string][]byte), deletes: make(map[string]struct{})}
	if err := fn(txn); err != nil {
		return err
	}
	for key := range txn.deletes {
		delete(db.data, key)
	}
	for key, value := range txn.writes {
		db.data[key] = value
	}
	return nil
}

// Keys returns the stored keys in sorted order. Intended for tests and
// diagnostics.
func (db *MemDB) Keys() []string {
	db.mu.RLock()
	defer db.mu.RUnlock()
	keys := make([]string, 0, len(db.data))
	for key := range db.data {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Close satisfies the Database interface for MemDB.
func (db *MemDB) Close() error {
	// Nothing to close for an in-memory database.
	return nil
}

type memReader struct {
	data map[string][]byte
}

func (r memReader) Get(key []byte) ([]byte, error) {
	value, ok := r.data[string(key)]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), value...), nil
}

func (r memReader) Has(key []byte) (bool, error) {
	_, ok := r.data[string(key)]
	return ok, nil
}

type memTxn struct {
	base    map[string][]byte
	writes  map[string][]byte
	deletes map[string]struct{}
}

func (t *memTxn) Get(key []byte) ([]byte, error) {
	k := string(key)
	if value, ok := t.writes[k]; ok {
		return append([]byte(nil), value...), nil
	}
	if _, ok := t.deletes[k]; ok {
		return nil, ErrNotFound
	}
	return memReader{data: t.base}.Get(key)
}

func (t *memTxn) Has(key []byte) (bool, error) {
	_, err := t.Get(key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (t *memTxn) Put(key []byte, value []byte) error {
	k := string(key)
	delete(t.deletes, k)
	t.writes[k] = append([]byte(nil), value...)
	return nil
}

func (t *memTxn) Delete(key []byte) error {
	k := string(key)
	delete(t.writes, k)
	t.deletes[k] = struct{}{}
	return nil
}

// --- Persistent DB (for nodes) ---

// LevelDB is a persistent key-value store using LevelDB.
type LevelDB struct {
	db *leveldb.DB
}

// NewLevelDB creates or opens a LevelDB database at the specified path.
func NewLevelDB(path string) (*LevelDB, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}
	return &LevelDB{db: db}, nil
}

// View reads from a point-in-time snapshot.
func (ldb *LevelDB) View(fn func(Reader) error) error {
	snap, err := ldb.db.GetSnapshot()
	if err != nil {
		return err
	}
	defer snap.Release()
	return fn(levelReader{get: snap.Get, has: snap.Has})
}

// Update runs fn inside a LevelDB transaction. The transaction is discarded
// when fn fails.
func (ldb *LevelDB) Update(fn func(Txn) error) error {
	tr, err := ldb.db.OpenTransaction()
	if err != nil {
		return err
	}
	if err := fn(&levelTxn{tr: tr}); err != nil {
		tr.Discard()
		return err
	}
	return tr.Commit()
}

// Close closes the database connection.
func (ldb *LevelDB) Close() error {
	return ldb.db.Close()
}

type levelReader struct {
	get func([]byte, *opt.ReadOptions) ([]byte, error)
	has func([]byte, *opt.ReadOptions) (bool, error)
}

func (r levelReader) Get(key []byte) ([]byte, error) {
	value, err := r.get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, ErrNotFound
	}
	return value, err
}

func (r levelReader) Has(key []byte) (bool, error) {
	return r.has(key, nil)
}

type levelTxn struct {
	tr *leveldb.Transaction
}

func (t *levelTxn) Get(key []byte) ([]byte, error) {
	return levelReader{get: t.tr.Get, has: t.tr.Has}.Get(key)
}

func (t *levelTxn) Has(key []byte) (bool, error) {
	return t.tr.Has(key, nil)
}

func (t *levelTxn) Put(key []byte, value []byte) error {
	return t.tr.Put(key, value, nil)
}

func (t *levelTxn) Delete(key []byte) error {
	return t.tr.Delete(key, nil)
}
