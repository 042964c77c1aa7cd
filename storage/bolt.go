package storage

import (
	"errors"
	"time"

	bolt "go.etcd.io/bbolt"
)

var boltBucket = []byte("stablebond")

// BoltDB is a single-file persistent store backed by bbolt. All keys live in
// one bucket.
type BoltDB struct {
	db *bolt.DB
}

// NewBoltDB opens (and migrates) the bbolt file at path.
func NewBoltDB(path string, options *bolt.Options) (*BoltDB, error) {
	if options == nil {
		options = &bolt.Options{Timeout: time.Second}
	} else if options.Timeout == 0 {
		options.Timeout = time.Second
	}
	db, err := bolt.Open(path, 0o600, options)
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(boltBucket)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &BoltDB{db: db}, nil
}

// View runs fn inside a read-only bbolt transaction.
func (b *BoltDB) View(fn func(Reader) error) error {
	return b.db.View(func(tx *bolt.Tx) error {
		return fn(boltTxn{bucket: tx.Bucket(boltBucket)})
	})
}

// Update runs fn inside a read-write bbolt transaction which rolls back when
// fn returns an error.
func (b *BoltDB) Update(fn func(Txn) error) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return fn(boltTxn{bucket: tx.Bucket(boltBucket)})
	})
}

// Close releases the file lock.
func (b *BoltDB) Close() error {
	return b.db.Close()
}

type boltTxn struct {
	bucket *bolt.Bucket
}

func (t boltTxn) Get(key []byte) ([]byte, error) {
	if t.bucket == nil {
		return nil, errors.New("storage: bucket missing")
	}
	value := t.bucket.Get(key)
	if value == nil {
		return nil, ErrNotFound
	}
	// bbolt values are only valid for the life of the transaction.
	return append([]byte(nil), value...), nil
}

func (t boltTxn) Has(key []byte) (bool, error) {
	if t.bucket == nil {
		return false, errors.New("storage: bucket missing")
	}
	return t.bucket.Get(key) != nil, nil
}

func (t boltTxn) Put(key []byte, value []byte) error {
	return t.bucket.Put(key, value)
}

func (t boltTxn) Delete(key []byte) error {
	return t.bucket.Delete(key)
}
