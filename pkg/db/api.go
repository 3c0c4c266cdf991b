// Package db defines the key-value storage used for blocks.
package db

// Reader reads single keys.
type Reader interface {
	Get(key []byte) ([]byte, error)
	Has(key []byte) (bool, error)
}

type Writer interface {
	Put(key []byte, value []byte) error
}

// KVStore is a key-value store with atomic batches and ordered iteration.
type KVStore interface {
	Reader
	Writer
	Delete(key []byte) error
	NewBatch() Batch
	NewIterator(start, end []byte) (Iterator, error)
	Close() error
}

// Batch groups writes that are applied atomically on Commit.
type Batch interface {
	Writer
	Delete(key []byte) error
	Commit() error
	Close() error
}

// Iterator walks the keys of a range in ascending order. It must be closed.
type Iterator interface {
	Next() bool
	Key() []byte
	Value() ([]byte, error)
	Valid() bool
	Close() error
}
