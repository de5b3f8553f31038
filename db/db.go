// Package db provides the storage backends underneath cask: an ordered
// byte store with logical column families (via key-prefixing), atomic
// batches that can be read back before they commit, and bidirectional
// ordered iteration.
//
// The primary interface is [Store], satisfied by [PebbleDB] (file-backed)
// and [MemStore] (in-memory). [OpenStore] picks one from a path or the
// [MemoryPath] marker.
package db

import (
	"errors"
	"io"
)

// Sentinel errors returned by Store implementations.
var (
	ErrClosed               = errors.New("db: database is closed")
	ErrColumnFamilyNotFound = errors.New("db: column family not found")
	ErrKeyNotFound          = errors.New("db: key not found")
	ErrNilKey               = errors.New("db: key must not be nil")
	ErrBatchClosed          = errors.New("db: batch is closed")
	ErrBusy                 = errors.New("db: database is locked by another handle")
	ErrReadOnly             = errors.New("db: database is read-only")
	ErrNotExist             = errors.New("db: database does not exist")
)

// DefaultColumnFamily is the column family used when no explicit family is
// specified. It is always registered automatically.
const DefaultColumnFamily = "default"

// MemoryPath selects the in-memory backend in [OpenStore]. An empty path
// does the same.
const MemoryPath = ":mem:"

// Reader is the read side shared by stores and batches.
type Reader interface {
	// Get retrieves the value for a key in the given column family.
	// Returns ErrKeyNotFound if the key does not exist.
	// Returns ErrColumnFamilyNotFound if the column family is unknown.
	Get(cf string, key []byte) ([]byte, error)

	// Has reports whether a key exists without copying its value.
	Has(cf string, key []byte) (bool, error)

	// NewIterator creates a forward/backward iterator scoped to the given
	// column family. It observes the data as of its creation. The caller
	// must call Close on the returned Iterator.
	NewIterator(cf string) (Iterator, error)
}

// Writer is the write side shared by stores and batches.
type Writer interface {
	// Put stores a key-value pair in the given column family.
	Put(cf string, key []byte, value []byte) error

	// Delete removes a key from the given column family.
	// Deleting a non-existent key is not an error.
	Delete(cf string, key []byte) error
}

// Store defines the contract for all database operations.
// All methods are safe for concurrent use by multiple goroutines.
type Store interface {
	Reader
	Writer

	// NewBatch creates an atomic write batch. Staged operations are
	// visible through the batch's own Reader methods and are applied
	// atomically when Commit is called. The caller must call Close when
	// the batch is no longer needed.
	NewBatch() Batch

	// Flush forces all buffered writes (memtable) to persistent storage.
	Flush() error

	// Close performs a graceful shutdown: flushes pending writes, closes
	// the underlying engine, and releases all resources.
	// After Close returns, every other method returns ErrClosed and a
	// second Close returns ErrClosed.
	io.Closer
}

// Batch is an atomic write batch with read-your-writes semantics.
type Batch interface {
	Reader
	Writer

	// Count returns the number of staged operations.
	Count() int

	// Commit atomically applies all staged operations.
	Commit() error

	// Close releases batch resources. Must be called even after Commit.
	// Closing an uncommitted batch discards it.
	Close()
}

// Iterator provides ordered traversal over keys in a single column family.
// Key and Value return copies that remain valid after the iterator advances.
type Iterator interface {
	// Seek positions the iterator at the first key >= target.
	Seek(target []byte)

	// SeekLE positions the iterator at the last key <= target.
	SeekLE(target []byte)

	// SeekToFirst positions the iterator at the first key.
	SeekToFirst()

	// SeekToLast positions the iterator at the last key.
	SeekToLast()

	// Next advances the iterator by one key.
	Next()

	// Prev moves the iterator back by one key.
	Prev()

	// Valid reports whether the iterator is positioned at a valid entry.
	Valid() bool

	// Key returns a copy of the current key (prefix-stripped).
	// Only valid when Valid() is true.
	Key() []byte

	// Value returns a copy of the current value.
	// Only valid when Valid() is true.
	Value() []byte

	// Err returns any accumulated error from the underlying engine.
	Err() error

	// Close releases iterator resources.
	Close()
}

// OpenStore opens the backend named by path: [MemoryPath] or "" for a
// fresh [MemStore], anything else for a [PebbleDB] directory.
func OpenStore(path string, opts ...Option) (Store, error) {
	if path == "" || path == MemoryPath {
		return NewMemStore(opts...), nil
	}
	return Open(path, opts...)
}
