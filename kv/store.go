// Package kv is the byte-oriented layer of cask: an ordered key/value store
// with cursors, explicit transactions and an auto-commit mode, on top of a
// [db.Store] backend.
//
// A Store is meant to be driven by one logical caller. It does no locking
// of its own, so callbacks invoked during a traversal may call back into
// the store.
package kv

import (
	"bytes"
	"errors"
	"fmt"
	"iter"
	"maps"
	"slices"

	"github.com/beyondbrewing/cask/db"
	"github.com/beyondbrewing/cask/pkg/logger"
	"github.com/google/uuid"
)

// Store is an open key/value database handle.
type Store struct {
	backend db.Store
	path    string
	cfg     *Config
	log     logger.Logger
	metrics *storeMetrics

	// txn is the explicit transaction, pending the implicit batch that
	// collects writes while auto-commit is off. At most one is non-nil.
	txn        *Txn
	txnSeq     uint64
	pending    db.Batch
	autoCommit bool

	// gen changes on every mutation and transaction boundary; cursors
	// compare it to decide whether to rebuild their iterator.
	gen     uint64
	cursors map[*Cursor]struct{}

	families map[string]*Family
	closed   bool
}

// Open opens the database at path. An empty path or [db.MemoryPath]
// selects a fresh in-memory database; anything else is a directory for
// the file backend.
func Open(path string, opts ...Option) (*Store, error) {
	cfg := DefaultConfig()
	for _, o := range opts {
		o(cfg)
	}

	log := cfg.Logger
	if log == nil {
		log = logger.Default()
	}
	log = log.With("component", "kv", "session", uuid.NewString())

	backend, err := db.OpenStore(path, cfg.backendOptions()...)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrOpen, path, translate(err))
	}

	s := &Store{
		backend:    backend,
		path:       path,
		cfg:        cfg,
		log:        log,
		autoCommit: cfg.AutoCommit,
		cursors:    make(map[*Cursor]struct{}),
		families:   make(map[string]*Family),
	}
	s.metrics = newStoreMetrics(s)

	log.Debug("store opened", "path", path, "auto_commit", cfg.AutoCommit, "read_only", cfg.ReadOnly)
	return s, nil
}

// Path returns the path the store was opened with.
func (s *Store) Path() string { return s.path }

// IsMemory reports whether the store is memory-backed.
func (s *Store) IsMemory() bool { return s.path == "" || s.path == db.MemoryPath }

// ReadOnly reports whether mutations are rejected.
func (s *Store) ReadOnly() bool { return s.cfg.ReadOnly }

// Family returns the handle for a registered column family.
func (s *Store) Family(name string) (*Family, error) {
	if f, ok := s.families[name]; ok {
		return f, nil
	}
	if name != db.DefaultColumnFamily && !slices.Contains(s.cfg.Families, name) {
		return nil, fmt.Errorf("kv: %w: %q", db.ErrColumnFamilyNotFound, name)
	}
	f := &Family{store: s, name: name}
	s.families[name] = f
	return f, nil
}

func (s *Store) defaultFamily() *Family {
	f, _ := s.Family(db.DefaultColumnFamily)
	return f
}

// ---------------------------------------------------------------------------
// Key/value operations on the default family
// ---------------------------------------------------------------------------

// Put stores value under key, replacing any previous value.
func (s *Store) Put(key, value []byte) error {
	return s.defaultFamily().Put(key, value)
}

// Get returns the value stored under key, or ErrNotFound.
func (s *Store) Get(key []byte) ([]byte, error) {
	return s.defaultFamily().Get(key)
}

// Exists reports whether key is present without copying its value.
func (s *Store) Exists(key []byte) (bool, error) {
	return s.defaultFamily().Exists(key)
}

// Delete removes key, or returns ErrNotFound.
func (s *Store) Delete(key []byte) error {
	return s.defaultFamily().Delete(key)
}

// Append concatenates suffix to the value under key, storing suffix alone
// when key is absent.
func (s *Store) Append(key, suffix []byte) error {
	return s.defaultFamily().Append(key, suffix)
}

// PutFormat stores fmt.Sprintf(format, args...) under key.
func (s *Store) PutFormat(key []byte, format string, args ...any) error {
	return s.Put(key, fmt.Appendf(nil, format, args...))
}

// FetchFunc hands the value under key to fn instead of returning it. An
// error from fn is wrapped in ErrAborted.
func (s *Store) FetchFunc(key []byte, fn func(value []byte) error) error {
	v, err := s.Get(key)
	if err != nil {
		return err
	}
	if err := fn(v); err != nil {
		return fmt.Errorf("%w: %w", ErrAborted, err)
	}
	return nil
}

// PutAll stores every entry of m. Outside an explicit transaction the
// writes are applied atomically.
func (s *Store) PutAll(m map[string][]byte) error {
	apply := func() error {
		for _, k := range slices.Sorted(maps.Keys(m)) {
			if err := s.Put([]byte(k), m[k]); err != nil {
				return err
			}
		}
		return nil
	}
	if s.txn != nil || !s.autoCommit {
		return apply()
	}
	return s.WithTransaction(apply)
}

// Cursor returns a new cursor over the default family. It starts on the
// first entry.
func (s *Store) Cursor() (*Cursor, error) {
	return s.defaultFamily().Cursor()
}

// Clear deletes every entry of the default family through a cursor.
func (s *Store) Clear() error {
	return s.defaultFamily().Clear()
}

// Count returns the number of live entries by traversing them all.
func (s *Store) Count() (int, error) {
	return s.defaultFamily().Count()
}

// Items iterates every entry in key order. Traversal errors end the
// sequence and are logged.
func (s *Store) Items() iter.Seq2[[]byte, []byte] {
	return s.defaultFamily().scan(nil, func([]byte) (bool, bool) { return true, true })
}

// Keys iterates every key in order.
func (s *Store) Keys() iter.Seq[[]byte] {
	return func(yield func([]byte) bool) {
		for k := range s.Items() {
			if !yield(k) {
				return
			}
		}
	}
}

// Values iterates every value in key order.
func (s *Store) Values() iter.Seq[[]byte] {
	return func(yield func([]byte) bool) {
		for _, v := range s.Items() {
			if !yield(v) {
				return
			}
		}
	}
}

// Range iterates entries from the first key >= start until end: the entry
// at end itself is yielded when inclusiveEnd is set. A nil start begins at
// the first key; a nil end runs to the last.
func (s *Store) Range(start, end []byte, inclusiveEnd bool) iter.Seq2[[]byte, []byte] {
	return s.defaultFamily().scan(start, func(k []byte) (bool, bool) {
		if end == nil {
			return true, true
		}
		switch c := bytes.Compare(k, end); {
		case c < 0:
			return true, true
		case c == 0:
			return inclusiveEnd, false
		default:
			return false, false
		}
	})
}

// ---------------------------------------------------------------------------
// Auto-commit, flush and close
// ---------------------------------------------------------------------------

// AutoCommit reports the current auto-commit mode.
func (s *Store) AutoCommit() bool { return s.autoCommit }

// SetAutoCommit switches auto-commit. Turning it back on commits writes
// buffered while it was off.
func (s *Store) SetAutoCommit(on bool) error {
	if s.closed {
		return ErrClosed
	}
	if on && !s.autoCommit {
		if err := s.commitPending(); err != nil {
			return err
		}
	}
	s.autoCommit = on
	return nil
}

// Flush commits writes buffered while auto-commit is off and asks the
// backend to persist its memtables. An explicit transaction is left alone.
func (s *Store) Flush() error {
	if s.closed {
		return ErrClosed
	}
	if err := s.commitPending(); err != nil {
		return err
	}
	return translate(s.backend.Flush())
}

func (s *Store) commitPending() error {
	if s.pending == nil {
		return nil
	}
	b := s.pending
	s.pending = nil
	s.detachIterators()
	s.bump()
	defer b.Close()

	if err := b.Commit(); err != nil {
		return translate(err)
	}
	s.log.Debug("flushed buffered writes", "ops", b.Count())
	return nil
}

// Close releases the store. An active transaction is rolled back and
// writes buffered with auto-commit off are discarded. Closing twice
// returns ErrClosed.
func (s *Store) Close() error {
	if s.closed {
		return ErrClosed
	}

	for c := range s.cursors {
		c.release()
	}
	clear(s.cursors)

	if s.txn != nil {
		s.log.Warn("rolling back transaction left open at close", "txn", s.txn.id)
		s.txn.finish(TxnRolledBack)
	}
	if s.pending != nil {
		if n := s.pending.Count(); n > 0 {
			s.log.Warn("discarding uncommitted writes", "ops", n)
		}
		s.pending.Close()
		s.pending = nil
	}

	s.closed = true
	if err := s.backend.Close(); err != nil {
		return translate(err)
	}
	s.log.Debug("store closed", "path", s.path)
	return nil
}

// ---------------------------------------------------------------------------
// Routing
// ---------------------------------------------------------------------------

// reader returns where reads go: the explicit transaction, then the
// implicit batch, then the backend.
func (s *Store) reader() (db.Reader, error) {
	if s.closed {
		return nil, ErrClosed
	}
	switch {
	case s.txn != nil:
		return s.txn.batch, nil
	case s.pending != nil:
		return s.pending, nil
	default:
		return s.backend, nil
	}
}

// writer returns where writes go, opening the implicit batch when
// auto-commit is off.
func (s *Store) writer() (db.Writer, error) {
	if s.closed {
		return nil, ErrClosed
	}
	if s.cfg.ReadOnly {
		return nil, ErrReadOnly
	}
	switch {
	case s.txn != nil:
		return s.txn.batch, nil
	case !s.autoCommit:
		if s.pending == nil {
			s.detachIterators()
			s.pending = s.backend.NewBatch()
		}
		return s.pending, nil
	default:
		return s.backend, nil
	}
}

func (s *Store) bump() { s.gen++ }

// detachIterators closes every cursor's backend iterator ahead of a batch
// being committed or discarded; cursors reopen on their next move.
func (s *Store) detachIterators() {
	for c := range s.cursors {
		c.detach()
	}
}

func isNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
