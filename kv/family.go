package kv

import (
	"iter"

	"github.com/beyondbrewing/cask/db"
)

// Family is one column family of a Store. Reads and writes go through the
// store's transaction routing, so a family shares transactions, auto-commit
// and cursor invalidation with every other family of the same store.
type Family struct {
	store *Store
	name  string
}

// Name returns the column family name.
func (f *Family) Name() string { return f.name }

// Put stores value under key, replacing any previous value.
func (f *Family) Put(key, value []byte) error {
	w, err := f.store.writer()
	if err != nil {
		return err
	}
	if err := w.Put(f.name, key, value); err != nil {
		return translate(err)
	}
	f.store.bump()
	f.store.metrics.writes.Inc()
	return nil
}

// Get returns the value stored under key, or ErrNotFound.
func (f *Family) Get(key []byte) ([]byte, error) {
	r, err := f.store.reader()
	if err != nil {
		return nil, err
	}
	f.store.metrics.reads.Inc()
	v, err := r.Get(f.name, key)
	if err != nil {
		return nil, translate(err)
	}
	return v, nil
}

// Exists reports whether key is present.
func (f *Family) Exists(key []byte) (bool, error) {
	r, err := f.store.reader()
	if err != nil {
		return false, err
	}
	f.store.metrics.reads.Inc()
	ok, err := r.Has(f.name, key)
	return ok, translate(err)
}

// Delete removes key, or returns ErrNotFound.
func (f *Family) Delete(key []byte) error {
	ok, err := f.Exists(key)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return f.Remove(key)
}

// Remove deletes key without checking that it exists.
func (f *Family) Remove(key []byte) error {
	w, err := f.store.writer()
	if err != nil {
		return err
	}
	if err := w.Delete(f.name, key); err != nil {
		return translate(err)
	}
	f.store.bump()
	f.store.metrics.deletes.Inc()
	return nil
}

// Append concatenates suffix to the value under key, storing suffix alone
// when key is absent.
func (f *Family) Append(key, suffix []byte) error {
	old, err := f.Get(key)
	switch {
	case err == nil:
		return f.Put(key, append(old, suffix...))
	case isNotFound(err):
		return f.Put(key, suffix)
	default:
		return err
	}
}

// Cursor returns a new cursor over the family, starting on the first
// entry. The caller must Close it before closing the store.
func (f *Family) Cursor() (*Cursor, error) {
	if f.store.closed {
		return nil, ErrClosed
	}
	c := &Cursor{family: f, fresh: true}
	f.store.cursors[c] = struct{}{}
	return c, nil
}

// Clear deletes every entry, walking a cursor from first to last.
func (f *Family) Clear() error {
	c, err := f.Cursor()
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.First(); err != nil {
		return err
	}
	for c.Valid() {
		if err := c.Delete(); err != nil {
			return err
		}
	}
	return c.Err()
}

// Count returns the number of live entries by traversing them all.
func (f *Family) Count() (int, error) {
	c, err := f.Cursor()
	if err != nil {
		return 0, err
	}
	defer c.Close()

	n := 0
	for range c.All() {
		n++
	}
	return n, c.Err()
}

// NewIterator opens a raw backend iterator on the family's current view
// (transaction, buffered writes or committed data). The caller must close
// it before the next mutation.
func (f *Family) NewIterator() (db.Iterator, error) {
	r, err := f.store.reader()
	if err != nil {
		return nil, err
	}
	it, err := r.NewIterator(f.name)
	return it, translate(err)
}

// scan walks entries from start (or the first key) and asks accept about
// each key: whether to yield it and whether to continue afterwards.
func (f *Family) scan(start []byte, accept func(key []byte) (yield, more bool)) iter.Seq2[[]byte, []byte] {
	return func(yield func([]byte, []byte) bool) {
		c, err := f.Cursor()
		if err != nil {
			f.store.log.Error("scan failed", "family", f.name, "error", err)
			return
		}
		defer c.Close()

		if start != nil {
			err = c.Seek(start, GreaterOrEqual)
		} else {
			err = c.First()
		}
		if err != nil {
			f.store.log.Error("scan failed", "family", f.name, "error", err)
			return
		}

		for k, v := range c.All() {
			emit, more := accept(k)
			if emit && !yield(k, v) {
				return
			}
			if !more {
				return
			}
		}
		if err := c.Err(); err != nil {
			f.store.log.Error("scan failed", "family", f.name, "error", err)
		}
	}
}
