package kv

import (
	"bytes"
	"errors"
	"fmt"
	"iter"

	"github.com/beyondbrewing/cask/db"
)

// SeekMode selects how Seek treats a key that is not present.
type SeekMode int

const (
	// ExactMatch fails with ErrNotFound and leaves the cursor where it was.
	ExactMatch SeekMode = iota
	// LessOrEqual lands on the largest key <= the target.
	LessOrEqual
	// GreaterOrEqual lands on the smallest key >= the target.
	GreaterOrEqual
)

func (m SeekMode) String() string {
	switch m {
	case ExactMatch:
		return "exact"
	case LessOrEqual:
		return "le"
	case GreaterOrEqual:
		return "ge"
	default:
		return fmt.Sprintf("SeekMode(%d)", int(m))
	}
}

// Item is a key/value pair read through a cursor.
type Item struct {
	Key   []byte
	Value []byte
}

// Cursor is a positional handle over one family, in ascending key order.
//
// A cursor does not snapshot: it remembers the key it sits on and, after
// any mutation of the store, re-seeks that key on its next use. If the
// entry is gone the cursor lands on its successor, so traversal never
// skips or repeats a live entry.
type Cursor struct {
	family *Family

	it    db.Iterator
	itGen uint64

	key   []byte
	valid bool

	// fresh is set until the first positioning call; a fresh cursor acts
	// as if First had been called.
	fresh bool
	// landed is set when a re-seek moved the cursor off a deleted entry
	// onto its successor, which Next then yields instead of skipping.
	// Reading the successor through Valid, Key or Value clears it.
	landed bool

	err    error
	closed bool
}

// First positions the cursor on the smallest key. On an empty family the
// cursor becomes invalid; that is not an error.
func (c *Cursor) First() error {
	return c.position(func(it db.Iterator) { it.SeekToFirst() })
}

// Last positions the cursor on the largest key.
func (c *Cursor) Last() error {
	return c.position(func(it db.Iterator) { it.SeekToLast() })
}

// Reset positions the cursor back on the first key, making a spent cursor
// iterable again.
func (c *Cursor) Reset() error {
	c.err = nil
	return c.First()
}

// Seek positions the cursor according to mode. Only ExactMatch reports a
// miss; the other modes leave the cursor invalid when nothing qualifies.
func (c *Cursor) Seek(key []byte, mode SeekMode) error {
	switch mode {
	case ExactMatch:
		if err := c.check(); err != nil {
			return err
		}
		ok, err := c.family.Exists(key)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotFound
		}
		return c.position(func(it db.Iterator) { it.Seek(key) })
	case LessOrEqual:
		return c.position(func(it db.Iterator) { it.SeekLE(key) })
	case GreaterOrEqual:
		return c.position(func(it db.Iterator) { it.Seek(key) })
	default:
		return fmt.Errorf("kv: unknown seek mode %s", mode)
	}
}

// Next advances one entry. Moving past the last entry invalidates the
// cursor and returns ErrExhausted, as does calling Next on an invalid
// cursor.
func (c *Cursor) Next() error {
	if err := c.sync(); err != nil {
		return err
	}
	if !c.valid {
		return ErrExhausted
	}
	if c.landed {
		c.landed = false
		return nil
	}
	c.it.Next()
	return c.settleStep()
}

// Prev moves back one entry, with the same exhaustion rules as Next.
func (c *Cursor) Prev() error {
	if err := c.sync(); err != nil {
		return err
	}
	if !c.valid {
		return ErrExhausted
	}
	c.landed = false
	c.it.Prev()
	return c.settleStep()
}

// Valid reports whether the cursor sits on a live entry.
func (c *Cursor) Valid() bool {
	if err := c.sync(); err != nil {
		return false
	}
	c.landed = false
	return c.valid
}

// Key returns a copy of the current key, or ErrInvalidCursor.
func (c *Cursor) Key() ([]byte, error) {
	if err := c.sync(); err != nil {
		return nil, err
	}
	if !c.valid {
		return nil, ErrInvalidCursor
	}
	c.landed = false
	return bytes.Clone(c.key), nil
}

// Value returns a copy of the current value, or ErrInvalidCursor.
func (c *Cursor) Value() ([]byte, error) {
	if err := c.sync(); err != nil {
		return nil, err
	}
	if !c.valid {
		return nil, ErrInvalidCursor
	}
	c.landed = false
	v := c.it.Value()
	if err := c.it.Err(); err != nil {
		return nil, translate(err)
	}
	if v == nil {
		v = []byte{}
	}
	return v, nil
}

// KeyFunc hands the current key to fn. An error from fn is wrapped in
// ErrAborted.
func (c *Cursor) KeyFunc(fn func(key []byte) error) error {
	k, err := c.Key()
	if err != nil {
		return err
	}
	if err := fn(k); err != nil {
		return fmt.Errorf("%w: %w", ErrAborted, err)
	}
	return nil
}

// ValueFunc hands the current value to fn. An error from fn is wrapped in
// ErrAborted.
func (c *Cursor) ValueFunc(fn func(value []byte) error) error {
	v, err := c.Value()
	if err != nil {
		return err
	}
	if err := fn(v); err != nil {
		return fmt.Errorf("%w: %w", ErrAborted, err)
	}
	return nil
}

// Delete removes the current entry and moves the cursor to its successor,
// or invalidates it when the entry was the last one.
func (c *Cursor) Delete() error {
	if err := c.sync(); err != nil {
		return err
	}
	if !c.valid {
		return ErrInvalidCursor
	}
	if err := c.family.Remove(c.key); err != nil {
		return err
	}
	err := c.sync()
	c.landed = false
	return err
}

// All yields entries from the current position to the end. The sequence
// is one-shot: once the cursor is exhausted, ranging over All again yields
// nothing until Reset. The loop body may delete the yielded entry, through
// the cursor or the store, without disturbing the traversal. Errors end
// the sequence and are reported by Err.
func (c *Cursor) All() iter.Seq2[[]byte, []byte] {
	return func(yield func([]byte, []byte) bool) {
		for {
			if err := c.sync(); err != nil {
				c.fail(err)
				return
			}
			if !c.valid {
				return
			}
			k := c.key
			v, err := c.Value()
			if err != nil {
				c.fail(err)
				return
			}
			if !yield(bytes.Clone(k), v) {
				return
			}

			if err := c.sync(); err != nil {
				c.fail(err)
				return
			}
			if !c.valid {
				return
			}
			if !bytes.Equal(c.key, k) {
				// The body already moved us, by deleting or stepping.
				c.landed = false
				continue
			}
			if err := c.Next(); err != nil {
				if !errors.Is(err, ErrExhausted) {
					c.fail(err)
				}
				return
			}
		}
	}
}

// Take collects at most n entries from the current position.
func (c *Cursor) Take(n int) ([]Item, error) {
	var out []Item
	if n <= 0 {
		return out, nil
	}
	for k, v := range c.All() {
		out = append(out, Item{Key: k, Value: v})
		if len(out) == n {
			break
		}
	}
	return out, c.Err()
}

// Until collects entries from the current position up to the entry whose
// key equals stop, which is included when inclusive is set. Without such
// an entry it runs to the end.
func (c *Cursor) Until(stop []byte, inclusive bool) ([]Item, error) {
	var out []Item
	for k, v := range c.All() {
		if bytes.Equal(k, stop) {
			if inclusive {
				out = append(out, Item{Key: k, Value: v})
			}
			break
		}
		out = append(out, Item{Key: k, Value: v})
	}
	return out, c.Err()
}

// Err returns the error that ended the last All traversal, if any.
func (c *Cursor) Err() error { return c.err }

// Close releases the cursor. Closing twice returns ErrClosed.
func (c *Cursor) Close() error {
	if c.closed {
		return ErrClosed
	}
	c.release()
	delete(c.family.store.cursors, c)
	return nil
}

// ---------------------------------------------------------------------------
// Internals
// ---------------------------------------------------------------------------

func (c *Cursor) check() error {
	if c.closed || c.family.store.closed {
		return ErrClosed
	}
	return nil
}

func (c *Cursor) fail(err error) {
	if c.err == nil {
		c.err = err
	}
}

// iterator returns a backend iterator that reflects the store's current
// generation, reopening it when the store changed underneath.
func (c *Cursor) iterator() (it db.Iterator, reopened bool, err error) {
	s := c.family.store
	if c.it != nil && c.itGen == s.gen {
		return c.it, false, nil
	}
	c.detach()
	it, err = c.family.NewIterator()
	if err != nil {
		return nil, false, err
	}
	c.it, c.itGen = it, s.gen
	return it, true, nil
}

// sync brings the iterator up to date and restores the position by key.
func (c *Cursor) sync() error {
	if err := c.check(); err != nil {
		return err
	}
	if c.fresh {
		return c.First()
	}
	it, reopened, err := c.iterator()
	if err != nil {
		return err
	}
	if !reopened || !c.valid {
		return nil
	}

	it.Seek(c.key)
	if !it.Valid() {
		c.valid, c.key, c.landed = false, nil, false
		return translate(it.Err())
	}
	if k := it.Key(); !bytes.Equal(k, c.key) {
		c.key, c.landed = k, true
	}
	return nil
}

func (c *Cursor) position(move func(db.Iterator)) error {
	if err := c.check(); err != nil {
		return err
	}
	c.fresh = false
	it, _, err := c.iterator()
	if err != nil {
		return err
	}
	move(it)
	return c.settle()
}

// settle records where the iterator ended up.
func (c *Cursor) settle() error {
	c.landed = false
	if c.it.Valid() {
		c.valid, c.key = true, c.it.Key()
		return nil
	}
	c.valid, c.key = false, nil
	return translate(c.it.Err())
}

func (c *Cursor) settleStep() error {
	if err := c.settle(); err != nil {
		return err
	}
	if !c.valid {
		return ErrExhausted
	}
	return nil
}

func (c *Cursor) detach() {
	if c.it != nil {
		c.it.Close()
		c.it = nil
	}
}

func (c *Cursor) release() {
	c.detach()
	c.closed = true
	c.valid = false
}
