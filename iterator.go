package cask

import (
	"context"
	"fmt"
	"iter"

	"github.com/beyondbrewing/cask/script"
)

// scriptIterate pulls the next live record at or after $id. $id persists
// between runs because globals survive Execute.
const scriptIterate = `
	$ret = null;
	$last = db_last_record_id($collection);
	while ($id <= $last && $ret === null) {
		$ret = db_fetch_by_id($collection, $id);
		$id += 1;
	}`

// Iterator walks the records of a collection in id order with a VM of its
// own. Once exhausted it stays exhausted until Reset.
//
//	it, _ := users.Iterator()
//	defer it.Close()
//	for it.Next() {
//		fmt.Println(it.Record())
//	}
//	if err := it.Err(); err != nil { ... }
type Iterator struct {
	c    *Collection
	vm   *script.VM
	rec  any
	err  error
	done bool
}

func newIterator(c *Collection) (*Iterator, error) {
	vm, err := c.db.VM(scriptIterate)
	if err != nil {
		return nil, err
	}
	it := &Iterator{c: c, vm: vm}
	if err := vm.Bind("collection", c.name); err != nil {
		_ = vm.Close()
		return nil, err
	}
	if err := it.Reset(); err != nil {
		_ = vm.Close()
		return nil, err
	}
	return it, nil
}

// Next advances to the next record and reports whether there is one.
func (it *Iterator) Next() bool {
	if it.done || it.err != nil {
		return false
	}
	it.vm.Reset()
	if err := it.vm.Execute(context.Background()); err != nil {
		it.err = fmt.Errorf("cask: iterate %s: %w", it.c.name, err)
		it.rec = nil
		return false
	}
	it.rec, _ = it.vm.Extract("ret")
	if it.rec == nil {
		it.done = true
		return false
	}
	return true
}

// Record returns the record Next moved to.
func (it *Iterator) Record() any { return it.rec }

// Err returns the error that stopped the iteration, if any.
func (it *Iterator) Err() error { return it.err }

// Reset moves the iterator back before the first record.
func (it *Iterator) Reset() error {
	if err := it.vm.Bind("id", int64(0)); err != nil {
		return err
	}
	it.rec, it.err, it.done = nil, nil, false
	return nil
}

// All resets the iterator and yields every record, so the same iterator
// can be ranged over repeatedly. Check Err afterwards.
func (it *Iterator) All() iter.Seq[any] {
	return func(yield func(any) bool) {
		if err := it.Reset(); err != nil {
			it.err = err
			return
		}
		for it.Next() {
			if !yield(it.Record()) {
				return
			}
		}
	}
}

// Close releases the iterator's VM.
func (it *Iterator) Close() error {
	return it.vm.Close()
}
