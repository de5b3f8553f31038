package cask

import (
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/beyondbrewing/cask/docs"
	"github.com/beyondbrewing/cask/kv"
	"github.com/beyondbrewing/cask/script"
)

// Scripts behind the Collection methods. Every one of them sees the
// collection name in $collection and leaves its answer in $ret.
const (
	scriptExists       = `$ret = db_exists($collection);`
	scriptCreate       = `$ret = db_create($collection);`
	scriptDrop         = `$ret = db_drop_collection($collection);`
	scriptAll          = `$ret = db_fetch_all($collection);`
	scriptFilter       = `$ret = db_fetch_all($collection, _filter_func);`
	scriptFetch        = `$ret = db_fetch_by_id($collection, $record_id);`
	scriptUpdate       = `$ret = db_update_record($collection, $record_id, $record);`
	scriptDelete       = `$ret = db_drop_record($collection, $record_id);`
	scriptLen          = `$ret = db_total_records($collection);`
	scriptLastID       = `$ret = db_last_record_id($collection);`
	scriptSetSchema    = `$ret = db_set_schema($collection, $schema);`
	scriptSchema       = `$ret = db_get_schema($collection);`
	scriptCreationDate = `$ret = db_creation_date($collection);`

	// A missing collection leaves $ret null, a rejected record false.
	scriptStore = `
		$ret = null;
		if (db_exists($collection)) {
			$ret = false;
			if (db_store($collection, $record)) {
				$ret = db_last_record_id($collection);
			}
		}`

	// The cursor VM stays alive per collection; $op selects the verb.
	scriptCursor = `
		if ($op == "fetch") {
			$ret = db_fetch($collection);
		} else if ($op == "current") {
			$ret = db_current_record_id($collection);
		} else {
			$ret = db_reset_record_cursor($collection);
		}`
)

// FilterFunc decides whether a record belongs to a Filter result. An error
// aborts the query.
type FilterFunc func(record any) (bool, error)

// Collection is a handle on a named document collection. Records come back
// as map[string]any with the id under "__id", or as []any for records that
// were stored as lists.
type Collection struct {
	db     *DB
	name   string
	errlog []string
}

// Name returns the collection name.
func (c *Collection) Name() string { return c.name }

// run executes source with $collection and vars bound and returns $ret.
func (c *Collection) run(source string, vars map[string]any, setup func(*script.VM) error) (any, error) {
	vm, err := c.db.VM(source)
	if err != nil {
		return nil, err
	}
	defer vm.Close()

	if setup != nil {
		if err := setup(vm); err != nil {
			return nil, err
		}
	}
	if err := vm.Bind("collection", c.name); err != nil {
		return nil, err
	}
	for name, v := range vars {
		if err := vm.Bind(name, v); err != nil {
			return nil, err
		}
	}
	err = vm.Execute(context.Background())
	c.errlog = vm.ErrLog()
	if err != nil {
		return nil, fmt.Errorf("cask: collection %s: %w", c.name, err)
	}
	ret, _ := vm.Extract("ret")
	return ret, nil
}

func (c *Collection) runBool(source string, vars map[string]any) (bool, error) {
	ret, err := c.run(source, vars, nil)
	if err != nil {
		return false, err
	}
	b, _ := ret.(bool)
	return b, nil
}

func (c *Collection) runInt(source string, vars map[string]any) (int64, error) {
	ret, err := c.run(source, vars, nil)
	if err != nil {
		return 0, err
	}
	n, _ := ret.(int64)
	return n, nil
}

func records(ret any) []any {
	list, _ := ret.([]any)
	return list
}

// Exists reports whether the collection has been created.
func (c *Collection) Exists() (bool, error) {
	return c.runBool(scriptExists, nil)
}

// Create creates the collection. It returns false when it already exists.
func (c *Collection) Create() (bool, error) {
	return c.runBool(scriptCreate, nil)
}

// Drop removes the collection with all its records and resets its ids.
// It returns false when the collection does not exist.
func (c *Collection) Drop() (bool, error) {
	c.db.releaseCursor(c.name)
	return c.runBool(scriptDrop, nil)
}

// Store inserts a record, or each element of a list of records, and
// returns the id assigned last. Any "__id" in the input is ignored.
// Storing into a missing collection fails with docs.ErrInvalidCollection.
func (c *Collection) Store(record any) (int64, error) {
	ret, err := c.run(scriptStore, map[string]any{"record": record}, nil)
	if err != nil {
		return 0, err
	}
	switch id := ret.(type) {
	case int64:
		return id, nil
	case nil:
		return 0, fmt.Errorf("cask: store in %s: %w", c.name, docs.ErrInvalidCollection)
	default:
		return 0, fmt.Errorf("cask: store in %s: %w", c.name, docs.ErrInvalidRecord)
	}
}

// Fetch returns the record with the given id, or nil.
func (c *Collection) Fetch(id int64) (any, error) {
	return c.run(scriptFetch, map[string]any{"record_id": id}, nil)
}

// All returns every record in id order. It returns nil for a missing
// collection.
func (c *Collection) All() ([]any, error) {
	ret, err := c.run(scriptAll, nil, nil)
	return records(ret), err
}

// Filter returns, in id order, the records for which fn returns true.
// The collection is not modified.
func (c *Collection) Filter(fn FilterFunc) ([]any, error) {
	ret, err := c.run(scriptFilter, nil, func(vm *script.VM) error {
		return vm.RegisterFunc("_filter_func", func(args ...any) (any, error) {
			if len(args) == 0 {
				return false, nil
			}
			return fn(args[0])
		})
	})
	return records(ret), err
}

// Update replaces the record with the given id, keeping the id. It
// returns false when there is no such record.
func (c *Collection) Update(id int64, record any) (bool, error) {
	return c.runBool(scriptUpdate, map[string]any{"record_id": id, "record": record})
}

// Delete removes the record with the given id. It returns false when
// there is no such record.
func (c *Collection) Delete(id int64) (bool, error) {
	return c.runBool(scriptDelete, map[string]any{"record_id": id})
}

// Len returns the number of records.
func (c *Collection) Len() (int64, error) {
	return c.runInt(scriptLen, nil)
}

// LastRecordID returns the id assigned most recently, or 0 for an empty
// collection.
func (c *Collection) LastRecordID() (int64, error) {
	return c.runInt(scriptLastID, nil)
}

// SetSchema attaches schema as metadata. Records are never checked
// against it. It returns false when the collection does not exist.
func (c *Collection) SetSchema(schema any) (bool, error) {
	return c.runBool(scriptSetSchema, map[string]any{"schema": schema})
}

// Schema returns the schema set with SetSchema, or nil.
func (c *Collection) Schema() (any, error) {
	return c.run(scriptSchema, nil, nil)
}

// CreationDate returns when the collection was created, with second
// precision. ok is false when the collection does not exist.
func (c *Collection) CreationDate() (t time.Time, ok bool, err error) {
	ret, err := c.run(scriptCreationDate, nil, nil)
	if err != nil {
		return time.Time{}, false, err
	}
	s, isString := ret.(string)
	if !isString {
		return time.Time{}, false, nil
	}
	t, err = time.ParseInLocation(time.DateTime, s, time.UTC)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("cask: creation date of %s: %w", c.name, err)
	}
	return t, true, nil
}

// ErrorLog returns the non-fatal messages of the last operation on this
// handle, such as a store into a missing collection.
func (c *Collection) ErrorLog() []string {
	return append([]string(nil), c.errlog...)
}

// FetchCurrent returns the record at the collection cursor and advances
// it, or nil once every record was returned. The cursor is shared by all
// handles on the collection.
func (c *Collection) FetchCurrent() (any, error) {
	return c.cursorOp("fetch")
}

// CurrentRecordID returns the id FetchCurrent would return next.
func (c *Collection) CurrentRecordID() (int64, error) {
	ret, err := c.cursorOp("current")
	if err != nil {
		return 0, err
	}
	id, _ := ret.(int64)
	return id, nil
}

// ResetCursor rewinds the collection cursor to the first record.
func (c *Collection) ResetCursor() error {
	_, err := c.cursorOp("reset")
	return err
}

func (c *Collection) cursorOp(op string) (any, error) {
	vm, err := c.db.cursor(c.name)
	if err != nil {
		return nil, err
	}
	vm.Reset()
	if err := vm.Bind("op", op); err != nil {
		return nil, err
	}
	if err := vm.Execute(context.Background()); err != nil {
		return nil, fmt.Errorf("cask: collection %s: %w", c.name, err)
	}
	c.errlog = vm.ErrLog()
	ret, _ := vm.Extract("ret")
	return ret, nil
}

// Iterator returns a new iterator over the records. Iterators are
// independent of each other and of FetchCurrent.
func (c *Collection) Iterator() (*Iterator, error) {
	return newIterator(c)
}

// Records yields every record in id order, then a final error if the
// traversal failed.
func (c *Collection) Records() iter.Seq2[any, error] {
	return func(yield func(any, error) bool) {
		it, err := c.Iterator()
		if err != nil {
			yield(nil, err)
			return
		}
		defer it.Close()
		for it.Next() {
			if !yield(it.Record(), nil) {
				return
			}
		}
		if err := it.Err(); err != nil {
			yield(nil, err)
		}
	}
}

// cursor returns the long-lived VM behind FetchCurrent for name.
func (d *DB) cursor(name string) (*script.VM, error) {
	if d.closed {
		return nil, kv.ErrClosed
	}
	if vm, ok := d.cursors[name]; ok {
		return vm, nil
	}
	vm, err := d.VM(scriptCursor)
	if err != nil {
		return nil, err
	}
	if err := vm.Bind("collection", name); err != nil {
		_ = vm.Close()
		return nil, err
	}
	d.cursors[name] = vm
	return vm, nil
}

func (d *DB) releaseCursor(name string) {
	if vm, ok := d.cursors[name]; ok {
		_ = vm.Close()
		delete(d.cursors, name)
	}
}
