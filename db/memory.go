package db

import (
	"bytes"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/btree"
)

// Compile-time interface check.
var _ Store = (*MemStore)(nil)

const btreeDegree = 32

type memItem struct {
	key   []byte
	value []byte
}

func memLess(a, b memItem) bool { return bytes.Compare(a.key, b.key) < 0 }

type memTree = btree.BTreeG[memItem]

func newMemTree() *memTree { return btree.NewG(btreeDegree, memLess) }

// MemStore is a fully functional, thread-safe, in-memory implementation of
// [Store] on ordered B-trees, one per column family. Iterators and batches
// work on copy-on-write clones, so opening one is O(1).
//
//	store := db.NewMemStore(db.WithColumnFamilies("collections"))
//	defer store.Close()
type MemStore struct {
	mu     sync.RWMutex
	trees  map[string]*memTree
	closed atomic.Bool
}

// NewMemStore creates an empty MemStore. Only ColumnFamilies from the
// options apply; the tuning knobs are file-backend concerns.
func NewMemStore(opts ...Option) *MemStore {
	cfg := DefaultConfig()
	for _, o := range opts {
		o(cfg)
	}

	cfs := cfg.columnFamilies()
	m := &MemStore{trees: make(map[string]*memTree, len(cfs))}
	for _, cf := range cfs {
		m.trees[cf] = newMemTree()
	}
	cfg.logger().With("component", "db").Debug("memory database opened",
		"column_families", fmt.Sprintf("%v", cfs))
	return m
}

// ---------------------------------------------------------------------------
// Store implementation
// ---------------------------------------------------------------------------

func (m *MemStore) Get(cf string, key []byte) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed.Load() {
		return nil, ErrClosed
	}
	if key == nil {
		return nil, ErrNilKey
	}

	tree, err := m.tree(cf)
	if err != nil {
		return nil, err
	}
	return treeGet(tree, key)
}

func (m *MemStore) Put(cf string, key, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed.Load() {
		return ErrClosed
	}
	if key == nil {
		return ErrNilKey
	}

	tree, err := m.tree(cf)
	if err != nil {
		return err
	}
	tree.ReplaceOrInsert(memItem{key: clone(key), value: clone(value)})
	return nil
}

func (m *MemStore) Delete(cf string, key []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed.Load() {
		return ErrClosed
	}
	if key == nil {
		return ErrNilKey
	}

	tree, err := m.tree(cf)
	if err != nil {
		return err
	}
	tree.Delete(memItem{key: key})
	return nil
}

func (m *MemStore) Has(cf string, key []byte) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed.Load() {
		return false, ErrClosed
	}
	if key == nil {
		return false, ErrNilKey
	}

	tree, err := m.tree(cf)
	if err != nil {
		return false, err
	}
	return tree.Has(memItem{key: key}), nil
}

func (m *MemStore) NewBatch() Batch {
	return &memBatch{store: m, views: make(map[string]*memTree)}
}

func (m *MemStore) NewIterator(cf string) (Iterator, error) {
	snap, err := m.snapshot(cf)
	if err != nil {
		return nil, err
	}
	return &memIterator{tree: snap}, nil
}

func (m *MemStore) Flush() error {
	if m.closed.Load() {
		return ErrClosed
	}
	return nil // in-memory: nothing to flush
}

func (m *MemStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed.Load() {
		return ErrClosed
	}
	m.closed.Store(true)
	m.trees = nil
	return nil
}

// Len returns the number of keys in the given column family. Returns -1 if
// the column family does not exist or the store is closed.
func (m *MemStore) Len(cf string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed.Load() {
		return -1
	}
	tree, ok := m.trees[cf]
	if !ok {
		return -1
	}
	return tree.Len()
}

// snapshot returns a copy-on-write clone of a column family. Clone marks
// the source tree, so it needs the write lock.
func (m *MemStore) snapshot(cf string) (*memTree, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed.Load() {
		return nil, ErrClosed
	}
	tree, err := m.tree(cf)
	if err != nil {
		return nil, err
	}
	return tree.Clone(), nil
}

func (m *MemStore) tree(cf string) (*memTree, error) {
	tree, ok := m.trees[cf]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrColumnFamilyNotFound, cf)
	}
	return tree, nil
}

// ---------------------------------------------------------------------------
// Batch implementation
// ---------------------------------------------------------------------------

type memOp struct {
	del   bool
	cf    string
	key   []byte
	value []byte
}

// memBatch stages operations twice: as an op log replayed on Commit, and
// applied to per-family clones so reads through the batch see them.
type memBatch struct {
	store  *MemStore
	views  map[string]*memTree
	ops    []memOp
	closed bool
}

func (b *memBatch) view(cf string) (*memTree, error) {
	if v, ok := b.views[cf]; ok {
		return v, nil
	}
	v, err := b.store.snapshot(cf)
	if err != nil {
		return nil, err
	}
	b.views[cf] = v
	return v, nil
}

func (b *memBatch) Get(cf string, key []byte) ([]byte, error) {
	if b.closed {
		return nil, ErrBatchClosed
	}
	if key == nil {
		return nil, ErrNilKey
	}
	v, err := b.view(cf)
	if err != nil {
		return nil, err
	}
	return treeGet(v, key)
}

func (b *memBatch) Has(cf string, key []byte) (bool, error) {
	if b.closed {
		return false, ErrBatchClosed
	}
	if key == nil {
		return false, ErrNilKey
	}
	v, err := b.view(cf)
	if err != nil {
		return false, err
	}
	return v.Has(memItem{key: key}), nil
}

func (b *memBatch) NewIterator(cf string) (Iterator, error) {
	if b.closed {
		return nil, ErrBatchClosed
	}
	v, err := b.view(cf)
	if err != nil {
		return nil, err
	}
	return &memIterator{tree: v.Clone()}, nil
}

func (b *memBatch) Put(cf string, key, value []byte) error {
	if b.closed {
		return ErrBatchClosed
	}
	if key == nil {
		return ErrNilKey
	}
	v, err := b.view(cf)
	if err != nil {
		return err
	}
	op := memOp{cf: cf, key: clone(key), value: clone(value)}
	v.ReplaceOrInsert(memItem{key: op.key, value: op.value})
	b.ops = append(b.ops, op)
	return nil
}

func (b *memBatch) Delete(cf string, key []byte) error {
	if b.closed {
		return ErrBatchClosed
	}
	if key == nil {
		return ErrNilKey
	}
	v, err := b.view(cf)
	if err != nil {
		return err
	}
	op := memOp{del: true, cf: cf, key: clone(key)}
	v.Delete(memItem{key: op.key})
	b.ops = append(b.ops, op)
	return nil
}

func (b *memBatch) Count() int {
	return len(b.ops)
}

func (b *memBatch) Commit() error {
	if b.closed {
		return ErrBatchClosed
	}

	b.store.mu.Lock()
	defer b.store.mu.Unlock()

	if b.store.closed.Load() {
		return ErrClosed
	}

	for _, op := range b.ops {
		tree := b.store.trees[op.cf]
		if op.del {
			tree.Delete(memItem{key: op.key})
		} else {
			tree.ReplaceOrInsert(memItem{key: op.key, value: op.value})
		}
	}
	return nil
}

func (b *memBatch) Close() {
	b.closed = true
	b.ops = nil
	b.views = nil
}

// ---------------------------------------------------------------------------
// Iterator implementation
// ---------------------------------------------------------------------------

// memIterator walks a private clone, re-descending from the current key on
// every step.
type memIterator struct {
	tree  *memTree
	cur   memItem
	valid bool
}

func (it *memIterator) set(item memItem, ok bool) {
	it.cur, it.valid = item, ok
}

func (it *memIterator) Seek(target []byte) {
	it.valid = false
	it.tree.AscendGreaterOrEqual(memItem{key: target}, func(item memItem) bool {
		it.set(item, true)
		return false
	})
}

func (it *memIterator) SeekLE(target []byte) {
	it.valid = false
	it.tree.DescendLessOrEqual(memItem{key: target}, func(item memItem) bool {
		it.set(item, true)
		return false
	})
}

func (it *memIterator) SeekToFirst() { it.set(it.tree.Min()) }
func (it *memIterator) SeekToLast()  { it.set(it.tree.Max()) }

func (it *memIterator) Next() {
	if !it.valid {
		return
	}
	from := it.cur
	it.valid = false
	it.tree.AscendGreaterOrEqual(from, func(item memItem) bool {
		if bytes.Equal(item.key, from.key) {
			return true
		}
		it.set(item, true)
		return false
	})
}

func (it *memIterator) Prev() {
	if !it.valid {
		return
	}
	from := it.cur
	it.valid = false
	it.tree.DescendLessOrEqual(from, func(item memItem) bool {
		if bytes.Equal(item.key, from.key) {
			return true
		}
		it.set(item, true)
		return false
	})
}

func (it *memIterator) Valid() bool { return it.valid }

func (it *memIterator) Key() []byte {
	if !it.valid {
		return nil
	}
	return clone(it.cur.key)
}

func (it *memIterator) Value() []byte {
	if !it.valid {
		return nil
	}
	return clone(it.cur.value)
}

func (it *memIterator) Err() error { return nil }

func (it *memIterator) Close() {
	it.valid = false
	it.tree = nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func treeGet(tree *memTree, key []byte) ([]byte, error) {
	item, ok := tree.Get(memItem{key: key})
	if !ok {
		return nil, ErrKeyNotFound
	}
	return clone(item.value), nil
}

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
