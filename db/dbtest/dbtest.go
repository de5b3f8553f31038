// Package dbtest holds a conformance suite every [db.Store] backend must
// pass. Backends call [RunStoreTests] from their own tests.
package dbtest

import (
	"testing"

	"github.com/beyondbrewing/cask/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ExtraFamily is registered by factories in addition to the default one.
const ExtraFamily = "extra"

// StoreFactory returns a fresh, empty store with [ExtraFamily] registered.
type StoreFactory func(t *testing.T) db.Store

// RunStoreTests runs the backend conformance suite.
func RunStoreTests(t *testing.T, name string, factory StoreFactory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, store db.Store)
	}{
		{name: "put_get", fn: testPutGet},
		{name: "delete", fn: testDelete},
		{name: "column_families", fn: testColumnFamilies},
		{name: "ordered_iteration", fn: testOrderedIteration},
		{name: "seek_modes", fn: testSeekModes},
		{name: "iterator_snapshot", fn: testIteratorSnapshot},
		{name: "batch_read_your_writes", fn: testBatchReadYourWrites},
		{name: "batch_discard", fn: testBatchDiscard},
		{name: "batch_closed", fn: testBatchClosed},
		{name: "store_closure", fn: testStoreClosure},
	}

	t.Run(name, func(t *testing.T) {
		for _, tc := range tests {
			t.Run(tc.name, func(t *testing.T) {
				store := factory(t)
				defer store.Close()

				tc.fn(t, store)
			})
		}
	})
}

func testPutGet(t *testing.T, store db.Store) {
	cf := db.DefaultColumnFamily
	require.NoError(t, store.Put(cf, []byte("k"), []byte("v1")))

	got, err := store.Get(cf, []byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), got)

	require.NoError(t, store.Put(cf, []byte("k"), []byte("v2")))
	got, err = store.Get(cf, []byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), got)

	// Returned slices are copies.
	got[0] = 'X'
	again, err := store.Get(cf, []byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), again)

	ok, err := store.Has(cf, []byte("k"))
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = store.Get(cf, []byte("missing"))
	assert.ErrorIs(t, err, db.ErrKeyNotFound)

	_, err = store.Get(cf, nil)
	assert.ErrorIs(t, err, db.ErrNilKey)

	require.NoError(t, store.Put(cf, []byte("empty"), nil))
	got, err = store.Get(cf, []byte("empty"))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func testDelete(t *testing.T, store db.Store) {
	cf := db.DefaultColumnFamily
	require.NoError(t, store.Put(cf, []byte("k"), []byte("v")))
	require.NoError(t, store.Delete(cf, []byte("k")))

	ok, err := store.Has(cf, []byte("k"))
	require.NoError(t, err)
	assert.False(t, ok)

	// Deleting a missing key is not an error at this layer.
	assert.NoError(t, store.Delete(cf, []byte("k")))
}

func testColumnFamilies(t *testing.T, store db.Store) {
	require.NoError(t, store.Put(db.DefaultColumnFamily, []byte("k"), []byte("default")))
	require.NoError(t, store.Put(ExtraFamily, []byte("k"), []byte("extra")))

	got, err := store.Get(ExtraFamily, []byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("extra"), got)

	assert.Equal(t, [][]byte{[]byte("k")}, collectKeys(t, store, db.DefaultColumnFamily))

	err = store.Put("nope", []byte("k"), []byte("v"))
	assert.ErrorIs(t, err, db.ErrColumnFamilyNotFound)
}

func testOrderedIteration(t *testing.T, store db.Store) {
	cf := db.DefaultColumnFamily
	for _, k := range []string{"c", "a", "e", "b", "d"} {
		require.NoError(t, store.Put(cf, []byte(k), []byte("v"+k)))
	}

	it, err := store.NewIterator(cf)
	require.NoError(t, err)
	defer it.Close()

	var forward []string
	for it.SeekToFirst(); it.Valid(); it.Next() {
		forward = append(forward, string(it.Key()))
	}
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, forward)

	var backward []string
	for it.SeekToLast(); it.Valid(); it.Prev() {
		backward = append(backward, string(it.Key()))
	}
	assert.Equal(t, []string{"e", "d", "c", "b", "a"}, backward)
	require.NoError(t, it.Err())
}

func testSeekModes(t *testing.T, store db.Store) {
	cf := db.DefaultColumnFamily
	for _, k := range []string{"b", "d", "f"} {
		require.NoError(t, store.Put(cf, []byte(k), []byte(k)))
	}

	it, err := store.NewIterator(cf)
	require.NoError(t, err)
	defer it.Close()

	cases := []struct {
		target string
		ge     string
		le     string
	}{
		{target: "a", ge: "b", le: ""},
		{target: "b", ge: "b", le: "b"},
		{target: "c", ge: "d", le: "b"},
		{target: "f", ge: "f", le: "f"},
		{target: "g", ge: "", le: "f"},
	}
	for _, c := range cases {
		it.Seek([]byte(c.target))
		assert.Equal(t, c.ge, keyOrEmpty(it), "seek >= %q", c.target)

		it.SeekLE([]byte(c.target))
		assert.Equal(t, c.le, keyOrEmpty(it), "seek <= %q", c.target)
	}

	it.SeekLE([]byte("d"))
	it.Value()
	it.Next()
	assert.Equal(t, "f", keyOrEmpty(it))
}

func testIteratorSnapshot(t *testing.T, store db.Store) {
	cf := db.DefaultColumnFamily
	require.NoError(t, store.Put(cf, []byte("a"), []byte("1")))

	it, err := store.NewIterator(cf)
	require.NoError(t, err)
	defer it.Close()

	require.NoError(t, store.Put(cf, []byte("b"), []byte("2")))

	it.SeekToFirst()
	require.True(t, it.Valid())
	it.Next()
	assert.False(t, it.Valid(), "iterator must not observe writes made after creation")
}

func testBatchReadYourWrites(t *testing.T, store db.Store) {
	cf := db.DefaultColumnFamily
	require.NoError(t, store.Put(cf, []byte("a"), []byte("old")))
	require.NoError(t, store.Put(cf, []byte("gone"), []byte("x")))

	batch := store.NewBatch()
	defer batch.Close()

	require.NoError(t, batch.Put(cf, []byte("a"), []byte("new")))
	require.NoError(t, batch.Put(cf, []byte("b"), []byte("added")))
	require.NoError(t, batch.Delete(cf, []byte("gone")))
	assert.Equal(t, 3, batch.Count())

	got, err := batch.Get(cf, []byte("a"))
	require.NoError(t, err)
	assert.Equal(t, []byte("new"), got)

	ok, err := batch.Has(cf, []byte("gone"))
	require.NoError(t, err)
	assert.False(t, ok)

	it, err := batch.NewIterator(cf)
	require.NoError(t, err)
	var keys []string
	for it.SeekToFirst(); it.Valid(); it.Next() {
		keys = append(keys, string(it.Key()))
	}
	it.Close()
	assert.Equal(t, []string{"a", "b"}, keys)

	// Not yet visible outside the batch.
	got, err = store.Get(cf, []byte("a"))
	require.NoError(t, err)
	assert.Equal(t, []byte("old"), got)

	require.NoError(t, batch.Commit())

	got, err = store.Get(cf, []byte("a"))
	require.NoError(t, err)
	assert.Equal(t, []byte("new"), got)
	assert.Equal(t, [][]byte{[]byte("a"), []byte("b")}, collectKeys(t, store, cf))
}

func testBatchDiscard(t *testing.T, store db.Store) {
	cf := db.DefaultColumnFamily
	batch := store.NewBatch()
	require.NoError(t, batch.Put(cf, []byte("a"), []byte("1")))
	batch.Close()

	ok, err := store.Has(cf, []byte("a"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func testBatchClosed(t *testing.T, store db.Store) {
	batch := store.NewBatch()
	batch.Close()

	assert.ErrorIs(t, batch.Put(db.DefaultColumnFamily, []byte("a"), nil), db.ErrBatchClosed)
	assert.ErrorIs(t, batch.Commit(), db.ErrBatchClosed)
	_, err := batch.Get(db.DefaultColumnFamily, []byte("a"))
	assert.ErrorIs(t, err, db.ErrBatchClosed)
}

func testStoreClosure(t *testing.T, store db.Store) {
	require.NoError(t, store.Close())

	_, err := store.Get(db.DefaultColumnFamily, []byte("key"))
	assert.ErrorIs(t, err, db.ErrClosed)
	assert.ErrorIs(t, store.Put(db.DefaultColumnFamily, []byte("key"), nil), db.ErrClosed)

	// Double close is reported, not ignored.
	assert.ErrorIs(t, store.Close(), db.ErrClosed)
}

// --------------------------------------------------------------------------
// Helpers
// --------------------------------------------------------------------------

func collectKeys(t *testing.T, store db.Store, cf string) [][]byte {
	t.Helper()
	it, err := store.NewIterator(cf)
	require.NoError(t, err)
	defer it.Close()

	var keys [][]byte
	for it.SeekToFirst(); it.Valid(); it.Next() {
		keys = append(keys, it.Key())
	}
	require.NoError(t, it.Err())
	return keys
}

func keyOrEmpty(it db.Iterator) string {
	if !it.Valid() {
		return ""
	}
	return string(it.Key())
}
