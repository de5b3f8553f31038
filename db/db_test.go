package db_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/beyondbrewing/cask/db"
	"github.com/beyondbrewing/cask/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemStore(t *testing.T) {
	dbtest.RunStoreTests(t, "memory", func(t *testing.T) db.Store {
		return db.NewMemStore(db.WithColumnFamilies(dbtest.ExtraFamily))
	})
}

func TestPebbleDB(t *testing.T) {
	dbtest.RunStoreTests(t, "pebble", func(t *testing.T) db.Store {
		store, err := db.Open(t.TempDir(), db.WithColumnFamilies(dbtest.ExtraFamily), db.WithSyncWrites(false))
		require.NoError(t, err)
		return store
	})
}

func TestOpenStoreSelectsBackend(t *testing.T) {
	for _, path := range []string{"", db.MemoryPath} {
		store, err := db.OpenStore(path)
		require.NoError(t, err)
		assert.IsType(t, &db.MemStore{}, store)
		require.NoError(t, store.Close())
	}

	store, err := db.OpenStore(filepath.Join(t.TempDir(), "data"))
	require.NoError(t, err)
	assert.IsType(t, &db.PebbleDB{}, store)
	require.NoError(t, store.Close())
}

func TestPebbleBusyOnSecondOpen(t *testing.T) {
	dir := t.TempDir()
	first, err := db.Open(dir)
	require.NoError(t, err)

	_, err = db.Open(dir)
	assert.ErrorIs(t, err, db.ErrBusy)

	require.NoError(t, first.Close())

	again, err := db.Open(dir)
	require.NoError(t, err)
	require.NoError(t, again.Close())
}

func TestPebbleMissingWithoutCreate(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "absent")
	_, err := db.Open(dir, db.WithCreateIfMissing(false))
	assert.ErrorIs(t, err, db.ErrNotExist)

	_, statErr := os.Stat(dir)
	assert.True(t, os.IsNotExist(statErr))
}

func TestPebbleReadOnly(t *testing.T) {
	dir := t.TempDir()
	rw, err := db.Open(dir)
	require.NoError(t, err)
	require.NoError(t, rw.Put(db.DefaultColumnFamily, []byte("k"), []byte("v")))
	require.NoError(t, rw.Close())

	ro, err := db.Open(dir, db.WithReadOnly(true))
	require.NoError(t, err)
	defer ro.Close()

	got, err := ro.Get(db.DefaultColumnFamily, []byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)

	err = ro.Put(db.DefaultColumnFamily, []byte("k"), []byte("w"))
	assert.ErrorIs(t, err, db.ErrReadOnly)
}

func TestPebblePersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	store, err := db.Open(dir)
	require.NoError(t, err)

	batch := store.NewBatch()
	require.NoError(t, batch.Put(db.DefaultColumnFamily, []byte("a"), []byte("1")))
	require.NoError(t, batch.Commit())
	batch.Close()
	require.NoError(t, store.Close())

	store, err = db.Open(dir)
	require.NoError(t, err)
	defer store.Close()

	got, err := store.Get(db.DefaultColumnFamily, []byte("a"))
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), got)
}

func TestMemStoreLen(t *testing.T) {
	store := db.NewMemStore()
	require.NoError(t, store.Put(db.DefaultColumnFamily, []byte("a"), nil))
	require.NoError(t, store.Put(db.DefaultColumnFamily, []byte("b"), nil))
	assert.Equal(t, 2, store.Len(db.DefaultColumnFamily))
	assert.Equal(t, -1, store.Len("unknown"))

	require.NoError(t, store.Close())
	assert.Equal(t, -1, store.Len(db.DefaultColumnFamily))
}
