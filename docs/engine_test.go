package docs

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/beyondbrewing/cask/kv"
	"github.com/beyondbrewing/cask/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEngine(t *testing.T, path string) *Engine {
	t.Helper()
	s, err := kv.Open(path, kv.WithFamilies(Family), kv.WithSyncWrites(false))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	e, err := New(s, WithClock(func() time.Time { return time.Unix(1700000000, 0) }))
	require.NoError(t, err)
	return e
}

func engines(t *testing.T, fn func(t *testing.T, e *Engine)) {
	t.Run("memory", func(t *testing.T) { fn(t, newEngine(t, ":mem:")) })
	t.Run("file", func(t *testing.T) { fn(t, newEngine(t, filepath.Join(t.TempDir(), "db"))) })
}

func obj(kvs ...any) value.Value {
	m := value.NewMap()
	for i := 0; i < len(kvs); i += 2 {
		m.Set(kvs[i], kvs[i+1])
	}
	return value.MustFromHost(m)
}

func host(v value.Value) any { return value.ToHost(v) }

func TestNewRequiresFamily(t *testing.T) {
	s, err := kv.Open(":mem:")
	require.NoError(t, err)
	defer s.Close()

	_, err = New(s)
	assert.Error(t, err)
}

func TestCollectionLifecycle(t *testing.T) {
	engines(t, func(t *testing.T, e *Engine) {
		ok, err := e.Exists("users")
		require.NoError(t, err)
		assert.False(t, ok)

		_, ok, err = e.CreationDate("users")
		require.NoError(t, err)
		assert.False(t, ok)

		created, err := e.Create("users")
		require.NoError(t, err)
		assert.True(t, created)

		created, err = e.Create("users")
		require.NoError(t, err)
		assert.False(t, created)

		when, ok, err := e.CreationDate("users")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, int64(1700000000), when.Unix())

		_, err = e.Insert("users", obj("name", "huey"))
		require.NoError(t, err)

		names, err := e.Names()
		require.NoError(t, err)
		assert.Equal(t, []string{"users"}, names)

		dropped, err := e.Drop("users")
		require.NoError(t, err)
		assert.True(t, dropped)

		dropped, err = e.Drop("users")
		require.NoError(t, err)
		assert.False(t, dropped)

		// Recreating starts numbering again.
		_, err = e.Create("users")
		require.NoError(t, err)
		ids, err := e.Insert("users", obj("name", "mickey"))
		require.NoError(t, err)
		assert.Equal(t, []int64{0}, ids)

		_, err = e.Exists("")
		assert.ErrorIs(t, err, ErrInvalidName)
	})
}

func TestRecordScenario(t *testing.T) {
	engines(t, func(t *testing.T, e *Engine) {
		_, err := e.Create("users")
		require.NoError(t, err)

		ids, err := e.Insert("users", obj("name", "huey"))
		require.NoError(t, err)
		assert.Equal(t, []int64{0}, ids)
		ids, err = e.Insert("users", obj("name", "mickey"))
		require.NoError(t, err)
		assert.Equal(t, []int64{1}, ids)

		ok, err := e.DropRecord("users", 1)
		require.NoError(t, err)
		assert.True(t, ok)

		rec, ok, err := e.Fetch("users", 0)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, map[string]any{"__id": int64(0), "name": "huey"}, host(rec))

		_, ok, err = e.Fetch("users", 1)
		require.NoError(t, err)
		assert.False(t, ok)

		all, err := e.FetchAll("users", nil)
		require.NoError(t, err)
		assert.Equal(t, []any{map[string]any{"__id": int64(0), "name": "huey"}}, host(all))
	})
}

func TestRecordIDs(t *testing.T) {
	engines(t, func(t *testing.T, e *Engine) {
		_, err := e.Create("c")
		require.NoError(t, err)

		last, err := e.LastRecordID("c")
		require.NoError(t, err)
		assert.Zero(t, last)

		batch := value.MustFromHost([]any{
			map[string]any{"k": 0},
			map[string]any{"k": 1},
			map[string]any{"k": 2},
		})
		ids, err := e.Insert("c", batch)
		require.NoError(t, err)
		assert.Equal(t, []int64{0, 1, 2}, ids)

		// Deleting the newest record does not free its id.
		_, err = e.DropRecord("c", 2)
		require.NoError(t, err)

		ids, err = e.Insert("c", obj("__id", 1, "k", "x"))
		require.NoError(t, err)
		assert.Equal(t, []int64{3}, ids)

		rec, _, err := e.Fetch("c", 3)
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"__id": int64(3), "k": "x"}, host(rec))

		last, err = e.LastRecordID("c")
		require.NoError(t, err)
		assert.Equal(t, int64(3), last)

		total, err := e.TotalRecords("c")
		require.NoError(t, err)
		assert.Equal(t, int64(3), total)

		ok, err := e.DropRecord("c", 99)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestIntegerKeyRecord(t *testing.T) {
	e := newEngine(t, ":mem:")
	_, err := e.Create("odd")
	require.NoError(t, err)

	ids, err := e.Insert("odd", value.MustFromHost(map[int]int{1: 2}))
	require.NoError(t, err)

	rec, _, err := e.Fetch("odd", ids[0])
	require.NoError(t, err)
	assert.Equal(t, []any{int64(2), int64(0)}, host(rec))
}

func TestUpdate(t *testing.T) {
	engines(t, func(t *testing.T, e *Engine) {
		_, err := e.Create("users")
		require.NoError(t, err)
		_, err = e.Insert("users", obj("name", "huey"))
		require.NoError(t, err)

		ok, err := e.Update("users", 0, obj("color", "white", "name", "hueybear"))
		require.NoError(t, err)
		assert.True(t, ok)

		rec, _, err := e.Fetch("users", 0)
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"__id": int64(0), "color": "white", "name": "hueybear"}, host(rec))

		ok, err = e.Update("users", 1, obj("name", "zaizee"))
		require.NoError(t, err)
		assert.False(t, ok)
		_, ok, err = e.Fetch("users", 1)
		require.NoError(t, err)
		assert.False(t, ok)

		_, err = e.Update("users", 0, value.Int(1))
		assert.ErrorIs(t, err, ErrInvalidRecord)
	})
}

func TestFetchAllFilter(t *testing.T) {
	e := newEngine(t, ":mem:")
	_, err := e.Create("values")
	require.NoError(t, err)

	var batch []any
	for i := range 20 {
		batch = append(batch, map[string]any{"val": i})
	}
	_, err = e.Insert("values", value.MustFromHost(batch))
	require.NoError(t, err)

	visited := 0
	got, err := e.FetchAll("values", func(rec value.Value) (bool, error) {
		visited++
		v, _ := rec.Array().GetString("val")
		return v.RawInt() >= 7 && v.RawInt() < 12, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 20, visited)

	var ids []int64
	for _, rec := range got.Array().All() {
		id, _ := rec.Array().GetString(IDField)
		ids = append(ids, id.RawInt())
	}
	assert.Equal(t, []int64{7, 8, 9, 10, 11}, ids)

	total, err := e.TotalRecords("values")
	require.NoError(t, err)
	assert.Equal(t, int64(20), total)

	_, err = e.FetchAll("values", func(value.Value) (bool, error) { return false, assert.AnError })
	assert.ErrorIs(t, err, assert.AnError)
}

func TestMissingCollection(t *testing.T) {
	e := newEngine(t, ":mem:")

	_, err := e.Insert("ghost", obj("f", "f"))
	assert.ErrorIs(t, err, ErrInvalidCollection)

	all, err := e.FetchAll("ghost", nil)
	require.NoError(t, err)
	assert.True(t, all.IsNull())

	total, err := e.TotalRecords("ghost")
	require.NoError(t, err)
	assert.Zero(t, total)

	ok, err := e.SetSchema("ghost", obj("a", "string"))
	require.NoError(t, err)
	assert.False(t, ok)

	schema, err := e.Schema("ghost")
	require.NoError(t, err)
	assert.True(t, schema.IsNull())

	_, _, ok, err = e.Seek("ghost", 0)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSchema(t *testing.T) {
	engines(t, func(t *testing.T, e *Engine) {
		_, err := e.Create("users")
		require.NoError(t, err)

		schema, err := e.Schema("users")
		require.NoError(t, err)
		assert.True(t, schema.IsNull())

		want := obj("username", "string", "uid", "integer")
		ok, err := e.SetSchema("users", want)
		require.NoError(t, err)
		assert.True(t, ok)

		schema, err = e.Schema("users")
		require.NoError(t, err)
		assert.True(t, value.StrictEqual(want, schema))

		// Non-conforming records are stored as-is.
		_, err = e.Insert("users", obj("username", 2, "uid", "2"))
		require.NoError(t, err)
	})
}

func TestSeekSkipsOtherCollections(t *testing.T) {
	e := newEngine(t, ":mem:")
	for _, name := range []string{"a", "ab", "b"} {
		_, err := e.Create(name)
		require.NoError(t, err)
		_, err = e.Insert(name, obj("from", name))
		require.NoError(t, err)
	}

	id, rec, ok, err := e.Seek("a", 0)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Zero(t, id)
	from, _ := rec.Array().GetString("from")
	assert.Equal(t, "a", from.ToText())

	_, _, ok, err = e.Seek("a", 1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestInsertRollsBackInsideTransaction(t *testing.T) {
	e := newEngine(t, ":mem:")
	_, err := e.Create("c")
	require.NoError(t, err)

	err = e.KV().WithTransaction(func() error {
		if _, err := e.Insert("c", obj("k", 1)); err != nil {
			return err
		}
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)

	total, err := e.TotalRecords("c")
	require.NoError(t, err)
	assert.Zero(t, total)
	last, err := e.LastRecordID("c")
	require.NoError(t, err)
	assert.Zero(t, last)
}
