package kv

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type storeOpener func(t *testing.T, opts ...Option) *Store

// backends runs fn against a memory store and a file store.
func backends(t *testing.T, fn func(t *testing.T, open storeOpener)) {
	t.Run("memory", func(t *testing.T) {
		fn(t, func(t *testing.T, opts ...Option) *Store {
			s, err := Open(":mem:", opts...)
			require.NoError(t, err)
			return s
		})
	})
	t.Run("file", func(t *testing.T) {
		fn(t, func(t *testing.T, opts ...Option) *Store {
			opts = append([]Option{WithSyncWrites(false)}, opts...)
			s, err := Open(filepath.Join(t.TempDir(), "db"), opts...)
			require.NoError(t, err)
			return s
		})
	})
}

func TestStore(t *testing.T) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s *Store)
	}{
		{name: "put_get_overwrite", fn: testPutGetOverwrite},
		{name: "missing_keys", fn: testMissingKeys},
		{name: "nil_key", fn: testNilKey},
		{name: "append", fn: testAppend},
		{name: "put_format", fn: testPutFormat},
		{name: "fetch_func", fn: testFetchFunc},
		{name: "put_all_and_iterators", fn: testPutAllAndIterators},
		{name: "range", fn: testRange},
		{name: "clear_and_count", fn: testClearAndCount},
		{name: "random", fn: testRandom},
		{name: "metrics", fn: testMetrics},
	}

	backends(t, func(t *testing.T, open storeOpener) {
		for _, tc := range tests {
			t.Run(tc.name, func(t *testing.T) {
				s := open(t)
				defer s.Close()

				tc.fn(t, s)
			})
		}
	})
}

func testNilKey(t *testing.T, s *Store) {
	_, err := s.Get(nil)
	assert.ErrorIs(t, err, ErrInvalidKey)
	assert.NotErrorIs(t, err, ErrIO)

	err = s.Put(nil, []byte("v"))
	assert.ErrorIs(t, err, ErrInvalidKey)
	assert.NotErrorIs(t, err, ErrIO)

	_, err = s.Exists(nil)
	assert.ErrorIs(t, err, ErrInvalidKey)
	assert.ErrorIs(t, s.Delete(nil), ErrInvalidKey)
}

func testPutGetOverwrite(t *testing.T, s *Store) {
	require.NoError(t, s.Put([]byte("k"), []byte("v1")))
	require.NoError(t, s.Put([]byte("k"), []byte("v2")))

	got, err := s.Get([]byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), got)

	ok, err := s.Exists([]byte("k"))
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, s.Delete([]byte("k")))
	ok, err = s.Exists([]byte("k"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func testMissingKeys(t *testing.T, s *Store) {
	_, err := s.Get([]byte("nope"))
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, s.Delete([]byte("nope")), ErrNotFound)
}

func testAppend(t *testing.T, s *Store) {
	require.NoError(t, s.Put([]byte("k"), []byte("v1")))
	require.NoError(t, s.Append([]byte("k"), []byte("v2")))
	got, err := s.Get([]byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v1v2"), got)

	require.NoError(t, s.Append([]byte("k2"), []byte("x")))
	got, err = s.Get([]byte("k2"))
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), got)
}

func testPutFormat(t *testing.T, s *Store) {
	require.NoError(t, s.PutFormat([]byte("k"), "%s-%d", "n", 7))
	got, err := s.Get([]byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("n-7"), got)
}

func testFetchFunc(t *testing.T, s *Store) {
	require.NoError(t, s.Put([]byte("k"), []byte("payload")))

	var seen []byte
	require.NoError(t, s.FetchFunc([]byte("k"), func(v []byte) error {
		seen = v
		return nil
	}))
	assert.Equal(t, []byte("payload"), seen)

	boom := errors.New("boom")
	err := s.FetchFunc([]byte("k"), func([]byte) error { return boom })
	assert.ErrorIs(t, err, ErrAborted)
	assert.ErrorIs(t, err, boom)

	err = s.FetchFunc([]byte("missing"), func([]byte) error { return nil })
	assert.ErrorIs(t, err, ErrNotFound)
}

func testPutAllAndIterators(t *testing.T, s *Store) {
	require.NoError(t, s.PutAll(map[string][]byte{
		"b": []byte("2"),
		"a": []byte("1"),
		"c": []byte("3"),
	}))

	var keys, values []string
	for k := range s.Keys() {
		keys = append(keys, string(k))
	}
	for v := range s.Values() {
		values = append(values, string(v))
	}
	assert.Equal(t, []string{"a", "b", "c"}, keys)
	assert.Equal(t, []string{"1", "2", "3"}, values)
	assert.False(t, s.InTransaction())
}

func testRange(t *testing.T, s *Store) {
	for _, k := range []string{"a", "b", "c", "d", "e"} {
		require.NoError(t, s.Put([]byte(k), []byte(k)))
	}

	collect := func(start, end string, inclusive bool) []string {
		var out []string
		for k := range s.Range([]byte(start), []byte(end), inclusive) {
			out = append(out, string(k))
		}
		return out
	}

	assert.Equal(t, []string{"b", "c", "d"}, collect("b", "d", true))
	assert.Equal(t, []string{"b", "c"}, collect("b", "d", false))
	assert.Equal(t, []string{"c", "d"}, collect("bb", "dd", true))
	assert.Empty(t, collect("f", "z", true))

	var all []string
	for k := range s.Range(nil, nil, true) {
		all = append(all, string(k))
	}
	assert.Len(t, all, 5)
}

func testClearAndCount(t *testing.T, s *Store) {
	for i := range 20 {
		require.NoError(t, s.Put(fmt.Appendf(nil, "k%02d", i), nil))
	}
	n, err := s.Count()
	require.NoError(t, err)
	assert.Equal(t, 20, n)

	require.NoError(t, s.Clear())
	n, err = s.Count()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func testRandom(t *testing.T, s *Store) {
	assert.GreaterOrEqual(t, s.RandomInt(), int64(0))

	r := s.RandomString(32)
	assert.Len(t, r, 32)
	assert.Equal(t, "", strings.Trim(string(r), randomAlphabet))
	assert.Empty(t, s.RandomString(0))
}

func testMetrics(t *testing.T, s *Store) {
	require.NoError(t, s.Put([]byte("k"), []byte("v")))
	_, err := s.Get([]byte("k"))
	require.NoError(t, err)

	var buf bytes.Buffer
	s.WriteMetrics(&buf)
	out := buf.String()
	assert.Contains(t, out, "cask_kv_writes_total 1")
	assert.Contains(t, out, "cask_kv_reads_total 1")
	assert.Contains(t, out, "cask_kv_open_cursors 0")
}

func TestCloseTwice(t *testing.T) {
	backends(t, func(t *testing.T, open storeOpener) {
		s := open(t)
		require.NoError(t, s.Close())
		assert.ErrorIs(t, s.Close(), ErrClosed)

		assert.ErrorIs(t, s.Put([]byte("k"), nil), ErrClosed)
		_, err := s.Get([]byte("k"))
		assert.ErrorIs(t, err, ErrClosed)
	})
}

func TestFamiliesAreIsolated(t *testing.T) {
	s, err := Open(":mem:", WithFamilies("side"))
	require.NoError(t, err)
	defer s.Close()

	side, err := s.Family("side")
	require.NoError(t, err)
	require.NoError(t, side.Put([]byte("k"), []byte("side")))

	ok, err := s.Exists([]byte("k"))
	require.NoError(t, err)
	assert.False(t, ok)

	n, err := s.Count()
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = s.Family("unknown")
	assert.Error(t, err)
}

func TestFileStorePersists(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "db")
	s, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, s.Put([]byte("k"), []byte("v")))
	require.NoError(t, s.Close())

	s, err = Open(dir)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.Get([]byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)
	assert.False(t, s.IsMemory())
}

func TestCountStableAcrossTraversals(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "db")
	s, err := Open(dir, WithSyncWrites(false))
	require.NoError(t, err)
	for i := range 500 {
		require.NoError(t, s.Put(fmt.Appendf(nil, "key-%04d", i), fmt.Appendf(nil, "value-%d", i)))
	}
	require.NoError(t, s.Close())

	s, err = Open(dir)
	require.NoError(t, err)
	defer s.Close()

	first, err := s.Count()
	require.NoError(t, err)
	second, err := s.Count()
	require.NoError(t, err)
	assert.Equal(t, 500, first)
	assert.Equal(t, first, second)
}

func TestOpenErrors(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "absent")
	_, err := Open(missing, WithCreateIfMissing(false))
	assert.ErrorIs(t, err, ErrOpen)

	dir := filepath.Join(t.TempDir(), "db")
	s, err := Open(dir)
	require.NoError(t, err)
	defer s.Close()

	_, err = Open(dir)
	assert.ErrorIs(t, err, ErrOpen)
	assert.ErrorIs(t, err, ErrBusy)
}

func TestReadOnly(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "db")
	s, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, s.Put([]byte("k"), []byte("v")))
	require.NoError(t, s.Close())

	ro, err := Open(dir, WithReadOnly(true))
	require.NoError(t, err)
	defer ro.Close()

	got, err := ro.Get([]byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)

	assert.ErrorIs(t, ro.Put([]byte("k"), []byte("w")), ErrReadOnly)
	assert.ErrorIs(t, ro.Delete([]byte("k")), ErrReadOnly)
	assert.True(t, ro.ReadOnly())
}
