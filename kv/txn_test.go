package kv

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"

	"github.com/beyondbrewing/cask/db"
	"github.com/beyondbrewing/cask/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestTransactionCommitAndRollback(t *testing.T) {
	backends(t, func(t *testing.T, open storeOpener) {
		s := open(t)
		defer s.Close()
		seed(t, s, "base")

		txn, err := s.Begin()
		require.NoError(t, err)
		assert.True(t, s.InTransaction())
		assert.Equal(t, TxnActive, txn.State())

		require.NoError(t, s.Put([]byte("staged"), []byte("x")))
		require.NoError(t, s.Delete([]byte("base")))

		// Reads inside the transaction see its own writes.
		got, err := s.Get([]byte("staged"))
		require.NoError(t, err)
		assert.Equal(t, []byte("x"), got)
		_, err = s.Get([]byte("base"))
		assert.ErrorIs(t, err, ErrNotFound)

		require.NoError(t, s.Rollback())
		assert.Equal(t, TxnRolledBack, txn.State())
		assert.False(t, s.InTransaction())

		_, err = s.Get([]byte("staged"))
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = s.Get([]byte("base"))
		require.NoError(t, err)

		txn, err = s.Begin()
		require.NoError(t, err)
		require.NoError(t, s.Put([]byte("staged"), []byte("y")))
		require.NoError(t, txn.Commit())
		assert.Equal(t, "committed", txn.State().String())

		got, err = s.Get([]byte("staged"))
		require.NoError(t, err)
		assert.Equal(t, []byte("y"), got)

		assert.ErrorIs(t, txn.Commit(), ErrNoTransaction)
		assert.ErrorIs(t, txn.Rollback(), ErrNoTransaction)
	})
}

func TestTransactionMisuse(t *testing.T) {
	s, err := Open(":mem:")
	require.NoError(t, err)
	defer s.Close()

	assert.ErrorIs(t, s.Commit(), ErrNoTransaction)
	assert.ErrorIs(t, s.Rollback(), ErrNoTransaction)

	first, err := s.Begin()
	require.NoError(t, err)
	_, err = s.Begin()
	assert.ErrorIs(t, err, ErrTransactionInProgress)

	second := s.WithTransaction(func() error { return nil })
	assert.ErrorIs(t, second, ErrTransactionInProgress)

	require.NoError(t, first.Rollback())
	next, err := s.Begin()
	require.NoError(t, err)
	assert.Greater(t, next.ID(), first.ID())
	require.NoError(t, s.Commit())
}

func TestWithTransaction(t *testing.T) {
	boom := errors.New("boom")

	tests := []struct {
		name    string
		fn      func(s *Store) error
		wantErr error
		panics  bool
		stored  bool
	}{
		{
			name:   "commit on success",
			fn:     func(s *Store) error { return s.Put([]byte("k"), []byte("v")) },
			stored: true,
		},
		{
			name: "rollback on error",
			fn: func(s *Store) error {
				if err := s.Put([]byte("k"), []byte("v")); err != nil {
					return err
				}
				return boom
			},
			wantErr: boom,
		},
		{
			name: "rollback on panic",
			fn: func(s *Store) error {
				_ = s.Put([]byte("k"), []byte("v"))
				panic("kaboom")
			},
			panics: true,
		},
		{
			name: "body commits itself",
			fn: func(s *Store) error {
				if err := s.Put([]byte("k"), []byte("v")); err != nil {
					return err
				}
				return s.Commit()
			},
			stored: true,
		},
	}

	backends(t, func(t *testing.T, open storeOpener) {
		for _, tc := range tests {
			t.Run(tc.name, func(t *testing.T) {
				s := open(t)
				defer s.Close()

				run := func() error { return s.WithTransaction(func() error { return tc.fn(s) }) }
				if tc.panics {
					assert.PanicsWithValue(t, "kaboom", func() { _ = run() })
				} else {
					err := run()
					if tc.wantErr != nil {
						assert.ErrorIs(t, err, tc.wantErr)
					} else {
						require.NoError(t, err)
					}
				}

				assert.False(t, s.InTransaction())
				ok, err := s.Exists([]byte("k"))
				require.NoError(t, err)
				assert.Equal(t, tc.stored, ok)
			})
		}
	})
}

// failingStore hands out batches whose Commit always fails.
type failingStore struct {
	db.Store
	err error
}

func (f *failingStore) NewBatch() db.Batch {
	return &failingBatch{Batch: f.Store.NewBatch(), err: f.err}
}

type failingBatch struct {
	db.Batch
	err error
}

func (b *failingBatch) Commit() error { return b.err }

func TestCommitFailureRollsBack(t *testing.T) {
	diskFull := errors.New("disk full")

	tests := []struct {
		name   string
		commit func(s *Store) error
	}{
		{
			name: "explicit commit",
			commit: func(s *Store) error {
				txn, err := s.Begin()
				if err != nil {
					return err
				}
				if err := s.Put([]byte("k"), []byte("v")); err != nil {
					return err
				}
				err = txn.Commit()
				assert.Equal(t, TxnRolledBack, txn.State())
				return err
			},
		},
		{
			name: "with transaction",
			commit: func(s *Store) error {
				return s.WithTransaction(func() error { return s.Put([]byte("k"), []byte("v")) })
			},
		},
	}

	backends(t, func(t *testing.T, open storeOpener) {
		for _, tc := range tests {
			t.Run(tc.name, func(t *testing.T) {
				s := open(t)
				defer s.Close()
				s.backend = &failingStore{Store: s.backend, err: diskFull}

				err := tc.commit(s)
				assert.ErrorIs(t, err, ErrIO)
				assert.ErrorIs(t, err, diskFull)
				assert.False(t, s.InTransaction())

				ok, err := s.Exists([]byte("k"))
				require.NoError(t, err)
				assert.False(t, ok)
			})
		}
	})
}

func TestCursorFollowsTransaction(t *testing.T) {
	backends(t, func(t *testing.T, open storeOpener) {
		s := open(t)
		defer s.Close()
		seed(t, s, "a", "c")

		c, err := s.Cursor()
		require.NoError(t, err)
		defer c.Close()
		require.NoError(t, c.First())

		_, err = s.Begin()
		require.NoError(t, err)
		require.NoError(t, s.Put([]byte("b"), nil))

		items, err := c.Take(10)
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b", "c"}, keysOf(items))

		require.NoError(t, s.Rollback())
		require.NoError(t, c.Reset())
		items, err = c.Take(10)
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "c"}, keysOf(items))
	})
}

func TestCloseRollsBackOpenTransaction(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "db")
	s, err := Open(dir, WithSyncWrites(false))
	require.NoError(t, err)

	_, err = s.Begin()
	require.NoError(t, err)
	require.NoError(t, s.Put([]byte("k"), []byte("v")))
	require.NoError(t, s.Close())

	s, err = Open(dir)
	require.NoError(t, err)
	defer s.Close()
	_, err = s.Get([]byte("k"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAutoCommitOff(t *testing.T) {
	reopen := func(t *testing.T, dir string) *Store {
		s, err := Open(dir, WithSyncWrites(false))
		require.NoError(t, err)
		return s
	}

	t.Run("close discards buffered writes", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "db")
		core, logs := observer.New(zapcore.WarnLevel)
		s, err := Open(dir, WithAutoCommit(false), WithLogger(logger.NewFromZap(zap.New(core))))
		require.NoError(t, err)
		assert.False(t, s.AutoCommit())

		require.NoError(t, s.Put([]byte("k"), []byte("v")))
		got, err := s.Get([]byte("k"))
		require.NoError(t, err)
		assert.Equal(t, []byte("v"), got)
		require.NoError(t, s.Close())
		assert.Equal(t, 1, logs.FilterMessage("discarding uncommitted writes").Len())

		s = reopen(t, dir)
		defer s.Close()
		_, err = s.Get([]byte("k"))
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("flush persists buffered writes", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "db")
		s, err := Open(dir, WithAutoCommit(false))
		require.NoError(t, err)
		require.NoError(t, s.Put([]byte("k"), []byte("v")))
		require.NoError(t, s.Flush())
		require.NoError(t, s.Close())

		s = reopen(t, dir)
		defer s.Close()
		_, err = s.Get([]byte("k"))
		require.NoError(t, err)
	})

	t.Run("re-enabling commits buffered writes", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "db")
		s, err := Open(dir)
		require.NoError(t, err)
		require.NoError(t, s.SetAutoCommit(false))
		require.NoError(t, s.Put([]byte("k"), []byte("v")))
		require.NoError(t, s.SetAutoCommit(true))
		require.NoError(t, s.Close())

		s = reopen(t, dir)
		defer s.Close()
		_, err = s.Get([]byte("k"))
		require.NoError(t, err)
	})

	t.Run("begin adopts buffered writes", func(t *testing.T) {
		s, err := Open(":mem:", WithAutoCommit(false))
		require.NoError(t, err)
		defer s.Close()

		require.NoError(t, s.Put([]byte("a"), nil))
		_, err = s.Begin()
		require.NoError(t, err)
		require.NoError(t, s.Put([]byte("b"), nil))
		require.NoError(t, s.Rollback())

		n, err := s.Count()
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}

func TestTransactionMetrics(t *testing.T) {
	s, err := Open(":mem:")
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.WithTransaction(func() error { return s.Put([]byte("k"), nil) }))
	_ = s.WithTransaction(func() error { return assert.AnError })

	var buf bytes.Buffer
	s.WriteMetrics(&buf)
	assert.Contains(t, buf.String(), "cask_txn_commits_total 1")
	assert.Contains(t, buf.String(), "cask_txn_rollbacks_total 1")
	assert.Contains(t, buf.String(), "cask_txn_active 0")
}
