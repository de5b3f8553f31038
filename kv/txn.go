package kv

import (
	"fmt"

	"github.com/beyondbrewing/cask/db"
)

// TxnState is the lifecycle state of a transaction.
type TxnState int

const (
	TxnActive TxnState = iota
	TxnCommitted
	TxnRolledBack
)

func (s TxnState) String() string {
	switch s {
	case TxnActive:
		return "active"
	case TxnCommitted:
		return "committed"
	case TxnRolledBack:
		return "rolled back"
	default:
		return fmt.Sprintf("TxnState(%d)", int(s))
	}
}

// Txn is an explicit transaction. Its writes are staged in a backend batch
// that reads through the store observe, and become durable together on
// Commit.
type Txn struct {
	store *Store
	batch db.Batch
	id    uint64
	state TxnState
}

// ID returns the transaction's sequence number within its store.
func (t *Txn) ID() uint64 { return t.id }

// State returns the transaction state.
func (t *Txn) State() TxnState { return t.state }

// Begin starts a transaction. Only one may be active per store; a second
// Begin returns ErrTransactionInProgress. Writes buffered while auto-commit
// is off become part of the new transaction.
func (s *Store) Begin() (*Txn, error) {
	if s.closed {
		return nil, ErrClosed
	}
	if s.txn != nil {
		return nil, ErrTransactionInProgress
	}

	batch := s.pending
	s.pending = nil
	if batch == nil {
		batch = s.backend.NewBatch()
	}

	s.txnSeq++
	t := &Txn{store: s, batch: batch, id: s.txnSeq, state: TxnActive}
	s.txn = t
	s.bump()
	s.log.Debug("transaction started", "txn", t.id, "adopted_ops", batch.Count())
	return t, nil
}

// InTransaction reports whether an explicit transaction is active.
func (s *Store) InTransaction() bool { return s.txn != nil }

// Commit commits the active transaction, or returns ErrNoTransaction.
func (s *Store) Commit() error {
	if s.closed {
		return ErrClosed
	}
	if s.txn == nil {
		return ErrNoTransaction
	}
	return s.txn.Commit()
}

// Rollback discards the active transaction, or returns ErrNoTransaction.
func (s *Store) Rollback() error {
	if s.closed {
		return ErrClosed
	}
	if s.txn == nil {
		return ErrNoTransaction
	}
	return s.txn.Rollback()
}

// WithTransaction runs fn inside a transaction: commit when fn returns
// nil, rollback when it returns an error or panics. The error or panic
// from fn is passed through unchanged. A failed commit is rolled back and
// its error returned.
func (s *Store) WithTransaction(fn func() error) (err error) {
	t, err := s.Begin()
	if err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			if t.state == TxnActive {
				_ = t.Rollback()
			}
			panic(r)
		}
	}()

	if err := fn(); err != nil {
		if t.state == TxnActive {
			if rbErr := t.Rollback(); rbErr != nil {
				s.log.Error("rollback failed", "txn", t.id, "error", rbErr)
			}
		}
		return err
	}
	if t.state != TxnActive {
		// fn finished the transaction itself.
		return nil
	}
	return t.Commit()
}

// Commit makes the staged writes durable. On failure the transaction is
// rolled back and the commit error returned.
func (t *Txn) Commit() error {
	if t.state != TxnActive {
		return fmt.Errorf("%w: transaction %d is %s", ErrNoTransaction, t.id, t.state)
	}
	if t.store.closed {
		return ErrClosed
	}

	ops := t.batch.Count()
	t.store.detachIterators()
	if err := t.batch.Commit(); err != nil {
		t.finish(TxnRolledBack)
		t.store.metrics.rollbacks.Inc()
		t.store.log.Warn("commit failed, transaction rolled back", "txn", t.id, "error", err)
		return translate(err)
	}
	t.finish(TxnCommitted)
	t.store.metrics.commits.Inc()
	t.store.log.Debug("transaction committed", "txn", t.id, "ops", ops)
	return nil
}

// Rollback discards the staged writes.
func (t *Txn) Rollback() error {
	if t.state != TxnActive {
		return fmt.Errorf("%w: transaction %d is %s", ErrNoTransaction, t.id, t.state)
	}
	t.finish(TxnRolledBack)
	t.store.metrics.rollbacks.Inc()
	t.store.log.Debug("transaction rolled back", "txn", t.id)
	return nil
}

func (t *Txn) finish(state TxnState) {
	t.store.detachIterators()
	t.batch.Close()
	t.state = state
	if t.store.txn == t {
		t.store.txn = nil
	}
	t.store.bump()
}
