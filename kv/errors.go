package kv

import (
	"errors"
	"fmt"

	"github.com/beyondbrewing/cask/db"
)

// Sentinel errors returned by the store, its cursors and transactions.
var (
	ErrNotFound              = errors.New("kv: not found")
	ErrInvalidKey            = errors.New("kv: key must not be nil")
	ErrInvalidCursor         = errors.New("kv: cursor is not positioned on an entry")
	ErrExhausted             = errors.New("kv: cursor exhausted")
	ErrTransactionInProgress = errors.New("kv: transaction already in progress")
	ErrNoTransaction         = errors.New("kv: no active transaction")
	ErrAborted               = errors.New("kv: operation aborted")
	ErrOutOfMemory           = errors.New("kv: out of memory")
	ErrIO                    = errors.New("kv: i/o error")
	ErrBusy                  = errors.New("kv: database is busy")
	ErrNotImplemented        = errors.New("kv: not implemented")
	ErrReadOnly              = errors.New("kv: database is read-only")
	ErrClosed                = errors.New("kv: handle is closed")
	ErrOpen                  = errors.New("kv: cannot open database")
)

// ErrLocked is the same condition as ErrBusy, seen from the lock holder's
// side.
var ErrLocked = ErrBusy

// translate maps backend errors onto the kv taxonomy. Unknown failures are
// reported as ErrIO with the cause attached.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, db.ErrKeyNotFound):
		return ErrNotFound
	case errors.Is(err, db.ErrNilKey):
		return ErrInvalidKey
	case errors.Is(err, db.ErrClosed), errors.Is(err, db.ErrBatchClosed):
		return ErrClosed
	case errors.Is(err, db.ErrReadOnly):
		return ErrReadOnly
	case errors.Is(err, db.ErrBusy):
		return fmt.Errorf("%w: %w", ErrBusy, err)
	default:
		return fmt.Errorf("%w: %w", ErrIO, err)
	}
}
