package cask

import (
	"errors"

	"github.com/beyondbrewing/cask/docs"
	"github.com/beyondbrewing/cask/kv"
	"github.com/beyondbrewing/cask/script"
	"github.com/beyondbrewing/cask/value"
)

// ErrAlreadyExists is returned by CreateCollection for an existing
// collection. Collection.Create reports the same case as false.
var ErrAlreadyExists = errors.New("cask: collection already exists")

// ErrorKind classifies errors from every layer of the database.
type ErrorKind int

const (
	KindNone ErrorKind = iota
	KindUnknown
	KindNotFound
	KindAlreadyExists
	KindInvalidCursor
	KindExhausted
	KindTransactionInProgress
	KindTransactionError
	KindSyntaxError
	KindAborted
	KindOutOfMemory
	KindIOError
	KindBusy
	KindReadOnly
	KindNotImplemented
	KindInvalidCollection
	KindClosed
	KindOpenError
	KindInvalidArgument
)

var kindNames = map[ErrorKind]string{
	KindNone:                  "none",
	KindUnknown:               "unknown",
	KindNotFound:              "not found",
	KindAlreadyExists:         "already exists",
	KindInvalidCursor:         "invalid cursor",
	KindExhausted:             "exhausted",
	KindTransactionInProgress: "transaction in progress",
	KindTransactionError:      "transaction error",
	KindSyntaxError:           "syntax error",
	KindAborted:               "aborted",
	KindOutOfMemory:           "out of memory",
	KindIOError:               "i/o error",
	KindBusy:                  "busy",
	KindReadOnly:              "read-only",
	KindNotImplemented:        "not implemented",
	KindInvalidCollection:     "invalid collection",
	KindClosed:                "closed",
	KindOpenError:             "open error",
	KindInvalidArgument:       "invalid argument",
}

func (k ErrorKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// kindRules is checked in order; the first matching sentinel wins. Open
// failures wrap their cause, so Busy and ReadOnly come before OpenError.
var kindRules = []struct {
	err  error
	kind ErrorKind
}{
	{script.ErrAborted, KindAborted},
	{kv.ErrAborted, KindAborted},
	{docs.ErrInvalidCollection, KindInvalidCollection},
	{docs.ErrInvalidName, KindInvalidCollection},
	{ErrAlreadyExists, KindAlreadyExists},
	{kv.ErrBusy, KindBusy},
	{kv.ErrReadOnly, KindReadOnly},
	{kv.ErrClosed, KindClosed},
	{script.ErrClosed, KindClosed},
	{kv.ErrOpen, KindOpenError},
	{kv.ErrNotFound, KindNotFound},
	{kv.ErrInvalidKey, KindInvalidArgument},
	{kv.ErrInvalidCursor, KindInvalidCursor},
	{kv.ErrExhausted, KindExhausted},
	{kv.ErrTransactionInProgress, KindTransactionInProgress},
	{kv.ErrNoTransaction, KindTransactionError},
	{kv.ErrOutOfMemory, KindOutOfMemory},
	{kv.ErrNotImplemented, KindNotImplemented},
	{kv.ErrIO, KindIOError},
	{docs.ErrCorruptMeta, KindIOError},
	{value.ErrCorrupt, KindIOError},
}

// KindOf returns the kind of err, KindNone for nil and KindUnknown for
// errors outside the taxonomy.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	var se *script.SyntaxError
	if errors.As(err, &se) {
		return KindSyntaxError
	}
	for _, r := range kindRules {
		if errors.Is(err, r.err) {
			return r.kind
		}
	}
	return KindUnknown
}
