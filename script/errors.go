package script

import (
	"errors"
	"fmt"
)

var (
	// ErrAborted is returned when a foreign function fails or panics.
	ErrAborted = errors.New("script: execution aborted")
	// ErrClosed is returned by a VM after Close.
	ErrClosed = errors.New("script: vm is closed")
	// ErrNoEngine is raised by db_* functions on a VM without a
	// collection engine.
	ErrNoEngine = errors.New("script: no collection engine")
	// ErrUnknownFunction is raised when a call names no function.
	ErrUnknownFunction = errors.New("script: call to undefined function")
)

// SyntaxError reports malformed source.
type SyntaxError struct {
	Pos Position
	Msg string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("script: syntax error at line %d, column %d: %s", e.Pos.Line, e.Pos.Column, e.Msg)
}

// RuntimeError is a failure during execution.
type RuntimeError struct {
	Pos Position
	Err error
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("script: line %d: %v", e.Pos.Line, e.Err)
}

func (e *RuntimeError) Unwrap() error { return e.Err }

func runtimeErrorf(pos Position, format string, args ...any) error {
	return &RuntimeError{Pos: pos, Err: fmt.Errorf(format, args...)}
}

// atPos attaches pos to err unless it already carries a position.
func atPos(pos Position, err error) error {
	var re *RuntimeError
	if err == nil || errors.As(err, &re) {
		return err
	}
	return &RuntimeError{Pos: pos, Err: err}
}
