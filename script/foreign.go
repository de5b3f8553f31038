package script

import (
	"errors"
	"fmt"
	"strings"

	"github.com/beyondbrewing/cask/value"
)

// ForeignFunc is a host callback callable from scripts. Arguments arrive
// as host values (see value.ToHost); the result is converted back with
// value.FromHost. Returning an error, or panicking, aborts execution with
// ErrAborted.
type ForeignFunc func(args ...any) (any, error)

// RegisterFunc makes fn callable from scripts as name(...). A foreign
// function shadows a builtin of the same name.
func (vm *VM) RegisterFunc(name string, fn ForeignFunc) error {
	if vm.closed {
		return ErrClosed
	}
	if name == "" || fn == nil {
		return errors.New("script: foreign function needs a name and a body")
	}
	vm.foreign[strings.ToLower(name)] = fn
	return nil
}

// UnregisterFunc removes a foreign function. It reports whether one was
// registered under name.
func (vm *VM) UnregisterFunc(name string) bool {
	key := strings.ToLower(name)
	if _, ok := vm.foreign[key]; !ok {
		return false
	}
	delete(vm.foreign, key)
	return true
}

func (vm *VM) callForeign(pos Position, name string, fn ForeignFunc, args []value.Value) (res value.Value, err error) {
	hostArgs := make([]any, len(args))
	for i, a := range args {
		hostArgs[i] = value.ToHost(a, vm.hostOpts...)
	}

	defer func() {
		if p := recover(); p != nil {
			vm.log.Warn("foreign function panicked", "function", name, "panic", p)
			res = value.Null()
			err = &RuntimeError{Pos: pos, Err: fmt.Errorf("%w: %s() panicked: %v", ErrAborted, name, p)}
		}
	}()

	out, ferr := fn(hostArgs...)
	if ferr != nil {
		vm.log.Warn("foreign function failed", "function", name, "error", ferr)
		return value.Null(), &RuntimeError{Pos: pos, Err: fmt.Errorf("%w: %s(): %w", ErrAborted, name, ferr)}
	}
	v, cerr := value.FromHost(out)
	if cerr != nil {
		return value.Null(), &RuntimeError{Pos: pos, Err: fmt.Errorf("%w: %s() result: %w", ErrAborted, name, cerr)}
	}
	return v, nil
}
