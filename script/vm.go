// Package script implements the small imperative language used to drive
// document collections: a lexer and recursive descent parser producing a
// syntax tree, and a tree-walking VM with collection builtins backed by a
// [docs.Engine].
//
// A VM is confined to one goroutine. Compiled programs are immutable and
// may be shared between VMs.
package script

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	"github.com/beyondbrewing/cask/docs"
	"github.com/beyondbrewing/cask/pkg/logger"
	"github.com/beyondbrewing/cask/value"
)

// Program is a compiled script.
type Program struct {
	source string
	stmts  []Stmt
	funcs  map[string]*FuncDecl
}

// Source returns the program text.
func (p *Program) Source() string { return p.source }

// Compile parses source. Malformed source yields a *SyntaxError.
func Compile(source string) (*Program, error) {
	stmts, funcs, err := NewParser(source).ParseProgram()
	if err != nil {
		logger.Default().Debug("script compile failed", "component", "script", "error", err)
		return nil, err
	}
	return &Program{source: source, stmts: stmts, funcs: funcs}, nil
}

// MustCompile is Compile for sources known to be valid.
func MustCompile(source string) *Program {
	p, err := Compile(source)
	if err != nil {
		panic(err)
	}
	return p
}

// VM executes one Program. Globals survive between Execute calls.
type VM struct {
	engine *docs.Engine
	prog   *Program
	log    logger.Logger

	globals  *scope
	foreign  map[string]ForeignFunc
	cursors  map[string]int64
	errlog   []string
	hostOpts []value.HostOption

	out    io.Writer
	buf    *bytes.Buffer
	closed bool
}

// Option configures a VM.
type Option func(*VM)

// WithLogger sets the VM logger.
func WithLogger(l logger.Logger) Option {
	return func(vm *VM) { vm.log = l }
}

// WithOutput sends print output to w instead of the internal buffer.
func WithOutput(w io.Writer) Option {
	return func(vm *VM) { vm.out = w }
}

// WithHostOptions controls how Extract and Exports convert values.
func WithHostOptions(opts ...value.HostOption) Option {
	return func(vm *VM) { vm.hostOpts = opts }
}

// NewVM prepares prog for execution against engine. engine may be nil for
// scripts that do not touch collections.
func NewVM(engine *docs.Engine, prog *Program, opts ...Option) *VM {
	vm := &VM{
		engine:  engine,
		prog:    prog,
		log:     logger.Default(),
		globals: newScope(),
		foreign: make(map[string]ForeignFunc),
		cursors: make(map[string]int64),
		buf:     new(bytes.Buffer),
	}
	vm.out = vm.buf
	for _, o := range opts {
		o(vm)
	}
	vm.log = vm.log.With("component", "script")
	return vm
}

// Bind converts a host value and assigns it to the global $name.
func (vm *VM) Bind(name string, v any) error {
	if vm.closed {
		return ErrClosed
	}
	dv, err := value.FromHost(v)
	if err != nil {
		return fmt.Errorf("script: bind $%s: %w", name, err)
	}
	vm.globals.set(name, dv)
	return nil
}

// BindValue assigns v to the global $name.
func (vm *VM) BindValue(name string, v value.Value) {
	vm.globals.set(name, v.Clone())
}

// Execute runs the program against the current globals. ctx is checked
// between statements and loop iterations.
func (vm *VM) Execute(ctx context.Context) error {
	if vm.closed {
		return ErrClosed
	}
	r := &run{vm: vm, ctx: ctx}
	c, _, err := r.execBlock(vm.globals, vm.prog.stmts)
	if err != nil {
		return err
	}
	if c == ctlBreak || c == ctlContinue {
		return &RuntimeError{Err: errors.New("break or continue outside a loop")}
	}
	return nil
}

// Extract returns the global $name converted to a host value.
func (vm *VM) Extract(name string) (any, bool) {
	v, ok := vm.globals.vars[name]
	if !ok {
		return nil, false
	}
	return value.ToHost(v, vm.hostOpts...), true
}

// ExtractValue returns the global $name.
func (vm *VM) ExtractValue(name string) (value.Value, bool) {
	v, ok := vm.globals.vars[name]
	return v.Clone(), ok
}

// Exports returns every global converted to host values.
func (vm *VM) Exports() map[string]any {
	out := make(map[string]any, len(vm.globals.vars))
	for name, v := range vm.globals.vars {
		out[name] = value.ToHost(v, vm.hostOpts...)
	}
	return out
}

// Reset clears the error log and the print buffer so the program can be
// executed again. Globals and the db_fetch cursors are kept, so fetching
// after a reset continues with the next record.
func (vm *VM) Reset() {
	vm.errlog = nil
	vm.buf.Reset()
}

// Output returns what print wrote, when no WithOutput writer was given.
func (vm *VM) Output() string { return vm.buf.String() }

// ErrLog returns the non-fatal messages recorded by collection builtins.
func (vm *VM) ErrLog() []string { return append([]string(nil), vm.errlog...) }

func (vm *VM) logError(format string, args ...any) {
	vm.errlog = append(vm.errlog, fmt.Sprintf(format, args...))
}

// Close unregisters every foreign function and disables the VM. Closing
// twice returns ErrClosed.
func (vm *VM) Close() error {
	if vm.closed {
		return ErrClosed
	}
	if len(vm.foreign) > 0 {
		vm.log.Debug("unregistering foreign functions", "functions", strings.Join(slices.Sorted(maps.Keys(vm.foreign)), ","))
	}
	clear(vm.foreign)
	vm.closed = true
	return nil
}

// Run compiles source, binds vars, executes once and returns the globals.
func Run(ctx context.Context, engine *docs.Engine, source string, vars map[string]any) (map[string]any, error) {
	prog, err := Compile(source)
	if err != nil {
		return nil, err
	}
	vm := NewVM(engine, prog)
	defer vm.Close()

	for name, v := range vars {
		if err := vm.Bind(name, v); err != nil {
			return nil, err
		}
	}
	if err := vm.Execute(ctx); err != nil {
		return nil, err
	}
	return vm.Exports(), nil
}
