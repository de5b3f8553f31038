// Package cask is an embedded transactional key/value store with a
// document layer on top.
//
// A [DB] bundles the three layers: the byte store ([kv.Store]) with its
// cursors and transactions, the collection engine ([docs.Engine]) and the
// script VM ([script.VM]) that drives it. [Collection] wraps the usual
// document operations, each of which runs a small script against the
// collection and converts the result back to Go values.
//
// A DB is meant to be used from one goroutine at a time.
package cask

import (
	"context"
	"fmt"
	"time"

	"github.com/beyondbrewing/cask/config"
	"github.com/beyondbrewing/cask/docs"
	"github.com/beyondbrewing/cask/kv"
	"github.com/beyondbrewing/cask/pkg/logger"
	"github.com/beyondbrewing/cask/script"
	lru "github.com/hashicorp/golang-lru"
)

// DefaultProgramCacheSize is the number of compiled scripts a DB keeps.
const DefaultProgramCacheSize = 128

// DB is an open database.
type DB struct {
	store    *kv.Store
	engine   *docs.Engine
	base     logger.Logger
	log      logger.Logger
	programs *lru.Cache

	// cursors holds one VM per collection name for FetchCurrent and
	// friends, so the record cursor advances across calls.
	cursors map[string]*script.VM
	closed  bool
}

type options struct {
	kvOpts    []kv.Option
	log       logger.Logger
	cacheSize int
	now       func() time.Time
}

// Option configures Open.
type Option func(*options)

// WithKVOptions passes options through to kv.Open.
func WithKVOptions(opts ...kv.Option) Option {
	return func(o *options) { o.kvOpts = append(o.kvOpts, opts...) }
}

// WithLogger sets the logger shared by every layer.
func WithLogger(l logger.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithProgramCacheSize sets how many compiled scripts are cached.
func WithProgramCacheSize(n int) Option {
	return func(o *options) { o.cacheSize = n }
}

// WithClock replaces time.Now for collection creation dates.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// Open opens the database at path. An empty path or ":mem:" opens a fresh
// in-memory database.
func Open(path string, opts ...Option) (*DB, error) {
	o := &options{
		log:       logger.Default(),
		cacheSize: DefaultProgramCacheSize,
	}
	for _, fn := range opts {
		fn(o)
	}

	kvOpts := append([]kv.Option{kv.WithLogger(o.log)}, o.kvOpts...)
	kvOpts = append(kvOpts, kv.WithFamilies(docs.Family))
	store, err := kv.Open(path, kvOpts...)
	if err != nil {
		return nil, err
	}

	docOpts := []docs.Option{docs.WithLogger(o.log)}
	if o.now != nil {
		docOpts = append(docOpts, docs.WithClock(o.now))
	}
	engine, err := docs.New(store, docOpts...)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	programs, err := lru.New(o.cacheSize)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("cask: program cache: %w", err)
	}

	return &DB{
		store:    store,
		engine:   engine,
		base:     o.log,
		log:      o.log.With("component", "cask"),
		programs: programs,
		cursors:  make(map[string]*script.VM),
	}, nil
}

// OpenConfig opens the database described by cfg, with a logger built from
// its log settings.
func OpenConfig(cfg *config.Config, opts ...Option) (*DB, error) {
	l, err := logger.New(cfg.LogLevel, cfg.LogDevelopment)
	if err != nil {
		return nil, fmt.Errorf("cask: logger: %w", err)
	}
	base := []Option{WithLogger(l), WithKVOptions(cfg.Options()...)}
	return Open(cfg.Path, append(base, opts...)...)
}

// KV returns the underlying byte store.
func (d *DB) KV() *kv.Store { return d.store }

// Engine returns the collection engine.
func (d *DB) Engine() *docs.Engine { return d.engine }

// Compile parses source, reusing a cached program for source text seen
// before.
func (d *DB) Compile(source string) (*script.Program, error) {
	if p, ok := d.programs.Get(source); ok {
		return p.(*script.Program), nil
	}
	p, err := script.Compile(source)
	if err != nil {
		return nil, err
	}
	d.programs.Add(source, p)
	return p, nil
}

// VM compiles source and returns a VM bound to this database. The caller
// must Close it.
func (d *DB) VM(source string, opts ...script.Option) (*script.VM, error) {
	if d.closed {
		return nil, kv.ErrClosed
	}
	prog, err := d.Compile(source)
	if err != nil {
		return nil, err
	}
	opts = append([]script.Option{script.WithLogger(d.base)}, opts...)
	return script.NewVM(d.engine, prog, opts...), nil
}

// Execute runs source once with vars bound as globals and returns every
// global afterwards.
func (d *DB) Execute(ctx context.Context, source string, vars map[string]any) (map[string]any, error) {
	vm, err := d.VM(source)
	if err != nil {
		return nil, err
	}
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

// Collection returns a handle for the named collection. The collection
// need not exist.
func (d *DB) Collection(name string) *Collection {
	return &Collection{db: d, name: name}
}

// CreateCollection creates the named collection, returning ErrAlreadyExists
// when it is already there.
func (d *DB) CreateCollection(name string) (*Collection, error) {
	c := d.Collection(name)
	created, err := c.Create()
	if err != nil {
		return nil, err
	}
	if !created {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyExists, name)
	}
	return c, nil
}

// Collections lists the existing collections in name order.
func (d *DB) Collections() ([]string, error) {
	if d.closed {
		return nil, kv.ErrClosed
	}
	return d.engine.Names()
}

// Close releases every cursor VM and closes the store. An open transaction
// is rolled back.
func (d *DB) Close() error {
	if d.closed {
		return kv.ErrClosed
	}
	d.closed = true
	for name, vm := range d.cursors {
		_ = vm.Close()
		delete(d.cursors, name)
	}
	d.programs.Purge()
	d.log.Debug("closing database", "path", d.store.Path())
	return d.store.Close()
}
