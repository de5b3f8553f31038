package kv

import (
	"github.com/beyondbrewing/cask/db"
	"github.com/beyondbrewing/cask/pkg/logger"
)

// Config holds the options of a [Store]. Use functional [Option] values
// with [Open].
type Config struct {
	// CreateIfMissing creates a missing file database (default true).
	CreateIfMissing bool

	// ReadOnly rejects every mutation with ErrReadOnly.
	ReadOnly bool

	// AutoCommit makes each mutation outside an explicit transaction
	// durable immediately (default true). When off, such mutations are
	// buffered until Flush and dropped by Close.
	AutoCommit bool

	// SyncWrites fsyncs every commit of the file backend (default true).
	SyncWrites bool

	// CacheSize and MemTableSize tune the file backend. Zero keeps the
	// backend default.
	CacheSize    int64
	MemTableSize uint64

	// Families lists extra column families to register besides the
	// default one.
	Families []string

	// Logger receives structured log messages. Defaults to
	// logger.Default().
	Logger logger.Logger
}

// DefaultConfig returns the defaults used by Open.
func DefaultConfig() *Config {
	return &Config{
		CreateIfMissing: true,
		AutoCommit:      true,
		SyncWrites:      true,
	}
}

// Option is a functional option applied to [Config] during [Open].
type Option func(*Config)

// WithCreateIfMissing controls whether a missing database is created.
func WithCreateIfMissing(create bool) Option {
	return func(c *Config) { c.CreateIfMissing = create }
}

// WithReadOnly opens the database read-only.
func WithReadOnly(readOnly bool) Option {
	return func(c *Config) { c.ReadOnly = readOnly }
}

// WithAutoCommit sets the initial auto-commit mode.
func WithAutoCommit(on bool) Option {
	return func(c *Config) { c.AutoCommit = on }
}

// WithSyncWrites controls fsync on commit for the file backend.
func WithSyncWrites(sync bool) Option {
	return func(c *Config) { c.SyncWrites = sync }
}

// WithCacheSize sets the file backend block-cache size in bytes.
func WithCacheSize(size int64) Option {
	return func(c *Config) { c.CacheSize = size }
}

// WithMemTableSize sets the file backend memtable size in bytes.
func WithMemTableSize(size uint64) Option {
	return func(c *Config) { c.MemTableSize = size }
}

// WithFamilies registers extra column families.
func WithFamilies(names ...string) Option {
	return func(c *Config) { c.Families = append(c.Families, names...) }
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

func (c *Config) backendOptions() []db.Option {
	opts := []db.Option{
		db.WithColumnFamilies(c.Families...),
		db.WithCreateIfMissing(c.CreateIfMissing),
		db.WithReadOnly(c.ReadOnly),
		db.WithSyncWrites(c.SyncWrites),
	}
	if c.CacheSize > 0 {
		opts = append(opts, db.WithCacheSize(c.CacheSize))
	}
	if c.MemTableSize > 0 {
		opts = append(opts, db.WithMemTableSize(c.MemTableSize))
	}
	if c.Logger != nil {
		opts = append(opts, db.WithLogger(c.Logger))
	}
	return opts
}
