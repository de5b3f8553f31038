package db

import (
	"github.com/beyondbrewing/cask/pkg/logger"
)

// Config holds all tunable parameters for a backend. Use functional
// [Option] values with [Open] or [NewMemStore] rather than constructing a
// Config directly.
type Config struct {
	// ColumnFamilies lists logical column families to register. This list
	// controls which CF names are accepted by Store methods. The
	// [DefaultColumnFamily] ("default") is always included automatically.
	ColumnFamilies []string

	// CreateIfMissing creates the database directory when it does not
	// exist. When false, opening a missing database fails with
	// ErrNotExist.
	CreateIfMissing bool

	// ReadOnly opens the database without write access. Writes fail with
	// ErrReadOnly.
	ReadOnly bool

	// --- Performance Tuning (file backend only) ---

	// CacheSize is the shared block-cache capacity in bytes.
	CacheSize int64

	// MemTableSize is the size of a single memtable in bytes.
	MemTableSize uint64

	// MaxOpenFiles limits the number of open file descriptors Pebble
	// keeps open. Use 0 for Pebble's default.
	MaxOpenFiles int

	// SyncWrites controls whether each commit is synced to stable
	// storage before returning.
	SyncWrites bool

	// Logger receives structured operational log messages.
	// If not set, the global logger.Default() is used.
	Logger logger.Logger
}

// DefaultConfig returns a Config tuned for an embedded store: small
// caches, durable commits, directory created on demand.
func DefaultConfig() *Config {
	return &Config{
		CreateIfMissing: true,
		CacheSize:       8 << 20, // 8 MB
		MemTableSize:    4 << 20, // 4 MB
		SyncWrites:      true,
	}
}

// Option is a functional option applied to [Config] during [Open].
type Option func(*Config)

// WithColumnFamilies registers logical column families.
// The [DefaultColumnFamily] ("default") is always present regardless.
func WithColumnFamilies(cfs ...string) Option {
	return func(c *Config) { c.ColumnFamilies = cfs }
}

// WithCreateIfMissing controls whether a missing database is created.
func WithCreateIfMissing(create bool) Option {
	return func(c *Config) { c.CreateIfMissing = create }
}

// WithReadOnly opens the database read-only.
func WithReadOnly(readOnly bool) Option {
	return func(c *Config) { c.ReadOnly = readOnly }
}

// WithCacheSize sets the shared block-cache capacity in bytes.
func WithCacheSize(size int64) Option {
	return func(c *Config) { c.CacheSize = size }
}

// WithMemTableSize sets the memtable size in bytes.
func WithMemTableSize(size uint64) Option {
	return func(c *Config) { c.MemTableSize = size }
}

// WithMaxOpenFiles limits the number of open file descriptors.
func WithMaxOpenFiles(n int) Option {
	return func(c *Config) { c.MaxOpenFiles = n }
}

// WithSyncWrites enables per-commit durability (fsync).
func WithSyncWrites(sync bool) Option {
	return func(c *Config) { c.SyncWrites = sync }
}

// WithLogger sets a custom logger for the database.
// If not set, the global logger.Default() is used.
func WithLogger(l logger.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

func (c *Config) columnFamilies() []string {
	cfs := make([]string, 0, 1+len(c.ColumnFamilies))
	cfs = append(cfs, DefaultColumnFamily)
	for _, cf := range c.ColumnFamilies {
		if cf != DefaultColumnFamily {
			cfs = append(cfs, cf)
		}
	}
	return cfs
}

func (c *Config) logger() logger.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return logger.Default()
}
