// Package config loads database settings from defaults, an optional .env
// style file and CASK_* environment variables, in increasing priority.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/beyondbrewing/cask/kv"
	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// injected configurations
var (
	APP_NAME    string = "cask"
	APP_VERSION string = "0.0.1"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "CASK"

// DefaultFile is read by Load when no files are given. It may be absent.
const DefaultFile = ".env"

// Config describes how to open a database.
type Config struct {
	// Path is the database directory, or ":mem:" for memory.
	Path            string
	CreateIfMissing bool
	ReadOnly        bool
	AutoCommit      bool
	SyncWrites      bool

	// CacheSize and MemTableSize accept humanized sizes ("64MB") in files
	// and the environment.
	CacheSize    int64
	MemTableSize uint64

	LogLevel       string
	LogDevelopment bool
}

var defaults = map[string]any{
	"path":              ":mem:",
	"create_if_missing": true,
	"read_only":         false,
	"auto_commit":       true,
	"sync_writes":       true,
	"cache_size":        "0",
	"mem_table_size":    "0",
	"log_level":         "info",
	"log_development":   false,
}

// Default returns the settings used when nothing is configured.
func Default() *Config {
	return &Config{
		Path:            ":mem:",
		CreateIfMissing: true,
		AutoCommit:      true,
		SyncWrites:      true,
		LogLevel:        "info",
	}
}

// Load reads the given files (or DefaultFile) and the environment. A
// missing DefaultFile is ignored; a missing explicit file is an error.
func Load(files ...string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	explicit := len(files) > 0
	if !explicit {
		files = []string{DefaultFile}
	}
	for _, f := range files {
		vals, err := godotenv.Read(f)
		if err != nil {
			if !explicit && errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("config: read %s: %w", f, err)
		}
		// File values sit between the defaults and the environment.
		for k, val := range vals {
			key, ok := strings.CutPrefix(strings.ToUpper(k), EnvPrefix+"_")
			if !ok {
				continue
			}
			v.SetDefault(strings.ToLower(key), val)
		}
	}

	cacheSize, err := humanize.ParseBytes(v.GetString("cache_size"))
	if err != nil {
		return nil, fmt.Errorf("config: cache_size: %w", err)
	}
	memTableSize, err := humanize.ParseBytes(v.GetString("mem_table_size"))
	if err != nil {
		return nil, fmt.Errorf("config: mem_table_size: %w", err)
	}

	return &Config{
		Path:            v.GetString("path"),
		CreateIfMissing: v.GetBool("create_if_missing"),
		ReadOnly:        v.GetBool("read_only"),
		AutoCommit:      v.GetBool("auto_commit"),
		SyncWrites:      v.GetBool("sync_writes"),
		CacheSize:       int64(cacheSize),
		MemTableSize:    memTableSize,
		LogLevel:        v.GetString("log_level"),
		LogDevelopment:  v.GetBool("log_development"),
	}, nil
}

// Options translates the settings into kv store options.
func (c *Config) Options() []kv.Option {
	return []kv.Option{
		kv.WithCreateIfMissing(c.CreateIfMissing),
		kv.WithReadOnly(c.ReadOnly),
		kv.WithAutoCommit(c.AutoCommit),
		kv.WithSyncWrites(c.SyncWrites),
		kv.WithCacheSize(c.CacheSize),
		kv.WithMemTableSize(c.MemTableSize),
	}
}
