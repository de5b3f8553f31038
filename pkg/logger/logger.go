// Package logger is a thin structured-logging facade over zap. Components
// take a [Logger] through functional options and fall back to [Default].
package logger

import (
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the structured logger used across the module. Arguments after
// the message are alternating key/value pairs.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)

	// With returns a child logger that attaches the given pairs to every
	// entry.
	With(keysAndValues ...any) Logger

	// Sync flushes buffered entries.
	Sync() error
}

type zapLogger struct {
	s *zap.SugaredLogger
}

var _ Logger = (*zapLogger)(nil)

func (l *zapLogger) Debug(msg string, kv ...any) { l.s.Debugw(msg, kv...) }
func (l *zapLogger) Info(msg string, kv ...any)  { l.s.Infow(msg, kv...) }
func (l *zapLogger) Warn(msg string, kv ...any)  { l.s.Warnw(msg, kv...) }
func (l *zapLogger) Error(msg string, kv ...any) { l.s.Errorw(msg, kv...) }

func (l *zapLogger) With(kv ...any) Logger {
	return &zapLogger{s: l.s.With(kv...)}
}

func (l *zapLogger) Sync() error { return l.s.Sync() }

// NewFromZap wraps an existing zap logger.
func NewFromZap(z *zap.Logger) Logger {
	return &zapLogger{s: z.Sugar()}
}

// New builds a logger at the given level ("debug", "info", "warn",
// "error"). development selects zap's console encoder.
func New(level string, development bool) (Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("logger: invalid level %q: %w", level, err)
	}

	cfg := zap.NewProductionConfig()
	if development {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	z, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("logger: build: %w", err)
	}
	return NewFromZap(z), nil
}

// MustProduction returns a production logger or panics.
func MustProduction() Logger {
	z, err := zap.NewProduction()
	if err != nil {
		panic(fmt.Sprintf("logger: %v", err))
	}
	return NewFromZap(z)
}

// NewNop returns a logger that discards everything.
func NewNop() Logger {
	return NewFromZap(zap.NewNop())
}

var (
	mu       sync.RWMutex
	fallback = NewNop()
)

// Default returns the process-wide logger. It discards output until
// SetDefault installs something else.
func Default() Logger {
	mu.RLock()
	defer mu.RUnlock()
	return fallback
}

// SetDefault replaces the process-wide logger. A nil argument restores the
// no-op logger.
func SetDefault(l Logger) {
	if l == nil {
		l = NewNop()
	}
	mu.Lock()
	fallback = l
	mu.Unlock()
}

// SyncDefault flushes the process-wide logger, ignoring the error zap
// returns for unsyncable outputs such as a terminal.
func SyncDefault() {
	_ = Default().Sync()
}

// Fatal logs at error level through the default logger, flushes it and
// exits the process.
func Fatal(msg string, keysAndValues ...any) {
	l := Default()
	l.Error(msg, keysAndValues...)
	_ = l.Sync()
	os.Exit(1)
}
