// Package logger owns the process logger. Everything in the framework
// logs through it so level and encoding are configured in one place.
package logger

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu   sync.RWMutex
	root = newDefault()
)

func newDefault() *zap.Logger {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	log, err := cfg.Build()
	if err != nil {
		// Production config with defaults cannot fail to build; fall back
		// to a no-op logger rather than crash during init.
		return zap.NewNop()
	}
	return log
}

// L returns the process logger.
func L() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return root
}

// Named returns a child of the process logger with the given name.
func Named(name string) *zap.Logger {
	return L().Named(name)
}

// SetLogger replaces the process logger; applications call this to plug in
// their own configuration.
func SetLogger(log *zap.Logger) {
	if log == nil {
		return
	}
	mu.Lock()
	root = log
	mu.Unlock()
}

// SetLevel rebuilds the process logger at the given level.
func SetLevel(level zapcore.Level) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	if log, err := cfg.Build(); err == nil {
		SetLogger(log)
	}
}
