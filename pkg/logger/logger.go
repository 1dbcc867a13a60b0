// Package logger holds the process-wide zap logger. It is a no-op until Init
// or Replace is called, so packages may log from init paths and tests.
package logger

import (
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var current atomic.Pointer[zap.Logger]

func init() {
	current.Store(zap.NewNop())
}

// Init builds a JSON production logger at level, or a console logger when
// encoding is "development". Unknown levels mean info.
func Init(level string, encoding ...string) error {
	cfg := zap.NewProductionConfig()
	if len(encoding) > 0 && strings.EqualFold(strings.TrimSpace(encoding[0]), "development") {
		cfg = zap.NewDevelopmentConfig()
	}

	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	built, err := cfg.Build()
	if err != nil {
		return err
	}
	Replace(built)
	return nil
}

// Replace installs l; nil installs a no-op logger.
func Replace(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	current.Store(l)
}

func Logger() *zap.Logger { return current.Load() }

func Sync() error { return Logger().Sync() }

// WithModule tags every entry with the emitting module.
func WithModule(module string) *zap.Logger {
	return Logger().With(zap.String("module", module))
}
