// Package logging configures the engine's structured logging.
package logging

import (
	"os"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	globalLogger atomic.Pointer[zap.Logger]
	once         sync.Once
)

// Options controls logger construction.
type Options struct {
	// Level is one of "debug", "info", "warn", "error". Defaults to info.
	Level string
	// LogFile, when set, mirrors all entries to a JSON log file.
	LogFile string
}

// Initialize sets up the global logger. Safe to call more than once; only
// the first call takes effect.
func Initialize(opts Options) {
	once.Do(func() {
		level := zap.NewAtomicLevel()
		if err := level.UnmarshalText([]byte(opts.Level)); err != nil {
			level.SetLevel(zap.InfoLevel)
		}

		encCfg := zap.NewProductionEncoderConfig()
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		consoleCore := zapcore.NewCore(
			zapcore.NewConsoleEncoder(encCfg),
			zapcore.Lock(os.Stderr),
			level,
		)
		cores := []zapcore.Core{consoleCore}

		if opts.LogFile != "" {
			if f, err := os.OpenFile(opts.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644); err == nil {
				fileCore := zapcore.NewCore(
					zapcore.NewJSONEncoder(encCfg),
					zapcore.Lock(f),
					level,
				)
				cores = append(cores, fileCore)
			}
		}

		logger := zap.New(zapcore.NewTee(cores...), zap.AddStacktrace(zap.ErrorLevel))
		globalLogger.Store(logger)
		zap.ReplaceGlobals(logger)
	})
}

// NewLogger returns a named logger for a specific component. Initializes
// the global logger with defaults if that has not happened yet.
func NewLogger(component string) *zap.Logger {
	if globalLogger.Load() == nil {
		Initialize(Options{})
	}
	return globalLogger.Load().Named(component)
}
