package logger

import (
	"errors"
	"fmt"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const serviceName = "music_police"

// Log is the process-wide logger. Use GetLogger to read it.
var Log *zap.Logger

// New builds a JSON logger writing to stdout at level
func New(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.Sampling = nil
	cfg.DisableStacktrace = true
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build(zap.Fields(zap.String("service", serviceName)))
}

// Init replaces the process-wide logger
func Init(level string) error {
	l, err := New(level)
	if err != nil {
		return err
	}
	Log = l
	return nil
}

// GetLogger returns the process-wide logger, falling back to an info-level one before Init
func GetLogger() *zap.Logger {
	if Log == nil {
		l, err := New("info")
		if err != nil {
			panic(err)
		}
		Log = l
	}
	return Log
}

// Sync flushes buffered entries. Syncing a terminal or pipe stdout is not an error.
func Sync() error {
	if Log == nil {
		return nil
	}
	if err := Log.Sync(); err != nil && !errors.Is(err, syscall.EINVAL) && !errors.Is(err, syscall.ENOTTY) {
		return err
	}
	return nil
}
