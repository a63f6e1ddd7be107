// Package logger provides centralized logging for the QA engine.
// It follows Uber Go Style Guide conventions for error handling and naming.
package logger

import (
	"log/slog"
	"os"
)

// instance holds the global logger. Access goes through Get so an
// uninitialized logger falls back to a sane default instead of nil.
var instance *slog.Logger

// Init initializes the global logger with a production-style JSON handler.
func Init() error {
	return InitWithConfig(slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
}

// InitWithConfig initializes the logger with custom slog handler options.
// It allows for more flexible logger setup in different environments.
func InitWithConfig(opts slog.HandlerOptions) error {
	instance = slog.New(slog.NewJSONHandler(os.Stdout, &opts))
	return nil
}

// Get returns the global logger instance, initializing a default one when
// none exists.
func Get() *slog.Logger {
	if instance == nil {
		_ = Init()
	}
	return instance
}

// Sync flushes buffered log entries if the handler supports it.
// It's safe to call multiple times and handles nil logger gracefully.
func Sync() error {
	if instance == nil {
		return nil
	}

	type syncer interface {
		Sync() error
	}
	if s, ok := instance.Handler().(syncer); ok {
		return s.Sync()
	}
	return nil
}
