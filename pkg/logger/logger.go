// Copyright (c) 2025 A Bit of Help, Inc.

// Package logger builds the zap logger used by the compresso command
package logger

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ExitFunc is a function that exits the program with a given status code
type ExitFunc func(int)

// DefaultExitFunc is the default implementation of ExitFunc
var DefaultExitFunc = os.Exit

// Config builds the zap configuration for the given verbosity.
// Verbose output lowers the level to debug so per-round and per-codec events are shown.
func Config(verbose bool) zap.Config {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.EncoderConfig.EncodeDuration = zapcore.StringDurationEncoder
	if verbose {
		config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	return config
}

// InitLoggerWithExit initializes and returns a configured zap logger
// It takes an exit function to allow for testing
func InitLoggerWithExit(verbose bool, exit ExitFunc) *zap.Logger {
	logger, err := Config(verbose).Build()
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		exit(1)
		return zap.NewNop()
	}
	return logger
}

// InitLogger initializes and returns a configured zap logger
func InitLogger(verbose bool) *zap.Logger {
	return InitLoggerWithExit(verbose, DefaultExitFunc)
}

// SafeSync syncs the logger and ignores "bad file descriptor" errors
// which can occur during shutdown when stderr is already closed
func SafeSync(logger *zap.Logger) {
	if logger == nil {
		return
	}

	if err := logger.Sync(); err != nil && err.Error() != "sync /dev/stderr: bad file descriptor" {
		// Can't use logger here as we're syncing it
		fmt.Fprintf(os.Stderr, "Failed to sync logger: %v\n", err)
	}
}
