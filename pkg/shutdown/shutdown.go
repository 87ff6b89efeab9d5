// Copyright (c) 2025 A Bit of Help, Inc.

// Package shutdown turns process signals into context cancellation
package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// DefaultForceTimeout is how long a canceled session may take to wind down
// before the process is terminated
const DefaultForceTimeout = 30 * time.Second

// exitFunc is replaced in tests
var exitFunc = os.Exit

// SetupGracefulShutdown cancels the session on the first SIGINT, SIGTERM,
// SIGHUP or SIGQUIT. A second signal, or a session still running forceAfter
// the first one, exits the process with status 1.
//
// It returns a cleanup function that should be deferred; it is safe to call
// more than once.
func SetupGracefulShutdown(cancel context.CancelFunc, logger *zap.Logger, forceAfter time.Duration) func() {
	if logger == nil {
		logger = zap.NewNop()
	}
	if forceAfter <= 0 {
		forceAfter = DefaultForceTimeout
	}
	exit := exitFunc

	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP, syscall.SIGQUIT)

	done := make(chan struct{})

	go func() {
		received := false
		for {
			select {
			case sig := <-sigChan:
				if received {
					logger.Warn("Received second signal, forcing immediate shutdown",
						zap.String("signal", sig.String()))
					exit(1)
					return
				}
				received = true

				logger.Info("Received signal, initiating graceful shutdown",
					zap.String("signal", sig.String()))
				cancel()

				go func() {
					timer := time.NewTimer(forceAfter)
					defer timer.Stop()

					select {
					case <-timer.C:
						logger.Warn("Graceful shutdown timed out, forcing exit",
							zap.Duration("timeout", forceAfter))
						exit(1)
					case <-done:
					}
				}()
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			signal.Stop(sigChan)
			logger.Debug("Signal handling cleaned up")
		})
	}
}
