// Copyright (c) 2025 A Bit of Help, Inc.

// Package dataprocessor runs codec calls in isolation.
//
// Codecs are opaque third-party code: a panic inside one must surface as an error
// for that codec only, never crash the racer or the decoder. Guard runs a call
// synchronously on the caller's goroutine (race workers already own a goroutine),
// while ProcessWithContext lets a sequential caller stop waiting when its context
// is canceled.
package dataprocessor

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	customErrors "github.com/abitofhelp/compresso/pkg/errors"
)

// ProcessFunc transforms a buffer, typically a codec's Compress or Decompress
type ProcessFunc func([]byte) ([]byte, error)

// AbandonGrace is how long ProcessWithContext waits for a canceled call to return
// before leaving it running in the background
var AbandonGrace = time.Second

// Guard executes processFunc synchronously and converts a panic into an error
// wrapping customErrors.ErrPanic
func Guard(processFunc ProcessFunc, data []byte) (result []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("%w: %v\nstack: %s", customErrors.ErrPanic, r, debug.Stack())
		}
	}()

	return processFunc(data)
}

// ProcessWithContext executes a data processing function with context awareness.
//
// The call runs on its own goroutine. When ctx is done first, the call is given
// AbandonGrace to finish and is then abandoned; it cannot be interrupted.
func ProcessWithContext(ctx context.Context, processFunc ProcessFunc, data []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, customErrors.FromContext(err, "before processing data")
	}

	type outcome struct {
		result []byte
		err    error
	}

	// Buffered so an abandoned call can still deliver and exit
	done := make(chan outcome, 1)

	go func() {
		result, err := Guard(processFunc, data)
		done <- outcome{result: result, err: err}
	}()

	select {
	case o := <-done:
		return o.result, o.err
	case <-ctx.Done():
		timer := time.NewTimer(AbandonGrace)
		defer timer.Stop()

		select {
		case <-done:
		case <-timer.C:
		}

		return nil, customErrors.FromContext(ctx.Err(), "while processing data")
	}
}
