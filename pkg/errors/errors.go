// Copyright (c) 2025 A Bit of Help, Inc.

// Package errors provides custom error types and error handling utilities for the application.
package errors

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"
)

// Standard errors that can be used for comparison with errors.Is
var (
	// ErrTimeout indicates an operation timed out
	ErrTimeout = errors.New("operation timed out")

	// ErrCanceled indicates an operation was canceled
	ErrCanceled = errors.New("operation canceled")

	// ErrIOFailure indicates an I/O operation failed
	ErrIOFailure = errors.New("I/O operation failed")

	// ErrPanic indicates a panic occurred
	ErrPanic = errors.New("panic occurred")

	// ErrUnsupportedFormatVersion indicates a container written by an unknown format version
	ErrUnsupportedFormatVersion = errors.New("unsupported container format version")

	// ErrTruncatedContainer indicates a container that is empty or shorter than its header declares
	ErrTruncatedContainer = errors.New("truncated container")

	// ErrUnknownAlgorithmID indicates a container references a codec id missing from the registry
	ErrUnknownAlgorithmID = errors.New("unknown algorithm id")

	// ErrCodecFailure indicates a codec returned an error or panicked
	ErrCodecFailure = errors.New("codec failure")

	// ErrTooManyAlgorithms indicates a history longer than the container can describe
	ErrTooManyAlgorithms = errors.New("too many algorithms for container header")

	// ErrSealedContainer indicates a sealed container was read without a keyset
	ErrSealedContainer = errors.New("container is sealed, a keyset is required")

	// ErrNotSealed indicates a keyset was given for a container that is not sealed
	ErrNotSealed = errors.New("container is not sealed")

	// ErrOpenFailed indicates a sealed container failed authentication
	ErrOpenFailed = errors.New("failed to open sealed container")

	// ErrVerificationFailed indicates a freshly written container did not decode to its input
	ErrVerificationFailed = errors.New("container verification failed")
)

// CodecError represents a failure of a single codec call
type CodecError struct {
	// Err is the underlying error
	Err error

	// Codec is the name of the codec that failed
	Codec string

	// CodecID is the registry id of the codec
	CodecID byte

	// Operation is the operation being performed (compress or decompress)
	Operation string

	// Round is the compression round, or the decode step, in which the failure happened
	Round int

	// Time is when the error occurred
	Time time.Time

	// DataSize is the size of the input handed to the codec
	DataSize int
}

// Error implements the error interface
func (e *CodecError) Error() string {
	return fmt.Sprintf("[%s] %s (codec=%s, id=%d, round=%d, size=%d): %v",
		e.Time.Format(time.RFC3339),
		e.Operation,
		e.Codec,
		e.CodecID,
		e.Round,
		e.DataSize,
		e.Err)
}

// Unwrap returns the underlying error
func (e *CodecError) Unwrap() error {
	return e.Err
}

// Is reports every CodecError as an ErrCodecFailure
func (e *CodecError) Is(target error) bool {
	return target == ErrCodecFailure
}

// NewCodecError creates a new CodecError
func NewCodecError(err error, codec string, codecID byte, operation string, round int, dataSize int) *CodecError {
	return &CodecError{
		Err:       err,
		Codec:     codec,
		CodecID:   codecID,
		Operation: operation,
		Round:     round,
		Time:      time.Now(),
		DataSize:  dataSize,
	}
}

// IsIOError checks if the error is an I/O error
func IsIOError(err error) bool {
	var pathErr *os.PathError
	return errors.Is(err, ErrIOFailure) || errors.As(err, &pathErr)
}

// IsTimeoutError checks if the error is a timeout error
func IsTimeoutError(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded)
}

// IsCancellationError checks if the error is a cancellation error
func IsCancellationError(err error) bool {
	return errors.Is(err, ErrCanceled) || errors.Is(err, context.Canceled)
}

// FromContext maps a context error onto ErrCanceled or ErrTimeout while keeping
// the original context error in the chain
func FromContext(err error, when string) error {
	switch {
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("%w %s: %w", ErrCanceled, when, err)
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w %s: %w", ErrTimeout, when, err)
	default:
		return fmt.Errorf("context error %s: %w", when, err)
	}
}

// IsFormatError checks if the error describes a malformed or unreadable container
func IsFormatError(err error) bool {
	return errors.Is(err, ErrUnsupportedFormatVersion) ||
		errors.Is(err, ErrTruncatedContainer) ||
		errors.Is(err, ErrUnknownAlgorithmID)
}

// ErrorCollector collects multiple errors
type ErrorCollector struct {
	errors []error
}

// NewErrorCollector creates a new ErrorCollector
func NewErrorCollector() *ErrorCollector {
	return &ErrorCollector{
		errors: make([]error, 0),
	}
}

// Add adds an error to the collector
func (c *ErrorCollector) Add(err error) {
	if err != nil {
		c.errors = append(c.errors, err)
	}
}

// HasErrors returns true if the collector has any errors
func (c *ErrorCollector) HasErrors() bool {
	return len(c.errors) > 0
}

// Len returns the number of collected errors
func (c *ErrorCollector) Len() int {
	return len(c.errors)
}

// Error implements the error interface
func (c *ErrorCollector) Error() string {
	if len(c.errors) == 0 {
		return "no errors"
	}

	if len(c.errors) == 1 {
		return c.errors[0].Error()
	}

	msg := fmt.Sprintf("%d errors occurred:\n", len(c.errors))
	for i, err := range c.errors {
		msg += fmt.Sprintf("  %d: %v\n", i+1, err)
	}
	return msg
}

// Errors returns all collected errors
func (c *ErrorCollector) Errors() []error {
	return c.errors
}

// Unwrap exposes the collected errors to errors.Is and errors.As
func (c *ErrorCollector) Unwrap() []error {
	return c.errors
}
