// Copyright (c) 2025 A Bit of Help, Inc.

// Package reader loads an input file into memory for a compression session.
package reader

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	customErrors "github.com/abitofhelp/compresso/pkg/errors"
	"go.uber.org/zap"
)

// DefaultChunkSize is the size of each read from the input (32KB)
const DefaultChunkSize = 32 * 1024

// Read drains r in chunks of chunkSize, checking ctx between chunks.
// Every chunk is also written to hasher when it is non-nil.
func Read(ctx context.Context, logger *zap.Logger, r io.Reader, hasher io.Writer, chunkSize int, sizeHint int) ([]byte, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	var out bytes.Buffer
	if sizeHint > 0 {
		out.Grow(sizeHint)
	}

	buffer := make([]byte, chunkSize)
	chunks := 0
	for {
		if err := ctx.Err(); err != nil {
			logger.Debug("Reader stopped by context", zap.Error(err), zap.Int("chunks", chunks))
			return nil, customErrors.FromContext(err, "while reading input")
		}

		n, readErr := r.Read(buffer)
		if n > 0 {
			chunk := buffer[:n]
			out.Write(chunk)
			if hasher != nil {
				hasher.Write(chunk)
			}
			chunks++
		}

		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			ioErr := fmt.Errorf("%w: read_data: %w", customErrors.ErrIOFailure, readErr)
			logger.Error("Read error", zap.Error(ioErr), zap.Int("bytes_read", out.Len()))
			return nil, ioErr
		}
	}

	logger.Debug("End of input reached",
		zap.Int("chunks", chunks),
		zap.Int("bytes_read", out.Len()))
	return out.Bytes(), nil
}

// ReadFile reads the file at path with Read
func ReadFile(ctx context.Context, logger *zap.Logger, path string, hasher io.Writer) ([]byte, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open_input_file %s: %w", customErrors.ErrIOFailure, path, err)
	}
	defer func() {
		if err := f.Close(); err != nil {
			logger.Warn("Failed to close input file", zap.Error(err), zap.String("path", path))
		}
	}()

	sizeHint := 0
	if info, err := f.Stat(); err == nil {
		if info.IsDir() {
			return nil, fmt.Errorf("%w: %s is a directory", customErrors.ErrIOFailure, path)
		}
		sizeHint = int(info.Size())
	}

	data, err := Read(ctx, logger.With(zap.String("path", path)), f, hasher, DefaultChunkSize, sizeHint)
	if err != nil {
		return nil, err
	}
	return data, nil
}
