// Copyright (c) 2025 A Bit of Help, Inc.

// Package writer publishes a finished container or decoded file.
//
// Output goes to a temporary file in the destination directory and is renamed
// into place only after every byte is written and synced, so a failed or
// canceled run never leaves a partial file at the destination.
package writer

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	customErrors "github.com/abitofhelp/compresso/pkg/errors"
	"go.uber.org/zap"
)

// DefaultChunkSize is the size of each write to the output (32KB)
const DefaultChunkSize = 32 * 1024

// OutputMode is the permission of files created by WriteFileAtomic
const OutputMode os.FileMode = 0o644

// Write copies data to w in chunks of chunkSize, checking ctx between chunks.
// Every chunk is also written to hasher when it is non-nil.
func Write(ctx context.Context, logger *zap.Logger, w io.Writer, data []byte, hasher io.Writer, chunkSize int) (int, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	written := 0
	for written < len(data) {
		if err := ctx.Err(); err != nil {
			logger.Debug("Writer stopped by context", zap.Error(err), zap.Int("bytes_written", written))
			return written, customErrors.FromContext(err, "while writing output")
		}

		end := min(written+chunkSize, len(data))
		chunk := data[written:end]

		n, err := w.Write(chunk)
		if hasher != nil {
			hasher.Write(chunk[:n])
		}
		written += n
		if err != nil {
			ioErr := fmt.Errorf("%w: write_data: %w", customErrors.ErrIOFailure, err)
			logger.Error("Write error", zap.Error(ioErr), zap.Int("bytes_written", written))
			return written, ioErr
		}
	}

	return written, nil
}

// WriteFileAtomic writes data to path through a temporary sibling file and
// renames it into place on success
func WriteFileAtomic(ctx context.Context, logger *zap.Logger, path string, data []byte, hasher io.Writer) (int, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	dir, base := filepath.Split(path)
	if dir == "" {
		dir = "."
	}

	tmp, err := os.CreateTemp(dir, "."+base+".tmp-*")
	if err != nil {
		return 0, fmt.Errorf("%w: create_output_file %s: %w", customErrors.ErrIOFailure, path, err)
	}
	tmpName := tmp.Name()

	committed := false
	defer func() {
		if committed {
			return
		}
		tmp.Close()
		if err := os.Remove(tmpName); err != nil && !os.IsNotExist(err) {
			logger.Warn("Failed to remove temporary output file", zap.Error(err), zap.String("path", tmpName))
		}
	}()

	written, err := Write(ctx, logger.With(zap.String("path", path)), tmp, data, hasher, DefaultChunkSize)
	if err != nil {
		return written, err
	}

	if err := tmp.Chmod(OutputMode); err != nil {
		return written, fmt.Errorf("%w: chmod_output_file %s: %w", customErrors.ErrIOFailure, path, err)
	}
	if err := tmp.Sync(); err != nil {
		return written, fmt.Errorf("%w: sync_output_file %s: %w", customErrors.ErrIOFailure, path, err)
	}
	if err := tmp.Close(); err != nil {
		return written, fmt.Errorf("%w: close_output_file %s: %w", customErrors.ErrIOFailure, path, err)
	}

	// Last chance to abandon the output before it becomes visible
	if err := ctx.Err(); err != nil {
		return written, customErrors.FromContext(err, "before publishing output")
	}

	if err := os.Rename(tmpName, path); err != nil {
		return written, fmt.Errorf("%w: rename_output_file %s: %w", customErrors.ErrIOFailure, path, err)
	}
	committed = true

	logger.Debug("Output written",
		zap.String("path", path),
		zap.Int("bytes_written", written))
	return written, nil
}
