// Copyright (c) 2025 A Bit of Help, Inc.

// Package compression provides the built-in codec adapters.
//
// Each adapter wraps one third-party compression library behind the codec.Codec
// contract. The ids of the first five adapters match the containers produced by
// earlier releases of the tool, so they must never be renumbered.
//
// The corresponding core package is pkg/codec, which defines the contract and
// the registry; pkg/race and pkg/container consume the registry built here.
package compression

import (
	"bytes"
	"fmt"
	"io"

	"github.com/abitofhelp/compresso/pkg/codec"
)

// Container ids of the built-in codecs
const (
	ZstdID   byte = 0
	GzipID   byte = 1
	BrotliID byte = 2
	Bzip2ID  byte = 3
	XzID     byte = 4
	LZ4ID    byte = 5
	S2ID     byte = 6
)

var defaultRegistry = codec.MustNewRegistry(
	NewGzip(),
	NewBzip2(),
	NewXz(),
	NewBrotli(),
	NewZstd(),
	NewLZ4(),
	NewS2(),
)

// DefaultRegistry returns the process-wide registry of built-in codecs
func DefaultRegistry() *codec.Registry {
	return defaultRegistry
}

// writeAll streams data through a compressing writer and returns the result
func writeAll(name string, data []byte, newWriter func(io.Writer) (io.WriteCloser, error)) ([]byte, error) {
	var buf bytes.Buffer
	w, err := newWriter(&buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s writer: %w", name, err)
	}

	if _, err := w.Write(data); err != nil {
		w.Close()
		return nil, fmt.Errorf("failed to compress %s data: %w", name, err)
	}

	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize %s compression: %w", name, err)
	}

	return buf.Bytes(), nil
}

// readAll drains a decompressing reader built over data
func readAll(name string, data []byte, newReader func(io.Reader) (io.Reader, error)) ([]byte, error) {
	r, err := newReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create %s reader: %w", name, err)
	}
	if c, ok := r.(io.Closer); ok {
		defer c.Close()
	}

	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress %s data: %w", name, err)
	}

	return out, nil
}
