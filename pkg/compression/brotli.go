// Copyright (c) 2025 A Bit of Help, Inc.

package compression

import (
	"io"

	"github.com/abitofhelp/compresso/pkg/codec"
	"github.com/andybalholm/brotli"
)

// Brotli is the Brotli codec
type Brotli struct {
	level int
}

var _ codec.Codec = Brotli{}

// NewBrotli creates a Brotli codec at the best compression quality
func NewBrotli() Brotli {
	return Brotli{level: brotli.BestCompression}
}

// ID implements codec.Codec
func (Brotli) ID() byte { return BrotliID }

// Name implements codec.Codec
func (Brotli) Name() string { return "brotli" }

// Compress implements codec.Codec
func (b Brotli) Compress(data []byte) ([]byte, error) {
	return writeAll(b.Name(), data, func(w io.Writer) (io.WriteCloser, error) {
		return brotli.NewWriterLevel(w, b.level), nil
	})
}

// Decompress implements codec.Codec
func (b Brotli) Decompress(data []byte) ([]byte, error) {
	return readAll(b.Name(), data, func(r io.Reader) (io.Reader, error) {
		return brotli.NewReader(r), nil
	})
}
