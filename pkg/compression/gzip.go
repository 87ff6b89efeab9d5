// Copyright (c) 2025 A Bit of Help, Inc.

package compression

import (
	"io"

	"github.com/abitofhelp/compresso/pkg/codec"
	"github.com/klauspost/compress/gzip"
)

// Gzip is the gzip codec
type Gzip struct{}

var _ codec.Codec = Gzip{}

// NewGzip creates a gzip codec at the best compression level
func NewGzip() Gzip {
	return Gzip{}
}

// ID implements codec.Codec
func (Gzip) ID() byte { return GzipID }

// Name implements codec.Codec
func (Gzip) Name() string { return "gzip" }

// Compress implements codec.Codec
func (g Gzip) Compress(data []byte) ([]byte, error) {
	return writeAll(g.Name(), data, func(w io.Writer) (io.WriteCloser, error) {
		return gzip.NewWriterLevel(w, gzip.BestCompression)
	})
}

// Decompress implements codec.Codec
func (g Gzip) Decompress(data []byte) ([]byte, error) {
	return readAll(g.Name(), data, func(r io.Reader) (io.Reader, error) {
		return gzip.NewReader(r)
	})
}
