// Copyright (c) 2025 A Bit of Help, Inc.

package compression

import (
	"io"

	"github.com/abitofhelp/compresso/pkg/codec"
	"github.com/dsnet/compress/bzip2"
)

// Bzip2 is the bzip2 codec. The standard library only decodes bzip2, so both
// directions go through dsnet/compress for symmetry
type Bzip2 struct{}

var _ codec.Codec = Bzip2{}

// NewBzip2 creates a bzip2 codec at the best compression level
func NewBzip2() Bzip2 {
	return Bzip2{}
}

// ID implements codec.Codec
func (Bzip2) ID() byte { return Bzip2ID }

// Name implements codec.Codec
func (Bzip2) Name() string { return "bzip2" }

// Compress implements codec.Codec
func (b Bzip2) Compress(data []byte) ([]byte, error) {
	return writeAll(b.Name(), data, func(w io.Writer) (io.WriteCloser, error) {
		return bzip2.NewWriter(w, &bzip2.WriterConfig{Level: bzip2.BestCompression})
	})
}

// Decompress implements codec.Codec
func (b Bzip2) Decompress(data []byte) ([]byte, error) {
	return readAll(b.Name(), data, func(r io.Reader) (io.Reader, error) {
		return bzip2.NewReader(r, nil)
	})
}
