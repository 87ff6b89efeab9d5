// Copyright (c) 2025 A Bit of Help, Inc.

package compression

import (
	"io"

	"github.com/abitofhelp/compresso/pkg/codec"
	"github.com/ulikunitz/xz"
)

// Xz is the LZMA2 codec using the .xz container format
type Xz struct{}

var _ codec.Codec = Xz{}

// NewXz creates an xz codec
func NewXz() Xz {
	return Xz{}
}

// ID implements codec.Codec
func (Xz) ID() byte { return XzID }

// Name implements codec.Codec
func (Xz) Name() string { return "xz" }

// Compress implements codec.Codec
func (x Xz) Compress(data []byte) ([]byte, error) {
	return writeAll(x.Name(), data, func(w io.Writer) (io.WriteCloser, error) {
		return xz.NewWriter(w)
	})
}

// Decompress implements codec.Codec
func (x Xz) Decompress(data []byte) ([]byte, error) {
	return readAll(x.Name(), data, func(r io.Reader) (io.Reader, error) {
		return xz.NewReader(r)
	})
}
