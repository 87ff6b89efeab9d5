// Copyright (c) 2025 A Bit of Help, Inc.

package compression

import (
	"fmt"

	"github.com/abitofhelp/compresso/pkg/codec"
	"github.com/klauspost/compress/s2"
)

// S2 is the S2 (Snappy extension) block codec
type S2 struct{}

var _ codec.Codec = S2{}

// NewS2 creates an S2 codec using the best block encoder
func NewS2() S2 {
	return S2{}
}

// ID implements codec.Codec
func (S2) ID() byte { return S2ID }

// Name implements codec.Codec
func (S2) Name() string { return "s2" }

// Compress implements codec.Codec
func (S2) Compress(data []byte) ([]byte, error) {
	return s2.EncodeBest(nil, data), nil
}

// Decompress implements codec.Codec
func (S2) Decompress(data []byte) ([]byte, error) {
	out, err := s2.Decode(nil, data)
	if err != nil {
		return nil, fmt.Errorf("s2 decompression failed: %w", err)
	}
	return out, nil
}
