// Copyright (c) 2025 A Bit of Help, Inc.

package compression

import (
	"fmt"
	"sync"

	"github.com/abitofhelp/compresso/pkg/codec"
	"github.com/klauspost/compress/zstd"
)

// zstdEncoderPool pools encoders; EncodeAll is stateless so a pooled encoder is safe to share
var zstdEncoderPool = sync.Pool{
	New: func() any {
		encoder, err := zstd.NewWriter(nil,
			zstd.WithEncoderLevel(zstd.SpeedBestCompression),
			zstd.WithEncoderConcurrency(1),
		)
		if err != nil {
			panic(fmt.Sprintf("failed to create zstd encoder for pool: %v", err))
		}
		return encoder
	},
}

var zstdDecoderPool = sync.Pool{
	New: func() any {
		decoder, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
		if err != nil {
			panic(fmt.Sprintf("failed to create zstd decoder for pool: %v", err))
		}
		return decoder
	},
}

// Zstd is the Zstandard codec
type Zstd struct{}

var _ codec.Codec = Zstd{}

// NewZstd creates a Zstandard codec at the best compression level
func NewZstd() Zstd {
	return Zstd{}
}

// ID implements codec.Codec
func (Zstd) ID() byte { return ZstdID }

// Name implements codec.Codec
func (Zstd) Name() string { return "zstd" }

// Compress implements codec.Codec
func (Zstd) Compress(data []byte) ([]byte, error) {
	encoder := zstdEncoderPool.Get().(*zstd.Encoder)
	defer zstdEncoderPool.Put(encoder)

	return encoder.EncodeAll(data, nil), nil
}

// Decompress implements codec.Codec
func (Zstd) Decompress(data []byte) ([]byte, error) {
	decoder := zstdDecoderPool.Get().(*zstd.Decoder)
	defer zstdDecoderPool.Put(decoder)

	out, err := decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decompression failed: %w", err)
	}
	return out, nil
}
