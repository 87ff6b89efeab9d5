// Copyright (c) 2025 A Bit of Help, Inc.

package compression

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/abitofhelp/compresso/pkg/codec"
	"github.com/pierrec/lz4/v4"
)

// LZ4 block layout: one mode byte, the uvarint length of the original data,
// then either an lz4 block or the original bytes stored verbatim
const (
	lz4ModeRaw   byte = 0
	lz4ModeBlock byte = 1

	// lz4MaxRatio bounds the declared length of a block so corrupt input
	// cannot force a huge allocation
	lz4MaxRatio = 255
)

var errLZ4Corrupt = errors.New("corrupt lz4 block")

var lz4CompressorPool = sync.Pool{
	New: func() any {
		return &lz4.CompressorHC{Level: lz4.Level9}
	},
}

// LZ4 is the LZ4 high compression block codec
type LZ4 struct{}

var _ codec.Codec = LZ4{}

// NewLZ4 creates an LZ4 codec
func NewLZ4() LZ4 {
	return LZ4{}
}

// ID implements codec.Codec
func (LZ4) ID() byte { return LZ4ID }

// Name implements codec.Codec
func (LZ4) Name() string { return "lz4" }

// Compress implements codec.Codec
//
// The block may use at most len(data) bytes. Input that does not fit is stored
// raw, so the result is larger than the input and never wins a round
func (LZ4) Compress(data []byte) ([]byte, error) {
	header := make([]byte, 1+binary.MaxVarintLen64)
	n := binary.PutUvarint(header[1:], uint64(len(data)))
	header = header[:1+n]

	if len(data) == 0 {
		header[0] = lz4ModeRaw
		return header, nil
	}

	dst := make([]byte, len(header)+len(data))
	copy(dst, header)

	lc := lz4CompressorPool.Get().(*lz4.CompressorHC)
	defer lz4CompressorPool.Put(lc)

	written, err := lc.CompressBlock(data, dst[len(header):])
	if errors.Is(err, lz4.ErrInvalidSourceShortBuffer) {
		written, err = 0, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lz4 compression failed: %w", err)
	}

	if written == 0 {
		dst[0] = lz4ModeRaw
		copy(dst[len(header):], data)
		return dst, nil
	}

	dst[0] = lz4ModeBlock
	return dst[:len(header)+written], nil
}

// Decompress implements codec.Codec
func (LZ4) Decompress(data []byte) ([]byte, error) {
	if len(data) < 2 {
		return nil, errLZ4Corrupt
	}

	size, n := binary.Uvarint(data[1:])
	if n <= 0 {
		return nil, fmt.Errorf("%w: bad length prefix", errLZ4Corrupt)
	}
	body := data[1+n:]

	switch data[0] {
	case lz4ModeRaw:
		if uint64(len(body)) != size {
			return nil, fmt.Errorf("%w: raw length mismatch", errLZ4Corrupt)
		}
		out := make([]byte, len(body))
		copy(out, body)
		return out, nil
	case lz4ModeBlock:
		if size > uint64(len(body))*lz4MaxRatio {
			return nil, fmt.Errorf("%w: declared length %d too large", errLZ4Corrupt, size)
		}
		out := make([]byte, size)
		written, err := lz4.UncompressBlock(body, out)
		if err != nil {
			return nil, fmt.Errorf("lz4 decompression failed: %w", err)
		}
		if uint64(written) != size {
			return nil, fmt.Errorf("%w: got %d bytes, want %d", errLZ4Corrupt, written, size)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: unknown mode %d", errLZ4Corrupt, data[0])
	}
}
