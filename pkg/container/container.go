// Copyright (c) 2025 A Bit of Help, Inc.

// Package container encodes and decodes the self-describing compressed format.
//
// Layout:
//
//	byte 0       format version (currently 1)
//	byte 1       N, the number of codec ids that follow (0..255)
//	bytes 2..2+N codec ids in decompression-apply order
//	remaining    the compressed payload
//
// Decoding applies each listed codec's Decompress to the payload, left to right.
package container

import (
	"context"
	"fmt"

	"github.com/abitofhelp/compresso/pkg/codec"
	"github.com/abitofhelp/compresso/pkg/dataprocessor"
	customErrors "github.com/abitofhelp/compresso/pkg/errors"
	"go.uber.org/zap"
)

const (
	// FormatVersion is the only container version this package reads and writes
	FormatVersion byte = 1

	// MaxAlgorithms is the most codec ids a header can hold
	MaxAlgorithms = 255

	headerPrefixSize = 2
)

// Header is the parsed fixed part of a container
type Header struct {
	Version    byte
	Algorithms []byte
}

// Size returns the encoded size of the header in bytes
func (h Header) Size() int {
	return headerPrefixSize + len(h.Algorithms)
}

// Encode writes history, which must already be in decompression-apply order,
// followed by payload
func Encode(history []byte, payload []byte) ([]byte, error) {
	if len(history) > MaxAlgorithms {
		return nil, fmt.Errorf("%w: %d ids, limit %d", customErrors.ErrTooManyAlgorithms, len(history), MaxAlgorithms)
	}

	out := make([]byte, 0, headerPrefixSize+len(history)+len(payload))
	out = append(out, FormatVersion, byte(len(history)))
	out = append(out, history...)
	out = append(out, payload...)
	return out, nil
}

// ParseHeader splits data into its header and payload without decompressing.
// The returned slices alias data.
func ParseHeader(data []byte) (Header, []byte, error) {
	if len(data) == 0 {
		return Header{}, nil, fmt.Errorf("%w: empty input", customErrors.ErrTruncatedContainer)
	}

	if data[0] != FormatVersion {
		return Header{}, nil, fmt.Errorf("%w: got %d, expected %d",
			customErrors.ErrUnsupportedFormatVersion, data[0], FormatVersion)
	}

	if len(data) < headerPrefixSize {
		return Header{}, nil, fmt.Errorf("%w: missing algorithm count", customErrors.ErrTruncatedContainer)
	}

	count := int(data[1])
	if len(data) < headerPrefixSize+count {
		return Header{}, nil, fmt.Errorf("%w: header declares %d algorithms, %d bytes available",
			customErrors.ErrTruncatedContainer, count, len(data)-headerPrefixSize)
	}

	h := Header{
		Version:    data[0],
		Algorithms: data[headerPrefixSize : headerPrefixSize+count],
	}
	return h, data[headerPrefixSize+count:], nil
}

// Decode reconstructs the original buffer from a container.
//
// Every id is resolved against registry before any codec runs, so an unknown
// id fails without doing work. Any decompression failure aborts the decode;
// no partial output is returned on error.
func Decode(ctx context.Context, logger *zap.Logger, data []byte, registry *codec.Registry) ([]byte, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if registry == nil {
		return nil, fmt.Errorf("registry cannot be nil")
	}

	header, payload, err := ParseHeader(data)
	if err != nil {
		return nil, err
	}

	steps := make([]codec.Codec, len(header.Algorithms))
	for i, id := range header.Algorithms {
		c, ok := registry.Lookup(id)
		if !ok {
			return nil, fmt.Errorf("%w: %d at step %d", customErrors.ErrUnknownAlgorithmID, id, i+1)
		}
		steps[i] = c
	}

	logger.Debug("Decoding container",
		zap.Int("algorithms", len(steps)),
		zap.Int("payload_size", len(payload)))

	current := payload
	for i, c := range steps {
		out, err := dataprocessor.ProcessWithContext(ctx, c.Decompress, current)
		if err != nil {
			if customErrors.IsCancellationError(err) || customErrors.IsTimeoutError(err) {
				return nil, err
			}
			return nil, customErrors.NewCodecError(err, c.Name(), c.ID(), "decompress", i+1, len(current))
		}

		logger.Debug("Decompressed step",
			zap.Int("step", i+1),
			zap.Int("steps", len(steps)),
			zap.String("codec", c.Name()),
			zap.Int("input_size", len(current)),
			zap.Int("output_size", len(out)))
		current = out
	}

	if len(steps) == 0 {
		// Copy so the result never aliases the caller's container
		current = append([]byte{}, payload...)
	}

	return current, nil
}
