// Copyright (c) 2025 A Bit of Help, Inc.

package container

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/abitofhelp/compresso/pkg/codec"
	"github.com/abitofhelp/compresso/pkg/compression"
	customErrors "github.com/abitofhelp/compresso/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// xorCodec is a reversible test double that xors every byte with its id
type xorCodec struct {
	id byte
}

func (x xorCodec) ID() byte     { return x.id }
func (x xorCodec) Name() string { return "xor" }

func (x xorCodec) Compress(data []byte) ([]byte, error) {
	out := make([]byte, len(data))
	for i, b := range data {
		out[i] = b ^ x.id
	}
	return out, nil
}

func (x xorCodec) Decompress(data []byte) ([]byte, error) {
	return x.Compress(data)
}

// appendCodec records the order in which decompress steps run
type appendCodec struct {
	id byte
}

func (a appendCodec) ID() byte     { return a.id }
func (a appendCodec) Name() string { return "append" }

func (a appendCodec) Compress(data []byte) ([]byte, error) {
	return nil, errors.New("not used")
}

func (a appendCodec) Decompress(data []byte) ([]byte, error) {
	return append(append([]byte{}, data...), a.id), nil
}

type brokenCodec struct{}

func (brokenCodec) ID() byte                             { return 42 }
func (brokenCodec) Name() string                         { return "broken" }
func (brokenCodec) Compress(data []byte) ([]byte, error) { return data, nil }
func (brokenCodec) Decompress(data []byte) ([]byte, error) {
	return nil, errors.New("corrupt stream")
}

func TestEncode_HeaderLayout(t *testing.T) {
	payload := []byte("payload")

	encoded, err := Encode([]byte{2, 1, 4}, payload)
	require.NoError(t, err)

	expected := append([]byte{1, 3, 2, 1, 4}, payload...)
	assert.Equal(t, expected, encoded)
}

func TestEncode_EmptyHistory(t *testing.T) {
	encoded, err := Encode(nil, []byte{9, 9})
	require.NoError(t, err)
	assert.Equal(t, []byte{FormatVersion, 0, 9, 9}, encoded)

	encoded, err = Encode(nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte{FormatVersion, 0}, encoded)
}

func TestEncode_TooManyAlgorithms(t *testing.T) {
	_, err := Encode(make([]byte, MaxAlgorithms), nil)
	require.NoError(t, err)

	_, err = Encode(make([]byte, MaxAlgorithms+1), nil)
	assert.ErrorIs(t, err, customErrors.ErrTooManyAlgorithms)
}

func TestParseHeader(t *testing.T) {
	header, payload, err := ParseHeader([]byte{1, 2, 7, 8, 0xaa, 0xbb})
	require.NoError(t, err)

	assert.Equal(t, FormatVersion, header.Version)
	assert.Equal(t, []byte{7, 8}, header.Algorithms)
	assert.Equal(t, 4, header.Size())
	assert.Equal(t, []byte{0xaa, 0xbb}, payload)
}

func TestParseHeader_Errors(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		expected error
	}{
		{"empty", []byte{}, customErrors.ErrTruncatedContainer},
		{"nil", nil, customErrors.ErrTruncatedContainer},
		{"version only", []byte{1}, customErrors.ErrTruncatedContainer},
		{"count exceeds bytes", []byte{1, 3, 0, 1}, customErrors.ErrTruncatedContainer},
		{"unsupported version", []byte{2, 0}, customErrors.ErrUnsupportedFormatVersion},
		{"version zero", []byte{0, 0, 1}, customErrors.ErrUnsupportedFormatVersion},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := ParseHeader(tc.data)
			assert.ErrorIs(t, err, tc.expected)
			assert.True(t, customErrors.IsFormatError(err))
		})
	}
}

func TestDecode_AppliesStoredOrder(t *testing.T) {
	registry := codec.MustNewRegistry(appendCodec{1}, appendCodec{2}, appendCodec{3})

	encoded, err := Encode([]byte{3, 1, 2}, []byte{0})
	require.NoError(t, err)

	decoded, err := Decode(context.Background(), zaptest.NewLogger(t), encoded, registry)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 3, 1, 2}, decoded)
}

func TestDecode_RoundTripWithTestCodecs(t *testing.T) {
	registry := codec.MustNewRegistry(xorCodec{0x0f}, xorCodec{0xf0})
	original := []byte("round trip through two reversible stages")

	// Adopted order: 0x0f then 0xf0, so decompression order is reversed
	stage1, _ := xorCodec{0x0f}.Compress(original)
	stage2, _ := xorCodec{0xf0}.Compress(stage1)

	encoded, err := Encode([]byte{0xf0, 0x0f}, stage2)
	require.NoError(t, err)

	decoded, err := Decode(context.Background(), nil, encoded, registry)
	require.NoError(t, err)
	assert.Equal(t, original, decoded)
}

func TestDecode_RoundTripWithBuiltinCodecs(t *testing.T) {
	registry := compression.DefaultRegistry()
	original := bytes.Repeat([]byte("builtin codec chain "), 100)

	gz, err := compression.NewGzip().Compress(original)
	require.NoError(t, err)
	br, err := compression.NewBrotli().Compress(gz)
	require.NoError(t, err)

	encoded, err := Encode([]byte{compression.BrotliID, compression.GzipID}, br)
	require.NoError(t, err)

	decoded, err := Decode(context.Background(), zaptest.NewLogger(t), encoded, registry)
	require.NoError(t, err)
	assert.Equal(t, original, decoded)
}

func TestDecode_EmptyHistoryReturnsCopy(t *testing.T) {
	encoded := []byte{FormatVersion, 0, 5, 6, 7}

	decoded, err := Decode(context.Background(), nil, encoded, codec.MustNewRegistry())
	require.NoError(t, err)
	assert.Equal(t, []byte{5, 6, 7}, decoded)

	decoded[0] = 99
	assert.Equal(t, byte(5), encoded[2])
}

func TestDecode_EmptyOriginal(t *testing.T) {
	decoded, err := Decode(context.Background(), nil, []byte{FormatVersion, 0}, codec.MustNewRegistry())
	require.NoError(t, err)
	assert.Empty(t, decoded)
}

func TestDecode_UnknownAlgorithmID(t *testing.T) {
	calls := 0
	registry := codec.MustNewRegistry(countingCodec{id: 1, calls: &calls})

	// The known codec comes first; it must not run because id 9 is unknown
	encoded, err := Encode([]byte{1, 9}, []byte("payload"))
	require.NoError(t, err)

	decoded, err := Decode(context.Background(), zaptest.NewLogger(t), encoded, registry)
	assert.ErrorIs(t, err, customErrors.ErrUnknownAlgorithmID)
	assert.Nil(t, decoded)
	assert.Equal(t, 0, calls)
}

func TestDecode_CodecFailureIsFatal(t *testing.T) {
	registry := codec.MustNewRegistry(xorCodec{1}, brokenCodec{})

	encoded, err := Encode([]byte{1, 42, 1}, []byte("payload"))
	require.NoError(t, err)

	decoded, err := Decode(context.Background(), zaptest.NewLogger(t), encoded, registry)
	require.Error(t, err)
	assert.Nil(t, decoded)
	assert.ErrorIs(t, err, customErrors.ErrCodecFailure)

	var codecErr *customErrors.CodecError
	require.True(t, errors.As(err, &codecErr))
	assert.Equal(t, "broken", codecErr.Codec)
	assert.Equal(t, 2, codecErr.Round)
	assert.Equal(t, "decompress", codecErr.Operation)
}

func TestDecode_FormatErrors(t *testing.T) {
	registry := compression.DefaultRegistry()

	_, err := Decode(context.Background(), nil, nil, registry)
	assert.ErrorIs(t, err, customErrors.ErrTruncatedContainer)

	_, err = Decode(context.Background(), nil, []byte{7, 0}, registry)
	assert.ErrorIs(t, err, customErrors.ErrUnsupportedFormatVersion)

	_, err = Decode(context.Background(), nil, []byte{1, 5, 0}, registry)
	assert.ErrorIs(t, err, customErrors.ErrTruncatedContainer)
}

func TestDecode_CanceledContext(t *testing.T) {
	registry := codec.MustNewRegistry(xorCodec{1})
	encoded, err := Encode([]byte{1}, []byte("payload"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = Decode(ctx, nil, encoded, registry)
	assert.True(t, customErrors.IsCancellationError(err))
	assert.False(t, errors.Is(err, customErrors.ErrCodecFailure))
}

type countingCodec struct {
	id    byte
	calls *int
}

func (c countingCodec) ID() byte     { return c.id }
func (c countingCodec) Name() string { return "counting" }

func (c countingCodec) Compress(data []byte) ([]byte, error) {
	return data, nil
}

func (c countingCodec) Decompress(data []byte) ([]byte, error) {
	*c.calls++
	return data, nil
}

func TestDecode_NilRegistry(t *testing.T) {
	encoded, err := Encode([]byte{1}, []byte("payload"))
	require.NoError(t, err)

	decoded, err := Decode(context.Background(), nil, encoded, nil)
	assert.Error(t, err)
	assert.Nil(t, decoded)
}
