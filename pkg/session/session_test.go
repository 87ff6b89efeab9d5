// Copyright (c) 2025 A Bit of Help, Inc.

package session

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/abitofhelp/compresso/pkg/codec"
	"github.com/abitofhelp/compresso/pkg/compression"
	"github.com/abitofhelp/compresso/pkg/config"
	"github.com/abitofhelp/compresso/pkg/container"
	customErrors "github.com/abitofhelp/compresso/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

// funcCodec is a codec test double built from plain functions
type funcCodec struct {
	id       byte
	name     string
	compress func([]byte) ([]byte, error)
}

func (f funcCodec) ID() byte     { return f.id }
func (f funcCodec) Name() string { return f.name }

func (f funcCodec) Compress(data []byte) ([]byte, error) {
	return f.compress(data)
}

func (f funcCodec) Decompress(data []byte) ([]byte, error) {
	return nil, errors.New("not reversible")
}

func grows(id byte) funcCodec {
	return funcCodec{id: id, name: "grows", compress: func(data []byte) ([]byte, error) {
		return append(append([]byte{}, data...), 0, 0), nil
	}}
}

// halvesWhen halves the buffer when its length satisfies cond and grows it otherwise
func halvesWhen(id byte, name string, cond func(int) bool) funcCodec {
	return funcCodec{id: id, name: name, compress: func(data []byte) ([]byte, error) {
		if cond(len(data)) {
			return append([]byte{}, data[:len(data)/2]...), nil
		}
		return append(append([]byte{}, data...), 0), nil
	}}
}

func testOptions() *config.Options {
	opts := config.DefaultOptions()
	opts.WorkerCount = 4
	opts.GracePeriod = 50 * time.Millisecond
	return opts
}

func TestRun_RoundTripWithBuiltinCodecs(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping test in short mode")
	}

	registry := compression.DefaultRegistry()
	inputs := map[string][]byte{
		"empty":      {},
		"single":     []byte("a"),
		"text":       []byte("This is test data for the compression session. It will be raced through all codecs."),
		"repetitive": bytes.Repeat([]byte("test data for compression "), 400),
	}

	for name, input := range inputs {
		t.Run(name, func(t *testing.T) {
			result, err := Run(context.Background(), zaptest.NewLogger(t), input, registry, testOptions())
			require.NoError(t, err)

			encoded, err := container.Encode(result.History, result.Payload)
			require.NoError(t, err)

			decoded, err := container.Decode(context.Background(), zaptest.NewLogger(t), encoded, registry)
			require.NoError(t, err)
			assert.True(t, bytes.Equal(input, decoded), "round trip mismatch")
			assert.Equal(t, len(input), result.InputSize)
		})
	}
}

func TestRun_RepetitiveInputIsCompressed(t *testing.T) {
	input := bytes.Repeat([]byte("large test data for compression "), 2000)

	result, err := Run(context.Background(), zaptest.NewLogger(t), input, compression.DefaultRegistry(), testOptions())
	require.NoError(t, err)

	assert.NotEmpty(t, result.History)
	assert.Less(t, len(result.Payload), len(input))
}

func TestRun_MonotonicImprovement(t *testing.T) {
	input := bytes.Repeat([]byte("monotonic "), 1000)

	result, err := Run(context.Background(), zaptest.NewLogger(t), input, compression.DefaultRegistry(), testOptions())
	require.NoError(t, err)

	previous := len(input)
	for _, rs := range result.Rounds {
		if !rs.Adopted {
			continue
		}
		assert.Equal(t, previous, rs.InputSize)
		assert.Less(t, rs.OutputSize, rs.InputSize)
		previous = rs.OutputSize
	}
	assert.Equal(t, previous, len(result.Payload))
}

func TestRun_MaxRoundsBoundsHistory(t *testing.T) {
	registry := codec.MustNewRegistry(halvesWhen(1, "halves", func(n int) bool { return n > 1 }))

	for _, maxRounds := range []int{0, 1, 3} {
		opts := testOptions()
		opts.MaxRounds = maxRounds

		result, err := Run(context.Background(), zap.NewNop(), make([]byte, 1024), registry, opts)
		require.NoError(t, err)

		assert.Len(t, result.History, maxRounds)
		assert.Len(t, result.Rounds, maxRounds)
		assert.Equal(t, "max rounds reached", result.StopReason(opts))
	}
}

func TestRun_IdempotentOnMinimalBuffer(t *testing.T) {
	registry := codec.MustNewRegistry(grows(1), grows(2))
	input := []byte("already minimal")

	result, err := Run(context.Background(), zaptest.NewLogger(t), input, registry, testOptions())
	require.NoError(t, err)

	assert.Empty(t, result.History)
	assert.Equal(t, input, result.Payload)
	require.Len(t, result.Rounds, 1)
	assert.False(t, result.Rounds[0].Adopted)
	assert.Equal(t, "no further improvement", result.StopReason(testOptions()))
}

func TestRun_HistoryStoredInDecompressionOrder(t *testing.T) {
	big := halvesWhen(10, "big", func(n int) bool { return n >= 64 })
	small := halvesWhen(20, "small", func(n int) bool { return n < 64 && n >= 16 })
	registry := codec.MustNewRegistry(big, small)

	// 100 -> 50 (big) -> 25 (small) -> 12 (small) -> stop
	result, err := Run(context.Background(), zaptest.NewLogger(t), make([]byte, 100), registry, testOptions())
	require.NoError(t, err)

	assert.Equal(t, []byte{20, 20, 10}, result.History)
	assert.Len(t, result.Payload, 12)
	require.Len(t, result.Rounds, 4)
	assert.Equal(t, "big", result.Rounds[0].Winner)
	assert.Equal(t, byte(20), result.Rounds[1].WinnerID)
	assert.False(t, result.Rounds[3].Adopted)
}

func TestRun_HardCapAtContainerCapacity(t *testing.T) {
	shrinksByOne := funcCodec{id: 1, name: "shrinks", compress: func(data []byte) ([]byte, error) {
		if len(data) == 0 {
			return []byte{0}, nil
		}
		return append([]byte{}, data[1:]...), nil
	}}
	registry := codec.MustNewRegistry(shrinksByOne)

	opts := testOptions()
	opts.WorkerCount = 1
	result, err := Run(context.Background(), zap.NewNop(), make([]byte, 1000), registry, opts)
	require.NoError(t, err)

	assert.Len(t, result.History, config.MaxHistory)
	assert.Len(t, result.Payload, 1000-config.MaxHistory)
	assert.Equal(t, "history capacity reached", result.StopReason(opts))

	_, err = container.Encode(result.History, result.Payload)
	assert.NoError(t, err)
}

func TestRun_ZeroTimeBudget(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	slow := funcCodec{id: 3, name: "slow", compress: func(data []byte) ([]byte, error) {
		<-release
		return []byte{}, nil
	}}
	registry := codec.MustNewRegistry(slow, compression.NewGzip())

	opts := testOptions()
	opts.TimeBudget = 0
	input := bytes.Repeat([]byte("zero budget "), 100)

	result, err := Run(context.Background(), zap.NewNop(), input, registry, opts)
	require.NoError(t, err)

	assert.Empty(t, result.History)
	assert.Equal(t, input, result.Payload)
	assert.Equal(t, 1, result.TimedOutRounds())

	encoded, err := container.Encode(result.History, result.Payload)
	require.NoError(t, err)
	decoded, err := container.Decode(context.Background(), zap.NewNop(), encoded, registry)
	require.NoError(t, err)
	assert.Equal(t, input, decoded)
}

func TestRun_CodecFailuresDoNotAbortSession(t *testing.T) {
	failing := funcCodec{id: 9, name: "failing", compress: func([]byte) ([]byte, error) {
		return nil, errors.New("boom")
	}}
	registry := codec.MustNewRegistry(failing, compression.NewZstd())
	input := bytes.Repeat([]byte("failure isolation "), 200)

	result, err := Run(context.Background(), zaptest.NewLogger(t), input, registry, testOptions())
	require.NoError(t, err)

	assert.NotEmpty(t, result.History)
	assert.Equal(t, byte(compression.ZstdID), result.History[len(result.History)-1])
	assert.Equal(t, len(result.Rounds), result.CodecFailures())
}

func TestRun_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Run(ctx, zaptest.NewLogger(t), []byte("data"), codec.MustNewRegistry(grows(1)), testOptions())
	require.Error(t, err)
	assert.True(t, customErrors.IsCancellationError(err))
}

func TestRun_InvalidArguments(t *testing.T) {
	_, err := Run(context.Background(), nil, []byte("data"), nil, nil)
	assert.Error(t, err)

	opts := testOptions()
	opts.WorkerCount = -2
	_, err = Run(context.Background(), nil, []byte("data"), codec.MustNewRegistry(grows(1)), opts)
	assert.Error(t, err)
}

func TestRun_InputNotModified(t *testing.T) {
	input := bytes.Repeat([]byte("do not touch "), 50)
	original := append([]byte(nil), input...)

	_, err := Run(context.Background(), zap.NewNop(), input, compression.DefaultRegistry(), testOptions())
	require.NoError(t, err)
	assert.Equal(t, original, input)
}

func TestRun_AbandonedCallDoesNotEndSession(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	shrinksByOne := funcCodec{id: 1, name: "shrink", compress: func(data []byte) ([]byte, error) {
		return append([]byte{}, data[1:]...), nil
	}}
	slow := funcCodec{id: 2, name: "slow", compress: func(data []byte) ([]byte, error) {
		<-release
		return nil, errors.New("released")
	}}
	registry := codec.MustNewRegistry(shrinksByOne, slow)

	opts := testOptions()
	opts.WorkerCount = 1
	opts.TimeBudget = 100 * time.Millisecond
	opts.GracePeriod = 10 * time.Millisecond
	opts.MaxRounds = 5

	result, err := Run(context.Background(), zap.NewNop(), make([]byte, 64), registry, opts)
	require.NoError(t, err)

	assert.Len(t, result.History, 5)
	assert.Len(t, result.Payload, 59)
	for _, rs := range result.Rounds {
		assert.True(t, rs.Adopted, "round %d", rs.Round)
	}
}
