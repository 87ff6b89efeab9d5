// Copyright (c) 2025 A Bit of Help, Inc.

// Package stats tracks what a compress or decompress run did and prints a summary
package stats

import (
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
)

// Operation names the kind of run the stats describe
type Operation string

const (
	// OperationCompress is a compress run
	OperationCompress Operation = "compress"

	// OperationDecompress is a decompress run
	OperationDecompress Operation = "decompress"
)

// Stats tracks run statistics with thread-safe counters
type Stats struct {
	Operation Operation

	// Byte counts. For a compress run PayloadBytes excludes the container header.
	InputBytes   atomic.Uint64
	OutputBytes  atomic.Uint64
	PayloadBytes atomic.Uint64

	// Session counters
	Rounds         atomic.Uint64
	CodecFailures  atomic.Uint64
	TimedOutRounds atomic.Uint64

	// xxhash64 digests for verification
	InputDigest  uint64
	OutputDigest uint64

	// Algorithms lists codec names in decompression-apply order
	Algorithms []string

	// Sealed reports whether the container was wrapped in an AEAD envelope
	Sealed bool

	ProcessingTime time.Duration
}

// NewStats creates a new Stats instance for the given operation
func NewStats(op Operation) *Stats {
	return &Stats{
		Operation:  op,
		Algorithms: make([]string, 0),
	}
}

// Digest returns the xxhash64 digest of data
func Digest(data []byte) uint64 {
	return xxhash.Sum64(data)
}

// FormatDigest renders a digest as fixed-width hex
func FormatDigest(d uint64) string {
	return fmt.Sprintf("%016x", d)
}

// UpdateInputBytes safely adds n bytes to the input byte count
func (s *Stats) UpdateInputBytes(n uint64) {
	s.InputBytes.Add(n)
}

// UpdateOutputBytes safely adds n bytes to the output byte count
func (s *Stats) UpdateOutputBytes(n uint64) {
	s.OutputBytes.Add(n)
}

// RecordRound safely records one compression round
func (s *Stats) RecordRound(failures int, timedOut bool) {
	s.Rounds.Add(1)
	if failures > 0 {
		s.CodecFailures.Add(uint64(failures))
	}
	if timedOut {
		s.TimedOutRounds.Add(1)
	}
}

// FormatDuration formats a duration in a human-readable way
func FormatDuration(d time.Duration) string {
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60
	milliseconds := int(d.Milliseconds()) % 1000

	if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds %dms", hours, minutes, seconds, milliseconds)
	} else if minutes > 0 {
		return fmt.Sprintf("%dm %ds %dms", minutes, seconds, milliseconds)
	} else if seconds > 0 {
		return fmt.Sprintf("%ds %dms", seconds, milliseconds)
	}
	return fmt.Sprintf("%dms", milliseconds)
}

// CalculateSavings compares the original size with the compressed payload.
// It returns the bytes saved, the input:payload ratio and the percent reduction.
// For a decompress run the roles are swapped so the figures describe the same container.
func (s *Stats) CalculateSavings() (int64, float64, float64) {
	original, compressed := s.InputBytes.Load(), s.PayloadBytes.Load()
	if s.Operation == OperationDecompress {
		original = s.OutputBytes.Load()
	}

	// Avoid division by zero
	if original == 0 || compressed == 0 {
		return 0, 0, 0
	}

	saved := int64(original) - int64(compressed)
	ratio := float64(original) / float64(compressed)
	percent := (1 - float64(compressed)/float64(original)) * 100
	return saved, ratio, percent
}

// DisplaySummary writes a human-readable summary to out and logs the same figures
func (s *Stats) DisplaySummary(out io.Writer, logger *zap.Logger, inputPath, outputPath string) {
	if logger == nil {
		logger = zap.NewNop()
	}

	timeFormatted := FormatDuration(s.ProcessingTime)
	saved, ratio, percent := s.CalculateSavings()

	inputBytes := s.InputBytes.Load()
	outputBytes := s.OutputBytes.Load()
	payloadBytes := s.PayloadBytes.Load()

	title := "Compression Summary"
	if s.Operation == OperationDecompress {
		title = "Decompression Summary"
	}

	fmt.Fprintln(out, "\n==================")
	fmt.Fprintln(out, title)
	fmt.Fprintln(out, "==================")
	fmt.Fprintf(out, "Input file: %s\n", inputPath)
	fmt.Fprintf(out, "Output file: %s\n", outputPath)
	fmt.Fprintln(out, "------------------")
	fmt.Fprintf(out, "Total input bytes: %s (%d bytes)\n", humanize.Bytes(inputBytes), inputBytes)
	fmt.Fprintf(out, "Input xxhash64: %s\n", FormatDigest(s.InputDigest))
	fmt.Fprintf(out, "Total output bytes: %s (%d bytes)\n", humanize.Bytes(outputBytes), outputBytes)
	fmt.Fprintf(out, "Output xxhash64: %s\n", FormatDigest(s.OutputDigest))
	fmt.Fprintln(out, "------------------")

	if s.Operation == OperationCompress {
		fmt.Fprintf(out, "Compression rounds: %d\n", s.Rounds.Load())
		fmt.Fprintf(out, "Codec failures: %d\n", s.CodecFailures.Load())
		fmt.Fprintf(out, "Rounds cut short by time budget: %d\n", s.TimedOutRounds.Load())
	}

	if len(s.Algorithms) == 0 {
		fmt.Fprintln(out, "No compression was effective.")
	} else {
		fmt.Fprintf(out, "Algorithms (%d): %s\n", len(s.Algorithms), strings.Join(s.Algorithms, " -> "))
		fmt.Fprintf(out, "Payload bytes: %s (%d bytes)\n", humanize.Bytes(payloadBytes), payloadBytes)
		fmt.Fprintf(out, "Saved %s bytes, ratio %.2f:1 (%.2f%% reduction)\n", humanize.Comma(saved), ratio, percent)
	}
	if s.Sealed {
		fmt.Fprintln(out, "Container sealed with AEAD keyset")
	}

	fmt.Fprintln(out, "------------------")
	fmt.Fprintf(out, "Total processing time: %s (%v)\n", timeFormatted, s.ProcessingTime)
	fmt.Fprintln(out, "==================")

	logger.Debug("Processing completed successfully",
		zap.String("operation", string(s.Operation)),
		zap.String("input_file", inputPath),
		zap.String("output_file", outputPath),
		zap.Uint64("total_input_bytes", inputBytes),
		zap.String("input_xxhash64", FormatDigest(s.InputDigest)),
		zap.Uint64("total_output_bytes", outputBytes),
		zap.String("output_xxhash64", FormatDigest(s.OutputDigest)),
		zap.Uint64("payload_bytes", payloadBytes),
		zap.Strings("algorithms", s.Algorithms),
		zap.Uint64("rounds", s.Rounds.Load()),
		zap.Uint64("codec_failures", s.CodecFailures.Load()),
		zap.Uint64("timed_out_rounds", s.TimedOutRounds.Load()),
		zap.Int64("saved_bytes", saved),
		zap.Float64("compression_ratio", ratio),
		zap.Float64("reduction_percent", percent),
		zap.Bool("sealed", s.Sealed),
		zap.Duration("processing_time", s.ProcessingTime),
		zap.String("formatted_processing_time", timeFormatted))
}
