// Copyright (c) 2025 A Bit of Help, Inc.

// Package pipeline runs the file-level commands.
//
// Each command is a short sequence of stages over one in-memory buffer:
//
//  1. reader loads and hashes the input file.
//  2. session races the codecs round after round (compress), or container
//     reverses the stored history (decompress).
//  3. encryption optionally seals or opens the container.
//  4. writer publishes the result atomically and hashes it.
//
// Nothing is written to the destination unless every stage succeeds.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/abitofhelp/compresso/pkg/codec"
	"github.com/abitofhelp/compresso/pkg/config"
	"github.com/abitofhelp/compresso/pkg/container"
	"github.com/abitofhelp/compresso/pkg/encryption"
	customErrors "github.com/abitofhelp/compresso/pkg/errors"
	"github.com/abitofhelp/compresso/pkg/pipeline/reader"
	"github.com/abitofhelp/compresso/pkg/pipeline/writer"
	"github.com/abitofhelp/compresso/pkg/session"
	"github.com/abitofhelp/compresso/pkg/stats"
	"github.com/cespare/xxhash/v2"
	"github.com/google/tink/go/tink"
	"go.uber.org/zap"
)

const (
	// CompressedExt is appended to the input name by compress
	CompressedExt = ".cmpo"

	// DecompressedExt is appended by decompress when the input lacks CompressedExt
	DecompressedExt = ".decmpo"
)

// DefaultCompressedPath returns the default output path for compressing inputPath
func DefaultCompressedPath(inputPath string) string {
	return inputPath + CompressedExt
}

// DefaultDecompressedPath returns the default output path for decompressing inputPath
func DefaultDecompressedPath(inputPath string) string {
	if trimmed, ok := strings.CutSuffix(inputPath, CompressedExt); ok && trimmed != "" {
		return trimmed
	}
	return inputPath + DecompressedExt
}

// CompressFile compresses inputPath into a container at outputPath.
// When aead is non-nil the container is sealed before it is written.
func CompressFile(
	ctx context.Context,
	logger *zap.Logger,
	inputPath, outputPath string,
	registry *codec.Registry,
	opts *config.Options,
	aead tink.AEAD,
) (*stats.Stats, error) {
	if err := validateInputs(ctx, logger, inputPath, outputPath, registry); err != nil {
		return nil, err
	}
	if opts == nil {
		opts = config.DefaultOptions()
	}

	if err := checkContext(ctx); err != nil {
		logContextError(logger, err, inputPath, outputPath)
		return nil, err
	}

	startTime := time.Now()
	runStats := stats.NewStats(stats.OperationCompress)

	inputHasher := xxhash.New()
	input, err := reader.ReadFile(ctx, logger, inputPath, inputHasher)
	if err != nil {
		return nil, err
	}
	runStats.UpdateInputBytes(uint64(len(input)))
	runStats.InputDigest = inputHasher.Sum64()

	result, err := session.Run(ctx, logger, input, registry, opts)
	if err != nil {
		logFailure(logger, err, inputPath, outputPath, startTime)
		return nil, err
	}
	for _, rs := range result.Rounds {
		runStats.RecordRound(rs.Failures, rs.TimedOut)
	}
	runStats.PayloadBytes.Store(uint64(len(result.Payload)))
	runStats.Algorithms = algorithmNames(registry, result.History)

	encoded, err := container.Encode(result.History, result.Payload)
	if err != nil {
		return nil, err
	}

	if opts.Verify {
		if err := verify(ctx, logger, encoded, registry, runStats.InputDigest); err != nil {
			logFailure(logger, err, inputPath, outputPath, startTime)
			return nil, err
		}
	}

	output := encoded
	if aead != nil {
		output, err = encryption.SealWithContext(ctx, aead, encoded)
		if err != nil {
			logFailure(logger, err, inputPath, outputPath, startTime)
			return nil, err
		}
		runStats.Sealed = true
	}

	outputHasher := xxhash.New()
	written, err := writer.WriteFileAtomic(ctx, logger, outputPath, output, outputHasher)
	if err != nil {
		logFailure(logger, err, inputPath, outputPath, startTime)
		return nil, err
	}
	runStats.UpdateOutputBytes(uint64(written))
	runStats.OutputDigest = outputHasher.Sum64()
	runStats.ProcessingTime = time.Since(startTime)

	logger.Info("Compression complete",
		zap.String("input_file", inputPath),
		zap.String("output_file", outputPath),
		zap.Int("algorithms", len(result.History)),
		zap.Int("payload_size", len(result.Payload)),
		zap.String("stop_reason", result.StopReason(opts)),
		zap.Duration("elapsed", runStats.ProcessingTime))

	return runStats, nil
}

// DecompressFile restores the original file from the container at inputPath.
// A sealed container requires aead; when aead is given the container must be sealed.
func DecompressFile(
	ctx context.Context,
	logger *zap.Logger,
	inputPath, outputPath string,
	registry *codec.Registry,
	aead tink.AEAD,
) (*stats.Stats, error) {
	if err := validateInputs(ctx, logger, inputPath, outputPath, registry); err != nil {
		return nil, err
	}

	if err := checkContext(ctx); err != nil {
		logContextError(logger, err, inputPath, outputPath)
		return nil, err
	}

	startTime := time.Now()
	runStats := stats.NewStats(stats.OperationDecompress)

	inputHasher := xxhash.New()
	input, err := reader.ReadFile(ctx, logger, inputPath, inputHasher)
	if err != nil {
		return nil, err
	}
	runStats.UpdateInputBytes(uint64(len(input)))
	runStats.InputDigest = inputHasher.Sum64()

	encoded, sealed, err := openContainer(ctx, input, aead)
	if err != nil {
		logFailure(logger, err, inputPath, outputPath, startTime)
		return nil, err
	}
	runStats.Sealed = sealed

	header, payload, err := container.ParseHeader(encoded)
	if err != nil {
		logFailure(logger, err, inputPath, outputPath, startTime)
		return nil, err
	}
	runStats.PayloadBytes.Store(uint64(len(payload)))
	runStats.Algorithms = algorithmNames(registry, header.Algorithms)

	decoded, err := container.Decode(ctx, logger, encoded, registry)
	if err != nil {
		logFailure(logger, err, inputPath, outputPath, startTime)
		return nil, err
	}

	outputHasher := xxhash.New()
	written, err := writer.WriteFileAtomic(ctx, logger, outputPath, decoded, outputHasher)
	if err != nil {
		logFailure(logger, err, inputPath, outputPath, startTime)
		return nil, err
	}
	runStats.UpdateOutputBytes(uint64(written))
	runStats.OutputDigest = outputHasher.Sum64()
	runStats.ProcessingTime = time.Since(startTime)

	logger.Info("Decompression complete",
		zap.String("input_file", inputPath),
		zap.String("output_file", outputPath),
		zap.Int("algorithms", len(header.Algorithms)),
		zap.Int("output_size", written),
		zap.Duration("elapsed", runStats.ProcessingTime))

	return runStats, nil
}

// Inspection describes a container without decompressing it
type Inspection struct {
	FileSize int

	// Sealed is true for an AEAD-sealed container. When it was not opened the
	// header fields are zero.
	Sealed bool
	Opened bool

	Version     byte
	Algorithms  []byte
	Names       []string
	HeaderSize  int
	PayloadSize int
}

// InspectFile parses the header of the container at inputPath
func InspectFile(ctx context.Context, logger *zap.Logger, inputPath string, registry *codec.Registry, aead tink.AEAD) (*Inspection, error) {
	if err := validateInputs(ctx, logger, inputPath, "-", registry); err != nil {
		return nil, err
	}

	input, err := reader.ReadFile(ctx, logger, inputPath, nil)
	if err != nil {
		return nil, err
	}

	ins := &Inspection{FileSize: len(input), Sealed: encryption.IsSealed(input)}
	if ins.Sealed && aead == nil {
		logger.Info("Container is sealed, supply a keyset to inspect its header", zap.String("input_file", inputPath))
		return ins, nil
	}

	encoded, _, err := openContainer(ctx, input, aead)
	if err != nil {
		return nil, err
	}
	ins.Opened = ins.Sealed

	header, payload, err := container.ParseHeader(encoded)
	if err != nil {
		return nil, err
	}

	ins.Version = header.Version
	ins.Algorithms = header.Algorithms
	ins.Names = algorithmNames(registry, header.Algorithms)
	ins.HeaderSize = header.Size()
	ins.PayloadSize = len(payload)
	return ins, nil
}

func validateInputs(ctx context.Context, logger *zap.Logger, inputPath, outputPath string, registry *codec.Registry) error {
	if ctx == nil {
		return fmt.Errorf("context cannot be nil")
	}
	if logger == nil {
		return fmt.Errorf("logger cannot be nil")
	}
	if inputPath == "" {
		return fmt.Errorf("input path cannot be empty")
	}
	if outputPath == "" {
		return fmt.Errorf("output path cannot be empty")
	}
	if registry == nil {
		return fmt.Errorf("registry cannot be nil")
	}
	return nil
}

func checkContext(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return customErrors.FromContext(err, "before starting")
	}
	return nil
}

// openContainer strips the AEAD envelope when there is one
func openContainer(ctx context.Context, data []byte, aead tink.AEAD) ([]byte, bool, error) {
	sealed := encryption.IsSealed(data)
	switch {
	case sealed && aead == nil:
		return nil, true, customErrors.ErrSealedContainer
	case !sealed && aead != nil:
		return nil, false, customErrors.ErrNotSealed
	case !sealed:
		return data, false, nil
	}

	opened, err := encryption.OpenWithContext(ctx, aead, data)
	if err != nil {
		return nil, true, err
	}
	return opened, true, nil
}

// verify decodes a freshly encoded container and compares it with the input digest
func verify(ctx context.Context, logger *zap.Logger, encoded []byte, registry *codec.Registry, inputDigest uint64) error {
	decoded, err := container.Decode(ctx, logger, encoded, registry)
	if err != nil {
		return fmt.Errorf("%w: %w", customErrors.ErrVerificationFailed, err)
	}

	if got := stats.Digest(decoded); got != inputDigest {
		return fmt.Errorf("%w: digest %s, expected %s",
			customErrors.ErrVerificationFailed, stats.FormatDigest(got), stats.FormatDigest(inputDigest))
	}

	logger.Debug("Container verified", zap.String("xxhash64", stats.FormatDigest(inputDigest)))
	return nil
}

func algorithmNames(registry *codec.Registry, ids []byte) []string {
	names := make([]string, len(ids))
	for i, id := range ids {
		names[i] = registry.Name(id)
	}
	return names
}

// logContextError logs context-related errors
func logContextError(logger *zap.Logger, err error, inputPath, outputPath string) {
	logger.Error("Pipeline context error",
		zap.Error(err),
		zap.String("input_file", inputPath),
		zap.String("output_file", outputPath))
}

// logFailure logs a failed run, at warn level when it was canceled
func logFailure(logger *zap.Logger, err error, inputPath, outputPath string, startTime time.Time) {
	fields := []zap.Field{
		zap.Error(err),
		zap.String("input_file", inputPath),
		zap.String("output_file", outputPath),
		zap.Duration("duration", time.Since(startTime)),
	}
	if customErrors.IsCancellationError(err) {
		logger.Warn("Pipeline canceled", fields...)
		return
	}
	logger.Error("Pipeline processing failed", fields...)
}

