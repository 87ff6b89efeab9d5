// Copyright (c) 2025 A Bit of Help, Inc.

// Package session drives the multi-round compression loop.
//
// Each round races every registered codec against the current buffer. The
// winner is adopted only if it is strictly smaller than the buffer it came
// from; the first round without such a winner ends the session. Rounds run
// strictly one after another on a single worker pool owned by the session.
package session

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/abitofhelp/compresso/pkg/codec"
	"github.com/abitofhelp/compresso/pkg/config"
	customErrors "github.com/abitofhelp/compresso/pkg/errors"
	"github.com/abitofhelp/compresso/pkg/race"
	"go.uber.org/zap"
)

// RoundStat records what happened in one round
type RoundStat struct {
	Round      int
	InputSize  int
	OutputSize int
	Winner     string
	WinnerID   byte
	Adopted    bool
	Failures   int
	TimedOut   bool
	Abandoned  int
	Elapsed    time.Duration
}

// Result is the outcome of a compression session
type Result struct {
	// Payload is the final buffer
	Payload []byte

	// History holds the adopted codec ids in decompression-apply order,
	// i.e. the most recently adopted codec first
	History []byte

	// Rounds holds one entry per round that was raced, including the final
	// round that found no improvement
	Rounds []RoundStat

	// InputSize is the size of the original buffer
	InputSize int
}

// StopReason explains why a session ended
func (r *Result) StopReason(opts *config.Options) string {
	switch {
	case len(r.History) >= opts.RoundLimit() && opts.MaxRounds >= 0:
		return "max rounds reached"
	case len(r.History) >= config.MaxHistory:
		return "history capacity reached"
	default:
		return "no further improvement"
	}
}

// CodecFailures returns the number of codec failures across all rounds
func (r *Result) CodecFailures() int {
	n := 0
	for _, rs := range r.Rounds {
		n += rs.Failures
	}
	return n
}

// TimedOutRounds returns the number of rounds cut short by the time budget
func (r *Result) TimedOutRounds() int {
	n := 0
	for _, rs := range r.Rounds {
		if rs.TimedOut {
			n++
		}
	}
	return n
}

// Run compresses input round after round with the codecs in registry.
//
// input is never modified. Codec failures are absorbed per round; an error is
// returned only when ctx is canceled or the options are invalid.
func Run(ctx context.Context, logger *zap.Logger, input []byte, registry *codec.Registry, opts *config.Options) (*Result, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if registry == nil {
		return nil, fmt.Errorf("registry cannot be nil")
	}
	if opts == nil {
		opts = config.DefaultOptions()
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	racer := race.NewRacer(logger, opts)
	defer racer.Close()

	codecs := registry.All()
	limit := opts.RoundLimit()

	result := &Result{InputSize: len(input)}
	current := input
	history := make([]byte, 0)

	logger.Info("Starting compression session",
		zap.Int("input_size", len(input)),
		zap.Int("codecs", len(codecs)),
		zap.Int("workers", opts.WorkerCount),
		zap.Int("max_rounds", opts.MaxRounds),
		zap.Duration("time_budget", opts.TimeBudget))

	for round := 1; ; round++ {
		if round > limit {
			logger.Info("Maximum rounds reached, stopping compression", zap.Int("max_rounds", limit))
			break
		}

		logger.Debug("Compression round started", zap.Int("round", round), zap.Int("input_size", len(current)))

		outcome, err := racer.Race(ctx, round, current, codecs)
		if err != nil {
			sentinel := customErrors.ErrCanceled
			if customErrors.IsTimeoutError(err) {
				sentinel = customErrors.ErrTimeout
			}
			return nil, fmt.Errorf("%w: compression round %d: %w", sentinel, round, err)
		}

		stat := RoundStat{
			Round:     round,
			InputSize: len(current),
			Failures:  outcome.Failures.Len(),
			TimedOut:  outcome.TimedOut,
			Abandoned: outcome.Abandoned,
			Elapsed:   outcome.Elapsed,
		}

		if !outcome.Found || len(outcome.Winner.Data) >= len(current) {
			result.Rounds = append(result.Rounds, stat)
			logger.Info("No further compression possible", zap.Int("round", round))
			break
		}

		stat.Adopted = true
		stat.Winner = outcome.Winner.Codec
		stat.WinnerID = outcome.Winner.CodecID
		stat.OutputSize = len(outcome.Winner.Data)
		result.Rounds = append(result.Rounds, stat)

		logger.Info("Adopted round winner",
			zap.Int("round", round),
			zap.String("codec", outcome.Winner.Codec),
			zap.Int("input_size", len(current)),
			zap.Int("output_size", len(outcome.Winner.Data)),
			zap.Int("saved_bytes", len(current)-len(outcome.Winner.Data)))

		current = outcome.Winner.Data
		history = append(history, outcome.Winner.CodecID)
	}

	// The last adopted codec must be undone first
	slices.Reverse(history)

	result.Payload = current
	result.History = history
	return result, nil
}
