// Copyright (c) 2025 A Bit of Help, Inc.

// Package race runs one compression round: every codec compresses the same
// buffer concurrently and the smallest output wins.
//
// Ordering rules:
//
//   - Only results that arrive before the round's time budget runs out are
//     considered. The budget is measured from the start of the round.
//   - A result replaces the current best only when it is strictly smaller, and
//     the initial best is the size of the round input. Equal sizes therefore go
//     to whichever codec reported first.
//   - A codec that fails or panics is excluded from the round; the others still
//     compete.
//
// When collection ends the round context is canceled, unstarted tasks are
// skipped, and in-flight calls are joined for a grace period before being
// abandoned.
package race

import (
	"context"
	"time"

	"github.com/abitofhelp/compresso/pkg/codec"
	"github.com/abitofhelp/compresso/pkg/config"
	customErrors "github.com/abitofhelp/compresso/pkg/errors"
	"go.uber.org/zap"
)

// Result is one codec's report for a round
type Result struct {
	CodecID byte
	Codec   string
	Data    []byte
	Err     error
	Elapsed time.Duration
}

// Outcome summarizes a finished round
type Outcome struct {
	// Round is the 1-based round number
	Round int

	// InputSize is the size of the buffer the round started from
	InputSize int

	// Winner is the smallest result; valid only when Found is true
	Winner Result

	// Found reports whether some codec produced output smaller than InputSize
	Found bool

	// Reported is the number of distinct codecs that reported, failures included
	Reported int

	// Failures holds one error per codec that failed during the round
	Failures *customErrors.ErrorCollector

	// TimedOut reports whether the budget expired before every codec reported
	TimedOut bool

	// Abandoned is the number of codec calls still running after the grace period
	Abandoned int

	// Elapsed is the wall time of the round including the grace join
	Elapsed time.Duration
}

// Racer races codecs on a shared worker pool
type Racer struct {
	logger *zap.Logger
	pool   *Pool
	budget time.Duration
	grace  time.Duration
}

// NewRacer creates a Racer and starts its worker pool. Close must be called
// when the session is over.
func NewRacer(logger *zap.Logger, opts *config.Options) *Racer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts == nil {
		opts = config.DefaultOptions()
	}

	return &Racer{
		logger: logger,
		pool:   NewPool(logger, opts.WorkerCount),
		budget: opts.TimeBudget,
		grace:  opts.GracePeriod,
	}
}

// Close shuts down the worker pool
func (r *Racer) Close() {
	r.pool.Close(r.grace)
}

// roundContext derives the context that bounds waiting for one round
func (r *Racer) roundContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.budget >= 0 {
		return context.WithTimeout(ctx, r.budget)
	}
	return context.WithCancel(ctx)
}

// Race compresses data with every codec and returns the round outcome. data is
// shared read-only by all workers and must not be modified until Race returns.
//
// An error is returned only when ctx itself is canceled; an expired time budget
// ends the round normally with Outcome.TimedOut set.
func (r *Racer) Race(ctx context.Context, round int, data []byte, codecs []codec.Codec) (Outcome, error) {
	start := time.Now()
	outcome := Outcome{
		Round:     round,
		InputSize: len(data),
		Failures:  customErrors.NewErrorCollector(),
	}

	codecs = uniqueCodecs(codecs)

	roundCtx, cancel := r.roundContext(ctx)
	defer cancel()

	state := &roundState{}
	results := make(chan Result, len(codecs))
	dispatched := make(chan struct{})

	go func() {
		defer close(dispatched)
		for _, c := range codecs {
			r.logger.Debug("Queueing codec for compression",
				zap.Int("round", round),
				zap.String("codec", c.Name()))
			if !r.pool.submit(task{ctx: roundCtx, codec: c, data: data, results: results, round: state}) {
				return
			}
		}
	}()

	best := len(data)
	seen := make(map[byte]struct{}, len(codecs))

collect:
	for outcome.Reported < len(codecs) {
		// A spent budget stops before waiting again, even if results are ready
		if roundCtx.Err() != nil {
			break
		}

		select {
		case res := <-results:
			if _, dup := seen[res.CodecID]; dup {
				r.logger.Debug("Ignoring duplicate codec report", zap.String("codec", res.Codec))
				continue
			}
			seen[res.CodecID] = struct{}{}
			outcome.Reported++

			if res.Err != nil {
				codecErr := customErrors.NewCodecError(res.Err, res.Codec, res.CodecID, "compress", round, len(data))
				outcome.Failures.Add(codecErr)
				r.logger.Warn("Codec failed, excluding it from the round",
					zap.Int("round", round),
					zap.String("codec", res.Codec),
					zap.Error(codecErr))
				continue
			}

			r.logger.Debug("Codec produced output",
				zap.Int("round", round),
				zap.String("codec", res.Codec),
				zap.Int("input_size", len(data)),
				zap.Int("output_size", len(res.Data)),
				zap.Duration("elapsed", res.Elapsed))

			if len(res.Data) < best {
				best = len(res.Data)
				outcome.Winner = res
				outcome.Found = true
			}
		case <-roundCtx.Done():
			break collect
		}
	}

	if outcome.Reported < len(codecs) && ctx.Err() == nil {
		outcome.TimedOut = true
		r.logger.Info("Time budget reached, skipping unfinished codecs",
			zap.Int("round", round),
			zap.Int("reported", outcome.Reported),
			zap.Int("codecs", len(codecs)))
	}

	cancel()
	<-dispatched
	if !waitWithGrace(&state.wg, r.grace) {
		outcome.Abandoned = state.abandon()
		r.pool.replace(outcome.Abandoned)
		r.logger.Warn("Abandoning codec calls that outlived the grace period",
			zap.Int("round", round),
			zap.Int("abandoned", outcome.Abandoned),
			zap.Duration("grace_period", r.grace))
	}
	outcome.Elapsed = time.Since(start)

	if err := ctx.Err(); err != nil {
		return outcome, err
	}
	return outcome, nil
}

// uniqueCodecs drops codecs whose id was already seen
func uniqueCodecs(codecs []codec.Codec) []codec.Codec {
	seen := make(map[byte]struct{}, len(codecs))
	out := make([]codec.Codec, 0, len(codecs))
	for _, c := range codecs {
		if _, ok := seen[c.ID()]; ok {
			continue
		}
		seen[c.ID()] = struct{}{}
		out = append(out, c)
	}
	return out
}
