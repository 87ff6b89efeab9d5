// Copyright (c) 2025 A Bit of Help, Inc.

package race

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/abitofhelp/compresso/pkg/codec"
	"github.com/abitofhelp/compresso/pkg/dataprocessor"
	"go.uber.org/zap"
)

// task is one codec's compress call within one round
type task struct {
	ctx     context.Context
	codec   codec.Codec
	data    []byte
	results chan<- Result
	round   *roundState
}

// roundState tracks the tasks a round handed to the pool
type roundState struct {
	wg sync.WaitGroup

	mu        sync.Mutex
	inFlight  int
	abandoned bool
}

// start marks a codec call as running; it fails once the round is abandoned
func (s *roundState) start() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.abandoned {
		return false
	}
	s.inFlight++
	return true
}

// finish marks a codec call as returned and reports whether its worker was
// replaced while the call ran
func (s *roundState) finish() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight--
	return s.abandoned
}

// abandon marks the round as abandoned and returns the number of calls still running
func (s *roundState) abandon() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.abandoned = true
	return s.inFlight
}

// Pool is a fixed set of workers that execute compress tasks.
//
// A pool is created once per session and reused across rounds. Each task carries
// its round's context: a worker that picks up a task whose round is already over
// skips it, which is how unstarted work is dropped. A worker inside a codec call
// cannot be interrupted. When its round abandons the call, the pool starts a
// replacement and the old worker exits as soon as the call returns, so every
// round starts with the full set of workers.
type Pool struct {
	logger    *zap.Logger
	tasks     chan task
	size      int
	nextID    atomic.Int32
	workers   sync.WaitGroup
	closeOnce sync.Once
}

// NewPool starts size workers
func NewPool(logger *zap.Logger, size int) *Pool {
	if logger == nil {
		logger = zap.NewNop()
	}
	if size < 1 {
		size = 1
	}

	p := &Pool{
		logger: logger,
		tasks:  make(chan task),
		size:   size,
	}

	p.spawn(size)

	logger.Debug("Worker pool started", zap.Int("workers", size))
	return p
}

// Size returns the number of workers
func (p *Pool) Size() int {
	return p.size
}

func (p *Pool) spawn(n int) {
	for i := 0; i < n; i++ {
		id := int(p.nextID.Add(1)) - 1
		p.workers.Add(1)
		go func() {
			defer p.workers.Done()
			p.work(id)
		}()
	}
}

// replace starts n workers in place of workers held by abandoned codec calls
func (p *Pool) replace(n int) {
	if n <= 0 {
		return
	}
	p.logger.Debug("Replacing workers held by abandoned codec calls", zap.Int("workers", n))
	p.spawn(n)
}

// submit hands t to a worker, giving up when the round is over
func (p *Pool) submit(t task) bool {
	t.round.wg.Add(1)
	select {
	case p.tasks <- t:
		return true
	case <-t.ctx.Done():
		t.round.wg.Done()
		return false
	}
}

func (p *Pool) work(id int) {
	defer p.logger.Debug("Worker goroutine completed", zap.Int("worker_id", id))

	for t := range p.tasks {
		if t.ctx.Err() != nil || !t.round.start() {
			p.logger.Debug("Skipping codec for finished round",
				zap.Int("worker_id", id),
				zap.String("codec", t.codec.Name()))
			t.round.wg.Done()
			continue
		}

		start := time.Now()
		out, err := dataprocessor.Guard(t.codec.Compress, t.data)
		elapsed := time.Since(start)
		retired := t.round.finish()

		// Results channels hold one slot per codec, so this never blocks
		t.results <- Result{
			CodecID: t.codec.ID(),
			Codec:   t.codec.Name(),
			Data:    out,
			Err:     err,
			Elapsed: elapsed,
		}
		t.round.wg.Done()

		if retired {
			p.logger.Debug("Retiring worker after abandoned codec call returned",
				zap.Int("worker_id", id),
				zap.String("codec", t.codec.Name()))
			return
		}
	}
}

// Close stops accepting tasks and waits up to grace for the workers to exit.
// It reports whether every worker exited; workers stuck in a codec call are
// left running.
func (p *Pool) Close(grace time.Duration) bool {
	exited := true
	p.closeOnce.Do(func() {
		close(p.tasks)
		exited = waitWithGrace(&p.workers, grace)
		if !exited {
			p.logger.Warn("Abandoning workers still inside a codec call",
				zap.Duration("grace_period", grace))
		}
	})
	return exited
}

// waitWithGrace waits for wg for at most grace
func waitWithGrace(wg *sync.WaitGroup, grace time.Duration) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}
