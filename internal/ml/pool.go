package ml

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrPoolClosed is returned by Do after Close has been called
var ErrPoolClosed = errors.New("inference pool closed")

type job struct {
	ctx  context.Context
	fn   func(context.Context) error
	done chan error
}

// Pool runs model inference on a fixed set of workers so CPU-bound
// predictions never run on connection goroutines. The queue is bounded:
// when it is full, Do blocks until a slot frees up or ctx ends.
type Pool struct {
	jobs    chan job
	quit    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
	workers int
	logger  *slog.Logger
}

// NewPool starts workers goroutines with a queue of queueSize pending jobs
func NewPool(workers, queueSize int, logger *slog.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	if logger == nil {
		logger = slog.Default()
	}

	p := &Pool{
		jobs:    make(chan job, queueSize),
		quit:    make(chan struct{}),
		workers: workers,
		logger:  logger,
	}

	for i := range workers {
		p.wg.Add(1)
		go func(workerID int) {
			defer p.wg.Done()
			p.worker(workerID)
		}(i)
	}
	return p
}

func (p *Pool) worker(workerID int) {
	p.logger.Debug("inference worker started", "worker", workerID)
	defer p.logger.Debug("inference worker stopped", "worker", workerID)

	for {
		select {
		case <-p.quit:
			return
		case j := <-p.jobs:
			j.done <- p.run(j)
		}
	}
}

func (p *Pool) run(j job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("inference panic: %v", r)
		}
	}()

	if err := j.ctx.Err(); err != nil {
		return err
	}
	return j.fn(j.ctx)
}

// Do runs fn on a worker and waits for its result
func (p *Pool) Do(ctx context.Context, fn func(context.Context) error) error {
	j := job{ctx: ctx, fn: fn, done: make(chan error, 1)}

	select {
	case <-p.quit:
		return ErrPoolClosed
	default:
	}

	select {
	case p.jobs <- j:
	case <-p.quit:
		return ErrPoolClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-j.done:
		return err
	case <-p.quit:
		return ErrPoolClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Workers returns the number of workers
func (p *Pool) Workers() int {
	return p.workers
}

// Close stops the workers. Jobs still queued are abandoned and their
// callers receive ErrPoolClosed.
func (p *Pool) Close() {
	p.once.Do(func() {
		close(p.quit)
		p.wg.Wait()
	})
}
