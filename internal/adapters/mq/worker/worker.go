// Package worker runs queued watch requests on a fixed set of goroutines.
package worker

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/okian/bowlsense/internal/adapters/mq/queue"
	"github.com/okian/bowlsense/pkg/logger"
)

const (
	defaultWorkerCount  = 4
	poolShutdownTimeout = 30 * time.Second
)

// Request is what workers read off the queue.
type Request = queue.Request

// Handler watches one job until it reaches a terminal state.
type Handler interface {
	Watch(ctx context.Context, r Request) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, r Request) error

// Watch calls f(ctx, r).
func (f HandlerFunc) Watch(ctx context.Context, r Request) error { return f(ctx, r) }

// Queue defines how workers receive requests.
type Queue interface {
	Next(ctx context.Context) (Request, bool)
}

// Worker pulls requests and hands them to a Handler one at a time.
type Worker struct {
	queue   Queue
	handler Handler
	name    string

	shutdown chan struct{}
	done     chan struct{}
	once     sync.Once

	logger logger.Logger
}

// NewWorker creates a worker with configuration options.
func NewWorker(q Queue, h Handler, opts ...Option) *Worker {
	w := &Worker{
		queue:    q,
		handler:  h,
		name:     "worker",
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger.Nop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.Named(w.name)
	return w
}

// Run processes requests until ctx is done, Shutdown is called or the
// queue is drained after close.
func (w *Worker) Run(ctx context.Context) {
	defer close(w.done)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-w.shutdown:
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		r, ok := w.queue.Next(ctx)
		if !ok {
			return
		}
		w.process(ctx, r)
	}
}

func (w *Worker) process(ctx context.Context, r Request) {
	defer func() {
		if p := recover(); p != nil {
			w.logger.Error(ctx, "watch panicked",
				logger.String("job_id", r.JobID),
				logger.Any("panic", p))
		}
	}()
	if err := w.handler.Watch(ctx, r); err != nil {
		w.logger.Warn(ctx, "watch ended with error",
			logger.String("job_id", r.JobID),
			logger.String("kind", string(r.Kind)),
			logger.Error(err))
	}
}

// Shutdown stops the worker and waits for the current watch to return.
func (w *Worker) Shutdown(ctx context.Context) error {
	w.once.Do(func() { close(w.shutdown) })
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// Pool manages multiple workers sharing one queue.
type Pool struct {
	workers []*Worker
	queue   Queue
	logger  logger.Logger
	started bool
}

// NewPool creates workerCount workers. A count below one uses the default.
func NewPool(workerCount int, q Queue, h Handler, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = defaultWorkerCount
	}
	p := &Pool{
		workers: make([]*Worker, workerCount),
		queue:   q,
		logger:  logger.Nop(),
	}
	base := &Worker{logger: p.logger}
	for _, opt := range opts {
		opt(base)
	}
	p.logger = base.logger.Named("worker-pool")

	for i := range workerCount {
		workerOpts := append([]Option{}, opts...)
		workerOpts = append(workerOpts, WithName("worker-"+strconv.Itoa(i)))
		p.workers[i] = NewWorker(q, h, workerOpts...)
	}
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Start launches every worker.
func (p *Pool) Start(ctx context.Context) {
	if p.started {
		return
	}
	p.started = true
	for _, w := range p.workers {
		go w.Run(ctx)
	}
	p.logger.Info(ctx, "worker pool started", logger.Int("workers", len(p.workers)))
}

// Shutdown closes the queue, if it can be closed, and waits for the workers.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}
	if !p.started {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	var firstErr error
	for i, w := range p.workers {
		if err := w.Shutdown(shutdownCtx); err != nil {
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
