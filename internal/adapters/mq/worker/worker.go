// Package worker runs a fixed pool of goroutines that drain a queue into a
// handler.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/okian/leadrouter/pkg/logger"
	"github.com/okian/leadrouter/pkg/metrics"
)

// Source is what workers read from.
type Source[T any] interface {
	Dequeue(ctx context.Context) <-chan T
}

// Handler processes one item.
type Handler[T any] interface {
	Handle(ctx context.Context, item T) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc[T any] func(ctx context.Context, item T) error

// Handle calls f.
func (f HandlerFunc[T]) Handle(ctx context.Context, item T) error { return f(ctx, item) }

// Pool manages a fixed set of workers sharing one Source.
type Pool[T any] struct {
	name    string
	size    int
	source  Source[T]
	handler Handler[T]
	logger  logger.Logger

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewPool creates a worker pool. Workers do not run until Start.
func NewPool[T any](source Source[T], handler Handler[T], opts ...Option) *Pool[T] {
	cfg := settings{name: "worker", size: runtime.NumCPU()}
	for _, opt := range opts {
		opt(&cfg)
	}
	l := cfg.logger
	if l == nil {
		l = logger.Get()
	}
	return &Pool[T]{
		name:    cfg.name,
		size:    cfg.size,
		source:  source,
		handler: handler,
		logger:  l.Named(cfg.name),
	}
}

// Start launches the workers. Calling it twice is a no-op.
func (p *Pool[T]) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true

	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	items := p.source.Dequeue(runCtx)
	for i := 0; i < p.size; i++ {
		p.wg.Add(1)
		go p.run(runCtx, "worker-"+strconv.Itoa(i), items)
	}
	metrics.UpdateWorkerCount(p.name, p.size)
}

func (p *Pool[T]) run(ctx context.Context, id string, items <-chan T) {
	defer p.wg.Done()
	for item := range items {
		p.process(ctx, id, item)
	}
}

func (p *Pool[T]) process(ctx context.Context, id string, item T) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			metrics.RecordWorkerError(p.name)
			p.logger.Error(ctx, "handler panicked", logger.String("worker", id), logger.Any("panic", r))
		}
		metrics.RecordWorkerProcessingLatency(p.name, float64(time.Since(start).Milliseconds()))
	}()

	if err := p.handler.Handle(ctx, item); err != nil {
		metrics.RecordWorkerError(p.name)
		p.logger.Error(ctx, "error processing item", logger.String("worker", id), logger.Error(err))
	}
}

// Shutdown closes the source when it supports Close, lets workers drain what
// is queued, and waits for them until ctx is done. On timeout the workers are
// cancelled.
func (p *Pool[T]) Shutdown(ctx context.Context) error {
	if closer, ok := p.source.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	defer func() {
		p.mu.Lock()
		if p.cancel != nil {
			p.cancel()
		}
		p.mu.Unlock()
		metrics.UpdateWorkerCount(p.name, 0)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		p.logger.Warn(ctx, "worker shutdown timed out")
		return fmt.Errorf("%w: %w", ErrShutdownTimeout, ctx.Err())
	}
}
