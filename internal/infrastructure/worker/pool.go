// Package worker provides a generic bounded worker pool with an owned
// lifecycle: it is started once, accepts work without blocking, and on
// Stop drains everything already queued before returning.
package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/iho/stockledger/internal/infrastructure/metrics"
)

// Pool defaults
const (
	DefaultWorkers   = 4
	DefaultQueueSize = 256
)

// Pool processes work items of type T on a fixed set of goroutines.
type Pool[T any] struct {
	workers   int
	queueSize int
	processor func(context.Context, T) error

	workChan chan T
	wg       sync.WaitGroup

	lifecycleMu sync.Mutex
	started     bool
	stopped     bool

	submitted atomic.Int64
	processed atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64

	metrics *metrics.Metrics
	name    string
}

// Option configures a Pool.
type Option[T any] func(*Pool[T])

// WithMetrics reports pool activity to m under the pool label name.
func WithMetrics[T any](m *metrics.Metrics, name string) Option[T] {
	return func(p *Pool[T]) {
		p.metrics = m
		p.name = name
	}
}

// NewPool creates a pool. Non-positive sizes fall back to the defaults.
// It panics if processor is nil.
func NewPool[T any](workers, queueSize int, processor func(context.Context, T) error, opts ...Option[T]) *Pool[T] {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if processor == nil {
		panic(ErrNilProcessor)
	}

	pool := &Pool[T]{
		workers:   workers,
		queueSize: queueSize,
		processor: processor,
		workChan:  make(chan T, queueSize),
	}
	for _, opt := range opts {
		opt(pool)
	}
	return pool
}

// Submit queues work without blocking.
func (p *Pool[T]) Submit(work T) error {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()

	if p.stopped {
		return ErrPoolStopped
	}
	if !p.started {
		return ErrPoolNotStarted
	}

	select {
	case p.workChan <- work:
		p.submitted.Add(1)
		if p.metrics != nil {
			p.metrics.WorkerSubmitted.WithLabelValues(p.name).Inc()
			p.metrics.WorkerQueueDepth.WithLabelValues(p.name).Set(float64(len(p.workChan)))
		}
		return nil
	default:
		p.dropped.Add(1)
		if p.metrics != nil {
			p.metrics.WorkerDropped.WithLabelValues(p.name).Inc()
		}
		return ErrQueueFull
	}
}

// Start launches the workers. ctx is passed to the processor; cancelling
// it makes workers exit without draining.
func (p *Pool[T]) Start(ctx context.Context) error {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()

	if p.started {
		return ErrPoolAlreadyStarted
	}
	if p.stopped {
		return ErrPoolStopped
	}

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}

	p.started = true
	return nil
}

// Stop stops accepting work and waits up to timeout for queued work to
// be processed. Calling Stop more than once is a no-op.
func (p *Pool[T]) Stop(timeout time.Duration) error {
	p.lifecycleMu.Lock()
	if p.stopped {
		p.lifecycleMu.Unlock()
		return nil
	}
	p.stopped = true
	wasStarted := p.started
	close(p.workChan)
	p.lifecycleMu.Unlock()

	if !wasStarted {
		return nil
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		return nil
	case <-timer.C:
		return ErrStopTimeout
	}
}

// Stats returns current pool statistics
func (p *Pool[T]) Stats() PoolStats {
	return PoolStats{
		Workers:    p.workers,
		QueueSize:  p.queueSize,
		QueueDepth: len(p.workChan),
		Submitted:  p.submitted.Load(),
		Processed:  p.processed.Load(),
		Failed:     p.failed.Load(),
		Dropped:    p.dropped.Load(),
	}
}

// PoolStats represents worker pool statistics
type PoolStats struct {
	Workers    int   `json:"workers"`
	QueueSize  int   `json:"queue_size"`
	QueueDepth int   `json:"queue_depth"`
	Submitted  int64 `json:"submitted"`
	Processed  int64 `json:"processed"`
	Failed     int64 `json:"failed"`
	Dropped    int64 `json:"dropped"`
}

func (p *Pool[T]) worker(ctx context.Context) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case work, ok := <-p.workChan:
			if !ok {
				return
			}

			err := p.processor(ctx, work)

			p.processed.Add(1)
			if err != nil {
				p.failed.Add(1)
			}
			if p.metrics != nil {
				p.metrics.WorkerProcessed.WithLabelValues(p.name).Inc()
				if err != nil {
					p.metrics.WorkerFailed.WithLabelValues(p.name).Inc()
				}
				p.metrics.WorkerQueueDepth.WithLabelValues(p.name).Set(float64(len(p.workChan)))
			}
		}
	}
}
