package docstore

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/iho/stockledger/internal/infrastructure/metrics"
	"github.com/iho/stockledger/internal/infrastructure/worker"
)

// AsyncPoolName labels the async write pool in metrics.
const AsyncPoolName = "docstore_async"

// AsyncTask is one queued SaveAsync or DeleteAsync call.
type AsyncTask struct {
	op         string
	collection string
	id         string
	run        func(ctx context.Context) error
	done       chan error
}

// AsyncPool runs queued writes.
type AsyncPool = worker.Pool[AsyncTask]

// NewAsyncPool creates the pool used by SaveAsync and DeleteAsync. The
// caller owns its lifecycle: Start it before serving and Stop it on
// shutdown to drain queued writes.
func NewAsyncPool(workers, queueSize int, logger zerolog.Logger, m *metrics.Metrics) *AsyncPool {
	process := func(ctx context.Context, t AsyncTask) error {
		err := t.run(ctx)
		if err != nil {
			logger.Error().
				Err(err).
				Str("operation", t.op).
				Str("collection", t.collection).
				Str("id", t.id).
				Msg("async store write failed")
		}
		t.done <- err
		close(t.done)
		return err
	}

	var opts []worker.Option[AsyncTask]
	if m != nil {
		opts = append(opts, worker.WithMetrics[AsyncTask](m, AsyncPoolName))
	}
	return worker.NewPool(workers, queueSize, process, opts...)
}

// submit queues run and returns its result channel. The channel is
// buffered so nobody has to read it.
func submit(pool *AsyncPool, op, collection, id string, run func(ctx context.Context) error) <-chan error {
	done := make(chan error, 1)
	if pool == nil {
		done <- worker.ErrPoolNotStarted
		close(done)
		return done
	}

	task := AsyncTask{op: op, collection: collection, id: id, run: run, done: done}
	if err := pool.Submit(task); err != nil {
		done <- err
		close(done)
	}
	return done
}
