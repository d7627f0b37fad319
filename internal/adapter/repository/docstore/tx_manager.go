package docstore

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/iho/stockledger/internal/domain"
	"github.com/iho/stockledger/internal/infrastructure/documentdb"
	"github.com/iho/stockledger/internal/infrastructure/metrics"
	"github.com/iho/stockledger/internal/usecase"
)

const txOp = "transaction"

// TxManager implements usecase.TransactionManager on a documentdb.Client.
type TxManager struct {
	client  documentdb.Client
	policy  Policy
	timeout time.Duration
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

var _ usecase.TransactionManager = (*TxManager)(nil)

// NewTxManager creates a TxManager. Conflicts are retried per policy;
// timeout bounds all attempts together. m may be nil.
func NewTxManager(client documentdb.Client, policy Policy, timeout time.Duration, logger zerolog.Logger, m *metrics.Metrics) *TxManager {
	if timeout <= 0 {
		timeout = usecase.DefaultTransactionTimeout
	}
	return &TxManager{
		client:  client,
		policy:  policy.withDefaults(),
		timeout: timeout,
		logger:  logger,
		metrics: m,
	}
}

// RunInTransaction runs read and then the write phase it returns in one
// store transaction. On conflict the whole unit is re-run. Errors from
// either phase that are not store conflicts are returned unchanged.
func (m *TxManager) RunInTransaction(ctx context.Context, read usecase.ReadPhase) error {
	start := time.Now()
	if m.metrics != nil {
		defer func() {
			m.metrics.TxDuration.Observe(time.Since(start).Seconds())
		}()
	}

	txCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	attempt := 0
	operation := func() error {
		if err := txCtx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		attempt++

		err := m.client.RunTransaction(txCtx, func(ctx context.Context, tx documentdb.Tx) error {
			return runPhases(ctx, tx, attempt, read)
		})
		m.observe(attempt, err)

		if err == nil {
			return nil
		}
		if !isRetryable(txCtx, err) {
			return backoff.Permanent(err)
		}
		if cerr := txCtx.Err(); cerr != nil {
			return backoff.Permanent(cerr)
		}
		return err
	}

	notify := func(err error, wait time.Duration) {
		m.logger.Debug().
			Err(err).
			Int("attempt", attempt).
			Dur("backoff", wait).
			Msg("transaction conflict, retrying")
	}

	err := backoff.RetryNotify(operation, m.policy.backOff(txCtx), notify)
	switch {
	case err == nil:
		return nil
	case !isTransient(err):
		return normalize(txOp, "", attempt, err)
	case ctx.Err() != nil:
		return interrupted(txOp, "", attempt, ctx.Err())
	case txCtx.Err() != nil:
		m.logger.Warn().
			Err(err).
			Int("attempts", attempt).
			Dur("timeout", m.timeout).
			Msg("transaction timed out")
		return fmt.Errorf("%w after %s and %d attempts: %w", domain.ErrTransactionTimeout, m.timeout, attempt, err)
	default:
		return exhausted(txOp, "", attempt, err)
	}
}

func runPhases(ctx context.Context, tx documentdb.Tx, attempt int, read usecase.ReadPhase) error {
	r := &txReader{tx: tx, attempt: attempt}
	write, err := read(ctx, r)
	r.sealed.Store(true)
	if err != nil || write == nil {
		return err
	}

	w := &txWriter{}
	err = write(w)
	w.sealed.Store(true)
	if err != nil {
		return err
	}

	for _, staged := range w.writes {
		if err := tx.Write(staged); err != nil {
			return err
		}
	}
	return nil
}

func (m *TxManager) observe(attempt int, err error) {
	outcome := "committed"
	switch {
	case err == nil:
	case isTransient(err):
		outcome = "conflict"
	default:
		outcome = "aborted"
	}
	if m.metrics != nil {
		m.metrics.TxAttempts.WithLabelValues(outcome).Inc()
	}
	m.logger.Debug().
		Err(err).
		Int("attempt", attempt).
		Str("outcome", outcome).
		Msg("transaction attempt")
}

// txReader gives the read phase access to the store transaction.
type txReader struct {
	tx      documentdb.Tx
	attempt int
	sealed  atomic.Bool
}

func (r *txReader) Attempt() int { return r.attempt }

// txWriter buffers the writes of the write phase.
type txWriter struct {
	writes []documentdb.Write
	sealed atomic.Bool
}

func (w *txWriter) Staged() int { return len(w.writes) }

// rawReader unwraps a reader created by TxManager. Using a reader
// outside its read phase is a programming error and panics.
func rawReader(r usecase.TxReader) documentdb.Tx {
	tr, ok := r.(*txReader)
	if !ok || tr == nil {
		panic(fmt.Sprintf("docstore: reader %T was not created by TxManager", r))
	}
	if tr.sealed.Load() {
		panic("docstore: transaction reader used after its read phase ended")
	}
	return tr.tx
}

func stage(w usecase.TxWriter, write documentdb.Write) {
	tw, ok := w.(*txWriter)
	if !ok || tw == nil {
		panic(fmt.Sprintf("docstore: writer %T was not created by TxManager", w))
	}
	if tw.sealed.Load() {
		panic("docstore: transaction writer used after its write phase ended")
	}
	tw.writes = append(tw.writes, write)
}

func isNotFound(err error) bool {
	return errors.Is(err, domain.ErrDocumentNotFound)
}
