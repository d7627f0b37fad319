package docstore

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"google.golang.org/grpc/codes"

	"github.com/iho/stockledger/internal/infrastructure/metrics"
)

// Default retry policy values.
const (
	DefaultMaxAttempts    = 3
	DefaultInitialBackoff = 100 * time.Millisecond
	DefaultMultiplier     = 2.0
	DefaultMaxBackoff     = 1 * time.Second
	DefaultCallTimeout    = 30 * time.Second
)

// Policy bounds how a store call is retried.
type Policy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	Multiplier     float64
	MaxBackoff     time.Duration
	CallTimeout    time.Duration // per attempt
}

// DefaultPolicy returns the default retry policy.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:    DefaultMaxAttempts,
		InitialBackoff: DefaultInitialBackoff,
		Multiplier:     DefaultMultiplier,
		MaxBackoff:     DefaultMaxBackoff,
		CallTimeout:    DefaultCallTimeout,
	}
}

func (p Policy) withDefaults() Policy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.CallTimeout <= 0 {
		p.CallTimeout = DefaultCallTimeout
	}
	return p
}

func (p Policy) backOff(ctx context.Context) backoff.BackOff {
	return backoff.WithContext(backoff.WithMaxRetries(NewBackoff(p), uint64(p.MaxAttempts-1)), ctx)
}

// Retrier runs store calls under a Policy.
type Retrier struct {
	policy  Policy
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

// NewRetrier creates a Retrier. m may be nil.
func NewRetrier(policy Policy, logger zerolog.Logger, m *metrics.Metrics) *Retrier {
	return &Retrier{
		policy:  policy.withDefaults(),
		logger:  logger,
		metrics: m,
	}
}

// Policy returns the effective policy.
func (r *Retrier) Policy() Policy {
	return r.policy
}

// Do runs fn under the retry policy.
func (r *Retrier) Do(ctx context.Context, op, collection string, fn func(ctx context.Context) error) error {
	_, err := Execute(ctx, r, op, collection, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// Execute runs fn under the retry policy of r and returns its result.
//
// Each attempt gets its own CallTimeout. Transient failures are retried
// with backoff up to MaxAttempts; once exhausted the last cause is
// returned wrapped as domain.ErrTemporarilyUnavailable. Terminal failures
// are normalized and returned at once. If ctx ends, the result is
// domain.ErrInterrupted.
func Execute[T any](ctx context.Context, r *Retrier, op, collection string, fn func(ctx context.Context) (T, error)) (T, error) {
	var (
		result  T
		attempt int
	)

	operation := func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		attempt++

		callCtx, cancel := context.WithTimeout(ctx, r.policy.CallTimeout)
		start := time.Now()
		v, err := fn(callCtx)
		if err == nil && callCtx.Err() != nil && ctx.Err() == nil {
			// A result that arrives after the attempt timed out is a timeout.
			err = fmt.Errorf("%w: call returned after %s", callCtx.Err(), r.policy.CallTimeout)
		}
		cancel()
		r.observe(op, collection, attempt, time.Since(start), err)

		if err == nil {
			result = v
			return nil
		}
		if !isRetryable(ctx, err) {
			return backoff.Permanent(err)
		}
		if cerr := ctx.Err(); cerr != nil {
			return backoff.Permanent(cerr)
		}
		return err
	}

	notify := func(err error, wait time.Duration) {
		if r.metrics != nil {
			r.metrics.StoreRetries.WithLabelValues(op, collection).Inc()
		}
		r.logger.Warn().
			Err(err).
			Str("operation", op).
			Str("collection", collection).
			Int("attempt", attempt).
			Dur("backoff", wait).
			Msg("transient store error, retrying")
	}

	err := backoff.RetryNotify(operation, r.policy.backOff(ctx), notify)
	if err == nil {
		return result, nil
	}

	var zero T
	if cerr := ctx.Err(); cerr != nil && err == cerr {
		return zero, interrupted(op, collection, attempt, cerr)
	}
	if isRetryable(ctx, err) {
		return zero, exhausted(op, collection, attempt, err)
	}
	return zero, normalize(op, collection, attempt, err)
}

func (r *Retrier) observe(op, collection string, attempt int, elapsed time.Duration, err error) {
	outcome := outcomeOf(err)

	if r.metrics != nil {
		r.metrics.StoreOperations.WithLabelValues(op, collection, outcome).Inc()
		r.metrics.StoreDuration.WithLabelValues(op, collection).Observe(elapsed.Seconds())
	}

	var event *zerolog.Event
	switch outcome {
	case outcomeSuccess, outcomeNotFound, outcomeRejected:
		event = r.logger.Debug()
	case outcomeTransient:
		event = r.logger.Info()
	default:
		event = r.logger.Error()
	}
	event.
		Err(err).
		Str("operation", op).
		Str("collection", collection).
		Int("attempt", attempt).
		Dur("duration", elapsed).
		Str("outcome", outcome).
		Msg("store call")
}

// Attempt outcomes used in logs and metrics.
const (
	outcomeSuccess   = "success"
	outcomeNotFound  = "not_found"
	outcomeRejected  = "rejected"
	outcomeTransient = "transient"
	outcomeError     = "error"
)

func outcomeOf(err error) string {
	if err == nil {
		return outcomeSuccess
	}
	if isTransient(err) {
		return outcomeTransient
	}
	c, ok := codeOf(err)
	if !ok {
		return outcomeRejected
	}
	switch c {
	case codes.NotFound:
		return outcomeNotFound
	case codes.InvalidArgument, codes.FailedPrecondition, codes.OutOfRange, codes.AlreadyExists:
		return outcomeRejected
	default:
		return outcomeError
	}
}
