package usecase

import "time"

const (
	// DefaultTransactionTimeout bounds a ledger transaction across all of its attempts.
	DefaultTransactionTimeout = 30 * time.Second

	// DefaultBalanceCacheTTL is how long a balance stays in the read-through cache.
	DefaultBalanceCacheTTL = 30 * time.Second

	// IdempotencyKeyTTL is how long idempotency keys are cached
	IdempotencyKeyTTL = 24 * time.Hour

	balanceCacheKeyPrefix = "balance:"
)
