package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iho/stockledger/internal/infrastructure/metrics"
)

// PendingResponse marks a key whose request is still being processed.
var PendingResponse = []byte("processing")

// IdempotencyStore implements usecase.IdempotencyStore using Redis.
type IdempotencyStore struct {
	client  redis.Cmdable
	prefix  string
	metrics *metrics.Metrics
}

// NewIdempotencyStore creates a new IdempotencyStore. m may be nil.
func NewIdempotencyStore(client redis.Cmdable, m *metrics.Metrics) *IdempotencyStore {
	return &IdempotencyStore{
		client:  client,
		prefix:  "stockledger:idempotency:",
		metrics: m,
	}
}

// claimAttempts bounds how often CheckAndSet retries a key that keeps
// expiring between the claim and the read.
const claimAttempts = 3

// ErrClaimContended is returned when a key expired under every claim attempt.
var ErrClaimContended = errors.New("idempotency key kept expiring during claim")

// CheckAndSet claims key for the caller. If the key is already claimed it
// returns true and the stored value, which is PendingResponse while the
// first request is still running. A nil response claims the key with
// PendingResponse. The caller may proceed only after a successful claim.
func (s *IdempotencyStore) CheckAndSet(ctx context.Context, key string, response []byte, ttl time.Duration) (bool, []byte, error) {
	fullKey := s.prefix + key
	if response == nil {
		response = PendingResponse
	}

	for range claimAttempts {
		claimed, err := s.client.SetNX(ctx, fullKey, response, ttl).Result()
		observe(s.metrics, "idempotency_claim", err)
		if err != nil {
			return false, nil, err
		}
		if claimed {
			return false, nil, nil
		}

		existing, err := s.client.Get(ctx, fullKey).Bytes()
		if errors.Is(err, redis.Nil) {
			// Expired between the two calls; claim again.
			observe(s.metrics, "idempotency_get", nil)
			continue
		}
		observe(s.metrics, "idempotency_get", err)
		if err != nil {
			return false, nil, err
		}
		return true, existing, nil
	}
	return false, nil, ErrClaimContended
}

// Update stores the final response for key.
func (s *IdempotencyStore) Update(ctx context.Context, key string, response []byte, ttl time.Duration) error {
	err := s.client.Set(ctx, s.prefix+key, response, ttl).Err()
	observe(s.metrics, "idempotency_update", err)
	return err
}

// Release drops a claim so the request can be retried, used when the
// first attempt failed before producing a response worth replaying.
func (s *IdempotencyStore) Release(ctx context.Context, key string) error {
	err := s.client.Del(ctx, s.prefix+key).Err()
	observe(s.metrics, "idempotency_release", err)
	return err
}
