package docstore

import (
	"context"
	"sync"
	"time"

	"github.com/iho/stockledger/internal/infrastructure/documentdb"
)

// Health probe defaults
const (
	DefaultProbeTimeout = 5 * time.Second
	DefaultProbeTTL     = 30 * time.Second
)

// HealthProbe pings the store and caches the outcome, so readiness checks
// do not hit the database on every request.
type HealthProbe struct {
	client  documentdb.Client
	timeout time.Duration
	ttl     time.Duration
	now     func() time.Time

	mu        sync.Mutex
	checkedAt time.Time
	lastErr   error
}

// NewHealthProbe creates a probe with the default timeout and cache TTL.
func NewHealthProbe(client documentdb.Client) *HealthProbe {
	return &HealthProbe{
		client:  client,
		timeout: DefaultProbeTimeout,
		ttl:     DefaultProbeTTL,
		now:     time.Now,
	}
}

// Check returns the cached result if it is fresh, otherwise pings.
func (p *HealthProbe) Check(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	if !p.checkedAt.IsZero() && now.Sub(p.checkedAt) < p.ttl {
		return p.lastErr
	}

	pingCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	p.lastErr = normalize("ping", "", 1, p.client.Ping(pingCtx))
	p.checkedAt = now
	return p.lastErr
}
