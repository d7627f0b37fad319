package docstore

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/iho/stockledger/internal/infrastructure/documentdb"
	"github.com/iho/stockledger/internal/infrastructure/metrics"
)

// faultyClient injects errors in front of an in-memory store.
type faultyClient struct {
	*documentdb.Memory

	mu     sync.Mutex
	queued map[string][]error
	always map[string]error
	calls  map[string]int
}

func newFaultyClient() *faultyClient {
	return &faultyClient{
		Memory: documentdb.NewMemory(),
		queued: make(map[string][]error),
		always: make(map[string]error),
		calls:  make(map[string]int),
	}
}

// failNext makes the next len(errs) calls of op fail with errs in order.
func (f *faultyClient) failNext(op string, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queued[op] = append(f.queued[op], errs...)
}

// failAlways makes every call of op fail with err.
func (f *faultyClient) failAlways(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.always[op] = err
}

func (f *faultyClient) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *faultyClient) next(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[op]++
	if err, ok := f.always[op]; ok {
		return err
	}
	if q := f.queued[op]; len(q) > 0 {
		f.queued[op] = q[1:]
		return q[0]
	}
	return nil
}

func (f *faultyClient) Get(ctx context.Context, collection, id string) (*documentdb.Snapshot, error) {
	if err := f.next("get"); err != nil {
		return nil, err
	}
	return f.Memory.Get(ctx, collection, id)
}

func (f *faultyClient) Commit(ctx context.Context, writes []documentdb.Write) error {
	if err := f.next("commit"); err != nil {
		return err
	}
	return f.Memory.Commit(ctx, writes)
}

func (f *faultyClient) Query(ctx context.Context, q documentdb.Query) ([]*documentdb.Snapshot, error) {
	if err := f.next("query"); err != nil {
		return nil, err
	}
	return f.Memory.Query(ctx, q)
}

func (f *faultyClient) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx documentdb.Tx) error) error {
	if err := f.next("tx"); err != nil {
		return err
	}
	return f.Memory.RunTransaction(ctx, fn)
}

func (f *faultyClient) Ping(ctx context.Context) error {
	if err := f.next("ping"); err != nil {
		return err
	}
	return f.Memory.Ping(ctx)
}

// plant is a minimal document used by the gateway tests.
type plant struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Count     int       `json:"count"`
	Note      string    `json:"note,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (p *plant) DocumentID() string      { return p.ID }
func (p *plant) SetDocumentID(id string) { p.ID = id }
func (p *plant) Touch(now time.Time) {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
}

// sequenceIDs hands out predictable ids.
type sequenceIDs struct {
	mu   sync.Mutex
	next int
}

func (s *sequenceIDs) Generate() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	return fmt.Sprintf("id%03d", s.next)
}

func fastPolicy() Policy {
	return Policy{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		Multiplier:     2,
		MaxBackoff:     5 * time.Millisecond,
		CallTimeout:    time.Second,
	}
}

func newTestMetrics() *metrics.Metrics {
	return metrics.NewWithRegisterer(prometheus.NewRegistry())
}

func newTestRetrier(m *metrics.Metrics) *Retrier {
	return NewRetrier(fastPolicy(), zerolog.Nop(), m)
}

func newPlants(t *testing.T, client documentdb.Client, pool *AsyncPool) *Collection[plant, *plant] {
	t.Helper()
	c, err := NewCollection[plant](
		"plants", client, newTestRetrier(nil), &sequenceIDs{}, pool)
	if err != nil {
		t.Fatalf("new collection: %v", err)
	}
	return c
}

func newTestTxManager(client documentdb.Client, timeout time.Duration) *TxManager {
	return NewTxManager(client, fastPolicy(), timeout, zerolog.Nop(), nil)
}
