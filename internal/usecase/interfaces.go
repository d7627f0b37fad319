package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/iho/stockledger/internal/domain"
)

// EntryRepository defines data access for ledger entries.
type EntryRepository interface {
	GetByID(ctx context.Context, id string) (*domain.LedgerEntry, error)
	GetByIDTx(ctx context.Context, r TxReader, id string) (*domain.LedgerEntry, error)
	SaveTx(w TxWriter, entry *domain.LedgerEntry) error
	List(ctx context.Context, filter domain.EntryFilter, page domain.PageRequest) (*domain.PageResult[*domain.LedgerEntry], error)
}

// BalanceRepository defines data access for balances.
type BalanceRepository interface {
	GetBySubject(ctx context.Context, subjectID string) (*domain.Balance, error)
	GetBySubjectTx(ctx context.Context, r TxReader, subjectID string) (*domain.Balance, error)
	SaveTx(w TxWriter, balance *domain.Balance) error
	ListByContainer(ctx context.Context, containerID string, page domain.PageRequest) (*domain.PageResult[*domain.Balance], error)
}

// AuditRepository defines data access for audit logs.
type AuditRepository interface {
	// CreateAsync queues the write and reports its outcome on the channel.
	CreateAsync(ctx context.Context, log *domain.AuditLog) <-chan error
	ListByResource(ctx context.Context, resourceType, resourceID string) ([]*domain.AuditLog, error)
}

// TxReader is the read half of a transaction. It is valid only while
// the ReadPhase it was passed to is running.
type TxReader interface {
	// Attempt is 1 on the first run and grows on every conflict retry.
	Attempt() int
}

// TxWriter stages writes that are committed together after the write phase.
type TxWriter interface {
	// Staged is the number of writes staged so far.
	Staged() int
}

// WritePhase stages the writes of a transaction. It cannot read.
type WritePhase func(w TxWriter) error

// ReadPhase performs all reads of a transaction and returns the write
// phase to run with their results. A nil WritePhase commits nothing.
// The phase may run several times and must not leak state between runs.
type ReadPhase func(ctx context.Context, r TxReader) (WritePhase, error)

// TransactionManager runs read-then-write transactions, retrying the
// whole unit on conflict.
type TransactionManager interface {
	RunInTransaction(ctx context.Context, read ReadPhase) error
}

// IDGenerator generates unique IDs.
type IDGenerator interface {
	Generate() string
}

// ErrCacheMiss is returned by Cache.Get when the key is absent.
var ErrCacheMiss = errors.New("cache miss")

// Cache defines caching operations.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// IdempotencyStore handles idempotency key storage.
type IdempotencyStore interface {
	// CheckAndSet atomically checks if key exists, sets if not.
	// Returns (exists, existingValue, error).
	CheckAndSet(ctx context.Context, key string, response []byte, ttl time.Duration) (bool, []byte, error)
	// Update updates an existing key with the final response.
	Update(ctx context.Context, key string, response []byte, ttl time.Duration) error
	// Release drops a claimed key so the request may be retried.
	Release(ctx context.Context, key string) error
}
