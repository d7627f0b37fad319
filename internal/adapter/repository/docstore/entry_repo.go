package docstore

import (
	"context"
	"fmt"

	"github.com/iho/stockledger/internal/domain"
	"github.com/iho/stockledger/internal/infrastructure/documentdb"
	"github.com/iho/stockledger/internal/usecase"
)

// Collection names
const (
	EntriesCollection  = "ledger_entries"
	BalancesCollection = "balances"
	AuditCollection    = "audit_logs"
)

// Ledger entry document fields used in queries.
const (
	fieldSubjectID   = "subjectId"
	fieldContainerID = "containerId"
	fieldDeleted     = "deleted"
)

// EntryRepository implements usecase.EntryRepository.
type EntryRepository struct {
	entries *Collection[domain.LedgerEntry, *domain.LedgerEntry]
}

var _ usecase.EntryRepository = (*EntryRepository)(nil)

// NewEntryRepository creates a new EntryRepository.
func NewEntryRepository(client documentdb.Client, retrier *Retrier, ids usecase.IDGenerator) *EntryRepository {
	return &EntryRepository{
		entries: mustCollection[domain.LedgerEntry](EntriesCollection, client, retrier, ids, nil),
	}
}

// GetByID retrieves an entry.
func (r *EntryRepository) GetByID(ctx context.Context, id string) (*domain.LedgerEntry, error) {
	entry, err := r.entries.Get(ctx, id)
	if err != nil {
		return nil, entryNotFound(id, err)
	}
	return entry, nil
}

// GetByIDTx retrieves an entry inside a transaction.
func (r *EntryRepository) GetByIDTx(ctx context.Context, tx usecase.TxReader, id string) (*domain.LedgerEntry, error) {
	entry, err := r.entries.GetIn(ctx, tx, id)
	if err != nil {
		return nil, entryNotFound(id, err)
	}
	return entry, nil
}

// SaveTx stages an entry write.
func (r *EntryRepository) SaveTx(w usecase.TxWriter, entry *domain.LedgerEntry) error {
	_, err := r.entries.SaveIn(w, entry)
	return err
}

// List returns one page of entries matching filter, newest first.
func (r *EntryRepository) List(ctx context.Context, filter domain.EntryFilter, page domain.PageRequest) (*domain.PageResult[*domain.LedgerEntry], error) {
	q := Query{OrderBy: []documentdb.Order{Newest(documentdb.FieldCreateTime)}}
	if filter.SubjectID != "" {
		q.Filters = append(q.Filters, Where(fieldSubjectID, documentdb.OpEqual, filter.SubjectID))
	}
	if filter.ContainerID != "" {
		q.Filters = append(q.Filters, Where(fieldContainerID, documentdb.OpEqual, filter.ContainerID))
	}
	if filter.From != nil {
		q.Filters = append(q.Filters, Where(documentdb.FieldCreateTime, documentdb.OpGreaterEqual, *filter.From))
	}
	if filter.To != nil {
		q.Filters = append(q.Filters, Where(documentdb.FieldCreateTime, documentdb.OpLess, *filter.To))
	}
	if !filter.IncludeDeleted {
		q.Filters = append(q.Filters, Where(fieldDeleted, documentdb.OpEqual, false))
	}

	return r.entries.QueryPage(ctx, q, page)
}

func entryNotFound(id string, err error) error {
	if isNotFound(err) {
		return fmt.Errorf("%w: %s: %w", domain.ErrEntryNotFound, id, err)
	}
	return err
}

func mustCollection[T any, P Doc[T]](name string, client documentdb.Client, retrier *Retrier, ids usecase.IDGenerator, pool *AsyncPool) *Collection[T, P] {
	c, err := NewCollection[T, P](name, client, retrier, ids, pool)
	if err != nil {
		panic(err)
	}
	return c
}
