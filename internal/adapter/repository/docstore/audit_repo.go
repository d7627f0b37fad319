package docstore

import (
	"context"

	"github.com/iho/stockledger/internal/domain"
	"github.com/iho/stockledger/internal/infrastructure/documentdb"
	"github.com/iho/stockledger/internal/usecase"
)

// AuditRepository implements usecase.AuditRepository. Writes go through
// the async pool and never block the ledger.
type AuditRepository struct {
	logs *Collection[domain.AuditLog, *domain.AuditLog]
}

var _ usecase.AuditRepository = (*AuditRepository)(nil)

// NewAuditRepository creates a new AuditRepository.
func NewAuditRepository(client documentdb.Client, retrier *Retrier, ids usecase.IDGenerator, pool *AsyncPool) *AuditRepository {
	return &AuditRepository{
		logs: mustCollection[domain.AuditLog](AuditCollection, client, retrier, ids, pool),
	}
}

// CreateAsync queues an audit log write.
func (r *AuditRepository) CreateAsync(ctx context.Context, log *domain.AuditLog) <-chan error {
	return r.logs.SaveAsync(ctx, log)
}

// ListByResource returns the audit trail of one resource, newest first.
func (r *AuditRepository) ListByResource(ctx context.Context, resourceType, resourceID string) ([]*domain.AuditLog, error) {
	return r.logs.Query(ctx, Query{
		Filters: []documentdb.Filter{
			Where("resourceType", documentdb.OpEqual, resourceType),
			Where("resourceId", documentdb.OpEqual, resourceID),
		},
		OrderBy: []documentdb.Order{Newest(documentdb.FieldCreateTime)},
	})
}
