package docstore

import (
	"context"
	"fmt"

	"github.com/iho/stockledger/internal/domain"
	"github.com/iho/stockledger/internal/infrastructure/documentdb"
	"github.com/iho/stockledger/internal/usecase"
)

// BalanceRepository implements usecase.BalanceRepository. Balances are
// keyed by subject id.
type BalanceRepository struct {
	balances *Collection[domain.Balance, *domain.Balance]
}

var _ usecase.BalanceRepository = (*BalanceRepository)(nil)

// NewBalanceRepository creates a new BalanceRepository.
func NewBalanceRepository(client documentdb.Client, retrier *Retrier, ids usecase.IDGenerator) *BalanceRepository {
	return &BalanceRepository{
		balances: mustCollection[domain.Balance](BalancesCollection, client, retrier, ids, nil),
	}
}

// GetBySubject retrieves the balance of a subject.
func (r *BalanceRepository) GetBySubject(ctx context.Context, subjectID string) (*domain.Balance, error) {
	balance, err := r.balances.Get(ctx, subjectID)
	if err != nil {
		return nil, balanceNotFound(subjectID, err)
	}
	return balance, nil
}

// GetBySubjectTx retrieves the balance of a subject inside a transaction.
func (r *BalanceRepository) GetBySubjectTx(ctx context.Context, tx usecase.TxReader, subjectID string) (*domain.Balance, error) {
	balance, err := r.balances.GetIn(ctx, tx, subjectID)
	if err != nil {
		return nil, balanceNotFound(subjectID, err)
	}
	return balance, nil
}

// SaveTx stages a balance write.
func (r *BalanceRepository) SaveTx(w usecase.TxWriter, balance *domain.Balance) error {
	_, err := r.balances.SaveIn(w, balance)
	return err
}

// ListByContainer returns one page of a container's balances, most
// recently updated first.
func (r *BalanceRepository) ListByContainer(ctx context.Context, containerID string, page domain.PageRequest) (*domain.PageResult[*domain.Balance], error) {
	return r.balances.QueryPage(ctx, Query{
		Filters: []documentdb.Filter{Where(fieldContainerID, documentdb.OpEqual, containerID)},
		OrderBy: []documentdb.Order{Newest(documentdb.FieldUpdateTime)},
	}, page)
}

func balanceNotFound(subjectID string, err error) error {
	if isNotFound(err) {
		return fmt.Errorf("%w: %s: %w", domain.ErrBalanceNotFound, subjectID, err)
	}
	return err
}
