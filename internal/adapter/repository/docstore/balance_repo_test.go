package docstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iho/stockledger/internal/domain"
	"github.com/iho/stockledger/internal/infrastructure/documentdb"
	"github.com/iho/stockledger/internal/usecase"
)

func TestBalanceRepositoryRoundTrip(t *testing.T) {
	client := documentdb.NewMemory()
	repo := NewBalanceRepository(client, newTestRetrier(nil), &sequenceIDs{})
	tm := newTestTxManager(client, time.Second)
	ctx := context.Background()

	_, err := repo.GetBySubject(ctx, "rose")
	assert.ErrorIs(t, err, domain.ErrBalanceNotFound)

	err = tm.RunInTransaction(ctx, func(ctx context.Context, r usecase.TxReader) (usecase.WritePhase, error) {
		b, err := repo.GetBySubjectTx(ctx, r, "rose")
		if domain.IsNotFound(err) {
			b, err = domain.NewBalance("n1", "rose"), nil
		}
		if err != nil {
			return nil, err
		}
		return func(w usecase.TxWriter) error {
			if err := b.ApplyDelta(7); err != nil {
				return err
			}
			return repo.SaveTx(w, b)
		}, nil
	})
	require.NoError(t, err)

	got, err := repo.GetBySubject(ctx, "rose")
	require.NoError(t, err)
	assert.Equal(t, "rose", got.ID)
	assert.Equal(t, int64(7), got.Quantity)
	assert.Equal(t, "n1", got.ContainerID)
}

func TestBalanceRepositoryListByContainer(t *testing.T) {
	client := documentdb.NewMemory()
	repo := NewBalanceRepository(client, newTestRetrier(nil), &sequenceIDs{})
	tm := newTestTxManager(client, time.Second)
	ctx := context.Background()

	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	for i, b := range []*domain.Balance{
		domain.NewBalance("n1", "rose"),
		domain.NewBalance("n2", "fern"),
		domain.NewBalance("n1", "tulip"),
	} {
		at := base.Add(time.Duration(i) * time.Minute)
		repo.balances.now = func() time.Time { return at }
		err := tm.RunInTransaction(ctx, func(context.Context, usecase.TxReader) (usecase.WritePhase, error) {
			return func(w usecase.TxWriter) error { return repo.SaveTx(w, b) }, nil
		})
		require.NoError(t, err)
	}

	page, err := repo.ListByContainer(ctx, "n1", domain.PageRequest{Size: 10})
	require.NoError(t, err)
	require.Len(t, page.Content, 2)
	assert.Equal(t, "tulip", page.Content[0].SubjectID)
	assert.Equal(t, "rose", page.Content[1].SubjectID)
	assert.False(t, page.HasNext)
}
