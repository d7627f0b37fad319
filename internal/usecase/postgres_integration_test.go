package usecase_test

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iho/stockledger/internal/domain"
	"github.com/iho/stockledger/internal/infrastructure/documentdb"
	"github.com/iho/stockledger/internal/infrastructure/postgres"
	"github.com/iho/stockledger/internal/usecase"
)

func postgresLedger(t *testing.T) *ledger {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" || testing.Short() {
		t.Skip("TEST_DATABASE_URL not set")
	}

	require.NoError(t, postgres.RunMigrations(url, "../../migrations", zerolog.Nop()))
	pool, err := postgres.NewPool(context.Background(), url, 20, 2)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	return newLedgerOn(t, documentdb.NewPostgres(pool), nil)
}

func TestPostgres_ConcurrentSellsNeverOverdraw(t *testing.T) {
	l := postgresLedger(t)
	ctx := context.Background()
	subject := "rose-" + ulid.Make().String()

	_, err := l.uc.Apply(ctx, usecase.ApplyInput{
		ContainerID: "bed-1", SubjectID: subject, Kind: domain.EntryKindReceive, Delta: qty(100),
	})
	require.NoError(t, err)

	const sellers = 30
	var (
		wg        sync.WaitGroup
		succeeded atomic.Int64
	)
	wg.Add(sellers)
	for range sellers {
		go func() {
			defer wg.Done()
			_, err := l.uc.Apply(ctx, usecase.ApplyInput{
				ContainerID: "bed-1", SubjectID: subject, Kind: domain.EntryKindSell, Delta: qty(5),
			})
			if err == nil {
				succeeded.Add(1)
			}
		}()
	}
	wg.Wait()

	// 100 / 5 caps the successful sells at 20.
	assert.LessOrEqual(t, succeeded.Load(), int64(20))
	assert.Positive(t, succeeded.Load())

	balance, err := l.uc.GetBalance(ctx, subject)
	require.NoError(t, err)
	assert.Equal(t, 100-5*succeeded.Load(), balance.Quantity)
	assert.GreaterOrEqual(t, balance.Quantity, int64(0))

	result, err := l.recon.ReconcileSubject(ctx, subject)
	require.NoError(t, err)
	assert.True(t, result.IsReconciled)
}

func TestPostgres_RetractRestoresBalance(t *testing.T) {
	l := postgresLedger(t)
	ctx := context.Background()
	subject := "fern-" + ulid.Make().String()

	_, err := l.uc.Apply(ctx, usecase.ApplyInput{
		ContainerID: "bed-2", SubjectID: subject, Kind: domain.EntryKindReceive, Delta: qty(8),
	})
	require.NoError(t, err)
	sell, err := l.uc.Apply(ctx, usecase.ApplyInput{
		ContainerID: "bed-2", SubjectID: subject, Kind: domain.EntryKindSell, Delta: qty(3),
	})
	require.NoError(t, err)

	_, err = l.uc.Retract(ctx, usecase.RetractInput{EntryID: sell.ID})
	require.NoError(t, err)

	balance, err := l.uc.GetBalance(ctx, subject)
	require.NoError(t, err)
	assert.Equal(t, int64(8), balance.Quantity)

	result, err := l.recon.ReconcileSubject(ctx, subject)
	require.NoError(t, err)
	assert.Equal(t, 3, result.EntriesCounted)
	assert.True(t, result.IsReconciled)
}
