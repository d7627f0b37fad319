package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/iho/stockledger/internal/domain"
)

// ReconciliationUseCase checks balances against the entries that produced them.
type ReconciliationUseCase struct {
	entryRepo   EntryRepository
	balanceRepo BalanceRepository
}

// NewReconciliationUseCase creates a new reconciliation use case
func NewReconciliationUseCase(entryRepo EntryRepository, balanceRepo BalanceRepository) *ReconciliationUseCase {
	return &ReconciliationUseCase{
		entryRepo:   entryRepo,
		balanceRepo: balanceRepo,
	}
}

// ReconciliationResult represents the result of a reconciliation check.
// CalculatedQuantity is the sum over live entries other than
// compensations; JournalQuantity sums every entry ever written, where
// each compensation cancels the entry it retracted. Both must match the
// recorded quantity.
type ReconciliationResult struct {
	SubjectID          string
	RecordedQuantity   int64
	CalculatedQuantity int64
	JournalQuantity    int64
	Difference         int64
	EntriesCounted     int
	IsReconciled       bool
	LastChecked        time.Time
}

// ReconcileSubject replays every entry of a subject and compares the
// result with its balance. A subject without a balance reconciles
// against zero.
func (uc *ReconciliationUseCase) ReconcileSubject(ctx context.Context, subjectID string) (*ReconciliationResult, error) {
	if strings.TrimSpace(subjectID) == "" {
		return nil, domain.ErrMissingSubject
	}

	var recorded int64
	balance, err := uc.balanceRepo.GetBySubject(ctx, subjectID)
	switch {
	case err == nil:
		recorded = balance.Quantity
	case !domain.IsNotFound(err):
		return nil, err
	}

	var (
		live, journal int64
		counted       int
	)
	filter := domain.EntryFilter{SubjectID: subjectID, IncludeDeleted: true}
	page := domain.PageRequest{Size: domain.MaxPageSize}
	for {
		result, err := uc.entryRepo.List(ctx, filter, page)
		if err != nil {
			return nil, fmt.Errorf("failed to list entries of %s: %w", subjectID, err)
		}
		for _, e := range result.Content {
			journal += e.Delta
			if !e.Deleted && !e.IsCompensation() {
				live += e.Delta
			}
			counted++
		}
		if !result.HasNext || result.NextCursor == "" {
			break
		}
		page.Cursor = result.NextCursor
	}

	return &ReconciliationResult{
		SubjectID:          subjectID,
		RecordedQuantity:   recorded,
		CalculatedQuantity: live,
		JournalQuantity:    journal,
		Difference:         recorded - live,
		EntriesCounted:     counted,
		IsReconciled:       recorded == live && journal == live,
		LastChecked:        time.Now().UTC(),
	}, nil
}
