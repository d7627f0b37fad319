package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/iho/stockledger/internal/domain"
	"github.com/iho/stockledger/internal/usecase"
)

type ledgerStub struct {
	applyFn       func(ctx context.Context, input usecase.ApplyInput) (*domain.LedgerEntry, error)
	updateFn      func(ctx context.Context, input usecase.UpdateInput) (*domain.LedgerEntry, error)
	retractFn     func(ctx context.Context, input usecase.RetractInput) (*usecase.RetractResult, error)
	getEntryFn    func(ctx context.Context, id string) (*domain.LedgerEntry, error)
	windowFn      func(ctx context.Context, from, to time.Time, page domain.PageRequest) (*domain.PageResult[*domain.LedgerEntry], error)
	getBalanceFn  func(ctx context.Context, subjectID string) (*domain.Balance, error)
	provisionFn   func(ctx context.Context, containerID, subjectID string) (*domain.Balance, error)
	bySubjectFn   func(ctx context.Context, subjectID string, includeDeleted bool, page domain.PageRequest) (*domain.PageResult[*domain.LedgerEntry], error)
	byContainerFn func(ctx context.Context, containerID string, page domain.PageRequest) (*domain.PageResult[*domain.LedgerEntry], error)
	balancesFn    func(ctx context.Context, containerID string, page domain.PageRequest) (*domain.PageResult[*domain.Balance], error)
	reconcileFn   func(ctx context.Context, subjectID string) (*usecase.ReconciliationResult, error)
}

func (s *ledgerStub) Apply(ctx context.Context, input usecase.ApplyInput) (*domain.LedgerEntry, error) {
	return s.applyFn(ctx, input)
}

func (s *ledgerStub) Update(ctx context.Context, input usecase.UpdateInput) (*domain.LedgerEntry, error) {
	return s.updateFn(ctx, input)
}

func (s *ledgerStub) Retract(ctx context.Context, input usecase.RetractInput) (*usecase.RetractResult, error) {
	return s.retractFn(ctx, input)
}

func (s *ledgerStub) GetEntry(ctx context.Context, id string) (*domain.LedgerEntry, error) {
	return s.getEntryFn(ctx, id)
}

func (s *ledgerStub) ListByWindow(ctx context.Context, from, to time.Time, page domain.PageRequest) (*domain.PageResult[*domain.LedgerEntry], error) {
	return s.windowFn(ctx, from, to, page)
}

func (s *ledgerStub) GetBalance(ctx context.Context, subjectID string) (*domain.Balance, error) {
	return s.getBalanceFn(ctx, subjectID)
}

func (s *ledgerStub) ProvisionBalance(ctx context.Context, containerID, subjectID string) (*domain.Balance, error) {
	return s.provisionFn(ctx, containerID, subjectID)
}

func (s *ledgerStub) ListBySubject(ctx context.Context, subjectID string, includeDeleted bool, page domain.PageRequest) (*domain.PageResult[*domain.LedgerEntry], error) {
	return s.bySubjectFn(ctx, subjectID, includeDeleted, page)
}

func (s *ledgerStub) ListByContainer(ctx context.Context, containerID string, page domain.PageRequest) (*domain.PageResult[*domain.LedgerEntry], error) {
	return s.byContainerFn(ctx, containerID, page)
}

func (s *ledgerStub) ListBalancesByContainer(ctx context.Context, containerID string, page domain.PageRequest) (*domain.PageResult[*domain.Balance], error) {
	return s.balancesFn(ctx, containerID, page)
}

func (s *ledgerStub) ReconcileSubject(ctx context.Context, subjectID string) (*usecase.ReconciliationResult, error) {
	return s.reconcileFn(ctx, subjectID)
}

// withURLParam attaches a chi route parameter to req.
func withURLParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}
