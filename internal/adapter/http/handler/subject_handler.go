package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/iho/stockledger/internal/adapter/http/dto"
	"github.com/iho/stockledger/internal/domain"
	"github.com/iho/stockledger/internal/usecase"
)

// SubjectService defines the per-subject behavior needed by SubjectHandler.
type SubjectService interface {
	GetBalance(ctx context.Context, subjectID string) (*domain.Balance, error)
	ProvisionBalance(ctx context.Context, containerID, subjectID string) (*domain.Balance, error)
	ListBySubject(ctx context.Context, subjectID string, includeDeleted bool, page domain.PageRequest) (*domain.PageResult[*domain.LedgerEntry], error)
}

// Reconciler checks a subject's balance against its entries.
type Reconciler interface {
	ReconcileSubject(ctx context.Context, subjectID string) (*usecase.ReconciliationResult, error)
}

// SubjectHandler handles balance and per-subject listing requests.
type SubjectHandler struct {
	subjects   SubjectService
	reconciler Reconciler
}

// NewSubjectHandler creates a new SubjectHandler.
func NewSubjectHandler(subjects SubjectService, reconciler Reconciler) *SubjectHandler {
	return &SubjectHandler{subjects: subjects, reconciler: reconciler}
}

// GetBalance returns the subject's current balance.
func (h *SubjectHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	balance, err := h.subjects.GetBalance(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, "failed to get balance", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.BalanceFromDomain(balance))
}

// ProvisionBalance creates the subject's balance at zero if it has none.
// The body is optional.
func (h *SubjectHandler) ProvisionBalance(w http.ResponseWriter, r *http.Request) {
	var req dto.ProvisionBalanceRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	balance, err := h.subjects.ProvisionBalance(r.Context(), req.ContainerID, chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, "failed to provision balance", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.BalanceFromDomain(balance))
}

// ListEntries lists the subject's entries, newest first.
func (h *SubjectHandler) ListEntries(w http.ResponseWriter, r *http.Request) {
	page, err := h.subjects.ListBySubject(r.Context(), chi.URLParam(r, "id"), parseBoolQuery(r, "includeDeleted"), parsePage(r))
	if err != nil {
		writeDomainError(w, "failed to list entries", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.PageFromDomain(page, dto.EntryFromDomain))
}

// Reconcile compares the subject's balance with its entries.
func (h *SubjectHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	result, err := h.reconciler.ReconcileSubject(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, "failed to reconcile subject", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ReconciliationFromResult(result))
}
