package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/iho/stockledger/internal/adapter/http/dto"
	"github.com/iho/stockledger/internal/domain"
)

// ContainerService defines the behavior needed by ContainerHandler.
type ContainerService interface {
	ListByContainer(ctx context.Context, containerID string, page domain.PageRequest) (*domain.PageResult[*domain.LedgerEntry], error)
	ListBalancesByContainer(ctx context.Context, containerID string, page domain.PageRequest) (*domain.PageResult[*domain.Balance], error)
}

// ContainerHandler handles per-container listings.
type ContainerHandler struct {
	containers ContainerService
}

// NewContainerHandler creates a new ContainerHandler.
func NewContainerHandler(containers ContainerService) *ContainerHandler {
	return &ContainerHandler{containers: containers}
}

// ListEntries lists the container's live entries.
func (h *ContainerHandler) ListEntries(w http.ResponseWriter, r *http.Request) {
	page, err := h.containers.ListByContainer(r.Context(), chi.URLParam(r, "id"), parsePage(r))
	if err != nil {
		writeDomainError(w, "failed to list entries", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.PageFromDomain(page, dto.EntryFromDomain))
}

// ListBalances lists the container's balances.
func (h *ContainerHandler) ListBalances(w http.ResponseWriter, r *http.Request) {
	page, err := h.containers.ListBalancesByContainer(r.Context(), chi.URLParam(r, "id"), parsePage(r))
	if err != nil {
		writeDomainError(w, "failed to list balances", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.PageFromDomain(page, dto.BalanceFromDomain))
}
