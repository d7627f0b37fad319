package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/iho/stockledger/internal/adapter/http/dto"
	"github.com/iho/stockledger/internal/domain"
	"github.com/iho/stockledger/internal/usecase"
)

// EntryService defines the behavior needed by EntryHandler.
type EntryService interface {
	Apply(ctx context.Context, input usecase.ApplyInput) (*domain.LedgerEntry, error)
	Update(ctx context.Context, input usecase.UpdateInput) (*domain.LedgerEntry, error)
	Retract(ctx context.Context, input usecase.RetractInput) (*usecase.RetractResult, error)
	GetEntry(ctx context.Context, id string) (*domain.LedgerEntry, error)
	ListByWindow(ctx context.Context, from, to time.Time, page domain.PageRequest) (*domain.PageResult[*domain.LedgerEntry], error)
}

// EntryHandler handles ledger entry HTTP requests.
type EntryHandler struct {
	entries EntryService
}

// NewEntryHandler creates a new EntryHandler.
func NewEntryHandler(entries EntryService) *EntryHandler {
	return &EntryHandler{entries: entries}
}

// Create records a new entry.
func (h *EntryHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req dto.ApplyEntryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	entry, err := h.entries.Apply(r.Context(), req.ToUseCaseInput(actor(r)))
	if err != nil {
		writeDomainError(w, "failed to apply entry", err)
		return
	}

	writeJSON(w, http.StatusCreated, dto.EntryFromDomain(entry))
}

// Get retrieves an entry by ID.
func (h *EntryHandler) Get(w http.ResponseWriter, r *http.Request) {
	entry, err := h.entries.GetEntry(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, "failed to get entry", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.EntryFromDomain(entry))
}

// Update revises an entry.
func (h *EntryHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req dto.UpdateEntryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	entry, err := h.entries.Update(r.Context(), req.ToUseCaseInput(chi.URLParam(r, "id"), actor(r)))
	if err != nil {
		writeDomainError(w, "failed to update entry", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.EntryFromDomain(entry))
}

// Retract soft-deletes an entry and returns its compensation.
func (h *EntryHandler) Retract(w http.ResponseWriter, r *http.Request) {
	result, err := h.entries.Retract(r.Context(), usecase.RetractInput{
		EntryID: chi.URLParam(r, "id"),
		Actor:   actor(r),
	})
	if err != nil {
		writeDomainError(w, "failed to retract entry", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.RetractFromResult(result))
}

// ListByWindow lists live entries created in [from, to).
func (h *EntryHandler) ListByWindow(w http.ResponseWriter, r *http.Request) {
	from, err := time.Parse(time.RFC3339, r.URL.Query().Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid 'from' format (use RFC3339)", err.Error())
		return
	}
	to, err := time.Parse(time.RFC3339, r.URL.Query().Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid 'to' format (use RFC3339)", err.Error())
		return
	}

	page, err := h.entries.ListByWindow(r.Context(), from, to, parsePage(r))
	if err != nil {
		writeDomainError(w, "failed to list entries", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.PageFromDomain(page, dto.EntryFromDomain))
}
