package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iho/stockledger/internal/adapter/http/dto"
	"github.com/iho/stockledger/internal/domain"
)

func TestParseIntQuery(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/entries?size=50", nil)
	assert.Equal(t, 50, parseIntQuery(req, "size", 10))

	req = httptest.NewRequest(http.MethodGet, "/entries?size=invalid", nil)
	assert.Equal(t, 10, parseIntQuery(req, "size", 10))

	req = httptest.NewRequest(http.MethodGet, "/entries", nil)
	assert.Equal(t, 25, parseIntQuery(req, "size", 25))
}

func TestParsePage(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/entries?page=2&size=5&cursor=abc", nil)
	assert.Equal(t, domain.PageRequest{Page: 2, Size: 5, Cursor: "abc"}, parsePage(req))

	req = httptest.NewRequest(http.MethodGet, "/entries", nil)
	assert.Equal(t, domain.PageRequest{Size: domain.DefaultPageSize}, parsePage(req))
}

func TestMapDomainError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"entry not found", fmt.Errorf("%w: e1", domain.ErrEntryNotFound), http.StatusNotFound},
		{"balance not found", domain.ErrBalanceNotFound, http.StatusNotFound},
		{"insufficient balance", domain.ErrInsufficientBalance, http.StatusBadRequest},
		{"immutable", domain.ErrImmutableEntry, http.StatusBadRequest},
		{"deleted", domain.ErrEntryDeleted, http.StatusBadRequest},
		{"invalid kind", domain.ErrInvalidKind, http.StatusBadRequest},
		{"invalid page", domain.ErrInvalidPage, http.StatusBadRequest},
		{"unavailable", fmt.Errorf("commit: %w", domain.ErrTemporarilyUnavailable), http.StatusServiceUnavailable},
		{"interrupted", domain.ErrInterrupted, http.StatusServiceUnavailable},
		{"timeout", domain.ErrTransactionTimeout, http.StatusGatewayTimeout},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, mapDomainError(tt.err))
		})
	}
}

func TestWriteDomainError(t *testing.T) {
	rec := httptest.NewRecorder()
	err := fmt.Errorf("%w: current quantity 2, requested change -5", domain.ErrInsufficientBalance)

	writeDomainError(rec, "failed to apply entry", err)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body dto.ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "failed to apply entry", body.Error)
	assert.Equal(t, err.Error(), body.Message)
}
