package dto

import (
	"time"

	"github.com/iho/stockledger/internal/domain"
	"github.com/iho/stockledger/internal/usecase"
)

// EntryResponse represents a ledger entry in API responses.
type EntryResponse struct {
	ID           string     `json:"id"`
	ContainerID  string     `json:"containerId,omitempty"`
	SubjectID    string     `json:"subjectId"`
	Kind         string     `json:"kind"`
	Delta        int64      `json:"delta"`
	Reason       string     `json:"reason,omitempty"`
	Actor        string     `json:"actor,omitempty"`
	ReversesID   string     `json:"reversesId,omitempty"`
	ReversedByID string     `json:"reversedById,omitempty"`
	IsReversal   bool       `json:"isReversal"`
	Deleted      bool       `json:"deleted"`
	DeletedAt    *time.Time `json:"deletedAt,omitempty"`
	DeletedBy    string     `json:"deletedBy,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// EntryFromDomain converts a domain entry to a response.
func EntryFromDomain(e *domain.LedgerEntry) *EntryResponse {
	return &EntryResponse{
		ID:           e.ID,
		ContainerID:  e.ContainerID,
		SubjectID:    e.SubjectID,
		Kind:         string(e.Kind),
		Delta:        e.Delta,
		Reason:       e.Reason,
		Actor:        e.Actor,
		ReversesID:   e.ReversesID,
		ReversedByID: e.ReversedByID,
		IsReversal:   e.IsReversal,
		Deleted:      e.Deleted,
		DeletedAt:    e.DeletedAt,
		DeletedBy:    e.DeletedBy,
		CreatedAt:    e.CreatedAt,
		UpdatedAt:    e.UpdatedAt,
	}
}

// BalanceResponse represents a subject's balance in API responses.
type BalanceResponse struct {
	SubjectID   string    `json:"subjectId"`
	ContainerID string    `json:"containerId,omitempty"`
	Quantity    int64     `json:"quantity"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// BalanceFromDomain converts a domain balance to a response.
func BalanceFromDomain(b *domain.Balance) *BalanceResponse {
	return &BalanceResponse{
		SubjectID:   b.SubjectID,
		ContainerID: b.ContainerID,
		Quantity:    b.Quantity,
		UpdatedAt:   b.UpdatedAt,
	}
}

// RetractResponse is returned when an entry is retracted.
type RetractResponse struct {
	Original     *EntryResponse   `json:"original"`
	Compensation *EntryResponse   `json:"compensation"`
	Balance      *BalanceResponse `json:"balance"`
}

// RetractFromResult converts a retraction result to a response.
func RetractFromResult(r *usecase.RetractResult) *RetractResponse {
	return &RetractResponse{
		Original:     EntryFromDomain(r.Original),
		Compensation: EntryFromDomain(r.Compensation),
		Balance:      BalanceFromDomain(r.Balance),
	}
}

// PageResponse wraps one page of results.
type PageResponse[T any] struct {
	Content       []T    `json:"content"`
	Page          int    `json:"page"`
	Size          int    `json:"size"`
	TotalElements int64  `json:"totalElements"`
	HasNext       bool   `json:"hasNext"`
	NextCursor    string `json:"nextCursor,omitempty"`
}

// PageFromDomain converts a page, mapping each element with fn.
func PageFromDomain[A, B any](p *domain.PageResult[A], fn func(A) B) *PageResponse[B] {
	mapped := domain.MapPage(p, fn)
	return &PageResponse[B]{
		Content:       mapped.Content,
		Page:          mapped.Page,
		Size:          mapped.Size,
		TotalElements: mapped.TotalElements,
		HasNext:       mapped.HasNext,
		NextCursor:    mapped.NextCursor,
	}
}

// ReconciliationResponse reports whether a balance matches its entries.
type ReconciliationResponse struct {
	SubjectID          string    `json:"subjectId"`
	RecordedQuantity   int64     `json:"recordedQuantity"`
	CalculatedQuantity int64     `json:"calculatedQuantity"`
	JournalQuantity    int64     `json:"journalQuantity"`
	Difference         int64     `json:"difference"`
	EntriesCounted     int       `json:"entriesCounted"`
	IsReconciled       bool      `json:"isReconciled"`
	LastChecked        time.Time `json:"lastChecked"`
}

// ReconciliationFromResult converts a reconciliation result to a response.
func ReconciliationFromResult(r *usecase.ReconciliationResult) *ReconciliationResponse {
	return &ReconciliationResponse{
		SubjectID:          r.SubjectID,
		RecordedQuantity:   r.RecordedQuantity,
		CalculatedQuantity: r.CalculatedQuantity,
		JournalQuantity:    r.JournalQuantity,
		Difference:         r.Difference,
		EntriesCounted:     r.EntriesCounted,
		IsReconciled:       r.IsReconciled,
		LastChecked:        r.LastChecked,
	}
}

// ErrorResponse represents an error in API responses.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
