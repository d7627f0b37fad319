package dto

import (
	"github.com/iho/stockledger/internal/domain"
	"github.com/iho/stockledger/internal/usecase"
)

// ApplyEntryRequest represents a request to record a ledger entry.
type ApplyEntryRequest struct {
	ContainerID string `json:"containerId"`
	SubjectID   string `json:"subjectId"`
	Kind        string `json:"kind"`
	Delta       *int64 `json:"delta"`
	Reason      string `json:"reason,omitempty"`
}

// ToUseCaseInput converts to use case input.
func (r *ApplyEntryRequest) ToUseCaseInput(actor string) usecase.ApplyInput {
	return usecase.ApplyInput{
		ContainerID: r.ContainerID,
		SubjectID:   r.SubjectID,
		Kind:        domain.EntryKind(r.Kind),
		Delta:       r.Delta,
		Reason:      r.Reason,
		Actor:       actor,
	}
}

// UpdateEntryRequest represents a request to revise an entry.
type UpdateEntryRequest struct {
	Kind   string `json:"kind"`
	Delta  *int64 `json:"delta"`
	Reason string `json:"reason,omitempty"`
}

// ToUseCaseInput converts to use case input.
func (r *UpdateEntryRequest) ToUseCaseInput(entryID, actor string) usecase.UpdateInput {
	return usecase.UpdateInput{
		EntryID: entryID,
		Kind:    domain.EntryKind(r.Kind),
		Delta:   r.Delta,
		Reason:  r.Reason,
		Actor:   actor,
	}
}

// ProvisionBalanceRequest represents a request to create a subject's balance.
type ProvisionBalanceRequest struct {
	ContainerID string `json:"containerId"`
}
