package domain

import (
	"encoding/json"
	"time"
)

// AuditLog records a committed ledger mutation.
type AuditLog struct {
	ID           string      `json:"id"`
	Actor        string      `json:"actor,omitempty"` // Who performed the action
	Action       AuditAction `json:"action"`
	ResourceType string      `json:"resourceType"` // entry, balance
	ResourceID   string      `json:"resourceId"`
	SubjectID    string      `json:"subjectId,omitempty"`
	Delta        int64       `json:"delta"`
	RequestID    string      `json:"requestId,omitempty"`
	AfterState   JSON        `json:"afterState,omitempty"`
	Status       AuditStatus `json:"status"`
	CreatedAt    time.Time   `json:"createdAt"`
	UpdatedAt    time.Time   `json:"updatedAt"`
}

// DocumentID implements the document constraint used by the store gateway.
func (a *AuditLog) DocumentID() string { return a.ID }

// SetDocumentID assigns the document identifier.
func (a *AuditLog) SetDocumentID(id string) { a.ID = id }

// Touch stamps creation time once and update time on every save.
func (a *AuditLog) Touch(now time.Time) {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now
}

// JSON is a type alias for JSON data
type JSON map[string]any

// AuditAction represents different types of auditable actions
type AuditAction string

const (
	AuditActionEntryApply       AuditAction = "entry.apply"
	AuditActionEntryUpdate      AuditAction = "entry.update"
	AuditActionEntryRetract     AuditAction = "entry.retract"
	AuditActionBalanceProvision AuditAction = "balance.provision"
)

// AuditStatus represents the status of an audited action
type AuditStatus string

const (
	AuditStatusSuccess AuditStatus = "success"
	AuditStatusFailure AuditStatus = "failure"
)

// MarshalState converts a domain object to JSON for audit logging
func MarshalState(v any) JSON {
	if v == nil {
		return nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return JSON{"error": "failed to marshal state"}
	}

	var result JSON
	if err := json.Unmarshal(data, &result); err != nil {
		return JSON{"error": "failed to unmarshal state"}
	}

	return result
}
