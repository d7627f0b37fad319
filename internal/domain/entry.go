package domain

import (
	"fmt"
	"strings"
	"time"
)

// EntryKind classifies what a ledger entry does to stock.
type EntryKind string

const (
	EntryKindSell         EntryKind = "SELL"
	EntryKindReceive      EntryKind = "RECEIVE"
	EntryKindPlant        EntryKind = "PLANT"
	EntryKindAdjust       EntryKind = "ADJUST"
	EntryKindCompensation EntryKind = "COMPENSATION"
)

// MaxReasonLength bounds the free-text reason on an entry.
const MaxReasonLength = 500

// ParseEntryKind parses a kind case-insensitively.
func ParseEntryKind(s string) (EntryKind, error) {
	k := EntryKind(strings.ToUpper(strings.TrimSpace(s)))
	switch k {
	case EntryKindSell, EntryKindReceive, EntryKindPlant, EntryKindAdjust, EntryKindCompensation:
		return k, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidKind, s)
	}
}

// LedgerEntry is one inventory-affecting event for a subject.
type LedgerEntry struct {
	ID           string     `json:"id"`
	ContainerID  string     `json:"containerId"`
	SubjectID    string     `json:"subjectId"`
	Delta        int64      `json:"delta"`
	Kind         EntryKind  `json:"kind"`
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

// DocumentID implements the document constraint used by the store gateway.
func (e *LedgerEntry) DocumentID() string { return e.ID }

// SetDocumentID assigns the document identifier.
func (e *LedgerEntry) SetDocumentID(id string) { e.ID = id }

// Touch stamps creation time once and update time on every save.
func (e *LedgerEntry) Touch(now time.Time) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.UpdatedAt = now
}

// NormalizeDelta validates a caller-supplied delta for kind and returns
// the signed delta that will be applied to the balance.
// SELL always debits, RECEIVE and PLANT always credit, ADJUST keeps its sign.
func NormalizeDelta(kind EntryKind, raw *int64) (int64, error) {
	if raw == nil {
		return 0, fmt.Errorf("%w: delta is required", ErrInvalidDelta)
	}
	d := *raw

	switch kind {
	case EntryKindSell:
		if d <= 0 {
			return 0, fmt.Errorf("%w: %s quantity must be positive, got %d", ErrInvalidDelta, kind, d)
		}
		return -d, nil
	case EntryKindReceive, EntryKindPlant:
		if d <= 0 {
			return 0, fmt.Errorf("%w: %s quantity must be positive, got %d", ErrInvalidDelta, kind, d)
		}
		return d, nil
	case EntryKindAdjust:
		if d == 0 {
			return 0, fmt.Errorf("%w: adjustment must be non-zero", ErrInvalidDelta)
		}
		return d, nil
	case EntryKindCompensation:
		return 0, ErrCompensationNotAllowed
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}
}

// ValidateReason checks the reason length.
func ValidateReason(reason string) error {
	if len(reason) > MaxReasonLength {
		return fmt.Errorf("%w: reason exceeds %d characters", ErrReasonTooLong, MaxReasonLength)
	}
	return nil
}

// IsCompensation reports whether the entry was synthesized by a retraction.
func (e *LedgerEntry) IsCompensation() bool {
	return e.Kind == EntryKindCompensation
}

// ValidateMutable returns an error if the entry can no longer be updated or retracted.
func (e *LedgerEntry) ValidateMutable() error {
	if e.IsCompensation() {
		return fmt.Errorf("%w: entry %s is a compensation", ErrImmutableEntry, e.ID)
	}
	if e.Deleted {
		return fmt.Errorf("%w: entry %s", ErrEntryDeleted, e.ID)
	}
	return nil
}

// Revise replaces kind, delta and reason. The caller supplies the
// already-normalized delta and must re-balance with the returned change.
// The entry is left untouched when the change is not representable.
func (e *LedgerEntry) Revise(kind EntryKind, delta int64, reason string) (int64, error) {
	change, ok := subInt64(delta, e.Delta)
	if !ok {
		return 0, fmt.Errorf("%w: changing %d to %d overflows", ErrInvalidDelta, e.Delta, delta)
	}
	e.Kind = kind
	e.Delta = delta
	e.Reason = reason
	return change, nil
}

// Retract soft-deletes the entry and builds its compensation. The
// compensation carries the exact negation of the entry's delta.
func (e *LedgerEntry) Retract(compensationID, actor string, at time.Time) *LedgerEntry {
	deletedAt := at
	e.Deleted = true
	e.DeletedAt = &deletedAt
	e.DeletedBy = actor
	e.ReversedByID = compensationID

	return &LedgerEntry{
		ID:          compensationID,
		ContainerID: e.ContainerID,
		SubjectID:   e.SubjectID,
		Delta:       -e.Delta,
		Kind:        EntryKindCompensation,
		Reason:      fmt.Sprintf("compensation for entry %s", e.ID),
		Actor:       actor,
		ReversesID:  e.ID,
		IsReversal:  true,
	}
}

// EntryFilter selects ledger entries for listing. Zero fields are ignored.
// From is inclusive and To exclusive, both on creation time.
type EntryFilter struct {
	SubjectID      string
	ContainerID    string
	From           *time.Time
	To             *time.Time
	IncludeDeleted bool
}
