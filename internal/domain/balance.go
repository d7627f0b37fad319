package domain

import (
	"fmt"
	"time"
)

// Balance is the stock quantity on hand for one subject.
// The document id is the subject id, so there is at most one per subject.
type Balance struct {
	ID          string    `json:"id"`
	ContainerID string    `json:"containerId"`
	SubjectID   string    `json:"subjectId"`
	Quantity    int64     `json:"quantity"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// NewBalance returns an unsaved zero balance for subjectID.
func NewBalance(containerID, subjectID string) *Balance {
	return &Balance{
		ID:          subjectID,
		ContainerID: containerID,
		SubjectID:   subjectID,
	}
}

// DocumentID implements the document constraint used by the store gateway.
func (b *Balance) DocumentID() string { return b.ID }

// SetDocumentID assigns the document identifier.
func (b *Balance) SetDocumentID(id string) { b.ID = id }

// Touch stamps creation time once and update time on every save.
func (b *Balance) Touch(now time.Time) {
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	b.UpdatedAt = now
}

// ValidateDelta checks that applying delta keeps the quantity non-negative
// and representable.
func (b *Balance) ValidateDelta(delta int64) error {
	next, ok := addInt64(b.Quantity, delta)
	if !ok {
		return fmt.Errorf("%w: quantity %d plus %d overflows", ErrInvalidDelta, b.Quantity, delta)
	}
	if next < 0 {
		return fmt.Errorf("%w: current quantity %d, requested change %d",
			ErrInsufficientBalance, b.Quantity, delta)
	}
	return nil
}

// ApplyDelta validates and applies delta.
func (b *Balance) ApplyDelta(delta int64) error {
	if err := b.ValidateDelta(delta); err != nil {
		return err
	}
	b.Quantity += delta
	return nil
}

// ValidateContainer rejects entries that name a different container than the balance.
// An empty container id matches anything.
func (b *Balance) ValidateContainer(containerID string) error {
	if containerID == "" || b.ContainerID == "" || containerID == b.ContainerID {
		return nil
	}
	return fmt.Errorf("%w: subject %s belongs to %s, not %s",
		ErrContainerMismatch, b.SubjectID, b.ContainerID, containerID)
}

// addInt64 returns a+b and false when the sum overflows.
func addInt64(a, b int64) (int64, bool) {
	sum := a + b
	if (b > 0 && sum < a) || (b < 0 && sum > a) {
		return 0, false
	}
	return sum, true
}

// subInt64 returns a-b and false when the difference overflows.
func subInt64(a, b int64) (int64, bool) {
	diff := a - b
	if (b < 0 && diff < a) || (b > 0 && diff > a) {
		return 0, false
	}
	return diff, true
}
