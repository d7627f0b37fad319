package domain

import (
	"errors"
	"math"
	"testing"
	"time"
)

func TestBalance_ApplyDelta(t *testing.T) {
	tests := []struct {
		name        string
		quantity    int64
		delta       int64
		expected    int64
		expectError bool
	}{
		{
			name:     "credit",
			quantity: 10,
			delta:    5,
			expected: 15,
		},
		{
			name:     "debit to zero",
			quantity: 10,
			delta:    -10,
			expected: 0,
		},
		{
			name:        "debit below zero",
			quantity:    2,
			delta:       -5,
			expected:    2,
			expectError: true,
		},
		{
			name:     "debit less than quantity",
			quantity: 10,
			delta:    -3,
			expected: 7,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &Balance{Quantity: tt.quantity}
			err := b.ApplyDelta(tt.delta)

			if tt.expectError && !errors.Is(err, ErrInsufficientBalance) {
				t.Errorf("expected ErrInsufficientBalance, got %v", err)
			}
			if !tt.expectError && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if b.Quantity != tt.expected {
				t.Errorf("expected quantity %d, got %d", tt.expected, b.Quantity)
			}
		})
	}
}

func TestBalance_InsufficientMessageCarriesQuantity(t *testing.T) {
	b := &Balance{Quantity: 2}
	err := b.ValidateDelta(-5)
	if err == nil {
		t.Fatal("expected error")
	}
	want := "insufficient balance: current quantity 2, requested change -5"
	if err.Error() != want {
		t.Errorf("expected %q, got %q", want, err.Error())
	}
}

func TestBalance_OverflowIsInvalidDelta(t *testing.T) {
	b := &Balance{Quantity: math.MaxInt64 - 1}

	err := b.ApplyDelta(2)

	if !errors.Is(err, ErrInvalidDelta) {
		t.Fatalf("expected ErrInvalidDelta, got %v", err)
	}
	if errors.Is(err, ErrInsufficientBalance) {
		t.Error("overflow must not be reported as insufficient balance")
	}
	if b.Quantity != math.MaxInt64-1 {
		t.Errorf("quantity changed to %d", b.Quantity)
	}
	if err := b.ApplyDelta(1); err != nil || b.Quantity != math.MaxInt64 {
		t.Errorf("expected to reach MaxInt64, got %d, %v", b.Quantity, err)
	}
}

func TestBalance_ValidateContainer(t *testing.T) {
	b := NewBalance("nursery-1", "rose")

	if err := b.ValidateContainer("nursery-1"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := b.ValidateContainer(""); err != nil {
		t.Errorf("empty container should match, got %v", err)
	}
	if err := b.ValidateContainer("nursery-2"); !errors.Is(err, ErrContainerMismatch) {
		t.Errorf("expected ErrContainerMismatch, got %v", err)
	}
}

func TestBalance_Touch(t *testing.T) {
	b := NewBalance("n", "s")
	first := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	second := first.Add(time.Hour)

	b.Touch(first)
	b.Touch(second)

	if !b.CreatedAt.Equal(first) {
		t.Errorf("created time changed: %v", b.CreatedAt)
	}
	if !b.UpdatedAt.Equal(second) {
		t.Errorf("expected updated time %v, got %v", second, b.UpdatedAt)
	}
	if b.ID != "s" {
		t.Errorf("expected balance id to equal subject id, got %s", b.ID)
	}
}
