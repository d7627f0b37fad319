package domain

import "errors"

var (
	// Ledger validation errors
	ErrInvalidKind            = errors.New("invalid entry kind")
	ErrInvalidDelta           = errors.New("invalid delta")
	ErrCompensationNotAllowed = errors.New("compensation entries are created by the system only")
	ErrImmutableEntry         = errors.New("entry is immutable")
	ErrEntryDeleted           = errors.New("entry already deleted")
	ErrInsufficientBalance    = errors.New("insufficient balance")
	ErrContainerMismatch      = errors.New("container does not own subject")
	ErrMissingSubject         = errors.New("subject id is required")
	ErrReasonTooLong          = errors.New("reason too long")

	// Ledger lookups
	ErrEntryNotFound   = errors.New("entry not found")
	ErrBalanceNotFound = errors.New("balance not found")

	// Document store errors
	ErrDocumentNotFound       = errors.New("document not found")
	ErrInvalidDocument        = errors.New("invalid document")
	ErrTemporarilyUnavailable = errors.New("store temporarily unavailable")
	ErrTransactionTimeout     = errors.New("transaction timed out")
	ErrInterrupted            = errors.New("operation interrupted")
)

// IsValidation reports whether err is a terminal input or state violation.
func IsValidation(err error) bool {
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsNotFound reports whether err names a missing entry, balance or document.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrEntryNotFound) ||
		errors.Is(err, ErrBalanceNotFound) ||
		errors.Is(err, ErrDocumentNotFound)
}

var validationErrors = []error{
	ErrInvalidKind,
	ErrInvalidDelta,
	ErrCompensationNotAllowed,
	ErrImmutableEntry,
	ErrEntryDeleted,
	ErrInsufficientBalance,
	ErrContainerMismatch,
	ErrMissingSubject,
	ErrReasonTooLong,
	ErrInvalidDocument,
	ErrInvalidDocumentID,
	ErrInvalidCollection,
	ErrDocumentTooLarge,
	ErrBatchTooLarge,
	ErrInvalidPage,
}
