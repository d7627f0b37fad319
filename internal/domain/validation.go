package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Validation errors
var (
	ErrInvalidDocumentID = errors.New("invalid document id")
	ErrInvalidCollection = errors.New("invalid collection name")
	ErrDocumentTooLarge  = errors.New("document size exceeds limit")
	ErrBatchTooLarge     = errors.New("batch exceeds operation limit")
	ErrInvalidPage       = errors.New("invalid page request")
)

// Store limits
const (
	MaxDocumentIDLength   = 1500
	MaxCollectionLength   = 1500
	MaxDocumentSize       = 1_000_000
	MaxBatchOperations    = 500
	MaxQueryResults       = 1000
	numberFieldSize       = 8
	boolOrNullFieldSize   = 1
	defaultFieldValueSize = 16
)

// ValidateDocumentID validates a document identifier.
func ValidateDocumentID(id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: id cannot be empty", ErrInvalidDocumentID)
	}
	if len(id) > MaxDocumentIDLength {
		return fmt.Errorf("%w: id exceeds %d bytes", ErrInvalidDocumentID, MaxDocumentIDLength)
	}
	if strings.Contains(id, "/") {
		return fmt.Errorf("%w: id cannot contain '/'", ErrInvalidDocumentID)
	}
	return nil
}

// ValidateCollectionName validates a collection name.
func ValidateCollectionName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: name cannot be empty", ErrInvalidCollection)
	}
	if len(name) > MaxCollectionLength {
		return fmt.Errorf("%w: name exceeds %d bytes", ErrInvalidCollection, MaxCollectionLength)
	}
	return nil
}

// ValidateBatchSize rejects batches over the store's per-commit ceiling.
func ValidateBatchSize(n int) error {
	if n > MaxBatchOperations {
		return fmt.Errorf("%w: %d operations, limit is %d", ErrBatchTooLarge, n, MaxBatchOperations)
	}
	return nil
}

// ValidateDocumentSize estimates the stored size of fields and rejects
// documents over MaxDocumentSize.
func ValidateDocumentSize(fields map[string]any) error {
	size := EstimateSize(fields)
	if size > MaxDocumentSize {
		return fmt.Errorf("%w: estimated %d bytes exceeds limit of %d bytes", ErrDocumentTooLarge, size, MaxDocumentSize)
	}
	return nil
}

// EstimateSize approximates the stored size of a decoded JSON document:
// field names and strings count their length, numbers 8 bytes, bools and
// nulls 1 byte. Nested maps and arrays are walked.
func EstimateSize(fields map[string]any) int {
	size := 0
	for k, v := range fields {
		size += len(k)
		size += estimateValue(v)
	}
	return size
}

func estimateValue(v any) int {
	switch val := v.(type) {
	case nil, bool:
		return boolOrNullFieldSize
	case string:
		return len(val)
	case float64, float32, int, int32, int64, uint, uint32, uint64:
		return numberFieldSize
	case map[string]any:
		return EstimateSize(val)
	case []any:
		size := 0
		for _, item := range val {
			size += estimateValue(item)
		}
		return size
	default:
		return defaultFieldValueSize
	}
}
