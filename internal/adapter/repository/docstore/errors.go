package docstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/iho/stockledger/internal/domain"
)

// StoreError is a document store failure. It unwraps to both the domain
// class (domain.ErrDocumentNotFound, domain.ErrInvalidDocument,
// domain.ErrTemporarilyUnavailable, domain.ErrInterrupted) and the
// underlying cause, so errors.Is and status.Code both work on it.
type StoreError struct {
	Op         string
	Collection string
	Attempts   int
	Code       codes.Code

	kind error
	Err  error
}

func (e *StoreError) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	if e.Collection != "" {
		b.WriteString(" " + e.Collection)
	}
	if e.kind != nil {
		b.WriteString(": " + e.kind.Error())
	}
	if e.Attempts > 1 {
		fmt.Fprintf(&b, " after %d attempts", e.Attempts)
	}
	if e.Err != nil {
		b.WriteString(": " + e.Err.Error())
	}
	return b.String()
}

func (e *StoreError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.kind != nil {
		errs = append(errs, e.kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// Kind returns the domain class of the failure, or nil if it has none.
func (e *StoreError) Kind() error { return e.kind }

// codeOf extracts a gRPC code. ok is false for errors that carry no
// store semantics, such as domain errors.
func codeOf(err error) (codes.Code, bool) {
	if s, ok := status.FromError(err); ok {
		return s.Code(), true
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded, true
	case errors.Is(err, context.Canceled):
		return codes.Canceled, true
	}
	return codes.Unknown, false
}

// isTransient reports whether err is a store failure that may succeed
// on another attempt, ignoring who caused a cancellation.
func isTransient(err error) bool {
	c, ok := codeOf(err)
	if !ok {
		return false
	}
	switch c {
	case codes.DeadlineExceeded, codes.Unavailable, codes.ResourceExhausted, codes.Aborted, codes.Canceled:
		return true
	}
	return false
}

// isRetryable is isTransient, except that a cancellation only counts
// when the caller's ctx is still live.
func isRetryable(ctx context.Context, err error) bool {
	if !isTransient(err) {
		return false
	}
	if c, _ := codeOf(err); c == codes.Canceled {
		return ctx.Err() == nil
	}
	return true
}

func kindFor(c codes.Code) error {
	switch c {
	case codes.NotFound:
		return domain.ErrDocumentNotFound
	case codes.InvalidArgument, codes.FailedPrecondition, codes.OutOfRange, codes.AlreadyExists:
		return domain.ErrInvalidDocument
	case codes.DeadlineExceeded, codes.Unavailable, codes.ResourceExhausted, codes.Aborted:
		return domain.ErrTemporarilyUnavailable
	case codes.Canceled:
		return domain.ErrInterrupted
	default:
		return nil
	}
}

// normalize converts a raw store error into a *StoreError. Domain errors
// and errors that are already normalized are returned unchanged.
func normalize(op, collection string, attempts int, err error) error {
	if err == nil {
		return nil
	}
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}
	c, ok := codeOf(err)
	if !ok {
		return err
	}
	return &StoreError{
		Op:         op,
		Collection: collection,
		Attempts:   attempts,
		Code:       c,
		kind:       kindFor(c),
		Err:        err,
	}
}

// normalizeInTx is normalize for reads inside a transaction. Transient
// errors stay raw so the coordinator can retry the whole unit.
func normalizeInTx(op, collection string, err error) error {
	if isTransient(err) {
		return err
	}
	return normalize(op, collection, 1, err)
}

// exhausted reports a transient failure that outlived its retries.
func exhausted(op, collection string, attempts int, cause error) error {
	c, _ := codeOf(cause)
	return &StoreError{
		Op:         op,
		Collection: collection,
		Attempts:   attempts,
		Code:       c,
		kind:       domain.ErrTemporarilyUnavailable,
		Err:        cause,
	}
}

func interrupted(op, collection string, attempts int, cause error) error {
	c, _ := codeOf(cause)
	return &StoreError{
		Op:         op,
		Collection: collection,
		Attempts:   attempts,
		Code:       c,
		kind:       domain.ErrInterrupted,
		Err:        cause,
	}
}
