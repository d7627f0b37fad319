package documentdb

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// PostgreSQL error codes with a dedicated mapping.
const (
	pgErrSerializationFailure = "40001"
	pgErrDeadlock             = "40P01"
	pgErrUniqueViolation      = "23505"
	pgErrQueryCanceled        = "57014"
	pgErrAdminShutdown        = "57P01"
	pgErrCrashShutdown        = "57P02"
	pgErrCannotConnectNow     = "57P03"
)

// statusError carries a gRPC status while keeping the driver error reachable
// through errors.As.
type statusError struct {
	st  *status.Status
	err error
}

func (e *statusError) Error() string              { return e.st.Message() }
func (e *statusError) GRPCStatus() *status.Status { return e.st }
func (e *statusError) Unwrap() error              { return e.err }

func withCode(code codes.Code, err error) error {
	return &statusError{st: status.New(code, err.Error()), err: err}
}

// toStatus maps driver and context errors onto gRPC codes.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return withCode(codes.DeadlineExceeded, err)
	case errors.Is(err, context.Canceled):
		return withCode(codes.Canceled, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return withCode(pgCode(pgErr.Code), err)
	}

	if pgconn.Timeout(err) {
		return withCode(codes.DeadlineExceeded, err)
	}

	var connErr *pgconn.ConnectError
	var netErr net.Error
	if errors.As(err, &connErr) || errors.As(err, &netErr) || pgconn.SafeToRetry(err) {
		return withCode(codes.Unavailable, err)
	}

	return withCode(codes.Internal, err)
}

func pgCode(code string) codes.Code {
	switch code {
	case pgErrSerializationFailure, pgErrDeadlock, pgErrUniqueViolation:
		return codes.Aborted
	case pgErrQueryCanceled:
		return codes.DeadlineExceeded
	case pgErrAdminShutdown, pgErrCrashShutdown, pgErrCannotConnectNow:
		return codes.Unavailable
	}

	switch {
	case strings.HasPrefix(code, "08"):
		return codes.Unavailable
	case strings.HasPrefix(code, "53"):
		return codes.ResourceExhausted
	case strings.HasPrefix(code, "22"), strings.HasPrefix(code, "23"):
		return codes.InvalidArgument
	default:
		return codes.Internal
	}
}
