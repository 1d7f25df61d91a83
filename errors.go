package godgraph

import (
	"context"
	"errors"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/istaridigital/godgraph/internal/engine"
)

// Sentinel errors of the client. Match with errors.Is.
var (
	// ErrAborted reports a server-detected write-write conflict on
	// commit. The transaction is unusable; discard it and retry with a
	// fresh one (RunInTransaction does this automatically).
	ErrAborted = errors.New("transaction has been aborted: please retry")

	// ErrFinished reports an operation on a committed or discarded
	// transaction.
	ErrFinished = engine.ErrFinished

	// ErrReadOnly reports a mutation attempted on a read-only
	// transaction.
	ErrReadOnly = engine.ErrReadOnly

	// ErrBestEffort reports a best-effort transaction requested without
	// read-only mode.
	ErrBestEffort = engine.ErrBestEffort

	// ErrStartTsMismatch reports a server response carrying a different
	// start timestamp than the one latched by the transaction. It
	// indicates a server-side problem and should never occur.
	ErrStartTsMismatch = engine.ErrStartTsMismatch

	// ErrClientClosed reports use of a closed client.
	ErrClientClosed = errors.New("client is closed")

	// ErrInvalidArgument reports malformed caller input, detected
	// before any RPC is issued.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrAuth reports failed authentication: bad login credentials, or
	// an access token that stayed expired after a refresh.
	ErrAuth = errors.New("authentication failed")
)

// IsAborted reports whether err is a transaction-aborted condition,
// either the local sentinel or the server's gRPC signal.
func IsAborted(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrAborted) {
		return true
	}
	return status.Code(err) == codes.Aborted ||
		strings.Contains(err.Error(), "Transaction has been aborted")
}

// IsConnectionError reports whether err is a transport-level failure:
// the endpoint was unreachable or the call timed out. The engine never
// retries these; callers decide (see RunInTransaction for the
// abort-only retry helper).
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded:
		return true
	}
	return false
}

// isJWTExpired matches the server's expired-access-token signal. The
// server reports it as a plain message, so this is a substring check,
// same as the other client implementations.
func isJWTExpired(err error) bool {
	return err != nil && strings.Contains(err.Error(), "Token is expired")
}

// isCanceled reports caller-initiated cancellation. Cancellation
// propagates verbatim and must leave a transaction in its prior state.
func isCanceled(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, context.Canceled) || status.Code(err) == codes.Canceled
}
