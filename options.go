package godgraph

import (
	"context"
	"strings"
	"time"

	"github.com/dgraph-io/dgo/v230/protos/api"

	"github.com/istaridigital/godgraph/logging"
)

// ClientOption configures a Client at construction time.
type ClientOption func(*Client)

// WithLogger routes the client's internal logging (token refreshes,
// swallowed discard failures) to l. The default logger drops
// everything.
func WithLogger(l logging.Logger) ClientOption {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// TxnOption configures a new transaction.
type TxnOption func(*txnConfig)

type txnConfig struct {
	readOnly   bool
	bestEffort bool
}

// ReadOnly marks the transaction read-only: queries see a consistent
// snapshot, mutations and server-side commits are rejected.
func ReadOnly() TxnOption {
	return func(cfg *txnConfig) { cfg.readOnly = true }
}

// BestEffort asks the server to skip linearized-read confirmation for
// lower latency at the cost of possibly stale data. Only valid together
// with ReadOnly.
func BestEffort() TxnOption {
	return func(cfg *txnConfig) { cfg.bestEffort = true }
}

// CallOption adjusts a single RPC-issuing operation.
type CallOption func(*callSettings)

type callSettings struct {
	timeout        time.Duration
	headers        map[string]string
	trackConflicts bool
	respFormat     api.Request_RespFormat
	respFormatSet  bool
}

func newCallSettings(opts []CallOption) *callSettings {
	s := &callSettings{trackConflicts: true}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// apply layers the per-call timeout, if any, onto ctx. The returned
// cancel func is never nil.
func (s *callSettings) apply(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout > 0 {
		return context.WithTimeout(ctx, s.timeout)
	}
	return context.WithCancel(ctx)
}

// WithTimeout bounds the call. On expiry the call fails with a
// connection/timeout error; nothing is retried except the single
// token-refresh retry of the auth wrapper.
func WithTimeout(d time.Duration) CallOption {
	return func(s *callSettings) { s.timeout = d }
}

// WithHeader attaches an arbitrary metadata key/value pair to the call.
// Passthrough only; the auth header cannot be overridden this way.
func WithHeader(key, value string) CallOption {
	return func(s *callSettings) {
		if strings.EqualFold(key, authMetadataKey) {
			return
		}
		if s.headers == nil {
			s.headers = make(map[string]string)
		}
		s.headers[key] = value
	}
}

// WithRespFormat overrides the response payload format of a query,
// e.g. api.Request_RDF on a plain Query call.
func WithRespFormat(format api.Request_RespFormat) CallOption {
	return func(s *callSettings) {
		s.respFormat = format
		s.respFormatSet = true
	}
}

// WithoutConflictTracking skips merging this call's conflict keys and
// predicates into the transaction, trading conflict detection for fewer
// spurious aborts. The start timestamp and hash are still maintained.
func WithoutConflictTracking() CallOption {
	return func(s *callSettings) { s.trackConflicts = false }
}
