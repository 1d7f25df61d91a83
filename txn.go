package godgraph

import (
	"context"
	"fmt"

	"github.com/dgraph-io/dgo/v230/protos/api"
	"github.com/google/uuid"

	"github.com/istaridigital/godgraph/internal/engine"
	"github.com/istaridigital/godgraph/internal/pool"
	"github.com/istaridigital/godgraph/logging"
)

func newTxnID() string { return uuid.NewString() }

// Txn is one optimistic transaction: a consistent snapshot pinned by
// the start timestamp of its first request, plus the conflict keys and
// predicates its mutations touched. Commit succeeds only when no
// concurrent transaction committed a conflicting write first.
//
// A Txn pins one endpoint for its whole life. It is meant for a single
// goroutine; run independent work in independent transactions.
type Txn struct {
	client   *Client
	endpoint *pool.Endpoint
	core     *engine.Core
	log      logging.Logger
}

// ReadOnly reports whether the transaction was opened read-only.
func (t *Txn) ReadOnly() bool { return t.core.ReadOnly() }

// BestEffort reports whether the transaction was opened best-effort.
func (t *Txn) BestEffort() bool { return t.core.BestEffort() }

// StartTs returns the snapshot timestamp, or 0 before the first
// request.
func (t *Txn) StartTs() uint64 { return t.core.StartTs() }

// CommitTs returns the commit timestamp, or 0 unless the transaction
// committed server-side.
func (t *Txn) CommitTs() uint64 { return t.core.CommitTs() }

// Keys returns the conflict keys accumulated so far, sorted and
// deduplicated.
func (t *Txn) Keys() []string { return t.core.Keys() }

// Preds returns the predicates accumulated so far, sorted and
// deduplicated.
func (t *Txn) Preds() []string { return t.core.Preds() }

// Query runs a read within the transaction's snapshot; the response
// payload is JSON.
func (t *Txn) Query(ctx context.Context, q string, opts ...CallOption) (*api.Response, error) {
	return t.QueryWithVars(ctx, q, nil, opts...)
}

// QueryWithVars is Query with query variables.
func (t *Txn) QueryWithVars(ctx context.Context, q string, vars map[string]string, opts ...CallOption) (*api.Response, error) {
	return t.Do(ctx, &api.Request{
		Query:      q,
		Vars:       vars,
		RespFormat: api.Request_JSON,
	}, opts...)
}

// QueryRDF is Query with an RDF response payload.
func (t *Txn) QueryRDF(ctx context.Context, q string, opts ...CallOption) (*api.Response, error) {
	return t.QueryRDFWithVars(ctx, q, nil, opts...)
}

// QueryRDFWithVars is QueryWithVars with an RDF response payload.
func (t *Txn) QueryRDFWithVars(ctx context.Context, q string, vars map[string]string, opts ...CallOption) (*api.Response, error) {
	return t.Do(ctx, &api.Request{
		Query:      q,
		Vars:       vars,
		RespFormat: api.Request_RDF,
	}, opts...)
}

// Mutate applies one mutation. With mu.CommitNow the server commits in
// the same round-trip and the transaction finishes; without it the
// write stays pending until Commit.
func (t *Txn) Mutate(ctx context.Context, mu *api.Mutation, opts ...CallOption) (*api.Response, error) {
	return t.Do(ctx, &api.Request{
		Mutations: []*api.Mutation{mu},
		CommitNow: mu.CommitNow,
	}, opts...)
}

// Do runs a combined query-and-mutation request (an upsert when both
// are present). Everything Query and Mutate do funnels through here.
func (t *Txn) Do(ctx context.Context, req *api.Request, opts ...CallOption) (*api.Response, error) {
	if err := t.core.BeginRequest(req); err != nil {
		return nil, err
	}
	s := newCallSettings(opts)
	if s.respFormatSet {
		req.RespFormat = s.respFormat
	}

	var resp *api.Response
	err := t.client.runAuthed(ctx, true, func(ctx context.Context) error {
		ctx, cancel := s.apply(ctx)
		defer cancel()
		r, err := t.endpoint.Dgraph.Query(t.client.annotate(ctx, s.headers), req)
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		if isCanceled(err) {
			// Caller cancellation: the transaction keeps its state and
			// the caller may retry the same call.
			return nil, err
		}
		// Any other request failure poisons the transaction; free the
		// server's lock state right away rather than waiting for the
		// caller's deferred Discard.
		if derr := t.Discard(context.WithoutCancel(ctx)); derr != nil {
			t.log.Warn(ctx, "discard after failed request", "err", derr)
		}
		if IsAborted(err) {
			return nil, ErrAborted
		}
		return nil, err
	}

	if err := t.core.CompleteRequest(req, resp.Txn, s.trackConflicts); err != nil {
		return nil, err
	}
	return resp, nil
}

// Commit makes the transaction's mutations durable and visible, and
// returns the commit timestamp. Read-only transactions and transactions
// that never mutated commit locally and return 0.
//
// ErrAborted means a conflicting transaction won; the transaction stays
// Active so the caller's own Discard still runs, but no further
// operations can salvage it.
func (t *Txn) Commit(ctx context.Context, opts ...CallOption) (uint64, error) {
	proceed, tctx, err := t.core.BeginCommit()
	if err != nil {
		return 0, err
	}
	if !proceed {
		return 0, nil
	}
	s := newCallSettings(opts)

	var out *api.TxnContext
	err = t.client.runAuthed(ctx, true, func(ctx context.Context) error {
		ctx, cancel := s.apply(ctx)
		defer cancel()
		o, err := t.endpoint.Dgraph.CommitOrAbort(t.client.annotate(ctx, s.headers), tctx)
		if err != nil {
			return err
		}
		out = o
		return nil
	})
	if err != nil {
		if IsAborted(err) {
			return 0, ErrAborted
		}
		return 0, fmt.Errorf("commit: %w", err)
	}
	if out.Aborted {
		return 0, ErrAborted
	}

	t.core.CompleteCommit(out)
	t.log.Debug(ctx, "committed", "start_ts", t.core.StartTs(), "commit_ts", out.CommitTs)
	return out.CommitTs, nil
}

// Discard abandons the transaction. Safe to defer unconditionally: it
// is a no-op on a finished transaction, and it always returns nil (the
// server garbage-collects abandoned transactions, so a failed abort
// notification is only logged).
func (t *Txn) Discard(ctx context.Context, opts ...CallOption) error {
	notify, tctx := t.core.BeginDiscard()
	if !notify {
		return nil
	}
	s := newCallSettings(opts)

	err := t.client.runAuthed(ctx, true, func(ctx context.Context) error {
		ctx, cancel := s.apply(ctx)
		defer cancel()
		_, err := t.endpoint.Dgraph.CommitOrAbort(t.client.annotate(ctx, s.headers), tctx)
		return err
	})
	if err != nil {
		t.log.Warn(ctx, "abort notification failed", "err", err)
	}
	return nil
}
