package godgraph

import (
	"context"

	"github.com/dgraph-io/dgo/v230/protos/api"
)

// AsyncTxn mirrors Txn with future-returning methods. It wraps the same
// state machine, so the ordering rules are unchanged: the caller must
// not start a new operation on the transaction before the previous
// future resolved.
type AsyncTxn struct {
	t *Txn
}

// Sync returns the blocking view of the transaction.
func (t *AsyncTxn) Sync() *Txn { return t.t }

func (t *AsyncTxn) ReadOnly() bool   { return t.t.ReadOnly() }
func (t *AsyncTxn) BestEffort() bool { return t.t.BestEffort() }
func (t *AsyncTxn) StartTs() uint64  { return t.t.StartTs() }
func (t *AsyncTxn) CommitTs() uint64 { return t.t.CommitTs() }
func (t *AsyncTxn) Keys() []string   { return t.t.Keys() }
func (t *AsyncTxn) Preds() []string  { return t.t.Preds() }

func (t *AsyncTxn) Query(ctx context.Context, q string, opts ...CallOption) *Future[*api.Response] {
	return async(func() (*api.Response, error) {
		return t.t.Query(ctx, q, opts...)
	})
}

func (t *AsyncTxn) QueryWithVars(ctx context.Context, q string, vars map[string]string, opts ...CallOption) *Future[*api.Response] {
	return async(func() (*api.Response, error) {
		return t.t.QueryWithVars(ctx, q, vars, opts...)
	})
}

func (t *AsyncTxn) QueryRDF(ctx context.Context, q string, opts ...CallOption) *Future[*api.Response] {
	return async(func() (*api.Response, error) {
		return t.t.QueryRDF(ctx, q, opts...)
	})
}

func (t *AsyncTxn) QueryRDFWithVars(ctx context.Context, q string, vars map[string]string, opts ...CallOption) *Future[*api.Response] {
	return async(func() (*api.Response, error) {
		return t.t.QueryRDFWithVars(ctx, q, vars, opts...)
	})
}

func (t *AsyncTxn) Mutate(ctx context.Context, mu *api.Mutation, opts ...CallOption) *Future[*api.Response] {
	return async(func() (*api.Response, error) {
		return t.t.Mutate(ctx, mu, opts...)
	})
}

func (t *AsyncTxn) Do(ctx context.Context, req *api.Request, opts ...CallOption) *Future[*api.Response] {
	return async(func() (*api.Response, error) {
		return t.t.Do(ctx, req, opts...)
	})
}

func (t *AsyncTxn) Commit(ctx context.Context, opts ...CallOption) *Future[uint64] {
	return async(func() (uint64, error) {
		return t.t.Commit(ctx, opts...)
	})
}

func (t *AsyncTxn) Discard(ctx context.Context, opts ...CallOption) *Future[struct{}] {
	return async(func() (struct{}, error) {
		return struct{}{}, t.t.Discard(ctx, opts...)
	})
}
