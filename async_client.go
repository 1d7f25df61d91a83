package godgraph

import (
	"context"

	"github.com/dgraph-io/dgo/v230/protos/api"
)

// AsyncClient mirrors Client with future-returning methods. Both
// surfaces share the same client state: logins, token refreshes and
// Close are visible across them, and every method makes exactly the
// decisions its blocking counterpart makes.
type AsyncClient struct {
	c *Client
}

// Async returns the asynchronous view of the client.
func (c *Client) Async() *AsyncClient { return &AsyncClient{c: c} }

// Sync returns the blocking view of the client.
func (a *AsyncClient) Sync() *Client { return a.c }

func (a *AsyncClient) Login(ctx context.Context, userid, password string, opts ...CallOption) *Future[struct{}] {
	return async(func() (struct{}, error) {
		return struct{}{}, a.c.Login(ctx, userid, password, opts...)
	})
}

func (a *AsyncClient) LoginIntoNamespace(ctx context.Context, userid, password string, namespace uint64, opts ...CallOption) *Future[struct{}] {
	return async(func() (struct{}, error) {
		return struct{}{}, a.c.LoginIntoNamespace(ctx, userid, password, namespace, opts...)
	})
}

func (a *AsyncClient) Alter(ctx context.Context, op *api.Operation, opts ...CallOption) *Future[*api.Payload] {
	return async(func() (*api.Payload, error) {
		return a.c.Alter(ctx, op, opts...)
	})
}

func (a *AsyncClient) CheckVersion(ctx context.Context, opts ...CallOption) *Future[string] {
	return async(func() (string, error) {
		return a.c.CheckVersion(ctx, opts...)
	})
}

func (a *AsyncClient) RunDQL(ctx context.Context, query string, opts ...CallOption) *Future[*api.Response] {
	return a.RunDQLWithVars(ctx, query, nil, opts...)
}

func (a *AsyncClient) RunDQLWithVars(ctx context.Context, query string, vars map[string]string, opts ...CallOption) *Future[*api.Response] {
	return async(func() (*api.Response, error) {
		return a.c.RunDQLWithVars(ctx, query, vars, opts...)
	})
}

func (a *AsyncClient) AllocateUIDs(ctx context.Context, howMany uint64, opts ...CallOption) *Future[IDRange] {
	return async(func() (IDRange, error) {
		return a.c.AllocateUIDs(ctx, howMany, opts...)
	})
}

func (a *AsyncClient) AllocateTimestamps(ctx context.Context, howMany uint64, opts ...CallOption) *Future[IDRange] {
	return async(func() (IDRange, error) {
		return a.c.AllocateTimestamps(ctx, howMany, opts...)
	})
}

func (a *AsyncClient) AllocateNamespaces(ctx context.Context, howMany uint64, opts ...CallOption) *Future[IDRange] {
	return async(func() (IDRange, error) {
		return a.c.AllocateNamespaces(ctx, howMany, opts...)
	})
}

func (a *AsyncClient) CreateNamespace(ctx context.Context, opts ...CallOption) *Future[uint64] {
	return async(func() (uint64, error) {
		return a.c.CreateNamespace(ctx, opts...)
	})
}

func (a *AsyncClient) DropNamespace(ctx context.Context, namespace uint64, opts ...CallOption) *Future[struct{}] {
	return async(func() (struct{}, error) {
		return struct{}{}, a.c.DropNamespace(ctx, namespace, opts...)
	})
}

func (a *AsyncClient) ListNamespaces(ctx context.Context, opts ...CallOption) *Future[[]uint64] {
	return async(func() ([]uint64, error) {
		return a.c.ListNamespaces(ctx, opts...)
	})
}

// NewTxn starts an asynchronous transaction. Construction itself is
// local and synchronous; only the RPC-issuing methods return futures.
func (a *AsyncClient) NewTxn(opts ...TxnOption) (*AsyncTxn, error) {
	txn, err := a.c.NewTxn(opts...)
	if err != nil {
		return nil, err
	}
	return &AsyncTxn{t: txn}, nil
}

// WithTxn is the asynchronous form of Client.WithTxn. fn receives the
// blocking transaction surface; only the overall outcome is a future.
func (a *AsyncClient) WithTxn(ctx context.Context, fn TxnFunc, opts ...TxnOption) *Future[struct{}] {
	return async(func() (struct{}, error) {
		return struct{}{}, a.c.WithTxn(ctx, fn, opts...)
	})
}

// RunInTransaction is the asynchronous form of the package-level
// RunInTransaction.
func (a *AsyncClient) RunInTransaction(ctx context.Context, fn TxnFunc, opts ...RetryOption) *Future[struct{}] {
	return async(func() (struct{}, error) {
		return struct{}{}, RunInTransaction(ctx, a.c, fn, opts...)
	})
}

// Close is shared with the blocking surface.
func (a *AsyncClient) Close() error { return a.c.Close() }
