package godgraph

import (
	"context"
	"sync"

	"github.com/dgraph-io/dgo/v230/protos/api"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"github.com/istaridigital/godgraph/protos/apiv2"
)

// rpcResult scripts one fake RPC outcome.
type rpcResult[T any] struct {
	resp T
	err  error
}

// fakeDgraph is a scripted api.DgraphClient. Each RPC pops the next
// scripted result and records what it was called with, including the
// outgoing metadata of the attempt.
type fakeDgraph struct {
	mu sync.Mutex

	queryResults  []rpcResult[*api.Response]
	loginResults  []rpcResult[*api.Response]
	commitResults []rpcResult[*api.TxnContext]
	alterResults  []rpcResult[*api.Payload]
	checkResults  []rpcResult[*api.Version]

	queryCalls  int
	loginCalls  int
	commitCalls int
	alterCalls  int
	checkCalls  int

	lastQueryReq  *api.Request
	lastLoginReq  *api.LoginRequest
	lastCommitReq *api.TxnContext
	lastAlterOp   *api.Operation
	lastMetadata  metadata.MD
}

func pop[T any](results *[]rpcResult[T]) rpcResult[T] {
	if len(*results) == 0 {
		var zero rpcResult[T]
		return zero
	}
	r := (*results)[0]
	*results = (*results)[1:]
	return r
}

func (f *fakeDgraph) record(ctx context.Context) {
	md, _ := metadata.FromOutgoingContext(ctx)
	f.lastMetadata = md
}

func (f *fakeDgraph) Login(ctx context.Context, in *api.LoginRequest, _ ...grpc.CallOption) (*api.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loginCalls++
	f.lastLoginReq = in
	f.record(ctx)
	r := pop(&f.loginResults)
	return r.resp, r.err
}

func (f *fakeDgraph) Query(ctx context.Context, in *api.Request, _ ...grpc.CallOption) (*api.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queryCalls++
	f.lastQueryReq = in
	f.record(ctx)
	r := pop(&f.queryResults)
	return r.resp, r.err
}

func (f *fakeDgraph) Alter(ctx context.Context, in *api.Operation, _ ...grpc.CallOption) (*api.Payload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alterCalls++
	f.lastAlterOp = in
	f.record(ctx)
	r := pop(&f.alterResults)
	return r.resp, r.err
}

func (f *fakeDgraph) CommitOrAbort(ctx context.Context, in *api.TxnContext, _ ...grpc.CallOption) (*api.TxnContext, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commitCalls++
	f.lastCommitReq = in
	f.record(ctx)
	r := pop(&f.commitResults)
	return r.resp, r.err
}

func (f *fakeDgraph) CheckVersion(ctx context.Context, _ *api.Check, _ ...grpc.CallOption) (*api.Version, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checkCalls++
	f.record(ctx)
	r := pop(&f.checkResults)
	return r.resp, r.err
}

// fakeAdmin is a scripted apiv2.DgraphClient.
type fakeAdmin struct {
	mu sync.Mutex

	allocateResults []rpcResult[*apiv2.AllocateIDsResponse]
	createResults   []rpcResult[*apiv2.CreateNamespaceResponse]
	dropResults     []rpcResult[*apiv2.DropNamespaceResponse]
	listResults     []rpcResult[*apiv2.ListNamespacesResponse]

	allocateCalls int

	lastAllocateReq *apiv2.AllocateIDsRequest
	lastDropReq     *apiv2.DropNamespaceRequest
}

func (f *fakeAdmin) AllocateIDs(_ context.Context, in *apiv2.AllocateIDsRequest, _ ...grpc.CallOption) (*apiv2.AllocateIDsResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.allocateCalls++
	f.lastAllocateReq = in
	r := pop(&f.allocateResults)
	return r.resp, r.err
}

func (f *fakeAdmin) CreateNamespace(_ context.Context, in *apiv2.CreateNamespaceRequest, _ ...grpc.CallOption) (*apiv2.CreateNamespaceResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := pop(&f.createResults)
	return r.resp, r.err
}

func (f *fakeAdmin) DropNamespace(_ context.Context, in *apiv2.DropNamespaceRequest, _ ...grpc.CallOption) (*apiv2.DropNamespaceResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastDropReq = in
	r := pop(&f.dropResults)
	return r.resp, r.err
}

func (f *fakeAdmin) ListNamespaces(_ context.Context, in *apiv2.ListNamespacesRequest, _ ...grpc.CallOption) (*apiv2.ListNamespacesResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := pop(&f.listResults)
	return r.resp, r.err
}

// newFakeClient wires a client over a single fake endpoint.
func newFakeClient(t interface{ Fatalf(string, ...any) }) (*Client, *fakeDgraph, *fakeAdmin) {
	fd := &fakeDgraph{}
	fa := &fakeAdmin{}
	c, err := NewClient([]Endpoint{{Dgraph: fd, Admin: fa}})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c, fd, fa
}
