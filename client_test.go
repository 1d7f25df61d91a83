package godgraph

import (
	"context"
	"testing"

	"github.com/dgraph-io/dgo/v230/protos/api"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"github.com/gogo/protobuf/proto"

	"github.com/istaridigital/godgraph/protos/apiv2"
)

func jwtResponse(t *testing.T, access, refresh string) *api.Response {
	t.Helper()
	data, err := proto.Marshal(&api.Jwt{AccessJwt: access, RefreshJwt: refresh})
	require.NoError(t, err)
	return &api.Response{Json: data}
}

var errTokenExpired = status.Error(codes.Unauthenticated, "Token is expired")

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient(nil)
	require.ErrorIs(t, err, ErrInvalidArgument)

	_, err = NewClient([]Endpoint{{}})
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestLogin_StoresTokensAndAttachesThem(t *testing.T) {
	c, fd, _ := newFakeClient(t)
	fd.loginResults = []rpcResult[*api.Response]{
		{resp: jwtResponse(t, "access-1", "refresh-1")},
	}
	fd.queryResults = []rpcResult[*api.Response]{
		{resp: &api.Response{Txn: &api.TxnContext{StartTs: 1}}},
	}

	require.NoError(t, c.Login(context.Background(), "groot", "password"))
	require.Equal(t, "groot", fd.lastLoginReq.Userid)
	require.Equal(t, "password", fd.lastLoginReq.Password)
	require.EqualValues(t, 0, fd.lastLoginReq.Namespace)

	txn, err := c.NewTxn()
	require.NoError(t, err)
	_, err = txn.Query(context.Background(), "{ q() }")
	require.NoError(t, err)

	require.Equal(t, []string{"access-1"}, fd.lastMetadata.Get("accessjwt"))
}

func TestLoginIntoNamespace(t *testing.T) {
	c, fd, _ := newFakeClient(t)
	fd.loginResults = []rpcResult[*api.Response]{
		{resp: jwtResponse(t, "a", "r")},
	}

	require.NoError(t, c.LoginIntoNamespace(context.Background(), "groot", "password", 7))
	require.EqualValues(t, 7, fd.lastLoginReq.Namespace)
}

func TestLogin_BadCredentials(t *testing.T) {
	c, fd, _ := newFakeClient(t)
	fd.loginResults = []rpcResult[*api.Response]{
		{err: status.Error(codes.Unauthenticated, "invalid username or password")},
	}

	err := c.Login(context.Background(), "groot", "wrong")
	require.ErrorIs(t, err, ErrAuth)
}

func TestLogin_ConnectionErrorKeepsClassification(t *testing.T) {
	c, fd, _ := newFakeClient(t)
	fd.loginResults = []rpcResult[*api.Response]{
		{err: status.Error(codes.Unavailable, "connection refused")},
	}

	err := c.Login(context.Background(), "groot", "password")
	require.True(t, IsConnectionError(err))
	require.NotErrorIs(t, err, ErrAuth)
}

func TestRunAuthed_RefreshesOnceAndRetries(t *testing.T) {
	c, fd, _ := newFakeClient(t)
	fd.loginResults = []rpcResult[*api.Response]{
		{resp: jwtResponse(t, "access-1", "refresh-1")},
		{resp: jwtResponse(t, "access-2", "refresh-2")},
	}
	fd.queryResults = []rpcResult[*api.Response]{
		{err: errTokenExpired},
		{resp: &api.Response{Txn: &api.TxnContext{StartTs: 1}}},
	}

	require.NoError(t, c.Login(context.Background(), "groot", "password"))

	txn, err := c.NewTxn()
	require.NoError(t, err)
	_, err = txn.Query(context.Background(), "{ q() }")
	require.NoError(t, err)

	require.Equal(t, 2, fd.queryCalls)
	require.Equal(t, 2, fd.loginCalls)
	require.Equal(t, "refresh-1", fd.lastLoginReq.RefreshToken)
	// The retry carried the refreshed token.
	require.Equal(t, []string{"access-2"}, fd.lastMetadata.Get("accessjwt"))

	access, refresh, _ := c.creds.Snapshot()
	require.Equal(t, "access-2", access)
	require.Equal(t, "refresh-2", refresh)
}

func TestRunAuthed_SecondExpiryIsAuthFailure(t *testing.T) {
	c, fd, _ := newFakeClient(t)
	fd.loginResults = []rpcResult[*api.Response]{
		{resp: jwtResponse(t, "access-1", "refresh-1")},
		{resp: jwtResponse(t, "access-2", "refresh-2")},
	}
	fd.queryResults = []rpcResult[*api.Response]{
		{err: errTokenExpired},
		{err: errTokenExpired},
	}

	require.NoError(t, c.Login(context.Background(), "groot", "password"))

	txn, err := c.NewTxn()
	require.NoError(t, err)
	_, err = txn.Query(context.Background(), "{ q() }")
	require.ErrorIs(t, err, ErrAuth)

	// Exactly one retry, exactly one refresh.
	require.Equal(t, 2, fd.queryCalls)
	require.Equal(t, 2, fd.loginCalls)
}

func TestRunAuthed_ExpiredRefreshTokenIsAuthFailure(t *testing.T) {
	c, fd, _ := newFakeClient(t)
	fd.loginResults = []rpcResult[*api.Response]{
		{resp: jwtResponse(t, "access-1", "refresh-1")},
		{err: errTokenExpired},
	}
	fd.queryResults = []rpcResult[*api.Response]{
		{err: errTokenExpired},
	}

	require.NoError(t, c.Login(context.Background(), "groot", "password"))

	txn, err := c.NewTxn()
	require.NoError(t, err)
	_, err = txn.Query(context.Background(), "{ q() }")
	require.ErrorIs(t, err, ErrAuth)
	require.Equal(t, 1, fd.queryCalls)
}

func TestRunAuthed_NoLoginPassesThrough(t *testing.T) {
	c, fd, _ := newFakeClient(t)
	fd.queryResults = []rpcResult[*api.Response]{
		{err: errTokenExpired},
	}

	txn, err := c.NewTxn()
	require.NoError(t, err)

	// No login, so no refresh machinery: the error surfaces raw after
	// the auto-discard.
	_, err = txn.Query(context.Background(), "{ q() }")
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrAuth)
	require.Equal(t, 1, fd.queryCalls)
	require.Zero(t, fd.loginCalls)
}

func TestCheckVersion(t *testing.T) {
	c, fd, _ := newFakeClient(t)
	fd.checkResults = []rpcResult[*api.Version]{
		{resp: &api.Version{Tag: "v24.0.0"}},
	}

	tag, err := c.CheckVersion(context.Background())
	require.NoError(t, err)
	require.Equal(t, "v24.0.0", tag)
}

func TestCheckVersion_NoRefreshRetry(t *testing.T) {
	c, fd, _ := newFakeClient(t)
	fd.loginResults = []rpcResult[*api.Response]{
		{resp: jwtResponse(t, "access-1", "refresh-1")},
	}
	fd.checkResults = []rpcResult[*api.Version]{
		{err: errTokenExpired},
	}

	require.NoError(t, c.Login(context.Background(), "groot", "password"))

	_, err := c.CheckVersion(context.Background())
	require.Error(t, err)
	require.Equal(t, 1, fd.checkCalls)
	require.Equal(t, 1, fd.loginCalls)
}

func TestAlterShims(t *testing.T) {
	c, fd, _ := newFakeClient(t)

	cases := []struct {
		name string
		call func() error
		want *api.Operation
	}{
		{"set schema", func() error { return c.SetSchema(context.Background(), "name: string @index(term) .") },
			&api.Operation{Schema: "name: string @index(term) ."}},
		{"drop all", func() error { return c.DropAll(context.Background()) },
			&api.Operation{DropAll: true}},
		{"drop data", func() error { return c.DropData(context.Background()) },
			&api.Operation{DropOp: api.Operation_DATA}},
		{"drop predicate", func() error { return c.DropPredicate(context.Background(), "name") },
			&api.Operation{DropOp: api.Operation_ATTR, DropValue: "name"}},
		{"drop type", func() error { return c.DropType(context.Background(), "Person") },
			&api.Operation{DropOp: api.Operation_TYPE, DropValue: "Person"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fd.alterResults = []rpcResult[*api.Payload]{{resp: &api.Payload{}}}
			require.NoError(t, tc.call())
			require.Equal(t, tc.want.Schema, fd.lastAlterOp.Schema)
			require.Equal(t, tc.want.DropAll, fd.lastAlterOp.DropAll)
			require.Equal(t, tc.want.DropOp, fd.lastAlterOp.DropOp)
			require.Equal(t, tc.want.DropValue, fd.lastAlterOp.DropValue)
		})
	}
}

func TestRunDQL(t *testing.T) {
	c, fd, _ := newFakeClient(t)
	fd.queryResults = []rpcResult[*api.Response]{
		{resp: &api.Response{Json: []byte(`{"q":[{"uid":"0x1"}]}`), Txn: &api.TxnContext{StartTs: 2}}},
	}

	resp, err := c.RunDQL(context.Background(), "{ q(func: has(name)) { uid } }")
	require.NoError(t, err)
	require.JSONEq(t, `{"q":[{"uid":"0x1"}]}`, string(resp.Json))
	// Query only, so the discard stayed local.
	require.Zero(t, fd.commitCalls)
}

func TestAllocate(t *testing.T) {
	c, _, fa := newFakeClient(t)

	cases := []struct {
		name string
		call func(uint64) (IDRange, error)
		kind string
	}{
		{"uids", func(n uint64) (IDRange, error) { return c.AllocateUIDs(context.Background(), n) }, "uid"},
		{"timestamps", func(n uint64) (IDRange, error) { return c.AllocateTimestamps(context.Background(), n) }, "timestamp"},
		{"namespaces", func(n uint64) (IDRange, error) { return c.AllocateNamespaces(context.Background(), n) }, "namespace"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fa.allocateResults = []rpcResult[*apiv2.AllocateIDsResponse]{
				{resp: &apiv2.AllocateIDsResponse{Start: 100, End: 110}},
			}
			got, err := tc.call(10)
			require.NoError(t, err)
			require.Equal(t, IDRange{Start: 100, End: 110}, got)
			require.EqualValues(t, 10, got.End-got.Start)
			require.Equal(t, tc.kind, fa.lastAllocateReq.LeaseKind)
			require.EqualValues(t, 10, fa.lastAllocateReq.HowMany)
		})
	}
}

func TestAllocate_ZeroCount(t *testing.T) {
	c, _, fa := newFakeClient(t)

	_, err := c.AllocateUIDs(context.Background(), 0)
	require.ErrorIs(t, err, ErrInvalidArgument)
	require.Zero(t, fa.allocateCalls)
}

func TestNamespaceAdmin(t *testing.T) {
	c, _, fa := newFakeClient(t)
	fa.createResults = []rpcResult[*apiv2.CreateNamespaceResponse]{
		{resp: &apiv2.CreateNamespaceResponse{Namespace: 3}},
	}
	fa.dropResults = []rpcResult[*apiv2.DropNamespaceResponse]{
		{resp: &apiv2.DropNamespaceResponse{}},
	}
	fa.listResults = []rpcResult[*apiv2.ListNamespacesResponse]{
		{resp: &apiv2.ListNamespacesResponse{Namespaces: []uint64{0, 3}}},
	}

	ns, err := c.CreateNamespace(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 3, ns)

	list, err := c.ListNamespaces(context.Background())
	require.NoError(t, err)
	require.Equal(t, []uint64{0, 3}, list)

	require.NoError(t, c.DropNamespace(context.Background(), 3))
	require.EqualValues(t, 3, fa.lastDropReq.Namespace)
}

func TestAdminWithoutStub(t *testing.T) {
	fd := &fakeDgraph{}
	c, err := NewClient([]Endpoint{{Dgraph: fd}})
	require.NoError(t, err)

	_, err = c.AllocateUIDs(context.Background(), 1)
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestClosedClient(t *testing.T) {
	c, fd, _ := newFakeClient(t)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	_, err := c.NewTxn()
	require.ErrorIs(t, err, ErrClientClosed)
	_, err = c.CheckVersion(context.Background())
	require.ErrorIs(t, err, ErrClientClosed)
	err = c.Login(context.Background(), "groot", "password")
	require.ErrorIs(t, err, ErrClientClosed)
	_, err = c.Alter(context.Background(), &api.Operation{DropAll: true})
	require.ErrorIs(t, err, ErrClientClosed)

	require.Zero(t, fd.queryCalls+fd.loginCalls+fd.alterCalls+fd.checkCalls)
}

func TestWithHeader(t *testing.T) {
	c, fd, _ := newFakeClient(t)
	fd.checkResults = []rpcResult[*api.Version]{
		{resp: &api.Version{Tag: "v24.0.0"}},
	}

	_, err := c.CheckVersion(context.Background(),
		WithHeader("x-request-id", "abc"),
		WithHeader("accessjwt", "forged"))
	require.NoError(t, err)

	require.Equal(t, []string{"abc"}, fd.lastMetadata.Get("x-request-id"))
	require.Empty(t, fd.lastMetadata.Get("accessjwt"))
}

func TestRoundRobinAcrossEndpoints(t *testing.T) {
	fd1 := &fakeDgraph{checkResults: []rpcResult[*api.Version]{{resp: &api.Version{Tag: "one"}}}}
	fd2 := &fakeDgraph{checkResults: []rpcResult[*api.Version]{{resp: &api.Version{Tag: "two"}}}}
	c, err := NewClient([]Endpoint{{Dgraph: fd1}, {Dgraph: fd2}})
	require.NoError(t, err)

	tag, err := c.CheckVersion(context.Background())
	require.NoError(t, err)
	require.Equal(t, "one", tag)

	tag, err = c.CheckVersion(context.Background())
	require.NoError(t, err)
	require.Equal(t, "two", tag)
}
