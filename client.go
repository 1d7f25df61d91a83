package godgraph

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/dgo/v230/protos/api"
	"google.golang.org/grpc/metadata"
	"github.com/gogo/protobuf/proto"

	"github.com/istaridigital/godgraph/internal/creds"
	"github.com/istaridigital/godgraph/internal/engine"
	"github.com/istaridigital/godgraph/internal/pool"
	"github.com/istaridigital/godgraph/logging"
	"github.com/istaridigital/godgraph/protos/apiv2"
)

// authMetadataKey is the metadata key carrying the access token. The
// server looks it up case-insensitively.
const authMetadataKey = "accessjwt"

// Endpoint is one callable backend: the core service stub, the admin
// service stub, and an optional closer owning the underlying conn.
// Open and Dial build endpoints from gRPC conns; tests may supply their
// own stubs.
type Endpoint struct {
	Dgraph api.DgraphClient
	Admin  apiv2.DgraphClient
	Closer io.Closer
}

// Client is the entry point to a Dgraph cluster: it owns the endpoint
// pool and the shared credential state, exposes the administrative
// surface, and spawns transactions.
//
// A Client is safe for concurrent use. Individual transactions are not;
// see Txn.
type Client struct {
	pool   *pool.Pool
	creds  *creds.Store
	log    logging.Logger
	closed atomic.Bool
}

// NewClient builds a Client over pre-constructed endpoints (one or
// more backends of the same cluster). Most callers want Open or Dial
// instead.
func NewClient(endpoints []Endpoint, opts ...ClientOption) (*Client, error) {
	converted := make([]*pool.Endpoint, 0, len(endpoints))
	for _, ep := range endpoints {
		if ep.Dgraph == nil {
			return nil, fmt.Errorf("%w: endpoint without a service stub", ErrInvalidArgument)
		}
		converted = append(converted, &pool.Endpoint{Dgraph: ep.Dgraph, Admin: ep.Admin, Closer: ep.Closer})
	}
	p, err := pool.New(converted...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	c := &Client{
		pool:  p,
		creds: &creds.Store{},
		log:   logging.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Close releases all endpoint resources. Idempotent; any later use of
// the client fails with ErrClientClosed.
func (c *Client) Close() error {
	c.closed.Store(true)
	return c.pool.Close()
}

// annotate builds the outgoing metadata for one call attempt: the
// current access token (if any) plus caller-supplied headers. It is
// called inside each attempt so a retry after refresh picks up the new
// token.
func (c *Client) annotate(ctx context.Context, headers map[string]string) context.Context {
	md := metadata.MD{}
	if access, _, _ := c.creds.Snapshot(); access != "" {
		md.Set(authMetadataKey, access)
	}
	for k, v := range headers {
		md.Append(k, v)
	}
	if len(md) == 0 {
		return ctx
	}
	return metadata.NewOutgoingContext(ctx, md)
}

// runAuthed applies the token-refresh-and-retry policy around op, which
// performs exactly one RPC attempt per invocation:
//
//  1. Without login requirements, or before any login, op runs once and
//     its outcome propagates unchanged.
//  2. Otherwise, if op fails with the expired-token signal, the client
//     refreshes the token pair (single-flight across goroutines) and
//     retries op exactly once. A second expired-token failure surfaces
//     as ErrAuth; no further refresh is attempted.
//  3. Every other failure propagates on the first attempt.
func (c *Client) runAuthed(ctx context.Context, requiresLogin bool, op func(ctx context.Context) error) error {
	if c.closed.Load() {
		return ErrClientClosed
	}
	if !requiresLogin || !c.creds.HasAccessToken() {
		return op(ctx)
	}

	if c.creds.AccessLooksExpired(time.Now()) {
		// The exp claim already passed; refresh before bothering the
		// server. Failures fall through to the reactive path.
		_, _, gen := c.creds.Snapshot()
		if err := c.refreshLogin(ctx, gen); err != nil {
			c.log.Debug(ctx, "proactive token refresh failed", "err", err)
		}
	}

	_, _, gen := c.creds.Snapshot()
	err := op(ctx)
	if err == nil || !isJWTExpired(err) {
		return err
	}

	c.log.Debug(ctx, "access token expired, refreshing")
	if rerr := c.refreshLogin(ctx, gen); rerr != nil {
		if isJWTExpired(rerr) {
			return fmt.Errorf("%w: refresh token expired: %v", ErrAuth, rerr)
		}
		return rerr
	}
	err = op(ctx)
	if err != nil && isJWTExpired(err) {
		return fmt.Errorf("%w: token still expired after refresh", ErrAuth)
	}
	return err
}

// refreshLogin performs the refresh-token login round-trip and installs
// the new pair. seenGen makes it single-flight: when another goroutine
// already replaced the pair, the round-trip is skipped.
func (c *Client) refreshLogin(ctx context.Context, seenGen uint64) error {
	return c.creds.Refresh(ctx, seenGen, func(ctx context.Context, refreshToken string) (string, string, error) {
		resp, err := c.pool.Next().Dgraph.Login(c.annotate(ctx, nil), &api.LoginRequest{
			RefreshToken: refreshToken,
		})
		if err != nil {
			return "", "", err
		}
		return parseJwt(resp)
	})
}

func parseJwt(resp *api.Response) (access, refresh string, err error) {
	var jwt api.Jwt
	if err := proto.Unmarshal(resp.Json, &jwt); err != nil {
		return "", "", fmt.Errorf("unmarshalling jwt response: %w", err)
	}
	if jwt.AccessJwt == "" {
		return "", "", fmt.Errorf("%w: login response did not contain an access jwt", ErrAuth)
	}
	return jwt.AccessJwt, jwt.RefreshJwt, nil
}

// Login authenticates against the default namespace and stores the
// returned token pair for all subsequent calls and transactions.
func (c *Client) Login(ctx context.Context, userid, password string, opts ...CallOption) error {
	return c.LoginIntoNamespace(ctx, userid, password, 0, opts...)
}

// LoginIntoNamespace authenticates into the given namespace. Bad
// credentials surface as ErrAuth; transport failures keep their
// connection-error classification.
func (c *Client) LoginIntoNamespace(ctx context.Context, userid, password string, namespace uint64, opts ...CallOption) error {
	if c.closed.Load() {
		return ErrClientClosed
	}
	s := newCallSettings(opts)
	ctx, cancel := s.apply(ctx)
	defer cancel()

	resp, err := c.pool.Next().Dgraph.Login(c.annotate(ctx, s.headers), &api.LoginRequest{
		Userid:    userid,
		Password:  password,
		Namespace: namespace,
	})
	if err != nil {
		if IsConnectionError(err) || isCanceled(err) {
			return fmt.Errorf("login: %w", err)
		}
		return fmt.Errorf("%w: %v", ErrAuth, err)
	}
	access, refresh, err := parseJwt(resp)
	if err != nil {
		return err
	}
	c.creds.Replace(access, refresh, namespace)
	c.log.Debug(ctx, "logged in", "namespace", namespace)
	return nil
}

// Alter applies a schema modification or drop operation.
func (c *Client) Alter(ctx context.Context, op *api.Operation, opts ...CallOption) (*api.Payload, error) {
	s := newCallSettings(opts)
	var payload *api.Payload
	err := c.runAuthed(ctx, true, func(ctx context.Context) error {
		ctx, cancel := s.apply(ctx)
		defer cancel()
		p, err := c.pool.Next().Dgraph.Alter(c.annotate(ctx, s.headers), op)
		if err != nil {
			return err
		}
		payload = p
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("alter: %w", err)
	}
	return payload, nil
}

// SetSchema applies the given schema text.
func (c *Client) SetSchema(ctx context.Context, schema string, opts ...CallOption) error {
	_, err := c.Alter(ctx, &api.Operation{Schema: schema}, opts...)
	return err
}

// DropAll drops all data and schema.
func (c *Client) DropAll(ctx context.Context, opts ...CallOption) error {
	_, err := c.Alter(ctx, &api.Operation{DropAll: true}, opts...)
	return err
}

// DropData drops all data, keeping the schema.
func (c *Client) DropData(ctx context.Context, opts ...CallOption) error {
	_, err := c.Alter(ctx, &api.Operation{DropOp: api.Operation_DATA}, opts...)
	return err
}

// DropPredicate drops one predicate and its data.
func (c *Client) DropPredicate(ctx context.Context, name string, opts ...CallOption) error {
	_, err := c.Alter(ctx, &api.Operation{DropOp: api.Operation_ATTR, DropValue: name}, opts...)
	return err
}

// DropType drops a type definition (data is untouched).
func (c *Client) DropType(ctx context.Context, name string, opts ...CallOption) error {
	_, err := c.Alter(ctx, &api.Operation{DropOp: api.Operation_TYPE, DropValue: name}, opts...)
	return err
}

// CheckVersion probes the server version. It is the one unauthenticated
// call: no token refresh, failures are connection errors.
func (c *Client) CheckVersion(ctx context.Context, opts ...CallOption) (string, error) {
	if c.closed.Load() {
		return "", ErrClientClosed
	}
	s := newCallSettings(opts)
	ctx, cancel := s.apply(ctx)
	defer cancel()

	v, err := c.pool.Next().Dgraph.CheckVersion(c.annotate(ctx, s.headers), &api.Check{})
	if err != nil {
		return "", fmt.Errorf("check version: %w", err)
	}
	return v.Tag, nil
}

// RunDQL executes a one-shot query outside any caller-visible
// transaction.
func (c *Client) RunDQL(ctx context.Context, query string, opts ...CallOption) (*api.Response, error) {
	return c.RunDQLWithVars(ctx, query, nil, opts...)
}

// RunDQLWithVars is RunDQL with query variables. Internally it runs a
// short-lived transaction that is discarded right after the response;
// a query-only transaction holds no server resources, so the discard is
// local.
func (c *Client) RunDQLWithVars(ctx context.Context, query string, vars map[string]string, opts ...CallOption) (*api.Response, error) {
	txn, err := c.NewTxn()
	if err != nil {
		return nil, err
	}
	defer func() { _ = txn.Discard(context.WithoutCancel(ctx)) }()
	return txn.QueryWithVars(ctx, query, vars, opts...)
}

// LeaseKind selects what AllocateIDs hands out.
type LeaseKind string

const (
	LeaseUID       LeaseKind = "uid"
	LeaseTimestamp LeaseKind = "timestamp"
	LeaseNamespace LeaseKind = "namespace"
)

// IDRange is a half-open allocation [Start, End).
type IDRange struct {
	Start uint64
	End   uint64
}

// AllocateUIDs reserves howMany node UIDs cluster-wide.
func (c *Client) AllocateUIDs(ctx context.Context, howMany uint64, opts ...CallOption) (IDRange, error) {
	return c.allocateIDs(ctx, LeaseUID, howMany, opts...)
}

// AllocateTimestamps reserves howMany logical timestamps.
func (c *Client) AllocateTimestamps(ctx context.Context, howMany uint64, opts ...CallOption) (IDRange, error) {
	return c.allocateIDs(ctx, LeaseTimestamp, howMany, opts...)
}

// AllocateNamespaces reserves howMany namespace ids.
func (c *Client) AllocateNamespaces(ctx context.Context, howMany uint64, opts ...CallOption) (IDRange, error) {
	return c.allocateIDs(ctx, LeaseNamespace, howMany, opts...)
}

func (c *Client) allocateIDs(ctx context.Context, kind LeaseKind, howMany uint64, opts ...CallOption) (IDRange, error) {
	if howMany == 0 {
		return IDRange{}, fmt.Errorf("%w: allocation count must be positive", ErrInvalidArgument)
	}
	s := newCallSettings(opts)
	var out IDRange
	err := c.runAuthed(ctx, true, func(ctx context.Context) error {
		ctx, cancel := s.apply(ctx)
		defer cancel()
		admin, err := c.admin()
		if err != nil {
			return err
		}
		resp, err := admin.AllocateIDs(c.annotate(ctx, s.headers), &apiv2.AllocateIDsRequest{
			HowMany:   howMany,
			LeaseKind: string(kind),
		})
		if err != nil {
			return err
		}
		out = IDRange{Start: resp.Start, End: resp.End}
		return nil
	})
	if err != nil {
		return IDRange{}, fmt.Errorf("allocate %s: %w", kind, err)
	}
	return out, nil
}

// CreateNamespace creates a fresh namespace and returns its id.
func (c *Client) CreateNamespace(ctx context.Context, opts ...CallOption) (uint64, error) {
	s := newCallSettings(opts)
	var ns uint64
	err := c.runAuthed(ctx, true, func(ctx context.Context) error {
		ctx, cancel := s.apply(ctx)
		defer cancel()
		admin, err := c.admin()
		if err != nil {
			return err
		}
		resp, err := admin.CreateNamespace(c.annotate(ctx, s.headers), &apiv2.CreateNamespaceRequest{})
		if err != nil {
			return err
		}
		ns = resp.Namespace
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("create namespace: %w", err)
	}
	return ns, nil
}

// DropNamespace deletes the namespace and everything in it.
func (c *Client) DropNamespace(ctx context.Context, namespace uint64, opts ...CallOption) error {
	s := newCallSettings(opts)
	err := c.runAuthed(ctx, true, func(ctx context.Context) error {
		ctx, cancel := s.apply(ctx)
		defer cancel()
		admin, err := c.admin()
		if err != nil {
			return err
		}
		_, err = admin.DropNamespace(c.annotate(ctx, s.headers), &apiv2.DropNamespaceRequest{Namespace: namespace})
		return err
	})
	if err != nil {
		return fmt.Errorf("drop namespace %d: %w", namespace, err)
	}
	return nil
}

// ListNamespaces returns the ids of all namespaces.
func (c *Client) ListNamespaces(ctx context.Context, opts ...CallOption) ([]uint64, error) {
	s := newCallSettings(opts)
	var namespaces []uint64
	err := c.runAuthed(ctx, true, func(ctx context.Context) error {
		ctx, cancel := s.apply(ctx)
		defer cancel()
		admin, err := c.admin()
		if err != nil {
			return err
		}
		resp, err := admin.ListNamespaces(c.annotate(ctx, s.headers), &apiv2.ListNamespacesRequest{})
		if err != nil {
			return err
		}
		namespaces = resp.Namespaces
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list namespaces: %w", err)
	}
	return namespaces, nil
}

func (c *Client) admin() (apiv2.DgraphClient, error) {
	ep := c.pool.Next()
	if ep.Admin == nil {
		return nil, fmt.Errorf("%w: endpoint does not expose the admin service", ErrInvalidArgument)
	}
	return ep.Admin, nil
}

// NewTxn starts a transaction. Fails fast, before any RPC, when
// BestEffort is requested without ReadOnly or the client is closed.
func (c *Client) NewTxn(opts ...TxnOption) (*Txn, error) {
	if c.closed.Load() {
		return nil, ErrClientClosed
	}
	var cfg txnConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	core, err := engine.New(cfg.readOnly, cfg.bestEffort)
	if err != nil {
		return nil, err
	}
	return &Txn{
		client: c,
		// The transaction pins one endpoint for its whole life so all
		// its requests observe the same backend.
		endpoint: c.pool.Next(),
		core:     core,
		log:      c.log.With("txn_id", newTxnID()),
	}, nil
}
