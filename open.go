package godgraph

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/url"
	"time"

	"github.com/dgraph-io/dgo/v230/protos/api"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/istaridigital/godgraph/protos/apiv2"
)

const connScheme = "dgraph"

// loginTimeout bounds the initial login performed by Open when the
// connection string carries credentials.
const loginTimeout = 30 * time.Second

// Open connects using a dgraph:// connection string:
//
//	dgraph://[user:password@]host:port[?args]
//
// Supported query arguments:
//
//   - sslmode: disable (plaintext, default), verify-ca (TLS with
//     certificate verification). sslmode=require is rejected; use
//     verify-ca.
//   - apikey: cloud API key, attached to every call. Requires TLS.
//   - bearertoken: bearer credential, attached to every call. Requires
//     TLS. Mutually exclusive with apikey.
//
// When user and password are present, Open logs in before returning and
// the client keeps refreshing the obtained token pair.
func Open(ctx context.Context, connString string, opts ...ClientOption) (*Client, error) {
	target, dialOpts, auth, err := parseConnString(connString)
	if err != nil {
		return nil, err
	}

	conn, err := grpc.NewClient(target, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("dialing %q: %w", target, err)
	}

	client, err := NewClient([]Endpoint{endpointFromConn(conn)}, opts...)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	if auth.username != "" {
		loginCtx, cancel := context.WithTimeout(ctx, loginTimeout)
		err := client.LoginIntoNamespace(loginCtx, auth.username, auth.password, 0)
		cancel()
		if err != nil {
			_ = client.Close()
			return nil, err
		}
	}
	return client, nil
}

// OpenAsync is Open returning the asynchronous surface.
func OpenAsync(ctx context.Context, connString string, opts ...ClientOption) (*AsyncClient, error) {
	c, err := Open(ctx, connString, opts...)
	if err != nil {
		return nil, err
	}
	return c.Async(), nil
}

// Dial connects to one or more host:port targets without transport
// security, for clusters inside a trusted network. Use Open for TLS and
// credential handling.
func Dial(targets []string, opts ...ClientOption) (*Client, error) {
	if len(targets) == 0 {
		return nil, fmt.Errorf("%w: no targets", ErrInvalidArgument)
	}
	endpoints := make([]Endpoint, 0, len(targets))
	for _, target := range targets {
		conn, err := grpc.NewClient(target, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			for _, ep := range endpoints {
				_ = ep.Closer.Close()
			}
			return nil, fmt.Errorf("dialing %q: %w", target, err)
		}
		endpoints = append(endpoints, endpointFromConn(conn))
	}
	return NewClient(endpoints, opts...)
}

func endpointFromConn(conn *grpc.ClientConn) Endpoint {
	return Endpoint{
		Dgraph: api.NewDgraphClient(conn),
		Admin:  apiv2.NewDgraphClient(conn),
		Closer: conn,
	}
}

type connAuth struct {
	username string
	password string
}

func parseConnString(connString string) (target string, dialOpts []grpc.DialOption, auth connAuth, err error) {
	u, err := url.Parse(connString)
	if err != nil {
		return "", nil, connAuth{}, fmt.Errorf("%w: parsing connection string: %v", ErrInvalidArgument, err)
	}
	if u.Scheme != connScheme {
		return "", nil, connAuth{}, fmt.Errorf("%w: scheme must be %q, got %q", ErrInvalidArgument, connScheme, u.Scheme)
	}
	if u.Hostname() == "" || u.Port() == "" {
		return "", nil, connAuth{}, fmt.Errorf("%w: connection string must include host and port", ErrInvalidArgument)
	}

	if u.User != nil {
		auth.username = u.User.Username()
		auth.password, _ = u.User.Password()
		if auth.username != "" && auth.password == "" {
			return "", nil, connAuth{}, fmt.Errorf("%w: username requires a password", ErrInvalidArgument)
		}
	}

	q := u.Query()
	apiKey := q.Get("apikey")
	bearerToken := q.Get("bearertoken")
	if apiKey != "" && bearerToken != "" {
		return "", nil, connAuth{}, fmt.Errorf("%w: apikey and bearertoken are mutually exclusive", ErrInvalidArgument)
	}

	sslmode := q.Get("sslmode")
	if sslmode == "" {
		sslmode = "disable"
	}
	switch sslmode {
	case "disable":
		dialOpts = append(dialOpts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	case "require":
		return "", nil, connAuth{}, fmt.Errorf(
			"%w: sslmode=require is not supported, use verify-ca", ErrInvalidArgument)
	case "verify-ca":
		dialOpts = append(dialOpts, grpc.WithTransportCredentials(
			credentials.NewTLS(&tls.Config{})))
	default:
		return "", nil, connAuth{}, fmt.Errorf("%w: unknown sslmode %q", ErrInvalidArgument, sslmode)
	}

	switch {
	case apiKey != "":
		dialOpts = append(dialOpts, grpc.WithPerRPCCredentials(headerCredentials{value: apiKey}))
	case bearerToken != "":
		dialOpts = append(dialOpts, grpc.WithPerRPCCredentials(headerCredentials{value: "Bearer " + bearerToken}))
	}
	if (apiKey != "" || bearerToken != "") && sslmode == "disable" {
		return "", nil, connAuth{}, fmt.Errorf(
			"%w: apikey and bearertoken require a TLS connection", ErrInvalidArgument)
	}

	return u.Host, dialOpts, auth, nil
}

// headerCredentials attaches a static authorization header to every
// call, for cloud API keys and bearer tokens.
type headerCredentials struct {
	value string
}

func (h headerCredentials) GetRequestMetadata(ctx context.Context, uri ...string) (map[string]string, error) {
	return map[string]string{"authorization": h.value}, nil
}

func (h headerCredentials) RequireTransportSecurity() bool { return true }
