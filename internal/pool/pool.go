// Package pool wraps one or more configured RPC endpoints behind a
// single pick-an-endpoint surface. The engine does not care how stubs
// came to be (dialed conns, test fakes); it only needs a callable
// endpoint per RPC.
package pool

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"github.com/dgraph-io/dgo/v230/protos/api"

	"github.com/istaridigital/godgraph/protos/apiv2"
)

// Endpoint bundles the two service stubs of one backend connection.
// Closer is optional; it owns the underlying conn when set.
type Endpoint struct {
	Dgraph api.DgraphClient
	Admin  apiv2.DgraphClient
	Closer io.Closer
}

// ErrEmpty is returned when a pool is constructed without endpoints.
var ErrEmpty = errors.New("no endpoints provided")

// Pool distributes calls over its endpoints round-robin. Transactions
// pin the endpoint they start on; client-level calls pick per call.
type Pool struct {
	endpoints []*Endpoint
	next      atomic.Uint64

	closeOnce sync.Once
	closeErr  error
}

func New(endpoints ...*Endpoint) (*Pool, error) {
	if len(endpoints) == 0 {
		return nil, ErrEmpty
	}
	return &Pool{endpoints: append([]*Endpoint(nil), endpoints...)}, nil
}

// Next returns the next endpoint in round-robin order.
func (p *Pool) Next() *Endpoint {
	n := p.next.Add(1) - 1
	return p.endpoints[n%uint64(len(p.endpoints))]
}

// Len reports how many endpoints are configured.
func (p *Pool) Len() int { return len(p.endpoints) }

// Close releases every endpoint that owns a conn. Idempotent.
func (p *Pool) Close() error {
	p.closeOnce.Do(func() {
		var errs []error
		for _, ep := range p.endpoints {
			if ep.Closer == nil {
				continue
			}
			if err := ep.Closer.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		p.closeErr = errors.Join(errs...)
	})
	return p.closeErr
}
