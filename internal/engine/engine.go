// Package engine holds the transaction state machine shared by the
// blocking and async client surfaces. It performs no I/O: callers run
// the RPCs and feed the results back in, so both surfaces make exactly
// the same decisions.
package engine

import (
	"errors"
	"sort"
	"sync"

	"github.com/dgraph-io/dgo/v230/protos/api"
)

// State is the lifecycle position of a transaction.
type State uint8

const (
	// Active transactions accept queries, mutations, commit and discard.
	Active State = iota
	// Committed and Discarded are terminal.
	Committed
	Discarded
)

func (s State) String() string {
	switch s {
	case Active:
		return "active"
	case Committed:
		return "committed"
	case Discarded:
		return "discarded"
	}
	return "unknown"
}

var (
	ErrFinished        = errors.New("transaction has already been committed or discarded")
	ErrReadOnly        = errors.New("readonly transaction cannot run mutations")
	ErrBestEffort      = errors.New("best effort transactions are only compatible with read-only transactions")
	ErrStartTsMismatch = errors.New("transaction start timestamp mismatch")
)

// Core tracks the optimistic-concurrency bookkeeping of one transaction:
// start timestamp (latched on the first server interaction), the union
// of conflict keys and predicates touched by mutations, the server hash
// echoed on commit/discard, and the lifecycle state.
//
// Individual methods are safe to call concurrently, but a transaction is
// meant for a single goroutine: interleaving whole operations from
// several goroutines gives undefined results, same as the upstream
// clients.
type Core struct {
	mu sync.Mutex

	state      txnState
	readOnly   bool
	bestEffort bool
}

// txnState is the mutable part, split out so the zero Core is obviously
// unusable without New.
type txnState struct {
	phase    State
	mutated  bool
	startTs  uint64
	commitTs uint64
	hash     string
	keys     map[string]struct{}
	preds    map[string]struct{}
}

// New validates the mode flags and returns an Active core.
func New(readOnly, bestEffort bool) (*Core, error) {
	if bestEffort && !readOnly {
		return nil, ErrBestEffort
	}
	return &Core{
		readOnly:   readOnly,
		bestEffort: bestEffort,
		state: txnState{
			phase: Active,
			keys:  make(map[string]struct{}),
			preds: make(map[string]struct{}),
		},
	}, nil
}

func (c *Core) ReadOnly() bool   { return c.readOnly }
func (c *Core) BestEffort() bool { return c.bestEffort }

func (c *Core) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.phase
}

func (c *Core) StartTs() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.startTs
}

func (c *Core) CommitTs() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.commitTs
}

// Keys returns the accumulated conflict keys, sorted.
func (c *Core) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return sortedSet(c.state.keys)
}

// Preds returns the accumulated predicates, sorted.
func (c *Core) Preds() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return sortedSet(c.state.preds)
}

// BeginRequest gates and stamps an outgoing query/mutate request:
// rejects requests on finished transactions and mutations on read-only
// ones, records that the transaction mutated, and fills in the start
// timestamp, hash and mode flags. Validation happens before any field
// is touched, so a rejected request was never sent anywhere.
func (c *Core) BeginRequest(req *api.Request) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.phase != Active {
		return ErrFinished
	}
	if len(req.Mutations) > 0 {
		if c.readOnly {
			return ErrReadOnly
		}
		c.state.mutated = true
	}

	req.StartTs = c.state.startTs
	req.Hash = c.state.hash
	req.ReadOnly = c.readOnly
	req.BestEffort = c.bestEffort
	return nil
}

// CompleteRequest folds a successful response back into the core: it
// merges the returned transaction context and, when the request carried
// CommitNow and the server confirmed it, moves the transaction to
// Committed. trackConflicts=false skips the key/predicate merge for
// callers that opt out of conflict tracking on this request.
func (c *Core) CompleteRequest(req *api.Request, src *api.TxnContext, trackConflicts bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.merge(src, trackConflicts); err != nil {
		return err
	}
	if req.CommitNow {
		c.state.phase = Committed
		if src != nil {
			c.state.commitTs = src.CommitTs
		}
	}
	return nil
}

// merge applies the conflict-tracking contract: latch the start
// timestamp once, refuse a different one later, adopt the latest hash,
// and union the touched keys and predicates. Duplicates across calls
// collapse.
func (c *Core) merge(src *api.TxnContext, trackConflicts bool) error {
	if src == nil {
		// Server did not return a context; nothing to merge.
		return nil
	}
	if c.state.startTs == 0 {
		c.state.startTs = src.StartTs
	} else if src.StartTs != 0 && c.state.startTs != src.StartTs {
		return ErrStartTsMismatch
	}
	if src.Hash != "" {
		c.state.hash = src.Hash
	}
	if trackConflicts {
		for _, k := range src.Keys {
			c.state.keys[k] = struct{}{}
		}
		for _, p := range src.Preds {
			c.state.preds[p] = struct{}{}
		}
	}
	return nil
}

// BeginCommit gates a commit. When proceed is false with a nil error the
// commit is a local no-op success (read-only transaction, or nothing was
// mutated) and the transaction is already Committed. When proceed is
// true the returned context carries the accumulated state for the
// commit RPC; the transaction stays Active until the outcome is known.
func (c *Core) BeginCommit() (proceed bool, tctx *api.TxnContext, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.phase != Active {
		return false, nil, ErrFinished
	}
	if c.readOnly || !c.state.mutated {
		// Nothing to commit server-side.
		c.state.phase = Committed
		return false, nil, nil
	}
	return true, c.contextLocked(false), nil
}

// CompleteCommit records a server-confirmed commit.
func (c *Core) CompleteCommit(src *api.TxnContext) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.state.phase = Committed
	if src != nil {
		c.state.commitTs = src.CommitTs
	}
}

// BeginDiscard gates a discard. It is a no-op on a finished transaction
// (notify=false, and the state is left alone). Otherwise the transaction
// moves to Discarded immediately; notify is true only when the server
// holds resources for it, i.e. when a mutation ran.
func (c *Core) BeginDiscard() (notify bool, tctx *api.TxnContext) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.phase != Active {
		return false, nil
	}
	c.state.phase = Discarded
	if !c.state.mutated {
		return false, nil
	}
	return true, c.contextLocked(true)
}

func (c *Core) contextLocked(aborted bool) *api.TxnContext {
	return &api.TxnContext{
		StartTs: c.state.startTs,
		Hash:    c.state.hash,
		Aborted: aborted,
		Keys:    sortedSet(c.state.keys),
		Preds:   sortedSet(c.state.preds),
	}
}

func sortedSet(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
