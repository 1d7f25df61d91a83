package godgraph

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"
)

// TxnFunc is the body of a retryable transaction. It must be
// idempotent: on an abort the whole function runs again in a fresh
// transaction. The function must not commit or discard txn itself.
type TxnFunc func(ctx context.Context, txn *Txn) error

// Retry defaults, applied by RunInTransaction when no RetryOption
// overrides them.
const (
	defaultRetryAttempts = 5
	defaultRetryBase     = 100 * time.Millisecond
	defaultRetryCap      = 5 * time.Second
	defaultRetryJitter   = 10 // percent
)

// RetryOption tunes RunInTransaction.
type RetryOption func(*retryConfig)

type retryConfig struct {
	attempts uint64
	base     time.Duration
	cap      time.Duration
	jitter   uint64
	txnOpts  []TxnOption
}

// WithRetryAttempts caps how many times an aborted transaction is
// re-run (the first run counts as attempt one).
func WithRetryAttempts(n uint64) RetryOption {
	return func(c *retryConfig) { c.attempts = n }
}

// WithRetryBackoff sets the exponential backoff parameters: the first
// delay and the per-delay cap.
func WithRetryBackoff(base, cap time.Duration) RetryOption {
	return func(c *retryConfig) {
		c.base = base
		c.cap = cap
	}
}

// WithRetryTxnOptions passes transaction options (e.g. ReadOnly) to
// every attempt's transaction.
func WithRetryTxnOptions(opts ...TxnOption) RetryOption {
	return func(c *retryConfig) { c.txnOpts = append(c.txnOpts, opts...) }
}

// RunInTransaction runs fn inside a transaction, commits it, and
// re-runs the whole thing in a fresh transaction when the commit (or a
// mutation) aborts on a write-write conflict. Backoff between attempts
// is exponential with jitter. Only ErrAborted triggers a retry; every
// other failure, including connection errors, surfaces immediately.
func RunInTransaction(ctx context.Context, c *Client, fn TxnFunc, opts ...RetryOption) error {
	cfg := retryConfig{
		attempts: defaultRetryAttempts,
		base:     defaultRetryBase,
		cap:      defaultRetryCap,
		jitter:   defaultRetryJitter,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.attempts == 0 {
		cfg.attempts = 1
	}

	backoff := retry.NewExponential(cfg.base)
	backoff = retry.WithCappedDuration(cfg.cap, backoff)
	backoff = retry.WithJitterPercent(cfg.jitter, backoff)
	backoff = retry.WithMaxRetries(cfg.attempts-1, backoff)

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := runOnce(ctx, c, fn, cfg.txnOpts)
		if errors.Is(err, ErrAborted) {
			return retry.RetryableError(err)
		}
		return err
	})
}

// WithTxn runs fn in a transaction and commits on a clean return,
// without any retrying: an abort surfaces as ErrAborted. The
// transaction is discarded when fn errors.
func (c *Client) WithTxn(ctx context.Context, fn TxnFunc, opts ...TxnOption) error {
	return runOnce(ctx, c, fn, opts)
}

func runOnce(ctx context.Context, c *Client, fn TxnFunc, txnOpts []TxnOption) error {
	txn, err := c.NewTxn(txnOpts...)
	if err != nil {
		return err
	}
	// The discard must run even when ctx is already done.
	defer func() { _ = txn.Discard(context.WithoutCancel(ctx)) }()

	if err := fn(ctx, txn); err != nil {
		return err
	}
	_, err = txn.Commit(ctx)
	return err
}
