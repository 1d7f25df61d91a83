package godgraph

import "context"

// Future is the pending result of an asynchronous call. It resolves
// exactly once; Wait may be called any number of times from any
// goroutine.
type Future[T any] struct {
	done chan struct{}
	val  T
	err  error
}

// Wait blocks until the call resolves or ctx is done. A context error
// does not resolve the future; the underlying call keeps running and a
// later Wait can still collect it.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Done returns a channel closed when the future resolves, for use in
// caller select loops.
func (f *Future[T]) Done() <-chan struct{} { return f.done }

// async runs fn in its own goroutine and hands back its future result.
func async[T any](fn func() (T, error)) *Future[T] {
	f := &Future[T]{done: make(chan struct{})}
	go func() {
		defer close(f.done)
		f.val, f.err = fn()
	}()
	return f
}
