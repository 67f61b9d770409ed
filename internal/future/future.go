// Package future bridges the platform's asynchronous completions to the
// blocking contract the public operations present. Every async platform call
// is represented as a Future that the platform side completes exactly once;
// the caller side blocks on Wait.
package future

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrWaitTimeout is returned by WaitTimeout when the completion does not
// arrive within the bound.
var ErrWaitTimeout = errors.New("timed out waiting for completion")

// Future is a single-completion promise carrying a value or an error.
// Complete/Fail may be called from any goroutine; only the first call wins.
type Future[T any] struct {
	done chan struct{}
	once sync.Once

	value T
	err   error
}

// New returns an incomplete Future.
func New[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Complete resolves the future with a value. Subsequent completions are
// ignored.
func (f *Future[T]) Complete(v T) {
	f.once.Do(func() {
		f.value = v
		close(f.done)
	})
}

// Fail resolves the future with an error. Subsequent completions are ignored.
func (f *Future[T]) Fail(err error) {
	f.once.Do(func() {
		f.err = err
		close(f.done)
	})
}

// Completed returns an already-resolved future. Convenient for adapters whose
// underlying call happens to be synchronous.
func Completed[T any](v T, err error) *Future[T] {
	f := New[T]()
	if err != nil {
		f.Fail(err)
	} else {
		f.Complete(v)
	}
	return f
}

// Wait blocks until the future resolves or ctx is done, whichever comes
// first. A ctx error does not resolve the future; the platform operation may
// still complete later.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// WaitTimeout blocks like Wait but with an explicit bound. A zero or negative
// timeout waits indefinitely (subject only to ctx).
func (f *Future[T]) WaitTimeout(ctx context.Context, timeout time.Duration) (T, error) {
	if timeout <= 0 {
		return f.Wait(ctx)
	}

	t := time.NewTimer(timeout)
	defer t.Stop()

	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	case <-t.C:
		var zero T
		return zero, ErrWaitTimeout
	}
}

// Done exposes the completion signal for select loops.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}
