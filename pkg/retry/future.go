package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrAttemptTimeout is returned by WithTimeout when the deadline fires first
	ErrAttemptTimeout = errors.New("attempt timed out")

	// ErrElapsed is the result of a Future created by After
	ErrElapsed = errors.New("timer elapsed")
)

// Future is the pending result of an operation started with Go.
type Future[T any] struct {
	done chan struct{}
	val  T
	err  error
}

// Go starts op in its own goroutine and returns its Future
func Go[T any](ctx context.Context, op func(context.Context) (T, error)) *Future[T] {
	f := &Future[T]{done: make(chan struct{})}
	go func() {
		defer close(f.done)
		f.val, f.err = op(ctx)
	}()
	return f
}

// After returns a Future that settles with ErrElapsed once d has passed.
// A non-positive d never settles. stop releases the timer.
func After[T any](d time.Duration) (f *Future[T], stop func()) {
	f = &Future[T]{done: make(chan struct{}), err: ErrElapsed}
	if d <= 0 {
		return f, func() {}
	}
	timer := time.AfterFunc(d, func() { close(f.done) })
	return f, func() { timer.Stop() }
}

// Done is closed once the result is available
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Await blocks until the result is available or ctx is done
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Race waits for the first of two futures to settle and returns its index (0 or 1)
// and result. The other future keeps running and can still be awaited.
func Race[T any](ctx context.Context, a, b *Future[T]) (int, T, error) {
	select {
	case <-a.done:
		return 0, a.val, a.err
	case <-b.done:
		return 1, b.val, b.err
	case <-ctx.Done():
		var zero T
		return -1, zero, ctx.Err()
	}
}

// WithTimeout runs op bound to a context that is cancelled as soon as a decision is made.
// If d elapses first the attempt fails with ErrAttemptTimeout and the late result is dropped.
func WithTimeout[T any](ctx context.Context, d time.Duration, op func(context.Context) (T, error)) (T, error) {
	var zero T
	if d <= 0 {
		return op(ctx)
	}

	attemptCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	f := Go(attemptCtx, op)

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-f.done:
		return f.val, f.err
	case <-timer.C:
		return zero, fmt.Errorf("%w after %s", ErrAttemptTimeout, d)
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// sleep pauses for d unless ctx is done first
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
