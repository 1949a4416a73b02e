package shared

import (
	"context"
	"fmt"
)

// Deferred is an asynchronous construction result. Factories may return one
// instead of a finished instance; the container awaits it exactly once and
// caches the settled value or error.
type Deferred interface {
	// Await blocks until the value settles or ctx is done. It is safe to
	// call from multiple goroutines; all callers observe the same result.
	Await(ctx context.Context) (any, error)
}

type asyncResult struct {
	done  chan struct{}
	value any
	err   error
}

// Async runs fn on its own goroutine and returns a Deferred that settles
// with fn's result. A panic inside fn settles the Deferred with an error
// instead of crashing the process.
func Async(fn func() (any, error)) Deferred {
	r := &asyncResult{done: make(chan struct{})}
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				r.value = nil
				r.err = fmt.Errorf("async factory panicked: %v", rec)
			}
			close(r.done)
		}()
		r.value, r.err = fn()
	}()
	return r
}

func (r *asyncResult) Await(ctx context.Context) (any, error) {
	select {
	case <-r.done:
		return r.value, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Resolved returns a Deferred that is already settled with the given value.
func Resolved(value any) Deferred {
	r := &asyncResult{done: make(chan struct{}), value: value}
	close(r.done)
	return r
}

// Rejected returns a Deferred that is already settled with the given error.
func Rejected(err error) Deferred {
	r := &asyncResult{done: make(chan struct{}), err: err}
	close(r.done)
	return r
}
