// Package task provides cancellable units of asynchronous work and the
// request scopes that own them.
package task

import (
	"context"
	"errors"
)

// ErrAborted marks a result that was produced because the task was cancelled.
// It is never a domain failure.
var ErrAborted = errors.New("task aborted")

// IsAborted reports whether err stems from cancellation rather than a failure
// of the work itself.
func IsAborted(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrAborted) || errors.Is(err, context.Canceled)
}

// Func is the body of a task. It must honour ctx cancellation.
type Func[T any] func(ctx context.Context) (T, error)

// Task pairs a cancellation control with a pending result.
type Task[T any] struct {
	cancel context.CancelFunc
	done   chan struct{}
	value  T
	err    error
}

// Run starts fn on its own goroutine under a fresh cancellation context
// derived from parent.
func Run[T any](parent context.Context, fn Func[T]) *Task[T] {
	ctx, cancel := context.WithCancel(parent)
	started := &Task[T]{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(started.done)
		defer cancel()
		started.value, started.err = fn(ctx)
	}()
	return started
}

// Cancel signals abort. It is safe to call any number of times, including
// after the task has settled.
func (t *Task[T]) Cancel() {
	t.cancel()
}

// Done is closed once the task has settled.
func (t *Task[T]) Done() <-chan struct{} {
	return t.done
}

// Result blocks until the task settles.
func (t *Task[T]) Result() (T, error) {
	<-t.done
	return t.value, t.err
}

// Wait blocks until the task settles or ctx ends. Ending ctx does not cancel
// the task.
func (t *Task[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-t.done:
		return t.value, t.err
	case <-ctx.Done():
		var zero T
		return zero, errors.Join(ErrAborted, ctx.Err())
	}
}
