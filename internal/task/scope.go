package task

import (
	"context"
	"sync"
)

// Scope owns every task started within it. Closing the scope cancels its
// context and runs the registered close hooks in reverse order.
type Scope struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	closers []func()
	closed  bool
}

// NewScope derives a scope from parent. Cancelling parent cancels the scope's
// tasks but does not run its close hooks; call Close for that.
func NewScope(parent context.Context) *Scope {
	ctx, cancel := context.WithCancel(parent)
	return &Scope{ctx: ctx, cancel: cancel}
}

// Context is cancelled when the scope closes.
func (s *Scope) Context() context.Context {
	return s.ctx
}

// Child returns a scope nested in s. It closes when s closes, or earlier on
// its own Close.
func (s *Scope) Child() *Scope {
	child := NewScope(s.ctx)
	if !s.OnClose(child.Close) {
		child.Close()
	}
	return child
}

// OnClose registers fn to run when the scope closes. It reports false and
// does not register fn when the scope is already closed.
func (s *Scope) OnClose(fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.closers = append(s.closers, fn)
	return true
}

// Closed reports whether Close has been called.
func (s *Scope) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close cancels the scope. Repeated calls are no-ops.
func (s *Scope) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	closers := s.closers
	s.closers = nil
	s.mu.Unlock()

	s.cancel()
	for index := len(closers) - 1; index >= 0; index-- {
		closers[index]()
	}
}

// Go starts fn as a task owned by scope.
func Go[T any](scope *Scope, fn Func[T]) *Task[T] {
	return Run(scope.Context(), fn)
}
