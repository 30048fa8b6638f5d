package computed

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/temirov/anonwiz/internal/task"
)

// ErrClosed is returned by Wait once the slot has been closed.
var ErrClosed = errors.New("computed slot closed")

// Slot is the keyed state machine behind one derived value.
//
// At most one task is live per slot. A task's settlement is applied only if
// its generation is still current and the slot is open; everything else is
// discarded silently. Watchers receive transitions in order and must not
// call back into the same slot.
type Slot[T any] struct {
	scope  *task.Scope
	logger *zap.Logger

	// notifyMu serializes transitions with their delivery to watchers.
	notifyMu sync.Mutex

	mu         sync.Mutex
	key        string
	keyed      bool
	generation uint64
	data       Data[T]
	current    *task.Task[T]
	closed     bool
	changed    chan struct{}
	watchers   map[int]func(Data[T])
	watcherSeq int
}

// NewSlot creates a slot owned by scope; closing the scope closes the slot.
func NewSlot[T any](scope *task.Scope, name string, logger *zap.Logger) *Slot[T] {
	if logger == nil {
		logger = zap.NewNop()
	}
	slot := &Slot[T]{
		scope:    scope,
		logger:   logger.With(zap.String("slot", name)),
		changed:  make(chan struct{}),
		watchers: map[int]func(Data[T]){},
	}
	if !scope.OnClose(slot.Close) {
		slot.Close()
	}
	return slot
}

// Get returns the current state.
func (s *Slot[T]) Get() Data[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data
}

// Generation counts dependency changes applied to the slot.
func (s *Slot[T]) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// Update starts computing fn for key. It is a no-op, reporting false, when
// key equals the current key or the slot is closed. Otherwise the running
// task is cancelled and superseded and the slot re-enters InProgress.
func (s *Slot[T]) Update(key string, fn task.Func[T]) bool {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	if s.closed || (s.keyed && s.key == key) {
		s.mu.Unlock()
		return false
	}
	s.supersedeLocked()
	s.key = key
	s.keyed = true
	s.generation++
	generation := s.generation
	running := task.Go(s.scope, fn)
	s.current = running
	snapshot, watchers := s.transitionLocked(Pending[T]())
	s.mu.Unlock()

	s.logger.Debug("computation started", zap.Uint64("generation", generation))
	deliver(watchers, snapshot)
	go s.settle(generation, running)
	return true
}

// Resolve completes key with value without starting a task.
func (s *Slot[T]) Resolve(key string, value T) bool {
	return s.settleNow(key, Done(value))
}

// Reject fails key with message without starting a task.
func (s *Slot[T]) Reject(key string, message string) bool {
	return s.settleNow(key, Failure[T](message))
}

func (s *Slot[T]) settleNow(key string, next Data[T]) bool {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	if s.closed || (s.keyed && s.key == key) {
		s.mu.Unlock()
		return false
	}
	s.supersedeLocked()
	s.key = key
	s.keyed = true
	s.generation++
	snapshot, watchers := s.transitionLocked(next)
	s.mu.Unlock()

	deliver(watchers, snapshot)
	return true
}

func (s *Slot[T]) settle(generation uint64, running *task.Task[T]) {
	value, err := running.Result()

	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	if s.closed || generation != s.generation {
		s.mu.Unlock()
		s.logger.Debug("discarded superseded result", zap.Uint64("generation", generation), zap.Error(err))
		return
	}
	s.current = nil
	if task.IsAborted(err) {
		s.mu.Unlock()
		s.logger.Debug("discarded aborted result", zap.Uint64("generation", generation))
		return
	}
	next := Done(value)
	if err != nil {
		next = Failure[T](err.Error())
	}
	snapshot, watchers := s.transitionLocked(next)
	s.mu.Unlock()

	s.logger.Debug("computation settled", zap.Uint64("generation", generation), zap.Stringer("state", snapshot.State))
	deliver(watchers, snapshot)
}

// Close supersedes and cancels the running task. The state is left as it was.
func (s *Slot[T]) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.supersedeLocked()
	close(s.changed)
	s.logger.Debug("slot closed", zap.Uint64("generation", s.generation))
}

// Wait blocks until the slot holds a terminal state, ctx ends or the slot
// closes.
func (s *Slot[T]) Wait(ctx context.Context) (Data[T], error) {
	for {
		s.mu.Lock()
		if s.closed {
			data := s.data
			s.mu.Unlock()
			return data, ErrClosed
		}
		if s.data.State.Terminal() {
			data := s.data
			s.mu.Unlock()
			return data, nil
		}
		changed := s.changed
		s.mu.Unlock()

		select {
		case <-changed:
		case <-ctx.Done():
			return Data[T]{}, ctx.Err()
		}
	}
}

// Watch registers fn for every future transition and immediately delivers
// the current state. The returned function unregisters fn.
func (s *Slot[T]) Watch(fn func(Data[T])) func() {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	s.watcherSeq++
	id := s.watcherSeq
	s.watchers[id] = fn
	snapshot := s.data
	s.mu.Unlock()

	fn(snapshot)
	return func() {
		s.mu.Lock()
		delete(s.watchers, id)
		s.mu.Unlock()
	}
}

func (s *Slot[T]) supersedeLocked() {
	if s.current != nil {
		s.current.Cancel()
		s.current = nil
	}
}

func (s *Slot[T]) transitionLocked(next Data[T]) (Data[T], []func(Data[T])) {
	s.data = next
	close(s.changed)
	s.changed = make(chan struct{})
	watchers := make([]func(Data[T]), 0, len(s.watchers))
	for id := 1; id <= s.watcherSeq; id++ {
		if watcher, ok := s.watchers[id]; ok {
			watchers = append(watchers, watcher)
		}
	}
	return next, watchers
}

func deliver[T any](watchers []func(Data[T]), data Data[T]) {
	for _, watcher := range watchers {
		watcher(data)
	}
}
