package offline

import (
	"sync"

	"go.uber.org/zap"
)

// listenerSet is an ordered registry of callbacks. Listeners run outside the
// registry lock, in subscription order, and a panicking listener does not stop the others.
type listenerSet[E any] struct {
	name   string
	logger *zap.Logger

	mu     sync.RWMutex
	nextID uint64
	order  []uint64
	fns    map[uint64]func(E)
}

func newListenerSet[E any](name string, logger *zap.Logger) *listenerSet[E] {
	return &listenerSet[E]{
		name:   name,
		logger: logger,
		fns:    make(map[uint64]func(E)),
	}
}

// add registers fn and returns a function that removes it. Calling the returned
// function more than once is harmless.
func (s *listenerSet[E]) add(fn func(E)) func() {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.order = append(s.order, id)
	s.fns[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { s.remove(id) })
	}
}

func (s *listenerSet[E]) remove(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.fns, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

func (s *listenerSet[E]) snapshot() []func(E) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]func(E), 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.fns[id])
	}
	return out
}

// publish delivers v to every listener registered at the time of the call
func (s *listenerSet[E]) publish(v E) {
	for _, fn := range s.snapshot() {
		s.dispatch(fn, v)
	}
}

// deliver calls a single listener with the same panic protection as publish
func (s *listenerSet[E]) deliver(fn func(E), v E) {
	s.dispatch(fn, v)
}

func (s *listenerSet[E]) dispatch(fn func(E), v E) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("listener panicked",
				zap.String("topic", s.name),
				zap.Any("panic", r),
			)
		}
	}()
	fn(v)
}

func (s *listenerSet[E]) len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}
