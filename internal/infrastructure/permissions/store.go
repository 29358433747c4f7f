package permissions

import (
	"sync"
	"sync/atomic"

	"github.com/erp/client/internal/domain/offline"
	"go.uber.org/zap"
)

// Store holds the current permission set. Reads are lock free.
type Store struct {
	current atomic.Pointer[offline.OfflinePermissions]
	logger  *zap.Logger

	mu     sync.Mutex
	subs   map[uint64]func(offline.OfflinePermissions)
	nextID uint64
}

// NewStore creates a store holding initial, which must be valid
func NewStore(initial offline.OfflinePermissions, logger *zap.Logger) (*Store, error) {
	if err := Validate(initial); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{logger: logger, subs: make(map[uint64]func(offline.OfflinePermissions))}
	s.current.Store(&initial)
	return s, nil
}

// Current returns the active permissions
func (s *Store) Current() offline.OfflinePermissions {
	return *s.current.Load()
}

// Replace validates p and makes it current. Subscribers are notified only when
// the value changed. It reports whether a change happened.
func (s *Store) Replace(p offline.OfflinePermissions) (bool, error) {
	if err := Validate(p); err != nil {
		return false, err
	}
	old := s.current.Swap(&p)
	if *old == p {
		return false, nil
	}

	s.logger.Info("offline permissions changed",
		zap.Bool("enabled", p.Enabled),
		zap.Bool("can_create", p.CanCreate),
		zap.Bool("can_edit", p.CanEdit),
		zap.Bool("can_delete", p.CanDelete),
		zap.Bool("auto_sync", p.AutoSync),
		zap.Int("max_pending_changes", p.MaxPendingChanges),
	)

	s.mu.Lock()
	subs := make([]func(offline.OfflinePermissions), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(p)
	}
	return true, nil
}

// Subscribe registers fn to be called after every change
func (s *Store) Subscribe(fn func(offline.OfflinePermissions)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}
