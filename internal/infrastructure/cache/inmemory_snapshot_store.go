package cache

import (
	"context"
	"sync"

	"github.com/erp/client/internal/domain/offline"
)

// InMemorySnapshotStore implements offline.SnapshotStore in process memory.
// Snapshots do not survive a restart, so it only suits kiosks that always start online.
type InMemorySnapshotStore struct {
	mu      sync.RWMutex
	entries map[string][]byte
}

// NewInMemorySnapshotStore creates an empty in-memory snapshot store
func NewInMemorySnapshotStore() *InMemorySnapshotStore {
	return &InMemorySnapshotStore{entries: make(map[string][]byte)}
}

// Get returns a copy of the stored snapshot, or offline.ErrNotFound
func (s *InMemorySnapshotStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.entries[key]
	if !ok {
		return nil, offline.ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

// Put stores a copy of data
func (s *InMemorySnapshotStore) Put(_ context.Context, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = append([]byte(nil), data...)
	return nil
}

// Delete removes the snapshot
func (s *InMemorySnapshotStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

// Len returns the number of stored snapshots
func (s *InMemorySnapshotStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
