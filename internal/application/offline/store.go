package offline

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/erp/client/internal/domain/offline"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// EntityAPI is the remote surface of one entity
type EntityAPI[T any] interface {
	List(ctx context.Context) ([]T, error)
	Create(ctx context.Context, item T) (T, error)
	Update(ctx context.Context, id offline.ID, item T) (T, error)
	Delete(ctx context.Context, id offline.ID) error
}

// RemoteCall performs the server side of a mutation and returns the authoritative record
type RemoteCall[T any] func(ctx context.Context) (T, error)

// Outcome describes how a mutation was settled
type Outcome string

const (
	// Synced means the server accepted the mutation
	Synced Outcome = "synced"
	// Queued means the mutation was kept locally and queued for replay
	Queued Outcome = "queued"
	// Coalesced means the mutation was folded into a change that was still queued
	Coalesced Outcome = "coalesced"
)

// Result is the record a mutation settled on
type Result[T any] struct {
	Item    T       `json:"item"`
	Outcome Outcome `json:"outcome"`
}

// EntityStore is the only way to change an entity's cached records. Mutations
// and replays of one entity are serialized.
type EntityStore[T offline.Record[T]] struct {
	name     string
	cache    *EntityCache[T]
	api      EntityAPI[T]
	ledger   *Ledger
	gate     *PolicyGate
	online   func() bool
	clock    offline.Clock
	logger   *zap.Logger
	recorder Recorder

	mu         sync.Mutex
	lastTempMS int64

	fetches singleflight.Group

	aliasMu sync.RWMutex
	aliases map[offline.ID]offline.ID
}

// Name returns the entity name
func (s *EntityStore[T]) Name() string { return s.name }

// Cache exposes the read side of the entity cache
func (s *EntityStore[T]) Cache() *EntityCache[T] { return s.cache }

// Get returns the current cache entry
func (s *EntityStore[T]) Get() offline.CacheEntry[T] {
	return s.cache.Get()
}

// Subscribe calls listener with the current entry and after every change
func (s *EntityStore[T]) Subscribe(listener func(offline.CacheEntry[T])) (unsubscribe func()) {
	return s.cache.Subscribe(listener)
}

// GetByID finds a record. Temporary identifiers of records that have since been
// synced resolve to the server identifier.
func (s *EntityStore[T]) GetByID(id offline.ID) (T, bool) {
	return s.cache.Find(s.resolve(id))
}

// Resolve maps a temporary identifier to its server identifier when known
func (s *EntityStore[T]) Resolve(id offline.ID) offline.ID {
	return s.resolve(id)
}

func (s *EntityStore[T]) resolve(id offline.ID) offline.ID {
	if !id.IsTemp() {
		return id
	}
	s.aliasMu.RLock()
	defer s.aliasMu.RUnlock()
	if to, ok := s.aliases[id]; ok {
		return to
	}
	return id
}

func (s *EntityStore[T]) alias(from, to offline.ID) {
	if from == to || to.IsZero() {
		return
	}
	s.aliasMu.Lock()
	s.aliases[from] = to
	s.aliasMu.Unlock()
}

// Fetch returns the cached entry when it is fresh, otherwise reloads the list from
// the server. Concurrent fetches share one request. Changes that are still queued
// are laid over the server list so optimistic records survive a refresh.
// When the reload fails the cached entry is returned along with the error.
func (s *EntityStore[T]) Fetch(ctx context.Context, force bool) (offline.CacheEntry[T], error) {
	if !force && !s.cache.IsStale() {
		return s.cache.Get(), nil
	}
	if !s.online() {
		return s.cache.Get(), nil
	}

	_, err, shared := s.fetches.Do("list", func() (any, error) {
		items, err := s.api.List(ctx)
		if err != nil {
			return nil, err
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		s.cache.Set(s.overlayPending(items))
		return nil, nil
	})
	if err != nil {
		s.logger.Warn("fetch failed",
			zap.Bool("network", offline.IsNetworkFailure(err)),
			zap.Error(err),
		)
		return s.cache.Get(), err
	}
	if shared {
		s.logger.Debug("fetch shared with concurrent caller")
	}
	return s.cache.Get(), nil
}

// overlayPending applies queued changes of this entity to a server list
func (s *EntityStore[T]) overlayPending(items []T) []T {
	out := append([]T(nil), items...)
	for _, change := range s.ledger.List() {
		if change.Entity != s.name {
			continue
		}
		id := s.resolve(change.RecordID)

		if change.Action == offline.ActionDelete {
			out = removeByID(out, id)
			continue
		}

		var item T
		if err := json.Unmarshal(change.Payload, &item); err != nil {
			s.logger.Warn("skipping undecodable pending change",
				zap.String("change_id", change.ID.String()),
				zap.Error(err),
			)
			continue
		}
		item = item.WithRecordID(id)

		if i := indexByID(out, id); i >= 0 {
			out[i] = item
		} else if change.Action == offline.ActionCreate {
			out = append([]T{item}, out...)
		}
	}
	return out
}

func indexByID[T offline.Record[T]](items []T, id offline.ID) int {
	for i, v := range items {
		if v.RecordID() == id {
			return i
		}
	}
	return -1
}

func removeByID[T offline.Record[T]](items []T, id offline.ID) []T {
	if i := indexByID(items, id); i >= 0 {
		return append(items[:i], items[i+1:]...)
	}
	return items
}

// Add creates a record
func (s *EntityStore[T]) Add(ctx context.Context, item T) (Result[T], error) {
	return s.Mutate(ctx, offline.ActionCreate, item, nil)
}

// Update replaces a record
func (s *EntityStore[T]) Update(ctx context.Context, item T) (Result[T], error) {
	return s.Mutate(ctx, offline.ActionUpdate, item, nil)
}

// Remove deletes the record with the given identifier
func (s *EntityStore[T]) Remove(ctx context.Context, id offline.ID) (Result[T], error) {
	item, ok := s.GetByID(id)
	if !ok {
		var zero T
		item = zero.WithRecordID(s.resolve(id))
	}
	return s.Mutate(ctx, offline.ActionDelete, item, nil)
}

// defaultCall sends a mutation through the entity API
func (s *EntityStore[T]) defaultCall(action offline.Action, item T) RemoteCall[T] {
	switch action {
	case offline.ActionCreate:
		return func(ctx context.Context) (T, error) {
			return s.api.Create(ctx, item.WithRecordID(""))
		}
	case offline.ActionUpdate:
		return func(ctx context.Context) (T, error) {
			return s.api.Update(ctx, item.RecordID(), item)
		}
	default:
		return func(ctx context.Context) (T, error) {
			return item, s.api.Delete(ctx, item.RecordID())
		}
	}
}

// newTempID returns a temporary identifier unique within this store. Callers hold s.mu.
func (s *EntityStore[T]) newTempID() offline.ID {
	ms := s.clock.Now().UnixMilli()
	if ms <= s.lastTempMS {
		ms = s.lastTempMS + 1
	}
	s.lastTempMS = ms
	return offline.NewTempID(time.UnixMilli(ms))
}

func (s *EntityStore[T]) hydrate(ctx context.Context) {
	if s.cache.Hydrate(ctx) {
		s.logger.Debug("cache restored from mirror", zap.Int("items", s.cache.Get().Len()))
	}
}
