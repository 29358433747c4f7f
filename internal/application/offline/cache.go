package offline

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/erp/client/internal/domain/offline"
	"go.uber.org/zap"
)

// DefaultKeyPrefix namespaces persisted cache entries
const DefaultKeyPrefix = "erp_offline"

// CacheKey returns the durable key of an entity's cache entry
func CacheKey(prefix, entity string) string {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return prefix + "_" + entity
}

// persistedEntry is the durable layout of a cache entry. Staleness is derived on load.
type persistedEntry[T any] struct {
	Items     []T    `json:"items"`
	LastFetch *int64 `json:"lastFetch"`
}

func encodeEntry[T any](items []T, lastFetch *time.Time) ([]byte, error) {
	p := persistedEntry[T]{Items: items}
	if p.Items == nil {
		p.Items = []T{}
	}
	if lastFetch != nil {
		ms := lastFetch.UnixMilli()
		p.LastFetch = &ms
	}
	return json.Marshal(p)
}

func decodeEntry[T any](data []byte) ([]T, *time.Time, error) {
	var p persistedEntry[T]
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, nil, err
	}
	var lastFetch *time.Time
	if p.LastFetch != nil {
		t := time.UnixMilli(*p.LastFetch)
		lastFetch = &t
	}
	return p.Items, lastFetch, nil
}

// EntityCache holds the known records of one entity in display order.
// Every write persists through the Mirror and then notifies subscribers.
type EntityCache[T offline.Record[T]] struct {
	name   string
	key    string
	ttl    time.Duration
	clock  offline.Clock
	mirror *Mirror
	logger *zap.Logger

	mu        sync.RWMutex
	items     []T
	lastFetch *time.Time

	listeners *listenerSet[offline.CacheEntry[T]]
}

// CacheConfig holds the shared settings of entity caches
type CacheConfig struct {
	KeyPrefix string
	TTL       time.Duration
	Clock     offline.Clock
	Mirror    *Mirror
	Logger    *zap.Logger
}

func (c CacheConfig) withDefaults() CacheConfig {
	if c.TTL <= 0 {
		c.TTL = offline.DefaultTTL
	}
	if c.Clock == nil {
		c.Clock = offline.SystemClock{}
	}
	if c.Mirror == nil {
		c.Mirror = NewMirror(nil)
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c
}

// NewEntityCache creates an empty, stale cache for entity
func NewEntityCache[T offline.Record[T]](entity string, cfg CacheConfig) *EntityCache[T] {
	cfg = cfg.withDefaults()
	logger := cfg.Logger.With(zap.String("entity", entity))
	return &EntityCache[T]{
		name:      entity,
		key:       CacheKey(cfg.KeyPrefix, entity),
		ttl:       cfg.TTL,
		clock:     cfg.Clock,
		mirror:    cfg.Mirror,
		logger:    logger,
		listeners: newListenerSet[offline.CacheEntry[T]]("cache."+entity, logger),
	}
}

// Name returns the entity name
func (c *EntityCache[T]) Name() string { return c.name }

// Key returns the durable key
func (c *EntityCache[T]) Key() string { return c.key }

// Hydrate loads the persisted entry. Missing or corrupt data leaves the cache empty and stale.
func (c *EntityCache[T]) Hydrate(ctx context.Context) bool {
	data, ok := c.mirror.Load(ctx, c.key)
	if !ok {
		return false
	}
	items, lastFetch, err := decodeEntry[T](data)
	if err != nil {
		c.logger.Warn("discarding corrupt cache snapshot", zap.Error(err))
		return false
	}

	c.mu.Lock()
	c.items = items
	c.lastFetch = lastFetch
	c.mu.Unlock()

	c.notify()
	return true
}

// Get returns a copy of the current entry with staleness computed now
func (c *EntityCache[T]) Get() offline.CacheEntry[T] {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshotLocked()
}

func (c *EntityCache[T]) snapshotLocked() offline.CacheEntry[T] {
	entry := offline.CacheEntry[T]{
		Items:     c.items,
		LastFetch: c.lastFetch,
		IsStale:   offline.IsStaleAt(c.lastFetch, c.ttl, c.clock.Now()),
	}
	return entry.Clone()
}

// IsStale reports whether the data is missing or older than the TTL
func (c *EntityCache[T]) IsStale() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return offline.IsStaleAt(c.lastFetch, c.ttl, c.clock.Now())
}

// Find returns the record with the given identifier
func (c *EntityCache[T]) Find(id offline.ID) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if i := c.indexLocked(id); i >= 0 {
		return c.items[i], true
	}
	var zero T
	return zero, false
}

// Set replaces all records and marks the entry fresh
func (c *EntityCache[T]) Set(items []T) {
	now := c.clock.Now()
	c.write(func() {
		c.items = append([]T(nil), items...)
		c.lastFetch = &now
	})
}

// Upsert replaces the record with the same identifier in place, or appends it
func (c *EntityCache[T]) Upsert(item T) {
	c.write(func() {
		if i := c.indexLocked(item.RecordID()); i >= 0 {
			c.items[i] = item
			return
		}
		c.items = append(c.items, item)
	})
}

// Prepend inserts a record at the head, replacing any record with the same identifier
func (c *EntityCache[T]) Prepend(item T) {
	c.write(func() {
		c.items = append([]T{item}, c.without(item.RecordID())...)
	})
}

// ReplaceID swaps the record stored under oldID for item in one step.
// The position of oldID is kept and any other record already carrying the
// new identifier is dropped, so subscribers never see both.
func (c *EntityCache[T]) ReplaceID(oldID offline.ID, item T) {
	newID := item.RecordID()
	c.write(func() {
		pos := c.indexLocked(oldID)
		if pos < 0 {
			pos = c.indexLocked(newID)
		}
		if pos < 0 {
			c.items = append([]T{item}, c.items...)
			return
		}

		out := make([]T, 0, len(c.items))
		for i, v := range c.items {
			switch {
			case i == pos:
				out = append(out, item)
			case v.RecordID() == oldID || v.RecordID() == newID:
			default:
				out = append(out, v)
			}
		}
		c.items = out
	})
}

// Remove deletes the record with the given identifier. Absent identifiers are ignored.
func (c *EntityCache[T]) Remove(id offline.ID) bool {
	c.mu.Lock()
	if c.indexLocked(id) < 0 {
		c.mu.Unlock()
		return false
	}
	c.items = c.without(id)
	c.persistLocked()
	c.mu.Unlock()

	c.notify()
	return true
}

// Restore puts back an entry previously returned by Get
func (c *EntityCache[T]) Restore(entry offline.CacheEntry[T]) {
	snap := entry.Clone()
	c.write(func() {
		c.items = snap.Items
		c.lastFetch = snap.LastFetch
	})
}

// Invalidate marks the entry stale without touching its records
func (c *EntityCache[T]) Invalidate() {
	c.write(func() {
		c.lastFetch = nil
	})
}

// Subscribe calls listener with the current entry and again after every change
func (c *EntityCache[T]) Subscribe(listener func(offline.CacheEntry[T])) (unsubscribe func()) {
	unsubscribe = c.listeners.add(listener)
	c.listeners.deliver(listener, c.Get())
	return unsubscribe
}

func (c *EntityCache[T]) write(fn func()) {
	c.mu.Lock()
	fn()
	c.persistLocked()
	c.mu.Unlock()

	c.notify()
}

func (c *EntityCache[T]) notify() {
	if c.listeners.len() == 0 {
		return
	}
	c.listeners.publish(c.Get())
}

func (c *EntityCache[T]) persistLocked() {
	data, err := encodeEntry(c.items, c.lastFetch)
	if err != nil {
		c.logger.Warn("failed to encode cache snapshot", zap.Error(err))
		return
	}
	c.mirror.Save(c.key, data)
}

func (c *EntityCache[T]) indexLocked(id offline.ID) int {
	for i, v := range c.items {
		if v.RecordID() == id {
			return i
		}
	}
	return -1
}

func (c *EntityCache[T]) without(id offline.ID) []T {
	out := make([]T, 0, len(c.items))
	for _, v := range c.items {
		if v.RecordID() != id {
			out = append(out, v)
		}
	}
	return out
}
