package offline

import "time"

// DefaultTTL is how long fetched data is considered fresh
const DefaultTTL = 5 * time.Minute

// CacheEntry is a read-only snapshot of one entity's cached records
type CacheEntry[T any] struct {
	Items     []T        `json:"items"`
	LastFetch *time.Time `json:"lastFetch"`
	IsStale   bool       `json:"isStale"`
}

// IsStaleAt reports whether data fetched at lastFetch is outdated at now.
// Data that was never fetched is always stale.
func IsStaleAt(lastFetch *time.Time, ttl time.Duration, now time.Time) bool {
	if lastFetch == nil {
		return true
	}
	return now.Sub(*lastFetch) > ttl
}

// Clone returns a copy that shares no slice or pointer with the receiver
func (e CacheEntry[T]) Clone() CacheEntry[T] {
	out := CacheEntry[T]{
		Items:   make([]T, len(e.Items)),
		IsStale: e.IsStale,
	}
	copy(out.Items, e.Items)
	if e.LastFetch != nil {
		t := *e.LastFetch
		out.LastFetch = &t
	}
	return out
}

// Len returns the number of cached items
func (e CacheEntry[T]) Len() int {
	return len(e.Items)
}
