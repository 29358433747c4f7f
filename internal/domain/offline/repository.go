package offline

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Clock abstracts time for staleness and temporary ids
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall clock
type SystemClock struct{}

// Now returns time.Now()
func (SystemClock) Now() time.Time { return time.Now() }

// SnapshotStore is durable key/value storage for serialized cache entries.
// Get returns ErrNotFound when the key has never been written.
type SnapshotStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
}

// LedgerStore persists pending changes in enqueue order
type LedgerStore interface {
	// Append stores the change and assigns its Seq
	Append(ctx context.Context, change *PendingChange) error
	Update(ctx context.Context, change *PendingChange) error
	Delete(ctx context.Context, id uuid.UUID) error
	// List returns all changes ordered by Seq
	List(ctx context.Context) ([]*PendingChange, error)
}

type idempotencyKeyCtx struct{}

// WithIdempotencyKey attaches the key a remote call should send so replays are deduplicated
func WithIdempotencyKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, idempotencyKeyCtx{}, key)
}

// IdempotencyKey returns the key attached by WithIdempotencyKey
func IdempotencyKey(ctx context.Context) string {
	if key, ok := ctx.Value(idempotencyKeyCtx{}).(string); ok {
		return key
	}
	return ""
}
