package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/erp/client/internal/domain/offline"
	"github.com/erp/client/internal/infrastructure/config"
	"github.com/redis/go-redis/v9"
)

const defaultSnapshotKeyPrefix = "erp:client:"

// RedisSnapshotStore implements offline.SnapshotStore on Redis.
// Terminals sharing one Redis see each other's cached entities after a restart.
type RedisSnapshotStore struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisSnapshotStore connects to Redis and verifies the connection
func NewRedisSnapshotStore(ctx context.Context, cfg config.RedisConfig) (*RedisSnapshotStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisSnapshotStoreWithClient(client, cfg.KeyPrefix), nil
}

// NewRedisSnapshotStoreWithClient creates a store with an existing Redis client
func NewRedisSnapshotStoreWithClient(client *redis.Client, keyPrefix string) *RedisSnapshotStore {
	if keyPrefix == "" {
		keyPrefix = defaultSnapshotKeyPrefix
	}
	return &RedisSnapshotStore{client: client, keyPrefix: keyPrefix}
}

// Get returns the stored snapshot, or offline.ErrNotFound
func (s *RedisSnapshotStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.Get(ctx, s.keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, offline.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: load snapshot %q: %w", offline.ErrPersistenceFailure, key, err)
	}
	return data, nil
}

// Put stores the snapshot without expiry; staleness is tracked inside the snapshot
func (s *RedisSnapshotStore) Put(ctx context.Context, key string, data []byte) error {
	if err := s.client.Set(ctx, s.keyPrefix+key, data, 0).Err(); err != nil {
		return fmt.Errorf("%w: save snapshot %q: %w", offline.ErrPersistenceFailure, key, err)
	}
	return nil
}

// Delete removes the snapshot
func (s *RedisSnapshotStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("%w: delete snapshot %q: %w", offline.ErrPersistenceFailure, key, err)
	}
	return nil
}

// Close closes the Redis client
func (s *RedisSnapshotStore) Close() error {
	return s.client.Close()
}
