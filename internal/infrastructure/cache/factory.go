package cache

import (
	"context"
	"fmt"

	"github.com/erp/client/internal/domain/offline"
	"github.com/erp/client/internal/infrastructure/config"
	"go.uber.org/zap"
)

// SnapshotStoreFactory picks the snapshot backend configured for the mirror
type SnapshotStoreFactory struct {
	redisConfig      config.RedisConfig
	logger           *zap.Logger
	allowFallback    bool
	connectRedisFunc func(ctx context.Context, cfg config.RedisConfig) (offline.SnapshotStore, error)
}

// SnapshotStoreFactoryOption is a functional option for configuring the factory
type SnapshotStoreFactoryOption func(*SnapshotStoreFactory)

// WithLogger sets the logger for the factory
func WithLogger(logger *zap.Logger) SnapshotStoreFactoryOption {
	return func(f *SnapshotStoreFactory) {
		f.logger = logger
	}
}

// WithLocalFallback controls whether an unreachable Redis falls back to the local store.
// Default is true: a terminal that cannot reach Redis must still keep working offline.
func WithLocalFallback(allow bool) SnapshotStoreFactoryOption {
	return func(f *SnapshotStoreFactory) {
		f.allowFallback = allow
	}
}

// NewSnapshotStoreFactory creates a new factory
func NewSnapshotStoreFactory(cfg config.RedisConfig, opts ...SnapshotStoreFactoryOption) *SnapshotStoreFactory {
	f := &SnapshotStoreFactory{
		redisConfig:   cfg,
		logger:        zap.NewNop(),
		allowFallback: true,
		connectRedisFunc: func(ctx context.Context, cfg config.RedisConfig) (offline.SnapshotStore, error) {
			return NewRedisSnapshotStore(ctx, cfg)
		},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// CreateStore returns the store for backend. local is the sqlite store, used for
// the sqlite backend and as the fallback when Redis is unreachable.
func (f *SnapshotStoreFactory) CreateStore(ctx context.Context, backend string, local offline.SnapshotStore) (offline.SnapshotStore, error) {
	switch backend {
	case config.MirrorMemory:
		f.logger.Info("using in-memory snapshot store, cached entities will not survive a restart")
		return NewInMemorySnapshotStore(), nil

	case config.MirrorSQLite:
		if local == nil {
			return nil, fmt.Errorf("sqlite snapshot backend selected but no local store is open")
		}
		return local, nil

	case config.MirrorRedis:
		store, err := f.connectRedisFunc(ctx, f.redisConfig)
		if err == nil {
			f.logger.Info("using Redis snapshot store", zap.String("addr", f.redisConfig.Addr()))
			return store, nil
		}
		if !f.allowFallback || local == nil {
			return nil, fmt.Errorf("Redis snapshot store unavailable: %w", err)
		}
		f.logger.Warn("Redis unavailable, falling back to the local snapshot store",
			zap.String("addr", f.redisConfig.Addr()),
			zap.Error(err),
		)
		return local, nil
	}
	return nil, fmt.Errorf("unknown snapshot backend %q", backend)
}
