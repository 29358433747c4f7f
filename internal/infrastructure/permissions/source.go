package permissions

import (
	"context"
	"fmt"

	"github.com/erp/client/internal/domain/offline"
	"github.com/erp/client/internal/infrastructure/config"
)

// Source produces a permission set
type Source interface {
	Load(ctx context.Context) (offline.OfflinePermissions, error)
}

// StaticSource always returns the configured permissions
type StaticSource struct {
	perms offline.OfflinePermissions
}

// NewStaticSource creates a source for fixed permissions
func NewStaticSource(perms offline.OfflinePermissions) *StaticSource {
	return &StaticSource{perms: perms}
}

// Load implements Source
func (s *StaticSource) Load(context.Context) (offline.OfflinePermissions, error) {
	return s.perms, nil
}

// Fetcher reads permissions from the tenant settings API
type Fetcher interface {
	FetchPermissions(ctx context.Context) (offline.OfflinePermissions, error)
}

// RemoteSource loads permissions from the settings API
type RemoteSource struct {
	fetcher Fetcher
}

// NewRemoteSource creates a source backed by fetcher
func NewRemoteSource(fetcher Fetcher) *RemoteSource {
	return &RemoteSource{fetcher: fetcher}
}

// Load implements Source
func (s *RemoteSource) Load(ctx context.Context) (offline.OfflinePermissions, error) {
	perms, err := s.fetcher.FetchPermissions(ctx)
	if err != nil {
		return offline.OfflinePermissions{}, fmt.Errorf("fetch offline permissions: %w", err)
	}
	return perms, nil
}

// NewSource picks the source named by cfg.Source
func NewSource(cfg config.OfflineConfig, fetcher Fetcher) (Source, error) {
	switch cfg.Source {
	case config.PermissionsStatic, "":
		return NewStaticSource(cfg.Permissions), nil
	case config.PermissionsRemote:
		if fetcher == nil {
			return nil, fmt.Errorf("remote permission source requires a settings client")
		}
		return NewRemoteSource(fetcher), nil
	}
	return nil, fmt.Errorf("unknown permission source %q", cfg.Source)
}
