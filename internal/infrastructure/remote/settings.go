package remote

import (
	"context"

	"github.com/erp/client/internal/domain/offline"
)

// SettingsClient reads tenant settings from the API
type SettingsClient struct {
	client *Client
	path   string
}

// NewSettingsClient creates a client for the offline settings endpoint
func NewSettingsClient(client *Client, path string) *SettingsClient {
	if path == "" {
		path = "/settings/offline"
	}
	return &SettingsClient{client: client, path: path}
}

// FetchPermissions returns the offline permissions configured for the tenant.
// Fields the server omits keep their defaults. The result is not validated here.
func (s *SettingsClient) FetchPermissions(ctx context.Context) (offline.OfflinePermissions, error) {
	perms := offline.DefaultOfflinePermissions()
	if err := s.client.Get(ctx, s.path, &perms); err != nil {
		return offline.OfflinePermissions{}, err
	}
	return perms, nil
}
