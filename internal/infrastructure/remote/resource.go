package remote

import (
	"context"
	"net/url"

	"github.com/erp/client/internal/domain/offline"
)

// Resource is the REST collection of one entity. It implements the engine's EntityAPI.
type Resource[T any] struct {
	client *Client
	path   string
}

// NewResource creates the resource served under /<entity>
func NewResource[T any](client *Client, entity string) *Resource[T] {
	return &Resource[T]{client: client, path: "/" + url.PathEscape(entity)}
}

// List returns every record of the entity
func (r *Resource[T]) List(ctx context.Context) ([]T, error) {
	var items []T
	if err := r.client.Get(ctx, r.path, &items); err != nil {
		return nil, err
	}
	if items == nil {
		items = []T{}
	}
	return items, nil
}

// Create posts a new record and returns the server copy
func (r *Resource[T]) Create(ctx context.Context, item T) (T, error) {
	var created T
	err := r.client.Post(ctx, r.path, item, &created)
	return created, err
}

// Update replaces the record with the given id and returns the server copy
func (r *Resource[T]) Update(ctx context.Context, id offline.ID, item T) (T, error) {
	var updated T
	err := r.client.Put(ctx, r.itemPath(id), item, &updated)
	return updated, err
}

// Delete removes the record with the given id
func (r *Resource[T]) Delete(ctx context.Context, id offline.ID) error {
	return r.client.Delete(ctx, r.itemPath(id))
}

func (r *Resource[T]) itemPath(id offline.ID) string {
	return r.path + "/" + url.PathEscape(id.String())
}
