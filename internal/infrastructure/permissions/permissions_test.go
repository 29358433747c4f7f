package permissions

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/erp/client/internal/domain/offline"
	"github.com/erp/client/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFetcher struct {
	mu    sync.Mutex
	perms offline.OfflinePermissions
	err   error
	calls atomic.Int32
}

func (f *fakeFetcher) FetchPermissions(context.Context) (offline.OfflinePermissions, error) {
	f.calls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.perms, f.err
}

func (f *fakeFetcher) set(p offline.OfflinePermissions, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.perms, f.err = p, err
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*offline.OfflinePermissions)
		wantErr string
	}{
		{"defaults are valid", func(*offline.OfflinePermissions) {}, ""},
		{"zero quota is valid", func(p *offline.OfflinePermissions) { p.MaxPendingChanges = 0 }, ""},
		{"missing version", func(p *offline.OfflinePermissions) { p.Version = 0 }, "version"},
		{"future version", func(p *offline.OfflinePermissions) { p.Version = 2 }, "version"},
		{"negative quota", func(p *offline.OfflinePermissions) { p.MaxPendingChanges = -1 }, "maxPendingChanges"},
		{"huge quota", func(p *offline.OfflinePermissions) { p.MaxPendingChanges = 1_000_000 }, "maxPendingChanges"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := offline.DefaultOfflinePermissions()
			tt.mutate(&p)
			err := Validate(p)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, offline.ErrInvalidInput)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestStore(t *testing.T) {
	t.Run("rejects invalid initial permissions", func(t *testing.T) {
		_, err := NewStore(offline.OfflinePermissions{}, nil)
		assert.ErrorIs(t, err, offline.ErrInvalidInput)
	})

	t.Run("replace notifies only on change", func(t *testing.T) {
		store, err := NewStore(offline.DefaultOfflinePermissions(), nil)
		require.NoError(t, err)

		var got []offline.OfflinePermissions
		unsubscribe := store.Subscribe(func(p offline.OfflinePermissions) { got = append(got, p) })

		changed, err := store.Replace(offline.DefaultOfflinePermissions())
		require.NoError(t, err)
		assert.False(t, changed)

		next := offline.DefaultOfflinePermissions()
		next.Enabled = false
		changed, err = store.Replace(next)
		require.NoError(t, err)
		assert.True(t, changed)
		assert.Equal(t, next, store.Current())

		unsubscribe()
		unsubscribe()
		next.CanEdit = false
		_, err = store.Replace(next)
		require.NoError(t, err)

		require.Len(t, got, 1)
		assert.False(t, got[0].Enabled)
	})

	t.Run("invalid replacement keeps current", func(t *testing.T) {
		store, err := NewStore(offline.DefaultOfflinePermissions(), nil)
		require.NoError(t, err)

		bad := offline.DefaultOfflinePermissions()
		bad.MaxPendingChanges = -3
		_, err = store.Replace(bad)
		assert.Error(t, err)
		assert.Equal(t, offline.DefaultOfflinePermissions(), store.Current())
	})
}

func TestNewSource(t *testing.T) {
	static := config.OfflineConfig{Source: config.PermissionsStatic, Permissions: offline.DefaultOfflinePermissions()}
	src, err := NewSource(static, nil)
	require.NoError(t, err)
	perms, err := src.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, static.Permissions, perms)

	_, err = NewSource(config.OfflineConfig{Source: config.PermissionsRemote}, nil)
	assert.Error(t, err)

	src, err = NewSource(config.OfflineConfig{Source: config.PermissionsRemote}, &fakeFetcher{})
	require.NoError(t, err)
	assert.IsType(t, &RemoteSource{}, src)

	_, err = NewSource(config.OfflineConfig{Source: "ldap"}, nil)
	assert.Error(t, err)
}

func TestRefresher(t *testing.T) {
	remote := offline.DefaultOfflinePermissions()
	remote.CanDelete = true

	t.Run("initial load applies remote permissions", func(t *testing.T) {
		store, err := NewStore(offline.DefaultOfflinePermissions(), nil)
		require.NoError(t, err)
		fetcher := &fakeFetcher{perms: remote}

		r := NewRefresher(NewRemoteSource(fetcher), store, 0, nil)
		require.NoError(t, r.Start(context.Background()))
		require.NoError(t, r.Stop(context.Background()))

		assert.True(t, store.Current().CanDelete)
		assert.Equal(t, int32(1), fetcher.calls.Load())
	})

	t.Run("failed and invalid loads keep the last good version", func(t *testing.T) {
		store, err := NewStore(offline.DefaultOfflinePermissions(), nil)
		require.NoError(t, err)
		fetcher := &fakeFetcher{perms: remote}
		r := NewRefresher(NewRemoteSource(fetcher), store, 0, nil)

		require.NoError(t, r.Refresh(context.Background()))

		fetcher.set(offline.OfflinePermissions{}, offline.NewNetworkError("GET /settings/offline", errors.New("refused")))
		assert.True(t, offline.IsNetworkFailure(r.Refresh(context.Background())))
		assert.Equal(t, remote, store.Current())

		invalid := remote
		invalid.Version = 9
		fetcher.set(invalid, nil)
		assert.ErrorIs(t, r.Refresh(context.Background()), offline.ErrInvalidInput)
		assert.Equal(t, remote, store.Current())
	})

	t.Run("background loop picks up changes", func(t *testing.T) {
		store, err := NewStore(offline.DefaultOfflinePermissions(), nil)
		require.NoError(t, err)
		fetcher := &fakeFetcher{perms: offline.DefaultOfflinePermissions()}

		changed := make(chan offline.OfflinePermissions, 1)
		store.Subscribe(func(p offline.OfflinePermissions) {
			select {
			case changed <- p:
			default:
			}
		})

		r := NewRefresher(NewRemoteSource(fetcher), store, 5*time.Millisecond, nil)
		require.NoError(t, r.Start(context.Background()))
		defer func() { require.NoError(t, r.Stop(context.Background())) }()

		fetcher.set(remote, nil)
		select {
		case p := <-changed:
			assert.True(t, p.CanDelete)
		case <-time.After(2 * time.Second):
			t.Fatal("refresher did not apply the new permissions")
		}
	})
}
