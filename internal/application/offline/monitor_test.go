package offline

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/erp/client/internal/domain/offline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonitor_Transitions(t *testing.T) {
	tests := []struct {
		name        string
		initial     bool
		events      []bool
		wantChanges []bool
		wantOnline  bool
	}{
		{"duplicate online ignored", true, []bool{true, true}, nil, true},
		{"go offline", true, []bool{false}, []bool{false}, false},
		{"duplicate offline ignored", true, []bool{false, false, false}, []bool{false}, false},
		{"offline then online", true, []bool{false, true}, []bool{false, true}, true},
		{"flapping", false, []bool{true, false, false, true}, []bool{true, false, true}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMonitor(tt.initial, permsWith(nil), nil)
			var got []bool
			m.Subscribe(func(ev offline.ConnectivityEvent) { got = append(got, ev.Online) })

			for _, online := range tt.events {
				m.Handle(context.Background(), offline.ConnectivityEvent{Online: online})
			}

			assert.Equal(t, tt.wantChanges, got)
			assert.Equal(t, tt.wantOnline, m.IsOnline())
		})
	}
}

func TestMonitor_ReconnectTriggersFlushOnlyWithAutoSync(t *testing.T) {
	tests := []struct {
		name     string
		autoSync bool
		want     int32
	}{
		{"auto sync on", true, 1},
		{"auto sync off", false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMonitor(false, permsWith(func(p *offline.OfflinePermissions) { p.AutoSync = tt.autoSync }), nil)
			var flushes atomic.Int32
			m.setOnReconnect(func(context.Context) { flushes.Add(1) })

			m.Handle(context.Background(), offline.ConnectivityEvent{Online: true})
			m.Handle(context.Background(), offline.ConnectivityEvent{Online: true})
			m.Wait()

			assert.Equal(t, tt.want, flushes.Load())
		})
	}
}

func TestMonitor_ReconnectFlushOutlivesEventContext(t *testing.T) {
	m := NewMonitor(false, permsWith(nil), nil)
	var flushCtxErr error
	m.setOnReconnect(func(ctx context.Context) { flushCtxErr = ctx.Err() })

	ctx, cancel := context.WithCancel(context.Background())
	m.Handle(ctx, offline.ConnectivityEvent{Online: true})
	cancel()
	m.Wait()

	assert.NoError(t, flushCtxErr)
}

func TestMonitor_RunConsumesSource(t *testing.T) {
	m := NewMonitor(true, permsWith(nil), nil)
	src := NewChannelSource(4)

	var mu sync.Mutex
	var got []bool
	m.Subscribe(func(ev offline.ConnectivityEvent) {
		mu.Lock()
		got = append(got, ev.Online)
		mu.Unlock()
	})

	done := make(chan error, 1)
	go func() { done <- m.Run(context.Background(), src) }()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, src.Publish(ctx, false))
	require.NoError(t, src.Publish(ctx, false))
	require.NoError(t, src.Publish(ctx, true))
	src.Close()

	require.NoError(t, <-done)
	mu.Lock()
	assert.Equal(t, []bool{false, true}, got)
	mu.Unlock()

	assert.ErrorIs(t, src.Publish(ctx, true), ErrSourceClosed)
}

func TestMonitor_RunStopsOnCancel(t *testing.T) {
	m := NewMonitor(true, permsWith(nil), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := m.Run(ctx, NewChannelSource(0))
	assert.ErrorIs(t, err, context.Canceled)
}
