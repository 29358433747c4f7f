package offline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/erp/client/internal/domain/offline"
	"go.uber.org/zap"
)

// ErrSourceClosed is returned when publishing to a closed ChannelSource
var ErrSourceClosed = errors.New("connectivity source closed")

// Monitor tracks connectivity as a two-state machine. Repeated identical events
// are ignored. Going online with auto sync enabled starts a flush in the background.
type Monitor struct {
	online      atomic.Bool
	perms       PermissionProvider
	logger      *zap.Logger
	onReconnect func(ctx context.Context)

	transition sync.Mutex
	listeners  *listenerSet[offline.ConnectivityEvent]
	wg         sync.WaitGroup
}

// NewMonitor creates a monitor in the given initial state
func NewMonitor(initialOnline bool, perms PermissionProvider, logger *zap.Logger) *Monitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Monitor{
		perms:     perms,
		logger:    logger,
		listeners: newListenerSet[offline.ConnectivityEvent]("connectivity", logger),
	}
	m.online.Store(initialOnline)
	return m
}

func (m *Monitor) setOnReconnect(fn func(ctx context.Context)) { m.onReconnect = fn }

// IsOnline reports the current state
func (m *Monitor) IsOnline() bool {
	return m.online.Load()
}

// Handle applies an event and reports whether it changed the state
func (m *Monitor) Handle(ctx context.Context, ev offline.ConnectivityEvent) bool {
	m.transition.Lock()
	defer m.transition.Unlock()

	if m.online.Load() == ev.Online {
		return false
	}
	m.online.Store(ev.Online)
	if ev.At.IsZero() {
		ev.At = time.Now()
	}

	m.logger.Info("connectivity changed", zap.Bool("online", ev.Online))
	m.listeners.publish(ev)

	if ev.Online && m.onReconnect != nil {
		if m.perms.Current().AutoSync {
			m.wg.Add(1)
			go func() {
				defer m.wg.Done()
				m.onReconnect(context.WithoutCancel(ctx))
			}()
		} else {
			m.logger.Info("auto sync disabled, pending changes kept for manual flush")
		}
	}
	return true
}

// Run consumes events until ctx is done or the source closes
func (m *Monitor) Run(ctx context.Context, src offline.EventSource) error {
	events := src.Events()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			m.Handle(ctx, ev)
		}
	}
}

// Wait blocks until background flushes started by reconnects have finished
func (m *Monitor) Wait() {
	m.wg.Wait()
}

// Subscribe registers a listener for state transitions
func (m *Monitor) Subscribe(fn func(offline.ConnectivityEvent)) (unsubscribe func()) {
	return m.listeners.add(fn)
}

// ChannelSource is an EventSource fed by Publish
type ChannelSource struct {
	mu     sync.RWMutex
	ch     chan offline.ConnectivityEvent
	closed bool
}

// NewChannelSource creates a source with the given buffer size
func NewChannelSource(buffer int) *ChannelSource {
	return &ChannelSource{ch: make(chan offline.ConnectivityEvent, buffer)}
}

// Events implements offline.EventSource
func (s *ChannelSource) Events() <-chan offline.ConnectivityEvent {
	return s.ch
}

// Publish sends an event, blocking until it is accepted or ctx is done
func (s *ChannelSource) Publish(ctx context.Context, online bool) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrSourceClosed
	}
	select {
	case s.ch <- offline.ConnectivityEvent{Online: online, At: time.Now()}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the source
func (s *ChannelSource) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}
