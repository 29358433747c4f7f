package offline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/erp/client/internal/domain/offline"
	"go.uber.org/zap"
)

// DefaultMirrorWriteTimeout bounds a single durable write
const DefaultMirrorWriteTimeout = 5 * time.Second

// Mirror copies serialized cache entries to durable storage in the background.
// Save never blocks on storage: writes are coalesced per key and handed to a single
// writer goroutine. Storage failures are logged and never returned to callers.
type Mirror struct {
	store        offline.SnapshotStore
	logger       *zap.Logger
	writeTimeout time.Duration
	onFailure    func(key string, err error)

	mu      sync.Mutex
	pending map[string][]byte
	closed  bool

	wake    chan struct{}
	flushCh chan chan struct{}
	stopCh  chan struct{}
	stopped chan struct{}
	once    sync.Once
}

// MirrorOption configures a Mirror
type MirrorOption func(*Mirror)

// WithMirrorLogger sets the logger
func WithMirrorLogger(logger *zap.Logger) MirrorOption {
	return func(m *Mirror) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithMirrorWriteTimeout sets the timeout applied to each durable write
func WithMirrorWriteTimeout(d time.Duration) MirrorOption {
	return func(m *Mirror) {
		if d > 0 {
			m.writeTimeout = d
		}
	}
}

// WithMirrorFailureHook registers a callback invoked after a failed write
func WithMirrorFailureHook(fn func(key string, err error)) MirrorOption {
	return func(m *Mirror) {
		m.onFailure = fn
	}
}

// NewMirror starts a mirror writing to store. A nil store keeps everything in memory.
func NewMirror(store offline.SnapshotStore, opts ...MirrorOption) *Mirror {
	m := &Mirror{
		store:        store,
		logger:       zap.NewNop(),
		writeTimeout: DefaultMirrorWriteTimeout,
		pending:      make(map[string][]byte),
		wake:         make(chan struct{}, 1),
		flushCh:      make(chan chan struct{}),
		stopCh:       make(chan struct{}),
		stopped:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}

	if store == nil {
		close(m.stopped)
		return m
	}

	go m.run()
	return m
}

// Save schedules data to be written under key. Later saves of the same key
// replace earlier ones that have not been written yet.
func (m *Mirror) Save(key string, data []byte) {
	if m.store == nil {
		return
	}
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		m.write(key, data)
		return
	}
	m.pending[key] = data
	m.mu.Unlock()

	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// Load reads the data stored under key. Pending writes are visible to Load.
// Missing keys and storage failures both report false.
func (m *Mirror) Load(ctx context.Context, key string) ([]byte, bool) {
	if m.store == nil {
		return nil, false
	}

	m.mu.Lock()
	data, ok := m.pending[key]
	m.mu.Unlock()
	if ok {
		return data, true
	}

	data, err := m.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, offline.ErrNotFound) {
			m.logger.Warn("failed to load snapshot",
				zap.String("key", key),
				zap.Error(err),
			)
		}
		return nil, false
	}
	return data, true
}

// Flush blocks until every write scheduled before the call has been attempted
func (m *Mirror) Flush(ctx context.Context) error {
	done := make(chan struct{})
	select {
	case m.flushCh <- done:
	case <-m.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close writes any pending data and stops the writer
func (m *Mirror) Close(ctx context.Context) error {
	m.once.Do(func() {
		if m.store != nil {
			close(m.stopCh)
		}
	})

	select {
	case <-m.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Mirror) run() {
	defer close(m.stopped)

	for {
		select {
		case <-m.wake:
			m.drain()
		case done := <-m.flushCh:
			m.drain()
			close(done)
		case <-m.stopCh:
			m.mu.Lock()
			m.closed = true
			m.mu.Unlock()
			m.drain()
			return
		}
	}
}

// drain writes pending entries until none are left
func (m *Mirror) drain() {
	for {
		m.mu.Lock()
		batch := m.pending
		if len(batch) == 0 {
			m.mu.Unlock()
			return
		}
		m.pending = make(map[string][]byte)
		m.mu.Unlock()

		for key, data := range batch {
			m.write(key, data)
		}
	}
}

func (m *Mirror) write(key string, data []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), m.writeTimeout)
	defer cancel()

	if err := m.store.Put(ctx, key, data); err != nil {
		m.logger.Warn("failed to persist snapshot",
			zap.String("key", key),
			zap.String("code", offline.CodePersistenceFailure),
			zap.Error(err),
		)
		if m.onFailure != nil {
			m.onFailure(key, err)
		}
	}
}
