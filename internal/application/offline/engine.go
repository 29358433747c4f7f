// Package offline keeps entity records usable while the server is unreachable.
//
// An Engine owns one cache per registered entity, the ledger of changes that
// still have to reach the server, and the connectivity monitor. All writes go
// through EntityStore.Mutate, which applies them optimistically and either
// settles them with the server, queues them for replay, or rolls them back.
package offline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/erp/client/internal/domain/offline"
	"github.com/erp/client/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// entityHandle is the type-erased side of an EntityStore used by the Engine
type entityHandle interface {
	replay(ctx context.Context, change offline.PendingChange) error
	discard(ctx context.Context, change offline.PendingChange)
}

type engineOptions struct {
	logger       *zap.Logger
	clock        offline.Clock
	ttl          time.Duration
	keyPrefix    string
	recorder     Recorder
	limiter      *rate.Limiter
	online       bool
	writeTimeout time.Duration
}

// Option configures an Engine
type Option func(*engineOptions)

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(o *engineOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithClock sets the clock used for staleness and temporary ids
func WithClock(clock offline.Clock) Option {
	return func(o *engineOptions) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithTTL sets how long fetched data stays fresh
func WithTTL(ttl time.Duration) Option {
	return func(o *engineOptions) {
		o.ttl = ttl
	}
}

// WithKeyPrefix namespaces persisted cache entries
func WithKeyPrefix(prefix string) Option {
	return func(o *engineOptions) {
		o.keyPrefix = prefix
	}
}

// WithRecorder sets the metrics recorder
func WithRecorder(r Recorder) Option {
	return func(o *engineOptions) {
		if r != nil {
			o.recorder = r
		}
	}
}

// WithFlushRate paces replays during a flush
func WithFlushRate(limiter *rate.Limiter) Option {
	return func(o *engineOptions) {
		o.limiter = limiter
	}
}

// WithInitialOnline sets the connectivity state before the first event arrives
func WithInitialOnline(online bool) Option {
	return func(o *engineOptions) {
		o.online = online
	}
}

// WithSnapshotWriteTimeout bounds each durable cache write
func WithSnapshotWriteTimeout(d time.Duration) Option {
	return func(o *engineOptions) {
		o.writeTimeout = d
	}
}

// Engine wires caches, ledger, monitor and policy gate together
type Engine struct {
	perms    PermissionProvider
	clock    offline.Clock
	logger   *zap.Logger
	recorder Recorder
	cacheCfg CacheConfig

	mirror  *Mirror
	ledger  *Ledger
	monitor *Monitor
	gate    *PolicyGate

	mu       sync.RWMutex
	entities map[string]entityHandle

	publishMu      sync.Mutex
	state          offline.ConnectivityState
	statePublished bool
	stateListeners *listenerSet[offline.ConnectivityState]
}

// NewEngine creates an engine. Nil stores keep caches and pending changes in memory.
func NewEngine(snapshots offline.SnapshotStore, changes offline.LedgerStore, perms PermissionProvider, opts ...Option) *Engine {
	o := engineOptions{
		logger:   zap.NewNop(),
		clock:    offline.SystemClock{},
		ttl:      offline.DefaultTTL,
		recorder: nopRecorder{},
		online:   true,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if perms == nil {
		perms = StaticPermissions(offline.DefaultOfflinePermissions())
	}

	e := &Engine{
		perms:          perms,
		clock:          o.clock,
		logger:         o.logger,
		recorder:       o.recorder,
		entities:       make(map[string]entityHandle),
		stateListeners: newListenerSet[offline.ConnectivityState]("state", o.logger),
	}

	e.mirror = NewMirror(snapshots,
		WithMirrorLogger(o.logger.Named("mirror")),
		WithMirrorWriteTimeout(o.writeTimeout),
	)
	e.ledger = NewLedger(changes, perms,
		WithLedgerLogger(o.logger.Named("ledger")),
		WithLedgerClock(o.clock),
		WithReplayLimiter(o.limiter),
	)
	e.monitor = NewMonitor(o.online, perms, o.logger.Named("connectivity"))
	e.gate = NewPolicyGate(e.monitor.IsOnline, perms)

	e.cacheCfg = CacheConfig{
		KeyPrefix: o.keyPrefix,
		TTL:       o.ttl,
		Clock:     o.clock,
		Mirror:    e.mirror,
		Logger:    o.logger.Named("cache"),
	}

	e.ledger.setOnline(e.monitor.IsOnline)
	e.ledger.setOnChange(e.publishState)
	e.monitor.setOnReconnect(e.autoFlush)
	e.monitor.Subscribe(func(offline.ConnectivityEvent) { e.publishState() })

	return e
}

// Register creates the store of an entity and restores its cache from the mirror
func Register[T offline.Record[T]](e *Engine, name string, api EntityAPI[T]) (*EntityStore[T], error) {
	if name == "" || api == nil {
		return nil, fmt.Errorf("%w: entity name and api are required", offline.ErrInvalidInput)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.entities[name]; exists {
		return nil, fmt.Errorf("%w: entity %q already registered", offline.ErrInvalidInput, name)
	}

	logger := e.logger.With(zap.String("entity", name))
	s := &EntityStore[T]{
		name:     name,
		cache:    NewEntityCache[T](name, e.cacheCfg),
		api:      api,
		ledger:   e.ledger,
		gate:     e.gate,
		online:   e.monitor.IsOnline,
		clock:    e.clock,
		logger:   logger,
		recorder: e.recorder,
		aliases:  make(map[offline.ID]offline.ID),
	}
	s.hydrate(context.Background())
	e.entities[name] = s
	return s, nil
}

// Start restores pending changes from the ledger store
func (e *Engine) Start(ctx context.Context) error {
	if err := e.ledger.Load(ctx); err != nil {
		return fmt.Errorf("load pending changes: %w", err)
	}
	e.publishState()
	e.logger.Info("offline engine started",
		zap.Bool("online", e.monitor.IsOnline()),
		zap.Int("pending", e.ledger.Count()),
		zap.Strings("entities", e.Entities()),
	)
	return nil
}

// Entities returns the registered entity names in sorted order
func (e *Engine) Entities() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	names := make([]string, 0, len(e.entities))
	for name := range e.entities {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (e *Engine) handle(name string) (entityHandle, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	h, ok := e.entities[name]
	return h, ok
}

// State returns the connectivity state seen by the UI
func (e *Engine) State() offline.ConnectivityState {
	return offline.NewConnectivityState(
		e.monitor.IsOnline(),
		e.ledger.IsSyncing(),
		e.ledger.Count(),
		e.perms.Current(),
	)
}

// IsOnline reports connectivity
func (e *Engine) IsOnline() bool { return e.monitor.IsOnline() }

// IsSyncing reports whether a flush is running
func (e *Engine) IsSyncing() bool { return e.State().IsSyncing }

// PendingChangesCount returns the ledger size
func (e *Engine) PendingChangesCount() int { return e.ledger.Count() }

// CanPerformOffline reports whether action may run now
func (e *Engine) CanPerformOffline(action offline.Action) bool {
	return e.gate.CanPerformOffline(action)
}

// Permissions returns the permissions in force
func (e *Engine) Permissions() offline.OfflinePermissions {
	return e.perms.Current()
}

// SubscribeState calls listener with the current state and after every change.
// Listeners run synchronously and must not change connectivity or flush from within.
func (e *Engine) SubscribeState(listener func(offline.ConnectivityState)) (unsubscribe func()) {
	unsubscribe = e.stateListeners.add(listener)
	e.stateListeners.deliver(listener, e.State())
	return unsubscribe
}

// RefreshState republishes the state, for example after permissions changed
func (e *Engine) RefreshState() {
	e.publishState()
}

func (e *Engine) publishState() {
	e.publishMu.Lock()
	defer e.publishMu.Unlock()

	state := e.State()
	if e.statePublished && state == e.state {
		return
	}
	pendingChanged := !e.statePublished || state.PendingChangesCount != e.state.PendingChangesCount
	e.state = state
	e.statePublished = true

	if pendingChanged {
		e.recorder.PendingChanged(context.Background(), state.PendingChangesCount)
	}
	e.stateListeners.publish(state)
}

// SetOnline feeds a connectivity event and reports whether the state changed
func (e *Engine) SetOnline(ctx context.Context, online bool) bool {
	return e.monitor.Handle(ctx, offline.ConnectivityEvent{Online: online, At: e.clock.Now()})
}

// Run consumes connectivity events until ctx is done or src closes
func (e *Engine) Run(ctx context.Context, src offline.EventSource) error {
	return e.monitor.Run(ctx, src)
}

// Monitor returns the connectivity monitor
func (e *Engine) Monitor() *Monitor { return e.monitor }

// Ledger returns the pending change ledger
func (e *Engine) Ledger() *Ledger { return e.ledger }

// Flush replays pending changes through the stores that own them
func (e *Engine) Flush(ctx context.Context) (FlushReport, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "offline.ledger", "flush")
	defer span.End()

	if !e.monitor.IsOnline() {
		return FlushReport{Aborted: true, Remaining: e.ledger.Count()}, offline.ErrNetworkFailure
	}

	start := time.Now()
	report, err := e.ledger.Flush(ctx, e.replay)
	if err != nil {
		telemetry.RecordError(span, err)
		return report, err
	}
	telemetry.SetAttributes(span,
		telemetry.SpanAttrReplayed, report.Replayed,
		telemetry.SpanAttrFailed, report.Failed,
		telemetry.SpanAttrRemaining, report.Remaining,
		telemetry.SpanAttrAborted, report.Aborted,
	)
	if report.Skipped {
		e.logger.Debug("flush already running")
		return report, nil
	}

	e.recorder.FlushCompleted(ctx, report.Replayed, report.Failed, time.Since(start))
	e.logger.Info("flush finished",
		zap.Int("replayed", report.Replayed),
		zap.Int("failed", report.Failed),
		zap.Int("remaining", report.Remaining),
		zap.Bool("aborted", report.Aborted),
	)
	return report, nil
}

func (e *Engine) replay(ctx context.Context, change offline.PendingChange) error {
	h, ok := e.handle(change.Entity)
	if !ok {
		return fmt.Errorf("%w: %s", offline.ErrUnknownEntity, change.Entity)
	}
	err := h.replay(ctx, change)
	if err != nil && !errors.Is(err, ErrNotQueued) && !offline.IsNetworkFailure(err) {
		telemetry.AddEvent(trace.SpanFromContext(ctx), "change_rejected",
			telemetry.SpanAttrChangeID, change.ID.String(),
			telemetry.SpanAttrEntity, change.Entity,
			telemetry.SpanAttrAction, change.Action.String(),
		)
	}
	return err
}

func (e *Engine) autoFlush(ctx context.Context) {
	if e.ledger.Count() == 0 {
		return
	}
	if _, err := e.Flush(ctx); err != nil {
		e.logger.Warn("automatic flush failed", zap.Error(err))
	}
}

// Pending returns the queued changes in replay order
func (e *Engine) Pending() []*offline.PendingChange {
	return e.ledger.List()
}

// Discard drops a queued change the server keeps rejecting
func (e *Engine) Discard(ctx context.Context, id uuid.UUID) error {
	change, ok := e.ledger.Get(id)
	if !ok {
		return fmt.Errorf("%w: pending change %s", offline.ErrNotFound, id)
	}

	if h, ok := e.handle(change.Entity); ok {
		h.discard(ctx, *change)
	} else {
		e.ledger.Remove(ctx, id)
	}
	e.logger.Info("pending change discarded",
		zap.String("change_id", id.String()),
		zap.String("entity", change.Entity),
		zap.String("action", change.Action.String()),
	)
	return nil
}

// Close waits for background flushes and writes out pending cache snapshots
func (e *Engine) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		e.monitor.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return e.mirror.Close(ctx)
}

// FlushSnapshots blocks until cache snapshots written so far reached the store
func (e *Engine) FlushSnapshots(ctx context.Context) error {
	return e.mirror.Flush(ctx)
}
