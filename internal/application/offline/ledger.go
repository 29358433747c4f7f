package offline

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/erp/client/internal/domain/offline"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ReplayFunc sends one pending change to the server
type ReplayFunc func(ctx context.Context, change offline.PendingChange) error

// ErrNotQueued is returned by a ReplayFunc when the change left the ledger after
// the flush started, e.g. because it was discarded or superseded. It is neither
// counted as replayed nor as failed.
var ErrNotQueued = errors.New("pending change is no longer queued")

// FlushReport summarizes a flush
type FlushReport struct {
	Replayed  int  `json:"replayed"`
	Failed    int  `json:"failed"`
	Remaining int  `json:"remaining"`
	Skipped   bool `json:"skipped"`
	Aborted   bool `json:"aborted"`
}

// Ledger is the ordered queue of changes applied locally but not yet accepted
// by the server. The in-memory queue is authoritative; the store is written
// through so the queue survives restarts.
type Ledger struct {
	store    offline.LedgerStore
	perms    PermissionProvider
	clock    offline.Clock
	logger   *zap.Logger
	limiter  *rate.Limiter
	online   func() bool
	onChange func()

	mu      sync.Mutex
	changes []*offline.PendingChange
	nextSeq int64

	syncing atomic.Bool
}

// LedgerOption configures a Ledger
type LedgerOption func(*Ledger)

// WithLedgerLogger sets the logger
func WithLedgerLogger(logger *zap.Logger) LedgerOption {
	return func(l *Ledger) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithLedgerClock sets the clock used for enqueue timestamps
func WithLedgerClock(clock offline.Clock) LedgerOption {
	return func(l *Ledger) {
		if clock != nil {
			l.clock = clock
		}
	}
}

// WithReplayLimiter paces replays during a flush
func WithReplayLimiter(limiter *rate.Limiter) LedgerOption {
	return func(l *Ledger) {
		l.limiter = limiter
	}
}

// NewLedger creates an empty ledger. A nil store keeps the queue in memory only.
func NewLedger(store offline.LedgerStore, perms PermissionProvider, opts ...LedgerOption) *Ledger {
	l := &Ledger{
		store:   store,
		perms:   perms,
		clock:   offline.SystemClock{},
		logger:  zap.NewNop(),
		nextSeq: 1,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Ledger) setOnline(fn func() bool) { l.online = fn }

func (l *Ledger) setOnChange(fn func()) { l.onChange = fn }

func (l *Ledger) changed() {
	if l.onChange != nil {
		l.onChange()
	}
}

// Load replaces the in-memory queue with the stored one
func (l *Ledger) Load(ctx context.Context) error {
	if l.store == nil {
		return nil
	}
	changes, err := l.store.List(ctx)
	if err != nil {
		return err
	}

	l.mu.Lock()
	l.changes = changes
	for _, c := range changes {
		if c.Seq >= l.nextSeq {
			l.nextSeq = c.Seq + 1
		}
	}
	l.mu.Unlock()

	if len(changes) > 0 {
		l.logger.Info("restored pending changes", zap.Int("count", len(changes)))
	}
	l.changed()
	return nil
}

func (l *Ledger) maxPending() int {
	limit := l.perms.Current().MaxPendingChanges
	if limit <= 0 {
		return offline.DefaultMaxPendingChanges
	}
	return limit
}

// HasCapacity reports whether another change can be enqueued
func (l *Ledger) HasCapacity() bool {
	return l.Count() < l.maxPending()
}

// Enqueue appends a change. It fails with ErrQuotaExceeded when the ledger is full.
// A store failure is logged and the change stays queued in memory.
func (l *Ledger) Enqueue(ctx context.Context, change *offline.PendingChange) error {
	if change.EnqueuedAt.IsZero() {
		change.EnqueuedAt = l.clock.Now()
	}

	l.mu.Lock()
	if len(l.changes) >= l.maxPending() {
		l.mu.Unlock()
		return offline.ErrQuotaExceeded
	}

	if l.store != nil {
		if err := l.store.Append(ctx, change); err != nil {
			l.logger.Warn("failed to persist pending change",
				zap.String("change_id", change.ID.String()),
				zap.String("code", offline.CodePersistenceFailure),
				zap.Error(err),
			)
		}
	}
	if change.Seq < l.nextSeq {
		change.Seq = l.nextSeq
	}
	l.nextSeq = change.Seq + 1
	l.changes = append(l.changes, change.Clone())
	l.mu.Unlock()

	l.logger.Debug("change queued",
		zap.String("entity", change.Entity),
		zap.String("action", change.Action.String()),
		zap.String("record_id", change.RecordID.String()),
	)
	l.changed()
	return nil
}

// Count returns the number of pending changes
func (l *Ledger) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.changes)
}

// IsSyncing reports whether a flush is running
func (l *Ledger) IsSyncing() bool {
	return l.syncing.Load()
}

// List returns copies of the pending changes in enqueue order
func (l *Ledger) List() []*offline.PendingChange {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]*offline.PendingChange, len(l.changes))
	for i, c := range l.changes {
		out[i] = c.Clone()
	}
	return out
}

// Get returns a copy of the change with the given id
func (l *Ledger) Get(id uuid.UUID) (*offline.PendingChange, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if i := l.indexLocked(id); i >= 0 {
		return l.changes[i].Clone(), true
	}
	return nil, false
}

// Remove deletes the change with the given id
func (l *Ledger) Remove(ctx context.Context, id uuid.UUID) bool {
	l.mu.Lock()
	i := l.indexLocked(id)
	if i < 0 {
		l.mu.Unlock()
		return false
	}
	l.changes = append(l.changes[:i], l.changes[i+1:]...)
	l.deleteStoredLocked(ctx, id)
	l.mu.Unlock()

	l.changed()
	return true
}

// PendingCreate returns the queued create of a record, if any
func (l *Ledger) PendingCreate(entity string, recordID offline.ID) (*offline.PendingChange, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, c := range l.changes {
		if c.Entity == entity && c.RecordID == recordID && c.Action == offline.ActionCreate {
			return c.Clone(), true
		}
	}
	return nil, false
}

// Rewrite replaces the payload of a queued change
func (l *Ledger) Rewrite(ctx context.Context, id uuid.UUID, payload json.RawMessage) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	i := l.indexLocked(id)
	if i < 0 {
		return false
	}
	l.changes[i].Payload = append(json.RawMessage(nil), payload...)
	l.updateStoredLocked(ctx, l.changes[i])
	return true
}

// DropRecord removes every queued change of a record and returns how many were removed
func (l *Ledger) DropRecord(ctx context.Context, entity string, recordID offline.ID) int {
	l.mu.Lock()
	kept := l.changes[:0]
	var dropped []uuid.UUID
	for _, c := range l.changes {
		if c.Entity == entity && c.RecordID == recordID {
			dropped = append(dropped, c.ID)
			continue
		}
		kept = append(kept, c)
	}
	l.changes = kept
	for _, id := range dropped {
		l.deleteStoredLocked(ctx, id)
	}
	l.mu.Unlock()

	if len(dropped) > 0 {
		l.changed()
	}
	return len(dropped)
}

// Retarget points queued changes of a temporary record at its server identifier
func (l *Ledger) Retarget(ctx context.Context, entity string, from, to offline.ID) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := 0
	for _, c := range l.changes {
		if c.Entity == entity && c.RecordID == from {
			c.RecordID = to
			l.updateStoredLocked(ctx, c)
			n++
		}
	}
	return n
}

// Flush replays pending changes in enqueue order. A change that fails blocks the
// remaining changes of its entity and stays queued. The flush stops early when the
// client goes offline or a replay fails for lack of connectivity. Calling Flush while
// another flush is running returns immediately with Skipped set.
func (l *Ledger) Flush(ctx context.Context, replay ReplayFunc) (FlushReport, error) {
	if !l.syncing.CompareAndSwap(false, true) {
		return FlushReport{Skipped: true}, nil
	}
	l.changed()
	defer func() {
		l.syncing.Store(false)
		l.changed()
	}()

	var report FlushReport
	blocked := make(map[string]bool)

	for _, change := range l.List() {
		if blocked[change.Entity] {
			continue
		}
		if ctx.Err() != nil || (l.online != nil && !l.online()) {
			report.Aborted = true
			break
		}
		if l.limiter != nil {
			if err := l.limiter.Wait(ctx); err != nil {
				report.Aborted = true
				break
			}
		}

		err := replay(ctx, *change)
		if errors.Is(err, ErrNotQueued) {
			continue
		}
		if err == nil {
			l.Remove(ctx, change.ID)
			report.Replayed++
			continue
		}

		report.Failed++
		blocked[change.Entity] = true
		l.markFailed(ctx, change.ID, err)
		l.logger.Warn("replay failed",
			zap.String("change_id", change.ID.String()),
			zap.String("entity", change.Entity),
			zap.String("action", change.Action.String()),
			zap.Error(err),
		)
		if offline.IsNetworkFailure(err) {
			report.Aborted = true
			break
		}
	}

	report.Remaining = l.Count()
	return report, nil
}

func (l *Ledger) markFailed(ctx context.Context, id uuid.UUID, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if i := l.indexLocked(id); i >= 0 {
		l.changes[i].MarkFailed(err)
		l.updateStoredLocked(ctx, l.changes[i])
	}
}

func (l *Ledger) indexLocked(id uuid.UUID) int {
	for i, c := range l.changes {
		if c.ID == id {
			return i
		}
	}
	return -1
}

func (l *Ledger) updateStoredLocked(ctx context.Context, change *offline.PendingChange) {
	if l.store == nil {
		return
	}
	if err := l.store.Update(ctx, change); err != nil {
		l.logger.Warn("failed to update pending change",
			zap.String("change_id", change.ID.String()),
			zap.String("code", offline.CodePersistenceFailure),
			zap.Error(err),
		)
	}
}

func (l *Ledger) deleteStoredLocked(ctx context.Context, id uuid.UUID) {
	if l.store == nil {
		return
	}
	if err := l.store.Delete(ctx, id); err != nil {
		l.logger.Warn("failed to delete pending change",
			zap.String("change_id", id.String()),
			zap.String("code", offline.CodePersistenceFailure),
			zap.Error(err),
		)
	}
}
