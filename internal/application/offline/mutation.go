package offline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/erp/client/internal/domain/offline"
	"github.com/erp/client/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Mutate applies a change optimistically and settles it against the server.
//
// The cache reflects the change before call runs. If call succeeds the server's
// record replaces the optimistic one. If it fails for lack of connectivity and the
// action may run offline, the change is kept and queued for replay. Any other
// failure restores the cache to exactly its state before the mutation.
// A nil call sends the mutation through the entity API.
func (s *EntityStore[T]) Mutate(ctx context.Context, action offline.Action, item T, call RemoteCall[T]) (Result[T], error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "offline."+s.name, action.String())
	defer span.End()
	start := time.Now()

	res, err := s.mutate(ctx, action, item, call)

	outcome := string(res.Outcome)
	if err != nil {
		telemetry.RecordError(span, err)
		outcome = OutcomeRolledBack
		if errors.Is(err, offline.ErrPolicyDenied) {
			outcome = OutcomeDenied
		}
	}
	telemetry.SetAttributes(span,
		telemetry.SpanAttrEntity, s.name,
		telemetry.SpanAttrOutcome, outcome,
		telemetry.SpanAttrRecordID, res.Item.RecordID().String(),
	)
	s.recorder.MutationCompleted(ctx, s.name, action.String(), outcome, time.Since(start))
	return res, err
}

func (s *EntityStore[T]) mutate(ctx context.Context, action offline.Action, item T, call RemoteCall[T]) (Result[T], error) {
	if !action.IsValid() {
		return Result[T]{}, fmt.Errorf("%w: action %q", offline.ErrInvalidInput, action)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if action != offline.ActionCreate {
		id := s.resolve(item.RecordID())
		if id.IsZero() {
			return Result[T]{}, fmt.Errorf("%w: %s requires an id", offline.ErrInvalidInput, action)
		}
		item = item.WithRecordID(id)

		// records the server has never seen are edited under the create permission
		if id.IsTemp() {
			if !s.gate.CanPerformOffline(offline.ActionCreate) {
				return Result[T]{}, offline.ErrPolicyDenied
			}
			return s.mutateLocal(ctx, action, item)
		}
	}

	if !s.gate.CanPerformOffline(action) {
		return Result[T]{}, offline.ErrPolicyDenied
	}

	online := s.online()
	if !online && !s.ledger.HasCapacity() {
		return Result[T]{}, offline.ErrQuotaExceeded
	}

	snapshot := s.cache.Get()
	applied := item
	switch action {
	case offline.ActionCreate:
		applied = item.WithRecordID(s.newTempID())
		s.cache.Prepend(applied)
	case offline.ActionUpdate:
		s.cache.Upsert(applied)
	case offline.ActionDelete:
		s.cache.Remove(applied.RecordID())
	}

	// the first attempt and any replay of it share one idempotency key
	changeID := uuid.New()
	if !online {
		return s.enqueue(ctx, changeID, action, applied, snapshot)
	}

	if call == nil {
		call = s.defaultCall(action, item)
	}
	remote, err := call(offline.WithIdempotencyKey(ctx, changeID.String()))
	if err == nil {
		var settled T
		if settled, err = s.reconcile(ctx, action, applied, remote); err == nil {
			if action != offline.ActionCreate {
				s.dropSuperseded(ctx, applied.RecordID())
			}
			return Result[T]{Item: settled, Outcome: Synced}, nil
		}
	} else if offline.IsNetworkFailure(err) && s.gate.CanQueue(action) {
		s.logger.Info("remote call failed, keeping change for replay",
			zap.String("action", action.String()),
			zap.Error(err),
		)
		return s.enqueue(ctx, changeID, action, applied, snapshot)
	}

	s.cache.Restore(snapshot)
	s.logger.Info("mutation rolled back",
		zap.String("action", action.String()),
		zap.String("code", offline.CodeOf(err)),
		zap.Error(err),
	)
	return Result[T]{}, err
}

// mutateLocal handles updates and deletes of records the server has never seen.
// They are folded into the queued create, so a delete cancels the create entirely.
func (s *EntityStore[T]) mutateLocal(ctx context.Context, action offline.Action, item T) (Result[T], error) {
	id := item.RecordID()
	create, queued := s.ledger.PendingCreate(s.name, id)

	switch action {
	case offline.ActionDelete:
		s.cache.Remove(id)
		if queued {
			s.ledger.DropRecord(ctx, s.name, id)
		}
	case offline.ActionUpdate:
		if _, ok := s.cache.Find(id); !ok && !queued {
			return Result[T]{}, fmt.Errorf("%w: %s %s", offline.ErrNotFound, s.name, id)
		}
		s.cache.Upsert(item)
		if queued {
			payload, err := json.Marshal(item)
			if err != nil {
				return Result[T]{}, fmt.Errorf("encode %s: %w", s.name, err)
			}
			s.ledger.Rewrite(ctx, create.ID, payload)
		}
	}

	s.logger.Debug("mutation folded into pending create",
		zap.String("action", action.String()),
		zap.String("record_id", id.String()),
		zap.Bool("queued", queued),
	)
	return Result[T]{Item: item, Outcome: Coalesced}, nil
}

// dropSuperseded removes queued changes of a record once a newer change of it was
// accepted by the server. Callers hold s.mu.
func (s *EntityStore[T]) dropSuperseded(ctx context.Context, id offline.ID) {
	if n := s.ledger.DropRecord(ctx, s.name, id); n > 0 {
		s.logger.Info("dropped pending changes superseded by an accepted change",
			zap.String("record_id", id.String()),
			zap.Int("count", n),
		)
	}
}

// enqueue queues an applied mutation under changeID. If the ledger refuses it the
// cache is restored.
func (s *EntityStore[T]) enqueue(ctx context.Context, changeID uuid.UUID, action offline.Action, applied T, snapshot offline.CacheEntry[T]) (Result[T], error) {
	payload, err := json.Marshal(applied)
	if err != nil {
		s.cache.Restore(snapshot)
		return Result[T]{}, fmt.Errorf("encode %s: %w", s.name, err)
	}

	change := offline.NewPendingChange(s.name, action, applied.RecordID(), payload, s.clock.Now())
	change.ID = changeID
	if err := s.ledger.Enqueue(ctx, change); err != nil {
		s.cache.Restore(snapshot)
		return Result[T]{}, err
	}
	return Result[T]{Item: applied, Outcome: Queued}, nil
}

// reconcile replaces the optimistic record with the server's. A created record
// without a server id cannot be reconciled and is reported as a rejection.
// Callers hold s.mu.
func (s *EntityStore[T]) reconcile(ctx context.Context, action offline.Action, applied, remote T) (T, error) {
	localID := applied.RecordID()

	switch action {
	case offline.ActionCreate:
		serverID := remote.RecordID()
		if serverID.IsZero() {
			s.logger.Warn("server returned a record without id", zap.String("temp_id", localID.String()))
			return applied, errMissingID(s.name)
		}
		s.cache.ReplaceID(localID, remote)
		s.alias(localID, serverID)
		s.ledger.Retarget(ctx, s.name, localID, serverID)
		return remote, nil

	case offline.ActionUpdate:
		if remote.RecordID().IsZero() {
			remote = applied
		}
		// a record deleted since the update was issued stays deleted
		if _, ok := s.cache.Find(localID); ok {
			s.cache.ReplaceID(localID, remote)
		}
		return remote, nil

	default:
		s.cache.Remove(localID)
		return applied, nil
	}
}

func errMissingID(entity string) error {
	return &offline.RejectionError{
		StatusCode: http.StatusBadGateway,
		Code:       offline.CodeServerRejection,
		Message:    "created " + entity + " record has no id",
	}
}

// replay sends a queued change. The change is re-read so edits folded into it
// since the flush started are included, and it is removed from the ledger before
// the lock is released.
func (s *EntityStore[T]) replay(ctx context.Context, change offline.PendingChange) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.ledger.Get(change.ID)
	if !ok {
		return ErrNotQueued
	}
	ctx = offline.WithIdempotencyKey(ctx, current.ID.String())

	var item T
	if len(current.Payload) > 0 && current.Action != offline.ActionDelete {
		if err := json.Unmarshal(current.Payload, &item); err != nil {
			return fmt.Errorf("%w: decode pending %s: %v", offline.ErrInvalidInput, s.name, err)
		}
	}
	id := s.resolve(current.RecordID)

	switch current.Action {
	case offline.ActionCreate:
		remote, err := s.api.Create(ctx, item.WithRecordID(""))
		if err != nil {
			return err
		}
		if remote.RecordID().IsZero() {
			return errMissingID(s.name)
		}
		s.ledger.Remove(ctx, current.ID)
		_, _ = s.reconcile(ctx, offline.ActionCreate, item.WithRecordID(id), remote)

	case offline.ActionUpdate:
		item = item.WithRecordID(id)
		remote, err := s.api.Update(ctx, id, item)
		if err != nil {
			return err
		}
		s.ledger.Remove(ctx, current.ID)
		_, _ = s.reconcile(ctx, offline.ActionUpdate, item, remote)

	case offline.ActionDelete:
		if err := s.api.Delete(ctx, id); err != nil && !isNotFound(err) {
			return err
		}
		s.ledger.Remove(ctx, current.ID)
		s.cache.Remove(id)

	default:
		return fmt.Errorf("%w: action %q", offline.ErrInvalidInput, current.Action)
	}
	return nil
}

// discard drops a queued change. Discarding a create also drops the optimistic
// record and every later change of it; other discards mark the cache stale so the
// next fetch brings back the server's version.
func (s *EntityStore[T]) discard(ctx context.Context, change offline.PendingChange) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if change.Action == offline.ActionCreate {
		s.ledger.DropRecord(ctx, s.name, change.RecordID)
		s.cache.Remove(change.RecordID)
		return
	}
	s.ledger.Remove(ctx, change.ID)
	s.cache.Invalidate()
}

// isNotFound reports whether a delete failed because the record is already gone
func isNotFound(err error) bool {
	var rej *offline.RejectionError
	if errors.As(err, &rej) && rej.StatusCode == http.StatusNotFound {
		return true
	}
	return errors.Is(err, offline.ErrNotFound)
}
