package telemetry

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ErrMeterNil is returned when a metrics set is built without a meter
var ErrMeterNil = errors.New("telemetry: meter cannot be nil")

// SyncMetrics records mutation, flush and ledger measurements of the sync engine.
// It satisfies the engine's Recorder interface.
type SyncMetrics struct {
	mutationsTotal   *Counter
	mutationDuration *Histogram
	replaysTotal     *Counter
	flushDuration    *Histogram
	pendingChanges   *Gauge
}

// NewSyncMetrics registers the sync instruments on meter
func NewSyncMetrics(meter metric.Meter) (*SyncMetrics, error) {
	if meter == nil {
		return nil, ErrMeterNil
	}

	var (
		sm  SyncMetrics
		err error
	)
	if sm.mutationsTotal, err = NewCounter(meter,
		"erp_sync_mutations_total", "Optimistic mutations by entity, action and outcome", "{mutation}"); err != nil {
		return nil, err
	}
	if sm.mutationDuration, err = NewHistogram(meter, HistogramOpts{
		Name:        "erp_sync_mutation_duration_seconds",
		Description: "Time from local apply until the mutation settled",
		Unit:        "s",
		Boundaries:  SyncDurationBuckets,
	}); err != nil {
		return nil, err
	}
	if sm.replaysTotal, err = NewCounter(meter,
		"erp_sync_replays_total", "Pending changes replayed during flushes", "{change}"); err != nil {
		return nil, err
	}
	if sm.flushDuration, err = NewHistogram(meter, HistogramOpts{
		Name:        "erp_sync_flush_duration_seconds",
		Description: "Duration of pending change flushes",
		Unit:        "s",
		Boundaries:  SyncDurationBuckets,
	}); err != nil {
		return nil, err
	}
	if sm.pendingChanges, err = NewGauge(meter,
		"erp_sync_pending_changes", "Changes waiting in the ledger", "{change}"); err != nil {
		return nil, err
	}
	return &sm, nil
}

// MutationCompleted records one settled mutation
func (m *SyncMetrics) MutationCompleted(ctx context.Context, entity, action, outcome string, d time.Duration) {
	attrs := []attribute.KeyValue{AttrEntity.String(entity), AttrAction.String(action), AttrOutcome.String(outcome)}
	m.mutationsTotal.Inc(ctx, attrs...)
	m.mutationDuration.RecordDuration(ctx, d, attrs...)
}

// FlushCompleted records the result of one flush
func (m *SyncMetrics) FlushCompleted(ctx context.Context, replayed, failed int, d time.Duration) {
	if replayed > 0 {
		m.replaysTotal.Add(ctx, int64(replayed), AttrResult.String("replayed"))
	}
	if failed > 0 {
		m.replaysTotal.Add(ctx, int64(failed), AttrResult.String("failed"))
	}
	m.flushDuration.RecordDuration(ctx, d)
}

// PendingChanged records the current ledger size
func (m *SyncMetrics) PendingChanged(ctx context.Context, count int) {
	m.pendingChanges.Record(ctx, int64(count))
}
