package telemetry_test

import (
	"context"
	"testing"
	"time"

	"github.com/erp/client/internal/application/offline"
	"github.com/erp/client/internal/infrastructure/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

var _ offline.Recorder = (*telemetry.SyncMetrics)(nil)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := map[string]metricdata.Metrics{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func sumBy(t *testing.T, m metricdata.Metrics, key attribute.Key) map[string]int64 {
	t.Helper()
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "%s is not an int64 sum", m.Name)

	out := map[string]int64{}
	for _, dp := range sum.DataPoints {
		v, _ := dp.Attributes.Value(key)
		out[v.AsString()] += dp.Value
	}
	return out
}

func TestSyncMetrics(t *testing.T) {
	ctx := context.Background()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { _ = provider.Shutdown(ctx) }()

	sm, err := telemetry.NewSyncMetrics(provider.Meter("test"))
	require.NoError(t, err)

	sm.MutationCompleted(ctx, "customers", "create", offline.OutcomeQueued, 2*time.Millisecond)
	sm.MutationCompleted(ctx, "customers", "create", offline.OutcomeQueued, 3*time.Millisecond)
	sm.MutationCompleted(ctx, "customers", "update", offline.OutcomeRolledBack, 120*time.Millisecond)
	sm.FlushCompleted(ctx, 4, 1, time.Second)
	sm.FlushCompleted(ctx, 0, 0, time.Millisecond)
	sm.PendingChanged(ctx, 7)
	sm.PendingChanged(ctx, 2)

	metrics := collect(t, reader)

	assert.Equal(t, map[string]int64{offline.OutcomeQueued: 2, offline.OutcomeRolledBack: 1},
		sumBy(t, metrics["erp_sync_mutations_total"], telemetry.AttrOutcome))
	assert.Equal(t, map[string]int64{"replayed": 4, "failed": 1},
		sumBy(t, metrics["erp_sync_replays_total"], telemetry.AttrResult))

	flushes, ok := metrics["erp_sync_flush_duration_seconds"].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, flushes.DataPoints, 1)
	assert.Equal(t, uint64(2), flushes.DataPoints[0].Count)

	gauge, ok := metrics["erp_sync_pending_changes"].Data.(metricdata.Gauge[int64])
	require.True(t, ok)
	require.Len(t, gauge.DataPoints, 1)
	assert.Equal(t, int64(2), gauge.DataPoints[0].Value)
}

func TestNewSyncMetrics_NilMeter(t *testing.T) {
	sm, err := telemetry.NewSyncMetrics(nil)
	assert.ErrorIs(t, err, telemetry.ErrMeterNil)
	assert.Nil(t, sm)
}
