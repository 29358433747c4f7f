package offline

import (
	"context"
	"time"
)

// Mutation outcomes reported to the Recorder
const (
	OutcomeSynced     = "synced"
	OutcomeQueued     = "queued"
	OutcomeCoalesced  = "coalesced"
	OutcomeRolledBack = "rolled_back"
	OutcomeDenied     = "denied"
)

// Recorder receives sync measurements
type Recorder interface {
	MutationCompleted(ctx context.Context, entity, action, outcome string, d time.Duration)
	FlushCompleted(ctx context.Context, replayed, failed int, d time.Duration)
	PendingChanged(ctx context.Context, count int)
}

type nopRecorder struct{}

func (nopRecorder) MutationCompleted(context.Context, string, string, string, time.Duration) {}
func (nopRecorder) FlushCompleted(context.Context, int, int, time.Duration) {}
func (nopRecorder) PendingChanged(context.Context, int) {}
