package permissions

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Refresher periodically reloads permissions from a Source into a Store.
// A failed or invalid load keeps the last good permissions.
type Refresher struct {
	source   Source
	store    *Store
	interval time.Duration
	logger   *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRefresher creates a refresher. A non-positive interval loads once at Start only.
func NewRefresher(source Source, store *Store, interval time.Duration, logger *zap.Logger) *Refresher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Refresher{
		source:   source,
		store:    store,
		interval: interval,
		logger:   logger,
	}
}

// Refresh loads permissions once
func (r *Refresher) Refresh(ctx context.Context) error {
	perms, err := r.source.Load(ctx)
	if err != nil {
		return err
	}
	_, err = r.store.Replace(perms)
	return err
}

// Start performs an initial load and then refreshes in the background
func (r *Refresher) Start(ctx context.Context) error {
	if err := r.Refresh(ctx); err != nil {
		r.logger.Warn("initial permission load failed, keeping defaults", zap.Error(err))
	}
	if r.interval <= 0 {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	r.wg.Add(1)
	go r.loop(ctx)

	r.logger.Info("permission refresher started", zap.Duration("interval", r.interval))
	return nil
}

// Stop gracefully stops the refresher
func (r *Refresher) Stop(ctx context.Context) error {
	if r.cancel != nil {
		r.cancel()
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Refresher) loop(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.Refresh(ctx); err != nil && ctx.Err() == nil {
				r.logger.Warn("permission refresh failed, keeping last good version", zap.Error(err))
			}
		}
	}
}
