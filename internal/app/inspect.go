package app

import (
	"context"
	"fmt"
	"time"

	appoffline "github.com/erp/client/internal/application/offline"
	"github.com/erp/client/internal/domain/offline"
	"github.com/erp/client/internal/infrastructure/config"
	"github.com/erp/client/internal/infrastructure/persistence"
	"github.com/erp/client/internal/infrastructure/remote"
	"github.com/erp/client/internal/interfaces/http/dto"
	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"
)

// daemonTimeout bounds calls to a running daemon. Flushes may replay many changes.
const daemonTimeout = 2 * time.Minute

// Pending reads the queued changes straight from the local store, so it works
// whether or not the daemon is running
func (a *App) Pending(ctx context.Context, opts Options) ([]*offline.PendingChange, error) {
	cfg, err := a.config(opts)
	if err != nil {
		return nil, err
	}
	db, err := persistence.NewDatabase(&cfg.Storage, zap.NewNop(), gormlogger.Silent)
	if err != nil {
		return nil, err
	}
	defer func() { _ = db.Close() }()

	return persistence.NewGormLedgerStore(db.DB).List(ctx)
}

// Flush asks the running daemon to replay its pending changes
func (a *App) Flush(ctx context.Context, opts Options) (appoffline.FlushReport, error) {
	var report appoffline.FlushReport
	client, err := a.daemonClient(opts)
	if err != nil {
		return report, err
	}
	if err := client.Post(ctx, "/sync/flush", nil, &report); err != nil {
		return report, fmt.Errorf("flush via daemon at %s: %w", client.Endpoint(), err)
	}
	return report, nil
}

// Status returns the synchronization state of the running daemon
func (a *App) Status(ctx context.Context, opts Options) (dto.StatusResponse, error) {
	var status dto.StatusResponse
	client, err := a.daemonClient(opts)
	if err != nil {
		return status, err
	}
	if err := client.Get(ctx, "/sync/status", &status); err != nil {
		return status, fmt.Errorf("status via daemon at %s: %w", client.Endpoint(), err)
	}
	return status, nil
}

// daemonClient talks to the local API, which uses the same response envelope as the ERP API
func (a *App) daemonClient(opts Options) (*remote.Client, error) {
	cfg, err := a.config(opts)
	if err != nil {
		return nil, err
	}
	return remote.NewClient(config.APIConfig{
		BaseURL:    "http://" + cfg.HTTP.Addr,
		APIVersion: "v1",
		Timeout:    daemonTimeout,
		UserAgent:  cfg.App.Name + "-cli",
	})
}
