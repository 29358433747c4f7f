package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	appoffline "github.com/erp/client/internal/application/offline"
	"github.com/erp/client/internal/domain/offline"
	"github.com/erp/client/internal/domain/records"
	"github.com/erp/client/internal/infrastructure/cache"
	"github.com/erp/client/internal/infrastructure/config"
	"github.com/erp/client/internal/infrastructure/logger"
	"github.com/erp/client/internal/infrastructure/permissions"
	"github.com/erp/client/internal/infrastructure/persistence"
	"github.com/erp/client/internal/infrastructure/remote"
	"github.com/erp/client/internal/infrastructure/telemetry"
	"github.com/erp/client/internal/interfaces/http/handler"
	"github.com/erp/client/internal/interfaces/http/router"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const shutdownTimeout = 30 * time.Second

// Serve runs the sync daemon until ctx is cancelled
func (a *App) Serve(ctx context.Context, opts Options) error {
	cfg, err := a.config(opts)
	if err != nil {
		return err
	}
	log, err := a.logger(cfg, true)
	if err != nil {
		return err
	}
	defer logger.Sync(log)
	if cfg.App.Tenant != "" {
		ctx, log = logger.WithTenantID(ctx, log, cfg.App.Tenant)
	}

	log.Info("Starting ERP sync daemon",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("api", cfg.API.Endpoint()),
		zap.String("mirror", cfg.Mirror.Backend),
	)

	tp, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	defer shutdownWith(log, "tracer provider", tp.Shutdown)

	mp, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           cfg.Telemetry.MetricsEnabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ExportInterval:    cfg.Telemetry.ExportInterval,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		return fmt.Errorf("failed to initialize metrics: %w", err)
	}
	defer shutdownWith(log, "meter provider", mp.Shutdown)

	metrics, err := telemetry.NewSyncMetrics(mp.Meter("github.com/erp/client/sync"))
	if err != nil {
		return fmt.Errorf("failed to register sync metrics: %w", err)
	}

	db, err := persistence.NewDatabase(&cfg.Storage, log.Named("storage"), logger.MapGormLogLevel(cfg.Log.Level))
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing local store", zap.Error(err))
		}
	}()

	snapshots, err := cache.NewSnapshotStoreFactory(cfg.Redis, cache.WithLogger(log.Named("mirror"))).
		CreateStore(ctx, cfg.Mirror.Backend, persistence.NewGormSnapshotStore(db.DB))
	if err != nil {
		return err
	}
	if closer, ok := snapshots.(io.Closer); ok {
		defer func() { _ = closer.Close() }()
	}

	client, err := remote.NewClient(cfg.API,
		remote.WithLogger(log.Named("remote")),
		remote.WithTenant(cfg.App.Tenant),
	)
	if err != nil {
		return fmt.Errorf("failed to create API client: %w", err)
	}

	perms, err := permissions.NewStore(cfg.Offline.Permissions, log.Named("permissions"))
	if err != nil {
		return err
	}
	source, err := permissions.NewSource(cfg.Offline, remote.NewSettingsClient(client, cfg.Offline.SettingsPath))
	if err != nil {
		return err
	}
	refresher := permissions.NewRefresher(source, perms, cfg.Offline.RefreshInterval, log.Named("permissions"))

	engine := appoffline.NewEngine(snapshots, persistence.NewGormLedgerStore(db.DB), perms, engineOptions(cfg, log, metrics)...)
	unsubscribe := perms.Subscribe(func(offline.OfflinePermissions) { engine.RefreshState() })
	defer unsubscribe()

	endpoints, err := registerEntities(engine, client)
	if err != nil {
		return err
	}
	if err := engine.Start(ctx); err != nil {
		return err
	}

	r := router.New(router.Config{
		APIVersion:       "v1",
		ServiceName:      cfg.Telemetry.ServiceName,
		TracingEnabled:   cfg.Telemetry.Enabled,
		CORSAllowOrigins: cfg.HTTP.CORSAllowOrigins,
		MaxBodySize:      cfg.HTTP.MaxBodySize,
	}, router.Handlers{
		Entities: handler.NewEntityHandler(log.Named("http"), endpoints...),
		Sync:     handler.NewSyncHandler(engine, cfg.Sync.FlushTimeout, log.Named("http")),
	}, log)

	srv := &http.Server{
		Addr:           cfg.HTTP.Addr,
		Handler:        r,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	g, gctx := errgroup.WithContext(ctx)
	if err := refresher.Start(gctx); err != nil {
		return err
	}

	g.Go(func() error {
		log.Info("Local API listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("local API: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down sync daemon...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		var errs []error
		if err := srv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("local API shutdown: %w", err))
		}
		if err := refresher.Stop(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("permission refresher: %w", err))
		}
		if err := engine.Close(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("sync engine: %w", err))
		}
		return errors.Join(errs...)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("Sync daemon exited gracefully")
	return nil
}

func engineOptions(cfg *config.Config, log *zap.Logger, recorder appoffline.Recorder) []appoffline.Option {
	opts := []appoffline.Option{
		appoffline.WithLogger(log.Named("sync")),
		appoffline.WithTTL(cfg.Cache.TTL),
		appoffline.WithKeyPrefix(cfg.App.KeyPrefix),
		appoffline.WithRecorder(recorder),
		appoffline.WithInitialOnline(cfg.Offline.InitialOnline),
		appoffline.WithSnapshotWriteTimeout(cfg.Mirror.WriteTimeout),
	}
	if cfg.Sync.ReplayRate > 0 {
		opts = append(opts, appoffline.WithFlushRate(rate.NewLimiter(rate.Limit(cfg.Sync.ReplayRate), max(cfg.Sync.ReplayBurst, 1))))
	}
	return opts
}

// registerEntities registers every synchronized entity with the engine
func registerEntities(engine *appoffline.Engine, client *remote.Client) ([]handler.EntityEndpoint, error) {
	customers, err := appoffline.Register[records.Customer](engine, records.CustomerEntity, remote.NewResource[records.Customer](client, records.CustomerEntity))
	if err != nil {
		return nil, err
	}
	products, err := appoffline.Register[records.Product](engine, records.ProductEntity, remote.NewResource[records.Product](client, records.ProductEntity))
	if err != nil {
		return nil, err
	}
	invoices, err := appoffline.Register[records.Invoice](engine, records.InvoiceEntity, remote.NewResource[records.Invoice](client, records.InvoiceEntity))
	if err != nil {
		return nil, err
	}
	return []handler.EntityEndpoint{
		handler.Endpoint(customers),
		handler.Endpoint(products),
		handler.Endpoint(invoices),
	}, nil
}

func shutdownWith(log *zap.Logger, name string, shutdown func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		log.Error("Error shutting down "+name, zap.Error(err))
	}
}
