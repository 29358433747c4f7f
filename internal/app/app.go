// Package app wires the sync engine, its stores and the local API into the
// erpsync commands.
package app

import (
	"fmt"

	"github.com/erp/client/internal/infrastructure/config"
	"github.com/erp/client/internal/infrastructure/logger"
	"go.uber.org/zap"
)

// Options are shared by every command
type Options struct {
	// ConfigPath is an explicit TOML file; empty searches the default locations
	ConfigPath string
	// Addr overrides http.addr when talking to a running daemon
	Addr string
}

// App runs the erpsync commands
type App struct {
	loadConfig func(path string) (*config.Config, error)
	newLogger  func(cfg *logger.Config) (*zap.Logger, error)
}

// New creates an App reading configuration through viper
func New() *App {
	return &App{
		loadConfig: config.LoadFile,
		newLogger:  logger.New,
	}
}

func (a *App) config(opts Options) (*config.Config, error) {
	cfg, err := a.loadConfig(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if opts.Addr != "" {
		cfg.HTTP.Addr = opts.Addr
	}
	return cfg, nil
}

func (a *App) logger(cfg *config.Config, daemon bool) (*zap.Logger, error) {
	lc := logger.DefaultConfig()
	if daemon {
		lc = logger.DaemonConfig()
	}
	if cfg.Log.Level != "" {
		lc.Level = cfg.Log.Level
	}
	if cfg.Log.Format != "" {
		lc.Format = cfg.Log.Format
	}
	if cfg.Log.Output != "" {
		lc.Output = cfg.Log.Output
	}
	log, err := a.newLogger(lc)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return log, nil
}
