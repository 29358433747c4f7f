package persistence

import (
	"fmt"

	"github.com/erp/client/internal/infrastructure/config"
	applogger "github.com/erp/client/internal/infrastructure/logger"
	"github.com/erp/client/internal/infrastructure/persistence/models"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Database holds the local sqlite connection shared by the snapshot and ledger stores
type Database struct {
	DB *gorm.DB
}

// NewDatabase opens the local store and migrates its tables
func NewDatabase(cfg *config.StorageConfig, zl *zap.Logger, logLevel logger.LogLevel) (*Database, error) {
	if zl == nil {
		zl = zap.NewNop()
	}
	db, err := gorm.Open(sqlite.Open(cfg.DSN()), &gorm.Config{
		Logger:                 applogger.NewGormLogger(zl, logLevel),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open local store %s: %w", cfg.Path, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	// sqlite serializes writers; a single connection avoids SQLITE_BUSY between them
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping local store: %w", err)
	}

	d := &Database{DB: db}
	if err := d.Migrate(); err != nil {
		_ = d.Close()
		return nil, err
	}
	return d, nil
}

// Migrate creates or updates the local tables
func (d *Database) Migrate() error {
	if err := d.DB.AutoMigrate(models.AllModels()...); err != nil {
		return fmt.Errorf("failed to migrate local store: %w", err)
	}
	return nil
}

// Close closes the database connection
func (d *Database) Close() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	return sqlDB.Close()
}

// Ping checks if the database connection is alive
func (d *Database) Ping() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	return sqlDB.Ping()
}
