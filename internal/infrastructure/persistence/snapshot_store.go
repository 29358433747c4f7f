package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/erp/client/internal/domain/offline"
	"github.com/erp/client/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormSnapshotStore implements offline.SnapshotStore on the local database
type GormSnapshotStore struct {
	db  *gorm.DB
	now func() time.Time
}

// NewGormSnapshotStore creates a new GormSnapshotStore
func NewGormSnapshotStore(db *gorm.DB) *GormSnapshotStore {
	return &GormSnapshotStore{db: db, now: time.Now}
}

// Get returns the stored snapshot, or offline.ErrNotFound
func (s *GormSnapshotStore) Get(ctx context.Context, key string) ([]byte, error) {
	var model models.SnapshotModel
	if err := s.db.WithContext(ctx).First(&model, "key = ?", key).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, offline.ErrNotFound
		}
		return nil, fmt.Errorf("%w: load snapshot %q: %w", offline.ErrPersistenceFailure, key, err)
	}
	return model.Data, nil
}

// Put upserts the snapshot under key
func (s *GormSnapshotStore) Put(ctx context.Context, key string, data []byte) error {
	model := models.SnapshotModel{Key: key, Data: data, UpdatedAt: s.now()}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"data", "updated_at"}),
		}).
		Create(&model).Error
	if err != nil {
		return fmt.Errorf("%w: save snapshot %q: %w", offline.ErrPersistenceFailure, key, err)
	}
	return nil
}

// Delete removes the snapshot. Deleting a missing key is not an error.
func (s *GormSnapshotStore) Delete(ctx context.Context, key string) error {
	if err := s.db.WithContext(ctx).Delete(&models.SnapshotModel{}, "key = ?", key).Error; err != nil {
		return fmt.Errorf("%w: delete snapshot %q: %w", offline.ErrPersistenceFailure, key, err)
	}
	return nil
}

// Keys lists the stored snapshot keys
func (s *GormSnapshotStore) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	if err := s.db.WithContext(ctx).Model(&models.SnapshotModel{}).Order("key").Pluck("key", &keys).Error; err != nil {
		return nil, fmt.Errorf("%w: list snapshots: %w", offline.ErrPersistenceFailure, err)
	}
	return keys, nil
}
