package persistence

import (
	"context"
	"fmt"

	"github.com/erp/client/internal/domain/offline"
	"github.com/erp/client/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormLedgerStore implements offline.LedgerStore on the local database
type GormLedgerStore struct {
	db *gorm.DB
}

// NewGormLedgerStore creates a new GormLedgerStore
func NewGormLedgerStore(db *gorm.DB) *GormLedgerStore {
	return &GormLedgerStore{db: db}
}

// Append inserts the change and copies the assigned sequence back onto it
func (s *GormLedgerStore) Append(ctx context.Context, change *offline.PendingChange) error {
	model := models.PendingChangeModelFromDomain(change)
	model.Seq = 0
	if err := s.db.WithContext(ctx).Create(model).Error; err != nil {
		return fmt.Errorf("%w: append pending change %s: %w", offline.ErrPersistenceFailure, change.ID, err)
	}
	change.Seq = model.Seq
	return nil
}

// Update rewrites the mutable columns of a stored change
func (s *GormLedgerStore) Update(ctx context.Context, change *offline.PendingChange) error {
	result := s.db.WithContext(ctx).
		Model(&models.PendingChangeModel{}).
		Where("change_id = ?", change.ID).
		Updates(map[string]any{
			"record_id":  change.RecordID.String(),
			"payload":    []byte(change.Payload),
			"attempts":   change.Attempts,
			"last_error": change.LastError,
		})
	if result.Error != nil {
		return fmt.Errorf("%w: update pending change %s: %w", offline.ErrPersistenceFailure, change.ID, result.Error)
	}
	if result.RowsAffected == 0 {
		return offline.ErrNotFound
	}
	return nil
}

// Delete removes a change. Deleting a missing change is not an error.
func (s *GormLedgerStore) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.db.WithContext(ctx).Where("change_id = ?", id).Delete(&models.PendingChangeModel{}).Error; err != nil {
		return fmt.Errorf("%w: delete pending change %s: %w", offline.ErrPersistenceFailure, id, err)
	}
	return nil
}

// List returns every stored change in enqueue order
func (s *GormLedgerStore) List(ctx context.Context) ([]*offline.PendingChange, error) {
	var rows []models.PendingChangeModel
	if err := s.db.WithContext(ctx).Order("seq ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("%w: list pending changes: %w", offline.ErrPersistenceFailure, err)
	}

	changes := make([]*offline.PendingChange, len(rows))
	for i := range rows {
		changes[i] = rows[i].ToDomain()
	}
	return changes, nil
}
