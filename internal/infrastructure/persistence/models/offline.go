package models

import (
	"encoding/json"
	"time"

	"github.com/erp/client/internal/domain/offline"
	"github.com/google/uuid"
)

// SnapshotModel is one serialized cache entry, keyed by the cache key
type SnapshotModel struct {
	Key       string    `gorm:"type:varchar(200);primaryKey"`
	Data      []byte    `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (SnapshotModel) TableName() string {
	return "offline_snapshots"
}

// PendingChangeModel is one row of the pending change ledger.
// Seq is the autoincrement key, so rows list back in enqueue order.
type PendingChangeModel struct {
	Seq        int64     `gorm:"primaryKey;autoIncrement"`
	ChangeID   uuid.UUID `gorm:"column:change_id;type:varchar(36);not null;uniqueIndex"`
	Entity     string    `gorm:"type:varchar(100);not null;index"`
	Action     string    `gorm:"type:varchar(10);not null"`
	RecordID   string    `gorm:"type:varchar(100);not null"`
	Payload    []byte
	EnqueuedAt time.Time `gorm:"not null"`
	Attempts   int       `gorm:"not null;default:0"`
	LastError  string    `gorm:"type:text"`
}

// TableName returns the table name for GORM
func (PendingChangeModel) TableName() string {
	return "offline_pending_changes"
}

// PendingChangeModelFromDomain converts a pending change to its row.
// Seq is left to the database unless the change already carries one.
func PendingChangeModelFromDomain(c *offline.PendingChange) *PendingChangeModel {
	return &PendingChangeModel{
		Seq:        c.Seq,
		ChangeID:   c.ID,
		Entity:     c.Entity,
		Action:     string(c.Action),
		RecordID:   c.RecordID.String(),
		Payload:    c.Payload,
		EnqueuedAt: c.EnqueuedAt,
		Attempts:   c.Attempts,
		LastError:  c.LastError,
	}
}

// ToDomain converts the row back to a pending change
func (m *PendingChangeModel) ToDomain() *offline.PendingChange {
	var payload json.RawMessage
	if len(m.Payload) > 0 {
		payload = append(json.RawMessage(nil), m.Payload...)
	}
	return &offline.PendingChange{
		ID:         m.ChangeID,
		Seq:        m.Seq,
		Entity:     m.Entity,
		Action:     offline.Action(m.Action),
		RecordID:   offline.ID(m.RecordID),
		Payload:    payload,
		EnqueuedAt: m.EnqueuedAt,
		Attempts:   m.Attempts,
		LastError:  m.LastError,
	}
}

// AllModels lists every table the local store migrates
func AllModels() []any {
	return []any{&SnapshotModel{}, &PendingChangeModel{}}
}
