package offline

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// PendingChange is a mutation that has been applied locally but not yet confirmed by the server
type PendingChange struct {
	ID         uuid.UUID       `json:"id"`
	Seq        int64           `json:"seq"`
	Entity     string          `json:"entity"`
	Action     Action          `json:"action"`
	RecordID   ID              `json:"recordId"`
	Payload    json.RawMessage `json:"payload"`
	EnqueuedAt time.Time       `json:"enqueuedAt"`
	Attempts   int             `json:"attempts"`
	LastError  string          `json:"lastError,omitempty"`
}

// NewPendingChange creates a pending change for the given record
func NewPendingChange(entity string, action Action, recordID ID, payload json.RawMessage, now time.Time) *PendingChange {
	return &PendingChange{
		ID:         uuid.New(),
		Entity:     entity,
		Action:     action,
		RecordID:   recordID,
		Payload:    payload,
		EnqueuedAt: now,
	}
}

// MarkFailed records a failed replay attempt
func (c *PendingChange) MarkFailed(err error) {
	c.Attempts++
	if err != nil {
		c.LastError = err.Error()
	}
}

// Clone returns a deep copy of the change
func (c *PendingChange) Clone() *PendingChange {
	out := *c
	if c.Payload != nil {
		out.Payload = append(json.RawMessage(nil), c.Payload...)
	}
	return &out
}
