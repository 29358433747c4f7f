package dto

import (
	"time"

	"github.com/erp/client/internal/domain/offline"
)

// StatusResponse is the synchronization state shown by the UI shell
type StatusResponse struct {
	offline.ConnectivityState
	Permissions offline.OfflinePermissions `json:"permissions"`
	Entities    []string                   `json:"entities"`
}

// PendingChangeResponse describes one queued change
type PendingChangeResponse struct {
	ID         string         `json:"id"`
	Entity     string         `json:"entity"`
	Action     offline.Action `json:"action"`
	RecordID   offline.ID     `json:"recordId"`
	EnqueuedAt time.Time      `json:"enqueuedAt"`
	Attempts   int            `json:"attempts"`
	LastError  string         `json:"lastError,omitempty"`
}

// ToPendingChangeResponses converts queued changes for output. Payloads are left out.
func ToPendingChangeResponses(changes []*offline.PendingChange) []PendingChangeResponse {
	out := make([]PendingChangeResponse, 0, len(changes))
	for _, c := range changes {
		out = append(out, PendingChangeResponse{
			ID:         c.ID.String(),
			Entity:     c.Entity,
			Action:     c.Action,
			RecordID:   c.RecordID,
			EnqueuedAt: c.EnqueuedAt,
			Attempts:   c.Attempts,
			LastError:  c.LastError,
		})
	}
	return out
}

// ConnectivityRequest reports a connectivity change from the UI shell
type ConnectivityRequest struct {
	Online *bool `json:"online" binding:"required"`
}

// ConnectivityResponse is the state after a connectivity change
type ConnectivityResponse struct {
	Changed bool                      `json:"changed"`
	State   offline.ConnectivityState `json:"state"`
}

// CanPerformResponse answers whether an action may run now
type CanPerformResponse struct {
	Action  offline.Action `json:"action"`
	Online  bool           `json:"online"`
	Allowed bool           `json:"allowed"`
}
