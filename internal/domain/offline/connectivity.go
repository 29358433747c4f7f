package offline

import "time"

// ConnectivityState is what the UI layer observes about synchronization
type ConnectivityState struct {
	IsOnline            bool `json:"isOnline"`
	IsSyncing           bool `json:"isSyncing"`
	PendingChangesCount int  `json:"pendingChangesCount"`
	// InputBlocked is set while offline with offline mode disabled
	InputBlocked  bool `json:"inputBlocked"`
	ShowIndicator bool `json:"showIndicator"`
}

// NewConnectivityState derives the state, keeping IsSyncing false while offline
func NewConnectivityState(online, syncing bool, pending int, perms OfflinePermissions) ConnectivityState {
	return ConnectivityState{
		IsOnline:            online,
		IsSyncing:           syncing && online,
		PendingChangesCount: pending,
		InputBlocked:        !online && !perms.Enabled,
		ShowIndicator:       perms.ShowIndicator,
	}
}

// ConnectivityEvent is a single online/offline notification from the runtime
type ConnectivityEvent struct {
	Online bool      `json:"online"`
	At     time.Time `json:"at"`
}

// EventSource delivers connectivity events. The channel is closed when the source stops.
type EventSource interface {
	Events() <-chan ConnectivityEvent
}
