package offline

// PermissionsVersion is the current schema version of OfflinePermissions
const PermissionsVersion = 1

// DefaultMaxPendingChanges bounds the pending change ledger when no limit is configured
const DefaultMaxPendingChanges = 100

// OfflinePermissions controls which mutations may proceed while disconnected
type OfflinePermissions struct {
	Version           int  `json:"version" mapstructure:"version" validate:"gte=1,lte=1"`
	Enabled           bool `json:"enabled" mapstructure:"enabled"`
	CanCreate         bool `json:"canCreate" mapstructure:"can_create"`
	CanEdit           bool `json:"canEdit" mapstructure:"can_edit"`
	CanDelete         bool `json:"canDelete" mapstructure:"can_delete"`
	ShowIndicator     bool `json:"showIndicator" mapstructure:"show_indicator"`
	AutoSync          bool `json:"autoSync" mapstructure:"auto_sync"`
	MaxPendingChanges int  `json:"maxPendingChanges" mapstructure:"max_pending_changes" validate:"gte=0,lte=100000"`
}

// DefaultOfflinePermissions returns the permissions used until a configuration source answers.
// Deleting offline is off by default since it cannot be undone from the UI once synced.
func DefaultOfflinePermissions() OfflinePermissions {
	return OfflinePermissions{
		Version:           PermissionsVersion,
		Enabled:           true,
		CanCreate:         true,
		CanEdit:           true,
		CanDelete:         false,
		ShowIndicator:     true,
		AutoSync:          true,
		MaxPendingChanges: DefaultMaxPendingChanges,
	}
}

// Allows returns the per-action flag, ignoring Enabled
func (p OfflinePermissions) Allows(action Action) bool {
	switch action {
	case ActionCreate:
		return p.CanCreate
	case ActionUpdate:
		return p.CanEdit
	case ActionDelete:
		return p.CanDelete
	}
	return false
}
