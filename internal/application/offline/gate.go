package offline

import "github.com/erp/client/internal/domain/offline"

// PermissionProvider returns the offline permissions in force
type PermissionProvider interface {
	Current() offline.OfflinePermissions
}

// PermissionsFunc adapts a function to PermissionProvider
type PermissionsFunc func() offline.OfflinePermissions

// Current implements PermissionProvider
func (f PermissionsFunc) Current() offline.OfflinePermissions { return f() }

// StaticPermissions always returns the same permissions
type StaticPermissions offline.OfflinePermissions

// Current implements PermissionProvider
func (p StaticPermissions) Current() offline.OfflinePermissions { return offline.OfflinePermissions(p) }

// PolicyGate decides whether mutations may proceed given connectivity and permissions.
// It has no side effects.
type PolicyGate struct {
	online func() bool
	perms  PermissionProvider
}

// NewPolicyGate creates a gate
func NewPolicyGate(online func() bool, perms PermissionProvider) *PolicyGate {
	return &PolicyGate{online: online, perms: perms}
}

// CanPerformOffline reports whether action may run now
func (g *PolicyGate) CanPerformOffline(action offline.Action) bool {
	return offline.CanPerformOffline(g.online(), g.perms.Current(), action)
}

// CanQueue reports whether action may be kept locally and replayed later
func (g *PolicyGate) CanQueue(action offline.Action) bool {
	return offline.CanQueue(g.perms.Current(), action)
}

// Permissions returns the current permissions
func (g *PolicyGate) Permissions() offline.OfflinePermissions {
	return g.perms.Current()
}
