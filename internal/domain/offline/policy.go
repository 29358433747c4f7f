package offline

// CanPerformOffline decides whether a mutation may proceed locally.
// Online clients are always allowed; the offline policy only applies when disconnected.
func CanPerformOffline(online bool, perms OfflinePermissions, action Action) bool {
	if online {
		return true
	}
	if !perms.Enabled {
		return false
	}
	return perms.Allows(action)
}

// CanQueue decides whether a mutation may be kept locally and queued for replay
func CanQueue(perms OfflinePermissions, action Action) bool {
	return CanPerformOffline(false, perms, action)
}
