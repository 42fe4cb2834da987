package automation

import "time"

// RulesCache provides an abstraction for caching the active-rule candidate
// set per scope. This allows swapping between in-memory, Redis, or other
// caching implementations.
type RulesCache interface {
	// Get retrieves cached rules for a scope, returns nil on miss or expiry
	Get(workspaceID, boardID string) []*Rule

	// Set stores the rules for a scope
	Set(workspaceID, boardID string, rules []*Rule)

	// Invalidate clears the whole cache, forcing a refresh on next Get.
	// Lifecycle mutations call this; a workspace-scoped rule change can
	// affect every board in the workspace, so scope-level eviction would
	// still have to scan keys.
	Invalidate()
}

// CacheConfig holds configuration for cache behavior
type CacheConfig struct {
	// TTL is the time-to-live for cached entries
	// Set to 0 for no expiration (manual invalidation only)
	TTL time.Duration
}

// DefaultCacheConfig returns sensible defaults for rule caching
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		TTL: 0, // No TTL - only invalidate on mutations
	}
}
