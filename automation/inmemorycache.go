package automation

import (
	"sync"
	"time"
)

type cacheEntry struct {
	rules    []*Rule
	cachedAt time.Time
}

// InMemoryRulesCache is a simple in-memory implementation of RulesCache,
// keyed by scope (workspaceID|boardID). Thread-safe for concurrent access.
type InMemoryRulesCache struct {
	entries map[string]cacheEntry
	config  CacheConfig
	mu      sync.RWMutex
}

// NewInMemoryRulesCache creates a new in-memory rules cache
func NewInMemoryRulesCache(config CacheConfig) *InMemoryRulesCache {
	return &InMemoryRulesCache{
		entries: make(map[string]cacheEntry),
		config:  config,
	}
}

func scopeKey(workspaceID, boardID string) string {
	return workspaceID + "|" + boardID
}

// Get retrieves cached rules for a scope.
// Returns nil if the entry is missing or expired.
func (c *InMemoryRulesCache) Get(workspaceID, boardID string) []*Rule {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[scopeKey(workspaceID, boardID)]
	if !ok {
		return nil
	}

	if c.config.TTL > 0 && time.Since(entry.cachedAt) > c.config.TTL {
		return nil
	}

	// Return copy to prevent external modifications
	rulesCopy := make([]*Rule, len(entry.rules))
	copy(rulesCopy, entry.rules)
	return rulesCopy
}

// Set stores rules for a scope
func (c *InMemoryRulesCache) Set(workspaceID, boardID string, rules []*Rule) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Store copy to prevent external modifications
	rulesCopy := make([]*Rule, len(rules))
	copy(rulesCopy, rules)
	c.entries[scopeKey(workspaceID, boardID)] = cacheEntry{
		rules:    rulesCopy,
		cachedAt: time.Now(),
	}
}

// Invalidate clears the cache
func (c *InMemoryRulesCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]cacheEntry)
}
