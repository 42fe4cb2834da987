package automation

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// RuleStore manages rule persistence and retrieval.
type RuleStore interface {
	// Add a new rule
	Add(rule *Rule) error

	// Get a rule by ID
	Get(id string) (*Rule, error)

	// ListActive returns the active rules in scope for one board: rules
	// scoped to boardID plus workspace-scoped rules for workspaceID, in
	// ascending creation order.
	ListActive(workspaceID, boardID string) ([]*Rule, error)

	// ListByWorkspace returns every rule in a workspace, active or not,
	// newest first. Used by the rule-authoring surface, not the engine.
	ListByWorkspace(workspaceID string) ([]*Rule, error)

	// Update an existing rule
	Update(rule *Rule) error

	// SetActive flips a rule's active flag
	SetActive(id string, active bool) error

	// Delete a rule
	Delete(id string) error
}

// InMemoryRuleStore implements RuleStore using an in-memory map.
// Thread-safe with RWMutex. Used by tests and by trigger producers that run
// without a database.
type InMemoryRuleStore struct {
	rules map[string]*Rule
	mu    sync.RWMutex
}

// NewInMemoryRuleStore creates a new in-memory rule store
func NewInMemoryRuleStore() *InMemoryRuleStore {
	return &InMemoryRuleStore{
		rules: make(map[string]*Rule),
	}
}

// Add adds a new rule to the store, setting CreatedAt and UpdatedAt.
func (s *InMemoryRuleStore) Add(rule *Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.rules[rule.ID]; exists {
		return fmt.Errorf("rule with ID %s already exists", rule.ID)
	}

	now := time.Now()
	rule.CreatedAt = now
	rule.UpdatedAt = now
	s.rules[rule.ID] = rule
	return nil
}

// Get retrieves a rule by ID
func (s *InMemoryRuleStore) Get(id string) (*Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rule, exists := s.rules[id]
	if !exists {
		return nil, fmt.Errorf("rule with ID %s not found", id)
	}
	return rule, nil
}

// ListActive returns the active rules in scope for the given board, ordered
// by creation time (rule ID as tiebreaker so the order is fully stable).
func (s *InMemoryRuleStore) ListActive(workspaceID, boardID string) ([]*Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var active []*Rule
	for _, rule := range s.rules {
		if !rule.Active {
			continue
		}
		if rule.Scope.WorkspaceID != workspaceID {
			continue
		}
		if rule.Scope.BoardScoped() && rule.Scope.BoardID != boardID {
			continue
		}
		active = append(active, rule)
	}

	sort.SliceStable(active, func(i, j int) bool {
		if !active[i].CreatedAt.Equal(active[j].CreatedAt) {
			return active[i].CreatedAt.Before(active[j].CreatedAt)
		}
		return active[i].ID < active[j].ID
	})
	return active, nil
}

// ListByWorkspace returns every rule in a workspace, newest first.
func (s *InMemoryRuleStore) ListByWorkspace(workspaceID string) ([]*Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rules []*Rule
	for _, rule := range s.rules {
		if rule.Scope.WorkspaceID == workspaceID {
			rules = append(rules, rule)
		}
	}

	sort.SliceStable(rules, func(i, j int) bool {
		if !rules[i].CreatedAt.Equal(rules[j].CreatedAt) {
			return rules[i].CreatedAt.After(rules[j].CreatedAt)
		}
		return rules[i].ID < rules[j].ID
	})
	return rules, nil
}

// Update updates an existing rule, preserving CreatedAt.
func (s *InMemoryRuleStore) Update(rule *Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.rules[rule.ID]
	if !exists {
		return fmt.Errorf("rule with ID %s not found", rule.ID)
	}

	rule.CreatedAt = existing.CreatedAt
	rule.UpdatedAt = time.Now()
	s.rules[rule.ID] = rule
	return nil
}

// SetActive flips a rule's active flag
func (s *InMemoryRuleStore) SetActive(id string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rule, exists := s.rules[id]
	if !exists {
		return fmt.Errorf("rule with ID %s not found", id)
	}

	rule.Active = active
	rule.UpdatedAt = time.Now()
	return nil
}

// Delete removes a rule from the store
func (s *InMemoryRuleStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.rules[id]; !exists {
		return fmt.Errorf("rule with ID %s not found", id)
	}

	delete(s.rules, id)
	return nil
}
