package automation

import (
	"context"
	"fmt"
	"time"

	"github.com/liamcoop/boardrules/internal/logger"
)

// DefaultMaxDepth bounds follow-up event recursion. An action that produces a
// triggering event re-enters the engine at depth+1; once the bound is reached
// the follow-up is dropped and counted, never executed. This guarantees
// termination when rules chain into each other.
const DefaultMaxDepth = 3

// Engine wires candidate-rule resolution, matching and action execution into
// one pass over an event. The engine is stateless between invocations: each
// Run call is self-contained, there is no persisted execution state and no
// pending status. A crash mid-run loses nothing that was not already
// committed, because every action is individually committed as it executes.
//
// Concurrent Run calls for independent events are safe; correctness under
// concurrency comes from the executor's idempotent writes, not from locking.
type Engine struct {
	store    RuleStore
	cache    RulesCache
	executor *Executor
	maxDepth int
	now      func() time.Time
}

// EngineOption configures an Engine at construction time.
type EngineOption func(*Engine)

// WithMaxDepth overrides the follow-up recursion bound.
func WithMaxDepth(depth int) EngineOption {
	return func(e *Engine) {
		e.maxDepth = depth
	}
}

// WithNow injects the clock used for condition evaluation and due-date
// arithmetic. Tests use this for deterministic windows.
func WithNow(now func() time.Time) EngineOption {
	return func(e *Engine) {
		e.now = now
	}
}

// WithCache replaces the default in-memory rules cache.
func WithCache(cache RulesCache) EngineOption {
	return func(e *Engine) {
		e.cache = cache
	}
}

// NewEngine creates an engine over a rule store and an executor.
func NewEngine(store RuleStore, executor *Executor, opts ...EngineOption) *Engine {
	e := &Engine{
		store:    store,
		cache:    NewInMemoryRulesCache(DefaultCacheConfig()),
		executor: executor,
		maxDepth: DefaultMaxDepth,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run processes one event: resolve the candidate rule set for the event's
// board and workspace, match, execute each matched rule's actions in order,
// and re-enter any follow-up events up to the depth bound.
//
// One rule's failure is recorded in the report and never aborts sibling
// rules. The only error Run returns is a rule-store failure, since without
// the candidate set no matching or execution can proceed.
func (e *Engine) Run(ctx context.Context, event Event) (*RunReport, error) {
	return e.run(ctx, event, 0)
}

func (e *Engine) run(ctx context.Context, event Event, depth int) (*RunReport, error) {
	report := &RunReport{
		Event:       event,
		RuleResults: make(map[string]*RuleResult),
	}

	candidates, err := e.loadCandidates(event.WorkspaceID, event.BoardID)
	if err != nil {
		return nil, fmt.Errorf("failed to load candidate rules: %w", err)
	}

	now := e.now()
	matched := MatchRules(event, candidates, now)

	var followUps []*Event
	for _, rule := range matched {
		report.MatchedRuleIDs = append(report.MatchedRuleIDs, rule.ID)

		result := e.executeRule(ctx, event, rule, now)
		report.RuleResults[rule.ID] = result

		for _, ar := range result.Actions {
			if ar.FollowUp != nil {
				followUps = append(followUps, ar.FollowUp)
			}
			if ar.Err != nil {
				logger.Warn("automation action failed",
					"ruleId", rule.ID,
					"action", string(ar.Type),
					"errorKind", ar.ErrorKind,
					"error", ar.Err.Error())
			}
		}
	}

	for _, followUp := range followUps {
		if depth+1 >= e.maxDepth {
			report.LoopGuardTrips++
			logger.Warn("automation loop guard triggered, dropping follow-up event",
				"trigger", string(followUp.Trigger),
				"cardId", followUp.Card.ID,
				"depth", depth+1)
			continue
		}

		child, err := e.run(ctx, *followUp, depth+1)
		if err != nil {
			// A store failure on a follow-up stays best-effort: the primary
			// pass already committed its actions.
			logger.Error("follow-up automation pass failed",
				"trigger", string(followUp.Trigger),
				"error", err.Error())
			continue
		}
		report.LoopGuardTrips += child.LoopGuardTrips
		report.FollowUps = append(report.FollowUps, child)
	}

	return report, nil
}

// executeRule isolates one rule's execution, converting a panicking
// collaborator into a recorded failure so sibling rules still run.
func (e *Engine) executeRule(ctx context.Context, event Event, rule *Rule, now time.Time) (result *RuleResult) {
	defer func() {
		if r := recover(); r != nil {
			result = &RuleResult{
				RuleID:        rule.ID,
				ActionsFailed: len(rule.Actions),
				Actions: []ActionResult{{
					Status:    ActionStatusFailed,
					ErrorKind: "executor_panic",
					Err:       fmt.Errorf("executor panic: %v", r),
				}},
			}
			logger.Error("automation rule execution panicked", "ruleId", rule.ID)
		}
	}()

	return e.executor.ExecuteRule(ctx, event, rule, now)
}

// loadCandidates fetches the scoped active rules, reading through the cache.
func (e *Engine) loadCandidates(workspaceID, boardID string) ([]*Rule, error) {
	if rules := e.cache.Get(workspaceID, boardID); rules != nil {
		return rules, nil
	}

	rules, err := e.store.ListActive(workspaceID, boardID)
	if err != nil {
		return nil, err
	}
	e.cache.Set(workspaceID, boardID, rules)
	return rules, nil
}

// CreateRule validates and persists a new rule definition. Authorization
// (board-admin for board-scoped, workspace-admin for workspace-scoped) is the
// caller's responsibility; the engine never checks access.
func (e *Engine) CreateRule(rule *Rule) error {
	if err := ValidateRule(rule); err != nil {
		return fmt.Errorf("rule validation failed: %w", err)
	}

	if _, err := e.store.Get(rule.ID); err == nil {
		return fmt.Errorf("rule with ID %s already exists", rule.ID)
	}

	if err := e.store.Add(rule); err != nil {
		return err
	}

	// Invalidate cache since the candidate set changed
	e.cache.Invalidate()
	return nil
}

// ToggleActive flips a rule's active flag.
func (e *Engine) ToggleActive(ruleID string, active bool) error {
	if err := e.store.SetActive(ruleID, active); err != nil {
		return err
	}

	e.cache.Invalidate()
	return nil
}

// DeleteRule removes a rule definition.
func (e *Engine) DeleteRule(ruleID string) error {
	if err := e.store.Delete(ruleID); err != nil {
		return err
	}

	e.cache.Invalidate()
	return nil
}

// GetRule fetches a rule by ID.
func (e *Engine) GetRule(ruleID string) (*Rule, error) {
	return e.store.Get(ruleID)
}
