package automation

import (
	"testing"
	"time"
)

func matcherRule(id string, trigger TriggerKind, active bool, conds ...Condition) *Rule {
	return &Rule{
		ID:      id,
		Scope:   RuleScope{WorkspaceID: "ws-1", BoardID: "board-1"},
		Name:    "rule " + id,
		Trigger: trigger,
		Active:  active,
		Actions: []Action{
			{Type: ActionNotify, Payload: ActionPayload{UserID: "user-1"}},
		},
		Conditions: conds,
	}
}

// TestMatchRulesTriggerFilter verifies only rules whose trigger equals the
// event trigger are considered.
func TestMatchRulesTriggerFilter(t *testing.T) {
	event := baseEvent(CardSnapshot{ID: "card-1"})
	candidates := []*Rule{
		matcherRule("r1", TriggerCardMoved, true),
		matcherRule("r2", TriggerCardCreated, true),
		matcherRule("r3", TriggerCardMoved, true),
	}

	matched := MatchRules(event, candidates, time.Now())
	if len(matched) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matched))
	}
	if matched[0].ID != "r1" || matched[1].ID != "r3" {
		t.Errorf("expected [r1 r3] in candidate order, got [%s %s]", matched[0].ID, matched[1].ID)
	}
}

// TestMatchRulesInactiveNeverMatches verifies an inactive rule never matches
// regardless of conditions.
func TestMatchRulesInactiveNeverMatches(t *testing.T) {
	event := baseEvent(CardSnapshot{ID: "card-1", Priority: "high"})
	candidates := []*Rule{
		matcherRule("r1", TriggerCardMoved, false),
		matcherRule("r2", TriggerCardMoved, false,
			Condition{Type: ConditionCardPriorityIs, Payload: ConditionPayload{Priority: "high"}}),
	}

	if matched := MatchRules(event, candidates, time.Now()); len(matched) != 0 {
		t.Errorf("expected no matches for inactive rules, got %d", len(matched))
	}
}

// TestMatchRulesEmptyConditionsAlwaysPass verifies a rule with zero
// conditions matches whenever trigger and active line up (vacuous AND).
func TestMatchRulesEmptyConditionsAlwaysPass(t *testing.T) {
	event := baseEvent(CardSnapshot{ID: "card-1"})
	candidates := []*Rule{matcherRule("r1", TriggerCardMoved, true)}

	matched := MatchRules(event, candidates, time.Now())
	if len(matched) != 1 || matched[0].ID != "r1" {
		t.Fatalf("expected the unconditional rule to match, got %v", matched)
	}
}

// TestMatchRulesAllConditionsMustHold verifies AND semantics: one false
// condition rejects the rule.
func TestMatchRulesAllConditionsMustHold(t *testing.T) {
	event := baseEvent(CardSnapshot{ID: "card-1", Priority: "high", ListID: "list-doing"})

	bothHold := matcherRule("r1", TriggerCardMoved, true,
		Condition{Type: ConditionCardPriorityIs, Payload: ConditionPayload{Priority: "high"}, Position: 0},
		Condition{Type: ConditionListIs, Payload: ConditionPayload{ListID: "list-doing"}, Position: 1},
	)
	oneFails := matcherRule("r2", TriggerCardMoved, true,
		Condition{Type: ConditionCardPriorityIs, Payload: ConditionPayload{Priority: "high"}, Position: 0},
		Condition{Type: ConditionListIs, Payload: ConditionPayload{ListID: "list-done"}, Position: 1},
	)

	matched := MatchRules(event, []*Rule{bothHold, oneFails}, time.Now())
	if len(matched) != 1 || matched[0].ID != "r1" {
		t.Fatalf("expected only r1 to match, got %v", ruleIDs(matched))
	}
}

// TestMatchRulesConditionOrderDoesNotChangeResult verifies Position controls
// evaluation order only, not the AND outcome.
func TestMatchRulesConditionOrderDoesNotChangeResult(t *testing.T) {
	event := baseEvent(CardSnapshot{ID: "card-1", Priority: "high", LabelIDs: []string{"label-1"}})

	forward := matcherRule("r1", TriggerCardMoved, true,
		Condition{Type: ConditionCardPriorityIs, Payload: ConditionPayload{Priority: "high"}, Position: 0},
		Condition{Type: ConditionLabelIs, Payload: ConditionPayload{LabelID: "label-1"}, Position: 1},
	)
	reversed := matcherRule("r2", TriggerCardMoved, true,
		Condition{Type: ConditionCardPriorityIs, Payload: ConditionPayload{Priority: "high"}, Position: 1},
		Condition{Type: ConditionLabelIs, Payload: ConditionPayload{LabelID: "label-1"}, Position: 0},
	)

	matched := MatchRules(event, []*Rule{forward, reversed}, time.Now())
	if len(matched) != 2 {
		t.Fatalf("expected both orderings to match, got %v", ruleIDs(matched))
	}
}

// TestMatchRulesUnknownConditionTypeRejects verifies a rule carrying an
// unknown condition type never fires (fail-closed).
func TestMatchRulesUnknownConditionTypeRejects(t *testing.T) {
	event := baseEvent(CardSnapshot{ID: "card-1", Priority: "high"})
	rule := matcherRule("r1", TriggerCardMoved, true,
		Condition{Type: ConditionType("not_a_condition")},
	)

	if matched := MatchRules(event, []*Rule{rule}, time.Now()); len(matched) != 0 {
		t.Error("rule with unknown condition type must not match")
	}
}

func ruleIDs(rules []*Rule) []string {
	ids := make([]string, len(rules))
	for i, r := range rules {
		ids[i] = r.ID
	}
	return ids
}
