package automation

import (
	"sort"
	"time"
)

// MatchRules filters candidates down to the rules that fire for event,
// preserving candidate order. A rule matches when it is active, its trigger
// equals the event trigger, and every condition evaluates true in Position
// order. A rule with no conditions passes the condition gate unconditionally.
//
// Candidate scoping (board-scoped rules for the event's board plus
// workspace-scoped rules for its workspace) is the Engine's job; the matcher
// assumes it already holds the correctly scoped set.
func MatchRules(event Event, candidates []*Rule, now time.Time) []*Rule {
	var matched []*Rule
	for _, rule := range candidates {
		if !rule.Active {
			continue
		}
		if rule.Trigger != event.Trigger {
			continue
		}
		if allConditionsHold(event, rule.Conditions, now) {
			matched = append(matched, rule)
		}
	}
	return matched
}

func allConditionsHold(event Event, conditions []Condition, now time.Time) bool {
	ordered := make([]Condition, len(conditions))
	copy(ordered, conditions)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Position < ordered[j].Position
	})

	for _, cond := range ordered {
		if !EvaluateCondition(event, cond, now) {
			return false
		}
	}
	return true
}
