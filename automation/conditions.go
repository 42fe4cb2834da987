package automation

import "time"

// EvaluateCondition reports whether cond holds for event at the given
// evaluation time. It is pure: no I/O, no mutation, and it never returns an
// error. Unknown condition types and missing or malformed payload fields
// evaluate to false (fail-closed), so a stale or future condition type can
// never cause an automation to erroneously fire.
func EvaluateCondition(event Event, cond Condition, now time.Time) bool {
	switch cond.Type {
	case ConditionCardPriorityIs:
		return cond.Payload.Priority != "" && event.Card.Priority == cond.Payload.Priority

	case ConditionLabelIs:
		return cond.Payload.LabelID != "" && event.Card.HasLabel(cond.Payload.LabelID)

	case ConditionAssigneeIs:
		return cond.Payload.UserID != "" && event.Card.HasAssignee(cond.Payload.UserID)

	case ConditionDueWithinHours:
		return dueWithin(event.Card.DueAt, cond.Payload.Hours, now)

	case ConditionListIs:
		return cond.Payload.ListID != "" && event.Card.ListID == cond.Payload.ListID
	}

	return false
}

// dueWithin implements the forward-looking due window: a card matches when
// its due date lies in [now, now+hours]. A due date already in the past does
// not match; this is not an overdue check.
func dueWithin(dueAt *time.Time, hours *int, now time.Time) bool {
	if dueAt == nil || hours == nil || *hours < 0 {
		return false
	}
	if dueAt.Before(now) {
		return false
	}
	deadline := now.Add(time.Duration(*hours) * time.Hour)
	return !dueAt.After(deadline)
}
