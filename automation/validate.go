package automation

import "fmt"

const maxNameLength = 200

// ValidateRule validates a rule definition before it is persisted. Unknown
// trigger, condition, or action types are rejected here at authoring time;
// anything that slips past (for example a row written by a newer version)
// still fails closed at evaluation time.
func ValidateRule(rule *Rule) error {
	if rule.Name == "" {
		return fmt.Errorf("rule name cannot be empty")
	}
	if len(rule.Name) > maxNameLength {
		return fmt.Errorf("rule name length %d exceeds maximum of %d characters", len(rule.Name), maxNameLength)
	}

	if rule.Scope.WorkspaceID == "" {
		return fmt.Errorf("rule must have a workspace ID")
	}

	if !ValidTrigger(rule.Trigger) {
		return fmt.Errorf("unknown trigger %q (must be one of: card_created, card_moved, card_updated, due_date_approaching)", rule.Trigger)
	}

	if len(rule.Actions) == 0 {
		return fmt.Errorf("rule must have at least one action")
	}

	for i, cond := range rule.Conditions {
		if err := validateCondition(cond); err != nil {
			return fmt.Errorf("condition %d: %w", i, err)
		}
	}

	for i, action := range rule.Actions {
		if err := validateAction(action); err != nil {
			return fmt.Errorf("action %d: %w", i, err)
		}
	}

	return nil
}

func validateCondition(cond Condition) error {
	switch cond.Type {
	case ConditionCardPriorityIs:
		if cond.Payload.Priority == "" {
			return fmt.Errorf("card_priority_is requires a priority")
		}
	case ConditionLabelIs:
		if cond.Payload.LabelID == "" {
			return fmt.Errorf("label_is requires a labelId")
		}
	case ConditionAssigneeIs:
		if cond.Payload.UserID == "" {
			return fmt.Errorf("assignee_is requires a userId")
		}
	case ConditionDueWithinHours:
		if cond.Payload.Hours == nil {
			return fmt.Errorf("due_within_hours requires hours")
		}
		if *cond.Payload.Hours <= 0 {
			return fmt.Errorf("due_within_hours requires hours > 0, got %d", *cond.Payload.Hours)
		}
	case ConditionListIs:
		if cond.Payload.ListID == "" {
			return fmt.Errorf("list_is requires a listId")
		}
	default:
		return fmt.Errorf("unknown condition type %q (must be one of: card_priority_is, label_is, assignee_is, due_within_hours, list_is)", cond.Type)
	}
	return nil
}

func validateAction(action Action) error {
	switch action.Type {
	case ActionMoveCard:
		if action.Payload.ListID == "" {
			return fmt.Errorf("move_card requires a listId")
		}
	case ActionAddLabel:
		if action.Payload.LabelID == "" {
			return fmt.Errorf("add_label requires a labelId")
		}
	case ActionAssignMember:
		if action.Payload.UserID == "" {
			return fmt.Errorf("assign_member requires a userId")
		}
	case ActionSetDueDate:
		if action.Payload.DueInHours == nil {
			return fmt.Errorf("set_due_date requires dueInHours")
		}
	case ActionPostComment:
		if action.Payload.Body == "" {
			return fmt.Errorf("post_comment requires a body")
		}
	case ActionNotify:
		if action.Payload.UserID == "" {
			return fmt.Errorf("notify requires a userId")
		}
	default:
		return fmt.Errorf("unknown action type %q (must be one of: move_card, add_label, assign_member, set_due_date, post_comment, notify)", action.Type)
	}
	return nil
}
