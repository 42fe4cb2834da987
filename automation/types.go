package automation

import "time"

// TriggerKind identifies the category of board mutation an event describes
// and a rule listens for.
type TriggerKind string

const (
	TriggerCardCreated        TriggerKind = "card_created"
	TriggerCardMoved          TriggerKind = "card_moved"
	TriggerCardUpdated        TriggerKind = "card_updated"
	TriggerDueDateApproaching TriggerKind = "due_date_approaching"
)

// ValidTrigger reports whether k is a member of the closed trigger set.
func ValidTrigger(k TriggerKind) bool {
	switch k {
	case TriggerCardCreated, TriggerCardMoved, TriggerCardUpdated, TriggerDueDateApproaching:
		return true
	}
	return false
}

// CardSnapshot carries the card fields conditions can inspect. It is a copy
// taken at event construction time, not a live view of storage.
type CardSnapshot struct {
	ID          string     `json:"id"`
	BoardID     string     `json:"boardId"`
	ListID      string     `json:"listId"`
	Priority    string     `json:"priority"`
	DueAt       *time.Time `json:"dueAt,omitempty"`
	LabelIDs    []string   `json:"labelIds"`
	AssigneeIDs []string   `json:"assigneeIds"`
}

// HasLabel reports whether labelID is in the snapshot's label set.
func (c CardSnapshot) HasLabel(labelID string) bool {
	for _, id := range c.LabelIDs {
		if id == labelID {
			return true
		}
	}
	return false
}

// HasAssignee reports whether userID is in the snapshot's assignee set.
func (c CardSnapshot) HasAssignee(userID string) bool {
	for _, id := range c.AssigneeIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// Event is the immutable description of a board mutation. Events are
// constructed by trigger producers (CRUD handlers, the due-date sweeper),
// consumed by one Engine.Run pass, and discarded; they are never persisted.
type Event struct {
	Trigger     TriggerKind  `json:"trigger"`
	WorkspaceID string       `json:"workspaceId"`
	BoardID     string       `json:"boardId"`
	ActorID     string       `json:"actorId"`
	Card        CardSnapshot `json:"card"`
}

// RuleScope ties a rule to a board or to a whole workspace. An empty BoardID
// means workspace-scoped: the rule applies to every board in the workspace.
type RuleScope struct {
	WorkspaceID string `json:"workspaceId"`
	BoardID     string `json:"boardId,omitempty"`
}

// BoardScoped reports whether the scope names a single board.
func (s RuleScope) BoardScoped() bool { return s.BoardID != "" }

// ConditionType identifies one of the closed set of condition predicates.
type ConditionType string

const (
	ConditionCardPriorityIs ConditionType = "card_priority_is"
	ConditionLabelIs        ConditionType = "label_is"
	ConditionAssigneeIs     ConditionType = "assignee_is"
	ConditionDueWithinHours ConditionType = "due_within_hours"
	ConditionListIs         ConditionType = "list_is"
)

// ConditionPayload holds the per-type parameters of a condition. Only the
// fields relevant to the condition's type are set; the evaluator treats a
// missing field as a non-match.
type ConditionPayload struct {
	Priority string `json:"priority,omitempty"`
	LabelID  string `json:"labelId,omitempty"`
	UserID   string `json:"userId,omitempty"`
	Hours    *int   `json:"hours,omitempty"`
	ListID   string `json:"listId,omitempty"`
}

// Condition is one predicate of a rule. All conditions of a rule must hold
// for the rule to fire (logical AND; there is no OR or grouping in this
// model, deliberately). Position fixes evaluation and display order but does
// not change the AND result.
type Condition struct {
	Type     ConditionType    `json:"type"`
	Payload  ConditionPayload `json:"payload"`
	Position int              `json:"position"`
}

// ActionType identifies one of the closed set of side-effecting operations.
type ActionType string

const (
	ActionMoveCard     ActionType = "move_card"
	ActionAddLabel     ActionType = "add_label"
	ActionAssignMember ActionType = "assign_member"
	ActionSetDueDate   ActionType = "set_due_date"
	ActionPostComment  ActionType = "post_comment"
	ActionNotify       ActionType = "notify"
)

// ActionPayload holds the per-type parameters of an action.
//
// set_due_date takes a relative offset (DueInHours) rather than an absolute
// timestamp: automation rules express SLAs relative to when they fire.
type ActionPayload struct {
	ListID     string `json:"listId,omitempty"`
	LabelID    string `json:"labelId,omitempty"`
	UserID     string `json:"userId,omitempty"`
	DueInHours *int   `json:"dueInHours,omitempty"`
	Body       string `json:"body,omitempty"`
	Message    string `json:"message,omitempty"`
}

// Action is one side effect of a rule. Actions execute sequentially in
// Position order because later actions may depend on earlier ones.
type Action struct {
	Type     ActionType    `json:"type"`
	Payload  ActionPayload `json:"payload"`
	Position int           `json:"position"`
}

// Rule is a persisted automation definition. The engine only ever reads
// rules; lifecycle mutations come through CreateRule/ToggleActive/DeleteRule.
type Rule struct {
	ID         string      `json:"id"`
	Scope      RuleScope   `json:"scope"`
	Name       string      `json:"name"`
	Trigger    TriggerKind `json:"trigger"`
	Active     bool        `json:"active"`
	Conditions []Condition `json:"conditions"`
	Actions    []Action    `json:"actions"`
	CreatedAt  time.Time   `json:"createdAt"`
	UpdatedAt  time.Time   `json:"updatedAt"`
}

// ActionStatus is the terminal state of one executed action.
type ActionStatus string

const (
	ActionStatusOK     ActionStatus = "ok"
	ActionStatusFailed ActionStatus = "failed"
)

// ActionResult records the outcome of a single action execution. A failed
// action carries an ErrorKind for telemetry plus the underlying error; it
// never aborts the rest of the rule.
type ActionResult struct {
	Type      ActionType   `json:"type"`
	Status    ActionStatus `json:"status"`
	ErrorKind string       `json:"errorKind,omitempty"`
	Err       error        `json:"-"`

	// FollowUp is a synthesized event describing the mutation this action
	// applied (e.g. move_card produces a card_moved event). Nil for actions
	// with no downstream trigger.
	FollowUp *Event `json:"-"`
}

// RuleResult aggregates the action outcomes for one matched rule.
type RuleResult struct {
	RuleID        string         `json:"ruleId"`
	ActionsRun    int            `json:"actionsRun"`
	ActionsFailed int            `json:"actionsFailed"`
	Actions       []ActionResult `json:"actions"`
}

// RunReport is the ephemeral result of one Engine.Run invocation. It is
// returned to the caller for logging and telemetry, never persisted.
type RunReport struct {
	Event          Event                  `json:"event"`
	MatchedRuleIDs []string               `json:"matchedRuleIds"`
	RuleResults    map[string]*RuleResult `json:"ruleResults"`

	// LoopGuardTrips counts follow-up events dropped because the recursion
	// depth bound was exceeded, summed over the whole chain.
	LoopGuardTrips int `json:"loopGuardTrips"`

	// FollowUps holds the reports of follow-up events re-entered by this
	// pass, in execution order.
	FollowUps []*RunReport `json:"followUps,omitempty"`
}
