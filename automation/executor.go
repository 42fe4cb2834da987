package automation

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// CardWriter applies card mutations for the executor. Implementations must
// make every operation an idempotent set/upsert: applying the same mutation
// twice must leave the card in the same end state, because event delivery is
// at-least-once.
type CardWriter interface {
	MoveCard(ctx context.Context, cardID, listID string) error
	AddLabel(ctx context.Context, cardID, labelID string) error
	AssignMember(ctx context.Context, cardID, userID string) error
	SetDueDate(ctx context.Context, cardID string, dueAt time.Time) error
}

// Comment is a card comment authored by the automation actor.
type Comment struct {
	CardID   string
	AuthorID string
	Body     string
}

// CommentSink inserts comments. Not idempotent: redelivering an event can
// produce a duplicate comment. That is an accepted tradeoff, not an oversight.
type CommentSink interface {
	InsertComment(ctx context.Context, c Comment) error
}

// Notification is an enqueued message for a target user.
type Notification struct {
	UserID      string
	WorkspaceID string
	BoardID     string
	CardID      string
	Type        string
	Message     string
}

// NotificationSink enqueues notifications. Like CommentSink, duplicates on
// redelivery are accepted.
type NotificationSink interface {
	EnqueueNotification(ctx context.Context, n Notification) error
}

// NotificationTypeAutomation tags notifications produced by rule actions.
const NotificationTypeAutomation = "automation"

// DefaultSystemActorID identifies the automation actor on comments and
// follow-up events when no other ID is configured.
const DefaultSystemActorID = "system-automation"

// Executor performs a rule's actions against external state. It holds no
// state of its own beyond the collaborator handles; every call is
// self-contained.
type Executor struct {
	cards         CardWriter
	comments      CommentSink
	notifications NotificationSink
	systemActorID string
}

// NewExecutor wires an executor to its collaborators. systemActorID may be
// empty, in which case DefaultSystemActorID is used.
func NewExecutor(cards CardWriter, comments CommentSink, notifications NotificationSink, systemActorID string) *Executor {
	if systemActorID == "" {
		systemActorID = DefaultSystemActorID
	}
	return &Executor{
		cards:         cards,
		comments:      comments,
		notifications: notifications,
		systemActorID: systemActorID,
	}
}

// ExecuteRule runs every action of rule for event in Position order,
// sequentially. A failed action is recorded and the remaining actions still
// run: actions are independent side effects, not a transaction. Retry is the
// caller's concern via redelivery of the same event.
func (ex *Executor) ExecuteRule(ctx context.Context, event Event, rule *Rule, now time.Time) *RuleResult {
	ordered := make([]Action, len(rule.Actions))
	copy(ordered, rule.Actions)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Position < ordered[j].Position
	})

	result := &RuleResult{
		RuleID:  rule.ID,
		Actions: make([]ActionResult, 0, len(ordered)),
	}
	for _, action := range ordered {
		ar := ex.ExecuteAction(ctx, event, action, now)
		if ar.Status == ActionStatusOK {
			result.ActionsRun++
		} else {
			result.ActionsFailed++
		}
		result.Actions = append(result.Actions, ar)
	}
	return result
}

// ExecuteAction applies a single action and reports its outcome. Unknown
// action types are a no-op recorded as failed with kind "unknown_action_type"
// rather than a panic, mirroring the fail-closed condition policy.
func (ex *Executor) ExecuteAction(ctx context.Context, event Event, action Action, now time.Time) ActionResult {
	switch action.Type {
	case ActionMoveCard:
		return ex.moveCard(ctx, event, action)
	case ActionAddLabel:
		return ex.addLabel(ctx, event, action)
	case ActionAssignMember:
		return ex.assignMember(ctx, event, action)
	case ActionSetDueDate:
		return ex.setDueDate(ctx, event, action, now)
	case ActionPostComment:
		return ex.postComment(ctx, event, action)
	case ActionNotify:
		return ex.notify(ctx, event, action)
	}

	return ActionResult{
		Type:      action.Type,
		Status:    ActionStatusFailed,
		ErrorKind: "unknown_action_type",
		Err:       fmt.Errorf("unknown action type %q", action.Type),
	}
}

func (ex *Executor) moveCard(ctx context.Context, event Event, action Action) ActionResult {
	if action.Payload.ListID == "" {
		return failed(action.Type, "missing_list_id", fmt.Errorf("move_card payload has no listId"))
	}
	if err := ex.cards.MoveCard(ctx, event.Card.ID, action.Payload.ListID); err != nil {
		return failed(action.Type, "card_store_write", err)
	}

	card := event.Card
	card.ListID = action.Payload.ListID
	return ok(action.Type, ex.followUp(event, TriggerCardMoved, card))
}

func (ex *Executor) addLabel(ctx context.Context, event Event, action Action) ActionResult {
	if action.Payload.LabelID == "" {
		return failed(action.Type, "missing_label_id", fmt.Errorf("add_label payload has no labelId"))
	}
	if err := ex.cards.AddLabel(ctx, event.Card.ID, action.Payload.LabelID); err != nil {
		return failed(action.Type, "card_store_write", err)
	}

	card := event.Card
	if !card.HasLabel(action.Payload.LabelID) {
		card.LabelIDs = append(append([]string(nil), card.LabelIDs...), action.Payload.LabelID)
	}
	return ok(action.Type, ex.followUp(event, TriggerCardUpdated, card))
}

func (ex *Executor) assignMember(ctx context.Context, event Event, action Action) ActionResult {
	if action.Payload.UserID == "" {
		return failed(action.Type, "missing_user_id", fmt.Errorf("assign_member payload has no userId"))
	}
	if err := ex.cards.AssignMember(ctx, event.Card.ID, action.Payload.UserID); err != nil {
		return failed(action.Type, "card_store_write", err)
	}

	card := event.Card
	if !card.HasAssignee(action.Payload.UserID) {
		card.AssigneeIDs = append(append([]string(nil), card.AssigneeIDs...), action.Payload.UserID)
	}
	return ok(action.Type, ex.followUp(event, TriggerCardUpdated, card))
}

func (ex *Executor) setDueDate(ctx context.Context, event Event, action Action, now time.Time) ActionResult {
	if action.Payload.DueInHours == nil {
		return failed(action.Type, "missing_due_in_hours", fmt.Errorf("set_due_date payload has no dueInHours"))
	}
	dueAt := now.Add(time.Duration(*action.Payload.DueInHours) * time.Hour)
	if err := ex.cards.SetDueDate(ctx, event.Card.ID, dueAt); err != nil {
		return failed(action.Type, "card_store_write", err)
	}

	card := event.Card
	card.DueAt = &dueAt
	return ok(action.Type, ex.followUp(event, TriggerCardUpdated, card))
}

func (ex *Executor) postComment(ctx context.Context, event Event, action Action) ActionResult {
	if action.Payload.Body == "" {
		return failed(action.Type, "missing_body", fmt.Errorf("post_comment payload has no body"))
	}
	err := ex.comments.InsertComment(ctx, Comment{
		CardID:   event.Card.ID,
		AuthorID: ex.systemActorID,
		Body:     action.Payload.Body,
	})
	if err != nil {
		return failed(action.Type, "comment_sink_write", err)
	}
	return ok(action.Type, nil)
}

func (ex *Executor) notify(ctx context.Context, event Event, action Action) ActionResult {
	if action.Payload.UserID == "" {
		return failed(action.Type, "missing_user_id", fmt.Errorf("notify payload has no userId"))
	}
	err := ex.notifications.EnqueueNotification(ctx, Notification{
		UserID:      action.Payload.UserID,
		WorkspaceID: event.WorkspaceID,
		BoardID:     event.BoardID,
		CardID:      event.Card.ID,
		Type:        NotificationTypeAutomation,
		Message:     action.Payload.Message,
	})
	if err != nil {
		return failed(action.Type, "notification_sink_write", err)
	}
	return ok(action.Type, nil)
}

// followUp synthesizes the event describing a mutation this executor just
// applied. The automation actor is the actor, and the snapshot reflects the
// post-mutation card.
func (ex *Executor) followUp(event Event, trigger TriggerKind, card CardSnapshot) *Event {
	return &Event{
		Trigger:     trigger,
		WorkspaceID: event.WorkspaceID,
		BoardID:     event.BoardID,
		ActorID:     ex.systemActorID,
		Card:        card,
	}
}

func ok(t ActionType, followUp *Event) ActionResult {
	return ActionResult{Type: t, Status: ActionStatusOK, FollowUp: followUp}
}

func failed(t ActionType, kind string, err error) ActionResult {
	return ActionResult{Type: t, Status: ActionStatusFailed, ErrorKind: kind, Err: err}
}
