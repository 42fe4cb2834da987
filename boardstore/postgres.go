// Package boardstore provides the Postgres-backed reference implementation of
// the automation engine's external collaborators: card mutations, comment
// inserts, notification enqueueing, and the due-window card query used by the
// sweeper. The engine itself only ever sees the interfaces in the automation
// package; any other storage can stand in.
package boardstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/liamcoop/boardrules/automation"
)

// Postgres implements automation.CardWriter, automation.CommentSink,
// automation.NotificationSink, and automation.CardSource.
//
// Card mutations are written as idempotent sets and upserts: event delivery
// is at-least-once, so applying the same action twice must leave the same end
// state. Comment and notification inserts are plain inserts and can duplicate
// on redelivery.
type Postgres struct {
	db *sql.DB
}

// New wraps an open database handle.
func New(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// MoveCard sets the card's list. A repeated move to the same list is a no-op
// update.
func (p *Postgres) MoveCard(ctx context.Context, cardID, listID string) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE cards
		SET list_id = $1, updated_at = NOW()
		WHERE id = $2
	`, listID, cardID)
	if err != nil {
		return fmt.Errorf("failed to move card: %w", err)
	}
	return requireCard(result, cardID)
}

// AddLabel attaches a label to the card; attaching an already-attached label
// does nothing.
func (p *Postgres) AddLabel(ctx context.Context, cardID, labelID string) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO card_labels (card_id, label_id)
		VALUES ($1, $2)
		ON CONFLICT (card_id, label_id) DO NOTHING
	`, cardID, labelID)
	if err != nil {
		return fmt.Errorf("failed to add label: %w", err)
	}
	return nil
}

// AssignMember attaches a user to the card's assignee set; re-assigning does
// nothing.
func (p *Postgres) AssignMember(ctx context.Context, cardID, userID string) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO card_assignees (card_id, user_id)
		VALUES ($1, $2)
		ON CONFLICT (card_id, user_id) DO NOTHING
	`, cardID, userID)
	if err != nil {
		return fmt.Errorf("failed to assign member: %w", err)
	}
	return nil
}

// SetDueDate sets the card's due date.
func (p *Postgres) SetDueDate(ctx context.Context, cardID string, dueAt time.Time) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE cards
		SET due_at = $1, updated_at = NOW()
		WHERE id = $2
	`, dueAt, cardID)
	if err != nil {
		return fmt.Errorf("failed to set due date: %w", err)
	}
	return requireCard(result, cardID)
}

// InsertComment inserts a comment authored by the automation actor.
func (p *Postgres) InsertComment(ctx context.Context, c automation.Comment) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO comments (card_id, author_id, body, created_at)
		VALUES ($1, $2, $3, NOW())
	`, c.CardID, c.AuthorID, c.Body)
	if err != nil {
		return fmt.Errorf("failed to insert comment: %w", err)
	}
	return nil
}

// EnqueueNotification writes a pending notification row; delivery is an
// external consumer's job.
func (p *Postgres) EnqueueNotification(ctx context.Context, n automation.Notification) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO notifications (user_id, workspace_id, board_id, card_id, type, message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
	`, n.UserID, n.WorkspaceID, nullable(n.BoardID), nullable(n.CardID), n.Type, n.Message)
	if err != nil {
		return fmt.Errorf("failed to enqueue notification: %w", err)
	}
	return nil
}

// ListCardsDueWithin returns snapshots of cards whose due date falls inside
// [now, now+window], with their label and assignee sets loaded, for the
// due-date sweeper.
func (p *Postgres) ListCardsDueWithin(ctx context.Context, window time.Duration) ([]automation.DueCard, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT c.id, c.board_id, b.workspace_id, c.list_id, c.priority, c.due_at,
		       COALESCE(array_agg(DISTINCT cl.label_id) FILTER (WHERE cl.label_id IS NOT NULL), '{}'),
		       COALESCE(array_agg(DISTINCT ca.user_id) FILTER (WHERE ca.user_id IS NOT NULL), '{}')
		FROM cards c
		JOIN boards b ON b.id = c.board_id
		LEFT JOIN card_labels cl ON cl.card_id = c.id
		LEFT JOIN card_assignees ca ON ca.card_id = c.id
		WHERE c.due_at IS NOT NULL
		  AND c.due_at >= NOW()
		  AND c.due_at <= NOW() + $1::interval
		GROUP BY c.id, c.board_id, b.workspace_id, c.list_id, c.priority, c.due_at
		ORDER BY c.due_at ASC
	`, fmt.Sprintf("%d seconds", int(window.Seconds())))
	if err != nil {
		return nil, fmt.Errorf("failed to query due cards: %w", err)
	}
	defer rows.Close()

	var cards []automation.DueCard
	for rows.Next() {
		var (
			due   automation.DueCard
			dueAt time.Time
		)
		if err := rows.Scan(
			&due.Card.ID,
			&due.Card.BoardID,
			&due.WorkspaceID,
			&due.Card.ListID,
			&due.Card.Priority,
			&dueAt,
			pq.Array(&due.Card.LabelIDs),
			pq.Array(&due.Card.AssigneeIDs),
		); err != nil {
			return nil, fmt.Errorf("failed to scan due card: %w", err)
		}
		due.Card.DueAt = &dueAt
		cards = append(cards, due)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating due cards: %w", err)
	}

	return cards, nil
}

func requireCard(result sql.Result, cardID string) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("card %s not found", cardID)
	}
	return nil
}

func nullable(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
