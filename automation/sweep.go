package automation

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"

	"github.com/liamcoop/boardrules/internal/logger"
)

// DueCard pairs a card snapshot with the workspace its board belongs to,
// which the snapshot itself does not carry.
type DueCard struct {
	WorkspaceID string
	Card        CardSnapshot
}

// CardSource lists cards whose due date falls inside a lookahead window.
// Implemented by the board store; the sweeper never touches card storage
// directly.
type CardSource interface {
	ListCardsDueWithin(ctx context.Context, window time.Duration) ([]DueCard, error)
}

// Sweeper periodically produces due_date_approaching events for cards due
// inside the lookahead window and feeds them to the engine. It is the one
// trigger producer that lives in this repo; card CRUD handlers are external
// and construct events themselves.
//
// The sweep is best-effort and stateless: a card still due on the next sweep
// produces another event, and the engine's idempotent card actions make the
// redelivery harmless. Comments and notifications fired by due-date rules can
// duplicate across sweeps; boards that care pair the rule with a label
// condition and an add_label action so the second sweep no longer matches.
type Sweeper struct {
	engine    *Engine
	cards     CardSource
	schedule  string
	lookahead time.Duration
	cron      *gronx.Gronx
}

// NewSweeper builds a sweeper gated by a cron schedule. A lookahead of 0
// defaults to 24h.
func NewSweeper(engine *Engine, cards CardSource, schedule string, lookahead time.Duration) (*Sweeper, error) {
	g := gronx.New()
	if !g.IsValid(schedule) {
		return nil, fmt.Errorf("invalid sweep schedule %q", schedule)
	}
	if lookahead <= 0 {
		lookahead = 24 * time.Hour
	}
	return &Sweeper{
		engine:    engine,
		cards:     cards,
		schedule:  schedule,
		lookahead: lookahead,
		cron:      g,
	}, nil
}

// Run ticks once a minute and sweeps whenever the schedule is due. Blocks
// until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			due, err := s.cron.IsDue(s.schedule)
			if err != nil || !due {
				continue
			}
			if err := s.Sweep(ctx); err != nil {
				logger.Error("due-date sweep failed", "error", err.Error())
			}
		}
	}
}

// Sweep runs one pass: one due_date_approaching event per card currently due
// inside the lookahead window. Engine failures on one card do not stop the
// sweep.
func (s *Sweeper) Sweep(ctx context.Context) error {
	cards, err := s.cards.ListCardsDueWithin(ctx, s.lookahead)
	if err != nil {
		return fmt.Errorf("failed to list due cards: %w", err)
	}

	for _, due := range cards {
		event := Event{
			Trigger:     TriggerDueDateApproaching,
			WorkspaceID: due.WorkspaceID,
			BoardID:     due.Card.BoardID,
			ActorID:     DefaultSystemActorID,
			Card:        due.Card,
		}

		report, err := s.engine.Run(ctx, event)
		if err != nil {
			logger.Error("due-date automation pass failed",
				"cardId", due.Card.ID, "error", err.Error())
			continue
		}
		if len(report.MatchedRuleIDs) > 0 {
			logger.Info("due-date automation fired",
				"cardId", due.Card.ID,
				"matchedRules", len(report.MatchedRuleIDs),
				"loopGuardTrips", report.LoopGuardTrips)
		}
	}

	return nil
}
