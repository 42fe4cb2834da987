package main

import (
	"time"

	"github.com/liamcoop/boardrules/automation"
)

// API request and response models

// CreateRuleRequest represents the request body for creating a rule. An empty
// boardId creates a workspace-scoped rule; the workspace comes from the URL.
type CreateRuleRequest struct {
	Name       string                 `json:"name" example:"Escalate urgent cards"`
	BoardID    string                 `json:"boardId,omitempty" example:"board-1"`
	Trigger    string                 `json:"trigger" example:"card_moved"`
	Active     bool                   `json:"active" example:"true"`
	Conditions []automation.Condition `json:"conditions"`
	Actions    []automation.Action    `json:"actions"`
}

// ToggleActiveRequest represents the request body for flipping a rule's
// active flag
type ToggleActiveRequest struct {
	Active bool `json:"active" example:"false"`
}

// RuleResponse represents a rule in API responses
type RuleResponse struct {
	ID          string                 `json:"id" example:"123e4567-e89b-12d3-a456-426614174000"`
	WorkspaceID string                 `json:"workspaceId" example:"ws-1"`
	BoardID     string                 `json:"boardId,omitempty" example:"board-1"`
	Name        string                 `json:"name" example:"Escalate urgent cards"`
	Trigger     string                 `json:"trigger" example:"card_moved"`
	Active      bool                   `json:"active" example:"true"`
	Conditions  []automation.Condition `json:"conditions"`
	Actions     []automation.Action    `json:"actions"`
	CreatedAt   time.Time              `json:"createdAt" example:"2024-01-15T10:30:00Z"`
	UpdatedAt   time.Time              `json:"updatedAt" example:"2024-01-15T10:30:00Z"`
}

func toRuleResponse(r *automation.Rule) RuleResponse {
	return RuleResponse{
		ID:          r.ID,
		WorkspaceID: r.Scope.WorkspaceID,
		BoardID:     r.Scope.BoardID,
		Name:        r.Name,
		Trigger:     string(r.Trigger),
		Active:      r.Active,
		Conditions:  r.Conditions,
		Actions:     r.Actions,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

// RulesListResponse represents the response for listing rules
type RulesListResponse struct {
	Rules []RuleResponse `json:"rules"`
}

// IngestEventRequest represents an event posted by a trigger producer (card
// CRUD handler or an external sweep).
type IngestEventRequest struct {
	Trigger     string                  `json:"trigger" example:"card_moved"`
	WorkspaceID string                  `json:"workspaceId" example:"ws-1"`
	BoardID     string                  `json:"boardId" example:"board-1"`
	ActorID     string                  `json:"actorId" example:"user-2"`
	Card        automation.CardSnapshot `json:"card"`
}

// IngestEventResponse wraps the run report plus wall-clock timing.
type IngestEventResponse struct {
	Report  *automation.RunReport `json:"report"`
	RunTime string                `json:"runTime" example:"1.2ms"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error" example:"rule validation failed"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status string `json:"status" example:"healthy"`
}
