package automation

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// PostgresRuleStore implements RuleStore backed by PostgreSQL. Conditions and
// actions are stored as JSONB documents on the rule row; a workspace-scoped
// rule has a NULL board_id.
type PostgresRuleStore struct {
	db *sql.DB
}

// NewPostgresRuleStore creates a new PostgreSQL-backed RuleStore
func NewPostgresRuleStore(db *sql.DB) *PostgresRuleStore {
	return &PostgresRuleStore{db: db}
}

// Add inserts a new rule into the database
func (s *PostgresRuleStore) Add(rule *Rule) error {
	// Check if rule already exists
	var exists bool
	err := s.db.QueryRow(`
		SELECT EXISTS(SELECT 1 FROM automation_rules WHERE id = $1)
	`, rule.ID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check rule existence: %w", err)
	}
	if exists {
		return fmt.Errorf("rule with ID %s already exists", rule.ID)
	}

	conditionsJSON, actionsJSON, err := marshalRuleBody(rule)
	if err != nil {
		return err
	}

	now := time.Now()
	rule.CreatedAt = now
	rule.UpdatedAt = now

	_, err = s.db.Exec(`
		INSERT INTO automation_rules
			(id, workspace_id, board_id, name, trigger, active, conditions, actions, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, rule.ID, rule.Scope.WorkspaceID, nullableBoardID(rule.Scope), rule.Name,
		string(rule.Trigger), rule.Active, conditionsJSON, actionsJSON,
		rule.CreatedAt, rule.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to insert rule: %w", err)
	}

	return nil
}

// Get retrieves a rule by ID
func (s *PostgresRuleStore) Get(id string) (*Rule, error) {
	row := s.db.QueryRow(`
		SELECT id, workspace_id, board_id, name, trigger, active, conditions, actions, created_at, updated_at
		FROM automation_rules
		WHERE id = $1
	`, id)

	rule, err := scanRule(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("rule %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rule: %w", err)
	}

	return rule, nil
}

// ListActive returns the active rules in scope for one board: rules scoped to
// boardID plus workspace-scoped rules for workspaceID.
func (s *PostgresRuleStore) ListActive(workspaceID, boardID string) ([]*Rule, error) {
	rows, err := s.db.Query(`
		SELECT id, workspace_id, board_id, name, trigger, active, conditions, actions, created_at, updated_at
		FROM automation_rules
		WHERE workspace_id = $1 AND active = true
		  AND (board_id = $2 OR board_id IS NULL)
		ORDER BY created_at ASC, id ASC
	`, workspaceID, boardID)
	if err != nil {
		return nil, fmt.Errorf("failed to list active rules: %w", err)
	}
	defer rows.Close()

	var rulesList []*Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		rulesList = append(rulesList, rule)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rules: %w", err)
	}

	return rulesList, nil
}

// ListByWorkspace returns every rule in a workspace, newest first.
func (s *PostgresRuleStore) ListByWorkspace(workspaceID string) ([]*Rule, error) {
	rows, err := s.db.Query(`
		SELECT id, workspace_id, board_id, name, trigger, active, conditions, actions, created_at, updated_at
		FROM automation_rules
		WHERE workspace_id = $1
		ORDER BY created_at DESC, id ASC
	`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list workspace rules: %w", err)
	}
	defer rows.Close()

	var rulesList []*Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		rulesList = append(rulesList, rule)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rules: %w", err)
	}

	return rulesList, nil
}

// Update modifies an existing rule
func (s *PostgresRuleStore) Update(rule *Rule) error {
	conditionsJSON, actionsJSON, err := marshalRuleBody(rule)
	if err != nil {
		return err
	}

	rule.UpdatedAt = time.Now()

	result, err := s.db.Exec(`
		UPDATE automation_rules
		SET name = $1, trigger = $2, active = $3, conditions = $4, actions = $5, updated_at = $6
		WHERE id = $7
	`, rule.Name, string(rule.Trigger), rule.Active, conditionsJSON, actionsJSON,
		rule.UpdatedAt, rule.ID)

	if err != nil {
		return fmt.Errorf("failed to update rule: %w", err)
	}

	return requireOneRow(result, rule.ID)
}

// SetActive flips a rule's active flag
func (s *PostgresRuleStore) SetActive(id string, active bool) error {
	result, err := s.db.Exec(`
		UPDATE automation_rules
		SET active = $1, updated_at = $2
		WHERE id = $3
	`, active, time.Now(), id)

	if err != nil {
		return fmt.Errorf("failed to set rule active flag: %w", err)
	}

	return requireOneRow(result, id)
}

// Delete removes a rule from the database
func (s *PostgresRuleStore) Delete(id string) error {
	result, err := s.db.Exec(`
		DELETE FROM automation_rules
		WHERE id = $1
	`, id)

	if err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}

	return requireOneRow(result, id)
}

func requireOneRow(result sql.Result, ruleID string) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("rule %s not found", ruleID)
	}
	return nil
}

func marshalRuleBody(rule *Rule) (conditionsJSON, actionsJSON []byte, err error) {
	conditionsJSON, err = json.Marshal(rule.Conditions)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal conditions: %w", err)
	}
	actionsJSON, err = json.Marshal(rule.Actions)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal actions: %w", err)
	}
	return conditionsJSON, actionsJSON, nil
}

func nullableBoardID(scope RuleScope) sql.NullString {
	if !scope.BoardScoped() {
		return sql.NullString{}
	}
	return sql.NullString{String: scope.BoardID, Valid: true}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRule(row rowScanner) (*Rule, error) {
	var (
		rule           Rule
		boardID        sql.NullString
		trigger        string
		conditionsJSON []byte
		actionsJSON    []byte
	)
	err := row.Scan(
		&rule.ID,
		&rule.Scope.WorkspaceID,
		&boardID,
		&rule.Name,
		&trigger,
		&rule.Active,
		&conditionsJSON,
		&actionsJSON,
		&rule.CreatedAt,
		&rule.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if boardID.Valid {
		rule.Scope.BoardID = boardID.String
	}
	rule.Trigger = TriggerKind(trigger)

	if err := json.Unmarshal(conditionsJSON, &rule.Conditions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal conditions: %w", err)
	}
	if err := json.Unmarshal(actionsJSON, &rule.Actions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal actions: %w", err)
	}

	return &rule, nil
}
