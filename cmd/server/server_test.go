//go:build integration

package main

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupTestDB creates a PostgreSQL testcontainer and runs migrations
func setupTestDB(t *testing.T) (*sql.DB, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_PASSWORD": "password",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	postgres, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start postgres container: %v", err)
	}

	host, err := postgres.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := postgres.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	connStr := fmt.Sprintf("postgres://postgres:password@%s:%s/testdb?sslmode=disable", host, port.Port())

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}

	// Wait for database to be ready
	for i := 0; i < 30; i++ {
		if err := db.Ping(); err == nil {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}

	// Run migrations
	migrationSQL, err := os.ReadFile("../../migrations/000001_initial_schema.up.sql")
	if err != nil {
		t.Fatalf("Failed to read migration file: %v", err)
	}

	if _, err := db.Exec(string(migrationSQL)); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	cleanup := func() {
		db.Close()
		postgres.Terminate(ctx)
	}

	return db, cleanup
}

func makeRequest(t *testing.T, method, url string, body interface{}) map[string]interface{} {
	t.Helper()

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Failed to marshal request body: %v", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	var result map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	result["_status"] = float64(resp.StatusCode)
	return result
}

// TestEndToEnd_RuleLifecycleAndEvent walks the full workflow:
// 1. Create a rule
// 2. Ingest a matching event and observe the card mutation
// 3. Deactivate the rule and observe the event no longer matches
// 4. Delete the rule
func TestEndToEnd_RuleLifecycleAndEvent(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	server, err := NewServerWithDB(db, Config{SystemActorID: "bot-1"})
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}

	ts := httptest.NewServer(server)
	defer ts.Close()
	baseURL := ts.URL + "/api/v1"

	// Seed a board and a card for the event to act on.
	if _, err := db.Exec(`INSERT INTO boards (id, workspace_id, name) VALUES ('board-1', 'ws-1', 'Dev board')`); err != nil {
		t.Fatalf("Failed to seed board: %v", err)
	}
	if _, err := db.Exec(`INSERT INTO cards (id, board_id, list_id, title, priority) VALUES ('card-1', 'board-1', 'list-todo', 'Ship it', 'high')`); err != nil {
		t.Fatalf("Failed to seed card: %v", err)
	}

	// Step 1: Create rule
	t.Log("Step 1: Creating rule...")
	createResp := makeRequest(t, "POST", baseURL+"/workspaces/ws-1/rules", map[string]interface{}{
		"name":    "triage high priority",
		"boardId": "board-1",
		"trigger": "card_created",
		"active":  true,
		"conditions": []map[string]interface{}{
			{"type": "card_priority_is", "payload": map[string]interface{}{"priority": "high"}},
		},
		"actions": []map[string]interface{}{
			{"type": "move_card", "payload": map[string]interface{}{"listId": "list-triage"}, "position": 0},
			{"type": "add_label", "payload": map[string]interface{}{"labelId": "label-urgent"}, "position": 1},
		},
	})
	if createResp["_status"].(float64) != http.StatusCreated {
		t.Fatalf("Expected 201, got %v: %v", createResp["_status"], createResp)
	}
	ruleID := createResp["id"].(string)
	t.Logf("Created rule: %s", ruleID)

	// Step 2: Ingest a matching event
	t.Log("Step 2: Ingesting event...")
	eventResp := makeRequest(t, "POST", baseURL+"/events", map[string]interface{}{
		"trigger":     "card_created",
		"workspaceId": "ws-1",
		"boardId":     "board-1",
		"actorId":     "user-1",
		"card": map[string]interface{}{
			"id":       "card-1",
			"boardId":  "board-1",
			"listId":   "list-todo",
			"priority": "high",
		},
	})
	if eventResp["_status"].(float64) != http.StatusOK {
		t.Fatalf("Expected 200, got %v: %v", eventResp["_status"], eventResp)
	}
	report := eventResp["report"].(map[string]interface{})
	matched, _ := report["matchedRuleIds"].([]interface{})
	if len(matched) != 1 || matched[0].(string) != ruleID {
		t.Fatalf("Expected event to match rule %s, got %v", ruleID, matched)
	}

	var listID string
	if err := db.QueryRow(`SELECT list_id FROM cards WHERE id = 'card-1'`).Scan(&listID); err != nil {
		t.Fatalf("Failed to query card: %v", err)
	}
	if listID != "list-triage" {
		t.Errorf("Card list = %s, want list-triage", listID)
	}

	// Step 3: Deactivate and re-ingest
	t.Log("Step 3: Deactivating rule...")
	toggleResp := makeRequest(t, "PATCH", baseURL+"/workspaces/ws-1/rules/"+ruleID+"/active", map[string]interface{}{
		"active": false,
	})
	if active, ok := toggleResp["active"].(bool); !ok || active {
		t.Fatalf("Expected rule inactive after toggle, got %v", toggleResp)
	}

	eventResp = makeRequest(t, "POST", baseURL+"/events", map[string]interface{}{
		"trigger":     "card_created",
		"workspaceId": "ws-1",
		"boardId":     "board-1",
		"actorId":     "user-1",
		"card": map[string]interface{}{
			"id":       "card-1",
			"priority": "high",
		},
	})
	report = eventResp["report"].(map[string]interface{})
	if matched, _ := report["matchedRuleIds"].([]interface{}); len(matched) != 0 {
		t.Errorf("Deactivated rule still matched: %v", matched)
	}

	// Step 4: List and delete
	t.Log("Step 4: Listing and deleting rule...")
	listResp := makeRequest(t, "GET", baseURL+"/workspaces/ws-1/rules", nil)
	rules, ok := listResp["rules"].([]interface{})
	if !ok || len(rules) != 1 {
		t.Fatalf("Expected 1 rule, got %v", listResp)
	}

	if resp := makeRequest(t, "DELETE", baseURL+"/workspaces/ws-1/rules/"+ruleID, nil); resp != nil {
		t.Fatalf("Expected 204 on delete, got %v", resp)
	}
	getResp := makeRequest(t, "GET", baseURL+"/workspaces/ws-1/rules/"+ruleID, nil)
	if getResp["_status"].(float64) != http.StatusNotFound {
		t.Errorf("Expected 404 after delete, got %v", getResp)
	}
}

// TestIngestEventValidation covers the reject paths of the event endpoint.
func TestIngestEventValidation(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	server, err := NewServerWithDB(db, Config{})
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}
	ts := httptest.NewServer(server)
	defer ts.Close()

	testCases := []struct {
		name string
		body map[string]interface{}
	}{
		{
			name: "unknown trigger",
			body: map[string]interface{}{
				"trigger":     "card_teleported",
				"workspaceId": "ws-1",
				"boardId":     "board-1",
				"card":        map[string]interface{}{"id": "card-1"},
			},
		},
		{
			name: "missing workspace",
			body: map[string]interface{}{
				"trigger": "card_created",
				"boardId": "board-1",
				"card":    map[string]interface{}{"id": "card-1"},
			},
		},
		{
			name: "missing card id",
			body: map[string]interface{}{
				"trigger":     "card_created",
				"workspaceId": "ws-1",
				"boardId":     "board-1",
				"card":        map[string]interface{}{},
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			resp := makeRequest(t, "POST", ts.URL+"/api/v1/events", tc.body)
			if resp["_status"].(float64) != http.StatusBadRequest {
				t.Errorf("Expected 400, got %v: %v", resp["_status"], resp)
			}
		})
	}
}

// TestCreateRuleValidation verifies malformed rules are rejected with 400.
func TestCreateRuleValidation(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	server, err := NewServerWithDB(db, Config{})
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}
	ts := httptest.NewServer(server)
	defer ts.Close()

	resp := makeRequest(t, "POST", ts.URL+"/api/v1/workspaces/ws-1/rules", map[string]interface{}{
		"name":    "no actions",
		"trigger": "card_created",
		"active":  true,
	})
	if resp["_status"].(float64) != http.StatusBadRequest {
		t.Errorf("Expected 400 for a rule without actions, got %v: %v", resp["_status"], resp)
	}

	// Rules in another workspace must be invisible through this one.
	resp = makeRequest(t, "GET", ts.URL+"/api/v1/workspaces/ws-other/rules", nil)
	if rules, ok := resp["rules"].([]interface{}); !ok || len(rules) != 0 {
		t.Errorf("Expected empty rule list for foreign workspace, got %v", resp)
	}
}
