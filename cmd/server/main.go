package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/liamcoop/boardrules/automation"
	"github.com/liamcoop/boardrules/boardstore"
	"github.com/liamcoop/boardrules/internal/logger"
)

// Config is the server's environment configuration.
type Config struct {
	DatabaseURL     string        `env:"DATABASE_URL,required"`
	Port            string        `env:"PORT" envDefault:"8080"`
	MaxDepth        int           `env:"AUTOMATION_MAX_DEPTH" envDefault:"3"`
	SystemActorID   string        `env:"AUTOMATION_ACTOR_ID" envDefault:"system-automation"`
	SweepEnabled    bool          `env:"SWEEP_ENABLED" envDefault:"true"`
	SweepSchedule   string        `env:"SWEEP_SCHEDULE" envDefault:"*/15 * * * *"`
	SweepLookahead  time.Duration `env:"SWEEP_LOOKAHEAD" envDefault:"24h"`
	RuleCacheTTL    time.Duration `env:"RULE_CACHE_TTL" envDefault:"0"`
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"15s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`
}

type Server struct {
	db      *sql.DB
	store   automation.RuleStore
	engine  *automation.Engine
	sweeper *automation.Sweeper
	router  *chi.Mux
}

func NewServer(cfg Config) (*Server, error) {
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return NewServerWithDB(db, cfg)
}

// NewServerWithDB wires a server over an already-open database handle. Tests
// use this with a containerized database.
func NewServerWithDB(db *sql.DB, cfg Config) (*Server, error) {
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = automation.DefaultMaxDepth
	}
	store := automation.NewPostgresRuleStore(db)
	collaborators := boardstore.New(db)
	executor := automation.NewExecutor(collaborators, collaborators, collaborators, cfg.SystemActorID)

	engine := automation.NewEngine(store, executor,
		automation.WithMaxDepth(cfg.MaxDepth),
		automation.WithCache(automation.NewInMemoryRulesCache(automation.CacheConfig{TTL: cfg.RuleCacheTTL})),
	)

	s := &Server{
		db:     db,
		store:  store,
		engine: engine,
	}

	if cfg.SweepEnabled {
		sweeper, err := automation.NewSweeper(engine, collaborators, cfg.SweepSchedule, cfg.SweepLookahead)
		if err != nil {
			return nil, fmt.Errorf("failed to create sweeper: %w", err)
		}
		s.sweeper = sweeper
	}

	s.setupRoutes()

	return s, nil
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// Health check
	r.Get("/api/v1/health", s.handleHealth)

	// Event ingest: trigger producers post board mutations here. The primary
	// mutation has already committed on the caller's side; this pass is
	// best-effort automation.
	r.Post("/api/v1/events", s.handleIngestEvent)

	// Rule lifecycle. Authorization (board-admin for board-scoped rules,
	// workspace-admin for workspace-scoped) happens upstream; this surface
	// trusts its caller.
	r.Route("/api/v1/workspaces/{workspaceId}/rules", func(r chi.Router) {
		r.Post("/", s.handleCreateRule)
		r.Get("/", s.handleListRules)

		r.Route("/{ruleId}", func(r chi.Router) {
			r.Get("/", s.handleGetRule)
			r.Patch("/active", s.handleToggleActive)
			r.Delete("/", s.handleDeleteRule)
		})
	})

	s.router = r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Health check handler
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(); err != nil {
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}

	respondJSON(w, http.StatusOK, HealthResponse{Status: "healthy"})
}

// Event ingest handler
func (s *Server) handleIngestEvent(w http.ResponseWriter, r *http.Request) {
	var req IngestEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	trigger := automation.TriggerKind(req.Trigger)
	if !automation.ValidTrigger(trigger) {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("unknown trigger %q", req.Trigger), nil)
		return
	}
	if req.WorkspaceID == "" || req.BoardID == "" {
		respondError(w, http.StatusBadRequest, "workspaceId and boardId are required", nil)
		return
	}
	if req.Card.ID == "" {
		respondError(w, http.StatusBadRequest, "card.id is required", nil)
		return
	}

	event := automation.Event{
		Trigger:     trigger,
		WorkspaceID: req.WorkspaceID,
		BoardID:     req.BoardID,
		ActorID:     req.ActorID,
		Card:        req.Card,
	}

	startTime := time.Now()
	report, err := s.engine.Run(r.Context(), event)
	if err != nil {
		// Engine-fatal: the rule store was unreachable, nothing ran.
		respondError(w, http.StatusInternalServerError, "automation run failed", err)
		return
	}

	respondJSON(w, http.StatusOK, IngestEventResponse{
		Report:  report,
		RunTime: time.Since(startTime).String(),
	})
}

// Create rule handler
func (s *Server) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	workspaceID := chi.URLParam(r, "workspaceId")

	var req CreateRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	rule := &automation.Rule{
		ID: uuid.New().String(),
		Scope: automation.RuleScope{
			WorkspaceID: workspaceID,
			BoardID:     req.BoardID,
		},
		Name:       req.Name,
		Trigger:    automation.TriggerKind(req.Trigger),
		Active:     req.Active,
		Conditions: req.Conditions,
		Actions:    req.Actions,
	}

	if err := s.engine.CreateRule(rule); err != nil {
		respondError(w, http.StatusBadRequest, "failed to create rule", err)
		return
	}

	respondJSON(w, http.StatusCreated, toRuleResponse(rule))
}

// List rules handler (all rules in the workspace, active or not)
func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	workspaceID := chi.URLParam(r, "workspaceId")

	rulesList, err := s.store.ListByWorkspace(workspaceID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list rules", err)
		return
	}

	resp := RulesListResponse{Rules: []RuleResponse{}}
	for _, rule := range rulesList {
		resp.Rules = append(resp.Rules, toRuleResponse(rule))
	}

	respondJSON(w, http.StatusOK, resp)
}

// Get rule handler
func (s *Server) handleGetRule(w http.ResponseWriter, r *http.Request) {
	workspaceID := chi.URLParam(r, "workspaceId")
	ruleID := chi.URLParam(r, "ruleId")

	rule, err := s.engine.GetRule(ruleID)
	if err != nil || rule.Scope.WorkspaceID != workspaceID {
		respondError(w, http.StatusNotFound, "rule not found", err)
		return
	}

	respondJSON(w, http.StatusOK, toRuleResponse(rule))
}

// Toggle active handler
func (s *Server) handleToggleActive(w http.ResponseWriter, r *http.Request) {
	workspaceID := chi.URLParam(r, "workspaceId")
	ruleID := chi.URLParam(r, "ruleId")

	var req ToggleActiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	rule, err := s.engine.GetRule(ruleID)
	if err != nil || rule.Scope.WorkspaceID != workspaceID {
		respondError(w, http.StatusNotFound, "rule not found", err)
		return
	}

	if err := s.engine.ToggleActive(ruleID, req.Active); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to toggle rule", err)
		return
	}

	rule, err = s.engine.GetRule(ruleID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to reload rule", err)
		return
	}

	respondJSON(w, http.StatusOK, toRuleResponse(rule))
}

// Delete rule handler
func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	workspaceID := chi.URLParam(r, "workspaceId")
	ruleID := chi.URLParam(r, "ruleId")

	rule, err := s.engine.GetRule(ruleID)
	if err != nil || rule.Scope.WorkspaceID != workspaceID {
		respondError(w, http.StatusNotFound, "rule not found", err)
		return
	}

	if err := s.engine.DeleteRule(ruleID); err != nil {
		respondError(w, http.StatusNotFound, "rule not found", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Helper functions
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string, err error) {
	resp := map[string]string{
		"error": message,
	}
	if err != nil {
		resp["details"] = err.Error()
	}
	respondJSON(w, status, resp)
}

func main() {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		logger.Fatal("invalid configuration", "error", err.Error())
	}

	server, err := NewServer(cfg)
	if err != nil {
		logger.Fatal("failed to create server", "error", err.Error())
	}
	defer server.db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if server.sweeper != nil {
		go server.sweeper.Run(ctx)
		logger.Info("due-date sweeper started",
			"schedule", cfg.SweepSchedule,
			"lookahead", cfg.SweepLookahead.String())
	}

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      server,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown handling
	go func() {
		logger.Info("server starting", "port", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed to start", "error", err.Error())
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down server")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err.Error())
	}
	if err := logger.Shutdown(shutdownCtx); err != nil {
		logger.Error("logger shutdown error", "error", err.Error())
	}

	logger.Info("server stopped")
}
