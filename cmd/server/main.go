package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fleetware/regtrain/determine"
	"github.com/fleetware/regtrain/internal/logger"
	"github.com/fleetware/regtrain/rules"
	"github.com/fleetware/regtrain/training"
)

type Server struct {
	db          *sql.DB
	service     *training.Service
	determiner  *determine.RuleDeterminer
	corrections training.CorrectionStore
	router      *chi.Mux
}

// NewServer wires the training service. With an empty databaseURL the
// server runs against in-memory stores, which is enough for local training
// runs and tests.
func NewServer(databaseURL, rulesPath string) (*Server, error) {
	var db *sql.DB
	var store training.Store
	var corrections training.CorrectionStore

	if databaseURL != "" {
		var err error
		db, err = sql.Open("postgres", databaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		if err := db.Ping(); err != nil {
			return nil, fmt.Errorf("failed to ping database: %w", err)
		}
		pg := training.NewPostgresStore(db)
		store, corrections = pg, pg
		logger.Info("using postgres store")
	} else {
		store = training.NewMemoryStore()
		corrections = training.NewMemoryCorrectionStore()
		logger.Warn("DATABASE_URL not set, using in-memory stores")
	}

	var determiner *determine.RuleDeterminer
	var err error
	if rulesPath != "" {
		determiner, err = determine.NewRuleDeterminerFromFile(rulesPath)
	} else {
		determiner, err = determine.NewRuleDeterminer()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to build determiner: %w", err)
	}
	logger.Info("compliance catalog loaded", "rules", determiner.Catalog().Len())

	s := &Server{
		db:          db,
		determiner:  determiner,
		corrections: corrections,
		service: training.NewService(store, corrections, determiner,
			training.NewMetrics(), logger.Logger),
	}
	s.setupRoutes()
	return s, nil
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/api/v1/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1/training", func(r chi.Router) {
		r.Post("/generate-scenarios", s.handleGenerateScenarios)
		r.Get("/session", s.handleGetSession)
		r.Post("/complete-session", s.handleCompleteSession)
		r.Get("/next-scenario", s.handleNextScenario)
		r.Post("/test-scenario", s.handleTestScenario)
		r.Post("/submit-feedback", s.handleSubmitFeedback)
		r.Get("/corrections", s.handleListCorrections)
	})

	s.router = r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.db != nil {
		if err := s.db.Ping(); err != nil {
			respondJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unhealthy",
				"error":  err.Error(),
			})
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":         "healthy",
		"catalogVersion": s.determiner.Catalog().Version(),
	})
}

func (s *Server) handleGenerateScenarios(w http.ResponseWriter, r *http.Request) {
	var req GenerateScenariosRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.Count <= 0 {
		req.Count = 10
	}
	seed := time.Now().UnixNano()
	if req.Seed != nil {
		seed = *req.Seed
	}
	name := req.SessionName
	if name == "" {
		name = fmt.Sprintf("training-%s", time.Now().Format("2006-01-02-150405"))
	}

	session, err := s.service.StartSession(r.Context(), name, req.Count, seed)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to start session", err)
		return
	}

	respondJSON(w, http.StatusCreated, GenerateScenariosResponse{
		Count:   req.Count,
		Session: session,
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	session, err := s.service.CurrentSession(r.Context())
	if err != nil {
		if errors.Is(err, training.ErrNotFound) {
			respondError(w, http.StatusNotFound, "no training session exists", nil)
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to load session", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"session": session})
}

func (s *Server) handleCompleteSession(w http.ResponseWriter, r *http.Request) {
	session, err := s.service.CompleteSession(r.Context())
	if err != nil {
		if errors.Is(err, training.ErrNoActiveSession) {
			respondError(w, http.StatusConflict, "no active training session", nil)
			return
		}
		// Completion is already applied in memory; report the write failure.
		respondJSON(w, http.StatusInternalServerError, map[string]any{
			"session": session,
			"errors":  []string{err.Error()},
		})
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"session": session})
}

func (s *Server) handleNextScenario(w http.ResponseWriter, r *http.Request) {
	sc, err := s.service.NextScenario(r.Context())
	if err != nil {
		switch {
		case errors.Is(err, training.ErrNoActiveSession):
			respondError(w, http.StatusConflict, "no active training session", nil)
		case errors.Is(err, training.ErrNoScenarios):
			respondError(w, http.StatusNotFound, "all scenarios in this session have been tested", nil)
		default:
			respondError(w, http.StatusInternalServerError, "failed to select scenario", err)
		}
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"scenario": sc})
}

func (s *Server) handleTestScenario(w http.ResponseWriter, r *http.Request) {
	var req TestScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.ScenarioID == "" {
		respondError(w, http.StatusBadRequest, "scenarioId is required", nil)
		return
	}

	outcome, err := s.service.TestScenario(r.Context(), req.ScenarioID)
	if err != nil {
		switch {
		case errors.Is(err, training.ErrNoActiveSession):
			respondError(w, http.StatusConflict, "no active training session", nil)
		case errors.Is(err, training.ErrNotFound):
			respondError(w, http.StatusNotFound, "scenario not found", err)
		default:
			respondError(w, http.StatusInternalServerError, "test failed", err)
		}
		return
	}

	// Partial success carries its persistence errors in the payload.
	respondJSON(w, http.StatusOK, outcome)
}

func (s *Server) handleSubmitFeedback(w http.ResponseWriter, r *http.Request) {
	var req SubmitFeedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.ScenarioID == "" {
		respondError(w, http.StatusBadRequest, "scenarioId is required", nil)
		return
	}

	outcome, err := s.service.SubmitFeedback(r.Context(), training.Feedback{
		ScenarioID:         req.ScenarioID,
		IsCorrect:          req.IsCorrect,
		FieldView:          req.PerFieldReview,
		Text:               req.Feedback,
		Reviewer:           req.ReviewedBy,
		Corrected:          req.Correction,
		CorrectedReasoning: req.CorrectionReasoning,
	})
	if err != nil {
		switch {
		case errors.Is(err, training.ErrNoActiveSession):
			respondError(w, http.StatusConflict, "no active training session", nil)
		case errors.Is(err, training.ErrNotFound):
			respondError(w, http.StatusNotFound, "no result for scenario in this session", err)
		default:
			respondError(w, http.StatusBadRequest, "failed to apply review", err)
		}
		return
	}

	respondJSON(w, http.StatusOK, outcome)
}

func (s *Server) handleListCorrections(w http.ResponseWriter, r *http.Request) {
	profile := r.URL.Query().Get("profile")
	if profile == "" {
		respondError(w, http.StatusBadRequest, "profile query parameter is required", nil)
		return
	}

	out, err := s.corrections.LookupCorrections(r.Context(), profile)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list corrections", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"corrections": out})
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("failed to encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, message string, err error) {
	if err != nil {
		message = fmt.Sprintf("%s: %v", message, err)
	}
	respondJSON(w, status, ErrorResponse{Error: message})
}

func main() {
	databaseURL := os.Getenv("DATABASE_URL")
	rulesPath := os.Getenv("RULES_PATH")
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	server, err := NewServer(databaseURL, rulesPath)
	if err != nil {
		logger.Fatal("failed to start server", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Hot-reload the compliance catalog when it is file-backed.
	if rulesPath != "" {
		watcher, err := rules.NewWatcher(rulesPath, server.determiner.Registry(),
			server.determiner.Catalog(), logger.Logger)
		if err != nil {
			logger.Fatal("failed to watch rules catalog", "path", rulesPath, "error", err)
		}
		go func() {
			if err := watcher.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("catalog watcher stopped", "error", err)
			}
		}()
	}

	httpServer := &http.Server{
		Addr:    ":" + port,
		Handler: server,
	}

	go func() {
		logger.Info("listening", "port", port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
	if server.db != nil {
		server.db.Close()
	}
	_ = logger.Shutdown(shutdownCtx)
}
