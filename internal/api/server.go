// Package api provides HTTP API server and request handlers.
// @title ZHC Control Plane API
// @version 1.0
// @description HTTP API for the supervised task control plane
// @basePath /v1
// @schemes http https
// @consumes application/json
// @produces application/json
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/zerohandoff/zhc-plane/internal/api/models"
	"github.com/zerohandoff/zhc-plane/internal/apiversion"
	"github.com/zerohandoff/zhc-plane/internal/config"
	"github.com/zerohandoff/zhc-plane/internal/database"
	"github.com/zerohandoff/zhc-plane/internal/logger"
	"github.com/zerohandoff/zhc-plane/internal/ops"
	"github.com/zerohandoff/zhc-plane/internal/registry"
	"github.com/zerohandoff/zhc-plane/internal/router"
)

// Server represents the HTTP API server fronting the Registry and Router.
type Server struct {
	router     *chi.Mux
	server     *http.Server
	provider   database.Provider
	registry   *registry.Registry
	routerSvc  *router.Router
	ingressSvc IngressHealthChecker
	logger     *zap.Logger
}

// IngressHealthChecker reports whether the long-poll ingress loop is
// currently running, so /readyz can surface it without internal/api
// importing internal/ingress directly.
type IngressHealthChecker interface {
	IsReady() bool
}

// New creates a new HTTP API server.
func New(cfg *config.HTTPConfig, dbProvider database.Provider, reg *registry.Registry, rt *router.Router, log *zap.Logger) *Server {
	log = log.With(zap.String("component", "api"))

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logger.HTTPMiddleware(log))
	r.Use(logger.TraceIDMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	srv := &Server{
		router:    r,
		provider:  dbProvider,
		registry:  reg,
		routerSvc: rt,
		logger:    log,
		server: &http.Server{
			Addr:         cfg.Address(),
			Handler:      r,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
	}

	srv.registerRoutes()
	return srv
}

// SetIngressChecker wires an ingress readiness probe, set after the
// long-poll loop has been constructed.
func (s *Server) SetIngressChecker(checker IngressHealthChecker) {
	s.ingressSvc = checker
}

func (s *Server) registerRoutes() {
	s.router.Get("/healthz", s.handleHealth)
	s.router.Get("/readyz", s.handleReady)
	s.router.Handle("/metrics", ops.Handler())

	s.router.Route("/"+apiversion.Current, func(r chi.Router) {
		r.Post("/tasks", s.handleNewTask)
		r.Get("/tasks", s.handleListTasks)
		r.Get("/tasks/{taskID}", s.handleGetTask)
		r.Post("/tasks/{taskID}/approve", s.handleApprove)
		r.Post("/tasks/{taskID}/plan", s.handleRecordPlan)
		r.Post("/tasks/{taskID}/review", s.handleRecordReview)
		r.Post("/tasks/{taskID}/resume", s.handleResume)

		r.Get("/ops/health", s.handleOpsHealth)
		r.Get("/ops/telemetry", s.handleOpsTelemetry)
		r.Post("/ops/selfcheck", s.handleOpsSelfCheck)
	})

	s.router.Route("/api", func(r chi.Router) {
		r.Handle("/", http.HandlerFunc(s.handleVersionRequired))
		r.Handle("/*", http.HandlerFunc(s.handleVersionRequired))
	})

	s.router.Route("/v{version}", func(r chi.Router) {
		r.Handle("/", http.HandlerFunc(s.handleUnsupportedVersion))
		r.Handle("/*", http.HandlerFunc(s.handleUnsupportedVersion))
	})
}

// handleHealth is the liveness check endpoint.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(response)
}

// handleReady is the readiness check endpoint: database plus, if wired,
// the ingress loop's lock-held status.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	checks := make(map[string]string)

	if err := s.provider.Health(ctx); err != nil {
		s.logger.Warn("readiness check failed: database unhealthy", zap.Error(err))
		checks["database"] = "unhealthy"
		s.writeReadyResponse(w, http.StatusServiceUnavailable, "unavailable", checks, err)
		return
	}
	checks["database"] = "healthy"

	if s.ingressSvc != nil {
		if s.ingressSvc.IsReady() {
			checks["ingress"] = "ready"
		} else {
			checks["ingress"] = "not_ready"
			s.writeReadyResponse(w, http.StatusServiceUnavailable, "unavailable", checks, nil)
			return
		}
	}

	s.writeReadyResponse(w, http.StatusOK, "ready", checks, nil)
}

func (s *Server) writeReadyResponse(w http.ResponseWriter, status int, state string, checks map[string]string, err error) {
	response := map[string]interface{}{
		"status": state,
		"checks": checks,
		"time":   time.Now().UTC().Format(time.RFC3339),
	}
	if err != nil {
		response["error"] = err.Error()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(response)
}

// writeErrorResponse writes a standardized error response.
func (s *Server) writeErrorResponse(w http.ResponseWriter, statusCode int, message string, details []string, requestID string) {
	resp := models.ErrorResponse{
		Error:     message,
		Details:   details,
		RequestID: requestID,
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(resp)
}

func requestIDFrom(r *http.Request) string {
	return middleware.GetReqID(r.Context())
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("address", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.Error("server shutdown failed", zap.Error(err))
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	s.logger.Info("HTTP server shut down successfully")
	return nil
}
