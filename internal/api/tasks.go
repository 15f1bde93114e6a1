package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zerohandoff/zhc-plane/internal/api/models"
	"github.com/zerohandoff/zhc-plane/internal/gate"
	"github.com/zerohandoff/zhc-plane/internal/registry"
	"github.com/zerohandoff/zhc-plane/internal/router"
)

// handleNewTask routes a new task through classification, policy, gate,
// and (if unblocked) dispatch.
// @Summary Submit a new task
// @Router /v1/tasks [post]
func (s *Server) handleNewTask(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r)

	var req models.NewTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "invalid JSON body", []string{err.Error()}, requestID)
		return
	}
	if req.TaskType == "" || req.Prompt == "" {
		s.writeErrorResponse(w, http.StatusBadRequest, "task_type and prompt are required", nil, requestID)
		return
	}

	result, err := s.routerSvc.Route(r.Context(), req.TaskType, req.Prompt, req.TraceID)
	if err != nil {
		s.writeRouterError(w, err, requestID)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(result)
}

// handleGetTask returns a task's full detail: task row, events, approvals,
// and lease.
// @Summary Get task detail
// @Router /v1/tasks/{taskID} [get]
func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r)
	taskID := chi.URLParam(r, "taskID")

	detail, err := s.registry.GetTask(r.Context(), taskID)
	if err != nil {
		s.writeRegistryError(w, err, requestID)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(detail)
}

// handleListTasks lists tasks filtered by status/task_type/route_class,
// paginated by limit/offset.
// @Summary List tasks
// @Router /v1/tasks [get]
func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r)
	q := r.URL.Query()

	filter := registry.ListTasksFilter{
		TaskType:   q.Get("task_type"),
		RouteClass: registry.RouteClass(q.Get("route_class")),
		Limit:      queryInt(q, "limit", 50),
		Offset:     queryInt(q, "offset", 0),
	}
	if status := q.Get("status"); status != "" {
		filter.Statuses = []registry.Status{registry.Status(status)}
	}

	tasks, err := s.registry.ListTasks(r.Context(), filter)
	if err != nil {
		s.writeRegistryError(w, err, requestID)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]any{"tasks": tasks})
}

// handleApprove records a human decision on a task's pending approval.
// @Summary Approve or reject a task's pending approval
// @Router /v1/tasks/{taskID}/approve [post]
func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r)
	taskID := chi.URLParam(r, "taskID")

	var req models.ApproveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "invalid JSON body", []string{err.Error()}, requestID)
		return
	}
	if req.ActionCategory == "" || req.Decision == "" {
		s.writeErrorResponse(w, http.StatusBadRequest, "action_category and decision are required", nil, requestID)
		return
	}

	decidedBy := requestID
	if v := r.Header.Get("X-Actor"); v != "" {
		decidedBy = v
	}

	result, err := s.routerSvc.Approve(r.Context(), taskID, req.ActionCategory, decidedBy, req.Note,
		registry.ApprovalStatus(req.Decision), req.DeferDispatch)
	if err != nil {
		s.writeRouterError(w, err, requestID)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(result)
}

// handleRecordPlan writes the planner artifact for a HEAVY task.
// @Summary Record a planner artifact
// @Router /v1/tasks/{taskID}/plan [post]
func (s *Server) handleRecordPlan(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r)
	taskID := chi.URLParam(r, "taskID")

	var req models.RecordPlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "invalid JSON body", []string{err.Error()}, requestID)
		return
	}
	if req.Author == "" || req.Summary == "" {
		s.writeErrorResponse(w, http.StatusBadRequest, "author and summary are required", nil, requestID)
		return
	}

	if err := s.routerSvc.RecordPlan(r.Context(), taskID, req.Author, req.Summary); err != nil {
		s.writeRouterError(w, err, requestID)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleRecordReview writes the reviewer artifact for a task.
// @Summary Record a reviewer artifact
// @Router /v1/tasks/{taskID}/review [post]
func (s *Server) handleRecordReview(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r)
	taskID := chi.URLParam(r, "taskID")

	var req models.RecordReviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "invalid JSON body", []string{err.Error()}, requestID)
		return
	}
	if req.Reviewer == "" || req.Verdict == "" {
		s.writeErrorResponse(w, http.StatusBadRequest, "reviewer and verdict are required", nil, requestID)
		return
	}

	checklist := gate.Checklist{
		PolicySafety:        req.Checklist.PolicySafety,
		Correctness:         req.Checklist.Correctness,
		Tests:               req.Checklist.Tests,
		Rollback:            req.Checklist.Rollback,
		ApprovalConstraints: req.Checklist.ApprovalConstraints,
	}

	err := s.routerSvc.RecordReview(r.Context(), taskID, req.Reviewer,
		gate.Verdict(req.Verdict), gate.ReasonCode(req.ReasonCode), checklist, req.Notes)
	if err != nil {
		s.writeRouterError(w, err, requestID)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleResume reconciles stale leases and retries dispatch for a blocked
// or otherwise non-terminal task; a terminal or running task is left as
// is (no-op).
// @Summary Resume a task
// @Router /v1/tasks/{taskID}/resume [post]
func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r)
	taskID := chi.URLParam(r, "taskID")

	var req models.ResumeRequest
	json.NewDecoder(r.Body).Decode(&req)
	if req.RequestedBy == "" {
		req.RequestedBy = requestID
	}

	result, err := s.routerSvc.Resume(r.Context(), taskID, req.RequestedBy)
	if err != nil {
		s.writeRouterError(w, err, requestID)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(result)
}

func (s *Server) writeRouterError(w http.ResponseWriter, err error, requestID string) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, router.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, router.ErrInvalidArgument):
		status = http.StatusBadRequest
	case errors.Is(err, router.ErrPolicyDenied), errors.Is(err, router.ErrGateBlocked):
		status = http.StatusConflict
	case errors.Is(err, router.ErrIntegrityConflict):
		status = http.StatusConflict
	case errors.Is(err, router.ErrTimeout):
		status = http.StatusGatewayTimeout
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("router operation failed", zap.Error(err), zap.String("request_id", requestID))
	}
	s.writeErrorResponse(w, status, err.Error(), nil, requestID)
}

func (s *Server) writeRegistryError(w http.ResponseWriter, err error, requestID string) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, registry.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, registry.ErrInvalidArgument):
		status = http.StatusBadRequest
	case errors.Is(err, registry.ErrIntegrityConflict), errors.Is(err, registry.ErrInvalidTransition):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("registry operation failed", zap.Error(err), zap.String("request_id", requestID))
	}
	s.writeErrorResponse(w, status, err.Error(), nil, requestID)
}

func queryInt(q map[string][]string, key string, def int) int {
	vals, ok := q[key]
	if !ok || len(vals) == 0 || vals[0] == "" {
		return def
	}
	n, err := strconv.Atoi(vals[0])
	if err != nil {
		return def
	}
	return n
}
