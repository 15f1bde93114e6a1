// Package models holds API request/response envelopes distinct from the
// registry's storage-shaped types.
package models

// NewTaskRequest is the request body for POST /v1/tasks.
type NewTaskRequest struct {
	TaskType string `json:"task_type" validate:"required"`
	Prompt   string `json:"prompt" validate:"required"`
	TraceID  string `json:"trace_id,omitempty"`
}

// ApproveRequest is the request body for POST /v1/tasks/{id}/approve.
type ApproveRequest struct {
	ActionCategory string `json:"action_category" validate:"required"`
	Decision       string `json:"decision" validate:"required"`
	Note           string `json:"note,omitempty"`
	DeferDispatch  bool   `json:"defer_dispatch,omitempty"`
}

// RecordPlanRequest is the request body for POST /v1/tasks/{id}/plan.
type RecordPlanRequest struct {
	Author  string `json:"author" validate:"required"`
	Summary string `json:"summary" validate:"required"`
}

// RecordReviewRequest is the request body for POST /v1/tasks/{id}/review.
type RecordReviewRequest struct {
	Reviewer   string          `json:"reviewer" validate:"required"`
	Verdict    string          `json:"verdict" validate:"required"`
	ReasonCode string          `json:"reason_code,omitempty"`
	Checklist  ChecklistFields `json:"checklist"`
	Notes      string          `json:"notes,omitempty"`
}

// ChecklistFields mirrors gate.Checklist for JSON request bodies, kept
// independent of the gate package so API request shapes don't shift with
// internal gate refactors.
type ChecklistFields struct {
	PolicySafety        bool `json:"policy_safety"`
	Correctness         bool `json:"correctness"`
	Tests               bool `json:"tests"`
	Rollback            bool `json:"rollback"`
	ApprovalConstraints bool `json:"approval_constraints"`
}

// ResumeRequest is the request body for POST /v1/tasks/{id}/resume.
type ResumeRequest struct {
	RequestedBy string `json:"requested_by" validate:"required"`
}

// ErrorResponse is a standardized error envelope.
type ErrorResponse struct {
	Error     string   `json:"error"`
	Details   []string `json:"details,omitempty"`
	RequestID string   `json:"request_id,omitempty"`
}
