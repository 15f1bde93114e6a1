package router

import "github.com/zerohandoff/zhc-plane/internal/registry"

// RouteResult is route()'s structured outcome (spec.md §4.5).
type RouteResult struct {
	TaskID     string              `json:"task_id"`
	Status     registry.Status     `json:"status"`
	RouteClass registry.RouteClass `json:"route_class"`
	RiskLevel  registry.RiskLevel  `json:"risk_level"`
	Blockers   []string            `json:"blockers,omitempty"`
	Pending    []string            `json:"pending,omitempty"`
	Message    string              `json:"message"`
}

// ApproveResult is approve()'s structured outcome.
type ApproveResult struct {
	TaskID  string          `json:"task_id"`
	Status  registry.Status `json:"status"`
	Message string          `json:"message"`
}

// ResumeResult is resume()'s structured outcome.
type ResumeResult struct {
	TaskID  string          `json:"task_id"`
	Status  registry.Status `json:"status"`
	Message string          `json:"message"`
	NoOp    bool            `json:"no_op"`
}

// ClassifyResult is router's classify()-equivalent dry-run output,
// surfacing classification + policy without creating a task.
type ClassifyResult struct {
	RouteClass       registry.RouteClass `json:"route_class"`
	RiskLevel        registry.RiskLevel  `json:"risk_level"`
	ApprovalRequired bool                `json:"approval_required"`
	PolicyAllowed    bool                `json:"policy_allowed"`
	PolicyReason     string              `json:"policy_reason"`
}
