// Package router implements the Router/Dispatcher (spec.md §4.5): it
// classifies a submitted task, evaluates policy, gates HEAVY-task
// artifacts, requests approval where required, and dispatches to a worker
// exactly once per (task_id, attempt_count).
package router

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/zerohandoff/zhc-plane/internal/classifier"
	"github.com/zerohandoff/zhc-plane/internal/config"
	"github.com/zerohandoff/zhc-plane/internal/gate"
	"github.com/zerohandoff/zhc-plane/internal/ops"
	"github.com/zerohandoff/zhc-plane/internal/policy"
	"github.com/zerohandoff/zhc-plane/internal/registry"
)

const actionCategoryHumanApproval = "human_approval"

// Router ties the Registry, Policy Evaluator, Classifier, and Artifact
// Gate together into the dispatch pipeline.
type Router struct {
	registry *registry.Registry
	gate     *gate.Gate
	logger   *zap.Logger

	routingPolicy   classifier.RoutingPolicy
	executionPolicy policy.ExecutionPolicy
	approvalPolicy  policy.ApprovalPolicy
	enforcement     policy.Enforcement
	autonomyMode    policy.AutonomyMode

	dispatchCfg config.DispatchConfig
	contextCfg  config.ContextConfig
	runtimeCfg  config.RuntimeConfig
	provider    config.ProviderConfig

	cost    *costEstimator
	invoker invoker

	nowFn func() time.Time
}

// New constructs a Router from configuration, loading the routing,
// execution, and approval policy files it names.
func New(ctx context.Context, cfg *config.Config, reg *registry.Registry, logger *zap.Logger) (*Router, error) {
	routingPolicy, err := classifier.Load(cfg.Policy.RoutingPolicyPath)
	if err != nil {
		return nil, fmt.Errorf("load routing policy: %w", err)
	}
	executionPolicy, err := policy.Load(cfg.Policy.ExecutionPolicyPath)
	if err != nil {
		return nil, fmt.Errorf("load execution policy: %w", err)
	}
	approvalPolicy, err := policy.LoadApprovalPolicy(cfg.Policy.ApprovalPolicyPath)
	if err != nil {
		return nil, fmt.Errorf("load approval policy: %w", err)
	}

	g, err := gate.New(cfg.Storage.Root)
	if err != nil {
		return nil, fmt.Errorf("build artifact gate: %w", err)
	}

	var inv invoker
	switch cfg.Runtime.Mode {
	case "docker":
		dockerInv, err := newDockerInvoker(cfg.Runtime.DockerImage)
		if err != nil {
			return nil, fmt.Errorf("build docker invoker: %w", err)
		}
		inv = dockerInv
	default:
		inv = execInvoker{}
	}

	return &Router{
		registry:        reg,
		gate:            g,
		logger:          logger.With(zap.String("component", "router")),
		routingPolicy:   routingPolicy,
		executionPolicy: executionPolicy,
		approvalPolicy:  approvalPolicy,
		enforcement:     policy.Enforcement(cfg.Policy.Enforcement),
		autonomyMode:    policy.AutonomyMode(cfg.Policy.AutonomyMode),
		dispatchCfg:     cfg.Dispatch,
		contextCfg:      cfg.Context,
		runtimeCfg:      cfg.Runtime,
		provider:        cfg.Provider,
		cost:            newCostEstimator(cfg.Cost, cfg.Provider),
		invoker:         inv,
		nowFn:           func() time.Time { return time.Now().UTC() },
	}, nil
}

func (rt *Router) now() string {
	return rt.nowFn().Format(time.RFC3339Nano)
}

// Classify runs classification and policy evaluation without creating a
// task, the dry-run path behind `router route --dry-run`.
func (rt *Router) Classify(taskType, prompt string) ClassifyResult {
	classification := classifier.Classify(taskType, prompt, rt.routingPolicy)
	decision := policy.Evaluate(taskType, prompt, policy.RouteClass(classification.RouteClass), rt.autonomyMode, rt.enforcement, rt.executionPolicy)
	approvalRequired, _ := policy.RequiresApproval(string(classification.RiskLevel), taskType, rt.approvalPolicy)

	return ClassifyResult{
		RouteClass:       registry.RouteClass(classification.RouteClass),
		RiskLevel:        registry.RiskLevel(classification.RiskLevel),
		ApprovalRequired: approvalRequired,
		PolicyAllowed:    decision.Allowed,
		PolicyReason:     string(decision.Reason),
	}
}

// Route creates a new task, classifies it, evaluates policy, gates
// artifacts (if HEAVY), requests approval (if required), and attempts
// dispatch once all gates pass (spec.md §4.5). Exactly one task row is
// created; zero or one dispatch attempt is made.
func (rt *Router) Route(ctx context.Context, taskType, prompt, traceID string) (RouteResult, error) {
	classification := classifier.Classify(taskType, prompt, rt.routingPolicy)
	routeClass := registry.RouteClass(classification.RouteClass)
	riskLevel := registry.RiskLevel(classification.RiskLevel)

	decision := policy.Evaluate(taskType, prompt, policy.RouteClass(classification.RouteClass), rt.autonomyMode, rt.enforcement, rt.executionPolicy)
	approvalRequired, actionCategory := policy.RequiresApproval(string(riskLevel), taskType, rt.approvalPolicy)
	if actionCategory == "" {
		actionCategory = actionCategoryHumanApproval
	}

	taskID := generateTaskID(rt.nowFn())
	metadata := map[string]any{
		"trace_id": traceID,
		"source":   "router",
	}

	task, err := rt.registry.CreateTask(ctx, taskID, taskType, prompt, routeClass, approvalRequired, riskLevel, metadata)
	if err != nil {
		return RouteResult{}, err
	}

	classifyDetail := fmt.Sprintf("trace_id=%s classification route=%s risk=%s", traceID, routeClass, riskLevel)
	if _, err := rt.registry.MergeMetadata(ctx, taskID, map[string]any{"classified": true}, classifyDetail); err != nil {
		return RouteResult{}, err
	}

	if !decision.Allowed {
		detail := fmt.Sprintf("trace_id=%s policy_denied reason=%s", traceID, decision.Reason)
		if _, err := rt.registry.UpdateTask(ctx, taskID, registry.StatusFailed, detail, false); err != nil {
			return RouteResult{}, err
		}
		ops.RecordPolicyBlock(string(decision.Reason))
		ops.RecordTaskStatus(string(registry.StatusFailed))
		return RouteResult{}, errorf(ErrPolicyDenied, "task %s denied by policy: %s", taskID, decision.Reason)
	}

	if approvalRequired {
		if _, err := rt.registry.RequestApproval(ctx, taskID, string(actionCategory), "router", ""); err != nil {
			return RouteResult{}, err
		}
	}

	return rt.attemptOrBlock(ctx, task, traceID)
}

// attemptOrBlock computes blockers for task and either transitions it to
// blocked or proceeds to dispatch (spec.md §4.5 step 1 onward).
func (rt *Router) attemptOrBlock(ctx context.Context, task *registry.Task, traceID string) (RouteResult, error) {
	blockers, err := rt.computeBlockers(ctx, task)
	if err != nil {
		return RouteResult{}, err
	}

	if len(blockers) > 0 {
		detail := fmt.Sprintf("trace_id=%s blocked on %v", traceID, blockers)
		if _, err := rt.registry.UpdateTask(ctx, task.TaskID, registry.StatusBlocked, detail, false); err != nil {
			return RouteResult{}, err
		}
		ops.RecordTaskStatus(string(registry.StatusBlocked))
		return RouteResult{
			TaskID:     task.TaskID,
			Status:     registry.StatusBlocked,
			RouteClass: task.RouteClass,
			RiskLevel:  task.RiskLevel,
			Blockers:   blockers,
			Message:    "task blocked pending " + joinBlockers(blockers),
		}, nil
	}

	if _, err := rt.registry.UpdateTask(ctx, task.TaskID, registry.StatusQueued, fmt.Sprintf("trace_id=%s all gates passed", traceID), false); err != nil {
		return RouteResult{}, err
	}

	outcome, err := rt.dispatch(ctx, task.TaskID, traceID)
	if err != nil {
		return RouteResult{}, err
	}

	return RouteResult{
		TaskID:     task.TaskID,
		Status:     outcome.Status,
		RouteClass: task.RouteClass,
		RiskLevel:  task.RiskLevel,
		Pending:    outcome.Pending,
		Message:    outcome.Detail,
	}, nil
}

// computeBlockers implements spec.md §4.5 step 1: blockers =
// {planner_reviewer_gate if HEAVY & !gate_passed} ∪ {human_approval if
// required & not approved}.
func (rt *Router) computeBlockers(ctx context.Context, task *registry.Task) ([]string, error) {
	var blockers []string

	if task.RouteClass == registry.RouteHeavy {
		status, err := rt.gate.Check(task.TaskID)
		if err != nil {
			return nil, fmt.Errorf("check artifact gate: %w", err)
		}
		if !status.GatePassed {
			blockers = append(blockers, "planner_reviewer_gate")
		}
	}

	if task.RequiresApproval {
		approvals, err := rt.registry.ListApprovals(ctx, task.TaskID)
		if err != nil {
			return nil, err
		}
		if !anyApproved(approvals) {
			blockers = append(blockers, "human_approval")
		}
	}

	return blockers, nil
}

func anyApproved(approvals []registry.Approval) bool {
	for _, a := range approvals {
		if a.Status == registry.ApprovalApproved {
			return true
		}
	}
	return false
}

func joinBlockers(blockers []string) string {
	out := ""
	for i, b := range blockers {
		if i > 0 {
			out += ", "
		}
		out += b
	}
	return out
}

// RecordPlan writes the planner artifact for a HEAVY task (spec.md §4.5).
func (rt *Router) RecordPlan(ctx context.Context, taskID, author, summary string) error {
	detail, err := rt.registry.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if detail.Task.RouteClass != registry.RouteHeavy {
		return errorf(ErrInvalidArgument, "record_plan requires a HEAVY task, got %s", detail.Task.RouteClass)
	}

	if err := rt.gate.WritePlanner(taskID, author, summary, rt.now()); err != nil {
		return err
	}
	_, err = rt.registry.MergeMetadata(ctx, taskID, map[string]any{"planner_author": author}, fmt.Sprintf("planner recorded by %s", author))
	return err
}

// RecordReview writes the reviewer artifact for a task, enforcing
// reason_code-on-fail and checklist-all-true-on-pass (spec.md §4.5).
func (rt *Router) RecordReview(ctx context.Context, taskID, reviewer string, verdict gate.Verdict, reasonCode gate.ReasonCode, checklist gate.Checklist, notes string) error {
	if _, err := rt.registry.GetTask(ctx, taskID); err != nil {
		return err
	}

	switch verdict {
	case gate.VerdictPass:
		if !checklist.AllTrue() {
			return errorf(ErrInvalidArgument, "record_review(pass) requires all five checklist entries true")
		}
	case gate.VerdictFail:
		if reasonCode == "" {
			return errorf(ErrInvalidArgument, "record_review(fail) requires a reason_code")
		}
	default:
		return errorf(ErrInvalidArgument, "unknown review verdict %q", verdict)
	}

	if err := rt.gate.WriteReviewer(taskID, gate.WriteReviewerInput{
		Reviewer:   reviewer,
		Verdict:    verdict,
		ReasonCode: reasonCode,
		Checklist:  checklist,
		Notes:      notes,
		Timestamp:  rt.now(),
	}); err != nil {
		return err
	}

	_, err := rt.registry.MergeMetadata(ctx, taskID, map[string]any{"reviewer": reviewer}, fmt.Sprintf("review recorded verdict=%s by %s", verdict, reviewer))
	return err
}

// Approve records a human decision on a task's approval and, unless
// deferDispatch is set, attempts dispatch immediately on approval (spec.md
// §4.5).
func (rt *Router) Approve(ctx context.Context, taskID, actionCategory, decidedBy, note string, decision registry.ApprovalStatus, deferDispatch bool) (ApproveResult, error) {
	if _, err := rt.registry.DecideApproval(ctx, taskID, actionCategory, decision, decidedBy, note); err != nil {
		return ApproveResult{}, err
	}

	detail, err := rt.registry.GetTask(ctx, taskID)
	if err != nil {
		return ApproveResult{}, err
	}
	recordApprovalLatency(detail.Approvals, actionCategory, rt.nowFn())

	if decision != registry.ApprovalApproved || deferDispatch {
		return ApproveResult{
			TaskID:  taskID,
			Status:  detail.Task.Status,
			Message: fmt.Sprintf("approval recorded: %s", decision),
		}, nil
	}

	result, err := rt.attemptOrBlock(ctx, &detail.Task, traceIDFromMetadata(detail.Task))
	if err != nil {
		return ApproveResult{}, err
	}
	return ApproveResult{TaskID: taskID, Status: result.Status, Message: result.Message}, nil
}

// Resume reconciles stale leases then dispatches a task if no blockers
// remain. It is a no-op on terminal or currently in-progress tasks
// (spec.md §4.5).
func (rt *Router) Resume(ctx context.Context, taskID, requestedBy string) (ResumeResult, error) {
	detail, err := rt.registry.GetTask(ctx, taskID)
	if err != nil {
		return ResumeResult{}, err
	}

	if registry.IsTerminalStatus(detail.Task.Status) || detail.Task.Status == registry.StatusRunning {
		return ResumeResult{
			TaskID:  taskID,
			Status:  detail.Task.Status,
			NoOp:    true,
			Message: fmt.Sprintf("resume is a no-op for status %s", detail.Task.Status),
		}, nil
	}

	if _, err := rt.registry.ReconcileDispatchLeases(ctx, rt.dispatchCfg.ResolvedOwner()); err != nil {
		return ResumeResult{}, err
	}

	result, err := rt.attemptOrBlock(ctx, &detail.Task, traceIDFromMetadata(detail.Task))
	if err != nil {
		return ResumeResult{}, err
	}
	return ResumeResult{TaskID: taskID, Status: result.Status, Message: result.Message}, nil
}

func traceIDFromMetadata(task registry.Task) string {
	if v, ok := task.Metadata["trace_id"]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func generateTaskID(now time.Time) string {
	return "task-" + now.Format("20060102T150405Z")
}

// recordApprovalLatency observes the request-to-decision latency of the
// most recently created approval for actionCategory, best-effort: a
// malformed timestamp just skips the observation rather than failing the
// approval itself.
func recordApprovalLatency(approvals []registry.Approval, actionCategory string, now func() time.Time) {
	var latest *registry.Approval
	for i := range approvals {
		if approvals[i].ActionCategory != actionCategory {
			continue
		}
		if latest == nil || approvals[i].CreatedAt > latest.CreatedAt {
			latest = &approvals[i]
		}
	}
	if latest == nil {
		return
	}
	requestedAt, err := time.Parse(time.RFC3339Nano, latest.CreatedAt)
	if err != nil {
		return
	}
	ops.RecordApprovalLatency(now().Sub(requestedAt))
}
