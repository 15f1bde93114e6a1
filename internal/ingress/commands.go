package ingress

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/zerohandoff/zhc-plane/internal/gate"
	"github.com/zerohandoff/zhc-plane/internal/registry"
	"github.com/zerohandoff/zhc-plane/internal/router"
)

// parseCommand splits a message's text into a lowercased, @-suffix-free
// command and its remaining whitespace-separated arguments (spec.md §4.6
// "parse the command").
func parseCommand(text string) (string, []string) {
	parts := strings.Fields(strings.TrimSpace(text))
	if len(parts) == 0 {
		return "", nil
	}
	cmd := strings.ToLower(strings.SplitN(parts[0], "@", 2)[0])
	return cmd, parts[1:]
}

func formatTaskShort(t registry.Task) string {
	return fmt.Sprintf("%s | %s | %s | type=%s | risk=%s", t.TaskID, t.Status, t.RouteClass, t.TaskType, t.RiskLevel)
}

const helpText = `ZHC control plane commands:
/start - show quick start
/help - show command help
/newtask <task_type> <prompt>
/status <task_id>
/list [limit]
/approve <task_id> <action_category> [note]
/plan <task_id> <summary>
/review <task_id> <pass|fail> [reason_code_if_fail] [notes]
/resume <task_id>
/stop <task_id>
/board`

// commandHandler dispatches control-plane commands to the Registry and
// Router in-process (spec.md §4.6's process_update, adapted from a
// subprocess-per-command design to direct Go calls).
type commandHandler struct {
	registry *registry.Registry
	router   *router.Router
}

// Handle runs one command and returns the reply text plus a result value
// to embed in the audit record.
func (h *commandHandler) Handle(ctx context.Context, cmd string, args []string, actor string) (string, any, error) {
	switch cmd {
	case "/start", "/help":
		return helpText, map[string]any{"command": cmd}, nil

	case "/newtask":
		if len(args) < 2 {
			return "", nil, fmt.Errorf("usage: /newtask <task_type> <prompt>")
		}
		taskType := args[0]
		prompt := strings.Join(args[1:], " ")
		traceID := ""
		result, err := h.router.Route(ctx, taskType, prompt, traceID)
		if err != nil {
			return "", nil, err
		}
		msg := fmt.Sprintf("Task: %s\nStatus: %s\nRoute: %s", result.TaskID, result.Status, result.RouteClass)
		return msg, result, nil

	case "/status":
		if len(args) != 1 {
			return "", nil, fmt.Errorf("usage: /status <task_id>")
		}
		detail, err := h.registry.GetTask(ctx, args[0])
		if err != nil {
			return "", nil, err
		}
		approvalStatus := "none"
		if len(detail.Approvals) > 0 {
			approvalStatus = string(detail.Approvals[len(detail.Approvals)-1].Status)
		}
		msg := fmt.Sprintf("%s\napproval=%s\nevents=%d", formatTaskShort(detail.Task), approvalStatus, len(detail.Events))
		return msg, detail, nil

	case "/list":
		limit := 10
		if len(args) > 0 {
			if n, err := strconv.Atoi(args[0]); err == nil {
				limit = clampInt(n, 1, 50)
			}
		}
		tasks, err := h.registry.ListTasks(ctx, registry.ListTasksFilter{Limit: limit})
		if err != nil {
			return "", nil, err
		}
		if len(tasks) == 0 {
			return "No tasks found", map[string]any{"tasks": []any{}}, nil
		}
		var lines []string
		for i, t := range tasks {
			if i >= 20 {
				break
			}
			lines = append(lines, formatTaskShort(*t))
		}
		return strings.Join(lines, "\n"), map[string]any{"tasks": tasks}, nil

	case "/approve":
		if len(args) < 2 {
			return "", nil, fmt.Errorf("usage: /approve <task_id> <action_category> [note]")
		}
		taskID, actionCategory := args[0], args[1]
		note := "approved via telegram"
		if len(args) > 2 {
			note = strings.Join(args[2:], " ")
		}
		result, err := h.router.Approve(ctx, taskID, actionCategory, actor, note, registry.ApprovalApproved, true)
		if err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("Approved %s: %s. Use /resume %s", taskID, result.Message, taskID), result, nil

	case "/plan":
		if len(args) < 2 {
			return "", nil, fmt.Errorf("usage: /plan <task_id> <summary>")
		}
		taskID := args[0]
		summary := strings.Join(args[1:], " ")
		if err := h.router.RecordPlan(ctx, taskID, actor, summary); err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("Planner artifact saved for %s", taskID), map[string]any{"task_id": taskID}, nil

	case "/review":
		return h.handleReview(ctx, args, actor)

	case "/resume":
		if len(args) != 1 {
			return "", nil, fmt.Errorf("usage: /resume <task_id>")
		}
		result, err := h.router.Resume(ctx, args[0], actor)
		if err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("Resume %s: %s (%s)", args[0], result.Status, result.Message), result, nil

	case "/stop":
		if len(args) != 1 {
			return "", nil, fmt.Errorf("usage: /stop <task_id>")
		}
		detail, err := h.registry.GetTask(ctx, args[0])
		if err != nil {
			return "", nil, err
		}
		if registry.IsTerminalStatus(detail.Task.Status) {
			return fmt.Sprintf("Task %s already terminal: %s", args[0], detail.Task.Status), detail, nil
		}
		task, err := h.registry.UpdateTask(ctx, args[0], registry.StatusCancelled, fmt.Sprintf("telegram_stop_requested by=%s", actor), true)
		if err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("Task %s cancelled", args[0]), task, nil

	case "/board":
		tasks, err := h.registry.ListTasks(ctx, registry.ListTasksFilter{Limit: 50})
		if err != nil {
			return "", nil, err
		}
		counts := map[string]int{}
		for _, t := range tasks {
			counts[string(t.Status)]++
		}
		msg := fmt.Sprintf("Board\nrunning=%d blocked=%d failed=%d pending=%d",
			counts[string(registry.StatusRunning)], counts[string(registry.StatusBlocked)],
			counts[string(registry.StatusFailed)], counts[string(registry.StatusPending)])
		return msg, map[string]any{"counts": counts}, nil
	}

	return "", nil, fmt.Errorf("unknown command. Use /newtask, /status, /list, /approve, /plan, /review, /resume, /stop, /board")
}

func (h *commandHandler) handleReview(ctx context.Context, args []string, actor string) (string, any, error) {
	if len(args) < 2 {
		return "", nil, fmt.Errorf("usage: /review <task_id> <pass|fail> [reason_code_if_fail] [notes]")
	}
	taskID := args[0]
	verdict := gate.Verdict(strings.ToLower(args[1]))

	var reasonCode gate.ReasonCode
	notesStart := 2
	if verdict == gate.VerdictFail {
		if len(args) < 3 {
			return "", nil, fmt.Errorf("fail review requires reason code: policy_conflict|missing_tests|insufficient_plan|high_risk_unmitigated|artifact_incomplete|other")
		}
		reasonCode = gate.ReasonCode(strings.ToLower(args[2]))
		notesStart = 3
	}
	notes := ""
	if len(args) > notesStart {
		notes = strings.Join(args[notesStart:], " ")
	}

	checklist := checklistFor(verdict, reasonCode)
	if err := h.router.RecordReview(ctx, taskID, actor, verdict, reasonCode, checklist, notes); err != nil {
		return "", nil, err
	}

	if verdict == gate.VerdictFail {
		return fmt.Sprintf("Review recorded for %s: fail (%s). Fix issues then submit /review pass.", taskID, reasonCode), nil, nil
	}
	return fmt.Sprintf("Review recorded for %s: pass.", taskID), nil, nil
}

// checklistFor derives the reviewer checklist from verdict and, on
// failure, the reason code: a pass requires every check true; a fail
// marks false each checklist entry its reason code implicates
// (ReasonPolicyConflict clears both PolicySafety and ApprovalConstraints;
// a reason code with no mapped entry, such as ReasonOther, leaves all five
// true), preserved from the original control runtime's shorthand so
// operators don't have to spell out all five flags over chat.
func checklistFor(verdict gate.Verdict, reasonCode gate.ReasonCode) gate.Checklist {
	if verdict == gate.VerdictPass {
		return gate.Checklist{PolicySafety: true, Correctness: true, Tests: true, Rollback: true, ApprovalConstraints: true}
	}
	return gate.Checklist{
		PolicySafety:        reasonCode != gate.ReasonPolicyConflict && reasonCode != gate.ReasonHighRiskUnmitigated,
		Correctness:         reasonCode != gate.ReasonInsufficientPlan,
		Tests:               reasonCode != gate.ReasonMissingTests,
		Rollback:            reasonCode != gate.ReasonArtifactIncomplete,
		ApprovalConstraints: reasonCode != gate.ReasonPolicyConflict,
	}
}

func clampInt(n, min, max int) int {
	if n < min {
		return min
	}
	if n > max {
		return max
	}
	return n
}
