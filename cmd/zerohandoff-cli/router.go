package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zerohandoff/zhc-plane/internal/gate"
	"github.com/zerohandoff/zhc-plane/internal/registry"
)

func newRouterCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "router",
		Short: "Route, approve, and dispatch tasks through the classifier/policy/gate pipeline",
	}

	cmd.AddCommand(newRouterRouteCommand())
	cmd.AddCommand(newRouterClassifyCommand())
	cmd.AddCommand(newRouterApproveCommand())
	cmd.AddCommand(newRouterRecordPlanCommand())
	cmd.AddCommand(newRouterRecordReviewCommand())
	cmd.AddCommand(newRouterResumeCommand())

	return cmd
}

func newRouterRouteCommand() *cobra.Command {
	var taskType, prompt, traceID string
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "route",
		Short: "Classify, policy-check, gate-check, and dispatch a new task",
		RunE: func(cmd *cobra.Command, args []string) error {
			if dryRun {
				classification := plane.Router.Classify(taskType, prompt)
				return printResult(classification, func() string {
					return fmt.Sprintf("%s %s\n%s %s\n%s %v",
						labelStyle.Render("Route Class:"), classification.RouteClass,
						labelStyle.Render("Risk Level:"), classification.RiskLevel,
						labelStyle.Render("Requires Approval:"), classification.RequiresApproval)
				})
			}

			result, err := plane.Router.Route(cmd.Context(), taskType, prompt, traceID)
			if err != nil {
				return err
			}
			return printResult(result, func() string {
				return fmt.Sprintf("%s %s\n%s %s\n%s",
					labelStyle.Render("Task ID:"), result.TaskID,
					labelStyle.Render("Status:"), formatTaskStatus(result.Status),
					result.Message)
			})
		},
	}

	cmd.Flags().StringVar(&taskType, "task-type", "", "Task type")
	cmd.Flags().StringVar(&prompt, "prompt", "", "Task prompt")
	cmd.Flags().StringVar(&traceID, "trace-id", "", "Trace ID correlating this task with related events")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Classify and policy-check without creating a task row or dispatching")
	cmd.MarkFlagRequired("task-type")
	cmd.MarkFlagRequired("prompt")

	return cmd
}

func newRouterClassifyCommand() *cobra.Command {
	var taskType, prompt string

	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Run only classification, without policy, gate, or dispatch",
		RunE: func(cmd *cobra.Command, args []string) error {
			result := plane.Router.Classify(taskType, prompt)
			return printResult(result, func() string {
				return fmt.Sprintf("%s %s\n%s %s\n%s %v",
					labelStyle.Render("Route Class:"), result.RouteClass,
					labelStyle.Render("Risk Level:"), result.RiskLevel,
					labelStyle.Render("Requires Approval:"), result.RequiresApproval)
			})
		},
	}

	cmd.Flags().StringVar(&taskType, "task-type", "", "Task type")
	cmd.Flags().StringVar(&prompt, "prompt", "", "Task prompt")
	cmd.MarkFlagRequired("task-type")
	cmd.MarkFlagRequired("prompt")

	return cmd
}

func newRouterApproveCommand() *cobra.Command {
	var taskID, actionCategory, decidedBy, note, decision string
	var deferDispatch bool

	cmd := &cobra.Command{
		Use:   "approve <task-id>",
		Short: "Decide a pending approval and, unless deferred, resume dispatch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			taskID = args[0]
			result, err := plane.Router.Approve(cmd.Context(), taskID, actionCategory, decidedBy, note,
				registry.ApprovalStatus(decision), deferDispatch)
			if err != nil {
				return err
			}
			return printResult(result, func() string {
				return fmt.Sprintf("%s %s\n%s", labelStyle.Render("Status:"), formatTaskStatus(result.Status), result.Message)
			})
		},
	}

	cmd.Flags().StringVar(&actionCategory, "action-category", "", "Action category being decided")
	cmd.Flags().StringVar(&decision, "decision", "", "approved or rejected")
	cmd.Flags().StringVar(&decidedBy, "decided-by", "", "Deciding actor")
	cmd.Flags().StringVar(&note, "note", "", "Optional note")
	cmd.Flags().BoolVar(&deferDispatch, "defer-dispatch", false, "Record the decision without immediately attempting dispatch")
	cmd.MarkFlagRequired("action-category")
	cmd.MarkFlagRequired("decision")
	cmd.MarkFlagRequired("decided-by")

	return cmd
}

func newRouterRecordPlanCommand() *cobra.Command {
	var author, summary string

	cmd := &cobra.Command{
		Use:   "record-plan <task-id>",
		Short: "Record the planner artifact for a HEAVY task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := plane.Router.RecordPlan(cmd.Context(), args[0], author, summary); err != nil {
				return err
			}
			return printResult(map[string]string{"task_id": args[0], "status": "plan_recorded"}, func() string {
				return successStyle.Render(fmt.Sprintf("plan recorded for %s", args[0]))
			})
		},
	}

	cmd.Flags().StringVar(&author, "author", "", "Plan author")
	cmd.Flags().StringVar(&summary, "summary", "", "Plan summary")
	cmd.MarkFlagRequired("author")
	cmd.MarkFlagRequired("summary")

	return cmd
}

func newRouterRecordReviewCommand() *cobra.Command {
	var reviewer, verdict, reasonCode, notes string
	var policySafety, correctness, tests, rollback, approvalConstraints bool

	cmd := &cobra.Command{
		Use:   "record-review <task-id>",
		Short: "Record the reviewer artifact for a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			checklist := gate.Checklist{
				PolicySafety:        policySafety,
				Correctness:         correctness,
				Tests:               tests,
				Rollback:            rollback,
				ApprovalConstraints: approvalConstraints,
			}
			err := plane.Router.RecordReview(cmd.Context(), args[0], reviewer,
				gate.Verdict(verdict), gate.ReasonCode(reasonCode), checklist, notes)
			if err != nil {
				return err
			}
			return printResult(map[string]string{"task_id": args[0], "status": "review_recorded"}, func() string {
				return successStyle.Render(fmt.Sprintf("review recorded for %s: %s", args[0], verdict))
			})
		},
	}

	cmd.Flags().StringVar(&reviewer, "reviewer", "", "Reviewing actor")
	cmd.Flags().StringVar(&verdict, "verdict", "", "pass or fail")
	cmd.Flags().StringVar(&reasonCode, "reason-code", "", "Reason code, required when verdict is fail")
	cmd.Flags().StringVar(&notes, "notes", "", "Free-text reviewer notes")
	cmd.Flags().BoolVar(&policySafety, "policy-safety", true, "Checklist: policy safety satisfied")
	cmd.Flags().BoolVar(&correctness, "correctness", true, "Checklist: correctness satisfied")
	cmd.Flags().BoolVar(&tests, "tests", true, "Checklist: tests satisfied")
	cmd.Flags().BoolVar(&rollback, "rollback", true, "Checklist: rollback plan satisfied")
	cmd.Flags().BoolVar(&approvalConstraints, "approval-constraints", true, "Checklist: approval constraints satisfied")
	cmd.MarkFlagRequired("reviewer")
	cmd.MarkFlagRequired("verdict")

	return cmd
}

func newRouterResumeCommand() *cobra.Command {
	var requestedBy string

	cmd := &cobra.Command{
		Use:   "resume <task-id>",
		Short: "Reconcile stale leases and retry dispatch for a non-terminal task (no-op if terminal or running)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := plane.Router.Resume(cmd.Context(), args[0], requestedBy)
			if err != nil {
				return err
			}
			return printResult(result, func() string {
				return fmt.Sprintf("%s %s\n%s", labelStyle.Render("Status:"), formatTaskStatus(result.Status), result.Message)
			})
		},
	}

	cmd.Flags().StringVar(&requestedBy, "requested-by", "", "Requesting actor")
	cmd.MarkFlagRequired("requested-by")

	return cmd
}
