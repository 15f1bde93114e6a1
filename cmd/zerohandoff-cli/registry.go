package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zerohandoff/zhc-plane/internal/registry"
)

func newRegistryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "registry",
		Short: "Operate the task registry directly against its storage backend",
	}

	cmd.AddCommand(newRegistryInitCommand())
	cmd.AddCommand(newRegistryCreateCommand())
	cmd.AddCommand(newRegistryUpdateCommand())
	cmd.AddCommand(newRegistryGetCommand())
	cmd.AddCommand(newRegistryListCommand())
	cmd.AddCommand(newRegistryTelemetryCommand())
	cmd.AddCommand(newRegistryApprovalRequestCommand())
	cmd.AddCommand(newRegistryApprovalDecideCommand())
	cmd.AddCommand(newRegistryApprovalListCommand())
	cmd.AddCommand(newRegistryMetadataMergeCommand())
	cmd.AddCommand(newRegistryLeaseCommand())
	cmd.AddCommand(newRegistryIdempoCommand())
	cmd.AddCommand(newRegistryEventsCommand())
	cmd.AddCommand(newRegistryTraceEventsCommand())

	return cmd
}

// newRegistryInitCommand confirms the embedded migrations have been
// applied; bootstrap.New already runs them before any subcommand's body
// executes, so this is a read-only confirmation rather than a distinct
// code path.
func newRegistryInitCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Apply embedded schema migrations (idempotent; also runs automatically on every invocation)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return printResult(map[string]string{"status": "ok", "dialect": plane.Provider.Dialect()}, func() string {
				return successStyle.Render(fmt.Sprintf("schema migrations applied (%s)", plane.Provider.Dialect()))
			})
		},
	}
}

func newRegistryCreateCommand() *cobra.Command {
	var taskType, prompt, routeClass, riskLevel, metadataJSON string
	var requiresApproval bool

	cmd := &cobra.Command{
		Use:   "create <task-id>",
		Short: "Create a new task row",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var metadata map[string]any
			if metadataJSON != "" {
				if err := json.Unmarshal([]byte(metadataJSON), &metadata); err != nil {
					return fmt.Errorf("parse --metadata: %w", err)
				}
			}

			task, err := plane.Registry.CreateTask(cmd.Context(), args[0], taskType, prompt,
				registry.RouteClass(routeClass), requiresApproval, registry.RiskLevel(riskLevel), metadata)
			if err != nil {
				return err
			}
			return printResult(task, func() string { return renderTaskList([]*registry.Task{task}) })
		},
	}

	cmd.Flags().StringVar(&taskType, "task-type", "", "Task type")
	cmd.Flags().StringVar(&prompt, "prompt", "", "Task prompt")
	cmd.Flags().StringVar(&routeClass, "route-class", string(registry.RouteLight), "Route class (LIGHT or HEAVY)")
	cmd.Flags().StringVar(&riskLevel, "risk-level", string(registry.RiskLow), "Risk level (low, medium, high)")
	cmd.Flags().BoolVar(&requiresApproval, "requires-approval", false, "Whether the task requires human approval before dispatch")
	cmd.Flags().StringVar(&metadataJSON, "metadata", "", "Metadata as a JSON object")
	cmd.MarkFlagRequired("task-type")
	cmd.MarkFlagRequired("prompt")

	return cmd
}

func newRegistryUpdateCommand() *cobra.Command {
	var status, detail string
	var force bool

	cmd := &cobra.Command{
		Use:   "update <task-id>",
		Short: "Transition a task to a new status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			task, err := plane.Registry.UpdateTask(cmd.Context(), args[0], registry.Status(status), detail, force)
			if err != nil {
				return err
			}
			return printResult(task, func() string { return renderTaskList([]*registry.Task{task}) })
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Target status")
	cmd.Flags().StringVar(&detail, "detail", "", "Event detail recorded alongside the transition")
	cmd.Flags().BoolVar(&force, "force", false, "Bypass the status transition table (operator override)")
	cmd.MarkFlagRequired("status")

	return cmd
}

func newRegistryGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get <task-id>",
		Short: "Get a task's full detail: row, events, approvals, lease",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			detail, err := plane.Registry.GetTask(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printResult(detail, func() string { return renderTaskDetails(detail) })
		},
	}
}

func newRegistryListCommand() *cobra.Command {
	var status, taskType, routeClass string
	var limit, offset int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks, filtered and paginated",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := registry.ListTasksFilter{
				TaskType:   taskType,
				RouteClass: registry.RouteClass(routeClass),
				Limit:      limit,
				Offset:     offset,
			}
			if status != "" {
				filter.Statuses = []registry.Status{registry.Status(status)}
			}

			tasks, err := plane.Registry.ListTasks(cmd.Context(), filter)
			if err != nil {
				return err
			}
			return printResult(tasks, func() string { return renderTaskList(tasks) })
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Filter by status")
	cmd.Flags().StringVar(&taskType, "task-type", "", "Filter by task type")
	cmd.Flags().StringVar(&routeClass, "route-class", "", "Filter by route class")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum rows to return")
	cmd.Flags().IntVar(&offset, "offset", 0, "Rows to skip")

	return cmd
}

func newRegistryTelemetryCommand() *cobra.Command {
	var windowHours int

	cmd := &cobra.Command{
		Use:   "telemetry",
		Short: "Print the windowed telemetry summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			summary, err := plane.Registry.TelemetrySummary(cmd.Context(), windowHours)
			if err != nil {
				return err
			}
			return printResult(summary, func() string {
				return fmt.Sprintf("%s %d\n%s %.2f\n%s %.2fms\n%s %.2f",
					labelStyle.Render("Tasks:"), summary.TaskCount,
					labelStyle.Render("Estimated Cost (USD):"), summary.TotalEstimatedCostUSD,
					labelStyle.Render("Avg Dispatch Duration:"), summary.AvgDispatchDurationMs,
					labelStyle.Render("Avg Compression Ratio:"), summary.AvgCompressionRatio)
			})
		},
	}

	cmd.Flags().IntVar(&windowHours, "window-hours", 24, "Lookback window in hours")
	return cmd
}

func newRegistryApprovalRequestCommand() *cobra.Command {
	var actionCategory, requestedBy, note string

	cmd := &cobra.Command{
		Use:   "approval-request <task-id>",
		Short: "Request an approval decision on a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			approval, err := plane.Registry.RequestApproval(cmd.Context(), args[0], actionCategory, requestedBy, note)
			if err != nil {
				return err
			}
			return printResult(approval, func() string {
				return fmt.Sprintf("%s requested for task %s by %s", actionCategory, args[0], requestedBy)
			})
		},
	}

	cmd.Flags().StringVar(&actionCategory, "action-category", "", "Action category requiring approval")
	cmd.Flags().StringVar(&requestedBy, "requested-by", "", "Requesting actor")
	cmd.Flags().StringVar(&note, "note", "", "Optional note")
	cmd.MarkFlagRequired("action-category")
	cmd.MarkFlagRequired("requested-by")

	return cmd
}

func newRegistryApprovalDecideCommand() *cobra.Command {
	var actionCategory, decision, decidedBy, note string

	cmd := &cobra.Command{
		Use:   "approval-decide <task-id>",
		Short: "Record an approval decision on a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			approval, err := plane.Registry.DecideApproval(cmd.Context(), args[0], actionCategory,
				registry.ApprovalStatus(decision), decidedBy, note)
			if err != nil {
				return err
			}
			return printResult(approval, func() string {
				return fmt.Sprintf("%s decided %s for task %s by %s", actionCategory, decision, args[0], decidedBy)
			})
		},
	}

	cmd.Flags().StringVar(&actionCategory, "action-category", "", "Action category being decided")
	cmd.Flags().StringVar(&decision, "decision", "", "approved or rejected")
	cmd.Flags().StringVar(&decidedBy, "decided-by", "", "Deciding actor")
	cmd.Flags().StringVar(&note, "note", "", "Optional note")
	cmd.MarkFlagRequired("action-category")
	cmd.MarkFlagRequired("decision")
	cmd.MarkFlagRequired("decided-by")

	return cmd
}

func newRegistryApprovalListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "approval-list <task-id>",
		Short: "List a task's approvals",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			approvals, err := plane.Registry.ListApprovals(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printResult(approvals, func() string {
				lines := make([]string, 0, len(approvals))
				for _, a := range approvals {
					lines = append(lines, fmt.Sprintf("%s: %s (requested by %s)", a.ActionCategory, a.Status, a.RequestedBy))
				}
				return fmt.Sprintf("%v", lines)
			})
		},
	}
}

func newRegistryMetadataMergeCommand() *cobra.Command {
	var patchJSON, detail string

	cmd := &cobra.Command{
		Use:   "metadata-merge <task-id>",
		Short: "Merge a JSON patch into a task's metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var patch map[string]any
			if err := json.Unmarshal([]byte(patchJSON), &patch); err != nil {
				return fmt.Errorf("parse --patch: %w", err)
			}

			task, err := plane.Registry.MergeMetadata(cmd.Context(), args[0], patch, detail)
			if err != nil {
				return err
			}
			return printResult(task, func() string { return renderTaskList([]*registry.Task{task}) })
		},
	}

	cmd.Flags().StringVar(&patchJSON, "patch", "", "Metadata patch as a JSON object")
	cmd.Flags().StringVar(&detail, "detail", "", "Event detail recorded alongside the merge")
	cmd.MarkFlagRequired("patch")

	return cmd
}

func newRegistryEventsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "events <task-id>",
		Short: "List a task's event trail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			events, err := plane.Registry.ListEvents(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printResult(events, func() string {
				lines := make([]string, 0, len(events))
				for _, e := range events {
					lines = append(lines, fmt.Sprintf("[%s] %s: %s", e.CreatedAt, e.EventType, e.Detail))
				}
				return fmt.Sprintf("%v", lines)
			})
		},
	}
}

func newRegistryTraceEventsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "trace-events <trace-id>",
		Short: "List every event sharing a trace ID across tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			events, err := plane.Registry.TraceEvents(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printResult(events, func() string {
				lines := make([]string, 0, len(events))
				for _, e := range events {
					lines = append(lines, fmt.Sprintf("[%s] %s/%s: %s", e.CreatedAt, e.TaskID, e.EventType, e.Detail))
				}
				return fmt.Sprintf("%v", lines)
			})
		},
	}
}
