package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zerohandoff/zhc-plane/internal/ops"
)

// newOpsCommand adds the operator-facing `ops health`/`ops selfcheck`
// commands that supplement spec.md's distilled CLI surface (SPEC_FULL.md
// §9): a direct Registry query so an operator can check plane health
// without the HTTP server running, and a chaos-lite round trip of the
// lease/idempotency state machines.
func newOpsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ops",
		Short: "Operational health and self-check commands",
	}

	cmd.AddCommand(newOpsHealthCommand())
	cmd.AddCommand(newOpsSelfCheckCommand())

	return cmd
}

func newOpsHealthCommand() *cobra.Command {
	var windowHours int

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Print the windowed ops + telemetry health report",
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := ops.BuildHealthReport(cmd.Context(), plane.Registry, windowHours)
			if err != nil {
				return err
			}
			return printResult(report, func() string {
				return fmt.Sprintf("%s\n%s %d\n%s %d\n%s %d\n%s %d",
					labelStyle.Render("Tasks By Status:"),
					labelStyle.Render("Stale Leases:"), report.Ops.StaleLeases,
					labelStyle.Render("Idempotency Conflicts:"), report.Ops.RecentIdempotencyConflicts,
					labelStyle.Render("Command Timeouts:"), report.Ops.CommandTimeouts,
					labelStyle.Render("Dispatch Timeouts:"), report.Ops.DispatchTimeouts)
			})
		},
	}

	cmd.Flags().IntVar(&windowHours, "window-hours", 24, "Lookback window in hours")
	return cmd
}

func newOpsSelfCheckCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "selfcheck",
		Short: "Run a chaos-lite round trip of the lease and idempotency state machines",
		RunE: func(cmd *cobra.Command, args []string) error {
			report := ops.SelfCheck(cmd.Context(), plane.Registry)
			if err := printResult(report, func() string {
				status := successStyle.Render("ok")
				if report.Error != "" {
					status = errorStyle.Render(report.Error)
				}
				return fmt.Sprintf("%s %v\n%s %v\n%s %s",
					labelStyle.Render("Lease Round Trip:"), report.LeaseRoundTrip,
					labelStyle.Render("Idempotency Round Trip:"), report.IdempotencyRoundTrip,
					labelStyle.Render("Status:"), status)
			}); err != nil {
				return err
			}
			if report.Error != "" {
				return fmt.Errorf("self-check failed: %s", report.Error)
			}
			return nil
		},
	}
}
