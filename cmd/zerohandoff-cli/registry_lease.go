package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zerohandoff/zhc-plane/internal/registry"
)

func newRegistryLeaseCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lease",
		Short: "Operate dispatch leases (at-most-one active dispatcher owner per task)",
	}

	cmd.AddCommand(newLeaseEnqueueCommand())
	cmd.AddCommand(newLeaseClaimCommand())
	cmd.AddCommand(newLeaseHeartbeatCommand())
	cmd.AddCommand(newLeaseFinishCommand())
	cmd.AddCommand(newLeaseReconcileCommand())
	cmd.AddCommand(newLeaseGetCommand())
	cmd.AddCommand(newLeaseListCommand())

	return cmd
}

func leaseOwnerFlags(cmd *cobra.Command, owner *string, leaseSeconds *int) {
	cmd.Flags().StringVar(owner, "owner", "", "Lease owner ID")
	cmd.Flags().IntVar(leaseSeconds, "lease-seconds", 60, "Lease duration in seconds")
	cmd.MarkFlagRequired("owner")
}

func renderLease(lease *registry.DispatchLease) string {
	lastError := ""
	if lease.LastError != nil {
		lastError = *lease.LastError
	}
	return fmt.Sprintf("%s %s\n%s %s\n%s %d\n%s %s\n%s %s\n%s %s",
		labelStyle.Render("Task ID:"), lease.TaskID,
		labelStyle.Render("Status:"), lease.LeaseStatus,
		labelStyle.Render("Attempt Count:"), lease.AttemptCount,
		labelStyle.Render("Expires At:"), lease.LeaseExpiresAt,
		labelStyle.Render("Heartbeat At:"), lease.HeartbeatAt,
		labelStyle.Render("Last Error:"), lastError)
}

func newLeaseEnqueueCommand() *cobra.Command {
	var owner string
	var leaseSeconds int

	cmd := &cobra.Command{
		Use:   "lease-enqueue <task-id>",
		Short: "Enqueue a new dispatch lease in queued state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lease, err := plane.Registry.EnqueueDispatchLease(cmd.Context(), args[0], owner, leaseSeconds)
			if err != nil {
				return err
			}
			return printResult(lease, func() string { return renderLease(lease) })
		},
	}
	leaseOwnerFlags(cmd, &owner, &leaseSeconds)
	return cmd
}

func newLeaseClaimCommand() *cobra.Command {
	var owner string
	var leaseSeconds int

	cmd := &cobra.Command{
		Use:   "lease-claim <task-id>",
		Short: "Attempt to claim a queued or expired lease",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := plane.Registry.ClaimDispatchLease(cmd.Context(), args[0], owner, leaseSeconds)
			if err != nil {
				return err
			}
			return printResult(result, func() string {
				if !result.Claimed {
					return fmt.Sprintf("not claimed: %s", result.Reason)
				}
				return renderLease(result.Lease)
			})
		},
	}
	leaseOwnerFlags(cmd, &owner, &leaseSeconds)
	return cmd
}

func newLeaseHeartbeatCommand() *cobra.Command {
	var owner string
	var leaseSeconds int

	cmd := &cobra.Command{
		Use:   "lease-heartbeat <task-id>",
		Short: "Extend a held lease's expiry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lease, err := plane.Registry.HeartbeatDispatchLease(cmd.Context(), args[0], owner, leaseSeconds)
			if err != nil {
				return err
			}
			return printResult(lease, func() string { return renderLease(lease) })
		},
	}
	leaseOwnerFlags(cmd, &owner, &leaseSeconds)
	return cmd
}

func newLeaseFinishCommand() *cobra.Command {
	var owner, resultStatus, lastError string

	cmd := &cobra.Command{
		Use:   "lease-finish <task-id>",
		Short: "Finish a held lease with a terminal result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lease, err := plane.Registry.FinishDispatchLease(cmd.Context(), args[0], owner, registry.LeaseStatus(resultStatus), lastError)
			if err != nil {
				return err
			}
			return printResult(lease, func() string { return renderLease(lease) })
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "Lease owner ID")
	cmd.Flags().StringVar(&resultStatus, "result-status", "", "Terminal lease status (succeeded, failed, cancelled, expired)")
	cmd.Flags().StringVar(&lastError, "last-error", "", "Error detail, if any")
	cmd.MarkFlagRequired("owner")
	cmd.MarkFlagRequired("result-status")
	return cmd
}

func newLeaseReconcileCommand() *cobra.Command {
	var newOwner string

	cmd := &cobra.Command{
		Use:   "lease-reconcile",
		Short: "Expire stale leases and reassign them to a new owner",
		RunE: func(cmd *cobra.Command, args []string) error {
			taskIDs, err := plane.Registry.ReconcileDispatchLeases(cmd.Context(), newOwner)
			if err != nil {
				return err
			}
			return printResult(taskIDs, func() string { return fmt.Sprintf("reconciled %d leases: %v", len(taskIDs), taskIDs) })
		},
	}
	cmd.Flags().StringVar(&newOwner, "new-owner", "", "Owner ID to assign reconciled leases to")
	cmd.MarkFlagRequired("new-owner")
	return cmd
}

func newLeaseGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "lease-get <task-id>",
		Short: "Get a task's current lease",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lease, err := plane.Registry.GetDispatchLease(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printResult(lease, func() string { return renderLease(lease) })
		},
	}
}

func newLeaseListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "lease-list",
		Short: "List all dispatch leases",
		RunE: func(cmd *cobra.Command, args []string) error {
			leases, err := plane.Registry.ListDispatchLeases(cmd.Context())
			if err != nil {
				return err
			}
			return printResult(leases, func() string {
				lines := make([]string, 0, len(leases))
				for _, l := range leases {
					lines = append(lines, fmt.Sprintf("%s: %s (owner %s, attempt %d)", l.TaskID, l.LeaseStatus, l.OwnerID, l.AttemptCount))
				}
				return fmt.Sprintf("%v", lines)
			})
		},
	}
}
