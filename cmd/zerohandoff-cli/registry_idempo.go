package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zerohandoff/zhc-plane/internal/registry"
)

func newRegistryIdempoCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "idempo",
		Short: "Operate idempotency keys for side-effecting attempts",
	}

	cmd.AddCommand(newIdempoBeginCommand())
	cmd.AddCommand(newIdempoCompleteCommand())
	cmd.AddCommand(newIdempoGetCommand())
	cmd.AddCommand(newIdempoListCommand())

	return cmd
}

func renderIdempotencyKey(key *registry.IdempotencyKey) string {
	taskID := ""
	if key.TaskID != nil {
		taskID = *key.TaskID
	}
	return fmt.Sprintf("%s %s\n%s %s\n%s %s\n%s %s",
		labelStyle.Render("Key:"), key.Key,
		labelStyle.Render("Scope:"), key.Scope,
		labelStyle.Render("Status:"), key.Status,
		labelStyle.Render("Task ID:"), taskID)
}

func newIdempoBeginCommand() *cobra.Command {
	var key, scope, payloadHash, taskID string

	cmd := &cobra.Command{
		Use:   "idempo-begin",
		Short: "Begin a side-effecting attempt, detecting conflicts and replays",
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := plane.Registry.BeginIdempotency(cmd.Context(), key, scope, payloadHash, taskID)
			if err != nil {
				return err
			}
			return printResult(result, func() string {
				return fmt.Sprintf("%s %v\n%s %v\n%s %s",
					labelStyle.Render("Exists:"), result.Exists,
					labelStyle.Render("Conflict:"), result.Conflict,
					labelStyle.Render("Status:"), result.Status)
			})
		},
	}

	cmd.Flags().StringVar(&key, "key", "", "Idempotency key")
	cmd.Flags().StringVar(&scope, "scope", "", "Idempotency scope")
	cmd.Flags().StringVar(&payloadHash, "payload-hash", "", "Hash of the attempted payload")
	cmd.Flags().StringVar(&taskID, "task-id", "", "Associated task ID, if any")
	cmd.MarkFlagRequired("key")
	cmd.MarkFlagRequired("scope")
	cmd.MarkFlagRequired("payload-hash")

	return cmd
}

func newIdempoCompleteCommand() *cobra.Command {
	var key, status, resultJSON string

	cmd := &cobra.Command{
		Use:   "idempo-complete",
		Short: "Complete a previously begun idempotency key",
		RunE: func(cmd *cobra.Command, args []string) error {
			var result map[string]any
			if resultJSON != "" {
				if err := json.Unmarshal([]byte(resultJSON), &result); err != nil {
					return fmt.Errorf("parse --result: %w", err)
				}
			}

			if err := plane.Registry.CompleteIdempotency(cmd.Context(), key, registry.IdempotencyStatus(status), result); err != nil {
				return err
			}
			return printResult(map[string]string{"key": key, "status": status}, func() string {
				return successStyle.Render(fmt.Sprintf("%s -> %s", key, status))
			})
		},
	}

	cmd.Flags().StringVar(&key, "key", "", "Idempotency key")
	cmd.Flags().StringVar(&status, "status", string(registry.IdempotencyCompleted), "Terminal status (completed or conflict)")
	cmd.Flags().StringVar(&resultJSON, "result", "", "Result payload as a JSON object")
	cmd.MarkFlagRequired("key")

	return cmd
}

func newIdempoGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "idempo-get <key>",
		Short: "Get an idempotency key's current state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := plane.Registry.GetIdempotencyKey(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printResult(key, func() string { return renderIdempotencyKey(key) })
		},
	}
}

func newIdempoListCommand() *cobra.Command {
	var scope string

	cmd := &cobra.Command{
		Use:   "idempo-list",
		Short: "List idempotency keys within a scope",
		RunE: func(cmd *cobra.Command, args []string) error {
			keys, err := plane.Registry.ListIdempotencyKeys(cmd.Context(), scope)
			if err != nil {
				return err
			}
			return printResult(keys, func() string {
				lines := make([]string, 0, len(keys))
				for _, k := range keys {
					lines = append(lines, fmt.Sprintf("%s: %s (%s)", k.Key, k.Status, k.Scope))
				}
				return fmt.Sprintf("%v", lines)
			})
		},
	}
	cmd.Flags().StringVar(&scope, "scope", "", "Idempotency scope to list")
	cmd.MarkFlagRequired("scope")
	return cmd
}
