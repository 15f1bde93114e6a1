package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/zerohandoff/zhc-plane/internal/registry"
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D56F4"))
	successStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#04B575"))
	errorStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF5F5F"))
	labelStyle   = lipgloss.NewStyle().Bold(true)
)

// printResult emits value as indented JSON when --json is set, otherwise
// runs it through render and prints the result.
func printResult(value any, render func() string) error {
	if jsonOutput {
		data, err := json.MarshalIndent(value, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal json: %w", err)
		}
		fmt.Println(string(data))
		return nil
	}
	fmt.Println(render())
	return nil
}

func renderTaskList(tasks []*registry.Task) string {
	headers := []string{"ID", "Type", "Status", "Route", "Risk", "Worker"}
	rows := make([][]string, 0, len(tasks))

	for _, t := range tasks {
		worker := ""
		if t.AssignedWorker != nil {
			worker = *t.AssignedWorker
		}
		rows = append(rows, []string{t.TaskID, t.TaskType, formatTaskStatus(t.Status), string(t.RouteClass), string(t.RiskLevel), worker})
	}

	widths := columnWidths(headers, rows)
	lines := []string{headerStyle.Render(formatRow(headers, widths))}
	for _, row := range rows {
		lines = append(lines, formatRow(row, widths))
	}
	return strings.Join(lines, "\n")
}

func renderTaskDetails(detail *registry.TaskDetail) string {
	t := detail.Task
	lines := []string{
		fmt.Sprintf("%s %s", labelStyle.Render("Task ID:"), t.TaskID),
		fmt.Sprintf("%s %s", labelStyle.Render("Type:"), t.TaskType),
		fmt.Sprintf("%s %s", labelStyle.Render("Status:"), formatTaskStatus(t.Status)),
		fmt.Sprintf("%s %s", labelStyle.Render("Route Class:"), t.RouteClass),
		fmt.Sprintf("%s %s", labelStyle.Render("Risk Level:"), t.RiskLevel),
		fmt.Sprintf("%s %v", labelStyle.Render("Requires Approval:"), t.RequiresApproval),
	}

	if t.AssignedWorker != nil {
		lines = append(lines, fmt.Sprintf("%s %s", labelStyle.Render("Assigned Worker:"), *t.AssignedWorker))
	}
	if len(t.Metadata) > 0 {
		lines = append(lines, fmt.Sprintf("%s %s", labelStyle.Render("Metadata:"), formatMap(t.Metadata)))
	}
	lines = append(lines, fmt.Sprintf("%s %s", labelStyle.Render("Created At:"), t.CreatedAt))
	lines = append(lines, fmt.Sprintf("%s %s", labelStyle.Render("Updated At:"), t.UpdatedAt))

	if detail.Lease != nil {
		lines = append(lines, fmt.Sprintf("%s %s (attempt %d, expires %s)",
			labelStyle.Render("Lease:"), detail.Lease.LeaseStatus, detail.Lease.AttemptCount, detail.Lease.LeaseExpiresAt))
	}
	if len(detail.Approvals) > 0 {
		lines = append(lines, labelStyle.Render("Approvals:"))
		for _, a := range detail.Approvals {
			lines = append(lines, fmt.Sprintf("  - %s: %s (requested by %s)", a.ActionCategory, a.Status, a.RequestedBy))
		}
	}
	if len(detail.Events) > 0 {
		lines = append(lines, labelStyle.Render("Events:"))
		for _, e := range detail.Events {
			lines = append(lines, fmt.Sprintf("  - [%s] %s: %s", e.CreatedAt, e.EventType, e.Detail))
		}
	}

	return strings.Join(lines, "\n")
}

func formatTaskStatus(status registry.Status) string {
	switch status {
	case registry.StatusSucceeded:
		return successStyle.Render(string(status))
	case registry.StatusFailed, registry.StatusExpired:
		return errorStyle.Render(string(status))
	case registry.StatusBlocked, registry.StatusPending:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("#F5A623")).Render(string(status))
	default:
		return string(status)
	}
}

func formatMap(value any) string {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Sprintf("%v", value)
	}
	return string(data)
}

func columnWidths(headers []string, rows [][]string) []int {
	widths := make([]int, len(headers))
	for i, header := range headers {
		widths[i] = len(header)
	}
	for _, row := range rows {
		for i, cell := range row {
			if len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}
	return widths
}

func formatRow(cells []string, widths []int) string {
	parts := make([]string, 0, len(cells))
	for i, cell := range cells {
		parts = append(parts, padRight(cell, widths[i]+2))
	}
	return strings.TrimRight(strings.Join(parts, ""), " ")
}

func padRight(value string, width int) string {
	if len(value) >= width {
		return value
	}
	return fmt.Sprintf("%-*s", width, value)
}
