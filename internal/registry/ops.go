package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/zerohandoff/zhc-plane/internal/database"
)

// OpsSummary aggregates health signals over the trailing windowHours
// (spec.md §4.1 ops_summary): tasks by status, stale leases, recent
// idempotency conflicts, command/dispatch timeouts, and poll errors. The
// first three are read from the tasks, lease, and idempotency tables; the
// timeout and poll-error counts are derived from the event log, so the Ops
// component never needs its own bookkeeping table.
func (r *Registry) OpsSummary(ctx context.Context, windowHours int) (*OpsSummary, error) {
	if windowHours <= 0 {
		windowHours = 24
	}
	since := database.FormatISO(time.Now().Add(-time.Duration(windowHours) * time.Hour))

	statusCounts := map[string]int{}
	rows, err := r.db.QueryxContext(ctx, r.rebind(`SELECT status, COUNT(*) AS c FROM tasks GROUP BY status`))
	if err != nil {
		return nil, fmt.Errorf("ops_summary: tasks_by_status: %w", err)
	}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			rows.Close()
			return nil, fmt.Errorf("ops_summary: scan tasks_by_status: %w", err)
		}
		statusCounts[status] = count
	}
	rows.Close()

	now := database.NowISO()
	var staleLeases int
	if err := r.db.GetContext(ctx, &staleLeases, r.rebind(
		`SELECT COUNT(*) FROM task_dispatch_lease WHERE lease_status = ? AND lease_expires_at <= ?`),
		string(LeaseRunning), now); err != nil {
		return nil, fmt.Errorf("ops_summary: stale_leases: %w", err)
	}

	var idempotencyConflicts int
	if err := r.db.GetContext(ctx, &idempotencyConflicts, r.rebind(
		`SELECT COUNT(*) FROM idempotency_keys WHERE status = ? AND updated_at >= ?`),
		string(IdempotencyConflict), since); err != nil {
		return nil, fmt.Errorf("ops_summary: idempotency_conflicts: %w", err)
	}

	commandTimeouts, err := r.countEventsMatching(ctx, since, "command_timeout")
	if err != nil {
		return nil, fmt.Errorf("ops_summary: %w", err)
	}
	dispatchTimeouts, err := r.countEventsMatching(ctx, since, "dispatch_timeout")
	if err != nil {
		return nil, fmt.Errorf("ops_summary: %w", err)
	}
	pollErrors, err := r.countEventsMatching(ctx, since, "poll_error")
	if err != nil {
		return nil, fmt.Errorf("ops_summary: %w", err)
	}

	return &OpsSummary{
		WindowHours:                windowHours,
		TasksByStatus:              statusCounts,
		StaleLeases:                staleLeases,
		RecentIdempotencyConflicts: idempotencyConflicts,
		CommandTimeouts:            commandTimeouts,
		DispatchTimeouts:           dispatchTimeouts,
		PollErrors:                 pollErrors,
		GeneratedAt:                now,
	}, nil
}

func (r *Registry) countEventsMatching(ctx context.Context, since, marker string) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, r.rebind(
		`SELECT COUNT(*) FROM task_events WHERE created_at >= ? AND detail LIKE ?`),
		since, "%"+marker+"%"); err != nil {
		return 0, fmt.Errorf("count events matching %q: %w", marker, err)
	}
	return count, nil
}

// TelemetrySummary aggregates the telemetry fields Router merges into
// task metadata after dispatch (spec.md §4.1 telemetry_summary,
// §4.5 step 10). Metadata is read back and parsed per task; tasks
// without telemetry metadata are skipped from the averages.
func (r *Registry) TelemetrySummary(ctx context.Context, windowHours int) (*TelemetrySummary, error) {
	if windowHours <= 0 {
		windowHours = 24
	}
	since := database.FormatISO(time.Now().Add(-time.Duration(windowHours) * time.Hour))

	var rows []struct {
		MetadataJSON string `db:"metadata"`
	}
	if err := r.db.SelectContext(ctx, &rows, r.rebind(
		`SELECT metadata FROM tasks WHERE updated_at >= ?`), since); err != nil {
		return nil, fmt.Errorf("telemetry_summary: %w", err)
	}

	summary := &TelemetrySummary{WindowHours: windowHours, GeneratedAt: database.NowISO()}
	var durationSum, compressionSum float64
	var durationCount, compressionCount int

	for _, row := range rows {
		meta, err := unmarshalMetadata(row.MetadataJSON)
		if err != nil {
			continue
		}
		summary.TaskCount++
		if v, ok := floatField(meta, "estimated_cost_usd"); ok {
			summary.TotalEstimatedCostUSD += v
		}
		if v, ok := floatField(meta, "dispatch_duration_ms"); ok {
			durationSum += v
			durationCount++
		}
		if v, ok := floatField(meta, "compression_ratio"); ok {
			compressionSum += v
			compressionCount++
		}
	}

	if durationCount > 0 {
		summary.AvgDispatchDurationMs = durationSum / float64(durationCount)
	}
	if compressionCount > 0 {
		summary.AvgCompressionRatio = compressionSum / float64(compressionCount)
	}

	return summary, nil
}

func floatField(m map[string]any, key string) (float64, bool) {
	v, ok := m[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}
