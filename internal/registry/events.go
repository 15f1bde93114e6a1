package registry

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
)

// ListEvents returns task_id's events in monotonic insertion order
// (spec.md §4.1 list_events).
func (r *Registry) ListEvents(ctx context.Context, taskID string) ([]TaskEvent, error) {
	var events []TaskEvent
	if err := sqlx.SelectContext(ctx, r.db, &events, r.rebind(
		`SELECT id, task_id, event_type, detail, created_at FROM task_events WHERE task_id = ? ORDER BY id ASC`),
		taskID); err != nil {
		return nil, fmt.Errorf("list_events: %w", err)
	}
	return events, nil
}

// TraceEvents returns all events whose detail contains trace_id as a
// substring, across all tasks (spec.md §4.1 trace_events, used for
// cross-row lookup via the trace_id correlation tag).
func (r *Registry) TraceEvents(ctx context.Context, traceID string) ([]TaskEvent, error) {
	if strings.TrimSpace(traceID) == "" {
		return nil, errorf(ErrInvalidArgument, "trace_id is required")
	}
	var events []TaskEvent
	if err := sqlx.SelectContext(ctx, r.db, &events, r.rebind(
		`SELECT id, task_id, event_type, detail, created_at FROM task_events WHERE detail LIKE ? ORDER BY id ASC`),
		"%"+traceID+"%"); err != nil {
		return nil, fmt.Errorf("trace_events: %w", err)
	}
	return events, nil
}
