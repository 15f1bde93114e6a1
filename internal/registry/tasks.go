package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/zerohandoff/zhc-plane/internal/database"
)

// CreateTask inserts a new task row and its "created" event in one
// transaction (spec.md §4.1 create_task).
func (r *Registry) CreateTask(ctx context.Context, taskID, taskType, prompt string, routeClass RouteClass, requiresApproval bool, riskLevel RiskLevel, metadata map[string]any) (*Task, error) {
	if taskID == "" || taskType == "" {
		return nil, errorf(ErrInvalidArgument, "task_id and task_type are required")
	}
	if routeClass != RouteLight && routeClass != RouteHeavy {
		return nil, errorf(ErrInvalidArgument, "invalid route_class %q", routeClass)
	}

	metadataJSON, err := marshalMetadata(metadata)
	if err != nil {
		return nil, err
	}

	now := database.NowISO()
	task := &Task{
		TaskID:           taskID,
		TaskType:         taskType,
		Prompt:           prompt,
		RouteClass:       routeClass,
		Status:           StatusPending,
		RequiresApproval: requiresApproval,
		RiskLevel:        riskLevel,
		MetadataJSON:     metadataJSON,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("create_task: begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, r.rebind(`
		INSERT INTO tasks (task_id, task_type, prompt, route_class, status, requires_approval, risk_level, assigned_worker, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		task.TaskID, task.TaskType, task.Prompt, string(task.RouteClass), string(task.Status),
		task.RequiresApproval, string(task.RiskLevel), task.AssignedWorker, task.MetadataJSON,
		task.CreatedAt, task.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, errorf(ErrIntegrityConflict, "task %q already exists", taskID)
		}
		return nil, fmt.Errorf("create_task: insert: %w", err)
	}

	if err := appendEvent(ctx, tx, r.rebind, taskID, EventCreated, fmt.Sprintf("task created: type=%s route=%s risk=%s", taskType, routeClass, riskLevel)); err != nil {
		return nil, fmt.Errorf("create_task: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("create_task: commit: %w", err)
	}

	if err := hydrateTask(task); err != nil {
		return nil, err
	}
	r.logger.Info("task created", zapTaskFields(task)...)
	return task, nil
}

// getTaskTx fetches the bare task row (no joins), used internally by
// other registry operations that need to check current status.
func (r *Registry) getTaskTx(ctx context.Context, q sqlx.QueryerContext, taskID string) (*Task, error) {
	var t Task
	err := sqlx.GetContext(ctx, q, &t, r.rebind(`
		SELECT task_id, task_type, prompt, route_class, status, requires_approval, risk_level, assigned_worker, metadata, created_at, updated_at
		FROM tasks WHERE task_id = ?`), taskID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errorf(ErrNotFound, "task %q", taskID)
		}
		return nil, fmt.Errorf("get task: %w", err)
	}
	if err := hydrateTask(&t); err != nil {
		return nil, err
	}
	return &t, nil
}

// GetTask returns a task's full detail: the row plus its events,
// approvals, and lease (spec.md §4.1 get_task).
func (r *Registry) GetTask(ctx context.Context, taskID string) (*TaskDetail, error) {
	task, err := r.getTaskTx(ctx, r.db, taskID)
	if err != nil {
		return nil, err
	}

	events, err := r.ListEvents(ctx, taskID)
	if err != nil {
		return nil, err
	}

	approvals, err := r.listApprovalsForTask(ctx, taskID)
	if err != nil {
		return nil, err
	}

	lease, err := r.getLease(ctx, taskID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	return &TaskDetail{Task: *task, Events: events, Approvals: approvals, Lease: lease}, nil
}

// UpdateTask transitions task_id to next_status, recording detail in a
// status_updated event. Fails with ErrInvalidTransition unless force=true
// (spec.md §4.1 update_task).
func (r *Registry) UpdateTask(ctx context.Context, taskID string, nextStatus Status, detail string, force bool) (*Task, error) {
	if !nextStatus.IsValid() {
		return nil, errorf(ErrInvalidArgument, "invalid status %q", nextStatus)
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("update_task: begin tx: %w", err)
	}
	defer tx.Rollback()

	task, err := r.getTaskTx(ctx, tx, taskID)
	if err != nil {
		return nil, err
	}

	if !force {
		if err := ValidateTransition(task.Status, nextStatus); err != nil {
			return nil, err
		}
	}

	now := database.NowISO()
	_, err = tx.ExecContext(ctx, r.rebind(`UPDATE tasks SET status = ?, updated_at = ? WHERE task_id = ?`),
		string(nextStatus), now, taskID)
	if err != nil {
		return nil, fmt.Errorf("update_task: exec: %w", err)
	}

	eventDetail := detail
	if force {
		eventDetail = fmt.Sprintf("%s -> %s (forced): %s", task.Status, nextStatus, detail)
	} else {
		eventDetail = fmt.Sprintf("%s -> %s: %s", task.Status, nextStatus, detail)
	}
	if err := appendEvent(ctx, tx, r.rebind, taskID, EventStatusUpdated, eventDetail); err != nil {
		return nil, fmt.Errorf("update_task: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("update_task: commit: %w", err)
	}

	task.Status = nextStatus
	task.UpdatedAt = now
	r.logger.Info("task status updated", zapTaskFields(task)...)
	return task, nil
}

// MergeMetadata shallow-merges patch into task_id's metadata, recording a
// metadata_updated event (spec.md §4.1 merge_metadata).
func (r *Registry) MergeMetadata(ctx context.Context, taskID string, patch map[string]any, detail string) (*Task, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("merge_metadata: begin tx: %w", err)
	}
	defer tx.Rollback()

	task, err := r.getTaskTx(ctx, tx, taskID)
	if err != nil {
		return nil, err
	}

	merged := mergeMetadata(task.Metadata, patch)
	mergedJSON, err := marshalMetadata(merged)
	if err != nil {
		return nil, err
	}

	now := database.NowISO()
	_, err = tx.ExecContext(ctx, r.rebind(`UPDATE tasks SET metadata = ?, updated_at = ? WHERE task_id = ?`),
		mergedJSON, now, taskID)
	if err != nil {
		return nil, fmt.Errorf("merge_metadata: exec: %w", err)
	}

	if err := appendEvent(ctx, tx, r.rebind, taskID, EventMetadataUpdated, detail); err != nil {
		return nil, fmt.Errorf("merge_metadata: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("merge_metadata: commit: %w", err)
	}

	task.Metadata = merged
	task.MetadataJSON = mergedJSON
	task.UpdatedAt = now
	return task, nil
}

// ListTasks returns tasks matching filter, newest first.
func (r *Registry) ListTasks(ctx context.Context, filter ListTasksFilter) ([]*Task, error) {
	query := `SELECT task_id, task_type, prompt, route_class, status, requires_approval, risk_level, assigned_worker, metadata, created_at, updated_at FROM tasks WHERE 1=1`
	var args []any

	if len(filter.Statuses) > 0 {
		query += " AND status IN ("
		for i, s := range filter.Statuses {
			if i > 0 {
				query += ", "
			}
			query += "?"
			args = append(args, string(s))
		}
		query += ")"
	}
	if filter.TaskType != "" {
		query += " AND task_type = ?"
		args = append(args, filter.TaskType)
	}
	if filter.RouteClass != "" {
		query += " AND route_class = ?"
		args = append(args, string(filter.RouteClass))
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, filter.Offset)
	}

	var tasks []*Task
	if err := sqlx.SelectContext(ctx, r.db, &tasks, r.rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list_tasks: %w", err)
	}
	for _, t := range tasks {
		if err := hydrateTask(t); err != nil {
			return nil, err
		}
	}
	return tasks, nil
}

// isUniqueViolation reports whether err is a unique-constraint violation,
// covering both the postgres (pgx) and sqlite drivers.
func isUniqueViolation(err error) bool {
	msg := err.Error()
	for _, marker := range []string{"UNIQUE constraint failed", "duplicate key value violates unique constraint", "SQLSTATE 23505"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
