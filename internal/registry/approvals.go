package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/zerohandoff/zhc-plane/internal/database"
)

// RequestApproval creates a required approval row for (task_id,
// action_category), or refreshes the existing required row if one is
// already open; it is a no-op on a terminal approval (spec.md §4.1
// request_approval).
func (r *Registry) RequestApproval(ctx context.Context, taskID, actionCategory, requestedBy, note string) (*Approval, error) {
	if taskID == "" || actionCategory == "" {
		return nil, errorf(ErrInvalidArgument, "task_id and action_category are required")
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("request_approval: begin tx: %w", err)
	}
	defer tx.Rollback()

	existing, err := r.latestApprovalTx(ctx, tx, taskID, actionCategory)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	now := database.NowISO()

	if existing != nil && existing.Status.IsTerminal() {
		// No-op on a terminal approval.
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("request_approval: commit: %w", err)
		}
		return existing, nil
	}

	if existing != nil && existing.Status == ApprovalRequired {
		_, err = tx.ExecContext(ctx, r.rebind(
			`UPDATE approvals SET requested_by = ?, decision_note = ?, updated_at = ? WHERE id = ?`),
			requestedBy, nullableString(note), now, existing.ID)
		if err != nil {
			return nil, fmt.Errorf("request_approval: refresh: %w", err)
		}
		if err := appendEvent(ctx, tx, r.rebind, taskID, EventApprovalRequested,
			fmt.Sprintf("approval refreshed: category=%s by=%s", actionCategory, requestedBy)); err != nil {
			return nil, fmt.Errorf("request_approval: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("request_approval: commit: %w", err)
		}
		existing.RequestedBy = requestedBy
		existing.UpdatedAt = now
		return existing, nil
	}

	var id int64
	err = tx.QueryRowxContext(ctx, r.rebind(
		`INSERT INTO approvals (task_id, action_category, status, requested_by, decided_by, decision_note, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`),
		taskID, actionCategory, string(ApprovalRequired), requestedBy, nil, nullableString(note), now, now).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("request_approval: insert: %w", err)
	}

	if err := appendEvent(ctx, tx, r.rebind, taskID, EventApprovalRequested,
		fmt.Sprintf("approval requested: category=%s by=%s", actionCategory, requestedBy)); err != nil {
		return nil, fmt.Errorf("request_approval: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("request_approval: commit: %w", err)
	}

	return &Approval{
		ID: id, TaskID: taskID, ActionCategory: actionCategory, Status: ApprovalRequired,
		RequestedBy: requestedBy, CreatedAt: now, UpdatedAt: now,
	}, nil
}

// DecideApproval atomically transitions the latest approval row for
// (task_id, action_category). Re-deciding to the same outcome is a no-op;
// a conflicting re-decision fails with ErrIntegrityConflict (spec.md §4.1
// decide_approval).
func (r *Registry) DecideApproval(ctx context.Context, taskID, actionCategory string, decision ApprovalStatus, decidedBy, note string) (*Approval, error) {
	if decision != ApprovalApproved && decision != ApprovalRejected {
		return nil, errorf(ErrInvalidArgument, "invalid decision %q", decision)
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("decide_approval: begin tx: %w", err)
	}
	defer tx.Rollback()

	existing, err := r.latestApprovalTx(ctx, tx, taskID, actionCategory)
	if err != nil {
		return nil, err
	}

	if existing.Status.IsTerminal() {
		if existing.Status == decision {
			if err := tx.Commit(); err != nil {
				return nil, fmt.Errorf("decide_approval: commit: %w", err)
			}
			return existing, nil
		}
		return nil, errorf(ErrIntegrityConflict, "approval %d already decided as %s, cannot re-decide as %s", existing.ID, existing.Status, decision)
	}

	now := database.NowISO()
	_, err = tx.ExecContext(ctx, r.rebind(
		`UPDATE approvals SET status = ?, decided_by = ?, decision_note = ?, updated_at = ? WHERE id = ?`),
		string(decision), decidedBy, nullableString(note), now, existing.ID)
	if err != nil {
		return nil, fmt.Errorf("decide_approval: exec: %w", err)
	}

	if err := appendEvent(ctx, tx, r.rebind, taskID, EventApprovalDecision,
		fmt.Sprintf("approval decided: category=%s decision=%s by=%s", actionCategory, decision, decidedBy)); err != nil {
		return nil, fmt.Errorf("decide_approval: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("decide_approval: commit: %w", err)
	}

	existing.Status = decision
	existing.DecidedBy = &decidedBy
	existing.UpdatedAt = now
	return existing, nil
}

// latestApprovalTx returns the most recent approval row for (task_id,
// action_category), or ErrNotFound if none exists.
func (r *Registry) latestApprovalTx(ctx context.Context, q sqlx.QueryerContext, taskID, actionCategory string) (*Approval, error) {
	var a Approval
	err := sqlx.GetContext(ctx, q, &a, r.rebind(
		`SELECT id, task_id, action_category, status, requested_by, decided_by, decision_note, created_at, updated_at
		 FROM approvals WHERE task_id = ? AND action_category = ? ORDER BY id DESC LIMIT 1`),
		taskID, actionCategory)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errorf(ErrNotFound, "approval for task %q category %q", taskID, actionCategory)
		}
		return nil, fmt.Errorf("latest approval: %w", err)
	}
	return &a, nil
}

// listApprovalsForTask returns all approval rows for a task, used by
// get_task's joined view.
func (r *Registry) listApprovalsForTask(ctx context.Context, taskID string) ([]Approval, error) {
	var approvals []Approval
	if err := sqlx.SelectContext(ctx, r.db, &approvals, r.rebind(
		`SELECT id, task_id, action_category, status, requested_by, decided_by, decision_note, created_at, updated_at
		 FROM approvals WHERE task_id = ? ORDER BY id ASC`), taskID); err != nil {
		return nil, fmt.Errorf("list approvals: %w", err)
	}
	return approvals, nil
}

// ListApprovals returns approval rows, optionally filtered by task_id
// (spec.md §6 CLI surface approval-list).
func (r *Registry) ListApprovals(ctx context.Context, taskID string) ([]Approval, error) {
	if taskID != "" {
		return r.listApprovalsForTask(ctx, taskID)
	}
	var approvals []Approval
	if err := sqlx.SelectContext(ctx, r.db, &approvals, r.rebind(
		`SELECT id, task_id, action_category, status, requested_by, decided_by, decision_note, created_at, updated_at
		 FROM approvals ORDER BY id ASC`)); err != nil {
		return nil, fmt.Errorf("list approvals: %w", err)
	}
	return approvals, nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
