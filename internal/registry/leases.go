package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/zerohandoff/zhc-plane/internal/database"
)

// EnqueueDispatchLease creates a lease row in the queued state, or resets
// an existing lease to queued if its current state is terminal or expired
// (spec.md §4.1 enqueue_dispatch_lease).
func (r *Registry) EnqueueDispatchLease(ctx context.Context, taskID, owner string, leaseSeconds int) (*DispatchLease, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("enqueue_dispatch_lease: begin tx: %w", err)
	}
	defer tx.Rollback()

	now := database.NowISO()
	expiresAt := database.FormatISO(time.Now().Add(time.Duration(leaseSeconds) * time.Second))

	existing, err := r.getLeaseTx(ctx, tx, taskID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	var lease *DispatchLease
	if existing == nil {
		_, err = tx.ExecContext(ctx, r.rebind(
			`INSERT INTO task_dispatch_lease (task_id, owner_id, lease_status, attempt_count, lease_expires_at, heartbeat_at, last_error, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
			taskID, owner, string(LeaseQueued), 0, expiresAt, now, nil, now, now)
		if err != nil {
			return nil, fmt.Errorf("enqueue_dispatch_lease: insert: %w", err)
		}
		lease = &DispatchLease{TaskID: taskID, OwnerID: owner, LeaseStatus: LeaseQueued, AttemptCount: 0,
			LeaseExpiresAt: expiresAt, HeartbeatAt: now, CreatedAt: now, UpdatedAt: now}
	} else if existing.LeaseStatus.IsTerminal() || isExpired(existing.LeaseExpiresAt, now) {
		_, err = tx.ExecContext(ctx, r.rebind(
			`UPDATE task_dispatch_lease SET owner_id = ?, lease_status = ?, lease_expires_at = ?, heartbeat_at = ?, last_error = NULL, updated_at = ? WHERE task_id = ?`),
			owner, string(LeaseQueued), expiresAt, now, now, taskID)
		if err != nil {
			return nil, fmt.Errorf("enqueue_dispatch_lease: reset: %w", err)
		}
		existing.OwnerID = owner
		existing.LeaseStatus = LeaseQueued
		existing.LeaseExpiresAt = expiresAt
		existing.HeartbeatAt = now
		existing.LastError = nil
		existing.UpdatedAt = now
		lease = existing
	} else {
		lease = existing
	}

	if err := appendEvent(ctx, tx, r.rebind, taskID, EventLease, fmt.Sprintf("lease enqueued: owner=%s", owner)); err != nil {
		return nil, fmt.Errorf("enqueue_dispatch_lease: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("enqueue_dispatch_lease: commit: %w", err)
	}
	return lease, nil
}

// ClaimDispatchLease attempts to claim task_id's lease for owner. Denies
// if another owner holds a non-expired running lease; refreshes in place
// if the same owner already holds it; otherwise transitions to running
// and increments attempt_count. A claim observed at exactly
// lease_expires_at is treated as expired (spec.md §8 boundary behavior).
func (r *Registry) ClaimDispatchLease(ctx context.Context, taskID, owner string, leaseSeconds int) (*ClaimResult, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("claim_dispatch_lease: begin tx: %w", err)
	}
	defer tx.Rollback()

	lease, err := r.getLeaseTx(ctx, tx, taskID)
	if err != nil {
		return nil, err
	}

	now := database.NowISO()
	expired := isExpired(lease.LeaseExpiresAt, now)

	if lease.LeaseStatus == LeaseRunning && lease.OwnerID != owner && !expired {
		return &ClaimResult{Claimed: false, Reason: "held_by_other", Lease: lease}, tx.Commit()
	}

	newExpiresAt := database.FormatISO(time.Now().Add(time.Duration(leaseSeconds) * time.Second))
	attemptCount := lease.AttemptCount

	if lease.LeaseStatus == LeaseRunning && lease.OwnerID == owner && !expired {
		// Same owner refreshing an already-claimed lease: idempotent.
	} else {
		attemptCount++
	}

	_, err = tx.ExecContext(ctx, r.rebind(
		`UPDATE task_dispatch_lease SET owner_id = ?, lease_status = ?, attempt_count = ?, lease_expires_at = ?, heartbeat_at = ?, last_error = NULL, updated_at = ? WHERE task_id = ?`),
		owner, string(LeaseRunning), attemptCount, newExpiresAt, now, now, taskID)
	if err != nil {
		return nil, fmt.Errorf("claim_dispatch_lease: exec: %w", err)
	}

	if err := appendEvent(ctx, tx, r.rebind, taskID, EventLease,
		fmt.Sprintf("lease claimed: owner=%s attempt=%d", owner, attemptCount)); err != nil {
		return nil, fmt.Errorf("claim_dispatch_lease: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("claim_dispatch_lease: commit: %w", err)
	}

	lease.OwnerID = owner
	lease.LeaseStatus = LeaseRunning
	lease.AttemptCount = attemptCount
	lease.LeaseExpiresAt = newExpiresAt
	lease.HeartbeatAt = now
	lease.LastError = nil
	lease.UpdatedAt = now

	return &ClaimResult{Claimed: true, Reason: "claimed", Lease: lease}, nil
}

// HeartbeatDispatchLease extends a running lease's expiry. Fails if owner
// mismatch or the lease is not running (spec.md §4.1
// heartbeat_dispatch_lease).
func (r *Registry) HeartbeatDispatchLease(ctx context.Context, taskID, owner string, leaseSeconds int) (*DispatchLease, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("heartbeat_dispatch_lease: begin tx: %w", err)
	}
	defer tx.Rollback()

	lease, err := r.getLeaseTx(ctx, tx, taskID)
	if err != nil {
		return nil, err
	}
	if lease.LeaseStatus != LeaseRunning {
		return nil, errorf(ErrInvalidArgument, "lease for task %q is not running (status=%s)", taskID, lease.LeaseStatus)
	}
	if lease.OwnerID != owner {
		return nil, errorf(ErrIntegrityConflict, "lease for task %q is held by %q, not %q", taskID, lease.OwnerID, owner)
	}

	now := database.NowISO()
	newExpiresAt := database.FormatISO(time.Now().Add(time.Duration(leaseSeconds) * time.Second))

	_, err = tx.ExecContext(ctx, r.rebind(
		`UPDATE task_dispatch_lease SET lease_expires_at = ?, heartbeat_at = ?, updated_at = ? WHERE task_id = ?`),
		newExpiresAt, now, now, taskID)
	if err != nil {
		return nil, fmt.Errorf("heartbeat_dispatch_lease: exec: %w", err)
	}

	if err := appendEvent(ctx, tx, r.rebind, taskID, EventLease, fmt.Sprintf("lease heartbeat: owner=%s", owner)); err != nil {
		return nil, fmt.Errorf("heartbeat_dispatch_lease: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("heartbeat_dispatch_lease: commit: %w", err)
	}

	lease.LeaseExpiresAt = newExpiresAt
	lease.HeartbeatAt = now
	lease.UpdatedAt = now
	return lease, nil
}

// FinishDispatchLease records a terminal lease state (spec.md §4.1
// finish_dispatch_lease).
func (r *Registry) FinishDispatchLease(ctx context.Context, taskID, owner string, resultStatus LeaseStatus, lastError string) (*DispatchLease, error) {
	if !resultStatus.IsTerminal() {
		return nil, errorf(ErrInvalidArgument, "result_status %q is not terminal", resultStatus)
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("finish_dispatch_lease: begin tx: %w", err)
	}
	defer tx.Rollback()

	lease, err := r.getLeaseTx(ctx, tx, taskID)
	if err != nil {
		return nil, err
	}

	now := database.NowISO()
	_, err = tx.ExecContext(ctx, r.rebind(
		`UPDATE task_dispatch_lease SET lease_status = ?, last_error = ?, updated_at = ? WHERE task_id = ?`),
		string(resultStatus), nullableString(lastError), now, taskID)
	if err != nil {
		return nil, fmt.Errorf("finish_dispatch_lease: exec: %w", err)
	}

	if err := appendEvent(ctx, tx, r.rebind, taskID, EventLease,
		fmt.Sprintf("lease finished: owner=%s result=%s", owner, resultStatus)); err != nil {
		return nil, fmt.Errorf("finish_dispatch_lease: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("finish_dispatch_lease: commit: %w", err)
	}

	lease.LeaseStatus = resultStatus
	lease.LastError = nullableString(lastError)
	lease.UpdatedAt = now
	return lease, nil
}

// ReconcileDispatchLeases reverts any active lease whose expiry has
// passed back to queued, recording last_error =
// "lease_expired_reconciled" (spec.md §4.1 reconcile_dispatch_leases).
// Returns the task_ids reverted.
func (r *Registry) ReconcileDispatchLeases(ctx context.Context, newOwner string) ([]string, error) {
	now := database.NowISO()

	var leases []DispatchLease
	if err := sqlx.SelectContext(ctx, r.db, &leases, r.rebind(
		`SELECT task_id, owner_id, lease_status, attempt_count, lease_expires_at, heartbeat_at, last_error, created_at, updated_at
		 FROM task_dispatch_lease WHERE lease_status = ?`), string(LeaseRunning)); err != nil {
		return nil, fmt.Errorf("reconcile_dispatch_leases: select: %w", err)
	}

	var reverted []string
	for _, lease := range leases {
		if !isExpired(lease.LeaseExpiresAt, now) {
			continue
		}

		tx, err := r.db.BeginTxx(ctx, nil)
		if err != nil {
			return nil, fmt.Errorf("reconcile_dispatch_leases: begin tx: %w", err)
		}

		_, err = tx.ExecContext(ctx, r.rebind(
			`UPDATE task_dispatch_lease SET lease_status = ?, last_error = ?, updated_at = ? WHERE task_id = ?`),
			string(LeaseQueued), "lease_expired_reconciled", now, lease.TaskID)
		if err != nil {
			tx.Rollback()
			return nil, fmt.Errorf("reconcile_dispatch_leases: update: %w", err)
		}

		if err := appendEvent(ctx, tx, r.rebind, lease.TaskID, EventLease,
			fmt.Sprintf("lease reconciled to queued: previous_owner=%s new_owner=%s", lease.OwnerID, newOwner)); err != nil {
			tx.Rollback()
			return nil, fmt.Errorf("reconcile_dispatch_leases: %w", err)
		}

		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("reconcile_dispatch_leases: commit: %w", err)
		}
		reverted = append(reverted, lease.TaskID)
	}

	return reverted, nil
}

// GetDispatchLease returns task_id's lease row.
func (r *Registry) GetDispatchLease(ctx context.Context, taskID string) (*DispatchLease, error) {
	return r.getLease(ctx, taskID)
}

// ListDispatchLeases returns all lease rows.
func (r *Registry) ListDispatchLeases(ctx context.Context) ([]DispatchLease, error) {
	var leases []DispatchLease
	if err := sqlx.SelectContext(ctx, r.db, &leases, r.rebind(
		`SELECT task_id, owner_id, lease_status, attempt_count, lease_expires_at, heartbeat_at, last_error, created_at, updated_at
		 FROM task_dispatch_lease ORDER BY updated_at DESC`)); err != nil {
		return nil, fmt.Errorf("list_dispatch_leases: %w", err)
	}
	return leases, nil
}

func (r *Registry) getLease(ctx context.Context, taskID string) (*DispatchLease, error) {
	return r.getLeaseTx(ctx, r.db, taskID)
}

func (r *Registry) getLeaseTx(ctx context.Context, q sqlx.QueryerContext, taskID string) (*DispatchLease, error) {
	var l DispatchLease
	err := sqlx.GetContext(ctx, q, &l, r.rebind(
		`SELECT task_id, owner_id, lease_status, attempt_count, lease_expires_at, heartbeat_at, last_error, created_at, updated_at
		 FROM task_dispatch_lease WHERE task_id = ?`), taskID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errorf(ErrNotFound, "lease for task %q", taskID)
		}
		return nil, fmt.Errorf("get lease: %w", err)
	}
	return &l, nil
}

// isExpired reports whether expiresAt (ISO-8601) is at or before now
// (ISO-8601). A claim observed at exactly the expiry instant is treated
// as expired (spec.md §8 boundary behavior).
func isExpired(expiresAt, now string) bool {
	exp, err := database.ParseISO(expiresAt)
	if err != nil {
		return true
	}
	n, err := database.ParseISO(now)
	if err != nil {
		n = time.Now().UTC()
	}
	return !exp.After(n)
}
