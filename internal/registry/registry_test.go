package registry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/zerohandoff/zhc-plane/internal/config"
	"github.com/zerohandoff/zhc-plane/internal/database/providers/sqlite"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()

	ctx := context.Background()
	cfg := &config.DatabaseConfig{
		Provider: "sqlite",
		TaskDB:   ":memory:",
		SQLite:   config.SQLiteConfig{Path: ":memory:", BusyTimeout: 5 * time.Second},
	}

	provider, err := sqlite.New(ctx, cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { provider.Close() })

	r, err := New(ctx, provider, zap.NewNop())
	require.NoError(t, err)
	return r
}

func TestCreateAndGetTask(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	task, err := r.CreateTask(ctx, "task-1", "code_refactor", "refactor the widget", RouteLight, false, RiskLow, map[string]any{"trace_id": "tg-1"})
	require.NoError(t, err)
	assert.Equal(t, StatusPending, task.Status)
	assert.Equal(t, "tg-1", task.Metadata["trace_id"])

	detail, err := r.GetTask(ctx, "task-1")
	require.NoError(t, err)
	assert.Equal(t, task.TaskID, detail.Task.TaskID)
	assert.Len(t, detail.Events, 1)
	assert.Equal(t, EventCreated, detail.Events[0].EventType)
	assert.GreaterOrEqual(t, detail.Task.UpdatedAt, detail.Task.CreatedAt)
}

func TestCreateTaskDuplicate(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	_, err := r.CreateTask(ctx, "dup", "code_refactor", "p", RouteLight, false, RiskLow, nil)
	require.NoError(t, err)

	_, err = r.CreateTask(ctx, "dup", "code_refactor", "p", RouteLight, false, RiskLow, nil)
	require.ErrorIs(t, err, ErrIntegrityConflict)
}

// TestStatusTransitionEnforcement is scenario S5 from spec.md §8.
func TestStatusTransitionEnforcement(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	_, err := r.CreateTask(ctx, "s5", "code_refactor", "p", RouteLight, false, RiskLow, nil)
	require.NoError(t, err)

	_, err = r.UpdateTask(ctx, "s5", StatusBlocked, "waiting on review", false)
	require.NoError(t, err)

	_, err = r.UpdateTask(ctx, "s5", StatusPending, "oops", false)
	require.ErrorIs(t, err, ErrInvalidTransition)

	_, err = r.UpdateTask(ctx, "s5", StatusSucceeded, "done", false)
	require.NoError(t, err)

	_, err = r.UpdateTask(ctx, "s5", StatusBlocked, "too late", false)
	require.ErrorIs(t, err, ErrInvalidTransition)

	// Force override still works on a terminal state.
	_, err = r.UpdateTask(ctx, "s5", StatusBlocked, "manual override", true)
	require.NoError(t, err)
}

func TestMergeMetadataShallowMerge(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	_, err := r.CreateTask(ctx, "meta", "t", "p", RouteLight, false, RiskLow, map[string]any{"a": "1", "b": "2"})
	require.NoError(t, err)

	task, err := r.MergeMetadata(ctx, "meta", map[string]any{"b": "3", "c": "4"}, "telemetry merge")
	require.NoError(t, err)
	assert.Equal(t, "1", task.Metadata["a"])
	assert.Equal(t, "3", task.Metadata["b"])
	assert.Equal(t, "4", task.Metadata["c"])
}

func TestApprovalRequestAndDecide(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	_, err := r.CreateTask(ctx, "appr", "t", "p", RouteHeavy, true, RiskHigh, nil)
	require.NoError(t, err)

	_, err = r.RequestApproval(ctx, "appr", "human_approval", "operator", "please review")
	require.NoError(t, err)

	a, err := r.DecideApproval(ctx, "appr", "human_approval", ApprovalApproved, "lead", "looks good")
	require.NoError(t, err)
	assert.Equal(t, ApprovalApproved, a.Status)

	// Re-decision to the same outcome is a no-op.
	a2, err := r.DecideApproval(ctx, "appr", "human_approval", ApprovalApproved, "lead", "looks good")
	require.NoError(t, err)
	assert.Equal(t, a.ID, a2.ID)

	// Conflicting re-decision fails.
	_, err = r.DecideApproval(ctx, "appr", "human_approval", ApprovalRejected, "lead", "changed mind")
	require.ErrorIs(t, err, ErrIntegrityConflict)
}

// TestLeaseRecoveryAfterRestart is scenario S2 from spec.md §8.
func TestLeaseRecoveryAfterRestart(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	_, err := r.CreateTask(ctx, "s2", "t", "p", RouteLight, false, RiskLow, nil)
	require.NoError(t, err)

	_, err = r.EnqueueDispatchLease(ctx, "s2", "A", 1)
	require.NoError(t, err)

	claim, err := r.ClaimDispatchLease(ctx, "s2", "A", 1)
	require.NoError(t, err)
	require.True(t, claim.Claimed)
	assert.Equal(t, 1, claim.Lease.AttemptCount)

	time.Sleep(1200 * time.Millisecond)

	reverted, err := r.ReconcileDispatchLeases(ctx, "B")
	require.NoError(t, err)
	assert.Contains(t, reverted, "s2")

	claim2, err := r.ClaimDispatchLease(ctx, "s2", "B", 120)
	require.NoError(t, err)
	assert.True(t, claim2.Claimed)
	assert.Equal(t, 2, claim2.Lease.AttemptCount)
	assert.Equal(t, "B", claim2.Lease.OwnerID)
	assert.Equal(t, LeaseRunning, claim2.Lease.LeaseStatus)
}

func TestClaimDeniedForOtherOwner(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	_, err := r.CreateTask(ctx, "deny", "t", "p", RouteLight, false, RiskLow, nil)
	require.NoError(t, err)
	_, err = r.EnqueueDispatchLease(ctx, "deny", "A", 120)
	require.NoError(t, err)

	claim, err := r.ClaimDispatchLease(ctx, "deny", "A", 120)
	require.NoError(t, err)
	require.True(t, claim.Claimed)

	claim2, err := r.ClaimDispatchLease(ctx, "deny", "B", 120)
	require.NoError(t, err)
	assert.False(t, claim2.Claimed)
	assert.Equal(t, "held_by_other", claim2.Reason)
}

// TestIdempotencyConflict is scenario S6 from spec.md §8.
func TestIdempotencyConflict(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	result, err := r.BeginIdempotency(ctx, "K", "dispatch", "A", "")
	require.NoError(t, err)
	assert.False(t, result.Exists)

	err = r.CompleteIdempotency(ctx, "K", IdempotencyCompleted, map[string]any{"status": "ok"})
	require.NoError(t, err)

	replay, err := r.BeginIdempotency(ctx, "K", "dispatch", "A", "")
	require.NoError(t, err)
	assert.True(t, replay.Exists)
	assert.False(t, replay.Conflict)
	assert.Equal(t, "ok", replay.Result["status"])

	conflict, err := r.BeginIdempotency(ctx, "K", "dispatch", "B", "")
	require.NoError(t, err)
	assert.True(t, conflict.Conflict)
}

func TestTraceEvents(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	_, err := r.CreateTask(ctx, "trace-1", "t", "p", RouteLight, false, RiskLow, nil)
	require.NoError(t, err)
	_, err = r.UpdateTask(ctx, "trace-1", StatusBlocked, "trace=tg-123", false)
	require.NoError(t, err)

	events, err := r.TraceEvents(ctx, "tg-123")
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestOpsSummaryCountsStaleLeases(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	_, err := r.CreateTask(ctx, "stale", "t", "p", RouteLight, false, RiskLow, nil)
	require.NoError(t, err)
	_, err = r.EnqueueDispatchLease(ctx, "stale", "A", 1)
	require.NoError(t, err)
	_, err = r.ClaimDispatchLease(ctx, "stale", "A", 1)
	require.NoError(t, err)

	time.Sleep(1200 * time.Millisecond)

	summary, err := r.OpsSummary(ctx, 24)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.StaleLeases)
}
