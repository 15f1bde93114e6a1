package ops

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/zerohandoff/zhc-plane/internal/registry"
)

// HealthReport combines the Registry's windowed ops/telemetry summaries
// into a single payload for the /ops/health surface (spec.md §4.1, §7).
type HealthReport struct {
	Ops         *registry.OpsSummary       `json:"ops"`
	Telemetry   *registry.TelemetrySummary `json:"telemetry"`
	GeneratedAt string                     `json:"generated_at"`
}

// BuildHealthReport fetches ops_summary and telemetry_summary over the
// same window. It does not read or update any Prometheus metric. Neither
// the report nor any code in this module computes a gate pass rate or an
// incident recovery rate; the GatePassRate and IncidentRecoveryRate gauges
// are registered but never set.
func BuildHealthReport(ctx context.Context, reg *registry.Registry, windowHours int) (*HealthReport, error) {
	opsSummary, err := reg.OpsSummary(ctx, windowHours)
	if err != nil {
		return nil, fmt.Errorf("ops health: %w", err)
	}
	telemetry, err := reg.TelemetrySummary(ctx, windowHours)
	if err != nil {
		return nil, fmt.Errorf("ops health: %w", err)
	}
	return &HealthReport{
		Ops:         opsSummary,
		Telemetry:   telemetry,
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
	}, nil
}

// SelfCheckReport is selfcheck's pass/fail-per-probe result.
type SelfCheckReport struct {
	LeaseRoundTrip       bool   `json:"lease_round_trip"`
	IdempotencyRoundTrip bool   `json:"idempotency_round_trip"`
	Error                string `json:"error,omitempty"`
}

// SelfCheck exercises the dispatch lease and idempotency state machines
// end to end against a throwaway task, without touching any real task's
// state: enqueue -> claim -> heartbeat -> finish on a disposable lease,
// and begin -> complete on a disposable idempotency key. This is a
// chaos-lite smoke test, not a synthetic-traffic load test.
func SelfCheck(ctx context.Context, reg *registry.Registry) SelfCheckReport {
	taskID := "selfcheck-" + uuid.NewString()
	owner := "ops-selfcheck"

	if _, err := reg.CreateTask(ctx, taskID, "__selfcheck__", "ops selfcheck probe",
		registry.RouteLight, false, registry.RiskLow, nil); err != nil {
		return SelfCheckReport{Error: fmt.Sprintf("create probe task: %v", err)}
	}
	defer func() {
		reg.UpdateTask(ctx, taskID, registry.StatusCancelled, "ops_selfcheck_cleanup", true)
	}()

	report := SelfCheckReport{}

	if _, err := reg.EnqueueDispatchLease(ctx, taskID, owner, 30); err != nil {
		report.Error = fmt.Sprintf("enqueue lease: %v", err)
		return report
	}
	claim, err := reg.ClaimDispatchLease(ctx, taskID, owner, 30)
	if err != nil || !claim.Claimed {
		report.Error = fmt.Sprintf("claim lease: claimed=%v err=%v", claim != nil && claim.Claimed, err)
		return report
	}
	if _, err := reg.HeartbeatDispatchLease(ctx, taskID, owner, 30); err != nil {
		report.Error = fmt.Sprintf("heartbeat lease: %v", err)
		return report
	}
	if _, err := reg.FinishDispatchLease(ctx, taskID, owner, registry.LeaseSucceeded, ""); err != nil {
		report.Error = fmt.Sprintf("finish lease: %v", err)
		return report
	}
	report.LeaseRoundTrip = true

	key := "selfcheck:" + taskID
	begin, err := reg.BeginIdempotency(ctx, key, "ops_selfcheck", "probe-hash", taskID)
	if err != nil || begin.Conflict {
		report.Error = fmt.Sprintf("begin idempotency: %v", err)
		return report
	}
	if err := reg.CompleteIdempotency(ctx, key, registry.IdempotencyCompleted, map[string]any{"probe": true}); err != nil {
		report.Error = fmt.Sprintf("complete idempotency: %v", err)
		return report
	}
	report.IdempotencyRoundTrip = true

	return report
}
