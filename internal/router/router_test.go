package router

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/zerohandoff/zhc-plane/internal/classifier"
	"github.com/zerohandoff/zhc-plane/internal/config"
	"github.com/zerohandoff/zhc-plane/internal/database/providers/sqlite"
	"github.com/zerohandoff/zhc-plane/internal/gate"
	"github.com/zerohandoff/zhc-plane/internal/policy"
	"github.com/zerohandoff/zhc-plane/internal/registry"
)

// fakeInvoker is a scripted invoker for exercising dispatch's retry and
// outcome-recording paths without spawning a real child process.
type fakeInvoker struct {
	results []InvokeResult
	errs    []error
	calls   int
}

func (f *fakeInvoker) Invoke(ctx context.Context, req InvokeRequest) (InvokeResult, error) {
	i := f.calls
	f.calls++
	if i >= len(f.results) {
		i = len(f.results) - 1
	}
	var err error
	if i < len(f.errs) {
		err = f.errs[i]
	}
	return f.results[i], err
}

func newTestRouter(t *testing.T, inv invoker) *Router {
	t.Helper()
	ctx := context.Background()

	dbCfg := &config.DatabaseConfig{
		Provider: "sqlite",
		TaskDB:   ":memory:",
		SQLite:   config.SQLiteConfig{Path: ":memory:", BusyTimeout: 5 * time.Second},
	}
	provider, err := sqlite.New(ctx, dbCfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { provider.Close() })

	reg, err := registry.New(ctx, provider, zap.NewNop())
	require.NoError(t, err)

	storageRoot := t.TempDir()
	g, err := gate.New(storageRoot)
	require.NoError(t, err)

	return &Router{
		registry: reg,
		gate:     g,
		logger:   zap.NewNop(),
		routingPolicy: classifier.RoutingPolicy{
			DefaultRouteClass: classifier.RouteLight,
			DefaultRiskLevel:  classifier.RiskLow,
		},
		executionPolicy: policy.ExecutionPolicy{},
		approvalPolicy:  policy.ApprovalPolicy{},
		enforcement:     policy.EnforcementWarn,
		autonomyMode:    policy.AutonomySupervised,
		dispatchCfg: config.DispatchConfig{
			LeaseSeconds:        60,
			RetryMax:            2,
			RetryBackoffSeconds: 0.01,
			RetryJitterSeconds:  0.01,
			TimeoutSeconds:      5,
		},
		contextCfg: config.ContextConfig{TokenBudget: 4000, TokenBudgetHeavy: 16000, TargetRatio: 0.85},
		runtimeCfg: config.RuntimeConfig{
			Mode:               "exec",
			LightWorkerCommand: "./light_worker.sh",
			HeavyWorkerCommand: "./heavy_worker.sh",
		},
		provider: config.ProviderConfig{DefaultModel: "test-model"},
		cost:     newCostEstimator(config.CostConfig{}, config.ProviderConfig{}),
		invoker:  inv,
		nowFn:    func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) },
	}
}

func TestRouteLightHappyPathDispatchesImmediately(t *testing.T) {
	rt := newTestRouter(t, &fakeInvoker{results: []InvokeResult{{ExitCode: 0, Stdout: "ok"}}})
	ctx := context.Background()

	result, err := rt.Route(ctx, "code_refactor", "refactor the widget", "trace-1")
	require.NoError(t, err)
	assert.Equal(t, registry.StatusSucceeded, result.Status)
	assert.Equal(t, registry.RouteLight, result.RouteClass)
}

func TestRouteTransientFailureRetriesThenSucceeds(t *testing.T) {
	inv := &fakeInvoker{results: []InvokeResult{
		{ExitCode: 1, Stderr: "connection reset", Transient: true},
		{ExitCode: 0, Stdout: "ok"},
	}}
	rt := newTestRouter(t, inv)
	ctx := context.Background()

	result, err := rt.Route(ctx, "code_refactor", "refactor the widget", "trace-2")
	require.NoError(t, err)
	assert.Equal(t, registry.StatusSucceeded, result.Status)
	assert.Equal(t, 2, inv.calls)
}

func TestRouteNonTransientFailureSurfacesAsFailed(t *testing.T) {
	inv := &fakeInvoker{results: []InvokeResult{{ExitCode: 1, Stderr: "invalid prompt"}}}
	rt := newTestRouter(t, inv)
	ctx := context.Background()

	result, err := rt.Route(ctx, "code_refactor", "refactor the widget", "trace-3")
	require.NoError(t, err)
	assert.Equal(t, registry.StatusFailed, result.Status)
	assert.Equal(t, 1, inv.calls)
}

func TestRouteApproveDeferThenResumeDispatches(t *testing.T) {
	rt := newTestRouter(t, &fakeInvoker{results: []InvokeResult{{ExitCode: 0}}})
	rt.approvalPolicy = policy.ApprovalPolicy{
		Gates: map[policy.ActionCategory]policy.ApprovalGate{
			"deploy_restart": {RequireHumanApproval: true},
		},
	}
	ctx := context.Background()

	result, err := rt.Route(ctx, "deploy", "restart the payments service", "trace-4")
	require.NoError(t, err)
	assert.Equal(t, registry.StatusBlocked, result.Status)
	assert.Contains(t, result.Blockers, "human_approval")

	approveResult, err := rt.Approve(ctx, result.TaskID, "deploy_restart", "ops-lead", "looks good", registry.ApprovalApproved, true)
	require.NoError(t, err)
	assert.Equal(t, registry.StatusBlocked, approveResult.Status)

	resumeResult, err := rt.Resume(ctx, result.TaskID, "ops-lead")
	require.NoError(t, err)
	assert.Equal(t, registry.StatusSucceeded, resumeResult.Status)
	assert.False(t, resumeResult.NoOp)
}

func TestRouteHeavyTaskBlocksOnGateUntilReviewPasses(t *testing.T) {
	rt := newTestRouter(t, &fakeInvoker{results: []InvokeResult{{ExitCode: 0}}})
	rt.routingPolicy = classifier.RoutingPolicy{
		DefaultRouteClass: classifier.RouteLight,
		DefaultRiskLevel:  classifier.RiskLow,
		TaskTypeOverrides: map[string]classifier.TaskTypeOverride{
			"big_migration": {RouteClass: classifier.RouteHeavy, RiskLevel: classifier.RiskMedium},
		},
	}
	ctx := context.Background()

	result, err := rt.Route(ctx, "big_migration", "migrate the primary datastore", "trace-5")
	require.NoError(t, err)
	assert.Equal(t, registry.StatusBlocked, result.Status)
	assert.Contains(t, result.Blockers, "planner_reviewer_gate")

	require.NoError(t, rt.RecordPlan(ctx, result.TaskID, "planner-1", "migrate in three phases"))
	require.NoError(t, rt.RecordReview(ctx, result.TaskID, "reviewer-1", gate.VerdictPass, "", gate.Checklist{
		PolicySafety: true, Correctness: true, Tests: true, Rollback: true, ApprovalConstraints: true,
	}, ""))

	resumeResult, err := rt.Resume(ctx, result.TaskID, "reviewer-1")
	require.NoError(t, err)
	assert.Equal(t, registry.StatusSucceeded, resumeResult.Status)
}

func TestResumeIsNoOpOnTerminalTask(t *testing.T) {
	rt := newTestRouter(t, &fakeInvoker{results: []InvokeResult{{ExitCode: 0}}})
	ctx := context.Background()

	result, err := rt.Route(ctx, "code_refactor", "refactor the widget", "trace-6")
	require.NoError(t, err)
	require.Equal(t, registry.StatusSucceeded, result.Status)

	resumeResult, err := rt.Resume(ctx, result.TaskID, "operator")
	require.NoError(t, err)
	assert.True(t, resumeResult.NoOp)
}

func TestClassifyDryRunDoesNotCreateTask(t *testing.T) {
	rt := newTestRouter(t, &fakeInvoker{})
	result := rt.Classify("code_refactor", "refactor the widget")
	assert.Equal(t, registry.RouteLight, result.RouteClass)
	assert.True(t, result.PolicyAllowed)
}
