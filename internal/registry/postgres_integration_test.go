package registry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"github.com/zerohandoff/zhc-plane/internal/config"
	"github.com/zerohandoff/zhc-plane/internal/database/providers/postgres"
)

// newPostgresTestRegistry spins up a throwaway postgres:16-alpine
// container and runs the embedded migrations against it, mirroring
// setupTestRepo in the teacher's postgres repository tests.
func newPostgresTestRegistry(t *testing.T) *Registry {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "zhc",
			"POSTGRES_PASSWORD": "zhc",
			"POSTGRES_DB":       "zhc_plane_test",
		},
		WaitingFor: wait.ForListeningPort("5432/tcp"),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dsn := "host=" + host + " port=" + port.Port() + " user=zhc password=zhc dbname=zhc_plane_test sslmode=disable"

	cfg := &config.DatabaseConfig{
		Provider:        "postgres",
		TaskDB:          dsn,
		ConnectTimeout:  10 * time.Second,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: 30 * time.Minute,
		MaxConnections:  5,
		MinConnections:  1,
	}
	provider, err := postgres.New(ctx, cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { provider.Close() })

	r, err := New(ctx, provider, zap.NewNop())
	require.NoError(t, err)
	return r
}

func TestPostgresCreateAndDispatchLifecycle(t *testing.T) {
	r := newPostgresTestRegistry(t)
	ctx := context.Background()

	task, err := r.CreateTask(ctx, "pg-1", "code_refactor", "refactor", RouteHeavy, true, RiskHigh, nil)
	require.NoError(t, err)
	require.Equal(t, StatusPending, task.Status)

	_, err = r.RequestApproval(ctx, "pg-1", "human_approval", "operator", "")
	require.NoError(t, err)

	_, err = r.DecideApproval(ctx, "pg-1", "human_approval", ApprovalApproved, "lead", "")
	require.NoError(t, err)

	_, err = r.EnqueueDispatchLease(ctx, "pg-1", "host:1", 120)
	require.NoError(t, err)

	claim, err := r.ClaimDispatchLease(ctx, "pg-1", "host:1", 120)
	require.NoError(t, err)
	require.True(t, claim.Claimed)

	_, err = r.UpdateTask(ctx, "pg-1", StatusRunning, "dispatch started", false)
	require.NoError(t, err)

	_, err = r.FinishDispatchLease(ctx, "pg-1", "host:1", LeaseSucceeded, "")
	require.NoError(t, err)

	_, err = r.UpdateTask(ctx, "pg-1", StatusSucceeded, "dispatch succeeded", false)
	require.NoError(t, err)

	detail, err := r.GetTask(ctx, "pg-1")
	require.NoError(t, err)
	require.Equal(t, StatusSucceeded, detail.Task.Status)
	require.NotNil(t, detail.Lease)
	require.Equal(t, LeaseSucceeded, detail.Lease.LeaseStatus)
	require.True(t, len(detail.Events) >= 5)
}
