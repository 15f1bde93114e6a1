// Package registry is the durable store for tasks, task events, approvals,
// dispatch leases, and idempotency keys (spec.md §3, §4.1). It is the only
// component that touches the database; every other component reads and
// writes state exclusively through its typed operations.
package registry

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/zerohandoff/zhc-plane/internal/database"
)

// zapTaskFields is the standard log-field set for task lifecycle events.
func zapTaskFields(t *Task) []zap.Field {
	return []zap.Field{
		zap.String("task_id", t.TaskID),
		zap.String("task_type", t.TaskType),
		zap.String("status", string(t.Status)),
		zap.String("route_class", string(t.RouteClass)),
	}
}

// Registry wraps a dialect-neutral *sqlx.DB handle. Queries are written
// with "?" placeholders and rebound per dialect via db.Rebind, following
// the migration runner's convention (internal/database/database.go).
type Registry struct {
	db      *sqlx.DB
	dialect string
	logger  *zap.Logger
}

// New builds a Registry over an already-connected database.Provider and
// applies pending migrations (init_schema).
func New(ctx context.Context, provider database.Provider, logger *zap.Logger) (*Registry, error) {
	logger = logger.With(zap.String("component", "registry"))

	db, ok := provider.DB().(*sqlx.DB)
	if !ok {
		return nil, fmt.Errorf("registry: provider returned unexpected handle type %T", provider.DB())
	}

	if err := database.RunMigrations(ctx, db, provider.Dialect(), logger); err != nil {
		return nil, fmt.Errorf("registry: init_schema: %w", err)
	}

	return &Registry{db: db, dialect: provider.Dialect(), logger: logger}, nil
}

// rebind adapts a "?"-placeholder query to the active dialect's bind
// variable style ($1, $2, ... for postgres; "?" unchanged for sqlite).
func (r *Registry) rebind(query string) string {
	return r.db.Rebind(query)
}

// appendEvent writes one TaskEvent row. Callers always invoke this inside
// the same transaction as the mutation it documents (spec.md §3 invariant:
// "every state-mutating registry operation writes at least one event in
// the same transaction as the mutation").
func appendEvent(ctx context.Context, tx *sqlx.Tx, rebind func(string) string, taskID string, eventType EventType, detail string) error {
	_, err := tx.ExecContext(ctx, rebind(
		`INSERT INTO task_events (task_id, event_type, detail, created_at) VALUES (?, ?, ?, ?)`),
		taskID, string(eventType), detail, database.NowISO())
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}
