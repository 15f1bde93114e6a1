// Package database provides the dual PostgreSQL/SQLite persistence backend
// used by the task registry.
package database

import "context"

// Provider defines the interface for database providers backing the
// registry. Implementations include PostgreSQL (for multi-instance
// deployments behind a shared server) and SQLite (the default embedded,
// single-file backend).
type Provider interface {
	// DB returns the underlying *sqlx.DB handle. Both providers hand back a
	// *sqlx.DB so registry code never needs to type-switch on provider.
	DB() interface{}

	// Dialect reports "postgres" or "sqlite", used to select the embedded
	// migration set and to adapt a handful of SQL dialect differences.
	Dialect() string

	// Health checks if the database connection is healthy.
	Health(ctx context.Context) error

	// Close gracefully closes the database connection.
	Close() error
}
