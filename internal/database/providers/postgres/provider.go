// Package postgres implements the database.Provider interface against a
// PostgreSQL server, for deployments that run the registry against a shared
// database rather than the embedded SQLite default.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
	"go.uber.org/zap"

	"github.com/zerohandoff/zhc-plane/internal/config"
)

// Provider implements database.Provider for PostgreSQL.
type Provider struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// New creates a new PostgreSQL database provider with retry logic on the
// initial connection, mirroring the exponential-backoff connect loop the
// teacher uses for its pgxpool-backed provider.
func New(ctx context.Context, cfg *config.DatabaseConfig, logger *zap.Logger) (*Provider, error) {
	logger = logger.With(zap.String("component", "postgres-provider"))

	var db *sqlx.DB
	var err error
	maxRetries := 5
	backoff := 1 * time.Second

	for attempt := 1; attempt <= maxRetries; attempt++ {
		logger.Info("attempting database connection",
			zap.Int("attempt", attempt),
			zap.Int("max_retries", maxRetries),
		)

		connectCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
		var conn *sqlx.DB
		conn, err = sqlx.ConnectContext(connectCtx, "pgx", cfg.ConnectionString())
		cancel()

		if err == nil {
			db = conn
			db.SetMaxOpenConns(int(cfg.MaxConnections))
			db.SetMaxIdleConns(int(cfg.MinConnections))
			db.SetConnMaxLifetime(cfg.MaxConnLifetime)
			db.SetConnMaxIdleTime(cfg.MaxConnIdleTime)

			logger.Info("database connection established",
				zap.String("host", cfg.Host),
				zap.Int("port", cfg.Port),
				zap.String("database", cfg.Database),
			)
			return &Provider{db: db, logger: logger}, nil
		}

		logger.Warn("database connection failed",
			zap.Error(err),
			zap.Int("attempt", attempt),
			zap.Duration("retry_in", backoff),
		)

		if attempt < maxRetries {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("context cancelled during connection retry: %w", ctx.Err())
			case <-time.After(backoff):
			}
			backoff *= 2
		}
	}

	return nil, fmt.Errorf("failed to connect to database after %d attempts: %w", maxRetries, err)
}

// DB returns the underlying *sqlx.DB.
func (p *Provider) DB() interface{} {
	return p.db
}

// Dialect reports "postgres".
func (p *Provider) Dialect() string {
	return "postgres"
}

// Health checks if the database connection is healthy.
func (p *Provider) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := p.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}

// Close gracefully closes the database connection.
func (p *Provider) Close() error {
	p.logger.Info("closing PostgreSQL connection")
	return p.db.Close()
}
