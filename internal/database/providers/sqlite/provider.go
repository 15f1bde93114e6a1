// Package sqlite implements the database.Provider interface against the
// embedded, pure-Go modernc.org/sqlite driver — the registry's default,
// single-file backend.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
	"go.uber.org/zap"

	"github.com/zerohandoff/zhc-plane/internal/config"
)

// Provider implements database.Provider for SQLite.
type Provider struct {
	db     *sqlx.DB
	logger *zap.Logger
	path   string
}

// New creates a new SQLite database provider.
func New(ctx context.Context, cfg *config.DatabaseConfig, logger *zap.Logger) (*Provider, error) {
	logger = logger.With(zap.String("component", "sqlite-provider"))

	sqliteCfg := cfg.SQLite
	path := cfg.ConnectionString()

	inMemory := strings.HasPrefix(path, ":memory:") || strings.HasPrefix(path, "file::memory:")
	if inMemory {
		logger.Info("initializing in-memory SQLite database")
	} else {
		if !strings.HasPrefix(path, "file:") {
			absPath, err := filepath.Abs(path)
			if err != nil {
				return nil, fmt.Errorf("failed to resolve absolute path: %w", err)
			}
			path = absPath
		}
		logger.Info("initializing file-based SQLite database", zap.String("path", path))
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	dbx := sqlx.NewDb(db, "sqlite")

	if inMemory {
		// An in-memory database is private to the connection that created
		// it; pooling more than one connection would hand later callers an
		// empty, unrelated database. Pin the pool to a single connection.
		dbx.SetMaxOpenConns(1)
		dbx.SetMaxIdleConns(1)
	} else {
		// SQLite benefits from limited connections due to its single-writer model.
		dbx.SetMaxOpenConns(10)
		dbx.SetMaxIdleConns(5)
	}
	dbx.SetConnMaxLifetime(time.Hour)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := dbx.PingContext(pingCtx); err != nil {
		dbx.Close()
		return nil, fmt.Errorf("failed to ping SQLite database: %w", err)
	}

	provider := &Provider{
		db:     dbx,
		logger: logger,
		path:   path,
	}

	if err := provider.applyPragmas(ctx, sqliteCfg); err != nil {
		dbx.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	logger.Info("SQLite database initialized successfully")
	return provider, nil
}

// applyPragmas configures SQLite with appropriate pragmas.
func (p *Provider) applyPragmas(ctx context.Context, cfg config.SQLiteConfig) error {
	defaultPragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
		fmt.Sprintf("PRAGMA busy_timeout=%d", int(cfg.BusyTimeout.Milliseconds())),
	}

	for _, pragma := range defaultPragmas {
		p.logger.Debug("applying pragma", zap.String("pragma", pragma))
		if _, err := p.db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to apply pragma %s: %w", pragma, err)
		}
	}

	for _, pragma := range cfg.Pragmas {
		p.logger.Debug("applying custom pragma", zap.String("pragma", pragma))
		if _, err := p.db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to apply custom pragma %s: %w", pragma, err)
		}
	}

	var journalMode string
	if err := p.db.GetContext(ctx, &journalMode, "PRAGMA journal_mode"); err == nil {
		p.logger.Info("SQLite journal mode", zap.String("mode", journalMode))
	}

	return nil
}

// DB returns the underlying *sqlx.DB.
func (p *Provider) DB() interface{} {
	return p.db
}

// Dialect reports "sqlite".
func (p *Provider) Dialect() string {
	return "sqlite"
}

// Health checks if the database connection is healthy.
func (p *Provider) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var result int
	if err := p.db.GetContext(ctx, &result, "SELECT 1"); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}

// Close gracefully closes the database connection.
func (p *Provider) Close() error {
	p.logger.Info("closing SQLite connection")
	if err := p.db.Close(); err != nil {
		p.logger.Error("error closing SQLite database", zap.Error(err))
		return err
	}
	p.logger.Info("SQLite connection closed")
	return nil
}
