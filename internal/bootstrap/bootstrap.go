// Package bootstrap wires configuration, logging, the database provider,
// and the registry/router pair the same way for every daemon and CLI
// entrypoint, so cmd/zhc-router, cmd/zhc-ingress, and
// cmd/zerohandoff-cli don't each reinvent the load order.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/zerohandoff/zhc-plane/internal/config"
	"github.com/zerohandoff/zhc-plane/internal/database"
	"github.com/zerohandoff/zhc-plane/internal/logger"
	"github.com/zerohandoff/zhc-plane/internal/registry"
	"github.com/zerohandoff/zhc-plane/internal/router"
)

// LoadConfig reads configuration from the environment, an optional
// explicit config file, and the first discovered config file on the
// search path, in that precedence order.
func LoadConfig(configPath string) (*config.Config, error) {
	v := config.NewViperInstance()
	if err := config.BindEnvironmentVariables(v); err != nil {
		return nil, fmt.Errorf("bind environment variables: %w", err)
	}

	configFile, err := config.FindConfigFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("find config file: %w", err)
	}
	if configFile != "" {
		if err := config.LoadConfigFile(v, configFile); err != nil {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	cfg, err := config.LoadFromViper(v)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// Plane bundles the components every entrypoint needs, along with the
// cleanup hook.
type Plane struct {
	Config   *config.Config
	Logger   *zap.Logger
	Provider database.Provider
	Registry *registry.Registry
	Router   *router.Router
}

// New loads configuration, opens the database provider, applies
// migrations, and constructs the registry and router. Callers must call
// Close when done.
func New(ctx context.Context, configPath string) (*Plane, error) {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, err
	}

	log, err := logger.New(cfg.Log.Format, cfg.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("initialize logger: %w", err)
	}

	provider, err := database.NewProvider(ctx, &cfg.Database, log)
	if err != nil {
		return nil, fmt.Errorf("initialize database provider: %w", err)
	}

	db, ok := provider.DB().(*sqlx.DB)
	if !ok {
		provider.Close()
		return nil, fmt.Errorf("database provider returned unexpected handle type")
	}
	if err := database.RunMigrations(ctx, db, provider.Dialect(), log); err != nil {
		provider.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	reg, err := registry.New(ctx, provider, log)
	if err != nil {
		provider.Close()
		return nil, fmt.Errorf("initialize registry: %w", err)
	}

	rt, err := router.New(ctx, cfg, reg, log)
	if err != nil {
		provider.Close()
		return nil, fmt.Errorf("initialize router: %w", err)
	}

	return &Plane{
		Config:   cfg,
		Logger:   log,
		Provider: provider,
		Registry: reg,
		Router:   rt,
	}, nil
}

// Close releases the database provider and flushes the logger.
func (p *Plane) Close() {
	p.Provider.Close()
	p.Logger.Sync()
}
