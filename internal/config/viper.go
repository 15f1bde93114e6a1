package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// NewViperInstance creates and configures a new viper instance with defaults
// matching the Config struct's `default` tags.
func NewViperInstance() *viper.Viper {
	v := viper.New()

	v.SetDefault("database.provider", "sqlite")
	v.SetDefault("database.schema", "public")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.ssl_mode", "prefer")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.min_connections", 5)
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")
	v.SetDefault("database.sqlite.path", "zhc-plane.db")
	v.SetDefault("database.sqlite.busy_timeout", "5s")

	v.SetDefault("storage.root", "./storage")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "development")

	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.read_timeout", "10s")
	v.SetDefault("http.write_timeout", "10s")
	v.SetDefault("http.idle_timeout", "120s")
	v.SetDefault("http.shutdown_timeout", "30s")

	v.SetDefault("policy.enforcement", "strict")
	v.SetDefault("policy.autonomy_mode", "supervised")

	v.SetDefault("runtime.mode", "exec")
	v.SetDefault("runtime.light_worker_command", "./wrappers/light_worker.sh")
	v.SetDefault("runtime.heavy_worker_command", "./wrappers/heavy_worker.sh")

	v.SetDefault("dispatch.lease_seconds", 120)
	v.SetDefault("dispatch.retry_max", 1)
	v.SetDefault("dispatch.retry_backoff_seconds", 2.0)
	v.SetDefault("dispatch.retry_jitter_seconds", 0.5)
	v.SetDefault("dispatch.timeout_seconds", 900)

	v.SetDefault("context.token_budget", 4000)
	v.SetDefault("context.token_budget_heavy", 16000)
	v.SetDefault("context.target_ratio", 0.85)

	v.SetDefault("cost.model_default", "heuristic")
	v.SetDefault("cost.lookup_enabled", false)
	v.SetDefault("cost.lookup_timeout_ms", 2000)

	v.SetDefault("provider.default_provider", "openrouter")

	v.SetDefault("ingress.require_allowlist", true)
	v.SetDefault("ingress.poll_timeout_seconds", 30)
	v.SetDefault("ingress.poll_interval_seconds", 1)
	v.SetDefault("ingress.command_timeout_seconds", 45)
	v.SetDefault("ingress.resume_timeout_seconds", 60)
	v.SetDefault("ingress.rate_limit_per_minute", 20)
	v.SetDefault("ingress.rate_limit_burst", 5)
	v.SetDefault("ingress.max_backoff_seconds", 60)
	v.SetDefault("ingress.lock_path", "./storage/ingress.lock")
	v.SetDefault("ingress.offset_path", "./storage/ingress.offset")
	v.SetDefault("ingress.audit_log_path", "./storage/ingress-audit.log")

	return v
}

// BindEnvironmentVariables binds the environment variables named in
// spec.md §6 to their viper keys.
func BindEnvironmentVariables(v *viper.Viper) error {
	binds := map[string]string{
		"database.provider":        "DB_PROVIDER",
		"database.task_db":         "ZHC_TASK_DB",
		"database.schema":          "ZHC_TASK_SCHEMA",
		"database.host":            "DB_HOST",
		"database.port":            "DB_PORT",
		"database.user":            "DB_USER",
		"database.password":        "DB_PASSWORD",
		"database.database":        "DB_DATABASE",
		"database.ssl_mode":        "DB_SSLMODE",
		"database.max_connections": "DB_MAX_CONNECTIONS",
		"database.min_connections": "DB_MIN_CONNECTIONS",
		"database.connect_timeout": "DB_CONNECT_TIMEOUT",
		"database.sqlite.path":     "DB_SQLITE_PATH",

		"storage.root": "ZHC_STORAGE_ROOT",

		"log.level":  "LOG_LEVEL",
		"log.format": "LOG_FORMAT",

		"http.host": "HTTP_HOST",
		"http.port": "HTTP_PORT",

		"policy.routing_policy":   "ZHC_ROUTING_POLICY",
		"policy.approval_policy":  "ZHC_APPROVAL_POLICY",
		"policy.execution_policy": "ZHC_EXECUTION_POLICY",
		"policy.enforcement":      "ZHC_POLICY_ENFORCEMENT",
		"policy.autonomy_mode":    "ZHC_AUTONOMY_MODE",

		"runtime.mode": "ZHC_RUNTIME_MODE",

		"dispatch.owner":                 "ZHC_DISPATCH_OWNER",
		"dispatch.lease_seconds":         "ZHC_DISPATCH_LEASE_SECONDS",
		"dispatch.retry_max":             "ZHC_DISPATCH_RETRY_MAX",
		"dispatch.retry_backoff_seconds": "ZHC_DISPATCH_RETRY_BACKOFF_SECONDS",
		"dispatch.retry_jitter_seconds":  "ZHC_DISPATCH_RETRY_JITTER_SECONDS",
		"dispatch.timeout_seconds":       "ZHC_DISPATCH_TIMEOUT_SECONDS",

		"context.token_budget":       "ZHC_CONTEXT_TOKEN_BUDGET",
		"context.token_budget_heavy": "ZHC_CONTEXT_TOKEN_BUDGET_HEAVY",
		"context.target_ratio":       "ZHC_CONTEXT_TARGET_RATIO",

		"cost.model_default":     "ZHC_COST_MODEL_DEFAULT",
		"cost.lookup_enabled":    "ZHC_COST_LOOKUP_ENABLED",
		"cost.lookup_timeout_ms": "ZHC_COST_LOOKUP_TIMEOUT_MS",

		"provider.openrouter_api_key": "OPENROUTER_API_KEY",
		"provider.default_provider":   "ZHC_DEFAULT_PROVIDER",
		"provider.default_model":      "ZHC_DEFAULT_MODEL",
		"provider.fallback_provider":  "ZHC_FALLBACK_PROVIDER",
		"provider.fallback_model":     "ZHC_FALLBACK_MODEL",

		"ingress.bot_token":               "TELEGRAM_BOT_TOKEN",
		"ingress.allowed_chat_ids":        "TELEGRAM_ALLOWED_CHAT_IDS",
		"ingress.require_allowlist":       "TELEGRAM_REQUIRE_ALLOWLIST",
		"ingress.poll_timeout_seconds":    "TELEGRAM_POLL_TIMEOUT_SECONDS",
		"ingress.poll_interval_seconds":   "TELEGRAM_POLL_INTERVAL_SECONDS",
		"ingress.command_timeout_seconds": "TELEGRAM_COMMAND_TIMEOUT_SECONDS",
		"ingress.resume_timeout_seconds":  "TELEGRAM_RESUME_TIMEOUT_SECONDS",
		"ingress.rate_limit_per_minute":   "TELEGRAM_RATE_LIMIT_PER_MINUTE",
		"ingress.rate_limit_burst":        "TELEGRAM_RATE_LIMIT_BURST",
		"ingress.max_backoff_seconds":     "TELEGRAM_MAX_BACKOFF_SECONDS",
	}

	for key, env := range binds {
		if err := v.BindEnv(key, env); err != nil {
			return fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}
	return nil
}

// FindConfigFile finds a configuration file using the precedence order:
// 1. Explicit --config flag (passed via configPath parameter)
// 2. ZHC_CONFIG environment variable
// 3. Standard locations: ./config.{yaml,json}, /etc/zhc-plane/config.{yaml,json}, $XDG_CONFIG_HOME/zhc-plane/config.{yaml,json}
func FindConfigFile(configPath string) (string, error) {
	if configPath != "" {
		if _, err := os.Stat(configPath); err != nil {
			if os.IsNotExist(err) {
				return "", fmt.Errorf("config file not found: %s", configPath)
			}
			return "", fmt.Errorf("cannot access config file %s: %w", configPath, err)
		}
		return configPath, nil
	}

	if envPath := os.Getenv("ZHC_CONFIG"); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath, nil
		}
	}

	locations := []string{
		".",
		"/etc/zhc-plane",
	}
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		locations = append(locations, filepath.Join(xdgConfig, "zhc-plane"))
	}

	for _, loc := range locations {
		for _, ext := range []string{"yaml", "json"} {
			path := filepath.Join(loc, "config."+ext)
			if _, err := os.Stat(path); err == nil {
				return path, nil
			}
		}
	}

	return "", nil
}

// LoadConfigFile loads a configuration file (YAML or JSON) into viper.
func LoadConfigFile(v *viper.Viper, filePath string) error {
	if filePath == "" {
		return nil
	}

	ext := filepath.Ext(filePath)
	switch ext {
	case ".yaml", ".yml":
		v.SetConfigType("yaml")
	case ".json":
		v.SetConfigType("json")
	default:
		return fmt.Errorf("unsupported config file type: %s", ext)
	}

	v.SetConfigFile(filePath)

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file %s: %w", filePath, err)
	}

	return nil
}

// LoadFromViper unmarshals viper configuration into a Config struct.
func LoadFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}
