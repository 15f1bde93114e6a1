package config

import (
	"fmt"
	"time"
)

// CostConfig controls the Router's cost-estimate step (spec.md §4.5 step 3).
type CostConfig struct {
	ModelDefault    string `mapstructure:"model_default" env:"ZHC_COST_MODEL_DEFAULT" default:"heuristic"`
	LookupEnabled   bool   `mapstructure:"lookup_enabled" env:"ZHC_COST_LOOKUP_ENABLED" default:"false"`
	LookupTimeoutMs int    `mapstructure:"lookup_timeout_ms" env:"ZHC_COST_LOOKUP_TIMEOUT_MS" default:"2000"`
}

// Validate validates cost-lookup configuration.
func (c *CostConfig) Validate() error {
	if c.LookupEnabled && c.LookupTimeoutMs <= 0 {
		return fmt.Errorf("lookup_timeout_ms must be positive when lookup_enabled is true")
	}
	return nil
}

// LookupTimeout returns LookupTimeoutMs as a time.Duration.
func (c *CostConfig) LookupTimeout() time.Duration {
	return time.Duration(c.LookupTimeoutMs) * time.Millisecond
}

// ProviderConfig names the model provider/model pair used for pricing lookup
// and surfaced in telemetry, with a fallback pair for provider outages.
type ProviderConfig struct {
	OpenRouterAPIKey string `mapstructure:"openrouter_api_key" env:"OPENROUTER_API_KEY"`
	DefaultProvider  string `mapstructure:"default_provider" env:"ZHC_DEFAULT_PROVIDER" default:"openrouter"`
	DefaultModel     string `mapstructure:"default_model" env:"ZHC_DEFAULT_MODEL"`
	FallbackProvider string `mapstructure:"fallback_provider" env:"ZHC_FALLBACK_PROVIDER"`
	FallbackModel    string `mapstructure:"fallback_model" env:"ZHC_FALLBACK_MODEL"`
}
