package config

import "fmt"

// Config holds all application configuration for the plane: the registry's
// storage, the policy/routing inputs, dispatch tuning, cost estimation, and
// the long-poll ingress.
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Log      LogConfig      `mapstructure:"log"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Policy   PolicyConfig   `mapstructure:"policy"`
	Runtime  RuntimeConfig  `mapstructure:"runtime"`
	Dispatch DispatchConfig `mapstructure:"dispatch"`
	Context  ContextConfig  `mapstructure:"context"`
	Cost     CostConfig     `mapstructure:"cost"`
	Provider ProviderConfig `mapstructure:"provider"`
	Ingress  IngressConfig  `mapstructure:"ingress"`
}

// Validate performs validation on the configuration.
func (c *Config) Validate() error {
	if err := c.Database.Validate(); err != nil {
		return fmt.Errorf("database config: %w", err)
	}
	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("storage config: %w", err)
	}
	if err := c.Log.Validate(); err != nil {
		return fmt.Errorf("log config: %w", err)
	}
	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}
	if err := c.Policy.Validate(); err != nil {
		return fmt.Errorf("policy config: %w", err)
	}
	if err := c.Runtime.Validate(); err != nil {
		return fmt.Errorf("runtime config: %w", err)
	}
	if err := c.Dispatch.Validate(); err != nil {
		return fmt.Errorf("dispatch config: %w", err)
	}
	if err := c.Context.Validate(); err != nil {
		return fmt.Errorf("context config: %w", err)
	}
	if err := c.Cost.Validate(); err != nil {
		return fmt.Errorf("cost config: %w", err)
	}
	if err := c.Ingress.Validate(); err != nil {
		return fmt.Errorf("ingress config: %w", err)
	}
	return nil
}
