package config

import (
	"fmt"
	"os"
	"time"
)

// DispatchConfig tunes the Router/Dispatcher's lease, retry, and timeout
// behavior (spec.md §4.5, §5 timeouts and bounds).
type DispatchConfig struct {
	// Owner identifies this dispatcher instance for lease claims. Defaults
	// to "host:pid" when unset, matching spec.md's enqueue_dispatch_lease
	// owner convention.
	Owner string `mapstructure:"owner" env:"ZHC_DISPATCH_OWNER"`

	LeaseSeconds        int     `mapstructure:"lease_seconds" env:"ZHC_DISPATCH_LEASE_SECONDS" default:"120"`
	RetryMax            int     `mapstructure:"retry_max" env:"ZHC_DISPATCH_RETRY_MAX" default:"1"`
	RetryBackoffSeconds float64 `mapstructure:"retry_backoff_seconds" env:"ZHC_DISPATCH_RETRY_BACKOFF_SECONDS" default:"2"`
	RetryJitterSeconds  float64 `mapstructure:"retry_jitter_seconds" env:"ZHC_DISPATCH_RETRY_JITTER_SECONDS" default:"0.5"`
	TimeoutSeconds      int     `mapstructure:"timeout_seconds" env:"ZHC_DISPATCH_TIMEOUT_SECONDS" default:"900"`
}

// Validate validates dispatch configuration.
func (d *DispatchConfig) Validate() error {
	if d.LeaseSeconds <= 0 {
		return fmt.Errorf("lease_seconds must be positive")
	}
	if d.RetryMax < 0 {
		return fmt.Errorf("retry_max must be non-negative")
	}
	if d.RetryBackoffSeconds < 0 {
		return fmt.Errorf("retry_backoff_seconds must be non-negative")
	}
	if d.RetryJitterSeconds < 0 {
		return fmt.Errorf("retry_jitter_seconds must be non-negative")
	}
	if d.TimeoutSeconds <= 0 {
		return fmt.Errorf("timeout_seconds must be positive")
	}
	return nil
}

// LeaseDuration returns LeaseSeconds as a time.Duration.
func (d *DispatchConfig) LeaseDuration() time.Duration {
	return time.Duration(d.LeaseSeconds) * time.Second
}

// Timeout returns TimeoutSeconds as a time.Duration.
func (d *DispatchConfig) Timeout() time.Duration {
	return time.Duration(d.TimeoutSeconds) * time.Second
}

// ResolvedOwner returns Owner, falling back to "host:pid" when unset.
func (d *DispatchConfig) ResolvedOwner() string {
	if d.Owner != "" {
		return d.Owner
	}
	host, err := os.Hostname()
	if err != nil {
		host = "unknown-host"
	}
	return fmt.Sprintf("%s:%d", host, os.Getpid())
}
