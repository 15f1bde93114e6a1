package config

import "fmt"

// StorageConfig controls where per-task artifact directories live
// (planner.md, reviewer.json, context_compacted.txt, cost_estimate.json).
type StorageConfig struct {
	Root string `mapstructure:"root" env:"ZHC_STORAGE_ROOT" default:"./storage"`
}

// Validate validates storage configuration.
func (s *StorageConfig) Validate() error {
	if s.Root == "" {
		return fmt.Errorf("storage root cannot be empty")
	}
	return nil
}
