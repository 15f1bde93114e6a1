package policy

import (
	"encoding/json"
	"fmt"
	"os"
)

// Load reads an ExecutionPolicy from a JSON file at path. The on-disk
// format is treated as an opaque structured configuration value (spec.md
// §1 non-goals): only its shape, not its authoring format, is specified.
func Load(path string) (ExecutionPolicy, error) {
	var p ExecutionPolicy
	if path == "" {
		return p, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("load execution policy %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("parse execution policy %s: %w", path, err)
	}
	return p, nil
}

// LoadApprovalPolicy reads an ApprovalPolicy from a JSON file at path.
// Returns the zero value (no action category requires approval by type;
// only risk level can still trigger one) when path is empty.
func LoadApprovalPolicy(path string) (ApprovalPolicy, error) {
	var p ApprovalPolicy
	if path == "" {
		return p, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("load approval policy %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("parse approval policy %s: %w", path, err)
	}
	return p, nil
}
