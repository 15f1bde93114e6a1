package classifier

import (
	"encoding/json"
	"fmt"
	"os"
)

// Load reads a RoutingPolicy from a JSON file at path. Returns the zero
// value (all defaults apply) when path is empty.
func Load(path string) (RoutingPolicy, error) {
	var p RoutingPolicy
	if path == "" {
		return p, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("load routing policy %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("parse routing policy %s: %w", path, err)
	}
	return p, nil
}
