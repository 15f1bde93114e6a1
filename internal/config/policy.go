package config

import "fmt"

// PolicyConfig names the structured policy configuration values consumed by
// the Policy Evaluator and Classifier (spec.md §4.2/§4.3). The files
// themselves hold routing rules, approval action categories, and execution
// allow/deny lists; loading/parsing format is out of scope (spec.md §1) and
// is left to the caller to supply as an already-parsed value.
type PolicyConfig struct {
	RoutingPolicyPath   string `mapstructure:"routing_policy" env:"ZHC_ROUTING_POLICY"`
	ApprovalPolicyPath  string `mapstructure:"approval_policy" env:"ZHC_APPROVAL_POLICY"`
	ExecutionPolicyPath string `mapstructure:"execution_policy" env:"ZHC_EXECUTION_POLICY"`

	// Enforcement is the Policy Evaluator's enforcement level: "strict" or
	// "warn". Environment override always wins (spec.md §4.2).
	Enforcement string `mapstructure:"enforcement" env:"ZHC_POLICY_ENFORCEMENT" default:"strict"`

	// AutonomyMode gates readonly/supervised/auto behavior.
	AutonomyMode string `mapstructure:"autonomy_mode" env:"ZHC_AUTONOMY_MODE" default:"supervised"`
}

// Validate validates policy configuration.
func (p *PolicyConfig) Validate() error {
	switch p.Enforcement {
	case "strict", "warn":
	default:
		return fmt.Errorf("invalid policy enforcement: %s (must be strict or warn)", p.Enforcement)
	}
	switch p.AutonomyMode {
	case "readonly", "supervised", "auto":
	default:
		return fmt.Errorf("invalid autonomy mode: %s (must be readonly, supervised, or auto)", p.AutonomyMode)
	}
	return nil
}
