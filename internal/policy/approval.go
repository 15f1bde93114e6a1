package policy

import "strings"

// ActionCategory tags the policy gate class an approval belongs to
// (spec.md GLOSSARY).
type ActionCategory string

// ApprovalGate configures whether a given action category requires a human
// decision before dispatch.
type ApprovalGate struct {
	RequireHumanApproval bool `json:"require_human_approval" yaml:"require_human_approval"`
}

// ApprovalPolicy is the structured configuration value loaded from
// ZHC_APPROVAL_POLICY: a risk-independent set of task-type-to-gate
// mappings plus the gate's decision.
type ApprovalPolicy struct {
	Gates map[ActionCategory]ApprovalGate `json:"gates" yaml:"gates"`
}

// taskTypeActionCategory maps a task type to the action category whose gate
// governs it. Task types with no mapping never require approval on type
// alone (only on risk level, via RequiresApproval).
var taskTypeActionCategory = map[string]ActionCategory{
	"deploy":              "deploy_restart",
	"delete":              "delete_files",
	"scheduler_change":    "scheduler_change",
	"compliance_finalize": "compliance_finalize",
	"customer_outbound":   "customer_outbound",
}

// ActionCategoryHighRisk is the action category assigned to approvals
// triggered by risk level alone, independent of task type.
const ActionCategoryHighRisk ActionCategory = "high_risk"

// RequiresApproval reports whether taskType/riskLevel requires a human
// approval before dispatch: any high-risk task always requires approval;
// otherwise a task type is checked against its action category's gate in
// policy.
func RequiresApproval(riskLevel, taskType string, approvalPolicy ApprovalPolicy) (bool, ActionCategory) {
	if riskLevel == "high" {
		return true, ActionCategoryHighRisk
	}

	category, ok := taskTypeActionCategory[strings.ToLower(taskType)]
	if !ok {
		return false, ""
	}
	gate, ok := approvalPolicy.Gates[category]
	if !ok {
		return false, category
	}
	return gate.RequireHumanApproval, category
}
