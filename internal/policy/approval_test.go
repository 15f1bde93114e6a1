package policy

import "testing"

func TestRequiresApprovalHighRiskAlwaysRequires(t *testing.T) {
	required, category := RequiresApproval("high", "code_refactor", ApprovalPolicy{})
	if !required {
		t.Fatalf("expected high risk to require approval")
	}
	if category != ActionCategoryHighRisk {
		t.Fatalf("unexpected category: %q", category)
	}
}

func TestRequiresApprovalGatedTaskType(t *testing.T) {
	p := ApprovalPolicy{
		Gates: map[ActionCategory]ApprovalGate{
			"deploy_restart": {RequireHumanApproval: true},
		},
	}
	required, category := RequiresApproval("low", "deploy", p)
	if !required {
		t.Fatalf("expected deploy to require approval")
	}
	if category != "deploy_restart" {
		t.Fatalf("unexpected category: %q", category)
	}
}

func TestRequiresApprovalUngatedTaskType(t *testing.T) {
	required, _ := RequiresApproval("low", "code_refactor", ApprovalPolicy{})
	if required {
		t.Fatalf("expected low-risk, ungated task type to not require approval")
	}
}

func TestRequiresApprovalGateDisabled(t *testing.T) {
	p := ApprovalPolicy{
		Gates: map[ActionCategory]ApprovalGate{
			"delete_files": {RequireHumanApproval: false},
		},
	}
	required, _ := RequiresApproval("low", "delete", p)
	if required {
		t.Fatalf("expected disabled gate to not require approval")
	}
}
