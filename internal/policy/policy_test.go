package policy

import "testing"

func basicPolicy() ExecutionPolicy {
	return ExecutionPolicy{
		RouteAllowlist: map[RouteClass][]string{
			"LIGHT": {"code_refactor", "doc_update"},
			"HEAVY": {"code_refactor"},
		},
		BlockedPromptKeywords: []string{"rm -rf", "drop table"},
		BlockedPathPatterns:   []string{"/etc/passwd"},
	}
}

func TestEvaluateReadonlyAlwaysDenies(t *testing.T) {
	d := Evaluate("code_refactor", "hello", "LIGHT", AutonomyReadonly, EnforcementStrict, basicPolicy())
	if d.Allowed {
		t.Fatalf("expected deny under readonly mode")
	}
	if d.Reason != ReasonReadonlyMode {
		t.Fatalf("expected reason %q, got %q", ReasonReadonlyMode, d.Reason)
	}
}

func TestEvaluateUnknownTaskTypeStrict(t *testing.T) {
	d := Evaluate("unknown_type", "hello", "LIGHT", AutonomySupervised, EnforcementStrict, basicPolicy())
	if d.Allowed {
		t.Fatalf("expected deny for unknown task type under strict enforcement")
	}
	if d.Reason != ReasonUnknownTaskType {
		t.Fatalf("unexpected reason: %q", d.Reason)
	}
}

func TestEvaluateUnknownTaskTypeWarnStillAllows(t *testing.T) {
	d := Evaluate("unknown_type", "hello", "LIGHT", AutonomySupervised, EnforcementWarn, basicPolicy())
	if !d.Allowed {
		t.Fatalf("expected allow under warn enforcement")
	}
	if d.Reason != ReasonUnknownTaskType {
		t.Fatalf("expected violation still reported, got %q", d.Reason)
	}
}

func TestEvaluateBlockedPromptKeyword(t *testing.T) {
	d := Evaluate("code_refactor", "please run rm -rf / now", "LIGHT", AutonomySupervised, EnforcementStrict, basicPolicy())
	if d.Allowed {
		t.Fatalf("expected deny for blocked keyword")
	}
	if d.Reason != ReasonBlockedPromptKeyword {
		t.Fatalf("unexpected reason: %q", d.Reason)
	}
}

func TestEvaluateBlockedPathPatternCaseInsensitive(t *testing.T) {
	d := Evaluate("code_refactor", "please cat /ETC/PASSWD", "LIGHT", AutonomySupervised, EnforcementStrict, basicPolicy())
	if d.Allowed {
		t.Fatalf("expected deny for blocked path pattern")
	}
	if d.Reason != ReasonBlockedPathPattern {
		t.Fatalf("unexpected reason: %q", d.Reason)
	}
}

func TestEvaluateAllowedHappyPath(t *testing.T) {
	d := Evaluate("code_refactor", "refactor the widget module", "HEAVY", AutonomySupervised, EnforcementStrict, basicPolicy())
	if !d.Allowed || d.Reason != ReasonAllowed {
		t.Fatalf("expected allowed decision, got %+v", d)
	}
}

func TestEvaluateEmptyAllowlistAllowsAll(t *testing.T) {
	d := Evaluate("anything", "hello", "LIGHT", AutonomySupervised, EnforcementStrict, ExecutionPolicy{})
	if !d.Allowed {
		t.Fatalf("expected allow when no allowlist configured")
	}
}
