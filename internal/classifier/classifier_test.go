package classifier

import "testing"

func basicPolicy() RoutingPolicy {
	return RoutingPolicy{
		DefaultRouteClass: RouteLight,
		DefaultRiskLevel:  RiskLow,
		TaskTypeOverrides: map[string]TaskTypeOverride{
			"infra_migration": {RouteClass: RouteHeavy, RiskLevel: RiskMedium},
			"doc_update":      {RiskLevel: RiskLow},
		},
		RouteUpgradeKeywords: []KeywordRule{
			{Keyword: "production database"},
		},
		RiskUpgradeKeywords: []KeywordRule{
			{Keyword: "delete all"},
			{Keyword: "customer pii"},
		},
	}
}

func TestClassifyDefaults(t *testing.T) {
	c := Classify("code_refactor", "tidy up some comments", basicPolicy())
	if c.RouteClass != RouteLight || c.RiskLevel != RiskLow {
		t.Fatalf("expected defaults, got %+v", c)
	}
}

func TestClassifyTaskTypeOverrideReplacesBothFields(t *testing.T) {
	c := Classify("infra_migration", "migrate the thing", basicPolicy())
	if c.RouteClass != RouteHeavy || c.RiskLevel != RiskMedium {
		t.Fatalf("expected override to apply, got %+v", c)
	}
}

func TestClassifyTaskTypeOverrideIsCaseInsensitive(t *testing.T) {
	c := Classify("INFRA_MIGRATION", "migrate the thing", basicPolicy())
	if c.RouteClass != RouteHeavy || c.RiskLevel != RiskMedium {
		t.Fatalf("expected case-insensitive override match, got %+v", c)
	}
}

func TestClassifyPartialOverrideLeavesOtherFieldAtDefault(t *testing.T) {
	c := Classify("doc_update", "update the readme", basicPolicy())
	if c.RouteClass != RouteLight {
		t.Fatalf("expected route class to remain at default, got %+v", c)
	}
	if c.RiskLevel != RiskLow {
		t.Fatalf("expected overridden risk level, got %+v", c)
	}
}

func TestClassifyRouteKeywordUpgradesOnlyRouteClass(t *testing.T) {
	c := Classify("code_refactor", "please touch the PRODUCTION DATABASE config", basicPolicy())
	if c.RouteClass != RouteHeavy {
		t.Fatalf("expected route class upgrade, got %+v", c)
	}
	if c.RiskLevel != RiskLow {
		t.Fatalf("route keyword must not touch risk level, got %+v", c)
	}
}

func TestClassifyRiskKeywordUpgradesOnlyRiskLevel(t *testing.T) {
	c := Classify("code_refactor", "this touches customer PII", basicPolicy())
	if c.RiskLevel != RiskHigh {
		t.Fatalf("expected risk level upgrade, got %+v", c)
	}
	if c.RouteClass != RouteLight {
		t.Fatalf("risk keyword must not touch route class, got %+v", c)
	}
}

func TestClassifyKeywordUpgradeNeverDowngrades(t *testing.T) {
	c := Classify("infra_migration", "delete all the stale branches", basicPolicy())
	if c.RouteClass != RouteHeavy || c.RiskLevel != RiskHigh {
		t.Fatalf("expected upgrade to persist over override, got %+v", c)
	}
}

func TestClassifyEmptyPolicyUsesBuiltinDefaults(t *testing.T) {
	c := Classify("anything", "hello", RoutingPolicy{})
	if c.RouteClass != RouteLight || c.RiskLevel != RiskLow {
		t.Fatalf("expected built-in defaults, got %+v", c)
	}
}
