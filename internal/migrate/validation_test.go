package migrate

import "testing"

func TestValidationRuleViolation(t *testing.T) {
	rules := []ValidationRule{
		{Name: "revenue_positive", Expression: "record.revenue < 0", Message: "revenue must not be negative"},
	}
	errs := EvaluateValidationRules(rules, map[string]any{"revenue": -5}, nil)
	if len(errs) != 1 {
		t.Fatalf("got %d errors, want 1", len(errs))
	}
	if errs[0].Message != "revenue must not be negative" {
		t.Errorf("message = %q", errs[0].Message)
	}
}

func TestValidationRulePasses(t *testing.T) {
	rules := []ValidationRule{
		{Name: "revenue_positive", Expression: "record.revenue < 0", Message: "revenue must not be negative"},
	}
	errs := EvaluateValidationRules(rules, map[string]any{"revenue": 100}, nil)
	if len(errs) != 0 {
		t.Fatalf("got %d errors, want 0", len(errs))
	}
}

func TestValidationRuleCompilesOnceAndCaches(t *testing.T) {
	rules := []ValidationRule{
		{Name: "name_required", Expression: "record.name == ''", Message: "name is required"},
	}
	EvaluateValidationRules(rules, map[string]any{"name": ""}, nil)
	if rules[0].Compiled == nil {
		t.Fatal("expected rule to cache its compiled program after first evaluation")
	}
}
