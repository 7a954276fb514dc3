package migrate

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// EvaluateValidationRules runs every entity-level ValidationRule against a
// produced field map (plus the pre-existing target record, if any) and
// returns one ErrorDetail per violated rule. Each rule compiles once with
// expr.AsBool(), caches the program on the rule, and runs with
// {record, old} in scope.
func EvaluateValidationRules(rules []ValidationRule, record, old map[string]any) []ErrorDetail {
	if len(rules) == 0 {
		return nil
	}
	env := map[string]any{"record": record, "old": old}

	var errs []ErrorDetail
	for i := range rules {
		rule := &rules[i]
		prog, ok := rule.Compiled.(*vm.Program)
		if !ok || prog == nil {
			compiled, err := compileValidationExpression(rule.Expression)
			if err != nil {
				errs = append(errs, ErrorDetail{Rule: rule.Name, Message: fmt.Sprintf("compile error: %v", err)})
				continue
			}
			rule.Compiled = compiled
			prog = compiled
		}

		result, err := expr.Run(prog, env)
		if err != nil {
			errs = append(errs, ErrorDetail{Rule: rule.Name, Message: fmt.Sprintf("evaluation error: %v", err)})
			continue
		}

		violated, ok := result.(bool)
		if !ok || !violated {
			continue
		}

		msg := rule.Message
		if msg == "" {
			msg = fmt.Sprintf("validation rule %q violated", rule.Name)
		}
		errs = append(errs, ErrorDetail{Rule: rule.Name, Message: msg})
	}
	return errs
}

func compileValidationExpression(expression string) (*vm.Program, error) {
	prog, err := expr.Compile(expression, expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compile validation expression: %w", err)
	}
	return prog, nil
}
