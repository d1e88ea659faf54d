// ABOUTME: Condition predicates that gate stage dispatch on prior stage outcomes.
// ABOUTME: Grammar: "" (default), "always", "any_failed(a,b)", "all_succeeded(a,b)".
package engine

import (
	"fmt"
	"strings"
)

// ConditionKind identifies the predicate form of a stage condition.
type ConditionKind string

const (
	// CondDefault runs the stage once its dependencies have resolved.
	CondDefault ConditionKind = "default"
	// CondAlways runs the stage even after a required failure halted the run.
	CondAlways ConditionKind = "always"
	// CondAnyFailed runs the stage only if at least one named stage failed.
	CondAnyFailed ConditionKind = "any_failed"
	// CondAllSucceeded runs the stage only if every named stage succeeded.
	CondAllSucceeded ConditionKind = "all_succeeded"
)

// Condition is a parsed stage condition predicate.
type Condition struct {
	Kind   ConditionKind
	Stages []string
}

// ParseCondition parses a condition expression. An empty or whitespace-only
// expression is the default condition.
func ParseCondition(expr string) (Condition, error) {
	trimmed := strings.TrimSpace(expr)
	if trimmed == "" {
		return Condition{Kind: CondDefault}, nil
	}
	if trimmed == "always" {
		return Condition{Kind: CondAlways}, nil
	}

	for _, kind := range []ConditionKind{CondAnyFailed, CondAllSucceeded} {
		prefix := string(kind) + "("
		if !strings.HasPrefix(trimmed, prefix) || !strings.HasSuffix(trimmed, ")") {
			continue
		}
		inner := trimmed[len(prefix) : len(trimmed)-1]
		stages, err := splitStageList(inner)
		if err != nil {
			return Condition{}, fmt.Errorf("invalid condition %q: %w", expr, err)
		}
		return Condition{Kind: kind, Stages: stages}, nil
	}

	return Condition{}, fmt.Errorf("invalid condition %q (want always, any_failed(...), or all_succeeded(...))", expr)
}

// References returns the stage names the condition depends on.
func (c Condition) References() []string {
	return c.Stages
}

// Evaluate decides whether a stage guarded by this condition should run,
// given the results of already-terminal stages. A skipped stage counts as
// neither failed nor succeeded.
func (c Condition) Evaluate(results map[string]*StageResult) bool {
	switch c.Kind {
	case CondDefault, CondAlways:
		return true
	case CondAnyFailed:
		for _, name := range c.Stages {
			if r, ok := results[name]; ok && r.Status.Failed() {
				return true
			}
		}
		return false
	case CondAllSucceeded:
		for _, name := range c.Stages {
			r, ok := results[name]
			if !ok || r.Status != StatusSucceeded {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// splitStageList parses the comma-separated stage list inside a predicate.
func splitStageList(inner string) ([]string, error) {
	if strings.TrimSpace(inner) == "" {
		return nil, fmt.Errorf("empty stage list")
	}
	parts := strings.Split(inner, ",")
	stages := make([]string, 0, len(parts))
	for _, p := range parts {
		name := strings.TrimSpace(p)
		if name == "" {
			return nil, fmt.Errorf("empty stage name in list")
		}
		stages = append(stages, name)
	}
	return stages, nil
}
