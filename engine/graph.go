// ABOUTME: Pipeline graph construction: duplicate/unknown-dependency checks and cycle detection.
// ABOUTME: Produces a deterministic linearization via Kahn's algorithm with declaration-order tie-breaking.
package engine

import (
	"fmt"
	"strings"
)

// DuplicateStageError reports a stage name declared more than once.
type DuplicateStageError struct {
	Name string
}

func (e *DuplicateStageError) Error() string {
	return fmt.Sprintf("duplicate stage name %q", e.Name)
}

// UnknownDependencyError reports a depends_on entry naming a stage that does
// not exist in the definition.
type UnknownDependencyError struct {
	Stage      string
	Dependency string
}

func (e *UnknownDependencyError) Error() string {
	return fmt.Sprintf("stage %q depends on unknown stage %q", e.Stage, e.Dependency)
}

// CycleError reports a dependency cycle among the named stages.
type CycleError struct {
	Stages []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle involving stages: %s", strings.Join(e.Stages, ", "))
}

// Graph is a validated pipeline DAG with a precomputed execution order.
type Graph struct {
	Definition *Definition
	Stages     map[string]*Stage
	Order      []string
}

// BuildGraph validates the stage definitions and computes the execution
// order. It fails with DuplicateStageError, UnknownDependencyError, or
// CycleError so that runtime traversal never encounters a structural problem.
// Ties among stages whose dependencies are all satisfied break by original
// declaration order, keeping runs reproducible.
func BuildGraph(def *Definition) (*Graph, error) {
	stages := make(map[string]*Stage, len(def.Stages))
	for _, s := range def.Stages {
		if _, exists := stages[s.Name]; exists {
			return nil, &DuplicateStageError{Name: s.Name}
		}
		stages[s.Name] = s
	}

	for _, s := range def.Stages {
		for _, dep := range s.DependsOn {
			if dep == s.Name {
				return nil, &CycleError{Stages: []string{s.Name}}
			}
			if _, ok := stages[dep]; !ok {
				return nil, &UnknownDependencyError{Stage: s.Name, Dependency: dep}
			}
		}
		if err := checkConditionReferences(s); err != nil {
			return nil, err
		}
		if err := checkArtifactReferences(s); err != nil {
			return nil, err
		}
	}

	order, err := linearize(def.Stages)
	if err != nil {
		return nil, err
	}

	return &Graph{Definition: def, Stages: stages, Order: order}, nil
}

// linearize runs Kahn's algorithm over the stages. The scan restarts from the
// front of the declaration list after each emission, so among stages with no
// remaining unmet dependencies the earliest-declared one always goes first.
func linearize(stages []*Stage) ([]string, error) {
	indegree := make(map[string]int, len(stages))
	for _, s := range stages {
		indegree[s.Name] = len(s.DependsOn)
	}

	dependents := make(map[string][]string, len(stages))
	for _, s := range stages {
		for _, dep := range s.DependsOn {
			dependents[dep] = append(dependents[dep], s.Name)
		}
	}

	order := make([]string, 0, len(stages))
	emitted := make(map[string]bool, len(stages))

	for len(order) < len(stages) {
		progressed := false
		for _, s := range stages {
			if emitted[s.Name] || indegree[s.Name] > 0 {
				continue
			}
			emitted[s.Name] = true
			order = append(order, s.Name)
			for _, d := range dependents[s.Name] {
				indegree[d]--
			}
			progressed = true
			break
		}
		if !progressed {
			// Everything left has unmet dependencies: a cycle.
			remaining := make([]string, 0)
			for _, s := range stages {
				if !emitted[s.Name] {
					remaining = append(remaining, s.Name)
				}
			}
			return nil, &CycleError{Stages: remaining}
		}
	}

	return order, nil
}

// checkConditionReferences verifies that a stage's condition only names stages
// present in its depends_on list, ruling out forward references.
func checkConditionReferences(s *Stage) error {
	cond, err := ParseCondition(s.Condition)
	if err != nil {
		return fmt.Errorf("stage %q: %w", s.Name, err)
	}
	deps := make(map[string]bool, len(s.DependsOn))
	for _, d := range s.DependsOn {
		deps[d] = true
	}
	for _, ref := range cond.References() {
		if !deps[ref] {
			return fmt.Errorf("stage %q: condition references %q which is not in depends_on", s.Name, ref)
		}
	}
	return nil
}

// checkArtifactReferences verifies that every ${artifacts:name} placeholder in
// a stage's commands names a declared dependency, so artifact propagation can
// never read a stage that has not completed.
func checkArtifactReferences(s *Stage) error {
	deps := make(map[string]bool, len(s.DependsOn))
	for _, d := range s.DependsOn {
		deps[d] = true
	}
	for _, cmd := range s.Commands {
		for _, ref := range artifactRefs(cmd) {
			if !deps[ref] {
				return fmt.Errorf("stage %q: command references artifacts of %q which is not in depends_on", s.Name, ref)
			}
		}
	}
	return nil
}
