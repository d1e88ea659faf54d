// ABOUTME: Run report finalization: aggregates a PipelineRun into a deterministic summary.
// ABOUTME: Pure with respect to run state; repeated calls produce identical reports.
package engine

import (
	"fmt"
	"strings"
	"time"
)

// stderrTailLines bounds how much captured stderr the root cause carries.
const stderrTailLines = 10

// StageReport is one row of the per-stage status table.
type StageReport struct {
	Name             string        `json:"name"`
	Status           StageStatus   `json:"status"`
	Policy           StagePolicy   `json:"policy"`
	ExitCode         int           `json:"exit_code"`
	Duration         time.Duration `json:"duration"`
	FailureReason    string        `json:"failure_reason,omitempty"`
	SkipReason       string        `json:"skip_reason,omitempty"`
	Artifacts        []string      `json:"artifacts,omitempty"`
	MissingArtifacts []string      `json:"missing_artifacts,omitempty"`
}

// RootCause identifies the first required failure that halted the run.
type RootCause struct {
	Stage      string `json:"stage"`
	Command    string `json:"command"`
	ExitCode   int    `json:"exit_code"`
	StderrTail string `json:"stderr_tail,omitempty"`
}

// Report is the aggregated result of a pipeline run.
type Report struct {
	RunID         string        `json:"run_id"`
	Pipeline      string        `json:"pipeline"`
	Outcome       RunOutcome    `json:"outcome"`
	TotalDuration time.Duration `json:"total_duration"`
	Stages        []StageReport `json:"stages"`
	RootCause     *RootCause    `json:"root_cause,omitempty"`
	Warnings      []string      `json:"warnings,omitempty"`
}

// Finalize produces the run report from PipelineRun state alone. It has no
// side effects and is deterministic: stages appear in execution order and
// warnings in stable stage-then-pattern order, so repeated calls on the same
// run yield identical reports.
func Finalize(run *PipelineRun) *Report {
	report := &Report{
		RunID:         run.ID,
		Outcome:       run.Outcome,
		TotalDuration: run.FinishedAt.Sub(run.StartedAt),
		Stages:        make([]StageReport, 0, len(run.Order)),
	}
	if run.Definition != nil {
		report.Pipeline = run.Definition.Name
	}

	policies := make(map[string]StagePolicy, len(run.Order))
	if run.Definition != nil {
		for _, s := range run.Definition.Stages {
			policies[s.Name] = s.Policy
		}
	}

	for _, name := range run.Order {
		res := run.Results[name]
		if res == nil {
			continue
		}

		report.Stages = append(report.Stages, StageReport{
			Name:             name,
			Status:           res.Status,
			Policy:           policies[name],
			ExitCode:         res.ExitCode,
			Duration:         res.Duration(),
			FailureReason:    res.FailureReason,
			SkipReason:       res.SkipReason,
			Artifacts:        run.Artifacts[name],
			MissingArtifacts: res.MissingArtifacts,
		})

		if res.Status.Failed() && policies[name] == PolicyRequired && report.RootCause == nil {
			report.RootCause = rootCause(name, res)
		}
		if res.Status.Failed() && policies[name] == PolicyContinueOnError {
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("stage %q failed (%s) but was not required: %s", name, res.Status, res.FailureReason))
		}
		for _, pattern := range res.MissingArtifacts {
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("stage %q declared artifact %q which was not produced", name, pattern))
		}
	}

	return report
}

// rootCause extracts the failing command and a stderr tail from a failed
// stage result.
func rootCause(name string, res *StageResult) *RootCause {
	rc := &RootCause{Stage: name, ExitCode: res.ExitCode}
	for i := len(res.Commands) - 1; i >= 0; i-- {
		cr := res.Commands[i]
		if cr.Failed() {
			rc.Command = cr.Spec.Display()
			rc.StderrTail = tailLines(cr.Stderr, stderrTailLines)
			break
		}
	}
	return rc
}

// tailLines returns the last n non-empty-trimmed lines of text.
func tailLines(text string, n int) string {
	trimmed := strings.TrimRight(text, "\n")
	if trimmed == "" {
		return ""
	}
	lines := strings.Split(trimmed, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
