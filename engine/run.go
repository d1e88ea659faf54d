// ABOUTME: Defines StageStatus, StageResult, RunOutcome, and the PipelineRun record.
// ABOUTME: Provides ULID-based run ID generation for sortable, timestamp-prefixed identifiers.
package engine

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// StageStatus is the terminal (or in-flight) state of one stage.
type StageStatus string

const (
	StatusPending        StageStatus = "pending"
	StatusRunning        StageStatus = "running"
	StatusSucceeded      StageStatus = "succeeded"
	StatusFailedIgnored  StageStatus = "failed_ignored"
	StatusFailedRequired StageStatus = "failed_required"
	StatusSkipped        StageStatus = "skipped"
	StatusTimedOut       StageStatus = "timed_out"
	StatusAborted        StageStatus = "aborted"
)

// Terminal reports whether the status is final and will never be revisited.
func (s StageStatus) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusFailedIgnored, StatusFailedRequired,
		StatusSkipped, StatusTimedOut, StatusAborted:
		return true
	}
	return false
}

// Failed reports whether the status represents a command-level failure.
// Skipped and aborted stages count as neither failed nor succeeded.
func (s StageStatus) Failed() bool {
	switch s {
	case StatusFailedIgnored, StatusFailedRequired, StatusTimedOut:
		return true
	}
	return false
}

// StageResult records how one stage ended.
type StageResult struct {
	Stage         string          `json:"stage"`
	Status        StageStatus     `json:"status"`
	ExitCode      int             `json:"exit_code"`
	StartedAt     time.Time       `json:"started_at"`
	FinishedAt    time.Time       `json:"finished_at"`
	Commands      []CommandResult `json:"commands,omitempty"`
	FailureReason string          `json:"failure_reason,omitempty"`
	SkipReason    string          `json:"skip_reason,omitempty"`

	// MissingArtifacts lists declared artifact patterns that matched nothing
	// after the stage completed. Warnings, never failures.
	MissingArtifacts []string `json:"missing_artifacts,omitempty"`
}

// Duration returns the wall-clock time the stage spent running, or zero for
// stages that never ran.
func (r *StageResult) Duration() time.Duration {
	if r.StartedAt.IsZero() || r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// RunOutcome is the overall state of a pipeline run.
type RunOutcome string

const (
	OutcomePending        RunOutcome = "pending"
	OutcomeRunning        RunOutcome = "running"
	OutcomeSucceeded      RunOutcome = "succeeded"
	OutcomeFailedRequired RunOutcome = "failed_required"
	OutcomeAborted        RunOutcome = "aborted"
)

// Terminal reports whether the run outcome is final.
func (o RunOutcome) Terminal() bool {
	switch o {
	case OutcomeSucceeded, OutcomeFailedRequired, OutcomeAborted:
		return true
	}
	return false
}

// PipelineRun is one execution instance of a pipeline definition. Only the
// execution engine mutates Results and Artifacts, and only between stage
// transitions; once Outcome is terminal the value is never written again.
type PipelineRun struct {
	ID         string                  `json:"id"`
	Definition *Definition             `json:"-"`
	Order      []string                `json:"order"`
	Results    map[string]*StageResult `json:"results"`
	Artifacts  map[string][]string     `json:"artifacts"`
	Outcome    RunOutcome              `json:"outcome"`
	StartedAt  time.Time               `json:"started_at"`
	FinishedAt time.Time               `json:"finished_at"`
}

// NewRunID produces a ULID run identifier: lexically sortable and
// timestamp-prefixed, so run listings sort chronologically for free.
func NewRunID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
}
