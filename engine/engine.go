// ABOUTME: Execution engine that walks the pipeline graph in dependency order.
// ABOUTME: Applies stage policy, conditions, timeouts, artifact registration, and abort handling.
package engine

import (
	"context"
	"fmt"
	"time"
)

// EngineConfig holds configuration for the pipeline execution engine.
type EngineConfig struct {
	WorkDir      string            // default working directory for commands (empty = inherit)
	Env          map[string]string // extra environment overlay injected into every command
	RunID        string            // run identifier (empty = auto-generated ULID)
	EventHandler func(EngineEvent) // optional event callback
}

// Engine drives pipeline runs. It is the single writer of PipelineRun state:
// stages and the command runner never touch Results or Artifacts directly.
type Engine struct {
	config EngineConfig
}

// NewEngine creates a pipeline execution engine with the given configuration.
func NewEngine(config EngineConfig) *Engine {
	return &Engine{config: config}
}

// SetEventHandler sets the engine's event callback after creation.
func (e *Engine) SetEventHandler(handler func(EngineEvent)) {
	e.config.EventHandler = handler
}

// Run builds the graph for the definition and executes it. Graph construction
// errors (duplicate names, unknown dependencies, cycles) are returned before
// any stage executes; runtime failures are encoded in the run's Outcome, not
// in the error return.
func (e *Engine) Run(ctx context.Context, def *Definition) (*PipelineRun, error) {
	graph, err := BuildGraph(def)
	if err != nil {
		e.emitEvent(EngineEvent{Type: EventPipelineFailed, Data: map[string]any{"error": err.Error()}})
		return nil, err
	}
	return e.RunGraph(ctx, graph)
}

// RunGraph executes an already-validated graph sequentially in its
// linearization order.
func (e *Engine) RunGraph(ctx context.Context, graph *Graph) (*PipelineRun, error) {
	runID := e.config.RunID
	if runID == "" {
		runID = NewRunID()
	}

	run := &PipelineRun{
		ID:         runID,
		Definition: graph.Definition,
		Order:      graph.Order,
		Results:    make(map[string]*StageResult, len(graph.Order)),
		Artifacts:  make(map[string][]string),
		Outcome:    OutcomeRunning,
		StartedAt:  time.Now(),
	}
	for _, name := range graph.Order {
		run.Results[name] = &StageResult{Stage: name, Status: StatusPending}
	}

	store := NewArtifactStore()

	e.emitEvent(EngineEvent{Type: EventPipelineStarted, Data: map[string]any{"run_id": runID}})

	halted := false
	haltStage := ""
	aborted := false

	for _, name := range graph.Order {
		stage := graph.Stages[name]
		res := run.Results[name]

		if aborted || ctx.Err() != nil {
			aborted = true
			res.Status = StatusAborted
			res.SkipReason = "run aborted"
			continue
		}

		// Condition was validated at build time; parse cannot fail here.
		cond, _ := ParseCondition(stage.Condition)

		if halted && cond.Kind != CondAlways {
			res.Status = StatusSkipped
			res.SkipReason = fmt.Sprintf("pipeline halted by required failure in %q", haltStage)
			e.emitEvent(EngineEvent{Type: EventStageSkipped, Stage: name, Data: map[string]any{"reason": res.SkipReason}})
			continue
		}

		if !cond.Evaluate(run.Results) {
			res.Status = StatusSkipped
			res.SkipReason = fmt.Sprintf("condition not met: %s", stage.Condition)
			e.emitEvent(EngineEvent{Type: EventStageSkipped, Stage: name, Data: map[string]any{"reason": res.SkipReason}})
			continue
		}

		e.runStage(ctx, stage, res, store, graph.Definition.Env)

		if res.Status == StatusAborted {
			aborted = true
			continue
		}

		e.registerArtifacts(stage, res, store, run)

		if res.Status.Failed() && stage.Policy == PolicyRequired {
			halted = true
			haltStage = name
		}
	}

	run.FinishedAt = time.Now()

	switch {
	case aborted:
		run.Outcome = OutcomeAborted
		e.emitEvent(EngineEvent{Type: EventPipelineAborted, Data: map[string]any{"run_id": runID}})
	case halted:
		run.Outcome = OutcomeFailedRequired
		e.emitEvent(EngineEvent{Type: EventPipelineFailed, Data: map[string]any{"run_id": runID, "stage": haltStage}})
	default:
		run.Outcome = OutcomeSucceeded
		e.emitEvent(EngineEvent{Type: EventPipelineCompleted, Data: map[string]any{"run_id": runID}})
	}

	return run, nil
}

// runStage executes a stage's command list under the stage timeout and
// records the result. In ModeAll every command must succeed and execution
// stops at the first failure; in ModeAny the commands form a fallback chain
// where the first success ends the stage.
func (e *Engine) runStage(ctx context.Context, stage *Stage, res *StageResult, store *ArtifactStore, pipelineEnv map[string]string) {
	res.Status = StatusRunning
	res.StartedAt = time.Now()
	e.emitEvent(EngineEvent{Type: EventStageStarted, Stage: stage.Name})

	stageCtx, cancel := context.WithTimeout(ctx, stage.Timeout)
	defer cancel()

	var lastFailure *CommandResult
	succeeded := stage.Mode == ModeAll // vacuously true until a command fails

	for i := range stage.Commands {
		spec := store.Expand(stage.Commands[i])
		spec.Env = mergeEnv(mergeEnv(e.config.Env, pipelineEnv), spec.Env)
		if spec.Dir == "" {
			spec.Dir = e.config.WorkDir
		}

		cr := RunCommand(stageCtx, spec)
		res.Commands = append(res.Commands, cr)

		if cr.Kind == KindOK {
			if stage.Mode == ModeAny {
				succeeded = true
				break
			}
			continue
		}

		// The stage deadline fired (and the parent context is still live).
		if stageCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			res.Status = StatusTimedOut
			res.ExitCode = cr.ExitCode
			res.FailureReason = fmt.Sprintf("stage timeout after %s (command: %s)", stage.Timeout, cr.Spec.Display())
			res.FinishedAt = time.Now()
			e.emitEvent(EngineEvent{Type: EventStageFailed, Stage: stage.Name, Data: map[string]any{"reason": res.FailureReason}})
			return
		}

		if ctx.Err() != nil {
			res.Status = StatusAborted
			res.ExitCode = cr.ExitCode
			res.FailureReason = "aborted: " + ctx.Err().Error()
			res.FinishedAt = time.Now()
			return
		}

		lastFailure = &res.Commands[len(res.Commands)-1]
		if stage.Mode == ModeAll {
			succeeded = false
			break
		}
		// ModeAny: keep trying the next fallback command.
		succeeded = false
	}

	res.FinishedAt = time.Now()

	if succeeded {
		res.Status = StatusSucceeded
		e.emitEvent(EngineEvent{Type: EventStageCompleted, Stage: stage.Name})
		return
	}

	if stage.Policy == PolicyRequired {
		res.Status = StatusFailedRequired
	} else {
		res.Status = StatusFailedIgnored
	}
	if lastFailure != nil {
		res.ExitCode = lastFailure.ExitCode
		res.FailureReason = failureReason(*lastFailure)
	}
	e.emitEvent(EngineEvent{Type: EventStageFailed, Stage: stage.Name, Data: map[string]any{
		"reason": res.FailureReason,
		"policy": string(stage.Policy),
	}})
}

// registerArtifacts resolves a stage's declared artifact patterns and records
// the matches. Unmatched patterns are warnings, never failures, mirroring the
// tolerance CI pipelines need for optional outputs.
func (e *Engine) registerArtifacts(stage *Stage, res *StageResult, store *ArtifactStore, run *PipelineRun) {
	if len(stage.Artifacts) == 0 {
		return
	}

	// Patterns resolve where the stage's commands ran, not where the engine
	// was launched.
	workDir := stage.Dir
	if workDir == "" {
		workDir = e.config.WorkDir
	}
	found, missing := ResolveDeclared(stage, workDir)

	if len(found) > 0 {
		store.Register(stage.Name, found)
		run.Artifacts[stage.Name] = store.List(stage.Name)
		e.emitEvent(EngineEvent{Type: EventArtifactStored, Stage: stage.Name, Data: map[string]any{"paths": found}})
	}

	for _, pattern := range missing {
		res.MissingArtifacts = append(res.MissingArtifacts, pattern)
		e.emitEvent(EngineEvent{Type: EventArtifactMissing, Stage: stage.Name, Data: map[string]any{"pattern": pattern}})
	}
}

// failureReason summarizes a failed command for the stage result.
func failureReason(cr CommandResult) string {
	switch cr.Kind {
	case KindLaunchFailure:
		return fmt.Sprintf("could not start %q: %s", cr.Spec.Display(), cr.Stderr)
	case KindTimeout:
		return fmt.Sprintf("command %q timed out", cr.Spec.Display())
	default:
		return fmt.Sprintf("command %q exited with code %d", cr.Spec.Display(), cr.ExitCode)
	}
}

// emitEvent sends an event to the configured handler, stamping the current
// time if unset.
func (e *Engine) emitEvent(evt EngineEvent) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	if e.config.EventHandler != nil {
		e.config.EventHandler(evt)
	}
}
