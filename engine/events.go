// ABOUTME: Engine lifecycle event types emitted during pipeline traversal.
// ABOUTME: Events flow to an optional callback; the engine stamps timestamps on emission.
package engine

import "time"

// EngineEventType identifies the kind of engine lifecycle event.
type EngineEventType string

const (
	EventPipelineStarted   EngineEventType = "pipeline.started"
	EventPipelineCompleted EngineEventType = "pipeline.completed"
	EventPipelineFailed    EngineEventType = "pipeline.failed"
	EventPipelineAborted   EngineEventType = "pipeline.aborted"
	EventStageStarted      EngineEventType = "stage.started"
	EventStageCompleted    EngineEventType = "stage.completed"
	EventStageFailed       EngineEventType = "stage.failed"
	EventStageSkipped      EngineEventType = "stage.skipped"
	EventArtifactStored    EngineEventType = "artifact.registered"
	EventArtifactMissing   EngineEventType = "artifact.missing"
)

// EngineEvent represents a lifecycle event emitted during pipeline execution.
type EngineEvent struct {
	Type      EngineEventType `json:"type"`
	Stage     string          `json:"stage,omitempty"`
	Data      map[string]any  `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}
