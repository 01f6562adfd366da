// Package orchestrator manages the coordination of agents and workflows.
package orchestrator

import (
	"time"
)

// EventType represents the type of orchestrator event.
type EventType string

const (
	// EventRunStarted indicates a run has begun.
	EventRunStarted EventType = "run_started"
	// EventWaveDispatched indicates a batch of steps was launched together.
	EventWaveDispatched EventType = "wave_dispatched"
	// EventStepStarted indicates a step has started execution.
	EventStepStarted EventType = "step_started"
	// EventStepCompleted indicates a step committed its output.
	EventStepCompleted EventType = "step_completed"
	// EventStepFailed indicates a step attempt failed.
	EventStepFailed EventType = "step_failed"
	// EventStepSkipped indicates a step will never run.
	EventStepSkipped EventType = "step_skipped"
	// EventRemediation indicates the remediation ladder chose a rung.
	EventRemediation EventType = "remediation"
	// EventRunDone indicates the run has finished.
	EventRunDone EventType = "run_done"
)

// OrchestratorEvent represents an event emitted by the orchestrator.
// These events drive CLI progress output.
type OrchestratorEvent struct {
	// Type is the kind of event.
	Type EventType
	// RunID identifies the run.
	RunID string
	// StepID is the ID of the related step, if applicable.
	StepID string
	// Agent is the name of the agent executing the step, if applicable.
	Agent string
	// Steps lists step IDs for wave events.
	Steps []string
	// Rung is the remediation rung for remediation events.
	Rung Rung
	// Attempt is the per-step failure count for failure and remediation events.
	Attempt int
	// Message provides additional context about the event.
	Message string
	// Error contains error details for failure events.
	Error error
	// Timestamp is when the event occurred.
	Timestamp time.Time
	// Duration is the elapsed time of the step or run.
	Duration time.Duration
}
