package models

import "time"

// RunStatus is the terminal state of an orchestration run.
type RunStatus string

const (
	// RunStatusRunning indicates the run has not finished.
	RunStatusRunning RunStatus = "running"
	// RunStatusSuccess indicates every step completed.
	RunStatusSuccess RunStatus = "success"
	// RunStatusFailed indicates a step or budget failure ended the run.
	RunStatusFailed RunStatus = "failed"
	// RunStatusCancelled indicates the caller cancelled the run.
	RunStatusCancelled RunStatus = "cancelled"
)

// Valid returns true if the status is a known value.
func (s RunStatus) Valid() bool {
	switch s {
	case RunStatusRunning, RunStatusSuccess, RunStatusFailed, RunStatusCancelled:
		return true
	default:
		return false
	}
}

// StepStatus represents the current state of a step within a run.
type StepStatus string

const (
	// StepStatusPending indicates the step has not started.
	StepStatusPending StepStatus = "pending"
	// StepStatusRunning indicates the step is executing.
	StepStatusRunning StepStatus = "running"
	// StepStatusCompleted indicates the step committed its output.
	StepStatusCompleted StepStatus = "completed"
	// StepStatusFailed indicates the step exhausted its remediation budget.
	StepStatusFailed StepStatus = "failed"
	// StepStatusSkipped indicates the step never ran because an input was missing.
	StepStatusSkipped StepStatus = "skipped"
)

// Valid returns true if the status is a known value.
func (s StepStatus) Valid() bool {
	switch s {
	case StepStatusPending, StepStatusRunning, StepStatusCompleted, StepStatusFailed, StepStatusSkipped:
		return true
	default:
		return false
	}
}

// StepRecord summarises what happened to one step.
type StepRecord struct {
	StepID   string     `json:"step_id"`
	Agent    string     `json:"agent"`
	Status   StepStatus `json:"status"`
	Attempts int        `json:"attempts"`
	Output   string     `json:"output,omitempty"`
	Error    string     `json:"error,omitempty"`
}

// OrchestrationResult is the outcome of running a strategy.
type OrchestrationResult struct {
	// RunID identifies the run in logs and the state database.
	RunID string `json:"run_id"`
	// Status is the terminal state.
	Status RunStatus `json:"status"`
	// StepsExecuted counts steps that completed successfully.
	StepsExecuted int `json:"steps_executed"`
	// StepsSkipped counts steps that never ran.
	StepsSkipped int `json:"steps_skipped"`
	// RedesignsTriggered counts remediation escalations across the run.
	RedesignsTriggered int `json:"redesigns_triggered"`
	// FinalOutput is the output of the last step in strategy order.
	FinalOutput string `json:"final_output"`
	// Context is a snapshot of every committed output.
	Context map[string]any `json:"context"`
	// Waves lists the step IDs dispatched together, in dispatch order.
	Waves [][]string `json:"waves,omitempty"`
	// Failed lists steps that exhausted their remediation budget.
	Failed []string `json:"failed,omitempty"`
	// Skipped lists steps that were never executed.
	Skipped []string `json:"skipped,omitempty"`
	// Steps records the final state of every step, in strategy order.
	Steps []StepRecord `json:"steps,omitempty"`
	// Duration is the wall time of the run.
	Duration time.Duration `json:"duration"`
}

// Succeeded reports whether the run completed every step.
func (r *OrchestrationResult) Succeeded() bool {
	return r != nil && r.Status == RunStatusSuccess
}
