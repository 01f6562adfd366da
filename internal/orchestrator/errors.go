package orchestrator

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoAgents is returned when a run starts with an empty registry.
	ErrNoAgents = errors.New("no agents registered")
	// ErrContextKeyOwned is returned when a step commits a key another step owns.
	ErrContextKeyOwned = errors.New("context key owned by another step")
	// ErrNoPlanner is returned by RunTask when no planner is configured.
	ErrNoPlanner = errors.New("no planner configured")
)

// MaxStepRemediationsExceeded is returned when one step has failed as many
// times as the per-step remediation budget allows.
type MaxStepRemediationsExceeded struct {
	StepID   string
	Attempts int
	Err      error
}

func (e *MaxStepRemediationsExceeded) Error() string {
	return fmt.Sprintf("step %s failed %d times, remediation budget exhausted: %v", e.StepID, e.Attempts, e.Err)
}

func (e *MaxStepRemediationsExceeded) Unwrap() error { return e.Err }

// MaxTotalRedesignsExceeded is returned when the run-wide escalation budget is spent.
type MaxTotalRedesignsExceeded struct {
	Limit  int
	StepID string
	Err    error
}

func (e *MaxTotalRedesignsExceeded) Error() string {
	return fmt.Sprintf("run exceeded %d total redesigns (last failure in step %s): %v", e.Limit, e.StepID, e.Err)
}

func (e *MaxTotalRedesignsExceeded) Unwrap() error { return e.Err }

// UnresolvedReferenceError means a step's template names a value that
// neither a step, a run input, nor a builtin provides.
type UnresolvedReferenceError struct {
	StepID string
	Names  []string
}

func (e *UnresolvedReferenceError) Error() string {
	return fmt.Sprintf("step %s references unknown values: %s", e.StepID, strings.Join(e.Names, ", "))
}

// StepTimeoutError means a step exceeded the configured step timeout.
type StepTimeoutError struct {
	StepID  string
	Timeout string
}

func (e *StepTimeoutError) Error() string {
	return fmt.Sprintf("step %s timed out after %s", e.StepID, e.Timeout)
}
