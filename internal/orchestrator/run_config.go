package orchestrator

import (
	"time"

	"github.com/ShayCichocki/conclave/internal/agent"
)

// Default remediation budgets.
const (
	DefaultMaxStepRemediations = 3
	DefaultMaxTotalRedesigns   = 10
)

// Config holds the tunables shared by both orchestrators.
type Config struct {
	// MaxStepRemediations is how many times one step may fail before the
	// run gives up on it.
	MaxStepRemediations int
	// MaxTotalRedesigns bounds escalations across the whole run.
	MaxTotalRedesigns int
	// MinStepInterval is the minimum delay between two step dispatches.
	MinStepInterval time.Duration
	// MaxConcurrentTasks bounds in-flight steps in parallel mode; 0 is unlimited.
	MaxConcurrentTasks int
	// StepTimeout bounds one step execution including its retries; 0 is none.
	StepTimeout time.Duration
	// Retry is the transient-error policy applied to every agent call.
	Retry agent.RetryPolicy
}

// DefaultConfig returns the configuration used when none is supplied.
func DefaultConfig() Config {
	return Config{
		MaxStepRemediations: DefaultMaxStepRemediations,
		MaxTotalRedesigns:   DefaultMaxTotalRedesigns,
		Retry:               agent.DefaultRetryPolicy(),
	}
}

// normalized fills unset budgets with their defaults.
func (c Config) normalized() Config {
	if c.MaxStepRemediations <= 0 {
		c.MaxStepRemediations = DefaultMaxStepRemediations
	}
	if c.MaxTotalRedesigns <= 0 {
		c.MaxTotalRedesigns = DefaultMaxTotalRedesigns
	}
	if c.MaxConcurrentTasks < 0 {
		c.MaxConcurrentTasks = 0
	}
	if c.Retry.MaxRetries < 0 {
		c.Retry.MaxRetries = 0
	}
	return c
}
