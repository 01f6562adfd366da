package orchestrator

import (
	"context"
	"log/slog"
	"time"

	"github.com/ShayCichocki/conclave/internal/agent"
	"github.com/ShayCichocki/conclave/internal/logging"
)

// RequiredConfig contains the minimal required configuration for an orchestrator.
type RequiredConfig struct {
	// Registry resolves the agents named by strategy steps.
	Registry *agent.Registry
}

// Option configures an orchestrator. Use With* functions to create Options.
type Option func(*orchestratorOptions)

// orchestratorOptions holds all optional configuration.
type orchestratorOptions struct {
	config  Config
	planner Planner
	logger  *slog.Logger
	events  *EventEmitter
	inputs  map[string]any
	gate    func(ctx context.Context) error

	// Injectable for testing.
	retrySleep func(ctx context.Context, d time.Duration) error
	now        func() time.Time
}

func defaultOptions() orchestratorOptions {
	return orchestratorOptions{
		config: DefaultConfig(),
		logger: logging.Discard(),
		inputs: make(map[string]any),
		now:    time.Now,
	}
}

// WithConfig replaces the whole configuration.
func WithConfig(c Config) Option {
	return func(o *orchestratorOptions) { o.config = c }
}

// WithMaxStepRemediations sets the per-step failure budget.
func WithMaxStepRemediations(n int) Option {
	return func(o *orchestratorOptions) { o.config.MaxStepRemediations = n }
}

// WithMaxTotalRedesigns sets the run-wide escalation budget.
func WithMaxTotalRedesigns(n int) Option {
	return func(o *orchestratorOptions) { o.config.MaxTotalRedesigns = n }
}

// WithMinStepInterval sets the minimum delay between step dispatches.
func WithMinStepInterval(d time.Duration) Option {
	return func(o *orchestratorOptions) { o.config.MinStepInterval = d }
}

// WithMaxConcurrentTasks bounds in-flight steps in parallel mode.
func WithMaxConcurrentTasks(n int) Option {
	return func(o *orchestratorOptions) { o.config.MaxConcurrentTasks = n }
}

// WithStepTimeout bounds each step execution.
func WithStepTimeout(d time.Duration) Option {
	return func(o *orchestratorOptions) { o.config.StepTimeout = d }
}

// WithRetryPolicy sets the transient-error retry policy.
func WithRetryPolicy(p agent.RetryPolicy) Option {
	return func(o *orchestratorOptions) { o.config.Retry = p }
}

// WithPlanner enables the redesign rungs of the remediation ladder.
func WithPlanner(p Planner) Option {
	return func(o *orchestratorOptions) { o.planner = p }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *orchestratorOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithEvents sets the emitter progress events are sent to.
func WithEvents(e *EventEmitter) Option {
	return func(o *orchestratorOptions) { o.events = e }
}

// WithInputs supplies extra named values templates may reference.
func WithInputs(inputs map[string]any) Option {
	return func(o *orchestratorOptions) {
		for k, v := range inputs {
			o.inputs[k] = v
		}
	}
}

// WithDispatchGate installs a check run before every step dispatch. It
// may block, for example while a run is paused; an error stops dispatching
// as if the run had been cancelled.
func WithDispatchGate(gate func(ctx context.Context) error) Option {
	return func(o *orchestratorOptions) { o.gate = gate }
}

// WithRetrySleep replaces the sleep between transient retries.
func WithRetrySleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(o *orchestratorOptions) { o.retrySleep = fn }
}
