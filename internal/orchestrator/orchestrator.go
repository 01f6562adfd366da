// Package orchestrator executes strategy maps against a registry of agents.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/ShayCichocki/conclave/internal/agent"
	"github.com/ShayCichocki/conclave/internal/graph"
	"github.com/ShayCichocki/conclave/internal/template"
	"github.com/ShayCichocki/conclave/internal/tracing"
	"github.com/ShayCichocki/conclave/pkg/models"
)

// Orchestrator runs strategies.
type Orchestrator interface {
	// Run executes strategy for task. The result is returned even when
	// err is non-nil, except for errors detected before any step runs.
	Run(ctx context.Context, task string, strategy *models.StrategyMap) (*models.OrchestrationResult, error)
	// RunTask asks the configured planner for a strategy and runs it.
	RunTask(ctx context.Context, task string) (*models.OrchestrationResult, error)
}

// Compile-time interface checks.
var (
	_ Orchestrator = (*Sequential)(nil)
	_ Orchestrator = (*Parallel)(nil)
)

// New creates the orchestrator for mode.
func New(mode models.Mode, req RequiredConfig, opts ...Option) (Orchestrator, error) {
	switch mode {
	case models.ModeSequential:
		return NewSequential(req, opts...)
	case models.ModeParallel:
		return NewParallel(req, opts...)
	default:
		return nil, fmt.Errorf("unknown execution mode %q", mode)
	}
}

// engine holds what both execution modes share.
type engine struct {
	mode     models.Mode
	registry *agent.Registry
	opts     orchestratorOptions
	cfg      Config
	retry    *agent.RetryExecutor
	logger   *slog.Logger
}

func newEngine(mode models.Mode, req RequiredConfig, opts []Option) (*engine, error) {
	if req.Registry == nil || req.Registry.Len() == 0 {
		return nil, ErrNoAgents
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	cfg := o.config.normalized()
	logger := o.logger.With("component", "orchestrator", "mode", string(mode))

	return &engine{
		mode:     mode,
		registry: req.Registry,
		opts:     o,
		cfg:      cfg,
		retry: agent.NewRetryExecutor(cfg.Retry,
			agent.WithRetryLogger(logger),
			agent.WithSleep(o.retrySleep),
		),
		logger: logger,
	}, nil
}

// plan drafts a strategy for task through the planner.
func (e *engine) plan(ctx context.Context, task string) (*models.StrategyMap, error) {
	if e.opts.planner == nil {
		return nil, ErrNoPlanner
	}
	ctx, sp := tracing.StartSpan(ctx, "orchestrator.plan", nil)
	strategy, err := e.opts.planner.Plan(ctx, task)
	tracing.EndSpan(sp, err)
	if err != nil {
		return nil, err
	}
	return strategy, nil
}

// run is the mutable state of one orchestration. Only the driver
// goroutine touches it.
type run struct {
	id       string
	task     string
	strategy *models.StrategyMap
	graph    *graph.DependencyGraph
	context  *Context
	ladder   *ladder
	throttle *dispatchThrottle
	records  map[string]*models.StepRecord
	result   *models.OrchestrationResult
	started  time.Time
	span     *tracing.Span
}

// begin validates strategy, builds its graph and emits run_started.
// Nothing has executed when it returns an error.
func (e *engine) begin(ctx context.Context, task string, strategy *models.StrategyMap) (context.Context, *run, error) {
	if strategy == nil {
		return ctx, nil, models.ErrEmptyStrategy
	}
	strategy = strategy.Clone()
	g, err := e.buildGraph(strategy)
	if err != nil {
		return ctx, nil, err
	}

	id := uuid.New().String()
	ctx, sp := tracing.StartSpan(ctx, "orchestrator.run", map[string]string{
		"run_id": id,
		"mode":   string(e.mode),
	})
	sp.SetInt("steps", len(strategy.Steps))

	r := &run{
		id:       id,
		task:     task,
		strategy: strategy,
		graph:    g,
		context:  NewContext(),
		ladder:   newLadder(e.cfg),
		throttle: e.newThrottle(),
		records:  make(map[string]*models.StepRecord),
		result: &models.OrchestrationResult{
			RunID:  id,
			Status: models.RunStatusRunning,
		},
		started: e.opts.now(),
		span:    sp,
	}
	e.logger.Info("run started", "run_id", id, "steps", len(strategy.Steps))
	e.emit(OrchestratorEvent{Type: EventRunStarted, RunID: id, Steps: strategy.IDs()})
	return ctx, r, nil
}

func (e *engine) buildGraph(strategy *models.StrategyMap) (*graph.DependencyGraph, error) {
	inputs := make([]string, 0, len(e.opts.inputs))
	for k := range e.opts.inputs {
		inputs = append(inputs, k)
	}
	return graph.Build(strategy,
		graph.WithInputs(inputs...),
		graph.WithDebugLog(func(format string, args ...any) {
			e.logger.Debug(fmt.Sprintf(format, args...))
		}),
	)
}

func (e *engine) emit(ev OrchestratorEvent) {
	if e.opts.events != nil {
		e.opts.events.Emit(ev)
	}
}

// record returns the record for step, creating it if needed.
func (r *run) record(step models.StrategyStep) *models.StepRecord {
	rec, ok := r.records[step.ID]
	if !ok {
		rec = &models.StepRecord{StepID: step.ID, Agent: step.Agent, Status: models.StepStatusPending}
		r.records[step.ID] = rec
	}
	return rec
}

// stepJob is everything a step goroutine needs. It never references the
// live Context.
type stepJob struct {
	step   models.StrategyStep
	agent  agent.Agent
	prompt string
}

type stepResult struct {
	stepID   string
	output   string
	attempts int
	err      error
	duration time.Duration
}

// prepare resolves the agent and renders the step's prompt on the driver.
func (e *engine) prepare(ctx context.Context, r *run, step models.StrategyStep, previous string) (stepJob, error) {
	data := make(map[string]any, len(e.opts.inputs)+r.context.Len()+2)
	for k, v := range e.opts.inputs {
		data[k] = v
	}
	for k, v := range r.context.templateData() {
		data[k] = v
	}
	data[template.BuiltinTask] = r.task
	data[template.BuiltinPreviousOutput] = template.Value(previous)

	var missing []string
	for _, name := range template.ExtractVariables(step.Intent) {
		if template.IsBuiltin(name) {
			continue
		}
		if _, ok := data[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return stepJob{}, &UnresolvedReferenceError{StepID: step.ID, Names: missing}
	}

	a, err := e.resolveAgent(step)
	if err != nil {
		return stepJob{}, err
	}
	r.record(step).Agent = a.Name()
	if !a.IsAvailable(ctx) {
		return stepJob{}, &agent.ExecutionError{Agent: a.Name(), Err: agent.ErrUnavailable}
	}

	prompt, err := template.Render(step.Intent, data)
	if err != nil {
		return stepJob{}, err
	}
	return stepJob{step: step, agent: a, prompt: prompt}, nil
}

// resolveAgent returns the named agent, or for an unassigned step the
// first agent whose expertise matches a word of the description. With no
// match the first registered agent is used.
func (e *engine) resolveAgent(step models.StrategyStep) (agent.Agent, error) {
	if step.Agent != "" {
		return e.registry.Get(step.Agent)
	}
	words := strings.FieldsFunc(step.Description, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-' && r != '_'
	})
	if matches := e.registry.FindByExpertise(words...); len(matches) > 0 {
		e.logger.Debug("assigned by expertise", "step", step.ID, "agent", matches[0].Name())
		return matches[0], nil
	}
	all := e.registry.All()
	if len(all) == 0 {
		return nil, ErrNoAgents
	}
	return all[0], nil
}

// execute invokes the agent for one step. It is safe to call from any
// goroutine.
func (e *engine) execute(ctx context.Context, runID string, job stepJob) stepResult {
	start := e.opts.now()
	ctx, sp := tracing.StartSpan(ctx, "orchestrator.step", map[string]string{
		"run_id": runID,
		"step":   job.step.ID,
		"agent":  job.agent.Name(),
	})

	stepCtx := ctx
	cancel := func() {}
	if e.cfg.StepTimeout > 0 {
		stepCtx, cancel = context.WithTimeout(ctx, e.cfg.StepTimeout)
	}
	out, attempts, err := e.retry.ExecuteWithAttempts(stepCtx, job.agent.Execute, job.prompt, e.cfg.Retry.MaxRetries)
	if err != nil && ctx.Err() == nil && errors.Is(stepCtx.Err(), context.DeadlineExceeded) {
		err = &StepTimeoutError{StepID: job.step.ID, Timeout: e.cfg.StepTimeout.String()}
	}
	cancel()

	sp.SetInt("attempts", attempts)
	tracing.EndSpan(sp, err)
	return stepResult{
		stepID:   job.step.ID,
		output:   out,
		attempts: attempts,
		err:      err,
		duration: e.opts.now().Sub(start),
	}
}

// effectiveRung degrades redesign rungs to a retry when no planner is set.
func (e *engine) effectiveRung(stepID string, rung Rung) Rung {
	if (rung == RungTactical || rung == RungFull) && e.opts.planner == nil {
		e.logger.Warn("no planner configured, retrying instead of redesign", "step", stepID, "rung", rung.String())
		return RungRetry
	}
	return rung
}

// redesign replaces r.strategy through the planner. It returns false when
// the planner could not produce a usable strategy; the caller then retries
// the failed step instead.
func (e *engine) redesign(ctx context.Context, r *run, rung Rung, stepID string, cause error) bool {
	kind := RedesignTactical
	if rung == RungFull {
		kind = RedesignFull
	}

	var completed []string
	for _, s := range r.strategy.Steps {
		if rec, ok := r.records[s.ID]; ok && rec.Status == models.StepStatusCompleted {
			completed = append(completed, s.ID)
		}
	}
	req := RedesignRequest{
		Kind:       kind,
		Task:       r.task,
		Strategy:   r.strategy.Clone(),
		Completed:  completed,
		FailedStep: stepID,
		Failure:    cause,
		Outputs:    r.context.Outputs(),
	}

	ctx, sp := tracing.StartSpan(ctx, "orchestrator.redesign", map[string]string{
		"run_id": r.id,
		"kind":   string(kind),
		"step":   stepID,
	})
	proposed, err := e.opts.planner.Redesign(ctx, req)
	tracing.EndSpan(sp, err)
	if err != nil {
		e.logger.Warn("redesign failed, retrying step", "run_id", r.id, "step", stepID, "kind", kind, "error", err)
		return false
	}

	next := &models.StrategyMap{Goal: r.strategy.Goal}
	if proposed.Goal != "" {
		next.Goal = proposed.Goal
	}
	if kind == RedesignTactical {
		for _, id := range completed {
			s, _ := r.strategy.Step(id)
			next.Steps = append(next.Steps, s)
		}
	}
	next.Steps = append(next.Steps, proposed.Steps...)

	g, err := e.buildGraph(next)
	if err != nil {
		e.logger.Warn("redesigned strategy rejected, retrying step", "run_id", r.id, "step", stepID, "kind", kind, "error", err)
		return false
	}

	r.strategy = next
	r.graph = g
	if kind == RedesignFull {
		r.context.Reset()
		r.records = make(map[string]*models.StepRecord)
	} else {
		for _, id := range completed {
			g.Complete(id)
		}
	}
	e.logger.Info("strategy redesigned", "run_id", r.id, "kind", kind, "steps", len(next.Steps))
	return true
}

// commit stores a successful step's output.
func (e *engine) commit(r *run, res stepResult) error {
	step, _ := r.strategy.Step(res.stepID)
	rec := r.record(step)
	rec.Attempts += res.attempts
	if err := r.context.Commit(step, res.output); err != nil {
		return err
	}
	rec.Status = models.StepStatusCompleted
	rec.Output = res.output
	rec.Error = ""
	e.logger.Info("step completed", "run_id", r.id, "step", step.ID, "duration", res.duration)
	e.emit(OrchestratorEvent{
		Type:     EventStepCompleted,
		RunID:    r.id,
		StepID:   step.ID,
		Agent:    rec.Agent,
		Attempt:  rec.Attempts,
		Duration: res.duration,
	})
	return nil
}

// fail records a step failure and consults the ladder.
func (e *engine) fail(r *run, stepID string, attempts int, cause error) (Rung, error) {
	step, _ := r.strategy.Step(stepID)
	rec := r.record(step)
	rec.Attempts += attempts
	rec.Error = cause.Error()

	rung, err := r.ladder.onFailure(stepID, cause)
	r.result.RedesignsTriggered = r.ladder.escalations()
	e.logger.Warn("step failed", "run_id", r.id, "step", stepID, "failures", r.ladder.attempts(stepID), "error", cause)
	e.emit(OrchestratorEvent{
		Type:    EventStepFailed,
		RunID:   r.id,
		StepID:  stepID,
		Agent:   rec.Agent,
		Attempt: r.ladder.attempts(stepID),
		Error:   cause,
	})
	if err != nil {
		return RungNone, err
	}

	rung = e.effectiveRung(stepID, rung)
	e.emit(OrchestratorEvent{Type: EventRemediation, RunID: r.id, StepID: stepID, Rung: rung})
	return rung, nil
}

func (e *engine) markFailed(r *run, stepID string) {
	step, _ := r.strategy.Step(stepID)
	r.record(step).Status = models.StepStatusFailed
}

func (e *engine) markSkipped(r *run, stepID string) {
	step, _ := r.strategy.Step(stepID)
	rec := r.record(step)
	if rec.Status == models.StepStatusCompleted || rec.Status == models.StepStatusFailed {
		return
	}
	rec.Status = models.StepStatusSkipped
	e.emit(OrchestratorEvent{Type: EventStepSkipped, RunID: r.id, StepID: stepID})
}

// finish fills in the result from the run state and ends the run.
func (e *engine) finish(r *run, status models.RunStatus, runErr error) *models.OrchestrationResult {
	res := r.result
	res.Status = status
	res.Steps = res.Steps[:0]
	res.Failed, res.Skipped = nil, nil
	res.StepsExecuted, res.StepsSkipped = 0, 0

	for _, s := range r.strategy.Steps {
		rec := *r.record(s)
		switch rec.Status {
		case models.StepStatusCompleted:
			res.StepsExecuted++
		case models.StepStatusFailed:
			res.Failed = append(res.Failed, s.ID)
		default:
			rec.Status = models.StepStatusSkipped
			res.Skipped = append(res.Skipped, s.ID)
			res.StepsSkipped++
		}
		res.Steps = append(res.Steps, rec)
		if out, ok := r.context.Get(s.DefaultOutputKey()); ok {
			res.FinalOutput = out
		}
	}
	res.Context = r.context.Snapshot()
	res.RedesignsTriggered = r.ladder.escalations()
	res.Duration = e.opts.now().Sub(r.started)

	r.span.SetInt("steps_executed", res.StepsExecuted)
	r.span.SetInt("steps_skipped", res.StepsSkipped)
	r.span.WithAttributes(map[string]string{"status": string(status)})
	tracing.EndSpan(r.span, runErr)

	attrs := []any{
		"run_id", r.id,
		"status", status,
		"executed", res.StepsExecuted,
		"skipped", res.StepsSkipped,
		"redesigns", res.RedesignsTriggered,
		"duration", res.Duration,
	}
	if runErr != nil {
		e.logger.Error("run finished", append(attrs, "error", runErr)...)
	} else {
		e.logger.Info("run finished", attrs...)
	}
	e.emit(OrchestratorEvent{Type: EventRunDone, RunID: r.id, Message: string(status), Error: runErr, Duration: res.Duration})
	return res
}

// cancelled reports whether err stems from the run's own context.
func cancelled(ctx context.Context, err error) bool {
	return ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || err == ctx.Err())
}

func (e *engine) newThrottle() *dispatchThrottle {
	t := newDispatchThrottle(e.cfg.MinStepInterval, e.opts.now)
	t.gate = e.opts.gate
	return t
}
