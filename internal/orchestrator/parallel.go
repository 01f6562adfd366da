package orchestrator

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"github.com/ShayCichocki/conclave/pkg/models"
)

// Parallel runs strategy steps in dependency waves. Only the driver
// goroutine reads or writes the run Context; step goroutines receive a
// rendered prompt and report back over a channel.
type Parallel struct {
	*engine
}

// NewParallel creates a parallel orchestrator.
func NewParallel(req RequiredConfig, opts ...Option) (*Parallel, error) {
	e, err := newEngine(models.ModeParallel, req, opts)
	if err != nil {
		return nil, err
	}
	return &Parallel{engine: e}, nil
}

// RunTask plans a strategy for task and runs it.
func (p *Parallel) RunTask(ctx context.Context, task string) (*models.OrchestrationResult, error) {
	strategy, err := p.plan(ctx, task)
	if err != nil {
		return nil, err
	}
	return p.Run(ctx, task, strategy)
}

// pendingRedesign is a redesign waiting for in-flight steps to drain.
type pendingRedesign struct {
	rung   Rung
	stepID string
	cause  error
}

// parallelRun is the scheduling state layered over run.
type parallelRun struct {
	*run
	queue    []string
	queued   map[string]bool
	running  map[string]bool
	closed   map[string]bool
	pending  *pendingRedesign
	halt     error
	firstErr error
	stopped  bool
	stopErr  error
}

func (pr *parallelRun) enqueue(ids ...string) {
	for _, id := range ids {
		if pr.queued[id] || pr.running[id] || pr.closed[id] {
			continue
		}
		pr.queued[id] = true
		pr.queue = append(pr.queue, id)
	}
}

func (pr *parallelRun) dequeue(n int) []string {
	batch := append([]string(nil), pr.queue[:n]...)
	pr.queue = pr.queue[n:]
	for _, id := range batch {
		delete(pr.queued, id)
	}
	return batch
}

func (pr *parallelRun) unqueue(id string) {
	if !pr.queued[id] {
		return
	}
	delete(pr.queued, id)
	for i, q := range pr.queue {
		if q == id {
			pr.queue = append(pr.queue[:i], pr.queue[i+1:]...)
			return
		}
	}
}

// dispatching reports whether new steps may be launched.
func (pr *parallelRun) dispatching() bool {
	return pr.pending == nil && pr.halt == nil && !pr.stopped
}

// Run executes strategy in waves.
func (p *Parallel) Run(ctx context.Context, task string, strategy *models.StrategyMap) (*models.OrchestrationResult, error) {
	ctx, base, err := p.begin(ctx, task, strategy)
	if err != nil {
		return nil, err
	}
	pr := &parallelRun{
		run:     base,
		queued:  make(map[string]bool),
		running: make(map[string]bool),
		closed:  make(map[string]bool),
	}
	pr.enqueue(pr.graph.ZeroDependencySteps()...)

	results := make(chan stepResult, len(pr.strategy.Steps))
	var eg errgroup.Group

	for {
		if pr.dispatching() && ctx.Err() != nil {
			pr.stopped = true
		}

		if pr.dispatching() {
			p.dispatch(ctx, pr, &eg, results)
		}

		if len(pr.running) == 0 {
			if pr.pending != nil && pr.halt == nil && !pr.stopped {
				p.applyRedesign(ctx, pr)
				continue
			}
			if pr.dispatching() && len(pr.queue) > 0 {
				continue
			}
			break
		}

		p.apply(ctx, pr, <-results)
	drain:
		for {
			select {
			case res := <-results:
				p.apply(ctx, pr, res)
			default:
				break drain
			}
		}
	}
	_ = eg.Wait()

	switch {
	case pr.stopped:
		err := pr.stopErr
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		if err == nil {
			err = context.Canceled
		}
		return p.finish(pr.run, models.RunStatusCancelled, err), err
	case pr.halt != nil:
		return p.finish(pr.run, models.RunStatusFailed, pr.halt), pr.halt
	case pr.firstErr != nil:
		return p.finish(pr.run, models.RunStatusFailed, pr.firstErr), pr.firstErr
	default:
		return p.finish(pr.run, models.RunStatusSuccess, nil), nil
	}
}

// dispatch launches one wave of ready steps.
func (p *Parallel) dispatch(ctx context.Context, pr *parallelRun, eg *errgroup.Group, results chan<- stepResult) {
	n := availableSlots(p.cfg.MaxConcurrentTasks, len(pr.running), len(pr.queue))
	if n == 0 {
		return
	}

	var wave []string
	batch := pr.dequeue(n)
	for i, id := range batch {
		if err := pr.throttle.wait(ctx); err != nil {
			pr.stopped = true
			pr.stopErr = err
			pr.enqueue(batch[i:]...)
			break
		}
		step, _ := pr.strategy.Step(id)
		pr.record(step).Status = models.StepStatusRunning
		p.emit(OrchestratorEvent{Type: EventStepStarted, RunID: pr.id, StepID: id, Agent: step.Agent})

		job, err := p.prepare(ctx, pr.run, step, p.previousOutput(pr, id))
		if err != nil {
			p.handleFailure(pr, stepResult{stepID: id, err: err})
			if !pr.dispatching() {
				pr.enqueue(batch[i+1:]...)
				break
			}
			continue
		}

		pr.running[id] = true
		wave = append(wave, id)
		runID := pr.id
		eg.Go(func() error {
			results <- p.execute(ctx, runID, job)
			return nil
		})
	}

	if len(wave) > 0 {
		pr.result.Waves = append(pr.result.Waves, wave)
		p.logger.Debug("wave dispatched", "run_id", pr.id, "steps", wave)
		p.emit(OrchestratorEvent{Type: EventWaveDispatched, RunID: pr.id, Steps: wave})
	}
}

// previousOutput is the output of the step's last dependency in strategy
// order, or empty for a step without dependencies.
func (p *Parallel) previousOutput(pr *parallelRun, id string) string {
	deps := pr.graph.Dependencies(id)
	if len(deps) == 0 {
		return ""
	}
	last, _ := pr.strategy.Step(deps[len(deps)-1])
	out, _ := pr.context.Get(last.DefaultOutputKey())
	return out
}

// apply folds one step result into the run state.
func (p *Parallel) apply(ctx context.Context, pr *parallelRun, res stepResult) {
	delete(pr.running, res.stepID)

	if res.err == nil {
		if err := p.commit(pr.run, res); err != nil {
			p.markFailed(pr.run, res.stepID)
			pr.halt = err
			return
		}
		pr.closed[res.stepID] = true
		pr.enqueue(pr.graph.Complete(res.stepID)...)
		return
	}

	if cancelled(ctx, res.err) {
		pr.stopped = true
		step, _ := pr.strategy.Step(res.stepID)
		pr.record(step).Attempts += res.attempts
		return
	}
	p.handleFailure(pr, res)
}

// handleFailure runs the remediation ladder for a failed step.
func (p *Parallel) handleFailure(pr *parallelRun, res stepResult) {
	rung, err := p.fail(pr.run, res.stepID, res.attempts, res.err)
	if err != nil {
		var exhausted *MaxStepRemediationsExceeded
		if !errors.As(err, &exhausted) {
			pr.halt = err
			return
		}
		p.markFailed(pr.run, res.stepID)
		pr.closed[res.stepID] = true
		for _, dep := range pr.graph.TransitiveDependents(res.stepID) {
			pr.unqueue(dep)
			pr.closed[dep] = true
			p.markSkipped(pr.run, dep)
		}
		if pr.firstErr == nil {
			pr.firstErr = err
		}
		return
	}

	switch rung {
	case RungTactical, RungFull:
		if pr.pending == nil {
			pr.pending = &pendingRedesign{rung: rung, stepID: res.stepID, cause: res.err}
			return
		}
		// A redesign already pending will replace this step.
		pr.enqueue(res.stepID)
	default:
		pr.enqueue(res.stepID)
	}
}

// applyRedesign runs a pending redesign once no step is in flight and
// rebuilds the ready queue from the new graph.
func (p *Parallel) applyRedesign(ctx context.Context, pr *parallelRun) {
	pd := pr.pending
	pr.pending = nil

	if !p.redesign(ctx, pr.run, pd.rung, pd.stepID, pd.cause) {
		pr.enqueue(pd.stepID)
		return
	}

	pr.queue = nil
	pr.queued = make(map[string]bool)
	pr.closed = make(map[string]bool)
	pr.firstErr = nil
	for _, s := range pr.strategy.Steps {
		if pr.graph.IsComplete(s.ID) {
			pr.closed[s.ID] = true
		}
	}
	pr.enqueue(pr.graph.Ready()...)
}
