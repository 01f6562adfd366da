package orchestrator

import (
	"context"

	"github.com/ShayCichocki/conclave/pkg/models"
)

// Sequential runs strategy steps one at a time in listed order.
// previous_output is the output of the step executed just before.
type Sequential struct {
	*engine
}

// NewSequential creates a sequential orchestrator.
func NewSequential(req RequiredConfig, opts ...Option) (*Sequential, error) {
	e, err := newEngine(models.ModeSequential, req, opts)
	if err != nil {
		return nil, err
	}
	return &Sequential{engine: e}, nil
}

// RunTask plans a strategy for task and runs it.
func (s *Sequential) RunTask(ctx context.Context, task string) (*models.OrchestrationResult, error) {
	strategy, err := s.plan(ctx, task)
	if err != nil {
		return nil, err
	}
	return s.Run(ctx, task, strategy)
}

// Run executes strategy step by step.
func (s *Sequential) Run(ctx context.Context, task string, strategy *models.StrategyMap) (*models.OrchestrationResult, error) {
	ctx, r, err := s.begin(ctx, task, strategy)
	if err != nil {
		return nil, err
	}

	cursor := 0
	previous := ""
	for cursor < len(r.strategy.Steps) {
		if err := r.throttle.wait(ctx); err != nil {
			return s.finish(r, models.RunStatusCancelled, err), err
		}

		step := r.strategy.Steps[cursor]
		r.record(step).Status = models.StepStatusRunning
		s.emit(OrchestratorEvent{Type: EventStepStarted, RunID: r.id, StepID: step.ID, Agent: step.Agent})

		res := stepResult{stepID: step.ID}
		if job, err := s.prepare(ctx, r, step, previous); err != nil {
			res.err = err
		} else {
			res = s.execute(ctx, r.id, job)
		}

		if res.err == nil {
			if err := s.commit(r, res); err != nil {
				s.markFailed(r, step.ID)
				s.skipFrom(r, cursor+1)
				return s.finish(r, models.RunStatusFailed, err), err
			}
			previous = res.output
			cursor++
			continue
		}

		if cancelled(ctx, res.err) {
			return s.finish(r, models.RunStatusCancelled, ctx.Err()), ctx.Err()
		}

		rung, err := s.fail(r, step.ID, res.attempts, res.err)
		if err != nil {
			s.markFailed(r, step.ID)
			s.skipFrom(r, cursor+1)
			return s.finish(r, models.RunStatusFailed, err), err
		}

		switch rung {
		case RungTactical, RungFull:
			if !s.redesign(ctx, r, rung, step.ID, res.err) {
				continue
			}
			if rung == RungFull {
				cursor, previous = 0, ""
				continue
			}
			cursor = 0
			for cursor < len(r.strategy.Steps) && r.context.Has(r.strategy.Steps[cursor].DefaultOutputKey()) {
				cursor++
			}
		}
	}

	return s.finish(r, models.RunStatusSuccess, nil), nil
}

func (s *Sequential) skipFrom(r *run, from int) {
	for _, step := range r.strategy.Steps[from:] {
		s.markSkipped(r, step.ID)
	}
}
