package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShayCichocki/conclave/internal/agent"
	"github.com/ShayCichocki/conclave/pkg/models"
)

func TestParallel_ChainRunsOneStepPerWave(t *testing.T) {
	p, err := NewParallel(RequiredConfig{Registry: newRegistry(t, echoAgent("w", nil))})
	require.NoError(t, err)

	res, err := p.Run(context.Background(), "t", strategyOf(
		step("a", "w", "a"),
		step("b", "w", "{{ a_output }}"),
		step("c", "w", "{{ b_output }}"),
	))
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"a"}, {"b"}, {"c"}}, res.Waves)
	assert.Equal(t, "out:out:out:a", res.FinalOutput)
	assert.Equal(t, 3, res.StepsExecuted)
}

func TestParallel_Diamond(t *testing.T) {
	rec := &recorder{}
	p, err := NewParallel(RequiredConfig{Registry: newRegistry(t, echoAgent("w", rec))})
	require.NoError(t, err)

	res, err := p.Run(context.Background(), "t", strategyOf(
		step("a", "w", "root"),
		step("b", "w", "left {{ a_output }}"),
		step("c", "w", "right {{ a_output }}"),
		step("d", "w", "join {{ b_output }} + {{ c_output }}"),
	))
	require.NoError(t, err)

	require.Len(t, res.Waves, 3)
	assert.Equal(t, []string{"a"}, res.Waves[0])
	assert.ElementsMatch(t, []string{"b", "c"}, res.Waves[1])
	assert.Equal(t, []string{"d"}, res.Waves[2])

	prompts := rec.all()
	assert.Equal(t, "join out:left out:root + out:right out:root", prompts[len(prompts)-1])
}

func TestParallel_IndependentStepsShareAWave(t *testing.T) {
	p, err := NewParallel(RequiredConfig{Registry: newRegistry(t, echoAgent("w", nil))})
	require.NoError(t, err)

	res, err := p.Run(context.Background(), "t", strategyOf(
		step("a", "w", "1"),
		step("b", "w", "2"),
		step("c", "w", "3"),
	))
	require.NoError(t, err)
	require.Len(t, res.Waves, 1)
	assert.Equal(t, []string{"a", "b", "c"}, res.Waves[0])
}

func TestParallel_MaxConcurrentTasks(t *testing.T) {
	var inFlight, peak atomic.Int32
	slow := agent.NewFunc("slow", func(context.Context, string) (string, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		inFlight.Add(-1)
		return "ok", nil
	})

	p, err := NewParallel(RequiredConfig{Registry: newRegistry(t, slow)}, WithMaxConcurrentTasks(2))
	require.NoError(t, err)

	var steps []models.StrategyStep
	for i := 0; i < 6; i++ {
		steps = append(steps, step(fmt.Sprintf("s%d", i), "slow", "go"))
	}
	res, err := p.Run(context.Background(), "t", strategyOf(steps...))
	require.NoError(t, err)

	assert.Equal(t, 6, res.StepsExecuted)
	assert.LessOrEqual(t, peak.Load(), int32(2))
	for _, wave := range res.Waves {
		assert.LessOrEqual(t, len(wave), 2)
	}
}

func TestParallel_PreviousOutputIsLastDependency(t *testing.T) {
	rec := &recorder{}
	p, err := NewParallel(RequiredConfig{Registry: newRegistry(t, echoAgent("w", rec))})
	require.NoError(t, err)

	_, err = p.Run(context.Background(), "t", strategyOf(
		step("a", "w", "A"),
		step("b", "w", "B"),
		step("c", "w", "{{ b_output }}{{ a_output }}|{{ previous_output }}"),
	))
	require.NoError(t, err)

	prompts := rec.all()
	assert.Equal(t, "out:Bout:A|out:B", prompts[len(prompts)-1])
}

func TestParallel_FailureSkipsTransitiveDependents(t *testing.T) {
	good := &recorder{}
	bad := &recorder{}
	p, err := NewParallel(RequiredConfig{Registry: newRegistry(t, echoAgent("good", good), failingAgent("bad", bad))})
	require.NoError(t, err)

	res, err := p.Run(context.Background(), "t", strategyOf(
		step("a", "bad", "fail"),
		step("b", "good", "{{ a_output }}"),
		step("c", "good", "{{ b_output }}"),
		step("x", "good", "independent"),
		step("y", "good", "{{ x_output }}"),
	))
	require.Error(t, err)

	var exhausted *MaxStepRemediationsExceeded
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, "a", exhausted.StepID)

	assert.Equal(t, models.RunStatusFailed, res.Status)
	assert.Equal(t, []string{"a"}, res.Failed)
	assert.Equal(t, []string{"b", "c"}, res.Skipped)
	assert.Equal(t, 2, res.StepsExecuted)
	for _, prompt := range good.all() {
		assert.False(t, strings.Contains(prompt, "a_output"), "dependent ran with a missing input")
	}
	assert.Equal(t, []string{"independent", "out:independent"}, good.all())
	assert.Equal(t, DefaultMaxStepRemediations, bad.calls())
}

func TestParallel_CancellationAtWaveBoundary(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rec := &recorder{}
	first := agent.NewFunc("first", func(context.Context, string) (string, error) {
		cancel()
		return "done", nil
	})
	p, err := NewParallel(RequiredConfig{Registry: newRegistry(t, first, echoAgent("w", rec))})
	require.NoError(t, err)

	res, err := p.Run(ctx, "t", strategyOf(
		step("a", "first", "go"),
		step("b", "w", "{{ a_output }}"),
	))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, models.RunStatusCancelled, res.Status)
	assert.Zero(t, rec.calls())
	assert.Equal(t, 1, res.StepsExecuted)
	assert.Equal(t, []string{"b"}, res.Skipped)
	assert.Equal(t, "done", res.Context["a_output"])
}

func TestParallel_InFlightStepsObserveCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{}, 2)
	blocker := agent.NewFunc("blocker", func(ctx context.Context, _ string) (string, error) {
		started <- struct{}{}
		<-ctx.Done()
		return "", ctx.Err()
	})
	p, err := NewParallel(RequiredConfig{Registry: newRegistry(t, blocker)})
	require.NoError(t, err)

	go func() {
		<-started
		<-started
		cancel()
	}()

	res, err := p.Run(ctx, "t", strategyOf(step("a", "blocker", "1"), step("b", "blocker", "2")))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, models.RunStatusCancelled, res.Status)
	assert.Zero(t, res.RedesignsTriggered)
	assert.ElementsMatch(t, []string{"a", "b"}, res.Skipped)
}

func TestParallel_RedesignWaitsForRunningSteps(t *testing.T) {
	failedTwice := make(chan struct{})
	var badCalls atomic.Int32
	bad := agent.NewFunc("bad", func(context.Context, string) (string, error) {
		if badCalls.Add(1) == 2 {
			close(failedTwice)
		}
		return "", errors.New("boom")
	})
	var sideDone atomic.Bool
	side := agent.NewFunc("side", func(context.Context, string) (string, error) {
		<-failedTwice
		time.Sleep(20 * time.Millisecond)
		sideDone.Store(true)
		return "side done", nil
	})

	var sawSideDone bool
	planner := &fakePlanner{
		redesign: func(RedesignRequest) (*models.StrategyMap, error) {
			sawSideDone = sideDone.Load()
			return strategyOf(step("b2", "good", "fixed {{ a_output }}")), nil
		},
	}
	p, err := NewParallel(
		RequiredConfig{Registry: newRegistry(t, echoAgent("good", nil), bad, side)},
		WithPlanner(planner),
	)
	require.NoError(t, err)

	res, err := p.Run(context.Background(), "t", strategyOf(
		step("a", "good", "start"),
		step("b", "bad", "continue {{ a_output }}"),
		step("c", "side", "independent"),
	))
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusSuccess, res.Status)
	assert.True(t, sawSideDone, "redesign ran while c was still in flight")
	require.Len(t, planner.requests, 1)
	assert.Equal(t, []string{"a", "c"}, planner.requests[0].Completed)
	assert.Equal(t, "b", planner.requests[0].FailedStep)
	assert.Equal(t, [][]string{{"a", "c"}, {"b"}, {"b"}, {"b2"}}, res.Waves)
	assert.Equal(t, "side done", res.Context["c_output"])
	assert.Equal(t, "out:fixed out:start", res.FinalOutput)
}
