package orchestrator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShayCichocki/conclave/internal/agent"
	"github.com/ShayCichocki/conclave/pkg/models"
)

const plannedYAML = "```yaml\n" + `goal: write a post
steps:
  - id: draft
    description: Draft the post
    agent: writer
    intent: "Draft: {{ task }}"
  - id: edit
    description: Edit the draft
    agent: editor
    intent: "Edit: {{ draft_output }}"
` + "```"

func testRetry() *agent.RetryExecutor {
	return agent.NewRetryExecutor(agent.DefaultRetryPolicy(), agent.WithSleep(noSleep))
}

func TestAgentPlanner_Plan(t *testing.T) {
	rec := &recorder{}
	planner := agent.NewFunc("planner", func(_ context.Context, in string) (string, error) {
		rec.add(in)
		return plannedYAML, nil
	})
	writer := agent.NewFunc("writer", nil, agent.WithExpertise("writing"))
	reg := newRegistry(t, planner, writer)

	p := NewAgentPlanner(planner, reg, testRetry())
	strategy, err := p.Plan(context.Background(), "a post about Go")
	require.NoError(t, err)

	assert.Equal(t, "write a post", strategy.Goal)
	assert.Equal(t, []string{"draft", "edit"}, strategy.IDs())

	prompt := rec.all()[0]
	assert.Contains(t, prompt, "a post about Go")
	assert.Contains(t, prompt, "- writer (writing)")
}

func TestAgentPlanner_RetriesUnparseableOutput(t *testing.T) {
	rec := &recorder{}
	planner := agent.NewFunc("planner", func(_ context.Context, in string) (string, error) {
		if rec.add(in) == 1 {
			return "I think you should write a post.", nil
		}
		return plannedYAML, nil
	})

	p := NewAgentPlanner(planner, nil, testRetry())
	strategy, err := p.Plan(context.Background(), "task")
	require.NoError(t, err)
	assert.Len(t, strategy.Steps, 2)
	assert.Equal(t, 2, rec.calls())
}

func TestAgentPlanner_GivesUpAfterRetries(t *testing.T) {
	rec := &recorder{}
	planner := agent.NewFunc("planner", func(_ context.Context, in string) (string, error) {
		rec.add(in)
		return "steps: [", nil
	})

	p := NewAgentPlanner(planner, nil, testRetry())
	_, err := p.Plan(context.Background(), "task")

	var parseErr *agent.ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Equal(t, agent.DefaultRetryPolicy().MaxRetries+1, rec.calls())
}

func TestAgentPlanner_AgentErrorNotRetried(t *testing.T) {
	rec := &recorder{}
	planner := agent.NewFunc("planner", func(_ context.Context, in string) (string, error) {
		rec.add(in)
		return "", errors.New("refused")
	})

	p := NewAgentPlanner(planner, nil, testRetry())
	_, err := p.Plan(context.Background(), "task")
	assert.Error(t, err)
	assert.Equal(t, 1, rec.calls())
}

func TestAgentPlanner_TacticalRedesignPrompt(t *testing.T) {
	rec := &recorder{}
	planner := agent.NewFunc("planner", func(_ context.Context, in string) (string, error) {
		rec.add(in)
		return "steps:\n  - id: edit2\n    agent: editor\n    intent: polish {{ draft_output }}\n", nil
	})

	p := NewAgentPlanner(planner, nil, testRetry())
	current, err := models.ParseStrategy([]byte(stripFences(plannedYAML)))
	require.NoError(t, err)

	replacement, err := p.Redesign(context.Background(), RedesignRequest{
		Kind:       RedesignTactical,
		Task:       "a post",
		Strategy:   current,
		Completed:  []string{"draft"},
		FailedStep: "edit",
		Failure:    errors.New("editor crashed"),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"edit2"}, replacement.IDs())

	prompt := rec.all()[0]
	assert.Contains(t, prompt, "draft -> draft_output")
	assert.Contains(t, prompt, "editor crashed")
	assert.Contains(t, prompt, "id: edit")
}

func TestRedesignRequest_Remaining(t *testing.T) {
	req := RedesignRequest{
		Strategy:  strategyOf(step("a", "w", ""), step("b", "w", ""), step("c", "w", "")),
		Completed: []string{"a", "c"},
	}
	remaining := req.Remaining()
	require.Len(t, remaining, 1)
	assert.Equal(t, "b", remaining[0].ID)

	assert.Empty(t, RedesignRequest{}.Remaining())
}

func TestStripFences(t *testing.T) {
	assert.Equal(t, "a: 1", stripFences("```yaml\na: 1\n```"))
	assert.Equal(t, "a: 1", stripFences("  a: 1  "))
	assert.Equal(t, "a: 1", stripFences("```\na: 1\n```\n"))
}
