package orchestrator

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLadder_ClimbsPerStep(t *testing.T) {
	l := newLadder(Config{MaxStepRemediations: 4, MaxTotalRedesigns: 10})
	cause := errors.New("x")

	expected := []Rung{RungRetry, RungTactical, RungFull}
	for i, want := range expected {
		rung, err := l.onFailure("a", cause)
		require.NoError(t, err, "failure %d", i+1)
		assert.Equal(t, want, rung)
	}

	_, err := l.onFailure("a", cause)
	var exhausted *MaxStepRemediationsExceeded
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 4, exhausted.Attempts)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, 4, l.attempts("a"))
	assert.Equal(t, 3, l.escalations())
}

func TestLadder_StepsClimbIndependently(t *testing.T) {
	l := newLadder(DefaultConfig())

	rung, err := l.onFailure("a", errors.New("x"))
	require.NoError(t, err)
	assert.Equal(t, RungRetry, rung)

	rung, err = l.onFailure("b", errors.New("y"))
	require.NoError(t, err)
	assert.Equal(t, RungRetry, rung)

	rung, err = l.onFailure("a", errors.New("x"))
	require.NoError(t, err)
	assert.Equal(t, RungTactical, rung)
	assert.Equal(t, 3, l.escalations())
}

func TestLadder_GlobalBudget(t *testing.T) {
	l := newLadder(Config{MaxStepRemediations: 3, MaxTotalRedesigns: 2})

	_, err := l.onFailure("a", errors.New("x"))
	require.NoError(t, err)
	_, err = l.onFailure("b", errors.New("x"))
	require.NoError(t, err)

	_, err = l.onFailure("c", errors.New("x"))
	var total *MaxTotalRedesignsExceeded
	require.ErrorAs(t, err, &total)
	assert.Equal(t, 2, total.Limit)
	assert.Equal(t, "c", total.StepID)
}

func TestLadder_StepBudgetCheckedFirst(t *testing.T) {
	l := newLadder(Config{MaxStepRemediations: 1, MaxTotalRedesigns: 1})
	l.total = 1

	_, err := l.onFailure("a", errors.New("x"))
	var exhausted *MaxStepRemediationsExceeded
	assert.ErrorAs(t, err, &exhausted)
}

func TestRung_String(t *testing.T) {
	assert.Equal(t, "none", RungNone.String())
	assert.Equal(t, "retry", RungRetry.String())
	assert.Equal(t, "tactical_redesign", RungTactical.String())
	assert.Equal(t, "full_regeneration", RungFull.String())
	assert.Equal(t, "unknown", Rung(42).String())
}

func TestConfig_Normalized(t *testing.T) {
	c := Config{MaxStepRemediations: 0, MaxTotalRedesigns: -1, MaxConcurrentTasks: -3}
	c.Retry.MaxRetries = -1
	n := c.normalized()

	assert.Equal(t, DefaultMaxStepRemediations, n.MaxStepRemediations)
	assert.Equal(t, DefaultMaxTotalRedesigns, n.MaxTotalRedesigns)
	assert.Zero(t, n.MaxConcurrentTasks)
	assert.Zero(t, n.Retry.MaxRetries)
}
