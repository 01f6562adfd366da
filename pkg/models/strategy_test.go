package models

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStrategyStep_OutputKeys(t *testing.T) {
	tests := []struct {
		name     string
		step     StrategyStep
		resolved string
		keys     []string
	}{
		{"default key", StrategyStep{ID: "research"}, "research_output", []string{"research_output"}},
		{"custom key", StrategyStep{ID: "research", OutputKey: "findings"}, "findings", []string{"research_output", "findings"}},
		{"custom equals default", StrategyStep{ID: "a", OutputKey: "a_output"}, "a_output", []string{"a_output"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.resolved, tt.step.ResolvedOutputKey())
			assert.Equal(t, tt.keys, tt.step.OutputKeys())
		})
	}
}

func TestStrategyMap_Validate(t *testing.T) {
	tests := []struct {
		name    string
		m       *StrategyMap
		wantErr string
	}{
		{"nil map", nil, "no steps"},
		{"empty", &StrategyMap{}, "no steps"},
		{"missing id", &StrategyMap{Steps: []StrategyStep{{Intent: "x"}}}, "missing id"},
		{
			"duplicate id",
			&StrategyMap{Steps: []StrategyStep{{ID: "a"}, {ID: "a"}}},
			"duplicate step id",
		},
		{
			"custom key collides with default key",
			&StrategyMap{Steps: []StrategyStep{{ID: "a", OutputKey: "b_output"}, {ID: "b"}}},
			"output key",
		},
		{
			"valid",
			&StrategyMap{Steps: []StrategyStep{{ID: "a"}, {ID: "b", OutputKey: "summary"}}},
			"",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.m.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseStrategy(t *testing.T) {
	doc := `
goal: write a report
steps:
  - id: research
    agent: researcher
    intent: "Research {{ task }}"
    expected_output: bullet list
  - id: write
    agent: writer
    intent: "Write using {{ research_output }}"
    output_key: report
`
	m, err := ParseStrategy([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, "write a report", m.Goal)
	require.Len(t, m.Steps, 2)
	assert.Equal(t, []string{"research", "write"}, m.IDs())
	assert.Equal(t, "report", m.Steps[1].ResolvedOutputKey())

	step, ok := m.Step("research")
	require.True(t, ok)
	assert.Equal(t, "researcher", step.Agent)
	_, ok = m.Step("missing")
	assert.False(t, ok)
}

func TestParseStrategy_Invalid(t *testing.T) {
	_, err := ParseStrategy([]byte("steps: ["))
	assert.Error(t, err)

	_, err = ParseStrategy([]byte("goal: nothing\n"))
	assert.ErrorIs(t, err, ErrEmptyStrategy)
}

func TestLoadStrategy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "strategy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("steps:\n  - id: only\n    intent: hi\n"), 0644))

	m, err := LoadStrategy(path)
	require.NoError(t, err)
	assert.Len(t, m.Steps, 1)

	_, err = LoadStrategy(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestStrategyMap_CloneAndMarshal(t *testing.T) {
	m := &StrategyMap{Goal: "g", Steps: []StrategyStep{{ID: "a", Intent: "one"}}}
	c := m.Clone()
	c.Steps[0].Intent = "changed"
	assert.Equal(t, "one", m.Steps[0].Intent)

	data, err := m.Marshal()
	require.NoError(t, err)
	back, err := ParseStrategy(data)
	require.NoError(t, err)
	assert.Equal(t, m, back)
}

func TestStatuses_Valid(t *testing.T) {
	assert.True(t, RunStatusSuccess.Valid())
	assert.False(t, RunStatus("done").Valid())
	assert.True(t, StepStatusSkipped.Valid())
	assert.False(t, StepStatus("").Valid())
	assert.True(t, ModeParallel.Valid())
	assert.False(t, Mode("dag").Valid())
}
