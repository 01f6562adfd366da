package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShayCichocki/conclave/internal/config"
)

func TestConfigValue_EveryKeyReadable(t *testing.T) {
	cfg := config.Default()
	for _, key := range configKeys {
		_, err := getConfigValue(cfg, key)
		assert.NoError(t, err, key)
	}
}

func TestSetConfigValue(t *testing.T) {
	tests := []struct {
		key   string
		value string
		want  string
	}{
		{"orchestrator.mode", "sequential", "sequential"},
		{"orchestrator.max_step_remediations", "5", "5"},
		{"orchestrator.max_concurrent_tasks", "8", "8"},
		{"orchestrator.step_timeout", "90s", "1m30s"},
		{"orchestrator.min_step_interval", "250ms", "250ms"},
		{"retry.max_retries", "1", "1"},
		{"dialogue.turn_timeout", "2m", "2m0s"},
		{"dialogue.max_rounds", "4", "4"},
		{"anthropic.model", "claude-haiku-4-5", "claude-haiku-4-5"},
		{"anthropic.use_bedrock", "true", "true"},
		{"openai.base_url", "http://localhost:8080/v1", "http://localhost:8080/v1"},
		{"planner.agent", "claude", "claude"},
		{"tracing.enabled", "true", "true"},
		{"state.project", "true", "true"},
		{"Logging.Level", "debug", "debug"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			cfg := config.Default()
			require.NoError(t, setConfigValue(cfg, tt.key, tt.value))
			got, err := getConfigValue(cfg, tt.key)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSetConfigValue_Errors(t *testing.T) {
	cfg := config.Default()

	assert.ErrorContains(t, setConfigValue(cfg, "nope.key", "x"), "unknown configuration key")
	assert.ErrorContains(t, setConfigValue(cfg, "retry.max_retries", "many"), "invalid integer")
	assert.ErrorContains(t, setConfigValue(cfg, "orchestrator.step_timeout", "soon"), "invalid duration")
	assert.ErrorContains(t, setConfigValue(cfg, "tracing.enabled", "maybe"), "invalid boolean")

	_, err := getConfigValue(cfg, "nope.key")
	assert.Error(t, err)
}

func TestConfigValue_MasksKeys(t *testing.T) {
	cfg := config.Default()
	cfg.Anthropic.APIKey = "sk-ant-REDACTED"

	got, err := getConfigValue(cfg, "anthropic.api_key")
	require.NoError(t, err)
	assert.Equal(t, "sk-ant-...wxyz", got)

	got, err = getConfigValue(cfg, "openai.api_key")
	require.NoError(t, err)
	assert.Equal(t, "(not set)", got)
}

func TestDisplayAllConfig(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "sk-from-env-0123456789")

	cfg := config.Default()
	cfg.Orchestrator.StepTimeout = 3 * time.Minute

	var buf bytes.Buffer
	displayAllConfig(&buf, cfg)
	out := buf.String()

	assert.Contains(t, out, "orchestrator.step_timeout: 3m0s\n")
	assert.Contains(t, out, "anthropic key source: none\n")
	assert.Contains(t, out, "openai key source: environment\n")
	assert.Contains(t, out, "  - claude (anthropic)\n")
}
