//go:build integration

package integration

import (
	"context"
	"os"
	osexec "os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShayCichocki/conclave/internal/agent"
	"github.com/ShayCichocki/conclave/internal/api"
	"github.com/ShayCichocki/conclave/internal/config"
	"github.com/ShayCichocki/conclave/internal/logging"
	"github.com/ShayCichocki/conclave/internal/orchestrator"
	"github.com/ShayCichocki/conclave/internal/state"
	"github.com/ShayCichocki/conclave/pkg/models"
)

const commandConfig = `orchestrator:
  mode: parallel
  max_concurrent_tasks: 2
  max_step_remediations: 1
retry:
  max_retries: 1
  base_delay: 1ms
  max_delay: 2ms
agents:
  - name: upper
    backend: command
    command: tr
    args: ["a-z", "A-Z"]
    expertise: [writing]
  - name: broken
    backend: command
    command: "false"
    expertise: [breaking]
`

func requireCommands(t *testing.T, names ...string) {
	t.Helper()
	for _, name := range names {
		if _, err := osexec.LookPath(name); err != nil {
			t.Skipf("%s not on PATH", name)
		}
	}
}

func loadCommandConfig(t *testing.T) *config.Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(commandConfig), 0644))

	cfg, err := config.LoadFromPath(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	return cfg
}

func commandRegistry(t *testing.T, cfg *config.Config) *agent.Registry {
	t.Helper()
	reg, err := api.NewFactory(cfg, api.WithWorkDir(t.TempDir())).Registry()
	require.NoError(t, err)
	return reg
}

func openDB(t *testing.T) *state.DB {
	t.Helper()
	db, err := state.Open(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { db.Close() })
	return db
}

func noSleep(context.Context, time.Duration) error { return nil }

// TestConfiguredPipelineRunsInBothModes drives a diamond strategy through
// command agents built from a config file and stores the result.
func TestConfiguredPipelineRunsInBothModes(t *testing.T) {
	requireCommands(t, "tr")
	cfg := loadCommandConfig(t)
	reg := commandRegistry(t, cfg)
	db := openDB(t)

	strategy, err := models.ParseStrategy([]byte(`goal: notes
steps:
  - id: facts
    agent: upper
    intent: "facts about {{ task }}"
  - id: outline
    description: writing an outline
    intent: "outline for {{ task }}"
  - id: draft
    agent: upper
    intent: "draft from {{ facts_output }} and {{ outline_output }}"
`))
	require.NoError(t, err)

	for _, mode := range []models.Mode{models.ModeSequential, models.ModeParallel} {
		t.Run(string(mode), func(t *testing.T) {
			o, err := orchestrator.New(mode, orchestrator.RequiredConfig{Registry: reg},
				orchestrator.WithConfig(cfg.OrchestratorConfig()),
				orchestrator.WithRetryPolicy(cfg.RetryPolicy()),
				orchestrator.WithLogger(logging.Discard()),
			)
			require.NoError(t, err)

			started := time.Now()
			res, err := o.Run(context.Background(), "gophers", strategy)
			require.NoError(t, err)

			assert.Equal(t, models.RunStatusSuccess, res.Status)
			assert.Equal(t, 3, res.StepsExecuted)
			assert.Equal(t, "DRAFT FROM FACTS ABOUT GOPHERS AND OUTLINE FOR GOPHERS", res.FinalOutput)
			assert.Equal(t, "OUTLINE FOR GOPHERS", res.Context["outline_output"])

			rec := state.NewRun(res.RunID, "gophers", mode, started)
			rec.Finish(res)
			require.NoError(t, db.SaveRun(rec))

			got, err := db.GetRun(res.RunID)
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, models.RunStatusSuccess, got.Status)
			assert.Equal(t, res.FinalOutput, got.FinalOutput)
			assert.Len(t, got.Steps, 3)
		})
	}
}

// TestFailingCommandExhaustsRemediation runs a step whose program always
// exits non-zero and checks the failure is classified and persisted.
func TestFailingCommandExhaustsRemediation(t *testing.T) {
	requireCommands(t, "tr", "false")
	cfg := loadCommandConfig(t)
	reg := commandRegistry(t, cfg)
	db := openDB(t)

	strategy := &models.StrategyMap{Steps: []models.StrategyStep{
		{ID: "first", Agent: "upper", Intent: "ok"},
		{ID: "second", Agent: "broken", Intent: "{{ previous_output }}"},
		{ID: "third", Agent: "upper", Intent: "after {{ second_output }}"},
	}}

	o, err := orchestrator.New(models.ModeSequential, orchestrator.RequiredConfig{Registry: reg},
		orchestrator.WithConfig(cfg.OrchestratorConfig()),
		orchestrator.WithRetryPolicy(cfg.RetryPolicy()),
		orchestrator.WithRetrySleep(noSleep),
		orchestrator.WithLogger(logging.Discard()),
	)
	require.NoError(t, err)

	started := time.Now()
	res, err := o.Run(context.Background(), "task", strategy)
	require.Error(t, err)
	require.NotNil(t, res)

	var exceeded *orchestrator.MaxStepRemediationsExceeded
	require.ErrorAs(t, err, &exceeded)
	assert.Equal(t, "second", exceeded.StepID)

	var procErr *agent.ProcessError
	assert.ErrorAs(t, err, &procErr)

	assert.Equal(t, models.RunStatusFailed, res.Status)
	assert.Equal(t, []string{"second"}, res.Failed)
	assert.Equal(t, []string{"third"}, res.Skipped)
	assert.Equal(t, "OK", res.FinalOutput)

	rec := state.NewRun(res.RunID, "task", models.ModeSequential, started)
	rec.Finish(res)
	require.NoError(t, db.SaveRun(rec))

	failed := models.RunStatusFailed
	runs, err := db.ListRuns(&failed, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, res.RunID, runs[0].ID)
}
