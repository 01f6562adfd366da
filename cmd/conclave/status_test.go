package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShayCichocki/conclave/internal/signals"
	"github.com/ShayCichocki/conclave/internal/state"
	"github.com/ShayCichocki/conclave/pkg/models"
)

func TestListRunsAndShowRun(t *testing.T) {
	db := openTestDB(t)

	started := time.Now().Add(-time.Hour)
	rec := state.NewRun("run-1", "write the changelog", models.ModeParallel, started)
	rec.Finish(&models.OrchestrationResult{
		RunID:         "run-1",
		Status:        models.RunStatusSuccess,
		StepsExecuted: 2,
		FinalOutput:   "all done",
		Steps: []models.StepRecord{
			{StepID: "collect", Agent: "claude", Status: models.StepStatusCompleted, Attempts: 1},
			{StepID: "write", Agent: "claude", Status: models.StepStatusCompleted, Attempts: 2},
		},
		Duration: 90 * time.Second,
	})
	require.NoError(t, db.SaveRun(rec))

	var out bytes.Buffer
	require.NoError(t, listRuns(&out, db, 10))
	text := out.String()
	assert.Contains(t, text, "run-1")
	assert.Contains(t, text, "success")
	assert.Contains(t, text, "parallel")
	assert.Contains(t, text, "1m")
	assert.Contains(t, text, "write the changelog")

	out.Reset()
	require.NoError(t, showRun(&out, db, "run-1"))
	text = out.String()
	assert.Contains(t, text, "Task: write the changelog")
	assert.Contains(t, text, "collect")
	assert.Contains(t, text, "(2 attempts)")
	assert.Contains(t, text, "all done")

	assert.Error(t, showRun(&out, db, "missing"))
}

func TestListRuns_Empty(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, listRuns(&out, openTestDB(t), 10))
	assert.Equal(t, "No runs recorded.\n", out.String())
}

func TestSendSignal(t *testing.T) {
	w, err := signals.New(t.TempDir())
	require.NoError(t, err)
	defer w.Close()

	var reports []string
	report := func(msg string) { reports = append(reports, msg) }

	require.NoError(t, sendSignal(w, "pause", report))
	assert.True(t, w.ShouldPause())

	require.NoError(t, sendSignal(w, "resume", report))
	assert.False(t, w.ShouldPause())

	require.NoError(t, sendSignal(w, "stop", report))
	assert.True(t, w.ShouldStop())

	require.NoError(t, sendSignal(w, "clear", report))
	assert.False(t, w.ShouldStop())

	assert.Error(t, sendSignal(w, "explode", report))
	assert.Equal(t, []string{"Pause requested", "Resumed", "Stop requested", "Signals cleared"}, reports)
}
