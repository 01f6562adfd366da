package main

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShayCichocki/conclave/internal/agent"
	"github.com/ShayCichocki/conclave/internal/dialogue"
	"github.com/ShayCichocki/conclave/internal/state"
	"github.com/ShayCichocki/conclave/internal/tui"
)

func panel(t *testing.T, replies map[string]string) *dialogue.Dialogue {
	t.Helper()
	d := dialogue.New(dialogue.Sequential(), dialogue.WithID("panel-1"))
	for _, name := range []string{"Ada", "Grace"} {
		reply := replies[name]
		a := agent.NewFunc(name, func(context.Context, string) (string, error) {
			if reply == "" {
				return "", errors.New(name + " is offline")
			}
			return reply, nil
		})
		require.NoError(t, d.AddParticipant(dialogue.Persona{Name: name, Role: "panelist"}, a))
	}
	return d
}

func TestConverse_PrintsEveryTurn(t *testing.T) {
	d := panel(t, map[string]string{"Ada": "Use queues.", "Grace": "Measure first."})

	var out bytes.Buffer
	require.NoError(t, converse(context.Background(), &out, d, tui.NewTranscript(80), "How do we scale?"))

	text := out.String()
	assert.Contains(t, text, "How do we scale?")
	assert.Contains(t, text, "Use queues.")
	assert.Contains(t, text, "Measure first.")
	assert.Less(t, bytes.Index(out.Bytes(), []byte("Use queues.")), bytes.Index(out.Bytes(), []byte("Measure first.")))
	assert.Len(t, d.History(), 3)
}

func TestConverse_StopsAtFailure(t *testing.T) {
	d := panel(t, map[string]string{"Ada": "Use queues."})

	var out bytes.Buffer
	err := converse(context.Background(), &out, d, tui.NewTranscript(80), "How do we scale?")
	require.Error(t, err)
	assert.Contains(t, out.String(), "Use queues.")
	assert.Contains(t, out.String(), "offline")
	assert.Len(t, d.History(), 2, "the prompt and Ada's turn are kept")
}

func TestDialogue_SaveResumeAndShow(t *testing.T) {
	db := openTestDB(t)
	d := panel(t, map[string]string{"Ada": "Use queues.", "Grace": "Measure first."})

	var out bytes.Buffer
	require.NoError(t, converse(context.Background(), &out, d, tui.NewTranscript(80), "How do we scale?"))
	require.NoError(t, db.SaveDialogue(&state.DialogueRecord{
		ID:       d.ID(),
		Model:    dialogue.ModelName(d.Model()),
		Goal:     "scaling",
		Messages: d.History(),
	}))

	resumed := panel(t, map[string]string{"Ada": "Shard it.", "Grace": "Agreed."})
	rec, err := db.LoadDialogue("panel-1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	require.NoError(t, resumed.Restore(rec.Messages))

	out.Reset()
	require.NoError(t, converse(context.Background(), &out, resumed, tui.NewTranscript(80), "And later?"))
	history := resumed.History()
	require.Len(t, history, 6)
	assert.Equal(t, "Agreed.", history[5].Content)

	require.NoError(t, db.SaveDialogue(&state.DialogueRecord{
		ID:       resumed.ID(),
		Model:    dialogue.ModelName(resumed.Model()),
		Goal:     "scaling",
		Messages: history,
	}))

	out.Reset()
	require.NoError(t, showDialogue(&out, db, "panel-1", false))
	assert.Contains(t, out.String(), "Dialogue panel-1 (sequential)")
	assert.Contains(t, out.String(), "Goal: scaling")
	assert.Contains(t, out.String(), "Shard it.")

	out.Reset()
	require.NoError(t, showDialogue(&out, db, "panel-1", true))
	id, messages, err := dialogue.LoadHistory(&out)
	require.NoError(t, err)
	assert.Equal(t, "panel-1", id)
	assert.Len(t, messages, 6)

	out.Reset()
	require.NoError(t, listDialogues(&out, db, 10))
	assert.Contains(t, out.String(), "panel-1")
	assert.Contains(t, out.String(), "sequential")

	assert.Error(t, showDialogue(&out, db, "missing", false))
}

func TestListDialogues_Empty(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, listDialogues(&out, openTestDB(t), 10))
	assert.Equal(t, "No saved dialogues.\n", out.String())
}
