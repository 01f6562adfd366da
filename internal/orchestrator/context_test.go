package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShayCichocki/conclave/internal/template"
	"github.com/ShayCichocki/conclave/pkg/models"
)

func TestContext_CommitWritesEveryKey(t *testing.T) {
	c := NewContext()
	require.NoError(t, c.Commit(models.StrategyStep{ID: "a", OutputKey: "summary"}, "text"))

	v, ok := c.Get("a_output")
	assert.True(t, ok)
	assert.Equal(t, "text", v)
	v, ok = c.Get("summary")
	assert.True(t, ok)
	assert.Equal(t, "text", v)
	assert.Equal(t, []string{"a_output", "summary"}, c.Keys())
	assert.Equal(t, 2, c.Len())
}

func TestContext_RefusesForeignKey(t *testing.T) {
	c := NewContext()
	require.NoError(t, c.Commit(models.StrategyStep{ID: "a", OutputKey: "shared"}, "one"))

	err := c.Commit(models.StrategyStep{ID: "b", OutputKey: "shared"}, "two")
	assert.ErrorIs(t, err, ErrContextKeyOwned)
	assert.False(t, c.Has("b_output"), "a refused commit must not write any key")

	v, _ := c.Get("shared")
	assert.Equal(t, "one", v)
}

func TestContext_RecommitBySameStep(t *testing.T) {
	c := NewContext()
	s := models.StrategyStep{ID: "a"}
	require.NoError(t, c.Commit(s, "one"))
	require.NoError(t, c.Commit(s, "two"))

	v, _ := c.Get("a_output")
	assert.Equal(t, "two", v)
	assert.Equal(t, []string{"a_output"}, c.Keys())
}

func TestContext_SnapshotIsACopy(t *testing.T) {
	c := NewContext()
	require.NoError(t, c.Commit(models.StrategyStep{ID: "a"}, "x"))

	snap := c.Snapshot()
	snap["a_output"] = "mutated"
	out := c.Outputs()
	out["a_output"] = "mutated"

	v, _ := c.Get("a_output")
	assert.Equal(t, "x", v)
}

func TestContext_TemplateDataDecodesJSON(t *testing.T) {
	c := NewContext()
	require.NoError(t, c.Commit(models.StrategyStep{ID: "a"}, `{"k": "v"}`))
	require.NoError(t, c.Commit(models.StrategyStep{ID: "b"}, "plain"))

	data := c.templateData()
	assert.IsType(t, template.Object{}, data["a_output"])
	assert.Equal(t, "plain", data["b_output"])
}

func TestContext_Reset(t *testing.T) {
	c := NewContext()
	require.NoError(t, c.Commit(models.StrategyStep{ID: "a", OutputKey: "k"}, "x"))
	c.Reset()

	assert.Zero(t, c.Len())
	assert.Empty(t, c.Keys())
	require.NoError(t, c.Commit(models.StrategyStep{ID: "b", OutputKey: "k"}, "y"))
}
