package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echo(name string, tags ...string) *Func {
	return NewFunc(name, func(ctx context.Context, input string) (string, error) {
		return name + ":" + input, nil
	}, WithExpertise(tags...))
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	r, err := NewRegistry(echo("writer"), echo("critic"))
	require.NoError(t, err)

	a, err := r.Get("critic")
	require.NoError(t, err)
	assert.Equal(t, "critic", a.Name())
	assert.Equal(t, []string{"writer", "critic"}, r.Names())
	assert.Equal(t, 2, r.Len())

	_, err = r.Get("ghost")
	var unknown *UnknownAgentError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "ghost", unknown.Name)
}

func TestRegistry_RejectsDuplicatesAndEmptyNames(t *testing.T) {
	r, err := NewRegistry(echo("writer"))
	require.NoError(t, err)

	assert.ErrorIs(t, r.Register(echo("writer")), ErrDuplicateAgent)
	assert.ErrorIs(t, r.Register(echo("")), ErrEmptyName)
	assert.ErrorIs(t, r.Register(nil), ErrEmptyName)

	_, err = NewRegistry(echo("a"), echo("a"))
	assert.Error(t, err)
}

func TestRegistry_Unregister(t *testing.T) {
	r, err := NewRegistry(echo("a"), echo("b"), echo("c"))
	require.NoError(t, err)

	r.Unregister("b")
	r.Unregister("missing")
	assert.Equal(t, []string{"a", "c"}, r.Names())
	assert.Len(t, r.All(), 2)
}

func TestRegistry_FindByExpertise(t *testing.T) {
	r, err := NewRegistry(
		echo("researcher", "Research", "search"),
		echo("writer", "writing"),
		echo("editor", "writing", "review"),
	)
	require.NoError(t, err)

	names := func(agents []Agent) []string {
		var out []string
		for _, a := range agents {
			out = append(out, a.Name())
		}
		return out
	}

	assert.Equal(t, []string{"writer", "editor"}, names(r.FindByExpertise("writing")))
	assert.Equal(t, []string{"researcher"}, names(r.FindByExpertise("research")))
	assert.Equal(t, []string{"researcher", "editor"}, names(r.FindByExpertise("search", "review")))
	assert.Empty(t, r.FindByExpertise())
	assert.Empty(t, r.FindByExpertise("cooking"))
}

func TestFunc_Availability(t *testing.T) {
	a := NewFunc("a", nil)
	assert.True(t, a.IsAvailable(context.Background()))

	_, err := a.Execute(context.Background(), "x")
	var execErr *ExecutionError
	assert.ErrorAs(t, err, &execErr)

	down := NewFunc("b", nil, WithAvailability(func(context.Context) bool { return false }))
	assert.False(t, down.IsAvailable(context.Background()))
}
