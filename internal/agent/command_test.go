package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShayCichocki/conclave/internal/exec"
)

type fakeRunner struct {
	result exec.Result
	err    error
	got    exec.Command
	path   error
}

func (f *fakeRunner) Run(ctx context.Context, cmd exec.Command) (exec.Result, error) {
	f.got = cmd
	return f.result, f.err
}

func (f *fakeRunner) LookPath(name string) (string, error) {
	if f.path != nil {
		return "", f.path
	}
	return "/usr/bin/" + name, nil
}

func TestNewCommandAgent_Validation(t *testing.T) {
	_, err := NewCommandAgent(CommandConfig{Command: "llm"}, nil)
	assert.ErrorIs(t, err, ErrEmptyName)

	_, err = NewCommandAgent(CommandConfig{Name: "llm"}, nil)
	assert.Error(t, err)
}

func TestCommandAgent_Execute(t *testing.T) {
	runner := &fakeRunner{result: exec.Result{Stdout: []byte("  answer\n")}}
	a, err := NewCommandAgent(CommandConfig{Name: "llm", Command: "llm", Args: []string{"-m", "small"}}, runner)
	require.NoError(t, err)

	out, err := a.Execute(context.Background(), "question")
	require.NoError(t, err)
	assert.Equal(t, "answer", out)
	assert.Equal(t, "question", runner.got.Stdin)
	assert.Equal(t, []string{"-m", "small"}, runner.got.Args)
	assert.True(t, a.IsAvailable(context.Background()))
}

func TestCommandAgent_ProcessFailureIsRetryable(t *testing.T) {
	runner := &fakeRunner{
		result: exec.Result{Stderr: []byte("quota\n"), ExitCode: 2},
		err:    errors.New("exit status 2"),
	}
	a, err := NewCommandAgent(CommandConfig{Name: "llm", Command: "llm"}, runner)
	require.NoError(t, err)

	_, err = a.Execute(context.Background(), "q")
	var procErr *ProcessError
	require.ErrorAs(t, err, &procErr)
	assert.Equal(t, 2, procErr.ExitCode)
	assert.Equal(t, "quota", procErr.Stderr)
	assert.True(t, IsRetryable(err))
}

func TestCommandAgent_JSONOutput(t *testing.T) {
	runner := &fakeRunner{result: exec.Result{Stdout: []byte("not json")}}
	a, err := NewCommandAgent(CommandConfig{Name: "llm", Command: "llm", JSONOutput: true}, runner)
	require.NoError(t, err)

	_, err = a.Execute(context.Background(), "q")
	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Equal(t, "not json", parseErr.Output)

	runner.result.Stdout = []byte(`{"ok":true}`)
	out, err := a.Execute(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, out)
}

func TestCommandAgent_Unavailable(t *testing.T) {
	a, err := NewCommandAgent(CommandConfig{Name: "llm", Command: "llm"}, &fakeRunner{path: errors.New("not found")})
	require.NoError(t, err)
	assert.False(t, a.IsAvailable(context.Background()))
}
