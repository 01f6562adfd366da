package agent

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/ShayCichocki/conclave/internal/exec"
)

// CommandConfig describes an agent backed by an external program.
// The prompt is written to the program's stdin and stdout is the output.
type CommandConfig struct {
	Name      string
	Command   string
	Args      []string
	Dir       string
	Env       []string
	Expertise []string
	// JSONOutput requires stdout to be valid JSON; anything else is a ParseError.
	JSONOutput bool
}

// CommandAgent runs an external program per request.
type CommandAgent struct {
	cfg    CommandConfig
	runner exec.CommandRunner
}

// NewCommandAgent creates a command-backed agent. A nil runner uses os/exec.
func NewCommandAgent(cfg CommandConfig, runner exec.CommandRunner) (*CommandAgent, error) {
	if cfg.Name == "" {
		return nil, ErrEmptyName
	}
	if cfg.Command == "" {
		return nil, errors.New("command agent requires a command")
	}
	if runner == nil {
		runner = exec.NewRunner()
	}
	return &CommandAgent{cfg: cfg, runner: runner}, nil
}

// Name returns the agent name.
func (c *CommandAgent) Name() string { return c.cfg.Name }

// Expertise returns the agent's expertise tags.
func (c *CommandAgent) Expertise() []string { return c.cfg.Expertise }

// IsAvailable reports whether the command resolves on PATH.
func (c *CommandAgent) IsAvailable(ctx context.Context) bool {
	_, err := c.runner.LookPath(c.cfg.Command)
	return err == nil
}

// Execute runs the program with input on stdin.
func (c *CommandAgent) Execute(ctx context.Context, input string) (string, error) {
	res, err := c.runner.Run(ctx, exec.Command{
		Name:  c.cfg.Command,
		Args:  c.cfg.Args,
		Dir:   c.cfg.Dir,
		Env:   c.cfg.Env,
		Stdin: input,
	})
	if ctxErr := ctx.Err(); ctxErr != nil {
		return "", ctxErr
	}
	if err != nil {
		return "", &ProcessError{
			Agent:    c.cfg.Name,
			ExitCode: res.ExitCode,
			Stderr:   strings.TrimSpace(string(res.Stderr)),
			Err:      err,
		}
	}

	out := strings.TrimSpace(string(res.Stdout))
	if c.cfg.JSONOutput && !json.Valid([]byte(out)) {
		return "", &ParseError{Agent: c.cfg.Name, Output: out, Err: errors.New("output is not valid JSON")}
	}
	return out, nil
}

var _ Agent = (*CommandAgent)(nil)
