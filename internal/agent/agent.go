// Package agent defines the capability contract shared by every agent,
// the registry that resolves agents by name, and the retry machinery
// used to invoke them.
package agent

import (
	"context"
	"errors"
	"fmt"
)

// ErrEmptyName indicates an agent was constructed without a name.
var ErrEmptyName = errors.New("agent name is required")

// Agent is any unit that maps an input prompt to an output.
// Implementations must be safe for concurrent use: the parallel
// orchestrator and broadcast dialogues call Execute from several
// goroutines at once.
type Agent interface {
	// Name is the unique identifier the registry resolves.
	Name() string
	// Expertise lists free-form capability tags.
	Expertise() []string
	// IsAvailable reports whether the agent can currently serve requests.
	IsAvailable(ctx context.Context) bool
	// Execute runs the agent on input and returns its output.
	Execute(ctx context.Context, input string) (string, error)
}

// ExecuteFunc is the signature of an agent's execution body.
type ExecuteFunc func(ctx context.Context, input string) (string, error)

// Func adapts a plain function into an Agent.
type Func struct {
	name      string
	expertise []string
	fn        ExecuteFunc
	available func(ctx context.Context) bool
}

// FuncOption configures a Func agent.
type FuncOption func(*Func)

// WithExpertise sets the agent's expertise tags.
func WithExpertise(tags ...string) FuncOption {
	return func(f *Func) {
		f.expertise = append([]string(nil), tags...)
	}
}

// WithAvailability overrides the availability probe.
func WithAvailability(probe func(ctx context.Context) bool) FuncOption {
	return func(f *Func) {
		f.available = probe
	}
}

// NewFunc creates an agent backed by fn.
func NewFunc(name string, fn ExecuteFunc, opts ...FuncOption) *Func {
	f := &Func{name: name, fn: fn}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Name returns the agent name.
func (f *Func) Name() string { return f.name }

// Expertise returns the agent's expertise tags.
func (f *Func) Expertise() []string { return f.expertise }

// IsAvailable reports availability; agents without a probe are always available.
func (f *Func) IsAvailable(ctx context.Context) bool {
	if f.available == nil {
		return true
	}
	return f.available(ctx)
}

// Execute invokes the wrapped function.
func (f *Func) Execute(ctx context.Context, input string) (string, error) {
	if f.fn == nil {
		return "", &ExecutionError{Agent: f.name, Err: fmt.Errorf("no execute function")}
	}
	return f.fn(ctx, input)
}

var _ Agent = (*Func)(nil)
