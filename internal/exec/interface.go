// Package exec provides an interface for running external commands.
package exec

import (
	"context"
)

// Command describes a single process invocation.
type Command struct {
	// Name is the executable to run.
	Name string
	// Args are passed to the executable.
	Args []string
	// Dir is the working directory; empty means the current directory.
	Dir string
	// Stdin is written to the process's standard input.
	Stdin string
	// Env holds extra KEY=VALUE entries appended to the parent environment.
	Env []string
}

// Result captures a finished process.
type Result struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// CommandRunner defines the interface for running external commands.
// This abstraction allows mocking command execution in tests.
type CommandRunner interface {
	// Run executes the command and waits for it to finish.
	// A non-zero exit yields both a populated Result and a non-nil error.
	Run(ctx context.Context, cmd Command) (Result, error)

	// LookPath reports where an executable would be found on PATH.
	LookPath(name string) (string, error)
}
