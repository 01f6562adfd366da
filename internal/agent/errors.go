package agent

import (
	"errors"
	"fmt"
	"time"
)

// ErrUnavailable indicates an agent reported itself unavailable.
var ErrUnavailable = errors.New("agent unavailable")

// ParseError means the agent produced output that could not be interpreted.
// It is transient: asking again often yields well-formed output.
type ParseError struct {
	Agent  string
	Output string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("agent %s: malformed output: %v", e.Agent, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ProcessError covers process, network and other I/O failures.
type ProcessError struct {
	Agent    string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ProcessError) Error() string {
	if e.ExitCode != 0 {
		return fmt.Sprintf("agent %s: process exited with code %d: %v", e.Agent, e.ExitCode, e.Err)
	}
	return fmt.Sprintf("agent %s: process error: %v", e.Agent, e.Err)
}

func (e *ProcessError) Unwrap() error { return e.Err }

// RateLimitError means the backend throttled the request.
// RetryAfter is zero when the backend gave no hint.
type RateLimitError struct {
	Agent      string
	RetryAfter time.Duration
	Err        error
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("agent %s: rate limited (retry after %s)", e.Agent, e.RetryAfter)
	}
	return fmt.Sprintf("agent %s: rate limited", e.Agent)
}

func (e *RateLimitError) Unwrap() error { return e.Err }

// ExecutionError is a semantic failure: the agent ran but could not do the work.
type ExecutionError struct {
	Agent string
	Err   error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("agent %s: execution failed: %v", e.Agent, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// SerializationError means a value could not be encoded or decoded.
type SerializationError struct {
	What string
	Err  error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("serialize %s: %v", e.What, e.Err)
}

func (e *SerializationError) Unwrap() error { return e.Err }

// UnknownAgentError is returned when a name does not resolve in the registry.
type UnknownAgentError struct {
	Name string
}

func (e *UnknownAgentError) Error() string {
	return fmt.Sprintf("unknown agent %q", e.Name)
}

// IsRetryable reports whether err belongs to the transient allow-list:
// parse errors, process/IO errors and rate limits. Everything else,
// including unknown error types, is treated as non-retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var parseErr *ParseError
	var procErr *ProcessError
	var rateErr *RateLimitError
	return errors.As(err, &parseErr) || errors.As(err, &procErr) || errors.As(err, &rateErr)
}

// RetryAfter extracts a backend-provided delay from err, if any.
func RetryAfter(err error) (time.Duration, bool) {
	var rateErr *RateLimitError
	if errors.As(err, &rateErr) && rateErr.RetryAfter > 0 {
		return rateErr.RetryAfter, true
	}
	return 0, false
}
