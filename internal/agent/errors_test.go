package agent

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"parse", &ParseError{Agent: "a", Err: errors.New("x")}, true},
		{"process", &ProcessError{Agent: "a", Err: errors.New("x")}, true},
		{"rate limit", &RateLimitError{Agent: "a"}, true},
		{"wrapped rate limit", fmt.Errorf("step s1: %w", &RateLimitError{Agent: "a"}), true},
		{"execution", &ExecutionError{Agent: "a", Err: errors.New("x")}, false},
		{"serialization", &SerializationError{What: "history", Err: errors.New("x")}, false},
		{"unknown agent", &UnknownAgentError{Name: "ghost"}, false},
		{"plain", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestRetryAfter(t *testing.T) {
	d, ok := RetryAfter(fmt.Errorf("wrapped: %w", &RateLimitError{RetryAfter: 3 * time.Second}))
	assert.True(t, ok)
	assert.Equal(t, 3*time.Second, d)

	_, ok = RetryAfter(&RateLimitError{})
	assert.False(t, ok)

	_, ok = RetryAfter(errors.New("x"))
	assert.False(t, ok)
}

func TestErrorMessages(t *testing.T) {
	assert.Contains(t, (&ProcessError{Agent: "cli", ExitCode: 2, Err: errors.New("exit")}).Error(), "code 2")
	assert.Contains(t, (&RateLimitError{Agent: "claude", RetryAfter: time.Second}).Error(), "retry after 1s")
	assert.Equal(t, `unknown agent "ghost"`, (&UnknownAgentError{Name: "ghost"}).Error())

	inner := errors.New("root cause")
	assert.ErrorIs(t, &ExecutionError{Agent: "a", Err: inner}, inner)
	assert.ErrorIs(t, &ParseError{Agent: "a", Err: inner}, inner)
}
