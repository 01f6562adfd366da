package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/openai/openai-go"

	"github.com/ShayCichocki/conclave/internal/agent"
)

// statusOverloaded is Anthropic's "overloaded" status.
const statusOverloaded = 529

// classify maps an SDK error onto the agent error taxonomy so the retry
// executor can tell transient failures from permanent ones.
// Context errors pass through unchanged.
func classify(name string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	status, header, ok := httpStatus(err)
	if !ok {
		// No HTTP response: connection reset, DNS failure and the like.
		return &agent.ProcessError{Agent: name, Err: err}
	}

	switch {
	case status == http.StatusTooManyRequests:
		return &agent.RateLimitError{Agent: name, RetryAfter: retryAfter(header, time.Now()), Err: err}
	case status == http.StatusRequestTimeout,
		status == http.StatusConflict,
		status == statusOverloaded,
		status >= 500:
		return &agent.ProcessError{Agent: name, Err: err}
	default:
		return &agent.ExecutionError{Agent: name, Err: err}
	}
}

func httpStatus(err error) (int, http.Header, bool) {
	var anthropicErr *anthropic.Error
	if errors.As(err, &anthropicErr) {
		return anthropicErr.StatusCode, responseHeader(anthropicErr.Response), true
	}
	var openaiErr *openai.Error
	if errors.As(err, &openaiErr) {
		return openaiErr.StatusCode, responseHeader(openaiErr.Response), true
	}
	return 0, nil, false
}

func responseHeader(resp *http.Response) http.Header {
	if resp == nil {
		return nil
	}
	return resp.Header
}

// retryAfter reads retry-after-ms, then Retry-After as seconds or an
// HTTP date. It returns zero when neither header is usable.
func retryAfter(h http.Header, now time.Time) time.Duration {
	if h == nil {
		return 0
	}
	if ms, err := strconv.ParseFloat(h.Get("retry-after-ms"), 64); err == nil && ms > 0 {
		return time.Duration(ms * float64(time.Millisecond))
	}

	v := h.Get("Retry-After")
	if v == "" {
		return 0
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs * float64(time.Second))
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
