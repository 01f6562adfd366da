package api

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/ShayCichocki/conclave/internal/agent"
	"github.com/ShayCichocki/conclave/internal/tracing"
)

// AgentConfig describes one API-backed agent.
type AgentConfig struct {
	Name      string
	Model     string
	System    string
	Expertise []string
}

// ClaudeAgent is an agent answering through the Anthropic Messages API.
type ClaudeAgent struct {
	cfg    AgentConfig
	client *Client
	model  anthropic.Model
	logger *slog.Logger
}

// NewClaudeAgent creates an agent on client. An empty cfg.Model uses the
// client's model.
func NewClaudeAgent(cfg AgentConfig, client *Client, logger *slog.Logger) (*ClaudeAgent, error) {
	if cfg.Name == "" {
		return nil, agent.ErrEmptyName
	}
	if client == nil {
		return nil, errors.New("claude agent requires a client")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &ClaudeAgent{
		cfg:    cfg,
		client: client,
		model:  client.ResolveModel(cfg.Model),
		logger: logger,
	}, nil
}

// Name returns the agent name.
func (c *ClaudeAgent) Name() string { return c.cfg.Name }

// Expertise returns the agent's expertise tags.
func (c *ClaudeAgent) Expertise() []string { return c.cfg.Expertise }

// IsAvailable reports true; reachability surfaces as a ProcessError on Execute.
func (c *ClaudeAgent) IsAvailable(context.Context) bool { return true }

// Execute sends input as a single user message and returns the text reply.
func (c *ClaudeAgent) Execute(ctx context.Context, input string) (out string, err error) {
	ctx, span := tracing.StartSpan(ctx, "agent.claude", map[string]string{
		"agent": c.cfg.Name,
		"model": string(c.model),
	})
	defer func() { tracing.EndSpan(span, err) }()

	params := anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: c.client.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(input)),
		},
	}
	if c.cfg.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: c.cfg.System}}
	}

	resp, err := c.client.inner.Messages.New(ctx, params)
	if err != nil {
		return "", classify(c.cfg.Name, err)
	}
	c.client.Tracker().Add(resp.Usage.InputTokens, resp.Usage.OutputTokens)
	span.SetInt("input_tokens", int(resp.Usage.InputTokens))
	span.SetInt("output_tokens", int(resp.Usage.OutputTokens))

	var text strings.Builder
	for _, block := range resp.Content {
		if variant, ok := block.AsAny().(anthropic.TextBlock); ok {
			text.WriteString(variant.Text)
		}
	}

	c.logger.Debug("claude response",
		"agent", c.cfg.Name,
		"stop_reason", resp.StopReason,
		"input_tokens", resp.Usage.InputTokens,
		"output_tokens", resp.Usage.OutputTokens,
	)

	if resp.StopReason == anthropic.StopReasonRefusal {
		return "", &agent.ExecutionError{Agent: c.cfg.Name, Err: errors.New("model refused the request")}
	}
	out = strings.TrimSpace(text.String())
	if out == "" {
		return "", &agent.ParseError{Agent: c.cfg.Name, Err: errors.New("response contained no text")}
	}
	return out, nil
}

var _ agent.Agent = (*ClaudeAgent)(nil)
