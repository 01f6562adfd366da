package api

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/ShayCichocki/conclave/internal/agent"
	"github.com/ShayCichocki/conclave/internal/tracing"
)

// DefaultOpenAIModel is used when neither the agent nor the client names a model.
const DefaultOpenAIModel = openai.ChatModelGPT4o

// OpenAIConfig configures an OpenAI-compatible chat completions client.
type OpenAIConfig struct {
	APIKey string
	// BaseURL points at an OpenAI-compatible endpoint; empty uses api.openai.com.
	BaseURL   string
	Model     string
	MaxTokens int64
}

// OpenAIAgent is an agent answering through the Chat Completions API.
type OpenAIAgent struct {
	cfg       AgentConfig
	client    *openai.Client
	model     string
	maxTokens int64
	tracker   *TokenTracker
	logger    *slog.Logger
}

// NewOpenAIAgent creates an agent with its own client.
func NewOpenAIAgent(cfg AgentConfig, clientCfg OpenAIConfig, logger *slog.Logger) (*OpenAIAgent, error) {
	if cfg.Name == "" {
		return nil, agent.ErrEmptyName
	}

	apiKey := clientCfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, errors.New("OPENAI_API_KEY environment variable is not set")
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}
	if clientCfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(clientCfg.BaseURL))
	}
	client := openai.NewClient(opts...)

	model := cfg.Model
	if model == "" {
		model = clientCfg.Model
	}
	if model == "" {
		model = DefaultOpenAIModel
	}
	maxTokens := clientCfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &OpenAIAgent{
		cfg:       cfg,
		client:    &client,
		model:     model,
		maxTokens: maxTokens,
		tracker:   NewTokenTracker(),
		logger:    logger,
	}, nil
}

// Name returns the agent name.
func (o *OpenAIAgent) Name() string { return o.cfg.Name }

// Expertise returns the agent's expertise tags.
func (o *OpenAIAgent) Expertise() []string { return o.cfg.Expertise }

// IsAvailable reports true; reachability surfaces as a ProcessError on Execute.
func (o *OpenAIAgent) IsAvailable(context.Context) bool { return true }

// Tracker returns the agent's token usage.
func (o *OpenAIAgent) Tracker() *TokenTracker { return o.tracker }

// Execute sends input as a user message and returns the first choice.
func (o *OpenAIAgent) Execute(ctx context.Context, input string) (out string, err error) {
	ctx, span := tracing.StartSpan(ctx, "agent.openai", map[string]string{
		"agent": o.cfg.Name,
		"model": o.model,
	})
	defer func() { tracing.EndSpan(span, err) }()

	var messages []openai.ChatCompletionMessageParamUnion
	if o.cfg.System != "" {
		messages = append(messages, openai.SystemMessage(o.cfg.System))
	}
	messages = append(messages, openai.UserMessage(input))

	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:               o.model,
		Messages:            messages,
		MaxCompletionTokens: openai.Int(o.maxTokens),
	})
	if err != nil {
		return "", classify(o.cfg.Name, err)
	}
	o.tracker.Add(resp.Usage.PromptTokens, resp.Usage.CompletionTokens)

	if len(resp.Choices) == 0 {
		return "", &agent.ParseError{Agent: o.cfg.Name, Err: errors.New("response contained no choices")}
	}
	choice := resp.Choices[0]

	o.logger.Debug("openai response",
		"agent", o.cfg.Name,
		"finish_reason", choice.FinishReason,
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
	)

	if choice.Message.Refusal != "" {
		return "", &agent.ExecutionError{Agent: o.cfg.Name, Err: errors.New(choice.Message.Refusal)}
	}
	out = strings.TrimSpace(choice.Message.Content)
	if out == "" {
		return "", &agent.ParseError{Agent: o.cfg.Name, Err: errors.New("response contained no text")}
	}
	return out, nil
}

var _ agent.Agent = (*OpenAIAgent)(nil)
