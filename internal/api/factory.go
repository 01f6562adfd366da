package api

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/ShayCichocki/conclave/internal/agent"
	"github.com/ShayCichocki/conclave/internal/config"
	"github.com/ShayCichocki/conclave/internal/exec"
)

// Factory builds agents from configuration. Anthropic agents share one
// client so token usage is tracked in one place.
type Factory struct {
	cfg    *config.Config
	logger *slog.Logger
	runner exec.CommandRunner
	dir    string

	mu       sync.Mutex
	claude   *Client
	trackers []*TokenTracker
}

// FactoryOption configures a Factory.
type FactoryOption func(*Factory)

// WithFactoryLogger sets the logger handed to every built agent.
func WithFactoryLogger(logger *slog.Logger) FactoryOption {
	return func(f *Factory) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithCommandRunner sets the runner used by command agents.
func WithCommandRunner(r exec.CommandRunner) FactoryOption {
	return func(f *Factory) {
		f.runner = r
	}
}

// WithWorkDir sets the working directory of command agents.
func WithWorkDir(dir string) FactoryOption {
	return func(f *Factory) {
		f.dir = dir
	}
}

// NewFactory creates a factory for cfg.
func NewFactory(cfg *config.Config, opts ...FactoryOption) *Factory {
	f := &Factory{
		cfg:    cfg,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Registry builds every configured agent into a registry, in config order.
func (f *Factory) Registry() (*agent.Registry, error) {
	reg, err := agent.NewRegistry()
	if err != nil {
		return nil, err
	}
	for _, ac := range f.cfg.Agents {
		a, err := f.Build(ac)
		if err != nil {
			return nil, fmt.Errorf("agent %s: %w", ac.Name, err)
		}
		if err := reg.Register(a); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// Build creates the agent described by ac.
func (f *Factory) Build(ac config.AgentConfig) (agent.Agent, error) {
	spec := AgentConfig{
		Name:      ac.Name,
		Model:     ac.Model,
		System:    ac.System,
		Expertise: ac.Expertise,
	}

	switch ac.Backend {
	case config.BackendAnthropic, "":
		client, err := f.claudeClient()
		if err != nil {
			return nil, err
		}
		return NewClaudeAgent(spec, client, f.logger)

	case config.BackendOpenAI:
		key, err := config.GetAPIKey(f.cfg, config.ProviderOpenAI)
		if err != nil {
			return nil, err
		}
		a, err := NewOpenAIAgent(spec, OpenAIConfig{
			APIKey:    key,
			BaseURL:   f.cfg.OpenAI.BaseURL,
			Model:     f.cfg.OpenAI.Model,
			MaxTokens: int64(f.cfg.OpenAI.MaxTokens),
		}, f.logger)
		if err != nil {
			return nil, err
		}
		f.mu.Lock()
		f.trackers = append(f.trackers, a.Tracker())
		f.mu.Unlock()
		return a, nil

	case config.BackendCommand:
		return agent.NewCommandAgent(agent.CommandConfig{
			Name:      ac.Name,
			Command:   ac.Command,
			Args:      ac.Args,
			Dir:       f.dir,
			Expertise: ac.Expertise,
		}, f.runner)

	default:
		return nil, fmt.Errorf("unknown backend %q", ac.Backend)
	}
}

func (f *Factory) claudeClient() (*Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.claude != nil {
		return f.claude, nil
	}

	ac := f.cfg.Anthropic
	cc := ClientConfig{
		Model:         ac.Model,
		MaxTokens:     int64(ac.MaxTokens),
		UseAWSBedrock: ac.UseBedrock,
		AWSRegion:     ac.Region,
	}
	if !ac.UseBedrock {
		key, err := config.GetAPIKey(f.cfg, config.ProviderAnthropic)
		if err != nil {
			return nil, err
		}
		cc.APIKey = key
	}

	client, err := NewClient(cc)
	if err != nil {
		return nil, err
	}
	f.claude = client
	f.trackers = append(f.trackers, client.Tracker())
	return client, nil
}

// Usage sums token usage over every API client the factory built.
func (f *Factory) Usage() (input, output int64, calls int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.trackers {
		in, out := t.Total()
		input += in
		output += out
		calls += t.Calls()
	}
	return input, output, calls
}
