// Package config handles configuration loading and management for conclave.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/ShayCichocki/conclave/internal/agent"
	"github.com/ShayCichocki/conclave/internal/logging"
	"github.com/ShayCichocki/conclave/internal/orchestrator"
	"github.com/ShayCichocki/conclave/pkg/models"
)

// Agent backends.
const (
	BackendAnthropic = "anthropic"
	BackendOpenAI    = "openai"
	BackendCommand   = "command"
)

// Config holds all configuration for conclave.
type Config struct {
	Orchestrator OrchestratorSection `mapstructure:"orchestrator" yaml:"orchestrator"`
	Retry        RetrySection        `mapstructure:"retry" yaml:"retry"`
	Dialogue     DialogueSection     `mapstructure:"dialogue" yaml:"dialogue"`
	Anthropic    AnthropicConfig     `mapstructure:"anthropic" yaml:"anthropic"`
	OpenAI       OpenAIConfig        `mapstructure:"openai" yaml:"openai"`
	Agents       []AgentConfig       `mapstructure:"agents" yaml:"agents"`
	Planner      PlannerConfig       `mapstructure:"planner" yaml:"planner"`
	Logging      LoggingSection      `mapstructure:"logging" yaml:"logging"`
	Tracing      TracingSection      `mapstructure:"tracing" yaml:"tracing"`
	State        StateSection        `mapstructure:"state" yaml:"state"`
}

// OrchestratorSection holds run scheduling and remediation settings.
type OrchestratorSection struct {
	Mode                string        `mapstructure:"mode" yaml:"mode"`
	MaxStepRemediations int           `mapstructure:"max_step_remediations" yaml:"max_step_remediations"`
	MaxTotalRedesigns   int           `mapstructure:"max_total_redesigns" yaml:"max_total_redesigns"`
	MinStepInterval     time.Duration `mapstructure:"min_step_interval" yaml:"min_step_interval"`
	MaxConcurrentTasks  int           `mapstructure:"max_concurrent_tasks" yaml:"max_concurrent_tasks"`
	StepTimeout         time.Duration `mapstructure:"step_timeout" yaml:"step_timeout"`
}

// RetrySection is the transient-error retry policy.
type RetrySection struct {
	MaxRetries int           `mapstructure:"max_retries" yaml:"max_retries"`
	BaseDelay  time.Duration `mapstructure:"base_delay" yaml:"base_delay"`
	MaxDelay   time.Duration `mapstructure:"max_delay" yaml:"max_delay"`
	Jitter     float64       `mapstructure:"jitter" yaml:"jitter"`
}

// DialogueSection holds defaults for dialogues.
type DialogueSection struct {
	TurnTimeout time.Duration `mapstructure:"turn_timeout" yaml:"turn_timeout"`
	MaxRounds   int           `mapstructure:"max_rounds" yaml:"max_rounds"`
	HistoryDir  string        `mapstructure:"history_dir" yaml:"history_dir"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	APIKey    string `mapstructure:"api_key" yaml:"api_key"`
	Model     string `mapstructure:"model" yaml:"model"`
	MaxTokens int    `mapstructure:"max_tokens" yaml:"max_tokens"`
	// UseBedrock routes requests through AWS Bedrock with the default
	// AWS credential chain instead of an API key.
	UseBedrock bool   `mapstructure:"use_bedrock" yaml:"use_bedrock"`
	Region     string `mapstructure:"region" yaml:"region"`
}

// OpenAIConfig holds OpenAI API settings.
type OpenAIConfig struct {
	APIKey    string `mapstructure:"api_key" yaml:"api_key"`
	Model     string `mapstructure:"model" yaml:"model"`
	BaseURL   string `mapstructure:"base_url" yaml:"base_url"`
	MaxTokens int    `mapstructure:"max_tokens" yaml:"max_tokens"`
}

// AgentConfig declares one named agent.
type AgentConfig struct {
	Name    string `mapstructure:"name" yaml:"name"`
	Backend string `mapstructure:"backend" yaml:"backend"`
	// Model overrides the backend's default model.
	Model     string   `mapstructure:"model" yaml:"model,omitempty"`
	System    string   `mapstructure:"system" yaml:"system,omitempty"`
	Expertise []string `mapstructure:"expertise" yaml:"expertise,omitempty"`
	// Command and Args are used by the command backend.
	Command string   `mapstructure:"command" yaml:"command,omitempty"`
	Args    []string `mapstructure:"args" yaml:"args,omitempty"`
}

// PlannerConfig names the agent that drafts and redesigns strategies.
type PlannerConfig struct {
	Agent string `mapstructure:"agent" yaml:"agent"`
}

// LoggingSection configures the structured logger.
type LoggingSection struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	File   string `mapstructure:"file" yaml:"file"`
}

// TracingSection configures span export.
type TracingSection struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Output  string `mapstructure:"output" yaml:"output"`
}

// StateSection locates the state database.
type StateSection struct {
	// Path overrides the database location. Empty selects the project
	// database when Project is set and the global one otherwise.
	Path    string `mapstructure:"path" yaml:"path"`
	Project bool   `mapstructure:"project" yaml:"project"`
}

// Load loads configuration from XDG paths, project overrides, and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (ANTHROPIC_API_KEY, OPENAI_API_KEY, CONCLAVE_*)
// 2. Project config (.conclave.yaml in current directory or parent)
// 3. User config (~/.config/conclave/config.yaml)
// 4. Built-in defaults
//
// Agent files in the project's .conclave/agents directory are appended to
// the configured agents.
func Load() (*Config, error) {
	v := newViper()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(getUserConfigDir())

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	projectConfig := findProjectConfig()
	if projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading project config %s: %w", projectConfig, err)
		}
		if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
			return nil, fmt.Errorf("merging project config: %w", err)
		}
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}

	if projectConfig != "" {
		agentsDir := filepath.Join(filepath.Dir(projectConfig), ".conclave", "agents")
		extra, err := LoadAgentDir(agentsDir)
		if err != nil {
			return nil, err
		}
		cfg.Agents = append(cfg.Agents, extra...)
	}
	if len(cfg.Agents) == 0 {
		cfg.Agents = DefaultAgents()
	}
	return cfg, nil
}

// LoadFromPath loads configuration from a specific path. Environment
// overrides still apply.
func LoadFromPath(path string) (*Config, error) {
	v := newViper()

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	if len(cfg.Agents) == 0 {
		cfg.Agents = DefaultAgents()
	}
	return cfg, nil
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("CONCLAVE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.BindEnv("anthropic.api_key", "CONCLAVE_ANTHROPIC_API_KEY", "ANTHROPIC_API_KEY")
	v.BindEnv("openai.api_key", "CONCLAVE_OPENAI_API_KEY", "OPENAI_API_KEY")
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Anthropic.APIKey = expandEnv(cfg.Anthropic.APIKey)
	cfg.OpenAI.APIKey = expandEnv(cfg.OpenAI.APIKey)
	cfg.Logging.File = expandEnv(cfg.Logging.File)
	cfg.State.Path = expandEnv(cfg.State.Path)
	return cfg, nil
}

// Save writes cfg to the user config file.
func Save(cfg *Config) error {
	userConfigDir := getUserConfigDir()
	if err := os.MkdirAll(userConfigDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	return SaveTo(cfg, filepath.Join(userConfigDir, "config.yaml"))
}

// SaveTo writes cfg as YAML to path.
func SaveTo(cfg *Config, path string) error {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("orchestrator.mode", cfg.Orchestrator.Mode)
	v.Set("orchestrator.max_step_remediations", cfg.Orchestrator.MaxStepRemediations)
	v.Set("orchestrator.max_total_redesigns", cfg.Orchestrator.MaxTotalRedesigns)
	v.Set("orchestrator.min_step_interval", cfg.Orchestrator.MinStepInterval.String())
	v.Set("orchestrator.max_concurrent_tasks", cfg.Orchestrator.MaxConcurrentTasks)
	v.Set("orchestrator.step_timeout", cfg.Orchestrator.StepTimeout.String())
	v.Set("retry.max_retries", cfg.Retry.MaxRetries)
	v.Set("retry.base_delay", cfg.Retry.BaseDelay.String())
	v.Set("retry.max_delay", cfg.Retry.MaxDelay.String())
	v.Set("retry.jitter", cfg.Retry.Jitter)
	v.Set("dialogue.turn_timeout", cfg.Dialogue.TurnTimeout.String())
	v.Set("dialogue.max_rounds", cfg.Dialogue.MaxRounds)
	v.Set("dialogue.history_dir", cfg.Dialogue.HistoryDir)
	v.Set("anthropic.api_key", cfg.Anthropic.APIKey)
	v.Set("anthropic.model", cfg.Anthropic.Model)
	v.Set("anthropic.max_tokens", cfg.Anthropic.MaxTokens)
	v.Set("anthropic.use_bedrock", cfg.Anthropic.UseBedrock)
	v.Set("anthropic.region", cfg.Anthropic.Region)
	v.Set("openai.api_key", cfg.OpenAI.APIKey)
	v.Set("openai.model", cfg.OpenAI.Model)
	v.Set("openai.base_url", cfg.OpenAI.BaseURL)
	v.Set("openai.max_tokens", cfg.OpenAI.MaxTokens)
	v.Set("agents", agentMaps(cfg.Agents))
	v.Set("planner.agent", cfg.Planner.Agent)
	v.Set("logging.level", cfg.Logging.Level)
	v.Set("logging.format", cfg.Logging.Format)
	v.Set("logging.file", cfg.Logging.File)
	v.Set("tracing.enabled", cfg.Tracing.Enabled)
	v.Set("tracing.output", cfg.Tracing.Output)
	v.Set("state.path", cfg.State.Path)
	v.Set("state.project", cfg.State.Project)

	return v.WriteConfig()
}

func agentMaps(agents []AgentConfig) []map[string]any {
	out := make([]map[string]any, 0, len(agents))
	for _, a := range agents {
		m := map[string]any{"name": a.Name, "backend": a.Backend}
		if a.Model != "" {
			m["model"] = a.Model
		}
		if a.System != "" {
			m["system"] = a.System
		}
		if len(a.Expertise) > 0 {
			m["expertise"] = a.Expertise
		}
		if a.Command != "" {
			m["command"] = a.Command
		}
		if len(a.Args) > 0 {
			m["args"] = a.Args
		}
		out = append(out, m)
	}
	return out
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("orchestrator.mode", string(models.ModeParallel))
	v.SetDefault("orchestrator.max_step_remediations", orchestrator.DefaultMaxStepRemediations)
	v.SetDefault("orchestrator.max_total_redesigns", orchestrator.DefaultMaxTotalRedesigns)
	v.SetDefault("orchestrator.min_step_interval", "0s")
	v.SetDefault("orchestrator.max_concurrent_tasks", 4)
	v.SetDefault("orchestrator.step_timeout", "10m")

	v.SetDefault("retry.max_retries", 3)
	v.SetDefault("retry.base_delay", "500ms")
	v.SetDefault("retry.max_delay", "30s")
	v.SetDefault("retry.jitter", 0.2)

	v.SetDefault("dialogue.turn_timeout", "5m")
	v.SetDefault("dialogue.max_rounds", 10)
	v.SetDefault("dialogue.history_dir", "")

	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("anthropic.model", DefaultAnthropicModel)
	v.SetDefault("anthropic.max_tokens", 8192)
	v.SetDefault("anthropic.use_bedrock", false)
	v.SetDefault("anthropic.region", "")

	v.SetDefault("openai.api_key", "")
	v.SetDefault("openai.model", DefaultOpenAIModel)
	v.SetDefault("openai.base_url", "")
	v.SetDefault("openai.max_tokens", 4096)

	v.SetDefault("planner.agent", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.file", "")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.output", "")

	v.SetDefault("state.path", "")
	v.SetDefault("state.project", false)
}

// Default models for the API backends.
const (
	DefaultAnthropicModel = "claude-sonnet-4-5"
	DefaultOpenAIModel    = "gpt-4o"
)

// getUserConfigDir returns the XDG config directory for conclave.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "conclave")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "conclave")
	}
	return filepath.Join(home, ".config", "conclave")
}

// findProjectConfig searches for .conclave.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".conclave.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

// expandEnv expands ${VAR} references in a string.
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Orchestrator: OrchestratorSection{
			Mode:                string(models.ModeParallel),
			MaxStepRemediations: orchestrator.DefaultMaxStepRemediations,
			MaxTotalRedesigns:   orchestrator.DefaultMaxTotalRedesigns,
			MaxConcurrentTasks:  4,
			StepTimeout:         10 * time.Minute,
		},
		Retry: RetrySection{
			MaxRetries: 3,
			BaseDelay:  500 * time.Millisecond,
			MaxDelay:   30 * time.Second,
			Jitter:     0.2,
		},
		Dialogue: DialogueSection{
			TurnTimeout: 5 * time.Minute,
			MaxRounds:   10,
		},
		Anthropic: AnthropicConfig{
			Model:     DefaultAnthropicModel,
			MaxTokens: 8192,
		},
		OpenAI: OpenAIConfig{
			Model:     DefaultOpenAIModel,
			MaxTokens: 4096,
		},
		Agents: DefaultAgents(),
		Logging: LoggingSection{
			Level:  "info",
			Format: "text",
		},
	}
}

// DefaultAgents is the agent set used when none is configured.
func DefaultAgents() []AgentConfig {
	return []AgentConfig{
		{Name: "claude", Backend: BackendAnthropic, Expertise: []string{"general", "planning", "writing"}},
	}
}

// Validate checks agent declarations and cross references.
func (c *Config) Validate() error {
	var errs []error

	if !models.Mode(c.Orchestrator.Mode).Valid() {
		errs = append(errs, fmt.Errorf("orchestrator.mode: unknown mode %q", c.Orchestrator.Mode))
	}

	seen := make(map[string]bool, len(c.Agents))
	for i, a := range c.Agents {
		if a.Name == "" {
			errs = append(errs, fmt.Errorf("agents[%d]: name is required", i))
			continue
		}
		if seen[a.Name] {
			errs = append(errs, fmt.Errorf("agents[%d]: duplicate name %q", i, a.Name))
		}
		seen[a.Name] = true

		switch a.Backend {
		case BackendAnthropic, BackendOpenAI:
		case BackendCommand:
			if a.Command == "" {
				errs = append(errs, fmt.Errorf("agent %s: command backend needs a command", a.Name))
			}
		default:
			errs = append(errs, fmt.Errorf("agent %s: unknown backend %q", a.Name, a.Backend))
		}
	}

	if c.Planner.Agent != "" && !seen[c.Planner.Agent] {
		errs = append(errs, fmt.Errorf("planner.agent: no agent named %q", c.Planner.Agent))
	}
	return errors.Join(errs...)
}

// Agent returns the declaration of the named agent.
func (c *Config) Agent(name string) (AgentConfig, bool) {
	for _, a := range c.Agents {
		if a.Name == name {
			return a, true
		}
	}
	return AgentConfig{}, false
}

// Backends returns the distinct backends the configured agents use.
func (c *Config) Backends() []string {
	set := map[string]bool{}
	for _, a := range c.Agents {
		set[a.Backend] = true
	}
	out := make([]string, 0, len(set))
	for b := range set {
		out = append(out, b)
	}
	sort.Strings(out)
	return out
}

// RetryPolicy converts the retry section.
func (c *Config) RetryPolicy() agent.RetryPolicy {
	return agent.RetryPolicy{
		MaxRetries: c.Retry.MaxRetries,
		BaseDelay:  c.Retry.BaseDelay,
		MaxDelay:   c.Retry.MaxDelay,
		Jitter:     c.Retry.Jitter,
	}
}

// OrchestratorConfig converts the orchestrator and retry sections.
func (c *Config) OrchestratorConfig() orchestrator.Config {
	return orchestrator.Config{
		MaxStepRemediations: c.Orchestrator.MaxStepRemediations,
		MaxTotalRedesigns:   c.Orchestrator.MaxTotalRedesigns,
		MinStepInterval:     c.Orchestrator.MinStepInterval,
		MaxConcurrentTasks:  c.Orchestrator.MaxConcurrentTasks,
		StepTimeout:         c.Orchestrator.StepTimeout,
		Retry:               c.RetryPolicy(),
	}
}

// Mode returns the configured orchestration mode.
func (c *Config) Mode() models.Mode {
	return models.Mode(c.Orchestrator.Mode)
}

// LoggingConfig converts the logging section.
func (c *Config) LoggingConfig() logging.Config {
	return logging.Config{
		Level:  c.Logging.Level,
		Format: c.Logging.Format,
		File:   c.Logging.File,
	}
}

// LoadAgentDir loads one AgentConfig per YAML file in dir, sorted by file
// name. A missing directory yields no agents.
func LoadAgentDir(dir string) ([]AgentConfig, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, fmt.Errorf("list agent files: %w", err)
	}
	sort.Strings(matches)

	agents := make([]AgentConfig, 0, len(matches))
	for _, path := range matches {
		a, err := loadAgentConfig(path)
		if err != nil {
			return nil, err
		}
		agents = append(agents, *a)
	}
	return agents, nil
}

// loadAgentConfig loads a single agent declaration from a YAML file. The
// file name stands in for a missing name.
func loadAgentConfig(path string) (*AgentConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	cfg := &AgentConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling %s: %w", path, err)
	}
	if cfg.Name == "" {
		cfg.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if cfg.Backend == "" {
		cfg.Backend = BackendAnthropic
	}
	return cfg, nil
}
