package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/conclave/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config [key] [value]",
	Short: "Manage configuration",
	Long: `View or modify conclave configuration.

Without arguments, displays the effective configuration.
With one argument (key), displays the value for that key.
With two arguments (key value), sets the value in the user config.

Configuration is stored at ~/.config/conclave/config.yaml
Project-specific overrides can be placed in .conclave.yaml`,
	Args: cobra.MaximumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		switch len(args) {
		case 0:
			displayAllConfig(out, cfg)
			return nil
		case 1:
			value, err := getConfigValue(cfg, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(out, value)
			return nil
		default:
			if err := setConfigValue(cfg, args[0], args[1]); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := config.Save(cfg); err != nil {
				return fmt.Errorf("save config: %w", err)
			}
			fmt.Fprintf(out, "Set %s = %s\n", args[0], args[1])
			return nil
		}
	},
}

// configKeys lists the keys accepted by get and set, in display order.
var configKeys = []string{
	"orchestrator.mode",
	"orchestrator.max_step_remediations",
	"orchestrator.max_total_redesigns",
	"orchestrator.min_step_interval",
	"orchestrator.max_concurrent_tasks",
	"orchestrator.step_timeout",
	"retry.max_retries",
	"retry.base_delay",
	"retry.max_delay",
	"dialogue.turn_timeout",
	"dialogue.max_rounds",
	"dialogue.history_dir",
	"anthropic.api_key",
	"anthropic.model",
	"anthropic.use_bedrock",
	"anthropic.region",
	"openai.api_key",
	"openai.model",
	"openai.base_url",
	"planner.agent",
	"logging.level",
	"logging.format",
	"logging.file",
	"tracing.enabled",
	"tracing.output",
	"state.path",
	"state.project",
}

// displayAllConfig prints all configuration values.
func displayAllConfig(out io.Writer, cfg *config.Config) {
	for _, key := range configKeys {
		value, _ := getConfigValue(cfg, key)
		fmt.Fprintf(out, "%s: %s\n", key, value)
	}

	fmt.Fprintf(out, "\nanthropic key source: %s\n", config.GetAPIKeySource(cfg, config.ProviderAnthropic))
	fmt.Fprintf(out, "openai key source: %s\n", config.GetAPIKeySource(cfg, config.ProviderOpenAI))

	fmt.Fprintf(out, "\nagents:\n")
	for _, ac := range cfg.Agents {
		fmt.Fprintf(out, "  - %s (%s)\n", ac.Name, ac.Backend)
	}
}

// getConfigValue retrieves a configuration value by dot-notation key.
func getConfigValue(cfg *config.Config, key string) (string, error) {
	switch strings.ToLower(key) {
	case "orchestrator.mode":
		return cfg.Orchestrator.Mode, nil
	case "orchestrator.max_step_remediations":
		return strconv.Itoa(cfg.Orchestrator.MaxStepRemediations), nil
	case "orchestrator.max_total_redesigns":
		return strconv.Itoa(cfg.Orchestrator.MaxTotalRedesigns), nil
	case "orchestrator.min_step_interval":
		return cfg.Orchestrator.MinStepInterval.String(), nil
	case "orchestrator.max_concurrent_tasks":
		return strconv.Itoa(cfg.Orchestrator.MaxConcurrentTasks), nil
	case "orchestrator.step_timeout":
		return cfg.Orchestrator.StepTimeout.String(), nil
	case "retry.max_retries":
		return strconv.Itoa(cfg.Retry.MaxRetries), nil
	case "retry.base_delay":
		return cfg.Retry.BaseDelay.String(), nil
	case "retry.max_delay":
		return cfg.Retry.MaxDelay.String(), nil
	case "dialogue.turn_timeout":
		return cfg.Dialogue.TurnTimeout.String(), nil
	case "dialogue.max_rounds":
		return strconv.Itoa(cfg.Dialogue.MaxRounds), nil
	case "dialogue.history_dir":
		return cfg.Dialogue.HistoryDir, nil
	case "anthropic.api_key":
		return config.MaskAPIKey(cfg.Anthropic.APIKey), nil
	case "anthropic.model":
		return cfg.Anthropic.Model, nil
	case "anthropic.use_bedrock":
		return strconv.FormatBool(cfg.Anthropic.UseBedrock), nil
	case "anthropic.region":
		return cfg.Anthropic.Region, nil
	case "openai.api_key":
		return config.MaskAPIKey(cfg.OpenAI.APIKey), nil
	case "openai.model":
		return cfg.OpenAI.Model, nil
	case "openai.base_url":
		return cfg.OpenAI.BaseURL, nil
	case "planner.agent":
		return cfg.Planner.Agent, nil
	case "logging.level":
		return cfg.Logging.Level, nil
	case "logging.format":
		return cfg.Logging.Format, nil
	case "logging.file":
		return cfg.Logging.File, nil
	case "tracing.enabled":
		return strconv.FormatBool(cfg.Tracing.Enabled), nil
	case "tracing.output":
		return cfg.Tracing.Output, nil
	case "state.path":
		return cfg.State.Path, nil
	case "state.project":
		return strconv.FormatBool(cfg.State.Project), nil
	default:
		return "", fmt.Errorf("unknown configuration key: %s", key)
	}
}

// setConfigValue sets a configuration value by dot-notation key.
func setConfigValue(cfg *config.Config, key, value string) error {
	key = strings.ToLower(key)
	switch key {
	case "orchestrator.mode":
		cfg.Orchestrator.Mode = value
	case "orchestrator.max_step_remediations":
		return setInt(&cfg.Orchestrator.MaxStepRemediations, key, value)
	case "orchestrator.max_total_redesigns":
		return setInt(&cfg.Orchestrator.MaxTotalRedesigns, key, value)
	case "orchestrator.min_step_interval":
		return setDuration(&cfg.Orchestrator.MinStepInterval, key, value)
	case "orchestrator.max_concurrent_tasks":
		return setInt(&cfg.Orchestrator.MaxConcurrentTasks, key, value)
	case "orchestrator.step_timeout":
		return setDuration(&cfg.Orchestrator.StepTimeout, key, value)
	case "retry.max_retries":
		return setInt(&cfg.Retry.MaxRetries, key, value)
	case "retry.base_delay":
		return setDuration(&cfg.Retry.BaseDelay, key, value)
	case "retry.max_delay":
		return setDuration(&cfg.Retry.MaxDelay, key, value)
	case "dialogue.turn_timeout":
		return setDuration(&cfg.Dialogue.TurnTimeout, key, value)
	case "dialogue.max_rounds":
		return setInt(&cfg.Dialogue.MaxRounds, key, value)
	case "dialogue.history_dir":
		cfg.Dialogue.HistoryDir = value
	case "anthropic.api_key":
		cfg.Anthropic.APIKey = value
	case "anthropic.model":
		cfg.Anthropic.Model = value
	case "anthropic.use_bedrock":
		return setBool(&cfg.Anthropic.UseBedrock, key, value)
	case "anthropic.region":
		cfg.Anthropic.Region = value
	case "openai.api_key":
		cfg.OpenAI.APIKey = value
	case "openai.model":
		cfg.OpenAI.Model = value
	case "openai.base_url":
		cfg.OpenAI.BaseURL = value
	case "planner.agent":
		cfg.Planner.Agent = value
	case "logging.level":
		cfg.Logging.Level = value
	case "logging.format":
		cfg.Logging.Format = value
	case "logging.file":
		cfg.Logging.File = value
	case "tracing.enabled":
		return setBool(&cfg.Tracing.Enabled, key, value)
	case "tracing.output":
		cfg.Tracing.Output = value
	case "state.path":
		cfg.State.Path = value
	case "state.project":
		return setBool(&cfg.State.Project, key, value)
	default:
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	return nil
}

func setInt(dst *int, key, value string) error {
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid integer for %s: %w", key, err)
	}
	*dst = n
	return nil
}

func setDuration(dst *time.Duration, key, value string) error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("invalid duration for %s: %w", key, err)
	}
	*dst = d
	return nil
}

func setBool(dst *bool, key, value string) error {
	b, err := strconv.ParseBool(value)
	if err != nil {
		return fmt.Errorf("invalid boolean for %s: %w", key, err)
	}
	*dst = b
	return nil
}
