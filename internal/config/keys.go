package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrNoAPIKey is returned when no API key is configured for a provider.
var ErrNoAPIKey = errors.New("no API key configured")

// Provider is an API backend that needs a key.
type Provider string

const (
	ProviderAnthropic Provider = BackendAnthropic
	ProviderOpenAI    Provider = BackendOpenAI
)

func (p Provider) envVar() string {
	switch p {
	case ProviderOpenAI:
		return "OPENAI_API_KEY"
	default:
		return "ANTHROPIC_API_KEY"
	}
}

func (p Provider) configured(cfg *Config) string {
	if cfg == nil {
		return ""
	}
	switch p {
	case ProviderOpenAI:
		return cfg.OpenAI.APIKey
	default:
		return cfg.Anthropic.APIKey
	}
}

// GetAPIKey returns the provider's API key, checking the environment
// variable first and then the config file.
func GetAPIKey(cfg *Config, p Provider) (string, error) {
	if key := os.Getenv(p.envVar()); key != "" {
		return key, nil
	}

	if raw := p.configured(cfg); raw != "" {
		key := os.ExpandEnv(raw)
		if key != "" && !strings.HasPrefix(key, "${") {
			return key, nil
		}
	}

	return "", fmt.Errorf("%w for %s (set %s)", ErrNoAPIKey, p, p.envVar())
}

// ValidateAPIKey performs basic format checks on a key without calling the API.
func ValidateAPIKey(p Provider, key string) error {
	if key == "" {
		return ErrNoAPIKey
	}

	prefix := "sk-ant-"
	if p == ProviderOpenAI {
		prefix = "sk-"
	}
	if !strings.HasPrefix(key, prefix) {
		return fmt.Errorf("invalid %s API key format: expected %q prefix", p, prefix)
	}

	if len(key) < 20 {
		return errors.New("invalid API key format: key too short")
	}

	return nil
}

// MaskAPIKey returns a masked version of the API key for display.
// Shows the first 7 characters and last 4 characters.
func MaskAPIKey(key string) string {
	if key == "" {
		return "(not set)"
	}

	if len(key) <= 15 {
		return "***"
	}

	return key[:7] + "..." + key[len(key)-4:]
}

// KeySource represents where an API key was loaded from.
type KeySource string

const (
	KeySourceEnv    KeySource = "environment"
	KeySourceConfig KeySource = "config_file"
	KeySourceNone   KeySource = "none"
)

// GetAPIKeySource returns where the provider's API key was sourced from.
func GetAPIKeySource(cfg *Config, p Provider) KeySource {
	if os.Getenv(p.envVar()) != "" {
		return KeySourceEnv
	}

	if raw := p.configured(cfg); raw != "" {
		key := os.ExpandEnv(raw)
		if key != "" && !strings.HasPrefix(key, "${") {
			return KeySourceConfig
		}
	}

	return KeySourceNone
}
