package models

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"go.yaml.in/yaml/v3"
)

// ErrEmptyStrategy is returned when a strategy has no steps.
var ErrEmptyStrategy = errors.New("strategy has no steps")

// StrategyStep is one unit of work in a strategy.
type StrategyStep struct {
	// ID is the unique identifier for this step.
	ID string `json:"id" yaml:"id"`
	// Description says what the step accomplishes.
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	// Agent is the name of the registered agent that runs this step.
	// Empty means the orchestrator picks one by expertise.
	Agent string `json:"agent,omitempty" yaml:"agent,omitempty"`
	// Intent is the prompt template rendered before execution.
	Intent string `json:"intent" yaml:"intent"`
	// ExpectedOutput describes the shape of a good result.
	ExpectedOutput string `json:"expected_output,omitempty" yaml:"expected_output,omitempty"`
	// OutputKey overrides the default "<ID>_output" context key.
	OutputKey string `json:"output_key,omitempty" yaml:"output_key,omitempty"`
}

// DefaultOutputKey returns the key every step publishes under,
// whether or not it also declares a custom key.
func (s StrategyStep) DefaultOutputKey() string {
	return s.ID + "_output"
}

// ResolvedOutputKey returns the key the step's result is committed at.
func (s StrategyStep) ResolvedOutputKey() string {
	if s.OutputKey != "" {
		return s.OutputKey
	}
	return s.DefaultOutputKey()
}

// OutputKeys returns the default key and, if set, the custom key.
func (s StrategyStep) OutputKeys() []string {
	if s.OutputKey == "" || s.OutputKey == s.DefaultOutputKey() {
		return []string{s.DefaultOutputKey()}
	}
	return []string{s.DefaultOutputKey(), s.OutputKey}
}

// StrategyMap is an ordered list of steps toward a goal.
type StrategyMap struct {
	// Goal is the overall objective the steps serve.
	Goal string `json:"goal,omitempty" yaml:"goal,omitempty"`
	// Steps are executed in this order by the sequential orchestrator and
	// used as the tie-break order by the parallel one.
	Steps []StrategyStep `json:"steps" yaml:"steps"`
}

// Validate checks that step IDs and output keys are unique.
func (m *StrategyMap) Validate() error {
	if m == nil || len(m.Steps) == 0 {
		return ErrEmptyStrategy
	}

	ids := make(map[string]bool, len(m.Steps))
	owners := make(map[string]string, len(m.Steps)*2)
	for i, step := range m.Steps {
		if strings.TrimSpace(step.ID) == "" {
			return fmt.Errorf("step %d: missing id", i)
		}
		if ids[step.ID] {
			return fmt.Errorf("duplicate step id %q", step.ID)
		}
		ids[step.ID] = true

		for _, key := range step.OutputKeys() {
			if owner, exists := owners[key]; exists {
				return fmt.Errorf("output key %q is produced by both %q and %q", key, owner, step.ID)
			}
			owners[key] = step.ID
		}
	}
	return nil
}

// Step returns the step with the given ID.
func (m *StrategyMap) Step(id string) (StrategyStep, bool) {
	for _, s := range m.Steps {
		if s.ID == id {
			return s, true
		}
	}
	return StrategyStep{}, false
}

// IDs returns step IDs in strategy order.
func (m *StrategyMap) IDs() []string {
	ids := make([]string, len(m.Steps))
	for i, s := range m.Steps {
		ids[i] = s.ID
	}
	return ids
}

// Clone returns a deep copy.
func (m *StrategyMap) Clone() *StrategyMap {
	if m == nil {
		return nil
	}
	steps := make([]StrategyStep, len(m.Steps))
	copy(steps, m.Steps)
	return &StrategyMap{Goal: m.Goal, Steps: steps}
}

// ParseStrategy decodes a YAML (or JSON) strategy document and validates it.
func ParseStrategy(data []byte) (*StrategyMap, error) {
	var m StrategyMap
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse strategy: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// LoadStrategy reads and parses a strategy file.
func LoadStrategy(path string) (*StrategyMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read strategy %s: %w", path, err)
	}
	return ParseStrategy(data)
}

// Marshal encodes the strategy as YAML.
func (m *StrategyMap) Marshal() ([]byte, error) {
	return yaml.Marshal(m)
}
