package dialogue

import (
	"fmt"
	"os"
	"strings"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/ShayCichocki/conclave/internal/agent"
)

// Definition is the YAML description of a dialogue.
//
//	model:
//	  type: moderated
//	  moderator: lead
//	  max_rounds: 4
//	turn_timeout: 2m
//	participants:
//	  - name: Ada
//	    role: architect
//	    agent: claude
//	    joining: recent:6
type Definition struct {
	ID           string                  `yaml:"id,omitempty"`
	Goal         string                  `yaml:"goal,omitempty"`
	Model        ModelDefinition         `yaml:"model"`
	TurnTimeout  string                  `yaml:"turn_timeout,omitempty"`
	Participants []ParticipantDefinition `yaml:"participants"`
}

// ModelDefinition selects the execution model.
type ModelDefinition struct {
	// Type is sequential, broadcast or moderated.
	Type string `yaml:"type"`
	// Speakers orders a sequential model.
	Speakers []string `yaml:"speakers,omitempty"`
	// Order is the broadcast order: completion or participant.
	Order     string `yaml:"order,omitempty"`
	Moderator string `yaml:"moderator,omitempty"`
	MaxRounds int    `yaml:"max_rounds,omitempty"`
}

// ParticipantDefinition binds a persona to an agent by name or expertise.
type ParticipantDefinition struct {
	Persona   `yaml:",inline"`
	Agent     string   `yaml:"agent,omitempty"`
	Expertise []string `yaml:"expertise,omitempty"`
	Joining   string   `yaml:"joining,omitempty"`
}

// ParseDefinition decodes a dialogue definition.
func ParseDefinition(data []byte) (*Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, &agent.SerializationError{What: "dialogue definition", Err: err}
	}
	if len(def.Participants) == 0 {
		return nil, ErrNoParticipants
	}
	return &def, nil
}

// LoadDefinition reads a dialogue definition file.
func LoadDefinition(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dialogue definition %s: %w", path, err)
	}
	return ParseDefinition(data)
}

// Build resolves agents in registry and assembles the dialogue. With a
// non-nil retry every participant agent retries transient errors through it.
func (def *Definition) Build(registry *agent.Registry, retry *agent.RetryExecutor, opts ...Option) (*Dialogue, error) {
	model, err := def.model(registry, retry)
	if err != nil {
		return nil, err
	}

	if def.TurnTimeout != "" {
		timeout, err := time.ParseDuration(def.TurnTimeout)
		if err != nil {
			return nil, fmt.Errorf("turn_timeout: %w", err)
		}
		opts = append([]Option{WithTurnTimeout(timeout)}, opts...)
	}
	if def.ID != "" {
		opts = append([]Option{WithID(def.ID)}, opts...)
	}

	d := New(model, opts...)
	for _, p := range def.Participants {
		a, err := resolveParticipantAgent(registry, p)
		if err != nil {
			return nil, err
		}
		joining, err := ParseJoining(p.Joining)
		if err != nil {
			return nil, fmt.Errorf("participant %s: %w", p.Name, err)
		}
		if retry != nil {
			a = agent.WithRetry(a, retry)
		}
		if err := d.AddParticipant(p.Persona, a, WithJoining(joining)); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func (def *Definition) model(registry *agent.Registry, retry *agent.RetryExecutor) (ExecutionModel, error) {
	switch strings.ToLower(def.Model.Type) {
	case "", "sequential":
		return Sequential(def.Model.Speakers...), nil
	case "broadcast":
		order, err := ParseBroadcastOrder(def.Model.Order)
		if err != nil {
			return nil, err
		}
		return Broadcast(order), nil
	case "moderated", "moderator":
		if def.Model.Moderator == "" {
			return nil, fmt.Errorf("moderated dialogue: moderator agent is required")
		}
		a, err := registry.Get(def.Model.Moderator)
		if err != nil {
			return nil, err
		}
		m := NewAgentModerator(a, retry)
		m.Goal = def.Goal
		return Moderated(m, def.Model.MaxRounds), nil
	default:
		return nil, fmt.Errorf("unknown dialogue model %q", def.Model.Type)
	}
}

func resolveParticipantAgent(registry *agent.Registry, p ParticipantDefinition) (agent.Agent, error) {
	if p.Agent != "" {
		return registry.Get(p.Agent)
	}
	if matches := registry.FindByExpertise(p.Expertise...); len(matches) > 0 {
		return matches[0], nil
	}
	return nil, fmt.Errorf("participant %s: no agent named and none matches expertise %v", p.Name, p.Expertise)
}
