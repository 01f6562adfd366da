package dialogue

import (
	"context"
	"fmt"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/ShayCichocki/conclave/internal/agent"
)

// Directive is the YAML document an AgentModerator expects back.
type Directive struct {
	Action   string   `yaml:"action"`
	Speakers []string `yaml:"speakers,omitempty"`
	Order    string   `yaml:"order,omitempty"`
	Reason   string   `yaml:"reason,omitempty"`
}

// ParseDirective decodes and checks a moderator directive against the
// known participant names.
func ParseDirective(data string, participants []string) (Decision, error) {
	var d Directive
	if err := yaml.Unmarshal([]byte(stripFences(data)), &d); err != nil {
		return Decision{}, fmt.Errorf("decode directive: %w", err)
	}

	known := make(map[string]bool, len(participants))
	for _, p := range participants {
		known[p] = true
	}

	switch strings.ToLower(strings.TrimSpace(d.Action)) {
	case "end", "done", "stop":
		return Decision{Done: true, Reason: d.Reason}, nil
	case "sequential":
		for _, s := range d.Speakers {
			if !known[s] {
				return Decision{}, &UnknownParticipantError{Name: s}
			}
		}
		return Decision{Model: SequentialModel{Order: d.Speakers}, Reason: d.Reason}, nil
	case "broadcast":
		order, err := ParseBroadcastOrder(d.Order)
		if err != nil {
			return Decision{}, err
		}
		return Decision{Model: BroadcastModel{Order: order}, Reason: d.Reason}, nil
	default:
		return Decision{}, fmt.Errorf("unknown moderator action %q", d.Action)
	}
}

// AgentModerator asks an agent to direct each round.
type AgentModerator struct {
	agent agent.Agent
	retry *agent.RetryExecutor
	// Goal is included in every moderation prompt.
	Goal string
}

var _ Moderator = (*AgentModerator)(nil)

// NewAgentModerator creates a moderator backed by a. Unparseable
// directives are retried through retry.
func NewAgentModerator(a agent.Agent, retry *agent.RetryExecutor) *AgentModerator {
	if retry == nil {
		retry = agent.NewRetryExecutor(agent.DefaultRetryPolicy())
	}
	return &AgentModerator{agent: a, retry: retry}
}

// Decide prompts the agent with the conversation and parses its directive.
func (m *AgentModerator) Decide(ctx context.Context, view RoundView) (Decision, error) {
	names := make([]string, 0, len(view.Participants))
	for _, p := range view.Participants {
		names = append(names, p.Name)
	}

	var decision Decision
	op := func(ctx context.Context, in string) (string, error) {
		out, err := m.agent.Execute(ctx, in)
		if err != nil {
			return "", err
		}
		d, err := ParseDirective(out, names)
		if err != nil {
			return "", &agent.ParseError{Agent: m.agent.Name(), Output: out, Err: err}
		}
		decision = d
		return out, nil
	}

	if _, err := m.retry.Execute(ctx, op, m.prompt(view), m.retry.Policy().MaxRetries); err != nil {
		return Decision{}, err
	}
	return decision, nil
}

func (m *AgentModerator) prompt(view RoundView) string {
	var b strings.Builder
	b.WriteString("You moderate a conversation. Decide how the next round runs.\n\n")
	if m.Goal != "" {
		fmt.Fprintf(&b, "GOAL: %s\n", m.Goal)
	}
	fmt.Fprintf(&b, "ROUND: %d\nOPENING PROMPT: %s\n\nPARTICIPANTS:\n", view.Round+1, view.Prompt)
	for _, p := range view.Participants {
		fmt.Fprintf(&b, "- %s", p.Name)
		if p.Role != "" {
			fmt.Fprintf(&b, " (%s)", p.Role)
		}
		if len(p.Expertise) > 0 {
			fmt.Fprintf(&b, " [%s]", strings.Join(p.Expertise, ", "))
		}
		b.WriteString("\n")
	}
	if len(view.History) > 0 {
		b.WriteString("\nCONVERSATION:\n")
		for _, msg := range view.History {
			fmt.Fprintf(&b, "[%s] %s\n", msg.Speaker.Label(), msg.Content)
		}
	}
	b.WriteString(`
Respond with YAML only, one of:
action: sequential
speakers: [<names in speaking order>]
reason: <why>

action: broadcast
order: completion | participant
reason: <why>

action: end
reason: <why the conversation is finished>
`)
	return b.String()
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if i := strings.Index(s, "\n"); i >= 0 {
		s = s[i+1:]
	}
	if i := strings.LastIndex(s, "```"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
