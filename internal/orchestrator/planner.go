package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/ShayCichocki/conclave/internal/agent"
	"github.com/ShayCichocki/conclave/pkg/models"
)

// RedesignKind distinguishes tactical redesign from full regeneration.
type RedesignKind string

const (
	// RedesignTactical replaces only the steps that have not completed.
	RedesignTactical RedesignKind = "tactical"
	// RedesignFull replaces the whole strategy.
	RedesignFull RedesignKind = "full"
)

// RedesignRequest describes the state a planner redesigns from.
type RedesignRequest struct {
	Kind RedesignKind
	// Task is the original task of the run.
	Task string
	// Strategy is the strategy that was executing.
	Strategy *models.StrategyMap
	// Completed lists steps whose outputs are committed, in strategy order.
	Completed []string
	// FailedStep is the step whose failure triggered the redesign.
	FailedStep string
	// Failure is the error that step returned.
	Failure error
	// Outputs holds committed context values.
	Outputs map[string]string
}

// Remaining returns the steps of the current strategy not yet completed.
func (r RedesignRequest) Remaining() []models.StrategyStep {
	done := make(map[string]bool, len(r.Completed))
	for _, id := range r.Completed {
		done[id] = true
	}
	var out []models.StrategyStep
	if r.Strategy == nil {
		return out
	}
	for _, s := range r.Strategy.Steps {
		if !done[s.ID] {
			out = append(out, s)
		}
	}
	return out
}

// Planner drafts and redesigns strategies.
// For RedesignTactical, Redesign returns only the replacement for the
// remaining steps; for RedesignFull it returns a complete strategy.
type Planner interface {
	Plan(ctx context.Context, task string) (*models.StrategyMap, error)
	Redesign(ctx context.Context, req RedesignRequest) (*models.StrategyMap, error)
}

// AgentPlanner asks an agent to write strategies as YAML.
type AgentPlanner struct {
	agent    agent.Agent
	registry *agent.Registry
	retry    *agent.RetryExecutor
}

// NewAgentPlanner creates a planner backed by a. The registry is used to
// tell the planner which agents it may assign.
func NewAgentPlanner(a agent.Agent, registry *agent.Registry, retry *agent.RetryExecutor) *AgentPlanner {
	if retry == nil {
		retry = agent.NewRetryExecutor(agent.DefaultRetryPolicy())
	}
	return &AgentPlanner{agent: a, registry: registry, retry: retry}
}

// Plan drafts a strategy for task.
func (p *AgentPlanner) Plan(ctx context.Context, task string) (*models.StrategyMap, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Break the following task into a strategy of steps.\n\nTASK:\n%s\n\n", task)
	p.writeAgents(&b)
	writeFormat(&b)
	return p.ask(ctx, b.String())
}

// Redesign drafts replacement steps after a failure.
func (p *AgentPlanner) Redesign(ctx context.Context, req RedesignRequest) (*models.StrategyMap, error) {
	if req.Kind == RedesignFull {
		var b strings.Builder
		fmt.Fprintf(&b, "A previous strategy for this task failed at step %q: %v\n", req.FailedStep, req.Failure)
		fmt.Fprintf(&b, "Design a completely new strategy.\n\nTASK:\n%s\n\n", req.Task)
		p.writeAgents(&b)
		writeFormat(&b)
		return p.ask(ctx, b.String())
	}

	var b strings.Builder
	fmt.Fprintf(&b, "TASK:\n%s\n\n", req.Task)
	fmt.Fprintf(&b, "Step %q failed: %v\n\n", req.FailedStep, req.Failure)
	if len(req.Completed) > 0 {
		b.WriteString("Completed steps and the context keys they produced (keep using these keys):\n")
		for _, id := range req.Completed {
			if s, ok := req.Strategy.Step(id); ok {
				fmt.Fprintf(&b, "- %s -> %s\n", id, s.ResolvedOutputKey())
			}
		}
		b.WriteString("\n")
	}
	remaining := &models.StrategyMap{Goal: req.Task, Steps: req.Remaining()}
	if data, err := remaining.Marshal(); err == nil {
		fmt.Fprintf(&b, "Remaining steps to replace:\n%s\n", data)
	}
	b.WriteString("Write replacement steps for the remaining work only. Do not reuse completed step ids.\n\n")
	p.writeAgents(&b)
	writeFormat(&b)
	return p.ask(ctx, b.String())
}

func (p *AgentPlanner) writeAgents(b *strings.Builder) {
	if p.registry == nil {
		return
	}
	b.WriteString("AVAILABLE AGENTS:\n")
	for _, a := range p.registry.All() {
		if len(a.Expertise()) > 0 {
			fmt.Fprintf(b, "- %s (%s)\n", a.Name(), strings.Join(a.Expertise(), ", "))
		} else {
			fmt.Fprintf(b, "- %s\n", a.Name())
		}
	}
	b.WriteString("\n")
}

func writeFormat(b *strings.Builder) {
	b.WriteString(`Respond with YAML only:
goal: <one line>
steps:
  - id: <identifier, letters digits and underscores>
    description: <what the step does>
    agent: <agent name>
    intent: <prompt; may reference {{ task }}, {{ previous_output }} or {{ <id>_output }}>
    expected_output: <shape of a good result>
`)
}

func (p *AgentPlanner) ask(ctx context.Context, prompt string) (*models.StrategyMap, error) {
	parse := func(ctx context.Context, in string) (string, error) {
		out, err := p.agent.Execute(ctx, in)
		if err != nil {
			return "", err
		}
		if _, err := models.ParseStrategy([]byte(stripFences(out))); err != nil {
			return "", &agent.ParseError{Agent: p.agent.Name(), Output: out, Err: err}
		}
		return out, nil
	}

	out, err := p.retry.Execute(ctx, parse, prompt, p.retry.Policy().MaxRetries)
	if err != nil {
		return nil, fmt.Errorf("planner: %w", err)
	}
	return models.ParseStrategy([]byte(stripFences(out)))
}

// stripFences removes a surrounding markdown code fence, if present.
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
