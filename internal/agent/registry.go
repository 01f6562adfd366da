package agent

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// ErrDuplicateAgent indicates an agent with the same name is already registered.
var ErrDuplicateAgent = errors.New("agent already registered")

// Registry resolves agents by name.
// It is safe for concurrent use; lookups preserve registration order.
type Registry struct {
	// agents maps agent names to agents.
	agents map[string]Agent
	// order records names in registration order.
	order []string
	// mu protects all fields.
	mu sync.RWMutex
}

// NewRegistry creates an empty Registry, optionally pre-populated.
func NewRegistry(agents ...Agent) (*Registry, error) {
	r := &Registry{agents: make(map[string]Agent)}
	for _, a := range agents {
		if err := r.Register(a); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds an agent under its name.
func (r *Registry) Register(a Agent) error {
	if a == nil || a.Name() == "" {
		return ErrEmptyName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.agents[a.Name()]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateAgent, a.Name())
	}
	r.agents[a.Name()] = a
	r.order = append(r.order, a.Name())
	return nil
}

// Unregister removes an agent by name.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.agents[name]; !exists {
		return
	}
	delete(r.agents, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Get resolves an agent by name.
func (r *Registry) Get(name string) (Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.agents[name]
	if !ok {
		return nil, &UnknownAgentError{Name: name}
	}
	return a, nil
}

// Names returns registered agent names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// All returns every agent in registration order.
func (r *Registry) All() []Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	agents := make([]Agent, 0, len(r.order))
	for _, name := range r.order {
		agents = append(agents, r.agents[name])
	}
	return agents
}

// FindByExpertise returns agents that declare any of the given tags,
// compared case-insensitively, in registration order.
func (r *Registry) FindByExpertise(tags ...string) []Agent {
	if len(tags) == 0 {
		return nil
	}
	want := make(map[string]bool, len(tags))
	for _, t := range tags {
		want[strings.ToLower(strings.TrimSpace(t))] = true
	}

	var matches []Agent
	for _, a := range r.All() {
		for _, e := range a.Expertise() {
			if want[strings.ToLower(e)] {
				matches = append(matches, a)
				break
			}
		}
	}
	return matches
}

// Len returns the number of registered agents.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}
