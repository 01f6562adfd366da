// Package graph builds the step dependency graph of a strategy.
package graph

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/ShayCichocki/conclave/internal/template"
	"github.com/ShayCichocki/conclave/pkg/models"
)

// ErrCycleDetected indicates a circular dependency was found between steps.
var ErrCycleDetected = errors.New("circular dependency detected")

// CycleError carries the steps forming a cycle.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("%v: %s", ErrCycleDetected, strings.Join(e.Path, " -> "))
}

func (e *CycleError) Unwrap() error { return ErrCycleDetected }

type set map[string]struct{}

// DependencyGraph is a directed acyclic graph of step dependencies.
// Forward edges point from a step to the producers it reads from;
// reverse edges point from a producer to the steps reading it.
type DependencyGraph struct {
	mu sync.RWMutex
	// order holds step IDs in strategy order for deterministic iteration.
	order []string
	// steps maps step ID to the step itself.
	steps map[string]models.StrategyStep
	// dependencies maps step ID to the IDs of steps it depends on.
	dependencies map[string]set
	// dependents maps step ID to the IDs of steps that depend on it.
	dependents map[string]set
	// unresolved maps step ID to referenced names no step produces.
	unresolved map[string][]string
	// completed tracks which steps have committed their output.
	completed map[string]bool
	// debugLog is an optional logging function.
	debugLog func(format string, args ...any)
}

// Option configures graph construction.
type Option func(*buildOptions)

type buildOptions struct {
	inputs   map[string]bool
	debugLog func(format string, args ...any)
}

// WithInputs declares names supplied by the caller. References to them
// resolve without creating an edge.
func WithInputs(names ...string) Option {
	return func(o *buildOptions) {
		for _, n := range names {
			o.inputs[n] = true
		}
	}
}

// WithDebugLog sets a debug logging function.
func WithDebugLog(fn func(format string, args ...any)) Option {
	return func(o *buildOptions) {
		if fn != nil {
			o.debugLog = fn
		}
	}
}

// Build constructs the graph for a strategy and rejects cycles.
func Build(strategy *models.StrategyMap, opts ...Option) (*DependencyGraph, error) {
	o := buildOptions{
		inputs:   make(map[string]bool),
		debugLog: func(string, ...any) {},
	}
	for _, opt := range opts {
		opt(&o)
	}

	if err := strategy.Validate(); err != nil {
		return nil, err
	}

	g := &DependencyGraph{
		steps:        make(map[string]models.StrategyStep, len(strategy.Steps)),
		dependencies: make(map[string]set, len(strategy.Steps)),
		dependents:   make(map[string]set, len(strategy.Steps)),
		unresolved:   make(map[string][]string),
		completed:    make(map[string]bool),
		debugLog:     o.debugLog,
	}

	// First pass: register every step and every key it publishes.
	producers := make(map[string]string)
	for _, step := range strategy.Steps {
		g.order = append(g.order, step.ID)
		g.steps[step.ID] = step
		g.dependencies[step.ID] = make(set)
		g.dependents[step.ID] = make(set)
		for _, key := range step.OutputKeys() {
			producers[key] = step.ID
		}
	}

	// Second pass: resolve template references into edges.
	for _, step := range strategy.Steps {
		for _, name := range template.ExtractVariables(step.Intent) {
			if template.IsBuiltin(name) || o.inputs[name] {
				continue
			}
			producer, ok := producers[name]
			if !ok {
				g.unresolved[step.ID] = append(g.unresolved[step.ID], name)
				continue
			}
			if producer == step.ID {
				g.debugLog("[graph.Build] step %s: ignoring self-reference %s", step.ID, name)
				continue
			}
			g.dependencies[step.ID][producer] = struct{}{}
			g.dependents[producer][step.ID] = struct{}{}
		}
		g.debugLog("[graph.Build] step %s depends on %v", step.ID, g.sorted(g.dependencies[step.ID]))
	}

	if path := g.findCycle(); path != nil {
		return nil, &CycleError{Path: path}
	}

	g.debugLog("[graph.Build] graph built with %d steps", len(g.order))
	return g, nil
}

// findCycle runs a depth-first search and returns the first cycle found.
func (g *DependencyGraph) findCycle() []string {
	// 0 = unvisited, 1 = on the recursion stack, 2 = done.
	colors := make(map[string]int, len(g.order))
	var stack []string

	var visit func(id string) []string
	visit = func(id string) []string {
		colors[id] = 1
		stack = append(stack, id)

		for _, dep := range g.sorted(g.dependencies[id]) {
			switch colors[dep] {
			case 1:
				// Back edge: the cycle runs from dep's stack position to here.
				for i, s := range stack {
					if s == dep {
						path := append([]string(nil), stack[i:]...)
						return append(path, dep)
					}
				}
			case 0:
				if path := visit(dep); path != nil {
					return path
				}
			}
		}

		stack = stack[:len(stack)-1]
		colors[id] = 2
		return nil
	}

	for _, id := range g.order {
		if colors[id] == 0 {
			if path := visit(id); path != nil {
				return path
			}
		}
	}
	return nil
}

// sorted returns the members of s in strategy order.
func (g *DependencyGraph) sorted(s set) []string {
	out := make([]string, 0, len(s))
	for _, id := range g.order {
		if _, ok := s[id]; ok {
			out = append(out, id)
		}
	}
	return out
}

// ZeroDependencySteps returns steps with no dependencies, in strategy order.
// These form the first wave.
func (g *DependencyGraph) ZeroDependencySteps() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var ready []string
	for _, id := range g.order {
		if len(g.dependencies[id]) == 0 {
			ready = append(ready, id)
		}
	}
	return ready
}

// Ready returns incomplete steps whose dependencies have all completed.
func (g *DependencyGraph) Ready() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var ready []string
	for _, id := range g.order {
		if !g.completed[id] && g.satisfiedLocked(id) {
			ready = append(ready, id)
		}
	}
	return ready
}

func (g *DependencyGraph) satisfiedLocked(id string) bool {
	for dep := range g.dependencies[id] {
		if !g.completed[dep] {
			return false
		}
	}
	return true
}

// Complete marks a step as completed and returns the dependents that
// became ready as a result, in strategy order.
func (g *DependencyGraph) Complete(id string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.completed[id] {
		return nil
	}
	g.completed[id] = true
	g.debugLog("[graph.Complete] step %s completed", id)

	var released []string
	for _, dep := range g.sorted(g.dependents[id]) {
		if !g.completed[dep] && g.satisfiedLocked(dep) {
			released = append(released, dep)
		}
	}
	return released
}

// IsComplete reports whether a step has been marked complete.
func (g *DependencyGraph) IsComplete(id string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.completed[id]
}

// Dependencies returns the IDs of steps the given step depends on.
func (g *DependencyGraph) Dependencies(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.sorted(g.dependencies[id])
}

// Dependents returns the IDs of steps that depend on the given step.
func (g *DependencyGraph) Dependents(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.sorted(g.dependents[id])
}

// TransitiveDependents returns every step reachable through reverse edges,
// in strategy order.
func (g *DependencyGraph) TransitiveDependents(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	reached := make(set)
	queue := []string{id}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for dep := range g.dependents[cur] {
			if _, seen := reached[dep]; !seen {
				reached[dep] = struct{}{}
				queue = append(queue, dep)
			}
		}
	}
	return g.sorted(reached)
}

// Unresolved returns names the step references that no step produces.
func (g *DependencyGraph) Unresolved(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]string(nil), g.unresolved[id]...)
}

// Step returns the step for a given ID.
func (g *DependencyGraph) Step(id string) (models.StrategyStep, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	s, ok := g.steps[id]
	return s, ok
}

// Has reports whether the graph contains the step.
func (g *DependencyGraph) Has(id string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.steps[id]
	return ok
}

// Order returns step IDs in strategy order.
func (g *DependencyGraph) Order() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]string(nil), g.order...)
}

// Size returns the number of steps in the graph.
func (g *DependencyGraph) Size() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.order)
}

// Levels groups steps by longest distance from a zero-dependency step.
// With unlimited concurrency and no failures these are the waves a
// parallel run dispatches.
func (g *DependencyGraph) Levels() [][]string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	depth := make(map[string]int, len(g.order))
	var measure func(id string) int
	measure = func(id string) int {
		if d, ok := depth[id]; ok {
			return d
		}
		d := 0
		for dep := range g.dependencies[id] {
			if dd := measure(dep) + 1; dd > d {
				d = dd
			}
		}
		depth[id] = d
		return d
	}

	var levels [][]string
	for _, id := range g.order {
		d := measure(id)
		for len(levels) <= d {
			levels = append(levels, nil)
		}
		levels[d] = append(levels[d], id)
	}
	return levels
}
