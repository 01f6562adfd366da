package tui

import (
	"fmt"
	"strings"

	"github.com/ShayCichocki/conclave/internal/graph"
	"github.com/ShayCichocki/conclave/pkg/models"
)

// RenderStrategy lays out a strategy wave by wave. Each step line shows
// the assigned agent and the steps it waits on.
func RenderStrategy(strategy *models.StrategyMap, g *graph.DependencyGraph) string {
	s := DefaultStyles()
	var b strings.Builder

	if strategy.Goal != "" {
		b.WriteString(s.Title.Render(strategy.Goal))
		b.WriteString("\n")
	}

	for i, wave := range g.Levels() {
		b.WriteString(s.Label.Render(fmt.Sprintf("Wave %d", i+1)))
		b.WriteString("\n")
		for _, id := range wave {
			step, _ := g.Step(id)
			b.WriteString(stepLine(s, step, g.Dependencies(id)))
			b.WriteString("\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func stepLine(s Styles, step models.StrategyStep, deps []string) string {
	agent := step.Agent
	if agent == "" {
		agent = "auto"
	}

	line := fmt.Sprintf("  %s %s %s",
		s.Pending.Render(iconPending),
		s.Value.Render(step.ID),
		s.Muted.Render("@"+agent),
	)
	if step.Description != "" && step.Description != step.ID {
		line += " " + s.Label.Render(truncate(step.Description, 50))
	}
	if len(deps) > 0 {
		line += " " + s.Arrow.Render("<-- "+strings.Join(deps, ", "))
	}
	return line
}
