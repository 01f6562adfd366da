package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/ShayCichocki/conclave/pkg/models"
)

// RenderResult summarises a finished run.
func RenderResult(res *models.OrchestrationResult) string {
	s := DefaultStyles()
	var b strings.Builder

	fmt.Fprintf(&b, "%s %s\n", s.Title.Render("Run "+res.RunID), s.RunStatus(res.Status))
	fmt.Fprintf(&b, "%s %s   %s %s   %s %s   %s %s\n",
		s.Label.Render("executed"), s.Value.Render(fmt.Sprint(res.StepsExecuted)),
		s.Label.Render("skipped"), s.Value.Render(fmt.Sprint(res.StepsSkipped)),
		s.Label.Render("redesigns"), s.Value.Render(fmt.Sprint(res.RedesignsTriggered)),
		s.Label.Render("took"), s.Value.Render(res.Duration.Round(time.Millisecond).String()),
	)

	if len(res.Steps) > 0 {
		b.WriteString("\n")
	}
	for _, rec := range res.Steps {
		line := fmt.Sprintf("  %s %s", s.StepIcon(rec.Status), s.Value.Render(rec.StepID))
		if rec.Agent != "" {
			line += " " + s.Muted.Render("@"+rec.Agent)
		}
		if rec.Attempts > 1 {
			line += " " + s.Warning.Render(fmt.Sprintf("(%d attempts)", rec.Attempts))
		}
		if rec.Error != "" {
			line += " " + s.Failed.Render(truncate(rec.Error, 80))
		}
		b.WriteString(line + "\n")
	}

	return strings.TrimRight(b.String(), "\n")
}

// RenderOutput boxes the final output of a run.
func RenderOutput(output string, width int) string {
	s := DefaultStyles()
	box := s.Box
	if width > 4 {
		box = box.Width(width - 2)
	}
	return box.Render(strings.TrimSpace(output))
}
