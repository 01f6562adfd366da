package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/ShayCichocki/conclave/internal/orchestrator"
)

// EventLine formats an orchestrator event as one progress line. It
// returns "" for events that are not worth showing.
func EventLine(ev orchestrator.OrchestratorEvent) string {
	s := DefaultStyles()
	ts := s.Muted.Render(ev.Timestamp.Format("15:04:05"))

	var body string
	switch ev.Type {
	case orchestrator.EventRunStarted:
		body = s.Title.Render("run started") + " " + s.Muted.Render(ev.RunID)
	case orchestrator.EventWaveDispatched:
		body = s.Label.Render("wave") + " " + s.Value.Render(strings.Join(ev.Steps, ", "))
	case orchestrator.EventStepStarted:
		body = fmt.Sprintf("%s %s %s", s.Running.Render(iconRunning), s.Value.Render(ev.StepID), s.Muted.Render("@"+ev.Agent))
	case orchestrator.EventStepCompleted:
		body = fmt.Sprintf("%s %s %s", s.Done.Render(iconDone), s.Value.Render(ev.StepID), s.Muted.Render(ev.Duration.Round(time.Millisecond).String()))
	case orchestrator.EventStepFailed:
		body = fmt.Sprintf("%s %s %s", s.Failed.Render(iconFailed), s.Value.Render(ev.StepID), s.Failed.Render(errText(ev.Error)))
	case orchestrator.EventStepSkipped:
		body = fmt.Sprintf("%s %s", s.Pending.Render(iconSkipped), s.Muted.Render(ev.StepID))
	case orchestrator.EventRemediation:
		body = fmt.Sprintf("%s %s %s", s.Warning.Render(iconWaiting), s.Value.Render(ev.StepID), s.Warning.Render(ev.Rung.String()))
		if ev.Message != "" {
			body += " " + s.Muted.Render(ev.Message)
		}
	case orchestrator.EventRunDone:
		body = s.Title.Render("run finished") + " " + s.Muted.Render(ev.Message)
	default:
		return ""
	}
	return ts + " " + body
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return truncate(err.Error(), 80)
}
