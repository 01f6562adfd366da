package tui

import (
	"hash/fnv"

	"github.com/charmbracelet/lipgloss"

	"github.com/ShayCichocki/conclave/pkg/models"
)

// Status icons.
const (
	iconRunning = "[●]"
	iconWaiting = "[◐]"
	iconDone    = "[✓]"
	iconFailed  = "[✗]"
	iconPending = "[○]"
	iconSkipped = "[-]"
)

// Styles groups the lipgloss styles shared by every renderer.
type Styles struct {
	Title   lipgloss.Style
	Label   lipgloss.Style
	Value   lipgloss.Style
	Muted   lipgloss.Style
	Arrow   lipgloss.Style
	Box     lipgloss.Style
	Running lipgloss.Style
	Done    lipgloss.Style
	Failed  lipgloss.Style
	Pending lipgloss.Style
	Warning lipgloss.Style
}

// DefaultStyles returns the standard palette.
func DefaultStyles() Styles {
	return Styles{
		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")),

		Label: lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")),

		Value: lipgloss.NewStyle().
			Foreground(lipgloss.Color("252")),

		Muted: lipgloss.NewStyle().
			Foreground(lipgloss.Color("244")),

		Arrow: lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")),

		Box: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1),

		Running: lipgloss.NewStyle().
			Foreground(lipgloss.Color("34")), // Green

		Done: lipgloss.NewStyle().
			Foreground(lipgloss.Color("28")), // Dark green

		Failed: lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")), // Red

		Pending: lipgloss.NewStyle().
			Foreground(lipgloss.Color("244")), // Gray

		Warning: lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")), // Orange
	}
}

// StepIcon returns the styled icon for a step status.
func (s Styles) StepIcon(status models.StepStatus) string {
	switch status {
	case models.StepStatusCompleted:
		return s.Done.Render(iconDone)
	case models.StepStatusRunning:
		return s.Running.Render(iconRunning)
	case models.StepStatusFailed:
		return s.Failed.Render(iconFailed)
	case models.StepStatusSkipped:
		return s.Pending.Render(iconSkipped)
	default:
		return s.Pending.Render(iconPending)
	}
}

// RunStatus returns the styled run status.
func (s Styles) RunStatus(status models.RunStatus) string {
	switch status {
	case models.RunStatusSuccess:
		return s.Done.Render(iconDone + " " + string(status))
	case models.RunStatusFailed:
		return s.Failed.Render(iconFailed + " " + string(status))
	case models.RunStatusCancelled:
		return s.Warning.Render(iconWaiting + " " + string(status))
	default:
		return s.Running.Render(iconRunning + " " + string(status))
	}
}

// personaPalette holds the colours assigned to personas without one.
var personaPalette = []lipgloss.Color{
	"39",  // Blue
	"170", // Magenta
	"214", // Orange
	"42",  // Green
	"204", // Pink
	"111", // Light blue
	"178", // Gold
	"141", // Purple
}

// colorFor picks a stable palette colour for name.
func colorFor(name string) lipgloss.Color {
	h := fnv.New32a()
	h.Write([]byte(name))
	return personaPalette[h.Sum32()%uint32(len(personaPalette))]
}

func truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}
