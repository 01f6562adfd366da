package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/ShayCichocki/conclave/internal/dialogue"
)

// Transcript renders dialogue messages. Personas that declare a visual
// colour keep it; everyone else gets a stable palette colour.
type Transcript struct {
	styles Styles
	colors map[string]lipgloss.Color
	width  int
}

// NewTranscript creates a renderer for the given personas. Width wraps
// message bodies; zero disables wrapping.
func NewTranscript(width int, personas ...dialogue.Persona) *Transcript {
	t := &Transcript{
		styles: DefaultStyles(),
		colors: make(map[string]lipgloss.Color, len(personas)),
		width:  width,
	}
	for _, p := range personas {
		if p.Visual != nil && p.Visual.Color != "" {
			t.colors[p.Name] = lipgloss.Color(p.Visual.Color)
		}
	}
	return t
}

func (t *Transcript) color(sp dialogue.Speaker) lipgloss.Color {
	if c, ok := t.colors[sp.Name]; ok {
		return c
	}
	return colorFor(sp.Name)
}

// Header renders the speaker line of a message.
func (t *Transcript) Header(m dialogue.Message) string {
	turn := t.styles.Muted.Render(fmt.Sprintf("#%d", m.Turn))

	switch m.Speaker.Kind {
	case dialogue.SpeakerUser, dialogue.SpeakerSystem:
		return turn + " " + t.styles.Title.Render(m.Speaker.Label())
	}

	name := lipgloss.NewStyle().Bold(true).Foreground(t.color(m.Speaker)).Render(m.Speaker.Name)
	if m.Speaker.Icon != "" {
		name = m.Speaker.Icon + " " + name
	}
	if m.Speaker.Role != "" {
		name += " " + t.styles.Muted.Render("("+m.Speaker.Role+")")
	}
	return turn + " " + name
}

// Message renders one message with its header and indented body.
func (t *Transcript) Message(m dialogue.Message) string {
	body := lipgloss.NewStyle().PaddingLeft(2)
	if t.width > 4 {
		body = body.Width(t.width)
	}
	if m.Speaker.Kind == dialogue.SpeakerAgent {
		body = body.
			BorderStyle(lipgloss.NormalBorder()).
			BorderLeft(true).
			BorderForeground(t.color(m.Speaker))
	}
	return t.Header(m) + "\n" + body.Render(strings.TrimSpace(m.Content))
}

// Render renders messages separated by blank lines.
func (t *Transcript) Render(messages []dialogue.Message) string {
	parts := make([]string, 0, len(messages))
	for _, m := range messages {
		parts = append(parts, t.Message(m))
	}
	return strings.Join(parts, "\n\n")
}
