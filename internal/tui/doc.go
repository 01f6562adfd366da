// Package tui renders conclave's terminal output with lipgloss: strategy
// wave layouts, run summaries, live orchestrator progress lines and
// dialogue transcripts with per-persona colours.
//
// Output degrades to plain text when stdout is not a terminal, so the
// same renderers serve logs and pipes.
package tui
